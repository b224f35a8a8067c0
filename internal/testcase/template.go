package testcase

import (
	"fmt"
	"strings"
)

// Slot names understood by the prompt templates.
const (
	SlotSourceCode    = "source_code"
	SlotSpecification = "specification"
)

// Template is a prompt with named {slot} substitutions. Literal braces are
// written doubled ({{ and }}), so prompt files can carry code samples.
type Template struct {
	Name string
	Text string
}

// Render substitutes every {slot} in the template. A slot with no value
// or an unbalanced brace is an error.
func (t Template) Render(values map[string]string) (string, error) {
	var b strings.Builder
	s := t.Text
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("template %s: unclosed '{' at offset %d", t.Name, i)
			}
			slot := s[i+1 : i+end]
			v, ok := values[slot]
			if !ok {
				return "", fmt.Errorf("template %s: no value for slot {%s}", t.Name, slot)
			}
			b.WriteString(v)
			i += end
		case c == '}':
			return "", fmt.Errorf("template %s: single '}' at offset %d", t.Name, i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// Prompts holds the two directions of the round trip.
type Prompts struct {
	CodeToSpec Template
	SpecToCode Template
}

// Check renders both templates with placeholder values so malformed
// prompts surface before any model call.
func (p *Prompts) Check() error {
	if _, err := p.CodeToSpec.Render(map[string]string{SlotSourceCode: ""}); err != nil {
		return err
	}
	if _, err := p.SpecToCode.Render(map[string]string{SlotSpecification: ""}); err != nil {
		return err
	}
	return nil
}
