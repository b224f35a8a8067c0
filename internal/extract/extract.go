// Package extract turns raw model completions into a single clean source
// (or specification) fragment.
//
// Extraction is two phases over plain text: locate candidate spans (fenced
// blocks, inline-code wrapping, or the whole text), then dedent the chosen
// span by its minimum indentation over non-blank lines. It never fails;
// ambiguous input degrades to a best-effort fragment.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Mode selects how a block is chosen when several fenced blocks exist.
type Mode string

const (
	// Forgiving returns the first fenced block that parses as valid source.
	Forgiving Mode = "forgiving"
	// Strict always returns the first fenced block.
	Strict Mode = "strict"
)

// ParseMode maps a config string to a Mode. The empty string is Forgiving.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Forgiving:
		return Forgiving, nil
	case Strict:
		return Strict, nil
	default:
		return "", fmt.Errorf("unknown extraction mode %q (want strict or forgiving)", s)
	}
}

// Checker reports whether text parses as syntactically valid source.
// Implementations must not execute the text or have other side effects.
type Checker interface {
	Valid(src string) bool
}

// CheckerFunc adapts a plain function to Checker.
type CheckerFunc func(src string) bool

func (f CheckerFunc) Valid(src string) bool { return f(src) }

// Extractor cleans raw model output.
type Extractor struct {
	Mode    Mode
	Checker Checker
}

// New returns an Extractor for mode. Forgiving mode without a checker
// behaves like strict mode.
func New(mode Mode, checker Checker) *Extractor {
	return &Extractor{Mode: mode, Checker: checker}
}

// fencePattern matches ```lang\n ... \n``` lazily so adjacent blocks stay separate.
var fencePattern = regexp.MustCompile("(?s)```\\w*\\r?\\n(.*?)\\r?\\n```")

// FencedBlocks returns the contents of every fenced block in order of appearance.
func FencedBlocks(text string) []string {
	matches := fencePattern.FindAllStringSubmatch(text, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, m[1])
	}
	return blocks
}

// Extract returns the best-guess fragment contained in raw.
func (e *Extractor) Extract(raw string) string {
	text := trimSurrounding(raw)
	if text == "" {
		return ""
	}

	blocks := FencedBlocks(text)
	if len(blocks) == 0 {
		return clean(stripInlineCode(text))
	}

	if e.Mode != Strict && e.Checker != nil {
		for _, b := range blocks {
			candidate := clean(b)
			if e.Checker.Valid(candidate) {
				return candidate
			}
		}
	}
	return clean(blocks[0])
}

// Dedent removes the common leading whitespace of all non-blank lines.
// Blank lines are left untouched, as are lines shorter than the common
// width. Text with no common indentation is returned unchanged.
func Dedent(text string) string {
	lines := strings.Split(text, "\n")
	minIndent := -1
	for _, line := range lines {
		if isBlank(line) {
			continue
		}
		indent := len(line) - len(strings.TrimLeftFunc(line, unicode.IsSpace))
		if minIndent < 0 || indent < minIndent {
			minIndent = indent
		}
	}
	if minIndent <= 0 {
		return text
	}
	for i, line := range lines {
		if isBlank(line) || len(line) < minIndent {
			continue
		}
		lines[i] = line[minIndent:]
	}
	return strings.Join(lines, "\n")
}

func clean(candidate string) string {
	return Dedent(trimSurrounding(candidate))
}

// stripInlineCode removes exactly one backtick from each end when the
// whole text is wrapped in a single pair of inline-code markers.
func stripInlineCode(text string) string {
	t := strings.TrimSpace(text)
	if len(t) >= 2 && t[0] == '`' && t[len(t)-1] == '`' {
		return t[1 : len(t)-1]
	}
	return text
}

// trimSurrounding drops trailing whitespace and leading blank lines while
// keeping the indentation of the first non-blank line, which Dedent needs.
func trimSurrounding(s string) string {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 || !isBlank(s[:i]) {
			break
		}
		s = s[i+1:]
	}
	if isBlank(s) {
		return ""
	}
	return s
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
