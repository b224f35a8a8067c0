// Package pricing estimates the cost of model calls from a YAML price table.
package pricing

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/roundtrip/internal/result"
)

// ModelPricing is the price per 1K tokens.
type ModelPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Table maps provider -> model -> price. A model key "*" prices every model
// of that provider not listed explicitly.
type Table struct {
	Providers map[string]map[string]ModelPricing
}

func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	var providers map[string]map[string]ModelPricing
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	return &Table{Providers: providers}, nil
}

// Lookup finds the price for model. Ollama style tags ("llama3:8b") fall
// back to the untagged name, then to the provider wildcard.
func (t *Table) Lookup(provider, model string) (ModelPricing, bool) {
	if t == nil || t.Providers == nil {
		return ModelPricing{}, false
	}
	models, ok := t.Providers[provider]
	if !ok {
		return ModelPricing{}, false
	}
	if p, ok := models[model]; ok {
		return p, true
	}
	if base, _, found := strings.Cut(model, ":"); found {
		if p, ok := models[base]; ok {
			return p, true
		}
	}
	p, ok := models["*"]
	return p, ok
}

// Cost calculates total cost for a request. Unknown models cost nothing.
func (t *Table) Cost(provider, model string, inputTokens, outputTokens int) float64 {
	p, ok := t.Lookup(provider, model)
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1000.0)*p.Input + (float64(outputTokens)/1000.0)*p.Output
}

// RunCost sums the cost of every recorded cycle of res.
func (t *Table) RunCost(res *result.RunResult) float64 {
	var inTok, outTok int
	for _, rec := range res.Logs {
		inTok += rec.InputTokens
		outTok += rec.OutputTokens
	}
	return t.Cost(res.Provider, res.Model, inTok, outTok)
}
