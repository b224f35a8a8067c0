// Package report aggregates run results into success rates and survival
// curves.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/roundtrip/internal/pricing"
	"github.com/signalnine/roundtrip/internal/result"
)

// z for a two-sided 95% interval.
const z95 = 1.959963984540054

// fallbackMaxCycles is used for records written without max_cycles.
const fallbackMaxCycles = 10

// Group is one experimental condition.
type Group struct {
	Model       string `json:"model"`
	TestCase    string `json:"test_case"`
	Lang        string `json:"lang"`
	SpecLang    string `json:"spec_lang"`
	PromptStyle string `json:"prompt_style"`
	Mode        string `json:"mode"`
}

type SurvivalPoint struct {
	Cycle int     `json:"cycle"`
	Rate  float64 `json:"survival_rate"`
}

type Summary struct {
	Group
	Trials       int     `json:"trials"`
	Successes    int     `json:"successes"`
	ConfigErrors int     `json:"config_errors"`
	SuccessRate  float64 `json:"success_rate"`
	CILower      float64 `json:"ci_lower"`
	CIUpper      float64 `json:"ci_upper"`
	MeanCycles   float64 `json:"mean_cycles_completed"`
	MeanTokens   float64 `json:"mean_tokens"`
	MeanCostUSD  float64 `json:"mean_cost_usd"`

	Survival []SurvivalPoint `json:"survival"`
}

type Options struct {
	// PricingPath, when set, recomputes each run's cost from its recorded
	// token usage.
	PricingPath string
}

// Generate reads every result.json below runDir and writes a summary in
// format: table, markdown, json or csv.
func Generate(runDir, format string, w io.Writer, opts Options) error {
	results, err := result.CollectRunResults(runDir)
	if err != nil {
		return fmt.Errorf("collecting results: %w", err)
	}
	if opts.PricingPath != "" {
		table, err := pricing.Load(opts.PricingPath)
		if err != nil {
			return err
		}
		for _, r := range results {
			r.TotalCostUSD = table.RunCost(r)
		}
	}

	summaries := Aggregate(results)

	switch format {
	case "markdown":
		return writeMarkdown(summaries, w)
	case "json":
		return writeJSON(summaries, w)
	case "csv":
		return writeCSV(summaries, w)
	case "table", "":
		return writeTable(summaries, w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// Aggregate groups results by condition. Runs that ended in a
// configuration error are counted but excluded from the rates, since they
// say nothing about the model.
func Aggregate(results []*result.RunResult) []Summary {
	type accum struct {
		runs         []*result.RunResult
		configErrors int
		maxCycles    int
	}
	groups := map[Group]*accum{}

	for _, r := range results {
		g := Group{
			Model:       r.Model,
			TestCase:    r.TestCase,
			Lang:        r.Lang,
			SpecLang:    r.SpecLang,
			PromptStyle: r.PromptStyle,
			Mode:        r.Mode,
		}
		a, ok := groups[g]
		if !ok {
			a = &accum{}
			groups[g] = a
		}
		if r.Outcome == result.OutcomeConfigError {
			a.configErrors++
			continue
		}
		a.runs = append(a.runs, r)
		if r.MaxCycles > a.maxCycles {
			a.maxCycles = r.MaxCycles
		}
	}

	var summaries []Summary
	for g, a := range groups {
		s := Summary{Group: g, Trials: len(a.runs), ConfigErrors: a.configErrors}
		var cycles, tokens, cost float64
		completed := make([]int, 0, len(a.runs))
		for _, r := range a.runs {
			if r.Succeeded() {
				s.Successes++
			}
			cycles += float64(r.CyclesCompleted)
			tokens += float64(r.TotalTokens)
			cost += r.TotalCostUSD
			completed = append(completed, r.CyclesCompleted)
		}
		if s.Trials > 0 {
			n := float64(s.Trials)
			s.SuccessRate = float64(s.Successes) / n
			s.CILower, s.CIUpper = Wilson(s.Successes, s.Trials)
			s.MeanCycles = cycles / n
			s.MeanTokens = tokens / n
			s.MeanCostUSD = cost / n
		}
		maxCycles := a.maxCycles
		if maxCycles == 0 {
			maxCycles = fallbackMaxCycles
		}
		s.Survival = Survival(completed, maxCycles)
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].key() < summaries[j].key()
	})
	return summaries
}

func (g Group) key() string {
	return strings.Join([]string{g.Model, g.TestCase, g.Lang, g.SpecLang, g.PromptStyle, g.Mode}, "\x00")
}

// Wilson returns the 95% Wilson score interval for successes out of n.
func Wilson(successes, n int) (lower, upper float64) {
	if n == 0 {
		return 0, 0
	}
	nf := float64(n)
	p := float64(successes) / nf
	z2 := z95 * z95
	denom := 1 + z2/nf
	center := (p + z2/(2*nf)) / denom
	half := z95 * math.Sqrt(p*(1-p)/nf+z2/(4*nf*nf)) / denom
	return math.Max(0, center-half), math.Min(1, center+half)
}

// Survival returns, for k = 1..maxCycles, the fraction of runs that
// completed at least k cycles.
func Survival(cyclesCompleted []int, maxCycles int) []SurvivalPoint {
	points := make([]SurvivalPoint, 0, maxCycles)
	for k := 1; k <= maxCycles; k++ {
		survived := 0
		for _, c := range cyclesCompleted {
			if c >= k {
				survived++
			}
		}
		rate := 0.0
		if len(cyclesCompleted) > 0 {
			rate = float64(survived) / float64(len(cyclesCompleted))
		}
		points = append(points, SurvivalPoint{Cycle: k, Rate: rate})
	}
	return points
}

func rateWithCI(s Summary) string {
	return fmt.Sprintf("%.1f%% (95%% CI: %.1f-%.1f)", s.SuccessRate*100, s.CILower*100, s.CIUpper*100)
}

func writeTable(summaries []Summary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tTEST CASE\tVARIANT\tTRIALS\tSUCCESS RATE\tMEAN CYCLES\tMEAN TOKENS\tMEAN COST\tCONFIG ERRORS")
	fmt.Fprintln(tw, strings.Repeat("-", 100))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%.2f\t%.0f\t$%.4f\t%d\n",
			s.Model, s.TestCase, variant(s.Group), s.Trials, rateWithCI(s), s.MeanCycles, s.MeanTokens, s.MeanCostUSD, s.ConfigErrors)
	}
	return tw.Flush()
}

func writeMarkdown(summaries []Summary, w io.Writer) error {
	fmt.Fprintln(w, "| Model | Test case | Variant | Trials | Success rate | Mean cycles | Mean tokens | Mean cost |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %s | %s | %d | %s | %.2f | %.0f | $%.4f |\n",
			s.Model, s.TestCase, variant(s.Group), s.Trials, rateWithCI(s), s.MeanCycles, s.MeanTokens, s.MeanCostUSD)
	}
	return nil
}

func writeJSON(summaries []Summary, w io.Writer) error {
	if summaries == nil {
		summaries = []Summary{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}

// writeCSV emits one row per survival curve point, rates in percent.
func writeCSV(summaries []Summary, w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"model", "test_case", "lang", "spec_lang", "prompt_style", "mode", "cycle", "survival_rate"})
	for _, s := range summaries {
		for _, p := range s.Survival {
			cw.Write([]string{
				s.Model, s.TestCase, s.Lang, s.SpecLang, s.PromptStyle, s.Mode,
				strconv.Itoa(p.Cycle),
				strconv.FormatFloat(p.Rate*100, 'f', 2, 64),
			})
		}
	}
	cw.Flush()
	return cw.Error()
}

func variant(g Group) string {
	return result.Variant(g.Lang, g.SpecLang, g.PromptStyle, g.Mode)
}
