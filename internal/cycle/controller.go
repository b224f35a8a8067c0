// Package cycle drives the code -> specification -> code round trip for one
// test case and produces its RunResult.
package cycle

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/signalnine/roundtrip/internal/extract"
	"github.com/signalnine/roundtrip/internal/gateway"
	"github.com/signalnine/roundtrip/internal/result"
	"github.com/signalnine/roundtrip/internal/testcase"
	"github.com/signalnine/roundtrip/internal/validation"
)

const DefaultMaxCycles = 10

// Status strings written to RunResult and CycleRecord.
const (
	StatusCompleted   = "SUCCESS: All cycles completed."
	StatusStepOK      = "SUCCESS"
	StatusAPIFailed   = "FAIL: API call failed"
	StatusSpecDiffers = "FAIL: Generated spec did not match ground truth."
)

// SpecCheck selects how the generated specification is compared against
// the test case ground truth.
type SpecCheck string

const (
	SpecCheckOff   SpecCheck = "off"
	SpecCheckExact SpecCheck = "exact"
)

// Validator judges candidate code. A non-nil error means the test case is
// misconfigured; a failing candidate is reported through the Verdict.
type Validator interface {
	Validate(ctx context.Context, code string, tc *testcase.TestCase) (*validation.Verdict, error)
}

// placeholderChecker is implemented by validators that can check an oracle
// template before any code runs.
type placeholderChecker interface {
	CheckPlaceholder(template string) error
}

// Controller runs the round-trip state machine. It holds no per-run state
// and may be reused for sequential runs.
type Controller struct {
	Model     gateway.Client
	Validator Validator
	Extractor *extract.Extractor
	MaxCycles int

	SpecCheck   SpecCheck
	GroundTruth string

	Logger *log.Logger
}

func (c *Controller) maxCycles() int {
	if c.MaxCycles <= 0 {
		return DefaultMaxCycles
	}
	return c.MaxCycles
}

func (c *Controller) logger() *log.Logger {
	if c.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return c.Logger
}

// Run carries tc through up to MaxCycles round trips. It never returns an
// error: configuration problems, API failures and failed validations all
// end in a RunResult whose Status and Outcome say where the run stopped.
func (c *Controller) Run(ctx context.Context, tc *testcase.TestCase, prompts *testcase.Prompts) *result.RunResult {
	start := time.Now()
	res := &result.RunResult{
		Logs:      []result.CycleRecord{},
		TestCase:  tc.ID,
		MaxCycles: c.maxCycles(),
		StartedAt: start.UTC(),
	}
	if c.Extractor != nil {
		res.Mode = string(c.Extractor.Mode)
	}
	defer func() {
		res.DurationS = time.Since(start).Seconds()
		for _, rec := range res.Logs {
			res.TotalTokens += rec.InputTokens + rec.OutputTokens
		}
	}()

	if err := c.preflight(tc, prompts); err != nil {
		c.logger().Printf("%s: configuration error: %v", tc.ID, err)
		configError(res, err)
		return res
	}

	current := tc.InitialCode
	for n := 1; n <= res.MaxCycles; n++ {
		rec, err := c.runCycle(ctx, n, current, tc, prompts)
		if err != nil {
			c.logger().Printf("%s: cycle %d: configuration error: %v", tc.ID, n, err)
			configError(res, err)
			return res
		}
		res.Logs = append(res.Logs, *rec)
		if rec.FailedStep != "" {
			c.logger().Printf("%s: cycle %d failed at %s", tc.ID, n, rec.FailedStep)
			res.Status = fmt.Sprintf("FAIL: Cycle %d failed.", n)
			res.Outcome = result.OutcomeAborted
			res.CyclesCompleted = len(res.Logs) - 1
			return res
		}
		current = rec.Code
		c.logger().Printf("%s: cycle %d/%d passed", tc.ID, n, res.MaxCycles)
	}

	res.Status = StatusCompleted
	res.Outcome = result.OutcomeCompleted
	res.CyclesCompleted = res.MaxCycles
	return res
}

// configError marks res as a setup failure. Cycles already recorded were
// completed; the cycle that hit the error is not recorded.
func configError(res *result.RunResult, err error) {
	res.Status = "FAIL: Configuration error: " + err.Error()
	res.Outcome = result.OutcomeConfigError
	res.CyclesCompleted = len(res.Logs)
}

func (c *Controller) preflight(tc *testcase.TestCase, prompts *testcase.Prompts) error {
	if c.Model == nil || c.Validator == nil || c.Extractor == nil {
		return fmt.Errorf("controller requires a model, a validator and an extractor")
	}
	if prompts == nil {
		return fmt.Errorf("no prompts for test case %s", tc.ID)
	}
	if err := prompts.Check(); err != nil {
		return err
	}
	if pc, ok := c.Validator.(placeholderChecker); ok && tc.HasOracle {
		if err := pc.CheckPlaceholder(tc.Oracle); err != nil {
			return fmt.Errorf("test case %s: %w", tc.ID, err)
		}
	}
	switch c.SpecCheck {
	case "", SpecCheckOff:
	case SpecCheckExact:
		if strings.TrimSpace(c.GroundTruth) == "" {
			return fmt.Errorf("spec check %q needs a ground-truth specification for %s", c.SpecCheck, tc.ID)
		}
	default:
		return fmt.Errorf("unknown spec check %q", c.SpecCheck)
	}
	return nil
}

// runCycle performs one SummarizeStep -> RegenerateStep -> ValidateStep
// pass. A failing step is reported through rec.FailedStep; the error
// return is reserved for configuration errors.
func (c *Controller) runCycle(ctx context.Context, n int, current string, tc *testcase.TestCase, prompts *testcase.Prompts) (*result.CycleRecord, error) {
	start := time.Now()
	rec := &result.CycleRecord{Cycle: n}
	var calls []gateway.UsageRecord
	defer func() {
		rec.DurationMS = time.Since(start).Milliseconds()
		rec.InputTokens, rec.OutputTokens = gateway.TotalUsage(calls)
	}()

	prompt, err := prompts.CodeToSpec.Render(map[string]string{testcase.SlotSourceCode: current})
	if err != nil {
		return nil, err
	}
	comp, err := c.Model.Generate(ctx, prompt)
	if err != nil {
		c.logger().Printf("%s: cycle %d: summarize: %v", tc.ID, n, err)
		rec.Step1 = StatusAPIFailed
		rec.FailedStep = result.StepSummarize
		return rec, nil
	}
	calls = append(calls, comp.Usage(result.StepSummarize))
	rec.RawSpec = comp.Text
	rec.Spec = c.Extractor.Extract(comp.Text)
	if c.SpecCheck == SpecCheckExact && normalize(rec.Spec) != normalize(c.GroundTruth) {
		rec.Step1 = StatusSpecDiffers
		rec.FailedStep = result.StepSummarize
		return rec, nil
	}
	rec.Step1 = StatusStepOK

	prompt, err = prompts.SpecToCode.Render(map[string]string{testcase.SlotSpecification: rec.Spec})
	if err != nil {
		return nil, err
	}
	comp, err = c.Model.Generate(ctx, prompt)
	if err != nil {
		c.logger().Printf("%s: cycle %d: regenerate: %v", tc.ID, n, err)
		rec.Step2 = StatusAPIFailed
		rec.FailedStep = result.StepRegenerate
		return rec, nil
	}
	calls = append(calls, comp.Usage(result.StepRegenerate))
	rec.RawCode = comp.Text
	rec.Code = c.Extractor.Extract(comp.Text)

	verdict, err := c.Validator.Validate(ctx, rec.Code, tc)
	if err != nil {
		return nil, err
	}
	rec.Verdict = verdict.Kind.String()
	rec.ValidationStdout = verdict.Stdout
	rec.ValidationStderr = verdict.Stderr
	if !verdict.Passed() {
		rec.Step2 = validationFailure(verdict)
		rec.FailedStep = result.StepValidate
		return rec, nil
	}
	rec.Step2 = StatusStepOK
	return rec, nil
}

func validationFailure(v *validation.Verdict) string {
	// Oracle failures already carry their message in stdout; anything else
	// (legacy mismatch, timeout, bare exit status) reports the reason.
	errText := v.Stderr
	if errText == "" && v.Reason != v.Stdout {
		errText = v.Reason
	}
	return fmt.Sprintf("FAIL: Code validation failed. Error: %s, Output: %s", errText, v.Stdout)
}

// normalize collapses runs of whitespace so formatting differences do not
// count as a spec mismatch.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
