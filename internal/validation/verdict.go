package validation

import (
	"fmt"
	"strings"
	"time"
)

type Kind int

const (
	KindPass Kind = iota + 1
	KindFail
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindPass:
		return "pass"
	case KindFail:
		return "fail"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Verdict is the result of validating one candidate. Fail means the
// oracle rejected the code or the code raised; Error means the process
// could not be run to completion.
type Verdict struct {
	Kind     Kind
	Reason   string
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

func (v *Verdict) Passed() bool {
	return v != nil && v.Kind == KindPass
}

// Output is the trimmed stdout of a clean exit, empty otherwise.
func (v *Verdict) Output() string {
	if v.ExitCode != 0 || v.TimedOut {
		return ""
	}
	return v.Stdout
}

// Diagnostic is the human-readable reason for a failed or errored run,
// empty on pass.
func (v *Verdict) Diagnostic() string {
	if v.Kind == KindPass {
		return ""
	}
	if v.Stderr != "" {
		return v.Stderr
	}
	return v.Reason
}

// ClassifyOracle interprets a template-protocol execution.
func ClassifyOracle(e *Execution) *Verdict {
	v := newVerdict(e)
	switch {
	case e.TimedOut:
		v.Kind = KindError
		v.Reason = fmt.Sprintf("timed out after %s", e.Duration.Round(time.Millisecond))
	case e.ExitCode != 0:
		v.Kind = KindFail
		v.Reason = firstNonEmpty(v.Stderr, v.Stdout, fmt.Sprintf("exit status %d", e.ExitCode))
	case strings.Contains(v.Stdout, SuccessMarker):
		v.Kind = KindPass
	default:
		v.Kind = KindFail
		v.Reason = firstNonEmpty(v.Stdout, "oracle printed no success marker")
	}
	return v
}

// ClassifyLegacy interprets a legacy scalar-protocol execution.
func ClassifyLegacy(e *Execution) *Verdict {
	v := newVerdict(e)
	switch {
	case e.TimedOut:
		v.Kind = KindError
		v.Reason = fmt.Sprintf("timed out after %s", e.Duration.Round(time.Millisecond))
	case e.ExitCode != 0:
		v.Kind = KindFail
		v.Reason = firstNonEmpty(v.Stderr, fmt.Sprintf("exit status %d", e.ExitCode))
	case v.Stdout == LegacyExpected:
		v.Kind = KindPass
	default:
		v.Kind = KindFail
		v.Reason = fmt.Sprintf("Output was: '%s'", v.Stdout)
	}
	return v
}

func newVerdict(e *Execution) *Verdict {
	return &Verdict{
		Stdout:   strings.TrimSpace(e.Stdout),
		Stderr:   strings.TrimSpace(e.Stderr),
		ExitCode: e.ExitCode,
		TimedOut: e.TimedOut,
		Duration: e.Duration,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
