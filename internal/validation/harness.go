// Package validation judges candidate code by running it against a test
// oracle in an isolated child process.
package validation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/signalnine/roundtrip/internal/testcase"
)

const (
	DefaultPlaceholder = "{generated_code}"
	DefaultTimeout     = 10 * time.Second

	// SuccessMarker is what a passing oracle prints on stdout.
	SuccessMarker = "SUCCESS"

	// Legacy scalar protocol, used when a test case has no oracle template.
	LegacyCall     = "print(get_magic_number())"
	LegacyExpected = "42"
)

// ErrPlaceholder marks an oracle template without exactly one placeholder.
// It is a configuration error, not a verdict on the candidate code.
var ErrPlaceholder = errors.New("oracle template must contain exactly one placeholder")

// Harness validates code fragments. The zero value runs python3 locally
// with the default timeout and placeholder.
type Harness struct {
	Sandbox     Sandbox
	Timeout     time.Duration
	TempDir     string
	Placeholder string
}

func (h *Harness) placeholder() string {
	if h.Placeholder == "" {
		return DefaultPlaceholder
	}
	return h.Placeholder
}

// CheckPlaceholder verifies template contains the placeholder exactly once.
func (h *Harness) CheckPlaceholder(template string) error {
	return checkPlaceholder(template, h.placeholder())
}

func checkPlaceholder(template, placeholder string) error {
	if n := strings.Count(template, placeholder); n != 1 {
		return fmt.Errorf("%w: found %d occurrences of %s", ErrPlaceholder, n, placeholder)
	}
	return nil
}

// SpliceTemplate inserts code in place of the placeholder, surrounded by
// blank lines so it cannot fuse with neighbouring tokens or inherit their
// indentation.
func SpliceTemplate(template, placeholder, code string) (string, error) {
	if err := checkPlaceholder(template, placeholder); err != nil {
		return "", err
	}
	pre, post, _ := strings.Cut(template, placeholder)
	return pre + "\n\n" + code + "\n\n" + post, nil
}

// Validate runs code against the test case oracle. The error return is
// reserved for configuration errors; every execution outcome, including
// crashes and timeouts, is reported as a Verdict.
func (h *Harness) Validate(ctx context.Context, code string, tc *testcase.TestCase) (*Verdict, error) {
	if !tc.HasOracle {
		return h.validateLegacy(ctx, code)
	}
	script, err := SpliceTemplate(tc.Oracle, h.placeholder(), code)
	if err != nil {
		return &Verdict{Kind: KindError, Reason: err.Error()}, fmt.Errorf("test case %s: %w", tc.ID, err)
	}
	exec, err := h.execute(ctx, script)
	if err != nil {
		return &Verdict{Kind: KindError, Reason: err.Error()}, nil
	}
	return ClassifyOracle(exec), nil
}

func (h *Harness) validateLegacy(ctx context.Context, code string) (*Verdict, error) {
	exec, err := h.execute(ctx, code+"\n\n"+LegacyCall)
	if err != nil {
		return &Verdict{Kind: KindError, Reason: err.Error()}, nil
	}
	return ClassifyLegacy(exec), nil
}

// execute writes script to a fresh temp file, runs it, and removes the
// file on every path.
func (h *Harness) execute(ctx context.Context, script string) (*Execution, error) {
	f, err := os.CreateTemp(h.TempDir, "roundtrip-*.py")
	if err != nil {
		return nil, fmt.Errorf("creating script file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(script); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing script file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("writing script file: %w", err)
	}

	sandbox := h.Sandbox
	if sandbox == nil {
		sandbox = &LocalSandbox{}
	}
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return sandbox.Run(ctx, path, timeout)
}
