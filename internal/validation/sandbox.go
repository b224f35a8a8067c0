package validation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/signalnine/roundtrip/internal/docker"
)

// Execution is the raw outcome of running one assembled script.
type Execution struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Sandbox runs a script file in a fresh child process or container. Each
// call is independent; no interpreter state survives between calls.
type Sandbox interface {
	Run(ctx context.Context, scriptPath string, timeout time.Duration) (*Execution, error)
}

// LocalSandbox runs scripts with a host interpreter.
type LocalSandbox struct {
	Interpreter []string
}

func (s *LocalSandbox) Run(ctx context.Context, scriptPath string, timeout time.Duration) (*Execution, error) {
	interp := s.Interpreter
	if len(interp) == 0 {
		interp = []string{"python3"}
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, interp[1:]...), scriptPath)
	cmd := exec.CommandContext(runCtx, interp[0], args...)
	cmd.Dir = filepath.Dir(scriptPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Orphaned grandchildren can hold the pipes open after a kill.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	res := &Execution{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = 124
		return res, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, fmt.Errorf("running %s: %w", interp[0], err)
	}
	return res, nil
}

// DockerSandbox runs scripts in a throwaway container without network access.
type DockerSandbox struct {
	Image       string
	Interpreter []string
	CPULimit    float64
	MemoryLimit int64
	UserID      string
}

func (s *DockerSandbox) Run(ctx context.Context, scriptPath string, timeout time.Duration) (*Execution, error) {
	res, err := docker.RunScript(ctx, &docker.ScriptOpts{
		Image:       s.Image,
		Interpreter: s.Interpreter,
		ScriptPath:  scriptPath,
		Timeout:     timeout,
		CPULimit:    s.CPULimit,
		MemoryLimit: s.MemoryLimit,
		UserID:      s.UserID,
	})
	if err != nil {
		return nil, err
	}
	return &Execution{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
		TimedOut: res.TimedOut,
		Duration: res.Duration,
	}, nil
}
