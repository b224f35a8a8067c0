package docker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
)

const (
	scriptTarget = "/sandbox/script.py"
	outTarget    = "/sandbox/out"
)

type ScriptOpts struct {
	Image       string
	Interpreter []string
	ScriptPath  string
	Timeout     time.Duration
	CPULimit    float64
	MemoryLimit int64
	UserID      string
}

type ScriptResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// RunScript executes one script in a fresh, network-less container. The
// script is mounted read-only; stdout and stderr are redirected into a
// scratch directory that is removed before RunScript returns.
func RunScript(ctx context.Context, opts *ScriptOpts) (*ScriptResult, error) {
	scriptAbs, err := filepath.Abs(opts.ScriptPath)
	if err != nil {
		return nil, fmt.Errorf("resolving script path: %w", err)
	}
	outDir, err := os.MkdirTemp("", "roundtrip-out-")
	if err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	defer os.RemoveAll(outDir)
	if err := os.Chmod(outDir, 0o777); err != nil {
		return nil, fmt.Errorf("preparing output dir: %w", err)
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	interpreter := opts.Interpreter
	if len(interpreter) == 0 {
		interpreter = []string{"python3"}
	}
	shell := fmt.Sprintf("exec %s %s >%s/stdout 2>%s/stderr",
		strings.Join(interpreter, " "), scriptTarget, outTarget, outTarget)

	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: scriptAbs, Target: scriptTarget, ReadOnly: true},
			{Type: mount.TypeBind, Source: outDir, Target: outTarget},
		},
		Init:        &initTrue,
		NetworkMode: "none",
	}
	if opts.CPULimit > 0 {
		hostCfg.NanoCPUs = int64(opts.CPULimit * 1e9)
	}
	if opts.MemoryLimit > 0 {
		hostCfg.Memory = opts.MemoryLimit
	}

	containerCfg := &container.Config{
		Image:           opts.Image,
		Cmd:             []string{"sh", "-c", shell},
		WorkingDir:      "/sandbox",
		NetworkDisabled: true,
		Labels:          map[string]string{"roundtrip": "true"},
	}
	if opts.UserID != "" {
		containerCfg.User = opts.UserID
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	containerID := createResp.ID
	defer func() {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	start := time.Now()
	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	res := &ScriptResult{}
	waitResult := cli.ContainerWait(timeoutCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
wait:
	for {
		select {
		case err := <-waitResult.Error:
			if err != nil {
				cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
				if !scriptTimedOut(ctx, timeoutCtx) {
					return nil, fmt.Errorf("waiting for container: %w", err)
				}
				res.ExitCode = 124
				res.TimedOut = true
				break wait
			}
			// nil error means no error on this channel; wait for result
		case status := <-waitResult.Result:
			res.ExitCode = int(status.StatusCode)
			break wait
		}
	}
	res.Duration = time.Since(start)

	stdout, _ := os.ReadFile(filepath.Join(outDir, "stdout"))
	stderr, _ := os.ReadFile(filepath.Join(outDir, "stderr"))
	res.Stdout = string(stdout)
	res.Stderr = string(stderr)
	return res, nil
}

// scriptTimedOut reports whether a failed wait was caused by the script's
// own deadline. Daemon errors and cancellation of the caller's context are
// not timeouts.
func scriptTimedOut(parent, wait context.Context) bool {
	return parent.Err() == nil && errors.Is(wait.Err(), context.DeadlineExceeded)
}
