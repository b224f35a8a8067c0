package runner_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/roundtrip/internal/config"
	"github.com/signalnine/roundtrip/internal/gateway"
	"github.com/signalnine/roundtrip/internal/pricing"
	"github.com/signalnine/roundtrip/internal/result"
	"github.com/signalnine/roundtrip/internal/runner"
	"github.com/signalnine/roundtrip/internal/testcase"
	"github.com/signalnine/roundtrip/internal/validation"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newRepo(t *testing.T) *testcase.Repository {
	t.Helper()
	root := t.TempDir()
	repo := &testcase.Repository{
		DefinitionsDir: filepath.Join(root, "defs"),
		PromptsDir:     filepath.Join(root, "prompts"),
		SourceLang:     "python",
	}
	writeFile(t, filepath.Join(repo.DefinitionsDir, "echo", "python", "initial_code.py"), "def f():\n    return 0\n")
	promptDir := filepath.Join(repo.PromptsDir, "echo", "en", "pseudocode")
	writeFile(t, filepath.Join(promptDir, "code_to_spec_zeroshot.prompt"), "{source_code}")
	writeFile(t, filepath.Join(promptDir, "spec_to_code_zeroshot.prompt"), "{specification}")
	return repo
}

type echoClient struct{}

func (echoClient) Generate(ctx context.Context, prompt string) (*gateway.Completion, error) {
	return &gateway.Completion{Text: prompt, InputTokens: 1000, OutputTokens: 1000}, nil
}

type passValidator struct{}

func (passValidator) Validate(ctx context.Context, code string, tc *testcase.TestCase) (*validation.Verdict, error) {
	return &validation.Verdict{Kind: validation.KindPass, Stdout: "42"}, nil
}

func experiment() config.Experiment {
	return config.Experiment{
		Lang:        "en",
		SpecLang:    "pseudocode",
		PromptStyle: "zeroshot",
		Mode:        "strict",
		MaxCycles:   2,
		Repetitions: 1,
		SpecCheck:   "off",
	}
}

func TestRunTrialWritesResult(t *testing.T) {
	runDir := t.TempDir()
	table := &pricing.Table{Providers: map[string]map[string]pricing.ModelPricing{
		"ollama": {"llama3": {Input: 0.001, Output: 0.002}},
	}}
	opts := &runner.TrialOpts{
		Trial:          runner.Trial{Model: config.Model{Name: "llama3:8b", Provider: "ollama"}, TestCase: "echo", Repetition: 3},
		Experiment:     experiment(),
		Client:         echoClient{},
		Validator:      passValidator{},
		Repo:           newRepo(t),
		Pricing:        table,
		RunDir:         runDir,
		DefinitionsRev: "abc123",
	}
	res, err := runner.RunTrial(context.Background(), opts)
	if err != nil {
		t.Fatalf("RunTrial: %v", err)
	}
	if !res.Succeeded() || res.CyclesCompleted != 2 {
		t.Errorf("result: %q cycles %d", res.Status, res.CyclesCompleted)
	}
	if res.RunID == "" || res.Model != "llama3:8b" || res.Repetition != 3 || res.DefinitionsRev != "abc123" {
		t.Errorf("metadata not filled: %+v", res)
	}
	// 2 cycles x 2 calls x (1K in + 1K out)
	if res.TotalTokens != 8000 {
		t.Errorf("total tokens: got %d", res.TotalTokens)
	}
	if want := 4*0.001 + 4*0.002; res.TotalCostUSD < want-1e-9 || res.TotalCostUSD > want+1e-9 {
		t.Errorf("cost: got %f, want %f", res.TotalCostUSD, want)
	}

	path := filepath.Join(result.RunDir(runDir, "llama3:8b", "echo", result.Variant("en", "pseudocode", "zeroshot", "strict"), 3), "result.json")
	stored, err := result.ReadRunResult(path)
	if err != nil {
		t.Fatalf("reading stored result: %v", err)
	}
	if stored.RunID != res.RunID {
		t.Errorf("stored run id %q, want %q", stored.RunID, res.RunID)
	}
}

func TestRunTrialMissingPromptIsConfigError(t *testing.T) {
	exp := experiment()
	exp.PromptStyle = "hyper_guided"
	opts := &runner.TrialOpts{
		Trial:      runner.Trial{Model: config.Model{Name: "m", Provider: "ollama"}, TestCase: "echo", Repetition: 1},
		Experiment: exp,
		Client:     echoClient{},
		Validator:  passValidator{},
		Repo:       newRepo(t),
		RunDir:     t.TempDir(),
	}
	res, err := runner.RunTrial(context.Background(), opts)
	if err != nil {
		t.Fatalf("RunTrial: %v", err)
	}
	if res.Outcome != result.OutcomeConfigError || len(res.Logs) != 0 {
		t.Errorf("outcome %s, logs %d", res.Outcome, len(res.Logs))
	}
	if !strings.Contains(res.Status, "spec_to_code_hyper_guided.prompt") && !strings.Contains(res.Status, "code_to_spec_hyper_guided.prompt") {
		t.Errorf("status should name the missing prompt: %q", res.Status)
	}
}

func TestRunTrialSpecCheckNeedsGroundTruth(t *testing.T) {
	exp := experiment()
	exp.SpecCheck = "exact"
	opts := &runner.TrialOpts{
		Trial:      runner.Trial{Model: config.Model{Name: "m", Provider: "ollama"}, TestCase: "echo", Repetition: 1},
		Experiment: exp,
		Client:     echoClient{},
		Validator:  passValidator{},
		Repo:       newRepo(t),
		RunDir:     t.TempDir(),
	}
	res, err := runner.RunTrial(context.Background(), opts)
	if err != nil {
		t.Fatalf("RunTrial: %v", err)
	}
	if res.Outcome != result.OutcomeConfigError {
		t.Errorf("outcome: got %s", res.Outcome)
	}
}

func TestExpand(t *testing.T) {
	cfg := &config.Config{
		Models:     []config.Model{{Name: "a"}, {Name: "b"}},
		Experiment: config.Experiment{Repetitions: 3},
	}
	trials := runner.Expand(cfg, []string{"x", "y"})
	if len(trials) != 12 {
		t.Fatalf("expected 12 trials, got %d", len(trials))
	}
	if trials[0].Repetition != 1 || trials[2].Repetition != 3 {
		t.Errorf("repetitions should count from 1: %+v", trials[:3])
	}
}

func TestBuildClient(t *testing.T) {
	cfg := &config.Config{API: config.API{URL: "http://localhost:11434", TimeoutSeconds: 5}}
	if _, err := runner.BuildClient(cfg, config.Model{Name: "llama3", Provider: "ollama"}); err != nil {
		t.Errorf("ollama: %v", err)
	}

	t.Setenv("ROUNDTRIP_TEST_KEY", "")
	openai := config.Model{Name: "gpt-4o-mini", Provider: "openai", APIKeyEnv: "ROUNDTRIP_TEST_KEY"}
	if _, err := runner.BuildClient(cfg, openai); err == nil {
		t.Error("expected error when the api key is unset")
	}
	t.Setenv("ROUNDTRIP_TEST_KEY", "sk-test")
	if _, err := runner.BuildClient(cfg, openai); err != nil {
		t.Errorf("openai: %v", err)
	}

	if _, err := runner.BuildClient(cfg, config.Model{Name: "x", Provider: "bard"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestBuildHarness(t *testing.T) {
	h := runner.BuildHarness(config.Sandbox{Kind: "local", Interpreter: []string{"python3"}, TimeoutSeconds: 7})
	if _, ok := h.Sandbox.(*validation.LocalSandbox); !ok {
		t.Errorf("local: got %T", h.Sandbox)
	}
	if h.Timeout.Seconds() != 7 {
		t.Errorf("timeout: got %s", h.Timeout)
	}
	h = runner.BuildHarness(config.Sandbox{Kind: "docker", Image: "python:3.12-slim", MemoryMB: 256})
	ds, ok := h.Sandbox.(*validation.DockerSandbox)
	if !ok {
		t.Fatalf("docker: got %T", h.Sandbox)
	}
	if ds.MemoryLimit != 256*1024*1024 {
		t.Errorf("memory limit: got %d", ds.MemoryLimit)
	}
}

func TestOpenRepositoryLocal(t *testing.T) {
	repo, rev, err := runner.OpenRepository(context.Background(), config.Definitions{Dir: "defs", PromptsDir: "prompts", SourceLang: "python"}, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if rev != "" || repo.DefinitionsDir != "defs" || repo.PromptsDir != "prompts" {
		t.Errorf("got %+v rev %q", repo, rev)
	}
}
