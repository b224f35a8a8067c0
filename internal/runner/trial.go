package runner

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/roundtrip/internal/config"
	"github.com/signalnine/roundtrip/internal/cycle"
	"github.com/signalnine/roundtrip/internal/extract"
	"github.com/signalnine/roundtrip/internal/gateway"
	"github.com/signalnine/roundtrip/internal/gitops"
	"github.com/signalnine/roundtrip/internal/pricing"
	"github.com/signalnine/roundtrip/internal/result"
	"github.com/signalnine/roundtrip/internal/testcase"
	"github.com/signalnine/roundtrip/internal/validation"
)

// Trial identifies one run of the experiment grid.
type Trial struct {
	Model      config.Model
	TestCase   string
	Repetition int
}

// Expand lists every model x test case x repetition of the experiment.
func Expand(cfg *config.Config, testCases []string) []Trial {
	var trials []Trial
	for _, m := range cfg.Models {
		for _, tc := range testCases {
			for rep := 1; rep <= cfg.Experiment.Repetitions; rep++ {
				trials = append(trials, Trial{Model: m, TestCase: tc, Repetition: rep})
			}
		}
	}
	return trials
}

type TrialOpts struct {
	Trial      Trial
	Experiment config.Experiment
	Client     gateway.Client
	Validator  cycle.Validator
	Repo       *testcase.Repository
	Checker    extract.Checker
	Pricing    *pricing.Table
	RunDir     string
	// DefinitionsRev is recorded in the result for provenance.
	DefinitionsRev string
	Verbose        bool
}

// RunTrial loads the test case, runs the round trip and writes result.json.
// Problems with the test case itself are recorded as a config_error result
// rather than returned, so every trial leaves a record behind.
func RunTrial(ctx context.Context, opts *TrialOpts) (*result.RunResult, error) {
	exp := opts.Experiment
	tr := opts.Trial
	mode, err := extract.ParseMode(exp.Mode)
	if err != nil {
		return nil, err
	}
	trialDir := result.RunDir(opts.RunDir, tr.Model.Name, tr.TestCase,
		result.Variant(exp.Lang, exp.SpecLang, exp.PromptStyle, string(mode)), tr.Repetition)

	logger := log.New(io.Discard, "", 0)
	if opts.Verbose {
		logger = log.New(os.Stderr, fmt.Sprintf("[%s %s #%d] ", tr.Model.Name, tr.TestCase, tr.Repetition), log.LstdFlags)
	}

	ctrl := &cycle.Controller{
		Model:     opts.Client,
		Validator: opts.Validator,
		Extractor: extract.New(mode, opts.Checker),
		MaxCycles: exp.MaxCycles,
		SpecCheck: cycle.SpecCheck(exp.SpecCheck),
		Logger:    logger,
	}

	var res *result.RunResult
	tc, prompts, groundTruth, err := loadTestCase(opts.Repo, tr.TestCase, exp)
	if err != nil {
		res = &result.RunResult{
			Status:    "FAIL: Configuration error: " + err.Error(),
			Outcome:   result.OutcomeConfigError,
			Logs:      []result.CycleRecord{},
			TestCase:  tr.TestCase,
			MaxCycles: exp.MaxCycles,
			Mode:      string(mode),
			StartedAt: time.Now().UTC(),
		}
	} else {
		ctrl.GroundTruth = groundTruth
		res = ctrl.Run(ctx, tc, prompts)
	}

	res.RunID = uuid.NewString()
	res.Model = tr.Model.Name
	res.Provider = tr.Model.Provider
	res.Lang = exp.Lang
	res.SpecLang = exp.SpecLang
	res.PromptStyle = exp.PromptStyle
	res.Repetition = tr.Repetition
	res.DefinitionsRev = opts.DefinitionsRev
	res.TotalCostUSD = opts.Pricing.RunCost(res)

	if err := result.WriteRunResult(trialDir, res); err != nil {
		return nil, fmt.Errorf("writing result: %w", err)
	}
	return res, nil
}

func loadTestCase(repo *testcase.Repository, id string, exp config.Experiment) (*testcase.TestCase, *testcase.Prompts, string, error) {
	tc, err := repo.Load(id)
	if err != nil {
		return nil, nil, "", err
	}
	prompts, err := repo.Prompts(id, exp.Lang, exp.SpecLang, exp.PromptStyle)
	if err != nil {
		return nil, nil, "", err
	}
	var groundTruth string
	if cycle.SpecCheck(exp.SpecCheck) == cycle.SpecCheckExact {
		groundTruth, err = repo.GroundTruth(id, exp.Lang, exp.SpecLang)
		if err != nil {
			return nil, nil, "", err
		}
	}
	return tc, prompts, groundTruth, nil
}

// BuildClient returns the model client for m, rate limited per
// cfg.API.RequestsPerSecond. Build one client per model and share it
// between trials so the limit holds across parallel runs.
func BuildClient(cfg *config.Config, m config.Model) (gateway.Client, error) {
	url := m.APIURL
	if url == "" {
		url = cfg.API.URL
	}
	timeout := time.Duration(cfg.API.TimeoutSeconds) * time.Second
	var c gateway.Client
	switch m.Provider {
	case "ollama":
		c = gateway.NewOllamaClient(url, m.Name, timeout)
	case "openai":
		key := os.Getenv(m.APIKeyEnv)
		if key == "" && m.APIURL == "" {
			return nil, fmt.Errorf("model %s: %s is not set", m.Name, m.APIKeyEnv)
		}
		c = gateway.NewOpenAIClient(m.APIURL, key, m.Name)
	default:
		return nil, fmt.Errorf("model %s: unknown provider %q", m.Name, m.Provider)
	}
	return gateway.Limit(c, cfg.API.RequestsPerSecond), nil
}

// BuildHarness returns the validation harness for the configured sandbox.
func BuildHarness(s config.Sandbox) *validation.Harness {
	h := &validation.Harness{
		Timeout: time.Duration(s.TimeoutSeconds) * time.Second,
		TempDir: s.TempDir,
	}
	switch s.Kind {
	case "docker":
		h.Sandbox = &validation.DockerSandbox{
			Image:       s.Image,
			Interpreter: s.Interpreter,
			CPULimit:    s.CPULimit,
			MemoryLimit: s.MemoryMB * 1024 * 1024,
			UserID:      fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
		}
	default:
		h.Sandbox = &validation.LocalSandbox{Interpreter: s.Interpreter}
	}
	return h
}

// OpenRepository resolves the test-case repository, fetching the
// definitions from git when a repo is configured. The returned revision
// is empty for local definitions.
func OpenRepository(ctx context.Context, d config.Definitions, cacheDir string) (*testcase.Repository, string, error) {
	root := ""
	rev := ""
	if d.Repo != "" {
		checkout, err := gitops.FetchDefinitions(ctx, d.Repo, d.Tag, cacheDir)
		if err != nil {
			return nil, "", fmt.Errorf("fetching definitions: %w", err)
		}
		root = checkout
		if rev, err = gitops.HeadCommit(checkout); err != nil {
			log.Printf("warning: reading definitions revision: %v", err)
		}
	}
	return &testcase.Repository{
		DefinitionsDir: filepath.Join(root, d.Dir),
		PromptsDir:     filepath.Join(root, d.PromptsDir),
		SourceLang:     d.SourceLang,
	}, rev, nil
}
