package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/signalnine/roundtrip/internal/config"
	"github.com/signalnine/roundtrip/internal/extract"
	"github.com/signalnine/roundtrip/internal/gateway"
	"github.com/signalnine/roundtrip/internal/pricing"
	"github.com/signalnine/roundtrip/internal/report"
	"github.com/signalnine/roundtrip/internal/result"
	"github.com/signalnine/roundtrip/internal/runner"
	"github.com/spf13/cobra"
)

var (
	flagModel             string
	flagTestCase          string
	flagRepetitions       int
	flagMaxCycles         int
	flagMode              string
	flagParallel          int
	flagVerbose           bool
	flagCleanupAggressive bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute an experiment",
		RunE:  runExperiment,
	}
	cmd.Flags().StringVar(&flagModel, "model", "", "filter to a single model")
	cmd.Flags().StringVar(&flagTestCase, "test-case", "", "filter to a single test case")
	cmd.Flags().IntVar(&flagRepetitions, "repetitions", 0, "override repetition count")
	cmd.Flags().IntVar(&flagMaxCycles, "max-cycles", 0, "override cycles per run")
	cmd.Flags().StringVar(&flagMode, "mode", "", "override extraction mode (strict, forgiving)")
	cmd.Flags().IntVar(&flagParallel, "parallel", 1, "max concurrent runs")
	cmd.Flags().BoolVar(&flagVerbose, "verbose", false, "log every cycle")
	cmd.Flags().BoolVar(&flagCleanupAggressive, "cleanup-aggressive", false, "remove leftover roundtrip sandbox containers after the run")
	return cmd
}

func applyOverrides(cfg *config.Config) error {
	if flagRepetitions > 0 {
		cfg.Experiment.Repetitions = flagRepetitions
	}
	if flagMaxCycles > 0 {
		cfg.Experiment.MaxCycles = flagMaxCycles
	}
	if flagMode != "" {
		cfg.Experiment.Mode = flagMode
	}
	return config.Validate(cfg)
}

func runExperiment(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := applyOverrides(cfg); err != nil {
		return err
	}
	if cfg.Secrets.EnvFile != "" {
		if err := gateway.LoadSecrets(cfg.Secrets.EnvFile); err != nil {
			log.Printf("warning: could not load secrets: %v", err)
		}
	}

	ctx := context.Background()

	repo, rev, err := runner.OpenRepository(ctx, cfg.Definitions, filepath.Join(cfg.Results.Dir, ".definitions"))
	if err != nil {
		return err
	}
	testCases := cfg.Experiment.TestCases
	if len(testCases) == 0 {
		if testCases, err = repo.List(); err != nil {
			return err
		}
	}
	testCases = filterTestCases(testCases, flagTestCase)
	models := filterModels(cfg.Models, flagModel)
	if len(models) == 0 || len(testCases) == 0 {
		return fmt.Errorf("nothing to run: %d models, %d test cases", len(models), len(testCases))
	}
	cfg.Models = models

	clients := make(map[string]gateway.Client, len(models))
	for _, m := range models {
		c, err := runner.BuildClient(cfg, m)
		if err != nil {
			return err
		}
		clients[m.Name] = c
	}

	var table *pricing.Table
	if cfg.Pricing != "" {
		if table, err = pricing.Load(cfg.Pricing); err != nil {
			log.Printf("warning: %v", err)
		}
	}

	var checker extract.Checker
	if cfg.Definitions.SourceLang == "python" {
		checker = extract.PythonChecker{}
	}
	harness := runner.BuildHarness(cfg.Sandbox)

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", runDir)

	trials := runner.Expand(cfg, testCases)
	reps := cfg.Experiment.Repetitions
	var jobs []runner.Job
	for _, tr := range trials {
		tr := tr
		jobs = append(jobs, func() error {
			fmt.Printf("Running %s × %s (repetition %d/%d)...\n", tr.Model.Name, tr.TestCase, tr.Repetition, reps)
			res, err := runner.RunTrial(ctx, &runner.TrialOpts{
				Trial:          tr,
				Experiment:     cfg.Experiment,
				Client:         clients[tr.Model.Name],
				Validator:      harness,
				Repo:           repo,
				Checker:        checker,
				Pricing:        table,
				RunDir:         runDir,
				DefinitionsRev: rev,
				Verbose:        flagVerbose,
			})
			if err != nil {
				return fmt.Errorf("%s × %s #%d: %w", tr.Model.Name, tr.TestCase, tr.Repetition, err)
			}
			fmt.Printf("  %s × %s #%d: %s (cycles: %d/%d, %.1fs)\n",
				tr.Model.Name, tr.TestCase, tr.Repetition, res.Status, res.CyclesCompleted, res.MaxCycles, res.DurationS)
			return nil
		})
	}
	for _, err := range runner.RunPool(flagParallel, jobs) {
		fmt.Printf("  ERROR: %v\n", err)
	}

	if flagCleanupAggressive && cfg.Sandbox.Kind == "docker" {
		cleanupDocker()
	}

	fmt.Println("\n--- Results ---")
	return report.Generate(runDir, "table", os.Stdout, report.Options{})
}

func cleanupDocker() {
	// Best-effort removal of sandbox containers left behind by killed runs.
	fmt.Println("Cleaning up Docker artifacts...")
	cmd := newExecCmd("docker", "container", "prune", "-f", "--filter", "label=roundtrip=true")
	cmd.Run()
}

func filterModels(models []config.Model, name string) []config.Model {
	if name == "" {
		return models
	}
	var filtered []config.Model
	for _, m := range models {
		if m.Name == name {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

func filterTestCases(ids []string, name string) []string {
	if name == "" {
		return ids
	}
	for _, id := range ids {
		if id == name {
			return []string{id}
		}
	}
	return nil
}

func newExecCmd(args ...string) *exec.Cmd {
	return exec.Command(args[0], args[1:]...)
}
