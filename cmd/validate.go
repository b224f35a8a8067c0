package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/signalnine/roundtrip/internal/config"
	"github.com/signalnine/roundtrip/internal/extract"
	"github.com/signalnine/roundtrip/internal/runner"
	"github.com/spf13/cobra"
)

var flagExtract bool

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <test-case> <code-file>",
		Short: "Run a code file against a test case oracle",
		Long:  "Run one candidate through the validation harness, the same way a cycle's ValidateStep does. Use --extract to clean raw model output first.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			ctx := context.Background()
			repo, _, err := runner.OpenRepository(ctx, cfg.Definitions, filepath.Join(cfg.Results.Dir, ".definitions"))
			if err != nil {
				return err
			}
			tc, err := repo.Load(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading code file: %w", err)
			}
			code := string(data)
			if flagExtract {
				mode, err := extract.ParseMode(cfg.Experiment.Mode)
				if err != nil {
					return err
				}
				code = extract.New(mode, extract.PythonChecker{}).Extract(code)
			}

			harness := runner.BuildHarness(cfg.Sandbox)
			verdict, err := harness.Validate(ctx, code, tc)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s (exit %d, %s)\n", tc.ID, verdict.Kind, verdict.ExitCode, verdict.Duration.Round(time.Millisecond))
			if verdict.Stdout != "" {
				fmt.Printf("  stdout: %s\n", verdict.Stdout)
			}
			if !verdict.Passed() {
				return fmt.Errorf("validation failed: %s", verdict.Diagnostic())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagExtract, "extract", false, "clean the file with the extractor before validating")
	return cmd
}
