package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalnine/roundtrip/internal/config"
	"github.com/signalnine/roundtrip/internal/report"
	"github.com/spf13/cobra"
)

var (
	flagFormat  string
	flagPricing string
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Generate summary from stored results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			runDir := filepath.Join(cfg.Results.Dir, "latest")
			if len(args) > 0 {
				runDir = args[0]
			}
			resolved, err := filepath.EvalSymlinks(runDir)
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}
			pricingPath := flagPricing
			if pricingPath == "" {
				pricingPath = cfg.Pricing
			}
			return report.Generate(resolved, flagFormat, os.Stdout, report.Options{PricingPath: pricingPath})
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json, csv)")
	cmd.Flags().StringVar(&flagPricing, "pricing", "", "pricing table used to recompute costs")
	return cmd
}
