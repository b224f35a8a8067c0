package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "roundtrip",
		Short: "Measure how well language models preserve code behavior across code -> spec -> code cycles",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "roundtrip.yaml", "config file path")
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newValidateCmd())
	return root
}
