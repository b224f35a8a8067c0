package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/signalnine/roundtrip/internal/config"
	"github.com/signalnine/roundtrip/internal/runner"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available test cases and models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Println("Models:")
			for _, m := range cfg.Models {
				url := m.APIURL
				if url == "" {
					url = cfg.API.URL
				}
				fmt.Printf("  - %s (%s, %s)\n", m.Name, m.Provider, url)
			}
			repo, rev, err := runner.OpenRepository(context.Background(), cfg.Definitions, filepath.Join(cfg.Results.Dir, ".definitions"))
			if err != nil {
				return err
			}
			ids, err := repo.List()
			if err != nil {
				return err
			}
			if rev != "" {
				fmt.Printf("\nTest cases (%s@%s, %s):\n", cfg.Definitions.Repo, cfg.Definitions.Tag, rev)
			} else {
				fmt.Printf("\nTest cases (%s):\n", repo.DefinitionsDir)
			}
			for _, id := range ids {
				tc, err := repo.Load(id)
				if err != nil {
					fmt.Printf("  - %s [error: %v]\n", id, err)
					continue
				}
				protocol := "oracle"
				if !tc.HasOracle {
					protocol = "legacy"
				}
				fmt.Printf("  - %s [%s]\n", id, protocol)
			}
			return nil
		},
	}
}
