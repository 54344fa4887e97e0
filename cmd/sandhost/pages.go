package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/sandtree/internal/backend"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/config"
	"github.com/GriffinCanCode/sandtree/internal/worker"
)

// defaultPage is the plain sandbox node without a prelude.
const defaultPage = "worker"

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "List the pages a window can host",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		pages, err := buildPages(cfg)
		if err != nil {
			return err
		}
		for _, name := range pages.Names() {
			marker := " "
			if name == cfg.Engine.Sand {
				marker = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pagesCmd)
}

// buildPages registers the default node page and one prelude page per
// script found in the configured pages directory.
func buildPages(cfg *config.Config) (*backend.Pages, error) {
	pages := backend.NewPages()
	pages.Register(defaultPage, worker.Factory())

	if cfg.Engine.PagesDir == "" {
		return pages, nil
	}
	_, err := pages.ScanDir(cfg.Engine.PagesDir, func(name, prelude string) backend.PageFactory {
		return worker.Factory(worker.WithPrelude(name, prelude))
	})
	if err != nil {
		return nil, err
	}
	return pages, nil
}
