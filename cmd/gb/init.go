package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkramers/gb/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the configuration file interactively",
	Long: `init asks for the repositories to browse and the cleanup settings, then writes
them to the configuration file. An existing file is replaced.`,
	Args: cobra.NoArgs,
	// Overrides the root hook: init must work without a configuration.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		customPath, _ := cmd.Flags().GetString("config")
		cfg, err := runSetup(cmd.Context(), customPath)
		if err != nil {
			return err
		}
		fmt.Printf("%d repositories configured.\n", len(cfg.Repos))
		if _, err := config.LoadConfig(customPath); err != nil {
			return fmt.Errorf("saved configuration does not load: %w", err)
		}
		return nil
	},
}
