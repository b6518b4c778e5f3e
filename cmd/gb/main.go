package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mkramers/gb/internal/app"
	"github.com/mkramers/gb/internal/config"
	"github.com/mkramers/gb/internal/gitcmd"
	"github.com/mkramers/gb/internal/handoff"
	"github.com/mkramers/gb/internal/logging"
	"github.com/mkramers/gb/internal/pins"
	"github.com/mkramers/gb/internal/tui"
)

// Configuration loaded by PersistentPreRunE for the command being run.
var (
	appConfig  config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:     "gb",
	Version: "0.1.0",
	Short:   "gb browses the git branches of several repositories",
	Long: `gb lists recent branches and worktrees across your repositories, shows their
state relative to upstream, and marks the ones that are safe to delete because
they were merged, squash-merged, or their upstream is gone.

Selecting a branch writes its directory to /tmp/gb-<uid>-result so that a shell
wrapper can change into it.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfiguration,
	RunE:              runBrowser,
}

// loadConfiguration loads the config file, running first-time setup when there is none,
// and applies command-line overrides.
func loadConfiguration(cmd *cobra.Command, _ []string) error {
	if err := gitcmd.CheckGit(); err != nil {
		return err
	}

	customPath, _ := cmd.Flags().GetString("config")
	path, err := resolveConfigPath(customPath)
	if err != nil {
		return err
	}
	configPath = path

	appConfig, err = config.LoadConfig(customPath)
	if err != nil {
		if !errors.Is(err, config.ErrConfigNotFound) {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		fmt.Println("Configuration file not found. Starting first-time setup...")
		if appConfig, err = runSetup(cmd.Context(), customPath); err != nil {
			return err
		}
		fmt.Println("Setup complete. Continuing execution...")
	}

	if cmd.Flags().Changed("recent-days") {
		days, _ := cmd.Flags().GetInt("recent-days")
		if days < 0 {
			return fmt.Errorf("--recent-days must not be negative, got %d", days)
		}
		appConfig.RecentDays = days
	}
	return nil
}

func resolveConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return config.ExpandPath(customPath)
	}
	return config.DefaultPath()
}

// runSetup asks for the initial configuration on stdin and saves it.
func runSetup(ctx context.Context, customPath string) (config.Config, error) {
	suggested := ""
	if wd, err := os.Getwd(); err == nil {
		client := gitcmd.NewClient(config.DefaultConfig().CommandTimeout, nil)
		if repo, err := client.MainWorktree(ctx, wd); err == nil {
			suggested = repo
		}
	}

	cfg, err := config.FirstRunSetup(bufio.NewReader(os.Stdin), os.Stdout, suggested)
	if err != nil {
		return cfg, fmt.Errorf("failed during first-time setup: %w", err)
	}
	savedPath, err := config.SaveConfig(cfg, customPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to save configuration to %q: %v\n", savedPath, err)
	} else {
		fmt.Printf("Configuration saved to %q\n", savedPath)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	file, _ := cmd.Flags().GetString("log-file")
	return logging.New(logging.Options{File: file, Debug: debug})
}

// newApp builds the engine shared by the browser and the list command.
func newApp(cmd *cobra.Command, logger *zap.Logger) (*app.App, error) {
	store, err := pins.Load(pins.DefaultPath(configPath))
	if err != nil {
		return nil, err
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("could not determine working directory: %w", err)
	}
	git := gitcmd.NewClient(appConfig.CommandTimeout, logger.Named("git"))
	current := app.FindCurrent(cmd.Context(), git, appConfig.Repos, workingDir)
	showAll, _ := cmd.Flags().GetBool("all")

	logger.Debug("configuration",
		zap.Strings("repos", appConfig.Repos), zap.Int("recent_days", appConfig.RecentDays),
		zap.String("working_dir", workingDir), zap.String("current", current))

	return app.New(app.Options{
		Config:     appConfig,
		Pins:       store,
		Logger:     logger,
		Git:        git,
		WorkingDir: workingDir,
		Current:    current,
		ShowAll:    showAll,
	}), nil
}

func runBrowser(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	resultPath := handoff.Path()
	if err := handoff.Clear(resultPath); err != nil {
		logger.Warn("stale result file", zap.Error(err))
	}

	a, err := newApp(cmd, logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a.Start()
	p := tea.NewProgram(tui.InitialModel(ctx, a), tea.WithAltScreen(), tea.WithContext(ctx))
	final, runErr := p.Run()
	cancel()
	a.Close()
	if runErr != nil {
		return fmt.Errorf("error running TUI: %w", runErr)
	}

	model, ok := final.(tui.Model)
	if !ok {
		return nil
	}
	sel, ok := model.Selected()
	if !ok {
		return nil
	}
	if err := handoff.Write(resultPath, sel.Dir); err != nil {
		return err
	}
	logger.Info("selected", zap.String("dir", sel.Dir), zap.String("branch", sel.Branch))
	if sel.Checkout {
		fmt.Fprintf(os.Stderr, "git checkout %s\n", sel.Branch)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging, including every git invocation.")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to custom configuration file (default: ~/.config/gb/config.yaml).")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to this file (default: ~/.cache/gb/gb.log).")
	rootCmd.PersistentFlags().Int("recent-days", 0, "Override config: show branches with commits in the last N days (0 shows all).")
	rootCmd.Flags().BoolP("all", "a", false, "Start with every repository visible instead of only the current one.")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(listCmd)
}
