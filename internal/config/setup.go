package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// FirstRunSetup prompts the user for initial configuration values when no config file is found.
// It takes an input reader and output writer for flexibility (e.g., testing).
//
// suggestedRepo, when not empty, is offered as the default repository list. Empty or invalid
// answers keep the defaults. The returned Config should be persisted by the caller.
func FirstRunSetup(reader *bufio.Reader, writer io.Writer, suggestedRepo string) (Config, error) {
	_, _ = fmt.Fprintln(writer, "Configuration file not found. Let's set up some defaults.")
	cfg := DefaultConfig()

	_, _ = fmt.Fprintf(writer, "Repositories to browse (comma-separated paths) [%s]: ", suggestedRepo)
	input, _ := reader.ReadString('\n')
	repos := splitList(input)
	if len(repos) == 0 && suggestedRepo != "" {
		repos = []string{suggestedRepo}
	}
	normalized, err := normalizeRepos(repos)
	if err != nil {
		return cfg, err
	}
	if len(normalized) == 0 {
		return cfg, fmt.Errorf("no repositories given")
	}
	cfg.Repos = normalized

	_, _ = fmt.Fprintf(writer, "Show branches with commits in the last N days [%d]: ", defaultRecentDays)
	input, _ = reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input != "" {
		days, err := strconv.Atoi(input)
		if err != nil || days < 0 {
			_, _ = fmt.Fprintf(writer, "Invalid input. Using default: %d days.\n", defaultRecentDays)
		} else {
			cfg.RecentDays = days
		}
	}

	_, _ = fmt.Fprint(writer, "Paths to ignore when checking worktrees for changes ")
	_, _ = fmt.Fprintln(writer, "(comma-separated, e.g., node_modules,.venv): ")
	input, _ = reader.ReadString('\n')
	if ignore := splitList(input); len(ignore) > 0 {
		cfg.WorktreeIgnore = ignore
	}

	_, _ = fmt.Fprint(writer, "Enter any branches to protect from deletion ")
	_, _ = fmt.Fprintln(writer, "(comma-separated, e.g., develop,release): ")
	input, _ = reader.ReadString('\n')
	if protected := splitList(input); len(protected) > 0 {
		cfg.ProtectedBranches = protected
	}

	_, _ = fmt.Fprintln(writer, "\nConfiguration setup complete.")
	return cfg, nil
}

func splitList(input string) []string {
	var out []string
	for _, item := range strings.Split(strings.TrimSpace(input), ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
