package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lapse/internal/api"
	"lapse/internal/daemonctl"
	"lapse/internal/daemonrun"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the lapse daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				cmd.Context(),
				ctx.configValue(),
				exe,
				daemonctl.LaunchOptions{ConfigPath: ctx.configPath(), LogLevel: startLogLevel},
				10*time.Second,
			)
			if err != nil {
				return err
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override logging.level for the daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the lapse daemon; a running job ends failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.configValue(), 15*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, online, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.configValue())
			if err != nil {
				return err
			}
			if ok, err := writeStructured(cmd, ctx, status); ok {
				return err
			}
			renderStatus(cmd, status, online)
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the lapse daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
				Version:     version,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	return cmd
}

func renderStatus(cmd *cobra.Command, status api.DaemonStatus, online bool) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if online {
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d, version %s)", status.PID, status.Version), colorize))
		workflow := "idle"
		if !status.Workflow.Running {
			workflow = "stopped"
		}
		if job := status.Workflow.ActiveJob; job != nil {
			workflow = fmt.Sprintf("processing %s job %s (%s images)", job.Kind, job.ID, formatCount(job.ImageCount))
		}
		fmt.Fprintln(stdout, renderStatusLine("Workflow", statusInfo, workflow, colorize))
		if status.Workflow.LastError != "" {
			fmt.Fprintln(stdout, renderStatusLine("Last error", statusWarn, status.Workflow.LastError, colorize))
		}
		for _, engine := range status.Workflow.EngineHealth {
			fmt.Fprintln(stdout, renderStatusLine("Engine "+engine.Name, checkKind(engine.Ready, false), engine.Detail, colorize))
		}
	} else {
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	fmt.Fprintln(stdout, renderStatusLine("Queue database", statusInfo, status.QueueDBPath, colorize))
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Environment", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, check := range status.Checks {
		fmt.Fprintln(stdout, renderStatusLine(check.Name, checkKind(check.Passed, false), check.Detail, colorize))
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range dependencyLines(status.Dependencies, colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Queue", colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprint(stdout, renderTable(tableSpec{
		headers: []string{"Kind", "Queued", "Starting", "Ready", "Failed"},
		rows:    queueStatusRows(status.Workflow.QueueStats),
		aligns:  []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
	}))
	fmt.Fprintln(stdout)
}

func queueStatusRows(stats map[string]map[string]int) [][]string {
	kinds := make([]string, 0, len(stats))
	for kind := range stats {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	rows := make([][]string, 0, len(kinds))
	for _, kind := range kinds {
		counts := stats[kind]
		rows = append(rows, []string{
			kind,
			formatCount(counts["queued"]),
			formatCount(counts["starting"]),
			formatCount(counts["ready"]),
			formatCount(counts["failed"]),
		})
	}
	return rows
}

func dependencyLines(deps []api.DependencyStatus, colorize bool) []string {
	lines := make([]string, 0, len(deps)+1)
	var missing []string
	for _, dep := range deps {
		if dep.Available {
			lines = append(lines, renderStatusLine(dep.Name, statusOK, dep.Command, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		if dep.Optional {
			detail += " (optional)"
		}
		lines = append(lines, renderStatusLine(dep.Name, checkKind(false, dep.Optional), detail, colorize))
		if !dep.Optional {
			missing = append(missing, dep.Name)
		}
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusError, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}
