package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voice-pipeline-go/internal/app"
	"voice-pipeline-go/internal/config"
	"voice-pipeline-go/internal/daemon"
	"voice-pipeline-go/internal/store"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var intervalSeconds int
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Run the pipeline daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			interval := cfg.Interval()
			if cmd.Flags().Changed("interval") {
				if intervalSeconds < config.MinIntervalSeconds || intervalSeconds > config.MaxIntervalSeconds {
					return fmt.Errorf("interval must be between %d and %d seconds", config.MinIntervalSeconds, config.MaxIntervalSeconds)
				}
				interval = config.Seconds(intervalSeconds)
			}

			return ctx.withApp(app.Options{LogOutput: cmd.ErrOrStderr(), RunLogEcho: stdout}, func(a *app.App) error {
				err := a.Scheduler.Start(cmd.Context(), interval)
				switch {
				case errors.Is(err, daemon.ErrAlreadyRunning):
					fmt.Fprintln(stdout, "Daemon is already running")
					return nil
				case errors.Is(err, daemon.ErrIntervalTooShort), errors.Is(err, daemon.ErrIntervalTooLong):
					return fmt.Errorf("interval must be between %d and %d seconds", config.MinIntervalSeconds, config.MaxIntervalSeconds)
				}
				return err
			})
		},
	}
	startCmd.Flags().IntVarP(&intervalSeconds, "interval", "i", 0, "Seconds between cycles (defaults to configured interval)")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running pipeline daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			ctl, err := ctx.control(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			pid, err := ctl.Controller.Stop(cmd.Context())
			if errors.Is(err, daemon.ErrNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Daemon stopped (pid %d)\n", pid)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and record status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			ctl, err := ctx.control(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			st := ctl.Controller.Status()

			pid := "-"
			if st.Running {
				pid = strconv.Itoa(st.PID)
			}
			pairs := [][2]string{
				{"Daemon", st.Message()},
				{"PID", pid},
				{"Marker", ctl.Marker.Path()},
				{"Run log", ctl.Runs.Path()},
			}

			err = ctx.withStore(func(s *store.Store) error {
				stats, err := s.Stats(cmd.Context())
				if err != nil {
					return err
				}
				pairs = append(pairs,
					[2]string{"Database", s.Path()},
					[2]string{"Records", strconv.Itoa(stats.Total)},
					[2]string{"Completed", strconv.Itoa(stats.Completed)},
					[2]string{"Pending", strconv.Itoa(stats.Pending)},
					[2]string{"With transcript", strconv.Itoa(stats.WithTranscript)},
				)
				return nil
			})
			if err != nil {
				pairs = append(pairs, [2]string{"Database", "unavailable: " + err.Error()})
			}

			fmt.Fprint(stdout, keyValueTable(pairs))
			fmt.Fprintln(stdout)
			return nil
		},
	}

	var tailLines int
	var follow bool
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the pipeline run log",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			ctl, err := ctx.control(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			lines, err := ctl.Runs.Tail(tailLines)
			if err != nil {
				return err
			}
			if len(lines) == 0 && !follow {
				fmt.Fprintln(stdout, "No logs available yet")
				return nil
			}
			for _, line := range lines {
				fmt.Fprintln(stdout, line)
			}
			if !follow {
				return nil
			}
			return followRunLog(cmd.Context(), ctl, func(line string) {
				fmt.Fprintln(stdout, line)
			})
		},
	}
	logsCmd.Flags().IntVarP(&tailLines, "lines", "n", 50, "Number of trailing lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")

	logsClearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the pipeline run log",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			ctl, err := ctx.control(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cleared, err := ctl.Runs.Clear()
			if err != nil {
				return err
			}
			if !cleared {
				fmt.Fprintln(stdout, "No log file to clear")
				return nil
			}
			fmt.Fprintln(stdout, "Logs cleared successfully")
			return nil
		},
	}
	logsCmd.AddCommand(logsClearCmd)

	return []*cobra.Command{startCmd, stopCmd, statusCmd, logsCmd}
}

// followRunLog polls the run log and emits lines appended after the call. A
// cleared log restarts from its beginning.
func followRunLog(ctx context.Context, ctl *app.Control, emit func(string)) error {
	current, err := ctl.Runs.Tail(0)
	if err != nil {
		return err
	}
	seen := len(current)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		lines, err := ctl.Runs.Tail(0)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if len(lines) < seen {
			seen = 0
		}
		for _, line := range lines[seen:] {
			if strings.TrimSpace(line) != "" {
				emit(line)
			}
		}
		seen = len(lines)
	}
}
