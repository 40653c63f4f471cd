package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"voice-pipeline-go/internal/app"
	"voice-pipeline-go/internal/daemon"
	"voice-pipeline-go/internal/dataset"
	"voice-pipeline-go/internal/pipeline"
	"voice-pipeline-go/internal/store"
	"voice-pipeline-go/internal/types"
)

func newDataCommands(ctx *commandContext) []*cobra.Command {
	runOnceCmd := &cobra.Command{
		Use:   "run-once",
		Short: "Run a single pipeline cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withApp(app.Options{LogOutput: cmd.ErrOrStderr()}, func(a *app.App) error {
				if err := a.Marker.Acquire(); err != nil {
					if errors.Is(err, daemon.ErrAlreadyRunning) {
						return fmt.Errorf("a daemon is running; stop it before a manual cycle: %w", err)
					}
					return err
				}
				defer a.Marker.Release()

				sum, err := a.Pipeline.RunCycle(cmd.Context())
				if err != nil {
					return err
				}
				if len(sum.Results) > 0 {
					fmt.Fprintln(stdout, renderTable(
						[]string{"SID", "State", "Tier", "Duration", "Error"},
						resultRows(sum.Results),
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
					))
				}
				fmt.Fprintln(stdout, "Pipeline completed: "+sum.Message())
				return nil
			})
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Import new calls from the provider's bulk listing",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withApp(app.Options{LogOutput: cmd.ErrOrStderr()}, func(a *app.App) error {
				rep, err := a.Ingest.Sync(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprint(stdout, keyValueTable([][2]string{
					{"Pages", strconv.Itoa(rep.Pages)},
					{"Fetched", strconv.Itoa(rep.Fetched)},
					{"Inserted", strconv.Itoa(rep.Inserted)},
					{"Stopped", string(rep.Reason)},
				}))
				fmt.Fprintln(stdout)
				if rep.PageErr != nil {
					fmt.Fprintf(stdout, "Listing stopped early: %v\n", rep.PageErr)
				}
				return nil
			})
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Import call records from a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			calls, err := dataset.LoadCalls(args[0])
			if err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}
			return ctx.withStore(func(s *store.Store) error {
				inserted, err := s.InsertMany(cmd.Context(), calls)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d calls (%d already known)\n", inserted, len(calls), len(calls)-inserted)
				return nil
			})
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export <file.xlsx>",
		Short: "Export records and insights to a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(s *store.Store) error {
				records, err := s.List(cmd.Context(), 0)
				if err != nil {
					return err
				}
				if err := dataset.WriteReport(args[0], records); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s\n", len(records), args[0])
				return nil
			})
		},
	}

	var (
		limit   int
		pending bool
	)
	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "List stored call records",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withStore(func(s *store.Store) error {
				var (
					records []types.Record
					err     error
				)
				if pending {
					records, err = s.ListIncomplete(cmd.Context(), "")
					if limit > 0 && len(records) > limit {
						records = records[:limit]
					}
				} else {
					records, err = s.List(cmd.Context(), limit)
				}
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(stdout, "No records")
					return nil
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"SID", "Status", "Duration", "Transcript", "Priority", "Completed"},
					recordRows(records),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	recordsCmd.Flags().IntVarP(&limit, "limit", "l", 50, "Maximum records to show (0 for all)")
	recordsCmd.Flags().BoolVar(&pending, "pending", false, "Only show records not yet completed")

	return []*cobra.Command{runOnceCmd, syncCmd, importCmd, exportCmd, recordsCmd}
}

func resultRows(results []pipeline.RecordResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		rows = append(rows, []string{r.SID, string(r.State), r.Tier, r.Duration.Round(time.Millisecond).String(), errText})
	}
	return rows
}

func recordRows(records []types.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		priority := "-"
		if r.Completed {
			if a, err := types.DecodeStructured(r); err == nil {
				priority = string(a.Priority.Level)
			}
		}
		completed := "no"
		if r.Completed {
			completed = "yes"
		}
		transcript := string(r.TranscriptStatus)
		if transcript == "" {
			transcript = "-"
		}
		rows = append(rows, []string{r.SID, r.Status, strconv.Itoa(r.Duration), transcript, priority, completed})
	}
	return rows
}
