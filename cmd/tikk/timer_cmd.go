package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	servercommon "github.com/hylla/tikk/internal/adapters/server/common"
)

func newTimerCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Start, stop, and inspect the running timer",
	}

	start := &cobra.Command{
		Use:   "start <task-id>",
		Short: "Start timing a task, stopping any other running timer",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			taskID, err := parseID("task", args[0])
			if err != nil {
				return err
			}
			entry, err := s.api.StartTimer(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			return s.out.emit(entry, func() string { return fmt.Sprintf("started task %d at %s", entry.TaskID, entry.StartTime) })
		}),
	}

	stop := &cobra.Command{
		Use:   "stop [task-id]",
		Short: "Stop a task's timer, or the running one when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			var taskID int64
			if len(args) == 1 {
				id, err := parseID("task", args[0])
				if err != nil {
					return err
				}
				taskID = id
			} else {
				status, err := s.api.CurrentTimer(cmd.Context())
				if err != nil {
					return err
				}
				if !status.Running || status.Entry == nil {
					return s.out.emit(servercommon.StopResult{}, func() string { return "no timer running" })
				}
				taskID = status.Entry.TaskID
			}
			result, err := s.api.StopTimer(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			return s.out.emit(result, func() string {
				if !result.Stopped || result.Entry == nil {
					return fmt.Sprintf("no timer running for task %d", taskID)
				}
				return fmt.Sprintf("stopped task %d after %s", taskID, result.Entry.Duration)
			})
		}),
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the running timer",
		Args:  cobra.NoArgs,
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, _ []string) error {
			current, err := s.api.CurrentTimer(cmd.Context())
			if err != nil {
				return err
			}
			return s.out.emit(current, func() string { return timerText(current) })
		}),
	}

	stopAll := &cobra.Command{
		Use:   "stop-all",
		Short: "Stop every running timer",
		Args:  cobra.NoArgs,
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, _ []string) error {
			n, err := s.api.StopAllTimers(cmd.Context())
			if err != nil {
				return err
			}
			return s.out.emit(map[string]int{"stopped": n}, func() string { return fmt.Sprintf("stopped %d timer(s)", n) })
		}),
	}

	cmd.AddCommand(start, stop, status, stopAll)
	return cmd
}

func newEntryCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entry",
		Aliases: []string{"entries", "e"},
		Short:   "Record and inspect time entries",
	}

	var startRaw, endRaw, note string
	add := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Record a closed time entry after the fact",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			taskID, err := parseID("task", args[0])
			if err != nil {
				return err
			}
			now := nowFunc()
			start, err := cliTime("start", startRaw, now)
			if err != nil {
				return err
			}
			end, err := cliTime("end", endRaw, now)
			if err != nil {
				return err
			}
			entry, err := s.api.AddManualEntry(cmd.Context(), servercommon.AddManualEntryRequest{
				TaskID: taskID,
				Start:  start,
				End:    end,
				Note:   note,
			})
			if err != nil {
				return err
			}
			return s.out.emit(entry, func() string {
				return fmt.Sprintf("recorded %s on task %d (entry %d)", entry.Duration, entry.TaskID, entry.StartEventID)
			})
		}),
	}
	add.Flags().StringVar(&startRaw, "start", "", "entry start (RFC3339, YYYY-MM-DD or \"YYYY-MM-DD HH:MM\")")
	add.Flags().StringVar(&endRaw, "end", "", "entry end (RFC3339, YYYY-MM-DD or \"YYYY-MM-DD HH:MM\")")
	add.Flags().StringVar(&note, "note", "", "note attached to the entry")
	_ = add.MarkFlagRequired("start")
	_ = add.MarkFlagRequired("end")

	var (
		taskRaw string
		limit   int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent time entries, newest first",
		Args:  cobra.NoArgs,
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, _ []string) error {
			var (
				entries []servercommon.TimeEntry
				err     error
			)
			if strings.TrimSpace(taskRaw) != "" {
				taskID, parseErr := parseID("task", taskRaw)
				if parseErr != nil {
					return parseErr
				}
				entries, err = s.api.TaskEntries(cmd.Context(), servercommon.TaskEntriesRequest{TaskID: taskID, Limit: limit})
			} else {
				entries, err = s.api.RecentEntries(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			return s.out.emit(entries, func() string { return entryTable(entries...) })
		}),
	}
	list.Flags().StringVar(&taskRaw, "task", "", "only entries of this task id")
	list.Flags().IntVarP(&limit, "limit", "n", 0, "maximum entries (default from config)")

	audit := &cobra.Command{
		Use:   "audit <entry-id>",
		Short: "Show the raw events behind one entry",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			entryID, err := parseID("entry", args[0])
			if err != nil {
				return err
			}
			events, err := s.api.EntryAudit(cmd.Context(), entryID)
			if err != nil {
				return err
			}
			return s.out.emit(events, func() string { return eventTable(events) })
		}),
	}

	cmd.AddCommand(add, list, audit)
	return cmd
}

// parseCLITime accepts RFC3339, "YYYY-MM-DD HH:MM", "YYYY-MM-DD" (both local), or "now".
func parseCLITime(field, raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "now") {
		return now, nil
	}
	if ts, err := time.Parse(servercommon.TimeLayout, raw); err == nil {
		return ts, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"} {
		if ts, err := time.ParseInLocation(layout, raw, now.Location()); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s %q is not a recognised time", servercommon.ErrInvalidRequest, field, raw)
}

// cliTime normalizes raw into the transport layout. Empty stays empty.
func cliTime(field, raw string, now time.Time) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	ts, err := parseCLITime(field, raw, now)
	if err != nil {
		return "", err
	}
	return ts.UTC().Format(servercommon.TimeLayout), nil
}
