package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	servercommon "github.com/hylla/tikk/internal/adapters/server/common"
)

func newTaskCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks", "t"},
		Short:   "Create, list, and manage tasks",
	}

	var includeArchived bool
	list := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's tasks",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			projectID, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			tasks, err := s.api.ListTasks(cmd.Context(), servercommon.ListTasksRequest{ProjectID: projectID, IncludeArchived: includeArchived})
			if err != nil {
				return err
			}
			return s.out.emit(tasks, func() string { return taskTable(tasks...) })
		}),
	}
	list.Flags().BoolVarP(&includeArchived, "archived", "a", false, "include archived tasks")

	create := &cobra.Command{
		Use:   "create <project-id> <name>",
		Short: "Create a task in an active project",
		Args:  cobra.MinimumNArgs(2),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			projectID, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			task, err := s.api.CreateTask(cmd.Context(), servercommon.CreateTaskRequest{ProjectID: projectID, Name: strings.Join(args[1:], " ")})
			if err != nil {
				return err
			}
			return s.out.emit(task, func() string { return fmt.Sprintf("created task %d %q in project %d", task.ID, task.Name, task.ProjectID) })
		}),
	}

	var at string
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task, optionally as it was at an instant",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			taskID, err := parseID("task", args[0])
			if err != nil {
				return err
			}
			asOf, err := cliTime("at", at, nowFunc())
			if err != nil {
				return err
			}
			task, err := s.api.GetTask(cmd.Context(), servercommon.GetTaskRequest{ID: taskID, At: asOf})
			if err != nil {
				return err
			}
			return s.out.emit(task, func() string { return taskTable(task) })
		}),
	}
	show.Flags().StringVar(&at, "at", "", "read the version effective at this time (RFC3339, YYYY-MM-DD or \"YYYY-MM-DD HH:MM\")")

	rename := &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			taskID, err := parseID("task", args[0])
			if err != nil {
				return err
			}
			task, err := s.api.RenameTask(cmd.Context(), servercommon.RenameTaskRequest{ID: taskID, Name: strings.Join(args[1:], " ")})
			if err != nil {
				return err
			}
			return s.out.emit(task, func() string { return fmt.Sprintf("renamed task %d to %q", task.ID, task.Name) })
		}),
	}

	move := &cobra.Command{
		Use:   "move <id> <project-id>",
		Short: "Move a task to another active project",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			taskID, err := parseID("task", args[0])
			if err != nil {
				return err
			}
			projectID, err := parseID("project", args[1])
			if err != nil {
				return err
			}
			task, err := s.api.MoveTask(cmd.Context(), servercommon.MoveTaskRequest{ID: taskID, ProjectID: projectID})
			if err != nil {
				return err
			}
			return s.out.emit(task, func() string { return fmt.Sprintf("moved task %d to project %d", task.ID, task.ProjectID) })
		}),
	}

	archive := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a task, stopping its timer",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			taskID, err := parseID("task", args[0])
			if err != nil {
				return err
			}
			task, err := s.api.ArchiveTask(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			return s.out.emit(task, func() string { return fmt.Sprintf("archived task %d", task.ID) })
		}),
	}

	restore := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore an archived task",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			taskID, err := parseID("task", args[0])
			if err != nil {
				return err
			}
			task, err := s.api.RestoreTask(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			return s.out.emit(task, func() string { return fmt.Sprintf("restored task %d", task.ID) })
		}),
	}

	history := &cobra.Command{
		Use:   "history <id>",
		Short: "List every version of a task",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			taskID, err := parseID("task", args[0])
			if err != nil {
				return err
			}
			versions, err := s.api.TaskHistory(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			return s.out.emit(versions, func() string { return taskTable(versions...) })
		}),
	}

	summary := &cobra.Command{
		Use:   "summary <id>",
		Short: "Show tracked time for a task",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			taskID, err := parseID("task", args[0])
			if err != nil {
				return err
			}
			sum, err := s.api.TaskSummary(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			return s.out.emit(sum, func() string {
				running := ""
				if sum.Running {
					running = ", timer running"
				}
				return fmt.Sprintf("task %d: %s over %d entries%s", sum.TaskID, sum.Total, sum.EntryCount, running)
			})
		}),
	}

	cmd.AddCommand(list, create, show, rename, move, archive, restore, history, summary)
	return cmd
}
