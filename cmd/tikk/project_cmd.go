package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	servercommon "github.com/hylla/tikk/internal/adapters/server/common"
)

func newProjectCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects", "p"},
		Short:   "Create, list, and manage projects",
	}

	var (
		includeArchived bool
		prefix          string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, _ []string) error {
			projects, err := s.api.ListProjects(cmd.Context(), servercommon.ListProjectsRequest{
				IncludeArchived: includeArchived,
				Prefix:          prefix,
			})
			if err != nil {
				return err
			}
			return s.out.emit(projects, func() string { return projectTable(projects...) })
		}),
	}
	list.Flags().BoolVarP(&includeArchived, "archived", "a", false, "include archived projects")
	list.Flags().StringVar(&prefix, "prefix", "", "only names starting with this literal, case-sensitive prefix")

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			project, err := s.api.CreateProject(cmd.Context(), servercommon.CreateProjectRequest{Name: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			return s.out.emit(project, func() string { return fmt.Sprintf("created project %d %q", project.ID, project.Name) })
		}),
	}

	var at string
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project, optionally as it was at an instant",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			projectID, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			asOf, err := cliTime("at", at, nowFunc())
			if err != nil {
				return err
			}
			project, err := s.api.GetProject(cmd.Context(), servercommon.GetProjectRequest{ID: projectID, At: asOf})
			if err != nil {
				return err
			}
			return s.out.emit(project, func() string { return projectTable(project) })
		}),
	}
	show.Flags().StringVar(&at, "at", "", "read the version effective at this time (RFC3339, YYYY-MM-DD or \"YYYY-MM-DD HH:MM\")")

	rename := &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a project",
		Args:  cobra.MinimumNArgs(2),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			projectID, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			project, err := s.api.RenameProject(cmd.Context(), servercommon.RenameProjectRequest{ID: projectID, Name: strings.Join(args[1:], " ")})
			if err != nil {
				return err
			}
			return s.out.emit(project, func() string { return fmt.Sprintf("renamed project %d to %q", project.ID, project.Name) })
		}),
	}

	var force bool
	archive := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a project",
		Long:  "Archive a project. A project with active tasks is refused unless --force, which archives those tasks too.",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			projectID, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			project, err := s.api.ArchiveProject(cmd.Context(), servercommon.ArchiveProjectRequest{ID: projectID, Force: force})
			if err != nil {
				return err
			}
			return s.out.emit(project, func() string { return fmt.Sprintf("archived project %d", project.ID) })
		}),
	}
	archive.Flags().BoolVarP(&force, "force", "f", false, "also archive the project's active tasks")

	restore := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore an archived project (its tasks stay archived)",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			projectID, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			project, err := s.api.RestoreProject(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			return s.out.emit(project, func() string { return fmt.Sprintf("restored project %d", project.ID) })
		}),
	}

	history := &cobra.Command{
		Use:   "history <id>",
		Short: "List every version of a project",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			projectID, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			versions, err := s.api.ProjectHistory(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			return s.out.emit(versions, func() string { return projectTable(versions...) })
		}),
	}

	summary := &cobra.Command{
		Use:   "summary <id>",
		Short: "Show tracked time and task counts for a project",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, args []string) error {
			projectID, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			sum, err := s.api.ProjectSummary(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			return s.out.emit(sum, func() string {
				return fmt.Sprintf("project %d: %s tracked, %d tasks (%d active)", sum.ProjectID, sum.Total, sum.TaskCount, sum.ActiveTaskCount)
			})
		}),
	}

	cmd.AddCommand(list, create, show, rename, archive, restore, history, summary)
	return cmd
}
