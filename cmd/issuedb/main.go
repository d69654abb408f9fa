// Command issuedb is a thin adapter over the issuegraph core: enough
// of a CLI to create, list, and search issues against a SQLite store,
// to exercise the service layer end-to-end. It is not a reproduction
// of any upstream CLI's surface (spec §1 Non-goals).
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dotwork/issuegraph"
	"github.com/dotwork/issuegraph/internal/config"
	"github.com/dotwork/issuegraph/internal/service"
)

var (
	cfgPath      string
	auditLogPath string
	app          *issuegraph.App
)

func main() {
	root := &cobra.Command{
		Use:   "issuedb",
		Short: "issuegraph core command-line adapter",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			var sink io.Writer
			if auditLogPath != "" {
				sink = &lumberjack.Logger{Filename: auditLogPath, MaxSize: 10, MaxBackups: 3}
			}
			a, err := issuegraph.OpenSQLite(cmd.Context(), cfg.Storage.Path, sink)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			app = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app != nil {
				return app.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config.toml")
	root.PersistentFlags().StringVar(&auditLogPath, "audit-log", "", "rotated file to mirror the audit trail to")

	root.AddCommand(createCmd(), listCmd(), transitionCmd(), searchCmd(), readyCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createCmd() *cobra.Command {
	var title, project string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "create a new issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			input := service.CreateIssueInput{Title: title}
			if project != "" {
				input.ProjectID = issuegraph.ID(project)
			}
			issue, err := app.Issues.CreateIssue(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s  %s\n", color.New(color.FgGreen).Sprint(issue.ID), issue.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "issue title")
	cmd.Flags().StringVar(&project, "project", "", "project id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			issues, err := app.Store.Issues().List(cmd.Context(), issuegraph.IssueFilter{}, issuegraph.ListOptions{})
			if err != nil {
				return err
			}
			printIssues(issues)
			return nil
		},
	}
	return cmd
}

func transitionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transition <id> <status>",
		Short: "move an issue to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			issue, err := app.Issues.Transition(cmd.Context(), issuegraph.ID(args[0]), issuegraph.Status(args[1]), "")
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s -> %s\n", issue.ID, statusColor(issue.Status))
			return nil
		},
	}
	return cmd
}

func searchCmd() *cobra.Command {
	var advanced bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "full-text search over issue title/description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := app.Search.Search(cmd.Context(), args[0], service.SearchOptions{AdvancedMode: advanced})
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, humanize.Comma(int64(len(results))), "matches")
			for _, r := range results {
				fmt.Fprintf(os.Stdout, "%s  %s\n  %s\n", r.Issue.ID, r.Issue.Title, r.Snippet)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&advanced, "advanced", false, "enable FTS5 boolean query syntax")
	return cmd
}

func readyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ready",
		Short: "list issues with no open blockers",
		RunE: func(cmd *cobra.Command, args []string) error {
			issues, err := app.Dependencies.ReadyQueue(cmd.Context(), nil, issuegraph.ListOptions{})
			if err != nil {
				return err
			}
			printIssues(issues)
			return nil
		},
	}
	return cmd
}

func printIssues(issues []*issuegraph.Issue) {
	for _, issue := range issues {
		age := humanize.Time(issue.CreatedAt)
		fmt.Fprintf(os.Stdout, "%s  %-8s  %-40s  %s\n", issue.ID, statusColor(issue.Status), issue.Title, age)
	}
}

func statusColor(s issuegraph.Status) string {
	switch s {
	case issuegraph.StatusClosed, issuegraph.StatusCompleted:
		return color.New(color.FgGreen).Sprint(s)
	case issuegraph.StatusBlocked:
		return color.New(color.FgRed).Sprint(s)
	default:
		return color.New(color.FgYellow).Sprint(s)
	}
}
