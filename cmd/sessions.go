package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect practice sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent practice sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := sessionFilter(cmd)
		if err != nil {
			return err
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		sessions, err := s.Sessions().List(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}

		fmt.Fprintf(out, "%-36s  %-12s  %-9s  %-14s  %-10s  %-16s  %s\n",
			"ID", "User", "Section", "Variant", "Status", "Started", "Score")
		fmt.Fprintln(out, strings.Repeat("─", 118))
		for _, p := range sessions {
			fmt.Fprintf(out, "%-36s  %-12d  %-9s  %-14s  %-10s  %-16s  %s\n",
				p.ID, p.UserID, p.Section, truncate(p.Variant, 14), p.Status,
				p.StartedAt.Local().Format("2006-01-02 15:04"), formatScore(p))
		}
		return nil
	},
}

var sessionsViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show a session with every recorded step",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		p, err := s.Sessions().Get(cmd.Context(), args[0])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("session %s not found", args[0])
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ID:        %s\n", p.ID)
		fmt.Fprintf(out, "Learner:   %d (chat %d)\n", p.UserID, p.ChatID)
		fmt.Fprintf(out, "Section:   %s %s\n", p.Section.DisplayName(), p.Variant)
		fmt.Fprintf(out, "Status:    %s (stage %s)\n", p.Status, p.Stage)
		fmt.Fprintf(out, "Started:   %s\n", p.StartedAt.Local().Format("2006-01-02 15:04:05"))
		if p.CompletedAt != nil {
			fmt.Fprintf(out, "Finished:  %s\n", p.CompletedAt.Local().Format("2006-01-02 15:04:05"))
		}
		if !p.Section.AIScored() {
			fmt.Fprintf(out, "Correct:   %d/%d\n", p.CorrectAnswers, p.TotalQuestions)
		}
		fmt.Fprintf(out, "Score:     %s\n", formatScore(p))

		sep := strings.Repeat("─", 60)
		for _, e := range p.Data.Entries {
			fmt.Fprintln(out, sep)
			fmt.Fprintf(out, "#%d %s  %s\n", e.Step, e.Kind, e.At.Local().Format("15:04:05"))
			if e.Kind == store.EntryError {
				fmt.Fprintf(out, "  error: %s\n", e.Error)
				continue
			}
			if e.Question != "" {
				fmt.Fprintf(out, "  question: %s\n", e.Question)
			}
			if e.Transcript != "" {
				fmt.Fprintf(out, "  transcript: %s\n", e.Transcript)
			} else if e.Answer != "" {
				fmt.Fprintf(out, "  answer: %s\n", e.Answer)
			}
			if e.Correct != nil {
				fmt.Fprintf(out, "  expected: %s  correct: %v\n", e.Expected, *e.Correct)
			}
			if e.Band != nil {
				fmt.Fprintf(out, "  band: %.1f\n", *e.Band)
			}
		}
		return nil
	},
}

func sessionFilter(cmd *cobra.Command) (store.SessionFilter, error) {
	userID, _ := cmd.Flags().GetInt64("user")
	status, _ := cmd.Flags().GetString("status")
	section, _ := cmd.Flags().GetString("section")
	limit, _ := cmd.Flags().GetInt("limit")

	f := store.SessionFilter{UserID: userID, Limit: limit}
	switch store.Status(status) {
	case "":
	case store.StatusActive, store.StatusCompleted, store.StatusCancelled, store.StatusFailed:
		f.Status = store.Status(status)
	default:
		return f, fmt.Errorf("invalid status %q", status)
	}
	if section != "" {
		sec, err := content.ParseSection(section)
		if err != nil {
			return f, err
		}
		f.Section = sec
	}
	return f, nil
}

func formatScore(p *store.PracticeSession) string {
	switch {
	case p.Score == nil:
		return "-"
	case p.Section.AIScored():
		return fmt.Sprintf("band %.1f", *p.Score)
	default:
		return fmt.Sprintf("%.2f%%", *p.Score)
	}
}

func init() {
	sessionsListCmd.Flags().Int64P("user", "u", 0, "Filter by learner id")
	sessionsListCmd.Flags().StringP("status", "s", "", "Filter by status (active, completed, cancelled, failed)")
	sessionsListCmd.Flags().String("section", "", "Filter by section")
	sessionsListCmd.Flags().IntP("limit", "n", 20, "Number of sessions to show")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsViewCmd)
	sessionsCmd.AddCommand(resetCmd)
}
