package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bandcoach/bandcoach/internal/content"
	"github.com/bandcoach/bandcoach/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats <user-id>",
	Short: "Show a learner's level and per-section progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", args[0], err)
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		p, err := s.Learners().Get(cmd.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("learner %d not found", userID)
		}
		if err != nil {
			return fmt.Errorf("get learner: %w", err)
		}

		out := cmd.OutOrStdout()
		name := p.FirstName
		if p.Username != "" {
			name += " (@" + p.Username + ")"
		}
		fmt.Fprintf(out, "Learner:   %d %s\n", p.UserID, name)
		fmt.Fprintf(out, "Level:     %s\n", p.SkillLevel)
		fmt.Fprintf(out, "Language:  %s\n", p.Language)
		fmt.Fprintf(out, "Since:     %s\n\n", p.CreatedAt.Local().Format("2006-01-02"))

		fmt.Fprintf(out, "%-10s  %8s  %9s  %8s  %10s  %s\n",
			"Section", "Sessions", "Correct", "Accuracy", "Last", "Practised")
		fmt.Fprintln(out, strings.Repeat("─", 72))
		for _, sec := range content.AllSections() {
			st, ok := p.Stats[sec]
			if !ok {
				fmt.Fprintf(out, "%-10s  %8d  %9s  %8s  %10s  %s\n", sec.DisplayName(), 0, "-", "-", "-", "never")
				continue
			}
			correct, accuracy := "-", "-"
			if !sec.AIScored() {
				correct = fmt.Sprintf("%d/%d", st.Correct, st.Total)
				accuracy = fmt.Sprintf("%.0f%%", st.Accuracy()*100)
			}
			last := "-"
			switch {
			case st.LastBand != nil:
				last = fmt.Sprintf("band %.1f", *st.LastBand)
			case st.LastScore != nil:
				last = fmt.Sprintf("%.2f%%", *st.LastScore)
			}
			practised := "never"
			if st.LastPracticed != nil {
				practised = st.LastPracticed.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(out, "%-10s  %8d  %9s  %8s  %10s  %s\n",
				sec.DisplayName(), st.Sessions, correct, accuracy, last, practised)
		}

		recent, err := s.Sessions().List(cmd.Context(), store.SessionFilter{UserID: userID, Limit: 5})
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(recent) > 0 {
			fmt.Fprintln(out, "\nRecent sessions")
			for _, r := range recent {
				fmt.Fprintf(out, "  %s  %-9s  %-10s  %-10s  %s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04"), r.Section, r.Status, formatScore(r), r.ID)
			}
		}
		return nil
	},
}
