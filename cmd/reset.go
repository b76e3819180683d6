package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bandcoach/bandcoach/internal/store"
)

var resetCmd = &cobra.Command{
	Use:   "reset <user-id>",
	Short: "Cancel a learner's active sessions so their next message starts fresh",
	Long: `Cancel every active session of a learner. Cancelled sessions are kept for
audit and never scored. Run this while the bot is stopped: a running bot keeps
its in-memory copy of the conversation.`,
	Args: cobra.ExactArgs(1),
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

		ctx := cmd.Context()
		active, err := s.Sessions().List(ctx, store.SessionFilter{UserID: userID, Status: store.StatusActive})
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		for _, p := range active {
			if _, err := s.Sessions().Update(ctx, p.ID, func(p *store.PracticeSession) error {
				return p.Cancel()
			}); err != nil {
				return fmt.Errorf("cancel session %s: %w", p.ID, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %d active session(s) for learner %d.\n", len(active), userID)
		return nil
	},
}
