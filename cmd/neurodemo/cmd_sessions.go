package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nvandessel/neurodemo/internal/store"
	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect recorded sessions",
		Long: `List and show sessions recorded with 'serve --record' or 'simulate --record'.

Sessions are stored in sessions.db in the recording directory
(~/.neurodemo by default).`,
	}

	cmd.AddCommand(
		newSessionsListCmd(),
		newSessionsShowCmd(),
		newSessionsPruneCmd(),
	)

	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			st, err := openSessionStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			sessions, err := st.ListSessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}

			if jsonOut {
				if sessions == nil {
					sessions = []store.Session{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"sessions": sessions,
					"count":    len(sessions),
				})
			}

			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded.")
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-36s  %-19s  %10s  %6s\n", "ID", "STARTED", "DURATION", "EVENTS")
			for _, s := range sessions {
				fmt.Fprintf(out, "%-36s  %-19s  %10s  %6d\n",
					s.ID,
					s.StartedAt.Local().Format(time.DateTime),
					sessionDuration(s),
					s.Events)
			}
			fmt.Fprintf(out, "\nTotal: %d session(s)\n", len(sessions))
			return nil
		},
	}
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session and its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			st, err := openSessionStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			session, err := st.GetSession(cmd.Context(), args[0])
			if errors.Is(err, store.ErrSessionNotFound) {
				return fmt.Errorf("no session with id %s (run 'neurodemo sessions list')", args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to load session: %w", err)
			}

			events, err := st.Events(cmd.Context(), session.ID)
			if err != nil {
				return fmt.Errorf("failed to load events: %w", err)
			}

			if jsonOut {
				if events == nil {
					events = []store.Event{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"session": session,
					"events":  events,
				})
			}

			out := cmd.OutOrStdout()
			p := session.Params
			fmt.Fprintf(out, "Session %s\n", session.ID)
			fmt.Fprintf(out, "  started:   %s\n", session.StartedAt.Local().Format(time.DateTime))
			fmt.Fprintf(out, "  duration:  %s\n", sessionDuration(*session))
			fmt.Fprintf(out, "  threshold: %g  increment: %g  decay: %s\n",
				p.ActivationThreshold, p.StimulationIncrement, p.DecayMode)
			fmt.Fprintln(out)

			if len(events) == 0 {
				fmt.Fprintln(out, "No events.")
				return nil
			}
			for _, e := range events {
				fmt.Fprintf(out, "  %10.3fs  %-10s  %-7s  %7.2f\n",
					e.At.Sub(session.StartedAt).Seconds(), e.Kind, e.Node, e.Level)
			}
			return nil
		},
	}
}

func newSessionsPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old sessions",
		Long: `Delete recorded sessions and their events.

A session survives if ANY of the given limits keeps it. The session
currently being recorded is never deleted.

Examples:
  neurodemo sessions prune --keep 10
  neurodemo sessions prune --keep 5 --max-age 168h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			keep, _ := cmd.Flags().GetInt("keep")
			maxAge, _ := cmd.Flags().GetDuration("max-age")

			var policies []store.RetentionPolicy
			if cmd.Flags().Changed("keep") {
				if keep < 0 {
					return fmt.Errorf("--keep must be non-negative, got %d", keep)
				}
				policies = append(policies, &store.CountPolicy{MaxCount: keep})
			}
			if cmd.Flags().Changed("max-age") {
				if maxAge <= 0 {
					return fmt.Errorf("--max-age must be positive, got %s", maxAge)
				}
				policies = append(policies, &store.AgePolicy{MaxAge: maxAge})
			}
			if len(policies) == 0 {
				return fmt.Errorf("nothing to prune by: pass --keep and/or --max-age")
			}

			st, err := openSessionStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			deleted, err := st.Prune(cmd.Context(), &store.CompositePolicy{Policies: policies})
			if err != nil {
				return fmt.Errorf("failed to prune sessions: %w", err)
			}

			if jsonOut {
				if deleted == nil {
					deleted = []string{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"deleted": deleted,
					"count":   len(deleted),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d session(s)\n", len(deleted))
			return nil
		},
	}

	cmd.Flags().Int("keep", 0, "Keep this many most recent sessions")
	cmd.Flags().Duration("max-age", 0, "Keep sessions started within this duration")

	return cmd
}

// openSessionStore opens the session database named by the configuration.
func openSessionStore(cmd *cobra.Command) (*store.SessionStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.RecordingDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return st, nil
}

func sessionDuration(s store.Session) string {
	if s.EndedAt == nil {
		return "running"
	}
	return s.EndedAt.Sub(s.StartedAt).Round(time.Millisecond).String()
}
