package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	clientsync "github.com/dmitrijs2005/vaultsync/internal/client/sync"
)

func (s *session) syncCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize every vault with the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := s.app.auth.Restore(ctx); err != nil {
				return err
			}

			if watch {
				fmt.Fprintln(s.app.out, "watching for changes, press Ctrl+C to stop")
				s.app.watcher().Run(ctx)
				return nil
			}

			results, err := s.app.reconciler.SyncAll(ctx)
			s.printResults(results)
			if err != nil {
				return err
			}
			success(s.app.out, "in sync")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep running and sync changes as they happen")
	return cmd
}

func (s *session) printResults(results []clientsync.Result) {
	for _, r := range results {
		if r.VaultID == "" {
			continue
		}
		switch {
		case r.Removed:
			fmt.Fprintf(s.app.out, "  %s removed\n", r.VaultID)
		case r.Skipped:
			fmt.Fprintf(s.app.out, "  %s unchanged\n", r.VaultID)
		default:
			created := ""
			if r.Created {
				created = " (created on server)"
			}
			fmt.Fprintf(s.app.out, "  %s pulled %d, pushed %d, purged %d%s\n", r.VaultID, r.Pulled, r.Pushed, r.Purged, created)
		}
	}
}
