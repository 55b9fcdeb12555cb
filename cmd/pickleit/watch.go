package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/pickleit/internal/seed"
	"github.com/sakif/pickleit/internal/session"
	"github.com/sakif/pickleit/internal/state"
)

func newWatchCmd(a *app) *cobra.Command {
	var refresh time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow sign-in changes and points until interrupted",
		Long: "watch subscribes to the session stream and prints the profile each time " +
			"the signed-in user changes. With --refresh it also reloads the points periodically.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			src := session.NewSource(a.client, a.logger)
			profile := state.NewProfileSync(a.client, a.stats, a.logger)
			defer profile.Close()

			if err := src.Start(ctx); err != nil {
				src.Close()
				return fmt.Errorf("subscribing to session changes: %w", err)
			}
			go func() {
				<-ctx.Done()
				src.Close()
			}()

			out := cmd.OutOrStdout()
			last := "-"
			show := func(userID string) {
				if userID == last {
					return
				}
				last = userID
				if err := profile.SetUser(ctx, userID); err != nil && ctx.Err() == nil {
					a.logger.Warn("profile load failed", slog.String("user", userID), slog.String("error", err.Error()))
				}
				printView(out, profile.View())
			}
			show(src.UserID())

			var tick <-chan time.Time
			if refresh > 0 {
				t := time.NewTicker(refresh)
				defer t.Stop()
				tick = t.C
			}

			for {
				select {
				case userID, ok := <-src.Changes():
					if !ok {
						return nil
					}
					show(userID)
				case <-tick:
					if profile.Status() == state.StatusUnauthenticated {
						continue
					}
					if err := profile.Refresh(ctx); err != nil && ctx.Err() == nil {
						a.logger.Warn("profile refresh failed", slog.String("error", err.Error()))
					}
					printView(out, profile.View())
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
	cmd.Flags().DurationVar(&refresh, "refresh", 0, "Reload points at this interval (0 disables)")
	return cmd
}

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the starter method catalog (admin only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.requireUser(ctx); err != nil {
				return err
			}
			n, err := seed.Seed(ctx, a.client, a.logger)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Catalog already has methods; nothing to seed")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d methods\n", n)
			return nil
		},
	}
}
