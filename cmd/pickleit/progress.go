package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sakif/pickleit/internal/service"
	"github.com/sakif/pickleit/internal/state"
	"github.com/sakif/pickleit/internal/statscache"
)

// drainAwards prints and dismisses every queued achievement notification.
func drainAwards(w io.Writer, core *state.Core) {
	for {
		a, ok := core.Notifier.Current()
		if !ok {
			return
		}
		printAward(w, a)
		core.Notifier.Dismiss()
	}
}

func newSaveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save <id>",
		Short: "Save a method, or unsave it if already saved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMethodID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			core, err := a.startCore(ctx, nil)
			if err != nil {
				return err
			}
			defer core.Close()

			m, err := a.client.GetMethod(ctx, id)
			if err != nil {
				return err
			}
			if err := core.Saved.ToggleSave(ctx, args[0]); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if core.Saved.IsSaved(id) {
				fmt.Fprintf(out, "Saved %q (%d saved)\n", m.Title, core.Saved.Count())
			} else {
				fmt.Fprintf(out, "Removed %q from saved (%d saved)\n", m.Title, core.Saved.Count())
			}
			drainAwards(out, core)
			return nil
		},
	}
}

func newSavedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "saved",
		Short: "List saved methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.requireUser(ctx); err != nil {
				return err
			}
			ids, err := a.client.SavedMethodIDs(ctx, "")
			if err != nil {
				return err
			}
			a.stats.SetInt(ctx, statscache.KeySavedMethods, len(ids))

			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "Nothing saved yet. Try `pickleit save <id>`.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY")
			for _, id := range ids {
				m, err := a.client.GetMethod(ctx, id)
				if err != nil {
					fmt.Fprintf(tw, "%d\t(unavailable)\t\n", id)
					continue
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", m.ID, m.Title, m.Category)
			}
			return tw.Flush()
		},
	}
}

func newMasterCmd(a *app) *cobra.Command {
	var (
		notes  string
		rating int
	)
	cmd := &cobra.Command{
		Use:   "master <id>",
		Short: "Mark a method as mastered (+10 points the first time)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMethodID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			core, err := a.startCore(ctx, nil)
			if err != nil {
				return err
			}
			defer core.Close()

			before := core.Profile.Points()
			if _, err := core.CompleteMethod(ctx, id, notes, rating); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Mastered method %d\n", id)
			drainAwards(out, core)
			if gained := core.Profile.Points() - before; gained > 0 {
				fmt.Fprintf(out, "+%d points (%d total)\n", gained, core.Profile.Points())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Notes about how it went")
	cmd.Flags().IntVar(&rating, "rating", 0, "Rating from 1 to 5")
	return cmd
}

func newUnmasterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unmaster <id>",
		Short: "Remove a mastered mark (points already earned stay)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMethodID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			core, err := a.startCore(ctx, nil)
			if err != nil {
				return err
			}
			defer core.Close()

			if err := core.UncompleteMethod(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Method %d is no longer mastered\n", id)
			return nil
		},
	}
}

func newProgressCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show points, level, and achievements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			uid, err := a.requireUser(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			// the cache answers instantly; the server answer follows
			if points, ok := a.stats.UserPoints(ctx, uid); ok {
				title, _ := a.stats.UserLevelTitle(ctx, uid)
				fmt.Fprintf(out, "Cached: %d points, %s\n", points, title)
			}

			ov, err := a.client.Overview(ctx)
			if err != nil {
				return err
			}
			cacheOverview(ctx, a.stats, uid, ov)
			printOverview(out, ov)
			return nil
		},
	}
}

func cacheOverview(ctx context.Context, stats *statscache.Stats, uid string, ov *service.Overview) {
	stats.SetUserPoints(ctx, uid, ov.Level.Points)
	stats.SetUserLevelTitle(ctx, uid, ov.Level.Current.Name)
	stats.SetInt(ctx, statscache.KeyAchievementsTotal, len(ov.Achievements))
	stats.SetInt(ctx, statscache.KeyAchievementsEarned, ov.Earned)
	stats.SetInt(ctx, statscache.KeyTotalMethods, ov.Snapshot.TotalMethods)
	stats.SetInt(ctx, statscache.KeyCompletedMethods, ov.Snapshot.CompletedCount)
	stats.SetInt(ctx, statscache.KeySavedMethods, ov.Snapshot.SavedCount)
}

func printOverview(w io.Writer, ov *service.Overview) {
	lvl := ov.Level
	fmt.Fprintf(w, "Level: %s (%d points)\n", lvl.Current.Name, lvl.Points)
	if lvl.Next != nil {
		fmt.Fprintf(w, "Next:  %s at %d points %s %d%%\n", lvl.Next.Name, lvl.Next.Min, bar(lvl.Percentage), lvl.Percentage)
	} else {
		fmt.Fprintln(w, "Top level reached")
	}

	s := ov.Snapshot
	fmt.Fprintf(w, "\nSaved %d  Mastered %d of %d", s.SavedCount, s.CompletedCount, s.TotalMethods)
	if len(s.CompletedCategories) > 0 {
		fmt.Fprintf(w, "  Categories: %s", strings.Join(s.CompletedCategories, ", "))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\nAchievements (%d/%d)\n", ov.Earned, len(ov.Achievements))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, st := range ov.Achievements {
		mark := " "
		if st.Earned {
			mark = "x"
		}
		fmt.Fprintf(tw, "  [%s]\t%s\t+%d\t%s\t%s\n", mark, st.Name, st.Points, strconv.Itoa(st.Progress)+"%", st.Description)
	}
	_ = tw.Flush()

	if ov.Next != nil {
		fmt.Fprintf(w, "\nNext up: %s - %s\n", ov.Next.Name, ov.Next.Description)
	}
}

// bar draws a 20-cell progress bar.
func bar(pct int) string {
	filled := max(0, min(20, pct/5))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", 20-filled) + "]"
}

func printView(w io.Writer, v state.ProfileView) {
	switch v.Status {
	case state.StatusUnauthenticated:
		fmt.Fprintln(w, "signed out")
	case state.StatusLoading:
		fmt.Fprintln(w, "loading profile...")
	default:
		fmt.Fprintf(w, "%s: %d points (%s)\n", v.UserID, v.Points, v.Level.Current.Name)
	}
}
