package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/pickleit/internal/apiclient"
	"github.com/sakif/pickleit/internal/apperror"
	"github.com/sakif/pickleit/internal/config"
	"github.com/sakif/pickleit/internal/progress"
	sqliteRepo "github.com/sakif/pickleit/internal/repository/sqlite"
	"github.com/sakif/pickleit/internal/session"
	"github.com/sakif/pickleit/internal/state"
	"github.com/sakif/pickleit/internal/statscache"
)

// tokenKey is where the session token lives in the local key-value table.
const tokenKey = "session_token"

// app holds what every command shares. open fills it in before a command
// runs; close releases it after.
type app struct {
	apiURL  string
	home    string
	verbose bool

	logger *slog.Logger
	local  *sqliteRepo.DB
	client *apiclient.Client
	stats  *statscache.Stats
}

func newRootCmd(a *app) *cobra.Command {
	defaults := config.LoadClient()

	root := &cobra.Command{
		Use:           "pickleit",
		Short:         "pickleit tracks food preservation methods from your terminal",
		Long:          "pickleit browses the PickleIt method catalog and tracks your saved methods, mastered methods, points, and achievements.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.apiURL, "api", defaults.APIURL, "PickleIt API base URL (env PICKLEIT_API_URL)")
	root.PersistentFlags().StringVar(&a.home, "home", defaults.Home, "Directory for the local session and cache (env PICKLEIT_HOME)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(
		newSignUpCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoAmICmd(a),
		newMethodsCmd(a),
		newSaveCmd(a),
		newSavedCmd(a),
		newMasterCmd(a),
		newUnmasterCmd(a),
		newProgressCmd(a),
		newWatchCmd(a),
		newSeedCmd(a),
	)
	return root
}

// open creates the home directory, the local sqlite file, the stats cache,
// and an API client carrying the saved token.
func (a *app) open(ctx context.Context) error {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := os.MkdirAll(a.home, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", a.home, err)
	}
	local, err := sqliteRepo.New(filepath.Join(a.home, "pickleit.db"))
	if err != nil {
		return fmt.Errorf("opening local cache: %w", err)
	}
	a.local = local
	a.stats = statscache.New(statscache.NewKV(local), a.logger)

	token, _, err := local.GetValue(ctx, tokenKey)
	if err != nil {
		return fmt.Errorf("reading saved session: %w", err)
	}
	a.client = apiclient.New(a.apiURL, a.logger, apiclient.WithToken(token))
	return nil
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.local != nil {
		a.local.Close()
	}
}

// persistToken writes the client's current token (or its absence) to disk.
func (a *app) persistToken(ctx context.Context) error {
	if token := a.client.Token(); token != "" {
		return a.local.SetValue(ctx, tokenKey, token)
	}
	return a.local.DeleteValue(ctx, tokenKey)
}

// requireUser returns the signed-in user id or a friendly error.
func (a *app) requireUser(ctx context.Context) (string, error) {
	uid, err := a.client.CurrentSession(ctx)
	if err != nil {
		return "", err
	}
	if uid == "" {
		return "", apperror.Unauthenticated("not signed in: run `pickleit login` first")
	}
	return uid, nil
}

// startCore builds the client-side state core for one command. Achievement
// notifications are left queued for drainAwards; the delay only matters to
// long-running commands.
func (a *app) startCore(ctx context.Context, onAward func(progress.Achievement)) (*state.Core, error) {
	src := session.NewSource(a.client, a.logger)
	core := state.NewCore(a.client, src, a.stats, a.logger, state.Options{
		NotifyDelay: time.Minute,
		OnAward:     onAward,
	})
	if err := core.Start(ctx); err != nil {
		return nil, err
	}
	if core.UserID() == "" {
		core.Close()
		return nil, apperror.Unauthenticated("not signed in: run `pickleit login` first")
	}
	return core, nil
}

// parseMethodID accepts a positive integer id.
func parseMethodID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed("id", fmt.Sprintf("invalid method id %q", raw))
	}
	return id, nil
}
