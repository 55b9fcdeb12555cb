package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/progress"
)

type credentials struct {
	email    string
	password string
}

func (c *credentials) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.email, "email", "", "Account email")
	cmd.Flags().StringVar(&c.password, "password", "", "Account password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("email")
}

// resolve reads the password from in when the flag was not given.
func (c *credentials) resolve(cmd *cobra.Command, in io.Reader) error {
	if c.password != "" {
		return nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	c.password = strings.TrimRight(line, "\r\n")
	return nil
}

func newSignUpCmd(a *app) *cobra.Command {
	var creds credentials
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.resolve(cmd, cmd.InOrStdin()); err != nil {
				return err
			}
			u, err := a.client.SignUp(cmd.Context(), creds.email, creds.password)
			if err != nil {
				return err
			}
			if err := a.persistToken(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s! You are signed in.\n", u.Login)
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var creds credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.resolve(cmd, cmd.InOrStdin()); err != nil {
				return err
			}
			u, err := a.client.SignIn(cmd.Context(), creds.email, creds.password)
			if err != nil {
				return err
			}
			if err := a.persistToken(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", u.Email)
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			uid, _ := a.client.CurrentSession(ctx)

			// the local session goes even if the server is unreachable
			signOutErr := a.client.SignOut(ctx)
			if err := a.persistToken(ctx); err != nil {
				return err
			}
			if uid != "" {
				a.stats.ForgetUser(ctx, uid)
			}
			if signOutErr != nil {
				a.logger.Warn("server sign-out failed", slog.String("error", signOutErr.Error()))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoAmICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.requireUser(cmd.Context()); err != nil {
				return err
			}
			u, err := a.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			printUser(cmd.OutOrStdout(), u)
			return nil
		},
	}
}

func printUser(w io.Writer, u *model.User) {
	fmt.Fprintf(w, "%s <%s>\n", u.Login, u.Email)
	fmt.Fprintf(w, "ID: %s\n", u.ID)
	if u.IsAdmin {
		fmt.Fprintln(w, "Role: admin")
	}
}

func printAward(w io.Writer, a progress.Achievement) {
	fmt.Fprintf(w, "Achievement unlocked: %s (+%d points) - %s\n", a.Name, a.Points, a.Description)
}
