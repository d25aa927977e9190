package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var (
		email        string
		password     string
		accessToken  string
		refreshToken string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session for later commands",
		Long: `Sign in with email and password, or adopt a session issued elsewhere
(for example by the web dashboard) with --access-token and --refresh-token.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if accessToken != "" {
				sess, err := a.tokenParser().SessionFromToken(accessToken, refreshToken)
				if err != nil {
					return err
				}
				store, err := a.cacheStore(ctx)
				if err != nil {
					return err
				}
				if err := a.sessions(store).Save(ctx, sess); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "signed in as %s\n", displayName(sess.User.Email, sess.User.ID))
				return nil
			}

			if email == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("password is required (--password or stdin)")
				}
				password = strings.TrimRight(line, "\r\n")
			}
			src, err := a.authSource(ctx)
			if err != nil {
				return err
			}
			sess, err := src.SignIn(ctx, email, password)
			if err != nil {
				return fmt.Errorf("sign in: %w", err)
			}
			fmt.Fprintf(a.out, "signed in as %s (session expires %s)\n",
				displayName(sess.User.Email, sess.User.ID), sess.ExpiresAt.Local().Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (read from stdin when omitted)")
	cmd.Flags().StringVar(&accessToken, "access-token", "", "adopt an existing access token")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "refresh token that goes with --access-token")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget it locally",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := p.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "signed out")
			return nil
		},
	}
}

type whoami struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	Tier      string    `json:"subscription_tier,omitempty"`
	ExpiresAt time.Time `json:"session_expires_at"`
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			ident := p.CurrentIdentity()
			if ident == nil {
				return errNotSignedIn
			}
			out := whoami{ID: ident.ID, Email: ident.Email}
			if sess := p.Session(); sess != nil {
				out.ExpiresAt = sess.ExpiresAt
			}
			if prof := p.Profile(); prof != nil {
				out.FullName = prof.FullName
				out.Tier = prof.SubscriptionTier
			}
			return printJSON(a.out, out)
		},
	}
}

func displayName(email, id string) string {
	if email != "" {
		return email
	}
	return id
}
