package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Faultbox/estateview/internal/app"
	"github.com/Faultbox/estateview/internal/auth"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the cached OAuth2 token of the building API",
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a valid token is cached",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, err := tokenSource()
		if err != nil {
			return err
		}
		return printTokenInfo(cmd, ts.Info())
	},
}

var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch a new token and cache it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, err := tokenSource()
		if err != nil {
			return err
		}
		if _, err := ts.ForceRefresh(cmd.Context()); err != nil {
			var rerr *auth.RefreshError
			if errors.As(err, &rerr) {
				return fmt.Errorf("%s: %w", rerr.Message(), err)
			}
			return err
		}
		return printTokenInfo(cmd, ts.Info())
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the cached token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, err := tokenSource()
		if err != nil {
			return err
		}
		ts.Logout()
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

func init() {
	authCmd.AddCommand(authStatusCmd, authRefreshCmd, authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}

func tokenSource() (*auth.TokenSource, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	ts, ok := app.Credentials(cfg).(*auth.TokenSource)
	if !ok {
		return nil, fmt.Errorf("no auth.token_url configured")
	}
	return ts, nil
}

func printTokenInfo(cmd *cobra.Command, info auth.Info) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		return json.NewEncoder(out).Encode(info)
	}
	switch {
	case !info.HasToken:
		fmt.Fprintln(out, "No token cached.")
	case info.Expired:
		fmt.Fprintf(out, "Token expired at %s.\n", info.ExpiresAt.Format(time.RFC3339))
	default:
		fmt.Fprintf(out, "Token valid until %s (%s left).\n",
			info.ExpiresAt.Format(time.RFC3339), time.Until(info.ExpiresAt).Round(time.Second))
	}
	return nil
}
