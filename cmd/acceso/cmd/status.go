package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgarza/acceso/token"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session and token state",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSDK()
		if err != nil {
			return err
		}
		defer s.close()

		tokens := s.service.Client().Tokens()
		access, hasAccess := tokens.AccessToken()
		_, hasRefresh := tokens.RefreshToken()

		if !hasAccess && !hasRefresh {
			fmt.Println("Not logged in.")
			return nil
		}
		if hasAccess {
			if exp, ok := token.ExpiresAt(access); ok {
				fmt.Printf("Access token expires %s (%s)\n",
					exp.Format(time.RFC1123), time.Until(exp).Round(time.Second))
			} else {
				fmt.Println("Access token stored (opaque).")
			}
		}
		if hasRefresh {
			fmt.Println("Refresh token stored.")
		}

		if err := s.sessions.Initialize(context.Background()); err != nil {
			return fmt.Errorf("could not load the profile: %s", s.sessions.Snapshot().Err)
		}
		snap := s.sessions.Snapshot()
		if !snap.IsAuthenticated {
			fmt.Println("Stored tokens are no longer valid.")
			return nil
		}
		u := snap.User
		fmt.Printf("Logged in as %s %s <%s>\n", u.FirstName, u.LastName, u.Email)
		fmt.Printf("Two-step verification: %v", u.TwoFactorEnabled)
		if u.TwoFactorEnabled {
			fmt.Printf(" (app=%v email=%v sms=%v)", u.GoogleAuthEnabled, u.EmailEnabled, u.SMSEnabled)
		}
		fmt.Println()
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Invalidate the session and discard stored tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSDK()
		if err != nil {
			return err
		}
		defer s.close()

		s.sessions.Logout(context.Background())
		fmt.Println("Logged out.")
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force an access token refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSDK()
		if err != nil {
			return err
		}
		defer s.close()

		if _, err := s.sessions.Refresh(context.Background()); err != nil {
			return fmt.Errorf("refresh failed, log in again: %w", err)
		}
		fmt.Println("Access token refreshed.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(refreshCmd)
}
