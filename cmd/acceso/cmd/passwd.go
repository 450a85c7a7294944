package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgarza/acceso/validate"
)

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Password recovery",
}

var passwdForgotCmd = &cobra.Command{
	Use:   "forgot <email>",
	Short: "Request a password reset email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if res := validate.Email(args[0]); !res.Valid {
			return fmt.Errorf("invalid email: %s", res.Err)
		}
		s, err := newSDK()
		if err != nil {
			return err
		}
		defer s.close()

		resp, err := s.service.RequestPasswordReset(context.Background(), args[0])
		if err != nil {
			return err
		}
		if resp.Message != "" {
			fmt.Println(resp.Message)
		} else {
			fmt.Println("If the account exists, a reset email is on its way.")
		}
		return nil
	},
}

var passwdResetCmd = &cobra.Command{
	Use:   "reset <token>",
	Short: "Set a new password using a reset token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSDK()
		if err != nil {
			return err
		}
		defer s.close()

		ctx := context.Background()
		check, err := s.service.ValidateResetToken(ctx, args[0])
		if err != nil {
			return err
		}
		if !check.Success {
			return errors.New("the reset token is invalid or has expired")
		}

		fmt.Print("New password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return err
		}

		resp, err := s.service.ResetPassword(ctx, args[0], string(password))
		if err != nil {
			return err
		}
		if resp.Message != "" {
			fmt.Println(resp.Message)
		} else {
			fmt.Println("Password updated. Log in with the new password.")
		}
		return nil
	},
}

var verifyEmailCmd = &cobra.Command{
	Use:   "verify-email <token>",
	Short: "Verify a new account with the emailed token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSDK()
		if err != nil {
			return err
		}
		defer s.close()

		resp, err := s.service.VerifyEmail(context.Background(), args[0])
		if err != nil {
			return err
		}
		if resp.Message != "" {
			fmt.Println(resp.Message)
		} else {
			fmt.Println("Account verified. You can log in now.")
		}
		return nil
	},
}

func init() {
	passwdCmd.AddCommand(passwdForgotCmd)
	passwdCmd.AddCommand(passwdResetCmd)
	rootCmd.AddCommand(passwdCmd)
	rootCmd.AddCommand(verifyEmailCmd)
}
