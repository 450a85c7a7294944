package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgarza/acceso/auth"
	"github.com/dgarza/acceso/validate"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a new account (requires email verification afterwards)",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSDK()
		if err != nil {
			return err
		}
		defer s.close()

		reader := bufio.NewReader(os.Stdin)
		prompt := func(label string) (string, error) {
			fmt.Printf("%s: ", label)
			line, err := reader.ReadString('\n')
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(line), nil
		}

		firstName, err := prompt("First name")
		if err != nil {
			return err
		}
		lastName, err := prompt("Last name")
		if err != nil {
			return err
		}
		email, err := prompt("Email")
		if err != nil {
			return err
		}
		if res := validate.Email(email); !res.Valid {
			return fmt.Errorf("invalid email: %s", res.Err)
		}
		phone, err := prompt("Phone (international, optional)")
		if err != nil {
			return err
		}
		if res := validate.Phone(phone); !res.Valid {
			return fmt.Errorf("invalid phone: %s", res.Err)
		}

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return err
		}

		resp, err := s.sessions.Register(context.Background(), auth.Registration{
			FirstName: firstName,
			LastName:  lastName,
			Email:     email,
			Password:  string(password),
			Phone:     phone,
		})
		if err != nil {
			return fmt.Errorf("registration failed: %s", s.sessions.Snapshot().Err)
		}
		if resp.Message != "" {
			fmt.Println(resp.Message)
		} else {
			fmt.Println("Account created. Check your inbox to verify the email address.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(registerCmd)
}
