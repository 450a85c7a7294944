package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgarza/acceso/auth"
	"github.com/dgarza/acceso/twofactor"
	"github.com/dgarza/acceso/validate"
)

var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Authenticate and store the session tokens",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSDK()
		if err != nil {
			return err
		}
		defer s.close()

		reader := bufio.NewReader(os.Stdin)
		email := ""
		if len(args) == 1 {
			email = args[0]
		} else {
			fmt.Print("Email: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			email = strings.TrimSpace(line)
		}
		if res := validate.Email(email); !res.Valid {
			return fmt.Errorf("invalid email: %s", res.Err)
		}

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return err
		}

		ctx := context.Background()
		resp, err := s.sessions.Login(ctx, auth.Credentials{
			Email:    email,
			Password: string(password),
		})
		if err != nil {
			return fmt.Errorf("login failed: %s", s.sessions.Snapshot().Err)
		}

		p := resp.Flatten()
		if p.TwoFactorRequired {
			return runTwoFactor(ctx, s, email, reader)
		}

		snap := s.sessions.Snapshot()
		if !snap.IsAuthenticated {
			return errors.New("login did not establish a session")
		}
		fmt.Printf("Logged in as %s %s <%s>\n", snap.User.FirstName, snap.User.LastName, snap.User.Email)
		return nil
	},
}

// runTwoFactor drives the challenge interactively: discovery, optional
// method choice, then code entry with resend support.
func runTwoFactor(ctx context.Context, s *sdk, email string, reader *bufio.Reader) error {
	flow, err := twofactor.New(s.service, s.sessions, email)
	if err != nil {
		return err
	}
	if err := flow.Load(ctx); err != nil {
		if errors.Is(err, twofactor.ErrNoMethods) {
			return errors.New("this account requires two-step verification but has no method configured; contact support")
		}
		return fmt.Errorf("could not load verification methods: %w", err)
	}

	snap := flow.Snapshot()
	options := methodOptions(snap.AvailableMethods)
	if len(options) > 1 {
		fmt.Println("Verification methods:")
		for i, m := range options {
			marker := " "
			if m == snap.SelectedMethod {
				marker = "*"
			}
			fmt.Printf("  %s %d) %s\n", marker, i+1, methodLabel(m))
		}
		fmt.Print("Method [enter to keep]: ")
		line, _ := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			var idx int
			if _, err := fmt.Sscanf(line, "%d", &idx); err != nil || idx < 1 || idx > len(options) {
				return errors.New("invalid method selection")
			}
			if err := flow.SelectMethod(options[idx-1]); err != nil {
				return err
			}
		}
	}

	for {
		fmt.Printf("Code (%s), or 'r' to resend: ", methodLabel(flow.Snapshot().SelectedMethod))
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if strings.EqualFold(line, "r") {
			if err := flow.Resend(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "%s\n", flow.Snapshot().Message)
				continue
			}
			fmt.Println(flow.Snapshot().Notice)
			continue
		}

		err = flow.Submit(ctx, line)
		if err == nil {
			break
		}
		if errors.Is(err, twofactor.ErrInvalidCode) {
			fmt.Fprintln(os.Stderr, "The code must have 6 digits.")
			continue
		}
		fmt.Fprintf(os.Stderr, "%s\n", flow.Snapshot().Message)
	}

	snap2 := s.sessions.Snapshot()
	fmt.Printf("Logged in as %s %s <%s>\n", snap2.User.FirstName, snap2.User.LastName, snap2.User.Email)
	return nil
}

func methodOptions(m auth.AvailableMethods) []auth.Method {
	var out []auth.Method
	if m.Email {
		out = append(out, auth.MethodEmail)
	}
	if m.GoogleAuthenticator {
		out = append(out, auth.MethodGoogleAuthenticator)
	}
	if m.SMS {
		out = append(out, auth.MethodSMS)
	}
	return out
}

func methodLabel(m auth.Method) string {
	switch m {
	case auth.MethodGoogleAuthenticator:
		return "authenticator app"
	case auth.MethodEmail:
		return "email"
	case auth.MethodSMS:
		return "SMS"
	default:
		return string(m)
	}
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
