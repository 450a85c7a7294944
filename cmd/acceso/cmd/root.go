package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dgarza/acceso/auth"
	"github.com/dgarza/acceso/client"
	"github.com/dgarza/acceso/session"
	"github.com/dgarza/acceso/token"
	"github.com/dgarza/acceso/token/bolt"
	"github.com/dgarza/acceso/token/memory"
)

var (
	serverURL string
	tokenFile string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "acceso",
	Short: "Acceso is a command-line client for the account security API",
	Long: `Command-line client for the account security API: login (with
two-step verification), registration, password recovery and account status.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	defaultServer := os.Getenv("ACCESO_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080/api"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "base URL of the API")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "path of the token database (default: user config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// sdk bundles everything a command needs, plus a cleanup hook.
type sdk struct {
	service  *auth.Service
	sessions *session.Controller
	close    func()
}

// newSDK wires the token store chain (in-memory cache in front of the
// bbolt file), the gateway and the session controller.
func newSDK() (*sdk, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	path := tokenFile
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolving config dir: %w", err)
		}
		if err := os.MkdirAll(filepath.Join(dir, "acceso"), 0700); err != nil {
			return nil, fmt.Errorf("creating config dir: %w", err)
		}
		path = filepath.Join(dir, "acceso", "tokens.db")
	}

	fileBackend, err := bolt.NewFromFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("opening token database: %w", err)
	}

	tokens, err := token.NewStore(
		[]token.Backend{memory.New(), fileBackend},
		token.WithLogger(logger),
	)
	if err != nil {
		fileBackend.Close()
		return nil, err
	}

	api, err := client.New(serverURL, tokens,
		client.WithLogger(logger),
		client.WithSessionExpiredHandler(func() {
			fmt.Fprintln(os.Stderr, "Session expired, run `acceso login` again.")
		}),
	)
	if err != nil {
		fileBackend.Close()
		return nil, err
	}

	svc := auth.NewService(api)
	return &sdk{
		service:  svc,
		sessions: session.NewController(svc, session.WithLogger(logger)),
		close:    func() { fileBackend.Close() },
	}, nil
}
