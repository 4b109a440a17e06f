// taskflow-watch is a terminal client that shows a live board of the
// tasks visible to the signed-in user.
//
// The access token is kept in the system keyring per server, so later
// runs resume the session without asking for the password again.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/nhle/taskflow/internal/app"
	"github.com/nhle/taskflow/internal/client"
	"github.com/nhle/taskflow/internal/credential"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		server  string
		login   string
		logFile string
		logout  bool
	)
	flagSet := pflag.NewFlagSet("taskflow-watch", pflag.ContinueOnError)
	flagSet.StringVar(&server, "server", envOr("TASKFLOW_SERVER", "http://localhost:8000"), "TaskFlow server URL")
	flagSet.StringVar(&login, "login", "", "email or username to prefill on the sign-in form")
	flagSet.StringVar(&logFile, "log-file", "", "append diagnostic logs to this file")
	flagSet.BoolVar(&logout, "logout", false, "forget the stored token for --server and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	server = strings.TrimRight(server, "/")
	tokens := credential.WatchTokens{}
	if logout {
		return tokens.Delete(server)
	}

	logger, closeLog, err := openLog(logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	model := app.New(app.Options{
		Server: server,
		Login:  login,
		Connect: func(server, token string) app.API {
			return client.New(server, token)
		},
		Tokens: tokens,
		Logger: logger,
	})

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("running watch client: %w", err)
	}
	return nil
}

// openLog returns a logger writing to path, or a discarding logger when
// path is empty. The terminal belongs to the UI.
func openLog(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { _ = f.Close() }, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
