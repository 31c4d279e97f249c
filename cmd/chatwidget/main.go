package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/northbeam-digital/site/backend/pkg/chatwidget"
)

type options struct {
	apiURL    string
	apiKey    string
	stateFile string
	welcome   string
	verbose   bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := options{
		apiURL:    envOr("CHAT_API_URL", "http://localhost:8080"),
		apiKey:    os.Getenv("CHAT_API_KEY"),
		stateFile: defaultStateFile(),
	}

	cmd := &cobra.Command{
		Use:          "chatwidget",
		Short:        "Talk to the Northbeam Digital assistant from a terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.apiURL, "api-url", opts.apiURL, "base URL of the chat backend")
	flags.StringVar(&opts.apiKey, "api-key", opts.apiKey, "bearer token sent to the completion endpoint")
	flags.StringVar(&opts.stateFile, "state-file", opts.stateFile, "file that keeps the chat session id between runs")
	flags.StringVar(&opts.welcome, "welcome", "", "override the greeting seeded into new conversations")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log diagnostics to stderr")
	return cmd
}

func run(ctx context.Context, opts options) error {
	logger, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var storage chatwidget.KeyValueStorage
	if opts.stateFile != "" {
		storage = chatwidget.NewFileStorage(opts.stateFile)
	}

	gateway := chatwidget.NewGateway(opts.apiURL, nil)
	if opts.apiKey != "" {
		gateway = gateway.WithAPIKey(opts.apiKey)
	}

	term := newTerminal(os.Stdin, os.Stdout, os.Stderr)
	ctrl := chatwidget.NewController(
		chatwidget.NewSessionIDStore(storage, logger),
		chatwidget.NewStoreClient(opts.apiURL, nil),
		chatwidget.NewSubscriber(opts.apiURL, logger),
		gateway,
		chatwidget.Options{
			WelcomeMessage: opts.welcome,
			Notifier:       term,
			OnChange:       term.render,
			Logger:         logger,
		},
	)
	defer ctrl.Dispose()

	term.attach(ctrl)
	return term.loop(ctx)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func defaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "northbeam-chat", "widget.json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
