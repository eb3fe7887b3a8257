package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/quotaprobe/internal/config"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
	"github.com/janekbaraniewski/quotaprobe/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app is the state shared by every subcommand, filled in before any of
// them runs.
type app struct {
	configPath string
	debug      bool
	logLevel   string
	logFormat  string

	settings config.Settings
	log      zerolog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "quotaprobe",
		Short:        "Fetch AI coding tool usage quotas from APIs, browser sessions and CLIs.",
		Version:      version.String(),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", config.SettingsPath(), "settings file")
	flags.BoolVar(&a.debug, "debug", false, "allow explicit source selection and log at debug level")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format (console or json)")

	root.AddCommand(newFetchCommand(a), newProvidersCommand(a), newSessionsCommand(a), newDetectCommand(a))
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	settings, err := config.LoadFrom(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("debug") {
		settings.Debug = a.debug
	}
	switch {
	case a.logLevel != "":
		settings.LogLevel = a.logLevel
	case settings.Debug:
		settings.LogLevel = "debug"
	}
	if a.logFormat != "" {
		settings.LogFormat = a.logFormat
	}

	a.settings = settings
	a.log = setupLogger(settings.LogLevel, settings.LogFormat, cmd.ErrOrStderr())
	a.log.Debug().Str("config", a.configPath).Str("version", version.Version).Msg("settings loaded")
	return nil
}

// runtime builds the provider runtime. A broken credentials file is
// reported and ignored.
func (a *app) runtime() (*shared.Runtime, error) {
	creds, err := config.LoadCredentials()
	if err != nil {
		a.log.Warn().Err(err).Msg("ignoring credentials file")
	}
	return shared.NewRuntime(a.settings, a.log, shared.WithCredentials(creds))
}

// setupLogger builds the root logger. Logs go to w so stdout stays
// reserved for results.
func setupLogger(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.WarnLevel
	}

	var logger zerolog.Logger
	if format == "json" {
		logger = zerolog.New(w)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"})
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}
