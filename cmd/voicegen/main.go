package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"voicegen/internal/pkg/voicegen/app"
	"voicegen/internal/pkg/voicegen/config"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(1)
	}
}

// execute runs the command line in args. out replaces the command's output
// streams when not nil. The log file, if any, is closed before returning.
func execute(ctx context.Context, args []string, out io.Writer) error {
	cmd, c := rootCmd()
	defer c.closeLog()
	if out != nil {
		cmd.SetOut(out)
		cmd.SetErr(out)
	}
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// cli holds what the persistent pre-run resolved for subcommands.
type cli struct {
	cfg     *config.Config
	logFile io.Closer
	prevLog zerolog.Logger
}

func rootCmd() (*cobra.Command, *cli) {
	c := &cli{}
	cmd := &cobra.Command{
		Use:           "voicegen",
		Short:         "Generate speech with Coqui, XTTS, Bark or local ONNX voice models",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.New(), cmd.Flags())
			if err != nil {
				return err
			}
			if err := c.setupLogging(cfg); err != nil {
				return err
			}
			c.cfg = cfg
			log.Debug().
				Str("clips", cfg.ClipsDir).
				Str("models", cfg.ModelsDir).
				Str("device", cfg.Device).
				Str("encoder", cfg.Encoder).
				Msg("Configuration loaded")
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.closeLog()
		},
	}
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		synthCmd(c),
		modelsCmd(c),
		tagsCmd(),
		clipsCmd(c),
		deviceCmd(c),
	)
	return cmd, c
}

func (c *cli) app() (*app.App, error) {
	return app.New(c.cfg)
}

// setupLogging applies the configured level. With a log file, events go to
// the console and, as JSON, to the file until closeLog.
func (c *cli) setupLogging(cfg *config.Config) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		c.prevLog = log.Logger
		c.logFile = f
		console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, f)).With().Timestamp().Logger()
	}

	return nil
}

// closeLog closes the log file and restores the console-only logger. It is
// safe to call more than once.
func (c *cli) closeLog() error {
	if c.logFile == nil {
		return nil
	}
	log.Logger = c.prevLog
	err := c.logFile.Close()
	c.logFile = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

func truncateText(text string, maxLen int) string {
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	return string(r[:maxLen]) + "..."
}
