// Package main implements mountctl, the CLI surface of the host binary
// (spec.md §6): "run" launches the supervisor and reconciler, the remaining
// subcommands are operator/test entry points into the same internal
// packages a GUI frontend would drive through the view-model bus.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/haio/mountctl/internal/haioerr"
	"github.com/haio/mountctl/version"
)

// Exit codes (spec.md §6).
const (
	exitOK                  = 0
	exitConfigError         = 2
	exitMountAgentMissing   = 3
	exitElevationDenied     = 4
)

var rootCmd = &cobra.Command{
	Use:     "mountctl",
	Short:   "control plane for Haio object-storage mounts",
	Version: version.FullVersion(),
}

func main() {
	setupLogger()

	// "run" is the default subcommand (spec.md §6): bare invocation with no
	// verb and no --help/--version flag starts the control plane.
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "run")
	}

	err := rootCmd.ExecuteContext(signalContext())
	if err != nil {
		log.Error().Err(err).Msg("exit")
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	he, ok := err.(*haioerr.Error)
	if !ok {
		return exitConfigError
	}
	switch he.Kind {
	case haioerr.KindAgentNotFound:
		return exitMountAgentMissing
	case haioerr.KindPersistUserCancelled, haioerr.KindPersistElevationFailed:
		return exitElevationDenied
	default:
		return exitConfigError
	}
}

func signalContext() context.Context {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-sigs
		log.Error().Str("signal", sig.String()).Msg("caught signal, shutting down")
		cancel()
		time.Sleep(2 * time.Second)
		log.Error().Msg("did not shut down gracefully, exit")
		os.Exit(1)
	}()
	return ctx
}

func setupLogger() {
	log.Logger = log.Level(zerolog.InfoLevel)
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if lvl, err := zerolog.ParseLevel(raw); err == nil {
			log.Logger = log.Logger.Level(lvl)
		}
	}
	zerolog.DefaultContextLogger = &log.Logger
}
