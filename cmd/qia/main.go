// Qia is a voice-driven command orchestrator. It turns spoken or typed
// commands into one of a fixed set of tasks, runs the matching handler and
// answers every open session of the user with a result envelope.
//
// Usage:
//
//	qia serve --config /path/to/qia.yaml
//	qia ask --user alice "turn on the kitchen light"
//	qia version
//
//	@title						qia API
//	@version					1.0
//	@description				Voice-driven command orchestrator.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/nadzzz/qia/docs"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("qia failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "qia",
		Short: "qia - voice-driven command orchestrator",
		Long:  "qia transcribes voice commands, classifies them into tasks and runs the matching handler.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configFile)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (e.g. configs/qia.yaml)")

	root.AddCommand(newServeCmd(&configFile))
	root.AddCommand(newAskCmd(&configFile))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "qia %s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			return nil
		},
	}
}
