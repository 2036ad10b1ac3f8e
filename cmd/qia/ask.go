package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/nadzzz/qia/internal/config"
	"github.com/nadzzz/qia/internal/message"
	"github.com/nadzzz/qia/internal/task"
	grpctransport "github.com/nadzzz/qia/internal/transport/grpc"
)

func newAskCmd(configFile *string) *cobra.Command {
	var (
		user    string
		remote  string
		token   string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ask [command text]",
		Short: "Run one typed command and print the result envelope",
		Long: "Runs the command in-process with the configured backends, or against a " +
			"running daemon when --remote names its gRPC address.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			text := strings.Join(args, " ")

			var (
				env *message.Envelope
				err error
			)
			if remote != "" {
				env, err = askRemote(ctx, remote, token, text)
			} else {
				env, err = askLocal(ctx, *configFile, task.UserID(user), text)
			}
			if err != nil {
				return err
			}
			return printEnvelope(cmd.OutOrStdout(), env)
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "cli", "user identity for in-process commands")
	cmd.Flags().StringVar(&remote, "remote", "", "gRPC address of a running daemon (e.g. localhost:50051)")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for --remote")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	return cmd
}

func askLocal(ctx context.Context, configFile string, user task.UserID, text string) (*message.Envelope, error) {
	if user == "" {
		return nil, errors.New("--user must not be empty")
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	config.SetupLogging(config.LoggingConfig{Level: "error", Format: cfg.Logging.Format})

	a, err := build(cfg)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	env := message.NewEnvelope(a.orch.Handle(ctx, task.Command{User: user, Text: text}))
	return &env, nil
}

func askRemote(ctx context.Context, addr, token, text string) (*message.Envelope, error) {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer cc.Close()

	if token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	}
	env, err := grpctransport.NewClient(cc).HandleCommand(ctx, &message.CommandRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("remote command: %w", err)
	}
	return env, nil
}

func printEnvelope(w io.Writer, env *message.Envelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}
