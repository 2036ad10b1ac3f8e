package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nadzzz/qia/internal/auth"
	"github.com/nadzzz/qia/internal/config"
	"github.com/nadzzz/qia/internal/health"
	"github.com/nadzzz/qia/internal/session"
	"github.com/nadzzz/qia/internal/transport"
	grpctransport "github.com/nadzzz/qia/internal/transport/grpc"
	httptransport "github.com/nadzzz/qia/internal/transport/http"
	mqtttransport "github.com/nadzzz/qia/internal/transport/mqtt"
)

func newServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the qia daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configFile)
		},
	}
}

func runServe(ctx context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	config.SetupLogging(cfg.Logging)
	slog.Info("qia starting", "version", version)

	a, err := build(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("close error", "error", err)
		}
	}()

	sessions := session.NewManager(a.orch)
	transports := newTransports(cfg, auth.New(cfg.Auth.TokenMap()), sessions)
	if len(transports) == 0 {
		return errors.New("no transports enabled, enable at least one in config")
	}

	healthServer := health.New(cfg.Server.HealthPort)
	healthServer.AddCheck("store", a.contexts.Ping)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return healthServer.ListenAndServe(gctx) })
	g.Go(func() error { return a.contexts.Run(gctx) })
	for _, t := range transports {
		g.Go(func() error {
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(gctx, a.orch); err != nil {
				return fmt.Errorf("%s transport: %w", t.Name(), err)
			}
			return nil
		})
	}

	healthServer.SetReady(true)
	slog.Info("qia ready",
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort)

	<-gctx.Done()
	healthServer.SetReady(false)
	slog.Info("shutdown signal received, draining...")

	err = g.Wait()
	slog.Info("qia stopped")
	return err
}

func newTransports(cfg *config.Config, authn auth.Authenticator, sessions *session.Manager) []transport.Transport {
	var transports []transport.Transport
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(httptransport.Options{
			Port:           cfg.Transports.HTTP.Port,
			MaxUploadBytes: cfg.Transports.HTTP.MaxUploadBytes,
			SendBuffer:     cfg.Transports.HTTP.SendBuffer,
			Auth:           authn,
			Sessions:       sessions,
		}))
	}
	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(grpctransport.Options{
			Port: cfg.Transports.GRPC.Port,
			Auth: authn,
		}))
	}
	if cfg.Transports.MQTT.Enabled {
		m := cfg.Transports.MQTT
		var mqttAuth auth.Authenticator
		if len(cfg.Auth.Tokens) > 0 {
			mqttAuth = authn
		}
		transports = append(transports, mqtttransport.New(mqtttransport.Options{
			Broker:        m.Broker,
			ClientID:      m.ClientID,
			Username:      m.Username,
			Password:      m.Password,
			CommandTopic:  m.CommandTopic,
			ResponseTopic: m.ResponseTopic,
			Auth:          mqttAuth,
			Sessions:      sessions,
		}))
	}
	return transports
}
