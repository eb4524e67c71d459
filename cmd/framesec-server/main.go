package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lorawan-framesec/internal/api"
	"github.com/lorawan-server/lorawan-framesec/internal/config"
	"github.com/lorawan-server/lorawan-framesec/internal/framesec"
	"github.com/lorawan-server/lorawan-framesec/internal/keystore"
	"github.com/lorawan-server/lorawan-framesec/internal/server"
)

func main() {
	var configPath = flag.String("config", "config/framesec.yml", "Configuration file path")
	var validateOnly = flag.Bool("validate", false, "Validate the configuration and exit")
	var showConfig = flag.Bool("show-config", false, "Print the configuration summary and exit")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Failed to load configuration")
	}

	setupLogging(&cfg.Log)

	if *showConfig {
		cfg.PrintConfigSummary()
		return
	}

	store, err := keystore.New(&cfg.KeyStore)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.KeyStore.Backend).Msg("Failed to open key store")
	}
	defer store.Close()

	if *validateOnly {
		cfg.PrintConfigSummary()
		fmt.Println("Configuration is valid")
		return
	}

	log.Info().
		Str("config_path", *configPath).
		Str("keystore", cfg.KeyStore.Backend).
		Msg("Frame security server starting")

	service := framesec.NewService(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	apiServer := api.NewRESTServer(cfg, service)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.ListenAndServe(cfg.API.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("REST API server failed")
			cancel()
		}
	}()

	if cfg.NATS.URL != "" {
		nc, err := connectNATS(&cfg.NATS)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
		}
		defer nc.Close()

		responder := server.NewNATSResponder(nc, service, &cfg.NATS)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := responder.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("NATS responder failed")
				cancel()
			}
		}()
	} else {
		log.Info().Msg("NATS not configured, serving REST only")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
	}

	wg.Wait()
	log.Info().Msg("Frame security server stopped")
}

func setupLogging(cfg *config.LogConfig) {
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func connectNATS(cfg *config.NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("lorawan-framesec"),
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			ev := log.Error().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("NATS error")
		}),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("Connected to NATS")
	return nc, nil
}
