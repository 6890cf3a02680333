package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/maxpert/notifylist/admin"
	"github.com/maxpert/notifylist/cfg"
	"github.com/maxpert/notifylist/keyspace"
	"github.com/maxpert/notifylist/keyspace/redis"
	"github.com/maxpert/notifylist/notify"
	"github.com/maxpert/notifylist/notifylist"
	"github.com/maxpert/notifylist/publisher"
	_ "github.com/maxpert/notifylist/publisher/sink"
	_ "github.com/maxpert/notifylist/publisher/transformer"
	"github.com/maxpert/notifylist/server"
	"github.com/maxpert/notifylist/telemetry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const metricsInterval = 5 * time.Second

// backendStore is what the relay needs from a keyspace backend
type backendStore interface {
	keyspace.Store
	notify.Source
}

func main() {
	flag.Parse()

	if err := cfg.Load(*cfg.ConfigPathFlag); err != nil {
		panic(err)
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("node_id", cfg.Config.NodeID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("notifylist - keyspace notification relay")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	store, engine, err := openKeyspace()
	if err != nil {
		log.Fatal().Err(err).Str("backend", string(cfg.Config.Keyspace.Backend)).Msg("Failed to open keyspace")
		return
	}

	var pub *publisher.Registry
	if len(cfg.Config.Publisher.Sinks) > 0 {
		pub, err = publisher.NewRegistry(publisher.RegistryConfig{
			DataDir:     cfg.Config.DataDir,
			NodeID:      cfg.Config.NodeID,
			SinkConfigs: cfg.Config.Publisher.Sinks,
		})
		if err != nil {
			store.Close()
			log.Fatal().Err(err).Msg("Failed to initialize publisher")
			return
		}
	}

	moduleConfig := notifylist.Config{Source: store, Queue: store}
	if pub != nil {
		moduleConfig.Mirror = pub
	}
	module, err := notifylist.New(moduleConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create notifylist module")
		return
	}

	handlers := admin.NewAdminHandlers(module, store, cfg.Config.NodeID, string(cfg.Config.Keyspace.Backend))
	if pub != nil {
		handlers.SetPublisher(pub)
	}

	srv := server.New(server.Config{
		Address:        net.JoinHostPort(cfg.Config.Server.BindAddress, strconv.Itoa(cfg.Config.Server.Port)),
		MaxConnections: cfg.Config.Server.MaxConnections,
		IdleTimeout:    time.Duration(cfg.Config.Server.IdleTimeoutS) * time.Second,
	}, module, store, admin.NewRouter(handlers), telemetry.GetMetricsHandler())

	if engine != nil {
		engine.Start()
	}
	if pub != nil {
		if err := pub.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start publisher")
			return
		}
	}

	var keyspaceSize telemetry.StatsProvider
	if engine != nil {
		keyspaceSize = engine
	}
	collector := telemetry.NewMetricsCollector(keyspaceSize, module.Registry(), metricsInterval)
	collector.WatchLists(module.Registry(), store)
	collector.Start()

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
		return
	}

	log.Info().
		Uint64("node_id", cfg.Config.NodeID).
		Str("address", srv.Addr().String()).
		Str("backend", string(cfg.Config.Keyspace.Backend)).
		Str("data_dir", cfg.Config.DataDir).
		Int("sinks", len(cfg.Config.Publisher.Sinks)).
		Msg("Node is operational")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	srv.Stop()
	collector.Stop()
	if err := module.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close notifylist module")
	}
	if pub != nil {
		pub.Stop()
	}
	if err := store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close keyspace")
	}

	log.Info().Msg("Shutdown complete")
}

// openKeyspace opens the configured backend. engine is nil for redis.
func openKeyspace() (backendStore, *keyspace.Engine, error) {
	opts := keyspace.Options{
		SweepInterval: time.Duration(cfg.Config.Keyspace.SweepIntervalMS) * time.Millisecond,
	}

	switch cfg.Config.Keyspace.Backend {
	case cfg.BackendMemory:
		engine := keyspace.NewEngine(keyspace.NewMemoryBackend(), opts)
		return engine, engine, nil

	case cfg.BackendPebble:
		backend, err := keyspace.OpenPebbleBackend(filepath.Join(cfg.Config.DataDir, "keyspace"))
		if err != nil {
			return nil, nil, err
		}
		engine := keyspace.NewEngine(backend, opts)
		return engine, engine, nil

	case cfg.BackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := redis.Open(ctx, redis.OptionsFromConfig(cfg.Config.Redis))
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}

	return nil, nil, fmt.Errorf("unknown keyspace backend %q", cfg.Config.Keyspace.Backend)
}
