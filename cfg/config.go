package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// KeyspaceBackend selects where keys and destination lists live
type KeyspaceBackend string

const (
	BackendMemory KeyspaceBackend = "memory" // Embedded engine, in-memory only
	BackendPebble KeyspaceBackend = "pebble" // Embedded engine, persisted under data_dir
	BackendRedis  KeyspaceBackend = "redis"  // External Redis server
)

// ServerConfiguration controls the multiplexed listener (command protocol + HTTP)
type ServerConfiguration struct {
	BindAddress    string `toml:"bind_address"`
	Port           int    `toml:"port"`
	MaxConnections int    `toml:"max_connections"`
	IdleTimeoutS   int    `toml:"idle_timeout_seconds"` // 0 = never time out idle clients
}

// KeyspaceConfiguration controls the embedded storage engine
type KeyspaceConfiguration struct {
	Backend         KeyspaceBackend `toml:"backend"`
	SweepIntervalMS int             `toml:"sweep_interval_ms"` // Active expiry cycle
}

// RedisConfiguration for the external Redis backend
type RedisConfiguration struct {
	Address  string `toml:"address"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	// ConfigureNotifications runs CONFIG SET notify-keyspace-events on activation
	ConfigureNotifications bool `toml:"configure_notifications"`
	PushTimeoutMS          int  `toml:"push_timeout_ms"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// AuthConfiguration protects the HTTP API with a shared secret
type AuthConfiguration struct {
	Secret string `toml:"secret"`
}

// SinkConfiguration describes one broker that mirrors dispatch records
type SinkConfiguration struct {
	Name               string   `toml:"name"`
	Type               string   `toml:"type"`   // "kafka" or "nats"
	Format             string   `toml:"format"` // "raw" or "envelope"
	TopicPrefix        string   `toml:"topic_prefix"`
	FilterDestinations []string `toml:"filter_destinations"` // Glob patterns, empty = all
	Brokers            []string `toml:"brokers"`
	NatsURL            string   `toml:"nats_url"`
	BatchSize          int      `toml:"batch_size"`
	PollIntervalMS     int      `toml:"poll_interval_ms"`
	RetryInitialMS     int      `toml:"retry_initial_ms"`
	RetryMaxMS         int      `toml:"retry_max_ms"`
	RetryMultiplier    float64  `toml:"retry_multiplier"`
}

// PublisherConfiguration lists the broker mirrors
type PublisherConfiguration struct {
	Sinks []SinkConfiguration `toml:"sinks"`
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID  uint64 `toml:"node_id"`
	DataDir string `toml:"data_dir"`

	Server     ServerConfiguration     `toml:"server"`
	Keyspace   KeyspaceConfiguration   `toml:"keyspace"`
	Redis      RedisConfiguration      `toml:"redis"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	Auth       AuthConfiguration       `toml:"auth"`
	Publisher  PublisherConfiguration  `toml:"publisher"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
	PortFlag       = flag.Int("port", 0, "Listen port (overrides config)")
	BackendFlag    = flag.String("backend", "", "Keyspace backend: memory, pebble or redis (overrides config)")
)

// Default configuration
var Config = Default()

// Default returns a fresh configuration holding the built-in defaults
func Default() *Configuration {
	return &Configuration{
		NodeID:  0, // Auto-generate
		DataDir: "./notifylist-data",

		Server: ServerConfiguration{
			BindAddress:    "0.0.0.0",
			Port:           6380,
			MaxConnections: 1000,
		},

		Keyspace: KeyspaceConfiguration{
			Backend:         BackendMemory,
			SweepIntervalMS: 100,
		},

		Redis: RedisConfiguration{
			Address:                "127.0.0.1:6379",
			DB:                     0,
			ConfigureNotifications: true,
			PushTimeoutMS:          1000,
		},

		Logging: LoggingConfiguration{
			Verbose: false,
			Format:  "console",
		},

		Prometheus: PrometheusConfiguration{
			Enabled: true,
		},
	}
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}
	if *PortFlag != 0 {
		Config.Server.Port = *PortFlag
	}
	if *BackendFlag != "" {
		Config.Keyspace.Backend = KeyspaceBackend(*BackendFlag)
	}

	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}
		log.Info().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
	}

	if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}

// generateNodeID creates a unique node ID based on machine ID
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("notifylist")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Server.Port < 1 || Config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", Config.Server.Port)
	}

	if Config.Server.MaxConnections < 1 {
		return fmt.Errorf("server max connections must be >= 1")
	}

	if Config.Server.IdleTimeoutS < 0 {
		return fmt.Errorf("server idle timeout must be >= 0")
	}

	switch Config.Keyspace.Backend {
	case BackendMemory, BackendPebble:
		if Config.Keyspace.SweepIntervalMS < 1 {
			return fmt.Errorf("keyspace sweep interval must be >= 1ms")
		}
	case BackendRedis:
		if Config.Redis.Address == "" {
			return fmt.Errorf("redis backend requires redis.address")
		}
		if Config.Redis.DB < 0 {
			return fmt.Errorf("invalid redis db: %d", Config.Redis.DB)
		}
		if Config.Redis.PushTimeoutMS < 1 {
			return fmt.Errorf("redis push timeout must be >= 1ms")
		}
	default:
		return fmt.Errorf("invalid keyspace backend: %q", Config.Keyspace.Backend)
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %q", Config.Logging.Format)
	}

	seen := make(map[string]bool, len(Config.Publisher.Sinks))
	for i, sink := range Config.Publisher.Sinks {
		if sink.Name == "" {
			return fmt.Errorf("publisher sink %d: name is required", i)
		}
		if seen[sink.Name] {
			return fmt.Errorf("publisher sink %q: duplicate name", sink.Name)
		}
		seen[sink.Name] = true

		switch sink.Type {
		case "kafka":
			if len(sink.Brokers) == 0 {
				return fmt.Errorf("publisher sink %q: kafka requires brokers", sink.Name)
			}
		case "nats":
			if sink.NatsURL == "" {
				return fmt.Errorf("publisher sink %q: nats requires nats_url", sink.Name)
			}
		default:
			return fmt.Errorf("publisher sink %q: unknown type %q", sink.Name, sink.Type)
		}

		if sink.Format == "" {
			Config.Publisher.Sinks[i].Format = "raw"
		}
	}

	return nil
}

// IsAuthEnabled reports whether the HTTP API requires a shared secret
func IsAuthEnabled() bool {
	return Config.Auth.Secret != ""
}
