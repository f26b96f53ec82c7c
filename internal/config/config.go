package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the feed engine.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Engine      EngineConfig      `yaml:"engine"`
	Broadcast   BroadcastConfig   `yaml:"broadcast"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Logging     LoggingConfig     `yaml:"logging"`
	Definitions DefinitionsConfig `yaml:"definitions"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// EngineConfig groups the pipeline's retention and scheduling tunables.
type EngineConfig struct {
	BufferRetention    time.Duration `yaml:"bufferRetention"`
	EvictionInterval   time.Duration `yaml:"evictionInterval"`
	SweepInterval      time.Duration `yaml:"sweepInterval"`
	SweepLookback      time.Duration `yaml:"sweepLookback"`
	SuppressionWindow  time.Duration `yaml:"suppressionWindow"`
	FeedErrorThreshold int           `yaml:"feedErrorThreshold"`
}

// BroadcastConfig controls subscriber fan-out, including the optional NATS bridge.
type BroadcastConfig struct {
	SubscriberQueue int           `yaml:"subscriberQueue"`
	NATSEnabled     bool          `yaml:"natsEnabled"`
	NATSURL         string        `yaml:"natsURL"`
	NATSSubject     string        `yaml:"natsSubject"`
	NATSTimeout     time.Duration `yaml:"natsTimeout"`
}

// DispatchConfig controls action delivery. With no webhook endpoint, actions
// are logged instead of posted.
type DispatchConfig struct {
	WebhookEndpoint string        `yaml:"webhookEndpoint"`
	Timeout         time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefinitionsConfig points at the feed and rule definition file.
type DefinitionsConfig struct {
	Path string `yaml:"path"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("APEX_FEEDS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Engine.FeedErrorThreshold <= 0 {
		return nil, fmt.Errorf("engine.feedErrorThreshold must be positive")
	}
	if cfg.Engine.BufferRetention <= 0 {
		return nil, fmt.Errorf("engine.bufferRetention must be positive")
	}

	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8090",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Engine: EngineConfig{
			BufferRetention:    2 * time.Hour,
			EvictionInterval:   5 * time.Minute,
			SweepInterval:      time.Minute,
			SweepLookback:      time.Hour,
			SuppressionWindow:  5 * time.Minute,
			FeedErrorThreshold: 5,
		},
		Broadcast: BroadcastConfig{
			SubscriberQueue: 64,
			NATSSubject:     "apex.intelligence",
			NATSTimeout:     2 * time.Second,
		},
		Dispatch:    DispatchConfig{Timeout: 5 * time.Second},
		Logging:     LoggingConfig{Level: "info", JSON: false},
		Definitions: DefinitionsConfig{Path: "configs/default.yaml"},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APEX_FEEDS_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("APEX_FEEDS_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("APEX_FEEDS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("APEX_FEEDS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("APEX_FEEDS_DEFINITIONS_PATH"); v != "" {
		cfg.Definitions.Path = v
	}
	if v := os.Getenv("APEX_FEEDS_WEBHOOK_ENDPOINT"); v != "" {
		cfg.Dispatch.WebhookEndpoint = v
	}
	if v := os.Getenv("APEX_FEEDS_NATS_URL"); v != "" {
		cfg.Broadcast.NATSURL = v
	}
	if v := os.Getenv("APEX_FEEDS_NATS_ENABLED"); v != "" {
		cfg.Broadcast.NATSEnabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("APEX_FEEDS_NATS_SUBJECT"); v != "" {
		cfg.Broadcast.NATSSubject = v
	}
	if v := os.Getenv("APEX_FEEDS_BUFFER_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.BufferRetention = d
		}
	}
	if v := os.Getenv("APEX_FEEDS_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.SweepInterval = d
		}
	}
	if v := os.Getenv("APEX_FEEDS_SUPPRESSION_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.SuppressionWindow = d
		}
	}
	if v := os.Getenv("APEX_FEEDS_ERROR_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.FeedErrorThreshold = n
		}
	}
}
