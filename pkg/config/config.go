// Package config loads process configuration from an optional YAML file,
// an optional .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Port string `yaml:"port" validate:"required,numeric"`
	// CORSOrigin is "*" or a comma separated list of allowed origins.
	CORSOrigin   string        `yaml:"cors_origin" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`
	// CompressMinSize is the smallest response body that gets gzipped.
	CompressMinSize int `yaml:"compress_min_size" validate:"gte=0"`
}

// Neo4jConfig locates the graph store.
type Neo4jConfig struct {
	URL      string `yaml:"url" validate:"required,uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// NATSConfig locates the message bus. An empty URL disables it.
type NATSConfig struct {
	URL string `yaml:"url" validate:"omitempty,uri"`
	// UpdateTimeout bounds one model update requested over the bus.
	UpdateTimeout time.Duration `yaml:"update_timeout" validate:"gte=0"`
}

// SnapshotConfig selects where model snapshots live.
type SnapshotConfig struct {
	Backend string `yaml:"backend" validate:"oneof=fs sqlite"`
	// Path is the root directory (fs) or the database file (sqlite).
	Path string `yaml:"path" validate:"required"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	// File, when set, also writes logs to a rotated file.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

// GraphConfig tunes the graph store.
type GraphConfig struct {
	Languages []string `yaml:"languages" validate:"dive,required,alphanum"`
	BatchSize int      `yaml:"batch_size" validate:"gte=0"`
}

// AgentConfig describes one GTFS-backed agent type.
type AgentConfig struct {
	AgentType    string        `yaml:"agent_type" validate:"required,excludesall=/\\. "`
	Sources      []string      `yaml:"sources" validate:"required,min=1,dive,required"`
	Language     string        `yaml:"language" validate:"required"`
	RequestDelay time.Duration `yaml:"request_delay" validate:"gte=0"`
	Attempts     int           `yaml:"attempts" validate:"gte=0"`
}

// Config is the root configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Neo4j    Neo4jConfig    `yaml:"neo4j"`
	NATS     NATSConfig     `yaml:"nats"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Log      LogConfig      `yaml:"log"`
	Graph    GraphConfig    `yaml:"graph"`
	Agents   []AgentConfig  `yaml:"agents" validate:"dive"`
}

// Defaults returns the configuration used for anything left unset.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:            "8080",
			CORSOrigin:      "*",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			CompressMinSize: 1024,
		},
		Neo4j: Neo4jConfig{
			URL:      "neo4j://localhost:7687",
			User:     "neo4j",
			Password: "password",
		},
		NATS: NATSConfig{UpdateTimeout: 30 * time.Minute},
		Snapshot: SnapshotConfig{
			Backend: "fs",
			Path:    "data/snapshots",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 7,
			MaxAgeDays: 7,
		},
		Graph: GraphConfig{
			Languages: []string{"ua", "ru", "en"},
			BatchSize: 500,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then .env, then the environment. The result is
// validated.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTP.Port = envOr("PORT", cfg.HTTP.Port)
	cfg.HTTP.CORSOrigin = envOr("CORS_ORIGIN", cfg.HTTP.CORSOrigin)
	cfg.Neo4j.URL = envOr("NEO4J_URL", cfg.Neo4j.URL)
	cfg.Neo4j.User = envOr("NEO4J_USER", cfg.Neo4j.User)
	cfg.Neo4j.Password = envOr("NEO4J_PASS", cfg.Neo4j.Password)
	cfg.Neo4j.Database = envOr("NEO4J_DATABASE", cfg.Neo4j.Database)
	cfg.NATS.URL = envOr("NATS_URL", cfg.NATS.URL)
	cfg.Snapshot.Backend = envOr("SNAPSHOT_BACKEND", cfg.Snapshot.Backend)
	cfg.Snapshot.Path = envOr("SNAPSHOT_PATH", cfg.Snapshot.Path)
	cfg.Log.Level = strings.ToLower(envOr("LOG_LEVEL", cfg.Log.Level))
	cfg.Log.File = envOr("LOG_FILE", cfg.Log.File)
	if v := os.Getenv("GRAPH_LANGUAGES"); v != "" {
		cfg.Graph.Languages = strings.Split(v, ",")
	}
	if v, err := strconv.Atoi(os.Getenv("GRAPH_BATCH_SIZE")); err == nil {
		cfg.Graph.BatchSize = v
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
