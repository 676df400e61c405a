package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Storage backends accepted by the daemon.
const (
	StorageLevelDB = "leveldb"
	StorageBolt    = "bolt"
	StorageMemory  = "memory"
)

type Config struct {
	Env         string `toml:"Env" yaml:"env"`
	DataDir     string `toml:"DataDir" yaml:"data_dir"`
	Storage     string `toml:"Storage" yaml:"storage"`
	GenesisFile string `toml:"GenesisFile" yaml:"genesis_file"`

	TokenSymbol  string `toml:"TokenSymbol" yaml:"token_symbol"`
	PointsSymbol string `toml:"PointsSymbol" yaml:"points_symbol"`

	RPC       RPCConfig       `toml:"rpc" yaml:"rpc"`
	Log       LogConfig       `toml:"log" yaml:"log"`
	Archive   ArchiveConfig   `toml:"archive" yaml:"archive"`
	Telemetry TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
}

type RPCConfig struct {
	Address string `toml:"Address" yaml:"address"`
	// RateLimit is the sustained requests per second allowed per client.
	RateLimit       float64 `toml:"RateLimit" yaml:"rate_limit"`
	Burst           int     `toml:"Burst" yaml:"burst"`
	ReadTimeoutSecs int     `toml:"ReadTimeout" yaml:"read_timeout"`
	MaxPageSize     int     `toml:"MaxPageSize" yaml:"max_page_size"`
	EnableMetrics   bool    `toml:"EnableMetrics" yaml:"enable_metrics"`
}

type LogConfig struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// ArchiveConfig controls the SQLite event archive. An empty Path disables it.
type ArchiveConfig struct {
	Path string `toml:"Path" yaml:"path"`
}

// TelemetryConfig points the OTLP trace and metric exporters at a collector.
// An empty Endpoint disables export.
type TelemetryConfig struct {
	// Endpoint is host:port without a scheme, e.g. "otel-collector:4318".
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	// Headers is a comma separated key=value list sent with every export.
	Headers string `toml:"Headers" yaml:"headers"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Env:          "local",
		DataDir:      "./predictchain-data",
		Storage:      StorageLevelDB,
		TokenSymbol:  "PRED",
		PointsSymbol: "PTS",
		RPC: RPCConfig{
			Address:         ":8080",
			RateLimit:       20,
			Burst:           40,
			ReadTimeoutSecs: 10,
			MaxPageSize:     100,
			EnableMetrics:   true,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// Load loads the configuration from the given path. A missing file is
// created with defaults. Files ending in .yaml or .yml are decoded as YAML,
// everything else as TOML.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	if isYAML(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config %s: unknown key %s", path, undecoded[0])
		}
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	if c.Storage == "" {
		c.Storage = StorageLevelDB
	}
	c.TokenSymbol = strings.ToUpper(strings.TrimSpace(c.TokenSymbol))
	c.PointsSymbol = strings.ToUpper(strings.TrimSpace(c.PointsSymbol))
	c.Telemetry.Endpoint = strings.TrimSpace(c.Telemetry.Endpoint)
}

// Validate checks values the daemon cannot start without.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageLevelDB, StorageBolt:
		if strings.TrimSpace(c.DataDir) == "" {
			return fmt.Errorf("config: DataDir required for %s storage", c.Storage)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage)
	}
	if c.TokenSymbol == "" || c.PointsSymbol == "" {
		return fmt.Errorf("config: token symbols must not be empty")
	}
	if c.TokenSymbol == c.PointsSymbol {
		return fmt.Errorf("config: token and points symbols must differ")
	}
	if c.RPC.RateLimit < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("config: rpc rate limit must not be negative")
	}
	if c.RPC.RateLimit > 0 && c.RPC.Burst == 0 {
		return fmt.Errorf("config: rpc burst must be positive when rate limiting")
	}
	if c.RPC.MaxPageSize <= 0 {
		return fmt.Errorf("config: rpc max page size must be positive")
	}
	if strings.Contains(c.Telemetry.Endpoint, "://") {
		return fmt.Errorf("config: telemetry endpoint must be host:port, got %q", c.Telemetry.Endpoint)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}
