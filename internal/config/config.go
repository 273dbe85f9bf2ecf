// Package config loads engine configuration from defaults, an optional YAML
// file, and FIELDSYNC_* environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/gardenproof/fieldsync/internal/errors"
)

// Config defines engine configuration.
type Config struct {
	DataDir string        `yaml:"data_dir"`
	Server  ServerConfig  `yaml:"server"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Network NetworkConfig `yaml:"network"`
	Sync    SyncConfig    `yaml:"sync"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type OracleConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

type NetworkConfig struct {
	ProbeURL      string        `yaml:"probe_url"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Config{
		DataDir: "./data",
		Server: ServerConfig{
			Addr: "127.0.0.1:8090",
		},
		Oracle: OracleConfig{
			Timeout: 10 * time.Second,
		},
		Network: NetworkConfig{
			ProbeInterval: 30 * time.Second,
		},
		Sync: SyncConfig{
			Interval: 15 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	if path := os.Getenv("FIELDSYNC_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if dataDir := os.Getenv("FIELDSYNC_DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if addr := os.Getenv("FIELDSYNC_SERVER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if endpoint := os.Getenv("FIELDSYNC_ORACLE_ENDPOINT"); endpoint != "" {
		cfg.Oracle.Endpoint = endpoint
	}
	if probeURL := os.Getenv("FIELDSYNC_PROBE_URL"); probeURL != "" {
		cfg.Network.ProbeURL = probeURL
	}
	if interval := os.Getenv("FIELDSYNC_SYNC_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return Config{}, apperrors.Wrap(apperrors.ErrConfigInvalid,
				"invalid FIELDSYNC_SYNC_INTERVAL", err)
		}
		cfg.Sync.Interval = d
	}
	if level := os.Getenv("FIELDSYNC_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConfigInvalid,
			fmt.Sprintf("read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return apperrors.Wrap(apperrors.ErrConfigInvalid,
			fmt.Sprintf("parse config file %s", path), err)
	}
	return nil
}
