// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"db-updater/internal/domain"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port               string `toml:"port"`
	DatabaseDriver     string `toml:"database_driver"`
	DatabaseURL        string `toml:"database_url"`
	SourceDir          string `toml:"source_dir"`
	GoogleCloudProject string `toml:"google_cloud_project"`
	LogLevel           string `toml:"log_level"`

	OtelEnabled      bool    `toml:"otel_enabled"`
	OtelEndpoint     string  `toml:"otel_endpoint"`
	OtelInsecure     bool    `toml:"otel_insecure"`
	OtelServiceName  string  `toml:"otel_service_name"`
	OtelSamplingRate float64 `toml:"otel_sampling_rate"`

	Updates UpdatesConfig `toml:"updates"`
}

// UpdatesConfig は更新パスの設定を表す。
type UpdatesConfig struct {
	Enabled                     bool `toml:"enabled"`
	Redundancy                  bool `toml:"redundancy"`
	AllowRehash                 bool `toml:"allow_rehash"`
	ArchivedRedundancy          bool `toml:"archived_redundancy"`
	CleanDeadReferencesMaxCount int  `toml:"clean_dead_ref_max_count"`
}

// Policy は更新パスのポリシーに変換する。
func (c UpdatesConfig) Policy() domain.UpdatePolicy {
	return domain.UpdatePolicy{
		RedundancyChecks:            c.Redundancy,
		AllowRehash:                 c.AllowRehash,
		ArchivedRedundancyChecks:    c.ArchivedRedundancy,
		CleanDeadReferencesMaxCount: c.CleanDeadReferencesMaxCount,
	}
}

// Default は既定値で埋めた設定を返す。
func Default() *Config {
	policy := domain.DefaultUpdatePolicy()
	return &Config{
		Port:             "8080",
		DatabaseDriver:   "mysql",
		SourceDir:        ".",
		LogLevel:         "INFO",
		OtelServiceName:  "db-updater",
		OtelSamplingRate: 1.0,
		Updates: UpdatesConfig{
			Enabled:                     true,
			Redundancy:                  policy.RedundancyChecks,
			AllowRehash:                 policy.AllowRehash,
			ArchivedRedundancy:          policy.ArchivedRedundancyChecks,
			CleanDeadReferencesMaxCount: policy.CleanDeadReferencesMaxCount,
		},
	}
}

// Load は既定値、設定ファイル（UPDATER_CONFIG）、環境変数の順に設定を読み込む。
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("UPDATER_CONFIG"); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile はTOMLファイルの内容をcfgに上書きする。
func LoadFile(path string, cfg *Config) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DatabaseDriver = getEnv("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.SourceDir = getEnv("SOURCE_DIR", cfg.SourceDir)
	cfg.GoogleCloudProject = getEnv("GOOGLE_CLOUD_PROJECT", cfg.GoogleCloudProject)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.OtelEndpoint = getEnv("OTEL_ENDPOINT", cfg.OtelEndpoint)
	cfg.OtelServiceName = getEnv("OTEL_SERVICE_NAME", cfg.OtelServiceName)

	var err error
	if cfg.OtelEnabled, err = getEnvBool("OTEL_ENABLED", cfg.OtelEnabled); err != nil {
		return err
	}
	if cfg.OtelInsecure, err = getEnvBool("OTEL_INSECURE", cfg.OtelInsecure); err != nil {
		return err
	}
	if cfg.OtelSamplingRate, err = getEnvFloat("OTEL_SAMPLING_RATE", cfg.OtelSamplingRate); err != nil {
		return err
	}
	if cfg.Updates.Enabled, err = getEnvBool("UPDATES_ENABLED", cfg.Updates.Enabled); err != nil {
		return err
	}
	if cfg.Updates.Redundancy, err = getEnvBool("UPDATES_REDUNDANCY", cfg.Updates.Redundancy); err != nil {
		return err
	}
	if cfg.Updates.AllowRehash, err = getEnvBool("UPDATES_ALLOW_REHASH", cfg.Updates.AllowRehash); err != nil {
		return err
	}
	if cfg.Updates.ArchivedRedundancy, err = getEnvBool("UPDATES_ARCHIVED_REDUNDANCY", cfg.Updates.ArchivedRedundancy); err != nil {
		return err
	}
	if cfg.Updates.CleanDeadReferencesMaxCount, err = getEnvInt("UPDATES_CLEAN_DEAD_REF_MAX_COUNT", cfg.Updates.CleanDeadReferencesMaxCount); err != nil {
		return err
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
