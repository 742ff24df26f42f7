package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".stemforge"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for stemforge settings.
const envPrefix = "STEMFORGE"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("worker.slots", DefaultWorkerSlots)
	viperCfg.SetDefault("worker.media_dir", DefaultWorkerMediaDir)
	viperCfg.SetDefault("worker.metrics_addr", DefaultWorkerMetricsAddr)

	viperCfg.SetDefault("store.backend", DefaultStoreBackend)
	viperCfg.SetDefault("store.queue_size", DefaultStoreQueueSize)
	viperCfg.SetDefault("store.redis.addr", DefaultRedisAddr)
	viperCfg.SetDefault("store.redis.password", "")
	viperCfg.SetDefault("store.redis.db", 0)
	viperCfg.SetDefault("store.redis.prefix", DefaultRedisPrefix)
	viperCfg.SetDefault("store.sqlite.path", DefaultSQLitePath)

	viperCfg.SetDefault("contracts.path", "")

	viperCfg.SetDefault("observability.log_level", DefaultLogLevel)
	viperCfg.SetDefault("observability.environment", DefaultEnvironment)
	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.otlp_headers", "")
	viperCfg.SetDefault("observability.sample_ratio", DefaultSampleRatio)
}
