package main

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/hedeqiang/chainprobe"
	"github.com/hedeqiang/chainprobe/storage"
)

const envPrefix = "CHAINPROBE"

// config is the merged result of defaults, config file, environment and flags.
type config struct {
	Endpoint string `mapstructure:"endpoint"`

	chainprobe.Config `mapstructure:",squash"`

	CallInterval time.Duration `mapstructure:"call_interval"`
	LogLevel     string        `mapstructure:"log_level"`
	Output       string        `mapstructure:"output"`
	MetricsAddr  string        `mapstructure:"metrics_addr"`
	SS58Prefix   uint16        `mapstructure:"ss58_prefix"`

	Storage storageConfig `mapstructure:"storage"`
}

// storageConfig addresses the storage item read by the storage command.
// There is no default item; it must be configured.
type storageConfig struct {
	Pallet        string `mapstructure:"pallet"`
	Item          string `mapstructure:"item"`
	Key           string `mapstructure:"key"`
	Hasher        string `mapstructure:"hasher"`
	MapKeyU32     string `mapstructure:"map_key_u32"`
	MapKeyAccount string `mapstructure:"map_key_account"`
	Decode        string `mapstructure:"decode"`
}

func newViper() *viper.Viper {
	v := viper.New()

	defaults := chainprobe.DefaultConfig()
	v.SetDefault("endpoint", chainprobe.DefaultEndpoint)
	v.SetDefault("timeout", defaults.RequestTimeout)
	v.SetDefault("dial_timeout", defaults.DialTimeout)
	v.SetDefault("keepalive", defaults.KeepAlive)
	v.SetDefault("dial_retries", defaults.DialRetries)
	v.SetDefault("call_interval", time.Duration(0))
	v.SetDefault("log_level", "info")
	v.SetDefault("output", outputText)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("ss58_prefix", storage.DefaultSS58Prefix)
	v.SetDefault("storage.hasher", string(storage.Twox64Concat))
	v.SetDefault("storage.decode", decodeRaw)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads the optional config file and decodes the merged settings.
func loadConfig(v *viper.Viper, file string) (config, error) {
	var cfg config
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return cfg, errors.Wrapf(err, "read config %s", file)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decode config")
	}

	switch cfg.Output {
	case outputText, outputJSON, outputYAML:
	default:
		return cfg, errors.Errorf("unknown output format %q", cfg.Output)
	}
	return cfg, nil
}
