package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override campaign.yml.
const EnvPrefix = "NROY"

// Override keys. Each key is read from the flag of the same name or from
// NROY_<KEY> with dashes replaced by underscores.
const (
	KeyStorage     = "storage"
	KeyStoragePath = "storage-path"
	KeyRedisURL    = "redis-url"
	KeyMetricsAddr = "metrics-addr"
	KeyConcurrency = "concurrency"
	KeyLogLevel    = "log-level"
	KeyLogFormat   = "log-format"
)

// Overrides layers environment variables and command-line flags over the
// values in campaign.yml. Flags win over the environment.
type Overrides struct {
	v *viper.Viper
}

// NewOverrides creates an override set reading NROY_* variables.
func NewOverrides() *Overrides {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")

	return &Overrides{v: v}
}

// BindFlags binds the flags whose names match an override key.
func (o *Overrides) BindFlags(flags *pflag.FlagSet) error {
	for _, key := range []string{KeyStorage, KeyStoragePath, KeyRedisURL, KeyMetricsAddr, KeyConcurrency, KeyLogLevel, KeyLogFormat} {
		f := flags.Lookup(key)
		if f == nil {
			continue
		}
		if err := o.v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// LogLevel returns the configured log level.
func (o *Overrides) LogLevel() string {
	if o == nil {
		return "info"
	}
	return o.v.GetString(KeyLogLevel)
}

// LogFormat returns the configured log format.
func (o *Overrides) LogFormat() string {
	if o == nil {
		return "console"
	}
	return o.v.GetString(KeyLogFormat)
}

// Apply copies every set override into cfg. A nil Overrides is a no-op.
func (o *Overrides) Apply(cfg *CampaignConfig) {
	if o == nil {
		return
	}

	if s := o.v.GetString(KeyStorage); s != "" {
		cfg.Storage.Backend = s
	}
	if s := o.v.GetString(KeyStoragePath); s != "" {
		cfg.Storage.Path = s
	}
	if s := o.v.GetString(KeyRedisURL); s != "" {
		cfg.Storage.RedisURL = s
	}
	if s := o.v.GetString(KeyMetricsAddr); s != "" {
		cfg.MetricsAddr = s
	}
	if n := o.v.GetInt(KeyConcurrency); n > 0 {
		cfg.Simulator.Concurrency = n
	}
}
