// Package config loads process configuration from flags, OPSORCH_* environment variables
// and an optional YAML file.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/opsorch/opsorch-multiquery/dispatch"
	"github.com/opsorch/opsorch-multiquery/logging"
	"github.com/opsorch/opsorch-multiquery/schema"
)

// Config is the process configuration shared by every command.
type Config struct {
	ConfigFile string

	Addr        string
	CORSOrigin  string
	BearerToken string
	TLSCertFile string
	TLSKeyFile  string

	EnvironmentsFile   string
	DefaultTimeout     time.Duration
	DefaultParallelism int
	DefaultMode        string
	DefaultAggregate   string

	Executor       string
	ExecutorPlugin string
	ExecutorConfig string // JSON object handed to the executor constructor

	LogLevel  zapcore.Level
	LogFormat string
}

// Options describes every setting of cfg with its flag name and default.
func Options(cfg *Config) []Opt {
	d := dispatch.DefaultDefaults()
	return []Opt{
		{DestP: &cfg.ConfigFile, Flag: "config", Desc: "path to a YAML config file"},
		{DestP: &cfg.Addr, Flag: "addr", Default: ":8080", Desc: "HTTP listen address"},
		{DestP: &cfg.CORSOrigin, Flag: "cors-origin", Default: "*", Desc: "value of Access-Control-Allow-Origin"},
		{DestP: &cfg.BearerToken, Flag: "bearer-token", Desc: "require this bearer token on every request"},
		{DestP: &cfg.TLSCertFile, Flag: "tls-cert-file", Desc: "TLS certificate file"},
		{DestP: &cfg.TLSKeyFile, Flag: "tls-key-file", Desc: "TLS key file"},
		{DestP: &cfg.EnvironmentsFile, Flag: "environments-file", Desc: "YAML or JSON environment list; LOGAN_* variables are used when empty"},
		{DestP: &cfg.DefaultTimeout, Flag: "default-timeout", Default: d.PerCallTimeout, Desc: "per-environment call timeout"},
		{DestP: &cfg.DefaultParallelism, Flag: "default-parallelism", Default: d.ParallelismLimit, Desc: "concurrent calls in parallel mode"},
		{DestP: &cfg.DefaultMode, Flag: "default-mode", Default: string(d.Mode), Desc: "dispatch mode when a request names none (single, parallel, sequential)"},
		{DestP: &cfg.DefaultAggregate, Flag: "default-aggregate", Default: string(d.Aggregate), Desc: "aggregation when a request names none (merge, group)"},
		{DestP: &cfg.Executor, Flag: "executor", Default: "plugin", Desc: "registered executor provider name"},
		{DestP: &cfg.ExecutorPlugin, Flag: "executor-plugin", Desc: "path to an executor plugin binary"},
		{DestP: &cfg.ExecutorConfig, Flag: "executor-config", Desc: "executor configuration as a JSON object"},
		{DestP: &cfg.LogLevel, Flag: "log-level", Default: zapcore.InfoLevel, Desc: "log level (debug, info, warn, error)"},
		{DestP: &cfg.LogFormat, Flag: "log-format", Default: "json", Desc: "log format (json, console)"},
	}
}

// Loader binds a Config to a flag set and resolves it after parsing.
type Loader struct {
	v    *viper.Viper
	opts []Opt
	cfg  *Config
}

// NewLoader registers the config flags on fs.
func NewLoader(fs *pflag.FlagSet) (*Loader, *Config, error) {
	cfg := &Config{}
	l := &Loader{v: NewViper(), opts: Options(cfg), cfg: cfg}
	if err := BindOptions(l.v, fs, l.opts); err != nil {
		return nil, nil, err
	}
	return l, cfg, nil
}

// Load resolves every option, reading the config file first when one is named, and validates the result.
func (l *Loader) Load() (*Config, error) {
	if path := l.v.GetString("config"); path != "" {
		l.v.SetConfigFile(path)
		l.v.SetConfigType("yaml")
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}
	if err := Resolve(l.v, l.opts); err != nil {
		return nil, err
	}
	if err := l.cfg.Validate(); err != nil {
		return nil, err
	}
	return l.cfg, nil
}

// Validate checks value ranges and pairings.
func (c *Config) Validate() error {
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("both OPSORCH_TLS_CERT_FILE and OPSORCH_TLS_KEY_FILE must be set together")
	}
	if c.DefaultTimeout <= 0 {
		return fmt.Errorf("default-timeout must be positive, got %s", c.DefaultTimeout)
	}
	if c.DefaultParallelism < 1 {
		return fmt.Errorf("default-parallelism must be at least 1, got %d", c.DefaultParallelism)
	}
	if !schema.Mode(c.DefaultMode).Valid() {
		return fmt.Errorf("unknown default-mode %q", c.DefaultMode)
	}
	if !schema.Aggregation(c.DefaultAggregate).Valid() {
		return fmt.Errorf("unknown default-aggregate %q", c.DefaultAggregate)
	}
	if _, err := c.ExecutorSettings(); err != nil {
		return err
	}
	return nil
}

// DispatchDefaults returns the request defaults for the dispatcher.
func (c *Config) DispatchDefaults() dispatch.Defaults {
	return dispatch.Defaults{
		PerCallTimeout:   c.DefaultTimeout,
		ParallelismLimit: c.DefaultParallelism,
		Mode:             schema.Mode(c.DefaultMode),
		Aggregate:        schema.Aggregation(c.DefaultAggregate),
	}
}

// ExecutorSettings builds the executor constructor config. For the plugin executor the
// decoded ExecutorConfig is handed to the plugin under "config", next to its "path".
func (c *Config) ExecutorSettings() (map[string]any, error) {
	decoded := map[string]any{}
	if raw := strings.TrimSpace(c.ExecutorConfig); raw != "" {
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, fmt.Errorf("invalid executor-config: %w", err)
		}
	}
	if c.Executor != "plugin" {
		return decoded, nil
	}
	return map[string]any{"path": c.ExecutorPlugin, "config": decoded}, nil
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	return logging.Config{Format: c.LogFormat, Level: c.LogLevel}
}
