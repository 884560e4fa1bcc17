package main

import (
	"fmt"
	"strings"

	"github.com/joeycumines/go-eventserver"
	"github.com/joeycumines/logiface"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix is the prefix of environment variables, e.g. EVENTSERVER_PORT.
const envPrefix = "EVENTSERVER"

// Config keys, also the flag names.
const (
	keyAddress        = "address"
	keyPort           = "port"
	keyReadBufferSize = "read-buffer-size"
	keyWorkers        = "workers"
	keyLogLevel       = "log-level"
	keyEcho           = "echo"
	keyConfig         = "config"
)

// cliConfig is the resolved configuration, in order of precedence: flags,
// environment variables, the config file, defaults.
type cliConfig struct {
	Address        string `mapstructure:"address"`
	LogLevel       string `mapstructure:"log-level"`
	Port           int    `mapstructure:"port"`
	ReadBufferSize int    `mapstructure:"read-buffer-size"`
	Workers        int    `mapstructure:"workers"`
	Echo           bool   `mapstructure:"echo"`
}

func defaultCLIConfig() cliConfig {
	def := eventserver.DefaultConfig()
	return cliConfig{
		Address:        def.Address,
		LogLevel:       logiface.LevelInformational.String(),
		Port:           def.Port,
		ReadBufferSize: def.ReadBufferSize,
		Workers:        1,
	}
}

func registerFlags(flags *pflag.FlagSet) {
	def := defaultCLIConfig()
	flags.String(keyAddress, def.Address, "address to listen on")
	flags.Int(keyPort, def.Port, "port to listen on (0 picks an ephemeral port)")
	flags.Int(keyReadBufferSize, def.ReadBufferSize, "maximum bytes read per readiness event")
	flags.Int(keyWorkers, def.Workers, "notification workers (1 preserves per-connection ordering)")
	flags.String(keyLogLevel, def.LogLevel, "log level (emerg, alert, crit, err, warning, notice, info, debug, trace, disabled)")
	flags.Bool(keyEcho, def.Echo, "write received bytes back to the sender")
	flags.String(keyConfig, "", "config file (any format supported by viper, e.g. yaml, toml, json)")
}

// loadConfig resolves the config for the given (parsed) flags.
func loadConfig(flags *pflag.FlagSet) (cliConfig, error) {
	v := viper.New()

	def := defaultCLIConfig()
	v.SetDefault(keyAddress, def.Address)
	v.SetDefault(keyPort, def.Port)
	v.SetDefault(keyReadBufferSize, def.ReadBufferSize)
	v.SetDefault(keyWorkers, def.Workers)
	v.SetDefault(keyLogLevel, def.LogLevel)
	v.SetDefault(keyEcho, def.Echo)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return cliConfig{}, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cliConfig{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg cliConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Workers < 1 {
		return cliConfig{}, fmt.Errorf("%w: workers must be positive", eventserver.ErrInvalidConfig)
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return cliConfig{}, err
	}
	if err := cfg.serverConfig().Validate(); err != nil {
		return cliConfig{}, err
	}

	return cfg, nil
}

func (c cliConfig) serverConfig() eventserver.Config {
	return eventserver.Config{
		Address:        c.Address,
		Port:           c.Port,
		ReadBufferSize: c.ReadBufferSize,
	}
}

func parseLevel(s string) (logiface.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			return level, nil
		}
	}
	switch s {
	case "error":
		return logiface.LevelError, nil
	case "warn":
		return logiface.LevelWarning, nil
	case "information", "informational":
		return logiface.LevelInformational, nil
	}
	return logiface.LevelDisabled, fmt.Errorf("%w: unknown log level %q", eventserver.ErrInvalidConfig, s)
}
