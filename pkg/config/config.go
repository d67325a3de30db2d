// Package config loads squidctl settings from a YAML file, a .env file and
// SQUID_ prefixed environment variables, in increasing order of precedence.
//
// Nested keys map to environment variables with underscores:
//   - SQUID_CLIENT_APP_ID=my-app
//   - SQUID_CLIENT_ENDPOINT=ws://localhost:8000/rpc
//   - SQUID_SERVER_ADDR=:8080
//   - SQUID_LOGGING_LEVEL=debug
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
	"github.com/squidcloud/squid-go/pkg/logger"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "SQUID"

// Config is the root configuration.
type Config struct {
	// Client selects the backend every binding talks to.
	Client client.Options `mapstructure:"client"`

	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig configures `squidctl serve`.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// LiveRate caps the renders per second pushed to one live socket.
	LiveRate  float64 `mapstructure:"live_rate"`
	LiveBurst int     `mapstructure:"live_burst"`
}

// LoggingConfig selects the log backend.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is json (zerolog) or text (slog).
	Format string `mapstructure:"format"`
	// Path appends json logs to a file instead of stdout.
	Path string `mapstructure:"path"`
}

// Load reads the configuration. An empty cfgFile searches ./squid.yaml,
// ./configs/squid.yaml and $HOME/.squid/squid.yaml; a missing file is not an
// error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("squid")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.squid")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isFileNotFoundError(err) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.MergeInConfig()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("client.app_id", "")
	v.SetDefault("client.region", constants.DefaultRegion)
	v.SetDefault("client.environment", "dev")
	v.SetDefault("client.developer_id", "")
	v.SetDefault("client.api_key", "")
	v.SetDefault("client.endpoint", "ws://localhost:8000/rpc")
	v.SetDefault("client.namespace", "squid")
	v.SetDefault("client.database", "squid")
	v.SetDefault("client.username", "")
	v.SetDefault("client.password", "")
	v.SetDefault("client.openai_key", "")
	v.SetDefault("client.openai_model", "gpt-4o-mini")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.live_rate", 20.0)
	v.SetDefault("server.live_burst", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.path", "")
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	if c.Client.AppID == "" {
		return fmt.Errorf("client app_id is required")
	}
	u, err := url.Parse(c.Client.Endpoint)
	if err != nil {
		return fmt.Errorf("client endpoint: %w", err)
	}
	switch u.Scheme {
	case constants.WebsocketScheme, constants.WebsocketSecureScheme, constants.HTTPScheme, constants.HTTPSecureScheme:
	default:
		return fmt.Errorf("%w: %q", constants.ErrUnknownScheme, u.Scheme)
	}
	if c.Server.LiveRate <= 0 {
		return fmt.Errorf("server live_rate must be positive, got %v", c.Server.LiveRate)
	}
	if c.Server.LiveBurst < 1 {
		return fmt.Errorf("server live_burst must be at least 1, got %d", c.Server.LiveBurst)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}
	return nil
}

// Logger builds the configured logger. The returned closer releases the log
// file, if one was opened.
func (l LoggingConfig) Logger(w io.Writer) (logger.Logger, io.Closer, error) {
	if l.Format == "text" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(l.Level)); err != nil {
			level = slog.LevelInfo
		}
		return logger.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), io.NopCloser(nil), nil
	}

	build := logger.NewBuild().Level(l.Level)
	if l.Path != "" {
		build = build.FromPath(l.Path)
	} else {
		build = build.FromBuffer(w)
	}
	data, err := build.Make()
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return logger.NewZerolog(data.Logger), data, nil
}

func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
