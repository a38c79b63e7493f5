package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "MEET"

type Speaking struct {
	Interval  time.Duration `mapstructure:"interval" validate:"gt=0"`
	Threshold float64       `mapstructure:"threshold" validate:"gt=0,lte=255"`
	Window    int           `mapstructure:"window" validate:"gte=1"`
}

type Chat struct {
	Limit    int           `mapstructure:"limit" validate:"gte=0"`
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
}

type Config struct {
	Mode           string        `mapstructure:"mode" validate:"oneof=debug release test"`
	Listen         string        `mapstructure:"listen" validate:"required,hostname_port"`
	SignalURL      string        `mapstructure:"signal_url" validate:"required,url"`
	RoomToken      string        `mapstructure:"room_token" validate:"required,max=128"`
	UserID         string        `mapstructure:"user_id" validate:"max=64"`
	Username       string        `mapstructure:"username" validate:"required,max=36"`
	ICEServers     []string      `mapstructure:"ice_servers"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gte=0"`
	PingPeriod     time.Duration `mapstructure:"ping_period" validate:"gt=0"`
	ReadLimit      int64         `mapstructure:"read_limit" validate:"gt=0"`
	Speaking       Speaking      `mapstructure:"speaking"`
	Chat           Chat          `mapstructure:"chat"`
	LogLevel       string        `mapstructure:"log_level"`

	v *viper.Viper
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"room":      "room_token",
	"user":      "user_id",
	"name":      "username",
	"signal":    "signal_url",
	"listen":    "listen",
	"log-level": "log_level",
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("listen", "127.0.0.1:8080")
	v.SetDefault("signal_url", "")
	v.SetDefault("room_token", "")
	v.SetDefault("user_id", "")
	v.SetDefault("username", "")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("connect_timeout", "30s")
	v.SetDefault("ping_period", "54s")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("speaking.interval", "50ms")
	v.SetDefault("speaking.threshold", 20.0)
	v.SetDefault("speaking.window", 32)
	v.SetDefault("chat.limit", 5)
	v.SetDefault("chat.interval", "10s")
	v.SetDefault("log_level", "info")
}

// Load reads .env, config/config.<CONFIG_ENV>.yaml, MEET_* variables and
// flags, in increasing precedence.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("module", "config").Err(err).Msg(".env not loaded")
	}
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return load(flags, fmt.Sprintf("config/config.%s.yaml", env))
}

func load(flags *pflag.FlagSet, fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Str("listen", cfg.Listen).
		Str("room", cfg.RoomToken).
		Msg("config ready")
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// OnChange watches the config file and calls fn with every valid
// reload. Invalid edits are logged and skipped.
func (c *Config) OnChange(fn func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	if _, err := os.Stat(c.v.ConfigFileUsed()); err != nil {
		return
	}
	var mu sync.Mutex
	c.v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()
		next, err := decode(c.v)
		if err != nil {
			log.Warn().Str("module", "config").Str("file", e.Name).Err(err).Msg("config reload rejected")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Str("op", e.Op.String()).Msg("config reloaded")
		fn(next)
	})
	c.v.WatchConfig()
}
