package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "PIXELDEFENCE"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "pixel-defence.db"
	defaultLogLevel          = "info"
	defaultCooldownSeconds   = 10
	defaultDecayIntervalMs   = 60000
	defaultPresenceWindowMs  = 15000
	defaultSessionTTLMinutes = 360
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	SigningSecret  string
	SessionTTL     time.Duration
	Cooldown       time.Duration
	DecayInterval  time.Duration
	PresenceWindow time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.session_ttl_minutes", defaultSessionTTLMinutes)
	configViper.SetDefault("game.cooldown_seconds", defaultCooldownSeconds)
	configViper.SetDefault("game.decay_interval_ms", defaultDecayIntervalMs)
	configViper.SetDefault("game.presence_window_ms", defaultPresenceWindowMs)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		SessionTTL:     time.Duration(configViper.GetInt("auth.session_ttl_minutes")) * time.Minute,
		Cooldown:       time.Duration(configViper.GetInt("game.cooldown_seconds")) * time.Second,
		DecayInterval:  time.Duration(configViper.GetInt("game.decay_interval_ms")) * time.Millisecond,
		PresenceWindow: time.Duration(configViper.GetInt("game.presence_window_ms")) * time.Millisecond,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("game.cooldown_seconds must be positive")
	}
	if c.DecayInterval <= 0 {
		return fmt.Errorf("game.decay_interval_ms must be positive")
	}
	if c.PresenceWindow <= 0 {
		return fmt.Errorf("game.presence_window_ms must be positive")
	}
	return nil
}
