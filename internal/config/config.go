package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"QUIZ_SERVER_PORT"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr" env:"QUIZ_REDIS_ADDR"`
		Password string `yaml:"password" env:"QUIZ_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"QUIZ_REDIS_DB"`
		TTL      string `yaml:"ttl" env:"QUIZ_REDIS_TTL"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"QUIZ_POSTGRES_URL"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl" env:"QUIZ_CACHE_TTL"`
	} `yaml:"quiz"`
	Auth struct {
		// FacilitatorKeys may launch sessions. Empty disables the check.
		FacilitatorKeys []string `yaml:"facilitator_keys" env:"QUIZ_FACILITATOR_KEYS" envSeparator:","`
	} `yaml:"auth"`
	Game struct {
		DiceWindow       string `yaml:"dice_window" env:"QUIZ_DICE_WINDOW"`
		AutoServe        bool   `yaml:"auto_serve" env:"QUIZ_AUTO_SERVE"`
		Retention        string `yaml:"retention" env:"QUIZ_RETENTION"`
		SweepInterval    string `yaml:"sweep_interval" env:"QUIZ_SWEEP_INTERVAL"`
		IdleTimeout      string `yaml:"idle_timeout" env:"QUIZ_IDLE_TIMEOUT"`
		SubscriberBuffer int    `yaml:"subscriber_buffer" env:"QUIZ_SUBSCRIBER_BUFFER"`
	} `yaml:"game"`
}

// Default returns the settings used where neither the file nor the
// environment says otherwise.
func Default() Config {
	cfg := Config{}
	cfg.Game.AutoServe = true
	return cfg
}

// Load reads YAML config from path, then applies environment overrides.
// A missing file is not an error when the environment carries the settings.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return cfg, err
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ParseEnv overlays environment variables onto target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
