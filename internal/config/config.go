package config

import (
	"fmt"
	"os"
	"strings"

	yaml "github.com/goccy/go-yaml"

	"booking-saga/internal/audit"
	"booking-saga/internal/broker"
	pglog "booking-saga/internal/eventlog/postgres"
)

type Config struct {
	API      APIConfig    `yaml:"api"`
	Broker   broker.Config `yaml:"broker"`
	Postgres pglog.Config  `yaml:"postgres"`
	Audit    audit.Config  `yaml:"audit"`
	Redis    RedisConfig   `yaml:"redis"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

// RedisConfig backs the notification counter. An empty addr means the
// participants fall back to the in-process counter.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.API.Addr) == "" {
		c.API.Addr = ":8080"
	}
	if strings.TrimSpace(c.Broker.Exchange) == "" {
		c.Broker.Exchange = broker.DefaultExchange
	}
	if c.Audit.Enabled && strings.TrimSpace(c.Audit.EventsTopic) == "" {
		c.Audit.EventsTopic = "saga-events"
	}
}

func (c Config) ValidateForOrchestrator() error {
	if strings.TrimSpace(c.API.Addr) == "" {
		return fmt.Errorf("api.addr is required")
	}
	if err := c.Broker.Validate(); err != nil {
		return err
	}
	if err := c.Postgres.Validate(); err != nil {
		return err
	}
	return c.Audit.Validate()
}

func (c Config) ValidateForParticipants() error {
	return c.Broker.Validate()
}
