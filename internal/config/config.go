package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store drivers accepted in store.driver.
const (
	DriverMongo    = "mongodb"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Environment string `json:"environment"`
	Server      struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"server"`
	Store struct {
		Driver   string `json:"driver"`
		Fixtures string `json:"fixtures"` // memory driver only
	} `json:"store"`
	MongoDB struct {
		URI      string `json:"uri"`
		Database string `json:"database"`
	} `json:"mongodb"`
	Postgres struct {
		DSN string `json:"dsn"`
	} `json:"postgres"`
	Frontend struct {
		URL string `json:"url"`
	} `json:"frontend"`
	JWT struct {
		AccessSecret string `json:"accessSecret"`
	} `json:"jwt"`
	ServiceToken string `json:"serviceToken"`
	Matchmaking  struct {
		TickSeconds int `json:"tickSeconds"`
		BaseWindow  int `json:"baseWindow"`
		WindowStep  int `json:"windowStep"`
		StepSeconds int `json:"stepSeconds"`
	} `json:"matchmaking"`
	Duel struct {
		TurnTimeoutSeconds int `json:"turnTimeoutSeconds"`
		WinningScore       int `json:"winningScore"`
		MaxRounds          int `json:"maxRounds"`
	} `json:"duel"`
	Exchange struct {
		InviteTimeoutSeconds int `json:"inviteTimeoutSeconds"`
	} `json:"exchange"`
}

func Load(env string) (*Config, error) {
	configDir := os.Getenv("CONFIG_DIR")
	if configDir == "" {
		configDir = "configs"
	}

	filename := fmt.Sprintf("config.%s.json", env)
	configPath := filepath.Join(configDir, filename)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Environment = env
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	setDefault(&c.Matchmaking.TickSeconds, 5)
	setDefault(&c.Matchmaking.BaseWindow, 100)
	setDefault(&c.Matchmaking.WindowStep, 100)
	setDefault(&c.Matchmaking.StepSeconds, 10)
	setDefault(&c.Duel.TurnTimeoutSeconds, 30)
	setDefault(&c.Duel.WinningScore, 6)
	setDefault(&c.Duel.MaxRounds, 11)
	setDefault(&c.Exchange.InviteTimeoutSeconds, 60)
}

func setDefault(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverMongo:
		if c.MongoDB.URI == "" || c.MongoDB.Database == "" {
			return fmt.Errorf("mongodb driver requires mongodb.uri and mongodb.database")
		}
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres driver requires postgres.dsn")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.JWT.AccessSecret == "" {
		return fmt.Errorf("jwt.accessSecret is required")
	}
	return nil
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Matchmaking.TickSeconds) * time.Second
}

func (c *Config) StepInterval() time.Duration {
	return time.Duration(c.Matchmaking.StepSeconds) * time.Second
}

func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.Duel.TurnTimeoutSeconds) * time.Second
}

func (c *Config) InviteTimeout() time.Duration {
	return time.Duration(c.Exchange.InviteTimeoutSeconds) * time.Second
}

// StaleMatchThreshold is how long a match may stay active in the store
// before cleanup treats it as orphaned: twice the longest possible match.
func (c *Config) StaleMatchThreshold() time.Duration {
	return 2 * time.Duration(c.Duel.MaxRounds) * 2 * c.TurnTimeout()
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func GetEnv() string {
	env := os.Getenv("CARD_ARENA_ENV")
	if env == "" {
		return "dev"
	}
	return env
}
