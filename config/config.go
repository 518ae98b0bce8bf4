package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the process configuration, read from the environment.
type Config struct {
	Port         int    `envconfig:"PORT" default:"3000"`
	BranchesFile string `envconfig:"BRANCHES_FILE" default:"config/branches.json"`
	AuthDir      string `envconfig:"AUTH_DIR" default:"auth"`
	StaticDir    string `envconfig:"STATIC_DIR" default:"public"`

	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile    string `envconfig:"LOG_FILE" default:"logs/whatsapp-bot.log"`
	LogConsole bool   `envconfig:"LOG_CONSOLE" default:"true"`

	// ReplyTemplate overrides the redirection text; {branch} is replaced by the branch name.
	ReplyTemplate string `envconfig:"REPLY_TEMPLATE"`
	MessageFeed   bool   `envconfig:"MESSAGE_FEED" default:"false"`
	PrintQR       bool   `envconfig:"PRINT_QR" default:"false"`

	ReconnectInitial time.Duration `envconfig:"RECONNECT_INITIAL" default:"1s"`
	ReconnectMax     time.Duration `envconfig:"RECONNECT_MAX" default:"30s"`

	ReplyWorkers int           `envconfig:"REPLY_WORKERS" default:"4"`
	ReplyQueue   int           `envconfig:"REPLY_QUEUE" default:"64"`
	ReplyTimeout time.Duration `envconfig:"REPLY_TIMEOUT" default:"20s"`
	// ReplyRate limits redirects per chat in replies per second; 0 answers every inquiry.
	ReplyRate    float64       `envconfig:"REPLY_RATE" default:"0"`
	ReplyBurst   int           `envconfig:"REPLY_BURST" default:"1"`

	DedupeSize int           `envconfig:"DEDUPE_SIZE" default:"1000"`
	DedupeTTL  time.Duration `envconfig:"DEDUPE_TTL" default:"10m"`
}

// Load reads Config from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the process cannot run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.AuthDir == "" {
		return fmt.Errorf("AUTH_DIR must not be empty")
	}
	if c.ReconnectInitial <= 0 || c.ReconnectMax < c.ReconnectInitial {
		return fmt.Errorf("invalid reconnect window %s..%s", c.ReconnectInitial, c.ReconnectMax)
	}
	if c.ReplyWorkers <= 0 || c.ReplyQueue <= 0 {
		return fmt.Errorf("REPLY_WORKERS and REPLY_QUEUE must be positive")
	}
	if c.ReplyRate < 0 {
		return fmt.Errorf("REPLY_RATE must not be negative")
	}
	if c.ReplyBurst <= 0 {
		return fmt.Errorf("REPLY_BURST must be positive")
	}
	return nil
}

// Addr is the listen address of the dashboard gateway.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
