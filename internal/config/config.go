package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// GameConfig is one game type and the round durations it runs
type GameConfig struct {
	Type      string `yaml:"type"`
	Durations []int  `yaml:"durations"` // seconds
}

// Catalog describes what can be bet on
type Catalog struct {
	Games           []GameConfig  `yaml:"games"`
	CloseThreshold  time.Duration `yaml:"close_threshold"`
	MinStake        int64         `yaml:"min_stake"`
	MaxStake        int64         `yaml:"max_stake"`
	StartingBalance int64         `yaml:"starting_balance"`
}

// DefaultCatalog returns the built-in game catalog
func DefaultCatalog() Catalog {
	return Catalog{
		Games: []GameConfig{
			{Type: "parity", Durations: []int{60, 180, 300}},
			{Type: "sapre", Durations: []int{60, 180, 300}},
			{Type: "bcone", Durations: []int{60, 180, 300}},
			{Type: "emerd", Durations: []int{60, 180, 300}},
		},
		CloseThreshold:  5 * time.Second,
		MinStake:        10,
		MaxStake:        100000,
		StartingBalance: 1000,
	}
}

// Modes expands the catalog into every (game type, duration) pair
func (c Catalog) Modes() []entities.Mode {
	var modes []entities.Mode
	for _, g := range c.Games {
		for _, d := range g.Durations {
			modes = append(modes, entities.NewMode(entities.GameType(g.Type), d))
		}
	}
	return modes
}

// Config holds all configuration for the application
type Config struct {
	// Storage
	StorageType string
	DataDir     string
	DatabaseURL string

	// HTTP
	HTTPAddr   string
	AdminToken string

	// Settlement driver
	SweepInterval time.Duration
	SweepTimeout  time.Duration
	LookBack      int

	// Optional integrations, disabled when empty
	RedisAddr        string
	RedisPassword    string
	AMQPURL          string
	AMQPExchange     string
	ElasticsearchURL string
	ArchivePath      string
	ArchiveRetention time.Duration

	// Discord configuration
	Token          string
	AppID          string
	GuildID        string
	ResultsChannel string // settled-round announcements, optional

	Catalog Catalog

	// Environment
	Environment string // "development" or "production"
	LogLevel    string
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Only return error if file exists but couldn't be loaded
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	// Get working directory for resource paths
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := FromEnv(wd)
	if err != nil {
		return nil, err
	}

	// Create data directory if it doesn't exist
	if cfg.StorageType == StorageSQLite {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

// FromEnv builds and validates a Config from the process environment without
// touching the filesystem beyond the optional games file
func FromEnv(wd string) (*Config, error) {
	var errs []string
	duration := func(key string, def time.Duration) time.Duration {
		d, err := getDurationWithDefault(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return d
	}
	integer := func(key string, def int) int {
		n, err := getIntWithDefault(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return n
	}

	cfg := &Config{
		StorageType:      strings.ToLower(getEnvWithDefault("STORAGE_TYPE", StorageSQLite)),
		DataDir:          getEnvWithDefault("DATA_DIR", filepath.Join(wd, "data")),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		HTTPAddr:         getEnvWithDefault("HTTP_ADDR", ":8080"),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
		SweepInterval:    duration("SWEEP_INTERVAL", 10*time.Second),
		SweepTimeout:     duration("SWEEP_TIMEOUT", 30*time.Second),
		LookBack:         integer("SWEEP_LOOKBACK", 3),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		AMQPURL:          os.Getenv("AMQP_URL"),
		AMQPExchange:     getEnvWithDefault("AMQP_EXCHANGE", "wingo.events"),
		ElasticsearchURL: os.Getenv("ELASTICSEARCH_URL"),
		ArchivePath:      getEnvWithDefault("ARCHIVE_PATH", filepath.Join(wd, "archives")),
		ArchiveRetention: duration("ARCHIVE_RETENTION", 90*24*time.Hour),
		Token:            os.Getenv("DISCORD_TOKEN"),
		AppID:            os.Getenv("APP_ID"),
		GuildID:          os.Getenv("GUILD_ID"),
		ResultsChannel:   os.Getenv("DISCORD_RESULTS_CHANNEL"),
		Environment:      getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:         getEnvWithDefault("LOG_LEVEL", "INFO"),
		Catalog:          DefaultCatalog(),
	}

	if path := os.Getenv("GAMES_FILE"); path != "" {
		catalog, err := LoadCatalog(path)
		if err != nil {
			return nil, err
		}
		cfg.Catalog = catalog
	}
	if os.Getenv("CLOSE_THRESHOLD") != "" {
		cfg.Catalog.CloseThreshold = duration("CLOSE_THRESHOLD", cfg.Catalog.CloseThreshold)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadCatalog reads a YAML game catalog. Fields left out keep their defaults.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("error reading games file: %w", err)
	}

	catalog := DefaultCatalog()
	catalog.Games = nil
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("error parsing games file %s: %w", path, err)
	}
	return catalog, nil
}

// validate checks if all required configuration is present
func (c *Config) validate() error {
	switch c.StorageType {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType)
	}

	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.LookBack < 0 {
		return fmt.Errorf("SWEEP_LOOKBACK cannot be negative")
	}
	if c.Token != "" && (c.AppID == "" || c.GuildID == "") {
		return fmt.Errorf("APP_ID and GUILD_ID are required when DISCORD_TOKEN is set")
	}
	return c.Catalog.validate()
}

func (c Catalog) validate() error {
	if len(c.Games) == 0 {
		return fmt.Errorf("game catalog is empty")
	}
	seen := make(map[entities.Mode]bool)
	for _, g := range c.Games {
		if g.Type == "" {
			return fmt.Errorf("game type cannot be empty")
		}
		if len(g.Durations) == 0 {
			return fmt.Errorf("game %s has no durations", g.Type)
		}
		for _, d := range g.Durations {
			if d <= 0 {
				return fmt.Errorf("game %s has invalid duration %d", g.Type, d)
			}
			mode := entities.NewMode(entities.GameType(g.Type), d)
			if seen[mode] {
				return fmt.Errorf("duplicate mode %s", mode)
			}
			seen[mode] = true
		}
	}
	if c.CloseThreshold < 0 {
		return fmt.Errorf("close threshold cannot be negative")
	}
	if c.MinStake < 0 || (c.MaxStake > 0 && c.MaxStake < c.MinStake) {
		return fmt.Errorf("invalid stake limits %d-%d", c.MinStake, c.MaxStake)
	}
	if c.StartingBalance < 0 {
		return fmt.Errorf("starting balance cannot be negative")
	}
	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// DiscordEnabled reports whether the chat front-end should start
func (c *Config) DiscordEnabled() bool {
	return c.Token != ""
}

// SQLitePath is the database file used by sqlite storage
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "wingo.db")
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return n, nil
}

// getDurationWithDefault accepts Go durations ("30s") or plain seconds ("30")
func getDurationWithDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s must be a duration, got %q", key, value)
	}
	return d, nil
}
