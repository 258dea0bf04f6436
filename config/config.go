package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"aviator/database"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	// Database configuration. An empty DatabaseURL runs the game on the in-memory store.
	DatabaseURL  string
	DatabaseName string

	// Account configuration
	StartingBalance     decimal.Decimal
	DemoStartingBalance decimal.Decimal

	// Round configuration
	TickInterval          time.Duration
	TickIncrement         decimal.Decimal
	RoundCooldown         time.Duration
	BettingWindow         time.Duration // zero means rounds only start on an explicit request
	CrashDistributionFile string

	// Deposit configuration
	DepositCurrency       string
	RequiredConfirmations int
	DepositCreditInterval time.Duration

	// HTTP configuration
	HTTPAddr           string
	CORSAllowedOrigins []string

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated), empty disables NATS

	// Discord configuration
	DiscordToken   string // empty disables the bot
	DiscordGuildID string
	CrashChannelID string // Channel that receives crash announcements

	// OpenTelemetry configuration
	OTelEnabled              bool
	OTelServiceName          string
	OTelExporterType         string // console, otlp or none
	OTelOTLPEndpoint         string
	OTelExportIntervalMillis int

	// Logging
	LogLevel string

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// Load reads a fresh configuration from the environment without touching the global instance
func Load() (*Config, error) {
	return load()
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// UsesDatabase reports whether a Postgres database is configured
func (c *Config) UsesDatabase() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		// Database
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		// Rounds
		CrashDistributionFile: os.Getenv("CRASH_DISTRIBUTION_FILE"),

		// Deposits
		DepositCurrency: getEnvWithDefault("DEPOSIT_CURRENCY", "BTC"),

		// HTTP
		HTTPAddr: getEnvWithDefault("HTTP_ADDR", ":8080"),

		// NATS
		NATSServers: os.Getenv("NATS_SERVERS"),

		// Discord
		DiscordToken:   os.Getenv("DISCORD_TOKEN"),
		DiscordGuildID: os.Getenv("DISCORD_GUILD_ID"),
		CrashChannelID: os.Getenv("CRASH_CHANNEL_ID"),

		// OpenTelemetry
		OTelEnabled:      os.Getenv("OTEL_ENABLED") == "true",
		OTelServiceName:  getEnvWithDefault("OTEL_SERVICE_NAME", "aviator"),
		OTelExporterType: getEnvWithDefault("OTEL_EXPORTER_TYPE", "console"),
		OTelOTLPEndpoint: getEnvWithDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
		Environment: os.Getenv("ENVIRONMENT"),
	}

	var err error
	if config.StartingBalance, err = getDecimal("STARTING_BALANCE", "1000"); err != nil {
		return nil, err
	}
	if config.DemoStartingBalance, err = getDecimal("DEMO_STARTING_BALANCE", "1000"); err != nil {
		return nil, err
	}
	if config.TickIncrement, err = getDecimal("TICK_INCREMENT", "0.01"); err != nil {
		return nil, err
	}
	if config.TickInterval, err = getDuration("TICK_INTERVAL", 50*time.Millisecond); err != nil {
		return nil, err
	}
	if config.RoundCooldown, err = getDuration("ROUND_COOLDOWN", 3*time.Second); err != nil {
		return nil, err
	}
	if config.BettingWindow, err = getDuration("BETTING_WINDOW", 10*time.Second); err != nil {
		return nil, err
	}
	if config.DepositCreditInterval, err = getDuration("DEPOSIT_CREDIT_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if config.RequiredConfirmations, err = getInt("REQUIRED_CONFIRMATIONS", 1); err != nil {
		return nil, err
	}
	if config.OTelExportIntervalMillis, err = getInt("OTEL_EXPORT_INTERVAL_MS", 60000); err != nil {
		return nil, err
	}

	// Parse allowed origins
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				config.CORSAllowedOrigins = append(config.CORSAllowedOrigins, origin)
			}
		}
	} else {
		config.CORSAllowedOrigins = []string{"*"}
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks value ranges that would make the game unplayable
func (c *Config) Validate() error {
	if c.StartingBalance.IsNegative() || c.DemoStartingBalance.IsNegative() {
		return fmt.Errorf("starting balances cannot be negative")
	}
	if !c.TickIncrement.IsPositive() {
		return fmt.Errorf("TICK_INCREMENT must be positive, got %s", c.TickIncrement)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if c.RoundCooldown < 0 || c.BettingWindow < 0 {
		return fmt.Errorf("ROUND_COOLDOWN and BETTING_WINDOW cannot be negative")
	}
	if c.RequiredConfirmations < 0 {
		return fmt.Errorf("REQUIRED_CONFIRMATIONS cannot be negative, got %d", c.RequiredConfirmations)
	}
	if strings.TrimSpace(c.DepositCurrency) == "" {
		return fmt.Errorf("DEPOSIT_CURRENCY cannot be empty")
	}
	// If DatabaseName is provided, ensure it's not empty
	if c.DatabaseName != "" && strings.TrimSpace(c.DatabaseName) == "" {
		return fmt.Errorf("DATABASE_NAME cannot be empty when provided")
	}
	return nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDecimal(key, defaultValue string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(getEnvWithDefault(key, defaultValue))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:           "test",
		StartingBalance:       decimal.NewFromInt(1000),
		DemoStartingBalance:   decimal.NewFromInt(1000),
		TickInterval:          time.Millisecond,
		TickIncrement:         decimal.RequireFromString("0.01"),
		DepositCurrency:       "BTC",
		RequiredConfirmations: 1,
		DepositCreditInterval: time.Second,
		CORSAllowedOrigins:    []string{"*"},
		OTelServiceName:       "aviator-test",
		OTelExporterType:      "none",
		LogLevel:              "debug",
	}
}
