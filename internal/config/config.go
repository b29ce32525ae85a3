// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/polkapulse/vault/internal/modules/settings"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for all databases (always absolute)
	Host      string
	Port      int
	LogLevel  string
	LogPretty bool
	DevMode   bool

	// Gateway credentials may be overridden from the settings database
	// after the config DB is initialized (see UpdateFromSettings).
	GatewayURL    string
	GatewayAPIKey string
	FeedURL       string

	VaultAccount string // account the vault holds pool capital under on the asset ledger
	FeeRecipient string // account credited with performance fees

	OperatorToken   string // bearer token for operator endpoints (harvest, yield loop)
	GovernanceToken string // bearer token for governance endpoints (parameters, partners)

	Venues    *VenuesConfig
	Bootstrap *BootstrapConfig
}

// VenuesConfig identifies the two deployment venues capital can be routed to.
type VenuesConfig struct {
	VenueAID          string
	VenueADestination string
	VenueAFeeBps      uint32
	VenueBID          string
	VenueBDestination string
	VenueBFeeBps      uint32
}

// BootstrapConfig holds the initial protocol parameters. They seed the
// parameter store on first boot only; after that the stored values
// (governed via the HTTP API) take precedence.
type BootstrapConfig struct {
	HarvestThreshold   string // base-10 fixed-point amount
	PerformanceFeeBps  uint32
	TreasuryReserveBps uint32
	EpochInterval      int64  // seconds between treasury epochs
	MinDeposit         string // base-10 fixed-point amount
	CompoundPeriods    uint32 // projection horizon for allocation planning
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic
	// 1. Check VAULT_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path
	// 4. Ensure directory exists
	dataDir := getEnv("VAULT_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		Host:      getEnv("VAULT_HOST", "0.0.0.0"),
		Port:      getEnvAsInt("VAULT_PORT", 8090),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),
		DevMode:   getEnvAsBool("DEV_MODE", false),

		GatewayURL:    getEnv("GATEWAY_URL", "http://localhost:9944"),
		GatewayAPIKey: getEnv("GATEWAY_API_KEY", ""),
		FeedURL:       getEnv("FEED_URL", ""),

		VaultAccount: getEnv("VAULT_ACCOUNT", "vault-pool"),
		FeeRecipient: getEnv("FEE_RECIPIENT", "vault-fees"),

		OperatorToken:   getEnv("OPERATOR_TOKEN", ""),
		GovernanceToken: getEnv("GOVERNANCE_TOKEN", ""),

		Venues:    loadVenuesConfig(),
		Bootstrap: loadBootstrapConfig(),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// UpdateFromSettings updates configuration from settings database
// This should be called after the config database is initialized
// Settings DB values take precedence over environment variables
func (c *Config) UpdateFromSettings(settingsRepo *settings.Repository) error {
	// Try to get credentials from settings DB
	apiKey, err := settingsRepo.Get("gateway_api_key")
	if err != nil {
		return fmt.Errorf("failed to get gateway_api_key from settings: %w", err)
	}
	// Only use settings DB value if it's not empty (settings DB takes precedence)
	if apiKey != nil && *apiKey != "" {
		c.GatewayAPIKey = *apiKey
	}
	// If settings DB value is empty, keep the env var value (if any) as fallback

	operatorToken, err := settingsRepo.Get("operator_token")
	if err != nil {
		return fmt.Errorf("failed to get operator_token from settings: %w", err)
	}
	if operatorToken != nil && *operatorToken != "" {
		c.OperatorToken = *operatorToken
	}

	governanceToken, err := settingsRepo.Get("governance_token")
	if err != nil {
		return fmt.Errorf("failed to get governance_token from settings: %w", err)
	}
	if governanceToken != nil && *governanceToken != "" {
		c.GovernanceToken = *governanceToken
	}

	return nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Bootstrap.PerformanceFeeBps > 10_000 {
		return fmt.Errorf("BOOTSTRAP_FEE_BPS must not exceed 10000, got %d", c.Bootstrap.PerformanceFeeBps)
	}
	if c.Bootstrap.TreasuryReserveBps > 10_000 {
		return fmt.Errorf("BOOTSTRAP_TREASURY_BPS must not exceed 10000, got %d", c.Bootstrap.TreasuryReserveBps)
	}
	if c.Venues.VenueAFeeBps > 10_000 || c.Venues.VenueBFeeBps > 10_000 {
		return fmt.Errorf("venue fee bps must not exceed 10000")
	}

	// Note: gateway credentials optional for dry-run mode

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsUint32(key string, defaultValue uint32) uint32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseUint(value, 10, 32); err == nil {
			return uint32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// loadVenuesConfig loads the two routing venues with conventional defaults
func loadVenuesConfig() *VenuesConfig {
	return &VenuesConfig{
		VenueAID:          getEnv("VENUE_A_ID", "venue-a"),
		VenueADestination: getEnv("VENUE_A_DESTINATION", "2034"),
		VenueAFeeBps:      getEnvAsUint32("VENUE_A_FEE_BPS", 0),
		VenueBID:          getEnv("VENUE_B_ID", "venue-b"),
		VenueBDestination: getEnv("VENUE_B_DESTINATION", "2032"),
		VenueBFeeBps:      getEnvAsUint32("VENUE_B_FEE_BPS", 0),
	}
}

// loadBootstrapConfig loads first-boot protocol parameters
func loadBootstrapConfig() *BootstrapConfig {
	return &BootstrapConfig{
		HarvestThreshold:   getEnv("BOOTSTRAP_HARVEST_THRESHOLD", "1000000000000000000"), // 1 unit
		PerformanceFeeBps:  getEnvAsUint32("BOOTSTRAP_FEE_BPS", 1000),                    // 10%
		TreasuryReserveBps: getEnvAsUint32("BOOTSTRAP_TREASURY_BPS", 500),                // 5%
		EpochInterval:      getEnvAsInt64("BOOTSTRAP_EPOCH_INTERVAL", 86400),             // daily
		MinDeposit:         getEnv("BOOTSTRAP_MIN_DEPOSIT", "0"),
		CompoundPeriods:    getEnvAsUint32("BOOTSTRAP_COMPOUND_PERIODS", 12),
	}
}
