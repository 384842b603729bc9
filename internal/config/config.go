package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the storefront client configuration
type Config struct {
	Environment string
	LogLevel    string
	Commerce    CommerceConfig
	Storage     StorageConfig
}

// CommerceConfig points the client at the remote commerce API
type CommerceConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

type StorageConfig struct {
	// CartDir holds the durable cart file.
	CartDir string
	CartKey string
	// SessionRedisAddr is optional; without it session state lives in files under
	// CartDir/session that expire SessionTTL after their last write.
	SessionRedisAddr string
	SessionTTL       time.Duration
	IdempotencyKey   string
}

// SandboxConfig configures the local commerce API sandbox
type SandboxConfig struct {
	Port         string
	Environment  string
	LogLevel     string
	TokenHash    string
	Store        string
	Database     DatabaseConfig
	Pricing      PricingConfig
	DeclineCards []string
	// HoldOrders creates test-method orders as Pending until an admin confirms them.
	HoldOrders bool
	// CatalogFile optionally points at a JSON product list to seed on start.
	CatalogFile string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type PricingConfig struct {
	Currency              string
	ShippingFlatFee       decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	TaxRate               decimal.Decimal
}

func readConfig() error {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Read from environment variables
	viper.AutomaticEnv()

	// Try to read .env file (optional)
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if .env doesn't exist, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// Load reads the client configuration
func Load() (*Config, error) {
	if err := readConfig(); err != nil {
		return nil, err
	}

	timeout, err := getDuration("HTTP_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	sessionTTL, err := getDuration("SESSION_TTL", "30m")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment: getEnvOrViper("ENVIRONMENT", "development"),
		LogLevel:    getEnvOrViper("LOG_LEVEL", "info"),
		Commerce: CommerceConfig{
			BaseURL:  strings.TrimSuffix(getEnvOrViper("COMMERCE_API_BASE_URL", ""), "/"),
			APIToken: getEnvOrViper("COMMERCE_API_TOKEN", ""),
			Timeout:  timeout,
		},
		Storage: StorageConfig{
			CartDir:          getEnvOrViper("CART_STORAGE_DIR", ".storefront"),
			CartKey:          getEnvOrViper("CART_STORAGE_KEY", "corekit_cart"),
			SessionRedisAddr: getEnvOrViper("SESSION_REDIS_ADDR", ""),
			SessionTTL:       sessionTTL,
			IdempotencyKey:   getEnvOrViper("IDEMPOTENCY_STORAGE_KEY", "checkout_idempotency_key"),
		},
	}

	// Validate required fields
	if cfg.Commerce.BaseURL == "" {
		return nil, fmt.Errorf("COMMERCE_API_BASE_URL is required")
	}
	if cfg.Storage.CartKey == cfg.Storage.IdempotencyKey {
		return nil, fmt.Errorf("CART_STORAGE_KEY and IDEMPOTENCY_STORAGE_KEY must differ")
	}

	return cfg, nil
}

// LoadSandbox reads the sandbox API configuration
func LoadSandbox() (*SandboxConfig, error) {
	if err := readConfig(); err != nil {
		return nil, err
	}

	flatFee, err := getDecimal("SHIPPING_FLAT_FEE", "5")
	if err != nil {
		return nil, err
	}
	threshold, err := getDecimal("FREE_SHIPPING_THRESHOLD", "100")
	if err != nil {
		return nil, err
	}
	taxRate, err := getDecimal("TAX_RATE", "0.21")
	if err != nil {
		return nil, err
	}

	cfg := &SandboxConfig{
		Port:        getEnvOrViper("PORT", "8080"),
		Environment: getEnvOrViper("ENVIRONMENT", "development"),
		LogLevel:    getEnvOrViper("LOG_LEVEL", "info"),
		TokenHash:   getEnvOrViper("SANDBOX_TOKEN_HASH", ""),
		Store:       getEnvOrViper("SANDBOX_STORE", "memory"),
		Database: DatabaseConfig{
			Host:     getEnvOrViper("DB_HOST", "localhost"),
			Port:     getEnvOrViper("DB_PORT", "5432"),
			User:     getEnvOrViper("DB_USER", "postgres"),
			Password: getEnvOrViper("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrViper("DB_NAME", "storefront_sandbox"),
			SSLMode:  getEnvOrViper("DB_SSLMODE", "disable"),
		},
		Pricing: PricingConfig{
			Currency:              getEnvOrViper("CURRENCY", "USD"),
			ShippingFlatFee:       flatFee,
			FreeShippingThreshold: threshold,
			TaxRate:               taxRate,
		},
		DeclineCards: splitList(getEnvOrViper("DECLINE_CARDS", "4000000000000002,4000000000009995")),
		HoldOrders:   strings.EqualFold(getEnvOrViper("SANDBOX_HOLD_ORDERS", "false"), "true"),
		CatalogFile:  getEnvOrViper("SANDBOX_CATALOG", ""),
	}

	if cfg.TokenHash == "" {
		return nil, fmt.Errorf("SANDBOX_TOKEN_HASH is required")
	}
	if cfg.Store != "memory" && cfg.Store != "postgres" {
		return nil, fmt.Errorf("SANDBOX_STORE must be memory or postgres, got %q", cfg.Store)
	}

	return cfg, nil
}

// DSN builds the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

func getDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnvOrViper(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getDecimal(key, defaultValue string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnvOrViper(key, defaultValue))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
