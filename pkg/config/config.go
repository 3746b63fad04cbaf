package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	DefaultLoginURL    = "https://login.salesforce.com"
	DefaultAPIVersion  = "59.0"
	DefaultAirtableURL = "https://api.airtable.com"
	DefaultMappingFile = "mapping.yaml"
)

type Config struct {
	SalesforceEmail         string
	SalesforcePassword      string
	SalesforceSecurityToken string
	SalesforceLoginURL      string
	SalesforceAPIVersion    string
	SalesforceClientID      string
	SalesforceClientSecret  string

	AirtableAPIKey string
	AirtableAPIURL string

	MappingFile string

	Ledger LedgerConfig
}

// LedgerConfig holds the optional postgres connection used to record sync runs.
// The ledger is enabled only when DB_HOST is set.
type LedgerConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (l LedgerConfig) Enabled() bool {
	return l.Host != ""
}

// Load reads the full sync configuration from the environment
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSalesforce reads the configuration for tools that only talk to
// Salesforce, so the Airtable key may be absent.
func LoadSalesforce() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateSalesforce(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("DB_PORT must be a number: %w", err)
	}

	cfg := &Config{
		SalesforceEmail:         os.Getenv("SALESFORCE_EMAIL"),
		SalesforcePassword:      os.Getenv("SALESFORCE_PW"),
		SalesforceSecurityToken: os.Getenv("SALESFORCE_SECURITY_TOKEN"),
		SalesforceLoginURL:      getEnv("SALESFORCE_LOGIN_URL", DefaultLoginURL),
		SalesforceAPIVersion:    getEnv("SALESFORCE_API_VERSION", DefaultAPIVersion),
		SalesforceClientID:      os.Getenv("SALESFORCE_CLIENT_ID"),
		SalesforceClientSecret:  os.Getenv("SALESFORCE_CLIENT_SECRET"),
		AirtableAPIKey:          os.Getenv("AIRTABLE_API_KEY"),
		AirtableAPIURL:          getEnv("AIRTABLE_API_URL", DefaultAirtableURL),
		MappingFile:             getEnv("MAPPING_FILE", DefaultMappingFile),
		Ledger: LedgerConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     port,
			User:     getEnv("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			Database: getEnv("DB_NAME", "sfsync"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.ValidateSalesforce(); err != nil {
		return err
	}
	if c.AirtableAPIKey == "" {
		return fmt.Errorf("AIRTABLE_API_KEY is required")
	}
	return nil
}

func (c *Config) ValidateSalesforce() error {
	if c.SalesforceEmail == "" {
		return fmt.Errorf("SALESFORCE_EMAIL is required")
	}
	if c.SalesforcePassword == "" {
		return fmt.Errorf("SALESFORCE_PW is required")
	}
	if c.SalesforceSecurityToken == "" {
		return fmt.Errorf("SALESFORCE_SECURITY_TOKEN is required")
	}
	if c.SalesforceClientID != "" && c.SalesforceClientSecret == "" {
		return fmt.Errorf("SALESFORCE_CLIENT_SECRET is required when SALESFORCE_CLIENT_ID is set")
	}
	// The client id is optional, without it the SOAP login is used
	return nil
}

// SalesforceLoginPassword joins the password and security token the way the
// Salesforce username/password login expects them.
func (c *Config) SalesforceLoginPassword() string {
	return c.SalesforcePassword + c.SalesforceSecurityToken
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
