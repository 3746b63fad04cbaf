package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("SALESFORCE_EMAIL", "ops@example.com")
	t.Setenv("SALESFORCE_PW", "secret")
	t.Setenv("SALESFORCE_SECURITY_TOKEN", "tok")
	t.Setenv("AIRTABLE_API_KEY", "pat123")
}

func Test_Load_Defaults(t *testing.T) {
	setRequired(t)
	t.Setenv("SALESFORCE_LOGIN_URL", "")
	t.Setenv("DB_HOST", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultLoginURL, cfg.SalesforceLoginURL)
	assert.Equal(t, DefaultAPIVersion, cfg.SalesforceAPIVersion)
	assert.Equal(t, DefaultAirtableURL, cfg.AirtableAPIURL)
	assert.Equal(t, "secrettok", cfg.SalesforceLoginPassword())
	assert.False(t, cfg.Ledger.Enabled())
	assert.Equal(t, 5432, cfg.Ledger.Port)
}

func Test_Load_Ledger(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Ledger.Enabled())
	assert.Equal(t, 6543, cfg.Ledger.Port)
}

func Test_Load_InvalidPort(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_PORT", "not-a-port")

	_, err := Load()
	assert.Error(t, err)
}

func Test_Validate(t *testing.T) {
	cfg := &Config{
		SalesforceEmail:         "ops@example.com",
		SalesforcePassword:      "secret",
		SalesforceSecurityToken: "tok",
		AirtableAPIKey:          "pat",
	}
	assert.NoError(t, cfg.Validate())

	cfg.SalesforceClientID = "client"
	assert.EqualError(t, cfg.Validate(), "SALESFORCE_CLIENT_SECRET is required when SALESFORCE_CLIENT_ID is set")

	cfg.SalesforceClientID = ""
	cfg.AirtableAPIKey = ""
	assert.EqualError(t, cfg.Validate(), "AIRTABLE_API_KEY is required")
}

func Test_LoadSalesforce_WithoutAirtable(t *testing.T) {
	setRequired(t)
	t.Setenv("AIRTABLE_API_KEY", "")

	_, err := Load()
	assert.EqualError(t, err, "AIRTABLE_API_KEY is required")

	cfg, err := LoadSalesforce()
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", cfg.SalesforceEmail)
}
