package config

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "s3cret")

	cfg, err := Parse(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:80", cfg.Addr)
	assert.Equal(t, "http://localhost:80", cfg.BaseURL)
	assert.Equal(t, 120*time.Second, cfg.TokenTTL)
	assert.Equal(t, "New Survey Submission", cfg.Mail.AdminSubject)
	assert.Equal(t, "Thank you for your survey response", cfg.Mail.UserSubject)
	assert.False(t, cfg.Mail.Enabled())
	assert.Equal(t, 5*time.Second, cfg.Mail.Timeout)
	assert.Empty(t, cfg.CORSOrigins)
}

func TestParseFlagsOverrideEnv(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "from-env")
	t.Setenv("PORT", "8080")

	cfg, err := Parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{
		"-token-secret", "from-flag",
		"-base-url", "https://surveys.example.com/",
		"-cors-origins", "https://a.example.com, https://b.example.com",
		"-smtp-host", "smtp.example.com",
		"-mail-timeout", "2",
	})
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.TokenSecret)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, "https://surveys.example.com", cfg.BaseURL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.True(t, cfg.Mail.Enabled())
	assert.Equal(t, 2*time.Second, cfg.Mail.Timeout)
}

func TestParseRequiresSecret(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "")

	_, err := Parse(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	assert.EqualError(t, err, "missing parameter -token-secret")
}
