package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_defaultsFS(t *testing.T) {
	data, err := defaultsFS.ReadFile("defaults/config")
	require.NoError(t, err)
	assert.Contains(t, string(data), "base_url")
	assert.Contains(t, string(data), "magic_link_ttl_hours")
	assert.Contains(t, string(data), "notify_channels")
}

func TestLoad_WithCustomDir(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "custom-config")

	cfg, err := Load(configDir)
	require.NoError(t, err)

	assert.Equal(t, configDir, cfg.Dir())
	assert.FileExists(t, filepath.Join(configDir, "config"))

	// defaults from embedded config
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, 336, cfg.MagicLinkTTLHours)
	assert.Equal(t, 336*time.Hour, cfg.MagicLinkTTL())
	assert.Equal(t, filepath.Join(configDir, "brieflink.db"), cfg.DBFile())
	assert.Empty(t, cfg.QuestionnaireFile())
	assert.True(t, cfg.NotifyOnInvite)
	assert.Empty(t, cfg.NotifyChannels)
}

func TestLoad_WithUserConfig(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "brieflink")
	require.NoError(t, os.MkdirAll(configDir, 0o700))

	userConfig := `
listen = 127.0.0.1:9000
db_path = /var/lib/brieflink/data.db
questionnaire = brief.yml
magic_link_ttl_hours = 0
notify_on_invite = false
notify_channels = email, webhook
notify_on_phase = review,delivered
notify_email_to = a@example.com, b@example.com
notify_webhook_urls = https://example.com/hook
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config"), []byte(userConfig), 0o600))

	cfg, err := Load(configDir)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "/var/lib/brieflink/data.db", cfg.DBFile())
	assert.Equal(t, filepath.Join(configDir, "brief.yml"), cfg.QuestionnaireFile())
	assert.Equal(t, 0, cfg.MagicLinkTTLHours, "explicit zero must override the default")
	assert.True(t, cfg.MagicLinkTTLHoursSet)
	assert.False(t, cfg.NotifyOnInvite, "explicit false must override the default")

	// untouched values still come from embedded defaults
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, 587, cfg.SMTPPort)

	params := cfg.NotifyParams()
	assert.Equal(t, []string{"email", "webhook"}, params.Channels)
	assert.Equal(t, []string{"review", "delivered"}, params.OnPhase)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, params.EmailTo)
	assert.Equal(t, []string{"https://example.com/hook"}, params.WebhookURLs)
	assert.Equal(t, 10000, params.TimeoutMs)
	assert.True(t, params.SMTPStartTLS)
}

func TestLoad_InvalidValue(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "brieflink")
	require.NoError(t, os.MkdirAll(configDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config"), []byte("magic_link_ttl_hours = soon"), 0o600))

	_, err := Load(configDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid magic_link_ttl_hours")
}

func TestLoad_DoesNotOverwriteExistingConfig(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "brieflink")
	require.NoError(t, os.MkdirAll(configDir, 0o700))
	configPath := filepath.Join(configDir, "config")
	require.NoError(t, os.WriteFile(configPath, []byte("api_token = secret\n"), 0o600))

	cfg, err := Load(configDir)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.APIToken)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "api_token = secret\n", string(data))
}

func TestDefaultConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/brieflink", DefaultConfigDir())

	t.Setenv("XDG_CONFIG_HOME", "")
	assert.Contains(t, DefaultConfigDir(), "brieflink")
}
