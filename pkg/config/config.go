// Package config loads brieflink configuration from ini files with embedded defaults.
// values are resolved in order: local .brieflink/config → global config dir → embedded defaults.
package config

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/umputun/brieflink/pkg/notify"
)

//go:embed defaults
var defaultsFS embed.FS

// localConfigDir is the per-project override directory, relative to the working directory.
const localConfigDir = ".brieflink"

// Config is the resolved application configuration.
type Config struct {
	Values

	configDir string // global config directory the values were loaded from
}

// Load reads configuration from configDir, installing defaults on first run.
// empty configDir uses DefaultConfigDir.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	if err := newDefaultsInstaller(defaultsFS).Install(configDir); err != nil {
		return nil, fmt.Errorf("install defaults: %w", err)
	}

	values, err := newValuesLoader(defaultsFS).Load(localConfigPath(), filepath.Join(configDir, "config"))
	if err != nil {
		return nil, fmt.Errorf("load values: %w", err)
	}

	return &Config{Values: values, configDir: configDir}, nil
}

// DefaultConfigDir returns the global config directory, $XDG_CONFIG_HOME/brieflink or ~/.config/brieflink.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "brieflink")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", localConfigDir)
	}
	return filepath.Join(home, ".config", "brieflink")
}

// localConfigPath returns the local override config path if the local directory exists.
func localConfigPath() string {
	p := filepath.Join(localConfigDir, "config")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// Dir returns the config directory the configuration was loaded from.
func (c *Config) Dir() string {
	return c.configDir
}

// DBFile returns the database path, resolving relative paths against the config directory.
func (c *Config) DBFile() string {
	if c.DBPath == "" || filepath.IsAbs(c.DBPath) {
		return c.DBPath
	}
	return filepath.Join(c.configDir, c.DBPath)
}

// QuestionnaireFile returns the questionnaire path, resolving relative paths against the config directory.
// returns empty string when the built-in questionnaire should be used.
func (c *Config) QuestionnaireFile() string {
	if c.Questionnaire == "" || filepath.IsAbs(c.Questionnaire) {
		return c.Questionnaire
	}
	return filepath.Join(c.configDir, c.Questionnaire)
}

// MagicLinkTTL returns the magic link lifetime.
func (c *Config) MagicLinkTTL() time.Duration {
	return time.Duration(c.MagicLinkTTLHours) * time.Hour
}

// NotifyParams maps notification settings to notify.Params.
func (c *Config) NotifyParams() notify.Params {
	return notify.Params{
		Channels:      c.NotifyChannels,
		OnInvite:      c.NotifyOnInvite,
		OnPhase:       c.NotifyOnPhase,
		TimeoutMs:     c.NotifyTimeoutMs,
		TelegramToken: c.TelegramToken,
		TelegramChat:  c.TelegramChat,
		SlackToken:    c.SlackToken,
		SlackChannel:  c.SlackChannel,
		SMTPHost:      c.SMTPHost,
		SMTPPort:      c.SMTPPort,
		SMTPUsername:  c.SMTPUsername,
		SMTPPassword:  c.SMTPPassword,
		SMTPStartTLS:  c.SMTPStartTLS,
		EmailFrom:     c.EmailFrom,
		EmailTo:       c.EmailTo,
		WebhookURLs:   c.WebhookURLs,
		CustomScript:  c.CustomScript,
	}
}
