package config

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

// Values holds scalar configuration values.
// Fields ending in *Set (e.g., MagicLinkTTLHoursSet) track whether that field was explicitly
// set in config. This allows distinguishing explicit false/0 from "not set", enabling
// proper merge behavior where local config can override global config with zero values.
type Values struct {
	Listen               string
	BaseURL              string
	DBPath               string
	APIToken             string
	MagicLinkTTLHours    int
	MagicLinkTTLHoursSet bool // tracks if magic_link_ttl_hours was explicitly set
	Questionnaire        string

	NotifyChannels     []string
	NotifyOnInvite     bool
	NotifyOnInviteSet  bool     // tracks if notify_on_invite was explicitly set
	NotifyOnPhase      []string // phases triggering designer notifications, empty = all
	NotifyTimeoutMs    int
	NotifyTimeoutMsSet bool // tracks if notify_timeout_ms was explicitly set
	SMTPHost           string
	SMTPPort           int
	SMTPPortSet        bool // tracks if notify_smtp_port was explicitly set
	SMTPUsername       string
	SMTPPassword       string
	SMTPStartTLS       bool
	SMTPStartTLSSet    bool // tracks if notify_smtp_starttls was explicitly set
	EmailFrom          string
	EmailTo            []string
	SlackToken         string
	SlackChannel       string
	TelegramToken      string
	TelegramChat       string
	WebhookURLs        []string
	CustomScript       string
}

// valuesLoader loads Values with embedded filesystem fallback.
type valuesLoader struct {
	embedFS embed.FS
}

// newValuesLoader creates a new valuesLoader with the given embedded filesystem.
func newValuesLoader(embedFS embed.FS) *valuesLoader {
	return &valuesLoader{embedFS: embedFS}
}

// Load loads values from config files with fallback chain: local → global → embedded.
// localConfigPath and globalConfigPath are full paths to config files (not directories).
func (vl *valuesLoader) Load(localConfigPath, globalConfigPath string) (Values, error) {
	// start with embedded defaults
	embedded, err := vl.parseValuesFromEmbedded()
	if err != nil {
		return Values{}, fmt.Errorf("parse embedded defaults: %w", err)
	}

	global, err := vl.parseValuesFromFile(globalConfigPath)
	if err != nil {
		return Values{}, fmt.Errorf("parse global config: %w", err)
	}

	local, err := vl.parseValuesFromFile(localConfigPath)
	if err != nil {
		return Values{}, fmt.Errorf("parse local config: %w", err)
	}

	// merge: embedded → global → local (local wins)
	result := embedded
	result.mergeFrom(&global)
	result.mergeFrom(&local)

	return result, nil
}

// parseValuesFromFile reads a config file and parses it into Values.
// returns empty Values (not error) if file doesn't exist or contains only comments/whitespace.
// this enables fallback to embedded defaults for files that are commented templates.
func (vl *valuesLoader) parseValuesFromFile(path string) (Values, error) {
	if path == "" {
		return Values{}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is constructed internally
	if err != nil {
		if os.IsNotExist(err) {
			return Values{}, nil
		}
		return Values{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if strings.TrimSpace(stripComments(string(data))) == "" {
		return Values{}, nil
	}

	return vl.parseValuesFromBytes(data)
}

// parseValuesFromEmbedded parses values from the embedded defaults/config file.
func (vl *valuesLoader) parseValuesFromEmbedded() (Values, error) {
	data, err := vl.embedFS.ReadFile("defaults/config")
	if err != nil {
		return Values{}, fmt.Errorf("read embedded defaults: %w", err)
	}
	return vl.parseValuesFromBytes(data)
}

// parseValuesFromBytes parses configuration from a byte slice into Values.
func (vl *valuesLoader) parseValuesFromBytes(data []byte) (Values, error) {
	// ignoreInlineComment: true prevents # from being treated as inline comment marker
	cfg, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, data)
	if err != nil {
		return Values{}, fmt.Errorf("parse config: %w", err)
	}

	var values Values
	section := cfg.Section("") // default section (no section header)

	strKeys := []struct {
		key   string
		field *string
	}{
		{"listen", &values.Listen},
		{"base_url", &values.BaseURL},
		{"db_path", &values.DBPath},
		{"api_token", &values.APIToken},
		{"questionnaire", &values.Questionnaire},
		{"notify_smtp_host", &values.SMTPHost},
		{"notify_smtp_username", &values.SMTPUsername},
		{"notify_smtp_password", &values.SMTPPassword},
		{"notify_email_from", &values.EmailFrom},
		{"notify_slack_token", &values.SlackToken},
		{"notify_slack_channel", &values.SlackChannel},
		{"notify_telegram_token", &values.TelegramToken},
		{"notify_telegram_chat", &values.TelegramChat},
		{"notify_custom_script", &values.CustomScript},
	}
	for _, sk := range strKeys {
		if key, err := section.GetKey(sk.key); err == nil {
			*sk.field = strings.TrimSpace(key.String())
		}
	}

	listKeys := []struct {
		key   string
		field *[]string
	}{
		{"notify_channels", &values.NotifyChannels},
		{"notify_on_phase", &values.NotifyOnPhase},
		{"notify_email_to", &values.EmailTo},
		{"notify_webhook_urls", &values.WebhookURLs},
	}
	for _, lk := range listKeys {
		if key, err := section.GetKey(lk.key); err == nil {
			*lk.field = splitList(key.String())
		}
	}

	intKeys := []struct {
		key   string
		field *int
		set   *bool
	}{
		{"magic_link_ttl_hours", &values.MagicLinkTTLHours, &values.MagicLinkTTLHoursSet},
		{"notify_timeout_ms", &values.NotifyTimeoutMs, &values.NotifyTimeoutMsSet},
		{"notify_smtp_port", &values.SMTPPort, &values.SMTPPortSet},
	}
	for _, ik := range intKeys {
		key, err := section.GetKey(ik.key)
		if err != nil || strings.TrimSpace(key.String()) == "" {
			continue
		}
		val, intErr := key.Int()
		if intErr != nil {
			return Values{}, fmt.Errorf("invalid %s: %w", ik.key, intErr)
		}
		if val < 0 {
			return Values{}, fmt.Errorf("invalid %s: must be non-negative, got %d", ik.key, val)
		}
		*ik.field = val
		*ik.set = true
	}

	boolKeys := []struct {
		key   string
		field *bool
		set   *bool
	}{
		{"notify_on_invite", &values.NotifyOnInvite, &values.NotifyOnInviteSet},
		{"notify_smtp_starttls", &values.SMTPStartTLS, &values.SMTPStartTLSSet},
	}
	for _, bk := range boolKeys {
		key, err := section.GetKey(bk.key)
		if err != nil || strings.TrimSpace(key.String()) == "" {
			continue
		}
		val, boolErr := key.Bool()
		if boolErr != nil {
			return Values{}, fmt.Errorf("invalid %s: %w", bk.key, boolErr)
		}
		*bk.field = val
		*bk.set = true
	}

	return values, nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(val string) []string {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil
	}
	var res []string
	for p := range strings.SplitSeq(val, ",") {
		if t := strings.TrimSpace(p); t != "" {
			res = append(res, t)
		}
	}
	return res
}

// mergeFrom merges non-empty values from src into dst.
func (dst *Values) mergeFrom(src *Values) {
	mergeStr := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	mergeList := func(d *[]string, s []string) {
		if len(s) > 0 {
			*d = s
		}
	}

	mergeStr(&dst.Listen, src.Listen)
	mergeStr(&dst.BaseURL, src.BaseURL)
	mergeStr(&dst.DBPath, src.DBPath)
	mergeStr(&dst.APIToken, src.APIToken)
	mergeStr(&dst.Questionnaire, src.Questionnaire)
	mergeStr(&dst.SMTPHost, src.SMTPHost)
	mergeStr(&dst.SMTPUsername, src.SMTPUsername)
	mergeStr(&dst.SMTPPassword, src.SMTPPassword)
	mergeStr(&dst.EmailFrom, src.EmailFrom)
	mergeStr(&dst.SlackToken, src.SlackToken)
	mergeStr(&dst.SlackChannel, src.SlackChannel)
	mergeStr(&dst.TelegramToken, src.TelegramToken)
	mergeStr(&dst.TelegramChat, src.TelegramChat)
	mergeStr(&dst.CustomScript, src.CustomScript)

	mergeList(&dst.NotifyChannels, src.NotifyChannels)
	mergeList(&dst.NotifyOnPhase, src.NotifyOnPhase)
	mergeList(&dst.EmailTo, src.EmailTo)
	mergeList(&dst.WebhookURLs, src.WebhookURLs)

	if src.MagicLinkTTLHoursSet {
		dst.MagicLinkTTLHours = src.MagicLinkTTLHours
		dst.MagicLinkTTLHoursSet = true
	}
	if src.NotifyTimeoutMsSet {
		dst.NotifyTimeoutMs = src.NotifyTimeoutMs
		dst.NotifyTimeoutMsSet = true
	}
	if src.SMTPPortSet {
		dst.SMTPPort = src.SMTPPort
		dst.SMTPPortSet = true
	}
	if src.NotifyOnInviteSet {
		dst.NotifyOnInvite = src.NotifyOnInvite
		dst.NotifyOnInviteSet = true
	}
	if src.SMTPStartTLSSet {
		dst.SMTPStartTLS = src.SMTPStartTLS
		dst.SMTPStartTLSSet = true
	}
}

// stripComments removes lines starting with # (comment lines) from content.
// handles both Unix (LF) and Windows (CRLF) line endings.
func stripComments(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	lines := make([]string, 0, strings.Count(content, "\n")+1)
	for line := range strings.SplitSeq(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
