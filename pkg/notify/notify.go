// Package notify sends brieflink transactional messages: client invites and designer phase updates.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"slices"
	"strings"
	"time"

	ntfy "github.com/go-pkgz/notify"

	"github.com/umputun/brieflink/pkg/status"
)

// Params holds configuration for creating a notification Service.
type Params struct {
	Channels      []string
	OnInvite      bool     // deliver client invites through the email channel
	OnPhase       []string // phases that notify the designer, empty means all
	TimeoutMs     int
	TelegramToken string
	TelegramChat  string
	SlackToken    string
	SlackChannel  string
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPStartTLS  bool
	EmailFrom     string
	EmailTo       []string // designer addresses for phase updates
	WebhookURLs   []string
	CustomScript  string
}

// Service orchestrates sending notifications through configured channels.
type Service struct {
	channels  []channel      // designer-facing channels, paired notifier + destination
	email     *emailChannel  // optional, used for client invites and designer email
	custom    *customChannel // optional custom script channel
	onInvite  bool
	onPhase   []status.Phase
	timeoutMs int
	log       logger
}

// channel pairs a notifier with its destination URI.
type channel struct {
	notifier   ntfy.Notifier
	dest       string
	htmlEscape bool // true for channels that use HTML parse mode (e.g., telegram)
}

// emailChannel keeps the smtp notifier apart because its destination depends on the recipient and subject.
type emailChannel struct {
	notifier ntfy.Notifier
	from     string
	to       []string
}

// logger interface for dependency injection, satisfied by lgr.L.
type logger interface {
	Logf(format string, args ...any)
}

// Invite is a magic-link invitation for a client.
type Invite struct {
	ProjectID    string    `json:"project_id"`
	ProjectTitle string    `json:"project_title"`
	ClientName   string    `json:"client_name"`
	ClientEmail  string    `json:"client_email"`
	Link         string    `json:"link"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// PhaseChange describes a project moving from one displayed phase to another.
type PhaseChange struct {
	ProjectID    string       `json:"project_id"`
	ProjectTitle string       `json:"project_title"`
	ClientName   string       `json:"client_name"`
	Status       string       `json:"status"`
	From         status.Phase `json:"from"`
	To           status.Phase `json:"to"`
}

// New creates a notification Service from the given Params.
// returns nil, nil if no channels are configured, enabling callers to skip nil checks via nil-safe sends.
// validates required fields per channel and returns an error for misconfigured channels.
func New(p Params, log logger) (*Service, error) {
	if len(p.Channels) == 0 {
		return nil, nil //nolint:nilnil // nil,nil signals "no channels configured", sends on nil are no-ops
	}

	svc := &Service{
		onInvite:  p.OnInvite,
		timeoutMs: p.TimeoutMs,
		log:       log,
	}
	if svc.timeoutMs <= 0 {
		svc.timeoutMs = 10000
	}
	for _, ph := range p.OnPhase {
		phase := status.Phase(strings.TrimSpace(ph))
		if !phase.Valid() {
			return nil, fmt.Errorf("notify_on_phase: unknown phase %q", ph)
		}
		svc.onPhase = append(svc.onPhase, phase)
	}

	for _, ch := range p.Channels {
		switch strings.TrimSpace(strings.ToLower(ch)) {
		case "telegram":
			if p.TelegramToken == "" {
				return nil, errors.New("telegram channel: notify_telegram_token is required")
			}
			if p.TelegramChat == "" {
				return nil, errors.New("telegram channel: notify_telegram_chat is required")
			}
			c, cErr := telegramChannelMaker(p)
			if cErr != nil {
				// telegram init makes a live API call to verify the bot token;
				// skip the channel instead of blocking startup, notifications are best-effort.
				errMsg := strings.ReplaceAll(cErr.Error(), p.TelegramToken, "[REDACTED]")
				log.Logf("[WARN] telegram channel disabled: %s", errMsg)
				continue
			}
			svc.channels = append(svc.channels, c)
		case "email":
			em, cErr := makeEmailChannel(p)
			if cErr != nil {
				return nil, fmt.Errorf("email channel: %w", cErr)
			}
			svc.email = em
		case "slack":
			c, cErr := makeSlackChannel(p)
			if cErr != nil {
				return nil, fmt.Errorf("slack channel: %w", cErr)
			}
			svc.channels = append(svc.channels, c)
		case "webhook":
			chs, cErr := makeWebhookChannels(p)
			if cErr != nil {
				return nil, fmt.Errorf("webhook channel: %w", cErr)
			}
			svc.channels = append(svc.channels, chs...)
		case "custom":
			if p.CustomScript == "" {
				return nil, errors.New("custom channel: notify_custom_script is required")
			}
			svc.custom = newCustomChannel(p.CustomScript)
		default:
			return nil, fmt.Errorf("unknown notification channel: %q", ch)
		}
	}

	if len(svc.channels) == 0 && svc.email == nil && svc.custom == nil {
		log.Logf("[WARN] all notification channels were disabled due to initialization errors")
	}

	return svc, nil
}

// SendInvite emails the magic link to the client. nil-safe on receiver.
// the custom script receives the invite too, so installations without smtp can deliver links themselves.
// errors are logged but never returned (best-effort).
func (s *Service) SendInvite(ctx context.Context, inv Invite) {
	if s == nil || !s.onInvite {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, time.Duration(s.timeoutMs)*time.Millisecond)
	defer cancel()

	if s.email != nil && inv.ClientEmail != "" {
		subject := "Your project brief: " + inv.ProjectTitle
		dest := s.email.dest([]string{inv.ClientEmail}, subject)
		if err := s.email.notifier.Send(sendCtx, dest, formatInvite(inv)); err != nil {
			s.log.Logf("[WARN] invite email failed for project %s: %v", inv.ProjectID, err)
		}
	}

	if s.custom != nil {
		if err := s.custom.send(sendCtx, customEvent{Type: "invite", Invite: &inv}); err != nil {
			s.log.Logf("[WARN] custom invite notification failed: %v", err)
		}
	}
}

// SendPhaseChange notifies the designer that a project changed phase. nil-safe on receiver.
// changes to phases not listed in OnPhase are skipped; errors are logged, never returned.
func (s *Service) SendPhaseChange(ctx context.Context, pc PhaseChange) {
	if s == nil || pc.From == pc.To {
		return
	}
	if len(s.onPhase) > 0 && !slices.Contains(s.onPhase, pc.To) {
		return
	}

	msg := formatPhaseChange(pc)

	sendCtx, cancel := context.WithTimeout(ctx, time.Duration(s.timeoutMs)*time.Millisecond)
	defer cancel()

	for _, ch := range s.channels {
		text := msg
		if ch.htmlEscape {
			text = html.EscapeString(msg)
		}
		if err := ch.notifier.Send(sendCtx, ch.dest, text); err != nil {
			s.log.Logf("[WARN] notification failed for %s: %v", ch.notifier, err)
		}
	}

	if s.email != nil && len(s.email.to) > 0 {
		subject := fmt.Sprintf("%s: %s", pc.ProjectTitle, pc.To.Label())
		if err := s.email.notifier.Send(sendCtx, s.email.dest(s.email.to, subject), msg); err != nil {
			s.log.Logf("[WARN] phase email failed for project %s: %v", pc.ProjectID, err)
		}
	}

	if s.custom != nil {
		if err := s.custom.send(sendCtx, customEvent{Type: "phase_change", PhaseChange: &pc}); err != nil {
			s.log.Logf("[WARN] custom notification failed: %v", err)
		}
	}
}

// formatInvite creates the plain text invitation sent to a client.
func formatInvite(inv Invite) string {
	var b strings.Builder
	name := inv.ClientName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	fmt.Fprintf(&b, "please fill in the brief for %q using the link below:\n\n", inv.ProjectTitle)
	fmt.Fprintf(&b, "%s\n\n", inv.Link)
	if !inv.ExpiresAt.IsZero() {
		fmt.Fprintf(&b, "the link is valid until %s.\n", inv.ExpiresAt.Format("2006-01-02 15:04 MST"))
	}
	return b.String()
}

// formatPhaseChange creates a plain text phase update for the designer.
func formatPhaseChange(pc PhaseChange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "project %q moved to %s\n", pc.ProjectTitle, pc.To.Label())
	b.WriteString("\n")
	if pc.ClientName != "" {
		fmt.Fprintf(&b, "client:   %s\n", pc.ClientName)
	}
	if pc.From != "" {
		fmt.Fprintf(&b, "previous: %s\n", pc.From.Label())
	}
	if pc.Status != "" {
		fmt.Fprintf(&b, "status:   %s\n", pc.Status)
	}
	fmt.Fprintf(&b, "id:       %s\n", pc.ProjectID)
	return b.String()
}

// telegramChannelMaker creates a telegram notifier and destination.
// overridden in tests to avoid live API calls.
var telegramChannelMaker = makeTelegramChannel

// makeTelegramChannel creates a telegram notifier sending to telegram:<chat>?parseMode=HTML.
// caller must validate that TelegramToken and TelegramChat are non-empty before calling.
func makeTelegramChannel(p Params) (channel, error) {
	tg, err := ntfy.NewTelegram(ntfy.TelegramParams{Token: p.TelegramToken})
	if err != nil {
		return channel{}, fmt.Errorf("create telegram notifier: %w", err)
	}

	dest := fmt.Sprintf("telegram:%s?parseMode=HTML", p.TelegramChat)
	return channel{notifier: tg, dest: dest, htmlEscape: true}, nil
}

// makeEmailChannel creates the smtp notifier. designer recipients are optional,
// without them the channel only delivers client invites.
func makeEmailChannel(p Params) (*emailChannel, error) {
	if p.SMTPHost == "" {
		return nil, errors.New("notify_smtp_host is required")
	}
	if p.EmailFrom == "" {
		return nil, errors.New("notify_email_from is required")
	}

	em := ntfy.NewEmail(ntfy.SMTPParams{
		Host:     p.SMTPHost,
		Port:     p.SMTPPort,
		Username: p.SMTPUsername,
		Password: p.SMTPPassword,
		StartTLS: p.SMTPStartTLS,
	})
	return &emailChannel{notifier: em, from: p.EmailFrom, to: p.EmailTo}, nil
}

// dest builds a mailto: destination with recipients, from, and subject.
func (e *emailChannel) dest(to []string, subject string) string {
	return fmt.Sprintf("mailto:%s?from=%s&subject=%s",
		strings.Join(to, ","),
		url.QueryEscape(e.from),
		url.QueryEscape(subject),
	)
}

// makeSlackChannel creates a slack notifier and destination.
func makeSlackChannel(p Params) (channel, error) {
	if p.SlackToken == "" {
		return channel{}, errors.New("notify_slack_token is required")
	}
	if p.SlackChannel == "" {
		return channel{}, errors.New("notify_slack_channel is required")
	}

	return channel{notifier: ntfy.NewSlack(p.SlackToken), dest: "slack:" + p.SlackChannel}, nil
}

// makeWebhookChannels creates webhook notifiers for each configured URL.
func makeWebhookChannels(p Params) ([]channel, error) {
	if len(p.WebhookURLs) == 0 {
		return nil, errors.New("notify_webhook_urls is required")
	}

	wh := ntfy.NewWebhook(ntfy.WebhookParams{})
	channels := make([]channel, 0, len(p.WebhookURLs))
	for _, u := range p.WebhookURLs {
		channels = append(channels, channel{notifier: wh, dest: u})
	}
	return channels, nil
}
