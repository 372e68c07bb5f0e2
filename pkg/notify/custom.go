package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// customChannel runs a user script for notifications.
type customChannel struct {
	scriptPath string
}

// customEvent is the JSON document piped to the custom script.
type customEvent struct {
	Type        string       `json:"type"` // "invite" or "phase_change"
	Invite      *Invite      `json:"invite,omitempty"`
	PhaseChange *PhaseChange `json:"phase_change,omitempty"`
}

// newCustomChannel creates a new custom notification channel with the given script path.
func newCustomChannel(scriptPath string) *customChannel {
	return &customChannel{scriptPath: scriptPath}
}

// send marshals the event to JSON and pipes it to the script's stdin.
func (c *customChannel) send(ctx context.Context, ev customEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.scriptPath) //nolint:gosec // path comes from user config, not user input
	cmd.Stdin = bytes.NewReader(data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err = cmd.Run(); err != nil {
		if out := strings.TrimSpace(stdout.String() + " " + stderr.String()); out != "" {
			return fmt.Errorf("script %s: %w, output: %s", c.scriptPath, err, out)
		}
		return fmt.Errorf("script %s: %w", c.scriptPath, err)
	}
	return nil
}
