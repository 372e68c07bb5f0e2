// Package web provides the designer API, the client portal and SSE streaming of project phase changes.
package web

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/umputun/brieflink/pkg/status"
)

// EventType represents the type of event being streamed.
type EventType string

// event type constants for SSE streaming.
const (
	EventTypePhase       EventType = "phase"       // current phase, sent on connect and when it changes
	EventTypeStatus      EventType = "status"      // project status changed
	EventTypeBrief       EventType = "brief"       // client submitted the questionnaire
	EventTypeRevision    EventType = "revision"    // revision requested or resolved
	EventTypeDeliverable EventType = "deliverable" // deliverable added or shared
	EventTypeInvite      EventType = "invite"      // magic link issued
)

// Event represents a single project event streamed to subscribers.
type Event struct {
	Type          EventType            `json:"type"`
	ProjectID     string               `json:"project_id"`
	Phase         status.Phase         `json:"phase"`
	PreviousPhase status.Phase         `json:"previous_phase,omitempty"`
	Status        status.ProjectStatus `json:"status"`
	Text          string               `json:"text,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
}

// NewPhaseEvent creates a phase event. from is empty for the initial event sent on connect.
func NewPhaseEvent(projectID string, from, to status.Phase, st status.ProjectStatus) Event {
	return Event{
		Type:          EventTypePhase,
		ProjectID:     projectID,
		Phase:         to,
		PreviousPhase: from,
		Status:        st,
		Text:          to.Label(),
		Timestamp:     time.Now(),
	}
}

// NewActivityEvent creates a non-phase event describing what happened to the project.
func NewActivityEvent(typ EventType, projectID string, phase status.Phase, st status.ProjectStatus, text string) Event {
	return Event{
		Type:      typ,
		ProjectID: projectID,
		Phase:     phase,
		Status:    st,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// JSON returns the event as JSON bytes for SSE streaming.
func (e Event) JSON() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}
