// Package status defines the project lifecycle types for brieflink.
// persisted project statuses, the ordered display phases, and the resolver mapping one to the other.
package status

import (
	"errors"
	"fmt"
)

// ProjectStatus is the persisted lifecycle value of a project.
// handlers mutate it over the project lifetime; the phase resolver only reads it.
type ProjectStatus string

// project status constants.
const (
	StatusDraft      ProjectStatus = "draft"       // created, not sent to the client yet
	StatusSent       ProjectStatus = "sent"        // magic link delivered to the client
	StatusInProgress ProjectStatus = "in_progress" // designer is working on it
	StatusCompleted  ProjectStatus = "completed"   // designer finished, waiting for client review
	StatusReviewed   ProjectStatus = "reviewed"    // client accepted, terminal
)

// ErrInvalidTransition is returned when a status change is not allowed by the lifecycle.
var ErrInvalidTransition = errors.New("invalid status transition")

// transitions lists allowed status changes, keyed by the current status.
var transitions = map[ProjectStatus][]ProjectStatus{
	StatusDraft:      {StatusSent},
	StatusSent:       {StatusSent, StatusInProgress},
	StatusInProgress: {StatusCompleted},
	StatusCompleted:  {StatusInProgress, StatusReviewed},
}

// ParseStatus converts a raw string into a ProjectStatus.
// unknown values are kept as-is; they resolve to the earliest phase rather than failing.
func ParseStatus(s string) ProjectStatus {
	return ProjectStatus(s)
}

// Known reports whether the status is one of the defined lifecycle values.
func (s ProjectStatus) Known() bool {
	switch s {
	case StatusDraft, StatusSent, StatusInProgress, StatusCompleted, StatusReviewed:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s ProjectStatus) String() string {
	return string(s)
}

// CanTransition reports whether a project may move from one status to another.
func CanTransition(from, to ProjectStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition wrapped with both statuses if the move is not allowed.
func CheckTransition(from, to ProjectStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
