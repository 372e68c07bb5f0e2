package status

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name              string
		status            ProjectStatus
		pending, delivers bool
		want              Phase
	}{
		{name: "reviewed with all flags", status: StatusReviewed, pending: true, delivers: true, want: PhaseDelivered},
		{name: "reviewed without flags", status: StatusReviewed, want: PhaseDelivered},
		{name: "completed no deliverables", status: StatusCompleted, want: PhaseReview},
		{name: "completed with deliverables", status: StatusCompleted, delivers: true, want: PhaseReview},
		{name: "completed with pending revision", status: StatusCompleted, pending: true, want: PhaseRevisions},
		{name: "completed with pending revision and deliverables", status: StatusCompleted, pending: true, delivers: true, want: PhaseRevisions},
		{name: "in progress", status: StatusInProgress, want: PhaseInDesign},
		{name: "in progress with pending revision", status: StatusInProgress, pending: true, want: PhaseRevisions},
		{name: "draft", status: StatusDraft, want: PhaseSubmitted},
		{name: "sent", status: StatusSent, want: PhaseSubmitted},
		{name: "sent with pending revision", status: StatusSent, pending: true, want: PhaseRevisions},
		{name: "unrecognized", status: "anything_unrecognized", want: PhaseSubmitted},
		{name: "empty", status: "", want: PhaseSubmitted},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.status, tc.pending, tc.delivers)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, Resolve(tc.status, tc.pending, tc.delivers), "must be referentially transparent")
			assert.Equal(t, got, ResolveFlags(tc.status, Flags{HasPendingRevision: tc.pending, HasSharedDeliverables: tc.delivers}))
		})
	}
}

func TestResolve_AlwaysKnownPhase(t *testing.T) {
	statuses := []ProjectStatus{StatusDraft, StatusSent, StatusInProgress, StatusCompleted, StatusReviewed, "weird"}
	for _, st := range statuses {
		for _, pending := range []bool{false, true} {
			for _, delivers := range []bool{false, true} {
				assert.True(t, Resolve(st, pending, delivers).Valid(), "status=%s pending=%v delivers=%v", st, pending, delivers)
			}
		}
	}
}

func TestResolve_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	results := make([]Phase, 64)
	for i := range results {
		wg.Go(func() {
			results[i] = Resolve(StatusCompleted, true, false)
		})
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, PhaseRevisions, r)
	}
}
