package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusInProgress, ParseStatus("in_progress"))
	assert.True(t, ParseStatus("reviewed").Known())

	unknown := ParseStatus("archived")
	assert.Equal(t, ProjectStatus("archived"), unknown)
	assert.False(t, unknown.Known())
	assert.Equal(t, "archived", unknown.String())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ProjectStatus
		want     bool
	}{
		{StatusDraft, StatusSent, true},
		{StatusSent, StatusSent, true},
		{StatusSent, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusCompleted, StatusInProgress, true},
		{StatusCompleted, StatusReviewed, true},
		{StatusDraft, StatusInProgress, false},
		{StatusDraft, StatusReviewed, false},
		{StatusReviewed, StatusInProgress, false},
		{StatusReviewed, StatusReviewed, false},
		{"unknown", StatusSent, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransition(tc.from, tc.to))
		})
	}
}

func TestCheckTransition(t *testing.T) {
	require.NoError(t, CheckTransition(StatusDraft, StatusSent))

	err := CheckTransition(StatusDraft, StatusCompleted)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "draft -> completed")
}
