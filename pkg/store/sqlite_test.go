package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/brieflink/pkg/brief"
	"github.com/umputun/brieflink/pkg/status"
)

// newTestStore opens a fresh database with a clock advancing one second per call.
func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func createProject(t *testing.T, s *SQLite, title string) Project {
	t.Helper()
	p, err := s.CreateProject(context.Background(), Project{Title: title, ClientName: "Ana", ClientEmail: "ana@example.com"})
	require.NoError(t, err)
	return p
}

func TestSQLite_Projects(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t.Run("create defaults", func(t *testing.T) {
		p := createProject(t, s, "  Bakery rebrand ")
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, "Bakery rebrand", p.Title)
		assert.Equal(t, status.StatusDraft, p.Status)
		assert.False(t, p.CreatedAt.IsZero())

		got, err := s.GetProject(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.Title, got.Title)
		assert.Equal(t, "ana@example.com", got.ClientEmail)
		assert.True(t, p.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("create rejects bad input", func(t *testing.T) {
		_, err := s.CreateProject(ctx, Project{Title: "  "})
		require.Error(t, err)
		_, err = s.CreateProject(ctx, Project{Title: "x", Status: "archived"})
		require.Error(t, err)
	})

	t.Run("missing project", func(t *testing.T) {
		_, err := s.GetProject(ctx, "nope")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		s := newTestStore(t)
		a := createProject(t, s, "first")
		b := createProject(t, s, "second")
		list, err := s.ListProjects(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, b.ID, list[0].ID)

		// touching the older project moves it up
		_, err = s.AddRevision(ctx, Revision{ProjectID: a.ID, Note: "bigger logo"})
		require.NoError(t, err)
		list, err = s.ListProjects(ctx)
		require.NoError(t, err)
		assert.Equal(t, a.ID, list[0].ID)
	})
}

func TestSQLite_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := createProject(t, s, "site")

	require.NoError(t, s.UpdateStatus(ctx, p.ID, status.StatusDraft, status.StatusSent))
	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, status.StatusSent, got.Status)
	assert.True(t, got.UpdatedAt.After(p.UpdatedAt))

	err = s.UpdateStatus(ctx, p.ID, status.StatusDraft, status.StatusSent)
	require.ErrorIs(t, err, ErrConflict, "stale from status")

	err = s.UpdateStatus(ctx, "nope", status.StatusDraft, status.StatusSent)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Brief(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := createProject(t, s, "site")

	_, err := s.GetBrief(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotFound)

	answers := brief.Answers{"business": {"Bakery"}, "colors": {"warm", "earthy"}}
	err = s.SaveBrief(ctx, Brief{ProjectID: p.ID, Answers: answers})
	require.ErrorIs(t, err, ErrConflict, "draft project does not take a brief")
	require.NoError(t, s.UpdateStatus(ctx, p.ID, status.StatusDraft, status.StatusSent))

	answers = brief.Answers{"business": {"Bakery"}, "colors": {"warm", "earthy"}}
	require.NoError(t, s.SaveBrief(ctx, Brief{ProjectID: p.ID, Answers: answers}))
	b, err := s.GetBrief(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, answers, b.Answers)
	assert.False(t, b.SubmittedAt.IsZero())

	// resubmission replaces answers
	require.NoError(t, s.SaveBrief(ctx, Brief{ProjectID: p.ID, Answers: brief.Answers{"business": {"Cafe"}}}))
	b, err = s.GetBrief(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, brief.Answers{"business": {"Cafe"}}, b.Answers)

	err = s.SaveBrief(ctx, Brief{ProjectID: "nope", Answers: answers})
	require.ErrorIs(t, err, ErrNotFound)

	// once work started the brief is closed and the stored answers stay
	require.NoError(t, s.UpdateStatus(ctx, p.ID, status.StatusSent, status.StatusInProgress))
	err = s.SaveBrief(ctx, Brief{ProjectID: p.ID, Answers: answers})
	require.ErrorIs(t, err, ErrConflict)
	b, err = s.GetBrief(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, brief.Answers{"business": {"Cafe"}}, b.Answers)
}

func TestSQLite_SendProject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := createProject(t, s, "site")

	_, err := s.LatestMagicLink(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SendProject(ctx, status.StatusDraft, MagicLink{Hash: "first", ProjectID: p.ID}))
	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, status.StatusSent, got.Status)

	// resend keeps the status and adds a newer link
	require.NoError(t, s.SendProject(ctx, status.StatusSent, MagicLink{Hash: "second", ProjectID: p.ID}))
	l, err := s.LatestMagicLink(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", l.Hash)
	assert.Equal(t, p.ID, l.ProjectID)

	t.Run("stale status stores no link", func(t *testing.T) {
		err := s.SendProject(ctx, status.StatusDraft, MagicLink{Hash: "stale", ProjectID: p.ID})
		require.ErrorIs(t, err, ErrConflict)
		_, err = s.MagicLinkByHash(ctx, "stale")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate hash rolls back the status", func(t *testing.T) {
		q := createProject(t, s, "other")
		require.Error(t, s.SendProject(ctx, status.StatusDraft, MagicLink{Hash: "first", ProjectID: q.ID}))
		got, err := s.GetProject(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, status.StatusDraft, got.Status)
	})

	require.ErrorIs(t, s.SendProject(ctx, status.StatusDraft, MagicLink{Hash: "x", ProjectID: "nope"}), ErrNotFound)
	require.Error(t, s.SendProject(ctx, status.StatusDraft, MagicLink{ProjectID: p.ID}), "hash required")
}

func TestSQLite_MagicLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := createProject(t, s, "site")
	expires := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateMagicLink(ctx, MagicLink{Hash: "abc", ProjectID: p.ID, ExpiresAt: expires}))
	require.NoError(t, s.CreateMagicLink(ctx, MagicLink{Hash: "forever", ProjectID: p.ID}))
	require.Error(t, s.CreateMagicLink(ctx, MagicLink{ProjectID: p.ID}), "hash required")
	require.ErrorIs(t, s.CreateMagicLink(ctx, MagicLink{Hash: "x", ProjectID: "nope"}), ErrNotFound)

	l, err := s.MagicLinkByHash(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, p.ID, l.ProjectID)
	assert.True(t, expires.Equal(l.ExpiresAt))
	assert.Nil(t, l.LastUsedAt)
	assert.Zero(t, l.Uses)

	l, err = s.MagicLinkByHash(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, l.ExpiresAt.IsZero())

	used := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.TouchMagicLink(ctx, "abc", used))
	require.NoError(t, s.TouchMagicLink(ctx, "abc", used.Add(time.Hour)))
	l, err = s.MagicLinkByHash(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, l.Uses)
	require.NotNil(t, l.LastUsedAt)
	assert.True(t, used.Add(time.Hour).Equal(*l.LastUsedAt))

	_, err = s.MagicLinkByHash(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.TouchMagicLink(ctx, "missing", used), ErrNotFound)
}

func TestSQLite_Revisions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := createProject(t, s, "site")

	_, err := s.AddRevision(ctx, Revision{ProjectID: p.ID, Note: " "})
	require.Error(t, err)
	_, err = s.AddRevision(ctx, Revision{ProjectID: "nope", Note: "x"})
	require.ErrorIs(t, err, ErrNotFound)

	r1, err := s.AddRevision(ctx, Revision{ProjectID: p.ID, Note: "warmer colors", Author: "client"})
	require.NoError(t, err)
	r2, err := s.AddRevision(ctx, Revision{ProjectID: p.ID, Note: "bigger logo"})
	require.NoError(t, err)
	assert.True(t, r1.Pending())

	at := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.ResolveRevision(ctx, p.ID, r1.ID, at))
	require.NoError(t, s.ResolveRevision(ctx, p.ID, r1.ID, at.Add(time.Hour)), "resolving twice is a no-op")
	require.ErrorIs(t, s.ResolveRevision(ctx, p.ID, "nope", at), ErrNotFound)
	require.ErrorIs(t, s.ResolveRevision(ctx, "other", r2.ID, at), ErrNotFound, "revision belongs to another project")

	list, err := s.ListRevisions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, r1.ID, list[0].ID)
	assert.Equal(t, "client", list[0].Author)
	require.NotNil(t, list[0].ResolvedAt)
	assert.True(t, at.Equal(*list[0].ResolvedAt), "first resolution time kept")
	assert.True(t, list[1].Pending())
}

func TestSQLite_Deliverables(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := createProject(t, s, "site")

	_, err := s.AddDeliverable(ctx, Deliverable{ProjectID: p.ID, Title: "logo", Kind: "pdf"})
	require.Error(t, err)
	_, err = s.AddDeliverable(ctx, Deliverable{ProjectID: p.ID, Kind: KindLink})
	require.Error(t, err)

	d1, err := s.AddDeliverable(ctx, Deliverable{ProjectID: p.ID, Title: "Moodboard", Kind: KindLink, URL: "https://example.com/m", Visible: true})
	require.NoError(t, err)
	assert.False(t, d1.Visible, "new deliverables start hidden")
	d2, err := s.AddDeliverable(ctx, Deliverable{ProjectID: p.ID, Title: "Summary", Kind: KindSummary, Body: "# hi"})
	require.NoError(t, err)

	all, err := s.ListDeliverables(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	visible, err := s.ListDeliverables(ctx, p.ID, true)
	require.NoError(t, err)
	assert.Empty(t, visible)

	require.NoError(t, s.ShareDeliverable(ctx, p.ID, d2.ID, true))
	visible, err = s.ListDeliverables(ctx, p.ID, true)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "# hi", visible[0].Body)
	assert.Equal(t, KindSummary, visible[0].Kind)

	require.NoError(t, s.ShareDeliverable(ctx, p.ID, d2.ID, false))
	visible, err = s.ListDeliverables(ctx, p.ID, true)
	require.NoError(t, err)
	assert.Empty(t, visible)

	require.ErrorIs(t, s.ShareDeliverable(ctx, p.ID, "nope", true), ErrNotFound)
}

func TestSQLite_Flags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := createProject(t, s, "site")

	f, err := s.Flags(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Flags{}, f)

	r, err := s.AddRevision(ctx, Revision{ProjectID: p.ID, Note: "x"})
	require.NoError(t, err)
	d, err := s.AddDeliverable(ctx, Deliverable{ProjectID: p.ID, Title: "logo", Kind: KindFile, URL: "https://example.com/l.svg"})
	require.NoError(t, err)

	f, err = s.Flags(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Flags{HasPendingRevision: true}, f, "hidden deliverable does not count")

	require.NoError(t, s.ShareDeliverable(ctx, p.ID, d.ID, true))
	require.NoError(t, s.ResolveRevision(ctx, p.ID, r.ID, time.Now()))
	f, err = s.Flags(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Flags{HasSharedDeliverables: true}, f)

	_, err = s.Flags(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	t.Run("designer revision is not pending for the client", func(t *testing.T) {
		q := createProject(t, s, "designer notes")
		require.NoError(t, s.UpdateStatus(ctx, q.ID, status.StatusDraft, status.StatusSent))
		require.NoError(t, s.UpdateStatus(ctx, q.ID, status.StatusSent, status.StatusInProgress))
		_, err := s.AddRevision(ctx, Revision{ProjectID: q.ID, Note: "tighten kerning", Author: AuthorDesigner})
		require.NoError(t, err)

		f, err := s.Flags(ctx, q.ID)
		require.NoError(t, err)
		assert.False(t, f.HasPendingRevision)
		assert.Equal(t, status.PhaseInDesign, status.ResolveFlags(status.StatusInProgress, f))

		_, err = s.AddRevision(ctx, Revision{ProjectID: q.ID, Note: "warmer colors", Author: AuthorClient})
		require.NoError(t, err)
		f, err = s.Flags(ctx, q.ID)
		require.NoError(t, err)
		assert.True(t, f.HasPendingRevision)
	})
}

func TestSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	p, err := s.CreateProject(context.Background(), Project{Title: "persisted"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Title)
}
