// Package store persists projects, briefs, magic links, revisions and deliverables.
// the store never records a project's phase; phases are derived from the status and the flags
// returned by Flags.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/umputun/brieflink/pkg/brief"
	"github.com/umputun/brieflink/pkg/status"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write loses a race with another writer or the project
// is no longer in the status the write requires.
var ErrConflict = errors.New("conflict")

// revision authors. only client revisions count as pending for the phase.
const (
	AuthorClient   = "client"
	AuthorDesigner = "designer"
)

// Project is a client engagement owned by the designer.
type Project struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	ClientName  string               `json:"client_name"`
	ClientEmail string               `json:"client_email"`
	Status      status.ProjectStatus `json:"status"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Brief is the client's questionnaire submission.
type Brief struct {
	ProjectID   string        `json:"project_id"`
	Answers     brief.Answers `json:"answers"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// MagicLink is a stored portal token. only the hash of the raw token is kept.
type MagicLink struct {
	Hash       string     `json:"-"`
	ProjectID  string     `json:"project_id"`
	ExpiresAt  time.Time  `json:"expires_at"` // zero means no expiry
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	Uses       int        `json:"uses"`
}

// Revision is a change request. it is pending until ResolvedAt is set.
type Revision struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	Note       string     `json:"note"`
	Author     string     `json:"author"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Pending reports whether the revision is still open.
func (r Revision) Pending() bool { return r.ResolvedAt == nil }

// DeliverableKind describes what a deliverable carries.
type DeliverableKind string

// deliverable kinds
const (
	KindSummary DeliverableKind = "summary" // markdown body
	KindFile    DeliverableKind = "file"    // url to an externally hosted file
	KindLink    DeliverableKind = "link"    // url to a page, e.g. a prototype
)

// Valid reports whether k is a known deliverable kind.
func (k DeliverableKind) Valid() bool {
	switch k {
	case KindSummary, KindFile, KindLink:
		return true
	}
	return false
}

// Deliverable is an artifact prepared for the client. hidden until shared.
type Deliverable struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Title     string          `json:"title"`
	Kind      DeliverableKind `json:"kind"`
	Body      string          `json:"body,omitempty"`
	URL       string          `json:"url,omitempty"`
	Visible   bool            `json:"visible"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store defines the persistence interface.
type Store interface {
	// projects
	CreateProject(ctx context.Context, p Project) (Project, error)
	GetProject(ctx context.Context, id string) (Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	UpdateStatus(ctx context.Context, id string, from, to status.ProjectStatus) error

	// briefs
	// SaveBrief stores answers only while the project is sent, ErrConflict otherwise.
	SaveBrief(ctx context.Context, b Brief) error
	GetBrief(ctx context.Context, projectID string) (Brief, error)

	// magic links
	CreateMagicLink(ctx context.Context, l MagicLink) error
	// SendProject moves the project from status from to sent and stores the link in one transaction.
	SendProject(ctx context.Context, from status.ProjectStatus, l MagicLink) error
	LatestMagicLink(ctx context.Context, projectID string) (MagicLink, error)
	MagicLinkByHash(ctx context.Context, hash string) (MagicLink, error)
	TouchMagicLink(ctx context.Context, hash string, at time.Time) error

	// revisions
	AddRevision(ctx context.Context, r Revision) (Revision, error)
	ResolveRevision(ctx context.Context, projectID, revisionID string, at time.Time) error
	ListRevisions(ctx context.Context, projectID string) ([]Revision, error)

	// deliverables
	AddDeliverable(ctx context.Context, d Deliverable) (Deliverable, error)
	ShareDeliverable(ctx context.Context, projectID, deliverableID string, visible bool) error
	ListDeliverables(ctx context.Context, projectID string, visibleOnly bool) ([]Deliverable, error)

	// Flags returns the derived resolver flags for a project.
	Flags(ctx context.Context, projectID string) (status.Flags, error)

	Close() error
}
