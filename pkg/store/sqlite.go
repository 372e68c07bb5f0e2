package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/umputun/brieflink/pkg/status"
)

// SQLite implements Store backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (or creates) a SQLite database at path and applies the schema.
func NewSQLite(path string) (*SQLite, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows a single writer; one connection keeps transactions serialized
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

// ---------- projects ----------

// CreateProject inserts a new project. empty id gets a uuid, empty status becomes draft.
func (s *SQLite) CreateProject(ctx context.Context, p Project) (Project, error) {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return Project{}, errors.New("project title is required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = status.StatusDraft
	}
	if !p.Status.Known() {
		return Project{}, fmt.Errorf("unknown project status %q", p.Status)
	}
	p.CreatedAt = s.now().UTC()
	p.UpdatedAt = p.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, title, client_name, client_email, status, created_at, updated_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.Title, p.ClientName, p.ClientEmail, string(p.Status), fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt),
	)
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

const projectColumns = `id, title, client_name, client_email, status, created_at, updated_at`

// GetProject returns the project with the given id.
func (s *SQLite) GetProject(ctx context.Context, id string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Project{}, fmt.Errorf("query project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects, most recently updated first.
func (s *SQLite) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var res []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdateStatus moves the project from one status to another.
// the update only applies if the stored status still equals from, otherwise ErrConflict is returned.
// transition rules are the caller's concern.
func (s *SQLite) UpdateStatus(ctx context.Context, id string, from, to status.ProjectStatus) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE projects SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(to), fmtTime(s.now()), id, string(from))
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		if err := projectExists(ctx, tx, id); err != nil {
			return err
		}
		return fmt.Errorf("project %s is no longer %s: %w", id, from, ErrConflict)
	})
}

// ---------- briefs ----------

// SaveBrief stores the answers for a project, replacing an earlier submission.
// answers are accepted only while the project is sent; the status is checked inside the transaction.
func (s *SQLite) SaveBrief(ctx context.Context, b Brief) error {
	data, err := json.Marshal(b.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	if b.SubmittedAt.IsZero() {
		b.SubmittedAt = s.now()
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		st, err := projectStatus(ctx, tx, b.ProjectID)
		if err != nil {
			return err
		}
		if st != status.StatusSent {
			return fmt.Errorf("project %s is %s, brief is closed: %w", b.ProjectID, st, ErrConflict)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO briefs (project_id, answers, submitted_at) VALUES (?,?,?)
			 ON CONFLICT(project_id) DO UPDATE SET answers = excluded.answers, submitted_at = excluded.submitted_at`,
			b.ProjectID, string(data), fmtTime(b.SubmittedAt))
		if err != nil {
			return fmt.Errorf("save brief: %w", err)
		}
		return s.touch(ctx, tx, b.ProjectID)
	})
}

// GetBrief returns the brief submitted for a project.
func (s *SQLite) GetBrief(ctx context.Context, projectID string) (Brief, error) {
	var data, submitted string
	err := s.db.QueryRowContext(ctx, `SELECT answers, submitted_at FROM briefs WHERE project_id = ?`, projectID).
		Scan(&data, &submitted)
	if errors.Is(err, sql.ErrNoRows) {
		return Brief{}, fmt.Errorf("brief for %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return Brief{}, fmt.Errorf("query brief: %w", err)
	}

	b := Brief{ProjectID: projectID}
	if err := json.Unmarshal([]byte(data), &b.Answers); err != nil {
		return Brief{}, fmt.Errorf("unmarshal answers: %w", err)
	}
	if b.SubmittedAt, err = parseTime(submitted); err != nil {
		return Brief{}, err
	}
	return b, nil
}

// ---------- magic links ----------

// CreateMagicLink stores a token hash for a project.
func (s *SQLite) CreateMagicLink(ctx context.Context, l MagicLink) error {
	if l.Hash == "" {
		return errors.New("magic link hash is required")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := projectExists(ctx, tx, l.ProjectID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO magic_links (hash, project_id, expires_at, created_at) VALUES (?,?,?,?)`,
			l.Hash, l.ProjectID, fmtTime(l.ExpiresAt), fmtTime(s.now()))
		if err != nil {
			return fmt.Errorf("insert magic link: %w", err)
		}
		return nil
	})
}

// SendProject moves the project from status from to sent and stores the issued link.
// a project that is no longer in from gets ErrConflict and no link is stored.
func (s *SQLite) SendProject(ctx context.Context, from status.ProjectStatus, l MagicLink) error {
	if l.Hash == "" {
		return errors.New("magic link hash is required")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE projects SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(status.StatusSent), fmtTime(s.now()), l.ProjectID, string(from))
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if err := projectExists(ctx, tx, l.ProjectID); err != nil {
				return err
			}
			return fmt.Errorf("project %s is no longer %s: %w", l.ProjectID, from, ErrConflict)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO magic_links (hash, project_id, expires_at, created_at) VALUES (?,?,?,?)`,
			l.Hash, l.ProjectID, fmtTime(l.ExpiresAt), fmtTime(s.now()))
		if err != nil {
			return fmt.Errorf("insert magic link: %w", err)
		}
		return nil
	})
}

// LatestMagicLink returns the most recently issued link of a project.
func (s *SQLite) LatestMagicLink(ctx context.Context, projectID string) (MagicLink, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT hash, project_id, expires_at, created_at, last_used_at, uses FROM magic_links
		 WHERE project_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, projectID)
	l, err := scanMagicLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MagicLink{}, fmt.Errorf("magic link for %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return MagicLink{}, fmt.Errorf("query magic link: %w", err)
	}
	return l, nil
}

// MagicLinkByHash looks a link up by its token hash. expiry is not checked here.
func (s *SQLite) MagicLinkByHash(ctx context.Context, hash string) (MagicLink, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT hash, project_id, expires_at, created_at, last_used_at, uses FROM magic_links WHERE hash = ?`, hash)
	l, err := scanMagicLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MagicLink{}, fmt.Errorf("magic link: %w", ErrNotFound)
	}
	if err != nil {
		return MagicLink{}, fmt.Errorf("query magic link: %w", err)
	}
	return l, nil
}

func scanMagicLink(row scanner) (MagicLink, error) {
	var l MagicLink
	var expires, created string
	var lastUsed sql.NullString
	if err := row.Scan(&l.Hash, &l.ProjectID, &expires, &created, &lastUsed, &l.Uses); err != nil {
		return MagicLink{}, err
	}
	var err error
	if l.ExpiresAt, err = parseTime(expires); err != nil {
		return MagicLink{}, err
	}
	if l.CreatedAt, err = parseTime(created); err != nil {
		return MagicLink{}, err
	}
	if l.LastUsedAt, err = parseNullTime(lastUsed); err != nil {
		return MagicLink{}, err
	}
	return l, nil
}

// TouchMagicLink records a use of the link.
func (s *SQLite) TouchMagicLink(ctx context.Context, hash string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE magic_links SET uses = uses + 1, last_used_at = ? WHERE hash = ?`,
		fmtTime(at), hash)
	if err != nil {
		return fmt.Errorf("touch magic link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("magic link: %w", ErrNotFound)
	}
	return nil
}

// ---------- revisions ----------

// AddRevision records a pending change request.
func (s *SQLite) AddRevision(ctx context.Context, r Revision) (Revision, error) {
	r.Note = strings.TrimSpace(r.Note)
	if r.Note == "" {
		return Revision{}, errors.New("revision note is required")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Author == "" {
		r.Author = AuthorClient
	}
	r.CreatedAt = s.now().UTC()
	r.ResolvedAt = nil

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := projectExists(ctx, tx, r.ProjectID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO revisions (id, project_id, note, author, created_at) VALUES (?,?,?,?,?)`,
			r.ID, r.ProjectID, r.Note, r.Author, fmtTime(r.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert revision: %w", err)
		}
		return s.touch(ctx, tx, r.ProjectID)
	})
	if err != nil {
		return Revision{}, err
	}
	return r, nil
}

// ResolveRevision marks a revision resolved. resolving an already resolved revision is a no-op.
func (s *SQLite) ResolveRevision(ctx context.Context, projectID, revisionID string, at time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE revisions SET resolved_at = ? WHERE id = ? AND project_id = ? AND resolved_at IS NULL`,
			fmtTime(at), revisionID, projectID)
		if err != nil {
			return fmt.Errorf("resolve revision: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM revisions WHERE id = ? AND project_id = ?`, revisionID, projectID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("revision %s: %w", revisionID, ErrNotFound)
			}
			return err
		}
		return s.touch(ctx, tx, projectID)
	})
}

// ListRevisions returns the revisions of a project, oldest first.
func (s *SQLite) ListRevisions(ctx context.Context, projectID string) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, note, author, created_at, resolved_at FROM revisions WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	var res []Revision
	for rows.Next() {
		r := Revision{ProjectID: projectID}
		var created string
		var resolved sql.NullString
		if err := rows.Scan(&r.ID, &r.Note, &r.Author, &created, &resolved); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if r.ResolvedAt, err = parseNullTime(resolved); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// ---------- deliverables ----------

// AddDeliverable stores a hidden deliverable for a project.
func (s *SQLite) AddDeliverable(ctx context.Context, d Deliverable) (Deliverable, error) {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return Deliverable{}, errors.New("deliverable title is required")
	}
	if !d.Kind.Valid() {
		return Deliverable{}, fmt.Errorf("unknown deliverable kind %q", d.Kind)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = s.now().UTC()
	d.Visible = false

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := projectExists(ctx, tx, d.ProjectID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO deliverables (id, project_id, title, kind, body, url, visible, created_at) VALUES (?,?,?,?,?,?,0,?)`,
			d.ID, d.ProjectID, d.Title, string(d.Kind), d.Body, d.URL, fmtTime(d.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert deliverable: %w", err)
		}
		return s.touch(ctx, tx, d.ProjectID)
	})
	if err != nil {
		return Deliverable{}, err
	}
	return d, nil
}

// ShareDeliverable shows or hides a deliverable in the client portal.
func (s *SQLite) ShareDeliverable(ctx context.Context, projectID, deliverableID string, visible bool) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE deliverables SET visible = ? WHERE id = ? AND project_id = ?`,
			boolInt(visible), deliverableID, projectID)
		if err != nil {
			return fmt.Errorf("share deliverable: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("deliverable %s: %w", deliverableID, ErrNotFound)
		}
		return s.touch(ctx, tx, projectID)
	})
}

// ListDeliverables returns the deliverables of a project, oldest first.
func (s *SQLite) ListDeliverables(ctx context.Context, projectID string, visibleOnly bool) ([]Deliverable, error) {
	query := `SELECT id, title, kind, body, url, visible, created_at FROM deliverables WHERE project_id = ?`
	if visibleOnly {
		query += ` AND visible = 1`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query deliverables: %w", err)
	}
	defer rows.Close()

	var res []Deliverable
	for rows.Next() {
		d := Deliverable{ProjectID: projectID}
		var kind, created string
		var visible int
		if err := rows.Scan(&d.ID, &d.Title, &kind, &d.Body, &d.URL, &visible, &created); err != nil {
			return nil, fmt.Errorf("scan deliverable: %w", err)
		}
		d.Kind = DeliverableKind(kind)
		d.Visible = visible != 0
		if d.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// ---------- derived flags ----------

// Flags computes whether the project has an unresolved client revision and any shared deliverable.
// revisions the designer notes for themselves do not count as pending.
func (s *SQLite) Flags(ctx context.Context, projectID string) (status.Flags, error) {
	var pending, shared int
	err := s.db.QueryRowContext(ctx, `SELECT
		EXISTS(SELECT 1 FROM revisions WHERE project_id = p.id AND author = ? AND resolved_at IS NULL),
		EXISTS(SELECT 1 FROM deliverables WHERE project_id = p.id AND visible = 1)
		FROM projects p WHERE p.id = ?`, AuthorClient, projectID).Scan(&pending, &shared)
	if errors.Is(err, sql.ErrNoRows) {
		return status.Flags{}, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return status.Flags{}, fmt.Errorf("query flags: %w", err)
	}
	return status.Flags{HasPendingRevision: pending != 0, HasSharedDeliverables: shared != 0}, nil
}

// ---------- helpers ----------

func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// touch bumps the project's updated_at.
func (s *SQLite) touch(ctx context.Context, tx *sql.Tx, projectID string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, fmtTime(s.now()), projectID); err != nil {
		return fmt.Errorf("touch project: %w", err)
	}
	return nil
}

// projectStatus returns the stored status of a project inside a transaction.
func projectStatus(ctx context.Context, tx *sql.Tx, id string) (status.ProjectStatus, error) {
	var st string
	err := tx.QueryRowContext(ctx, `SELECT status FROM projects WHERE id = ?`, id).Scan(&st)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query project: %w", err)
	}
	return status.ProjectStatus(st), nil
}

func projectExists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query project: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (Project, error) {
	var p Project
	var st, created, updated string
	if err := row.Scan(&p.ID, &p.Title, &p.ClientName, &p.ClientEmail, &st, &created, &updated); err != nil {
		return Project{}, err
	}
	p.Status = status.ProjectStatus(st)
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return Project{}, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return Project{}, err
	}
	return p, nil
}

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
