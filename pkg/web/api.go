package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/brieflink/pkg/brief"
	"github.com/umputun/brieflink/pkg/magiclink"
	"github.com/umputun/brieflink/pkg/notify"
	"github.com/umputun/brieflink/pkg/status"
	"github.com/umputun/brieflink/pkg/store"
)

// maxBodySize limits api request bodies.
const maxBodySize = 1 << 20

// projectView is the api representation of a project with its derived phase.
type projectView struct {
	store.Project
	Phase        status.Phase        `json:"phase"`
	PhaseLabel   string              `json:"phase_label"`
	Flags        status.Flags        `json:"flags"`
	Steps        []status.StepInfo   `json:"steps"`
	Brief        *store.Brief        `json:"brief,omitempty"`
	Revisions    []store.Revision    `json:"revisions,omitempty"`
	Deliverables []store.Deliverable `json:"deliverables,omitempty"`
}

func newProjectView(st projectState) projectView {
	return projectView{
		Project:    st.Project,
		Phase:      st.Phase,
		PhaseLabel: st.Phase.Label(),
		Flags:      st.Flags,
		Steps:      status.Steps(st.Phase),
	}
}

// requireToken rejects requests without the configured bearer token.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIToken == "" {
			writeError(w, http.StatusForbidden, "designer api is disabled, set api_token")
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIToken)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="brieflink"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePhases(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, status.Phases())
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	res := make([]projectView, 0, len(projects))
	for _, p := range projects {
		f, err := s.store.Flags(r.Context(), p.ID)
		if err != nil {
			s.fail(w, err)
			return
		}
		res = append(res, newProjectView(projectState{Project: p, Flags: f, Phase: status.ResolveFlags(p.Status, f)}))
	}
	writeJSON(w, http.StatusOK, res)
}

type createProjectRequest struct {
	Title       string `json:"title"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	p, err := s.store.CreateProject(r.Context(), store.Project{
		Title:       req.Title,
		ClientName:  strings.TrimSpace(req.ClientName),
		ClientEmail: strings.TrimSpace(req.ClientEmail),
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	lgr.Printf("[INFO] project %s created: %q", p.ID, p.Title)
	writeJSON(w, http.StatusCreated, newProjectView(projectState{Project: p, Phase: status.ResolveFlags(p.Status, status.Flags{})}))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	st, err := s.state(ctx, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	view := newProjectView(st)

	b, err := s.store.GetBrief(ctx, id)
	switch {
	case err == nil:
		view.Brief = &b
	case !errors.Is(err, store.ErrNotFound):
		s.fail(w, err)
		return
	}
	if view.Revisions, err = s.store.ListRevisions(ctx, id); err != nil {
		s.fail(w, err)
		return
	}
	if view.Deliverables, err = s.store.ListDeliverables(ctx, id, false); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type sendResponse struct {
	Project   projectView `json:"project"`
	Link      string      `json:"link"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

// handleSend issues a fresh magic link and marks the project sent. re-sending keeps the project sent.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	tok, err := magiclink.New(s.cfg.MagicLinkTTL)
	if err != nil {
		s.fail(w, err)
		return
	}
	st, err := s.change(ctx, id, activity{typ: EventTypeInvite, text: "magic link issued"}, func(before projectState) error {
		if err := status.CheckTransition(before.Project.Status, status.StatusSent); err != nil {
			return err
		}
		return s.store.SendProject(ctx, before.Project.Status,
			store.MagicLink{Hash: tok.Hash, ProjectID: id, ExpiresAt: tok.ExpiresAt})
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	link := magiclink.Link(s.cfg.BaseURL, tok.Raw)
	inv := notify.Invite{
		ProjectID:    id,
		ProjectTitle: st.Project.Title,
		ClientName:   st.Project.ClientName,
		ClientEmail:  st.Project.ClientEmail,
		Link:         link,
		ExpiresAt:    tok.ExpiresAt,
	}
	s.notifyAsync(ctx, func(ctx context.Context) { s.notifier.SendInvite(ctx, inv) })
	lgr.Printf("[INFO] magic link issued for project %s", id)

	resp := sendResponse{Project: newProjectView(st), Link: link}
	if !tok.ExpiresAt.IsZero() {
		resp.ExpiresAt = &tok.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to := status.ParseStatus(req.Status)
	if !to.Known() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}
	st, err := s.change(ctx, r.PathValue("id"), activity{typ: EventTypeStatus, text: "status " + string(to)},
		func(before projectState) error { return s.transition(ctx, before, to) })
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProjectView(st))
}

// revisionRequest is a revision added by the designer. author "client" records a request the client
// made outside the portal and counts as pending for the phase; designer notes don't.
type revisionRequest struct {
	Note   string `json:"note"`
	Author string `json:"author,omitempty"` // designer (default) or client
}

func (s *Server) handleAddRevision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req revisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Note) == "" {
		writeError(w, http.StatusBadRequest, "note is required")
		return
	}
	switch req.Author {
	case "":
		req.Author = store.AuthorDesigner
	case store.AuthorDesigner, store.AuthorClient:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown author %q", req.Author))
		return
	}
	var rev store.Revision
	_, err := s.change(ctx, r.PathValue("id"), activity{typ: EventTypeRevision, text: "revision requested"},
		func(before projectState) error {
			var err error
			rev, err = s.store.AddRevision(ctx, store.Revision{ProjectID: before.Project.ID, Note: req.Note, Author: req.Author})
			return err
		})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

func (s *Server) handleResolveRevision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rid := r.PathValue("rid")
	st, err := s.change(ctx, r.PathValue("id"), activity{typ: EventTypeRevision, text: "revision resolved"},
		func(before projectState) error {
			return s.store.ResolveRevision(ctx, before.Project.ID, rid, s.now())
		})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProjectView(st))
}

type deliverableRequest struct {
	Title   string `json:"title"`
	Kind    string `json:"kind"`
	Body    string `json:"body"`
	URL     string `json:"url"`
	Visible bool   `json:"visible"`
}

func (s *Server) handleAddDeliverable(w http.ResponseWriter, r *http.Request) {
	var req deliverableRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d := store.Deliverable{Title: strings.TrimSpace(req.Title), Kind: store.DeliverableKind(req.Kind), Body: req.Body, URL: req.URL}
	switch {
	case d.Title == "":
		writeError(w, http.StatusBadRequest, "title is required")
		return
	case !d.Kind.Valid():
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown kind %q", req.Kind))
		return
	case d.Kind == store.KindSummary && strings.TrimSpace(d.Body) == "":
		writeError(w, http.StatusBadRequest, "summary deliverable needs a body")
		return
	case d.Kind != store.KindSummary && !validURL(d.URL):
		writeError(w, http.StatusBadRequest, "file and link deliverables need an http(s) url")
		return
	}
	s.addDeliverable(w, r, d, req.Visible)
}

// addDeliverable stores d and optionally shares it in the same change.
func (s *Server) addDeliverable(w http.ResponseWriter, r *http.Request, d store.Deliverable, share bool) {
	ctx := r.Context()
	text := "deliverable added"
	if share {
		text = "deliverable shared"
	}
	_, err := s.change(ctx, r.PathValue("id"), activity{typ: EventTypeDeliverable, text: text}, func(before projectState) error {
		d.ProjectID = before.Project.ID
		var err error
		if d, err = s.store.AddDeliverable(ctx, d); err != nil {
			return err
		}
		if !share {
			return nil
		}
		d.Visible = true
		return s.store.ShareDeliverable(ctx, d.ProjectID, d.ID, true)
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

type shareRequest struct {
	Visible *bool `json:"visible"` // defaults to true
}

func (s *Server) handleShareDeliverable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req shareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	visible := req.Visible == nil || *req.Visible
	text := "deliverable shared"
	if !visible {
		text = "deliverable hidden"
	}
	did := r.PathValue("did")
	st, err := s.change(ctx, r.PathValue("id"), activity{typ: EventTypeDeliverable, text: text}, func(before projectState) error {
		return s.store.ShareDeliverable(ctx, before.Project.ID, did, visible)
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProjectView(st))
}

// handleSummary turns the submitted brief into a markdown summary deliverable.
// ?share=true shares it right away.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	b, err := s.store.GetBrief(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusConflict, "client has not submitted the brief yet")
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	q := s.questions.Current()
	md := brief.Summary(q, brief.SummaryInput{ProjectTitle: p.Title, ClientName: p.ClientName, SubmittedAt: b.SubmittedAt},
		b.Answers, brief.Score(q, b.Answers))
	s.addDeliverable(w, r, store.Deliverable{Title: "Brief summary", Kind: store.KindSummary, Body: md},
		r.URL.Query().Get("share") == "true")
}

// handleEvents serves the SSE stream of one project's events.
// the current phase is sent first; past events are not replayed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := s.state(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}

	// ensure we can flush
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	eventCh := s.hub.Subscribe(id)
	defer s.hub.Unsubscribe(eventCh)

	writeEvent(w, NewPhaseEvent(id, "", st.Phase, st.Project.Status))
	flusher.Flush()

	for {
		select {
		case event, ok := <-eventCh:
			if !ok {
				return // hub closed
			}
			writeEvent(w, event)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w io.Writer, e Event) {
	data, err := e.JSON()
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
}

// fail maps err to an http status and writes it.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var verr *brief.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict), errors.Is(err, status.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		lgr.Printf("[WARN] request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		lgr.Printf("[WARN] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func validURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
