package web

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/brieflink/pkg/brief"
	"github.com/umputun/brieflink/pkg/magiclink"
	"github.com/umputun/brieflink/pkg/render"
	"github.com/umputun/brieflink/pkg/status"
	"github.com/umputun/brieflink/pkg/store"
)

// errBriefLocked is returned when the client resubmits after the designer started work.
var errBriefLocked = errors.New("brief can no longer be changed")

// errRevisionsClosed is returned when the client asks for a revision outside of design or review.
var errRevisionsClosed = errors.New("revisions can't be requested right now")

// portalData holds data for the portal template.
type portalData struct {
	Token         string
	Project       store.Project
	Phase         status.Phase
	Steps         []status.StepInfo
	Questionnaire *brief.Questionnaire
	Answers       brief.Answers
	Errors        map[string]string
	Submitted     bool
	SubmittedAt   time.Time
	Deliverables  []portalDeliverable
	CanRevise     bool
	Pending       int // unresolved client revisions
	Notice        string
}

// portalDeliverable is a shared deliverable with its markdown body rendered.
type portalDeliverable struct {
	store.Deliverable
	HTML template.HTML
}

// Value returns the first answer to question id, used to refill text inputs.
func (d portalData) Value(id string) string {
	if v := d.Answers[id]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Has reports whether value was picked for question id.
func (d portalData) Has(id, value string) bool {
	return slices.Contains(d.Answers[id], value)
}

// messageData holds data for the message template.
type messageData struct {
	Title string
	Text  string
}

// link resolves the token in the request path to its project state.
// writes the error page and returns false when the link is unusable.
func (s *Server) link(w http.ResponseWriter, r *http.Request) (projectState, bool) {
	hash, err := magiclink.Check(r.PathValue("token"))
	if err != nil {
		s.message(w, http.StatusNotFound, "Link not found", "This link is not valid. Ask your designer for a new one.")
		return projectState{}, false
	}
	ctx := r.Context()
	l, err := s.store.MagicLinkByHash(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		s.message(w, http.StatusNotFound, "Link not found", "This link is not valid. Ask your designer for a new one.")
		return projectState{}, false
	}
	if err != nil {
		lgr.Printf("[WARN] magic link lookup failed: %v", err)
		s.message(w, http.StatusInternalServerError, "Something went wrong", "Please try again in a moment.")
		return projectState{}, false
	}
	if magiclink.Expired(l.ExpiresAt, s.now()) {
		s.message(w, http.StatusGone, "Link expired", "This link has expired. Ask your designer to send a new one.")
		return projectState{}, false
	}
	if err := s.store.TouchMagicLink(ctx, hash, s.now()); err != nil {
		lgr.Printf("[WARN] failed to record magic link use: %v", err)
	}

	st, err := s.state(ctx, l.ProjectID)
	if err != nil {
		lgr.Printf("[WARN] portal project %s: %v", l.ProjectID, err)
		s.message(w, http.StatusNotFound, "Project not found", "This project is no longer available.")
		return projectState{}, false
	}
	return st, true
}

// handlePortal renders the questionnaire, or the project progress once the brief is in.
func (s *Server) handlePortal(w http.ResponseWriter, r *http.Request) {
	st, ok := s.link(w, r)
	if !ok {
		return
	}
	data, err := s.portalData(r.Context(), r.PathValue("token"), st)
	if err != nil {
		lgr.Printf("[WARN] portal data for %s: %v", st.Project.ID, err)
		s.message(w, http.StatusInternalServerError, "Something went wrong", "Please try again in a moment.")
		return
	}
	switch r.URL.Query().Get("done") {
	case "brief":
		data.Notice = "Thanks! Your answers were sent to your designer."
	case "revision":
		data.Notice = "Your revision request was sent."
	}
	s.renderPortal(w, http.StatusOK, data)
}

// handleSubmitBrief accepts the questionnaire form. answers can be changed until the designer starts work.
func (s *Server) handleSubmitBrief(w http.ResponseWriter, r *http.Request) {
	st, ok := s.link(w, r)
	if !ok {
		return
	}
	if st.Project.Status != status.StatusSent {
		s.message(w, http.StatusConflict, "Brief already in progress", "Your designer has started working on this brief.")
		return
	}
	if err := r.ParseForm(); err != nil {
		s.message(w, http.StatusBadRequest, "Invalid form", "The form could not be read.")
		return
	}

	ctx := r.Context()
	token := r.PathValue("token")
	q := s.questions.Current()
	answers := q.FromForm(r.PostForm)
	if err := q.Validate(answers); err != nil {
		var verr *brief.ValidationError
		if !errors.As(err, &verr) {
			s.message(w, http.StatusInternalServerError, "Something went wrong", "Please try again in a moment.")
			return
		}
		data, derr := s.portalData(ctx, token, st)
		if derr != nil {
			s.message(w, http.StatusInternalServerError, "Something went wrong", "Please try again in a moment.")
			return
		}
		data.Submitted, data.Answers, data.Errors = false, answers, verr.Fields
		s.renderPortal(w, http.StatusUnprocessableEntity, data)
		return
	}

	_, err := s.change(ctx, st.Project.ID, activity{typ: EventTypeBrief, text: "brief submitted"}, func(before projectState) error {
		if before.Project.Status != status.StatusSent {
			return errBriefLocked
		}
		return s.store.SaveBrief(ctx, store.Brief{ProjectID: before.Project.ID, Answers: answers, SubmittedAt: s.now()})
	})
	if errors.Is(err, errBriefLocked) || errors.Is(err, store.ErrConflict) {
		s.message(w, http.StatusConflict, "Brief already in progress", "Your designer has started working on this brief.")
		return
	}
	if err != nil {
		lgr.Printf("[WARN] save brief for %s: %v", st.Project.ID, err)
		s.message(w, http.StatusInternalServerError, "Something went wrong", "Please try again in a moment.")
		return
	}
	lgr.Printf("[INFO] brief submitted for project %s", st.Project.ID)
	http.Redirect(w, r, "/p/"+token+"?done=brief", http.StatusSeeOther)
}

// handleClientRevision records a revision request from the client.
func (s *Server) handleClientRevision(w http.ResponseWriter, r *http.Request) {
	st, ok := s.link(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.message(w, http.StatusBadRequest, "Invalid form", "The form could not be read.")
		return
	}
	note := strings.TrimSpace(r.PostForm.Get("note"))
	token := r.PathValue("token")
	if note == "" {
		http.Redirect(w, r, "/p/"+token, http.StatusSeeOther)
		return
	}

	ctx := r.Context()
	_, err := s.change(ctx, st.Project.ID, activity{typ: EventTypeRevision, text: "client requested a revision"},
		func(before projectState) error {
			if !canRevise(before.Project.Status) {
				return errRevisionsClosed
			}
			_, err := s.store.AddRevision(ctx, store.Revision{ProjectID: before.Project.ID, Note: note, Author: store.AuthorClient})
			return err
		})
	if errors.Is(err, errRevisionsClosed) {
		s.message(w, http.StatusConflict, "Revisions closed", "Revisions can be requested while the design is in progress or in review.")
		return
	}
	if err != nil {
		lgr.Printf("[WARN] client revision for %s: %v", st.Project.ID, err)
		s.message(w, http.StatusInternalServerError, "Something went wrong", "Please try again in a moment.")
		return
	}
	http.Redirect(w, r, "/p/"+token+"?done=revision", http.StatusSeeOther)
}

// portalData collects what the portal page shows for a project.
func (s *Server) portalData(ctx context.Context, token string, st projectState) (portalData, error) {
	data := portalData{
		Token:         token,
		Project:       st.Project,
		Phase:         st.Phase,
		Steps:         status.Steps(st.Phase),
		Questionnaire: s.questions.Current(),
		CanRevise:     canRevise(st.Project.Status),
	}

	b, err := s.store.GetBrief(ctx, st.Project.ID)
	switch {
	case err == nil:
		data.Answers, data.Submitted, data.SubmittedAt = b.Answers, true, b.SubmittedAt
	case !errors.Is(err, store.ErrNotFound):
		return portalData{}, err
	}

	revisions, err := s.store.ListRevisions(ctx, st.Project.ID)
	if err != nil {
		return portalData{}, err
	}
	for _, rev := range revisions {
		if rev.Pending() && rev.Author == store.AuthorClient {
			data.Pending++
		}
	}

	shared, err := s.store.ListDeliverables(ctx, st.Project.ID, true)
	if err != nil {
		return portalData{}, err
	}
	for _, d := range shared {
		pd := portalDeliverable{Deliverable: d}
		if d.Kind == store.KindSummary {
			if pd.HTML, err = render.HTML(d.Body); err != nil {
				return portalData{}, err
			}
		}
		data.Deliverables = append(data.Deliverables, pd)
	}
	return data, nil
}

func canRevise(st status.ProjectStatus) bool {
	return st == status.StatusInProgress || st == status.StatusCompleted
}

func (s *Server) renderPortal(w http.ResponseWriter, code int, data portalData) {
	s.renderPage(w, code, "portal.html", data)
}

func (s *Server) message(w http.ResponseWriter, code int, title, text string) {
	s.renderPage(w, code, "message.html", messageData{Title: title, Text: text})
}

// renderPage executes the template into a buffer so a failing template never sends a partial page.
func (s *Server) renderPage(w http.ResponseWriter, code int, name string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		lgr.Printf("[WARN] render %s: %v", name, err)
		http.Error(w, "template execution error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}
