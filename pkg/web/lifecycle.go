package web

import (
	"context"
	"fmt"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/brieflink/pkg/notify"
	"github.com/umputun/brieflink/pkg/status"
	"github.com/umputun/brieflink/pkg/store"
)

// projectState is a project with its derived phase.
type projectState struct {
	Project store.Project
	Flags   status.Flags
	Phase   status.Phase
}

// state loads a project and resolves its phase. the phase is never stored, only derived.
func (s *Server) state(ctx context.Context, projectID string) (projectState, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return projectState{}, err
	}
	f, err := s.store.Flags(ctx, projectID)
	if err != nil {
		return projectState{}, err
	}
	return projectState{Project: p, Flags: f, Phase: status.ResolveFlags(p.Status, f)}, nil
}

// activity describes a mutation for the event stream.
type activity struct {
	typ  EventType
	text string
}

// change runs fn against the current project state and publishes the outcome.
// an activity event is always broadcast; when the resolved phase differs afterwards a phase event
// is broadcast too and the designer is notified.
func (s *Server) change(ctx context.Context, projectID string, act activity,
	fn func(before projectState) error) (projectState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, err := s.state(ctx, projectID)
	if err != nil {
		return projectState{}, err
	}
	if err := fn(before); err != nil {
		return projectState{}, err
	}
	after, err := s.state(ctx, projectID)
	if err != nil {
		return projectState{}, fmt.Errorf("reload project: %w", err)
	}

	s.hub.Broadcast(NewActivityEvent(act.typ, projectID, after.Phase, after.Project.Status, act.text))
	if before.Phase != after.Phase {
		lgr.Printf("[INFO] project %s phase %s -> %s", projectID, before.Phase, after.Phase)
		s.hub.Broadcast(NewPhaseEvent(projectID, before.Phase, after.Phase, after.Project.Status))
		s.notifyAsync(ctx, func(ctx context.Context) {
			s.notifier.SendPhaseChange(ctx, notify.PhaseChange{
				ProjectID:    projectID,
				ProjectTitle: after.Project.Title,
				ClientName:   after.Project.ClientName,
				Status:       string(after.Project.Status),
				From:         before.Phase,
				To:           after.Phase,
			})
		})
	}
	return after, nil
}

// notifyAsync sends in the background, detached from the request's cancellation.
func (s *Server) notifyAsync(ctx context.Context, send func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	s.bg.Go(func() { send(ctx) })
}

// transition moves a project to status to, validating the transition against the state before the change.
func (s *Server) transition(ctx context.Context, before projectState, to status.ProjectStatus) error {
	if err := status.CheckTransition(before.Project.Status, to); err != nil {
		return err
	}
	if before.Project.Status == to {
		return nil
	}
	return s.store.UpdateStatus(ctx, before.Project.ID, before.Project.Status, to)
}
