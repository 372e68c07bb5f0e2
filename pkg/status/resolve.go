package status

// Flags are the derived project facts the resolver needs besides the status.
// both are snapshots computed by the caller at read time.
type Flags struct {
	HasPendingRevision    bool `json:"has_pending_revision"`    // at least one unresolved client revision
	HasSharedDeliverables bool `json:"has_shared_deliverables"` // at least one deliverable visible to the client
}

// Resolve maps a persisted status and derived flags to the displayed phase.
// rules are evaluated in priority order, first match wins:
//   - reviewed always resolves to delivered
//   - completed without a pending revision resolves to review
//   - any pending revision resolves to revisions
//   - in_progress resolves to in_design
//   - draft, sent and unrecognized statuses resolve to submitted
//
// hasSharedDeliverables is accepted but does not change the result; callers already pass it,
// so it stays in the signature until a delivery sub-phase is defined.
func Resolve(st ProjectStatus, hasPendingRevision, hasSharedDeliverables bool) Phase {
	switch {
	case st == StatusReviewed:
		return PhaseDelivered
	case st == StatusCompleted && !hasPendingRevision:
		return PhaseReview
	case hasPendingRevision:
		return PhaseRevisions
	case st == StatusInProgress:
		return PhaseInDesign
	default:
		return PhaseSubmitted
	}
}

// ResolveFlags is Resolve taking the flags as a struct.
func ResolveFlags(st ProjectStatus, f Flags) Phase {
	return Resolve(st, f.HasPendingRevision, f.HasSharedDeliverables)
}
