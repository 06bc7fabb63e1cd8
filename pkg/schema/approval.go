package schema

// ApprovalState is the combined two-party approval state of an offer.
type ApprovalState string

const (
	ApprovalPending        ApprovalState = "pending"
	ApprovalClientApproved ApprovalState = "client_approved"
	ApprovalAdminApproved  ApprovalState = "admin_approved"
	ApprovalApproved       ApprovalState = "approved"
	ApprovalRejected       ApprovalState = "rejected"
)

// Per-track approval column values.
const (
	TrackPending  = "pending"
	TrackApproved = "approved"
	TrackRejected = "rejected"
)

// ApprovalLevel names which party performs an approval.
type ApprovalLevel string

const (
	ApprovalLevelAdmin  ApprovalLevel = "admin"
	ApprovalLevelClient ApprovalLevel = "client"
)

// Tracks derives the admin and client approval column values from a combined state.
func (s ApprovalState) Tracks() (admin, client string) {
	switch s {
	case ApprovalClientApproved:
		return TrackPending, TrackApproved
	case ApprovalAdminApproved:
		return TrackApproved, TrackPending
	case ApprovalApproved:
		return TrackApproved, TrackApproved
	case ApprovalRejected:
		return TrackRejected, TrackRejected
	default:
		return TrackPending, TrackPending
	}
}

// StateFromTracks is the inverse of Tracks for rows that only carry the two columns.
func StateFromTracks(admin, client string) ApprovalState {
	switch {
	case admin == TrackRejected || client == TrackRejected:
		return ApprovalRejected
	case admin == TrackApproved && client == TrackApproved:
		return ApprovalApproved
	case admin == TrackApproved:
		return ApprovalAdminApproved
	case client == TrackApproved:
		return ApprovalClientApproved
	default:
		return ApprovalPending
	}
}

// approvalTransitions lists, per level, the only legal move out of each state.
var approvalTransitions = map[ApprovalLevel]map[ApprovalState]ApprovalState{
	ApprovalLevelAdmin: {
		ApprovalPending:        ApprovalAdminApproved,
		ApprovalClientApproved: ApprovalApproved,
	},
	ApprovalLevelClient: {
		ApprovalPending:       ApprovalClientApproved,
		ApprovalAdminApproved: ApprovalApproved,
	},
}

// NextApproval returns the state an approval by level moves from into.
// Approving twice on the same track, approving a rejected or fully approved
// offer, or an unknown level fail with INVALID_TRANSITION.
func NextApproval(from ApprovalState, level ApprovalLevel) (ApprovalState, error) {
	moves, ok := approvalTransitions[level]
	if !ok {
		return "", NewErrorf(ErrCodeInvalidTransition, "unknown approval level %q", level)
	}
	to, ok := moves[from]
	if !ok {
		return "", NewErrorf(ErrCodeInvalidTransition, "%s approval not allowed from state %q", level, from).
			WithDetails(map[string]any{"from": string(from), "level": string(level)})
	}
	return to, nil
}
