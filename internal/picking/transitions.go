package picking

import "fmt"

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

func allow() GuardResult { return GuardResult{Allowed: true} }

func deny(format string, args ...any) GuardResult {
	return GuardResult{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

var sessionTransitions = map[Status][]Status{
	StatusActive:       {StatusPendingAudit, StatusCancelled},
	StatusPendingAudit: {StatusAudited, StatusCompleted, StatusCancelled},
}

// CanTransition evaluates a session lifecycle move.
// Rules:
// - active may finish into pending_audit or be cancelled
// - pending_audit may be resolved by audit or cancelled by an admin
// - terminal states never move
func CanTransition(from, to Status) GuardResult {
	if from.IsTerminal() {
		return deny("session is %s and cannot change state", from)
	}
	for _, allowed := range sessionTransitions[from] {
		if allowed == to {
			return allow()
		}
	}
	return deny("cannot move session from %s to %s", from, to)
}

// CanRegisterAction evaluates whether picker actions are accepted.
// Rules:
// - only active sessions accept actions
func CanRegisterAction(status Status) GuardResult {
	if status != StatusActive {
		return deny("session is %s, actions are only accepted while active", status)
	}
	return allow()
}

// CanAdminEdit evaluates whether remove, restore and force-complete may run.
// Rules:
// - active and pending_audit sessions accept admin corrections
func CanAdminEdit(status Status) GuardResult {
	switch status {
	case StatusActive, StatusPendingAudit:
		return allow()
	default:
		return deny("session is %s, admin edits are closed", status)
	}
}

// CompleteContext provides context for the finish guard.
type CompleteContext struct {
	Status         Status
	SessionPicker  string
	RequestPicker  string
	OwnerSessionID string
	SessionID      string
}

// CanComplete evaluates whether a picker may finish a session.
// Rules:
// - the requesting picker must be the session's picker
// - the picker must still own the session
// - the session must be active
func CanComplete(ctx CompleteContext) GuardResult {
	if ctx.SessionPicker != ctx.RequestPicker {
		return deny("session %s belongs to picker %s", ctx.SessionID, ctx.SessionPicker)
	}
	if ctx.OwnerSessionID != ctx.SessionID {
		return deny("picker %s does not own session %s", ctx.RequestPicker, ctx.SessionID)
	}
	return CanTransition(ctx.Status, StatusPendingAudit)
}

// ParseAuditOutcome validates the terminal state reported by the audit workflow.
func ParseAuditOutcome(value string) (Status, GuardResult) {
	status, ok := ParseStatus(value)
	if !ok || (status != StatusAudited && status != StatusCompleted) {
		return "", deny("audit outcome must be %s or %s", StatusAudited, StatusCompleted)
	}
	return status, allow()
}
