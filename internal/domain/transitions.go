package domain

import "strings"

// transitionTable lists the edges any authorised actor may request.
var transitionTable = map[BookingStatus][]BookingStatus{
	StatusPending:               {StatusAccepted, StatusCancellationRequested, StatusCancelled},
	StatusAccepted:              {StatusStarted, StatusCancellationRequested, StatusCancelled},
	StatusStarted:               {StatusCompleted},
	StatusCancellationRequested: {StatusCancelled},
}

// adminOverrides are edges only an admin direct update may take. The trip is
// already in progress, so a reason must be recorded.
var adminOverrides = map[BookingStatus][]BookingStatus{
	StatusStarted: {StatusCancelled},
}

func contains(list []BookingStatus, s BookingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// CanTransition reports whether from -> to is in the regular edge table.
func CanTransition(from, to BookingStatus) bool {
	return contains(transitionTable[from], to)
}

// IsAdminOverride reports whether from -> to is reachable only through an admin override.
func IsAdminOverride(from, to BookingStatus) bool {
	return contains(adminOverrides[from], to)
}

// RequiresReason reports whether entering to from from must carry a reason.
func RequiresReason(from, to BookingStatus) bool {
	if to == StatusCancellationRequested || to == StatusCancelled {
		return true
	}
	return IsAdminOverride(from, to)
}

// CheckTransition validates an edge for the given actor. Edges outside the
// table fail with TransitionError; a known edge taken by the wrong role fails
// with ForbiddenError.
func CheckTransition(from, to BookingStatus, actor Actor, reason string) error {
	if !to.Valid() {
		return ValidationError{Field: "targetStatus", Msg: "unknown status " + string(to)}
	}
	if err := actor.Validate(); err != nil {
		return err
	}
	if from.Terminal() {
		return TransitionError{From: from, To: to, Msg: "booking is terminal"}
	}

	override := false
	switch {
	case CanTransition(from, to):
	case actor.Role == RoleAdmin && IsAdminOverride(from, to):
		override = true
	default:
		return TransitionError{From: from, To: to}
	}

	if RequiresReason(from, to) && strings.TrimSpace(reason) == "" {
		return ValidationError{Field: "reason", Msg: "required for cancellation or override"}
	}
	if override {
		return nil
	}
	if !roleMayEnter(actor.Role, from, to) {
		return ForbiddenError{Role: actor.Role, Op: "move booking to " + string(to)}
	}
	return nil
}

func roleMayEnter(role ActorRole, from, to BookingStatus) bool {
	switch to {
	case StatusAccepted, StatusStarted, StatusCompleted:
		return role == RoleDriver || role == RoleAdmin
	case StatusCancellationRequested:
		return role == RoleUser || role == RoleDriver || role == RoleAdmin
	case StatusCancelled:
		if from == StatusCancellationRequested {
			return role == RoleAdmin
		}
		return role == RoleDriver || role == RoleAdmin
	}
	return false
}
