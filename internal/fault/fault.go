package fault

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories the core surfaces to
// callers. The transport layer maps kinds to HTTP statuses; nothing in
// the engine inspects error strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindPrecondition
	KindForbidden
)

// Reason codes carried by Conflict and PreconditionFailed errors.
const (
	ReasonAlreadyRegistered    = "already_registered"
	ReasonCapacityFull         = "capacity_full"
	ReasonRegistrationsClosed  = "registrations_closed"
	ReasonEventBlocked         = "event_blocked"
	ReasonEventNotActive       = "event_not_active"
	ReasonDeadlinePassed       = "deadline_passed"
	ReasonAlreadyStarted       = "already_started"
	ReasonNoMainRegistration   = "main_registration_required"
	ReasonWindowOutsideParent  = "window_outside_parent"
	ReasonCapacityBelowCurrent = "capacity_below_current"
	ReasonUnknownStatus        = "unknown_status"
)

type Error struct {
	Kind     Kind
	Resource string // set for NotFound
	Reason   string // set for Conflict / PreconditionFailed
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("%s not found", e.Resource)
	case KindConflict:
		return "conflict: " + e.Reason
	case KindPrecondition:
		return "precondition failed: " + e.Reason
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown error"
	}
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Resource: resource}
}

func Conflict(reason string) *Error {
	return &Error{Kind: KindConflict, Reason: reason}
}

func Precondition(reason string) *Error {
	return &Error{Kind: KindPrecondition, Reason: reason}
}

func Forbidden() *Error {
	return &Error{Kind: KindForbidden}
}

// As unwraps err into a *Error if there is one in the chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

func IsNotFound(err error) bool { return is(err, KindNotFound) }

func IsConflict(err error) bool { return is(err, KindConflict) }

func IsPrecondition(err error) bool { return is(err, KindPrecondition) }

func IsForbidden(err error) bool { return is(err, KindForbidden) }

func is(err error, kind Kind) bool {
	fe, ok := As(err)
	return ok && fe.Kind == kind
}

// HasReason reports whether err is a fault carrying the given reason code.
func HasReason(err error, reason string) bool {
	fe, ok := As(err)
	return ok && fe.Reason == reason
}
