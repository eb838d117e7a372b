package authz

import (
	"errors"
	"fmt"
)

// ErrAccessDenied matches every DeniedError through errors.Is.
var ErrAccessDenied = errors.New("access denied")

// Reason tags why an operation was denied.
type Reason string

const (
	ReasonAnonymous         Reason = "anonymous"
	ReasonNotOwner          Reason = "not_owner"
	ReasonNotCreatorOrOwner Reason = "not_creator_or_owner"
)

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Allow returns a positive decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a negative decision tagged with reason.
func Deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Err converts a negative decision into a *DeniedError and a positive one into nil.
func (d Decision) Err(op string, p Principal) error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Op: op, Reason: d.Reason, Principal: p}
}

// DeniedError is returned when a principal is not allowed to perform Op.
type DeniedError struct {
	Op        string
	Reason    Reason
	Principal Principal
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s denied for %s (%s)", ErrAccessDenied, e.Op, e.Principal, e.Reason)
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}

// IsDenied reports whether err is an access denial.
func IsDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// DenialReason returns the reason tag of err, if err is a denial.
func DenialReason(err error) (Reason, bool) {
	var de *DeniedError
	if errors.As(err, &de) {
		return de.Reason, true
	}
	return "", false
}
