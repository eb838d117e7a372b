// Package authz carries the acting identity of a call and the vocabulary of
// authorization decisions.
//
// The identity is a Principal stored in a context.Context. There is no
// process-wide "current user": every authorization-sensitive call receives
// the principal explicitly through its context, and impersonation is just
// running a function with a derived context (see RunAs).
package authz

import (
	"context"
	"fmt"
)

// Kind defines principal kinds.
type Kind int

const (
	// KindAnonymous is an unauthenticated caller.
	KindAnonymous Kind = iota
	// KindUser is an authenticated user.
	KindUser
	// KindSystem is an internal operation (schema setup, background jobs).
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindAnonymous:
		return "anonymous"
	case KindUser:
		return "user"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Principal is the identity a unit of work runs as.
type Principal struct {
	Kind     Kind
	UserID   int64
	Username string
}

// Anonymous is the principal of callers that did not authenticate.
var Anonymous = Principal{Kind: KindAnonymous}

// System is the principal of internal operations.
var System = Principal{Kind: KindSystem}

// UserPrincipal returns the principal of an authenticated user.
func UserPrincipal(id int64, username string) Principal {
	return Principal{Kind: KindUser, UserID: id, Username: username}
}

// IsAnonymous reports whether p is the anonymous principal.
func (p Principal) IsAnonymous() bool {
	return p.Kind == KindAnonymous
}

// IsUser reports whether p is an authenticated user.
func (p Principal) IsUser() bool {
	return p.Kind == KindUser
}

// Is reports whether p is the user with the given id.
func (p Principal) Is(userID int64) bool {
	return p.Kind == KindUser && p.UserID == userID
}

// String returns a representation suitable for logs.
func (p Principal) String() string {
	if p.Kind == KindUser {
		return fmt.Sprintf("user:%d", p.UserID)
	}
	return p.Kind.String()
}

// Identity is anything that can act as a principal.
type Identity interface {
	Principal() Principal
}

// principalKey is unexported so no other package can forge a principal.
type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p. The parent is untouched.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// WithUser returns a copy of ctx carrying the principal of identity.
func WithUser(ctx context.Context, identity Identity) context.Context {
	return WithPrincipal(ctx, identity.Principal())
}

// WithAnonymous returns a copy of ctx carrying the anonymous principal.
func WithAnonymous(ctx context.Context) context.Context {
	return WithPrincipal(ctx, Anonymous)
}

// FromContext returns the principal of ctx. A context without one is anonymous.
func FromContext(ctx context.Context) Principal {
	if ctx == nil {
		return Anonymous
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok {
		return Anonymous
	}
	return p
}

// RequireUser returns the user principal of ctx, or a DeniedError when the
// caller is anonymous.
func RequireUser(ctx context.Context, op string) (Principal, error) {
	p := FromContext(ctx)
	if !p.IsUser() {
		return p, &DeniedError{Op: op, Reason: ReasonAnonymous, Principal: p}
	}
	return p, nil
}
