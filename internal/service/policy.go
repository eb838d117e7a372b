package service

import (
	"github.com/harlequingg/taskd/internal/authz"
	"github.com/harlequingg/taskd/internal/data"
)

// CanDelete allows only the current owner of t.
func CanDelete(p authz.Principal, t *data.Task) authz.Decision {
	if !p.IsUser() {
		return authz.Deny(authz.ReasonAnonymous)
	}
	if p.Is(t.OwnerID()) {
		return authz.Allow()
	}
	return authz.Deny(authz.ReasonNotOwner)
}

// CanReassign allows the creator of t and its current owner. The creator
// keeps this right after handing the task over.
func CanReassign(p authz.Principal, t *data.Task) authz.Decision {
	if !p.IsUser() {
		return authz.Deny(authz.ReasonAnonymous)
	}
	if p.Is(t.CreatorID) || p.Is(t.OwnerID()) {
		return authz.Allow()
	}
	return authz.Deny(authz.ReasonNotCreatorOrOwner)
}
