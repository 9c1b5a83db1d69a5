// Package permission holds the pure predicates gating every mutation. The
// predicates take the resolved actor and the relevant target attributes and
// return an allow/deny decision with a reason code, so callers can surface
// "sign in" versus "verification required" distinctly.
package permission

import (
	"civicdesk/internal/identity"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
)

// Reason explains a denial.
type Reason string

const (
	ReasonAllowed         Reason = ""
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonWrongRole       Reason = "wrong_role"
	ReasonNotVerified     Reason = "not_verified"
	ReasonNotOwner        Reason = "not_owner"
)

// Decision is the result of a permission predicate.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason Reason) Decision { return Decision{Reason: reason} }

// Err converts a denial into the coded domain error callers return. Allowed
// decisions yield nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonUnauthenticated:
		return dErrors.New(dErrors.CodeUnauthenticated, "sign in to continue")
	case ReasonNotVerified:
		return dErrors.New(dErrors.CodeVerificationRequired, "account verification required")
	case ReasonNotOwner:
		return dErrors.New(dErrors.CodeForbidden, "only the author or an admin may do this")
	default:
		return dErrors.New(dErrors.CodeForbidden, "insufficient role")
	}
}

// CanCreateIssue: any signed-in user may file an issue. The rate limiter is a
// separate gate.
func CanCreateIssue(actor identity.Actor) Decision {
	if !actor.IsAuthenticated() {
		return deny(ReasonUnauthenticated)
	}
	return allow()
}

// CanDeleteIssue: only the issue's author or an admin.
func CanDeleteIssue(actor identity.Actor, authorID id.UserID) Decision {
	if !actor.IsAuthenticated() {
		return deny(ReasonUnauthenticated)
	}
	if actor.Role == id.RoleAdmin || actor.ID == authorID {
		return allow()
	}
	return deny(ReasonNotOwner)
}

// CanEngage covers commenting, voting, watching, and proposing solutions:
// open to every signed-in user, verification not required.
func CanEngage(actor identity.Actor) Decision {
	if !actor.IsAuthenticated() {
		return deny(ReasonUnauthenticated)
	}
	return allow()
}

// CanPostUpdate: verified officials and admins only. Content ownership stays
// with the author, but progress reporting belongs to government.
func CanPostUpdate(actor identity.Actor) Decision {
	return requireVerifiedOfficial(actor)
}

// CanTransitionStatus: verified officials and admins only. The admin override
// for closing from any state is encoded in the status machine, not here.
func CanTransitionStatus(actor identity.Actor) Decision {
	return requireVerifiedOfficial(actor)
}

// CanSelectSolution: marking a solution official is a government decision.
func CanSelectSolution(actor identity.Actor) Decision {
	return requireVerifiedOfficial(actor)
}

// CanAdministrate: bulk workflows and verification review.
func CanAdministrate(actor identity.Actor) Decision {
	if !actor.IsAuthenticated() {
		return deny(ReasonUnauthenticated)
	}
	if actor.Role != id.RoleAdmin {
		return deny(ReasonWrongRole)
	}
	return allow()
}

func requireVerifiedOfficial(actor identity.Actor) Decision {
	if !actor.IsAuthenticated() {
		return deny(ReasonUnauthenticated)
	}
	if actor.Role == id.RoleAdmin {
		return allow()
	}
	if actor.Role != id.RoleOfficial {
		return deny(ReasonWrongRole)
	}
	if actor.Verification != id.VerificationVerified {
		return deny(ReasonNotVerified)
	}
	return allow()
}
