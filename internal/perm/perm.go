// Package perm decides who may see and change what. Every function is pure: it reads
// the session and, for ownership checks, the entity, and never performs I/O.
package perm

import (
	"path"
	"strings"

	"taskdash/internal/model"
	"taskdash/internal/session"
)

type Capability string

const (
	Public        Capability = "public"
	Authenticated Capability = "authenticated"
	AdminOnly     Capability = "admin"
)

type Outcome string

const (
	Allow   Outcome = "allow"
	Deny    Outcome = "deny"
	Pending Outcome = "pending"
)

type Reason string

const (
	NotAuthenticated Reason = "not_authenticated"
	InsufficientRole Reason = "insufficient_role"
)

// Decision is the gate result. Reason is set only when Outcome is Deny.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Reason  Reason  `json:"reason,omitempty"`
}

func (d Decision) Allowed() bool { return d.Outcome == Allow }

func (d Decision) String() string {
	if d.Reason != "" {
		return string(d.Outcome) + "(" + string(d.Reason) + ")"
	}
	return string(d.Outcome)
}

// CanAccess evaluates the gate.
//
// Order:
// - a session that is still resolving is Pending, never a premature Deny.
// - Public capabilities are always allowed.
// - no principal: Deny(NotAuthenticated).
// - AdminOnly and the principal is not an admin: Deny(InsufficientRole).
// - otherwise Allow.
func CanAccess(s session.State, c Capability) Decision {
	if s.IsLoading {
		return Decision{Outcome: Pending}
	}
	if c == Public {
		return Decision{Outcome: Allow}
	}
	if !s.IsAuthenticated || s.Principal == nil {
		return Decision{Outcome: Deny, Reason: NotAuthenticated}
	}
	if c == AdminOnly && !s.Principal.IsAdmin() {
		return Decision{Outcome: Deny, Reason: InsufficientRole}
	}
	return Decision{Outcome: Allow}
}

var publicRoutes = map[string]bool{
	"/login":    true,
	"/register": true,
	"/help":     true,
	"/terms":    true,
	"/privacy":  true,
}

// RouteCapability maps a dashboard route to the capability it requires. known is false
// for routes outside the table; those require Authenticated.
func RouteCapability(route string) (c Capability, known bool) {
	p := path.Clean("/" + strings.Trim(strings.TrimSpace(route), "/"))
	if publicRoutes[p] {
		return Public, true
	}
	segs := strings.Split(strings.TrimPrefix(p, "/"), "/")
	switch segs[0] {
	case "", "dashboard", "my-tasks", "profile":
		if len(segs) == 1 {
			return Authenticated, true
		}
	case "users":
		// /users, /users/create, /users/:id, /users/:id/edit
		if len(segs) <= 3 {
			return AdminOnly, true
		}
	case "tasks":
		switch {
		case len(segs) == 1:
			return AdminOnly, true
		case len(segs) == 2 && segs[1] == "create":
			return AdminOnly, true
		case len(segs) == 2:
			return Authenticated, true
		case len(segs) == 3 && segs[2] == "edit":
			return AdminOnly, true
		}
	}
	return Authenticated, false
}

func principalOf(s session.State) (*model.Principal, bool) {
	if !s.IsAuthenticated || s.Principal == nil || strings.TrimSpace(s.Principal.ID) == "" {
		return nil, false
	}
	return s.Principal, true
}

func isAssigneeOrCreator(p *model.Principal, t model.Task) bool {
	return t.AssignedTo.ID == p.ID || (!t.CreatedBy.IsZero() && t.CreatedBy.ID == p.ID)
}

// CanEditTask: full edits (title, dates, assignee, documents) are admin-only.
func CanEditTask(s session.State, t model.Task) bool {
	p, ok := principalOf(s)
	return ok && p.IsAdmin()
}

// CanCreateTask is admin-only.
func CanCreateTask(s session.State) bool {
	p, ok := principalOf(s)
	return ok && p.IsAdmin()
}

// CanChangeTaskStatus allows admins, the assignee, and the creator.
func CanChangeTaskStatus(s session.State, t model.Task) bool {
	p, ok := principalOf(s)
	if !ok {
		return false
	}
	return p.IsAdmin() || isAssigneeOrCreator(p, t)
}

// CanDeleteTask allows admins, the assignee, and the creator.
func CanDeleteTask(s session.State, t model.Task) bool {
	return CanChangeTaskStatus(s, t)
}

func CanViewTask(s session.State, t model.Task) bool {
	return CanChangeTaskStatus(s, t)
}

// CanUpdateUser allows admins, and any principal on their own record.
func CanUpdateUser(s session.State, targetID string) bool {
	p, ok := principalOf(s)
	if !ok {
		return false
	}
	return p.IsAdmin() || p.ID == strings.TrimSpace(targetID)
}

// CanChangeRole: only admins assign roles.
func CanChangeRole(s session.State) bool {
	p, ok := principalOf(s)
	return ok && p.IsAdmin()
}

func CanManageUsers(s session.State) bool {
	p, ok := principalOf(s)
	return ok && p.IsAdmin()
}

// CanDeleteUser is admin-only, and an admin cannot delete their own account.
func CanDeleteUser(s session.State, targetID string) bool {
	p, ok := principalOf(s)
	return ok && p.IsAdmin() && p.ID != strings.TrimSpace(targetID)
}
