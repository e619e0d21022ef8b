// Package policy holds the role table consulted by every mutating operation.
//
// A rule allows a role to perform an action when the entity is in a matching
// state. Operations ask Check(actor, action, state) instead of comparing role
// names at call sites.
package policy

import (
	"fmt"

	"opsboard/internal/apperror"
)

// Role of the calling actor, as supplied by the identity provider.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleOther   Role = "other"
)

// ParseRole maps a claim value to a Role. Unknown values become RoleOther.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin, RoleManager:
		return Role(s)
	default:
		return RoleOther
	}
}

// Actor is the (id, role) pair attached to every call.
type Actor struct {
	ID   string
	Role Role
}

// Action is a mutating operation subject to the policy table.
type Action string

const (
	VoucherCreate   Action = "voucher.create"
	VoucherEdit     Action = "voucher.edit"
	VoucherDelete   Action = "voucher.delete"
	VoucherVerify   Action = "voucher.verify"
	VoucherUnverify Action = "voucher.unverify"
	VoucherSettle   Action = "voucher.settle"
	VoucherUnsettle Action = "voucher.unsettle"

	BatchCreate  Action = "batch.create"
	BatchSettle  Action = "batch.settle"
	BatchDiscard Action = "batch.discard"

	AccountCreate Action = "account.create"
	LedgerAdjust  Action = "ledger.adjust"

	ApprovalWrite Action = "approval.write"

	UserList   Action = "user.list"
	UserCreate Action = "user.create"
	AuditRead  Action = "audit.read"
)

// State is the entity state a rule is evaluated against. Entities without a
// state axis pass the zero value.
type State struct {
	Verified bool
	Paid     bool
}

// Matcher reports whether a rule applies to the given state.
type Matcher func(State) bool

// Any matches every state.
func Any(State) bool { return true }

// Pristine matches a voucher that is neither verified nor paid.
func Pristine(s State) bool { return !s.Verified && !s.Paid }

type rule struct {
	role   Role
	action Action
	when   Matcher
}

// Table is an ordered list of allow rules; no match means forbidden.
type Table struct {
	rules []rule
}

// Allow appends a rule and returns the table for chaining.
func (t *Table) Allow(role Role, action Action, when Matcher) *Table {
	if when == nil {
		when = Any
	}
	t.rules = append(t.rules, rule{role: role, action: action, when: when})
	return t
}

// Allowed reports whether role may perform action on an entity in state s.
func (t *Table) Allowed(role Role, action Action, s State) bool {
	for _, r := range t.rules {
		if r.role == role && r.action == action && r.when(s) {
			return true
		}
	}
	return false
}

// Check returns a Forbidden error naming the action when the actor is not allowed.
func (t *Table) Check(actor Actor, action Action, s State) error {
	if t.Allowed(actor.Role, action, s) {
		return nil
	}
	return apperror.Forbidden("%s may not perform %s%s", actor.Role, action, describe(action, s))
}

// Permitted lists the actions of the given set the role may perform in state s.
func (t *Table) Permitted(role Role, s State, actions ...Action) []Action {
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		if t.Allowed(role, a, s) {
			out = append(out, a)
		}
	}
	return out
}

func describe(action Action, s State) string {
	switch action {
	case VoucherEdit, VoucherDelete:
		return fmt.Sprintf(" on a voucher with verified=%t paid=%t", s.Verified, s.Paid)
	default:
		return ""
	}
}

// VoucherActions are the actions offered on a voucher.
var VoucherActions = []Action{
	VoucherEdit, VoucherDelete, VoucherVerify, VoucherUnverify, VoucherSettle, VoucherUnsettle,
}

// Default is the production policy.
func Default() *Table {
	t := &Table{}
	t.Allow(RoleAdmin, VoucherCreate, Any).
		Allow(RoleAdmin, VoucherEdit, Any).
		Allow(RoleAdmin, VoucherDelete, Any).
		Allow(RoleAdmin, VoucherVerify, Any).
		Allow(RoleAdmin, VoucherUnverify, Any).
		Allow(RoleAdmin, VoucherSettle, Any).
		Allow(RoleAdmin, VoucherUnsettle, Any).
		Allow(RoleManager, VoucherCreate, Any).
		Allow(RoleManager, VoucherEdit, Pristine).
		Allow(RoleManager, VoucherDelete, Pristine)

	t.Allow(RoleAdmin, BatchCreate, Any).
		Allow(RoleAdmin, BatchSettle, Any).
		Allow(RoleAdmin, BatchDiscard, Any).
		Allow(RoleManager, BatchCreate, Any).
		Allow(RoleManager, BatchSettle, Any)

	t.Allow(RoleAdmin, AccountCreate, Any).
		Allow(RoleAdmin, LedgerAdjust, Any)

	t.Allow(RoleAdmin, ApprovalWrite, Any).
		Allow(RoleManager, ApprovalWrite, Any)

	t.Allow(RoleAdmin, UserList, Any).
		Allow(RoleAdmin, UserCreate, Any).
		Allow(RoleAdmin, AuditRead, Any).
		Allow(RoleManager, AuditRead, Any)

	return t
}
