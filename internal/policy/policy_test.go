package policy

import (
	"errors"
	"testing"

	"opsboard/internal/apperror"

	"github.com/stretchr/testify/assert"
)

func TestDefault_VoucherEditAndDelete(t *testing.T) {
	table := Default()

	states := []State{
		{Verified: false, Paid: false},
		{Verified: true, Paid: false},
		{Verified: false, Paid: true},
		{Verified: true, Paid: true},
	}

	for _, s := range states {
		assert.True(t, table.Allowed(RoleAdmin, VoucherEdit, s), "admin edit %+v", s)
		assert.True(t, table.Allowed(RoleAdmin, VoucherDelete, s), "admin delete %+v", s)

		pristine := !s.Verified && !s.Paid
		assert.Equal(t, pristine, table.Allowed(RoleManager, VoucherEdit, s), "manager edit %+v", s)
		assert.Equal(t, pristine, table.Allowed(RoleManager, VoucherDelete, s), "manager delete %+v", s)
		assert.False(t, table.Allowed(RoleOther, VoucherEdit, s))
	}
}

func TestDefault_TransitionsAreAdminOnly(t *testing.T) {
	table := Default()
	for _, a := range []Action{VoucherVerify, VoucherUnverify, VoucherSettle, VoucherUnsettle, BatchDiscard} {
		assert.True(t, table.Allowed(RoleAdmin, a, State{}), a)
		assert.False(t, table.Allowed(RoleManager, a, State{}), a)
		assert.False(t, table.Allowed(RoleOther, a, State{}), a)
	}
	assert.True(t, table.Allowed(RoleManager, BatchSettle, State{}))
}

func TestCheck_ReturnsForbidden(t *testing.T) {
	table := Default()

	err := table.Check(Actor{ID: "m1", Role: RoleManager}, VoucherEdit, State{Verified: true})
	assert.True(t, errors.Is(err, apperror.ErrForbidden))
	assert.Contains(t, err.Error(), "verified=true")

	assert.NoError(t, table.Check(Actor{ID: "a1", Role: RoleAdmin}, VoucherEdit, State{Verified: true}))
}

func TestPermitted(t *testing.T) {
	table := Default()
	got := table.Permitted(RoleManager, State{}, VoucherActions...)
	assert.Equal(t, []Action{VoucherEdit, VoucherDelete}, got)

	got = table.Permitted(RoleManager, State{Verified: true}, VoucherActions...)
	assert.Empty(t, got)
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, ParseRole("admin"))
	assert.Equal(t, RoleManager, ParseRole("manager"))
	assert.Equal(t, RoleOther, ParseRole("staff"))
	assert.Equal(t, RoleOther, ParseRole(""))
}

func TestDefault_UserAndAuditAccess(t *testing.T) {
	table := Default()
	assert.True(t, table.Allowed(RoleAdmin, UserCreate, State{}))
	assert.True(t, table.Allowed(RoleAdmin, UserList, State{}))
	assert.False(t, table.Allowed(RoleManager, UserCreate, State{}))
	assert.False(t, table.Allowed(RoleManager, UserList, State{}))

	assert.True(t, table.Allowed(RoleAdmin, AuditRead, State{}))
	assert.True(t, table.Allowed(RoleManager, AuditRead, State{}))
	assert.False(t, table.Allowed(RoleOther, AuditRead, State{}))
}
