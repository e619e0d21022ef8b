package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"opsboard/internal/apperror"
	"opsboard/internal/model"
	"opsboard/internal/policy"
	"opsboard/internal/repository"
	"opsboard/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) voucher(t *testing.T, vehicle string, amount int64) *model.Voucher {
	t.Helper()
	v, err := f.vouchers.Create(context.Background(), manager, service.CreateVoucherRequest{
		VehicleRef:  vehicle,
		Description: "fuel",
		Amount:      amount,
	})
	require.NoError(t, err)
	return v
}

func TestVoucher_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.voucher(t, "TRK-01", 250)
	assert.False(t, v.Verified)
	assert.False(t, v.Paid)

	v, err := f.vouchers.Verify(ctx, admin, v.ID)
	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.Equal(t, admin.ID, v.VerifiedBy)

	v, err = f.vouchers.Settle(ctx, admin, v.ID, "CHQ-1")
	require.NoError(t, err)
	assert.True(t, v.Paid)
	assert.Equal(t, "CHQ-1", v.PaymentReference)

	f.clock.Advance(95 * time.Hour)
	v, err = f.vouchers.Unsettle(ctx, admin, v.ID)
	require.NoError(t, err)
	assert.False(t, v.Paid)
	assert.Empty(t, v.PaymentReference)
	assert.Nil(t, v.PaidAt)
	assert.True(t, v.Verified)

	_, err = f.vouchers.Settle(ctx, admin, v.ID, "CHQ-2")
	require.NoError(t, err)

	f.clock.Advance(97 * time.Hour)
	_, err = f.vouchers.Unsettle(ctx, admin, v.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrReversalWindowExpired))

	got, err := f.vouchers.Get(ctx, admin, v.ID)
	require.NoError(t, err)
	assert.True(t, got.Paid)
	assert.Equal(t, "CHQ-2", got.PaymentReference)
}

func TestVoucher_ReversalWindowBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.voucher(t, "TRK-09", 120)
	_, err := f.vouchers.Verify(ctx, admin, v.ID)
	require.NoError(t, err)
	f.clock.Freeze()

	_, err = f.vouchers.Settle(ctx, admin, v.ID, "CHQ-A")
	require.NoError(t, err)
	f.clock.Advance(service.DefaultReversalWindow)
	v, err = f.vouchers.Unsettle(ctx, admin, v.ID)
	require.NoError(t, err, "exactly at the window edge")
	assert.False(t, v.Paid)

	_, err = f.vouchers.Settle(ctx, admin, v.ID, "CHQ-B")
	require.NoError(t, err)
	f.clock.Advance(service.DefaultReversalWindow + time.Microsecond)
	_, err = f.vouchers.Unsettle(ctx, admin, v.ID)
	assert.True(t, errors.Is(err, apperror.ErrReversalWindowExpired))
}

func TestVoucher_SameStateConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.voucher(t, "TRK-02", 90)

	_, err := f.vouchers.Unverify(ctx, admin, v.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotVerified))

	_, err = f.vouchers.Unsettle(ctx, admin, v.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotPaid))

	_, err = f.vouchers.Verify(ctx, admin, v.ID)
	require.NoError(t, err)
	_, err = f.vouchers.Verify(ctx, admin, v.ID)
	assert.True(t, errors.Is(err, apperror.ErrAlreadyVerified))

	_, err = f.vouchers.Settle(ctx, admin, v.ID, "CHQ-3")
	require.NoError(t, err)
	_, err = f.vouchers.Settle(ctx, admin, v.ID, "CHQ-4")
	assert.True(t, errors.Is(err, apperror.ErrAlreadyPaid))
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
}

func TestVoucher_ManagerMayOnlyTouchPristine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.voucher(t, "TRK-03", 120)

	amount := int64(150)
	edited, err := f.vouchers.Edit(ctx, manager, v.ID, service.EditVoucherRequest{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, int64(150), edited.Amount)
	assert.Equal(t, int64(2), edited.Version)

	_, err = f.vouchers.Verify(ctx, admin, v.ID)
	require.NoError(t, err)

	amount = 175
	_, err = f.vouchers.Edit(ctx, manager, v.ID, service.EditVoucherRequest{Amount: &amount})
	assert.True(t, errors.Is(err, apperror.ErrForbidden))
	err = f.vouchers.Delete(ctx, manager, v.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	edited, err = f.vouchers.Edit(ctx, admin, v.ID, service.EditVoucherRequest{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, int64(175), edited.Amount)

	require.NoError(t, f.vouchers.Delete(ctx, admin, v.ID))
	_, err = f.vouchers.Get(ctx, admin, v.ID)
	assert.True(t, errors.Is(err, apperror.ErrVoucherNotFound))
}

func TestVoucher_RoleCheckedBeforeState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.voucher(t, "TRK-04", 60)
	_, err := f.vouchers.Verify(ctx, admin, v.ID)
	require.NoError(t, err)

	// Already verified, but a manager is told no before being told it is a no-op.
	_, err = f.vouchers.Verify(ctx, manager, v.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	// Missing vouchers are reported before any role check.
	_, err = f.vouchers.Verify(ctx, staff, uuid.New())
	assert.True(t, errors.Is(err, apperror.ErrVoucherNotFound))
}

func TestVoucher_UnverifyPaidWarns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.voucher(t, "TRK-05", 80)
	_, err := f.vouchers.Verify(ctx, admin, v.ID)
	require.NoError(t, err)
	_, err = f.vouchers.Settle(ctx, admin, v.ID, "CHQ-5")
	require.NoError(t, err)

	v, err = f.vouchers.Unverify(ctx, admin, v.ID)
	require.NoError(t, err)
	assert.False(t, v.Verified)
	assert.True(t, v.Paid)
	assert.Contains(t, f.sink.codes(), "paid_unverified")
}

func TestVoucher_GetListsPermittedActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.voucher(t, "TRK-06", 40)

	view, err := f.vouchers.Get(ctx, manager, v.ID)
	require.NoError(t, err)
	assert.Equal(t, []policy.Action{policy.VoucherEdit, policy.VoucherDelete}, view.Actions)

	view, err = f.vouchers.Get(ctx, staff, v.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Actions)

	view, err = f.vouchers.Get(ctx, admin, v.ID)
	require.NoError(t, err)
	assert.Len(t, view.Actions, len(policy.VoucherActions))
}

func TestVoucher_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.vouchers.Create(ctx, manager, service.CreateVoucherRequest{VehicleRef: "TRK-07", Amount: 0})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = f.vouchers.Create(ctx, staff, service.CreateVoucherRequest{VehicleRef: "TRK-07", Amount: 10})
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	_, err = f.vouchers.Settle(ctx, admin, uuid.New(), "")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestBulkSettle_AllOrNone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.voucher(t, "TRK-10", 10)
	b := f.voucher(t, "TRK-11", 20)
	c := f.voucher(t, "TRK-12", 30)

	_, err := f.vouchers.Settle(ctx, admin, b.ID, "CHQ-EARLY")
	require.NoError(t, err)

	_, err = f.vouchers.BulkSettle(ctx, admin, []uuid.UUID{a.ID, b.ID, c.ID}, "CHQ-BULK")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrAlreadyPaid))

	paid := true
	_, total, err := f.vouchers.List(ctx, repository.VoucherFilter{Paid: &paid}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	settled, err := f.vouchers.BulkSettle(ctx, admin, []uuid.UUID{a.ID, c.ID}, "CHQ-BULK")
	require.NoError(t, err)
	require.Len(t, settled, 2)
	for _, v := range settled {
		assert.True(t, v.Paid)
		assert.Equal(t, "CHQ-BULK", v.PaymentReference)
	}

	_, err = f.vouchers.BulkSettle(ctx, manager, []uuid.UUID{a.ID}, "CHQ-X")
	assert.True(t, errors.Is(err, apperror.ErrForbidden))
}

func TestVoucher_ListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.voucher(t, "TRK-20", 10)
	f.voucher(t, "TRK-21", 20)
	_, err := f.vouchers.Verify(ctx, admin, a.ID)
	require.NoError(t, err)

	verified := false
	list, total, err := f.vouchers.List(ctx, repository.VoucherFilter{Verified: &verified}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "TRK-21", list[0].VehicleRef)

	_, total, err = f.vouchers.List(ctx, repository.VoucherFilter{VehicleRef: "TRK-20"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
