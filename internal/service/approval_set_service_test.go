package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"opsboard/internal/apperror"
	"opsboard/internal/model"
	"opsboard/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovalSet_ResetThenSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows := []string{"2024-05-06:Anh", "2024-05-06:Binh", "2024-05-06:Chi"}

	set, err := f.approvals.Reset(ctx, manager, "org-1", "2024-05-01", rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1), set.Version)
	assert.Equal(t, []bool{false, false, false}, set.Flags)

	set, err = f.approvals.Save(ctx, admin, "org-1", "2024-05-01", rows, []bool{true, false, true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), set.Version)
	assert.Equal(t, admin.ID, set.UpdatedBy)

	got, err := f.approvals.Get(ctx, "org-1", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, rows, got.RowKeys)
	assert.Equal(t, []bool{true, false, true}, got.Flags)
	assert.Equal(t, int64(2), got.Version)

	events := f.publisher.all()
	require.Len(t, events, 2)
	assert.Equal(t, service.ApprovalTopic("org-1", "2024-05-01"), events[1].topic)

	var snapshot model.ApprovalSet
	require.NoError(t, json.Unmarshal(events[1].payload, &snapshot))
	assert.Equal(t, int64(2), snapshot.Version)
	assert.Equal(t, []bool{true, false, true}, snapshot.Flags)

	assert.Equal(t, int64(1), f.count(t, &model.AuditLog{}, "action = ?", model.ActionResetApprovalSet))
	assert.Equal(t, int64(1), f.count(t, &model.AuditLog{}, "action = ?", model.ActionSaveApprovalSet))
}

func TestApprovalSet_SaveRejectsChangedRowSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.approvals.Reset(ctx, manager, "org-1", "2024-05-01", []string{"a", "b"})
	require.NoError(t, err)

	_, err = f.approvals.Save(ctx, manager, "org-1", "2024-05-01", []string{"a", "b", "c"}, []bool{true, true, true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrRowSetChanged))

	got, err := f.approvals.Get(ctx, "org-1", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Len(t, f.publisher.all(), 1)
}

func TestApprovalSet_SaveCreatesMissingSet(t *testing.T) {
	f := newFixture(t)

	set, err := f.approvals.Save(context.Background(), manager, "org-2", "2024-06-01", []string{"x"}, []bool{true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), set.Version)
	assert.NotEqual(t, uuid.Nil, set.ID)
}

func TestApprovalSet_ResetBumpsVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.approvals.Save(ctx, manager, "org-1", "2024-05-01", []string{"a"}, []bool{true})
	require.NoError(t, err)

	set, err := f.approvals.Reset(ctx, manager, "org-1", "2024-05-01", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), set.Version)
	assert.Equal(t, []bool{false, false}, set.Flags)
}

func TestApprovalSet_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.approvals.Save(ctx, staff, "org-1", "2024-05-01", []string{"a"}, []bool{true})
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	_, err = f.approvals.Save(ctx, manager, "org-1", "2024-05-01", []string{"a", "b"}, []bool{true})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = f.approvals.Reset(ctx, manager, "org-1", "May", []string{"a"})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = f.approvals.Reset(ctx, manager, "org-1", "2024-05-01", []string{"a", "a"})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = f.approvals.Get(ctx, "org-1", "2024-05-01")
	assert.True(t, errors.Is(err, apperror.ErrApprovalSetNotFound))
	assert.Empty(t, f.publisher.all())
}
