package approvalsync

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"opsboard/internal/apperror"
	"opsboard/internal/feed"
	"opsboard/internal/model"
	"opsboard/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Save(ctx context.Context, rowKeys []string, flags []bool) (*model.ApprovalSet, error) {
	args := m.Called(ctx, rowKeys, flags)
	set, _ := args.Get(0).(*model.ApprovalSet)
	return set, args.Error(1)
}

// funcStore lets a test control exactly when a save returns.
type funcStore func(ctx context.Context, rowKeys []string, flags []bool) (*model.ApprovalSet, error)

func (f funcStore) Save(ctx context.Context, rowKeys []string, flags []bool) (*model.ApprovalSet, error) {
	return f(ctx, rowKeys, flags)
}

func snapshot(version int64, keys []string, flags ...bool) *model.ApprovalSet {
	return &model.ApprovalSet{OrganizationID: "org1", Period: "2024-05-01", RowKeys: keys, Flags: flags, Version: version}
}

var rows = []string{"r1", "r2", "r3"}

func TestToggle_PersistsFullSet(t *testing.T) {
	store := &mockStore{}
	store.On("Save", mock.Anything, rows, []bool{false, true, false}).
		Return(snapshot(2, rows, false, true, false), nil).Once()

	s := NewSession(store, snapshot(1, rows, false, false, false), zap.NewNop())
	flags, err := s.Toggle(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false}, flags)
	assert.Equal(t, int64(2), s.Version())
	store.AssertExpectations(t)
}

func TestToggle_FailureRollsBack(t *testing.T) {
	store := &mockStore{}
	store.On("Save", mock.Anything, rows, []bool{true, false, false}).
		Return(nil, errors.New("network down")).Once()

	s := NewSession(store, snapshot(1, rows, false, false, false), zap.NewNop())
	flags, err := s.Toggle(context.Background(), 0)

	require.Error(t, err)
	assert.True(t, apperror.IsRetryable(err))
	assert.Equal(t, []bool{false, false, false}, flags)
	assert.Equal(t, []bool{false, false, false}, s.Flags())
	assert.Equal(t, int64(1), s.Version())
}

func TestToggle_DomainErrorKeepsKind(t *testing.T) {
	store := &mockStore{}
	store.On("Save", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperror.Forbidden("other may not perform approval.write")).Once()

	s := NewSession(store, snapshot(1, rows, false, false, false), zap.NewNop())
	_, err := s.Toggle(context.Background(), 2)

	assert.True(t, errors.Is(err, apperror.ErrForbidden))
	assert.False(t, apperror.IsRetryable(err))
	assert.Equal(t, []bool{false, false, false}, s.Flags())
}

func TestToggle_IndexOutOfRange(t *testing.T) {
	s := NewSession(&mockStore{}, snapshot(1, rows, false, false, false), zap.NewNop())
	_, err := s.Toggle(context.Background(), 3)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestOnRemoteChange_KeepsPendingIndex(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	store := funcStore(func(_ context.Context, keys []string, flags []bool) (*model.ApprovalSet, error) {
		close(entered)
		<-release
		return nil, errors.New("timeout")
	})

	s := NewSession(store, snapshot(1, rows, false, false, false), zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := s.Toggle(context.Background(), 0)
		done <- err
	}()
	<-entered

	// Another reviewer approved r2 and cleared r1 meanwhile.
	applied := s.OnRemoteChange(snapshot(2, rows, false, true, false))
	assert.True(t, applied)
	assert.Equal(t, []bool{true, true, false}, s.Flags(), "own click on r1 must not be reverted")

	close(release)
	require.Error(t, <-done)
	assert.Equal(t, []bool{false, true, false}, s.Flags(), "failed click rolled back, remote change kept")
	assert.Equal(t, int64(2), s.Version())
}

func TestToggle_NewerRemoteSnapshotWinsAfterSave(t *testing.T) {
	var s *Session
	store := funcStore(func(_ context.Context, keys []string, flags []bool) (*model.ApprovalSet, error) {
		// Another reviewer's clear-all lands after our write but is published first.
		s.OnRemoteChange(snapshot(3, rows, false, false, false))
		return snapshot(2, rows, true, false, false), nil
	})
	s = NewSession(store, snapshot(1, rows, false, false, false), zap.NewNop())

	flags, err := s.Toggle(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false}, flags)
	assert.Equal(t, int64(3), s.Version())
}

func TestToggle_SavedSnapshotNewerThanDeferred(t *testing.T) {
	var s *Session
	store := funcStore(func(_ context.Context, keys []string, flags []bool) (*model.ApprovalSet, error) {
		s.OnRemoteChange(snapshot(2, rows, false, true, false))
		return snapshot(3, rows, true, true, false), nil
	})
	s = NewSession(store, snapshot(1, rows, false, false, false), zap.NewNop())

	flags, err := s.Toggle(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, flags)
	assert.Equal(t, int64(3), s.Version())
}

func TestSelectAll_NewerRemoteSnapshotWinsAfterSave(t *testing.T) {
	var s *Session
	store := funcStore(func(_ context.Context, keys []string, flags []bool) (*model.ApprovalSet, error) {
		s.OnRemoteChange(snapshot(3, rows, true, false, true))
		return snapshot(2, rows, true, true, true), nil
	})
	s = NewSession(store, snapshot(1, rows, false, false, false), zap.NewNop())

	flags, err := s.SelectAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, flags)
	assert.Equal(t, int64(3), s.Version())
}

func TestOnRemoteChange_IgnoresStale(t *testing.T) {
	s := NewSession(&mockStore{}, snapshot(5, rows, true, false, false), zap.NewNop())

	assert.False(t, s.OnRemoteChange(snapshot(5, rows, false, false, false)))
	assert.False(t, s.OnRemoteChange(snapshot(4, rows, false, true, true)))
	assert.Equal(t, []bool{true, false, false}, s.Flags())
}

func TestOnRemoteChange_RowSetReplacedWholesale(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	store := funcStore(func(context.Context, []string, []bool) (*model.ApprovalSet, error) {
		close(entered)
		<-release
		return nil, apperror.Conflict(apperror.CodeRowSetChanged, "row set changed")
	})

	s := NewSession(store, snapshot(1, rows, false, false, false), zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := s.Toggle(context.Background(), 1)
		done <- err
	}()
	<-entered

	newRows := []string{"r4", "r5"}
	require.True(t, s.OnRemoteChange(snapshot(2, newRows, true, false)))

	close(release)
	err := <-done
	assert.True(t, errors.Is(err, apperror.ErrRowSetChanged))

	assert.Equal(t, newRows, s.RowKeys())
	assert.Equal(t, []bool{true, false}, s.Flags(), "late failure must not touch the new row set")
}

func TestSelectAllAndClearAll(t *testing.T) {
	store := &mockStore{}
	store.On("Save", mock.Anything, rows, []bool{true, true, true}).
		Return(snapshot(2, rows, true, true, true), nil).Once()
	store.On("Save", mock.Anything, rows, []bool{false, false, false}).
		Return(nil, errors.New("write failed")).Once()

	s := NewSession(store, snapshot(1, rows, false, true, false), zap.NewNop())

	flags, err := s.SelectAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true}, flags)

	flags, err = s.ClearAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, []bool{true, true, true}, flags)
	store.AssertExpectations(t)
}

func TestRun_AppliesFeedSnapshots(t *testing.T) {
	s := NewSession(&mockStore{}, snapshot(1, rows, false, false, false), zap.NewNop())

	payload, err := json.Marshal(snapshot(3, rows, true, false, true))
	require.NoError(t, err)

	updates := make(chan feed.Envelope, 2)
	updates <- feed.Envelope{Topic: "approvals:org1:2024-05-01", Payload: []byte(`not json`)}
	updates <- feed.Envelope{Topic: "approvals:org1:2024-05-01", Payload: payload}
	close(updates)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Run(ctx, updates)

	assert.Equal(t, []bool{true, false, true}, s.Flags())
	assert.Equal(t, int64(3), s.Version())
}

type mockSaver struct {
	mock.Mock
}

func (m *mockSaver) Save(ctx context.Context, actor policy.Actor, orgID, period string, rowKeys []string, flags []bool) (*model.ApprovalSet, error) {
	args := m.Called(ctx, actor, orgID, period, rowKeys, flags)
	set, _ := args.Get(0).(*model.ApprovalSet)
	return set, args.Error(1)
}

func TestServiceStore(t *testing.T) {
	actor := policy.Actor{ID: "m1", Role: policy.RoleManager}
	saver := &mockSaver{}
	saver.On("Save", mock.Anything, actor, "org1", "2024-05-01", rows, []bool{true, false, false}).
		Return(snapshot(2, rows, true, false, false), nil).Once()

	store := ServiceStore{Saver: saver, Actor: actor, OrgID: "org1", Period: "2024-05-01"}
	s := NewSession(store, snapshot(1, rows, false, false, false), zap.NewNop())

	_, err := s.Toggle(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, slices.Equal([]bool{true, false, false}, s.Flags()))
	saver.AssertExpectations(t)
}
