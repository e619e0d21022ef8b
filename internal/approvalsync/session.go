// Package approvalsync keeps one reviewer's view of an approval set in step with
// the stored copy while other reviewers edit it.
//
// Local flips show immediately and are persisted as a full-set write. Remote
// snapshots replace the local flags when they are newer, except for indices the
// local reviewer is still waiting on. A snapshot with a different row set
// replaces everything. Once a pending write resolves, a newer remote flag seen
// meanwhile takes over that index.
//
// A Session is embedded by a reviewer-facing client (a desktop or CLI front end
// holding a websocket subscription); the API server only serves the store side.
package approvalsync

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"opsboard/internal/apperror"
	"opsboard/internal/feed"
	"opsboard/internal/model"

	"go.uber.org/zap"
)

// Store persists a full flag set and returns the stored snapshot.
type Store interface {
	Save(ctx context.Context, rowKeys []string, flags []bool) (*model.ApprovalSet, error)
}

// Session is the optimistic local copy of one approval set.
type Session struct {
	mu      sync.Mutex
	store   Store
	log     *zap.Logger
	rowKeys []string
	flags   []bool
	version int64
	// pending counts in-flight writes per index.
	pending map[int]int
	// deferred holds the newest remote flag skipped for a pending index.
	deferred map[int]remoteFlag
	// generation changes whenever the row set is replaced, so late results of
	// writes against the old rows leave the new state alone.
	generation int
}

type remoteFlag struct {
	version int64
	flag    bool
}

func NewSession(store Store, initial *model.ApprovalSet, log *zap.Logger) *Session {
	s := &Session{store: store, log: log, pending: make(map[int]int), deferred: make(map[int]remoteFlag)}
	if initial != nil {
		s.rowKeys = slices.Clone(initial.RowKeys)
		s.flags = slices.Clone(initial.Flags)
		s.version = initial.Version
	}
	return s
}

// Flags returns a copy of the current local flags.
func (s *Session) Flags() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.flags)
}

func (s *Session) RowKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rowKeys)
}

func (s *Session) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Toggle flips flag i locally and persists the whole set. On failure the flip is
// undone and the error returned.
func (s *Session) Toggle(ctx context.Context, i int) ([]bool, error) {
	s.mu.Lock()
	if i < 0 || i >= len(s.flags) {
		s.mu.Unlock()
		return nil, apperror.Validation("index %d out of range [0,%d)", i, len(s.flags))
	}
	s.flags[i] = !s.flags[i]
	s.pending[i]++
	gen := s.generation
	keys, flags := slices.Clone(s.rowKeys), slices.Clone(s.flags)
	s.mu.Unlock()

	saved, err := s.store.Save(ctx, keys, flags)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		if err != nil {
			return slices.Clone(s.flags), s.rollbackErr(fmt.Sprintf("toggle of row %d", i), err)
		}
		return slices.Clone(s.flags), nil
	}
	if err != nil {
		s.flags[i] = !s.flags[i]
	}
	s.resolveLocked([]int{i}, saved, err)
	if err != nil {
		return slices.Clone(s.flags), s.rollbackErr(fmt.Sprintf("toggle of row %d", i), err)
	}
	return slices.Clone(s.flags), nil
}

// SelectAll approves every row in one write.
func (s *Session) SelectAll(ctx context.Context) ([]bool, error) {
	return s.setAll(ctx, true)
}

// ClearAll clears every row in one write.
func (s *Session) ClearAll(ctx context.Context) ([]bool, error) {
	return s.setAll(ctx, false)
}

func (s *Session) setAll(ctx context.Context, value bool) ([]bool, error) {
	s.mu.Lock()
	prev := slices.Clone(s.flags)
	for i := range s.flags {
		s.flags[i] = value
		s.pending[i]++
	}
	gen := s.generation
	keys, flags := slices.Clone(s.rowKeys), slices.Clone(s.flags)
	s.mu.Unlock()

	saved, err := s.store.Save(ctx, keys, flags)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		if err != nil {
			return slices.Clone(s.flags), s.rollbackErr("bulk update", err)
		}
		return slices.Clone(s.flags), nil
	}
	indices := make([]int, len(prev))
	for i := range prev {
		indices[i] = i
	}
	if err != nil {
		copy(s.flags, prev)
	}
	s.resolveLocked(indices, saved, err)
	if err != nil {
		return slices.Clone(s.flags), s.rollbackErr("bulk update", err)
	}
	return slices.Clone(s.flags), nil
}

// resolveLocked finishes a write over indices. A remote flag deferred while an
// index was pending wins when it is newer than the saved snapshot, or when the
// write failed.
func (s *Session) resolveLocked(indices []int, saved *model.ApprovalSet, err error) {
	settled := make([]int, 0, len(indices))
	for _, i := range indices {
		s.pending[i]--
		if s.pending[i] <= 0 {
			delete(s.pending, i)
			settled = append(settled, i)
		}
	}
	if err == nil {
		s.adoptLocked(saved)
	}
	for _, i := range settled {
		d, ok := s.deferred[i]
		if !ok {
			continue
		}
		delete(s.deferred, i)
		if err != nil || saved == nil || d.version > saved.Version {
			s.flags[i] = d.flag
		}
	}
}

// OnRemoteChange merges a stored snapshot and reports whether it changed anything.
// Older or same-version snapshots are ignored.
func (s *Session) OnRemoteChange(snapshot *model.ApprovalSet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adoptLocked(snapshot)
}

func (s *Session) adoptLocked(snapshot *model.ApprovalSet) bool {
	if snapshot == nil || snapshot.Version <= s.version {
		return false
	}
	if len(snapshot.Flags) != len(snapshot.RowKeys) {
		s.log.Warn("ignoring malformed approval snapshot",
			zap.Int64("version", snapshot.Version), zap.Int("rows", len(snapshot.RowKeys)), zap.Int("flags", len(snapshot.Flags)))
		return false
	}

	if !slices.Equal(snapshot.RowKeys, s.rowKeys) {
		s.rowKeys = slices.Clone(snapshot.RowKeys)
		s.flags = slices.Clone(snapshot.Flags)
		s.version = snapshot.Version
		s.pending = make(map[int]int)
		s.deferred = make(map[int]remoteFlag)
		s.generation++
		return true
	}

	for i, f := range snapshot.Flags {
		if s.pending[i] > 0 {
			if d, ok := s.deferred[i]; !ok || snapshot.Version > d.version {
				s.deferred[i] = remoteFlag{version: snapshot.Version, flag: f}
			}
			continue
		}
		s.flags[i] = f
	}
	s.version = snapshot.Version
	return true
}

// rollbackErr keeps domain errors as they are and marks store failures retryable.
func (s *Session) rollbackErr(what string, err error) error {
	s.log.Warn("approval write rolled back", zap.String("what", what), zap.Error(err))
	return fmt.Errorf("%s rolled back: %w", what, apperror.Persistence(apperror.CodePersistenceFailure, "approval set not saved", err))
}

// Run applies snapshots from the feed until ctx is done or the channel closes.
func (s *Session) Run(ctx context.Context, updates <-chan feed.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-updates:
			if !ok {
				return
			}
			var snapshot model.ApprovalSet
			if err := json.Unmarshal(env.Payload, &snapshot); err != nil {
				s.log.Warn("dropping undecodable approval snapshot", zap.String("topic", env.Topic), zap.Error(err))
				continue
			}
			s.OnRemoteChange(&snapshot)
		}
	}
}
