// Package store owns the canonical live operation and the bounded
// recent-operations cache. Every other component mutates tracked state
// through this package's API, never by direct field assignment, so the
// invariants stay in one place.
//
// All mutation methods are total: they never panic, and calling them while
// no live operation is tracked is a documented no-op.
package store

import (
	"sync"
	"time"

	"go.uber.org/zap"

	api "github.com/netvoice/tracker/api/v1alpha1"
)

const defaultRecentCapacity = 10

// OperationPatch is a partial update for an operation. Nil fields are left
// untouched.
type OperationPatch struct {
	Status       *api.OperationStatus
	CurrentStage *string
	Result       []byte
	ErrorMessage *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// Store is the canonical holder of the live operation and the recent list.
// It is safe for concurrent use; reads hand out deep copies so no caller can
// alias internal state.
type Store struct {
	mu sync.RWMutex

	current *api.Operation
	recent  []api.Operation

	recentCap int
	loading   bool
	lastError string
}

type Option func(*Store)

// WithRecentCapacity bounds the recent-operations cache.
func WithRecentCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.recentCap = n
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{recentCap: defaultRecentCapacity}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetCurrentOperation replaces the live operation wholesale. A nil argument
// clears the live operation. Non-nil operations are also upserted into the
// recent list.
func (s *Store) SetCurrentOperation(op *api.Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if op == nil {
		s.current = nil
		return
	}
	s.current = op.DeepCopy()
	s.upsertRecentLocked(s.current)
}

// Current returns a deep copy of the live operation, or nil when none is
// tracked.
func (s *Store) Current() *api.Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.DeepCopy()
}

// CurrentId returns the live operation's id, or the empty string.
func (s *Store) CurrentId() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Id
}

// Recent returns a copy of the recent-operations cache, newest first.
func (s *Store) Recent() []api.Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Operation, 0, len(s.recent))
	for i := range s.recent {
		out = append(out, *s.recent[i].DeepCopy())
	}
	return out
}

// UpdateStage merges stage data into the live operation's stages map and
// advances the current stage pointer to stageKey. The upsert is idempotent:
// applying the same stage data twice yields the same result. A stage that
// already finished and receives a pending/running update is treated as a
// rollback re-entry: the finished record is archived as a prior attempt and
// the attempt counter bumped. No-op when no live operation is tracked.
func (s *Store) UpdateStage(stageKey string, data api.StageData) {
	if stageKey == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return
	}
	if s.current.Stages == nil {
		s.current.Stages = make(map[string]api.StageData)
	}

	incoming := *data.DeepCopy()
	prev, exists := s.current.Stages[stageKey]

	switch {
	case !exists:
		if incoming.Attempt == 0 {
			incoming.Attempt = 1
		}
	case prev.Status.IsTerminal() && !incoming.Status.IsTerminal():
		// Rollback re-entry. Keep the finished record instead of losing it.
		incoming.Attempt = prev.Attempt + 1
		if prev.Attempt == 0 {
			incoming.Attempt = 2
		}
		incoming.PriorAttempts = append(prev.PriorAttempts, api.StageAttempt{
			Attempt:     max(prev.Attempt, 1),
			Status:      prev.Status,
			Data:        prev.Data,
			Error:       prev.Error,
			StartedAt:   prev.StartedAt,
			CompletedAt: prev.CompletedAt,
		})
		zap.S().Named("store").Infof("stage %q re-entered after %s, archiving attempt %d", stageKey, prev.Status, max(prev.Attempt, 1))
	default:
		if incoming.Attempt == 0 {
			incoming.Attempt = max(prev.Attempt, 1)
		}
		if incoming.PriorAttempts == nil {
			incoming.PriorAttempts = prev.PriorAttempts
		}
	}

	s.fillStageTimestampsLocked(&incoming, prev, exists)

	s.current.Stages[stageKey] = incoming
	s.current.CurrentStage = stageKey
	s.syncRecentLocked(s.current)
}

// fillStageTimestampsLocked populates started/completed timestamps that the
// producer omitted, according to the status transition.
func (s *Store) fillStageTimestampsLocked(incoming *api.StageData, prev api.StageData, exists bool) {
	now := time.Now().UTC()
	if incoming.StartedAt == nil {
		if exists && prev.StartedAt != nil && incoming.Attempt == prev.Attempt {
			incoming.StartedAt = prev.StartedAt
		} else if incoming.Status == api.StageStatusRunning || incoming.Status.IsTerminal() {
			incoming.StartedAt = &now
		}
	}
	if incoming.CompletedAt == nil && incoming.Status.IsTerminal() {
		if exists && prev.CompletedAt != nil && incoming.Attempt == prev.Attempt {
			incoming.CompletedAt = prev.CompletedAt
		} else {
			incoming.CompletedAt = &now
		}
	}
}

// UpdateOperation merges the patch into the live operation if its id matches,
// and into any matching entry of the recent list, keeping both views
// consistent. No-op when the id matches nothing.
func (s *Store) UpdateOperation(id string, patch OperationPatch) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.Id == id {
		applyPatch(s.current, patch)
	}
	for i := range s.recent {
		if s.recent[i].Id == id {
			applyPatch(&s.recent[i], patch)
			break
		}
	}
}

// SetLoading flags an in-flight user action.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// SetError records the human-readable failure of the most recent user
// action. An empty string clears it.
func (s *Store) SetError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = message
}

func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

func applyPatch(op *api.Operation, patch OperationPatch) {
	if patch.Status != nil {
		op.Status = *patch.Status
	}
	if patch.CurrentStage != nil {
		op.CurrentStage = *patch.CurrentStage
	}
	if patch.Result != nil {
		op.Result = append([]byte(nil), patch.Result...)
	}
	if patch.ErrorMessage != nil {
		op.ErrorMessage = *patch.ErrorMessage
	}
	if patch.StartedAt != nil && op.StartedAt == nil {
		t := *patch.StartedAt
		op.StartedAt = &t
	}
	if patch.CompletedAt != nil && op.CompletedAt == nil {
		t := *patch.CompletedAt
		op.CompletedAt = &t
	}
}

// upsertRecentLocked puts the operation at the head of the recent list,
// dropping any previous entry with the same id and trimming to capacity.
// Entries age out silently; nothing deletes them explicitly.
func (s *Store) upsertRecentLocked(op *api.Operation) {
	filtered := make([]api.Operation, 0, len(s.recent)+1)
	filtered = append(filtered, *op.DeepCopy())
	for i := range s.recent {
		if s.recent[i].Id != op.Id {
			filtered = append(filtered, s.recent[i])
		}
	}
	if len(filtered) > s.recentCap {
		filtered = filtered[:s.recentCap]
	}
	s.recent = filtered
}

// syncRecentLocked refreshes the recent-list entry of the live operation
// in place, without reordering.
func (s *Store) syncRecentLocked(op *api.Operation) {
	for i := range s.recent {
		if s.recent[i].Id == op.Id {
			s.recent[i] = *op.DeepCopy()
			return
		}
	}
}
