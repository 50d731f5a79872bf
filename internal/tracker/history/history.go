// Package history lets a user browse previously recorded operations without
// touching the live reconciliation loop. The controller keeps its own
// snapshot, fetched on selection; the live store is only consulted to detect
// id collisions, never mutated.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	api "github.com/netvoice/tracker/api/v1alpha1"
	"github.com/netvoice/tracker/internal/tracker/store"
)

// Reader is the read-only subset of the operations service the controller
// needs.
type Reader interface {
	Get(ctx context.Context, id string) (*api.Operation, error)
	List(ctx context.Context, params api.ListOperationsParams) ([]api.Operation, error)
}

type Controller struct {
	reader Reader
	live   *store.Store

	refreshInterval time.Duration

	mu         sync.Mutex
	snapshot   *api.Operation
	candidates []api.Operation
	filter     *api.OperationStatus
}

func New(reader Reader, live *store.Store, refreshInterval time.Duration) *Controller {
	return &Controller{
		reader:          reader,
		live:            live,
		refreshInterval: refreshInterval,
	}
}

// SetFilter restricts the candidate list to one status. Nil clears the
// filter. Takes effect on the next refresh.
func (c *Controller) SetFilter(status *api.OperationStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status == nil {
		c.filter = nil
		return
	}
	s := *status
	c.filter = &s
}

// Refresh reloads the candidate list from the service.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	filter := c.filter
	c.mu.Unlock()

	ops, err := c.reader.List(ctx, api.ListOperationsParams{Status: filter})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.candidates = ops
	c.mu.Unlock()
	return nil
}

// Candidates returns a copy of the current candidate list.
func (c *Controller) Candidates() []api.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.Operation, 0, len(c.candidates))
	for i := range c.candidates {
		out = append(out, *c.candidates[i].DeepCopy())
	}
	return out
}

// Select fetches the operation and makes it the viewed snapshot. The
// snapshot is fully independent of the live store.
func (c *Controller) Select(ctx context.Context, id string) error {
	op, err := c.reader.Get(ctx, id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.snapshot = op.DeepCopy()
	c.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the viewed operation, or nil when the view is
// live.
func (c *Controller) Snapshot() *api.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.DeepCopy()
}

// Viewing reports whether a historical operation is being viewed.
func (c *Controller) Viewing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot != nil
}

// ReturnToLive discards the historical snapshot.
func (c *Controller) ReturnToLive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
}

// ActionsAllowed reports whether mutating actions may be offered. While a
// historical operation with the same id as the live one is viewed, actions
// are disabled: mutation is only ever permitted through the live path.
func (c *Controller) ActionsAllowed() bool {
	c.mu.Lock()
	snapshot := c.snapshot
	c.mu.Unlock()

	if snapshot == nil {
		return true
	}
	return snapshot.Id != c.live.CurrentId()
}

// Run refreshes the candidate list on a fixed interval, but only while at
// least one candidate is still non-terminal; once history stabilizes the
// polling stops doing work.
func (c *Controller) Run(ctx context.Context) error {
	logger := zap.S().Named("history")

	if err := c.Refresh(ctx); err != nil {
		logger.Warnf("initial history refresh failed: %v", err)
	}

	ticker := jitterbug.New(c.refreshInterval, &jitterbug.Norm{Stdev: 30 * time.Millisecond, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if !c.anyNonTerminal() {
			continue
		}
		if err := c.Refresh(ctx); err != nil {
			logger.Warnf("history refresh failed: %v", err)
		}
	}
}

func (c *Controller) anyNonTerminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.candidates {
		if !c.candidates[i].Status.IsTerminal() {
			return true
		}
	}
	return false
}
