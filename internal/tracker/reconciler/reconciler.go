// Package reconciler merges the two update sources — push messages from the
// event channel and periodic authoritative polls — into the operation store.
// Push is fast but unreliable (messages may be lost, duplicated, or arrive in
// bursts); polling is slow but authoritative. The reconciler folds both so
// the local view converges to the service's state no matter what the push
// channel did.
package reconciler

import (
	"context"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	api "github.com/netvoice/tracker/api/v1alpha1"
	"github.com/netvoice/tracker/internal/tracker/channel"
	"github.com/netvoice/tracker/internal/tracker/store"
	"github.com/netvoice/tracker/pkg/metrics"
)

// Authority is the pull side of the operations service.
type Authority interface {
	Get(ctx context.Context, id string) (*api.Operation, error)
	List(ctx context.Context, params api.ListOperationsParams) ([]api.Operation, error)
}

type Reconciler struct {
	store     *store.Store
	channel   *channel.Channel
	authority Authority

	pollInterval time.Duration

	// Drain cursor into the channel buffer. The generation ties the cursor
	// to one connection; a reconnect resets both.
	generation uint64
	cursor     int

	adopted bool
}

func New(st *store.Store, ch *channel.Channel, authority Authority, pollInterval time.Duration) *Reconciler {
	return &Reconciler{
		store:        st,
		channel:      ch,
		authority:    authority,
		pollInterval: pollInterval,
	}
}

// Run drives the reconciliation loop until the context is cancelled. Drains
// are triggered by buffer notifications; polls by a jittered ticker.
func (r *Reconciler) Run(ctx context.Context) error {
	r.channel.SetOnConnect(r.Resubscribe)

	if r.store.Current() == nil {
		r.AdoptLive(ctx)
	}

	pollTicker := jitterbug.New(r.pollInterval, &jitterbug.Norm{Stdev: 30 * time.Millisecond, Mean: 0})
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.channel.Buffer().Notify():
			r.DrainOnce(ctx)
		case <-pollTicker.C:
			r.PollOnce(ctx)
		}
	}
}

// DrainOnce processes every message buffered since the previous drain, in
// arrival order. Draining all of them, not just the newest, is what keeps
// intermediate stage transitions from being silently dropped when several
// messages arrive between ticks.
func (r *Reconciler) DrainOnce(ctx context.Context) {
	logger := zap.S().Named("reconciler")

	msgs, generation, cursor := r.channel.Buffer().Since(r.generation, r.cursor)
	r.generation = generation
	r.cursor = cursor

	liveId := r.store.CurrentId()
	needRefetch := false

	for i := range msgs {
		msg := msgs[i]
		if msg.JobId == "" || msg.JobId != liveId {
			// Not ours. The message stays in the raw buffer for any other
			// consumer; we just move past it.
			continue
		}
		metrics.IncreaseMessagesDrainedMetric(string(msg.Type))

		switch msg.Type {
		case api.EventOperationStageChanged:
			if msg.Stage == "" {
				logger.Warnf("stage_changed for %s without a stage key, skipping", msg.JobId)
				continue
			}
			r.store.UpdateStage(msg.Stage, api.StageData{
				Status: msg.Status,
				Data:   msg.Data,
				Error:  msg.Error,
			})
		case api.EventOperationCompleted, api.EventOperationError:
			// Terminal payloads are not trusted: they may be partial or
			// stale. The full refetch below is the contract, not an
			// optimization.
			needRefetch = true
		default:
			logger.Debugf("ignoring push message of type %q", msg.Type)
		}
	}

	if needRefetch && liveId != "" {
		r.refetch(ctx, liveId)
	}
}

// PollOnce refetches the live operation if it is still making progress.
// Polling is the fallback source of truth: even with the push channel down
// entirely, the local view stays within one interval of the service's.
func (r *Reconciler) PollOnce(ctx context.Context) {
	current := r.store.Current()
	if current == nil {
		return
	}
	if !current.Status.IsActive() {
		return
	}
	r.refetch(ctx, current.Id)
}

// AdoptLive performs the one-time initial load: list recent operations and
// adopt the most recent one that is still queued, running, or paused.
func (r *Reconciler) AdoptLive(ctx context.Context) {
	if r.adopted {
		return
	}
	r.adopted = true

	logger := zap.S().Named("reconciler")

	ops, err := r.authority.List(ctx, api.ListOperationsParams{})
	if err != nil {
		logger.Warnf("initial operation list failed: %v", err)
		return
	}
	for i := range ops {
		op := ops[i]
		if op.Status.IsActive() || op.Status == api.OperationStatusQueued {
			logger.Infof("adopting live operation %s (%s)", op.Id, op.Status)
			r.store.SetCurrentOperation(&op)
			r.Resubscribe()
			return
		}
	}
}

// Resubscribe re-arms the push subscription for the live operation. Invoked
// after every (re)connect and safe to call while disconnected.
func (r *Reconciler) Resubscribe() {
	id := r.store.CurrentId()
	if id == "" {
		return
	}
	if err := r.channel.Send(api.NewSubscribeRequest(id)); err != nil {
		zap.S().Named("reconciler").Warnf("subscribe for %s failed: %v", id, err)
	}
}

// refetch replaces the local operation wholesale with the authoritative
// state. The result is discarded if the live operation changed while the
// request was in flight.
func (r *Reconciler) refetch(ctx context.Context, id string) {
	logger := zap.S().Named("reconciler")

	op, err := r.authority.Get(ctx, id)
	if err != nil {
		logger.Warnf("refetch of %s failed: %v", id, err)
		return
	}
	metrics.IncreasePollRefreshesMetric()

	if r.store.CurrentId() != id {
		logger.Debugf("discarding refetch of %s: live operation changed", id)
		return
	}
	r.store.SetCurrentOperation(op)
}
