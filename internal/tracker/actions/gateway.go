// Package actions translates user intent — start, advance, approve,
// rollback — into calls against the operations service and folds the results
// back into the store. Every call either fully succeeds (store updated) or
// fully fails (store untouched except for the error slot).
package actions

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	api "github.com/netvoice/tracker/api/v1alpha1"
	"github.com/netvoice/tracker/internal/tracker/channel"
	"github.com/netvoice/tracker/internal/tracker/client"
	"github.com/netvoice/tracker/internal/tracker/store"
	"github.com/netvoice/tracker/pkg/metrics"
)

var (
	// ErrNoLiveOperation is returned when an action requires a tracked
	// operation and none exists.
	ErrNoLiveOperation = errors.New("no live operation")
	// ErrNotPaused is returned when an action is only legal while the
	// operation waits for a human.
	ErrNotPaused = errors.New("operation is not paused")
	// ErrNotApprovalStage is returned when approve is called outside the
	// human-decision stage.
	ErrNotApprovalStage = errors.New("operation is not at the approval stage")
	// ErrNotConfirmed is returned when rollback is invoked without the
	// explicit confirmation step.
	ErrNotConfirmed = errors.New("rollback requires explicit confirmation")
	// ErrRollbackUnavailable is returned when the deployment stage has not
	// produced anything to roll back.
	ErrRollbackUnavailable = errors.New("no completed deployment to roll back")
)

type Gateway struct {
	store   *store.Store
	client  client.Operations
	channel *channel.Channel
	labId   string
}

func New(st *store.Store, c client.Operations, ch *channel.Channel, labId string) *Gateway {
	return &Gateway{
		store:   st,
		client:  c,
		channel: ch,
		labId:   labId,
	}
}

// Start requests creation of a new operation from a spoken command. On
// success the new operation becomes the live one and the push subscription
// is re-armed for its id.
//
// A protocol mismatch is not a failure: it is returned as a non-nil
// *api.ProtocolMismatch with a nil error, and the caller decides whether to
// force the original use case (Start with force=true), switch to the
// suggested one, or drop the attempt.
func (g *Gateway) Start(ctx context.Context, text, useCase string, force bool) (*api.Operation, *api.ProtocolMismatch, error) {
	g.begin()
	defer g.store.SetLoading(false)

	op, err := g.client.Start(ctx, api.OperationCreate{
		Text:    text,
		UseCase: useCase,
		LabId:   g.labId,
		Force:   force,
	})
	if err != nil {
		mismatch := &client.MismatchError{}
		if errors.As(err, &mismatch) {
			zap.S().Named("actions").Infof("use case %q contested, service suggests %q (confidence %.2f)",
				useCase, mismatch.SuggestedUseCase, mismatch.Confidence)
			return nil, &mismatch.ProtocolMismatch, nil
		}
		return nil, nil, g.fail("start", fmt.Sprintf("starting operation: %v", err), err)
	}

	g.store.SetCurrentOperation(op)
	if err := g.channel.Send(api.NewSubscribeRequest(op.Id)); err != nil {
		zap.S().Named("actions").Warnf("subscribe for %s failed: %v", op.Id, err)
	}
	return op.DeepCopy(), nil, nil
}

// Advance asks the service to proceed past a manually gated stage. It is
// only legal while the operation is paused. Local state is not touched
// optimistically; the next push or poll reflects the new stage.
func (g *Gateway) Advance(ctx context.Context) error {
	g.begin()
	defer g.store.SetLoading(false)

	current := g.store.Current()
	if current == nil {
		return g.fail("advance", "no operation to advance", ErrNoLiveOperation)
	}
	if current.Status != api.OperationStatusPaused {
		return g.fail("advance", fmt.Sprintf("operation is %s, only paused operations can be advanced", current.Status), ErrNotPaused)
	}

	if err := g.client.Advance(ctx, current.Id); err != nil {
		return g.fail("advance", fmt.Sprintf("advancing operation: %v", err), err)
	}
	return nil
}

// Approve records the human decision for the approval stage. Approval
// responses are not guaranteed to carry complete stage data, so success is
// followed by an explicit full refetch.
func (g *Gateway) Approve(ctx context.Context, approved bool, comment string) error {
	g.begin()
	defer g.store.SetLoading(false)

	current := g.store.Current()
	if current == nil {
		return g.fail("approve", "no operation to approve", ErrNoLiveOperation)
	}
	if current.Status != api.OperationStatusPaused {
		return g.fail("approve", fmt.Sprintf("operation is %s, approval requires a paused operation", current.Status), ErrNotPaused)
	}
	if current.CurrentStage != api.StageHumanDecision {
		return g.fail("approve", fmt.Sprintf("operation is at stage %q, not awaiting approval", current.CurrentStage), ErrNotApprovalStage)
	}

	if err := g.client.Approve(ctx, current.Id, api.OperationApproval{Approved: approved, Comment: comment}); err != nil {
		return g.fail("approve", fmt.Sprintf("recording approval: %v", err), err)
	}

	g.refetch(ctx, current.Id)
	return nil
}

// Rollback reverts a deployed change. The two-step gate is mandatory:
// callers must pass confirmed=true, produced by an explicit user
// confirmation, or the call fails before reaching the service.
func (g *Gateway) Rollback(ctx context.Context, confirmed bool, reason string) error {
	g.begin()
	defer g.store.SetLoading(false)

	if !confirmed {
		return g.fail("rollback", "rollback was not confirmed", ErrNotConfirmed)
	}

	current := g.store.Current()
	if current == nil {
		return g.fail("rollback", "no operation to roll back", ErrNoLiveOperation)
	}
	deployment, ok := current.Stages[api.StageDeployment]
	if !ok || deployment.Status != api.StageStatusCompleted || len(deployment.Data) == 0 {
		return g.fail("rollback", "the deployment stage has not produced rollback instructions", ErrRollbackUnavailable)
	}

	if err := g.client.Rollback(ctx, current.Id, api.OperationRollback{Confirm: true, Reason: reason}); err != nil {
		return g.fail("rollback", fmt.Sprintf("rolling back operation: %v", err), err)
	}

	g.refetch(ctx, current.Id)
	return nil
}

// begin clears transient state before a new user action, per the error
// taxonomy: an action error is tied to the most recent action only.
func (g *Gateway) begin() {
	g.store.SetLoading(true)
	g.store.SetError("")
}

// fail records the human-readable message in the store's error slot and
// returns the underlying error. The store is otherwise untouched.
func (g *Gateway) fail(action, message string, err error) error {
	metrics.IncreaseActionFailuresMetric(action)
	g.store.SetError(message)
	return err
}

// refetch replaces the live operation with authoritative state after an
// action whose response body is not trusted to be complete. A result that
// arrives after the live operation changed is discarded.
func (g *Gateway) refetch(ctx context.Context, id string) {
	op, err := g.client.Get(ctx, id)
	if err != nil {
		// The action itself succeeded; push/poll will converge the state.
		zap.S().Named("actions").Warnf("post-action refetch of %s failed: %v", id, err)
		return
	}
	if g.store.CurrentId() != id {
		return
	}
	g.store.SetCurrentOperation(op)
}
