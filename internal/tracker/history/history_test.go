package history_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/netvoice/tracker/api/v1alpha1"
	"github.com/netvoice/tracker/internal/tracker/history"
	"github.com/netvoice/tracker/internal/tracker/store"
)

func TestHistory(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "History Suite")
}

type fakeReader struct {
	mu         sync.Mutex
	ops        map[string]*api.Operation
	listed     []api.Operation
	lastParams api.ListOperationsParams
	listErr    error
}

func newFakeReader() *fakeReader {
	return &fakeReader{ops: map[string]*api.Operation{}}
}

func (f *fakeReader) put(op *api.Operation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops[op.Id] = op.DeepCopy()
}

func (f *fakeReader) Get(ctx context.Context, id string) (*api.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.ops[id]
	if !ok {
		return nil, fmt.Errorf("operation %s not found", id)
	}
	return op.DeepCopy(), nil
}

func (f *fakeReader) List(ctx context.Context, params api.ListOperationsParams) ([]api.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastParams = params
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listed, nil
}

func completedOperation(id string) *api.Operation {
	done := time.Now().UTC()
	return &api.Operation{
		Id:           id,
		UseCaseName:  "ospf_configuration_change",
		Status:       api.OperationStatusCompleted,
		CurrentStage: api.StageDeployment,
		Stages: map[string]api.StageData{
			api.StageDeployment: {Status: api.StageStatusCompleted},
		},
		CreatedAt:   done.Add(-time.Minute),
		CompletedAt: &done,
	}
}

var _ = Describe("history controller", func() {
	var (
		reader *fakeReader
		live   *store.Store
		ctrl   *history.Controller
		ctx    context.Context
	)

	BeforeEach(func() {
		reader = newFakeReader()
		live = store.NewStore()
		ctrl = history.New(reader, live, 10*time.Second)
		ctx = context.Background()
	})

	Context("browsing", func() {
		It("starts in the live view", func() {
			Expect(ctrl.Viewing()).To(BeFalse())
			Expect(ctrl.Snapshot()).To(BeNil())
			Expect(ctrl.ActionsAllowed()).To(BeTrue())
		})

		It("refreshes and exposes candidates", func() {
			reader.listed = []api.Operation{*completedOperation("op-1"), *completedOperation("op-2")}

			Expect(ctrl.Refresh(ctx)).To(BeNil())
			Expect(ctrl.Candidates()).To(HaveLen(2))
		})

		It("selects a snapshot without touching the live store", func() {
			liveOp := completedOperation("op-live")
			liveOp.Status = api.OperationStatusRunning
			live.SetCurrentOperation(liveOp)
			reader.put(completedOperation("op-old"))

			Expect(ctrl.Select(ctx, "op-old")).To(BeNil())

			Expect(ctrl.Viewing()).To(BeTrue())
			Expect(ctrl.Snapshot().Id).To(Equal("op-old"))
			Expect(live.Current().Id).To(Equal("op-live"))
			Expect(live.Current().Status).To(Equal(api.OperationStatusRunning))
		})

		It("returns to the live view", func() {
			reader.put(completedOperation("op-old"))
			Expect(ctrl.Select(ctx, "op-old")).To(BeNil())

			ctrl.ReturnToLive()

			Expect(ctrl.Viewing()).To(BeFalse())
			Expect(ctrl.Snapshot()).To(BeNil())
		})

		It("keeps the snapshot isolated from later live updates", func() {
			op := completedOperation("op-1")
			reader.put(op)
			live.SetCurrentOperation(op)
			Expect(ctrl.Select(ctx, "op-1")).To(BeNil())

			live.UpdateStage(api.StageDeployment, api.StageData{Status: api.StageStatusRunning})

			Expect(ctrl.Snapshot().Stages[api.StageDeployment].Status).To(Equal(api.StageStatusCompleted))
		})
	})

	Context("action gating", func() {
		It("disables actions while viewing the live operation's history entry", func() {
			op := completedOperation("op-1")
			reader.put(op)
			live.SetCurrentOperation(op)

			Expect(ctrl.Select(ctx, "op-1")).To(BeNil())
			Expect(ctrl.ActionsAllowed()).To(BeFalse())
		})

		It("allows actions while viewing an unrelated operation", func() {
			live.SetCurrentOperation(completedOperation("op-live"))
			reader.put(completedOperation("op-old"))

			Expect(ctrl.Select(ctx, "op-old")).To(BeNil())
			Expect(ctrl.ActionsAllowed()).To(BeTrue())
		})

		It("re-enables actions after returning to live", func() {
			op := completedOperation("op-1")
			reader.put(op)
			live.SetCurrentOperation(op)
			Expect(ctrl.Select(ctx, "op-1")).To(BeNil())

			ctrl.ReturnToLive()

			Expect(ctrl.ActionsAllowed()).To(BeTrue())
		})
	})

	Context("filtering", func() {
		It("passes the status filter to the service", func() {
			failed := api.OperationStatusFailed
			ctrl.SetFilter(&failed)

			Expect(ctrl.Refresh(ctx)).To(BeNil())

			Expect(reader.lastParams.Status).NotTo(BeNil())
			Expect(*reader.lastParams.Status).To(Equal(api.OperationStatusFailed))
		})

		It("clears the filter", func() {
			failed := api.OperationStatusFailed
			ctrl.SetFilter(&failed)
			ctrl.SetFilter(nil)

			Expect(ctrl.Refresh(ctx)).To(BeNil())
			Expect(reader.lastParams.Status).To(BeNil())
		})
	})

	Context("refresh errors", func() {
		It("keeps the previous candidates on failure", func() {
			reader.listed = []api.Operation{*completedOperation("op-1")}
			Expect(ctrl.Refresh(ctx)).To(BeNil())

			reader.listErr = fmt.Errorf("service unavailable")
			Expect(ctrl.Refresh(ctx)).NotTo(BeNil())

			Expect(ctrl.Candidates()).To(HaveLen(1))
		})
	})
})
