package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/middleware"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/netvoice/tracker/api/v1alpha1"
	"github.com/netvoice/tracker/internal/tracker/client"
)

func TestClient(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Client Suite")
}

type capturedRequest struct {
	method string
	path   string
	query  string
	header http.Header
	body   []byte
}

func newTestService(status int, payload interface{}) (*httptest.Server, *[]capturedRequest) {
	captured := &[]capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*captured = append(*captured, capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			header: r.Header.Clone(),
			body:   body,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if payload != nil {
			_ = json.NewEncoder(w).Encode(payload)
		}
	}))
	return server, captured
}

var _ = Describe("operations client", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("start", func() {
		It("decodes the created operation", func() {
			server, captured := newTestService(http.StatusCreated, api.Operation{
				Id:           "op-1",
				UseCaseName:  "ospf_configuration_change",
				Status:       api.OperationStatusQueued,
				CurrentStage: api.StageVoiceInput,
				CreatedAt:    time.Now().UTC(),
			})
			defer server.Close()

			ops := client.NewOperations(server.Client(), server.URL)
			op, err := ops.Start(ctx, api.OperationCreate{Text: "change OSPF area", UseCase: "ospf_configuration_change", LabId: "lab-1"})
			Expect(err).To(BeNil())
			Expect(op.Id).To(Equal("op-1"))

			Expect(*captured).To(HaveLen(1))
			req := (*captured)[0]
			Expect(req.method).To(Equal(http.MethodPost))
			Expect(req.path).To(Equal("/api/v1/operations/start"))
			Expect(req.header.Get("Content-Type")).To(Equal("application/json"))
			Expect(req.header.Get(middleware.RequestIDHeader)).NotTo(BeEmpty())

			sent := api.OperationCreate{}
			Expect(json.Unmarshal(req.body, &sent)).To(BeNil())
			Expect(sent.LabId).To(Equal("lab-1"))
		})

		It("surfaces a 400 with a suggestion as a mismatch", func() {
			server, _ := newTestService(http.StatusBadRequest, api.ProtocolMismatch{
				Message:          "input mentions a CVE id",
				SuggestedUseCase: "cve_patch_deployment",
				Confidence:       0.87,
			})
			defer server.Close()

			ops := client.NewOperations(server.Client(), server.URL)
			_, err := ops.Start(ctx, api.OperationCreate{Text: "patch CVE-2024-1234", UseCase: "ospf_configuration_change"})

			mismatch := &client.MismatchError{}
			Expect(errors.As(err, &mismatch)).To(BeTrue())
			Expect(mismatch.SuggestedUseCase).To(Equal("cve_patch_deployment"))
		})

		It("treats a 400 without a suggestion as a plain failure", func() {
			server, _ := newTestService(http.StatusBadRequest, map[string]string{"message": "text is required"})
			defer server.Close()

			ops := client.NewOperations(server.Client(), server.URL)
			_, err := ops.Start(ctx, api.OperationCreate{UseCase: "ospf_configuration_change"})

			mismatch := &client.MismatchError{}
			Expect(errors.As(err, &mismatch)).To(BeFalse())
			Expect(err.Error()).To(ContainSubstring("text is required"))
		})
	})

	Context("get", func() {
		It("maps 404 to ErrNotFound", func() {
			server, _ := newTestService(http.StatusNotFound, nil)
			defer server.Close()

			ops := client.NewOperations(server.Client(), server.URL)
			_, err := ops.Get(ctx, "op-missing")
			Expect(errors.Is(err, client.ErrNotFound)).To(BeTrue())
		})

		It("rejects a body without an id", func() {
			server, _ := newTestService(http.StatusOK, map[string]string{})
			defer server.Close()

			ops := client.NewOperations(server.Client(), server.URL)
			_, err := ops.Get(ctx, "op-1")
			Expect(errors.Is(err, client.ErrEmptyResponse)).To(BeTrue())
		})

		It("escapes the operation id in the path", func() {
			server, captured := newTestService(http.StatusOK, api.Operation{Id: "op 1", CreatedAt: time.Now().UTC()})
			defer server.Close()

			ops := client.NewOperations(server.Client(), server.URL)
			_, err := ops.Get(ctx, "op 1")
			Expect(err).To(BeNil())
			Expect((*captured)[0].path).To(Equal("/api/v1/operations/op 1"))
		})
	})

	Context("list", func() {
		It("encodes filters as query parameters", func() {
			server, captured := newTestService(http.StatusOK, []api.Operation{})
			defer server.Close()

			running := api.OperationStatusRunning
			limit := 10
			ops := client.NewOperations(server.Client(), server.URL)
			_, err := ops.List(ctx, api.ListOperationsParams{Status: &running, Limit: &limit})
			Expect(err).To(BeNil())

			req := (*captured)[0]
			Expect(req.path).To(Equal("/api/v1/operations"))
			Expect(req.query).To(ContainSubstring("status=running"))
			Expect(req.query).To(ContainSubstring("limit=10"))
		})

		It("sends no query without filters", func() {
			server, captured := newTestService(http.StatusOK, []api.Operation{})
			defer server.Close()

			ops := client.NewOperations(server.Client(), server.URL)
			_, err := ops.List(ctx, api.ListOperationsParams{})
			Expect(err).To(BeNil())
			Expect((*captured)[0].query).To(BeEmpty())
		})
	})

	Context("commands", func() {
		It("posts an advance without a body", func() {
			server, captured := newTestService(http.StatusNoContent, nil)
			defer server.Close()

			ops := client.NewOperations(server.Client(), server.URL)
			Expect(ops.Advance(ctx, "op-1")).To(BeNil())

			req := (*captured)[0]
			Expect(req.method).To(Equal(http.MethodPost))
			Expect(req.path).To(Equal("/api/v1/operations/op-1/advance"))
			Expect(req.body).To(BeEmpty())
		})

		It("carries the approval decision", func() {
			server, captured := newTestService(http.StatusOK, nil)
			defer server.Close()

			ops := client.NewOperations(server.Client(), server.URL)
			Expect(ops.Approve(ctx, "op-1", api.OperationApproval{Approved: false, Comment: "risk too high"})).To(BeNil())

			sent := api.OperationApproval{}
			Expect(json.Unmarshal((*captured)[0].body, &sent)).To(BeNil())
			Expect(sent.Approved).To(BeFalse())
			Expect(sent.Comment).To(Equal("risk too high"))
		})

		It("always sends confirm on rollback", func() {
			server, captured := newTestService(http.StatusOK, nil)
			defer server.Close()

			ops := client.NewOperations(server.Client(), server.URL)
			Expect(ops.Rollback(ctx, "op-1", api.OperationRollback{Confirm: true, Reason: "wrong area"})).To(BeNil())

			sent := api.OperationRollback{}
			Expect(json.Unmarshal((*captured)[0].body, &sent)).To(BeNil())
			Expect(sent.Confirm).To(BeTrue())
			Expect(sent.Reason).To(Equal("wrong area"))
		})

		It("propagates the service's error message on failure", func() {
			server, _ := newTestService(http.StatusConflict, map[string]string{"message": "operation is not paused"})
			defer server.Close()

			ops := client.NewOperations(server.Client(), server.URL)
			err := ops.Advance(ctx, "op-1")
			Expect(err).NotTo(BeNil())
			Expect(err.Error()).To(ContainSubstring("operation is not paused"))
		})
	})
})
