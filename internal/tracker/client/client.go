package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/pkg/errors"

	api "github.com/netvoice/tracker/api/v1alpha1"
	baseclient "github.com/netvoice/tracker/internal/client"
	"github.com/netvoice/tracker/pkg/reqid"
)

var _ Operations = (*operations)(nil)

var (
	ErrEmptyResponse = errors.New("empty response")
	ErrNotFound      = errors.New("operation not found")
)

// Operations is the client interface to the operations service.
//
//go:generate moq -fmt=goimports -out zz_generated_operations.go . Operations
type Operations interface {
	// Start requests creation of a new operation. A protocol mismatch is
	// returned as a *MismatchError.
	Start(ctx context.Context, params api.OperationCreate) (*api.Operation, error)
	// Get fetches the authoritative state of one operation.
	Get(ctx context.Context, id string) (*api.Operation, error)
	// List queries recent operations, optionally filtered by status.
	List(ctx context.Context, params api.ListOperationsParams) ([]api.Operation, error)
	// Advance asks the service to proceed to the next stage.
	Advance(ctx context.Context, id string) error
	// Approve records a human decision for the approval stage.
	Approve(ctx context.Context, id string, params api.OperationApproval) error
	// Rollback asks the service to roll back a deployed change.
	Rollback(ctx context.Context, id string, params api.OperationRollback) error
}

// MismatchError is the structured outcome of start when the service judges
// the chosen use case unlikely to match the input. It is expected and
// recoverable; callers branch on it with errors.As.
type MismatchError struct {
	api.ProtocolMismatch
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("protocol mismatch: %s (suggested use case %q, confidence %.2f)",
		e.Message, e.SuggestedUseCase, e.Confidence)
}

// NewFromConfig returns an operations client from the given service config.
func NewFromConfig(config *baseclient.Config) (Operations, error) {
	httpClient, err := baseclient.NewHTTPClientFromConfig(config)
	if err != nil {
		return nil, fmt.Errorf("NewFromConfig: creating HTTP client %w", err)
	}
	return NewOperations(httpClient, config.Service.Server), nil
}

func NewOperations(httpClient *http.Client, server string) Operations {
	return &operations{
		client: httpClient,
		server: server,
	}
}

type operations struct {
	client *http.Client
	server string
}

func (o *operations) Start(ctx context.Context, params api.OperationCreate) (*api.Operation, error) {
	resp, err := o.do(ctx, http.MethodPost, "/api/v1/operations/start", params)
	if err != nil {
		return nil, errors.Wrap(err, "starting operation")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading start response")
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		op := &api.Operation{}
		if err := json.Unmarshal(body, op); err != nil {
			return nil, errors.Wrap(err, "decoding started operation")
		}
		return op, nil
	case http.StatusBadRequest:
		mismatch := api.ProtocolMismatch{}
		if err := json.Unmarshal(body, &mismatch); err == nil && mismatch.SuggestedUseCase != "" {
			return nil, &MismatchError{ProtocolMismatch: mismatch}
		}
		return nil, fmt.Errorf("start operation failed: %s", responseMessage(resp, body))
	default:
		return nil, fmt.Errorf("start operation failed: %s", responseMessage(resp, body))
	}
}

func (o *operations) Get(ctx context.Context, id string) (*api.Operation, error) {
	resp, err := o.do(ctx, http.MethodGet, "/api/v1/operations/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching operation %s", id)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch operation failed: %s", resp.Status)
	}

	op := &api.Operation{}
	if err := json.NewDecoder(resp.Body).Decode(op); err != nil {
		return nil, errors.Wrap(err, "decoding operation")
	}
	if op.Id == "" {
		return nil, ErrEmptyResponse
	}
	return op, nil
}

func (o *operations) List(ctx context.Context, params api.ListOperationsParams) ([]api.Operation, error) {
	query := url.Values{}
	if params.Status != nil {
		query.Set("status", string(*params.Status))
	}
	if params.Limit != nil {
		query.Set("limit", strconv.Itoa(*params.Limit))
	}
	if params.Offset != nil {
		query.Set("offset", strconv.Itoa(*params.Offset))
	}
	path := "/api/v1/operations"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	resp, err := o.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "listing operations")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list operations failed: %s", resp.Status)
	}

	ops := []api.Operation{}
	if err := json.NewDecoder(resp.Body).Decode(&ops); err != nil {
		return nil, errors.Wrap(err, "decoding operations list")
	}
	return ops, nil
}

func (o *operations) Advance(ctx context.Context, id string) error {
	return o.post(ctx, "/api/v1/operations/"+url.PathEscape(id)+"/advance", nil, "advance operation")
}

func (o *operations) Approve(ctx context.Context, id string, params api.OperationApproval) error {
	return o.post(ctx, "/api/v1/operations/"+url.PathEscape(id)+"/approve", params, "approve operation")
}

func (o *operations) Rollback(ctx context.Context, id string, params api.OperationRollback) error {
	return o.post(ctx, "/api/v1/operations/"+url.PathEscape(id)+"/rollback", params, "rollback operation")
}

// post issues a command endpoint call where any 2xx is success and no body
// is required.
func (o *operations) post(ctx context.Context, path string, body interface{}, what string) error {
	resp, err := o.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return errors.Wrap(err, what)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s failed: %s", what, responseMessage(resp, raw))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (o *operations) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, o.server+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.RequestIDHeader, reqid.GetReqID())

	return o.client.Do(req)
}

// responseMessage extracts a human-readable message from an error response
// body, falling back to the HTTP status line.
func responseMessage(resp *http.Response, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return resp.Status
}
