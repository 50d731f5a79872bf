package v1alpha1

import "encoding/json"

// EventType tags a push message received over the event channel.
type EventType string

const (
	EventOperationStageChanged EventType = "operation.stage_changed"
	EventOperationCompleted    EventType = "operation.completed"
	EventOperationError        EventType = "operation.error"
)

// EventMessage is a push notification received over the event channel.
// Stage, Status and Data are only present on stage-change messages. The
// payload of terminal messages (completed/error) is not guaranteed to be
// complete; consumers must refetch the operation instead of trusting it.
type EventMessage struct {
	Type    EventType       `json:"type"`
	JobId   string          `json:"job_id,omitempty"`
	Stage   string          `json:"stage,omitempty"`
	Status  StageStatus     `json:"status,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// SubscribeRequest is sent over the event channel to scope push delivery to
// one operation.
type SubscribeRequest struct {
	Type  string `json:"type"`
	JobId string `json:"job_id"`
}

// NewSubscribeRequest builds the subscription message for an operation id.
func NewSubscribeRequest(jobId string) SubscribeRequest {
	return SubscribeRequest{Type: "subscribe", JobId: jobId}
}

// OperationCreate is the request body of the start endpoint.
type OperationCreate struct {
	Text    string `json:"text" validate:"required"`
	UseCase string `json:"use_case" validate:"required"`
	LabId   string `json:"lab_id,omitempty"`
	Force   bool   `json:"force,omitempty"`
}

// OperationApproval is the request body of the approve endpoint.
type OperationApproval struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment,omitempty"`
}

// OperationRollback is the request body of the rollback endpoint. Confirm
// must be true; the server rejects unconfirmed rollbacks.
type OperationRollback struct {
	Confirm bool   `json:"confirm"`
	Reason  string `json:"reason,omitempty"`
}

// ProtocolMismatch is the structured body of a 400 PROTOCOL_MISMATCH reply
// to start: the server judged that the supplied use case likely does not
// match the spoken input and proposes an alternative. This is an expected,
// recoverable outcome of start, not a failure.
type ProtocolMismatch struct {
	Message              string   `json:"message"`
	SuggestedUseCase     string   `json:"suggested_use_case"`
	SuggestedDisplayName string   `json:"suggested_display_name,omitempty"`
	CurrentDisplayName   string   `json:"current_display_name,omitempty"`
	Confidence           float64  `json:"confidence"`
	MatchedKeywords      []string `json:"matched_keywords,omitempty"`
}

// ListOperationsParams are the query parameters of the list endpoint.
type ListOperationsParams struct {
	Status *OperationStatus
	Limit  *int
	Offset *int
}
