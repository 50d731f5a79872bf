package v1alpha1

import (
	"encoding/json"
	"time"
)

// OperationStatus is the lifecycle state of an operation.
type OperationStatus string

const (
	OperationStatusQueued    OperationStatus = "queued"
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusPaused    OperationStatus = "paused"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
	OperationStatusCancelled OperationStatus = "cancelled"
)

// IsTerminal reports whether the status is final. A terminal operation is
// never mutated again.
func (s OperationStatus) IsTerminal() bool {
	return s == OperationStatusCompleted || s == OperationStatusFailed || s == OperationStatusCancelled
}

// IsActive reports whether the operation still makes progress on the server
// side and therefore needs to be polled.
func (s OperationStatus) IsActive() bool {
	return s == OperationStatusRunning || s == OperationStatusPaused
}

// StageStatus is the state of a single pipeline stage.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
)

// IsTerminal reports whether the stage finished, successfully or not.
func (s StageStatus) IsTerminal() bool {
	return s == StageStatusCompleted || s == StageStatusFailed
}

// Well known stage keys of the network-change pipeline. The tracker treats
// stage keys as opaque except where an action is only legal on a specific
// stage (approval, rollback).
const (
	StageVoiceInput       = "voice_input"
	StageIntentParsing    = "intent_parsing"
	StageConfigGeneration = "config_generation"
	StageHumanDecision    = "human_decision"
	StageDeployment       = "deployment"
)

// StageAttempt is an archived record of a previous run of a stage. It is
// created when a rollback re-enters a stage that already finished.
type StageAttempt struct {
	Attempt     int             `json:"attempt"`
	Status      StageStatus     `json:"status"`
	Data        json.RawMessage `json:"data,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// StageData is the state of one pipeline stage. Data is an opaque payload
// owned by the stage producer; the tracker passes it through untouched.
type StageData struct {
	Status      StageStatus     `json:"status"`
	Data        json.RawMessage `json:"data,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`

	// Attempt counts the runs of this stage, starting at 1. A value of 0 is
	// read as 1 for payloads produced by servers that do not track attempts.
	Attempt int `json:"attempt,omitempty"`
	// PriorAttempts holds the records of earlier runs, oldest first. Entries
	// are appended when a rollback re-enters a finished stage.
	PriorAttempts []StageAttempt `json:"prior_attempts,omitempty"`
}

// DeepCopy returns a full copy of the stage data.
func (s *StageData) DeepCopy() *StageData {
	if s == nil {
		return nil
	}
	out := *s
	out.Data = append(json.RawMessage(nil), s.Data...)
	out.StartedAt = copyTime(s.StartedAt)
	out.CompletedAt = copyTime(s.CompletedAt)
	if s.PriorAttempts != nil {
		out.PriorAttempts = make([]StageAttempt, len(s.PriorAttempts))
		for i := range s.PriorAttempts {
			a := s.PriorAttempts[i]
			a.Data = append(json.RawMessage(nil), a.Data...)
			a.StartedAt = copyTime(a.StartedAt)
			a.CompletedAt = copyTime(a.CompletedAt)
			out.PriorAttempts[i] = a
		}
	}
	return &out
}

// Operation is one end-to-end tracked execution of a multi-stage
// network-change workflow.
type Operation struct {
	Id            string                `json:"id"`
	UseCaseName   string                `json:"use_case_name"`
	InputText     string                `json:"input_text,omitempty"`
	InputAudioUrl string                `json:"input_audio_url,omitempty"`
	CurrentStage  string                `json:"current_stage,omitempty"`
	Status        OperationStatus       `json:"status"`
	Stages        map[string]StageData  `json:"stages,omitempty"`
	Result        json.RawMessage       `json:"result,omitempty"`
	ErrorMessage  string                `json:"error_message,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	StartedAt     *time.Time            `json:"started_at,omitempty"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
}

// DeepCopy returns a full copy of the operation. Callers that hand an
// Operation across a component boundary must copy it first so that no two
// holders can observe each other's mutations.
func (o *Operation) DeepCopy() *Operation {
	if o == nil {
		return nil
	}
	out := *o
	out.Result = append(json.RawMessage(nil), o.Result...)
	out.StartedAt = copyTime(o.StartedAt)
	out.CompletedAt = copyTime(o.CompletedAt)
	if o.Stages != nil {
		out.Stages = make(map[string]StageData, len(o.Stages))
		for k, v := range o.Stages {
			out.Stages[k] = *v.DeepCopy()
		}
	}
	return &out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	t2 := *t
	return &t2
}
