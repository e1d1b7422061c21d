package session

import (
	"encoding/json"
	"time"
)

// StateKey is the durable-store key under which the session state lives.
const StateKey = "scribe:session-state"

// HistoryCap bounds the execution history; the oldest records are evicted
// first once the cap is reached.
const HistoryCap = 50

// ExecStatus is the lifecycle state of a workflow execution.
type ExecStatus string

const (
	// ExecPending means recorded, not yet started.
	ExecPending ExecStatus = "pending"
	// ExecRunning means the execution is underway.
	ExecRunning ExecStatus = "running"
	// ExecCompleted means the execution finished successfully.
	ExecCompleted ExecStatus = "completed"
	// ExecFailed means the execution finished with an error.
	ExecFailed ExecStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s ExecStatus) Valid() bool {
	switch s {
	case ExecPending, ExecRunning, ExecCompleted, ExecFailed:
		return true
	}
	return false
}

// ExecutionRecord is one workflow run remembered in the session history.
type ExecutionRecord struct {
	ID        string          `json:"id"`
	UseCaseID string          `json:"use_case_id"`
	Timestamp time.Time       `json:"timestamp"`
	Status    ExecStatus      `json:"status"`
	Results   json.RawMessage `json:"results,omitempty"`
}

// State is the single durable session record. Selection fields are nil when
// nothing is selected; UseCaseDetails and UploadedData are opaque JSON owned
// by the dashboard.
type State struct {
	SessionID        string            `json:"session_id"`
	SelectedVertical *string           `json:"selected_vertical"`
	SelectedUseCase  *string           `json:"selected_use_case"`
	UseCaseDetails   json.RawMessage   `json:"use_case_details,omitempty"`
	UploadedData     json.RawMessage   `json:"uploaded_data,omitempty"`
	ExecutionHistory []ExecutionRecord `json:"execution_history"`
	CurrentStep      *string           `json:"current_step"`
	Version          int64             `json:"version"`
	LastUpdated      time.Time         `json:"last_updated"`
	ExpiresAt        time.Time         `json:"expires_at"`
}

// Update is a partial mutation of the session state. Nil fields leave the
// current value untouched.
type Update struct {
	SelectedVertical *string         `json:"selected_vertical,omitempty"`
	SelectedUseCase  *string         `json:"selected_use_case,omitempty"`
	UseCaseDetails   json.RawMessage `json:"use_case_details,omitempty"`
	UploadedData     json.RawMessage `json:"uploaded_data,omitempty"`
	CurrentStep      *string         `json:"current_step,omitempty"`
}

// Expired reports whether the state's TTL has elapsed as of now.
func (s *State) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// apply merges an update into the state. Setting the vertical always resets
// the use case and its details, whatever the previous values were.
func (s *State) apply(u Update) {
	if u.SelectedVertical != nil {
		v := *u.SelectedVertical
		s.SelectedVertical = &v
		s.SelectedUseCase = nil
		s.UseCaseDetails = nil
	}
	if u.SelectedUseCase != nil {
		uc := *u.SelectedUseCase
		s.SelectedUseCase = &uc
	}
	if u.UseCaseDetails != nil {
		s.UseCaseDetails = append(json.RawMessage(nil), u.UseCaseDetails...)
	}
	if u.UploadedData != nil {
		s.UploadedData = append(json.RawMessage(nil), u.UploadedData...)
	}
	if u.CurrentStep != nil {
		step := *u.CurrentStep
		s.CurrentStep = &step
	}
}

// appendExecution adds a record to the history, evicting the oldest records
// beyond HistoryCap. It returns how many were evicted.
func (s *State) appendExecution(rec ExecutionRecord) int {
	s.ExecutionHistory = append(s.ExecutionHistory, rec)
	drop := len(s.ExecutionHistory) - HistoryCap
	if drop <= 0 {
		return 0
	}
	s.ExecutionHistory = append([]ExecutionRecord(nil), s.ExecutionHistory[drop:]...)
	return drop
}

// Clone returns an independent copy of the state. Callers get clones so that
// observers and API handlers can never mutate the service's snapshot.
func (s *State) Clone() *State {
	cp := *s
	if s.SelectedVertical != nil {
		v := *s.SelectedVertical
		cp.SelectedVertical = &v
	}
	if s.SelectedUseCase != nil {
		uc := *s.SelectedUseCase
		cp.SelectedUseCase = &uc
	}
	if s.CurrentStep != nil {
		step := *s.CurrentStep
		cp.CurrentStep = &step
	}
	cp.UseCaseDetails = append(json.RawMessage(nil), s.UseCaseDetails...)
	cp.UploadedData = append(json.RawMessage(nil), s.UploadedData...)
	cp.ExecutionHistory = make([]ExecutionRecord, len(s.ExecutionHistory))
	for i, rec := range s.ExecutionHistory {
		rc := rec
		rc.Results = append(json.RawMessage(nil), rec.Results...)
		cp.ExecutionHistory[i] = rc
	}
	return &cp
}
