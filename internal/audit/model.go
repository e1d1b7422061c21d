package audit

import (
	"encoding/json"
	"time"
)

// Entry is one audit log record as applications submit it. Metadata is opaque
// JSON owned by the application.
type Entry struct {
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	Resource  string          `json:"resource"`
	Result    string          `json:"result"`
	Details   string          `json:"details,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// QueuedEntry wraps an Entry awaiting redelivery from the spool.
type QueuedEntry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Data       *Entry    `json:"data"`
	RetryCount int       `json:"retry_count"`
}
