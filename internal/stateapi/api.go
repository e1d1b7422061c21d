// Package stateapi exposes scribe's localhost HTTP surface: session state
// reads and writes, export/import, audit ingest and the status endpoint.
package stateapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/scribe/internal/audit"
	"github.com/linnemanlabs/scribe/internal/netmon"
	"github.com/linnemanlabs/scribe/internal/session"
)

// SessionService defines the session operations the API needs.
type SessionService interface {
	Load(ctx context.Context) *session.State
	Save(ctx context.Context, u session.Update) *session.State
	SaveImmediate(ctx context.Context, u session.Update) *session.State
	AddExecutionRecord(ctx context.Context, rec session.ExecutionRecord) *session.State
	Clear(ctx context.Context)
	Export(ctx context.Context) ([]byte, error)
	Import(ctx context.Context, data []byte) (*session.State, error)
}

// AuditSink accepts audit entries for delivery.
type AuditSink interface {
	LogAction(ctx context.Context, e *audit.Entry)
	Flush(ctx context.Context)
	SpoolDepth(ctx context.Context) int
}

// Connectivity reports the collector link state for the status endpoint.
type Connectivity interface {
	State() netmon.State
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    SessionService
	sink   AuditSink
	conn   Connectivity
}

// New creates a new API handler.
func New(logger log.Logger, svc SessionService, sink AuditSink, conn Connectivity) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("session service is required"))
	}
	if sink == nil {
		panic(xerrors.New("audit sink is required"))
	}
	if conn == nil {
		panic(xerrors.New("connectivity monitor is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
		sink:   sink,
		conn:   conn,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", a.handleGetState)
		r.Patch("/state", a.handleSaveState)
		r.Put("/state", a.handleSaveStateImmediate)
		r.Delete("/state", a.handleClearState)
		r.Post("/state/executions", a.handleAddExecution)
		r.Get("/state/export", a.handleExportState)
		r.Post("/state/import", a.handleImportState)
		r.Post("/audit", a.handleIngestAudit)
		r.Post("/audit/flush", a.handleFlushAudit)
		r.Get("/status", a.handleStatus)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorJSON(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}
