package stateapi

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/scribe/internal/audit"
	"github.com/linnemanlabs/scribe/internal/netmon"
)

type statusResponse struct {
	Connectivity  netmon.State `json:"connectivity"`
	SpoolDepth    int          `json:"spool_depth"`
	SessionActive bool         `json:"session_active"`
}

func (a *API) handleIngestAudit(w http.ResponseWriter, r *http.Request) {
	var e audit.Entry
	if err := decodeJSON(r, &e); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if e.Action == "" {
		http.Error(w, `{"error":"action is required"}`, http.StatusBadRequest)
		return
	}

	a.sink.LogAction(r.Context(), &e)

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("scribe.audit.id", e.ID),
		attribute.String("scribe.audit.action", e.Action),
	)

	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": e.ID})
}

func (a *API) handleFlushAudit(w http.ResponseWriter, r *http.Request) {
	a.sink.Flush(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]any{"flushed": true})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Connectivity:  a.conn.State(),
		SpoolDepth:    a.sink.SpoolDepth(r.Context()),
		SessionActive: a.svc.Load(r.Context()) != nil,
	})
}
