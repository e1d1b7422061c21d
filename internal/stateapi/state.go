package stateapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/scribe/internal/session"
)

func (a *API) handleGetState(w http.ResponseWriter, r *http.Request) {
	st := a.svc.Load(r.Context())
	if st == nil {
		http.Error(w, `{"error":"no session"}`, http.StatusNotFound)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("scribe.session.id", st.SessionID))

	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleSaveState(w http.ResponseWriter, r *http.Request) {
	u, ok := decodeUpdate(w, r)
	if !ok {
		return
	}
	st := a.svc.Save(r.Context(), u)
	annotateState(r, st)
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleSaveStateImmediate(w http.ResponseWriter, r *http.Request) {
	u, ok := decodeUpdate(w, r)
	if !ok {
		return
	}
	st := a.svc.SaveImmediate(r.Context(), u)
	annotateState(r, st)
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleClearState(w http.ResponseWriter, r *http.Request) {
	a.svc.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddExecution(w http.ResponseWriter, r *http.Request) {
	var rec session.ExecutionRecord
	if err := decodeJSON(r, &rec); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if rec.UseCaseID == "" {
		http.Error(w, `{"error":"use_case_id is required"}`, http.StatusBadRequest)
		return
	}
	if rec.Status != "" && !rec.Status.Valid() {
		http.Error(w, errorJSON(fmt.Sprintf("unknown status %q", rec.Status)), http.StatusBadRequest)
		return
	}

	st := a.svc.AddExecutionRecord(r.Context(), rec)
	annotateState(r, st)
	writeJSON(w, http.StatusAccepted, st)
}

func (a *API) handleExportState(w http.ResponseWriter, r *http.Request) {
	data, err := a.svc.Export(r.Context())
	if err != nil {
		if errors.Is(err, session.ErrNoState) {
			http.Error(w, `{"error":"no session"}`, http.StatusNotFound)
			return
		}
		a.logger.Error(r.Context(), err, "failed to export session state")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("scribe-state-%s.json", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(data)
}

func (a *API) handleImportState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return
	}

	st, err := a.svc.Import(r.Context(), body)
	if err != nil {
		http.Error(w, errorJSON(err.Error()), http.StatusBadRequest)
		return
	}
	annotateState(r, st)
	writeJSON(w, http.StatusOK, st)
}

func decodeUpdate(w http.ResponseWriter, r *http.Request) (session.Update, bool) {
	var u session.Update
	if err := decodeJSON(r, &u); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return session.Update{}, false
	}
	return u, true
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

func annotateState(r *http.Request, st *session.State) {
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("scribe.session.id", st.SessionID),
		attribute.Int64("scribe.session.version", st.Version),
	)
}
