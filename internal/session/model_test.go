package session

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestApply_VerticalAlwaysResetsUseCase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		prior State
	}{
		{
			name:  "no prior selection",
			prior: State{},
		},
		{
			name: "prior use case and details",
			prior: State{
				SelectedVertical: strPtr("energy"),
				SelectedUseCase:  strPtr("forecasting"),
				UseCaseDetails:   json.RawMessage(`{"horizon":"7d"}`),
			},
		},
		{
			name: "re-selecting the same vertical",
			prior: State{
				SelectedVertical: strPtr("finance"),
				SelectedUseCase:  strPtr("fraud"),
				UseCaseDetails:   json.RawMessage(`{"model":"v2"}`),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := tt.prior
			st.apply(Update{SelectedVertical: strPtr("finance")})
			if st.SelectedVertical == nil || *st.SelectedVertical != "finance" {
				t.Errorf("SelectedVertical = %v, want finance", st.SelectedVertical)
			}
			if st.SelectedUseCase != nil {
				t.Errorf("SelectedUseCase = %q, want nil", *st.SelectedUseCase)
			}
			if st.UseCaseDetails != nil {
				t.Errorf("UseCaseDetails = %s, want nil", st.UseCaseDetails)
			}
		})
	}
}

func TestApply_VerticalAndUseCaseInOneUpdate(t *testing.T) {
	t.Parallel()

	var st State
	st.apply(Update{
		SelectedVertical: strPtr("energy"),
		SelectedUseCase:  strPtr("forecasting"),
	})
	if st.SelectedUseCase == nil || *st.SelectedUseCase != "forecasting" {
		t.Errorf("SelectedUseCase = %v, want forecasting", st.SelectedUseCase)
	}
}

func TestApply_NilFieldsLeaveValuesAlone(t *testing.T) {
	t.Parallel()

	st := State{
		SelectedVertical: strPtr("energy"),
		SelectedUseCase:  strPtr("forecasting"),
		UseCaseDetails:   json.RawMessage(`{"horizon":"7d"}`),
		UploadedData:     json.RawMessage(`{"rows":3}`),
		CurrentStep:      strPtr("review"),
	}
	st.apply(Update{})

	if *st.SelectedVertical != "energy" || *st.SelectedUseCase != "forecasting" {
		t.Error("selection changed by empty update")
	}
	if string(st.UploadedData) != `{"rows":3}` {
		t.Errorf("UploadedData = %s, want unchanged", st.UploadedData)
	}
	if *st.CurrentStep != "review" {
		t.Errorf("CurrentStep = %q, want review", *st.CurrentStep)
	}
}

func TestApply_UploadedDataLastWriteWins(t *testing.T) {
	t.Parallel()

	var st State
	st.apply(Update{UploadedData: json.RawMessage(`{"rows":1}`)})
	st.apply(Update{UploadedData: json.RawMessage(`{"rows":2}`)})
	if string(st.UploadedData) != `{"rows":2}` {
		t.Errorf("UploadedData = %s, want last write", st.UploadedData)
	}
}

func TestAppendExecution_EvictsOldest(t *testing.T) {
	t.Parallel()

	var st State
	for i := range HistoryCap {
		if n := st.appendExecution(ExecutionRecord{ID: fmt.Sprintf("run-%02d", i)}); n != 0 {
			t.Fatalf("evicted %d records before reaching the cap", n)
		}
	}
	if len(st.ExecutionHistory) != HistoryCap {
		t.Fatalf("history length = %d, want %d", len(st.ExecutionHistory), HistoryCap)
	}

	if n := st.appendExecution(ExecutionRecord{ID: "run-extra"}); n != 1 {
		t.Errorf("evicted = %d, want 1", n)
	}
	if len(st.ExecutionHistory) != HistoryCap {
		t.Errorf("history length = %d, want %d", len(st.ExecutionHistory), HistoryCap)
	}
	if got := st.ExecutionHistory[0].ID; got != "run-01" {
		t.Errorf("oldest record = %q, want %q", got, "run-01")
	}
	if got := st.ExecutionHistory[HistoryCap-1].ID; got != "run-extra" {
		t.Errorf("newest record = %q, want %q", got, "run-extra")
	}
}

func TestExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	st := State{ExpiresAt: now.Add(time.Hour)}
	if st.Expired(now) {
		t.Error("state expired before its deadline")
	}
	if !st.Expired(now.Add(2 * time.Hour)) {
		t.Error("state not expired after its deadline")
	}
}

func TestClone_IsIndependent(t *testing.T) {
	t.Parallel()

	st := State{
		SessionID:        "sess-1",
		SelectedVertical: strPtr("energy"),
		UseCaseDetails:   json.RawMessage(`{"horizon":"7d"}`),
		ExecutionHistory: []ExecutionRecord{
			{ID: "run-1", Results: json.RawMessage(`{"ok":true}`)},
		},
		CurrentStep: strPtr("review"),
	}

	cp := st.Clone()
	*cp.SelectedVertical = "finance"
	cp.UseCaseDetails[0] = 'X'
	cp.ExecutionHistory[0].ID = "mutated"
	cp.ExecutionHistory[0].Results[1] = 'X'
	cp.ExecutionHistory = append(cp.ExecutionHistory, ExecutionRecord{ID: "run-2"})

	if *st.SelectedVertical != "energy" {
		t.Error("clone aliases SelectedVertical")
	}
	if string(st.UseCaseDetails) != `{"horizon":"7d"}` {
		t.Error("clone aliases UseCaseDetails")
	}
	if st.ExecutionHistory[0].ID != "run-1" || string(st.ExecutionHistory[0].Results) != `{"ok":true}` {
		t.Error("clone aliases ExecutionHistory")
	}
	if len(st.ExecutionHistory) != 1 {
		t.Errorf("history length = %d, want 1", len(st.ExecutionHistory))
	}
}
