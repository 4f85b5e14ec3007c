package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"signal-systemv1/internal/entry"
	"signal-systemv1/internal/level"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/pipeline"
	"signal-systemv1/internal/source"
	"signal-systemv1/internal/store/memory"
)

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	st := memory.New()
	lv := level.NewProvider(st, 30, nil)
	orch := pipeline.New(pipeline.Config{
		Pairs: []model.Pair{{Symbol: "RELIANCE", Timeframe: "1h"}},
	}, st, source.NewReplay(), lv, entry.NewTracker(st, nil), nil, nil, nil)
	return NewServer(st, lv, orch, nil), st
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health: got %d", rec.Code)
	}
}

func TestSettings_GetReturnsDefaults(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/v1/settings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get settings: got %d", rec.Code)
	}
	var set model.Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &set); err != nil {
		t.Fatal(err)
	}
	if set.Intraday.Thresholds.ABuy != 29 {
		t.Errorf("default intraday A-BUY threshold: got %v", set.Intraday.Thresholds.ABuy)
	}
}

func TestSettings_PutValidatesBeforeStoring(t *testing.T) {
	srv, st := newTestServer(t)

	bad := model.DefaultSettings()
	bad.Intraday.Thresholds.ABuy = 1 // ladder no longer descends
	body, _ := json.Marshal(bad)

	rec := doJSON(t, srv.Router(), http.MethodPut, "/api/v1/settings", string(body))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid settings: got %d, want 422", rec.Code)
	}

	// The rejected payload must not have reached the store.
	stored, _ := st.GetSettings(context.Background())
	if stored.Intraday.Thresholds.ABuy != 29 {
		t.Error("invalid settings leaked into the store")
	}
}

func TestSettings_PutRoundTrip(t *testing.T) {
	srv, st := newTestServer(t)

	set := model.DefaultSettings()
	set.Intraday.Thresholds.ABuy = 31
	body, _ := json.Marshal(set)

	rec := doJSON(t, srv.Router(), http.MethodPut, "/api/v1/settings", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("put settings: got %d: %s", rec.Code, rec.Body.String())
	}

	stored, _ := st.GetSettings(context.Background())
	if stored.Intraday.Thresholds.ABuy != 31 {
		t.Errorf("stored A-BUY threshold: got %v, want 31", stored.Intraday.Thresholds.ABuy)
	}
}

func TestLevels_ManualOverride(t *testing.T) {
	srv, st := newTestServer(t)

	rec := doJSON(t, srv.Router(), http.MethodPut,
		"/api/v1/levels/RELIANCE/1h", `{"support": 95.5, "resistance": 110}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put levels: got %d: %s", rec.Code, rec.Body.String())
	}

	ls, err := st.GetLevelSet(context.Background(), "RELIANCE", "1h")
	if err != nil || ls == nil {
		t.Fatalf("level set not persisted: %v", err)
	}
	if ls.ManualSupport != 95.5 || ls.ManualResistance != 110 {
		t.Errorf("manual levels: %+v", ls)
	}
}

func TestLevels_BadPath(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPut, "/api/v1/levels/RELIANCE", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing tf: got %d, want 400", rec.Code)
	}
}

func TestMagicLine_SetAndDeactivate(t *testing.T) {
	srv, st := newTestServer(t)

	rec := doJSON(t, srv.Router(), http.MethodPut,
		"/api/v1/magicline/RELIANCE", `{"price": 102.5, "active": true, "notes": "weekly pivot"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put magic line: got %d: %s", rec.Code, rec.Body.String())
	}

	m, err := st.GetMagicLine(context.Background(), "RELIANCE")
	if err != nil || m == nil {
		t.Fatalf("magic line not persisted: %v", err)
	}
	if m.Price != 102.5 || !m.Active {
		t.Errorf("magic line: %+v", m)
	}

	rec = doJSON(t, srv.Router(), http.MethodPut,
		"/api/v1/magicline/RELIANCE", `{"price": 102.5, "active": false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate: got %d", rec.Code)
	}
	m, _ = st.GetMagicLine(context.Background(), "RELIANCE")
	if m.Active {
		t.Error("magic line should be inactive")
	}
}

func TestProcess_RunsPair(t *testing.T) {
	srv, st := newTestServer(t)
	st.UpsertCandle(context.Background(), model.Candle{
		Symbol: "RELIANCE", Timeframe: "1h",
		TS:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Open: 99, High: 101, Low: 98, Close: 100, Volume: 500,
	})

	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/process/RELIANCE/1h", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("process: got %d: %s", rec.Code, rec.Body.String())
	}
	if n := st.SignalCount("RELIANCE", "1h"); n != 1 {
		t.Errorf("signals after process: got %d, want 1", n)
	}
}

func TestRecalculate(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/recalculate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("recalculate: got %d", rec.Code)
	}
}

func TestStatus_MethodGuard(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/status", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status: got %d, want 405", rec.Code)
	}
}
