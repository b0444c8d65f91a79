package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/example/ambulance-tracking/internal/logging"
	"github.com/example/ambulance-tracking/internal/models"
)

// lockedBuffer is written by request handlers and session goroutines alike.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) records(t *testing.T, msg string) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if rec["msg"] == msg {
			out = append(out, rec)
		}
	}
	return out
}

func TestPanicRecoveredAsJSON(t *testing.T) {
	logs := &lockedBuffer{}
	srv := NewServer(testConfig(t), Deps{}, logging.New(logs, "tracking-api", "info"))
	t.Cleanup(func() { _ = srv.Close() })
	srv.mux.HandleFunc("/debug/sessions/{id}/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/debug/sessions/s-42/boom", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	expectError(t, rec, http.StatusInternalServerError, "internal")
	if rec.Header().Get("X-Request-ID") != "req-1" {
		t.Fatalf("expected request id on panic response, got %q", rec.Header().Get("X-Request-ID"))
	}
	panics := logs.records(t, "panic recovered")
	if len(panics) != 1 || panics[0]["session_id"] != "s-42" || panics[0]["request_id"] != "req-1" {
		t.Fatalf("unexpected panic log %v", panics)
	}
}

func TestRequestLogCarriesSessionID(t *testing.T) {
	logs := &lockedBuffer{}
	srv := NewServer(testConfig(t), Deps{}, logging.New(logs, "tracking-api", "info"))
	t.Cleanup(func() { _ = srv.Close() })
	sess := createSession(t, srv)

	do(t, srv, http.MethodGet, "/api/v1/sessions/"+sess.SessionID, nil)

	var found bool
	for _, r := range logs.records(t, "http_request") {
		if r["route"] == "/api/v1/sessions/{id}" && r["session_id"] == sess.SessionID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected request log tagged with the session id")
	}
}

// countingIndex records writes; reads return nothing.
type countingIndex struct {
	mu      sync.Mutex
	upserts int
	removes int
}

func (c *countingIndex) Upsert(models.Vehicle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upserts++
}

func (c *countingIndex) Remove(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removes++
}

func (c *countingIndex) Nearby(float64, float64, int) []models.Vehicle { return nil }

func TestExternalGeoFeedLeavesIndexToConsumer(t *testing.T) {
	for _, external := range []bool{false, true} {
		idx := &countingIndex{}
		srv := NewServer(testConfig(t), Deps{Geo: idx, ExternalGeoFeed: external}, nil)
		sess := createSession(t, srv)
		base := "/api/v1/sessions/" + sess.SessionID
		do(t, srv, http.MethodPut, base+"/emergency-type", map[string]string{"emergency_type": "stroke"})
		if rec := do(t, srv, http.MethodPost, base+"/confirm", nil); rec.Code != http.StatusOK {
			t.Fatalf("confirm: %d %s", rec.Code, rec.Body.String())
		}
		if err := srv.Close(); err != nil {
			t.Fatal(err)
		}

		idx.mu.Lock()
		writes := idx.upserts + idx.removes
		idx.mu.Unlock()
		if external && writes != 0 {
			t.Fatalf("server wrote %d times to a consumer-owned index", writes)
		}
		if !external && (idx.upserts == 0 || idx.removes == 0) {
			t.Fatalf("expected server to own the index, got upserts=%d removes=%d", idx.upserts, idx.removes)
		}
	}
}
