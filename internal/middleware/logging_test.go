package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/portfolio/internal/session"
)

type statusMetrics struct {
	statuses []int
}

func (m *statusMetrics) RecordContentFallback(string)                    {}
func (m *statusMetrics) RecordContentFetchLatency(string, time.Duration) {}
func (m *statusMetrics) RecordSignIn(string)                             {}
func (m *statusMetrics) RecordAccessDenied()                             {}
func (m *statusMetrics) RecordForcedSignOut()                            {}
func (m *statusMetrics) RecordHTTPStatus(code int)                       { m.statuses = append(m.statuses, code) }

func decodeLog(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	NewLoggingMiddleware(logger, nil)(okHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/projects", nil))

	entry := decodeLog(t, &buf)
	if entry["method"] != "GET" || entry["path"] != "/api/projects" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if status, _ := entry["status"].(float64); status != 200 {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("expected duration_ms")
	}
	if _, ok := entry["session_id"]; ok {
		t.Error("session_id should be omitted without a session")
	}
}

func TestLoggingMiddleware_LevelAndMetricsByStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusForbidden, "WARN"},
		{http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			m := &statusMetrics{}
			h := NewLoggingMiddleware(slog.New(slog.NewJSONHandler(&buf, nil)), m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			if got := decodeLog(t, &buf)["level"]; got != tt.wantLevel {
				t.Errorf("level = %v, want %s", got, tt.wantLevel)
			}
			if len(m.statuses) != 1 || m.statuses[0] != tt.status {
				t.Errorf("recorded statuses = %v", m.statuses)
			}
		})
	}
}

func TestLoggingMiddleware_IncludesSessionIDFromInnerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	opener := &mockOpener{entries: map[string]*session.Entry{"sess-1": {ID: "sess-1"}}}

	h := NewLoggingMiddleware(slog.New(slog.NewJSONHandler(&buf, nil)), nil)(
		NewSessionMiddleware(opener, SessionConfig{})(okHandler()),
	)
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-1"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got := decodeLog(t, &buf)["session_id"]; got != "sess-1" {
		t.Errorf("session_id = %v, want sess-1", got)
	}
}

func TestStatusRecorder_BodyWriteRecords200(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	rec.Write([]byte("ok"))
	rec.WriteHeader(http.StatusTeapot)
	if rec.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200", rec.statusCode)
	}
}
