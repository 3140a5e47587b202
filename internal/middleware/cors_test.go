package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCORSMiddleware_SetsHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	NewCORSMiddleware("https://portfolio.example.com")(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/projects", nil))

	h := w.Header()
	if got := h.Get("Access-Control-Allow-Origin"); got != "https://portfolio.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := h.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q", got)
	}
	if got := h.Get("Access-Control-Allow-Headers"); !strings.Contains(got, CSRFHeaderName) {
		t.Errorf("Allow-Headers = %q, want it to include %s", got, CSRFHeaderName)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestCORSMiddleware_Preflight_Returns204(t *testing.T) {
	called := false
	h := NewCORSMiddleware("https://portfolio.example.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/admin/projects", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if called {
		t.Error("preflight should not reach the handler")
	}
}

func TestCORSMiddleware_EmptyOrigin_NoHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	NewCORSMiddleware("")(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/", nil))

	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("no CORS headers expected without a configured origin")
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want request passed through", w.Code)
	}
}
