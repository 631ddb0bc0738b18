package adapthttp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := &Server{logger: zap.New(core)}

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log(r).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("OK")) //nolint:errcheck
	})
	handler := s.requestLogger(nextHandler)

	req := httptest.NewRequest("GET", "/test-path", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("Expected status %d, got %d", http.StatusTeapot, w.Code)
	}
	reqID := w.Header().Get("X-Request-ID")
	if reqID == "" {
		t.Fatal("missing X-Request-ID header")
	}

	if n := logs.FilterMessage("inside handler").FilterField(zap.String("request_id", reqID)).Len(); n != 1 {
		t.Fatalf("handler log not tagged with request id, got %d entries", n)
	}

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["method"] != "GET" || fields["path"] != "/test-path" {
		t.Errorf("unexpected fields: %v", fields)
	}
	if fields["status"] != int64(http.StatusTeapot) || fields["bytes"] != int64(2) {
		t.Errorf("unexpected status/bytes: %v", fields)
	}
}

func TestRequestLoggerKeepsIncomingID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := &Server{logger: zap.New(core)}
	handler := s.requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected incoming id echoed, got %q", got)
	}
	entries := logs.All()
	if len(entries) != 1 || entries[0].ContextMap()["status"] != int64(http.StatusOK) {
		t.Fatalf("expected implicit 200 logged, got %v", entries)
	}
}
