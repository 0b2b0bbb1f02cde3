package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"finledger/internal/shared/logger"
)

func TestResponseWriter_WriteHeader(t *testing.T) {
	rr := httptest.NewRecorder()
	wrapped := wrapResponseWriter(rr)

	wrapped.WriteHeader(http.StatusNotFound)

	if wrapped.Status() != http.StatusNotFound {
		t.Errorf("Status() = %d, want %d", wrapped.Status(), http.StatusNotFound)
	}
}

func TestResponseWriter_WriteHeaderIdempotent(t *testing.T) {
	rr := httptest.NewRecorder()
	wrapped := wrapResponseWriter(rr)

	wrapped.WriteHeader(http.StatusNotFound)
	wrapped.WriteHeader(http.StatusOK) // should be ignored

	if wrapped.Status() != http.StatusNotFound {
		t.Errorf("Status() = %d, want %d (second WriteHeader should be ignored)", wrapped.Status(), http.StatusNotFound)
	}
}

func TestResponseWriter_DefaultStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	wrapped := wrapResponseWriter(rr)

	if wrapped.Status() != 0 {
		t.Errorf("Status() = %d before any write, want 0", wrapped.Status())
	}
}

func TestLogging(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	handler := Logging(zerolog.Nop())(next)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Errorf("handler returned wrong status code: got %d want %d", rr.Code, http.StatusCreated)
	}
}

func TestLogging_DefaultStatus(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	handler := Logging(zerolog.Nop())(next)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %d want %d", rr.Code, http.StatusOK)
	}
}

func TestLogging_WritesRequestLine(t *testing.T) {
	buf := &bytes.Buffer{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		log.Info().Msg("inside handler")
		w.WriteHeader(http.StatusConflict)
	})

	handler := RequestID(Logging(zerolog.New(buf))(next))

	req := httptest.NewRequest(http.MethodPost, "/api/transactions", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, "inside handler") {
		t.Errorf("handler logger not taken from context: %s", out)
	}
	if !strings.Contains(out, `"status":409`) || !strings.Contains(out, `"path":"/api/transactions"`) {
		t.Errorf("request line missing fields: %s", out)
	}
	if strings.Count(out, `"request_id":"req-123"`) != 2 {
		t.Errorf("request id should tag both lines: %s", out)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("expected a generated request id")
	}
	if got := rr.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "from-client")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "from-client" {
		t.Errorf("request id = %q, want the client's", seen)
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "internal server error") {
		t.Errorf("body = %q", rr.Body.String())
	}
}
