package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"finledger/internal/domain/tenant"
	"finledger/internal/shared/logger"
	"finledger/internal/shared/middleware"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads a single JSON object from the body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, http.StatusBadRequest, "Invalid request body: trailing data")
		return false
	}
	return true
}

// requestContext returns the caller identity stored by the Identity
// middleware, answering 401 when it is missing.
func requestContext(w http.ResponseWriter, r *http.Request) (tenant.RequestContext, bool) {
	rc, ok := middleware.GetRequestContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return tenant.RequestContext{}, false
	}
	return rc, true
}

// pathID parses a positive int64 path value.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// respondError maps a service error to its status. Server-side failures are
// logged with the request logger and hidden from the client.
func respondError(w http.ResponseWriter, r *http.Request, err error, action string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("action", action).Msg("request failed")
		writeError(w, status, "Failed to "+action)
		return
	}
	writeError(w, status, err.Error())
}

// queryInt64 parses an optional positive int64 query parameter.
func queryInt64(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return &v, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func queryBool(r *http.Request, name string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return &v, nil
}

var errInvalidDate = errors.New("invalid date: use YYYY-MM-DD or RFC 3339")

// parseDate accepts a calendar date or an RFC 3339 timestamp, in UTC.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errInvalidDate
	}
	return t.UTC(), nil
}

func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := parseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return &t, nil
}
