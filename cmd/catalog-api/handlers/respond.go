// Package handlers provides HTTP handlers for the catalog API.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// writeJSON encodes v before committing the status, so an unencodable body
// becomes a 500 instead of an empty response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed","message":"encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, errorResponse{Error: message, Message: message, Detail: detail})
}

// statusOf maps catalog error kinds onto HTTP status codes.
func statusOf(err error) int {
	switch catalog.KindOf(err) {
	case catalog.KindNotFound:
		return http.StatusNotFound
	case catalog.KindInvalidInput:
		return http.StatusBadRequest
	case catalog.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError reports a service failure. Internal details stay in the
// log for 5xx responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *observability.Logger, op string, err error) {
	status := statusOf(err)
	message := err.Error()
	var ce *catalog.Error
	if errors.As(err, &ce) {
		message = ce.Message
	}

	if status >= http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error().Err(err).Str("operation", op).Msg("Request failed")
		writeError(w, status, message, "")
		return
	}
	writeError(w, status, message, err.Error())
}

// badParam is a query parameter parse failure.
type badParam struct {
	name  string
	value string
}

func (e *badParam) Error() string {
	return "invalid " + e.name + ": " + strconv.Quote(e.value)
}

func queryFloat(r *http.Request, name string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := parseFinite(name, raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseFinite rejects NaN and infinities, which ParseFloat accepts.
func parseFinite(name, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &badParam{name: name, value: raw}
	}
	return v, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &badParam{name: name, value: raw}
	}
	return v, nil
}

// splitList splits a comma separated parameter, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
