package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/internal/scene"
	"github.com/rendis/nodeflow/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": schema.NewError(codeForStatus(status), msg)})
}

// writeFlowError maps err to a status code by its FlowError code.
func writeFlowError(w http.ResponseWriter, err error) {
	var fe *schema.FlowError
	if !errors.As(err, &fe) {
		fe = schema.NewError(schema.ErrCodeExecution, err.Error())
	}
	writeJSON(w, statusFor(fe.Code), map[string]any{"error": fe})
}

// statusFor maps a FlowError code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeConflict, schema.ErrCodeCycleDetected, schema.ErrCodePolicyViolation, schema.ErrCodeReentrant:
		return http.StatusConflict
	case schema.ErrCodeValidation, schema.ErrCodeInvalidPort, schema.ErrCodeIncompatibleTypes,
		schema.ErrCodeUnknownModelType, schema.ErrCodeInterpolation:
		return http.StatusUnprocessableEntity
	case schema.ErrCodeStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return schema.ErrCodeNotFound
	case http.StatusConflict:
		return schema.ErrCodeConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return schema.ErrCodeValidation
	default:
		return schema.ErrCodeExecution
	}
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// queryBool extracts a boolean query param with a default value.
func queryBool(r *http.Request, key string, def bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// sessionFor resolves the {scene} URL parameter to an open session.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) (*scene.Session, bool) {
	sess, err := s.deps.Scenes.Get(chi.URLParam(r, "scene"))
	if err != nil {
		writeFlowError(w, err)
		return nil, false
	}
	return sess, true
}

// parseID parses a uuid path or body value.
func parseID(kind, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid %s id %q", kind, raw)
	}
	return id, nil
}

// nodeIDParam parses the {node} URL parameter.
func nodeIDParam(r *http.Request) (flow.NodeID, error) {
	return parseID("node", chi.URLParam(r, "node"))
}
