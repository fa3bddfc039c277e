// ABOUTME: JSON response helpers: envelope writing and endpoint-aware errors.

package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/techwithwayne/postpress-gateway/internal/proxy"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Warn("encoding response", "error", err)
	}
}

// writeError emits the wp_proxy error envelope for the endpoint named in the
// request context.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, errCode string, httpStatus int, extra map[string]any) {
	endpoint := ""
	if info := proxy.FromContext(r.Context()); info != nil {
		endpoint = info.Endpoint
	}
	writeJSON(w, httpStatus, proxy.NewError(errCode, httpStatus, endpoint, extra))
}

// decodeBody parses a JSON object request body. An empty body is treated as
// an empty object so action endpoints work without arguments.
func decodeBody(r *http.Request) (map[string]any, error) {
	var payload map[string]any
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}
