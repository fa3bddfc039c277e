// ABOUTME: Gated content-proxy handlers: preview, generate, store, debug-headers.
// ABOUTME: Pipeline per request: gate check, credential selection, one outbound call, optional local write.

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/techwithwayne/postpress-gateway/internal/authmode"
	"github.com/techwithwayne/postpress-gateway/internal/license"
	"github.com/techwithwayne/postpress-gateway/internal/proxy"
	"github.com/techwithwayne/postpress-gateway/internal/store"
)

// upstreamPaths maps inbound endpoint names to backend paths.
var upstreamPaths = map[string]string{
	"preview":  "/preview/",
	"generate": "/generate/",
	"store":    "/store/",
}

// handleContent builds the handler for one gated content endpoint.
func (s *Server) handleContent(endpoint string) http.HandlerFunc {
	upstreamPath := upstreamPaths[endpoint]

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		payload, err := decodeBody(r)
		if err != nil {
			s.writeError(w, r, proxy.CodeRequestFailed, http.StatusBadRequest, map[string]any{
				"reason": "invalid_json",
			})
			return
		}

		// License gate. Fails closed on anything but Active.
		if err := s.gate.Enforce(ctx, endpoint); err != nil {
			var blockErr *license.BlockError
			if errors.As(err, &blockErr) {
				s.writeError(w, r, blockErr.Code, http.StatusForbidden, map[string]any{
					"state":   string(blockErr.State),
					"reason":  blockErr.Reason,
					"message": blockErr.Message,
				})
				return
			}
			s.writeError(w, r, proxy.CodeRequestFailed, http.StatusInternalServerError, nil)
			return
		}

		// Credential selection, possibly failing fast on the latched
		// capability with no upstream call.
		mode, credential, err := s.selector.Resolve(ctx)
		if err != nil {
			s.writeSelectionError(w, r, err)
			return
		}

		body, err := json.Marshal(payload)
		if err != nil {
			s.writeError(w, r, proxy.CodeRequestFailed, http.StatusBadRequest, nil)
			return
		}

		ex, err := s.forwarder.Call(ctx, http.MethodPost, upstreamPath, credential, body)
		if err != nil {
			s.writeError(w, r, proxy.CodeRequestFailed, http.StatusBadGateway, map[string]any{
				"reason": "upstream_unreachable",
			})
			return
		}

		// Capability learning happens before the response is relayed so a
		// 401/403 in license-key mode converts to the sticky error.
		if learnErr := s.selector.LearnFromResponse(ctx, mode, ex.Status, ex.RawBody); learnErr != nil {
			s.writeSelectionError(w, r, learnErr)
			return
		}

		if !ex.Success() {
			s.relayUpstreamFailure(w, r, ex)
			return
		}

		response := ex.Passthrough()

		switch endpoint {
		case "preview":
			if ex.IsJSON() {
				proxy.EnsureHTML(response, payload)
			}
		case "store":
			if ex.IsJSON() {
				warnings := s.augmentor.Augment(ctx, response, payload)
				proxy.AttachWarnings(response, warnings)
			}
		}

		if endpoint == "generate" || endpoint == "store" {
			s.recordGeneration(r, endpoint, payload, response, ex.Status)
		}

		writeJSON(w, ex.Status, response)
	}
}

// writeSelectionError maps auth-mode selection failures onto the envelope.
func (s *Server) writeSelectionError(w http.ResponseWriter, r *http.Request, err error) {
	var selErr *authmode.SelectionError
	if !errors.As(err, &selErr) {
		s.writeError(w, r, proxy.CodeServerMisconfig, http.StatusInternalServerError, nil)
		return
	}

	status := http.StatusBadGateway
	if selErr.Code == authmode.CodeMisconfig {
		status = http.StatusInternalServerError
	}
	s.writeError(w, r, selErr.Code, status, map[string]any{
		"reason":  selErr.Reason,
		"message": selErr.Message,
	})
}

// relayUpstreamFailure hands a backend failure to the caller: structured
// errors pass through with their status, opaque bodies become request_failed.
func (s *Server) relayUpstreamFailure(w http.ResponseWriter, r *http.Request, ex *proxy.Exchange) {
	if ex.IsJSON() {
		writeJSON(w, ex.Status, ex.JSON)
		return
	}
	s.writeError(w, r, proxy.CodeRequestFailed, ex.Status, map[string]any{
		"reason": "upstream_error",
	})
}

// recordGeneration writes a generation-log entry for the history screen.
// Best effort: a log failure never affects the response.
func (s *Server) recordGeneration(r *http.Request, kind string, payload, response map[string]any, httpCode int) {
	entry := &store.GenerationLogEntry{
		ID:       uuid.NewString(),
		Kind:     kind,
		Title:    stringValue(payload["title"]),
		Subject:  firstNonEmpty(stringValue(payload["subject"]), stringValue(payload["brief"])),
		Provider: stringValue(payload["provider"]),
		HTTPCode: httpCode,
	}
	if n, ok := payload["word_count"].(float64); ok {
		entry.WordCount = int(n)
	}
	if result, ok := response["result"].(map[string]any); ok {
		entry.ResultID = stringValue(result["id"])
	}
	if entry.ResultID == "" {
		entry.ResultID = stringValue(response["id"])
	}

	if err := s.store.SaveGenerationLog(r.Context(), entry); err != nil {
		s.logger.Warn("saving generation log", "kind", kind, "error", err)
	}
}

// handleDebugHeaders proxies the backend's header echo. Authenticated but
// never license-gated.
func (s *Server) handleDebugHeaders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	_, credential, err := s.selector.Resolve(ctx)
	if err != nil {
		s.writeSelectionError(w, r, err)
		return
	}

	ex, err := s.forwarder.Call(ctx, http.MethodGet, "/debug/headers/", credential, nil)
	if err != nil {
		s.writeError(w, r, proxy.CodeRequestFailed, http.StatusBadGateway, map[string]any{
			"reason": "upstream_unreachable",
		})
		return
	}
	writeJSON(w, ex.Status, ex.Passthrough())
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
