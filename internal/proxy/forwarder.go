// ABOUTME: Outbound HTTP forwarder for the PostPress AI backend.
// ABOUTME: Distinguishes transport failure, non-JSON bodies, and structured answers; bounded timeout, no retries.

package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/techwithwayne/postpress-gateway/internal/license"
)

// maxResponseBody caps how much of an upstream body is read. Backends
// answering content requests stay well under this.
const maxResponseBody = 8 << 20

// Exchange is the outcome of one completed HTTP round trip. A transport
// failure never produces an Exchange; it is returned as an error instead.
type Exchange struct {
	Status  int
	RawBody []byte
	JSON    map[string]any // nil when the body did not parse as JSON
}

// IsJSON reports whether the body parsed as a JSON object.
func (e *Exchange) IsJSON() bool { return e.JSON != nil }

// Success reports a 2xx status.
func (e *Exchange) Success() bool { return e.Status >= 200 && e.Status < 300 }

// Passthrough returns the response body to hand to the inbound caller: the
// parsed JSON when available, otherwise the raw body wrapped opaquely so a
// non-JSON success is never silently dropped.
func (e *Exchange) Passthrough() map[string]any {
	if e.JSON != nil {
		return e.JSON
	}
	return map[string]any{"raw": string(e.RawBody)}
}

// Forwarder performs outbound calls to the backend. One instance per
// process; per-request state arrives via RequestInfo on the context.
type Forwarder struct {
	client  *http.Client
	baseURL string
	version string
	logger  *slog.Logger
}

// NewForwarder creates a Forwarder for the given normalized base URL. The
// timeout bounds the whole round trip.
func NewForwarder(baseURL string, timeout time.Duration, version string) *Forwarder {
	return &Forwarder{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		logger:  slog.Default().With("component", "forwarder"),
	}
}

// Call performs one outbound exchange. The credential travels in X-PPA-Key;
// the caller-context and correlation headers come from the RequestInfo on
// the context. A returned error means the backend was not reached; any
// completed HTTP exchange, whatever its status or body, returns an Exchange.
func (f *Forwarder) Call(ctx context.Context, method, path, credential string, body []byte) (*Exchange, error) {
	url := f.baseURL + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-PPA-Key", credential)
	req.Header.Set("User-Agent", "PostPressAI-Gateway/"+f.version)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	if info := FromContext(ctx); info != nil {
		if info.View != "" {
			req.Header.Set("X-PPA-View", info.View)
		}
		if info.RequestID != "" {
			req.Header.Set("X-Request-ID", info.RequestID)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("upstream unreachable", "method", method, "url", url, "error", err)
		return nil, fmt.Errorf("calling upstream %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		f.logger.Error("reading upstream body", "url", url, "error", err)
		return nil, fmt.Errorf("reading upstream response: %w", err)
	}

	ex := &Exchange{Status: resp.StatusCode, RawBody: raw}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err == nil {
		ex.JSON = parsed
	} else if !ex.Success() {
		f.logger.Warn("non-JSON body on failure status",
			"url", url, "status", resp.StatusCode, "bytes", len(raw))
	}

	return ex, nil
}

// CallVerify adapts the forwarder to the verifier's caller interface. A
// transport failure or a non-JSON body is a skipped attempt; any JSON body
// decodes into a definitive payload regardless of HTTP status.
func (f *Forwarder) CallVerify(ctx context.Context, credential string, req license.VerifyRequest) (*license.VerifyPayload, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding verify request: %w", err)
	}

	ex, err := f.Call(ctx, http.MethodPost, "/license/verify/", credential, body)
	if err != nil {
		return nil, err
	}

	var payload license.VerifyPayload
	if err := json.Unmarshal(ex.RawBody, &payload); err != nil {
		return nil, fmt.Errorf("verify response not JSON (status %d): %w", ex.Status, err)
	}
	return &payload, nil
}

// CallLicense performs one license admin action (verify, activate,
// deactivate) and returns the raw exchange for the handler to interpret.
func (f *Forwarder) CallLicense(ctx context.Context, action, credential string, req license.VerifyRequest) (*Exchange, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding license request: %w", err)
	}
	return f.Call(ctx, http.MethodPost, "/license/"+action+"/", credential, body)
}
