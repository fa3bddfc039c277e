// ABOUTME: Selects which credential authenticates outbound proxy calls to the backend.
// ABOUTME: Learns backend acceptance of license-key auth and latches rejection until an operator reset.

package authmode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/techwithwayne/postpress-gateway/internal/store"
)

// Mode identifies the credential used on outbound content-proxy calls.
type Mode string

const (
	ModeSharedSecret Mode = "shared_secret"
	ModeLicenseKey   Mode = "license_key"
)

// Caller-facing error codes for a failed selection.
const (
	CodeUnsupported = "proxy_auth_unsupported"
	CodeMisconfig   = "server_misconfig"
)

// SelectionError means no usable credential exists for outbound proxy calls.
// Code distinguishes a missing credential from a latched backend rejection.
type SelectionError struct {
	Code    string
	Reason  string
	Message string
}

// Error implements the error interface.
func (e *SelectionError) Error() string {
	return fmt.Sprintf("auth mode selection failed: %s (%s)", e.Code, e.Reason)
}

// Selector decides the outbound auth mode from configured credentials, the
// operator's policy preference, and the learned content-proxy capability.
type Selector struct {
	opts          store.Store
	preferLicense bool
	logger        *slog.Logger
}

// NewSelector creates a Selector. preferLicense mirrors the operator policy of
// authenticating with the license key even when a shared secret exists.
func NewSelector(opts store.Store, preferLicense bool) *Selector {
	return &Selector{
		opts:          opts,
		preferLicense: preferLicense,
		logger:        slog.Default().With("component", "authmode"),
	}
}

// Resolve picks the auth mode and credential for one outbound call.
//
// Order: the policy-preferred license key, then the shared secret, then the
// license key optimistically. A license key whose content-proxy capability is
// latched Rejected is never selected; when it is the only candidate the
// selection fails fast with no upstream call.
func (s *Selector) Resolve(ctx context.Context) (Mode, string, error) {
	licenseKey, err := s.opts.GetOption(ctx, store.OptLicenseKey)
	if err != nil {
		s.logger.Warn("reading license key", "error", err)
	}
	licenseKey = strings.TrimSpace(licenseKey)

	sharedKey, err := s.opts.GetOption(ctx, store.OptSharedKey)
	if err != nil {
		s.logger.Warn("reading shared key", "error", err)
	}
	sharedKey = strings.TrimSpace(sharedKey)

	licenseRejected := false
	if licenseKey != "" {
		cap, err := s.opts.GetCapability(ctx, store.ScopeContentProxy)
		if err != nil {
			s.logger.Warn("reading content-proxy capability", "error", err)
		}
		licenseRejected = cap == store.CapabilityRejected
	}

	if s.preferLicense && licenseKey != "" && !licenseRejected {
		return ModeLicenseKey, licenseKey, nil
	}
	if sharedKey != "" {
		return ModeSharedSecret, sharedKey, nil
	}
	if licenseKey != "" {
		if licenseRejected {
			return "", "", &SelectionError{
				Code:    CodeUnsupported,
				Reason:  "license_key_rejected",
				Message: "The backend does not accept license-key authentication for content requests. Configure a shared secret or reset the learned capability.",
			}
		}
		return ModeLicenseKey, licenseKey, nil
	}

	return "", "", &SelectionError{
		Code:    CodeMisconfig,
		Reason:  "auth_key_missing",
		Message: "No proxy credential is configured. Set a shared secret or a license key in Settings.",
	}
}

// LearnFromResponse updates the content-proxy capability from the outcome of
// an outbound call made in the given mode. Only license-key calls teach
// anything: a 2xx accepts the capability, a 401 or 403 latches rejection and
// converts the response into a SelectionError carrying the backend's message.
// Every other status leaves the capability as it was.
func (s *Selector) LearnFromResponse(ctx context.Context, mode Mode, status int, body []byte) error {
	if mode != ModeLicenseKey {
		return nil
	}

	switch {
	case status >= 200 && status < 300:
		if err := s.opts.SetCapability(ctx, store.ScopeContentProxy, store.CapabilityAccepted); err != nil {
			s.logger.Warn("recording content-proxy capability", "error", err)
		}
		return nil

	case status == 401 || status == 403:
		if err := s.opts.SetCapability(ctx, store.ScopeContentProxy, store.CapabilityRejected); err != nil {
			s.logger.Warn("recording content-proxy capability", "error", err)
		}
		s.logger.Warn("backend rejected license-key auth", "status", status)
		msg := backendMessage(body)
		if msg == "" {
			msg = "The backend rejected license-key authentication for content requests."
		}
		return &SelectionError{Code: CodeUnsupported, Reason: "license_key_rejected", Message: msg}
	}

	return nil
}

// Reset clears the latched content-proxy capability. Exposed to the operator
// as the only way out of a Rejected latch.
func (s *Selector) Reset(ctx context.Context) error {
	return s.opts.ResetCapability(ctx, store.ScopeContentProxy)
}

// backendMessage digs a human-readable message out of a backend error body.
// Accepts {"error": "..."}, {"error": {"message": "..."}}, and {"message": "..."}.
func backendMessage(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}

	if len(envelope.Error) > 0 {
		var s string
		if err := json.Unmarshal(envelope.Error, &s); err == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return envelope.Message
}
