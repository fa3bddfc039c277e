// ABOUTME: License admin handlers: verify/activate/deactivate, capability reset, status snapshot.
// ABOUTME: These endpoints feed the gate and are therefore never gated themselves.

package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/techwithwayne/postpress-gateway/internal/license"
	"github.com/techwithwayne/postpress-gateway/internal/proxy"
	"github.com/techwithwayne/postpress-gateway/internal/store"
)

// licenseAction builds the handler for one upstream license action. The
// request may override the stored license key and configured site URL; the
// upstream's JSON answer is interpreted, persisted, and relayed.
func (s *Server) licenseAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body, err := decodeBody(r)
		if err != nil {
			s.writeError(w, r, proxy.CodeRequestFailed, http.StatusBadRequest, map[string]any{
				"reason": "invalid_json",
			})
			return
		}

		licenseKey := strings.TrimSpace(stringValue(body["license_key"]))
		if licenseKey == "" {
			licenseKey, _ = s.store.GetOption(ctx, store.OptLicenseKey)
			licenseKey = strings.TrimSpace(licenseKey)
		} else {
			// A key submitted with the action becomes the stored key, the
			// way saving the settings form does.
			if err := s.store.SetOption(ctx, store.OptLicenseKey, licenseKey); err != nil {
				s.logger.Warn("storing submitted license key", "error", err)
			}
		}
		if licenseKey == "" {
			s.writeError(w, r, proxy.CodeServerMisconfig, http.StatusBadRequest, map[string]any{
				"reason":  "license_key_missing",
				"message": "Enter a license key before running license actions.",
			})
			return
		}

		siteURL := strings.TrimSpace(stringValue(body["site_url"]))
		if siteURL == "" {
			siteURL = s.cfg.Site.URL
		}

		// The credential for license actions is the key itself; the shared
		// secret stands in when one is configured and the key is withheld
		// from the wire by policy.
		credential := licenseKey
		if !s.cfg.ProbeAllowed() {
			if shared, _ := s.store.GetOption(ctx, store.OptSharedKey); strings.TrimSpace(shared) != "" {
				credential = strings.TrimSpace(shared)
			}
		}

		req := license.VerifyRequest{LicenseKey: licenseKey, SiteURL: siteURL}
		ex, err := s.forwarder.CallLicense(ctx, action, credential, req)
		if err != nil {
			s.writeError(w, r, proxy.CodeRequestFailed, http.StatusBadGateway, map[string]any{
				"reason": "upstream_unreachable",
			})
			return
		}

		if ex.IsJSON() {
			s.absorbLicenseAnswer(r, action, ex.RawBody)
		}

		writeJSON(w, ex.Status, ex.Passthrough())
	}
}

// absorbLicenseAnswer folds a JSON license-action response into the truth
// store and invalidates the gate cache so the next request re-resolves.
func (s *Server) absorbLicenseAnswer(r *http.Request, action string, raw []byte) {
	ctx := r.Context()

	var payload license.VerifyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Warn("decoding license answer", "action", action, "error", err)
		return
	}

	s.truths.SetCachedVerifyResult(&payload)

	truth := license.Interpret(&payload, s.truths.SiteID(), time.Now())
	truth.Source = "license_" + action
	if err := s.truths.Persist(ctx, truth); err != nil {
		s.logger.Warn("persisting license truth", "action", action, "error", err)
	}
	s.truths.InvalidateGateState()

	s.logger.Info("license action absorbed",
		"action", action, "state", truth.State, "reason", truth.Reason)
}

// handleCapabilityReset clears a latched capability flag. The only way out
// of a rejected latch, and deliberately admin-only.
func (s *Server) handleCapabilityReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := decodeBody(r)
	if err != nil {
		s.writeError(w, r, proxy.CodeRequestFailed, http.StatusBadRequest, map[string]any{
			"reason": "invalid_json",
		})
		return
	}

	scope := strings.TrimSpace(stringValue(body["scope"]))
	if scope == "" {
		scope = store.ScopeContentProxy
	}
	if scope != store.ScopeContentProxy && scope != store.ScopeLicenseForVerify {
		s.writeError(w, r, proxy.CodeRequestFailed, http.StatusBadRequest, map[string]any{
			"reason": "unknown_scope",
			"scope":  scope,
		})
		return
	}

	if err := s.store.ResetCapability(ctx, scope); err != nil {
		s.writeError(w, r, proxy.CodeRequestFailed, http.StatusInternalServerError, map[string]any{
			"reason": "reset_failed",
		})
		return
	}

	s.logger.Info("capability reset", "scope", scope)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "scope": scope})
}

// handleLicenseStatus reports the current truth snapshot without forcing a
// fresh verify: cached state, then persisted state, then unknown.
func (s *Server) handleLicenseStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var truth *license.Truth
	if cached := s.truths.CachedGateState(); cached != nil {
		cached.Source = "gate_cache"
		truth = cached
	} else if persisted := s.truths.PersistedTruth(ctx); persisted != nil {
		truth = persisted
	}

	snapshot := map[string]any{
		"ok":      true,
		"site_id": s.truths.SiteID(),
	}
	if truth != nil {
		snapshot["state"] = string(truth.State)
		snapshot["source"] = truth.Source
		if !truth.CheckedAt.IsZero() {
			snapshot["checked_at"] = truth.CheckedAt.UTC().Format(time.RFC3339)
		}
	} else {
		snapshot["state"] = string(license.StateUnknown)
		if lastErr, _ := s.store.GetOption(ctx, store.OptLicenseLastError); lastErr != "" {
			snapshot["reason"] = lastErr
		}
	}

	if key, _ := s.store.GetOption(ctx, store.OptLicenseKey); key != "" {
		snapshot["license_key"] = maskSecret(key)
	}
	if bound, _ := s.store.GetOption(ctx, store.OptLicenseBoundSite); bound != "" {
		snapshot["bound_site"] = bound
	}

	capabilities := map[string]string{}
	for _, scope := range []string{store.ScopeLicenseForVerify, store.ScopeContentProxy} {
		if cap, err := s.store.GetCapability(ctx, scope); err == nil {
			capabilities[scope] = string(cap)
		}
	}
	snapshot["capabilities"] = capabilities

	writeJSON(w, http.StatusOK, snapshot)
}

// maskSecret renders a credential safe for display: first four characters,
// then asterisks. Short values are fully masked.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
