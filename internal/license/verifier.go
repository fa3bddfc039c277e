// ABOUTME: License verifier: ordered credential attempts against the upstream verify endpoint.
// ABOUTME: Caches and persists the first definitive answer and records verify-credential capability.

package license

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/techwithwayne/postpress-gateway/internal/store"
)

// VerifyRequest is the body sent to the upstream verify endpoint.
type VerifyRequest struct {
	LicenseKey string `json:"license_key"`
	SiteURL    string `json:"site_url"`
}

// VerifyCaller performs one upstream verify exchange using the given
// credential. A returned error means the attempt produced no definitive
// answer (transport failure or a non-JSON body) and is skipped, not retried.
// A nil error means the body parsed as JSON, which is accepted as definitive
// regardless of HTTP status.
type VerifyCaller interface {
	CallVerify(ctx context.Context, credential string, req VerifyRequest) (*VerifyPayload, error)
}

// Verifier resolves license truth by calling the upstream verify endpoint
// with an ordered list of credentials: the license key first (when probing is
// allowed), then the shared secret.
type Verifier struct {
	caller       VerifyCaller
	opts         store.Store
	truths       *TruthStore
	siteURL      string // raw configured URL, sent verbatim upstream
	probeAllowed bool
	logger       *slog.Logger
	now          func() time.Time
}

// NewVerifier creates a Verifier.
func NewVerifier(caller VerifyCaller, opts store.Store, truths *TruthStore, siteURL string, probeAllowed bool) *Verifier {
	return &Verifier{
		caller:       caller,
		opts:         opts,
		truths:       truths,
		siteURL:      siteURL,
		probeAllowed: probeAllowed,
		logger:       slog.Default().With("component", "license"),
		now:          time.Now,
	}
}

// Verify performs one verification pass and returns the resulting truth.
// Requires a configured license key; without one it returns Unknown with no
// network call. The first JSON-parseable upstream response wins: it is
// cached, interpreted, and persisted before returning.
func (v *Verifier) Verify(ctx context.Context) Truth {
	now := v.now()

	licenseKey, err := v.opts.GetOption(ctx, store.OptLicenseKey)
	if err != nil {
		v.logger.Warn("reading license key", "error", err)
	}
	licenseKey = strings.TrimSpace(licenseKey)
	if licenseKey == "" {
		return Truth{State: StateUnknown, Reason: ReasonLicenseKeyMissing, Source: "verifier", CheckedAt: now}
	}

	sharedKey, err := v.opts.GetOption(ctx, store.OptSharedKey)
	if err != nil {
		v.logger.Warn("reading shared key", "error", err)
	}
	sharedKey = strings.TrimSpace(sharedKey)

	type attempt struct {
		credential string
		isLicense  bool
	}
	var attempts []attempt
	if v.probeAllowed {
		attempts = append(attempts, attempt{credential: licenseKey, isLicense: true})
	}
	if sharedKey != "" {
		attempts = append(attempts, attempt{credential: sharedKey})
	}

	req := VerifyRequest{LicenseKey: licenseKey, SiteURL: v.siteURL}

	licenseAttemptMade := false
	for _, a := range attempts {
		if a.isLicense {
			licenseAttemptMade = true
		}

		payload, err := v.caller.CallVerify(ctx, a.credential, req)
		if err != nil {
			v.logger.Warn("verify attempt skipped", "license_credential", a.isLicense, "error", err)
			continue
		}

		v.truths.SetCachedVerifyResult(payload)

		truth := Interpret(payload, v.truths.SiteID(), now)
		truth.Source = "verify"

		if err := v.truths.Persist(ctx, truth); err != nil {
			v.logger.Warn("persisting verify truth", "error", err)
		}

		if a.isLicense {
			if err := v.opts.SetCapability(ctx, store.ScopeLicenseForVerify, store.CapabilityAccepted); err != nil {
				v.logger.Warn("recording verify capability", "error", err)
			}
		}

		return truth
	}

	if licenseAttemptMade {
		if err := v.opts.SetCapability(ctx, store.ScopeLicenseForVerify, store.CapabilityRejected); err != nil {
			v.logger.Warn("recording verify capability", "error", err)
		}
	}

	return Truth{State: StateUnknown, Reason: ReasonVerifyFailed, Source: "verifier", CheckedAt: now}
}
