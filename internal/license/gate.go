// ABOUTME: The license gate enforced before every content-generating proxy call.
// ABOUTME: Resolves truth through cache tiers with a rate-limited fresh verify and fails closed.

package license

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/techwithwayne/postpress-gateway/internal/kvcache"
)

const (
	// CodeInactive and CodeUnknown are the caller-facing error codes for a
	// blocked request.
	CodeInactive = "license_inactive"
	CodeUnknown  = "license_unknown"

	rateLimitKey    = "ratelimit:verify"
	gateLogThrottle = 60 * time.Second
)

// BlockError is returned when the gate fails closed. The message names the
// concrete remediation for the operator.
type BlockError struct {
	Code    string
	State   State
	Reason  string
	Message string
}

// Error implements the error interface.
func (e *BlockError) Error() string {
	return fmt.Sprintf("license gate blocked: %s (%s)", e.Code, e.Reason)
}

// Gate is the decision function invoked before gated proxy endpoints.
type Gate struct {
	truths      *TruthStore
	verifier    *Verifier
	cache       *kvcache.Cache
	minInterval time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewGate creates a Gate. minInterval is the minimum spacing between fresh
// verify attempts (already floored by config).
func NewGate(truths *TruthStore, verifier *Verifier, cache *kvcache.Cache, minInterval time.Duration) *Gate {
	return &Gate{
		truths:      truths,
		verifier:    verifier,
		cache:       cache,
		minInterval: minInterval,
		logger:      slog.Default().With("component", "gate"),
		now:         time.Now,
	}
}

// Enforce resolves the current license truth and blocks unless it is Active.
// Gate-block events are logged at most once per (endpoint, state) per minute;
// the throttle affects logging only, never the decision.
func (g *Gate) Enforce(ctx context.Context, endpoint string) error {
	truth := g.Resolve(ctx)
	if truth.State == StateActive {
		return nil
	}

	blockErr := &BlockError{
		State:  truth.State,
		Reason: truth.Reason,
	}
	if truth.State == StateInactive {
		blockErr.Code = CodeInactive
		blockErr.Message = `Your PostPress AI license is not active for this site. Open Settings and click "Activate This Site".`
	} else {
		blockErr.Code = CodeUnknown
		blockErr.Message = `Could not confirm your PostPress AI license. Open Settings, run "Check License", then "Activate This Site".`
	}

	throttleKey := fmt.Sprintf("gate_log:%s:%s", endpoint, truth.State)
	if g.cache.SetIfAbsent(throttleKey, struct{}{}, gateLogThrottle) {
		g.logger.Warn("gate blocked request",
			"endpoint", endpoint,
			"state", truth.State,
			"reason", truth.Reason,
			"source", truth.Source)
	}

	return blockErr
}

// Resolve walks the truth tiers, short-circuiting at the first conclusive
// answer: short-TTL cache, fresh verify-result cache, fresh persisted truth,
// then a rate-limited fresh verify.
func (g *Gate) Resolve(ctx context.Context) Truth {
	// 1. Short-TTL gate cache.
	if truth := g.truths.CachedGateState(); truth != nil {
		truth.Source = "gate_cache"
		return *truth
	}

	// 2. Verify-result cache, if fresh enough.
	if payload, checkedAt := g.truths.CachedVerifyResult(); payload != nil {
		if g.now().Sub(checkedAt) <= g.truths.MaxAge() {
			truth := Interpret(payload, g.truths.SiteID(), g.now())
			truth.Source = "verify_cache"
			truth.CheckedAt = checkedAt
			g.truths.SetCachedGateState(truth)
			return truth
		}
	}

	// 3. Persisted truth fallback, if fresh and site-bound. Covers
	// volatile-cache eviction without a false Unknown.
	if truth := g.truths.PersistedTruth(ctx); truth != nil {
		g.truths.SetCachedGateState(*truth)
		return *truth
	}

	// 4. Rate-limited fresh verify. The marker is written before the call;
	// concurrent racers cost at most one extra upstream call.
	if !g.cache.SetIfAbsent(rateLimitKey, g.now(), g.minInterval) {
		if truth := g.truths.LastVerifyOutcome(); truth != nil {
			return *truth
		}
		return Truth{State: StateUnknown, Reason: ReasonRateLimited, Source: "gate", CheckedAt: g.now()}
	}

	truth := g.verifier.Verify(ctx)
	g.truths.SetLastVerifyOutcome(truth)
	g.truths.SetCachedGateState(truth)
	return truth
}
