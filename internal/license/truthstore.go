// ABOUTME: License truth store: short-TTL gate cache, verify-result cache, and durable persistence.
// ABOUTME: Bridges the volatile kvcache and the durable option store, enforcing site binding.

package license

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/techwithwayne/postpress-gateway/internal/config"
	"github.com/techwithwayne/postpress-gateway/internal/kvcache"
	"github.com/techwithwayne/postpress-gateway/internal/siteid"
	"github.com/techwithwayne/postpress-gateway/internal/store"
)

// Cache keys. Process-wide: shared across all requests on this installation.
const (
	cacheKeyGateState     = "license:gate_state"
	cacheKeyVerifyResult  = "license:verify_result"
	cacheKeyVerifyOutcome = "license:last_verify_outcome"
)

// cachedVerifyResult pairs a decoded verify payload with the local time it
// was stored, so freshness can use the later of local and server timestamps.
type cachedVerifyResult struct {
	Payload  *VerifyPayload
	StoredAt time.Time
}

// TruthStore resolves and records license truth across the three storage
// tiers: the short-TTL gate cache, the minutes-scale verify-result cache,
// and the durable option store.
type TruthStore struct {
	cache  *kvcache.Cache
	opts   store.Store
	siteID string // normalized identity of this installation
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewTruthStore creates a TruthStore for the given normalized site identity.
func NewTruthStore(cache *kvcache.Cache, opts store.Store, currentSiteID string, maxAge time.Duration) *TruthStore {
	if maxAge < config.MinMaxAge {
		maxAge = config.MinMaxAge
	}
	return &TruthStore{
		cache:  cache,
		opts:   opts,
		siteID: currentSiteID,
		maxAge: maxAge,
		logger: slog.Default().With("component", "license"),
		now:    time.Now,
	}
}

// SiteID returns the normalized identity this store is bound to.
func (ts *TruthStore) SiteID() string { return ts.siteID }

// MaxAge returns the configured truth freshness window.
func (ts *TruthStore) MaxAge() time.Duration { return ts.maxAge }

// CachedGateState returns the short-TTL cached truth if present and decided.
// A cached Unknown is treated as absent so the gate can attempt a fresher
// resolution instead of sticking with indecision.
func (ts *TruthStore) CachedGateState() *Truth {
	val, ok := ts.cache.Get(cacheKeyGateState)
	if !ok {
		return nil
	}
	truth, ok := val.(Truth)
	if !ok || (truth.State != StateActive && truth.State != StateInactive) {
		return nil
	}
	// An Active entry bound to a different site gates as if Unknown.
	if truth.State == StateActive && !siteid.EqualNormalized(truth.SiteID, ts.siteID) {
		return nil
	}
	return &truth
}

// SetCachedGateState writes the short-TTL gate cache entry. The TTL is
// min(60s, maxAge) with a 15s floor.
func (ts *TruthStore) SetCachedGateState(truth Truth) {
	ttl := config.DefaultGateCacheCeiling
	if ts.maxAge < ttl {
		ttl = ts.maxAge
	}
	if ttl < config.MinGateCacheTTL {
		ttl = config.MinGateCacheTTL
	}
	ts.cache.Set(cacheKeyGateState, truth, ttl)
}

// CachedVerifyResult returns the cached verify payload and its effective
// checked-at time (the later of the local store time and the server-reported
// verification time), or nil if absent.
func (ts *TruthStore) CachedVerifyResult() (*VerifyPayload, time.Time) {
	val, ok := ts.cache.Get(cacheKeyVerifyResult)
	if !ok {
		return nil, time.Time{}
	}
	cached, ok := val.(cachedVerifyResult)
	if !ok || cached.Payload == nil {
		return nil, time.Time{}
	}

	checkedAt := cached.StoredAt
	if server := cached.Payload.ServerCheckedAt(); server.After(checkedAt) {
		checkedAt = server
	}
	return cached.Payload, checkedAt
}

// SetCachedVerifyResult caches a full verify payload for reuse by the gate.
func (ts *TruthStore) SetCachedVerifyResult(payload *VerifyPayload) {
	ttl := ts.maxAge
	if ttl < config.DefaultVerifyResultCache {
		ttl = config.DefaultVerifyResultCache
	}
	ts.cache.Set(cacheKeyVerifyResult, cachedVerifyResult{Payload: payload, StoredAt: ts.now()}, ttl)
}

// LastVerifyOutcome returns the most recent verify outcome, if one is still
// retained. Used when a fresh verify is rate-limited.
func (ts *TruthStore) LastVerifyOutcome() *Truth {
	val, ok := ts.cache.Get(cacheKeyVerifyOutcome)
	if !ok {
		return nil
	}
	truth, ok := val.(Truth)
	if !ok {
		return nil
	}
	return &truth
}

// SetLastVerifyOutcome retains a verify outcome for rate-limited reuse.
func (ts *TruthStore) SetLastVerifyOutcome(truth Truth) {
	ts.cache.Set(cacheKeyVerifyOutcome, truth, ts.maxAge)
}

// InvalidateGateState drops the short-TTL cache entry, forcing the next gate
// check to re-resolve. Called after license admin actions change state.
func (ts *TruthStore) InvalidateGateState() {
	ts.cache.Delete(cacheKeyGateState)
}

// PersistedTruth derives a usable truth from durable storage: the state flag,
// the bound site identity, and the last-checked timestamp. It is the fallback
// for volatile-cache misses and is usable only when the state is decided, the
// non-empty bound site equals this installation's identity, and the record is
// within max-age.
func (ts *TruthStore) PersistedTruth(ctx context.Context) *Truth {
	stateVal, err := ts.opts.GetOption(ctx, store.OptLicenseState)
	if err != nil {
		ts.logger.Warn("reading persisted license state", "error", err)
		return nil
	}

	state := State(stateVal)
	if state != StateActive && state != StateInactive {
		return nil
	}

	boundSite, err := ts.opts.GetOption(ctx, store.OptLicenseBoundSite)
	if err != nil || !siteid.EqualNormalized(boundSite, ts.siteID) {
		return nil
	}

	checkedRaw, err := ts.opts.GetOption(ctx, store.OptLicenseLastChecked)
	if err != nil || checkedRaw == "" {
		return nil
	}
	checkedAt, err := time.Parse(time.RFC3339, checkedRaw)
	if err != nil {
		return nil
	}
	if ts.now().Sub(checkedAt) > ts.maxAge {
		return nil
	}

	return &Truth{
		State:     state,
		Source:    "persisted",
		SiteID:    boundSite,
		CheckedAt: checkedAt,
	}
}

// Persist writes a truth to durable storage. Active binds this site's
// identity and clears the last error; Inactive and Unknown clear the binding
// (an unknown or mismatched state is never bound to a site). The last-checked
// timestamp is always stamped.
func (ts *TruthStore) Persist(ctx context.Context, truth Truth) error {
	if err := ts.opts.SetOption(ctx, store.OptLicenseState, string(truth.State)); err != nil {
		return fmt.Errorf("persisting license state: %w", err)
	}

	switch truth.State {
	case StateActive:
		if err := ts.opts.SetOption(ctx, store.OptLicenseBoundSite, ts.siteID); err != nil {
			return fmt.Errorf("persisting site binding: %w", err)
		}
		if err := ts.opts.DeleteOption(ctx, store.OptLicenseLastError); err != nil {
			return fmt.Errorf("clearing last error: %w", err)
		}
	case StateInactive:
		if err := ts.opts.DeleteOption(ctx, store.OptLicenseBoundSite); err != nil {
			return fmt.Errorf("clearing site binding: %w", err)
		}
		if err := ts.opts.SetOption(ctx, store.OptLicenseLastError, "inactive"); err != nil {
			return fmt.Errorf("persisting last error: %w", err)
		}
	default:
		if err := ts.opts.DeleteOption(ctx, store.OptLicenseBoundSite); err != nil {
			return fmt.Errorf("clearing site binding: %w", err)
		}
		if truth.Reason != "" {
			if err := ts.opts.SetOption(ctx, store.OptLicenseLastError, truth.Reason); err != nil {
				return fmt.Errorf("persisting last error: %w", err)
			}
		}
	}

	if err := ts.opts.SetOption(ctx, store.OptLicenseLastChecked, ts.now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("persisting last checked: %w", err)
	}
	return nil
}
