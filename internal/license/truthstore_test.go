// ABOUTME: Tests for the truth store: gate cache rules, verify-result freshness, persistence.
// ABOUTME: Covers site-bound truth, Unknown-treated-as-absent, and the max-age window.

package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techwithwayne/postpress-gateway/internal/kvcache"
	"github.com/techwithwayne/postpress-gateway/internal/store"
)

func newTruthStore(t *testing.T) (*TruthStore, *store.MemStore) {
	t.Helper()
	cache := kvcache.New(100)
	t.Cleanup(cache.Close)
	opts := store.NewMemStore()
	ts := NewTruthStore(cache, opts, "thissite.com", 900*time.Second)
	return ts, opts
}

func TestGateCache_RoundTrip(t *testing.T) {
	ts, _ := newTruthStore(t)

	assert.Nil(t, ts.CachedGateState())

	ts.SetCachedGateState(Truth{State: StateActive, SiteID: "thissite.com", CheckedAt: time.Now()})

	got := ts.CachedGateState()
	require.NotNil(t, got)
	assert.Equal(t, StateActive, got.State)
}

func TestGateCache_UnknownTreatedAsAbsent(t *testing.T) {
	ts, _ := newTruthStore(t)

	ts.SetCachedGateState(Truth{State: StateUnknown, Reason: ReasonVerifyFailed})
	assert.Nil(t, ts.CachedGateState(), "cached Unknown must not stick")
}

func TestGateCache_ActiveBoundToOtherSite(t *testing.T) {
	ts, _ := newTruthStore(t)

	ts.SetCachedGateState(Truth{State: StateActive, SiteID: "othersite.com"})
	assert.Nil(t, ts.CachedGateState(), "Active for a different site gates as Unknown")
}

func TestGateCache_InactiveUsable(t *testing.T) {
	ts, _ := newTruthStore(t)

	ts.SetCachedGateState(Truth{State: StateInactive})
	got := ts.CachedGateState()
	require.NotNil(t, got)
	assert.Equal(t, StateInactive, got.State)
}

func TestVerifyResultCache_FreshnessUsesLaterTimestamp(t *testing.T) {
	ts, _ := newTruthStore(t)

	serverTime := time.Now().Add(30 * time.Minute).UTC()
	payload := &VerifyPayload{OK: true, LastVerified: FlexTime{Time: serverTime}}
	ts.SetCachedVerifyResult(payload)

	got, checkedAt := ts.CachedVerifyResult()
	require.NotNil(t, got)
	assert.WithinDuration(t, serverTime, checkedAt, time.Second,
		"server-reported time wins when later than the local store time")
}

func TestVerifyResultCache_LocalTimeWhenServerSilent(t *testing.T) {
	ts, _ := newTruthStore(t)

	ts.SetCachedVerifyResult(&VerifyPayload{OK: true})

	_, checkedAt := ts.CachedVerifyResult()
	assert.WithinDuration(t, time.Now(), checkedAt, 2*time.Second)
}

func TestPersist_Active(t *testing.T) {
	ts, opts := newTruthStore(t)
	ctx := context.Background()

	require.NoError(t, opts.SetOption(ctx, store.OptLicenseLastError, "inactive"))
	require.NoError(t, ts.Persist(ctx, Truth{State: StateActive, SiteID: "thissite.com"}))

	state, _ := opts.GetOption(ctx, store.OptLicenseState)
	assert.Equal(t, "active", state)

	bound, _ := opts.GetOption(ctx, store.OptLicenseBoundSite)
	assert.Equal(t, "thissite.com", bound)

	lastErr, _ := opts.GetOption(ctx, store.OptLicenseLastError)
	assert.Empty(t, lastErr)

	checked, _ := opts.GetOption(ctx, store.OptLicenseLastChecked)
	assert.NotEmpty(t, checked)
}

func TestPersist_InactiveClearsBinding(t *testing.T) {
	ts, opts := newTruthStore(t)
	ctx := context.Background()

	require.NoError(t, ts.Persist(ctx, Truth{State: StateActive, SiteID: "thissite.com"}))
	require.NoError(t, ts.Persist(ctx, Truth{State: StateInactive}))

	bound, _ := opts.GetOption(ctx, store.OptLicenseBoundSite)
	assert.Empty(t, bound)

	lastErr, _ := opts.GetOption(ctx, store.OptLicenseLastError)
	assert.Equal(t, "inactive", lastErr)
}

func TestPersist_UnknownNeverBinds(t *testing.T) {
	ts, opts := newTruthStore(t)
	ctx := context.Background()

	require.NoError(t, ts.Persist(ctx, Truth{State: StateUnknown, Reason: ReasonSiteMismatch}))

	bound, _ := opts.GetOption(ctx, store.OptLicenseBoundSite)
	assert.Empty(t, bound)

	lastErr, _ := opts.GetOption(ctx, store.OptLicenseLastError)
	assert.Equal(t, ReasonSiteMismatch, lastErr)
}

func TestPersistedTruth_FreshActiveUsable(t *testing.T) {
	ts, _ := newTruthStore(t)
	ctx := context.Background()

	require.NoError(t, ts.Persist(ctx, Truth{State: StateActive, SiteID: "thissite.com"}))

	got := ts.PersistedTruth(ctx)
	require.NotNil(t, got)
	assert.Equal(t, StateActive, got.State)
	assert.Equal(t, "persisted", got.Source)
}

func TestPersistedTruth_StaleRecordUnusable(t *testing.T) {
	ts, opts := newTruthStore(t)
	ctx := context.Background()

	require.NoError(t, ts.Persist(ctx, Truth{State: StateActive, SiteID: "thissite.com"}))

	// Rewrite the timestamp to 1000s ago; max_age is 900s.
	stale := time.Now().Add(-1000 * time.Second).UTC().Format(time.RFC3339)
	require.NoError(t, opts.SetOption(ctx, store.OptLicenseLastChecked, stale))

	assert.Nil(t, ts.PersistedTruth(ctx))
}

func TestPersistedTruth_RecentRecordUsable(t *testing.T) {
	ts, opts := newTruthStore(t)
	ctx := context.Background()

	require.NoError(t, ts.Persist(ctx, Truth{State: StateActive, SiteID: "thissite.com"}))

	recent := time.Now().Add(-100 * time.Second).UTC().Format(time.RFC3339)
	require.NoError(t, opts.SetOption(ctx, store.OptLicenseLastChecked, recent))

	assert.NotNil(t, ts.PersistedTruth(ctx))
}

func TestPersistedTruth_WrongSiteUnusable(t *testing.T) {
	ts, opts := newTruthStore(t)
	ctx := context.Background()

	require.NoError(t, ts.Persist(ctx, Truth{State: StateActive, SiteID: "thissite.com"}))
	require.NoError(t, opts.SetOption(ctx, store.OptLicenseBoundSite, "othersite.com"))

	assert.Nil(t, ts.PersistedTruth(ctx))
}

func TestPersistedTruth_EmptyBindingNeverMatches(t *testing.T) {
	ts, opts := newTruthStore(t)
	ctx := context.Background()

	// Even with an empty current identity an empty binding must not match.
	empty := NewTruthStore(ts.cache, opts, "", 900*time.Second)
	require.NoError(t, opts.SetOption(ctx, store.OptLicenseState, "active"))
	require.NoError(t, opts.SetOption(ctx, store.OptLicenseBoundSite, ""))
	require.NoError(t, opts.SetOption(ctx, store.OptLicenseLastChecked, time.Now().UTC().Format(time.RFC3339)))

	assert.Nil(t, empty.PersistedTruth(ctx))
}

func TestPersistedTruth_UnknownStateUnusable(t *testing.T) {
	ts, opts := newTruthStore(t)
	ctx := context.Background()

	require.NoError(t, opts.SetOption(ctx, store.OptLicenseState, "unknown"))
	require.NoError(t, opts.SetOption(ctx, store.OptLicenseBoundSite, "thissite.com"))
	require.NoError(t, opts.SetOption(ctx, store.OptLicenseLastChecked, time.Now().UTC().Format(time.RFC3339)))

	assert.Nil(t, ts.PersistedTruth(ctx))
}

func TestInvalidateGateState(t *testing.T) {
	ts, _ := newTruthStore(t)

	ts.SetCachedGateState(Truth{State: StateActive, SiteID: "thissite.com"})
	ts.InvalidateGateState()
	assert.Nil(t, ts.CachedGateState())
}
