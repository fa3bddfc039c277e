// ABOUTME: Tests for the SQLite store: options, capability latch, posts, terms, generation log.
// ABOUTME: Includes the legacy license-key alias migration.

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOptions_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	val, err := s.GetOption(ctx, OptLicenseKey)
	require.NoError(t, err)
	assert.Equal(t, "", val, "unset option reads as empty")

	require.NoError(t, s.SetOption(ctx, OptLicenseKey, "ppa_live_abc"))
	val, err = s.GetOption(ctx, OptLicenseKey)
	require.NoError(t, err)
	assert.Equal(t, "ppa_live_abc", val)

	require.NoError(t, s.SetOption(ctx, OptLicenseKey, "ppa_live_def"))
	val, _ = s.GetOption(ctx, OptLicenseKey)
	assert.Equal(t, "ppa_live_def", val)

	require.NoError(t, s.DeleteOption(ctx, OptLicenseKey))
	val, _ = s.GetOption(ctx, OptLicenseKey)
	assert.Equal(t, "", val)
}

func TestOptions_LegacyAliasMigration(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)

	// Simulate an old installation that stored the key under an alias.
	require.NoError(t, s.SetOption(ctx, "ppa_license", "ppa_live_legacy"))
	require.NoError(t, s.SetOption(ctx, "ppa_key", "ppa_live_older"))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	val, err := s.GetOption(ctx, OptLicenseKey)
	require.NoError(t, err)
	assert.Equal(t, "ppa_live_legacy", val, "first non-empty alias wins")

	for _, alias := range LegacyLicenseKeyAliases {
		v, _ := s.GetOption(ctx, alias)
		assert.Equal(t, "", v, "alias %s should be removed", alias)
	}
}

func TestOptions_MigrationKeepsCanonical(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SetOption(ctx, OptLicenseKey, "ppa_live_current"))
	require.NoError(t, s.SetOption(ctx, "ppa_license", "ppa_live_stale"))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	val, _ := s.GetOption(ctx, OptLicenseKey)
	assert.Equal(t, "ppa_live_current", val, "canonical value must not be overwritten")
}

func TestCapability_Latch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cap, err := s.GetCapability(ctx, ScopeContentProxy)
	require.NoError(t, err)
	assert.Equal(t, CapabilityUnknown, cap)

	require.NoError(t, s.SetCapability(ctx, ScopeContentProxy, CapabilityAccepted))
	cap, _ = s.GetCapability(ctx, ScopeContentProxy)
	assert.Equal(t, CapabilityAccepted, cap)

	require.NoError(t, s.SetCapability(ctx, ScopeContentProxy, CapabilityRejected))
	cap, _ = s.GetCapability(ctx, ScopeContentProxy)
	assert.Equal(t, CapabilityRejected, cap)

	// Rejected latches: a later accepted write is ignored.
	require.NoError(t, s.SetCapability(ctx, ScopeContentProxy, CapabilityAccepted))
	cap, _ = s.GetCapability(ctx, ScopeContentProxy)
	assert.Equal(t, CapabilityRejected, cap)

	// Redundant rejected writes are fine.
	require.NoError(t, s.SetCapability(ctx, ScopeContentProxy, CapabilityRejected))

	// Only the explicit reset clears it.
	require.NoError(t, s.ResetCapability(ctx, ScopeContentProxy))
	cap, _ = s.GetCapability(ctx, ScopeContentProxy)
	assert.Equal(t, CapabilityUnknown, cap)
}

func TestCapability_RejectsUnknownWrite(t *testing.T) {
	s := newTestStore(t)
	err := s.SetCapability(context.Background(), ScopeContentProxy, CapabilityUnknown)
	assert.Error(t, err, "unknown is the absence of a row, not a stored value")
}

func TestPosts_CreateUpdateGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	post := &Post{
		Title:   "Hello",
		Content: "<p>Body</p>",
		Excerpt: "Body",
		Slug:    "hello",
		Status:  "draft",
		Author:  "editor",
	}
	require.NoError(t, s.CreatePost(ctx, post))
	assert.Greater(t, post.ID, int64(0))

	got, err := s.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Title)
	assert.Equal(t, "draft", got.Status)

	got.Title = "Hello again"
	got.Status = "publish"
	require.NoError(t, s.UpdatePost(ctx, got))

	got2, err := s.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello again", got2.Title)
	assert.Equal(t, "publish", got2.Status)
}

func TestPosts_UpdateMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdatePost(context.Background(), &Post{ID: 9999, Title: "x", Status: "draft"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPosts_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetPost(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostTerms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	post := &Post{Title: "T", Content: "c", Status: "draft"}
	require.NoError(t, s.CreatePost(ctx, post))

	require.NoError(t, s.SetPostTerms(ctx, post.ID, "post_tag", []string{"ai", "", "go"}))
	terms, err := s.GetPostTerms(ctx, post.ID, "post_tag")
	require.NoError(t, err)
	assert.Equal(t, []string{"ai", "go"}, terms)

	// Replace semantics.
	require.NoError(t, s.SetPostTerms(ctx, post.ID, "post_tag", []string{"news"}))
	terms, _ = s.GetPostTerms(ctx, post.ID, "post_tag")
	assert.Equal(t, []string{"news"}, terms)
}

func TestGenerationLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveGenerationLog(ctx, &GenerationLogEntry{
		Kind:     "store",
		Title:    "Post one",
		HTTPCode: 200,
	}))
	require.NoError(t, s.SaveGenerationLog(ctx, &GenerationLogEntry{
		Kind:     "generate",
		Title:    "Post two",
		Provider: "openai",
		HTTPCode: 200,
	}))

	entries, err := s.ListGenerationLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.NotEmpty(t, entries[0].ID)
}

func TestMemStore_MatchesSQLiteSemantics(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	require.NoError(t, m.SetCapability(ctx, ScopeContentProxy, CapabilityRejected))
	require.NoError(t, m.SetCapability(ctx, ScopeContentProxy, CapabilityAccepted))
	cap, _ := m.GetCapability(ctx, ScopeContentProxy)
	assert.Equal(t, CapabilityRejected, cap, "MemStore must latch like SQLite")

	post := &Post{Title: "t", Content: "c", Status: "draft"}
	require.NoError(t, m.CreatePost(ctx, post))
	assert.Equal(t, int64(1), post.ID)

	err := m.UpdatePost(ctx, &Post{ID: 42})
	assert.ErrorIs(t, err, ErrNotFound)
}
