// ABOUTME: In-memory Store implementation for tests
// ABOUTME: Mirrors SQLite semantics including the capability latch and post ID assignment

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is a thread-safe in-memory Store used by tests in this and other
// packages. Semantics match SQLiteStore, including the capability latch.
type MemStore struct {
	mu           sync.Mutex
	options      map[string]string
	capabilities map[string]Capability
	posts        map[int64]*Post
	terms        map[int64]map[string][]string
	log          []*GenerationLogEntry
	nextPostID   int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		options:      make(map[string]string),
		capabilities: make(map[string]Capability),
		posts:        make(map[int64]*Post),
		terms:        make(map[int64]map[string][]string),
		nextPostID:   1,
	}
}

func (m *MemStore) GetOption(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.options[name], nil
}

func (m *MemStore) SetOption(ctx context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options[name] = value
	return nil
}

func (m *MemStore) DeleteOption(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.options, name)
	return nil
}

func (m *MemStore) GetCapability(ctx context.Context, scope string) (Capability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.capabilities[scope]; ok {
		return v, nil
	}
	return CapabilityUnknown, nil
}

func (m *MemStore) SetCapability(ctx context.Context, scope string, value Capability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capabilities[scope] == CapabilityRejected && value != CapabilityRejected {
		return nil
	}
	m.capabilities[scope] = value
	return nil
}

func (m *MemStore) ResetCapability(ctx context.Context, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.capabilities, scope)
	return nil
}

func (m *MemStore) CreatePost(ctx context.Context, post *Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	post.ID = m.nextPostID
	m.nextPostID++
	post.CreatedAt = now
	post.UpdatedAt = now
	cp := *post
	m.posts[post.ID] = &cp
	return nil
}

func (m *MemStore) UpdatePost(ctx context.Context, post *Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[post.ID]; !ok {
		return ErrNotFound
	}
	post.UpdatedAt = time.Now().UTC()
	cp := *post
	m.posts[post.ID] = &cp
	return nil
}

func (m *MemStore) GetPost(ctx context.Context, id int64) (*Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *post
	return &cp, nil
}

func (m *MemStore) SetPostTerms(ctx context.Context, postID int64, taxonomy string, terms []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terms[postID] == nil {
		m.terms[postID] = make(map[string][]string)
	}
	kept := make([]string, 0, len(terms))
	for _, t := range terms {
		if t != "" {
			kept = append(kept, t)
		}
	}
	m.terms[postID][taxonomy] = kept
	return nil
}

func (m *MemStore) GetPostTerms(ctx context.Context, postID int64, taxonomy string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terms[postID] == nil {
		return nil, nil
	}
	return append([]string(nil), m.terms[postID][taxonomy]...), nil
}

func (m *MemStore) SaveGenerationLog(ctx context.Context, entry *GenerationLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	cp := *entry
	m.log = append(m.log, &cp)
	return nil
}

func (m *MemStore) ListGenerationLog(ctx context.Context, limit int) ([]*GenerationLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.log) {
		limit = len(m.log)
	}
	out := make([]*GenerationLogEntry, 0, limit)
	for i := len(m.log) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *m.log[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemStore) Close() error { return nil }
