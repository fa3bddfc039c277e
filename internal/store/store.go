// ABOUTME: Store interface and data types for ppa-gateway persistence
// ABOUTME: Defines options, capability flags, content posts, and the generation log

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Canonical option names. Everything reads these; legacy aliases are folded
// in once by the open-time migration.
const (
	OptLicenseKey         = "license_key"
	OptSharedKey          = "shared_key"
	OptLicenseState       = "license_state"
	OptLicenseBoundSite   = "license_bound_site"
	OptLicenseLastChecked = "license_last_checked"
	OptLicenseLastError   = "license_last_error"
)

// LegacyLicenseKeyAliases are option names older releases stored the license
// key under. The first non-empty alias wins during migration.
var LegacyLicenseKeyAliases = []string{"ppa_license_key", "ppa_license", "ppa_key"}

// Capability is the learned answer to "does the backend accept this
// credential for this purpose". It is a latch, not a cache: once Rejected it
// only leaves that state through an explicit operator reset.
type Capability string

const (
	CapabilityUnknown  Capability = "unknown"
	CapabilityAccepted Capability = "accepted"
	CapabilityRejected Capability = "rejected"
)

// Capability scopes.
const (
	ScopeLicenseForVerify = "license_for_verify"
	ScopeContentProxy     = "content_proxy"
)

// Post is a locally stored content entity created or updated from a
// successful store response.
type Post struct {
	ID        int64
	Title     string
	Content   string
	Excerpt   string
	Slug      string
	Status    string // draft, publish, pending
	Author    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GenerationLogEntry records one generate/store proxy exchange for the
// history screen.
type GenerationLogEntry struct {
	ID        string
	Kind      string // "generate" or "store"
	Title     string
	Subject   string
	WordCount int
	Provider  string
	HTTPCode  int
	ResultID  string
	CreatedAt time.Time
}

// Store defines the interface for gateway persistence
type Store interface {
	// Options (canonical settings)
	GetOption(ctx context.Context, name string) (string, error)
	SetOption(ctx context.Context, name, value string) error
	DeleteOption(ctx context.Context, name string) error

	// Auth capability flags (latched; see SetCapability)
	GetCapability(ctx context.Context, scope string) (Capability, error)
	SetCapability(ctx context.Context, scope string, value Capability) error
	ResetCapability(ctx context.Context, scope string) error

	// Content posts
	CreatePost(ctx context.Context, post *Post) error
	UpdatePost(ctx context.Context, post *Post) error
	GetPost(ctx context.Context, id int64) (*Post, error)
	SetPostTerms(ctx context.Context, postID int64, taxonomy string, terms []string) error
	GetPostTerms(ctx context.Context, postID int64, taxonomy string) ([]string, error)

	// Generation log
	SaveGenerationLog(ctx context.Context, entry *GenerationLogEntry) error
	ListGenerationLog(ctx context.Context, limit int) ([]*GenerationLogEntry, error)

	// Close releases any resources held by the store
	Close() error
}
