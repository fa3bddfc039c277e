// ABOUTME: Tests for site identity normalization and equality.
// ABOUTME: Covers scheme/www/port/slash insensitivity and the empty-never-matches rule.

package siteid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_Equivalents(t *testing.T) {
	want := "example.com"

	assert.Equal(t, want, Normalize("https://Example.com/"))
	assert.Equal(t, want, Normalize("http://www.example.com"))
	assert.Equal(t, want, Normalize("example.com/"))
	assert.Equal(t, want, Normalize("https://example.com:443"))
	assert.Equal(t, want, Normalize("http://example.com:80/"))
}

func TestNormalize_NonStandardPort(t *testing.T) {
	assert.Equal(t, "example.com:8080", Normalize("example.com:8080"))
	assert.NotEqual(t, Normalize("example.com"), Normalize("example.com:8080"))
}

func TestNormalize_Path(t *testing.T) {
	assert.Equal(t, "example.com/blog", Normalize("https://www.example.com/blog/"))
	assert.Equal(t, "example.com/blog", Normalize("EXAMPLE.com/blog"))
	assert.NotEqual(t, Normalize("example.com/blog"), Normalize("example.com"))
}

func TestNormalize_Malformed(t *testing.T) {
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "", Normalize("   "))
	assert.Equal(t, "", Normalize("http://"))
	assert.Equal(t, "", Normalize("://nope"))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("https://Example.com/", "http://www.example.com"))
	assert.False(t, Equal("example.com", "othersite.com"))

	// Two unparseable URLs must never be treated as the same site.
	assert.False(t, Equal("", ""))
	assert.False(t, Equal("http://", "http://"))
}

func TestEqualNormalized(t *testing.T) {
	assert.True(t, EqualNormalized("example.com", "example.com"))
	assert.False(t, EqualNormalized("", ""))
	assert.False(t, EqualNormalized("example.com", ""))
}
