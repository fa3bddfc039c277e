// ABOUTME: Tests for YAML config loading, env expansion, duration parsing, and floors.
// ABOUTME: Verifies base URL normalization and required-field validation.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Minimal(t *testing.T) {
	path := writeConfig(t, `
site:
  url: "https://example.com"
auth:
  jwt_secret: "secret"
database:
  path: "/tmp/ppa.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8787", cfg.Server.HTTPAddr)
	assert.Equal(t, DefaultUpstreamBaseURL, cfg.Upstream.BaseURL)
	assert.Equal(t, DefaultUpstreamTimeout, cfg.Upstream.Timeout)
	assert.Equal(t, DefaultMaxAge, cfg.Gate.MaxAge)
	assert.Equal(t, DefaultVerifyInterval, cfg.Gate.MinVerifyInterval)
	assert.True(t, cfg.ProbeAllowed())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_Durations(t *testing.T) {
	path := writeConfig(t, `
site:
  url: "https://example.com"
auth:
  jwt_secret: "secret"
database:
  path: "/tmp/ppa.db"
upstream:
  timeout: "30s"
gate:
  max_age: "10m"
  min_verify_interval: "45s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Gate.MaxAge)
	assert.Equal(t, 45*time.Second, cfg.Gate.MinVerifyInterval)
}

func TestLoad_Floors(t *testing.T) {
	path := writeConfig(t, `
site:
  url: "https://example.com"
auth:
  jwt_secret: "secret"
database:
  path: "/tmp/ppa.db"
gate:
  max_age: "5s"
  min_verify_interval: "1s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, MinMaxAge, cfg.Gate.MaxAge)
	assert.Equal(t, MinVerifyInterval, cfg.Gate.MinVerifyInterval)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("PPA_TEST_SECRET", "from-env")

	path := writeConfig(t, `
site:
  url: "https://example.com"
auth:
  jwt_secret: "${PPA_TEST_SECRET}"
database:
  path: "/tmp/ppa.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoad_MissingRequired(t *testing.T) {
	path := writeConfig(t, `
site:
  url: "https://example.com"
auth:
  jwt_secret: "secret"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.path")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
site:
  url: "https://example.com"
auth:
  jwt_secret: "secret"
database:
  path: "/tmp/ppa.db"
gate:
  max_age: "not-a-duration"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_age")
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, DefaultUpstreamBaseURL, NormalizeBaseURL(""))
	assert.Equal(t, DefaultUpstreamBaseURL, NormalizeBaseURL("   "))
	assert.Equal(t, "https://backend.example.com", NormalizeBaseURL("backend.example.com/"))
	assert.Equal(t, "http://backend.example.com/api", NormalizeBaseURL("http://backend.example.com/api/"))
}

func TestLoad_PreferLicenseKeyAndProbe(t *testing.T) {
	path := writeConfig(t, `
site:
  url: "https://example.com"
auth:
  jwt_secret: "secret"
database:
  path: "/tmp/ppa.db"
license:
  prefer_license_key: true
  allow_probe: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.License.PreferLicenseKey)
	assert.False(t, cfg.ProbeAllowed())
}
