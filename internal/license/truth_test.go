// ABOUTME: Tests for verify-payload decoding and the truth interpretation rule.
// ABOUTME: Covers truthy mapping, nested data envelopes, site mismatch, and timestamp extraction.

package license

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePayload(t *testing.T, raw string) *VerifyPayload {
	t.Helper()
	var p VerifyPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return &p
}

func TestInterpret_ActiveNestedData(t *testing.T) {
	p := decodePayload(t, `{
		"ok": true,
		"data": {
			"license": {"status": "active"},
			"activation": {"activated": true, "site_url": "https://thissite.com/"}
		}
	}`)

	truth := Interpret(p, "thissite.com", time.Now())
	assert.Equal(t, StateActive, truth.State)
	assert.Equal(t, "thissite.com", truth.SiteID)
	assert.Empty(t, truth.Reason)
}

func TestInterpret_ActiveTopLevelEmptyStatus(t *testing.T) {
	p := decodePayload(t, `{
		"ok": true,
		"license": {"status": ""},
		"activation": {"activated": 1, "site_url": "www.thissite.com"}
	}`)

	truth := Interpret(p, "thissite.com", time.Now())
	assert.Equal(t, StateActive, truth.State)
}

func TestInterpret_SiteMismatchNeverDecides(t *testing.T) {
	p := decodePayload(t, `{
		"ok": true,
		"data": {
			"license": {"status": "active"},
			"activation": {"activated": true, "site_url": "https://othersite.com/"}
		}
	}`)

	truth := Interpret(p, "thissite.com", time.Now())
	assert.Equal(t, StateUnknown, truth.State)
	assert.Equal(t, ReasonSiteMismatch, truth.Reason)
	assert.Empty(t, truth.SiteID)
}

func TestInterpret_InactiveWhenNotActivated(t *testing.T) {
	p := decodePayload(t, `{
		"ok": true,
		"data": {
			"license": {"status": "active"},
			"activation": {"activated": false, "site_url": "https://thissite.com/"}
		}
	}`)

	truth := Interpret(p, "thissite.com", time.Now())
	assert.Equal(t, StateInactive, truth.State)
}

func TestInterpret_InactiveWhenStatusNotActive(t *testing.T) {
	p := decodePayload(t, `{
		"ok": true,
		"license": {"status": "expired"},
		"activation": {"activated": true, "site_url": "https://thissite.com/"}
	}`)

	truth := Interpret(p, "thissite.com", time.Now())
	assert.Equal(t, StateInactive, truth.State)
}

func TestInterpret_UnknownWhenNotOK(t *testing.T) {
	p := decodePayload(t, `{"ok": false, "error": {"type": "server_error"}}`)

	truth := Interpret(p, "thissite.com", time.Now())
	assert.Equal(t, StateUnknown, truth.State)
	assert.Equal(t, ReasonInsufficientData, truth.Reason)
}

func TestInterpret_NilPayload(t *testing.T) {
	truth := Interpret(nil, "thissite.com", time.Now())
	assert.Equal(t, StateUnknown, truth.State)
}

func TestInterpret_MissingActivationIsInactive(t *testing.T) {
	// ok=true with no activation block means activated is false.
	p := decodePayload(t, `{"ok": true, "license": {"status": "active"}}`)

	truth := Interpret(p, "thissite.com", time.Now())
	assert.Equal(t, StateInactive, truth.State)
}

func TestTruthy_Mapping(t *testing.T) {
	cases := map[string]bool{
		`true`:        true,
		`false`:       false,
		`1`:           true,
		`0`:           false,
		`"1"`:         true,
		`"true"`:      true,
		`"yes"`:       true,
		`"active"`:    true,
		`"0"`:         false,
		`"no"`:        false,
		`"whatever"`:  false,
		`null`:        false,
		`2`:           true,
	}

	for raw, want := range cases {
		var v Truthy
		require.NoError(t, json.Unmarshal([]byte(raw), &v), "input %s", raw)
		assert.Equal(t, want, bool(v), "input %s", raw)
	}
}

func TestFlexTime_Formats(t *testing.T) {
	var f FlexTime
	require.NoError(t, json.Unmarshal([]byte(`"2026-01-02T15:04:05Z"`), &f))
	assert.Equal(t, 2026, f.Year())

	var unix FlexTime
	require.NoError(t, json.Unmarshal([]byte(`1767366245`), &unix))
	assert.False(t, unix.IsZero())

	var garbage FlexTime
	require.NoError(t, json.Unmarshal([]byte(`"not a time"`), &garbage))
	assert.True(t, garbage.IsZero(), "unparseable server timestamps are tolerated")
}

func TestServerCheckedAt_PrefersLatest(t *testing.T) {
	p := decodePayload(t, `{
		"ok": true,
		"last_verified": "2026-01-01T00:00:00Z",
		"data": {"last_verified": "2026-01-03T00:00:00Z"},
		"license": {"status": "active", "last_verified": "2026-01-02T00:00:00Z"}
	}`)

	got := p.ServerCheckedAt()
	assert.Equal(t, 3, got.Day())
}

func TestServerCheckedAt_ZeroWhenAbsent(t *testing.T) {
	p := decodePayload(t, `{"ok": true}`)
	assert.True(t, p.ServerCheckedAt().IsZero())
}
