// ABOUTME: License truth model and the verify-payload interpretation rule.
// ABOUTME: Decodes upstream verify responses into typed structs and maps them to Active/Inactive/Unknown.

package license

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/techwithwayne/postpress-gateway/internal/siteid"
)

// State is the gate-relevant license state.
type State string

const (
	StateActive   State = "active"
	StateInactive State = "inactive"
	StateUnknown  State = "unknown"
)

// Reasons attached to Unknown truths for diagnostics and error codes.
const (
	ReasonLicenseKeyMissing = "license_key_missing"
	ReasonVerifyFailed      = "verify_failed"
	ReasonSiteMismatch      = "site_mismatch"
	ReasonInsufficientData  = "insufficient_data"
	ReasonRateLimited       = "verify_rate_limited"
)

// Truth is the resolved license state for this installation. State is the
// only field with gating semantics; Reason and Source exist for diagnostics.
// An Active truth always carries the normalized site identity it is bound to.
type Truth struct {
	State     State     `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Source    string    `json:"source,omitempty"`
	SiteID    string    `json:"site,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Truthy is a bool that tolerates the backend's loose typing: JSON booleans,
// numbers, and strings like "1"/"true"/"yes" all map to true.
type Truthy bool

// UnmarshalJSON implements the truthy mapping.
func (t *Truthy) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*t = false
		return nil
	}

	switch data[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*t = Truthy(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes", "on", "active", "activated":
			*t = true
		default:
			*t = false
		}
		return nil
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*t = n != 0
		return nil
	}
}

// FlexTime accepts RFC3339 strings or unix-second numbers. The zero value
// means "not reported".
type FlexTime struct {
	time.Time
}

// UnmarshalJSON implements the flexible timestamp decoding.
func (f *FlexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			// Tolerate unparseable server timestamps; freshness falls back
			// to the locally recorded time.
			return nil
		}
		f.Time = parsed
		return nil
	}

	secs, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return nil
	}
	f.Time = time.Unix(int64(secs), 0).UTC()
	return nil
}

// LicenseInfo is the license block of a verify payload.
type LicenseInfo struct {
	Status       string   `json:"status"`
	LastVerified FlexTime `json:"last_verified"`
}

// ActivationInfo is the activation block of a verify payload.
type ActivationInfo struct {
	Activated Truthy `json:"activated"`
	SiteURL   string `json:"site_url"`
}

// VerifyData is the nested data envelope some backend versions use.
type VerifyData struct {
	License      *LicenseInfo    `json:"license"`
	Activation   *ActivationInfo `json:"activation"`
	LastVerified FlexTime        `json:"last_verified"`
}

// VerifyPayload is the decoded upstream verify response. License and
// activation blocks may appear at the top level or nested under data;
// accessors prefer whichever is present.
type VerifyPayload struct {
	OK           bool            `json:"ok"`
	Data         *VerifyData     `json:"data"`
	License      *LicenseInfo    `json:"license"`
	Activation   *ActivationInfo `json:"activation"`
	LastVerified FlexTime        `json:"last_verified"`
}

// licenseInfo returns the license block, preferring the top level.
func (p *VerifyPayload) licenseInfo() *LicenseInfo {
	if p.License != nil {
		return p.License
	}
	if p.Data != nil {
		return p.Data.License
	}
	return nil
}

// activationInfo returns the activation block, preferring the top level.
func (p *VerifyPayload) activationInfo() *ActivationInfo {
	if p.Activation != nil {
		return p.Activation
	}
	if p.Data != nil {
		return p.Data.Activation
	}
	return nil
}

// ServerCheckedAt returns the most recent server-reported verification
// timestamp found anywhere in the payload, or the zero time.
func (p *VerifyPayload) ServerCheckedAt() time.Time {
	latest := p.LastVerified.Time
	if p.Data != nil && p.Data.LastVerified.After(latest) {
		latest = p.Data.LastVerified.Time
	}
	if lic := p.licenseInfo(); lic != nil && lic.LastVerified.After(latest) {
		latest = lic.LastVerified.Time
	}
	return latest
}

// Interpret maps a decoded verify payload to a Truth for the given current
// site identity (already normalized). A payload bound to a different site is
// never reported Active or Inactive.
func Interpret(p *VerifyPayload, currentSiteID string, now time.Time) Truth {
	truth := Truth{State: StateUnknown, Reason: ReasonInsufficientData, CheckedAt: now}
	if p == nil {
		return truth
	}

	act := p.activationInfo()
	if act != nil {
		boundID := siteid.Normalize(act.SiteURL)
		if boundID != "" && !siteid.EqualNormalized(boundID, currentSiteID) {
			truth.Reason = ReasonSiteMismatch
			return truth
		}
	}

	activated := act != nil && bool(act.Activated)

	status := ""
	if lic := p.licenseInfo(); lic != nil {
		status = strings.ToLower(strings.TrimSpace(lic.Status))
	}

	switch {
	case p.OK && activated && (status == "" || status == "active"):
		truth.State = StateActive
		truth.Reason = ""
		truth.SiteID = currentSiteID
	case p.OK && (!activated || status != "active"):
		truth.State = StateInactive
		truth.Reason = ""
	}

	return truth
}
