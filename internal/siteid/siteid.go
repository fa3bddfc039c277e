// ABOUTME: Canonical site identity derivation for license binding comparisons.
// ABOUTME: Normalizes URLs so scheme, www, default ports, and trailing slashes don't matter.

package siteid

import (
	"net/url"
	"strings"
)

// Normalize reduces a URL to its canonical site identity:
// "host[:nonstandard_port]path" with the host lowercased, a leading "www."
// stripped, ports 80/443 dropped, and any trailing slash removed.
// Malformed or empty input yields the empty string. An empty identity never
// identifies a site; use Equal for gating comparisons.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	// url.Parse treats "example.com/path" as a relative path; force a scheme
	// so the host is parsed out.
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	port := u.Port()
	if port == "80" || port == "443" {
		port = ""
	}

	path := u.Path
	path = strings.TrimRight(path, "/")

	id := host
	if port != "" {
		id += ":" + port
	}
	return id + path
}

// Equal reports whether two raw URLs identify the same site. Unparseable
// input normalizes to "", which matches nothing, including another "".
func Equal(a, b string) bool {
	na := Normalize(a)
	nb := Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb
}

// EqualNormalized compares two already-normalized identities with the same
// empty-never-matches rule as Equal.
func EqualNormalized(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b
}
