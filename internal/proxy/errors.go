// ABOUTME: Caller-facing error envelope and warning values for proxy responses.
// ABOUTME: Every proxy-originated failure carries source wp_proxy and the endpoint name.

package proxy

// Error codes shared across the proxy surface. License and auth-mode codes
// are defined next to the components that produce them.
const (
	CodeForbidden        = "forbidden"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeServerMisconfig  = "server_misconfig"
	CodeRequestFailed    = "request_failed"
)

// ErrorEnvelope is the JSON body returned to the inbound caller on any
// proxy-originated failure.
type ErrorEnvelope struct {
	OK    bool           `json:"ok"`
	Error string         `json:"error"`
	Code  int            `json:"code"`
	Meta  map[string]any `json:"meta"`
}

// NewError builds an envelope for the given error code, HTTP status, and
// endpoint. Extra meta fields are merged in after source and endpoint.
func NewError(errCode string, httpStatus int, endpoint string, extra map[string]any) *ErrorEnvelope {
	meta := map[string]any{
		"source":   "wp_proxy",
		"endpoint": endpoint,
	}
	for k, v := range extra {
		meta[k] = v
	}
	return &ErrorEnvelope{
		Error: errCode,
		Code:  httpStatus,
		Meta:  meta,
	}
}

// Warning is a non-fatal condition attached to an otherwise successful
// response. Local-write failures surface this way instead of masking a
// successful upstream exchange.
type Warning struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// AttachWarnings writes warnings into a response map: the first under
// "warning" (the field tolerant clients read) and the full list under
// "warnings" when there is more than one.
func AttachWarnings(response map[string]any, warnings []Warning) {
	if len(warnings) == 0 {
		return
	}
	response["warning"] = warnings[0]
	if len(warnings) > 1 {
		response["warnings"] = warnings
	}
}
