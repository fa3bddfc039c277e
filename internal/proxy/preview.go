// ABOUTME: Guarantees preview responses carry result.html for the editor pane.
// ABOUTME: Detects HTML content and renders markdown through goldmark when the backend sent none.

package proxy

import (
	"bytes"
	"html"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var previewMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// htmlTagPattern matches an opening tag, which is how content that is
// already HTML announces itself.
var htmlTagPattern = regexp.MustCompile(`(?s)<[a-zA-Z][^>]*>`)

// EnsureHTML makes sure response["result"]["html"] is populated. Content is
// searched result-first then payload-first fallbacks; markdown is rendered,
// HTML passes through untouched. A response that already has html is left
// alone.
func EnsureHTML(response, payload map[string]any) {
	result, _ := response["result"].(map[string]any)
	if result == nil {
		result = map[string]any{}
		response["result"] = result
	}

	if existing, ok := result["html"].(string); ok && existing != "" {
		return
	}

	content := firstString(result, "content", "text")
	if content == "" {
		content = firstString(payload, "content", "text", "brief")
	}
	if content == "" {
		return
	}

	result["html"] = RenderHTML(content)
}

// RenderHTML converts content to HTML: pass-through when it already looks
// like markup, markdown rendering otherwise. Rendering failures degrade to
// an escaped paragraph rather than dropping the content.
func RenderHTML(content string) string {
	if htmlTagPattern.MatchString(content) {
		return content
	}

	var buf bytes.Buffer
	if err := previewMarkdown.Convert([]byte(content), &buf); err != nil {
		return "<p>" + html.EscapeString(content) + "</p>"
	}
	return buf.String()
}

// firstString returns the first non-empty string value among the named keys.
func firstString(m map[string]any, keys ...string) string {
	if m == nil {
		return ""
	}
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
