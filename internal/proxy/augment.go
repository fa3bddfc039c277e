// ABOUTME: Store-flow response augmentor: local entity write plus link injection.
// ABOUTME: Never fails the response; local-write problems become warnings on the upstream success.

package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/techwithwayne/postpress-gateway/internal/store"
)

// Warning types produced by the augmentor.
const (
	WarnUpdateModeMissingID = "update_mode_missing_id"
	WarnInsertPostFailed    = "wp_insert_post_failed"
	WarnLocalStoreException = "local_store_exception"
)

// Augmentor performs the optional local write after a successful store
// exchange and injects entity links where tolerant clients read them.
type Augmentor struct {
	store   store.Store
	siteURL string
	logger  *slog.Logger
}

// NewAugmentor creates an Augmentor. siteURL is the configured site address
// used to build edit and view links.
func NewAugmentor(st store.Store, siteURL string) *Augmentor {
	return &Augmentor{
		store:   st,
		siteURL: strings.TrimRight(siteURL, "/"),
		logger:  slog.Default().With("component", "augmentor"),
	}
}

// Augment runs the local-write step against a successful, JSON-parsed store
// response, mutating it in place. It returns the warnings to attach; it
// never returns an error and never panics outward.
func (a *Augmentor) Augment(ctx context.Context, response, payload map[string]any) (warnings []Warning) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic during store augmentation", "panic", r)
			warnings = append(warnings, Warning{
				Type:    WarnLocalStoreException,
				Message: fmt.Sprintf("%v", r),
			})
		}
	}()

	// Backend already stored the entity: pass the response through unchanged.
	if hasEntityLinks(response) {
		return nil
	}

	if !wantsLocalWrite(payload) {
		return nil
	}

	result, _ := response["result"].(map[string]any)

	post := &store.Post{
		Title:   derivedField(payload, result, "title"),
		Excerpt: derivedField(payload, result, "excerpt"),
		Slug:    derivedField(payload, result, "slug"),
		Status:  derivedField(payload, result, "status"),
		Author:  stringField(payload, "author"),
		Content: deriveContent(payload, result),
	}
	if post.Status == "" || post.Status == "update" {
		post.Status = "draft"
	}

	isUpdate := stringField(payload, "mode") == "update"
	targetID, hasID := resolveTargetID(payload, result)

	var writeErr error
	switch {
	case isUpdate && hasID:
		post.ID = targetID
		writeErr = a.store.UpdatePost(ctx, post)
	case isUpdate:
		warnings = append(warnings, Warning{
			Type:    WarnUpdateModeMissingID,
			Message: "update requested but no target id was resolvable; created a new entity instead",
		})
		writeErr = a.store.CreatePost(ctx, post)
	default:
		writeErr = a.store.CreatePost(ctx, post)
	}

	if writeErr != nil {
		a.logger.Warn("local store write failed", "update", isUpdate, "error", writeErr)
		warnings = append(warnings, Warning{
			Type:    WarnInsertPostFailed,
			Message: writeErr.Error(),
		})
		return warnings
	}

	a.attachTerms(ctx, post.ID, payload)
	a.injectLinks(response, post.ID)
	return warnings
}

// attachTerms stores taxonomy terms supplied on the request payload.
func (a *Augmentor) attachTerms(ctx context.Context, postID int64, payload map[string]any) {
	if tags := stringSlice(payload["tags"]); len(tags) > 0 {
		if err := a.store.SetPostTerms(ctx, postID, "post_tag", tags); err != nil {
			a.logger.Warn("attaching tags", "post_id", postID, "error", err)
		}
	}
	if cats := stringSlice(payload["categories"]); len(cats) > 0 {
		if err := a.store.SetPostTerms(ctx, postID, "category", cats); err != nil {
			a.logger.Warn("attaching categories", "post_id", postID, "error", err)
		}
	}
}

// injectLinks writes id, edit_link, and permalink at the three locations a
// tolerant client might read: top level, result, and result.meta.
func (a *Augmentor) injectLinks(response map[string]any, postID int64) {
	editLink := fmt.Sprintf("%s/wp-admin/post.php?post=%d&action=edit", a.siteURL, postID)
	permalink := fmt.Sprintf("%s/?p=%d", a.siteURL, postID)

	result, _ := response["result"].(map[string]any)
	if result == nil {
		result = map[string]any{}
		response["result"] = result
	}
	meta, _ := result["meta"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
		result["meta"] = meta
	}

	for _, m := range []map[string]any{response, result, meta} {
		m["id"] = postID
		m["edit_link"] = editLink
		m["permalink"] = permalink
	}
}

// hasEntityLinks reports whether the response already carries an entity
// reference at the top level or one level under result.
func hasEntityLinks(response map[string]any) bool {
	if holdsEntityRef(response) {
		return true
	}
	if result, ok := response["result"].(map[string]any); ok {
		return holdsEntityRef(result)
	}
	return false
}

func holdsEntityRef(m map[string]any) bool {
	for _, key := range []string{"id", "permalink", "edit_link"} {
		if v, ok := m[key]; ok && v != nil {
			if s, isStr := v.(string); isStr && s == "" {
				continue
			}
			return true
		}
	}
	return false
}

// wantsLocalWrite is the predicate deciding whether a store request expects
// a local entity: an explicit update, a target_sites list naming
// draft/publish, or a draft/publish/pending status.
func wantsLocalWrite(payload map[string]any) bool {
	if stringField(payload, "mode") == "update" {
		return true
	}
	for _, site := range stringSlice(payload["target_sites"]) {
		if site == "draft" || site == "publish" {
			return true
		}
	}
	switch stringField(payload, "status") {
	case "draft", "publish", "pending":
		return true
	}
	return false
}

// resolveTargetID looks for an update target in payload id, payload
// wp_post_id, then result id.
func resolveTargetID(payload, result map[string]any) (int64, bool) {
	for _, v := range []any{payload["id"], payload["wp_post_id"]} {
		if id, ok := asID(v); ok {
			return id, true
		}
	}
	if result != nil {
		if id, ok := asID(result["id"]); ok {
			return id, true
		}
	}
	return 0, false
}

// asID coerces the shapes an id arrives in over JSON.
func asID(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t > 0 {
			return int64(t), true
		}
	case int64:
		if t > 0 {
			return t, true
		}
	case string:
		if id, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}

// derivedField prefers the request payload's value, then the upstream
// result's.
func derivedField(payload, result map[string]any, key string) string {
	if v := stringField(payload, key); v != "" {
		return v
	}
	return stringField(result, key)
}

// deriveContent follows the field-preference order for entity content,
// falling back to the rendered preview html when nothing else is present.
func deriveContent(payload, result map[string]any) string {
	if v := firstString(payload, "content", "text"); v != "" {
		return v
	}
	return firstString(result, "content", "html")
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

// stringSlice coerces a JSON value into a string list, accepting both a
// bare string and an array of strings.
func stringSlice(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	}
	return nil
}
