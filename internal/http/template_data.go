package httpx

import (
	"net/http"

	"github.com/asktourist/marketplace/internal/guard"
)

// PageMeta carries the title and navigation id of a page.
type PageMeta struct {
	Title       string
	CurrentPage string
}

// TemplateDataBuilder provides a fluent API for building template data maps.
type TemplateDataBuilder struct {
	data map[string]any
}

// NewTemplateData creates a builder seeded with the layout fields every page uses.
func NewTemplateData(r *http.Request, meta PageMeta) *TemplateDataBuilder {
	data := map[string]any{
		"Title":           meta.Title,
		"CurrentPage":     meta.CurrentPage,
		"IsAuthenticated": false,
		"Redirect":        safeRedirectOrEmpty(r.URL.Query().Get("redirect")),
	}
	if token := GetCSRFToken(r); token != "" {
		data["CSRFToken"] = token
	}
	if v, ok := GetViewerFromContext(r.Context()); ok && v.State.User != nil {
		data["IsAuthenticated"] = true
		data["User"] = v.State.User
		data["HomePath"] = guard.HomeFor(v.State.Profile)
		if v.State.Profile != nil {
			data["Profile"] = v.State.Profile
			data["Role"] = v.State.Profile.Role
		}
		if v.State.Err != "" {
			data["StateError"] = v.State.Err
		}
	}
	return &TemplateDataBuilder{data: data}
}

// WithError sets a general error banner.
func (b *TemplateDataBuilder) WithError(msg string) *TemplateDataBuilder {
	if msg != "" {
		b.data["Error"] = true
		b.data["ErrorMessage"] = msg
	}
	return b
}

// WithFieldErrors adds field-level validation errors.
func (b *TemplateDataBuilder) WithFieldErrors(errs map[string]string) *TemplateDataBuilder {
	if len(errs) > 0 {
		b.data["Errors"] = errs
	}
	return b
}

// WithForm echoes submitted values back so a re-rendered form keeps them.
func (b *TemplateDataBuilder) WithForm(values map[string]string) *TemplateDataBuilder {
	b.data["Form"] = values
	return b
}

// With adds a custom field to the template data.
func (b *TemplateDataBuilder) With(key string, value any) *TemplateDataBuilder {
	b.data[key] = value
	return b
}

// Build returns the final template data map.
func (b *TemplateDataBuilder) Build() map[string]any {
	return b.data
}

func safeRedirectOrEmpty(candidate string) string {
	if p := safeRedirectPath(candidate); p != "/" {
		return p
	}
	return ""
}
