// Package core holds the template helpers shared by every page.
package core

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
)

// Deps holds the dependencies for constructing the func map.
type Deps struct {
	Template           **template.Template
	ContentTemplateFor func(string) string
}

// Funcs returns the template.FuncMap used by the page templates.
func Funcs(deps Deps) template.FuncMap {
	return template.FuncMap{
		"sectionTmpl":   deps.ContentTemplateFor,
		"renderSection": renderSection(deps),
		"timeTag":       TimeTag,
		"formatNumber":  FormatNumber,
		"deref":         Deref,
		"roleLabel":     RoleLabel,
		"hasPrefix":     strings.HasPrefix,
		"lookup":        Lookup,
	}
}

func renderSection(deps Deps) func(string, any) (template.HTML, error) {
	return func(page string, data any) (template.HTML, error) {
		if deps.Template == nil || *deps.Template == nil {
			return "", errors.New("template not initialized")
		}
		var buf bytes.Buffer
		if err := (*deps.Template).ExecuteTemplate(&buf, deps.ContentTemplateFor(page), data); err != nil {
			return "", err
		}
		// #nosec G203 - rendered by our own html/template set; values were escaped during execution.
		return template.HTML(buf.String()), nil
	}
}

// TimeTag renders a <time> element, or nothing for the zero time.
func TimeTag(t time.Time) template.HTML {
	if t.IsZero() {
		return ""
	}
	// #nosec G203 - built from escaped values only
	return template.HTML(fmt.Sprintf(
		`<time datetime="%s">%s</time>`,
		t.UTC().Format(time.RFC3339),
		template.HTMLEscapeString(t.UTC().Format("Jan 2, 2006 15:04 MST")),
	))
}

// FormatNumber formats n with comma thousands separators.
func FormatNumber(n int64) string {
	neg := n < 0
	var s string
	if neg {
		s = strconv.FormatUint(uint64(-n), 10)
	} else {
		s = strconv.FormatInt(n, 10)
	}
	if len(s) > 3 {
		var b strings.Builder
		b.Grow(len(s) + (len(s)-1)/3)
		head := len(s) % 3
		if head == 0 {
			head = 3
		}
		b.WriteString(s[:head])
		for i := head; i < len(s); i += 3 {
			b.WriteByte(',')
			b.WriteString(s[i : i+3])
		}
		s = b.String()
	}
	if neg {
		return "-" + s
	}
	return s
}

// Deref returns the value of an optional string, or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Lookup reads key from a map[string]string held in template data. Missing maps read as empty.
func Lookup(m any, key string) string {
	if mm, ok := m.(map[string]string); ok {
		return mm[key]
	}
	return ""
}

// RoleLabel is the display name of a role.
func RoleLabel(r domainauth.Role) string {
	switch r {
	case domainauth.RoleVendor:
		return "Vendor"
	case domainauth.RoleAdmin:
		return "Administrator"
	case domainauth.RoleCustomer:
		return "Traveller"
	default:
		return "Guest"
	}
}
