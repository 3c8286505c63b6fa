package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asktourist/marketplace/internal/authstate"
	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
)

func TestTemplateRenderer_EveryPageRenders(t *testing.T) {
	tr := requireTemplateRenderer(t)
	company := "Sol Tours"
	viewer := Viewer{State: authstate.State{
		User: &domainauth.User{ID: "u1", Email: "v@example.com"},
		Profile: &domainauth.Profile{
			UserID:      "u1",
			Name:        "Vera",
			Role:        domainauth.RoleVendor,
			IsVendor:    true,
			IsApproved:  true,
			CompanyName: &company,
			SocialLinks: map[string]string{"website": "https://sol.example.com"},
			CreatedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
	}}

	for page, tmpl := range ContentTemplateMap() {
		t.Run(page, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(SetViewerInContext(req.Context(), viewer))
			data := NewTemplateData(req, PageMeta{Title: "T", CurrentPage: page}).Build()

			rec := httptest.NewRecorder()
			require.NoError(t, tr.RenderFull(rec, http.StatusOK, data), tmpl)
			assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), `data-page="`+page+`"`)
		})
	}
}

func TestTemplateRenderer_SignedOutLayout(t *testing.T) {
	tr := requireTemplateRenderer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	data := NewTemplateData(req, PageMeta{Title: "Home", CurrentPage: PageHome}).Build()

	rec := httptest.NewRecorder()
	require.NoError(t, tr.RenderFull(rec, http.StatusOK, data))
	body := rec.Body.String()
	assert.Contains(t, body, `href="/login/vendor"`)
	assert.NotContains(t, body, "Sign Out")
}

func TestTemplateRenderer_FormErrorsAndValues(t *testing.T) {
	tr := requireTemplateRenderer(t)
	req := httptest.NewRequest(http.MethodGet, "/signup/vendor", nil)
	data := NewTemplateData(req, PageMeta{Title: "Become a Vendor", CurrentPage: PageSignupVendor}).
		WithError("Location is required").
		WithFieldErrors(map[string]string{"location": "Location is required"}).
		WithForm(map[string]string{"company_name": `Sol "Tours"`}).
		Build()

	rec := httptest.NewRecorder()
	require.NoError(t, tr.RenderFull(rec, http.StatusUnprocessableEntity, data))
	body := rec.Body.String()
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, body, `class="field-error">Location is required`)
	assert.Contains(t, body, `value="Sol &#34;Tours&#34;"`)
}

func TestContentTemplateFor(t *testing.T) {
	assert.Equal(t, "vendor-dashboard-content", ContentTemplateFor(PageVendorDashboard))
	assert.Equal(t, "home-content", ContentTemplateFor("unknown"))
}

func TestNewTemplateData(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/login/customer?redirect=/profile", nil)
	data := NewTemplateData(req, PageMeta{Title: "Log in", CurrentPage: PageLoginCustomer}).Build()
	assert.Equal(t, "/profile", data["Redirect"])
	assert.Equal(t, false, data["IsAuthenticated"])
	assert.NotContains(t, data, "User")

	profile := &domainauth.Profile{UserID: "u1", Role: domainauth.RoleAdmin}
	req = httptest.NewRequest(http.MethodGet, "/login/customer?redirect=https://evil.example.com", nil)
	req = req.WithContext(SetViewerInContext(req.Context(), Viewer{State: authstate.State{
		User:    &domainauth.User{ID: "u1"},
		Profile: profile,
		Err:     "Failed to fetch profile",
	}}))
	data = NewTemplateData(req, PageMeta{}).Build()
	assert.Equal(t, "", data["Redirect"])
	assert.Equal(t, true, data["IsAuthenticated"])
	assert.Equal(t, "/admin/dashboard", data["HomePath"])
	assert.Equal(t, domainauth.RoleAdmin, data["Role"])
	assert.Equal(t, "Failed to fetch profile", data["StateError"])
}
