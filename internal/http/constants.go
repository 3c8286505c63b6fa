package httpx

// Page identifiers used in templates and navigation.
const (
	PageHome              = "home"
	PageSignupCustomer    = "signup-customer"
	PageSignupVendor      = "signup-vendor"
	PageSignupVerify      = "signup-verify"
	PageSignupPending     = "signup-pending"
	PageLoginCustomer     = "login-customer"
	PageLoginVendor       = "login-vendor"
	PageLoginPending      = "login-pending"
	PageVendorDashboard   = "vendor-dashboard"
	PageCustomerDashboard = "customer-dashboard"
	PageAdminDashboard    = "admin-dashboard"
	PageProfile           = "profile"
)

// Template paths used for loading templates in tests and dev mode.
const (
	TemplatePathFromRoot = "web/templates"
	TemplatePathFromTest = "../../web/templates"
	StaticPathFromRoot   = "web/static"
)

//nolint:gochecknoglobals // static read-only lookup for templates
var contentTemplates = map[string]string{
	PageHome:              "home-content",
	PageSignupCustomer:    "signup-customer-content",
	PageSignupVendor:      "signup-vendor-content",
	PageSignupVerify:      "signup-verify-content",
	PageSignupPending:     "signup-pending-content",
	PageLoginCustomer:     "login-customer-content",
	PageLoginVendor:       "login-vendor-content",
	PageLoginPending:      "login-pending-content",
	PageVendorDashboard:   "vendor-dashboard-content",
	PageCustomerDashboard: "customer-dashboard-content",
	PageAdminDashboard:    "admin-dashboard-content",
	PageProfile:           "profile-content",
}

// ContentTemplateMap returns the mapping from page to template name.
func ContentTemplateMap() map[string]string { return contentTemplates }

// ContentTemplateFor returns the content template for page, falling back to the home page.
func ContentTemplateFor(page string) string {
	if name, ok := contentTemplates[page]; ok {
		return name
	}
	return "home-content"
}
