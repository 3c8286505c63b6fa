package httpx

import (
	"context"
	"log/slog"
	"net/http"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	"github.com/asktourist/marketplace/internal/ports"
)

const pendingListLimit = 100

// DashboardServiceInterface provides vendor statistics.
type DashboardServiceInterface interface {
	VendorStats(ctx context.Context, vendorUserID string) (ports.VendorStats, error)
}

// ApprovalServiceInterface manages vendor approvals.
type ApprovalServiceInterface interface {
	ListPending(ctx context.Context, limit int) ([]domainauth.Profile, error)
	Approve(ctx context.Context, vendorUserID, actor string) (*domainauth.Profile, error)
	Reject(ctx context.Context, vendorUserID, actor string) (*domainauth.Profile, error)
}

// PageHandlers renders the HTML pages.
type PageHandlers struct {
	T         *TemplateRenderer         // Required
	Dashboard DashboardServiceInterface // Optional: vendor dashboard shows zero counts without it
	Approvals ApprovalServiceInterface  // Optional: admin dashboard is read-only without it
	Logger    *slog.Logger
}

func (h *PageHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *PageHandlers) render(w http.ResponseWriter, data map[string]any) {
	if err := h.T.RenderFull(w, http.StatusOK, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// Static returns a handler for a page that needs nothing beyond the layout data.
func (h *PageHandlers) Static(meta PageMeta) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, NewTemplateData(r, meta).Build())
	}
}

// NotFound renders the 404 page.
func (h *PageHandlers) NotFound(w http.ResponseWriter, r *http.Request) {
	data := NewTemplateData(r, PageMeta{Title: "Page not found"}).
		WithError("The page you were looking for does not exist.").
		Build()
	if err := h.T.RenderError(w, http.StatusNotFound, data); err != nil {
		http.NotFound(w, r)
	}
}

// LoginPending renders /login/pending-approval. When the profile could not be loaded the page
// offers to retry the fetch or sign out instead of redirecting anywhere.
func (h *PageHandlers) LoginPending(w http.ResponseWriter, r *http.Request) {
	b := NewTemplateData(r, PageMeta{Title: "Account Pending Approval", CurrentPage: PageLoginPending})
	if v, ok := GetViewerFromContext(r.Context()); ok {
		switch {
		case v.State.User != nil && v.State.Profile == nil:
			b.WithError("We could not load your account details.").With("CanRetry", true)
		case v.State.Profile != nil && !v.State.Profile.NeedsApproval():
			b.With("Approved", true)
		}
	}
	h.render(w, b.Build())
}

// VendorDashboard renders the vendor's statistics.
func (h *PageHandlers) VendorDashboard(w http.ResponseWriter, r *http.Request) {
	b := NewTemplateData(r, PageMeta{Title: "Vendor Dashboard", CurrentPage: PageVendorDashboard})
	var stats ports.VendorStats
	if p := GetProfileFromContext(r.Context()); p != nil && h.Dashboard != nil {
		var err error
		stats, err = h.Dashboard.VendorStats(r.Context(), p.UserID)
		if err != nil {
			h.logger().ErrorContext(r.Context(), "load vendor stats", "user_id", p.UserID, "error", err)
			b.WithError("We could not load your dashboard statistics.")
		}
	}
	h.render(w, b.With("Stats", stats).Build())
}

//nolint:gochecknoglobals // static read-only lookup
var adminNotices = map[string]string{
	"approved": "Vendor approved.",
	"rejected": "Vendor approval revoked.",
}

// AdminDashboard renders the queue of vendors awaiting approval.
func (h *PageHandlers) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	b := NewTemplateData(r, PageMeta{Title: "Admin Dashboard", CurrentPage: PageAdminDashboard})
	if notice, ok := adminNotices[r.URL.Query().Get("status")]; ok {
		b.With("Notice", notice)
	}
	if r.URL.Query().Get("status") == "failed" {
		b.WithError("The vendor could not be updated. Please try again.")
	}
	if h.Approvals != nil {
		pending, err := h.Approvals.ListPending(r.Context(), pendingListLimit)
		if err != nil {
			h.logger().ErrorContext(r.Context(), "list pending vendors", "error", err)
			b.WithError("We could not load the approval queue.")
		}
		b.With("Pending", pending)
	}
	h.render(w, b.Build())
}

// ApproveVendor handles POST /admin/dashboard/vendors/{id}/approve.
func (h *PageHandlers) ApproveVendor(w http.ResponseWriter, r *http.Request) {
	h.setApproval(w, r, true)
}

// RejectVendor handles POST /admin/dashboard/vendors/{id}/reject.
func (h *PageHandlers) RejectVendor(w http.ResponseWriter, r *http.Request) {
	h.setApproval(w, r, false)
}

func (h *PageHandlers) setApproval(w http.ResponseWriter, r *http.Request, approve bool) {
	sess := GetSessionFromContext(r.Context())
	if h.Approvals == nil || sess == nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	id := r.PathValue("id")
	fn, status := h.Approvals.Reject, "rejected"
	if approve {
		fn, status = h.Approvals.Approve, "approved"
	}
	if _, err := fn(r.Context(), id, sess.User.ID); err != nil {
		h.logger().WarnContext(r.Context(), "set vendor approval", "vendor_id", id, "approve", approve, "error", err)
		status = "failed"
	}

	if wantsJSON(r) {
		code := http.StatusOK
		if status == "failed" {
			code = http.StatusUnprocessableEntity
		}
		WriteJSON(w, code, map[string]string{"status": status, "vendor_id": id})
		return
	}
	http.Redirect(w, r, "/admin/dashboard?status="+status, http.StatusSeeOther)
}
