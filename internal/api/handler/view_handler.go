package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/eventplanner/planner/internal/api/middleware"
	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/ports"
	"github.com/eventplanner/planner/internal/core/session"
	"github.com/eventplanner/planner/pkg/logger"
)

type viewResponse struct {
	View   string               `json:"view"`
	Role   domain.Role          `json:"role"`
	User   *domain.Identity     `json:"user"`
	Vendor *domain.VendorRecord `json:"vendor,omitempty"`
}

// ViewHandler serves the role-scoped landing views. Routes are mounted
// behind middleware.Guard, so the session is signed in with the right role.
type ViewHandler struct {
	vendors ports.VendorRepository
	log     zerolog.Logger
}

func NewViewHandler(vendors ports.VendorRepository, log zerolog.Logger) *ViewHandler {
	return &ViewHandler{vendors: vendors, log: logger.WithComponent(log, "views")}
}

// Dashboard handles GET /dashboard, the organizer landing view.
//
// @Summary      Organizer dashboard
// @Tags         views
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  viewResponse
// @Success      303  "Redirect to sign-in or to the role's landing view"
// @Router       /dashboard [get]
func (h *ViewHandler) Dashboard(c echo.Context) error {
	st, err := current(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, viewResponse{View: "organizer_dashboard", Role: st.Role, User: st.Identity})
}

// VendorDashboard handles GET /vendor/dashboard. A vendor without a vendor
// record gets one created from the registration metadata.
//
// @Summary      Vendor dashboard
// @Tags         views
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  viewResponse
// @Success      303  "Redirect to sign-in or to the role's landing view"
// @Router       /vendor/dashboard [get]
func (h *ViewHandler) VendorDashboard(c echo.Context) error {
	st, err := current(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	vendor, err := h.vendors.FindVendorByUser(ctx, st.Identity.ID)
	if errors.Is(err, domain.ErrVendorNotFound) {
		vendor = vendorFromIdentity(st.Identity)
		if err = h.vendors.CreateVendor(ctx, vendor); errors.Is(err, domain.ErrUserExists) {
			vendor, err = h.vendors.FindVendorByUser(ctx, st.Identity.ID)
		}
		if err == nil {
			h.log.Info().Str("user_id", st.Identity.ID).Msg("created missing vendor record")
		}
	}
	if err != nil {
		return fmt.Errorf("load vendor record: %w", err)
	}

	return c.JSON(http.StatusOK, viewResponse{View: "vendor_dashboard", Role: st.Role, User: st.Identity, Vendor: vendor})
}

// Admin handles GET /admin, the administrator landing view.
//
// @Summary      Admin dashboard
// @Tags         views
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  viewResponse
// @Success      303  "Redirect to sign-in or to the role's landing view"
// @Router       /admin [get]
func (h *ViewHandler) Admin(c echo.Context) error {
	st, err := current(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, viewResponse{View: "admin_dashboard", Role: st.Role, User: st.Identity})
}

func current(c echo.Context) (session.State, error) {
	sc, _ := middleware.SessionFrom(c)
	if sc == nil {
		return session.State{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	st, err := sc.CurrentSession(c.Request().Context())
	if err != nil {
		return st, err
	}
	if !st.Authenticated() {
		return st, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return st, nil
}

func vendorFromIdentity(id *domain.Identity) *domain.VendorRecord {
	company := id.Metadata["company_name"]
	if company == "" {
		company = id.Email
	}
	return &domain.VendorRecord{
		UserID:      id.ID,
		CompanyName: company,
		VendorType:  id.Metadata["vendor_type"],
	}
}
