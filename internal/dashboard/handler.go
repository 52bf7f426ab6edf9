package dashboard

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ibms-erp/ibms/internal/authz"
	"github.com/ibms-erp/ibms/internal/clients"
	"github.com/ibms-erp/ibms/internal/shared"
	"github.com/ibms-erp/ibms/internal/view"
)

// Handler serves the dashboard page.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	clients   *clients.Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	authz     authz.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, clientSvc *clients.Service, templates *view.Engine, csrf *shared.CSRFManager, mw authz.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		clients:   clientSvc,
		templates: templates,
		csrf:      csrf,
		authz:     mw,
	}
}

// MountRoutes registers the dashboard route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.CapViewAllStats, authz.CapViewOwnStats))
		r.Get("/", h.show)
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	principal := authz.PrincipalFromContext(r.Context())

	var scope *int64
	if !principal.Can(authz.CapViewAllStats) {
		client, err := h.clients.ForUser(r.Context(), principal.ID)
		if err != nil {
			if !errors.Is(err, shared.ErrNotFound) {
				h.logger.Error("resolve client scope", slog.Any("error", err))
			}
			// Portal account without a linked client record sees an empty
			// dashboard rather than an error page.
			h.render(w, r, &Overview{}, http.StatusOK)
			return
		}
		scope = &client.ID
	}

	overview, err := h.service.Overview(r.Context(), scope)
	if err != nil {
		h.logger.Error("load dashboard", slog.Any("error", err))
		h.render(w, r, &Overview{}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, overview, http.StatusOK)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, overview *Overview, status int) {
	csrfToken, _ := h.csrf.EnsureToken(w, r)
	principal := authz.PrincipalFromContext(r.Context())
	viewData := view.TemplateData{
		Title:       "Dashboard",
		CSRFToken:   csrfToken,
		Flash:       shared.PopFlash(w, r),
		CurrentPath: r.URL.Path,
		Principal:   principal,
		Data:        map[string]any{"Overview": overview},
	}
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/dashboard.html", viewData); err != nil {
		h.logger.Error("render dashboard", slog.Any("error", err))
	}
}
