package clients

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ibms-erp/ibms/internal/authz"
	"github.com/ibms-erp/ibms/internal/shared"
	"github.com/ibms-erp/ibms/internal/view"
)

// Handler serves the client management pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	authz     authz.Middleware
	secure    bool
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, mw authz.Middleware, secure bool) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		authz:     mw,
		secure:    secure,
		validator: validator.New(),
	}
}

// MountRoutes registers client routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.CapManageClients))
		r.Get("/", h.list)
		r.Get("/new", h.showForm)
		r.Post("/", h.create)
		r.Get("/{id}/edit", h.showForm)
		r.Post("/{id}", h.update)
		r.Post("/{id}/delete", h.delete)
	})
}

type formErrors map[string]string

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	search := r.URL.Query().Get("q")
	items, pagination, err := h.service.List(r.Context(), search, page)
	if err != nil {
		h.logger.Error("list clients", slog.Any("error", err))
		h.render(w, r, "pages/clients.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/clients.html", map[string]any{
		"Clients":    items,
		"Pagination": pagination,
		"Search":     search,
	}, http.StatusOK)
}

func (h *Handler) showForm(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"Errors": formErrors{}}
	if idParam := chi.URLParam(r, "id"); idParam != "" {
		id, err := strconv.ParseInt(idParam, 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		client, err := h.service.Get(r.Context(), id)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		data["Client"] = client
	}
	h.render(w, r, "pages/client_form.html", data, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in, errs := h.parseForm(r)
	if len(errs) > 0 {
		h.render(w, r, "pages/client_form.html", map[string]any{"Errors": errs, "Form": in}, http.StatusBadRequest)
		return
	}
	principal := authz.PrincipalFromContext(r.Context())
	client, err := h.service.Create(r.Context(), principal.ID, in)
	if err != nil {
		h.render(w, r, "pages/client_form.html", map[string]any{
			"Errors": formErrors{"general": shared.UserSafeMessage(err)},
			"Form":   in,
		}, statusFor(err))
		return
	}
	shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "success", Message: "Client " + client.Name + " created."})
	http.Redirect(w, r, "/clients", http.StatusSeeOther)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	in, errs := h.parseForm(r)
	if len(errs) > 0 {
		h.render(w, r, "pages/client_form.html", map[string]any{"Errors": errs, "Form": in, "ClientID": id}, http.StatusBadRequest)
		return
	}
	principal := authz.PrincipalFromContext(r.Context())
	if err := h.service.Update(r.Context(), principal.ID, id, in); err != nil {
		h.render(w, r, "pages/client_form.html", map[string]any{
			"Errors":   formErrors{"general": shared.UserSafeMessage(err)},
			"Form":     in,
			"ClientID": id,
		}, statusFor(err))
		return
	}
	shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "success", Message: "Client updated."})
	http.Redirect(w, r, "/clients", http.StatusSeeOther)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	principal := authz.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), principal.ID, id); err != nil {
		kind := "error"
		message := shared.UserSafeMessage(err)
		if err == shared.ErrConflict {
			message = "This client still has invoices and cannot be deleted."
		}
		shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: kind, Message: message})
		http.Redirect(w, r, "/clients", http.StatusSeeOther)
		return
	}
	shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "success", Message: "Client deleted."})
	http.Redirect(w, r, "/clients", http.StatusSeeOther)
}

func (h *Handler) parseForm(r *http.Request) (ClientInput, formErrors) {
	errs := make(formErrors)
	if err := r.ParseForm(); err != nil {
		errs["general"] = "Malformed form submission."
		return ClientInput{}, errs
	}
	in := ClientInput{
		Name:    r.PostFormValue("name"),
		Email:   r.PostFormValue("email"),
		Phone:   r.PostFormValue("phone"),
		Address: r.PostFormValue("address"),
	}
	if raw := r.PostFormValue("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errs["UserID"] = "Invalid linked account."
		} else {
			in.UserID = &userID
		}
	}
	if err := h.validator.Struct(in); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs[fe.Field()] = "Invalid value."
			}
		}
	}
	return in, errs
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	csrfToken, _ := h.csrf.EnsureToken(w, r)
	principal := authz.PrincipalFromContext(r.Context())
	viewData := view.TemplateData{
		Title:       "Clients",
		CSRFToken:   csrfToken,
		Flash:       shared.PopFlash(w, r),
		CurrentPath: r.URL.Path,
		Principal:   principal,
		Data:        data,
	}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func statusFor(err error) int {
	switch err {
	case shared.ErrNotFound:
		return http.StatusNotFound
	case shared.ErrEmailTaken, shared.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
