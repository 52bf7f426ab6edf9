package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ibms-erp/ibms/internal/authz"
	"github.com/ibms-erp/ibms/internal/shared"
	"github.com/ibms-erp/ibms/internal/view"
)

// Handler serves the user administration pages.
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

// MountRoutes registers user administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.CapManageUsers))
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
	items, pagination, err := h.service.List(r.Context(), page)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		h.render(w, r, "pages/users.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users.html", map[string]any{
		"Users":      items,
		"Pagination": pagination,
	}, http.StatusOK)
}

func (h *Handler) showForm(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"Errors": formErrors{}, "Roles": authz.Roles()}
	if idParam := chi.URLParam(r, "id"); idParam != "" {
		id, err := strconv.ParseInt(idParam, 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		user, err := h.service.Get(r.Context(), id)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		data["User"] = user
	}
	h.render(w, r, "pages/user_form.html", data, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := CreateInput{
		FullName:        r.PostFormValue("full_name"),
		Email:           r.PostFormValue("email"),
		Role:            r.PostFormValue("role"),
		SendCredentials: r.PostFormValue("send_credentials") != "",
	}
	if errs := h.validate(in); len(errs) > 0 {
		h.render(w, r, "pages/user_form.html", map[string]any{"Errors": errs, "Form": in, "Roles": authz.Roles()}, http.StatusBadRequest)
		return
	}
	principal := authz.PrincipalFromContext(r.Context())
	user, err := h.service.Create(r.Context(), principal.ID, in)
	if err != nil {
		h.render(w, r, "pages/user_form.html", map[string]any{
			"Errors": formErrors{"general": shared.UserSafeMessage(err)},
			"Form":   in,
			"Roles":  authz.Roles(),
		}, statusFor(err))
		return
	}
	message := "User " + user.FullName + " created."
	if in.SendCredentials {
		message += " Credentials were emailed."
	}
	shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "success", Message: message})
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := UpdateInput{
		FullName: r.PostFormValue("full_name"),
		Email:    r.PostFormValue("email"),
		Role:     r.PostFormValue("role"),
		IsActive: r.PostFormValue("is_active") != "",
	}
	if errs := h.validate(in); len(errs) > 0 {
		h.render(w, r, "pages/user_form.html", map[string]any{"Errors": errs, "Form": in, "UserID": id, "Roles": authz.Roles()}, http.StatusBadRequest)
		return
	}
	principal := authz.PrincipalFromContext(r.Context())
	if err := h.service.Update(r.Context(), principal.ID, id, in); err != nil {
		h.render(w, r, "pages/user_form.html", map[string]any{
			"Errors": formErrors{"general": shared.UserSafeMessage(err)},
			"Form":   in,
			"UserID": id,
			"Roles":  authz.Roles(),
		}, statusFor(err))
		return
	}
	shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "success", Message: "User updated."})
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	principal := authz.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), principal.ID, id); err != nil {
		message := shared.UserSafeMessage(err)
		if errors.Is(err, shared.ErrConflict) {
			if principal.ID == id {
				message = "You cannot delete your own account."
			} else {
				message = "This account is referenced by invoices or clients and cannot be deleted."
			}
		}
		shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "error", Message: message})
		http.Redirect(w, r, "/users", http.StatusSeeOther)
		return
	}
	shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "success", Message: "User deleted."})
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

func (h *Handler) validate(in any) formErrors {
	errs := make(formErrors)
	if err := h.validator.Struct(in); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs[fe.Field()] = "Invalid value."
			}
		}
	}
	return errs
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	csrfToken, _ := h.csrf.EnsureToken(w, r)
	principal := authz.PrincipalFromContext(r.Context())
	viewData := view.TemplateData{
		Title:       "Users",
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
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrEmailTaken), errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
