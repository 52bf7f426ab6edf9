package invoices

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ibms-erp/ibms/internal/authz"
	"github.com/ibms-erp/ibms/internal/clients"
	"github.com/ibms-erp/ibms/internal/shared"
	"github.com/ibms-erp/ibms/internal/view"
)

const dateLayout = "2006-01-02"

// Handler serves the invoice pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	clients   *clients.Service
	exporter  *PDFExporter
	templates *view.Engine
	csrf      *shared.CSRFManager
	authz     authz.Middleware
	secure    bool
	validator *validator.Validate
}

// NewHandler builds a Handler instance. The exporter may be nil when no PDF
// renderer is configured; the export route then answers 503.
func NewHandler(logger *slog.Logger, service *Service, clientSvc *clients.Service, exporter *PDFExporter, templates *view.Engine, csrf *shared.CSRFManager, mw authz.Middleware, secure bool) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		clients:   clientSvc,
		exporter:  exporter,
		templates: templates,
		csrf:      csrf,
		authz:     mw,
		secure:    secure,
		validator: validator.New(),
	}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.CapViewInvoices, authz.CapViewOwnInvoices))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Get("/{id}/pdf", h.exportPDF)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.CapManageInvoices))
		r.Get("/new", h.showForm)
		r.Post("/", h.create)
		r.Get("/{id}/edit", h.showForm)
		r.Post("/{id}", h.update)
		r.Post("/{id}/status", h.setStatus)
		r.Post("/{id}/delete", h.delete)
	})
}

type formErrors map[string]string

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal := authz.PrincipalFromContext(r.Context())
	scope, err := h.clientScope(r, principal)
	if err != nil {
		h.render(w, r, "pages/invoices.html", map[string]any{"Invoices": []Invoice{}}, http.StatusOK)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	opts := ListOptions{
		ClientScope: scope,
		Status:      r.URL.Query().Get("status"),
		Search:      r.URL.Query().Get("q"),
		Page:        page,
	}
	items, pagination, err := h.service.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		h.render(w, r, "pages/invoices.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/invoices.html", map[string]any{
		"Invoices":   items,
		"Pagination": pagination,
		"Statuses":   Statuses(),
		"Status":     opts.Status,
		"Search":     opts.Search,
	}, http.StatusOK)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.load(w, r)
	if !ok {
		return
	}
	h.render(w, r, "pages/invoice_view.html", map[string]any{"Invoice": inv, "Statuses": Statuses()}, http.StatusOK)
}

func (h *Handler) exportPDF(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.load(w, r)
	if !ok {
		return
	}
	if h.exporter == nil {
		http.Error(w, "PDF export is not configured", http.StatusServiceUnavailable)
		return
	}
	pdf, err := h.exporter.RenderInvoice(r.Context(), inv)
	if err != nil {
		h.logger.Error("render invoice pdf", slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
		http.Error(w, "PDF generation failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", inv.Number+".pdf"))
	_, _ = w.Write(pdf)
}

func (h *Handler) showForm(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"Errors": formErrors{}, "Statuses": Statuses()}
	if idParam := chi.URLParam(r, "id"); idParam != "" {
		id, err := strconv.ParseInt(idParam, 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		inv, err := h.service.Get(r.Context(), id, nil)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		data["Invoice"] = inv
	}
	clientList, err := h.clients.All(r.Context())
	if err != nil {
		h.logger.Error("load clients for form", slog.Any("error", err))
	}
	data["Clients"] = clientList
	h.render(w, r, "pages/invoice_form.html", data, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in, errs := h.parseForm(r)
	if len(errs) > 0 {
		h.renderFormError(w, r, errs, in, 0)
		return
	}
	principal := authz.PrincipalFromContext(r.Context())
	inv, err := h.service.Create(r.Context(), principal.ID, in)
	if err != nil {
		h.renderFormError(w, r, formErrors{"general": shared.UserSafeMessage(err)}, in, 0)
		return
	}
	shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "success", Message: "Invoice " + inv.Number + " created."})
	http.Redirect(w, r, "/invoices/"+strconv.FormatInt(inv.ID, 10), http.StatusSeeOther)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	in, errs := h.parseForm(r)
	if len(errs) > 0 {
		h.renderFormError(w, r, errs, in, id)
		return
	}
	principal := authz.PrincipalFromContext(r.Context())
	if err := h.service.Update(r.Context(), principal.ID, id, in); err != nil {
		h.renderFormError(w, r, formErrors{"general": shared.UserSafeMessage(err)}, in, id)
		return
	}
	shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "success", Message: "Invoice updated."})
	http.Redirect(w, r, "/invoices/"+strconv.FormatInt(id, 10), http.StatusSeeOther)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	principal := authz.PrincipalFromContext(r.Context())
	if err := h.service.SetStatus(r.Context(), principal.ID, id, r.PostFormValue("status")); err != nil {
		kind, message := "error", shared.UserSafeMessage(err)
		if errors.Is(err, shared.ErrValidation) {
			message = "Unknown invoice status."
		}
		shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: kind, Message: message})
	} else {
		shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "success", Message: "Invoice status updated."})
	}
	http.Redirect(w, r, "/invoices/"+strconv.FormatInt(id, 10), http.StatusSeeOther)
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
			message = "Only draft invoices can be deleted."
		}
		shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "error", Message: message})
		http.Redirect(w, r, "/invoices/"+strconv.FormatInt(id, 10), http.StatusSeeOther)
		return
	}
	shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "success", Message: "Draft invoice deleted."})
	http.Redirect(w, r, "/invoices", http.StatusSeeOther)
}

// load resolves the invoice in the URL, applying the portal scope for client
// accounts. It writes the error response itself when returning false.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*Invoice, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	principal := authz.PrincipalFromContext(r.Context())
	scope, err := h.clientScope(r, principal)
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	inv, err := h.service.Get(r.Context(), id, scope)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
		} else {
			h.logger.Error("load invoice", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return nil, false
	}
	return inv, true
}

// clientScope returns the owning client ID for portal accounts and nil for
// staff. A client account without a linked client record sees nothing.
func (h *Handler) clientScope(r *http.Request, principal *authz.Principal) (*int64, error) {
	if principal.Can(authz.CapViewInvoices) {
		return nil, nil
	}
	client, err := h.clients.ForUser(r.Context(), principal.ID)
	if err != nil {
		return nil, err
	}
	return &client.ID, nil
}

func (h *Handler) parseForm(r *http.Request) (InvoiceInput, formErrors) {
	errs := make(formErrors)
	if err := r.ParseForm(); err != nil {
		errs["general"] = "Malformed form submission."
		return InvoiceInput{}, errs
	}

	in := InvoiceInput{Notes: r.PostFormValue("notes")}
	if clientID, err := strconv.ParseInt(r.PostFormValue("client_id"), 10, 64); err == nil {
		in.ClientID = clientID
	}
	if status, ok := ParseStatus(r.PostFormValue("status")); ok {
		in.Status = status
	} else {
		errs["Status"] = "Unknown invoice status."
	}
	if t, err := time.Parse(dateLayout, r.PostFormValue("issue_date")); err == nil {
		in.IssueDate = t
	} else {
		errs["IssueDate"] = "Enter a valid issue date."
	}
	if t, err := time.Parse(dateLayout, r.PostFormValue("due_date")); err == nil {
		in.DueDate = t
	} else {
		errs["DueDate"] = "Enter a valid due date."
	}
	if !in.IssueDate.IsZero() && !in.DueDate.IsZero() && in.DueDate.Before(in.IssueDate) {
		errs["DueDate"] = "Due date cannot be before the issue date."
	}

	descriptions := r.PostForm["item_description[]"]
	quantities := r.PostForm["item_quantity[]"]
	prices := r.PostForm["item_price[]"]
	for i := range descriptions {
		if descriptions[i] == "" {
			continue
		}
		item := ItemInput{Description: descriptions[i]}
		if i < len(quantities) {
			item.Quantity, _ = strconv.ParseFloat(quantities[i], 64)
		}
		if i < len(prices) {
			item.UnitPrice, _ = strconv.ParseFloat(prices[i], 64)
		}
		in.Items = append(in.Items, item)
	}
	if len(in.Items) == 0 {
		errs["Items"] = "An invoice needs at least one line item."
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

func (h *Handler) renderFormError(w http.ResponseWriter, r *http.Request, errs formErrors, in InvoiceInput, id int64) {
	clientList, err := h.clients.All(r.Context())
	if err != nil {
		h.logger.Error("load clients for form", slog.Any("error", err))
	}
	h.render(w, r, "pages/invoice_form.html", map[string]any{
		"Errors":    errs,
		"Form":      in,
		"InvoiceID": id,
		"Clients":   clientList,
		"Statuses":  Statuses(),
	}, http.StatusBadRequest)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	csrfToken, _ := h.csrf.EnsureToken(w, r)
	principal := authz.PrincipalFromContext(r.Context())
	viewData := view.TemplateData{
		Title:       "Invoices",
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
