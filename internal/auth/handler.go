package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ibms-erp/ibms/internal/platform/httpx"
	"github.com/ibms-erp/ibms/internal/shared"
	"github.com/ibms-erp/ibms/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	secure    bool
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, secure bool) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		secure:    secure,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Get("/register", h.showRegister)
	r.Post("/register", h.handleRegister)
	r.Get("/verify", h.handleVerify)
	r.Post("/resend-verification", h.handleResendVerification)
	r.Get("/forgot-password", h.showForgotPassword)
	r.Post("/forgot-password", h.handleForgotPassword)
	r.Get("/reset-password", h.showResetPassword)
	r.Post("/reset-password", h.handleResetPassword)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
	Remember bool
}

type registerForm struct {
	FullName string `validate:"required,min=2,max=120"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type resetForm struct {
	Token    string `validate:"required,len=32"`
	Password string `validate:"required,min=8"`
}

type formErrors map[string]string

// jsonResult is the envelope the front-end script expects from form posts.
type jsonResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Redirect   string `json:"redirect,omitempty"`
	Unverified bool   `json:"unverified,omitempty"`
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.ResolveToken(r.Context(), TokenFromRequest(r)); err == nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.render(w, r, "pages/login.html", "Login", map[string]any{"Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed form body")
		return
	}
	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		Remember: r.PostFormValue("remember") != "",
	}
	if err := h.validator.Struct(form); err != nil {
		h.respond(w, r, http.StatusBadRequest, jsonResult{Message: "Email and password are required."}, "pages/login.html", "Login", map[string]any{
			"Form":   form,
			"Errors": fieldErrors(err),
		})
		return
	}

	user, token, expiresAt, err := h.service.Login(r.Context(), form.Email, form.Password, form.Remember)
	if err != nil {
		status := http.StatusUnauthorized
		result := jsonResult{Message: shared.UserSafeMessage(err)}
		if err == shared.ErrEmailUnverified {
			result.Unverified = true
		}
		h.respond(w, r, status, result, "pages/login.html", "Login", map[string]any{
			"Form":       form,
			"Errors":     formErrors{"general": result.Message},
			"Unverified": result.Unverified,
		})
		return
	}

	SetTokenCookie(w, token, expiresAt, h.secure)
	h.logger.Info("user logged in", slog.Int64("user_id", user.ID))
	if wantsJSON(r) {
		httpx.JSON(w, http.StatusOK, jsonResult{Success: true, Message: "Login successful.", Redirect: "/dashboard"})
		return
	}
	shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "success", Message: "Welcome back, " + user.FullName + "."})
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/register.html", "Register", map[string]any{"Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed form body")
		return
	}
	form := registerForm{
		FullName: r.PostFormValue("full_name"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	if err := h.validator.Struct(form); err != nil {
		h.respond(w, r, http.StatusBadRequest, jsonResult{Message: "Please fill in all fields. Passwords need at least 8 characters."}, "pages/register.html", "Register", map[string]any{
			"Form":   form,
			"Errors": fieldErrors(err),
		})
		return
	}

	_, mailOK, err := h.service.Register(r.Context(), RegisterInput(form))
	if err != nil {
		status := http.StatusInternalServerError
		if err == shared.ErrEmailTaken {
			status = http.StatusConflict
		} else {
			h.logger.Error("register user", slog.Any("error", err))
		}
		h.respond(w, r, status, jsonResult{Message: shared.UserSafeMessage(err)}, "pages/register.html", "Register", map[string]any{
			"Form":   form,
			"Errors": formErrors{"general": shared.UserSafeMessage(err)},
		})
		return
	}

	message := "Registration successful. Please check your email to verify your account."
	if !mailOK {
		message = "Registration successful, but the verification email could not be sent. Use the resend option on the login page."
	}
	if wantsJSON(r) {
		httpx.JSON(w, http.StatusCreated, jsonResult{Success: true, Message: message, Redirect: "/login"})
		return
	}
	shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "success", Message: message})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	data := map[string]any{"Verified": true, "Message": "Your email has been verified. You can now log in."}
	status := http.StatusOK
	if err := h.service.VerifyEmail(r.Context(), token); err != nil {
		data = map[string]any{"Verified": false, "Message": shared.UserSafeMessage(err)}
		status = http.StatusBadRequest
	}
	h.render(w, r, "pages/verify.html", "Email Verification", data, status)
}

func (h *Handler) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed form body")
		return
	}
	h.service.ResendVerification(r.Context(), r.PostFormValue("email"))
	// Always the same answer so the endpoint cannot confirm which emails exist.
	message := "If an unverified account exists for that address, a new verification email has been sent."
	if wantsJSON(r) {
		httpx.JSON(w, http.StatusOK, jsonResult{Success: true, Message: message})
		return
	}
	shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "info", Message: message})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) showForgotPassword(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/forgot_password.html", "Forgot Password", map[string]any{"Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed form body")
		return
	}
	email := r.PostFormValue("email")
	if err := h.validator.Var(email, "required,email"); err != nil {
		h.respond(w, r, http.StatusBadRequest, jsonResult{Message: "A valid email address is required."}, "pages/forgot_password.html", "Forgot Password", map[string]any{
			"Errors": formErrors{"Email": "A valid email address is required."},
		})
		return
	}
	h.service.RequestPasswordReset(r.Context(), email)
	message := "If an account with that email exists, password reset instructions have been sent."
	if wantsJSON(r) {
		httpx.JSON(w, http.StatusOK, jsonResult{Success: true, Message: message})
		return
	}
	shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "info", Message: message})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) showResetPassword(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	h.render(w, r, "pages/reset_password.html", "Reset Password", map[string]any{
		"Token":  token,
		"Errors": formErrors{},
	}, http.StatusOK)
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed form body")
		return
	}
	form := resetForm{
		Token:    r.PostFormValue("token"),
		Password: r.PostFormValue("password"),
	}
	if err := h.validator.Struct(form); err != nil {
		h.respond(w, r, http.StatusBadRequest, jsonResult{Message: "Passwords need at least 8 characters."}, "pages/reset_password.html", "Reset Password", map[string]any{
			"Token":  form.Token,
			"Errors": fieldErrors(err),
		})
		return
	}
	if err := h.service.ResetPassword(r.Context(), form.Token, form.Password); err != nil {
		h.respond(w, r, http.StatusBadRequest, jsonResult{Message: shared.UserSafeMessage(err)}, "pages/reset_password.html", "Reset Password", map[string]any{
			"Token":  form.Token,
			"Errors": formErrors{"general": shared.UserSafeMessage(err)},
		})
		return
	}

	message := "Your password has been reset. Please log in with your new password."
	if wantsJSON(r) {
		httpx.JSON(w, http.StatusOK, jsonResult{Success: true, Message: message, Redirect: "/login"})
		return
	}
	shared.SetFlash(w, h.secure, shared.FlashMessage{Kind: "success", Message: message})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := TokenFromRequest(r); token != "" {
		h.service.Logout(r.Context(), token)
	}
	ClearTokenCookie(w, h.secure)
	if wantsJSON(r) {
		httpx.JSON(w, http.StatusOK, jsonResult{Success: true, Message: "Logged out.", Redirect: "/login"})
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// respond answers form posts: JSON for the async front-end, a re-rendered page
// for plain form submissions.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, result jsonResult, template, title string, data map[string]any) {
	if wantsJSON(r) {
		httpx.JSON(w, status, result)
		return
	}
	h.render(w, r, template, title, data, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	csrfToken, err := h.csrf.EnsureToken(w, r)
	if err != nil {
		h.logger.Error("issue csrf token", slog.Any("error", err))
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       shared.PopFlash(w, r),
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func fieldErrors(err error) formErrors {
	errors := make(formErrors)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fieldErr := range verrs {
			errors[fieldErr.Field()] = fieldMessage(fieldErr)
		}
	}
	return errors
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return "Too short. Minimum length is " + fe.Param() + "."
	case "max":
		return "Too long. Maximum length is " + fe.Param() + "."
	case "len":
		return "Invalid value."
	default:
		return "Invalid value."
	}
}
