package handlers

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/AneeshNi47/walletfit-ui/internal/apiclient"
	"github.com/AneeshNi47/walletfit-ui/internal/app"
	"github.com/AneeshNi47/walletfit-ui/internal/models"
	"github.com/AneeshNi47/walletfit-ui/internal/session"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	app         *app.App
	templateDir string
	logger      *slog.Logger
	funcs       template.FuncMap
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(a *app.App, templateDir string) *Handlers {
	return &Handlers{
		app:         a,
		templateDir: templateDir,
		logger:      a.Logger,
		funcs:       templateFuncs(),
	}
}

// Navigation scopes a redirect navigator to every request, so an expired
// session detected deep inside an API call turns into a full-page redirect.
func (h *Handlers) Navigation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := app.ContextWithNavigator(r.Context(), &app.Redirect{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession lets the request through only while signed in.
func (h *Handlers) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := h.app.Session.Current(); !ok {
			redirect(w, r, app.LoginPath)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PublicOnly sends signed-in users to the dashboard.
func (h *Handlers) PublicOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := h.app.Session.Current(); ok {
			redirect(w, r, app.DashboardPath)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// redirect performs a full navigation: htmx requests get HX-Redirect so the
// browser reloads the whole page rather than swapping a fragment.
func redirect(w http.ResponseWriter, r *http.Request, location string) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", location)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// navigated reports whether the request's navigator was asked to move.
func navigated(ctx context.Context) string {
	if rd, ok := app.NavigatorFrom(ctx).(*app.Redirect); ok {
		return rd.Location()
	}
	return ""
}

// PageData is shared by every full page.
type PageData struct {
	Title    string
	User     models.User
	LoggedIn bool
	Flash    string
	Error    string
	Fields   map[string]string
	Content  any
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Username string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "login.html", h.page(r, "Sign in", LoginViewModel{}))
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, "login.html", "Sign in", LoginViewModel{}, "Invalid form submission", nil)
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	vm := LoginViewModel{Username: username}

	if username == "" || password == "" {
		h.renderError(w, r, "login.html", "Sign in", vm, "Username and password are required", nil)
		return
	}

	if _, err := h.app.Session.Login(r.Context(), username, password); err != nil {
		switch {
		case errors.Is(err, apiclient.ErrNetwork), errors.Is(err, apiclient.ErrServer):
			h.logger.Warn("login failed", "error", err)
			h.renderError(w, r, "login.html", "Sign in", vm, "The server could not be reached. Please try again.", nil)
		default:
			h.logger.Info("login rejected", "user", username)
			h.renderError(w, r, "login.html", "Sign in", vm, "Invalid username or password", nil)
		}
		return
	}

	redirect(w, r, app.DashboardPath)
}

// Logout handles user logout. It always completes.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.app.Session.Logout(r.Context())
	redirect(w, r, app.LoginPath)
}

// RegisterViewModel holds data for the register page.
type RegisterViewModel struct {
	Form       models.RegisterRequest
	Currencies []string
	Themes     []string
}

var (
	currencies = []string{"AED", "INR", "USD"}
	themes     = []string{"light", "dark"}
)

// RegisterForm renders the register page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	vm := RegisterViewModel{Form: app.NormalizeRegistration(models.RegisterRequest{}), Currencies: currencies, Themes: themes}
	h.render(w, r, "register.html", h.page(r, "Create account", vm))
}

// Register creates the account and signs in with the returned tokens.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, "register.html", "Create account", RegisterViewModel{Currencies: currencies, Themes: themes}, "Invalid form submission", nil)
		return
	}
	in := models.RegisterRequest{
		Username:      r.FormValue("username"),
		Email:         r.FormValue("email"),
		Password:      r.FormValue("password"),
		FirstName:     r.FormValue("first_name"),
		LastName:      r.FormValue("last_name"),
		HouseholdName: r.FormValue("household_name"),
		Profile: models.Profile{
			PhoneNumber: strings.TrimSpace(r.FormValue("phone_number")),
			Gender:      r.FormValue("gender"),
			Address:     strings.TrimSpace(r.FormValue("address")),
			Currency:    r.FormValue("currency"),
			Theme:       r.FormValue("theme"),
		},
	}
	vm := RegisterViewModel{Form: app.NormalizeRegistration(in), Currencies: currencies, Themes: themes}
	vm.Form.Password = ""

	fields := map[string]string{}
	if strings.TrimSpace(in.Username) == "" {
		fields["username"] = "Username is required"
	}
	if strings.TrimSpace(in.Email) == "" {
		fields["email"] = "Email is required"
	}
	if in.Password == "" {
		fields["password"] = "Password is required"
	} else if in.Password != r.FormValue("confirm_password") {
		fields["confirm_password"] = "Passwords do not match"
	}
	if len(fields) > 0 {
		h.renderError(w, r, "register.html", "Create account", vm, "Please fix the highlighted fields", fields)
		return
	}

	if _, err := h.app.Register(r.Context(), in); err != nil {
		h.logger.Info("registration rejected", "error", err)
		h.renderError(w, r, "register.html", "Create account", vm, errorMessage(err), registerFields(err))
		return
	}
	redirect(w, r, app.DashboardPath)
}

// registerFields strips the profile. prefix so nested errors land on their inputs.
func registerFields(err error) map[string]string {
	fields := apiclient.FieldErrors(err)
	if fields == nil {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[strings.TrimPrefix(k, "profile.")] = v
	}
	return out
}

// Landing renders the public landing page.
func (h *Handlers) Landing(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.render(w, r, "landing.html", h.page(r, "WalletFit", nil))
}

func (h *Handlers) page(r *http.Request, title string, content any) PageData {
	s, ok := h.app.Session.Current()
	return PageData{
		Title:    title,
		User:     s.User,
		LoggedIn: ok,
		Flash:    r.URL.Query().Get("flash"),
		Content:  content,
	}
}

// fail answers a request whose API call failed. An expired session becomes a
// redirect to the login screen; anything else is rendered on the view.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, viewName, title string, content any, err error) {
	if loc := navigated(r.Context()); loc != "" {
		redirect(w, r, loc)
		return
	}
	if errors.Is(err, apiclient.ErrAuthExpired) || errors.Is(err, session.ErrRefreshFailed) {
		redirect(w, r, app.LoginPath)
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	h.logger.Warn("api call failed", "path", r.URL.Path, "error", err)
	h.renderError(w, r, viewName, title, content, errorMessage(err), apiclient.FieldErrors(err))
}

// errorMessage is the text shown for an API failure.
func errorMessage(err error) string {
	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, apiclient.ErrNetwork):
		return "The server could not be reached. Please try again."
	case errors.Is(err, apiclient.ErrServer):
		return "Something went wrong on our side. Please try again."
	case errors.Is(err, apiclient.ErrValidation):
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return apiErr.Message
		}
		return "Please fix the highlighted fields"
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	}
	return "The request could not be completed."
}

func (h *Handlers) renderError(w http.ResponseWriter, r *http.Request, viewName, title string, content any, msg string, fields map[string]string) {
	data := h.page(r, title, content)
	data.Error = msg
	data.Fields = fields
	status := http.StatusOK
	if !isHTMX(r) {
		status = http.StatusUnprocessableEntity
	}
	h.renderStatus(w, r, viewName, data, status)
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	h.renderStatus(w, r, viewName, data, http.StatusOK)
}

func (h *Handlers) renderStatus(w http.ResponseWriter, r *http.Request, viewName string, data any, status int) {
	tmpl, err := template.New("base.html").Funcs(h.funcs).ParseFiles(filepath.Join(h.templateDir, "base.html"), filepath.Join(h.templateDir, viewName))
	if err != nil {
		h.logger.Error("template error", "view", viewName, "error", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	target := "base.html"
	if isHTMX(r) {
		target = "content"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, target, data); err != nil {
		h.logger.Error("template execution error", "view", viewName, "error", err)
	}
}
