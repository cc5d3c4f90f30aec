package handlers_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/AneeshNi47/walletfit-ui/internal/apitest"
	"github.com/AneeshNi47/walletfit-ui/internal/app"
	"github.com/AneeshNi47/walletfit-ui/internal/config"
	"github.com/AneeshNi47/walletfit-ui/internal/handlers"
	"github.com/AneeshNi47/walletfit-ui/internal/session"
	"github.com/AneeshNi47/walletfit-ui/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const templateDir = "../../web/templates"

// HandlersTestSuite drives the handlers through a router against a fake backend.
type HandlersTestSuite struct {
	suite.Suite
	backend *apitest.Server
	store   *storage.MemoryStore
	app     *app.App
	router  http.Handler
}

func (suite *HandlersTestSuite) SetupTest() {
	suite.backend = apitest.NewServer()
	require.NoError(suite.T(), suite.backend.AddUser("alice", "alice@example.com", "secret123"))

	cfg := config.Default()
	cfg.API.BaseURL = suite.backend.BaseURL()
	cfg.Store.Backend = config.BackendMemory
	suite.store = storage.NewMemoryStore()
	a, err := app.New(context.Background(), cfg,
		app.WithStore(suite.store),
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(suite.T(), err)
	suite.app = a
	suite.router = newRouter(handlers.NewHandlers(a, templateDir))
}

func (suite *HandlersTestSuite) TearDownTest() {
	_ = suite.app.Close()
	suite.backend.Close()
}

func newRouter(h *handlers.Handlers) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /login", h.PublicOnly(http.HandlerFunc(h.LoginForm)))
	mux.Handle("POST /login", h.PublicOnly(http.HandlerFunc(h.Login)))
	mux.Handle("POST /register", h.PublicOnly(http.HandlerFunc(h.Register)))
	mux.HandleFunc("POST /logout", h.Logout)
	mux.Handle("GET /dashboard", h.RequireSession(http.HandlerFunc(h.Dashboard)))
	mux.Handle("GET /accounts", h.RequireSession(http.HandlerFunc(h.ListAccounts)))
	mux.Handle("POST /accounts", h.RequireSession(http.HandlerFunc(h.CreateAccount)))
	mux.Handle("POST /transfers", h.RequireSession(http.HandlerFunc(h.Transfer)))
	mux.Handle("POST /topups", h.RequireSession(http.HandlerFunc(h.TopUp)))
	mux.Handle("POST /transactions", h.RequireSession(http.HandlerFunc(h.CreateTransaction)))
	mux.Handle("GET /household", h.RequireSession(http.HandlerFunc(h.Household)))
	mux.Handle("GET /reports", h.RequireSession(http.HandlerFunc(h.Reports)))
	mux.Handle("POST /reports/saved", h.RequireSession(http.HandlerFunc(h.SaveReport)))
	mux.Handle("GET /reports/export/{format}", h.RequireSession(http.HandlerFunc(h.ExportReport)))
	return h.Navigation(mux)
}

func (suite *HandlersTestSuite) do(method, path string, form url.Values, htmx bool) *httptest.ResponseRecorder {
	var body io.Reader = http.NoBody
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *HandlersTestSuite) login() {
	w := suite.do(http.MethodPost, "/login", url.Values{"username": {"alice"}, "password": {"secret123"}}, false)
	require.Equal(suite.T(), http.StatusFound, w.Code)
}

func (suite *HandlersTestSuite) TestGuardRedirectsToLogin() {
	w := suite.do(http.MethodGet, "/dashboard", nil, false)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/login", w.Header().Get("Location"))
}

func (suite *HandlersTestSuite) TestGuardUsesHXRedirectForHTMX() {
	w := suite.do(http.MethodGet, "/dashboard", nil, true)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), "/login", w.Header().Get("HX-Redirect"))
}

func (suite *HandlersTestSuite) TestLoginPageRedirectsWhenSignedIn() {
	suite.login()
	w := suite.do(http.MethodGet, "/login", nil, false)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/dashboard", w.Header().Get("Location"))
}

func (suite *HandlersTestSuite) TestLoginFormRenders() {
	w := suite.do(http.MethodGet, "/login", nil, false)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), `class="login-form"`)
	assert.Contains(suite.T(), w.Body.String(), "<html")
}

func (suite *HandlersTestSuite) TestLoginFormPartialForHTMX() {
	w := suite.do(http.MethodGet, "/login", nil, true)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), `class="login-form"`)
	assert.NotContains(suite.T(), w.Body.String(), "<html")
}

func (suite *HandlersTestSuite) TestLoginSuccess() {
	w := suite.do(http.MethodPost, "/login", url.Values{"username": {"alice"}, "password": {"secret123"}}, false)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/dashboard", w.Header().Get("Location"))
	assert.Equal(suite.T(), session.StatePresent, suite.app.Session.State())
	assert.Contains(suite.T(), string(suite.store.Raw()), `"username":"alice"`)
}

func (suite *HandlersTestSuite) TestLoginFailures() {
	tests := []struct {
		name    string
		form    url.Values
		message string
	}{
		{"missing password", url.Values{"username": {"alice"}}, "Username and password are required"},
		{"missing username", url.Values{"password": {"secret123"}}, "Username and password are required"},
		{"wrong password", url.Values{"username": {"alice"}, "password": {"nope"}}, "Invalid username or password"},
		{"unknown user", url.Values{"username": {"bob"}, "password": {"secret123"}}, "Invalid username or password"},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			w := suite.do(http.MethodPost, "/login", tt.form, false)
			assert.Equal(suite.T(), http.StatusUnprocessableEntity, w.Code)
			assert.Contains(suite.T(), w.Body.String(), tt.message)
			assert.Equal(suite.T(), session.StateAbsent, suite.app.Session.State())
			assert.Nil(suite.T(), suite.store.Raw())
		})
	}
}

func (suite *HandlersTestSuite) TestLogoutClearsStore() {
	suite.login()
	require.NotNil(suite.T(), suite.store.Raw())

	w := suite.do(http.MethodPost, "/logout", nil, false)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/login", w.Header().Get("Location"))
	assert.Nil(suite.T(), suite.store.Raw())
	assert.Equal(suite.T(), 1, suite.backend.Calls("users/logout/"))

	w = suite.do(http.MethodGet, "/dashboard", nil, false)
	assert.Equal(suite.T(), "/login", w.Header().Get("Location"))
}

func (suite *HandlersTestSuite) TestDashboardRenders() {
	suite.backend.AddAccount("Wallet", "wallet", 120.5, "AED")
	suite.login()

	w := suite.do(http.MethodGet, "/dashboard", nil, false)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(suite.T(), body, "Wallet")
	assert.Contains(suite.T(), body, "120.50")
	assert.Contains(suite.T(), body, "alice")
}

func (suite *HandlersTestSuite) TestExpiredSessionRedirectsToLogin() {
	suite.login()
	suite.backend.ExpireSessions()

	w := suite.do(http.MethodGet, "/dashboard", nil, false)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/login", w.Header().Get("Location"))
	assert.Equal(suite.T(), session.StateAbsent, suite.app.Session.State())
	assert.Nil(suite.T(), suite.store.Raw())
}

func (suite *HandlersTestSuite) TestExpiredSessionUsesHXRedirect() {
	suite.login()
	suite.backend.ExpireSessions()

	w := suite.do(http.MethodGet, "/accounts", nil, true)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), "/login", w.Header().Get("HX-Redirect"))
	assert.Empty(suite.T(), w.Body.String())
}

func (suite *HandlersTestSuite) TestCreateAccount() {
	suite.login()
	w := suite.do(http.MethodPost, "/accounts", url.Values{"name": {"Savings"}, "type": {"savings"}, "balance": {"50"}}, false)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.True(suite.T(), strings.HasPrefix(w.Header().Get("Location"), "/accounts?flash="))

	w = suite.do(http.MethodGet, "/accounts", nil, false)
	assert.Contains(suite.T(), w.Body.String(), "Savings")
	assert.Contains(suite.T(), w.Body.String(), "50.00")
}

func (suite *HandlersTestSuite) TestCreateAccountRequiresName() {
	suite.login()
	w := suite.do(http.MethodPost, "/accounts", url.Values{"balance": {"abc"}}, false)
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Name is required")
	assert.Contains(suite.T(), w.Body.String(), "Balance must be a number")
}

func (suite *HandlersTestSuite) TestCreateAccountRejectsNonFiniteBalance() {
	suite.login()
	for _, balance := range []string{"NaN", "Inf", "-infinity"} {
		w := suite.do(http.MethodPost, "/accounts", url.Values{"name": {"Cash"}, "balance": {balance}}, false)
		assert.Equal(suite.T(), http.StatusUnprocessableEntity, w.Code, balance)
		assert.Contains(suite.T(), w.Body.String(), "Balance must be a number", balance)
	}
	accounts, err := suite.app.Client.ListAccounts(context.Background())
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), accounts)
}

func (suite *HandlersTestSuite) TestTransfer() {
	from := suite.backend.AddAccount("Wallet", "wallet", 100, "AED")
	to := suite.backend.AddAccount("Bank", "bank", 0, "AED")
	suite.login()

	form := url.Values{"from_account": {id(from)}, "to_account": {id(to)}, "amount": {"40"}}
	w := suite.do(http.MethodPost, "/transfers", form, false)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.InDelta(suite.T(), 60, suite.backend.Balance(from), 0.001)
	assert.InDelta(suite.T(), 40, suite.backend.Balance(to), 0.001)
}

func (suite *HandlersTestSuite) TestTransferOverBalanceIsNotSent() {
	from := suite.backend.AddAccount("Wallet", "wallet", 50, "AED")
	to := suite.backend.AddAccount("Bank", "bank", 0, "AED")
	suite.login()

	form := url.Values{"from_account": {id(from)}, "to_account": {id(to)}, "amount": {"75"}}
	w := suite.do(http.MethodPost, "/transfers", form, false)
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Amount exceeds the available balance of 50.00")
	assert.Equal(suite.T(), 0, suite.backend.Calls("accounts/transfers/"))
}

func (suite *HandlersTestSuite) TestTopUpSendsAbsoluteAmount() {
	acc := suite.backend.AddAccount("Wallet", "wallet", 10, "AED")
	suite.login()

	w := suite.do(http.MethodPost, "/topups", url.Values{"account": {id(acc)}, "amount": {"-15"}}, false)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.InDelta(suite.T(), 25, suite.backend.Balance(acc), 0.001)
}

func (suite *HandlersTestSuite) TestCreateTransactionValidation() {
	suite.login()
	w := suite.do(http.MethodPost, "/transactions", url.Values{"amount": {"0"}}, true)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(suite.T(), body, "Choose an account")
	assert.Contains(suite.T(), body, "Choose a category")
	assert.Contains(suite.T(), body, "Amount must be greater than zero")
	assert.Equal(suite.T(), 0, suite.backend.Calls("expenses/"))
}

func (suite *HandlersTestSuite) TestHouseholdEmpty() {
	suite.login()
	w := suite.do(http.MethodGet, "/household", nil, false)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "not part of a household")
}

func (suite *HandlersTestSuite) TestRegisterPasswordMismatch() {
	form := url.Values{"username": {"carol"}, "email": {"carol@example.com"}, "password": {"secret123"}, "confirm_password": {"other"}}
	w := suite.do(http.MethodPost, "/register", form, false)
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Passwords do not match")
	assert.Equal(suite.T(), 0, suite.backend.Calls("users/register/"))
}

func (suite *HandlersTestSuite) TestRegisterSignsIn() {
	form := url.Values{
		"username": {"carol"}, "email": {"carol@example.com"}, "first_name": {"Carol"},
		"password": {"secret123"}, "confirm_password": {"secret123"},
	}
	w := suite.do(http.MethodPost, "/register", form, false)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/dashboard", w.Header().Get("Location"))
	s, ok := suite.app.Session.Current()
	require.True(suite.T(), ok)
	assert.Equal(suite.T(), "carol", s.User.Username)
}

func (suite *HandlersTestSuite) TestRegisterShowsFieldErrors() {
	form := url.Values{
		"username": {"alice"}, "email": {"a@example.com"}, "currency": {"EUR"},
		"password": {"secret123"}, "confirm_password": {"secret123"},
	}
	w := suite.do(http.MethodPost, "/register", form, false)
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "A user with that username already exists.")
	assert.Contains(suite.T(), w.Body.String(), "is not a valid choice.")
}

func (suite *HandlersTestSuite) TestReportsAndExport() {
	from := suite.backend.AddAccount("Wallet", "wallet", 100, "AED")
	to := suite.backend.AddAccount("Bank", "bank", 0, "AED")
	suite.login()
	suite.do(http.MethodPost, "/transfers", url.Values{"from_account": {id(from)}, "to_account": {id(to)}, "amount": {"10"}}, false)

	w := suite.do(http.MethodGet, "/reports", nil, false)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "2 rows")

	w = suite.do(http.MethodGet, "/reports/export/pdf?type=transfer_in", nil, false)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(suite.T(), w.Header().Get("Content-Disposition"), "walletfit-report.pdf")
	assert.Equal(suite.T(), "walletfit report (pdf): 1 rows\n", w.Body.String())

	w = suite.do(http.MethodGet, "/reports/export/csv", nil, false)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
}

func (suite *HandlersTestSuite) TestSaveReportRequiresName() {
	suite.login()
	w := suite.do(http.MethodPost, "/reports/saved", url.Values{"type": {"expense"}}, false)
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Report name is required")
	assert.Equal(suite.T(), 0, suite.backend.Calls("users/reports/saved/"))
}

func (suite *HandlersTestSuite) TestSaveReport() {
	suite.login()
	w := suite.do(http.MethodPost, "/reports/saved", url.Values{"name": {"Groceries"}, "type": {"expense"}}, false)
	assert.Equal(suite.T(), http.StatusFound, w.Code)

	w = suite.do(http.MethodGet, "/reports", nil, false)
	assert.Contains(suite.T(), w.Body.String(), "Groceries")
}

func (suite *HandlersTestSuite) TestSavedReportKeepsCategoryNames() {
	groceries := suite.backend.AddCategory("Groceries")
	suite.login()
	w := suite.do(http.MethodPost, "/reports/saved", url.Values{"name": {"Food"}, "categories": {id(groceries)}}, false)
	assert.Equal(suite.T(), http.StatusFound, w.Code)

	saved := suite.backend.SavedReports()
	require.Len(suite.T(), saved, 1)
	assert.Equal(suite.T(), []string{"Groceries"}, saved[0].Filters.Categories)

	w = suite.do(http.MethodGet, "/reports", nil, false)
	assert.Contains(suite.T(), w.Body.String(), `href="/reports?categories=`+id(groceries))
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}

func TestHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
