// Package apitest runs an in-process stand-in for the WalletFit REST API.
//
// It implements the endpoints the front-end consumes with in-memory state,
// bcrypt-hashed passwords and HS256 JWTs, and lets tests expire sessions or
// inject failures.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AneeshNi47/walletfit-ui/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Prefix is the path the API is mounted under; BaseURL includes it.
const Prefix = "/api/"

type user struct {
	username  string
	email     string
	firstName string
	lastName  string
	hash      []byte
	profile   models.Profile
}

type account struct {
	models.Account
	balance float64
}

type entry struct {
	row     models.ReportRow
	account int64
	catID   int64
}

// Server is a fake WalletFit backend.
type Server struct {
	srv    *httptest.Server
	secret []byte

	mu          sync.Mutex
	accessTTL   time.Duration
	generation  int
	users       map[string]*user
	revoked     map[string]bool
	accounts    []*account
	categories  []models.Category
	entries     []entry
	household   *models.Household
	saved       []models.SavedReport
	nextID      int64
	calls       map[string]int
	failures    map[string]int
	authHeaders map[string][]string
}

// NewServer starts a fake backend. Close it when done.
func NewServer() *Server {
	s := &Server{
		secret:      []byte("walletfit-test-secret"),
		accessTTL:   5 * time.Minute,
		users:       map[string]*user{},
		revoked:     map[string]bool{},
		calls:       map[string]int{},
		failures:    map[string]int{},
		authHeaders: map[string][]string{},
	}
	s.srv = httptest.NewServer(s.routes())
	return s
}

// BaseURL is the API root to configure the client with.
func (s *Server) BaseURL() string { return s.srv.URL + Prefix }

// Close shuts the server down.
func (s *Server) Close() { s.srv.Close() }

// AddUser creates a user that can log in with password.
func (s *Server) AddUser(username, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = &user{username: username, email: email, hash: hash, profile: models.Profile{Currency: "AED", Theme: "light"}}
	return nil
}

// AddAccount seeds an account and returns its id.
func (s *Server) AddAccount(name, kind string, balance float64, currency string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.accounts = append(s.accounts, &account{
		Account: models.Account{ID: s.nextID, Name: name, Type: kind, Currency: currency},
		balance: balance,
	})
	return s.nextID
}

// AddCategory seeds a category and returns its id.
func (s *Server) AddCategory(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCategoryLocked(name)
}

// ExpireSessions invalidates every access token issued so far.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

// SavedReports returns the stored saved reports.
func (s *Server) SavedReports() []models.SavedReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SavedReport(nil), s.saved...)
}

// FailNext makes the next request to path (relative to the API root, e.g.
// "users/logout/") answer with status.
func (s *Server) FailNext(path string, status int) {
	s.mu.Lock()
	s.failures[strings.TrimLeft(path, "/")] = status
	s.mu.Unlock()
}

// Calls returns how many requests hit path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[strings.TrimLeft(path, "/")]
}

// AuthHeaders returns the Authorization headers seen on path, in order.
func (s *Server) AuthHeaders(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authHeaders[strings.TrimLeft(path, "/")]...)
}

// Balance returns the current balance of an account.
func (s *Server) Balance(id int64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.accountLocked(id); a != nil {
		return a.balance
	}
	return 0
}

// IsRevoked reports whether a refresh token was invalidated by logout.
func (s *Server) IsRevoked(refresh string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[refresh]
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/users/token/", s.handleToken)
	mux.HandleFunc("POST /api/users/register/", s.handleRegister)
	mux.HandleFunc("POST /api/token/refresh/", s.handleRefresh)
	mux.HandleFunc("POST /api/users/logout/", s.authed(s.handleLogout))
	mux.HandleFunc("GET /api/users/dashboard/", s.authed(s.handleDashboard))
	mux.HandleFunc("GET /api/accounts/", s.authed(s.handleListAccounts))
	mux.HandleFunc("POST /api/accounts/", s.authed(s.handleCreateAccount))
	mux.HandleFunc("GET /api/accounts/{id}/activity/", s.authed(s.handleActivity))
	mux.HandleFunc("POST /api/accounts/transfers/", s.authed(s.handleTransfer))
	mux.HandleFunc("POST /api/accounts/topups/", s.authed(s.handleTopUp))
	mux.HandleFunc("GET /api/categories/", s.authed(s.handleListCategories))
	mux.HandleFunc("POST /api/categories/", s.authed(s.handleCreateCategory))
	mux.HandleFunc("POST /api/expenses/", s.authed(s.handleCreateExpense))
	mux.HandleFunc("GET /api/expenses/recent/", s.authed(s.handleRecent))
	mux.HandleFunc("GET /api/expenses/monthly-summary/", s.authed(s.handleMonthly))
	mux.HandleFunc("GET /api/users/households/view/", s.authed(s.handleHousehold))
	mux.HandleFunc("POST /api/users/households/create/", s.authed(s.handleCreateHousehold))
	mux.HandleFunc("GET /api/users/reports/", s.authed(s.handleReport))
	mux.HandleFunc("GET /api/users/reports/saved/", s.authed(s.handleListSaved))
	mux.HandleFunc("POST /api/users/reports/saved/", s.authed(s.handleSave))
	mux.HandleFunc("DELETE /api/users/reports/saved/{id}/", s.authed(s.handleDeleteSaved))
	mux.HandleFunc("GET /api/users/reports/export/{format}/", s.authed(s.handleExport))
	return s.track(mux)
}

// track counts calls and serves injected failures.
func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, Prefix)
		s.mu.Lock()
		s.calls[path]++
		s.authHeaders[path] = append(s.authHeaders[path], r.Header.Get("Authorization"))
		status, fail := s.failures[path]
		delete(s.failures, path)
		s.mu.Unlock()
		if fail {
			writeJSON(w, status, map[string]string{"detail": http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type claims struct {
	Type       string `json:"typ"`
	Generation int    `json:"gen"`
	jwt.RegisteredClaims
}

func (s *Server) sign(username, typ string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Type:       typ,
		Generation: s.generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

func (s *Server) parse(raw, typ string) (*claims, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(raw, c, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if c.Type != typ {
		return nil, fmt.Errorf("token type %q, want %q", c.Type, typ)
	}
	return c, nil
}

func (s *Server) issuePairLocked(username string) (models.TokenPair, error) {
	access, err := s.sign(username, "access", s.accessTTL)
	if err != nil {
		return models.TokenPair{}, err
	}
	refresh, err := s.sign(username, "refresh", 24*time.Hour)
	if err != nil {
		return models.TokenPair{}, err
	}
	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// authed rejects requests without a current access token.
func (s *Server) authed(next func(w http.ResponseWriter, r *http.Request, u *user)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}
		c, err := s.parse(raw, "access")
		s.mu.Lock()
		var u *user
		if err == nil && c.Generation == s.generation {
			u = s.users[c.Subject]
		}
		s.mu.Unlock()
		if u == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Given token not valid for any token type", "code": "token_not_valid"})
			return
		}
		next(w, r, u)
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.findUserLocked(in.Username)
	if u == nil || bcrypt.CompareHashAndPassword(u.hash, []byte(in.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}
	pair, err := s.issuePairLocked(u.username)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) findUserLocked(identifier string) *user {
	if u, ok := s.users[identifier]; ok {
		return u
	}
	for _, u := range s.users {
		if u.email != "" && strings.EqualFold(u.email, identifier) {
			return u
		}
	}
	return nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}
	fields := map[string]any{}
	if in.Username == "" {
		fields["username"] = []string{"This field may not be blank."}
	}
	if in.Email == "" {
		fields["email"] = []string{"This field may not be blank."}
	}
	if len(in.Password) < 6 {
		fields["password"] = []string{"Ensure this field has at least 6 characters."}
	}
	switch in.Profile.Currency {
	case "AED", "INR", "USD":
	default:
		fields["profile"] = map[string]any{"currency": []string{fmt.Sprintf("%q is not a valid choice.", in.Profile.Currency)}}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.users[in.Username]; taken && in.Username != "" {
		fields["username"] = []string{"A user with that username already exists."}
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, fields)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.MinCost)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	s.users[in.Username] = &user{
		username: in.Username, email: in.Email, firstName: in.FirstName, lastName: in.LastName,
		hash: hash, profile: in.Profile,
	}
	if in.HouseholdName != "" && s.household == nil {
		s.createHouseholdLocked(in.HouseholdName, s.users[in.Username])
	}
	pair, err := s.issuePairLocked(in.Username)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, models.Registration{
		Access: pair.Access, Refresh: pair.Refresh, Username: in.Username, Email: in.Email,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"refresh": []string{"This field is required."}})
		return
	}
	c, err := s.parse(in.Refresh, "refresh")
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil || s.revoked[in.Refresh] || s.users[c.Subject] == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}
	access, err := s.sign(c.Subject, "access", s.accessTTL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ *user) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	s.mu.Lock()
	s.revoked[in.Refresh] = true
	s.mu.Unlock()
	w.WriteHeader(http.StatusResetContent)
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, models.Dashboard{
		User:         models.DashboardUser{Username: u.username, Email: u.email, FirstName: u.firstName, LastName: u.lastName},
		Profile:      u.profile,
		Transactions: s.recentLocked(5),
	})
}

// wireAccount sends balances as decimal strings, as the real API does.
type wireAccount struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Balance       string `json:"balance"`
	Currency      string `json:"currency"`
	AccountNumber string `json:"account_number"`
}

func (a *account) wire() wireAccount {
	return wireAccount{
		ID: a.ID, Name: a.Name, Type: a.Type, Currency: a.Currency, AccountNumber: a.AccountNumber,
		Balance: strconv.FormatFloat(a.balance, 'f', 2, 64),
	}
}

func (s *Server) handleListAccounts(w http.ResponseWriter, _ *http.Request, _ *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wireAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.wire())
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "next": nil, "previous": nil, "results": out})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request, _ *user) {
	var in models.AccountInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"name": []string{"This field may not be blank."}})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a := &account{
		Account: models.Account{ID: s.nextID, Name: in.Name, Type: in.Type, Currency: in.Currency, AccountNumber: in.AccountNumber},
		balance: in.Balance,
	}
	s.accounts = append(s.accounts, a)
	writeJSON(w, http.StatusCreated, a.wire())
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request, _ *user) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accountLocked(id) == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	var out []models.Activity
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.account != id {
			continue
		}
		out = append(out, models.Activity{
			ID: e.row.ID, Type: e.row.Type, Amount: e.row.Amount, Currency: e.row.Currency,
			Description: e.row.Description, Date: e.row.Date, CounterpartyAccount: e.row.RelatedAccountName,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "results": out})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, _ *user) {
	var in models.Transfer
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	from, to := s.accountLocked(in.FromAccount), s.accountLocked(in.ToAccount)
	switch {
	case from == nil:
		writeJSON(w, http.StatusBadRequest, map[string]any{"from_account": []string{"Invalid account."}})
		return
	case to == nil:
		writeJSON(w, http.StatusBadRequest, map[string]any{"to_account": []string{"Invalid account."}})
		return
	case in.Amount <= 0:
		writeJSON(w, http.StatusBadRequest, map[string]any{"amount": []string{"Amount must be positive."}})
		return
	case in.Amount > from.balance:
		writeJSON(w, http.StatusBadRequest, map[string]any{"amount": []string{"Insufficient balance."}})
		return
	}
	from.balance -= in.Amount
	to.balance += in.Amount
	s.recordLocked(from, models.TypeTransferOut, in.Amount, in.Note, in.Date, 0, to.Name)
	s.recordLocked(to, models.TypeTransferIn, in.Amount, in.Note, in.Date, 0, from.Name)
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request, _ *user) {
	var in models.TopUp
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accountLocked(in.Account)
	if a == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"account": []string{"Invalid account."}})
		return
	}
	a.balance += in.Amount
	s.recordLocked(a, models.TypeTopUp, in.Amount, in.Note, in.Date, 0, "")
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleListCategories(w http.ResponseWriter, _ *http.Request, _ *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.Category(nil), s.categories...)
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "results": out})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, _ *user) {
	var in models.Category
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"name": []string{"This field may not be blank."}})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.addCategoryLocked(in.Name)
	writeJSON(w, http.StatusCreated, models.Category{ID: id, Name: in.Name})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, _ *user) {
	var in models.TransactionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accountLocked(in.Account)
	if a == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"account": []string{"Invalid account."}})
		return
	}
	if in.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"amount": []string{"Amount must be positive."}})
		return
	}
	a.balance -= in.Amount
	s.recordLocked(a, models.TypeExpense, in.Amount, in.Description, in.Date, in.Category, "")
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRecent(w http.ResponseWriter, _ *http.Request, _ *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.recentLocked(10))
}

func (s *Server) handleMonthly(w http.ResponseWriter, _ *http.Request, _ *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := map[string]float64{}
	for _, e := range s.entries {
		if e.row.Type != models.TypeExpense || len(e.row.Date) < 7 {
			continue
		}
		totals[e.row.Date[:7]] += e.row.Amount.Float()
	}
	months := make([]string, 0, len(totals))
	for m := range totals {
		months = append(months, m)
	}
	sort.Strings(months)
	out := make([]map[string]string, 0, len(months))
	for _, m := range months {
		out = append(out, map[string]string{"month": m, "total": strconv.FormatFloat(totals[m], 'f', 2, 64)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHousehold(w http.ResponseWriter, _ *http.Request, _ *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.household == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "No household found."})
		return
	}
	writeJSON(w, http.StatusOK, s.household)
}

func (s *Server) handleCreateHousehold(w http.ResponseWriter, r *http.Request, u *user) {
	var in struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"name": []string{"This field may not be blank."}})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.household != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "You already belong to a household."})
		return
	}
	s.createHouseholdLocked(in.Name, u)
	writeJSON(w, http.StatusCreated, s.household)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, _ *user) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = models.DefaultReportPageSize
	}
	s.mu.Lock()
	rows := s.filterLocked(q.Get("type"), q.Get("start_date"), q.Get("end_date"))
	s.mu.Unlock()

	start := (page - 1) * size
	if start > len(rows) {
		start = len(rows)
	}
	end := start + size
	if end > len(rows) {
		end = len(rows)
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(rows), "results": rows[start:end]})
}

func (s *Server) handleListSaved(w http.ResponseWriter, _ *http.Request, _ *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.SavedReport(nil), s.saved...)
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "results": out})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request, _ *user) {
	var in models.SavedReport
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"name": []string{"This field may not be blank."}})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.saved {
		if existing.Name == in.Name {
			writeJSON(w, http.StatusBadRequest, map[string]any{"name": []string{"A report with this name already exists."}})
			return
		}
	}
	s.nextID++
	in.ID = s.nextID
	in.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	s.saved = append(s.saved, in)
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleDeleteSaved(w http.ResponseWriter, r *http.Request, _ *user) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rep := range s.saved {
		if rep.ID == id {
			s.saved = append(s.saved[:i], s.saved[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, _ *user) {
	format := r.PathValue("format")
	switch format {
	case "excel":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	case "pdf":
		w.Header().Set("Content-Type", "application/pdf")
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Unsupported format."})
		return
	}
	s.mu.Lock()
	rows := s.filterLocked(r.URL.Query().Get("type"), r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	s.mu.Unlock()
	fmt.Fprintf(w, "walletfit report (%s): %d rows\n", format, len(rows))
}

func (s *Server) accountLocked(id int64) *account {
	for _, a := range s.accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (s *Server) addCategoryLocked(name string) int64 {
	s.nextID++
	s.categories = append(s.categories, models.Category{ID: s.nextID, Name: name})
	return s.nextID
}

func (s *Server) categoryNameLocked(id int64) string {
	for _, c := range s.categories {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}

func (s *Server) recordLocked(a *account, kind string, amount float64, desc, date string, category int64, related string) {
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	s.nextID++
	s.entries = append(s.entries, entry{
		account: a.ID,
		catID:   category,
		row: models.ReportRow{
			ID: s.nextID, Type: kind, Amount: models.Amount(amount), Currency: a.Currency,
			Description: desc, CategoryName: s.categoryNameLocked(category), AccountName: a.Name,
			RelatedAccountName: related, Date: date, CreatedAt: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (s *Server) recentLocked(limit int) []models.Transaction {
	out := []models.Transaction{}
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.entries[i].row
		kind := e.Type
		if kind == models.TypeTopUp || kind == models.TypeTransferIn {
			kind = models.TypeIncome
		}
		out = append(out, models.Transaction{
			ID: e.ID, Type: kind, Description: e.Description, Amount: e.Amount, Currency: e.Currency,
			Date: e.Date, CategoryName: e.CategoryName, AccountName: e.AccountName,
		})
	}
	return out
}

func (s *Server) filterLocked(kind, from, to string) []models.ReportRow {
	rows := []models.ReportRow{}
	for i := len(s.entries) - 1; i >= 0; i-- {
		row := s.entries[i].row
		if kind != "" && row.Type != kind {
			continue
		}
		if from != "" && row.Date < from {
			continue
		}
		if to != "" && row.Date > to {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *Server) createHouseholdLocked(name string, owner *user) {
	s.nextID++
	m := models.Member{ID: s.nextID, Username: owner.username, Email: owner.email, FirstName: owner.firstName, LastName: owner.lastName, Role: "owner"}
	s.household = &models.Household{
		ID: s.nextID, Name: name, CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Owner: m, Members: []models.Member{m},
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
