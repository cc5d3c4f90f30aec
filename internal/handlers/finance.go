package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AneeshNi47/walletfit-ui/internal/models"
)

// DashboardViewModel is the data passed to the dashboard template.
type DashboardViewModel struct {
	Dashboard models.Dashboard
	Accounts  []models.Account
	Balance   float64
	Totals    Totals
	Monthly   []models.MonthlyTotal
}

// Dashboard renders the post-login overview.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dash, err := h.app.Client.Dashboard(ctx)
	if err != nil {
		h.fail(w, r, "dashboard.html", "Dashboard", DashboardViewModel{}, err)
		return
	}
	accounts, err := h.app.Client.ListAccounts(ctx)
	if err != nil {
		h.fail(w, r, "dashboard.html", "Dashboard", DashboardViewModel{Dashboard: dash}, err)
		return
	}
	monthly, err := h.app.Client.MonthlySummary(ctx)
	if err != nil {
		h.logger.Debug("monthly summary unavailable", "error", err)
		if loc := navigated(ctx); loc != "" {
			redirect(w, r, loc)
			return
		}
	}
	h.render(w, r, "dashboard.html", h.page(r, "Dashboard", DashboardViewModel{
		Dashboard: dash,
		Accounts:  accounts,
		Balance:   TotalBalance(accounts),
		Totals:    TransactionTotals(dash.Transactions),
		Monthly:   monthly,
	}))
}

// AccountsViewModel is the data passed to the accounts template.
type AccountsViewModel struct {
	Accounts []models.Account
	Balance  float64
	Form     models.AccountInput
	Types    []string
}

var accountTypes = []string{"wallet", "bank", "card", "savings"}

func defaultAccountInput() models.AccountInput {
	return models.AccountInput{Type: "wallet", Currency: "AED"}
}

// ListAccounts renders the accounts with their total balance.
func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	vm := AccountsViewModel{Form: defaultAccountInput(), Types: accountTypes}
	accounts, err := h.app.Client.ListAccounts(r.Context())
	if err != nil {
		h.fail(w, r, "accounts.html", "Accounts", vm, err)
		return
	}
	vm.Accounts = accounts
	vm.Balance = TotalBalance(accounts)
	h.render(w, r, "accounts.html", h.page(r, "Accounts", vm))
}

// CreateAccount handles the add account form.
func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	vm := AccountsViewModel{Form: defaultAccountInput(), Types: accountTypes}
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, "accounts.html", "Accounts", vm, "Invalid form submission", nil)
		return
	}
	in := models.AccountInput{
		Name:          strings.TrimSpace(r.FormValue("name")),
		Type:          r.FormValue("type"),
		Currency:      r.FormValue("currency"),
		AccountNumber: strings.TrimSpace(r.FormValue("account_number")),
	}
	if in.Type == "" {
		in.Type = "wallet"
	}
	if in.Currency == "" {
		in.Currency = "AED"
	}
	vm.Form = in

	fields := map[string]string{}
	if in.Name == "" {
		fields["name"] = "Name is required"
	}
	if strings.TrimSpace(r.FormValue("balance")) != "" {
		b, ok := formAmount(r, "balance")
		if !ok {
			fields["balance"] = "Balance must be a number"
		}
		vm.Form.Balance = b
	}
	if len(fields) > 0 {
		h.listWithError(w, r, vm, "Please fix the highlighted fields", fields)
		return
	}

	if _, err := h.app.Client.CreateAccount(r.Context(), vm.Form); err != nil {
		h.fail(w, r, "accounts.html", "Accounts", vm, err)
		return
	}
	redirect(w, r, "/accounts?flash=Account+added")
}

// listWithError re-renders the accounts page with the list still visible.
func (h *Handlers) listWithError(w http.ResponseWriter, r *http.Request, vm AccountsViewModel, msg string, fields map[string]string) {
	if accounts, err := h.app.Client.ListAccounts(r.Context()); err == nil {
		vm.Accounts = accounts
		vm.Balance = TotalBalance(accounts)
	}
	h.renderError(w, r, "accounts.html", "Accounts", vm, msg, fields)
}

// ActivityViewModel is the data passed to the account activity template.
type ActivityViewModel struct {
	AccountID int64
	Items     []models.Activity
}

// AccountActivity renders the movements on one account.
func (h *Handlers) AccountActivity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	vm := ActivityViewModel{AccountID: id}
	items, err := h.app.Client.AccountActivity(r.Context(), id)
	if err != nil {
		h.fail(w, r, "activity.html", "Activity", vm, err)
		return
	}
	vm.Items = items
	h.render(w, r, "activity.html", h.page(r, "Activity", vm))
}

// TransactionsViewModel is the data passed to the transactions template.
type TransactionsViewModel struct {
	Recent     []models.Transaction
	Totals     Totals
	Accounts   []models.Account
	Categories []models.Category
	Form       models.TransactionInput
}

func (h *Handlers) transactionsModel(r *http.Request) (TransactionsViewModel, error) {
	ctx := r.Context()
	vm := TransactionsViewModel{Form: models.TransactionInput{Date: today()}}
	recent, err := h.app.Client.RecentTransactions(ctx)
	if err != nil {
		return vm, err
	}
	accounts, err := h.app.Client.ListAccounts(ctx)
	if err != nil {
		return vm, err
	}
	categories, err := h.app.Client.ListCategories(ctx)
	if err != nil {
		return vm, err
	}
	vm.Recent = recent
	vm.Totals = TransactionTotals(recent)
	vm.Accounts = accounts
	vm.Categories = categories
	return vm, nil
}

// ListTransactions renders recent transactions and the add form.
func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	vm, err := h.transactionsModel(r)
	if err != nil {
		h.fail(w, r, "transactions.html", "Transactions", vm, err)
		return
	}
	h.render(w, r, "transactions.html", h.page(r, "Transactions", vm))
}

// CreateTransaction handles the add transaction form.
func (h *Handlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, "transactions.html", "Transactions", TransactionsViewModel{}, "Invalid form submission", nil)
		return
	}
	in := models.TransactionInput{
		Account:     formID(r, "account"),
		Category:    formID(r, "category"),
		Description: strings.TrimSpace(r.FormValue("description")),
		Date:        r.FormValue("date"),
	}
	if in.Date == "" {
		in.Date = today()
	}
	fields := map[string]string{}
	if in.Account == 0 {
		fields["account"] = "Choose an account"
	}
	if in.Category == 0 {
		fields["category"] = "Choose a category"
	}
	amount, ok := formAmount(r, "amount")
	if !ok || amount <= 0 {
		fields["amount"] = "Amount must be greater than zero"
	}
	in.Amount = amount

	if len(fields) > 0 {
		vm, err := h.transactionsModel(r)
		if err != nil {
			h.fail(w, r, "transactions.html", "Transactions", vm, err)
			return
		}
		vm.Form = in
		h.renderError(w, r, "transactions.html", "Transactions", vm, "Please fix the highlighted fields", fields)
		return
	}

	if err := h.app.Client.CreateTransaction(r.Context(), in); err != nil {
		vm, _ := h.transactionsModel(r)
		vm.Form = in
		h.fail(w, r, "transactions.html", "Transactions", vm, err)
		return
	}
	redirect(w, r, "/transactions?flash=Transaction+added")
}

// CreateCategory adds a category from the transactions page.
func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		vm, err := h.transactionsModel(r)
		if err != nil {
			h.fail(w, r, "transactions.html", "Transactions", vm, err)
			return
		}
		h.renderError(w, r, "transactions.html", "Transactions", vm, "Category name is required", map[string]string{"category_name": "Required"})
		return
	}
	if _, err := h.app.Client.CreateCategory(r.Context(), name); err != nil {
		vm, _ := h.transactionsModel(r)
		h.fail(w, r, "transactions.html", "Transactions", vm, err)
		return
	}
	redirect(w, r, "/transactions?flash=Category+added")
}

// TransferViewModel is the data passed to the transfer template.
type TransferViewModel struct {
	Accounts []models.Account
	Form     models.Transfer
}

// TransferForm renders the transfer form.
func (h *Handlers) TransferForm(w http.ResponseWriter, r *http.Request) {
	vm := TransferViewModel{Form: models.Transfer{Date: today()}}
	accounts, err := h.app.Client.ListAccounts(r.Context())
	if err != nil {
		h.fail(w, r, "transfer.html", "Transfer", vm, err)
		return
	}
	vm.Accounts = accounts
	h.render(w, r, "transfer.html", h.page(r, "Transfer", vm))
}

// Transfer handles the transfer form.
func (h *Handlers) Transfer(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, "transfer.html", "Transfer", TransferViewModel{}, "Invalid form submission", nil)
		return
	}
	accounts, err := h.app.Client.ListAccounts(r.Context())
	if err != nil {
		h.fail(w, r, "transfer.html", "Transfer", TransferViewModel{}, err)
		return
	}
	amount, ok := formAmount(r, "amount")
	in := models.Transfer{
		FromAccount: formID(r, "from_account"),
		ToAccount:   formID(r, "to_account"),
		Amount:      amount,
		Note:        strings.TrimSpace(r.FormValue("note")),
		Date:        r.FormValue("date"),
	}
	if in.Date == "" {
		in.Date = today()
	}
	vm := TransferViewModel{Accounts: accounts, Form: in}

	if fields := ValidateTransfer(in, ok, accounts); len(fields) > 0 {
		h.renderError(w, r, "transfer.html", "Transfer", vm, "Please fix the highlighted fields", fields)
		return
	}
	if err := h.app.Client.Transfer(r.Context(), in); err != nil {
		h.fail(w, r, "transfer.html", "Transfer", vm, err)
		return
	}
	redirect(w, r, "/accounts?flash=Transfer+completed")
}

// ValidateTransfer checks a transfer before it is sent. amountOK is false
// when the amount did not parse.
func ValidateTransfer(in models.Transfer, amountOK bool, accounts []models.Account) map[string]string {
	fields := map[string]string{}
	if in.FromAccount == 0 {
		fields["from_account"] = "Choose the source account"
	}
	if in.ToAccount == 0 {
		fields["to_account"] = "Choose the destination account"
	}
	if in.FromAccount != 0 && in.FromAccount == in.ToAccount {
		fields["to_account"] = "Source and destination must differ"
	}
	switch {
	case !amountOK || in.Amount <= 0:
		fields["amount"] = "Amount must be greater than zero"
	case in.FromAccount != 0:
		for _, a := range accounts {
			if a.ID == in.FromAccount && in.Amount > a.Balance.Float() {
				fields["amount"] = "Amount exceeds the available balance of " + a.Balance.String()
			}
		}
	}
	return fields
}

// TopUpViewModel is the data passed to the top-up template.
type TopUpViewModel struct {
	Accounts []models.Account
	Form     models.TopUp
	Methods  []string
}

var topUpMethods = []string{"Cash", "Bank Transfer", "Card", "Other"}

// TopUpForm renders the top-up form.
func (h *Handlers) TopUpForm(w http.ResponseWriter, r *http.Request) {
	vm := TopUpViewModel{Form: models.TopUp{Method: "Cash", Note: "Top Up", Date: today()}, Methods: topUpMethods}
	accounts, err := h.app.Client.ListAccounts(r.Context())
	if err != nil {
		h.fail(w, r, "topup.html", "Top up", vm, err)
		return
	}
	vm.Accounts = accounts
	h.render(w, r, "topup.html", h.page(r, "Top up", vm))
}

// TopUp handles the top-up form.
func (h *Handlers) TopUp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, "topup.html", "Top up", TopUpViewModel{Methods: topUpMethods}, "Invalid form submission", nil)
		return
	}
	amount, ok := formAmount(r, "amount")
	in := models.TopUp{
		Account: formID(r, "account"),
		Amount:  math.Abs(amount),
		Method:  r.FormValue("method"),
		Note:    strings.TrimSpace(r.FormValue("note")),
		Date:    r.FormValue("date"),
	}
	if in.Method == "" {
		in.Method = "Cash"
	}
	if in.Note == "" {
		in.Note = "Top Up"
	}
	if in.Date == "" {
		in.Date = today()
	}

	fields := map[string]string{}
	if in.Account == 0 {
		fields["account"] = "Choose an account"
	}
	if !ok || in.Amount == 0 {
		fields["amount"] = "Amount must be greater than zero"
	}
	if len(fields) > 0 {
		vm := TopUpViewModel{Form: in, Methods: topUpMethods}
		vm.Accounts, _ = h.app.Client.ListAccounts(r.Context())
		if loc := navigated(r.Context()); loc != "" {
			redirect(w, r, loc)
			return
		}
		h.renderError(w, r, "topup.html", "Top up", vm, "Please fix the highlighted fields", fields)
		return
	}

	if err := h.app.Client.TopUp(r.Context(), in); err != nil {
		h.fail(w, r, "topup.html", "Top up", TopUpViewModel{Form: in, Methods: topUpMethods}, err)
		return
	}
	redirect(w, r, "/accounts?flash=Top-up+added")
}

// HouseholdViewModel is the data passed to the household template.
type HouseholdViewModel struct {
	Household *models.Household
	Name      string
}

// Household renders the user's household, or the create form when there is none.
func (h *Handlers) Household(w http.ResponseWriter, r *http.Request) {
	household, err := h.app.Client.Household(r.Context())
	if err != nil {
		if isNotFound(err) {
			h.render(w, r, "household.html", h.page(r, "Household", HouseholdViewModel{}))
			return
		}
		h.fail(w, r, "household.html", "Household", HouseholdViewModel{}, err)
		return
	}
	h.render(w, r, "household.html", h.page(r, "Household", HouseholdViewModel{Household: &household}))
}

// CreateHousehold handles the create household form.
func (h *Handlers) CreateHousehold(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.FormValue("name"))
	vm := HouseholdViewModel{Name: name}
	if name == "" {
		h.renderError(w, r, "household.html", "Household", vm, "Household name is required", map[string]string{"name": "Required"})
		return
	}
	if err := h.app.Client.CreateHousehold(r.Context(), name); err != nil {
		h.fail(w, r, "household.html", "Household", vm, err)
		return
	}
	redirect(w, r, "/household?flash=Household+created")
}

func formID(r *http.Request, key string) int64 {
	id, err := strconv.ParseInt(r.FormValue(key), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func formAmount(r *http.Request, key string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue(key)), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func today() string {
	return time.Now().Format("2006-01-02")
}
