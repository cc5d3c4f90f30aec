package apiclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AneeshNi47/walletfit-ui/internal/apiclient"
	"github.com/AneeshNi47/walletfit-ui/internal/apitest"
	"github.com/AneeshNi47/walletfit-ui/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loggedIn returns a client holding a valid access token for a fresh fake backend.
func loggedIn(t *testing.T) (*apiclient.Client, *apitest.Server) {
	t.Helper()
	api := apitest.NewServer()
	t.Cleanup(api.Close)
	require.NoError(t, api.AddUser("alice", "alice@example.com", "pw123456"))

	var token string
	c, err := apiclient.New(api.BaseURL(), apiclient.WithTokenSource(apiclient.TokenSourceFunc(func() string { return token })))
	require.NoError(t, err)

	pair, err := c.ObtainToken(context.Background(), "alice", "pw123456")
	require.NoError(t, err)
	token = pair.Access
	return c, api
}

func TestAccounts(t *testing.T) {
	c, api := loggedIn(t)
	ctx := context.Background()
	api.AddAccount("Wallet", "wallet", 120.5, "AED")

	created, err := c.CreateAccount(ctx, models.AccountInput{Name: "Savings", Type: "bank", Balance: 1000, Currency: "AED"})
	require.NoError(t, err)
	assert.Equal(t, "Savings", created.Name)
	assert.Equal(t, models.Amount(1000), created.Balance)

	accounts, err := c.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	// balances arrive as decimal strings
	assert.Equal(t, "120.50", accounts[0].Balance.String())

	_, err = c.CreateAccount(ctx, models.AccountInput{Name: " "})
	assert.True(t, errors.Is(err, apiclient.ErrValidation))
}

func TestTransferAndTopUp(t *testing.T) {
	c, api := loggedIn(t)
	ctx := context.Background()
	from := api.AddAccount("Wallet", "wallet", 100, "AED")
	to := api.AddAccount("Bank", "bank", 0, "AED")

	require.NoError(t, c.Transfer(ctx, models.Transfer{FromAccount: from, ToAccount: to, Amount: 40, Date: "2026-10-01"}))
	assert.Equal(t, 60.0, api.Balance(from))
	assert.Equal(t, 40.0, api.Balance(to))

	err := c.Transfer(ctx, models.Transfer{FromAccount: from, ToAccount: to, Amount: 500})
	require.Error(t, err)
	assert.Equal(t, "Insufficient balance.", apiclient.FieldErrors(err)["amount"])

	require.NoError(t, c.TopUp(ctx, models.TopUp{Account: to, Amount: 10, Method: "Cash", Note: "Top Up"}))
	assert.Equal(t, 50.0, api.Balance(to))

	activity, err := c.AccountActivity(ctx, to)
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, models.TypeTopUp, activity[0].Type)
	assert.Equal(t, models.TypeTransferIn, activity[1].Type)
	assert.Equal(t, "Wallet", activity[1].CounterpartyAccount)

	_, err = c.AccountActivity(ctx, 9999)
	assert.True(t, errors.Is(err, apiclient.ErrRequest))
	assert.Equal(t, http.StatusNotFound, apiclient.StatusCode(err))
}

func TestTransactions(t *testing.T) {
	c, api := loggedIn(t)
	ctx := context.Background()
	acct := api.AddAccount("Wallet", "wallet", 100, "AED")

	food, err := c.CreateCategory(ctx, "Food")
	require.NoError(t, err)
	categories, err := c.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Category{food}, categories)

	require.NoError(t, c.CreateTransaction(ctx, models.TransactionInput{
		Account: acct, Category: food.ID, Amount: 12.5, Description: "Lunch", Date: "2026-09-14",
	}))
	require.NoError(t, c.CreateTransaction(ctx, models.TransactionInput{
		Account: acct, Category: food.ID, Amount: 7.5, Description: "Coffee", Date: "2026-10-02",
	}))

	recent, err := c.RecentTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Coffee", recent[0].Description)
	assert.Equal(t, "Food", recent[0].CategoryName)

	monthly, err := c.MonthlySummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.MonthlyTotal{
		{Month: "2026-09", Total: 12.5},
		{Month: "2026-10", Total: 7.5},
	}, monthly)

	dash, err := c.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", dash.User.Username)
	assert.Len(t, dash.Transactions, 2)
}

func TestHousehold(t *testing.T) {
	c, _ := loggedIn(t)
	ctx := context.Background()

	_, err := c.Household(ctx)
	assert.Equal(t, http.StatusNotFound, apiclient.StatusCode(err))

	require.NoError(t, c.CreateHousehold(ctx, "Alice's Household"))
	h, err := c.Household(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice's Household", h.Name)
	assert.Equal(t, "alice", h.Owner.Username)
	require.Len(t, h.Members, 1)
}

func TestReports(t *testing.T) {
	c, api := loggedIn(t)
	ctx := context.Background()
	acct := api.AddAccount("Wallet", "wallet", 1000, "AED")
	cat := api.AddCategory("Bills")
	for range 3 {
		require.NoError(t, c.CreateTransaction(ctx, models.TransactionInput{Account: acct, Category: cat, Amount: 5, Date: "2026-10-01"}))
	}
	require.NoError(t, c.TopUp(ctx, models.TopUp{Account: acct, Amount: 50, Date: "2026-10-02"}))

	page, err := c.Report(ctx, models.ReportFilter{Type: models.TypeExpense, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	assert.Len(t, page.Results, 2)

	page, err = c.Report(ctx, models.ReportFilter{Type: models.TypeExpense, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page.Results, 1)

	start := "2026-10-01"
	saved, err := c.SaveReport(ctx, models.SavedReport{Name: "October", Filters: models.SavedFilters{StartDate: &start}})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)

	_, err = c.SaveReport(ctx, models.SavedReport{Name: "October"})
	assert.True(t, errors.Is(err, apiclient.ErrValidation))

	list, err := c.SavedReports(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "2026-10-01", *list[0].Filters.StartDate)

	require.NoError(t, c.DeleteSavedReport(ctx, saved.ID))
	list, err = c.SavedReports(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestExportReport(t *testing.T) {
	c, _ := loggedIn(t)
	ctx := context.Background()

	data, contentType, err := c.ExportReport(ctx, apiclient.ExportPDF, models.ReportFilter{})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.Contains(t, string(data), "walletfit report (pdf)")

	_, _, err = c.ExportReport(ctx, "csv", models.ReportFilter{})
	assert.ErrorContains(t, err, "unsupported export format")
}

func TestExportOmitsPaging(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF"))
	}))
	defer srv.Close()

	c, err := apiclient.New(srv.URL)
	require.NoError(t, err)
	_, _, err = c.ExportReport(context.Background(), apiclient.ExportExcel, models.ReportFilter{StartDate: "2026-01-01", Accounts: []int64{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, "accounts=1%2C2&start_date=2026-01-01", query)
}

func TestReportFilterValues(t *testing.T) {
	v := models.ReportFilter{Categories: []int64{3}, Credit: true, MinAmount: "10"}.Values()
	assert.Equal(t, "categories=3&is_credit=true&min_amount=10&page=1&page_size=20", v.Encode())
}
