package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/AneeshNi47/walletfit-ui/internal/models"
)

// Export formats accepted by the report export endpoint.
const (
	ExportExcel = "excel"
	ExportPDF   = "pdf"
)

// Dashboard fetches the post-login overview.
func (c *Client) Dashboard(ctx context.Context) (models.Dashboard, error) {
	var out models.Dashboard
	err := c.do(ctx, request{method: http.MethodGet, path: "users/dashboard/"}, &out)
	return out, err
}

// ListAccounts fetches the user's accounts.
func (c *Client) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var page models.Page[models.Account]
	if err := c.do(ctx, request{method: http.MethodGet, path: "accounts/"}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// CreateAccount adds an account.
func (c *Client) CreateAccount(ctx context.Context, in models.AccountInput) (models.Account, error) {
	var out models.Account
	err := c.do(ctx, request{method: http.MethodPost, path: "accounts/", body: in}, &out)
	return out, err
}

// AccountActivity fetches the movements on one account.
func (c *Client) AccountActivity(ctx context.Context, accountID int64) ([]models.Activity, error) {
	var page models.Page[models.Activity]
	path := "accounts/" + strconv.FormatInt(accountID, 10) + "/activity/"
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// Transfer moves money between two of the user's accounts.
func (c *Client) Transfer(ctx context.Context, in models.Transfer) error {
	return c.do(ctx, request{method: http.MethodPost, path: "accounts/transfers/", body: in}, nil)
}

// TopUp adds money to an account.
func (c *Client) TopUp(ctx context.Context, in models.TopUp) error {
	return c.do(ctx, request{method: http.MethodPost, path: "accounts/topups/", body: in}, nil)
}

// ListCategories fetches the transaction categories.
func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	var page models.Page[models.Category]
	if err := c.do(ctx, request{method: http.MethodGet, path: "categories/"}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// CreateCategory adds a category by name.
func (c *Client) CreateCategory(ctx context.Context, name string) (models.Category, error) {
	var out models.Category
	err := c.do(ctx, request{method: http.MethodPost, path: "categories/", body: models.Category{Name: name}}, &out)
	return out, err
}

// CreateTransaction records an expense.
func (c *Client) CreateTransaction(ctx context.Context, in models.TransactionInput) error {
	return c.do(ctx, request{method: http.MethodPost, path: "expenses/", body: in}, nil)
}

// RecentTransactions fetches the latest transactions.
func (c *Client) RecentTransactions(ctx context.Context) ([]models.Transaction, error) {
	var page models.Page[models.Transaction]
	if err := c.do(ctx, request{method: http.MethodGet, path: "expenses/recent/"}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// MonthlySummary fetches per-month spending totals.
func (c *Client) MonthlySummary(ctx context.Context) ([]models.MonthlyTotal, error) {
	var out []models.MonthlyTotal
	err := c.do(ctx, request{method: http.MethodGet, path: "expenses/monthly-summary/"}, &out)
	return out, err
}

// Household fetches the user's household.
func (c *Client) Household(ctx context.Context) (models.Household, error) {
	var out models.Household
	err := c.do(ctx, request{method: http.MethodGet, path: "users/households/view/"}, &out)
	return out, err
}

// CreateHousehold creates a household owned by the user.
func (c *Client) CreateHousehold(ctx context.Context, name string) error {
	body := struct {
		Name string `json:"name"`
	}{Name: name}
	return c.do(ctx, request{method: http.MethodPost, path: "users/households/create/", body: body}, nil)
}

// Report fetches one page of filtered report rows.
func (c *Client) Report(ctx context.Context, f models.ReportFilter) (models.Page[models.ReportRow], error) {
	var page models.Page[models.ReportRow]
	err := c.do(ctx, request{method: http.MethodGet, path: "users/reports/", query: f.Values()}, &page)
	return page, err
}

// SavedReports lists the user's saved report filters.
func (c *Client) SavedReports(ctx context.Context) ([]models.SavedReport, error) {
	var page models.Page[models.SavedReport]
	if err := c.do(ctx, request{method: http.MethodGet, path: "users/reports/saved/"}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// SaveReport stores a named report filter.
func (c *Client) SaveReport(ctx context.Context, in models.SavedReport) (models.SavedReport, error) {
	var out models.SavedReport
	err := c.do(ctx, request{method: http.MethodPost, path: "users/reports/saved/", body: in}, &out)
	return out, err
}

// DeleteSavedReport removes a saved report.
func (c *Client) DeleteSavedReport(ctx context.Context, id int64) error {
	path := "users/reports/saved/" + strconv.FormatInt(id, 10) + "/"
	return c.do(ctx, request{method: http.MethodDelete, path: path}, nil)
}

// ExportReport downloads the report in format ("excel" or "pdf"). The bytes
// are returned as served.
func (c *Client) ExportReport(ctx context.Context, format string, f models.ReportFilter) ([]byte, string, error) {
	if format != ExportExcel && format != ExportPDF {
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
	q := f.Values()
	q.Del("page")
	q.Del("page_size")
	return c.doRaw(ctx, request{method: http.MethodGet, path: "users/reports/export/" + format + "/", query: q})
}
