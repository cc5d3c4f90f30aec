package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Transaction and report row types as reported by the API.
const (
	TypeExpense     = "expense"
	TypeIncome      = "income"
	TypeTopUp       = "top_up"
	TypeTransferOut = "transfer_out"
	TypeTransferIn  = "transfer_in"
)

// Amount is a monetary value. The API sends decimals as strings ("12.50"),
// occasionally as numbers; both decode.
type Amount float64

// UnmarshalJSON accepts a JSON number, a numeric string, an empty string or null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(bytes.TrimSpace(data))
	if s == "null" {
		*a = 0
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
		if s == "" {
			*a = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", string(data), err)
	}
	*a = Amount(f)
	return nil
}

// Float returns the amount as a float64.
func (a Amount) Float() float64 { return float64(a) }

// String formats the amount with two decimals.
func (a Amount) String() string { return strconv.FormatFloat(float64(a), 'f', 2, 64) }

// Page is a list response. Paginated endpoints answer {count, next, previous, results};
// a few answer a bare array, which decodes into Results with Count set to its length.
type Page[T any] struct {
	Count    int
	Next     string
	Previous string
	Results  []T
}

type pageEnvelope[T any] struct {
	Count    int    `json:"count"`
	Next     string `json:"next"`
	Previous string `json:"previous"`
	Results  []T    `json:"results"`
}

// UnmarshalJSON decodes either a paginated envelope or a bare array.
func (p *Page[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		*p = Page[T]{Count: len(items), Results: items}
		return nil
	}
	var env pageEnvelope[T]
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return err
	}
	*p = Page[T]{Count: env.Count, Next: env.Next, Previous: env.Previous, Results: env.Results}
	return nil
}

// Account is a wallet, bank or card account.
type Account struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Balance       Amount `json:"balance"`
	Currency      string `json:"currency"`
	AccountNumber string `json:"account_number,omitempty"`
}

// AccountInput is the body for creating an account.
type AccountInput struct {
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	Balance       float64 `json:"balance"`
	Currency      string  `json:"currency"`
	AccountNumber string  `json:"account_number"`
}

// Category groups transactions.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Transaction is a recorded income or expense.
type Transaction struct {
	ID           int64  `json:"id"`
	Type         string `json:"type"`
	Description  string `json:"description"`
	Amount       Amount `json:"amount"`
	Currency     string `json:"currency,omitempty"`
	Date         string `json:"date"`
	CategoryName string `json:"category_name,omitempty"`
	AccountName  string `json:"account_name,omitempty"`
}

// TransactionInput is the body for recording an expense.
type TransactionInput struct {
	Account     int64   `json:"account"`
	Category    int64   `json:"category"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
}

// Activity is one movement on an account.
type Activity struct {
	ID                  int64  `json:"id"`
	Type                string `json:"type"`
	Amount              Amount `json:"amount"`
	Currency            string `json:"currency"`
	Description         string `json:"description"`
	Note                string `json:"note"`
	Date                string `json:"date"`
	CreatedAt           string `json:"created_at"`
	CounterpartyAccount string `json:"counterparty_account"`
}

// Transfer moves money between two accounts.
type Transfer struct {
	FromAccount int64   `json:"from_account"`
	ToAccount   int64   `json:"to_account"`
	Amount      float64 `json:"amount"`
	Note        string  `json:"note"`
	Date        string  `json:"date"`
}

// TopUp adds money to an account.
type TopUp struct {
	Account int64   `json:"account"`
	Amount  float64 `json:"amount"`
	Method  string  `json:"method"`
	Note    string  `json:"note"`
	Date    string  `json:"date"`
}

// Member is a household participant.
type Member struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// Household is a group of users sharing accounts.
type Household struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	CreatedAt string   `json:"created_at"`
	Owner     Member   `json:"owner"`
	Members   []Member `json:"members"`
}

// DashboardUser is the greeting block of the dashboard.
type DashboardUser struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Dashboard is the landing screen payload after login.
type Dashboard struct {
	User         DashboardUser `json:"user"`
	Profile      Profile       `json:"profile"`
	Transactions []Transaction `json:"transactions"`
}

// MonthlyTotal is one point of the monthly spending series.
type MonthlyTotal struct {
	Month string `json:"month"`
	Total Amount `json:"total"`
}

// ReportRow is one line of a filtered report.
type ReportRow struct {
	ID                 int64  `json:"id"`
	Type               string `json:"type"`
	Amount             Amount `json:"amount"`
	Currency           string `json:"currency"`
	Description        string `json:"description"`
	CategoryName       string `json:"category_name"`
	AccountName        string `json:"account_name"`
	RelatedAccountName string `json:"related_account_name"`
	Date               string `json:"date"`
	CreatedAt          string `json:"created_at"`
}

// DefaultReportPageSize matches the backend default.
const DefaultReportPageSize = 20

// ReportFilter selects report rows.
type ReportFilter struct {
	StartDate  string
	EndDate    string
	Accounts   []int64
	Categories []int64
	Type       string
	MinAmount  string
	MaxAmount  string
	Credit     bool
	Debit      bool
	Page       int
	PageSize   int
}

// Values encodes the filter as report query parameters. Page and page size
// are always present.
func (f ReportFilter) Values() url.Values {
	v := url.Values{}
	if f.StartDate != "" {
		v.Set("start_date", f.StartDate)
	}
	if f.EndDate != "" {
		v.Set("end_date", f.EndDate)
	}
	if len(f.Accounts) > 0 {
		v.Set("accounts", joinIDs(f.Accounts))
	}
	if len(f.Categories) > 0 {
		v.Set("categories", joinIDs(f.Categories))
	}
	if f.Type != "" {
		v.Set("type", f.Type)
	}
	if f.MinAmount != "" {
		v.Set("min_amount", f.MinAmount)
	}
	if f.MaxAmount != "" {
		v.Set("max_amount", f.MaxAmount)
	}
	if f.Credit {
		v.Set("is_credit", "true")
	}
	if f.Debit {
		v.Set("is_debit", "true")
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	size := f.PageSize
	if size < 1 {
		size = DefaultReportPageSize
	}
	v.Set("page", strconv.Itoa(page))
	v.Set("page_size", strconv.Itoa(size))
	return v
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// SavedFilters is the stored form of a report filter.
type SavedFilters struct {
	TransactionTypes []string `json:"transaction_types"`
	Categories       []string `json:"categories"`
	StartDate        *string  `json:"start_date"`
	EndDate          *string  `json:"end_date"`
	MinAmount        *string  `json:"min_amount"`
	MaxAmount        *string  `json:"max_amount"`
	Accounts         []int64  `json:"accounts"`
}

// SavedReport is a named report filter kept by the backend.
type SavedReport struct {
	ID          int64        `json:"id,omitempty"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Filters     SavedFilters `json:"filters"`
	CreatedAt   string       `json:"created_at,omitempty"`
}
