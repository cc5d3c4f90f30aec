package handlers

import (
	"hash/fnv"
	"html/template"
	"sort"
	"strconv"
	"strings"

	"github.com/AneeshNi47/walletfit-ui/internal/models"
)

// palette colors categories that have no fixed style.
var palette = []string{"#60a5fa", "#a78bfa", "#f472b6", "#fbbf24", "#818cf8", "#fb7185", "#34d399", "#94a3b8"}

// CategoryStyle defines the visual style for a category.
type CategoryStyle struct {
	Color string
}

func getCategoryStyle(category string) CategoryStyle {
	if category == "" {
		return CategoryStyle{Color: palette[len(palette)-1]}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(category)))
	return CategoryStyle{Color: palette[h.Sum32()%uint32(len(palette)-1)]}
}

// CategoryTotal is one category with its share of the listed rows.
type CategoryTotal struct {
	Category      string
	Total         float64
	Count         int
	Percentage    float64
	CategoryStyle CategoryStyle
}

// CategoryTotals sums expense rows by category, largest first. Rows without
// a category are grouped as "Uncategorized"; other row types are ignored.
func CategoryTotals(rows []models.ReportRow) []CategoryTotal {
	byName := map[string]*CategoryTotal{}
	var total float64
	for _, row := range rows {
		if row.Type != models.TypeExpense {
			continue
		}
		name := row.CategoryName
		if name == "" {
			name = "Uncategorized"
		}
		ct, ok := byName[name]
		if !ok {
			ct = &CategoryTotal{Category: name, CategoryStyle: getCategoryStyle(row.CategoryName)}
			byName[name] = ct
		}
		ct.Total += row.Amount.Float()
		ct.Count++
		total += row.Amount.Float()
	}

	out := make([]CategoryTotal, 0, len(byName))
	for _, ct := range byName {
		if total > 0 {
			ct.Percentage = (ct.Total / total) * 100
		}
		out = append(out, *ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Totals is the income and expense summary of a transaction list.
type Totals struct {
	Income  float64
	Expense float64
}

// Net is income minus expense.
func (t Totals) Net() float64 { return t.Income - t.Expense }

// TransactionTotals sums income and expenses. Transfers move money between
// the user's own accounts and count as neither.
func TransactionTotals(txs []models.Transaction) Totals {
	var t Totals
	for _, tx := range txs {
		switch tx.Type {
		case models.TypeIncome, models.TypeTopUp:
			t.Income += tx.Amount.Float()
		case models.TypeExpense:
			t.Expense += tx.Amount.Float()
		}
	}
	return t
}

// TotalBalance sums account balances.
func TotalBalance(accounts []models.Account) float64 {
	var total float64
	for _, a := range accounts {
		total += a.Balance.Float()
	}
	return total
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money": func(v any) string {
			switch n := v.(type) {
			case models.Amount:
				return n.String()
			case float64:
				return strconv.FormatFloat(n, 'f', 2, 64)
			case int:
				return strconv.Itoa(n) + ".00"
			}
			return ""
		},
		"field": func(fields map[string]string, name string) string {
			return fields[name]
		},
		"label": func(s string) string {
			s = strings.ReplaceAll(s, "_", " ")
			if s == "" {
				return s
			}
			return strings.ToUpper(s[:1]) + s[1:]
		},
		"hasID": func(ids []int64, id int64) bool {
			for _, v := range ids {
				if v == id {
					return true
				}
			}
			return false
		},
		"isIncome": func(kind string) bool {
			return kind == models.TypeIncome || kind == models.TypeTopUp || kind == models.TypeTransferIn
		},
	}
}
