package handlers

import (
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/AneeshNi47/walletfit-ui/internal/apiclient"
	"github.com/AneeshNi47/walletfit-ui/internal/models"
)

// ReportsViewModel is the data passed to the reports template.
type ReportsViewModel struct {
	Filter     models.ReportFilter
	Query      template.URL
	Page       models.Page[models.ReportRow]
	Categories []CategoryTotal
	Total      float64
	Accounts   []models.Account
	Saved      []SavedLink
	Types      []string
	PrevPage   int
	NextPage   int
	SaveName   string
}

// SavedLink is a saved report with the reports query that reopens it.
type SavedLink struct {
	models.SavedReport
	Query template.URL
}

var reportTypes = []string{models.TypeExpense, models.TypeIncome, models.TypeTopUp, models.TypeTransferOut, models.TypeTransferIn}

// ParseReportFilter reads report filters from query or form values.
func ParseReportFilter(v url.Values) models.ReportFilter {
	f := models.ReportFilter{
		StartDate:  v.Get("start_date"),
		EndDate:    v.Get("end_date"),
		Accounts:   parseIDs(v["accounts"]),
		Categories: parseIDs(v["categories"]),
		Type:       v.Get("type"),
		MinAmount:  strings.TrimSpace(v.Get("min_amount")),
		MaxAmount:  strings.TrimSpace(v.Get("max_amount")),
		Credit:     v.Get("is_credit") == "true" || v.Get("is_credit") == "on",
		Debit:      v.Get("is_debit") == "true" || v.Get("is_debit") == "on",
	}
	f.Page, _ = strconv.Atoi(v.Get("page"))
	f.PageSize, _ = strconv.Atoi(v.Get("page_size"))
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = models.DefaultReportPageSize
	}
	return f
}

// parseIDs accepts repeated values and comma-separated lists.
func parseIDs(values []string) []int64 {
	var ids []int64
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil && id > 0 {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Reports renders one page of the filtered report.
func (h *Handlers) Reports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := ParseReportFilter(r.URL.Query())
	vm := ReportsViewModel{Filter: filter, Types: reportTypes}

	page, err := h.app.Client.Report(ctx, filter)
	if err != nil {
		h.fail(w, r, "reports.html", "Reports", vm, err)
		return
	}
	vm.Page = page
	vm.Categories = CategoryTotals(page.Results)
	for _, c := range vm.Categories {
		vm.Total += c.Total
	}
	q := filter.Values()
	q.Del("page")
	vm.Query = template.URL(q.Encode())
	if filter.Page > 1 {
		vm.PrevPage = filter.Page - 1
	}
	if filter.Page*filter.PageSize < page.Count {
		vm.NextPage = filter.Page + 1
	}

	// The side panels are optional; a failure there only hides them.
	if accounts, err := h.app.Client.ListAccounts(ctx); err == nil {
		vm.Accounts = accounts
	}
	if saved, err := h.app.Client.SavedReports(ctx); err == nil && len(saved) > 0 {
		categories, _ := h.app.Client.ListCategories(ctx)
		for _, rep := range saved {
			vm.Saved = append(vm.Saved, SavedLink{SavedReport: rep, Query: template.URL(FilterQuery(rep.Filters, categories))})
		}
	}
	if loc := navigated(ctx); loc != "" {
		redirect(w, r, loc)
		return
	}
	h.render(w, r, "reports.html", h.page(r, "Reports", vm))
}

// SaveReport stores the current filters under a name.
func (h *Handlers) SaveReport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, "reports.html", "Reports", ReportsViewModel{Types: reportTypes}, "Invalid form submission", nil)
		return
	}
	filter := ParseReportFilter(r.PostForm)
	name := strings.TrimSpace(r.PostFormValue("name"))
	vm := ReportsViewModel{Filter: filter, Types: reportTypes, SaveName: name}
	if name == "" {
		h.renderError(w, r, "reports.html", "Reports", vm, "Report name is required", map[string]string{"name": "Required"})
		return
	}

	var categories []models.Category
	if len(filter.Categories) > 0 {
		var err error
		if categories, err = h.app.Client.ListCategories(r.Context()); err != nil {
			h.fail(w, r, "reports.html", "Reports", vm, err)
			return
		}
	}
	report := models.SavedReport{
		Name:        name,
		Description: strings.TrimSpace(r.PostFormValue("description")),
		Filters:     SavedFiltersFrom(filter, categories),
	}
	if _, err := h.app.Client.SaveReport(r.Context(), report); err != nil {
		h.fail(w, r, "reports.html", "Reports", vm, err)
		return
	}
	redirect(w, r, "/reports?flash=Report+saved&"+filter.Values().Encode())
}

// DeleteSavedReport removes a saved report.
func (h *Handlers) DeleteSavedReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := h.app.Client.DeleteSavedReport(r.Context(), id); err != nil && !isNotFound(err) {
		h.fail(w, r, "reports.html", "Reports", ReportsViewModel{Types: reportTypes}, err)
		return
	}
	redirect(w, r, "/reports?flash=Report+deleted")
}

// ExportReport proxies the exported file untouched.
func (h *Handlers) ExportReport(w http.ResponseWriter, r *http.Request) {
	format := r.PathValue("format")
	if format != apiclient.ExportExcel && format != apiclient.ExportPDF {
		http.Error(w, "Unsupported export format", http.StatusBadRequest)
		return
	}
	filter := ParseReportFilter(r.URL.Query())
	data, contentType, err := h.app.Client.ExportReport(r.Context(), format, filter)
	if err != nil {
		h.fail(w, r, "reports.html", "Reports", ReportsViewModel{Filter: filter, Types: reportTypes}, err)
		return
	}
	ext := "xlsx"
	if format == apiclient.ExportPDF {
		ext = "pdf"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="walletfit-report.`+ext+`"`)
	_, _ = w.Write(data)
}

// SavedFiltersFrom converts a report filter to its stored form. Categories
// are stored by name; ids missing from categories are dropped.
func SavedFiltersFrom(f models.ReportFilter, categories []models.Category) models.SavedFilters {
	out := models.SavedFilters{
		TransactionTypes: []string{},
		Categories:       []string{},
		Accounts:         f.Accounts,
		StartDate:        optional(f.StartDate),
		EndDate:          optional(f.EndDate),
		MinAmount:        optional(f.MinAmount),
		MaxAmount:        optional(f.MaxAmount),
	}
	if f.Type != "" {
		out.TransactionTypes = append(out.TransactionTypes, f.Type)
	}
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	for _, id := range f.Categories {
		if name, ok := names[id]; ok {
			out.Categories = append(out.Categories, name)
		}
	}
	if out.Accounts == nil {
		out.Accounts = []int64{}
	}
	return out
}

// FilterQuery turns saved filters back into a reports query string, mapping
// category names to the ids in categories. Unknown names are skipped.
func FilterQuery(s models.SavedFilters, categories []models.Category) string {
	f := models.ReportFilter{Accounts: s.Accounts}
	if len(s.TransactionTypes) > 0 {
		f.Type = s.TransactionTypes[0]
	}
	for _, name := range s.Categories {
		for _, c := range categories {
			if strings.EqualFold(c.Name, name) {
				f.Categories = append(f.Categories, c.ID)
				break
			}
		}
	}
	f.StartDate = deref(s.StartDate)
	f.EndDate = deref(s.EndDate)
	f.MinAmount = deref(s.MinAmount)
	f.MaxAmount = deref(s.MaxAmount)
	return f.Values().Encode()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isNotFound(err error) bool {
	return apiclient.StatusCode(err) == http.StatusNotFound
}
