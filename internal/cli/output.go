package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"finassist/internal/advisor"
	"finassist/internal/core"
)

// render writes v as indented JSON with --json, otherwise runs text.
func (o *options) render(cmd *cobra.Command, v any, text func(p *printer)) error {
	if o.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	p := &printer{tw: tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)}
	text(p)
	return p.tw.Flush()
}

type printer struct {
	tw *tabwriter.Writer
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.tw, format+"\n", args...)
}

func (p *printer) row(cols ...any) {
	for i, c := range cols {
		if i > 0 {
			io.WriteString(p.tw, "\t")
		}
		fmt.Fprint(p.tw, c)
	}
	io.WriteString(p.tw, "\n")
}

func (p *printer) expenses(list []core.Expense) {
	if len(list) == 0 {
		p.line("No expenses.")
		return
	}
	p.row("ID", "DATE", "AMOUNT", "CATEGORY", "DESCRIPTION", "NOTES")
	for _, e := range list {
		p.row(e.ID, e.Date, e.Amount, e.Category, e.Description, e.Notes)
	}
}

func (p *printer) budgets(period core.Period, list []core.BudgetStatus) {
	if len(list) == 0 {
		p.line("No budget limits for %s.", period)
		return
	}
	p.line("Budgets for %s", period)
	p.row("CATEGORY", "LIMIT", "SPENT", "REMAINING", "STATUS")
	for _, b := range list {
		p.row(b.Category, b.Limit, b.Spent, b.Remaining, b.Status)
	}
}

func (p *printer) breakdown(b core.CategoryBreakdown) {
	if len(b.Categories) == 0 {
		p.line("No expenses.")
		return
	}
	cats := make([]core.Category, 0, len(b.Categories))
	for c := range b.Categories {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	p.row("CATEGORY", "TOTAL", "SHARE")
	for _, c := range cats {
		s := b.Categories[c]
		p.row(c, s.Total, s.Percentage.StringFixed(2)+"%")
	}
	p.row("Lifetime", b.LifetimeTotal, "100.00%")
}

func (p *printer) trend(list []core.MonthTotal) {
	if len(list) == 0 {
		p.line("No expenses.")
		return
	}
	p.row("MONTH", "TOTAL")
	for _, m := range list {
		p.row(m.Month, m.Total)
	}
}

func (p *printer) anomalies(list []core.AnomalyFlag) {
	if len(list) == 0 {
		p.line("No anomalies.")
		return
	}
	p.row("EXPENSE", "AMOUNT", "DESCRIPTION", "REASON")
	for _, a := range list {
		p.row(a.ExpenseID, a.Amount, a.Description, a.Reason)
	}
}

func (p *printer) advice(a advisor.Advice) {
	if a.Advice != "" {
		p.line("Advice: %s", a.Advice)
	}
	if a.Prediction != nil {
		p.line("Forecast for next month: %s (%s)", a.Prediction.PredictedAmount, a.Prediction.Justification)
	}
	if a.Recommendation != "" {
		p.line("Recommendation: %s", a.Recommendation)
	}
	if len(a.BudgetStatus) > 0 {
		p.row("CATEGORY", "LIMIT", "SPENT", "REMAINING", "STATUS")
		for _, b := range a.BudgetStatus {
			p.row(b.Category, b.Limit, b.Spent, b.Remaining, b.Status)
		}
	}
	for _, n := range a.Notes {
		p.line("Note: %s", n)
	}
}
