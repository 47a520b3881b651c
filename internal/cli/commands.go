package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"finassist/internal/core"
	"finassist/internal/sheets"
)

// Opener builds the App a command runs against.
type Opener func(ctx context.Context) (*App, error)

type options struct {
	userID int64
	json   bool
	open   Opener
	now    func() time.Time
}

// withApp opens the App, runs fn and closes the App on every path.
func (o *options) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	if o.userID <= 0 {
		return fmt.Errorf("%w: --user must be positive, got %d", core.ErrInvalidUser, o.userID)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

// NewRootCommand builds the finassist command tree. open is called once per
// command invocation.
func NewRootCommand(open Opener) *cobra.Command {
	o := &options{open: open, now: time.Now}

	root := &cobra.Command{
		Use:           "finassist",
		Short:         "Personal finance assistant",
		Long:          "Record expenses, track budgets, analyze spending and ask for AI-assisted advice.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().Int64VarP(&o.userID, "user", "u", DefaultUser.ID, "User id")
	root.PersistentFlags().BoolVar(&o.json, "json", false, "Print results as JSON")

	root.AddCommand(
		newExpenseCommand(o),
		newIngestCommand(o),
		newBudgetCommand(o),
		newReportCommand(o),
		newAdviseCommand(o),
		newAskCommand(o),
		newUserCommand(o),
		newMirrorCommand(o),
	)
	return root
}

func newExpenseCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expense",
		Short: "Record and inspect expenses",
	}

	var amount, category, description, date, notes string
	add := &cobra.Command{
		Use:   "add",
		Short: "Record an expense",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			money, err := core.ParseMoney(amount)
			if err != nil {
				return fmt.Errorf("--amount %q: %w", amount, err)
			}
			cat, err := core.ParseCategory(category)
			if err != nil {
				return err
			}
			day := core.DateOf(o.now())
			if date != "" {
				if day, err = core.ParseDate(date); err != nil {
					return err
				}
			}
			e := core.Expense{
				UserID:      o.userID,
				Amount:      money,
				Category:    cat,
				Description: strings.TrimSpace(description),
				Date:        day,
				Notes:       notes,
			}
			return o.withApp(cmd, func(ctx context.Context, app *App) error {
				id, err := app.Expenses.RecordExpense(ctx, e)
				if err != nil {
					return err
				}
				e.ID = id
				return o.render(cmd, e, func(p *printer) {
					p.line("Recorded expense #%d: %s %s (%s) on %s", id, e.Amount, e.Description, e.Category, e.Date)
				})
			})
		},
	}
	add.Flags().StringVar(&amount, "amount", "", "Amount, e.g. 12.50")
	add.Flags().StringVar(&category, "category", "", "Category: "+categoryList())
	add.Flags().StringVar(&description, "description", "", "Vendor or short description")
	add.Flags().StringVar(&date, "date", "", "Transaction date YYYY-MM-DD (default today)")
	add.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	_ = add.MarkFlagRequired("amount")
	_ = add.MarkFlagRequired("category")
	_ = add.MarkFlagRequired("description")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid expense id %q", args[0])
			}
			return o.withApp(cmd, func(ctx context.Context, app *App) error {
				e, found, err := app.Repo.FetchExpense(ctx, id)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("expense %d not found", id)
				}
				return o.render(cmd, e, func(p *printer) { p.expenses([]core.Expense{e}) })
			})
		},
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List expenses, most recent first with --limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd, func(ctx context.Context, app *App) error {
				var (
					out []core.Expense
					err error
				)
				if limit > 0 {
					out, err = app.Repo.RecentExpenses(ctx, o.userID, limit)
				} else {
					out, err = app.Repo.ListExpenses(ctx, o.userID)
				}
				if err != nil {
					return err
				}
				return o.render(cmd, out, func(p *printer) { p.expenses(out) })
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 0, "Show only the N most recent expenses")

	cmd.AddCommand(add, get, list)
	return cmd
}

func newIngestCommand(o *options) *cobra.Command {
	var queue bool
	cmd := &cobra.Command{
		Use:   "ingest <text>",
		Short: "Record an expense from free text (bank SMS, receipt, email)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return o.withApp(cmd, func(ctx context.Context, app *App) error {
				if queue {
					if app.Queue == nil {
						return errors.New("--queue needs a reachable broker (set AMQP_URL)")
					}
					id, err := app.Queue.PublishIngestRequest(ctx, o.userID, text)
					if err != nil {
						return err
					}
					return o.render(cmd, map[string]string{"message_id": id}, func(p *printer) {
						p.line("Queued ingest request %s", id)
					})
				}

				e, err := app.Expenses.IngestText(ctx, o.userID, text)
				if err != nil {
					return err
				}
				return o.render(cmd, e, func(p *printer) {
					p.line("Recorded expense #%d: %s %s (%s) on %s", e.ID, e.Amount, e.Description, e.Category, e.Date)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&queue, "queue", false, "Hand the text to the worker instead of ingesting it here")
	return cmd
}

func newBudgetCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Set and evaluate budget limits",
	}

	var category, limit, start, end string
	set := &cobra.Command{
		Use:   "set",
		Short: "Create or replace a budget limit (default: current month)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := core.ParseCategory(category)
			if err != nil {
				return err
			}
			money, err := core.ParseMoney(limit)
			if err != nil {
				return fmt.Errorf("--limit %q: %w", limit, err)
			}
			period, err := o.period(start, end)
			if err != nil {
				return err
			}
			return o.withApp(cmd, func(ctx context.Context, app *App) error {
				id, err := app.Expenses.SetBudget(ctx, o.userID, cat, money, period)
				if err != nil {
					return err
				}
				b := core.BudgetLimit{ID: id, UserID: o.userID, Category: cat, Limit: money, Period: period}
				return o.render(cmd, b, func(p *printer) {
					p.line("Budget #%d: %s limited to %s for %s", id, cat, money, period)
				})
			})
		},
	}
	set.Flags().StringVar(&category, "category", "", "Category: "+categoryList())
	set.Flags().StringVar(&limit, "limit", "", "Limit amount, e.g. 400")
	set.Flags().StringVar(&start, "start", "", "Period start YYYY-MM-DD")
	set.Flags().StringVar(&end, "end", "", "Period end YYYY-MM-DD, exclusive")
	_ = set.MarkFlagRequired("category")
	_ = set.MarkFlagRequired("limit")

	var statusStart, statusEnd string
	status := &cobra.Command{
		Use:   "status",
		Short: "Show spend against each limit (default: current month)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			period, err := o.period(statusStart, statusEnd)
			if err != nil {
				return err
			}
			return o.withApp(cmd, func(ctx context.Context, app *App) error {
				out, err := app.Budgets.Evaluate(ctx, o.userID, period.Start, period.End)
				if err != nil {
					return err
				}
				return o.render(cmd, out, func(p *printer) { p.budgets(period, out) })
			})
		},
	}
	status.Flags().StringVar(&statusStart, "start", "", "Period start YYYY-MM-DD")
	status.Flags().StringVar(&statusEnd, "end", "", "Period end YYYY-MM-DD, exclusive")

	cmd.AddCommand(set, status)
	return cmd
}

// period returns [start, end) from flags, or the current month when both
// are empty.
func (o *options) period(start, end string) (core.Period, error) {
	if start == "" && end == "" {
		return core.MonthPeriod(o.now()), nil
	}
	if start == "" || end == "" {
		return core.Period{}, fmt.Errorf("%w: --start and --end go together", core.ErrInvalidPeriod)
	}
	s, err := core.ParseDate(start)
	if err != nil {
		return core.Period{}, err
	}
	e, err := core.ParseDate(end)
	if err != nil {
		return core.Period{}, err
	}
	p := core.Period{Start: s, End: e}
	return p, p.Validate()
}

func newReportCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Spending analytics over the full history",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "summary",
			Short: "Total, count and average",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return o.withApp(cmd, func(ctx context.Context, app *App) error {
					s, err := app.Reports.Summarize(ctx, o.userID)
					if err != nil {
						return err
					}
					return o.render(cmd, s, func(p *printer) {
						p.line("Total spent:   %s", s.TotalSpent)
						p.line("Transactions:  %d", s.TransactionCount)
						p.line("Average:       %s", s.AverageAmount)
					})
				})
			},
		},
		&cobra.Command{
			Use:   "breakdown",
			Short: "Share of lifetime spend per category",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return o.withApp(cmd, func(ctx context.Context, app *App) error {
					b, err := app.Reports.CategoryBreakdown(ctx, o.userID)
					if err != nil {
						return err
					}
					return o.render(cmd, b, func(p *printer) { p.breakdown(b) })
				})
			},
		},
		&cobra.Command{
			Use:   "trend",
			Short: "Spend per calendar month",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return o.withApp(cmd, func(ctx context.Context, app *App) error {
					t, err := app.Reports.MonthlyTrend(ctx, o.userID)
					if err != nil {
						return err
					}
					return o.render(cmd, t, func(p *printer) { p.trend(t) })
				})
			},
		},
		&cobra.Command{
			Use:   "anomalies",
			Short: "Expenses far above the average",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return o.withApp(cmd, func(ctx context.Context, app *App) error {
					a, err := app.Reports.Anomalies(ctx, o.userID)
					if err != nil {
						return err
					}
					return o.render(cmd, a, func(p *printer) { p.anomalies(a) })
				})
			},
		},
	)
	return cmd
}

func newAdviseCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "advise",
		Short: "Forecast next month and get budget advice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd, func(ctx context.Context, app *App) error {
				a, err := app.Advisor.AnalyzeBudget(ctx, o.userID)
				if err != nil {
					return err
				}
				return o.render(cmd, a, func(p *printer) { p.advice(a) })
			})
		},
	}
}

func newAskCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the assistant about your spending",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(ctx context.Context, app *App) error {
				r, err := app.Advisor.Ask(ctx, o.userID, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return o.render(cmd, r, func(p *printer) { p.line("%s", r.Answer) })
			})
		},
	}
}

func newUserCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var name, email string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd, func(ctx context.Context, app *App) error {
				id, err := app.Repo.CreateUser(ctx, name, email)
				if err != nil {
					return err
				}
				u := core.User{ID: id, Name: name, Email: email}
				return o.render(cmd, u, func(p *printer) { p.line("Created user #%d %s <%s>", id, name, email) })
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "Display name")
	create.Flags().StringVar(&email, "email", "", "Unique email")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("email")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the user selected with --user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd, func(ctx context.Context, app *App) error {
				u, found, err := app.Repo.GetUser(ctx, o.userID)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("user %d not found", o.userID)
				}
				return o.render(cmd, u, func(p *printer) { p.line("User #%d %s <%s>", u.ID, u.Name, u.Email) })
			})
		},
	}

	cmd.AddCommand(create, show)
	return cmd
}

func newMirrorCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Inspect the spreadsheet mirror",
	}

	var year, month int
	list := &cobra.Command{
		Use:   "list",
		Short: "List mirrored rows for a month (default: current month)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := o.now()
			if year == 0 {
				year = now.Year()
			}
			if month == 0 {
				month = int(now.Month())
			}
			return o.withApp(cmd, func(ctx context.Context, app *App) error {
				mirror, err := NewSheetsMirror(ctx, app.Config)
				if err != nil {
					return err
				}
				return listMirror(ctx, cmd, o, mirror, year, month)
			})
		},
	}
	list.Flags().IntVar(&year, "year", 0, "Year")
	list.Flags().IntVar(&month, "month", 0, "Month 1-12")

	cmd.AddCommand(list)
	return cmd
}

func listMirror(ctx context.Context, cmd *cobra.Command, o *options, mirror sheets.MirrorLister, year, month int) error {
	all, err := mirror.ListMonth(ctx, year, month)
	if err != nil {
		return err
	}
	rows := make([]core.Expense, 0, len(all))
	for _, e := range all {
		if e.UserID == o.userID {
			rows = append(rows, e)
		}
	}
	return o.render(cmd, rows, func(p *printer) { p.expenses(rows) })
}

func categoryList() string {
	names := make([]string, 0, len(core.Categories()))
	for _, c := range core.Categories() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
