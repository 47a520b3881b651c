package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finassist/internal/core"
	applog "finassist/internal/log"

	_ "modernc.org/sqlite"
)

// pragmas applied to every pooled connection by the modernc driver.
const dsnPragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// SQLiteRepository is the ledger store. Every exported operation borrows a
// single *sql.Conn from the pool and hands it back before returning.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + dsnPragmas
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// withConn runs fn on a connection scoped to one logical operation. Any
// error fn returns is reported as a *core.StorageError for op.
func (r *SQLiteRepository) withConn(ctx context.Context, op string, fn func(conn *sql.Conn) error) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return r.storageError(ctx, op, err)
	}
	defer conn.Close()

	if err := fn(conn); err != nil {
		return r.storageError(ctx, op, err)
	}
	return nil
}

func (r *SQLiteRepository) storageError(ctx context.Context, op string, err error) error {
	slog.ErrorContext(ctx, "Ledger operation failed", applog.NewFields().
		WithOperation(op).
		WithError(err, applog.ErrorTypeDatabase).
		ToSlice()...)
	return &core.StorageError{Op: op, Err: err}
}

// RecordExpense validates e and appends it to the ledger, returning the new id.
// Invalid input is rejected before any connection is taken.
func (r *SQLiteRepository) RecordExpense(ctx context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := r.withConn(ctx, "record expense", func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx,
			`INSERT INTO expenses (user_id, amount_cents, category, vendor, transaction_date, notes, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.UserID, e.Amount.Cents, string(e.Category), strings.TrimSpace(e.Description),
			e.Date.String(), e.Notes, r.now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}

	fields := applog.NewFields().
		WithOperation(applog.OpRecord).
		WithExpense(id, e.UserID, string(e.Category), e.Amount.Cents)
	fields["date"] = e.Date.String()
	slog.InfoContext(ctx, "Expense recorded", fields.ToSlice()...)

	return id, nil
}

// FetchExpense returns the expense with the given id. A missing row is
// reported with found=false and a nil error.
func (r *SQLiteRepository) FetchExpense(ctx context.Context, id int64) (core.Expense, bool, error) {
	var (
		exp   core.Expense
		found bool
	)
	err := r.withConn(ctx, "fetch expense", func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx,
			`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
		var err error
		exp, err = scanExpense(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return core.Expense{}, false, err
	}
	return exp, found, nil
}

// UpsertBudgetLimit creates the limit for (user, category, period start) or
// replaces the amount and end date of the existing one. Either way the id of
// the affected row is returned.
func (r *SQLiteRepository) UpsertBudgetLimit(ctx context.Context, b core.BudgetLimit) (int64, error) {
	if err := b.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := r.withConn(ctx, "upsert budget limit", func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx,
			`INSERT INTO budgets (user_id, category, amount_limit_cents, start_date, end_date, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (user_id, category, start_date) DO UPDATE SET
			     amount_limit_cents = excluded.amount_limit_cents,
			     end_date = excluded.end_date
			 RETURNING id`,
			b.UserID, string(b.Category), b.Limit.Cents,
			b.Period.Start.String(), b.Period.End.String(),
			r.now().UTC().Format(time.RFC3339Nano),
		).Scan(&id)
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Budget limit set",
		applog.FieldOperation, applog.OpUpsert,
		"id", id,
		applog.FieldUserID, b.UserID,
		applog.FieldCategory, b.Category,
		"limit_cents", b.Limit.Cents,
		applog.FieldPeriod, b.Period.String())

	return id, nil
}

// ListExpenses returns the user's full history, oldest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64) ([]core.Expense, error) {
	return r.queryExpenses(ctx, "list expenses",
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE user_id = ?
		 ORDER BY transaction_date ASC, id ASC`, userID)
}

// RecentExpenses returns at most limit expenses, newest first.
func (r *SQLiteRepository) RecentExpenses(ctx context.Context, userID int64, limit int) ([]core.Expense, error) {
	if limit <= 0 {
		return nil, nil
	}
	return r.queryExpenses(ctx, "recent expenses",
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE user_id = ?
		 ORDER BY transaction_date DESC, id DESC
		 LIMIT ?`, userID, limit)
}

func (r *SQLiteRepository) queryExpenses(ctx context.Context, op, query string, args ...any) ([]core.Expense, error) {
	var out []core.Expense
	err := r.withConn(ctx, op, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanExpense(rows)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SpendAgainstLimits joins every budget limit of the user starting at
// start with the sum of that category's expenses dated in [start, end).
// Limits without matching expenses are returned with zero spend.
func (r *SQLiteRepository) SpendAgainstLimits(ctx context.Context, userID int64, start, end core.Date) ([]core.LimitSpend, error) {
	var out []core.LimitSpend
	err := r.withConn(ctx, "spend against limits", func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx,
			`SELECT b.category, b.amount_limit_cents, COALESCE(SUM(e.amount_cents), 0)
			 FROM budgets b
			 LEFT JOIN expenses e
			   ON e.user_id = b.user_id
			  AND e.category = b.category
			  AND e.transaction_date >= ?
			  AND e.transaction_date < ?
			 WHERE b.user_id = ? AND b.start_date = ?
			 GROUP BY b.id, b.category, b.amount_limit_cents
			 ORDER BY b.category`,
			start.String(), end.String(), userID, start.String())
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				category     string
				limit, spent int64
			)
			if err := rows.Scan(&category, &limit, &spent); err != nil {
				return err
			}
			out = append(out, core.LimitSpend{
				Category: core.Category(category),
				Limit:    core.Money{Cents: limit},
				Spent:    core.Money{Cents: spent},
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateUser stores a new user and returns its id.
func (r *SQLiteRepository) CreateUser(ctx context.Context, name, email string) (int64, error) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" {
		return 0, fmt.Errorf("%w: name and email are required", core.ErrInvalidUser)
	}

	var id int64
	err := r.withConn(ctx, "create user", func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx,
			`INSERT INTO users (name, email, created_at) VALUES (?, ?, ?)`,
			name, email, r.now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "User created", applog.FieldUserID, id, "email", email)
	return id, nil
}

// EnsureUser inserts u with its explicit id unless a user with that id or
// email already exists.
func (r *SQLiteRepository) EnsureUser(ctx context.Context, u core.User) error {
	if u.ID <= 0 || strings.TrimSpace(u.Name) == "" || strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("%w: id, name and email are required", core.ErrInvalidUser)
	}
	return r.withConn(ctx, "ensure user", func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx,
			`INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT DO NOTHING`,
			u.ID, u.Name, u.Email, r.now().UTC().Format(time.RFC3339Nano))
		return err
	})
}

// GetUser returns the user with the given id, found=false when absent.
func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, bool, error) {
	var (
		u     core.User
		found bool
	)
	err := r.withConn(ctx, "get user", func(conn *sql.Conn) error {
		var created string
		err := conn.QueryRowContext(ctx,
			`SELECT id, name, email, created_at FROM users WHERE id = ?`, id,
		).Scan(&u.ID, &u.Name, &u.Email, &created)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		u.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return fmt.Errorf("parse created_at: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return core.User{}, false, err
	}
	return u, found, nil
}

const expenseColumns = `id, user_id, amount_cents, category, vendor, transaction_date, notes, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(s rowScanner) (core.Expense, error) {
	var (
		e                 core.Expense
		category          string
		txDate, createdAt string
	)
	if err := s.Scan(&e.ID, &e.UserID, &e.Amount.Cents, &category, &e.Description, &txDate, &e.Notes, &createdAt); err != nil {
		return core.Expense{}, err
	}
	e.Category = core.Category(category)

	d, err := core.ParseDate(txDate)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse transaction_date of expense %d: %w", e.ID, err)
	}
	e.Date = d

	e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse created_at of expense %d: %w", e.ID, err)
	}
	return e, nil
}
