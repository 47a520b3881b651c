package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"finassist/internal/advisor"
	"finassist/internal/ai"
	"finassist/internal/amqp"
	"finassist/internal/analytics"
	"finassist/internal/budget"
	"finassist/internal/cache"
	"finassist/internal/config"
	"finassist/internal/core"
	applog "finassist/internal/log"
	"finassist/internal/services"
	"finassist/internal/sheets/google"
	"finassist/internal/storage"
)

// DefaultUser is created on first start so a single-user setup works
// without running "user create".
var DefaultUser = core.User{ID: 1, Name: "Default User", Email: "default@finassist.local"}

// App holds the wired components shared by the CLI commands and the worker.
type App struct {
	Config   *config.Config
	Logger   *applog.Logger
	Policy   core.Policy
	Repo     *storage.SQLiteRepository
	Cache    *cache.Scoped[any]
	Reports  *analytics.Aggregator
	Budgets  *budget.Evaluator
	AI       ai.Collaborator
	Expenses *services.ExpenseService
	Advisor  *advisor.Advisor
	Queue    *amqp.Client // nil when AMQP is not configured or unreachable
}

// Build opens storage and wires every component from cfg. AMQP and Gemini
// failures degrade (no events, offline AI) instead of failing the build.
func Build(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*App, error) {
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}

	repo, err := InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger, Policy: policy, Repo: repo}

	if err := repo.EnsureUser(ctx, DefaultUser); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure default user: %w", err)
	}

	app.Cache, err = cache.NewScoped[any](int64(cfg.CacheMaxEntries), cfg.CacheTTL)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Reports = analytics.NewAggregator(repo, app.Cache, policy)
	app.Budgets = budget.NewEvaluator(repo, policy)
	app.AI = NewCollaborator(ctx, cfg, logger)

	var events services.EventPublisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, expense events disabled",
				applog.FieldComponent, applog.ComponentAMQP,
				applog.FieldError, err,
				applog.FieldErrorType, applog.ErrorTypeNetwork)
		} else {
			app.Queue = client
			events = client
		}
	}

	app.Expenses = services.NewExpenseService(repo, app.AI, app.Reports, events)
	app.Advisor = advisor.New(repo, app.Budgets, app.Reports, app.AI, policy, logger.WithComponent(applog.ComponentAdvisor))
	return app, nil
}

// Close releases the broker connection, the cache and the database.
func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.Repo != nil {
		errs = append(errs, a.Repo.Close())
	}
	return errors.Join(errs...)
}

// NewCollaborator returns the Gemini collaborator when GOOGLE_CLOUD_PROJECT
// is set and the offline one otherwise, wrapped in a Guard enforcing
// cfg.AITimeout.
func NewCollaborator(ctx context.Context, cfg *config.Config, logger *applog.Logger) ai.Collaborator {
	aiLogger := logger.WithComponent(applog.ComponentAI)

	var next ai.Collaborator = ai.Offline{}
	if !cfg.AIEnabled() {
		aiLogger.Debug("GOOGLE_CLOUD_PROJECT not set, AI features run offline")
	} else if g, err := ai.NewGemini(ctx, ai.GeminiConfig{
		Project:         cfg.GeminiProject,
		Location:        cfg.GeminiLocation,
		Model:           cfg.GeminiModel,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}); err != nil {
		aiLogger.Warn("Gemini unavailable, AI features run offline",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeConfiguration)
	} else {
		next = g
	}
	return ai.NewGuard(next, cfg.AITimeout, aiLogger)
}

// NewSheetsMirror connects the Google Sheets mirror described by cfg.
func NewSheetsMirror(ctx context.Context, cfg *config.Config) (*google.Client, error) {
	if !cfg.SheetsEnabled() {
		return nil, errors.New("sheets mirror not configured (set GOOGLE_SPREADSHEET_ID)")
	}
	return google.New(ctx, google.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
}

// OpenFromEnv loads and validates the environment configuration, sets up
// logging on stderr and builds the App.
func OpenFromEnv(ctx context.Context) (*App, error) {
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	logger := SetupLogger(cfg.LogLevel, os.Stderr).WithComponent(applog.ComponentCLI)
	return Build(ctx, cfg, logger)
}
