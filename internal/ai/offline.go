package ai

import (
	"context"

	"github.com/shopspring/decimal"

	"finassist/internal/core"
)

// Offline is used when no model is configured. Every call reports the
// collaborator as unavailable alongside the documented fallback value.
type Offline struct{}

var _ Collaborator = Offline{}

func (Offline) ExtractTransaction(ctx context.Context, text string) (Extraction, error) {
	return Extraction{Amount: decimal.Zero, Description: OfflineDescription}, core.ErrCollaboratorUnavailable
}

func (Offline) ClassifyCategory(ctx context.Context, amount core.Money, description string, candidates []core.Category) (core.Category, error) {
	return core.Other, core.ErrCollaboratorUnavailable
}

func (Offline) ForecastSpending(ctx context.Context, history []HistoryEntry, period string) (Forecast, error) {
	return Forecast{Justification: OfflineJustification}, core.ErrCollaboratorUnavailable
}

func (Offline) GenerateAdvice(ctx context.Context, ac AdviceContext) (string, error) {
	return OfflineAdvice, core.ErrCollaboratorUnavailable
}

func (Offline) Answer(ctx context.Context, question string, ac AssistantContext) (string, error) {
	return OfflineAnswer, core.ErrCollaboratorUnavailable
}
