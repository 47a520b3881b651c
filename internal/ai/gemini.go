package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	aiplatform "google.golang.org/api/aiplatform/v1"
	"google.golang.org/api/option"

	"finassist/internal/core"
)

// Vertex AI request and response types.
type (
	genRequest  = aiplatform.GoogleCloudAiplatformV1GenerateContentRequest
	genResponse = aiplatform.GoogleCloudAiplatformV1GenerateContentResponse
	genConfig   = aiplatform.GoogleCloudAiplatformV1GenerationConfig
	genContent  = aiplatform.GoogleCloudAiplatformV1Content
	genPart     = aiplatform.GoogleCloudAiplatformV1Part
)

const (
	extractSystem = "You extract transaction data. Read the text and return a JSON object " +
		`with "amount" (number, currency units), "description" (merchant or short summary) ` +
		`and "date" (YYYY-MM-DD, empty string when the text has none).`
	classifySystem = "You classify expenses. Answer with exactly one category name from this list and nothing else: %s."
	forecastSystem = "You are a financial analyst. Study the spending history and predict the likely total spend for %s. " +
		`Return a JSON object with "predicted_amount" (number, currency units) and "justification" (one short sentence).`
	adviceSystem = "You are a personal finance advisor. Using the user's spending, budgets and forecast below, " +
		"give concrete, personalised advice to improve their finances.\n\n%s"
	assistantSystem = "You are a finance assistant. Answer questions about the user's spending and budgets " +
		"using only the context data provided. Be concise and refer to the figures."
)

// GeminiConfig locates a Gemini publisher model on Vertex AI. Without
// service account credentials the application default credentials are used.
type GeminiConfig struct {
	Project         string
	Location        string // defaults to "global"
	Model           string // for example "gemini-2.5-flash"
	CredentialsJSON string
	CredentialsFile string
}

// Gemini is a Collaborator backed by Gemini on Vertex AI.
type Gemini struct {
	generate func(ctx context.Context, req *genRequest) (string, error)
}

var _ Collaborator = (*Gemini)(nil)

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.Project) == "" {
		return nil, errors.New("gemini project is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("gemini model is required")
	}
	location := cfg.Location
	if location == "" {
		location = "global"
	}

	opts, err := clientOptions(cfg, location)
	if err != nil {
		return nil, err
	}
	svc, err := aiplatform.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vertex ai service: %w", err)
	}

	name := modelName(cfg.Project, location, cfg.Model)
	models := svc.Projects.Locations.Publishers.Models

	return &Gemini{
		generate: func(ctx context.Context, req *genRequest) (string, error) {
			resp, err := models.GenerateContent(name, req).Context(ctx).Do()
			if err != nil {
				return "", fmt.Errorf("generate content: %w", err)
			}
			return responseText(resp)
		},
	}, nil
}

func clientOptions(cfg GeminiConfig, location string) ([]option.ClientOption, error) {
	opts := []option.ClientOption{option.WithScopes(aiplatform.CloudPlatformScope)}
	if location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("https://%s-aiplatform.googleapis.com/", location)))
	}

	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(data))
	}
	return opts, nil
}

// modelName builds the full publisher model resource name.
func modelName(project, location, model string) string {
	model = strings.TrimPrefix(model, "models/")
	return fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", project, location, model)
}

func (g *Gemini) ExtractTransaction(ctx context.Context, text string) (Extraction, error) {
	out, err := g.generate(ctx, request(extractSystem, text, 0, true))
	if err != nil {
		return Extraction{}, err
	}
	var ex Extraction
	if err := json.Unmarshal([]byte(stripFences(out)), &ex); err != nil {
		return Extraction{}, fmt.Errorf("decode extraction: %w", err)
	}
	ex.Description = strings.TrimSpace(ex.Description)
	ex.Date = strings.TrimSpace(ex.Date)
	return ex, nil
}

func (g *Gemini) ClassifyCategory(ctx context.Context, amount core.Money, description string, candidates []core.Category) (core.Category, error) {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = string(c)
	}
	system := fmt.Sprintf(classifySystem, strings.Join(names, ", "))
	prompt := fmt.Sprintf("Description: %q\nAmount: %s", description, amount)

	out, err := g.generate(ctx, request(system, prompt, 0, false))
	if err != nil {
		return "", err
	}
	// Models sometimes add an explanation after the label.
	first, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	return core.ParseCategory(strings.Trim(first, " .*\"'"))
}

func (g *Gemini) ForecastSpending(ctx context.Context, history []HistoryEntry, period string) (Forecast, error) {
	data, err := json.Marshal(history)
	if err != nil {
		return Forecast{}, fmt.Errorf("encode history: %w", err)
	}
	out, err := g.generate(ctx, request(fmt.Sprintf(forecastSystem, period), "History (JSON): "+string(data), 0.5, true))
	if err != nil {
		return Forecast{}, err
	}

	var raw struct {
		PredictedAmount decimal.Decimal `json:"predicted_amount"`
		Justification   string          `json:"justification"`
	}
	if err := json.Unmarshal([]byte(stripFences(out)), &raw); err != nil {
		return Forecast{}, fmt.Errorf("decode forecast: %w", err)
	}
	if raw.PredictedAmount.IsNegative() {
		return Forecast{}, fmt.Errorf("negative forecast %s", raw.PredictedAmount)
	}
	predicted, err := core.MoneyFromDecimal(raw.PredictedAmount)
	if err != nil {
		return Forecast{}, fmt.Errorf("decode forecast: %w", err)
	}
	return Forecast{
		PredictedAmount: predicted,
		Justification:   strings.TrimSpace(raw.Justification),
	}, nil
}

func (g *Gemini) GenerateAdvice(ctx context.Context, ac AdviceContext) (string, error) {
	data, err := json.Marshal(ac)
	if err != nil {
		return "", fmt.Errorf("encode advice context: %w", err)
	}
	out, err := g.generate(ctx, request(fmt.Sprintf(adviceSystem, data),
		"Based on my spending and goals, what is your best advice for me?", 0.7, false))
	if err != nil {
		return "", err
	}
	return nonEmpty(out)
}

func (g *Gemini) Answer(ctx context.Context, question string, ac AssistantContext) (string, error) {
	data, err := json.Marshal(ac)
	if err != nil {
		return "", fmt.Errorf("encode assistant context: %w", err)
	}
	prompt := fmt.Sprintf("Question: %s\nContext data (spending/budgets): %s", question, data)
	out, err := g.generate(ctx, request(assistantSystem, prompt, 0.3, false))
	if err != nil {
		return "", err
	}
	return nonEmpty(out)
}

func request(system, prompt string, temperature float64, jsonOut bool) *genRequest {
	cfg := &genConfig{
		Temperature:     temperature,
		ForceSendFields: []string{"Temperature"},
	}
	if jsonOut {
		cfg.ResponseMimeType = "application/json"
	}
	return &genRequest{
		SystemInstruction: &genContent{Parts: []*genPart{{Text: system}}},
		Contents: []*genContent{{
			Role:  "user",
			Parts: []*genPart{{Text: prompt}},
		}},
		GenerationConfig: cfg,
	}
}

func responseText(resp *genResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("empty model response")
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return nonEmpty(sb.String())
}

func nonEmpty(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("empty model response")
	}
	return s, nil
}

// stripFences removes a ```json ... ``` wrapper if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
