package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zombor/ahorro/internal/media"
)

// Gemini implements the Analyzer interface using Google Gemini
type Gemini struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	categories []string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewGemini creates a new Gemini Analyzer instance
func NewGemini(apiKey, modelName string, categories []string, logger *slog.Logger) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required: %w", ErrMissingConfiguration)
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:     client,
		model:      client.GenerativeModel(modelName),
		categories: categories,
		timeout:    60 * time.Second,
		logger:     logger,
	}, nil
}

// Analyze extracts structured data from a receipt
func (g *Gemini) Analyze(ctx context.Context, data []byte, kind media.Kind, hint string, location *Geolocation) (*Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// genai.ImageData expects just the format suffix; after ToPNG everything is PNG
	pngData, err := media.ToPNG(data, kind)
	if err != nil {
		return nil, err
	}

	text, err := g.generate(ctx,
		genai.ImageData("png", pngData),
		genai.Text(buildAnalysisPrompt(g.categories, hint, location)),
	)
	if err != nil {
		return nil, err
	}

	analysis, err := parseAnalysisText(text)
	if err != nil {
		g.logger.Warn("gemini.analyze.decode_error", "error", err)
		return nil, err
	}
	return analysis, nil
}

// AnswerQuestion answers a question grounded in the given receipts
func (g *Gemini) AnswerQuestion(ctx context.Context, query string, receipts []ReceiptDigest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.generate(ctx, genai.Text(answerSystemPrompt+"\n\n"+buildQuestionPrompt(query, receipts)))
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty answer", ErrUnexpectedResponse)
	}
	return text, nil
}

func (g *Gemini) generate(ctx context.Context, parts ...genai.Part) (string, error) {
	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("%w: generating content: %w", ErrTransport, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no response from gemini", ErrUnexpectedResponse)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}
	return responseText.String(), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
