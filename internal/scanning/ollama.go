package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zombor/ahorro/internal/media"
)

// Ollama implements the Analyzer interface using a local Ollama server
type Ollama struct {
	baseURL    string
	model      string
	categories []string
	client     *http.Client
	logger     *slog.Logger
}

// NewOllama creates a new Ollama Analyzer instance
// Recommended models for receipt analysis:
//   - llava:1.6 (best balance of accuracy and speed)
//   - qwen2-vl:7b (good OCR capabilities)
//   - llava-phi3 (smaller, faster, but less accurate)
func NewOllama(baseURL, modelName string, categories []string, logger *slog.Logger) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Ollama{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      modelName,
		categories: categories,
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models are slow on local hardware
		},
		logger: logger,
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Analyze extracts structured data from a receipt
func (o *Ollama) Analyze(ctx context.Context, data []byte, kind media.Kind, hint string, location *Geolocation) (*Analysis, error) {
	pngData, err := media.ToPNG(data, kind)
	if err != nil {
		return nil, err
	}

	text, err := o.chat(ctx, []ollamaMessage{
		{
			Role:    "system",
			Content: "You are an expert at reading and extracting information from receipts and invoices. You must carefully read all text in images and extract accurate information.",
		},
		{
			Role:    "user",
			Content: buildAnalysisPrompt(o.categories, hint, location),
			Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
		},
	})
	if err != nil {
		return nil, err
	}

	analysis, err := parseAnalysisText(text)
	if err != nil {
		o.logger.Warn("ollama.analyze.decode_error", "error", err)
		return nil, err
	}
	return analysis, nil
}

// AnswerQuestion answers a question grounded in the given receipts
func (o *Ollama) AnswerQuestion(ctx context.Context, query string, receipts []ReceiptDigest) (string, error) {
	text, err := o.chat(ctx, []ollamaMessage{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: buildQuestionPrompt(query, receipts)},
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty answer", ErrUnexpectedResponse)
	}
	return text, nil
}

func (o *Ollama) chat(ctx context.Context, messages []ollamaMessage) (string, error) {
	jsonData, err := json.Marshal(ollamaChatRequest{
		Model:    o.model,
		Stream:   false,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: calling ollama API: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: ollama API error (status %d): %s", ErrUnexpectedResponse, resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("%w: decoding response: %w", ErrDecodingFailed, err)
	}
	return chatResp.Message.Content, nil
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
