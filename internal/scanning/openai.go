package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/ahorro/internal/media"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
)

// OpenAIConfig configures the OpenAI-compatible analysis client
type OpenAIConfig struct {
	APIKey       string
	Organization string
	BaseURL      string
	Model        string
	Timeout      time.Duration
}

// OpenAI implements the Analyzer interface against an OpenAI-compatible endpoint
type OpenAI struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *slog.Logger
}

// NewOpenAI creates a new OpenAI analyzer. It fails with ErrMissingConfiguration when no API key is set.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) (*OpenAI, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required: %w", ErrMissingConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAI{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

type analysisMetadata struct {
	MediaType       string       `json:"media_type"`
	UserDescription string       `json:"user_description,omitempty"`
	Location        *Geolocation `json:"location,omitempty"`
}

// Analyze uploads the receipt as multipart form data and decodes the structured result
func (o *OpenAI) Analyze(ctx context.Context, data []byte, kind media.Kind, hint string, location *Geolocation) (*Analysis, error) {
	body, contentType, err := buildAnalysisBody(data, kind, hint, location)
	if err != nil {
		return nil, err
	}

	raw, err := o.send(ctx, "/assistants/receipts:analyze", contentType, body)
	if err != nil {
		return nil, err
	}

	analysis, err := parseAnalysis(raw)
	if err != nil {
		o.logger.Warn("openai.analyze.decode_error", "bytes", len(raw), "error", err)
		return nil, err
	}
	return analysis, nil
}

func buildAnalysisBody(data []byte, kind media.Kind, hint string, location *Geolocation) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	meta, err := json.MarshalIndent(analysisMetadata{
		MediaType:       string(kind),
		UserDescription: strings.TrimSpace(hint),
		Location:        location,
	}, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("encoding metadata: %w", err)
	}

	metaHeader := make(textproto.MIMEHeader)
	metaHeader.Set("Content-Disposition", `form-data; name="metadata"`)
	metaHeader.Set("Content-Type", "application/json")
	part, err := w.CreatePart(metaHeader)
	if err != nil {
		return nil, "", fmt.Errorf("creating metadata part: %w", err)
	}
	if _, err := part.Write(meta); err != nil {
		return nil, "", fmt.Errorf("writing metadata part: %w", err)
	}

	fileHeader := make(textproto.MIMEHeader)
	fileHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="receipt.%s"`, kind.Extension()))
	fileHeader.Set("Content-Type", kind.MIMEType())
	part, err = w.CreatePart(fileHeader)
	if err != nil {
		return nil, "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("writing file part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// AnswerQuestion asks the chat model to answer using only the given receipts
func (o *OpenAI) AnswerQuestion(ctx context.Context, query string, receipts []ReceiptDigest) (string, error) {
	payload, err := json.Marshal(chatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: answerSystemPrompt},
			{Role: "user", Content: buildQuestionPrompt(query, receipts)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	raw, err := o.send(ctx, "/chat/completions", "application/json", payload)
	if err != nil {
		return "", err
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecodingFailed, err)
	}
	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: no choices", ErrUnexpectedResponse)
	}
	return completion.Choices[0].Message.Content, nil
}

// send posts body to path and returns the raw 2xx response body
func (o *OpenAI) send(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	reqID := uuid.NewString()
	start := time.Now()
	url := o.cfg.BaseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	if o.cfg.Organization != "" {
		req.Header.Set("OpenAI-Organization", o.cfg.Organization)
	}

	o.logger.Info("openai.http.request", "req_id", reqID, "url", url, "content_length", len(body))

	resp, err := o.client.Do(req)
	if err != nil {
		o.logger.Error("openai.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrTransport, err)
	}

	o.logger.Info("openai.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: status %d", ErrUnexpectedResponse, resp.StatusCode)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrUnexpectedResponse)
	}
	return raw, nil
}

// Close is a no-op for the HTTP client
func (o *OpenAI) Close() error {
	return nil
}
