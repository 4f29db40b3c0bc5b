package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultInferenceURL is the hosted inference endpoint prefix; the model id
// is appended to it.
const DefaultInferenceURL = "https://api-inference.huggingface.co/models/"

// HTTPAnalyzer calls a hosted token-classification model.
type HTTPAnalyzer struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *slog.Logger
}

var _ TextAnalyzer = (*HTTPAnalyzer)(nil)

type HTTPOption func(*HTTPAnalyzer)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) HTTPOption {
	return func(a *HTTPAnalyzer) { a.token = token }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(a *HTTPAnalyzer) { a.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(a *HTTPAnalyzer) { a.logger = l }
}

// NewHTTPAnalyzer creates an analyzer posting to endpoint.
func NewHTTPAnalyzer(endpoint string, opts ...HTTPOption) *HTTPAnalyzer {
	a := &HTTPAnalyzer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ModelEndpoint returns the inference URL of modelID under base. An empty
// base uses DefaultInferenceURL.
func ModelEndpoint(base, modelID string) string {
	if base == "" {
		base = DefaultInferenceURL
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(modelID, "/")
}

type inferenceRequest struct {
	Inputs string `json:"inputs"`
}

// inferenceToken accepts both the raw and the aggregated response shapes.
type inferenceToken struct {
	Word        string  `json:"word"`
	Entity      string  `json:"entity"`
	EntityGroup string  `json:"entity_group"`
	Score       float64 `json:"score"`
}

// Infer sends text to the model and returns its tokens.
func (a *HTTPAnalyzer) Infer(ctx context.Context, text string) ([]Token, error) {
	body, err := json.Marshal(inferenceRequest{Inputs: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("inference returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var raw []inferenceToken
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}

	a.logger.Debug("inference completed", "endpoint", a.endpoint, "tokens", len(raw), "duration", time.Since(start))

	tokens := make([]Token, 0, len(raw))
	for _, t := range raw {
		entity := t.Entity
		if entity == "" {
			entity = t.EntityGroup
		}
		tokens = append(tokens, Token{Word: t.Word, Entity: entity, Score: t.Score})
	}
	return tokens, nil
}
