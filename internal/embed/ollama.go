package embed

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/satnambhatt/ai-engine/internal/config"
	"github.com/satnambhatt/ai-engine/internal/errors"
)

// OllamaConfig configures the Ollama client.
type OllamaConfig struct {
	// BaseURL is the Ollama API endpoint, e.g. http://localhost:11434.
	BaseURL string

	// Model is the embedding model, e.g. nomic-embed-text.
	Model string

	// Timeout bounds one embedding request (default: 600s).
	Timeout time.Duration

	// HealthTimeout bounds the /api/tags check (default: 5s).
	HealthTimeout time.Duration

	// MaxInputChars truncates input, in runes (default: 30000).
	MaxInputChars int

	// MaxAttempts is the number of tries per text, including the first (default: 3).
	MaxAttempts int

	// RetryDelay is the wait before the first retry, doubled after each (default: 1s).
	RetryDelay time.Duration

	Logger *slog.Logger
}

// OllamaConfigFromConfig maps the embedding configuration.
func OllamaConfigFromConfig(cfg config.EmbeddingConfig) OllamaConfig {
	return OllamaConfig{
		BaseURL:       cfg.BaseURL,
		Model:         cfg.Model,
		Timeout:       cfg.Timeout.Std(),
		MaxInputChars: cfg.MaxInputChars,
		MaxAttempts:   cfg.MaxRetries,
	}
}

// OllamaClient embeds text through Ollama's HTTP API.
type OllamaClient struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	logger    *slog.Logger

	// mu serializes Embed calls: at most one request is in flight per
	// client, since Ollama on the target host evaluates one at a time
	// and concurrent requests only queue inside the server.
	mu sync.Mutex
}

// Verify interface implementation at compile time
var _ Embedder = (*OllamaClient)(nil)

// NewOllamaClient creates a client. It does not contact the server; call
// Health for that.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ollama base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Per-request deadlines come from contexts; http.Client.Timeout would
	// override them.
	transport := &http.Transport{
		MaxIdleConns:        2,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}

	return &OllamaClient{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		logger:    logger,
	}, nil
}

// Model returns the model identifier.
func (c *OllamaClient) Model() string {
	return c.config.Model
}

// Health checks that Ollama answers and has the model installed. A model
// matches when an installed name contains the configured name, so
// "nomic-embed-text" matches "nomic-embed-text:latest".
func (c *OllamaClient) Health(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, c.config.HealthTimeout)
	defer cancel()

	models, err := c.listModels(checkCtx)
	if err != nil {
		return errors.New(errors.ErrCodeEmbedUnavailable,
			fmt.Sprintf("cannot reach Ollama at %s", c.config.BaseURL), err).
			WithSuggestion("Start Ollama with 'ollama serve' or set OLLAMA_URL")
	}

	names := make([]string, 0, len(models))
	for _, m := range models {
		if strings.Contains(m.Name, c.config.Model) {
			return nil
		}
		names = append(names, m.Name)
	}

	return errors.New(errors.ErrCodeModelNotFound,
		fmt.Sprintf("model %q not found in Ollama", c.config.Model), nil).
		WithDetail("installed", strings.Join(names, ",")).
		WithSuggestion(fmt.Sprintf("Run 'ollama pull %s'", c.config.Model))
}

// listModels gets installed models from Ollama.
func (c *OllamaClient) listModels(ctx context.Context) ([]OllamaModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result OllamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Models, nil
}

// Embed returns the embedding for text, truncated to MaxInputChars runes.
// Connection failures, timeouts and 5xx responses are retried with
// exponential backoff; other failures are returned at once.
func (c *OllamaClient) Embed(ctx context.Context, text string) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	input := truncateRunes(text, c.config.MaxInputChars)

	retryCfg := errors.RetryConfig{
		MaxRetries:   c.config.MaxAttempts - 1,
		InitialDelay: c.config.RetryDelay,
		MaxDelay:     16 * c.config.RetryDelay,
		Multiplier:   2.0,
		ShouldRetry:  errors.IsRetryable,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.logger.Warn("embedding_retry",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", c.config.MaxAttempts),
				slog.Duration("wait", wait),
				slog.String("error", err.Error()))
		},
	}

	start := time.Now()
	vec, err := errors.RetryWithResult(ctx, retryCfg, func() ([]float32, error) {
		return c.doEmbed(ctx, input)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Vector: vec, Duration: time.Since(start)}, nil
}

// doEmbed performs one /api/embed request and classifies its failure.
func (c *OllamaClient) doEmbed(ctx context.Context, input string) ([]float32, error) {
	body, err := json.Marshal(OllamaEmbedRequest{Model: c.config.Model, Input: input})
	if err != nil {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "failed to marshal request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.BaseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr net.Error
		if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
			return nil, errors.New(errors.ErrCodeEmbedTimeout,
				fmt.Sprintf("embedding request timed out after %s", c.config.Timeout), err)
		}
		return nil, errors.New(errors.ErrCodeEmbedUnavailable, "failed to connect to Ollama", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("embedding failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		switch {
		case resp.StatusCode >= 500:
			return nil, errors.New(errors.ErrCodeEmbedServer, msg, nil)
		case resp.StatusCode == http.StatusNotFound:
			return nil, errors.New(errors.ErrCodeModelNotFound, msg, nil)
		default:
			return nil, errors.New(errors.ErrCodeEmbedRequest, msg, nil)
		}
	}

	var apiResult OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "failed to decode response", err)
	}
	if len(apiResult.Embeddings) == 0 || len(apiResult.Embeddings[0]) == 0 {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "Ollama returned an empty embedding", nil)
	}

	emb := apiResult.Embeddings[0]
	vec := make([]float32, len(emb))
	for i, v := range emb {
		vec[i] = float32(v)
	}
	return normalizeVector(vec), nil
}

// Close releases idle connections.
func (c *OllamaClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
