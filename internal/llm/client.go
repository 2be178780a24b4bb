// Package llm provides the model client used by the review pipeline, the
// prompt templates it renders, and the parser for structured model replies.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sevigo/goframe/llms"
	"github.com/sevigo/goframe/llms/gemini"
	"github.com/sevigo/goframe/llms/ollama"

	"github.com/sevigo/patchlens/internal/config"
)

const retryBaseDelay = 1 * time.Second

// ModelClient is the single entry point to the generation model. Transient
// failures are retried with exponential backoff inside Complete; errors that
// survive it are either fatal (see IsFatal) or chunk-scoped.
type ModelClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// FatalError marks a model failure that no retry or per-chunk degradation can
// recover from, such as a rejected API key. Callers abort the run on it.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal model error: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Generator is the slice of the goframe model the client needs. llms.Model
// satisfies it.
type Generator interface {
	Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error)
}

type modelClient struct {
	model      Generator
	timeout    time.Duration
	maxRetries int
	logger     *slog.Logger
}

// NewModelClient wraps a goframe model with the pipeline's timeout and retry
// policy.
func NewModelClient(model Generator, timeout time.Duration, maxRetries int, logger *slog.Logger) ModelClient {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &modelClient{
		model:      model,
		timeout:    timeout,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Complete sends the prompt to the model, retrying transient failures with
// exponential backoff. Each attempt runs under the client's hard timeout; a
// timed-out attempt counts as transient and the next attempt gets a fresh
// deadline.
func (c *modelClient) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := c.generateWithTimeout(ctx, prompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if isAuthOrRequestError(err) {
			return "", &FatalError{Err: err}
		}
		if !isRetryableError(err) {
			return "", err
		}
		// Do not burn retries on a cancelled parent context.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if attempt < c.maxRetries {
			delay := retryBaseDelay * time.Duration(1<<attempt)
			c.logger.Warn("retrying model call after transient error",
				"attempt", attempt+1,
				"max_attempts", c.maxRetries+1,
				"delay", delay,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return "", fmt.Errorf("model call failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// generateWithTimeout wraps model generation with a hard timeout so a hung
// client cannot stall the whole run.
func (c *modelClient) generateWithTimeout(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		resp string
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		resp, err := c.model.Call(ctx, prompt)
		select {
		case resultCh <- result{resp, err}:
		case <-ctx.Done():
		}
	}()

	select {
	case res := <-resultCh:
		return res.resp, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// isAuthOrRequestError detects failures where retrying the same request is
// pointless: bad credentials or a request the provider rejects outright.
func isAuthOrRequestError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "forbidden") ||
		strings.Contains(errStr, "invalid api key") ||
		strings.Contains(errStr, "api key not valid") ||
		strings.Contains(errStr, "400")
}

// isRetryableError checks if an error is transient and worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		errors.Is(err, context.DeadlineExceeded)
}

// NewGeneratorModel creates the raw goframe model for the configured provider.
func NewGeneratorModel(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llms.Model, error) {
	switch cfg.AI.LLMProvider {
	case "gemini":
		logger.Info("using Gemini LLM provider", "model", cfg.AI.GeneratorModelName)
		if cfg.AI.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set in environment for gemini provider")
		}
		return gemini.New(ctx,
			gemini.WithModel(cfg.AI.GeneratorModelName),
			gemini.WithAPIKey(cfg.AI.GeminiAPIKey),
		)

	case "ollama":
		logger.Info("using Ollama LLM provider", "model", cfg.AI.GeneratorModelName)
		return ollama.New(
			ollama.WithServerURL(cfg.AI.OllamaHost),
			ollama.WithHTTPClient(NewOllamaHTTPClient()),
			ollama.WithModel(cfg.AI.GeneratorModelName),
			ollama.WithLogger(logger),
		)

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.AI.LLMProvider)
	}
}

// NewOllamaHTTPClient creates an HTTP client with generous timeouts; local
// model servers can take minutes to answer a long prompt.
func NewOllamaHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableKeepAlives:   false,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   5 * time.Minute,
	}
}
