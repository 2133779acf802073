// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/config"
)

// GeminiClient implements the schemas.LLMClient interface on top of the
// official Gemini SDK. Transient API failures are retried with exponential
// backoff, and every call returns a trace for the packet log whether it
// succeeded or not.
type GeminiClient struct {
	client         *genai.Client
	cfg            config.LLMModelConfig
	logger         *zap.Logger
	backoffFactory func() backoff.BackOff
}

// NewGeminiClient initializes the client. The API key must already be
// resolved by the caller; cfg.Endpoint overrides the API base URL, which
// tests and proxies rely on.
func NewGeminiClient(ctx context.Context, apiKey string, cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		cfg:    cfg,
		logger: logger.Named("llm_client.gemini"),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 2 * time.Minute
			b.MaxInterval = 30 * time.Second
			return b
		},
	}, nil
}

// Generate sends the prompts to the Gemini API and returns the generated
// content with retries. The trace in the result is populated on failure as
// well, so callers can log the attempt either way.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (schemas.GenerationResult, error) {
	contents, genCfg := c.buildRequest(req)

	start := time.Now()
	var resp *genai.GenerateContentResponse

	operation := func() error {
		attemptCtx := ctx
		if c.cfg.APITimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.APITimeout)
			defer cancel()
		}

		attemptStart := time.Now()
		r, err := c.client.Models.GenerateContent(attemptCtx, c.cfg.Model, contents, genCfg)
		if err != nil {
			return c.classifyCallError(ctx, err)
		}

		if len(r.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}
		if r.Text() == "" {
			reason := r.Candidates[0].FinishReason
			if reason == genai.FinishReasonSafety || reason == genai.FinishReasonBlocklist {
				return backoff.Permanent(fmt.Errorf("gemini API blocked the request (reason: %s)", reason))
			}
			return fmt.Errorf("gemini API returned empty content (reason: %s)", reason)
		}

		var promptTokens, completionTokens int32
		if r.UsageMetadata != nil {
			promptTokens = r.UsageMetadata.PromptTokenCount
			completionTokens = r.UsageMetadata.CandidatesTokenCount
		}
		c.logger.Info("LLM generation complete",
			zap.String("model", c.cfg.Model),
			zap.Duration("duration", time.Since(attemptStart)),
			zap.Int32("prompt_tokens", promptTokens),
			zap.Int32("completion_tokens", completionTokens),
		)

		resp = r
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		result := schemas.GenerationResult{Trace: schemas.LLMTrace{
			OK:        false,
			Model:     c.cfg.Model,
			LatencyMS: time.Since(start).Milliseconds(),
			Error:     err.Error(),
		}}
		return result, &schemas.ModelError{Model: c.cfg.Model, Op: "generate", Err: err}
	}

	trace := schemas.LLMTrace{
		OK:         true,
		Model:      c.cfg.Model,
		LatencyMS:  time.Since(start).Milliseconds(),
		ResponseID: resp.ResponseID,
	}
	if resp.UsageMetadata != nil {
		trace.PromptTokens = resp.UsageMetadata.PromptTokenCount
		trace.CompletionTokens = resp.UsageMetadata.CandidatesTokenCount
	}

	return schemas.GenerationResult{Text: resp.Text(), Trace: trace}, nil
}

// Close releases client resources. The SDK client holds no persistent
// connections, so there is nothing to tear down beyond the contract.
func (c *GeminiClient) Close() error {
	return nil
}

// buildRequest translates the provider-neutral request into SDK types. The
// user prompt always comes first; an attached screenshot rides along as
// inline PNG data.
func (c *GeminiClient) buildRequest(req schemas.GenerationRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	parts := []*genai.Part{{Text: req.UserPrompt}}
	if req.Image != nil && len(req.Image.Data) > 0 {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data},
		})
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	temperature := float32(req.Options.Temperature)
	genCfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(req.Options.MaxOutputTokens),
	}
	if genCfg.MaxOutputTokens == 0 {
		genCfg.MaxOutputTokens = int32(c.cfg.MaxTokens)
	}
	if req.Options.ForceJSONFormat {
		genCfg.ResponseMIMEType = "application/json"
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}

	return contents, genCfg
}

// classifyCallError decides whether an SDK error is worth retrying. Rate
// limits and server-side failures are transient; auth and malformed-request
// errors abort the backoff loop immediately.
func (c *GeminiClient) classifyCallError(ctx context.Context, err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			c.logger.Warn("transient gemini API error, retrying",
				zap.Int("code", apiErr.Code), zap.String("message", apiErr.Message))
			return err
		default:
			c.logger.Error("gemini API returned permanent error",
				zap.Int("code", apiErr.Code), zap.String("message", apiErr.Message))
			return backoff.Permanent(err)
		}
	}

	if ctx.Err() != nil {
		return backoff.Permanent(err)
	}

	// Network errors and per-attempt timeouts retry until the backoff
	// budget or the caller's context runs out.
	c.logger.Warn("network error during LLM request, retrying", zap.Error(err))
	return err
}
