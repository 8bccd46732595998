package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-assessment-engine/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-assessment-engine/internal/adapter/observability"
	"github.com/fairyhunter13/ai-assessment-engine/internal/config"
	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// Client implements domain.AIClient over an OpenAI-compatible chat API.
type Client struct {
	cfg     config.Config
	hc      *http.Client
	counter *tokencount.Counter
}

// New constructs the gateway with the configured per-call timeout.
func New(cfg config.Config) *Client {
	return &Client{
		cfg:     cfg,
		hc:      &http.Client{Timeout: cfg.LLMCallTimeout},
		counter: tokencount.NewCounter(),
	}
}

// Call issues one logical LLM request. In JSON mode the response is fence-
// stripped and brace-extracted; a parse failure triggers a reformat call
// carrying the noisy output plus a schema example, bounded by the total call
// budget so the procedure can never loop indefinitely.
func (c *Client) Call(ctx domain.Context, req domain.AICallRequest) (domain.AICallResult, error) {
	if req.Model == "" {
		req.Model = c.cfg.LLMModel
	}
	budget := c.cfg.LLMCallBudget
	if budget <= 0 {
		budget = 3
	}

	res, err := c.chatWithRetry(ctx, req.System, req.Prompt, req)
	if err != nil {
		return res, err
	}
	if !req.JSONMode {
		return res, nil
	}

	calls := res.Calls
	content := res.Content
	for {
		cleaned := StripFences(content)
		if obj, ok := ExtractJSON(cleaned); ok && json.Valid([]byte(obj)) {
			res.Content = obj
			res.Calls = calls
			return res, nil
		}
		// Arrays are accepted too: some section prompts legitimately return a
		// top-level question array.
		if arr, ok := ExtractArray(cleaned); ok && json.Valid([]byte(arr)) {
			res.Content = arr
			res.Calls = calls
			return res, nil
		}
		if calls >= budget {
			observability.AIRequestsTotal.WithLabelValues("reformat", "exhausted").Inc()
			return res, fmt.Errorf("op=ai.call: %d calls without parseable JSON: %w", calls, domain.ErrLLMBadJSON)
		}
		slog.Warn("llm response not parseable, requesting reformat",
			slog.Int("calls_used", calls), slog.Int("budget", budget), slog.String("model", req.Model))
		ref, err := c.chatWithRetry(ctx, reformatSystem, reformatPrompt(content, req.SchemaExample), req)
		if err != nil {
			return res, err
		}
		calls += ref.Calls
		content = ref.Content
		res.PromptTokens += ref.PromptTokens
		res.CompletionTokens += ref.CompletionTokens
		res.CostUSD += ref.CostUSD
	}
}

const reformatSystem = "You are a JSON formatter. Respond with exactly one valid JSON value and nothing else: no prose, no markdown fences."

func reformatPrompt(previous, schemaExample string) string {
	p := "The following output was supposed to be valid JSON but is not. Reformat it into valid JSON, preserving all content:\n\n" + previous
	if schemaExample != "" {
		p += "\n\nThe JSON must follow this shape:\n" + schemaExample
	}
	return p
}

// chatWithRetry performs one chat completion with the retry schedule:
// exponential backoff (base 1s, factor 2), capped attempts, provider
// Retry-After honored on 429, and 503 treated as retryable unavailability.
func (c *Client) chatWithRetry(ctx domain.Context, system, prompt string, req domain.AICallRequest) (domain.AICallResult, error) {
	maxAttempts := c.cfg.AIMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	expo := backoff.NewExponentialBackOff()
	_, initial, maxIvl, mult := c.cfg.GetAIBackoffConfig()
	expo.InitialInterval = initial
	expo.MaxInterval = maxIvl
	expo.Multiplier = mult
	expo.MaxElapsedTime = 0
	expo.Reset()

	var lastErr error
	rateLimited := false
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		content, retryAfter, err := c.chatOnce(ctx, system, prompt, req)
		observability.AIRequestDuration.WithLabelValues("chat").Observe(time.Since(start).Seconds())
		if err == nil {
			usage := c.counter.Calculate(system, prompt, content, req.Model)
			cost := EstimateCostUSD(req.Model, usage.PromptTokens, usage.CompletionTokens)
			observability.AIRequestsTotal.WithLabelValues("chat", "ok").Inc()
			observability.AITokensTotal.WithLabelValues("prompt").Add(float64(usage.PromptTokens))
			observability.AITokensTotal.WithLabelValues("completion").Add(float64(usage.CompletionTokens))
			observability.AICostUSDTotal.Add(cost)
			return domain.AICallResult{
				Content:          content,
				Model:            req.Model,
				PromptTokens:     usage.PromptTokens,
				CompletionTokens: usage.CompletionTokens,
				CostUSD:          cost,
				Calls:            1,
			}, nil
		}
		lastErr = err
		var pe *permanentCallError
		if errors.As(err, &pe) {
			observability.AIRequestsTotal.WithLabelValues("chat", "permanent").Inc()
			return domain.AICallResult{Calls: attempt}, fmt.Errorf("op=ai.chat: %v: %w", pe.msg, domain.ErrLLMUnavailable)
		}
		rateLimited = isRateLimit(err)
		if attempt == maxAttempts {
			break
		}
		wait := expo.NextBackOff()
		if retryAfter > 0 {
			// Provider knows best when it will accept traffic again.
			wait = retryAfter
		}
		slog.Warn("llm call failed, backing off",
			slog.Int("attempt", attempt), slog.Duration("wait", wait), slog.Any("error", err))
		select {
		case <-ctx.Done():
			observability.AIRequestsTotal.WithLabelValues("chat", "canceled").Inc()
			return domain.AICallResult{Calls: attempt}, fmt.Errorf("op=ai.chat: %w: %w", ctx.Err(), domain.ErrLLMUnavailable)
		case <-time.After(wait):
		}
	}
	observability.AIRequestsTotal.WithLabelValues("chat", "exhausted").Inc()
	if rateLimited {
		return domain.AICallResult{Calls: maxAttempts}, fmt.Errorf("op=ai.chat: retries exhausted: %v: %w", lastErr, domain.ErrLLMRateLimited)
	}
	return domain.AICallResult{Calls: maxAttempts}, fmt.Errorf("op=ai.chat: retries exhausted: %v: %w", lastErr, domain.ErrLLMUnavailable)
}

type permanentCallError struct{ msg string }

func (e *permanentCallError) Error() string { return e.msg }

type rateLimitError struct{ msg string }

func (e *rateLimitError) Error() string { return e.msg }

func isRateLimit(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}

// chatOnce performs a single chat-completion HTTP round trip. It returns the
// provider Retry-After hint on 429 so the retry loop can honor it.
func (c *Client) chatOnce(ctx domain.Context, system, prompt string, req domain.AICallRequest) (string, time.Duration, error) {
	body := map[string]any{
		"model":       req.Model,
		"temperature": req.Temperature,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	b, _ := json.Marshal(body)
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LLMBaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", 0, err
	}
	if c.cfg.LLMAPIKey != "" {
		r.Header.Set("Authorization", "Bearer "+c.cfg.LLMAPIKey)
	}
	r.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(r)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		ra := parseRetryAfter(resp.Header.Get("Retry-After"))
		slog.Warn("llm provider rate limited", slog.Int("status", resp.StatusCode), slog.Duration("retry_after", ra))
		return "", ra, &rateLimitError{msg: "rate limited: 429"}
	case resp.StatusCode == http.StatusServiceUnavailable:
		slog.Warn("llm provider unavailable (503)", slog.String("body", snippet(bodyBytes)))
		return "", 0, fmt.Errorf("chat status 503")
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		slog.Warn("llm provider 4xx", slog.Int("status", resp.StatusCode), slog.String("body", snippet(bodyBytes)))
		return "", 0, &permanentCallError{msg: fmt.Sprintf("chat status %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		slog.Error("llm provider non-2xx", slog.Int("status", resp.StatusCode), slog.String("body", snippet(bodyBytes)))
		return "", 0, fmt.Errorf("chat status %d", resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		return "", 0, fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", 0, fmt.Errorf("empty choices")
	}
	return out.Choices[0].Message.Content, 0, nil
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func snippet(b []byte) string {
	if len(b) > 512 {
		b = b[:512]
	}
	return string(b)
}
