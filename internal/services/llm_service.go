package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"lumichat/internal/models"
	"lumichat/internal/prompt"
	"lumichat/internal/reply"
)

// Call coordinator defaults.
const (
	MaxCallAttempts    = 3
	DefaultCallTimeout = 60 * time.Second
	baseRetryDelay     = time.Second
)

// CallOptions tunes one outbound call. Stream is always forced off
// regardless of what Extra carries.
type CallOptions struct {
	Model       string // overrides the config's primary model when set
	Temperature *float64
	MaxTokens   int
	Extra       map[string]any
}

// LLMService is the single entry point for outbound chat-completion
// calls: retry with exponential backoff, per-attempt abort on timeout,
// response shape validation, and per-key statistics recording.
type LLMService struct {
	httpClient *http.Client
	providers  *ProviderService
	stats      *StatsService
	metrics    *Metrics

	// retryDelay is the backoff base; tests shrink it.
	retryDelay time.Duration
}

// NewLLMService creates a new call coordinator.
func NewLLMService(providers *ProviderService, stats *StatsService, metrics *Metrics) *LLMService {
	return &LLMService{
		// Per-attempt deadlines come from the request context.
		httpClient: &http.Client{},
		providers:  providers,
		stats:      stats,
		metrics:    metrics,
		retryDelay: baseRetryDelay,
	}
}

// Call sends one assembled request through the active config and returns
// the reply content string. Retries happen inside; the caller only sees
// the final outcome as a *CallError.
func (s *LLMService) Call(ctx context.Context, cfg *models.APIConfig, req prompt.Request, opts *CallOptions) (string, error) {
	if cfg == nil || !cfg.Complete() {
		return "", &CallError{Kind: ErrKindConfigIncomplete, Reason: "missing URL, key, or model"}
	}

	apiKey, keyIndex := s.providers.NextKey(cfg)
	keyHash := HashKey(apiKey)

	body, err := s.buildBody(cfg, req, opts)
	if err != nil {
		return "", &CallError{Kind: ErrKindShapeError, Err: err}
	}

	timeout := DefaultCallTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < MaxCallAttempts; attempt++ {
		if attempt > 0 {
			delay := s.retryDelay * (1 << (attempt - 1))
			log.Printf("🔄 [LLM] Retry %d/%d after %v", attempt, MaxCallAttempts-1, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				s.recordAttempt(cfg.ID, keyIndex, keyHash, false)
				return "", &CallError{Kind: ErrKindTimeout, Reason: TimeoutReasonAbort, Err: ctx.Err()}
			}
		}

		content, err := s.attempt(ctx, cfg.BaseURL, apiKey, body, timeout)
		s.recordAttempt(cfg.ID, keyIndex, keyHash, err == nil)
		if err == nil {
			if s.metrics != nil {
				s.metrics.RecordLLMLatency(time.Since(start).Seconds())
			}
			return content, nil
		}

		lastErr = err
		var ce *CallError
		// Timeouts and 2xx shape errors are terminal; transient upstream
		// failures and unparseable bodies retry.
		if errors.As(err, &ce) && (ce.Kind == ErrKindTimeout || ce.Kind == ErrKindShapeError || ce.Kind == ErrKindEmptyContent) {
			break
		}
	}

	if s.metrics != nil {
		s.metrics.RecordLLMError(string(ErrorKind(lastErr)))
	}
	return "", lastErr
}

func (s *LLMService) buildBody(cfg *models.APIConfig, req prompt.Request, opts *CallOptions) ([]byte, error) {
	messages := make([]prompt.ChatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, prompt.ChatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, req.Messages...)

	body := map[string]any{
		"model":    cfg.Model,
		"messages": messages,
	}
	if opts != nil {
		for k, v := range opts.Extra {
			body[k] = v
		}
		if opts.Model != "" {
			body["model"] = opts.Model
		}
		if opts.Temperature != nil {
			body["temperature"] = *opts.Temperature
		}
		if opts.MaxTokens > 0 {
			body["max_tokens"] = opts.MaxTokens
		}
	}
	// Non-negotiable: the proxy contract is non-stream.
	body["stream"] = false

	return json.Marshal(body)
}

// attempt performs one HTTP round trip and classifies the outcome.
func (s *LLMService) attempt(ctx context.Context, baseURL, apiKey string, body []byte, timeout time.Duration) (string, error) {
	if s.metrics != nil {
		s.metrics.RecordLLMRequest()
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, "POST", baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &CallError{Kind: ErrKindTransientUpstream, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		// An aborted attempt is terminal; the timeout already consumed
		// the user's patience once.
		if attemptCtx.Err() != nil {
			return "", &CallError{Kind: ErrKindTimeout, Reason: TimeoutReasonAbort, Err: err}
		}
		return "", &CallError{Kind: ErrKindTransientUpstream, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &CallError{Kind: ErrKindTransientUpstream, Err: err}
	}

	if resp.StatusCode == http.StatusGatewayTimeout {
		reason := TimeoutReasonUpstream
		if resp.Header.Get("Server") != "" || resp.Header.Get("Via") != "" {
			reason = TimeoutReasonGateway
		}
		return "", &CallError{Kind: ErrKindTimeout, Reason: reason, Status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &CallError{
			Kind:   ErrKindTransientUpstream,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("upstream error: %s", truncate(string(respBody), 200)),
		}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		// Garbage through a 2xx sometimes heals on retry.
		return "", &CallError{Kind: ErrKindTransientUpstream, Err: fmt.Errorf("unparseable body: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", &CallError{Kind: ErrKindShapeError, Reason: "choices empty"}
	}

	content := reply.StripFences(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", &CallError{Kind: ErrKindEmptyContent}
	}
	return content, nil
}

func (s *LLMService) recordAttempt(configID string, keyIndex int, keyHash string, success bool) {
	if s.stats == nil {
		return
	}
	if err := s.stats.Record(configID, keyIndex, keyHash, success); err != nil {
		log.Printf("⚠️ [LLM] Failed to record call stat: %v", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
