package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"lumichat/internal/reply"
)

// ProxyHandler forwards chat completion requests to an upstream
// OpenAI-compatible endpoint on the browser client's behalf and hands
// the body back in one shot. Streaming is never proxied.
type ProxyHandler struct {
	client       *http.Client
	modelCache   *cache.Cache
	hostLimiters sync.Map // host -> *rate.Limiter
}

// NewProxyHandler creates a new proxy handler
func NewProxyHandler() *ProxyHandler {
	return &ProxyHandler{
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		// Model lists change rarely; 5 minutes keeps config pages snappy
		modelCache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

// proxyRequest is the routing part of the client body: where to forward
// and the key to use. The rest of the body is the upstream payload.
type proxyRequest struct {
	APIURL string `json:"apiUrl"`
	APIKey string `json:"apiKey"`
}

// Completions handles POST /api/proxy/. The body is flat:
// {apiUrl, apiKey, model, messages, ...opts}; routing fields are
// stripped and the remainder forwarded as the completion payload.
func (h *ProxyHandler) Completions(c *fiber.Ctx) error {
	var payload map[string]any
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	apiURL, _ := payload["apiUrl"].(string)
	apiKey, _ := payload["apiKey"].(string)
	delete(payload, "apiUrl")
	delete(payload, "apiKey")

	base, err := normalizeBaseURL(apiURL)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid apiUrl",
		})
	}

	// stream:false is forced regardless of what the client asked for
	payload["stream"] = false
	body, err := json.Marshal(payload)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to encode payload",
		})
	}

	if err := h.waitHost(c.Context(), base); err != nil {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Upstream pacing interrupted",
		})
	}

	upstream, err := http.NewRequestWithContext(c.Context(), http.MethodPost,
		strings.TrimRight(base, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build upstream request",
		})
	}
	upstream.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		upstream.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := h.client.Do(upstream)
	if err != nil {
		log.Printf("❌ [PROXY] Upstream request failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Upstream request failed",
		})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to read upstream response",
		})
	}

	c.Set("Content-Type", "application/json")
	return c.Status(resp.StatusCode).Send(stripChoiceFences(respBody))
}

// stripChoiceFences removes markdown fences from every choice's message
// content so downstream parsing sees clean text. Anything that does not
// look like a completions body passes through untouched.
func stripChoiceFences(body []byte) []byte {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return body
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(body, &generic); err != nil {
		return body
	}
	var choices []map[string]json.RawMessage
	if err := json.Unmarshal(generic["choices"], &choices); err != nil {
		return body
	}

	changed := false
	for i, choice := range choices {
		var msg map[string]json.RawMessage
		if err := json.Unmarshal(choice["message"], &msg); err != nil {
			continue
		}
		var content string
		if err := json.Unmarshal(msg["content"], &content); err != nil {
			continue
		}
		stripped := reply.StripFences(content)
		if stripped == content {
			continue
		}
		enc, err := json.Marshal(stripped)
		if err != nil {
			continue
		}
		msg["content"] = enc
		msgEnc, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		choices[i]["message"] = msgEnc
		changed = true
	}
	if !changed {
		return body
	}

	choicesEnc, err := json.Marshal(choices)
	if err != nil {
		return body
	}
	generic["choices"] = choicesEnc
	out, err := json.Marshal(generic)
	if err != nil {
		return body
	}
	return out
}

// TestConnection handles POST /api/test-connection by listing the
// upstream's models. Results are cached per (url, key) for 5 minutes.
func (h *ProxyHandler) TestConnection(c *fiber.Ctx) error {
	var req proxyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	base, err := normalizeBaseURL(req.APIURL)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid apiUrl",
		})
	}

	cacheKey := base + "|" + req.APIKey
	if cached, found := h.modelCache.Get(cacheKey); found {
		c.Set("Content-Type", "application/json")
		return c.Send(cached.([]byte))
	}

	if err := h.waitHost(c.Context(), base); err != nil {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Upstream pacing interrupted",
		})
	}

	upstream, err := http.NewRequestWithContext(c.Context(), http.MethodGet,
		strings.TrimRight(base, "/")+"/models", nil)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build upstream request",
		})
	}
	if req.APIKey != "" {
		upstream.Header.Set("Authorization", "Bearer "+req.APIKey)
	}

	resp, err := h.client.Do(upstream)
	if err != nil {
		log.Printf("❌ [PROXY] Model list request failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Upstream request failed",
		})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to read upstream response",
		})
	}

	if resp.StatusCode == http.StatusOK {
		h.modelCache.Set(cacheKey, respBody, cache.DefaultExpiration)
	}
	c.Set("Content-Type", "application/json")
	return c.Status(resp.StatusCode).Send(respBody)
}

// waitHost paces outbound calls per upstream host. 5 req/s keeps a
// misbehaving client from hammering one provider through the proxy.
func (h *ProxyHandler) waitHost(ctx context.Context, base string) error {
	u, err := url.Parse(base)
	if err != nil {
		return err
	}
	limiter, ok := h.hostLimiters.Load(u.Host)
	if !ok {
		limiter, _ = h.hostLimiters.LoadOrStore(u.Host, rate.NewLimiter(rate.Limit(5.0), 10))
	}
	return limiter.(*rate.Limiter).Wait(ctx)
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("unsupported api url: %s", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}
