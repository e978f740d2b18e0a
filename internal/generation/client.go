package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/domain"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Guard   GuardConfig
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float32       `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat any           `json:"response_format,omitempty"`
	User           string        `json:"user,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Client is a Generator backed by an OpenAI-compatible chat completions API.
type Client struct {
	baseURL string
	model   string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	guard   *Guard
	log     zerolog.Logger

	requests *prometheus.CounterVec
}

// NewClient builds a Client. When reg is non-nil the per-role request
// counter is registered on it.
func NewClient(opts Options, logger zerolog.Logger, reg prometheus.Registerer) (*Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		baseURL: normalizeBaseURL(opts.BaseURL),
		model:   opts.Model,
		apiKey:  opts.APIKey,
		timeout: timeout,
		guard:   NewGuard(opts.Guard),
		log:     logger.With().Str("component", "generation").Logger(),
		http: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nullengine",
				Subsystem: "generation",
				Name:      "requests_total",
				Help:      "Generation requests by role and outcome.",
			},
			[]string{"role", "outcome"},
		),
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("generation base URL is not configured")
	}
	if reg != nil {
		if err := reg.Register(c.requests); err != nil {
			return nil, fmt.Errorf("register generation metrics: %w", err)
		}
	}
	return c, nil
}

// GenerateText returns the assistant reply for req.
func (c *Client) GenerateText(ctx context.Context, req Request) (string, error) {
	return c.complete(ctx, req, nil)
}

// GenerateJSON asks for a JSON object and decodes it into out.
func (c *Client) GenerateJSON(ctx context.Context, req Request, out any) error {
	text, err := c.complete(ctx, req, map[string]string{"type": "json_object"})
	if err != nil {
		return err
	}
	if err := DecodeJSON(text, out); err != nil {
		c.requests.WithLabelValues(req.Role, "malformed").Inc()
		return err
	}
	return nil
}

func (c *Client) complete(ctx context.Context, req Request, format any) (string, error) {
	if err := c.guard.Allow(req.Role); err != nil {
		c.requests.WithLabelValues(req.Role, "rejected").Inc()
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: format,
		User:           req.Role,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	text, err := c.post(ctx, payload)
	if err != nil {
		// Caller cancellation does not count as a service failure.
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return "", err
		}
		c.guard.RecordFailure()
		c.requests.WithLabelValues(req.Role, "error").Inc()
		c.log.Warn().Err(err).Str("role", req.Role).Int("failures", c.guard.Failures()).Msg("generation.failed")
		return "", domain.WrapEngineError(domain.ErrGenerationFailed.Code, req.Role, err)
	}
	c.guard.RecordSuccess()
	c.requests.WithLabelValues(req.Role, "ok").Inc()
	c.log.Debug().Str("role", req.Role).Dur("elapsed", time.Since(start)).Msg("generation.completed")
	return text, nil
}

func (c *Client) post(ctx context.Context, payload []byte) (string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(request)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %s", resp.Status)
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("response missing choices")
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("response empty")
	}
	return content, nil
}

func normalizeBaseURL(baseURL string) string {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return trimmed
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return trimmed
	}
	return trimmed + "/v1"
}
