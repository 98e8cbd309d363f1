package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/garnizeh/medequip/internal/config"
	"github.com/garnizeh/medequip/pkg/models"
)

var ErrCircuitOpen = errors.New("ollama circuit open")

// Client wraps the Ollama API client with per-attempt timeouts, retries with
// backoff and a failure-counting circuit breaker.
type Client struct {
	api    *api.Client
	cfg    config.OllamaConfig
	client *http.Client
	logger *zap.Logger

	failures  atomic.Int32
	openUntil atomic.Int64 // unix nano
	closed    atomic.Bool
}

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// GenerateResult is the accumulated text of a completion plus the final
// streamed frame.
type GenerateResult struct {
	Text string          `json:"text"`
	Raw  json.RawMessage `json:"raw"`
	Meta map[string]any  `json:"meta,omitempty"`
}

// ModelInfo describes a locally available model.
type ModelInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func NewClient(cfg config.OllamaConfig, httpClient *http.Client, opts ...Option) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	u, err := url.ParseRequestURI(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	c := &Client{
		api:    api.NewClient(u, httpClient),
		cfg:    cfg,
		client: httpClient,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Debug("ollama client created", zap.String("base_url", cfg.BaseURL), zap.Duration("timeout", cfg.Timeout))
	return c, nil
}

// NewDefaultClient builds a client over a pooled transport. Per-call deadlines
// come from the configured timeout, not from the http.Client.
func NewDefaultClient(cfg config.OllamaConfig, opts ...Option) (*Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return NewClient(cfg, &http.Client{Transport: transport}, opts...)
}

// Close releases idle connections of the underlying transport. It is
// idempotent.
func (c *Client) Close() error {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.client != nil && c.client.Transport != nil {
		if tr, ok := c.client.Transport.(interface{ CloseIdleConnections() }); ok {
			tr.CloseIdleConnections()
		}
	}
	return nil
}

func (c *Client) isCircuitOpen() bool {
	if c.cfg.CircuitFailureThreshold <= 0 || c.failures.Load() < int32(c.cfg.CircuitFailureThreshold) {
		return false
	}
	if time.Now().UnixNano() < c.openUntil.Load() {
		return true
	}

	// half-open: let one request through
	c.failures.Store(0)
	return false
}

func (c *Client) recordFailure() {
	v := c.failures.Add(1)
	if c.cfg.CircuitFailureThreshold > 0 && v >= int32(c.cfg.CircuitFailureThreshold) {
		c.openUntil.Store(time.Now().Add(c.cfg.CircuitReset).UnixNano())
		c.logger.Warn("ollama circuit opened", zap.Int32("failures", v), zap.Duration("reset", c.cfg.CircuitReset))
	}
}

// withRetry runs call up to Retries+1 times. Each attempt gets its own
// deadline; the wait between attempts grows linearly with Backoff and ends
// early when ctx is done.
func (c *Client) withRetry(ctx context.Context, op string, call func(ctx context.Context) error) error {
	if c.isCircuitOpen() {
		return ErrCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		}
		err := call(attemptCtx)
		cancel()
		if err == nil {
			c.failures.Store(0)
			return nil
		}

		lastErr = err
		c.recordFailure()
		c.logger.Debug("ollama call failed", zap.String("op", op), zap.Int("attempt", attempt+1), zap.Error(err))

		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		if attempt == c.cfg.Retries {
			break
		}

		timer := time.NewTimer(c.cfg.Backoff * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-timer.C:
		}
		if c.isCircuitOpen() {
			return ErrCircuitOpen
		}
	}

	return fmt.Errorf("%s failed after retries: %w", op, lastErr)
}

// Health succeeds when the server answers and has at least one model.
func (c *Client) Health(ctx context.Context) error {
	list, err := c.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if len(list) == 0 {
		return errors.New("health check failed: no models available")
	}
	return nil
}

func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var out []ModelInfo
	err := c.withRetry(ctx, "list models", func(ctx context.Context) error {
		resp, err := c.api.List(ctx)
		if err != nil {
			return err
		}
		out = make([]ModelInfo, 0, len(resp.Models))
		for _, m := range resp.Models {
			out = append(out, ModelInfo{Name: m.Name, Size: m.Size})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Generate sends a single prompt and returns the concatenated response.
func (c *Client) Generate(ctx context.Context, model, prompt string) (GenerateResult, error) {
	var res GenerateResult
	start := time.Now()
	err := c.withRetry(ctx, "generate", func(ctx context.Context) error {
		var text strings.Builder
		var last api.GenerateResponse
		err := c.api.Generate(ctx, &api.GenerateRequest{Model: model, Prompt: prompt}, func(r api.GenerateResponse) error {
			text.WriteString(r.Response)
			last = r
			return nil
		})
		if err != nil {
			return err
		}
		raw, _ := json.Marshal(last)
		res = GenerateResult{Text: text.String(), Raw: raw}
		return nil
	})
	if err != nil {
		return GenerateResult{}, err
	}

	res.Meta = map[string]any{"model": model, "latency_ms": time.Since(start).Milliseconds()}
	return res, nil
}

// Chat sends the conversation and returns the assistant's reply.
func (c *Client) Chat(ctx context.Context, model string, messages []models.ChatMessage) (string, error) {
	msgs := make([]api.Message, len(messages))
	for i, m := range messages {
		msgs[i] = api.Message{Role: string(m.Role), Content: m.Content}
	}
	stream := false

	var reply string
	start := time.Now()
	err := c.withRetry(ctx, "chat", func(ctx context.Context) error {
		var b strings.Builder
		err := c.api.Chat(ctx, &api.ChatRequest{Model: model, Messages: msgs, Stream: &stream}, func(r api.ChatResponse) error {
			b.WriteString(r.Message.Content)
			return nil
		})
		if err != nil {
			return err
		}
		reply = b.String()
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug("ollama chat completed", zap.String("model", model), zap.Int("messages", len(messages)), zap.Duration("latency", time.Since(start)))
	return reply, nil
}
