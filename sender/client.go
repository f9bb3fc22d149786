package sender

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/prilive-com/despacho/internal/scrub"
	"github.com/prilive-com/despacho/tg"
)

const (
	maxResponseSize = 10 << 20 // 10MB
)

// Sleeper abstracts time-based waiting so retry and backoff timing can
// be verified in tests without real delays.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper uses actual time.
type RealSleeper struct{}

// Sleep waits for the specified duration or until ctx is cancelled.
func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Client is a Bot API client bound to a single bot credential.
type Client struct {
	config        Config
	httpClient    *http.Client
	logger        *slog.Logger
	globalLimiter *rate.Limiter
	chatLimiters  map[string]*rate.Limiter
	limiterMu     sync.Mutex
	breaker       *gobreaker.CircuitBreaker[*apiResponse]
	sleeper       Sleeper
	closeOnce     sync.Once
}

type apiResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

// responseParameters contains special parameters returned by the Bot API.
type responseParameters struct {
	RetryAfter      int   `json:"retry_after,omitempty"`
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithBaseURL sets the API base URL (useful for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.config.BaseURL = url
	}
}

// WithRateLimit sets global rate limiting parameters.
func WithRateLimit(globalRPS float64, burst int) Option {
	return func(c *Client) {
		c.config.GlobalRPS = globalRPS
		c.config.GlobalBurst = burst
		c.globalLimiter = rate.NewLimiter(rate.Limit(globalRPS), burst)
	}
}

// WithRetries sets max retry attempts within one logical send.
func WithRetries(max int) Option {
	return func(c *Client) {
		c.config.MaxRetries = max
	}
}

// WithSleeper sets a custom sleeper for retry timing (useful for testing).
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		c.sleeper = s
	}
}

func createHTTPClient(cfg Config) *http.Client {
	return &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: cfg.KeepAlive,
			}).DialContext,
			MaxIdleConns:          cfg.MaxIdleConns,
			IdleConnTimeout:       cfg.IdleTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			ForceAttemptHTTP2:     true,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}

// New creates a new Client for the given token.
func New(token tg.SecretToken, opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Token = token
	return NewFromConfig(cfg, opts...)
}

// NewFromConfig creates a Client from a Config.
func NewFromConfig(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Token.IsEmpty() {
		return nil, tg.ErrInvalidToken
	}

	c := &Client{
		config:       cfg,
		chatLimiters: make(map[string]*rate.Limiter),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.httpClient == nil {
		c.httpClient = createHTTPClient(c.config)
	}
	if c.globalLimiter == nil {
		c.globalLimiter = rate.NewLimiter(rate.Limit(c.config.GlobalRPS), c.config.GlobalBurst)
	}
	if c.sleeper == nil {
		c.sleeper = RealSleeper{}
	}

	c.breaker = gobreaker.NewCircuitBreaker[*apiResponse](gobreaker.Settings{
		Name:        "despacho-sender",
		MaxRequests: c.config.BreakerMaxRequests,
		Interval:    c.config.BreakerInterval,
		Timeout:     c.config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.5
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return c, nil
}

// Close releases resources used by the client. It is safe to call Close
// more than once; subsequent calls are no-ops. In-flight requests
// complete normally or with context errors.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if t, ok := c.httpClient.Transport.(*http.Transport); ok {
			t.CloseIdleConnections()
		}
	})
	return nil
}

// GetMe returns basic information about the bot. The dispatcher uses it
// as the connectivity probe when opening a session.
func (c *Client) GetMe(ctx context.Context) (*tg.User, error) {
	resp, err := c.executeRequest(ctx, "getMe", struct{}{}, "")
	if err != nil {
		return nil, err
	}
	var user tg.User
	if err := json.Unmarshal(resp.Result, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}
	return &user, nil
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*tg.Message, error) {
	if req.ChatID == "" {
		return nil, tg.ErrInvalidDestination
	}
	return withRetry(c, ctx, func() (*tg.Message, error) {
		return c.sendOnce(ctx, "sendMessage", req, req.ChatID)
	})
}

// SendPhoto sends a photo referenced by URL or file_id.
func (c *Client) SendPhoto(ctx context.Context, req SendPhotoRequest) (*tg.Message, error) {
	if req.ChatID == "" {
		return nil, tg.ErrInvalidDestination
	}
	return withRetry(c, ctx, func() (*tg.Message, error) {
		return c.sendOnce(ctx, "sendPhoto", req, req.ChatID)
	})
}

// SendVideo sends a video, uploading local content via multipart when
// the request carries an upload.
func (c *Client) SendVideo(ctx context.Context, req SendVideoRequest) (*tg.Message, error) {
	if req.ChatID == "" {
		return nil, tg.ErrInvalidDestination
	}
	if req.Video.IsEmpty() {
		return nil, fmt.Errorf("despacho: video is required")
	}
	// Single-use readers cannot survive a retry; send once.
	if req.Video.Reader != nil && req.Video.Source == nil {
		return c.sendOnce(ctx, "sendVideo", req, req.ChatID)
	}
	return withRetry(c, ctx, func() (*tg.Message, error) {
		return c.sendOnce(ctx, "sendVideo", req, req.ChatID)
	})
}

// SendMediaGroup sends an album of photos/videos referenced by URL or
// file_id.
func (c *Client) SendMediaGroup(ctx context.Context, req SendMediaGroupRequest) ([]*tg.Message, error) {
	if req.ChatID == "" {
		return nil, tg.ErrInvalidDestination
	}
	if len(req.Media) < 2 || len(req.Media) > 10 {
		return nil, fmt.Errorf("despacho: media group must contain 2-10 items, got %d", len(req.Media))
	}
	return withRetry(c, ctx, func() ([]*tg.Message, error) {
		resp, err := c.executeRequest(ctx, "sendMediaGroup", req, req.ChatID)
		if err != nil {
			return nil, wrapBreakerErr(err)
		}
		var messages []*tg.Message
		if err := json.Unmarshal(resp.Result, &messages); err != nil {
			return nil, fmt.Errorf("failed to parse messages: %w", err)
		}
		return messages, nil
	})
}

// Internal methods

func (c *Client) sendOnce(ctx context.Context, method string, payload any, chatID string) (*tg.Message, error) {
	resp, err := c.executeRequest(ctx, method, payload, chatID)
	if err != nil {
		return nil, wrapBreakerErr(err)
	}
	return parseMessage(resp)
}

func wrapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", tg.ErrCircuitOpen, err)
	}
	return err
}

func (c *Client) executeRequest(ctx context.Context, method string, payload any, chatID string) (*apiResponse, error) {
	if chatID != "" {
		if err := c.waitForRateLimit(ctx, chatID); err != nil {
			return nil, err
		}
	}
	return c.breaker.Execute(func() (*apiResponse, error) {
		return c.doRequest(ctx, method, payload)
	})
}

func (c *Client) doRequest(ctx context.Context, method string, payload any) (*apiResponse, error) {
	url := fmt.Sprintf("%s/bot%s/%s", c.config.BaseURL, c.config.Token.Value(), method)

	multipartReq, err := BuildMultipartRequest(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	var req *http.Request

	if multipartReq.HasUploads() {
		// Use multipart/form-data for file uploads — streamed via io.Pipe
		pr, pw := io.Pipe()
		encoder := NewMultipartEncoder(pw)
		contentType := encoder.ContentType()

		// Encode in a goroutine so the HTTP request streams as data is written
		go func() {
			if encErr := encoder.Encode(multipartReq); encErr != nil {
				pw.CloseWithError(fmt.Errorf("failed to encode multipart request: %w", encErr))
				return
			}
			if encErr := encoder.Close(); encErr != nil {
				pw.CloseWithError(fmt.Errorf("failed to close multipart encoder: %w", encErr))
				return
			}
			pw.Close()
		}()

		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
		if err != nil {
			pr.Close()
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
	} else {
		jsonData, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", marshalErr)
		}

		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", scrub.TokenFromError(err, c.config.Token))
	}
	defer resp.Body.Close()

	// Read maxResponseSize+1 to detect overflow without false positive
	limitedReader := io.LimitReader(resp.Body, maxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if int64(len(body)) > maxResponseSize {
		return nil, tg.ErrResponseTooLarge
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !apiResp.OK {
		// Parse retry_after: JSON body (primary) + HTTP header (fallback)
		retryAfter := parseRetryAfter(&apiResp, resp)
		if retryAfter > 0 {
			return nil, tg.NewAPIErrorWithRetry(method, apiResp.ErrorCode, apiResp.Description, retryAfter)
		}
		return nil, tg.NewAPIError(method, apiResp.ErrorCode, apiResp.Description)
	}

	return &apiResp, nil
}

func (c *Client) waitForRateLimit(ctx context.Context, chatID string) error {
	limiter := c.getChatLimiter(chatID)
	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	return c.globalLimiter.Wait(ctx)
}

// getChatLimiter returns the per-chat limiter, creating it on first use.
// A session targets one destination, so the map stays tiny; no eviction
// is needed for a short-lived per-attempt client.
func (c *Client) getChatLimiter(chatID string) *rate.Limiter {
	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()

	if limiter, ok := c.chatLimiters[chatID]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Limit(c.config.PerChatRPS), c.config.PerChatBurst)
	c.chatLimiters[chatID] = limiter
	return limiter
}

func withRetry[T any](c *Client, ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Non-retryable errors return immediately (not wrapped in ErrMaxRetries)
		if !isRetryable(err) {
			return zero, err
		}

		if attempt >= c.config.MaxRetries {
			break
		}

		backoff := calculateBackoff(c.config, attempt+1, err)
		if err := c.sleeper.Sleep(ctx, backoff); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w: %w", tg.ErrMaxRetries, lastErr)
}

func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	// Circuit breaker errors are not retryable
	if errors.Is(err, tg.ErrCircuitOpen) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *tg.APIError
	if errors.As(err, &apiErr) {
		// Rate limits surface to the dispatcher for rotation; only
		// transient server errors are retried inside one send.
		return apiErr.IsRetryable() && !apiErr.IsRateLimit()
	}

	return false
}

func calculateBackoff(cfg Config, attempt int, err error) time.Duration {
	var apiErr *tg.APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}

	backoff := float64(cfg.RetryBaseWait) * math.Pow(cfg.RetryFactor, float64(attempt-1))
	if backoff > float64(cfg.RetryMaxWait) {
		backoff = float64(cfg.RetryMaxWait)
	}

	// Add jitter
	jitterRange := int64(backoff * 0.2)
	if jitterRange > 0 {
		jitter, err := rand.Int(rand.Reader, big.NewInt(jitterRange*2))
		if err == nil {
			backoff += float64(jitter.Int64()) - float64(jitterRange)
		}
	}

	return time.Duration(backoff)
}

func parseMessage(resp *apiResponse) (*tg.Message, error) {
	var msg tg.Message
	if err := json.Unmarshal(resp.Result, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// isBreakerSuccess determines if an error should count as a circuit
// breaker failure. Only server errors (5xx) and network errors trip the
// breaker. Client errors (4xx) including 429 are NOT breaker failures:
// 429 is rate pressure, handled via rotation/retry_after, not service
// degradation.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *tg.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 400 && apiErr.Code < 500
	}
	// Context cancellation is not a service failure
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Network errors, timeouts → breaker failure
	return false
}

// parseRetryAfter extracts retry_after from JSON body (primary) or HTTP
// header (fallback).
func parseRetryAfter(apiResp *apiResponse, httpResp *http.Response) time.Duration {
	if apiResp.Parameters != nil && apiResp.Parameters.RetryAfter > 0 {
		return time.Duration(apiResp.Parameters.RetryAfter) * time.Second
	}

	if httpResp != nil {
		if retryHeader := httpResp.Header.Get("Retry-After"); retryHeader != "" {
			if seconds, err := strconv.Atoi(retryHeader); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return 0
}
