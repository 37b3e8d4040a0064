package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/tracing"
)

// Config configures a Client
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	RateLimit    float64 // requests per second, 0 = unlimited
}

// DefaultConfig returns the configuration used for zero fields
func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://localhost:8080",
		Timeout:      30 * time.Second,
		RetryMax:     3,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
	}
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.logger = log }
}

// WithTracer starts a span per request and propagates it in headers
func WithTracer(t *tracing.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithBreaker replaces the default circuit breaker
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// Client talks to an IPC debugger server. Reads are retried on transport
// errors and 5xx responses; operations that change state are sent once.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	tracer  *tracing.Tracer
	logger  *zap.Logger
}

// New creates a client for the server at cfg.BaseURL
func New(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryWaitMin == 0 {
		cfg.RetryWaitMin = def.RetryWaitMin
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = def.RetryWaitMax
	}

	c := &Client{
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  zap.NewNop(),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.New("ipc-debugger", resilience.Settings{
			Threshold: 5,
			Cooldown:  10 * time.Second,
			Probes:    2,
			IsSuccessful: func(err error) bool {
				return err == nil || IsDomainError(err)
			},
			OnStateChange: func(name string, from, to resilience.State) {
				c.logger.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to))
			},
		})
	}

	retry := retryablehttp.NewClient()
	retry.RetryMax = cfg.RetryMax
	retry.RetryWaitMin = cfg.RetryWaitMin
	retry.RetryWaitMax = cfg.RetryWaitMax
	retry.Logger = nil
	retry.CheckRetry = checkRetry
	retry.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c.resty = resty.NewWithClient(retry.StandardClient()).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "ipcctl/1.0").
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	return c
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

type idempotentKey struct{}

// checkRetry retries only requests marked idempotent. A blocking write that
// timed out on the wire may still have happened on the server.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if idem, _ := ctx.Value(idempotentKey{}).(bool); !idem {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// APIError is a failure reported by the server
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Kind    string `json:"kind"`
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
}

var kindErrors = map[string]error{
	"InvalidArgument": ipc.ErrInvalidArgument,
	"AccessViolation": ipc.ErrAccessViolation,
	"ResourceBusy":    ipc.ErrResourceBusy,
	"Closed":          ipc.ErrClosed,
	"Timeout":         ipc.ErrTimeout,
	"OutOfBounds":     ipc.ErrOutOfBounds,
	"Canceled":        ipc.ErrCanceled,
	"NotFound":        ipc.ErrNotFound,
}

// Unwrap maps the error kind back onto the ipc sentinel errors
func (e *APIError) Unwrap() error {
	return kindErrors[e.Kind]
}

// IsDomainError reports whether err is an answer about the simulation
// rather than a sign the server is unhealthy
func IsDomainError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status < http.StatusInternalServerError && apiErr.Status != http.StatusTooManyRequests
}

// call sends one request through the limiter and the breaker and decodes
// a successful response into out
func (c *Client) call(ctx context.Context, method, path string, body, out any, query map[string]string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	ctx = context.WithValue(ctx, idempotentKey{}, method == http.MethodGet)
	var span *tracing.Span
	status := 0
	if c.tracer != nil {
		ctx, span = c.tracer.Start(ctx, method+" "+path)
		defer func() { span.End(status) }()
	}

	err := c.breaker.Execute(func() error {
		apiErr := &APIError{}
		req := c.resty.R().SetContext(ctx).SetError(apiErr).SetQueryParams(query)
		tracing.Inject(ctx, req.Header)
		if body != nil {
			req.SetBody(body)
		}
		if out != nil {
			req.SetResult(out)
		}

		resp, err := req.Execute(method, path)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		status = resp.StatusCode()
		if resp.IsError() {
			apiErr.Status = resp.StatusCode()
			if apiErr.Message == "" {
				apiErr.Message = strings.TrimSpace(string(resp.Body()))
			}
			c.logger.Debug("Request rejected",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("status", apiErr.Status),
				zap.String("kind", apiErr.Kind))
			return apiErr
		}
		return nil
	})
	if err != nil && span != nil && status == 0 {
		span.Fail(err)
	}
	return err
}

// download streams a response body into w
func (c *Client) download(ctx context.Context, path string, query map[string]string, w io.Writer) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	ctx = context.WithValue(ctx, idempotentKey{}, true)

	return c.breaker.Execute(func() error {
		req := c.resty.R().SetContext(ctx).SetQueryParams(query).SetDoNotParseResponse(true)
		tracing.Inject(ctx, req.Header)
		resp, err := req.Get(path)
		if err != nil {
			return fmt.Errorf("GET %s: %w", path, err)
		}
		body := resp.RawBody()
		defer body.Close()

		if resp.IsError() {
			apiErr := &APIError{Status: resp.StatusCode()}
			data, _ := io.ReadAll(body)
			if err := sonic.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
				apiErr.Message = strings.TrimSpace(string(data))
			}
			return apiErr
		}
		_, err = io.Copy(w, body)
		return err
	})
}
