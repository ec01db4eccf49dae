package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	errs "buildsite/pkg/errors"
	"buildsite/pkg/logger"
	"buildsite/pkg/retry"
)

// errAttemptTimeout is the cancellation cause attached to an attempt whose
// own timer fired. It is how an attempt timeout is told apart from a caller
// cancelling the parent context.
var errAttemptTimeout = errors.New("fetch: attempt timed out")

// maxDrainBytes bounds how much of a discarded response body is read so the
// connection can be reused
const maxDrainBytes = 64 * 1024

// NoRetries disables retries when set as Options.MaxRetries or
// RequestSpec.MaxRetries. Zero means "use the default".
const NoRetries = -1

// HeaderRequestID carries the inbound request id to the backend
const HeaderRequestID = "X-Request-ID"

// Doer issues a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options holds client-wide defaults applied to every RequestSpec
type Options struct {
	// BaseURL is prepended to relative request URLs
	BaseURL string
	// Timeout bounds a single attempt
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt. Zero uses
	// the default of 3; NoRetries (any negative value) disables retries.
	MaxRetries int
	// RetryDelay is the exponential backoff base
	RetryDelay time.Duration
	// RetryableStatuses triggers a retry when returned by the server
	RetryableStatuses map[int]bool
	// Header is sent with every request unless the spec overrides it
	Header http.Header
	// HTTPClient performs the requests; defaults to a plain *http.Client
	HTTPClient Doer
}

// DefaultOptions returns the documented defaults: 30s per attempt, 3
// retries, 1s backoff base and the standard retryable status set
func DefaultOptions() Options {
	return Options{
		Timeout:           30 * time.Second,
		MaxRetries:        3,
		RetryDelay:        1 * time.Second,
		RetryableStatuses: errs.DefaultRetryableStatuses(),
	}
}

// RequestSpec describes one logical call. It is treated as read-only once
// Execute starts; every attempt is built from the same spec.
type RequestSpec struct {
	URL    string
	Method string
	Header http.Header
	// Body is replayed from the start on each attempt
	Body []byte

	// Timeout bounds a single attempt, not the whole sequence; zero uses the client default
	Timeout time.Duration
	// MaxRetries counts retries after the first attempt. Zero uses the client
	// default; NoRetries (any negative value) makes exactly one attempt.
	MaxRetries int
	// RetryDelay is the exponential backoff base; zero uses the client default
	RetryDelay time.Duration
	// RetryableStatuses overrides the client's set when non-nil
	RetryableStatuses map[int]bool
}

// Client executes RequestSpecs with a per-attempt timeout, outcome
// classification and bounded retries. It holds no per-call state and is safe
// for concurrent use.
type Client struct {
	opts   Options
	doer   Doer
	logger logger.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new fetch client. Zero option fields fall back to
// DefaultOptions.
func NewClient(opts Options, log logger.Logger) *Client {
	defaults := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = defaults.MaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaults.RetryDelay
	}
	if opts.RetryableStatuses == nil {
		opts.RetryableStatuses = defaults.RetryableStatuses
	}
	if log == nil {
		log = logger.GetLogger()
	}

	doer := opts.HTTPClient
	if doer == nil {
		doer = &http.Client{}
	}

	return &Client{
		opts:   opts,
		doer:   doer,
		logger: log.WithField("component", "fetch"),
		sleep:  retry.Wait,
	}
}

// NewRequest returns a spec carrying the client defaults for method and url
func (c *Client) NewRequest(method, url string) RequestSpec {
	return RequestSpec{
		URL:        url,
		Method:     method,
		Timeout:    c.opts.Timeout,
		MaxRetries: retriesOrNone(c.opts.MaxRetries),
		RetryDelay: c.opts.RetryDelay,
	}
}

// retriesOrNone maps an effective retry count back to the RequestSpec encoding
func retriesOrNone(n int) int {
	if n == 0 {
		return NoRetries
	}
	return n
}

// Options returns the defaults the client was built with
func (c *Client) Options() Options {
	return c.opts
}

// Execute runs the attempt loop for spec and returns the final response
// unconsumed; the caller must close its body. Non-2xx statuses outside the
// retryable set are returned, not turned into errors. Errors are either a
// classified *errors.Error (timeout or network unreachable once retries are
// spent) or the caller's cancellation, returned unchanged.
func (c *Client) Execute(ctx context.Context, spec RequestSpec) (*http.Response, error) {
	spec = c.withDefaults(spec)

	target, err := c.resolveURL(spec.URL)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		outcome := c.attempt(ctx, spec, target)

		switch Decide(outcome, attempt, spec.MaxRetries) {
		case DecisionReturn:
			return outcome.(Success).Response, nil

		case DecisionAbort:
			return nil, outcome.(FatalFailure).Err

		case DecisionExhausted:
			return c.exhausted(spec, target, attempt, outcome.(RetryableFailure))

		case DecisionRetry:
			failure := outcome.(RetryableFailure)
			delay := c.backoffDelay(spec, attempt, failure)

			fields := map[string]interface{}{
				"method":      spec.Method,
				"url":         target,
				"attempt":     attempt + 1,
				"max_retries": spec.MaxRetries,
				"delay":       delay,
				"reason":      string(failure.Reason),
			}
			if failure.Response != nil {
				fields["status"] = failure.Response.StatusCode
				discard(failure.Response)
			}
			if failure.Err != nil {
				fields["error"] = failure.Err.Error()
			}
			c.logger.WarnWithFields("retrying request", fields)

			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}
}

// attempt performs one network call bounded by spec.Timeout and classifies it
func (c *Client) attempt(ctx context.Context, spec RequestSpec, target string) Outcome {
	if err := ctx.Err(); err != nil {
		return FatalFailure{Err: context.Cause(ctx)}
	}

	attemptCtx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(spec.Timeout, func() { cancel(errAttemptTimeout) })

	var body io.Reader
	if spec.Body != nil {
		body = bytes.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, spec.Method, target, body)
	if err != nil {
		timer.Stop()
		cancel(nil)
		return FatalFailure{Err: fmt.Errorf("failed to create request for %s: %w", target, err)}
	}
	c.applyHeaders(ctx, req, spec.Header)

	start := time.Now()
	resp, err := c.doer.Do(req)
	// the timer only guards the wait for a response; reading the body is the caller's business
	stopped := timer.Stop()
	duration := time.Since(start)

	if err != nil {
		cancel(nil)
		if ctx.Err() != nil {
			return FatalFailure{Err: err}
		}
		if errors.Is(context.Cause(attemptCtx), errAttemptTimeout) {
			return RetryableFailure{Reason: ReasonAttemptTimeout, Err: err}
		}
		return RetryableFailure{Reason: ReasonNetworkError, Err: err}
	}

	if !stopped {
		// the timer fired as the response arrived; the body is already cancelled
		discard(resp)
		cancel(nil)
		return RetryableFailure{Reason: ReasonAttemptTimeout, Err: context.Cause(attemptCtx)}
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: func() { cancel(nil) }}
	logger.LogRequest(c.logger, spec.Method, target, resp.StatusCode, duration)

	if !errs.IsSuccessStatus(resp.StatusCode) && spec.RetryableStatuses[resp.StatusCode] {
		return RetryableFailure{Reason: ReasonRetryableStatus, Response: resp}
	}
	return Success{Response: resp}
}

// exhausted turns a retryable failure on the final attempt into the result
func (c *Client) exhausted(spec RequestSpec, target string, attempt int, failure RetryableFailure) (*http.Response, error) {
	fields := map[string]interface{}{
		"method":   spec.Method,
		"url":      target,
		"attempts": attempt + 1,
		"reason":   string(failure.Reason),
	}

	switch failure.Reason {
	case ReasonRetryableStatus:
		fields["status"] = failure.Response.StatusCode
		c.logger.WarnWithFields("retries exhausted, returning last response", fields)
		return failure.Response, nil
	case ReasonAttemptTimeout:
		c.logger.ErrorWithFields("request timed out", fields)
		return nil, errs.NewTimeout(target, failure.Err)
	default:
		c.logger.ErrorWithFields("backend unreachable", fields)
		return nil, errs.NewNetworkUnreachable(target, failure.Err)
	}
}

// backoffDelay returns the wait before the retry that follows attempt. A 429
// carrying Retry-After seconds uses that value; everything else doubles from
// RetryDelay.
func (c *Client) backoffDelay(spec RequestSpec, attempt int, failure RetryableFailure) time.Duration {
	if failure.Response != nil && failure.Response.StatusCode == http.StatusTooManyRequests {
		if delay, ok := retry.RetryAfter(failure.Response.Header); ok {
			return delay
		}
	}

	backoff := &retry.ExponentialBackoff{
		BaseDelay:  spec.RetryDelay,
		Multiplier: 2.0,
	}
	return backoff.NextDelay(attempt + 1)
}

func (c *Client) withDefaults(spec RequestSpec) RequestSpec {
	if spec.Method == "" {
		spec.Method = http.MethodGet
	}
	if spec.Timeout <= 0 {
		spec.Timeout = c.opts.Timeout
	}
	switch {
	case spec.MaxRetries == 0:
		spec.MaxRetries = c.opts.MaxRetries
	case spec.MaxRetries < 0:
		spec.MaxRetries = 0
	}
	if spec.RetryDelay <= 0 {
		spec.RetryDelay = c.opts.RetryDelay
	}
	if spec.RetryableStatuses == nil {
		spec.RetryableStatuses = c.opts.RetryableStatuses
	}
	return spec
}

func (c *Client) resolveURL(raw string) (string, error) {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw, nil
	}
	if c.opts.BaseURL == "" {
		return "", fmt.Errorf("relative URL %q requires a client base URL", raw)
	}
	return strings.TrimRight(c.opts.BaseURL, "/") + "/" + strings.TrimLeft(raw, "/"), nil
}

func (c *Client) applyHeaders(ctx context.Context, req *http.Request, header http.Header) {
	for key, values := range c.opts.Header {
		req.Header[key] = append([]string(nil), values...)
	}
	for key, values := range header {
		req.Header[key] = append([]string(nil), values...)
	}
	if req.Header.Get(HeaderRequestID) == "" {
		if id, ok := RequestIDFromContext(ctx); ok {
			req.Header.Set(HeaderRequestID, id)
		}
	}
}

// cancelOnClose releases the attempt context once the caller is done with
// the body
type cancelOnClose struct {
	io.ReadCloser
	cancel func()
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// discard drains a little of the body and closes it
func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
}

type requestIDKey struct{}

// WithRequestID stores an inbound request id so outbound calls forward it
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored by WithRequestID
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}
