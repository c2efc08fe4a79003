// Package httpretry sends HTTP requests with a connectivity pre-check and
// exponential backoff between failed attempts.
package httpretry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
	"github.com/colmadogutierrez/debtbook/pkg/netprobe"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Doer is the request surface consumed by API clients.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Requester retries failed requests. A 2xx response is returned with its body
// unread; any other outcome after the last attempt is returned as a typed error.
type Requester struct {
	httpClient  *http.Client
	probe       netprobe.Prober
	maxAttempts int
	baseDelay   time.Duration
	newBackoff  func() retry.Backoff
	logg        *logger.Logger
}

// Option configures optional requester behavior.
type Option func(*Requester)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Requester) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// WithMaxAttempts sets the total number of attempts (not retries).
func WithMaxAttempts(n int) Option {
	return func(r *Requester) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the wait before the second attempt; later waits double.
func WithBaseDelay(d time.Duration) Option {
	return func(r *Requester) {
		if d > 0 {
			r.baseDelay = d
		}
	}
}

// WithBackoff replaces the backoff policy. The factory is called once per request.
func WithBackoff(factory func() retry.Backoff) Option {
	return func(r *Requester) {
		if factory != nil {
			r.newBackoff = factory
		}
	}
}

// WithLogger enables per-attempt warnings.
func WithLogger(logg *logger.Logger) Option {
	return func(r *Requester) {
		r.logg = logg
	}
}

func New(probe netprobe.Prober, opts ...Option) *Requester {
	r := &Requester{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		probe:       probe,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.probe == nil {
		r.probe = netprobe.Static(true)
	}
	if r.newBackoff == nil {
		r.newBackoff = r.exponential
	}
	return r
}

func (r *Requester) exponential() retry.Backoff {
	return retry.WithMaxRetries(uint64(r.maxAttempts-1), retry.NewExponential(r.baseDelay))
}

// Do sends req up to maxAttempts times. Accept is always application/json and
// PATCH requests are sent with a JSON content type.
func (r *Requester) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	body, err := bufferBody(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "buffer request body")
	}

	attempt := 0
	var resp *http.Response
	err = retry.Do(ctx, r.newBackoff(), func(ctx context.Context) error {
		attempt++
		out, attemptErr := r.attempt(ctx, req, body)
		if attemptErr != nil {
			r.warn(ctx, req, attempt, attemptErr)
			return retry.RetryableError(attemptErr)
		}
		resp = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *Requester) attempt(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	if !r.probe.Online(ctx) {
		return nil, pkgerrors.New(pkgerrors.CodeNetwork, "no network connection")
	}

	out := req.Clone(ctx)
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.ContentLength = int64(len(body))
	}
	out.Header.Set("Accept", "application/json")
	if out.Method == http.MethodPatch {
		out.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(out)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, fmt.Sprintf("%s %s", req.Method, req.URL.Path))
	}
	if err := googleapi.CheckResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, classify(resp.StatusCode, err)
	}
	return resp, nil
}

func (r *Requester) warn(ctx context.Context, req *http.Request, attempt int, err error) {
	if r.logg == nil {
		return
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"method":       req.Method,
		"path":         req.URL.Path,
		"attempt":      attempt,
		"max_attempts": r.maxAttempts,
		"error":        err.Error(),
	})
	r.logg.Warn(ctx, "remote request attempt failed")
}

// RemoteFailure describes a non-2xx answer from the remote API.
type RemoteFailure struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

func classify(status int, err error) error {
	failure := RemoteFailure{Status: status}
	if apiErr, ok := err.(*googleapi.Error); ok {
		failure.Message = apiErr.Message
		if failure.Message == "" {
			failure.Message = http.StatusText(status)
		}
	}
	msg := fmt.Sprintf("remote request failed with status %d", status)
	if failure.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, failure.Message)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg).WithDetails(failure)
	}
	return pkgerrors.Wrap(pkgerrors.CodeRemoteAPI, err, msg).WithDetails(failure)
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}
