// Package client talks to the forms service: it fetches persisted schemas and
// delivers submissions. Failed fetches are retried with exponential backoff.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-formrules/internal/logging"
	"github.com/goliatone/go-formrules/pkg/schema"
	"github.com/goliatone/go-formrules/pkg/submission"
	"github.com/goliatone/go-formrules/pkg/validation"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRetries   = 3
	defaultInterval  = 200 * time.Millisecond
	maxResponseBytes = 4 << 20
	userAgent        = "go-formrules"
)

var (
	// ErrFormNotFound is returned by FetchForm when the service has no such form.
	ErrFormNotFound = errors.New("client: form not found")
	// ErrUnexpectedStatus wraps non-retryable statuses the client does not interpret.
	ErrUnexpectedStatus = errors.New("client: unexpected status")
)

// TransportError reports a failure to reach the service or a 5xx answer.
// Transport errors are retried before they surface.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("client: %s: server returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("client: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports that the request may succeed when retried.
func (e *TransportError) Temporary() bool {
	return true
}

// ServerValidationError carries the field-level rejections the service
// returned for a submission.
type ServerValidationError struct {
	StatusCode int
	Issues     []validation.ServerIssue
}

func (e *ServerValidationError) Error() string {
	return fmt.Sprintf("client: submission rejected (%d) with %d issue(s)", e.StatusCode, len(e.Issues))
}

// ServerIssues exposes the rejections for server error mapping.
func (e *ServerValidationError) ServerIssues() []validation.ServerIssue {
	out := make([]validation.ServerIssue, len(e.Issues))
	copy(out, e.Issues)
	return out
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithLogger routes retry and failure diagnostics to logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logging.OrNop(logger)
	}
}

// WithRetry sets how many times a failed schema fetch is retried and the
// first backoff interval. Zero retries disables retrying. Submissions are
// never retried.
func WithRetry(retries uint64, initial time.Duration) Option {
	return func(c *Client) {
		c.retries = retries
		if initial > 0 {
			c.interval = initial
		}
	}
}

// Client is safe for concurrent use.
type Client struct {
	base     string
	http     *http.Client
	token    string
	logger   logging.Logger
	retries  uint64
	interval time.Duration
	fetches  singleflight.Group
}

// New returns a client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("client: invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("client: base url %q must be absolute", baseURL)
	}

	c := &Client{
		base:     strings.TrimRight(parsed.String(), "/"),
		http:     &http.Client{Timeout: defaultTimeout},
		logger:   logging.Nop(),
		retries:  defaultRetries,
		interval: defaultInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// FetchForm loads the schema stored under formID. Concurrent fetches of the
// same form share one request. The shared request is bounded by the client
// timeout, not by any one caller: a caller whose ctx ends stops waiting
// without failing the others.
func (c *Client) FetchForm(ctx context.Context, formID string) (schema.FormSchema, error) {
	formID = strings.TrimSpace(formID)
	if formID == "" {
		return schema.FormSchema{}, errors.New("client: form id is required")
	}
	if err := ctx.Err(); err != nil {
		return schema.FormSchema{}, err
	}

	results := c.fetches.DoChan(formID, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout())
		defer cancel()
		return c.fetchForm(fetchCtx, formID)
	})

	select {
	case <-ctx.Done():
		return schema.FormSchema{}, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return schema.FormSchema{}, res.Err
		}
		return res.Val.(schema.FormSchema).Clone(), nil
	}
}

// fetchTimeout bounds a shared fetch across every attempt and backoff wait.
func (c *Client) fetchTimeout() time.Duration {
	perAttempt := c.http.Timeout
	if perAttempt <= 0 {
		perAttempt = defaultTimeout
	}
	return perAttempt * time.Duration(c.retries+1)
}

func (c *Client) fetchForm(ctx context.Context, formID string) (schema.FormSchema, error) {
	endpoint := c.formURL(formID)
	status, body, err := c.do(ctx, "fetch form", http.MethodGet, endpoint, nil, "", c.retries)
	if err != nil {
		return schema.FormSchema{}, err
	}

	switch {
	case status == http.StatusOK:
	case status == http.StatusNotFound:
		return schema.FormSchema{}, fmt.Errorf("%w: %s", ErrFormNotFound, formID)
	default:
		return schema.FormSchema{}, fmt.Errorf("%w: fetch form %s: %d", ErrUnexpectedStatus, formID, status)
	}

	form, err := schema.Parse(body, endpoint)
	if err != nil {
		return schema.FormSchema{}, fmt.Errorf("client: %w", err)
	}
	if form.ID == "" {
		form.ID = formID
	}
	return form, nil
}

// Submit delivers req, as JSON or as multipart when files are attached. A
// 400 or 422 answer becomes a *ServerValidationError. Submissions are sent
// once: a network failure or 5xx answer surfaces as a *TransportError for the
// caller to retry, since the service may already have stored the request.
func (c *Client) Submit(ctx context.Context, req submission.Request, files []submission.FilePayload) error {
	if strings.TrimSpace(req.FormID) == "" {
		return errors.New("client: submission has no form id")
	}
	payload, err := submission.Encode(req, files)
	if err != nil {
		return err
	}

	endpoint := c.formURL(req.FormID) + "/submissions"
	status, body, err := c.do(ctx, "submit", http.MethodPost, endpoint, payload.Body, payload.ContentType, 0)
	if err != nil {
		return err
	}

	switch {
	case status >= 200 && status < 300:
		c.logger.Debugw("submission accepted", "form", req.FormID, "status", status, "answers", len(req.Answers))
		return nil
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return &ServerValidationError{StatusCode: status, Issues: decodeIssues(body)}
	default:
		return fmt.Errorf("%w: submit %s: %d", ErrUnexpectedStatus, req.FormID, status)
	}
}

func (c *Client) formURL(formID string) string {
	return c.base + "/forms/" + url.PathEscape(formID)
}

// do performs one logical request, retrying network failures and 5xx answers
// up to retries times. It returns the final status and body for every non-5xx
// answer.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, contentType string, retries uint64) (int, []byte, error) {
	var (
		status  int
		payload []byte
	)

	attempt := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("client: %s: build request: %w", op, err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			return &TransportError{Op: op, Err: err}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			return &TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
		}
		if resp.StatusCode >= 500 {
			return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
		}
		status, payload = resp.StatusCode, data
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.interval
	policy.MaxElapsedTime = 0
	strategy := backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx)

	notify := func(err error, wait time.Duration) {
		c.logger.Warnw("retrying request", "op", op, "url", endpoint, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(attempt, strategy, notify); err != nil {
		var transport *TransportError
		if errors.As(err, &transport) {
			c.logger.Errorw("request failed", "op", op, "url", endpoint, "error", err)
		}
		return 0, nil, err
	}
	return status, payload, nil
}

type issuesDocument struct {
	Errors []struct {
		Path    string `json:"path"`
		Message string `json:"message"`
	} `json:"errors"`
}

// decodeIssues reads {errors:[{path,message}]}. A body in any other shape
// becomes a single form-level issue.
func decodeIssues(body []byte) []validation.ServerIssue {
	var doc issuesDocument
	if err := json.Unmarshal(body, &doc); err == nil && len(doc.Errors) > 0 {
		issues := make([]validation.ServerIssue, 0, len(doc.Errors))
		for _, entry := range doc.Errors {
			message := strings.TrimSpace(entry.Message)
			if message == "" {
				continue
			}
			issues = append(issues, validation.ServerIssue{Path: strings.TrimSpace(entry.Path), Message: message})
		}
		if len(issues) > 0 {
			return issues
		}
	}

	message := strings.TrimSpace(string(body))
	if message == "" || strings.HasPrefix(message, "{") {
		message = "submission rejected"
	}
	return []validation.ServerIssue{{Message: message}}
}
