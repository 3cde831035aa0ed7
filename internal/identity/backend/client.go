// Package backend is the HTTP client for the remote registration backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/genialityco/gen-live-web-sub000/internal/identity/metrics"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/circuit"
	"github.com/genialityco/gen-live-web-sub000/pkg/requestcontext"
)

const (
	tracerName     = "github.com/genialityco/gen-live-web-sub000/internal/identity/backend"
	maxErrorBody   = 4 << 10
	defaultTimeout = 10 * time.Second

	requestIDHeader = "X-Request-ID"
	visitIDHeader   = "X-Visit-ID"
)

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token. The empty token sends no header.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Client calls the registration backend. Transport failures and 5xx replies
// are CodeUnavailable and count against the circuit breaker; while the
// breaker is open calls fail fast with the same code.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	tokens  TokenSource
	breaker *circuit.Breaker
	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(cl *Client) {
		if ts != nil {
			cl.tokens = ts
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(cl *Client) {
		if b != nil {
			cl.breaker = b
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cl *Client) {
		if tp != nil {
			cl.tracer = tp.Tracer(tracerName)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// New returns a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, dErrors.Newf(dErrors.CodeConfiguration, "invalid backend url %q", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
		tokens:  StaticToken(""),
		breaker: circuit.New("registration-backend"),
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// do sends one JSON request. out may be nil for replies without a body.
func (c *Client) do(ctx context.Context, op, method string, segments []string, in, out any) (err error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if err != nil {
			outcome = string(dErrors.CodeOf(err))
		}
		c.metrics.ObserveBackendCall(op, outcome, start)
	}()

	if !c.breaker.Allow() {
		return dErrors.New(dErrors.CodeUnavailable, "registration backend unavailable")
	}

	ctx, span := c.tracer.Start(ctx, "backend."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("backend.operation", op),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
	}()

	req, err := c.newRequest(ctx, method, segments, in)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.recordFailure(ctx, op)
		if errors.Is(err, context.DeadlineExceeded) {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "registration backend timed out")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "registration backend unreachable")
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= 500 {
		c.recordFailure(ctx, op)
		return dErrors.Newf(dErrors.CodeUnavailable, "registration backend returned %d", resp.StatusCode)
	}
	c.recordSuccess(ctx)

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "malformed registration backend response")
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method string, segments []string, in any) (*http.Request, error) {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.Join(segments, "/")
	u.RawPath = c.baseURL.EscapedPath() + "/" + strings.Join(escaped, "/")

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode backend request")
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build backend request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		req.Header.Set(requestIDHeader, reqID)
	}
	if visitID := requestcontext.VisitID(ctx); !visitID.IsNil() {
		req.Header.Set(visitIDHeader, visitID.String())
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "failed to obtain backend token")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func statusError(resp *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = json.Unmarshal(raw, &body)
	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("registration backend returned %d", resp.StatusCode)
	}

	code := dErrors.CodeBadRequest
	switch resp.StatusCode {
	case http.StatusNotFound:
		code = dErrors.CodeNotFound
	case http.StatusConflict:
		code = dErrors.CodeConflict
	case http.StatusUnauthorized:
		code = dErrors.CodeUnauthorized
	case http.StatusForbidden:
		code = dErrors.CodeForbidden
	case http.StatusTooManyRequests:
		code = dErrors.CodeTooManyRequests
	case http.StatusUnprocessableEntity:
		code = dErrors.CodeValidation
	}
	return dErrors.New(code, msg)
}

func (c *Client) recordFailure(ctx context.Context, op string) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.metrics.SetBreakerOpen(true)
		c.logger.WarnContext(ctx, "registration backend circuit opened",
			"breaker", c.breaker.Name(),
			"operation", op,
		)
	}
}

func (c *Client) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.metrics.SetBreakerOpen(false)
		c.logger.InfoContext(ctx, "registration backend circuit closed", "breaker", c.breaker.Name())
	}
}

func eventPath(eventID id.EventID, action string) []string {
	return []string{"events", eventID.String(), action}
}
