// Package httpclient is the fasthttp-based client shared by the registry and
// IBGE adapters. Non-2xx answers become *domain.RemoteError.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/ecoleta/internal/core/domain"
	"github.com/samirrijal/ecoleta/internal/pkg/metrics"
)

var tracer = otel.Tracer("github.com/samirrijal/ecoleta/internal/pkg/httpclient")

const userAgent = "ecoleta-gateway/1.0"

// Client issues requests against one upstream service.
type Client struct {
	service string
	baseURL string
	timeout time.Duration
	http    *fasthttp.Client
}

// New creates a client for service rooted at baseURL.
func New(service, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http: &fasthttp.Client{
			Name:                userAgent,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

// URL joins path onto the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Request is a prepared upstream call.
type Request struct {
	Method      string
	Path        string
	Args        *fasthttp.Args
	ContentType string
	Body        []byte
}

// GetJSON issues a GET and decodes the JSON answer into dst.
func (c *Client) GetJSON(ctx context.Context, op, path string, args *fasthttp.Args, dst any) error {
	body, err := c.Do(ctx, op, Request{Method: fasthttp.MethodGet, Path: path, Args: args})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &domain.RemoteError{Service: c.service, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// Do sends r and returns the response body of a 2xx answer. The call returns
// as soon as ctx is done; the abandoned exchange finishes in the background.
func (c *Client) Do(ctx context.Context, op string, r Request) (body []byte, err error) {
	ctx, span := tracer.Start(ctx, c.service+"."+op)
	start := time.Now()
	defer func() {
		metrics.ObserveUpstream(c.service, op, start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Not pooled: an abandoned exchange may still be using them.
	req := &fasthttp.Request{}
	resp := &fasthttp.Response{}

	uri := c.URL(r.Path)
	if r.Args != nil && r.Args.Len() > 0 {
		uri += "?" + r.Args.String()
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(r.Method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if r.ContentType != "" {
		req.Header.SetContentType(r.ContentType)
	}
	if r.Body != nil {
		req.SetBodyRaw(r.Body)
	}
	span.SetAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("http.url", uri),
	)

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	errc := make(chan error, 1)
	go func() { errc <- c.http.DoDeadline(req, resp, deadline) }()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errc:
		if err != nil {
			return nil, &domain.RemoteError{Service: c.service, Op: op, Err: err}
		}
	}

	status := resp.StatusCode()
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status < 200 || status > 299 {
		return nil, &domain.RemoteError{Service: c.service, Op: op, StatusCode: status, Err: upstreamMessage(resp.Body())}
	}
	return append([]byte(nil), resp.Body()...), nil
}

// upstreamMessage extracts {"error"|"message": "..."} from an error body.
func upstreamMessage(body []byte) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			return fmt.Errorf("%s", payload.Message)
		case payload.Error != "":
			return fmt.Errorf("%s", payload.Error)
		}
	}
	return nil
}
