package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hanpama/graphpager/internal/eventbus"
	"github.com/hanpama/graphpager/internal/events"
	"github.com/hanpama/graphpager/internal/logging"
	"github.com/hanpama/graphpager/internal/query"
)

// maxErrorBody bounds how much of a failed response is kept in a StatusError.
const maxErrorBody = 4 << 10

// Request is the JSON body posted to the endpoint.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Client posts rendered queries to a GraphQL endpoint and returns the decoded
// response payload.
type Client struct {
	endpoint string
	opts     *Options
	http     *http.Client
}

func New(endpoint string, opts ...Option) *Client {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &Client{endpoint: endpoint, opts: o, http: hc}
}

// Do sends text and returns the decoded body. Network failures, 429 and 5xx
// answers are retried with exponential backoff; everything else fails at once.
func (c *Client) Do(ctx context.Context, name, text string) (any, error) {
	if c.endpoint == "" {
		return nil, ErrNoEndpoint
	}
	body, err := json.Marshal(Request{Query: text})
	if err != nil {
		return nil, fmt.Errorf("transport: encode request: %w", err)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.opts.InitialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(max(0, c.opts.MaxRetries))), ctx)

	var payload any
	attempt := 0
	op := func() error {
		attempt++
		p, err := c.attempt(ctx, name, body, attempt)
		if err != nil {
			return err
		}
		payload = p
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logging.Ctx(ctx).Warn().Err(err).Str("query", name).Int("attempt", attempt).Dur("wait", wait).Msg("retrying query")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) attempt(ctx context.Context, name string, body []byte, attempt int) (payload any, err error) {
	status := 0
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Query: name, Endpoint: c.endpoint, Attempt: attempt})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{
			Query:    name,
			Endpoint: c.endpoint,
			Attempt:  attempt,
			Status:   status,
			Err:      err,
			Duration: time.Since(start),
		})
	}()

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("transport: build request: %w", err))
	}
	for k, vs := range c.opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		serr := &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}

	payload, err = query.DecodeResponse(raw)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("transport: decode response: %w", err))
	}
	if rerr := graphQLErrors(payload); rerr != nil {
		return nil, backoff.Permanent(rerr)
	}
	return payload, nil
}

// graphQLErrors reports errors only when the response has no data at all;
// partial data is left to the scan.
func graphQLErrors(payload any) error {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	if data, ok := obj["data"]; ok && data != nil {
		return nil
	}
	list, ok := obj["errors"].([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	rerr := &ResponseError{}
	for _, e := range list {
		if m, ok := e.(map[string]any); ok {
			if msg, ok := m["message"].(string); ok {
				rerr.Messages = append(rerr.Messages, msg)
			}
		}
	}
	return rerr
}
