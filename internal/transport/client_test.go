package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphpager/internal/eventbus"
	"github.com/hanpama/graphpager/internal/events"
)

func newTestClient(url string, opts ...Option) *Client {
	opts = append([]Option{
		WithHTTPClient(http.DefaultClient),
		WithInitialBackoff(time.Millisecond),
	}, opts...)
	return New(url, opts...)
}

func TestDoPostsQuery(t *testing.T) {
	var got Request
	var auth, custom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		auth = r.Header.Get("Authorization")
		custom = r.Header.Get("X-Client")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"data":{"viewer":{"id":"1"}}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, WithBearerToken("secret"), WithHeader("X-Client", "graphpager"))
	payload, err := c.Do(context.Background(), "viewer", "{ viewer { id } }")
	require.NoError(t, err)

	assert.Equal(t, "{ viewer { id } }", got.Query)
	assert.Equal(t, "bearer secret", auth)
	assert.Equal(t, "graphpager", custom)
	data := payload.(map[string]any)["data"].(map[string]any)
	assert.Equal(t, "1", data["viewer"].(map[string]any)["id"])
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Do(context.Background(), "q", "{ a }")
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestDoRetriesRateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, WithMaxRetries(2)).Do(context.Background(), "q", "{ a }")
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusTooManyRequests, serr.StatusCode)
	assert.EqualValues(t, 3, calls.Load())
}

func TestDoClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad credentials"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Do(context.Background(), "q", "{ a }")
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusUnauthorized, serr.StatusCode)
	assert.Equal(t, "bad credentials", serr.Body)
	assert.EqualValues(t, 1, calls.Load())
}

func TestDoGraphQLErrorsWithoutData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"boom"},{"message":"bang"}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Do(context.Background(), "q", "{ a }")
	var rerr *ResponseError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, []string{"boom", "bang"}, rerr.Messages)
}

func TestDoPartialDataIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"a":1},"errors":[{"message":"partial"}]}`))
	}))
	defer srv.Close()

	payload, err := newTestClient(srv.URL).Do(context.Background(), "q", "{ a }")
	require.NoError(t, err)
	assert.NotNil(t, payload.(map[string]any)["data"])
}

func TestDoMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Do(context.Background(), "q", "{ a }")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestDoWithoutEndpoint(t *testing.T) {
	_, err := New("").Do(context.Background(), "q", "{ a }")
	assert.True(t, errors.Is(err, ErrNoEndpoint))
}

func TestDoPublishesEvents(t *testing.T) {
	bus := eventbus.New()
	var starts []events.HTTPStart
	var finishes []events.HTTPFinish
	eventbus.SubscribeTo(bus, func(_ context.Context, e events.HTTPStart) { starts = append(starts, e) })
	eventbus.SubscribeTo(bus, func(_ context.Context, e events.HTTPFinish) { finishes = append(finishes, e) })
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Do(context.Background(), "characters", "{ a }")
	require.NoError(t, err)

	require.Len(t, starts, 2)
	require.Len(t, finishes, 2)
	assert.Equal(t, "characters", starts[0].Query)
	assert.Equal(t, 1, starts[0].Attempt)
	assert.Equal(t, 2, starts[1].Attempt)
	assert.Equal(t, http.StatusServiceUnavailable, finishes[0].Status)
	assert.Error(t, finishes[0].Err)
	assert.Equal(t, http.StatusOK, finishes[1].Status)
	assert.NoError(t, finishes[1].Err)
}
