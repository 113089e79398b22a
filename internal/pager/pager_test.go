package pager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphpager/internal/query"
)

// fakeDoer answers with the first response whose key is contained in the
// query text.
type fakeDoer struct {
	mu        sync.Mutex
	responses []response
	sent      []string
	delay     time.Duration
}

type response struct {
	match string
	body  string
	err   error
}

func (f *fakeDoer) Do(ctx context.Context, name, text string) (any, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	for _, r := range f.responses {
		if strings.Contains(text, r.match) {
			if r.err != nil {
				return nil, r.err
			}
			return query.DecodeResponse([]byte(r.body))
		}
	}
	return nil, errors.New("no canned response for " + name)
}

func issuesQuery(fn query.PerNodeFunc) *query.Query {
	repo := &query.Node{ID: "R1", Type: "Repository"}
	root := query.NewGroup("issues", query.Elements(query.IDField, query.NewField("title")), query.WithPaging(query.First(2, true)))
	opts := []query.Option{query.WithParent(repo), query.WithoutRateCheck()}
	if fn != nil {
		opts = append(opts, query.WithPerNode(fn))
	}
	return query.New("issues", root, opts...)
}

var issuePages = []response{
	{match: `after: "c2"`, body: `{"data":{"node":{"issues":{
		"edges":[{"node":{"id":"I3","__typename":"Issue","title":"c"},"cursor":"c3"}],
		"pageInfo":{"hasNextPage":false}}}}}`},
	{match: `issues(first: 2)`, body: `{"data":{"node":{"issues":{
		"edges":[
			{"node":{"id":"I1","__typename":"Issue","title":"a"},"cursor":"c1"},
			{"node":{"id":"I2","__typename":"Issue","title":"b"},"cursor":"c2"}],
		"pageInfo":{"hasNextPage":true}}}}}`},
}

func TestRunFollowsContinuations(t *testing.T) {
	var got []string
	handler := func(_ context.Context, out query.Output) error {
		if out.Kind == query.OutputNode {
			got = append(got, out.Node.ID)
		} else {
			got = append(got, out.Kind.String())
		}
		return nil
	}
	doer := &fakeDoer{responses: issuePages}

	stats, err := New(doer, WithHandler(handler)).Run(context.Background(), issuesQuery(nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"I1", "I2", "pageComplete", "I3", "pageComplete", "queryComplete"}, got)
	assert.Equal(t, 2, stats.Queries)
	assert.Equal(t, 2, stats.Waves)
	assert.Equal(t, 3, stats.Nodes)
	assert.NotEmpty(t, stats.RunID)
	require.Len(t, doer.sent, 2)
	assert.Contains(t, doer.sent[1], `node(id: "R1")`)
}

func TestRunPrefersQueryCallback(t *testing.T) {
	var own, fallback int
	q := issuesQuery(func(_ context.Context, out query.Output) error {
		if out.Kind == query.OutputNode {
			own++
		}
		return nil
	})
	handler := func(context.Context, query.Output) error { fallback++; return nil }

	_, err := New(&fakeDoer{responses: issuePages}, WithHandler(handler)).Run(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 3, own)
	assert.Zero(t, fallback)
}

func TestRunSerializesCallbacks(t *testing.T) {
	var inside atomic.Int32
	var overlapped atomic.Bool
	handler := func(context.Context, query.Output) error {
		if inside.Add(1) > 1 {
			overlapped.Store(true)
		}
		time.Sleep(time.Millisecond)
		inside.Add(-1)
		return nil
	}
	doer := &fakeDoer{responses: issuePages, delay: time.Millisecond}

	queries := make([]*query.Query, 8)
	for i := range queries {
		queries[i] = issuesQuery(nil)
	}
	stats, err := New(doer, WithHandler(handler), WithConcurrency(8)).Run(context.Background(), queries...)
	require.NoError(t, err)
	assert.False(t, overlapped.Load(), "callbacks ran concurrently")
	assert.Equal(t, 16, stats.Queries)
	assert.Equal(t, 24, stats.Nodes)
}

func TestRunStopsOnTransportError(t *testing.T) {
	boom := errors.New("boom")
	doer := &fakeDoer{responses: []response{{match: "issues", err: boom}}}

	stats, err := New(doer).Run(context.Background(), issuesQuery(nil))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `query "issues"`)
	assert.Equal(t, 1, stats.Queries)
}

func TestRunReportsAPIError(t *testing.T) {
	doer := &fakeDoer{responses: []response{{match: "issues", body: `{"data":{"node":null}}`}}}

	_, err := New(doer).Run(context.Background(), issuesQuery(nil))
	var apiErr *query.APIError
	require.ErrorAs(t, err, &apiErr)
}

func TestRunTracksRateLimit(t *testing.T) {
	root := query.NewGroup("viewer", query.Elements(query.IDField))
	body := `{"data":{"viewer":{"id":"U1","__typename":"User"},
		"rateLimit":{"limit":5000,"cost":1,"remaining":4999,"resetAt":"2026-01-01T00:00:00Z","nodeCount":1}}}`
	doer := &fakeDoer{responses: []response{{match: "viewer", body: body}}}

	stats, err := New(doer).Run(context.Background(), query.New("viewer", root))
	require.NoError(t, err)
	require.NotNil(t, stats.RateLimit)
	assert.Equal(t, 4999, stats.RateLimit.Remaining)
	assert.Equal(t, "2026-01-01T00:00:00Z", stats.RateLimit.ResetAt)
	assert.Contains(t, doer.sent[0], "rateLimit { limit cost remaining resetAt nodeCount }")
}

func TestRunRateFloor(t *testing.T) {
	repo := &query.Node{ID: "R1", Type: "Repository"}
	root := query.NewGroup("issues", query.Elements(query.IDField), query.WithPaging(query.First(1, true)))
	q := query.New("issues", root, query.WithParent(repo))
	doer := &fakeDoer{responses: []response{{match: "issues", body: `{"data":{
		"node":{"issues":{"edges":[{"node":{"id":"I1","__typename":"Issue"},"cursor":"c1"}],"pageInfo":{"hasNextPage":true}}},
		"rateLimit":{"limit":100,"cost":1,"remaining":3,"resetAt":"soon","nodeCount":1}}}`}}}

	stats, err := New(doer, WithRateFloor(10)).Run(context.Background(), q)
	require.ErrorIs(t, err, ErrRateExhausted)
	assert.Equal(t, 1, stats.Queries)
	assert.Equal(t, 1, stats.Nodes)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := New(&fakeDoer{responses: issuePages}).Run(ctx, issuesQuery(nil))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Queries)
}
