package twitter

import (
	"context"
	"errors"
	"testing"
	"time"

	xclient "github.com/anatolykoptev/go-twitter"
	"github.com/mohammad-safakhou/tweetsense/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimeline struct {
	tweets    []*xclient.Tweet
	err       error
	calls     int
	lastQuery string
	lastCount int
}

func (f *fakeTimeline) SearchTimeline(_ context.Context, query string, count int) ([]*xclient.Tweet, error) {
	f.calls++
	f.lastQuery = query
	f.lastCount = count
	return f.tweets, f.err
}

func TestSearchMapsTweets(t *testing.T) {
	created := time.Date(2023, 1, 5, 10, 0, 0, 0, time.UTC)
	fake := &fakeTimeline{tweets: []*xclient.Tweet{
		{ID: "1", AuthorID: "42", Text: "Great day", CreatedAt: created, Likes: 3},
		nil,
		{ID: "2", AuthorID: "43", Text: "Bad day", CreatedAt: created, Likes: 0},
	}}
	s := &Search{client: fake}

	var ids []string
	for p, err := range s.Search(context.Background(), "from:bob cats", 10) {
		require.NoError(t, err)
		ids = append(ids, p.ID)
		if p.ID == "1" {
			assert.Equal(t, "Great day", p.Body)
			assert.Equal(t, 3, p.LikeCount)
			assert.Equal(t, "42", p.Author)
			assert.True(t, p.CreatedAt.Equal(created))
		}
	}
	assert.Equal(t, []string{"1", "2"}, ids)
	assert.Equal(t, "from:bob cats", fake.lastQuery)
	assert.Equal(t, 10, fake.lastCount)
}

func TestSearchStopsEarly(t *testing.T) {
	fake := &fakeTimeline{tweets: []*xclient.Tweet{{ID: "1"}, {ID: "2"}, {ID: "3"}}}
	s := &Search{client: fake}
	n := 0
	for range s.Search(context.Background(), "q", 3) {
		n++
		if n == 1 {
			break
		}
	}
	assert.Equal(t, 1, n)
}

func TestSearchYieldsError(t *testing.T) {
	fake := &fakeTimeline{err: errors.New("rate limited")}
	s := &Search{client: fake}
	var got error
	for _, err := range s.Search(context.Background(), "q", 5) {
		got = err
	}
	require.Error(t, got)
	assert.Contains(t, got.Error(), "rate limited")
}

func TestSearchIsLazy(t *testing.T) {
	fake := &fakeTimeline{}
	s := &Search{client: fake}
	_ = s.Search(context.Background(), "q", 5)
	assert.Equal(t, 0, fake.calls)
}

func TestObserveRequestOutcomes(t *testing.T) {
	metrics.TwitterRequestsTotal.Reset()
	observeRequest("SearchTimeline", true, false)
	observeRequest("SearchTimeline", false, true)
	observeRequest("SearchTimeline", false, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TwitterRequestsTotal.WithLabelValues("SearchTimeline", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TwitterRequestsTotal.WithLabelValues("SearchTimeline", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TwitterRequestsTotal.WithLabelValues("SearchTimeline", "error")))
}
