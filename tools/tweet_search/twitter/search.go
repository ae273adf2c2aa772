package twitter

import (
	"context"
	"fmt"
	"iter"
	"strings"

	xclient "github.com/anatolykoptev/go-twitter"
	"github.com/mohammad-safakhou/tweetsense/config"
	"github.com/mohammad-safakhou/tweetsense/internal/metrics"
	"github.com/mohammad-safakhou/tweetsense/tools/tweet_search/models"
)

// timelineSearcher is the part of the go-twitter client we depend on.
type timelineSearcher interface {
	SearchTimeline(ctx context.Context, query string, count int) ([]*xclient.Tweet, error)
}

type Search struct {
	client timelineSearcher
}

// New builds a scraping client from the configured account pool.
func New(cfg config.TwitterConfig) (*Search, error) {
	var accounts []*xclient.Account
	if strings.TrimSpace(cfg.Accounts) != "" {
		accounts = xclient.ParseAccounts(cfg.Accounts)
	}
	client, err := xclient.NewClient(xclient.ClientConfig{
		Accounts:         accounts,
		DefaultProxy:     cfg.Proxy,
		OpenAccountCount: cfg.OpenAccountCount,
		SessionDir:       cfg.SessionDir,
		MetricsHook:      observeRequest,
	})
	if err != nil {
		return nil, fmt.Errorf("twitter client: %w", err)
	}
	return &Search{client: client}, nil
}

func (s *Search) Search(ctx context.Context, rawQuery string, limit int) iter.Seq2[models.Post, error] {
	return func(yield func(models.Post, error) bool) {
		// SearchTimeline is a single round trip, so it runs on the first pull.
		tweets, err := s.client.SearchTimeline(ctx, rawQuery, limit)
		if err != nil {
			yield(models.Post{}, fmt.Errorf("search timeline %q: %w", rawQuery, err))
			return
		}
		for _, t := range tweets {
			if t == nil {
				continue
			}
			if !yield(toPost(t), nil) {
				return
			}
		}
	}
}

func observeRequest(endpoint string, success, rateLimited bool) {
	outcome := "ok"
	switch {
	case rateLimited:
		outcome = "rate_limited"
	case !success:
		outcome = "error"
	}
	metrics.TwitterRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

func toPost(t *xclient.Tweet) models.Post {
	return models.Post{
		ID:        t.ID,
		Author:    t.AuthorID,
		CreatedAt: t.CreatedAt,
		LikeCount: t.Likes,
		Body:      t.Text,
	}
}
