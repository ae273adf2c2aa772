package sentiment

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/tweetsense/internal/classifier"
	"github.com/mohammad-safakhou/tweetsense/internal/helpers"
	"github.com/mohammad-safakhou/tweetsense/internal/logging"
	"github.com/mohammad-safakhou/tweetsense/internal/metrics"
	"github.com/mohammad-safakhou/tweetsense/internal/vectorizer"
	"github.com/mohammad-safakhou/tweetsense/tools/tweet_search"
	"github.com/mohammad-safakhou/tweetsense/tools/tweet_search/models"
)

// Tokenizer turns cleaned texts into word-id sequences.
type Tokenizer interface {
	TextsToSequences(texts []string) [][]int32
}

// Service runs search, clean, vectorize and predict for one query. It holds
// only read-only collaborators and is safe for concurrent use.
type Service struct {
	searcher     tweet_search.Searcher
	tokenizer    Tokenizer
	model        classifier.Model
	maxLen       int
	defaultLimit int
	log          logging.Logger
}

type Option func(*Service)

// WithMaxLen sets the padded sequence length (default 280).
func WithMaxLen(n int) Option { return func(s *Service) { s.maxLen = n } }

// WithDefaultLimit sets the limit used when a query has none (default 100).
func WithDefaultLimit(n int) Option { return func(s *Service) { s.defaultLimit = n } }

func WithLogger(l logging.Logger) Option { return func(s *Service) { s.log = l } }

func NewService(searcher tweet_search.Searcher, tokenizer Tokenizer, model classifier.Model, opts ...Option) *Service {
	s := &Service{
		searcher:     searcher,
		tokenizer:    tokenizer,
		model:        model,
		maxLen:       280,
		defaultLimit: DefaultLimit,
		log:          logging.Discard(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.maxLen <= 0 {
		s.maxLen = 280
	}
	if s.defaultLimit <= 0 {
		s.defaultLimit = DefaultLimit
	}
	return s
}

// Classify scores up to q.Limit posts matching q. It returns ErrNoResults when
// nothing matched and a *PredictionError for any other failure.
func (s *Service) Classify(ctx context.Context, q Query) ([]ScoredPost, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	raw := BuildSearchQuery(q)
	log := logging.FromContext(ctx, s.log).WithField("query", raw)

	start := time.Now()
	posts, err := s.collect(ctx, raw, limit)
	metrics.ObserveStage(StageSearch, start)
	if err != nil {
		return nil, &PredictionError{Stage: StageSearch, Err: err}
	}
	metrics.PostsFetched.Observe(float64(len(posts)))
	log.WithField("posts", len(posts)).Debug("search done")
	if len(posts) == 0 {
		return nil, ErrNoResults
	}

	start = time.Now()
	texts := make([]string, len(posts))
	for i, p := range posts {
		texts[i] = helpers.CleanText(p.Body)
	}
	metrics.ObserveStage("clean", start)

	start = time.Now()
	batch := vectorizer.PadSequences(s.tokenizer.TextsToSequences(texts), s.maxLen)
	metrics.ObserveStage(StageVectorize, start)
	if len(batch) != len(texts) {
		return nil, &PredictionError{Stage: StageVectorize, Err: fmt.Errorf("tokenizer returned %d sequences for %d texts", len(batch), len(texts))}
	}

	start = time.Now()
	probs, err := s.model.Predict(ctx, batch)
	metrics.ObserveStage(StagePredict, start)
	if err != nil {
		return nil, &PredictionError{Stage: StagePredict, Err: err}
	}
	if len(probs) != len(posts) {
		return nil, &PredictionError{Stage: StagePredict, Err: fmt.Errorf("model returned %d probabilities for %d posts", len(probs), len(posts))}
	}

	out := make([]ScoredPost, len(posts))
	for i, p := range posts {
		label := LabelFor(probs[i])
		metrics.PostsScoredTotal.WithLabelValues(string(label)).Inc()
		out[i] = ScoredPost{
			CreatedAt:   p.CreatedAt,
			LikeCount:   p.LikeCount,
			Text:        texts[i],
			Label:       label,
			Probability: probs[i],
		}
	}
	log.WithField("scored", len(out)).Debug("prediction done")
	return out, nil
}

// collect pulls at most limit posts and stops the source as soon as it has them.
func (s *Service) collect(ctx context.Context, raw string, limit int) ([]models.Post, error) {
	posts := make([]models.Post, 0, min(limit, 256))
	for p, err := range s.searcher.Search(ctx, raw, limit) {
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
		if len(posts) >= limit {
			break
		}
	}
	return posts, nil
}
