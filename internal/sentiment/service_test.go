package sentiment

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/mohammad-safakhou/tweetsense/internal/vectorizer"
	"github.com/mohammad-safakhou/tweetsense/tools/tweet_search/models"
)

type stubSearcher struct {
	posts     []models.Post
	err       error
	infinite  bool
	pulled    int
	lastQuery string
	lastLimit int
}

func (s *stubSearcher) Search(_ context.Context, rawQuery string, limit int) iter.Seq2[models.Post, error] {
	s.lastQuery = rawQuery
	s.lastLimit = limit
	return func(yield func(models.Post, error) bool) {
		if s.err != nil {
			yield(models.Post{}, s.err)
			return
		}
		if s.infinite {
			for {
				s.pulled++
				if !yield(models.Post{ID: "p", Body: "good day"}, nil) {
					return
				}
			}
		}
		for _, p := range s.posts {
			s.pulled++
			if !yield(p, nil) {
				return
			}
		}
	}
}

type stubModel struct {
	probs []float64
	err   error
	batch [][]int32
}

func (m *stubModel) Predict(_ context.Context, batch [][]int32) ([]float64, error) {
	m.batch = batch
	if m.err != nil {
		return nil, m.err
	}
	if m.probs != nil {
		return m.probs, nil
	}
	out := make([]float64, len(batch))
	for i := range out {
		out[i] = 0.9
	}
	return out, nil
}

func newTestService(s *stubSearcher, m *stubModel) *Service {
	tok := vectorizer.NewTokenizer(map[string]int32{"good": 1, "day": 2, "bad": 3})
	return NewService(s, tok, m)
}

func TestClassifySinglePositive(t *testing.T) {
	created := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	s := &stubSearcher{posts: []models.Post{{ID: "1", Body: "Good DAY @bob!", LikeCount: 4, CreatedAt: created}}}
	m := &stubModel{probs: []float64{0.7}}

	got, err := newTestService(s, m).Classify(context.Background(), Query{Topic: "x", Limit: 1})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	r := got[0]
	if r.Label != Positive || r.Probability != 0.7 {
		t.Fatalf("unexpected result %+v", r)
	}
	if r.Text != "good day " || r.LikeCount != 4 || !r.CreatedAt.Equal(created) {
		t.Fatalf("unexpected post fields %+v", r)
	}
	if len(m.batch) != 1 || len(m.batch[0]) != 280 {
		t.Fatalf("expected 1x280 batch, got %d rows", len(m.batch))
	}
	if m.batch[0][278] != 1 || m.batch[0][279] != 2 || m.batch[0][0] != 0 {
		t.Fatalf("expected left padded ids, got tail %v", m.batch[0][276:])
	}
}

func TestClassifyNegative(t *testing.T) {
	s := &stubSearcher{posts: []models.Post{{Body: "bad"}}}
	got, err := newTestService(s, &stubModel{probs: []float64{0.3}}).Classify(context.Background(), Query{Topic: "x"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got[0].Label != Negative {
		t.Fatalf("expected Negative, got %s", got[0].Label)
	}
}

func TestLabelFor(t *testing.T) {
	cases := map[float64]Label{0: Negative, 0.3: Negative, 0.4999: Negative, 0.5: Positive, 0.7: Positive, 1: Positive}
	for p, want := range cases {
		if got := LabelFor(p); got != want {
			t.Fatalf("LabelFor(%v) = %s, want %s", p, got, want)
		}
	}
}

func TestClassifyNoResults(t *testing.T) {
	_, err := newTestService(&stubSearcher{}, &stubModel{}).Classify(context.Background(), Query{Topic: "nothing"})
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}
	var pe *PredictionError
	if errors.As(err, &pe) {
		t.Fatalf("ErrNoResults must not be a PredictionError")
	}
}

func TestClassifyDefaultLimit(t *testing.T) {
	s := &stubSearcher{posts: []models.Post{{Body: "good"}}}
	if _, err := newTestService(s, &stubModel{}).Classify(context.Background(), Query{Topic: "x", Limit: 0}); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if s.lastLimit != 100 {
		t.Fatalf("expected limit 100, got %d", s.lastLimit)
	}
}

func TestClassifyStopsPullingAtLimit(t *testing.T) {
	s := &stubSearcher{infinite: true}
	got, err := newTestService(s, &stubModel{}).Classify(context.Background(), Query{Topic: "x", Limit: 3})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(got) != 3 || s.pulled != 3 {
		t.Fatalf("expected 3 results from 3 pulls, got %d results, %d pulls", len(got), s.pulled)
	}
}

func TestClassifyPreservesOrder(t *testing.T) {
	s := &stubSearcher{posts: []models.Post{{Body: "good"}, {Body: "bad"}, {Body: "day"}}}
	m := &stubModel{probs: []float64{0.1, 0.6, 0.2}}
	got, err := newTestService(s, m).Classify(context.Background(), Query{Topic: "x"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := []string{"good", "bad", "day"}
	for i, r := range got {
		if r.Text != want[i] || r.Probability != m.probs[i] {
			t.Fatalf("result %d out of order: %+v", i, r)
		}
	}
}

func TestClassifySearchFailure(t *testing.T) {
	cause := errors.New("scraper blocked")
	_, err := newTestService(&stubSearcher{err: cause}, &stubModel{}).Classify(context.Background(), Query{Topic: "x"})
	var pe *PredictionError
	if !errors.As(err, &pe) || pe.Stage != StageSearch || !errors.Is(err, cause) {
		t.Fatalf("expected search PredictionError, got %v", err)
	}
}

func TestClassifyModelFailure(t *testing.T) {
	cause := errors.New("boom")
	s := &stubSearcher{posts: []models.Post{{Body: "good"}}}
	_, err := newTestService(s, &stubModel{err: cause}).Classify(context.Background(), Query{Topic: "x"})
	var pe *PredictionError
	if !errors.As(err, &pe) || pe.Stage != StagePredict || pe.Err != cause {
		t.Fatalf("expected predict PredictionError, got %v", err)
	}
}

func TestClassifyModelLengthMismatch(t *testing.T) {
	s := &stubSearcher{posts: []models.Post{{Body: "good"}, {Body: "bad"}}}
	_, err := newTestService(s, &stubModel{probs: []float64{0.5}}).Classify(context.Background(), Query{Topic: "x"})
	var pe *PredictionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PredictionError, got %v", err)
	}
}
