package tweet_search

import (
	"context"
	"errors"
	"iter"

	"github.com/mohammad-safakhou/tweetsense/config"
	"github.com/mohammad-safakhou/tweetsense/tools/tweet_search/corpus"
	"github.com/mohammad-safakhou/tweetsense/tools/tweet_search/models"
	"github.com/mohammad-safakhou/tweetsense/tools/tweet_search/twitter"
)

// Searcher yields posts matching a raw search query, newest first. The sequence
// is pulled on demand; callers may stop early and providers may do I/O per pull.
type Searcher interface {
	Search(ctx context.Context, rawQuery string, limit int) iter.Seq2[models.Post, error]
}

type Provider string

const (
	TwitterProvider Provider = "twitter"
	CorpusProvider  Provider = "corpus"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

func NewSearcher(cfg config.SearchConfig) (Searcher, error) {
	switch Provider(cfg.Provider) {
	case TwitterProvider:
		return twitter.New(cfg.Twitter)
	case CorpusProvider:
		return corpus.Open(cfg.Corpus.Path, cfg.Corpus.PageSize)
	default:
		return nil, ErrUnsupportedProvider
	}
}
