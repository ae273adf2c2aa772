package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/mapping"
	"github.com/blevesearch/bleve/search/query"
	"github.com/mohammad-safakhou/tweetsense/tools/tweet_search/models"
)

const defaultPageSize = 50

// Search serves posts from a local JSONL corpus through an in-memory bleve index.
type Search struct {
	index    bleve.Index
	posts    map[string]models.Post
	pageSize int
}

// Open reads one JSON post per line from path and indexes them.
func Open(path string, pageSize int) (*Search, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	var posts []models.Post
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var p models.Post
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("corpus line %d: %w", line, err)
		}
		if p.ID == "" {
			p.ID = strconv.Itoa(line)
		}
		posts = append(posts, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return New(posts, pageSize)
}

// New indexes posts in memory.
func New(posts []models.Post, pageSize int) (*Search, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	index, err := bleve.NewMemOnly(postMapping())
	if err != nil {
		return nil, err
	}
	s := &Search{index: index, posts: make(map[string]models.Post, len(posts)), pageSize: pageSize}
	batch := index.NewBatch()
	for _, p := range posts {
		s.posts[p.ID] = p
		doc := map[string]interface{}{
			"body":       p.Body,
			"author":     strings.ToLower(p.Author),
			"created_at": p.CreatedAt,
		}
		if err := batch.Index(p.ID, doc); err != nil {
			return nil, fmt.Errorf("index post %s: %w", p.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("index corpus: %w", err)
	}
	return s, nil
}

func postMapping() mapping.IndexMapping {
	author := bleve.NewTextFieldMapping()
	author.Analyzer = keyword.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("body", bleve.NewTextFieldMapping())
	doc.AddFieldMappingsAt("author", author)
	doc.AddFieldMappingsAt("created_at", bleve.NewDateTimeFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

func (s *Search) Search(ctx context.Context, rawQuery string, limit int) iter.Seq2[models.Post, error] {
	return func(yield func(models.Post, error) bool) {
		d, err := parseDirectives(rawQuery)
		if err != nil {
			yield(models.Post{}, err)
			return
		}
		q := d.query()

		from, emitted := 0, 0
		for {
			size := s.pageSize
			if limit > 0 && limit-emitted < size {
				size = limit - emitted
			}
			req := bleve.NewSearchRequestOptions(q, size, from, false)
			req.SortBy([]string{"-created_at", "_id"})
			res, err := s.index.SearchInContext(ctx, req)
			if err != nil {
				yield(models.Post{}, fmt.Errorf("corpus search: %w", err))
				return
			}
			for _, hit := range res.Hits {
				if !yield(s.posts[hit.ID], nil) {
					return
				}
				emitted++
				if limit > 0 && emitted >= limit {
					return
				}
			}
			from += len(res.Hits)
			if len(res.Hits) < size || uint64(from) >= res.Total {
				return
			}
		}
	}
}

// directives is the parsed form of a search string such as
// "from:alice cats since:2023-01-01 until:2023-01-11".
type directives struct {
	author string
	since  time.Time
	until  time.Time // exclusive
	text   string
}

func parseDirectives(raw string) (directives, error) {
	var d directives
	var words []string
	for _, tok := range strings.Fields(raw) {
		key, val, ok := strings.Cut(tok, ":")
		switch {
		case ok && key == "from" && val != "":
			d.author = val
		case ok && key == "since" && val != "":
			t, err := time.Parse(time.DateOnly, val)
			if err != nil {
				return d, fmt.Errorf("bad since directive %q: %w", val, err)
			}
			d.since = t
		case ok && key == "until" && val != "":
			t, err := time.Parse(time.DateOnly, val)
			if err != nil {
				return d, fmt.Errorf("bad until directive %q: %w", val, err)
			}
			d.until = t
		default:
			words = append(words, tok)
		}
	}
	d.text = strings.Join(words, " ")
	return d, nil
}

func (d directives) query() query.Query {
	var conj []query.Query
	if d.text != "" {
		mq := bleve.NewMatchQuery(d.text)
		mq.SetField("body")
		mq.SetOperator(query.MatchQueryOperatorAnd)
		conj = append(conj, mq)
	}
	if d.author != "" {
		tq := bleve.NewTermQuery(strings.ToLower(d.author))
		tq.SetField("author")
		conj = append(conj, tq)
	}
	if !d.since.IsZero() || !d.until.IsZero() {
		inclusive, exclusive := true, false
		dq := bleve.NewDateRangeInclusiveQuery(d.since, d.until, &inclusive, &exclusive)
		dq.SetField("created_at")
		conj = append(conj, dq)
	}
	if len(conj) == 0 {
		return bleve.NewMatchAllQuery()
	}
	return bleve.NewConjunctionQuery(conj...)
}
