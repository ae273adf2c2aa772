package sentiment

import (
	"strings"
	"time"
)

// DefaultLimit applies when a query does not name a positive limit.
const DefaultLimit = 100

// Query describes which posts to score. Zero values mean "not set".
type Query struct {
	Topic    string
	Author   string
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
}

// BuildSearchQuery renders q in the search directive grammar:
// "from:<author> <topic> since:<from> until:<to+1d>". DateTo is inclusive for
// callers and until is exclusive at the source, hence the extra day.
func BuildSearchQuery(q Query) string {
	var parts []string
	if q.Author != "" {
		parts = append(parts, "from:"+q.Author)
	}
	if q.Topic != "" {
		parts = append(parts, q.Topic)
	}
	if q.DateFrom != nil {
		parts = append(parts, "since:"+q.DateFrom.Format(time.DateOnly))
	}
	if q.DateTo != nil {
		parts = append(parts, "until:"+q.DateTo.AddDate(0, 0, 1).Format(time.DateOnly))
	}
	return strings.Join(parts, " ")
}

type Label string

const (
	Positive Label = "Positive"
	Negative Label = "Negative"
)

// LabelFor rounds half up: 0.5 is Positive.
func LabelFor(probability float64) Label {
	if probability >= 0.5 {
		return Positive
	}
	return Negative
}

// ScoredPost is one classified post, in source order.
type ScoredPost struct {
	CreatedAt   time.Time
	LikeCount   int
	Text        string
	Label       Label
	Probability float64
}
