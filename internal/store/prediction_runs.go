package store

import (
	"context"
	"database/sql"
	"time"
)

// Prediction run outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeNoResults  = "no_results"
	OutcomeError      = "error"
	OutcomeBadRequest = "bad_request"
)

// PredictionRun is one /predict call as recorded in prediction_runs.
type PredictionRun struct {
	ID         string
	RequestID  string
	Query      string
	Topic      string
	Author     string
	DateFrom   *time.Time
	DateTo     *time.Time
	Limit      int
	Outcome    string
	Posts      int
	Positive   int
	Negative   int
	Error      string
	DurationMS int64
	CreatedAt  time.Time
}

func (s *Store) RecordPredictionRun(ctx context.Context, r PredictionRun) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO prediction_runs (id, request_id, search_query, topic, author, date_from, date_to, limit_number, outcome, posts, positive, negative, error, duration_ms, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW())
`, r.ID, nullString(r.RequestID), r.Query, nullString(r.Topic), nullString(r.Author), nullTime(r.DateFrom), nullTime(r.DateTo),
		r.Limit, r.Outcome, r.Posts, r.Positive, r.Negative, nullString(r.Error), r.DurationMS)
	return err
}

// ListPredictionRuns returns the most recent runs first.
func (s *Store) ListPredictionRuns(ctx context.Context, limit int) ([]PredictionRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, request_id, search_query, topic, author, date_from, date_to, limit_number, outcome, posts, positive, negative, error, duration_ms, created_at
FROM prediction_runs
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PredictionRun
	for rows.Next() {
		var (
			r                        PredictionRun
			requestID, topic, author sql.NullString
			errText                  sql.NullString
			dateFrom, dateTo         sql.NullTime
		)
		if err := rows.Scan(&r.ID, &requestID, &r.Query, &topic, &author, &dateFrom, &dateTo, &r.Limit, &r.Outcome,
			&r.Posts, &r.Positive, &r.Negative, &errText, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.RequestID = requestID.String
		r.Topic = topic.String
		r.Author = author.String
		r.Error = errText.String
		if dateFrom.Valid {
			t := dateFrom.Time
			r.DateFrom = &t
		}
		if dateTo.Valid {
			t := dateTo.Time
			r.DateTo = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
