package server

import (
	"time"
)

// HTTPError is the error envelope returned by the server.
type HTTPError struct {
	Detail string `json:"detail"`
}

// WelcomeResponse is returned by GET /.
type WelcomeResponse struct {
	Message string `json:"message"`
}

// PredictRequest represents the /predict payload. Every field is optional.
type PredictRequest struct {
	TopicName         *string `json:"topic_name"`
	Username          *string `json:"username"`
	DateInit          *string `json:"date_init"` // YYYY-MM-DD
	DateEnd           *string `json:"date_end"`  // YYYY-MM-DD, inclusive
	LimitNumberSearch *int    `json:"limit_number_search"`
}

// PredictionItem is one scored post in the /predict response.
type PredictionItem struct {
	DateCreated   time.Time `json:"Date Created"`
	NumberOfLikes int       `json:"Number of Likes"`
	Tweet         string    `json:"Tweet"`
	Sentiment     string    `json:"Sentiment"`
	Probability   float64   `json:"Probability"`
}

// PredictionRunResponse is one entry of GET /predictions.
type PredictionRunResponse struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id,omitempty"`
	Query      string    `json:"query"`
	Limit      int       `json:"limit"`
	Outcome    string    `json:"outcome"`
	Posts      int       `json:"posts"`
	Positive   int       `json:"positive"`
	Negative   int       `json:"negative"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
