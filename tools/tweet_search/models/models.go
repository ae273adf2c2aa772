package models

import "time"

// Post is a single search hit as returned by a provider.
type Post struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	CreatedAt   time.Time `json:"created_at"`
	LikeCount   int       `json:"like_count"`
	SourceLabel string    `json:"source_label,omitempty"`
	Body        string    `json:"body"`
}
