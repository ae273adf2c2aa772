package sentiment

import (
	"errors"
	"fmt"
)

// ErrNoResults is returned when the search yields no posts.
var ErrNoResults = errors.New("no posts matched the query")

// Pipeline stages reported in PredictionError.
const (
	StageSearch    = "search"
	StageVectorize = "vectorize"
	StagePredict   = "predict"
)

// PredictionError wraps any failure after the query was accepted.
type PredictionError struct {
	Stage string
	Err   error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }
