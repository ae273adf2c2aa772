package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/tweetsense/internal/logging"
	"github.com/mohammad-safakhou/tweetsense/internal/metrics"
	"github.com/mohammad-safakhou/tweetsense/internal/sentiment"
	"github.com/mohammad-safakhou/tweetsense/internal/store"
)

const welcomeMessage = "Welcome to the Sentiment Analysis for Twieets API!"

// Classifier is the pipeline behind /predict.
type Classifier interface {
	Classify(ctx context.Context, q sentiment.Query) ([]sentiment.ScoredPost, error)
}

// RunRecorder persists a summary of each /predict call.
type RunRecorder interface {
	RecordPredictionRun(ctx context.Context, r store.PredictionRun) error
}

type PredictHandler struct {
	Service   Classifier
	Runs      RunRecorder // optional
	ModelName string
	Log       logging.Logger
}

func (h *PredictHandler) Register(e *echo.Echo, protected ...echo.MiddlewareFunc) {
	e.GET("/", h.root)
	e.POST("/predict", h.predict, protected...)
}

// root
//
//	@Summary	Welcome message
//	@Tags		sentiment
//	@Produce	json
//	@Success	200	{object}	WelcomeResponse
//	@Router		/ [get]
func (h *PredictHandler) root(c echo.Context) error {
	return c.JSON(http.StatusOK, WelcomeResponse{Message: welcomeMessage})
}

// predict
//
//	@Summary		Score the sentiment of matching posts
//	@Description	Searches posts, cleans them and classifies each as Positive or Negative
//	@Tags			sentiment
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		PredictRequest	true	"Search attributes"
//	@Success		200		{array}		PredictionItem
//	@Failure		400		{object}	HTTPError
//	@Failure		404		{object}	HTTPError
//	@Failure		500		{object}	HTTPError
//	@Router			/predict [post]
func (h *PredictHandler) predict(c echo.Context) error {
	var req PredictRequest
	if err := c.Bind(&req); err != nil {
		metrics.PredictionsTotal.WithLabelValues(store.OutcomeBadRequest).Inc()
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	q, err := toQuery(req)
	if err != nil {
		metrics.PredictionsTotal.WithLabelValues(store.OutcomeBadRequest).Inc()
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	start := time.Now()
	scored, err := h.Service.Classify(ctx, q)
	h.record(ctx, c, q, scored, err, time.Since(start))

	switch {
	case err == nil:
		metrics.PredictionsTotal.WithLabelValues(store.OutcomeOK).Inc()
	case errors.Is(err, sentiment.ErrNoResults):
		metrics.PredictionsTotal.WithLabelValues(store.OutcomeNoResults).Inc()
		return echo.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("No matches found for tweets with attributes: '%s'", describeRequest(req)))
	default:
		metrics.PredictionsTotal.WithLabelValues(store.OutcomeError).Inc()
		cause := err
		var pe *sentiment.PredictionError
		if errors.As(err, &pe) {
			cause = pe.Err
		}
		return echo.NewHTTPError(http.StatusInternalServerError,
			fmt.Sprintf("Error occurred during prediction using %s model : %v", h.modelName(), cause)).SetInternal(err)
	}

	out := make([]PredictionItem, len(scored))
	for i, s := range scored {
		out[i] = PredictionItem{
			DateCreated:   s.CreatedAt,
			NumberOfLikes: s.LikeCount,
			Tweet:         s.Text,
			Sentiment:     string(s.Label),
			Probability:   s.Probability,
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PredictHandler) modelName() string {
	if h.ModelName == "" {
		return "BLSTM"
	}
	return h.ModelName
}

// record writes the run summary; failures are logged and never fail the request.
func (h *PredictHandler) record(ctx context.Context, c echo.Context, q sentiment.Query, scored []sentiment.ScoredPost, err error, took time.Duration) {
	if h.Runs == nil {
		return
	}
	limit := q.Limit
	if limit <= 0 {
		limit = sentiment.DefaultLimit
	}
	run := store.PredictionRun{
		ID:         uuid.NewString(),
		RequestID:  c.Response().Header().Get(echo.HeaderXRequestID),
		Query:      sentiment.BuildSearchQuery(q),
		Topic:      q.Topic,
		Author:     q.Author,
		DateFrom:   q.DateFrom,
		DateTo:     q.DateTo,
		Limit:      limit,
		Outcome:    store.OutcomeOK,
		Posts:      len(scored),
		DurationMS: took.Milliseconds(),
	}
	for _, s := range scored {
		if s.Label == sentiment.Positive {
			run.Positive++
		} else {
			run.Negative++
		}
	}
	switch {
	case errors.Is(err, sentiment.ErrNoResults):
		run.Outcome = store.OutcomeNoResults
	case err != nil:
		run.Outcome = store.OutcomeError
		run.Error = err.Error()
	}
	if rerr := h.Runs.RecordPredictionRun(context.WithoutCancel(ctx), run); rerr != nil && h.Log != nil {
		logging.FromContext(ctx, h.Log).WithError(rerr).Warn("record prediction run failed")
	}
}

// toQuery validates the request and maps it to a sentiment query. Empty
// strings count as absent.
func toQuery(req PredictRequest) (sentiment.Query, error) {
	var q sentiment.Query
	q.Topic = deref(req.TopicName)
	q.Author = deref(req.Username)
	if s := deref(req.DateInit); s != "" {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return q, fmt.Errorf("date_init must be YYYY-MM-DD, got %q", s)
		}
		q.DateFrom = &t
	}
	if s := deref(req.DateEnd); s != "" {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return q, fmt.Errorf("date_end must be YYYY-MM-DD, got %q", s)
		}
		q.DateTo = &t
	}
	if req.LimitNumberSearch != nil {
		if *req.LimitNumberSearch < 0 {
			return q, fmt.Errorf("limit_number_search must not be negative")
		}
		q.Limit = *req.LimitNumberSearch
	}
	return q, nil
}

// deref treats nil and whitespace-only values as absent and keeps others as sent.
func deref(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return ""
	}
	return *s
}

// describeRequest renders the request as "field=value" pairs, strings quoted
// and absent values as None. The limit shows its default when omitted.
func describeRequest(req PredictRequest) string {
	limit := strconv.Itoa(sentiment.DefaultLimit)
	if req.LimitNumberSearch != nil {
		limit = strconv.Itoa(*req.LimitNumberSearch)
	}
	return strings.Join([]string{
		"topic_name=" + quoteOrNone(req.TopicName),
		"username=" + quoteOrNone(req.Username),
		"date_init=" + quoteOrNone(req.DateInit),
		"date_end=" + quoteOrNone(req.DateEnd),
		"limit_number_search=" + limit,
	}, " ")
}

func quoteOrNone(s *string) string {
	if s == nil {
		return "None"
	}
	v := *s
	if strings.Contains(v, "'") && !strings.Contains(v, `"`) {
		return `"` + strings.ReplaceAll(v, `\`, `\\`) + `"`
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	return "'" + strings.ReplaceAll(v, "'", `\'`) + "'"
}
