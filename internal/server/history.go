package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/tweetsense/internal/store"
)

// RunLister reads recent prediction runs.
type RunLister interface {
	ListPredictionRuns(ctx context.Context, limit int) ([]store.PredictionRun, error)
}

type HistoryHandler struct {
	Runs RunLister
}

func (h *HistoryHandler) Register(e *echo.Echo, protected ...echo.MiddlewareFunc) {
	e.GET("/predictions", h.list, protected...)
}

// list
//
//	@Summary	Recent prediction runs
//	@Tags		sentiment
//	@Security	BearerAuth
//	@Produce	json
//	@Param		limit	query		int	false	"Max runs (default 50, max 500)"
//	@Success	200		{array}		PredictionRunResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	404		{object}	HTTPError
//	@Router		/predictions [get]
func (h *HistoryHandler) list(c echo.Context) error {
	if h.Runs == nil {
		return echo.NewHTTPError(http.StatusNotFound, "prediction log is not enabled")
	}
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	runs, err := h.Runs.ListPredictionRuns(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list prediction runs").SetInternal(err)
	}
	out := make([]PredictionRunResponse, len(runs))
	for i, r := range runs {
		out[i] = PredictionRunResponse{
			ID:         r.ID,
			RequestID:  r.RequestID,
			Query:      r.Query,
			Limit:      r.Limit,
			Outcome:    r.Outcome,
			Posts:      r.Posts,
			Positive:   r.Positive,
			Negative:   r.Negative,
			Error:      r.Error,
			DurationMS: r.DurationMS,
			CreatedAt:  r.CreatedAt,
		}
	}
	return c.JSON(http.StatusOK, out)
}
