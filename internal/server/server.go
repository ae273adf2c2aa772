package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/tweetsense/internal/logging"
	"github.com/mohammad-safakhou/tweetsense/internal/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures the HTTP surface built by New.
type Options struct {
	Predict     *PredictHandler
	History     *HistoryHandler
	JWTSecret   []byte // nil disables auth on /predict and /predictions
	CORSOrigins []string
	Metrics     bool
	DocsPath    string // OpenAPI yaml served at /openapi.yaml
	Log         logging.Logger
}

// New builds the echo instance with middleware and routes.
func New(opts Options) *echo.Echo {
	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			c.SetRequest(c.Request().WithContext(logging.ContextWithRequestID(c.Request().Context(), id)))
		},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.WithFields(logging.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"request_id": v.RequestID,
				"ip":         v.RemoteIP,
			}).Info("request")
			return nil
		},
	}))

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"*"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if opts.Metrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}
	registerDocs(e, opts.DocsPath)

	var protected []echo.MiddlewareFunc
	if len(opts.JWTSecret) > 0 {
		protected = append(protected, runtime.EchoAuthMiddleware(opts.JWTSecret))
	}
	if opts.Predict != nil {
		if opts.Predict.Log == nil {
			opts.Predict.Log = log
		}
		opts.Predict.Register(e, protected...)
	}
	history := opts.History
	if history == nil {
		history = &HistoryHandler{}
	}
	history.Register(e, protected...)
	return e
}

// errorHandler renders every failure as {"detail": msg} and logs it.
func errorHandler(log logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		entry := logging.FromContext(req.Context(), log).WithFields(logging.Fields{
			"status": code,
			"method": req.Method,
			"path":   req.URL.Path,
			"ip":     c.RealIP(),
		}).WithError(err)
		if code >= http.StatusInternalServerError {
			entry.Error("request failed")
		} else {
			entry.Debug("request rejected")
		}
		if c.Response().Committed {
			return
		}
		if req.Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, HTTPError{Detail: msg})
	}
}
