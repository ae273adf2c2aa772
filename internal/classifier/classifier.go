package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/mohammad-safakhou/tweetsense/config"
	"github.com/mohammad-safakhou/tweetsense/internal/logging"
	"github.com/mohammad-safakhou/tweetsense/internal/metrics"
)

// Model scores a batch of padded id sequences, returning one positive-class
// probability per row.
type Model interface {
	Predict(ctx context.Context, batch [][]int32) ([]float64, error)
}

// ServingClient talks to a TensorFlow Serving REST endpoint.
type ServingClient struct {
	endpoint string
	name     string
	http     *http.Client
	breaker  circuitbreaker.CircuitBreaker[[]float64]
	log      logging.Logger
}

type predictRequest struct {
	Instances [][]int32 `json:"instances"`
}

type predictResponse struct {
	Predictions []json.RawMessage `json:"predictions"`
	Error       string            `json:"error"`
}

// NewServingClient builds a client for cfg.ServingName at cfg.Endpoint. The
// breaker opens after cfg.BreakerFailures consecutive failures and fails fast
// for cfg.BreakerDelay; calls are never retried.
func NewServingClient(cfg config.ModelConfig, log logging.Logger) *ServingClient {
	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	delay := cfg.BreakerDelay
	if delay <= 0 {
		delay = 30 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	breaker := circuitbreaker.NewBuilder[[]float64]().
		WithFailureThreshold(uint(failures)).
		WithDelay(delay).
		WithSuccessThreshold(1).
		HandleIf(func(_ []float64, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			to := stateName(event.NewState)
			metrics.CircuitBreakerStateChanges.WithLabelValues("classifier", to).Inc()
			log.WithFields(logging.Fields{
				"circuit_breaker": "classifier",
				"from_state":      stateName(event.OldState),
				"to_state":        to,
			}).Warn("circuit breaker state change")
		}).
		Build()

	return &ServingClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		name:     cfg.ServingName,
		http:     &http.Client{Timeout: timeout},
		breaker:  breaker,
		log:      log,
	}
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	default:
		return "closed"
	}
}

// Predict sends the batch as one :predict call.
func (c *ServingClient) Predict(ctx context.Context, batch [][]int32) ([]float64, error) {
	if len(batch) == 0 {
		return []float64{}, nil
	}
	return failsafe.With[[]float64](c.breaker).WithContext(ctx).Get(func() ([]float64, error) {
		return c.predict(ctx, batch)
	})
}

func (c *ServingClient) predict(ctx context.Context, batch [][]int32) ([]float64, error) {
	body, err := json.Marshal(predictRequest{Instances: batch})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/v1/models/%s:predict", c.endpoint, c.name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model server: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read model response: %w", err)
	}
	var out predictResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(out.Error)
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, fmt.Errorf("model server returned %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode model response: %w", decodeErr)
	}
	if len(out.Predictions) != len(batch) {
		return nil, fmt.Errorf("model returned %d predictions for %d inputs", len(out.Predictions), len(batch))
	}

	probs := make([]float64, len(out.Predictions))
	for i, p := range out.Predictions {
		v, err := firstScalar(p)
		if err != nil {
			return nil, fmt.Errorf("prediction %d: %w", i, err)
		}
		probs[i] = v
	}
	return probs, nil
}

// firstScalar accepts either p or [p] (a single-unit sigmoid output).
func firstScalar(raw json.RawMessage) (float64, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return v, nil
	}
	var vs []float64
	if err := json.Unmarshal(raw, &vs); err != nil {
		return 0, fmt.Errorf("unexpected prediction shape %s", string(raw))
	}
	if len(vs) == 0 {
		return 0, fmt.Errorf("empty prediction")
	}
	return vs[0], nil
}

type modelStatus struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
	} `json:"model_version_status"`
}

// Status reports whether at least one model version is AVAILABLE.
func (c *ServingClient) Status(ctx context.Context) error {
	url := fmt.Sprintf("%s/v1/models/%s", c.endpoint, c.name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call model server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model status returned %d", resp.StatusCode)
	}
	var st modelStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("decode model status: %w", err)
	}
	for _, v := range st.ModelVersionStatus {
		if v.State == "AVAILABLE" {
			return nil
		}
	}
	return fmt.Errorf("model %s has no available version", c.name)
}
