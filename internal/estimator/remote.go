package estimator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"arrival-predictor/internal/route"
)

// Remote asks a model server for predictions. The server receives
// {"features": {"segment_length": 1.2, ...}} and answers {"prediction": 4.5}.
// Missing features are sent as null.
type Remote struct {
	httpClient *http.Client
	url        string
}

type remoteRequest struct {
	Features map[string]*float64 `json:"features"`
}

type remoteResponse struct {
	Prediction *float64 `json:"prediction"`
}

func NewRemote(url string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Remote{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
	}
}

func (r *Remote) Predict(ctx context.Context, f route.FeatureVector) (float64, error) {
	body := remoteRequest{Features: make(map[string]*float64, len(route.FeatureNames))}
	for i, v := range f.Values() {
		if route.IsMissing(v) {
			body.Features[route.FeatureNames[i]] = nil
			continue
		}
		v := v
		body.Features[route.FeatureNames[i]] = &v
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(reqBody))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call estimator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("estimator returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode estimator response: %w", err)
	}
	if out.Prediction == nil {
		return 0, fmt.Errorf("estimator response has no prediction")
	}
	if err := CheckFinite(*out.Prediction); err != nil {
		return 0, err
	}
	return *out.Prediction, nil
}
