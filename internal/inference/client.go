// Package inference calls the external rainfall model over HTTP.
package inference

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

	"github.com/rainwatch/apiserver/config"
	"github.com/rainwatch/apiserver/internal/apperror"
	"github.com/rainwatch/apiserver/types"
)

// Result is the model output for one feature vector.
type Result struct {
	Probability float64        `json:"probability"`
	Decision    types.Decision `json:"decision,omitempty"`
}

// Client posts feature vectors to {URL}/predict.
type Client struct {
	baseURL    string
	threshold  float64
	httpClient *http.Client
}

func NewClient(cfg config.InferenceConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("inference url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	threshold := cfg.Threshold
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.5
	}
	return &Client{
		baseURL:    baseURL,
		threshold:  threshold,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Predict returns the model probability and decision. Any failure to obtain a
// usable answer is reported as service_unavailable.
func (c *Client) Predict(ctx context.Context, features types.FeatureVector) (Result, error) {
	body, err := json.Marshal(features)
	if err != nil {
		return Result{}, apperror.NewInternal(fmt.Errorf("marshal features: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return Result{}, apperror.NewInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, unavailable(fmt.Errorf("inference returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, unavailable(fmt.Errorf("decode inference response: %w", err))
	}
	if result.Probability < 0 || result.Probability > 1 {
		return Result{}, unavailable(fmt.Errorf("probability %v out of range", result.Probability))
	}

	switch {
	case result.Decision == "":
		result.Decision = types.DecisionNo
		if result.Probability >= c.threshold {
			result.Decision = types.DecisionYes
		}
	case !result.Decision.Valid():
		return Result{}, unavailable(fmt.Errorf("unknown decision %q", result.Decision))
	}
	return result, nil
}

func unavailable(err error) error {
	return apperror.NewUnavailable("prediction service unavailable", err)
}
