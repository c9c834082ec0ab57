package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// requestIDHeader matches the header the service echoes.
const requestIDHeader = "X-Request-ID"

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	baseURL string
	runID   string
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(baseURL, runID string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		runID:   runID,
	}
}

func (c *HTTPClient) requestID() string {
	return c.runID + "-" + uuid.NewString()[:8]
}

// Health calls GET /health and returns the decoded ok flag.
func (c *HTTPClient) Health(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(requestIDHeader, c.requestID())

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to connect to service: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("health returned status %d", resp.StatusCode)
	}

	var health struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		return false, fmt.Errorf("failed to decode health: %w", err)
	}
	return health.OK, nil
}

// Predict posts one vector to /predict. Transport failures are reported in
// Outcome.Err; HTTP error statuses are not errors.
func (c *HTTPClient) Predict(ctx context.Context, v Vector) Outcome {
	out := Outcome{Vector: v, Invalid: v.Invalid}

	jsonData, err := json.Marshal(v)
	if err != nil {
		out.Err = fmt.Sprintf("failed to marshal request body: %v", err)
		return out
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(jsonData))
	if err != nil {
		out.Err = fmt.Sprintf("failed to create request: %v", err)
		return out
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, c.requestID())

	resp, err := c.client.Do(req)
	if err != nil {
		out.Err = err.Error()
		return out
	}
	out.Status = resp.StatusCode
	out.RequestID = resp.Header.Get(requestIDHeader)

	body, err := readResponseBody(resp)
	if err != nil {
		out.Err = err.Error()
		return out
	}

	if resp.StatusCode == http.StatusOK {
		var ok struct {
			Fatigue *float64 `json:"fatigue"`
		}
		if err := json.Unmarshal(body, &ok); err != nil || ok.Fatigue == nil {
			out.Err = fmt.Sprintf("malformed success body: %s", bytes.TrimSpace(body))
			return out
		}
		out.Fatigue = *ok.Fatigue
		return out
	}

	var apiErr struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(body, &apiErr)
	out.Code = apiErr.Code
	return out
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
