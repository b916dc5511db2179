// Package capture provides the HTTP client for the rendering
// collaborator that turns shader source into screenshots.
package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/protocol"
)

const defaultTimeout = 60 * time.Second

// DefaultTimeValues are the animation time samples rendered for
// evaluation, in seconds.
var DefaultTimeValues = []float64{0.1, 0.2, 0.5, 0.8, 1.2, 1.5, 3, 5, 10}

// Default output dimensions.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// Client calls a render endpoint: POST {code, times, width, height} ->
// {screenshots} | {compilation_error}.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a client for the given render service URL.
func NewClient(url string) *Client {
	return &Client{
		url:        strings.TrimRight(url, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type captureRequest struct {
	Code   string    `json:"code"`
	Times  []float64 `json:"times"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
}

type captureResponse struct {
	Screenshots      []string                 `json:"screenshots,omitempty"`
	CompilationError *models.CompilationError `json:"compilation_error,omitempty"`
}

// Capture renders the code at the given time samples. A compilation
// error is a successful call with CompilationError set, not an error
// return; infrastructure failures return an error.
func (c *Client) Capture(ctx context.Context, code string, timeValues []float64) (*protocol.CaptureResult, error) {
	if len(timeValues) == 0 {
		timeValues = DefaultTimeValues
	}

	body, err := json.Marshal(captureRequest{
		Code:   code,
		Times:  timeValues,
		Width:  DefaultWidth,
		Height: DefaultHeight,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal capture request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/capture", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create capture request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("capture request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("capture request failed: status code %d", resp.StatusCode)
	}

	var capture captureResponse
	if err := json.NewDecoder(resp.Body).Decode(&capture); err != nil {
		return nil, fmt.Errorf("failed to decode capture response: %w", err)
	}

	if capture.CompilationError == nil && len(capture.Screenshots) == 0 {
		return nil, fmt.Errorf("capture response has neither screenshots nor a compilation error")
	}

	return &protocol.CaptureResult{
		Screenshots:      capture.Screenshots,
		CompilationError: capture.CompilationError,
	}, nil
}
