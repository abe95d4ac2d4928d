package model

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/verseforge/verseforge/pkg/log"
	"github.com/verseforge/verseforge/pkg/metrics"
	"github.com/verseforge/verseforge/pkg/types"
)

const (
	// RunDeadline bounds a single inference call end to end
	RunDeadline = 30 * time.Second

	defaultWidth  = 1024
	defaultHeight = 1024
	defaultSteps  = 4
)

// Request describes one inference invocation
type Request struct {
	Prompt string `json:"prompt"`
	Steps  int    `json:"num_steps,omitempty"`
	Seed   int64  `json:"seed,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Result carries the generated image bytes and timing
type Result struct {
	Image    []byte
	Width    int
	Height   int
	Duration time.Duration
}

// Client runs text-to-image inference
type Client interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// HTTPClient calls a hosted inference endpoint over HTTP
type HTTPClient struct {
	endpoint string
	token    string
	http     *http.Client
	logger   zerolog.Logger
}

// NewHTTPClient builds a client for the given endpoint. token may be
// empty for endpoints that do not require auth.
func NewHTTPClient(endpoint, token string) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		token:    token,
		http:     &http.Client{Timeout: RunDeadline},
		logger:   log.WithComponent("model"),
	}
}

// inferenceResponse is the JSON wire shape returned by the endpoint.
// Some deployments nest the payload under result, others return it at
// the top level; both carry the image base64-encoded.
type inferenceResponse struct {
	Image  string `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Result struct {
		Image  string `json:"image"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"result"`
	Success *bool `json:"success"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Run invokes the model once. Exceeding the 30s deadline maps to
// ai_service_timeout; empty or malformed output maps to
// model_inference_failed.
func (c *HTTPClient) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Width == 0 {
		req.Width = defaultWidth
	}
	if req.Height == 0 {
		req.Height = defaultHeight
	}
	if req.Steps == 0 {
		req.Steps = defaultSteps
	}

	ctx, cancel := context.WithTimeout(ctx, RunDeadline)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, types.Wrap(types.CodeModelInferenceFailed, err, "encode inference request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, types.Wrap(types.CodeModelInferenceFailed, err, "build inference request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			metrics.GenerationsTotal.WithLabelValues("timeout").Inc()
			return nil, types.Wrap(types.CodeAITimeout, err, "inference exceeded deadline")
		}
		return nil, types.Wrap(types.CodeModelInferenceFailed, err, "inference request failed")
	}
	defer resp.Body.Close()

	elapsed := time.Since(start)
	metrics.ModelDuration.Observe(elapsed.Seconds())

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, types.Wrap(types.CodeModelInferenceFailed, err, "read inference response")
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("inference endpoint returned non-200")
		return nil, types.E(types.CodeModelInferenceFailed, "inference endpoint returned %d", resp.StatusCode)
	}

	var img []byte
	width, height := 0, 0

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		// Some endpoints stream the image bytes directly
		img = raw
	} else {
		var decoded inferenceResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, types.Wrap(types.CodeModelInferenceFailed, err, "malformed inference response")
		}
		if decoded.Success != nil && !*decoded.Success && len(decoded.Errors) > 0 {
			return nil, types.E(types.CodeModelInferenceFailed, "inference failed: %s", decoded.Errors[0].Message)
		}
		encoded := decoded.Result.Image
		width, height = decoded.Result.Width, decoded.Result.Height
		if encoded == "" {
			encoded = decoded.Image
			width, height = decoded.Width, decoded.Height
		}
		if encoded == "" {
			return nil, types.E(types.CodeModelInferenceFailed, "inference returned no image")
		}
		img, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, types.Wrap(types.CodeModelInferenceFailed, err, "decode inference image")
		}
	}
	if len(img) == 0 {
		return nil, types.E(types.CodeModelInferenceFailed, "inference returned empty image")
	}

	if width == 0 {
		width = req.Width
	}
	if height == 0 {
		height = req.Height
	}

	c.logger.Debug().
		Int("bytes", len(img)).
		Dur("duration", elapsed).
		Msg("inference complete")

	return &Result{Image: img, Width: width, Height: height, Duration: elapsed}, nil
}
