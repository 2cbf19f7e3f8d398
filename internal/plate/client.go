// Package plate talks to the licence plate recognition service.
package plate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/the-trucks-must-roll/internal/common"
	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/service"
)

// DefaultURL is where the recognition service listens by default.
const DefaultURL = "http://localhost:5000"

// maxResponseBytes caps response bodies; annotated images are returned inline.
const maxResponseBytes = 32 << 20

// Client calls the recognition service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	retry      service.RetryOptions
}

var _ service.PlateDetector = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetry sets how busy or unreachable services are retried.
func WithRetry(opts service.RetryOptions) Option {
	return func(c *Client) {
		c.retry = opts
	}
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CheckHealth reports whether the service answers its health endpoint.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrPlateService, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var health healthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&health); err != nil {
		return fmt.Errorf("%w: unreadable health response: %w", common.ErrPlateService, err)
	}
	if resp.StatusCode != http.StatusOK || health.Status != "ok" {
		return fmt.Errorf("%w: status %d %q", common.ErrPlateService, resp.StatusCode, health.Status)
	}
	return nil
}

// DetectFromFile uploads an image file as multipart field "image".
func (c *Client) DetectFromFile(ctx context.Context, path string) (*model.DetectionResult, error) {
	// #nosec G304 - path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return c.DetectImage(ctx, filepath.Base(path), data)
}

// DetectImage uploads raw image bytes as multipart field "image".
func (c *Client) DetectImage(ctx context.Context, filename string, data []byte) (*model.DetectionResult, error) {
	if len(data) == 0 {
		return nil, errors.New("image cannot be empty")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	payload := body.Bytes()
	return c.detect(ctx, "/detect", mw.FormDataContentType(), payload)
}

// DetectBase64 sends a base64 encoded image, with or without a data URL prefix.
func (c *Client) DetectBase64(ctx context.Context, image string) (*model.DetectionResult, error) {
	if strings.TrimSpace(image) == "" {
		return nil, errors.New("image cannot be empty")
	}
	payload, err := json.Marshal(map[string]string{"image": image})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.detect(ctx, "/detect-base64", "application/json", payload)
}

func (c *Client) detect(ctx context.Context, path, contentType string, payload []byte) (*model.DetectionResult, error) {
	var result *model.DetectionResult

	err := common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return &common.RetryableError{Err: err}
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return &common.RetryableError{Err: ctx.Err()}
			}
			return fmt.Errorf("%w: %w", common.ErrPlateService, err)
		}
		defer func() { _ = resp.Body.Close() }()

		var decoded model.DetectionResult
		decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded)

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: status %d: %s", common.ErrPlateServiceBusy, resp.StatusCode, decoded.Error)
		case resp.StatusCode != http.StatusOK:
			return &common.RetryableError{
				Err: fmt.Errorf("%w: status %d: %s", common.ErrPlateService, resp.StatusCode, decoded.Error),
			}
		case decodeErr != nil:
			return &common.RetryableError{Err: fmt.Errorf("%w: unreadable response: %w", common.ErrPlateService, decodeErr)}
		}

		result = &decoded
		return nil
	}, c.retry)
	if err != nil {
		var re *common.RetryableError
		if errors.As(err, &re) {
			return nil, re.Err
		}
		return nil, err
	}

	slog.Debug("Plate detection finished",
		"endpoint", path,
		"detections", result.DetectedCount)

	if !result.Success {
		return result, fmt.Errorf("%w: %s", common.ErrPlateService, result.Error)
	}
	return result, nil
}

// DetectVehicleNumber runs detection and returns the most confident plate.
func DetectVehicleNumber(ctx context.Context, d service.PlateDetector, path string) (string, *model.DetectionResult, error) {
	result, err := d.DetectFromFile(ctx, path)
	if err != nil {
		return "", result, err
	}
	best, ok := result.Best()
	if !ok {
		return "", result, common.ErrNoPlateDetected
	}
	return best.PlateText(), result, nil
}
