// Package inference turns a text prompt into image bytes using a remote
// text-to-image service.
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrTimeout          = errors.New("image generation timed out")
	ErrMalformedPayload = errors.New("image service returned a malformed payload")
	ErrEmptyPrompt      = errors.New("prompt is empty")
)

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("image service returned status %d", e.Code)
	}
	return fmt.Sprintf("image service returned status %d: %s", e.Code, e.Message)
}

// Transient reports whether retrying the same request may succeed.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Image is a generated picture ready for display and upload.
type Image struct {
	Data        []byte
	ContentType string
}

// DataURI renders the image for inline display.
func (i Image) DataURI() string {
	return "data:" + i.ContentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Generator produces an image from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Image, error)
}

type generateRequest struct {
	Inputs  string          `json:"inputs"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// maxImageBytes caps a generated image body.
const maxImageBytes = 20 << 20

// HTTPClient calls a Hugging Face style inference endpoint.
type HTTPClient struct {
	endpoint string
	token    string
	maxBytes int64
	http     *http.Client
	logger   *zap.Logger
}

func NewHTTPClient(endpoint, token string, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		endpoint: strings.TrimSpace(endpoint),
		token:    token,
		maxBytes: maxImageBytes,
		// deadlines come from the caller's context
		http:   &http.Client{},
		logger: logger,
	}
}

func (c *HTTPClient) Generate(ctx context.Context, prompt string) (Image, error) {
	if strings.TrimSpace(prompt) == "" {
		return Image{}, ErrEmptyPrompt
	}

	body, err := json.Marshal(generateRequest{
		Inputs:  prompt,
		Options: generateOptions{WaitForModel: true},
	})
	if err != nil {
		return Image{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Image{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/*")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return Image{}, fmt.Errorf("%w after %s", ErrTimeout, time.Since(start).Round(time.Millisecond))
		}
		return Image{}, fmt.Errorf("generate image: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		if isTimeout(ctx, err) {
			return Image{}, ErrTimeout
		}
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return Image{}, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedPayload, c.maxBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Image{}, &StatusError{Code: resp.StatusCode, Message: serviceMessage(data)}
	}

	img, err := decodeImage(resp.Header.Get("Content-Type"), data)
	if err != nil {
		return Image{}, err
	}

	c.logger.Debug("image generated",
		zap.String("contentType", img.ContentType),
		zap.Int("bytes", len(img.Data)),
		zap.Duration("took", time.Since(start)),
	)
	return img, nil
}

func decodeImage(contentType string, data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		// sniff when the header is missing or broken
		mediaType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return Image{}, fmt.Errorf("%w: content type %q", ErrMalformedPayload, mediaType)
	}
	return Image{Data: data, ContentType: mediaType}, nil
}

// serviceMessage pulls {"error": "..."} out of an error body when present.
func serviceMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsTransient reports whether a generation error is worth retrying.
func IsTransient(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	return false
}
