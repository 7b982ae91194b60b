// Package storage packages a generated image and its metadata into a
// content-addressed object on IPFS through the NFT.Storage HTTP API.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
)

var (
	ErrRejected          = errors.New("storage service rejected the upload")
	ErrBadIdentifier     = errors.New("storage service returned an invalid content identifier")
	ErrNotFound          = errors.New("content identifier unknown to storage service")
	ErrMalformedResponse = errors.New("storage service returned a malformed response")
)

// maxResponseBytes caps a JSON answer from the service.
const maxResponseBytes = 1 << 20

// Asset is the input to Store.
type Asset struct {
	Name        string
	Description string
	Image       []byte
	ContentType string
}

// Stored is the outcome of a successful upload.
type Stored struct {
	CID         string
	MetadataURL string
}

// Uploader stores an asset and returns where its metadata lives.
type Uploader interface {
	Store(ctx context.Context, asset Asset) (Stored, error)
}

// PinStatus mirrors the service's pin lifecycle.
type PinStatus string

const (
	PinQueued  PinStatus = "queued"
	PinPinning PinStatus = "pinning"
	PinPinned  PinStatus = "pinned"
	PinFailed  PinStatus = "failed"
)

// Availability answers "can a gateway serve this yet".
type Availability struct {
	CID    string    `json:"cid"`
	Status PinStatus `json:"status"`
}

// Pending means accepted but not yet retrievable. It is not an error.
func (a Availability) Pending() bool {
	return a.Status == PinQueued || a.Status == PinPinning
}

func (a Availability) Available() bool { return a.Status == PinPinned }

// MetadataURL derives the gateway URL for metadata.json under id.
func MetadataURL(gateway, id string) string {
	gateway = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(gateway, "https://"), "http://"), "/")
	return "https://" + gateway + "/ipfs/" + id + "/metadata.json"
}

// Client talks to the NFT.Storage API.
type Client struct {
	endpoint string
	token    string
	gateway  string
	maxBytes int64
	http     *http.Client
	logger   *zap.Logger
}

func NewClient(endpoint, token, gateway string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		token:    token,
		gateway:  gateway,
		maxBytes: maxResponseBytes,
		http:     &http.Client{},
		logger:   logger,
	}
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type storeResponse struct {
	OK    bool      `json:"ok"`
	Error *apiError `json:"error"`
	Value struct {
		IPNFT string `json:"ipnft"`
		URL   string `json:"url"`
	} `json:"value"`
}

type checkResponse struct {
	OK    bool      `json:"ok"`
	Error *apiError `json:"error"`
	Value struct {
		CID string `json:"cid"`
		Pin struct {
			Status PinStatus `json:"status"`
		} `json:"pin"`
	} `json:"value"`
}

// Store uploads the image and metadata as one IPFS object.
func (c *Client) Store(ctx context.Context, asset Asset) (Stored, error) {
	if len(asset.Image) == 0 {
		return Stored{}, fmt.Errorf("%w: image is empty", ErrRejected)
	}

	body, contentType, err := encodeStoreForm(asset)
	if err != nil {
		return Stored{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/store", body)
	if err != nil {
		return Stored{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	raw, status, err := c.do(req)
	if err != nil {
		return Stored{}, fmt.Errorf("upload to storage: %w", err)
	}

	var res storeResponse
	if jsonErr := json.Unmarshal(raw, &res); jsonErr != nil && status >= 200 && status < 300 {
		return Stored{}, fmt.Errorf("%w: %v", ErrMalformedResponse, jsonErr)
	}
	if status < 200 || status >= 300 || !res.OK {
		return Stored{}, fmt.Errorf("%w: status=%d %s", ErrRejected, status, describe(res.Error, raw))
	}

	// the identifier is used exactly as returned
	id := strings.TrimSpace(res.Value.IPNFT)
	if id == "" || strings.ContainsAny(id, "/?# ") {
		return Stored{}, fmt.Errorf("%w: %q", ErrBadIdentifier, res.Value.IPNFT)
	}
	if _, err := cid.Decode(id); err != nil {
		c.logger.Warn("storage identifier is not a CID", zap.String("ipnft", id), zap.Error(err))
	}

	stored := Stored{CID: id, MetadataURL: MetadataURL(c.gateway, id)}
	c.logger.Info("asset stored",
		zap.String("cid", stored.CID),
		zap.String("url", stored.MetadataURL),
		zap.Duration("took", time.Since(start)),
	)
	return stored, nil
}

// Check reports the pin status of id. A queued or pinning object is
// returned as a Pending availability with a nil error.
func (c *Client) Check(ctx context.Context, id string) (Availability, error) {
	parsed, err := cid.Decode(id)
	if err != nil {
		return Availability{}, fmt.Errorf("%w: %q: %v", ErrBadIdentifier, id, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/check/"+parsed.String(), nil)
	if err != nil {
		return Availability{}, fmt.Errorf("create request: %w", err)
	}

	raw, status, err := c.do(req)
	if err != nil {
		return Availability{}, fmt.Errorf("check storage: %w", err)
	}
	if status == http.StatusNotFound {
		return Availability{}, ErrNotFound
	}

	var res checkResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return Availability{}, fmt.Errorf("decode check response: %w", err)
	}
	if status < 200 || status >= 300 || !res.OK {
		return Availability{}, fmt.Errorf("check failed: status=%d %s", status, describe(res.Error, raw))
	}

	avail := Availability{CID: parsed.String(), Status: res.Value.Pin.Status}
	if avail.Status == "" {
		avail.Status = PinQueued
	}
	return avail, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if int64(len(raw)) > c.maxBytes {
		return nil, resp.StatusCode, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedResponse, c.maxBytes)
	}
	return raw, resp.StatusCode, nil
}

// encodeStoreForm builds the multipart body: a "meta" JSON part with the
// image slot nulled, and the image file keyed by its JSON path.
func encodeStoreForm(asset Asset) (io.Reader, string, error) {
	meta, err := json.Marshal(map[string]any{
		"name":        asset.Name,
		"description": asset.Description,
		"image":       nil,
	})
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("meta", string(meta)); err != nil {
		return nil, "", err
	}

	contentType := asset.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, imageFilename(contentType)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(asset.Image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func imageFilename(contentType string) string {
	switch contentType {
	case "image/png":
		return "image.png"
	case "image/webp":
		return "image.webp"
	default:
		return "image.jpeg"
	}
}

func describe(e *apiError, raw []byte) string {
	if e != nil && e.Message != "" {
		if e.Name != "" {
			return e.Name + ": " + e.Message
		}
		return e.Message
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
