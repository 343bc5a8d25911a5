package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"os"
	"time"

	"github.com/nfnt/resize"

	// Catalog reference images may be webp exports; register the decoder
	// for the image.Decode path.
	_ "golang.org/x/image/webp"
	_ "image/png"
)

// encodeSize is the square edge length images are downscaled to before
// being sent to the encoder service.
const encodeSize = 224

// Client calls the external embedding service: POST a JPEG, receive a
// fixed-length float vector. The client performs no retry or backoff;
// callers bound each request with the context.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient returns a client for the encoder service at baseURL.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed sends the image to the encoder and returns the raw vector. The
// result is not validated here; run it through a Validator before use.
func (c *Client) Embed(ctx context.Context, img image.Image) ([]float64, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("embedding service URL not configured")
	}

	scaled := resize.Resize(encodeSize, encodeSize, img, resize.Bicubic)

	var body bytes.Buffer
	if err := jpeg.Encode(&body, scaled, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned %s", resp.Status)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(decoded.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned empty vector")
	}

	return decoded.Embedding, nil
}

// EmbedFile loads an image file and embeds it.
func (c *Client) EmbedFile(ctx context.Context, path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return c.Embed(ctx, img)
}
