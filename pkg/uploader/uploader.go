package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benmeehan/gps-streamer/internal/models"
)

// LocationUpdatePath is appended to the base URL for every upload.
const LocationUpdatePath = "locationUpdate/"

// Response is the outcome of a delivered request.
type Response struct {
	Code int
	Body *models.LocationRecord // nil when the server did not answer with a record
}

// Uploader posts a location record to the backend.
type Uploader interface {
	PostLocation(ctx context.Context, record models.LocationRecord) (Response, error)
}

// HTTPUploader posts records as JSON to <baseURL>locationUpdate/.
type HTTPUploader struct {
	endpoint string
	client   *http.Client
}

// NewHTTPUploader creates an uploader for the given base URL (e.g. http://host:8000/dron/).
// A zero timeout leaves requests bounded only by their context.
func NewHTTPUploader(baseURL string, timeout time.Duration) *HTTPUploader {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &HTTPUploader{
		endpoint: baseURL + LocationUpdatePath,
		client:   &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the full URL records are posted to.
func (u *HTTPUploader) Endpoint() string {
	return u.endpoint
}

// PostLocation sends a single request. Any HTTP response is a success regardless of its
// status code. Transport errors are returned as produced by the HTTP client so their text
// can be shown verbatim.
func (u *HTTPUploader) PostLocation(ctx context.Context, record models.LocationRecord) (Response, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return Response{}, fmt.Errorf("failed to serialize location record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := u.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	result := Response{Code: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(body) == 0 {
		return result, nil
	}
	var echoed models.LocationRecord
	if json.Unmarshal(body, &echoed) == nil {
		result.Body = &echoed
	}
	return result, nil
}
