// Package supplier fetches stock clips from the Pexels video API into a clip
// folder the renderer can consume.
package supplier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	DefaultBaseURL = "https://api.pexels.com"
	DefaultTimeout = 300 * time.Second
)

// ErrNoAPIKey is returned when the client has no Pexels key configured.
var ErrNoAPIKey = errors.New("pexels api key not configured")

// APIError is a non-2xx response from the Pexels API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return "pexels: 401 unauthorized, check PEXELS_API_KEY"
	case http.StatusForbidden:
		return "pexels: 403 forbidden, the api key may be invalid or expired"
	case http.StatusTooManyRequests:
		return "pexels: 429 rate limited"
	}
	return fmt.Sprintf("pexels: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable is true for rate limiting and server errors.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type VideoFile struct {
	ID       int    `json:"id"`
	Quality  string `json:"quality"`
	FileType string `json:"file_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Link     string `json:"link"`
}

type Video struct {
	ID         int         `json:"id"`
	URL        string      `json:"url"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Duration   int         `json:"duration"`
	VideoFiles []VideoFile `json:"video_files"`
}

// BestFile picks the widest rendition.
func (v Video) BestFile() (VideoFile, bool) {
	var best VideoFile
	found := false
	for _, f := range v.VideoFiles {
		if f.Link == "" {
			continue
		}
		if !found || f.Width > best.Width {
			best, found = f, true
		}
	}
	return best, found
}

type searchResponse struct {
	Page         int     `json:"page"`
	PerPage      int     `json:"per_page"`
	TotalResults int     `json:"total_results"`
	Videos       []Video `json:"videos"`
}

// Client talks to the Pexels video search API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Search returns up to perPage videos matching query.
func (c *Client) Search(ctx context.Context, query string, perPage int) ([]Video, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if perPage <= 0 {
		perPage = 1
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(perPage))
	endpoint := fmt.Sprintf("%s/videos/search?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pexels search %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode pexels response: %w", err)
	}

	c.logger.Debug("pexels search",
		"query", query,
		"results", len(result.Videos),
		"total", result.TotalResults,
	)
	return result.Videos, nil
}

// Download streams link into dest. The file is written under a temporary
// name and renamed once complete, so dest never holds a partial download.
func (c *Client) Download(ctx context.Context, link, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", filepath.Base(dest), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("cannot create clip dir: %w", err)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", filepath.Base(tmp), err)
	}

	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("write %s: %w", filepath.Base(dest), errors.Join(copyErr, closeErr))
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("rename %s: %w", filepath.Base(dest), err)
	}

	c.logger.Info("clip downloaded",
		"file", filepath.Base(dest),
		"size", humanize.Bytes(uint64(n)),
	)
	return n, nil
}
