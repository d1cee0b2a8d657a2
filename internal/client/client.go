package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/fetchvault/internal/domain"
	"github.com/pkg/errors"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Is lets callers match 404s with domain.ErrNotFound and 400s with domain.ErrInvalidInput.
func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case domain.ErrInvalidInput:
		return e.StatusCode == http.StatusBadRequest
	}
	return false
}

// CreateResult is the answer to a submitted URL.
type CreateResult struct {
	Success    bool          `json:"success"`
	DownloadID string        `json:"downloadId"`
	Message    string        `json:"message"`
	Status     domain.Status `json:"status"`
}

// Client talks to the download HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) Create(ctx context.Context, sourceURL string) (*CreateResult, error) {
	var out CreateResult
	err := c.do(ctx, http.MethodPost, "/api/download", map[string]string{"url": sourceURL}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Get(ctx context.Context, downloadID string) (*domain.DownloadView, error) {
	var out domain.DownloadView
	if err := c.do(ctx, http.MethodGet, "/api/download/"+url.PathEscape(downloadID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Confirm(ctx context.Context, downloadID string) (*domain.ConfirmResult, error) {
	var out domain.ConfirmResult
	if err := c.do(ctx, http.MethodPost, "/api/download/"+url.PathEscape(downloadID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) List(ctx context.Context, limit int) ([]*domain.Download, error) {
	path := "/api/download"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Downloads []*domain.Download `json:"downloads"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Downloads, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
