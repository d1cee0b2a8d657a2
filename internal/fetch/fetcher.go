package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andresuchdata/fetchvault/internal/domain"
)

// Response is an open source response. Callers must close Body.
type Response struct {
	Body          io.ReadCloser
	ContentLength int64
	ContentType   string
}

// Fetcher retrieves a remote resource.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Response, error)
}

// HTTPFetcher fetches over HTTP(S) asking for an unencoded body so that the
// declared Content-Length matches the bytes received.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher builds a fetcher. A zero timeout means requests never time out.
func NewHTTPFetcher(userAgent string, timeout time.Duration) *HTTPFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true

	return &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		userAgent: userAgent,
	}
}

// NewHTTPFetcherWithClient uses the given client as-is.
func NewHTTPFetcherWithClient(client *http.Client, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{client: client, userAgent: userAgent}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, &domain.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
		}
	}

	length := resp.ContentLength
	if length < 0 {
		length = 0
	}

	return &Response{
		Body:          resp.Body,
		ContentLength: length,
		ContentType:   resp.Header.Get("Content-Type"),
	}, nil
}

func statusText(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

var _ Fetcher = (*HTTPFetcher)(nil)
