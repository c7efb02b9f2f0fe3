// Package netx moves file bodies to and from signed storage URLs.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// ProgressFunc receives the cumulative bytes sent and the total size.
type ProgressFunc func(sent, total int64)

// HTTPTransfer uploads to and downloads from presigned object storage URLs.
// Transfers are bounded by the caller's context, not by a client timeout.
type HTTPTransfer struct {
	client *http.Client
}

func NewHTTPTransfer(client *http.Client) *HTTPTransfer {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransfer{client: client}
}

// Upload PUTs body to url. Extra headers returned by the signing endpoint are
// sent verbatim.
func (t *HTTPTransfer) Upload(ctx context.Context, url string, body io.Reader, size int64, contentType string, headers map[string]string, progress ProgressFunc) error {
	if progress != nil {
		body = &countingReader{r: body, total: size, fn: progress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}

// Download opens url for reading. The caller closes the body. The returned
// size is -1 when the server did not send a length.
func (t *HTTPTransfer) Download(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("download failed: %s", resp.Status)
	}
	return resp.Body, resp.ContentLength, nil
}

type countingReader struct {
	r     io.Reader
	total int64

	mu   sync.Mutex
	sent int64
	fn   ProgressFunc
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.mu.Lock()
		c.sent += int64(n)
		sent := c.sent
		c.mu.Unlock()
		c.fn(sent, c.total)
	}
	return n, err
}
