package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxChunkBody bounds a download; sealed chunks are a little over 256 KiB.
const maxChunkBody = 4 << 20

// Upload PUTs data to a presigned URL. The bearer token is never sent to
// the object store.
func (c *Client) Upload(ctx context.Context, signed string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signed, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}

// Download GETs the bytes behind a presigned URL.
func (c *Client) Download(ctx context.Context, signed string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("download failed: %s; body: %s", resp.Status, string(b))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxChunkBody+1))
	if err != nil {
		return nil, fmt.Errorf("read download: %w", err)
	}
	if len(data) > maxChunkBody {
		return nil, fmt.Errorf("download exceeds %d bytes", maxChunkBody)
	}
	return data, nil
}
