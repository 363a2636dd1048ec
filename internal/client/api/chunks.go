package api

import (
	"context"
	"net/http"
	"net/url"
)

type signedURL struct {
	URL string `json:"url"`
}

func chunkPath(vaultID, hash string) string {
	return "/chunks/" + url.PathEscape(vaultID) + "/" + url.PathEscape(hash)
}

// RequestUpload asks for a presigned PUT. ResourceNotUnique means the
// server already holds the bytes.
func (c *Client) RequestUpload(ctx context.Context, vaultID, hash string, size int64) (string, error) {
	var out signedURL
	in := map[string]int64{"size": size}
	if err := c.do(ctx, http.MethodPost, chunkPath(vaultID, hash), nil, in, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *Client) RequestDownload(ctx context.Context, vaultID, hash string) (string, error) {
	var out signedURL
	if err := c.do(ctx, http.MethodGet, chunkPath(vaultID, hash), nil, nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// ListStoredChunks returns the hashes the server already stores for the
// vault.
func (c *Client) ListStoredChunks(ctx context.Context, vaultID string) ([]string, error) {
	var out struct {
		Hashes []string `json:"hashes"`
	}
	if err := c.do(ctx, http.MethodGet, "/vaults/"+url.PathEscape(vaultID)+"/chunks", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Hashes, nil
}
