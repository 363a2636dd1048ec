// Package api is the HTTP client for the vaultsync server. Failures reported
// by the server come back as *common.Error; transport failures wrap
// ErrUnavailable so callers can fall back to offline mode.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
)

var ErrUnavailable = errors.New("server unavailable")

const maxErrorBody = 64 << 10

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// SetToken sets the bearer token sent with every request. An empty token
// sends none.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError turns the server's error envelope back into the matching
// taxonomy kind. Bodies that are not an envelope (a proxy page, say)
// become SystemError for 5xx and RequestInvalid otherwise.
func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var env common.Error
	if err := json.Unmarshal(b, &env); err != nil || env.Identifier == "" {
		fallback := common.ErrRequestInvalid
		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			fallback = common.ErrSystem
		case resp.StatusCode == http.StatusUnauthorized:
			fallback = common.ErrAccessUnauthorized
		case resp.StatusCode == http.StatusNotFound:
			fallback = common.ErrResourceNotFound
		}
		return fallback.WithMessage("%s", resp.Status)
	}

	if kind, ok := common.Lookup(env.Identifier); ok {
		return kind.WithMessage("%s", env.Message)
	}
	if env.StatusCode == 0 {
		env.StatusCode = resp.StatusCode
	}
	return &env
}
