package api

import (
	"context"
	"net/http"
	"time"
)

type Registration struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	DisplayName       string `json:"displayName"`
	VerificationToken string `json:"verificationToken"`
}

type Session struct {
	Token     string    `json:"token"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (c *Client) Register(ctx context.Context, email, displayName, password string) (*Registration, error) {
	in := map[string]string{"email": email, "displayName": displayName, "password": password}
	out := &Registration{}
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Verify(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/verify", nil, map[string]string{"token": token}, nil)
}

// Login opens a session and starts sending its token.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	out := &Session{}
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, in, out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return out, nil
}

// Logout ends the session server-side and forgets the token either way.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
	c.SetToken("")
	return err
}

// Pending lists vaults changed by other sessions since the last call.
func (c *Client) Pending(ctx context.Context) ([]string, error) {
	var out struct {
		Vaults []string `json:"vaults"`
	}
	if err := c.do(ctx, http.MethodGet, "/events/pending", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Vaults, nil
}
