package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dmitrijs2005/vaultsync/internal/client/models"
)

type VaultCreate struct {
	ID                     string  `json:"id"`
	Name                   string  `json:"name"`
	ProtectedEncryptionKey string  `json:"protectedEncryptionKey"`
	ProtectedData          *string `json:"protectedData"`
}

func (c *Client) CreateVault(ctx context.Context, dto VaultCreate) (*models.Vault, error) {
	out := &models.Vault{}
	if err := c.do(ctx, http.MethodPost, "/vaults", nil, dto, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetVault(ctx context.Context, id string) (*models.Vault, error) {
	out := &models.Vault{}
	if err := c.do(ctx, http.MethodGet, "/vaults/"+url.PathEscape(id), nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateVault(ctx context.Context, id string, patch models.VaultPatch) (*models.Vault, error) {
	out := &models.Vault{}
	if err := c.do(ctx, http.MethodPatch, "/vaults/"+url.PathEscape(id), nil, patch, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteVault(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/vaults/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) QueryVaults(ctx context.Context, offset, limit int) (*models.Page[*models.Vault], error) {
	out := &models.Page[*models.Vault]{}
	if err := c.do(ctx, http.MethodGet, "/vaults", pageQuery(offset, limit), nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// AllVaults walks every page of QueryVaults.
func (c *Client) AllVaults(ctx context.Context) ([]*models.Vault, error) {
	var all []*models.Vault
	for offset := 0; ; {
		page, err := c.QueryVaults(ctx, offset, 0)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		offset += len(page.Results)
		if len(page.Results) == 0 || offset >= page.Meta.Total {
			return all, nil
		}
	}
}

func (c *Client) Snapshot(ctx context.Context, vaultID string) (*models.Snapshot, error) {
	out := &models.Snapshot{}
	if err := c.do(ctx, http.MethodGet, "/vaults/"+url.PathEscape(vaultID)+"/snapshot", nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func pageQuery(offset, limit int) url.Values {
	q := url.Values{}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}
