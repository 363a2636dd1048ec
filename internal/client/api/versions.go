package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/vaultsync/internal/client/models"
)

// VersionCreate is the wire form of a locally authored version. Deleted
// marks a tombstone.
type VersionCreate struct {
	VersionID         string             `json:"versionId"`
	PreviousVersionID *string            `json:"previousVersionId"`
	ID                string             `json:"id"`
	Type              models.VersionType `json:"type"`
	ProtectedData     string             `json:"protectedData"`
	Deleted           bool               `json:"deleted"`
	Chunks            []models.FileChunk `json:"chunks,omitempty"`
}

// NewVersionCreate builds the request for pushing v.
func NewVersionCreate(v *models.Version) VersionCreate {
	return VersionCreate{
		VersionID:         v.VersionID,
		PreviousVersionID: v.PreviousVersionID,
		ID:                v.ID,
		Type:              v.Type,
		ProtectedData:     v.ProtectedData,
		Deleted:           v.Tombstone(),
		Chunks:            v.Chunks,
	}
}

func (c *Client) CreateVersion(ctx context.Context, vaultID string, dto VersionCreate) (*models.Version, error) {
	out := &models.Version{}
	if err := c.do(ctx, http.MethodPost, "/vaults/"+url.PathEscape(vaultID)+"/versions", nil, dto, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) QueryVersions(ctx context.Context, vaultID string, typ models.VersionType, offset, limit int) (*models.Page[*models.Version], error) {
	q := pageQuery(offset, limit)
	if typ != "" {
		q.Set("type", string(typ))
	}
	out := &models.Page[*models.Version]{}
	if err := c.do(ctx, http.MethodGet, "/vaults/"+url.PathEscape(vaultID)+"/versions", q, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetVersion(ctx context.Context, versionID string) (*models.Version, error) {
	out := &models.Version{}
	if err := c.do(ctx, http.MethodGet, "/versions/"+url.PathEscape(versionID), nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CommitFile(ctx context.Context, versionID string) (*models.Version, error) {
	out := &models.Version{}
	if err := c.do(ctx, http.MethodPost, "/versions/"+url.PathEscape(versionID)+"/commit", nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListVersionChunks(ctx context.Context, versionID string) ([]models.FileChunk, error) {
	var out struct {
		Chunks []models.FileChunk `json:"chunks"`
	}
	if err := c.do(ctx, http.MethodGet, "/versions/"+url.PathEscape(versionID)+"/chunks", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Chunks, nil
}

// GetItem returns the current version of an entity.
func (c *Client) GetItem(ctx context.Context, id string) (*models.Version, error) {
	out := &models.Version{}
	if err := c.do(ctx, http.MethodGet, "/items/"+url.PathEscape(id), nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteItem appends a tombstone server-side and returns it.
func (c *Client) DeleteItem(ctx context.Context, id string) (*models.Version, error) {
	out := &models.Version{}
	if err := c.do(ctx, http.MethodDelete, "/items/"+url.PathEscape(id), nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}
