package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vaultsync/internal/client/models"
	"github.com/dmitrijs2005/vaultsync/internal/common"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	ctype  string
	body   map[string]any
}

// newServer answers every request with status and body and records it.
func newServer(t *testing.T, status int, body string) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.auth = r.Header.Get("Authorization")
		rec.ctype = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		rec.body = nil
		if len(b) > 0 {
			assert.NoError(t, json.Unmarshal(b, &rec.body))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return New(ts.URL+"/", time.Second), rec
}

func TestLogin_StoresTokenAndSendsIt(t *testing.T) {
	c, rec := newServer(t, http.StatusOK, `{"token":"tok","sessionId":"s1","expiresAt":"2025-01-01T00:00:00Z"}`)

	s, err := c.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok", s.Token)
	assert.Equal(t, "s1", s.SessionID)
	assert.Equal(t, "/auth/login", rec.path)
	assert.Equal(t, "application/json", rec.ctype)
	assert.Equal(t, map[string]any{"email": "a@b.c", "password": "pw"}, rec.body)
	assert.Empty(t, rec.auth)

	_, err = c.GetVault(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", rec.auth)
	assert.Equal(t, "/vaults/v1", rec.path)
}

func TestLogout_ClearsTokenEvenOnError(t *testing.T) {
	c, rec := newServer(t, http.StatusUnauthorized, `{"identifier":"AccessUnauthorized","statusCode":401,"message":"gone"}`)
	c.SetToken("tok")

	err := c.Logout(context.Background())
	require.ErrorIs(t, err, common.ErrAccessUnauthorized)
	assert.Empty(t, c.Token())
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Empty(t, rec.ctype)
}

func TestErrorEnvelope_MapsToKnownKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   *common.Error
		msg    string
	}{
		{"not unique", 400, `{"identifier":"ResourceNotUnique","statusCode":400,"message":"chunk ab is already stored"}`,
			common.ErrResourceNotUnique, "chunk ab is already stored"},
		{"not verified is forbidden", 403, `{"identifier":"NotVerified","statusCode":403,"message":"verify"}`,
			common.ErrAccessForbidden, "verify"},
		{"plain 502", 502, `<html>bad gateway</html>`, common.ErrSystem, "502 Bad Gateway"},
		{"plain 404", 404, `not found`, common.ErrResourceNotFound, "404 Not Found"},
		{"plain 401", 401, ``, common.ErrAccessUnauthorized, "401 Unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newServer(t, tt.status, tt.body)
			_, err := c.GetVault(context.Background(), "v")
			require.ErrorIs(t, err, tt.want)
			var e *common.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.msg, e.Message)
		})
	}
}

func TestErrorEnvelope_UnknownIdentifierKept(t *testing.T) {
	c, _ := newServer(t, 409, `{"identifier":"Brand New","message":"m"}`)
	_, err := c.GetVault(context.Background(), "v")
	var e *common.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "Brand New", e.Identifier)
	assert.Equal(t, 409, e.StatusCode)
}

func TestTransportError_IsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	c := New(ts.URL, time.Second)
	_, err := c.Snapshot(context.Background(), "v")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCanceledContext_NotUnavailable(t *testing.T) {
	c, _ := newServer(t, 200, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Snapshot(ctx, "v")
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, errors.Is(err, ErrUnavailable))
}

func TestSnapshot_Decodes(t *testing.T) {
	c, rec := newServer(t, 200, `{"vault":{"updatedAt":"2025-02-03T04:05:06Z"},"versions":{"a":false,"b":true}}`)

	s, err := c.Snapshot(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, "/vaults/v1/snapshot", rec.path)
	assert.Equal(t, map[string]bool{"a": false, "b": true}, s.Versions)
	assert.True(t, s.Vault.UpdatedAt.Equal(time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)))
}

func TestCreateVersion_SendsTombstoneFlag(t *testing.T) {
	c, rec := newServer(t, http.StatusCreated, `{"versionId":"x","id":"g"}`)

	at := time.Now()
	parent := "p"
	v := &models.Version{VersionID: "x", PreviousVersionID: &parent, ID: "g", Type: models.VersionTypeItem, DeletedAt: &at}
	out, err := c.CreateVersion(context.Background(), "v1", NewVersionCreate(v))
	require.NoError(t, err)
	assert.Equal(t, "x", out.VersionID)
	assert.Equal(t, "/vaults/v1/versions", rec.path)
	assert.Equal(t, true, rec.body["deleted"])
	assert.Equal(t, "p", rec.body["previousVersionId"])
	assert.NotContains(t, rec.body, "chunks")
}

func TestQueryVersions_Query(t *testing.T) {
	c, rec := newServer(t, 200, `{"meta":{"results":1,"total":1,"limit":10,"offset":5},"results":[{"versionId":"x"}]}`)

	page, err := c.QueryVersions(context.Background(), "v1", models.VersionTypeFile, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, "limit=10&offset=5&type=file", rec.query)
	require.Len(t, page.Results, 1)
	assert.Equal(t, 5, page.Meta.Offset)
}

func TestAllVaults_WalksPages(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("offset") == "" {
			_, _ = io.WriteString(w, `{"meta":{"total":3},"results":[{"id":"a"},{"id":"b"}]}`)
			return
		}
		assert.Equal(t, "2", r.URL.Query().Get("offset"))
		_, _ = io.WriteString(w, `{"meta":{"total":3},"results":[{"id":"c"}]}`)
	}))
	t.Cleanup(ts.Close)

	all, err := New(ts.URL, time.Second).AllVaults(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[2].ID)
	assert.Equal(t, 2, calls)
}

func TestChunkEndpoints(t *testing.T) {
	c, rec := newServer(t, 200, `{"url":"https://s3/put"}`)

	u, err := c.RequestUpload(context.Background(), "v1", "abcd", 42)
	require.NoError(t, err)
	assert.Equal(t, "https://s3/put", u)
	assert.Equal(t, "/chunks/v1/abcd", rec.path)
	assert.Equal(t, float64(42), rec.body["size"])

	_, err = c.RequestDownload(context.Background(), "v1", "abcd")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, rec.method)
}

func TestListStoredChunks(t *testing.T) {
	c, rec := newServer(t, 200, `{"hashes":["a","b"]}`)
	hashes, err := c.ListStoredChunks(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, hashes)
	assert.Equal(t, "/vaults/v1/chunks", rec.path)
}

func TestVersionChunksAndPending(t *testing.T) {
	c, rec := newServer(t, 200, `{"chunks":[{"hash":"h","position":0,"size":3}],"vaults":["v1"]}`)

	chunks, err := c.ListVersionChunks(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []models.FileChunk{{Hash: "h", Position: 0, Size: 3}}, chunks)
	assert.Equal(t, "/versions/x/chunks", rec.path)

	vaults, err := c.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, vaults)
	assert.Equal(t, "/events/pending", rec.path)
}

func TestNoContent(t *testing.T) {
	c, rec := newServer(t, http.StatusNoContent, ``)
	require.NoError(t, c.DeleteVault(context.Background(), "v1"))
	assert.Equal(t, http.MethodDelete, rec.method)
	require.NoError(t, c.Verify(context.Background(), "tok"))
	assert.Equal(t, map[string]any{"token": "tok"}, rec.body)
}
