package metadata

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vaultsync/internal/client/migrations"
	"github.com/dmitrijs2005/vaultsync/internal/common"

	_ "modernc.org/sqlite"
)

func newRepo(t *testing.T) (*SQLiteRepository, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.Up(context.Background(), db))
	return NewSQLiteRepository(db), db
}

func TestSession_StoredAndReplaced(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	_, err := r.Get(ctx, KeySessionToken)
	require.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, r.Set(ctx, KeySessionToken, "t1"))
	require.NoError(t, r.Set(ctx, KeySessionToken, "t2"))

	v, err := r.Get(ctx, KeySessionToken)
	require.NoError(t, err)
	assert.Equal(t, "t2", v)

	require.NoError(t, r.Delete(ctx, KeySessionToken))
	require.NoError(t, r.Delete(ctx, KeySessionToken))
	_, err = r.Get(ctx, KeySessionToken)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestVaultKeys_ScanAndDeletePrefix(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, VaultLastSeenKey("v1"), "2024-01-01T00:00:00Z"))
	require.NoError(t, r.Set(ctx, VaultDirtyKey("v1"), "1"))
	require.NoError(t, r.Set(ctx, VaultPatchKey("v1"), "1"))
	require.NoError(t, r.Set(ctx, VaultDirtyKey("v10"), "1"))
	require.NoError(t, r.Set(ctx, VaultDirtyKey("v_1"), "1"))
	require.NoError(t, r.Set(ctx, KeyEmail, "a@b.c"))

	got, err := r.Scan(ctx, VaultPrefix("v1"))
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "1", got[VaultPatchKey("v1")])

	require.NoError(t, r.DeletePrefix(ctx, VaultPrefix("v1")))

	all, err := r.Scan(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		VaultDirtyKey("v10"): "1",
		VaultDirtyKey("v_1"): "1",
		KeyEmail:             "a@b.c",
	}, all)
}

func TestClear(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, KeySessionID, "s1"))
	require.NoError(t, r.Set(ctx, VaultDirtyKey("v1"), "1"))
	require.NoError(t, r.Clear(ctx))

	all, err := r.Scan(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestIsSet(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()
	key := VaultDirtyKey("v1")

	ok, err := IsSet(ctx, r, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, key, ""))
	ok, err = IsSet(ctx, r, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClosedDatabase(t *testing.T) {
	r, db := newRepo(t)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "k")
	assert.ErrorContains(t, err, `metadata get "k"`)
	assert.ErrorContains(t, r.Set(ctx, "k", "v"), `metadata set "k"`)
	assert.ErrorContains(t, r.Delete(ctx, "k"), `metadata delete "k"`)
	assert.ErrorContains(t, r.Clear(ctx), `metadata delete "*"`)
	_, err = r.Scan(ctx, "vault:")
	assert.ErrorContains(t, err, `metadata scan "vault:*"`)

	ok, err := IsSet(ctx, r, "k")
	assert.False(t, ok)
	assert.Error(t, err)
}
