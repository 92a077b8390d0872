package connection

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/calshare/calshare/internal/test_utils"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var db *pgxpool.Pool

func TestMain(m *testing.M) {
	var cleanup func()
	db, cleanup = test_utils.TestWithDB()
	code := m.Run()
	cleanup()
	os.Exit(code)
}

func setupRepositoryTest(t *testing.T) (context.Context, *RepositoryImpl) {
	test_utils.ResetDB(t, db)
	return context.Background(), NewRepository(db)
}

func TestRepositoryImpl_UpsertReactivates(t *testing.T) {
	// given
	ctx, repo := setupRepositoryTest(t)
	userId := test_utils.TestUsers[0].Id
	first, err := repo.Upsert(ctx, Connection{UserId: userId, Provider: Google, ProviderUserId: "g-1",
		AccessToken: "a1", RefreshToken: "r1", TokenExpiry: now})
	require.NoError(t, err)
	require.NoError(t, repo.MarkReauthRequired(ctx, first.Id))
	require.NoError(t, repo.Deactivate(ctx, first.Id))

	// when
	second, err := repo.Upsert(ctx, Connection{UserId: userId, Provider: Google, ProviderUserId: "g-1",
		AccessToken: "a2", RefreshToken: "r2", TokenExpiry: now.Add(time.Hour)})

	// then
	require.NoError(t, err)
	assert.Equal(t, first.Id, second.Id)
	assert.Equal(t, StatusActive, second.Status)
	assert.False(t, second.ReauthRequired)
	assert.Equal(t, "a2", second.AccessToken)
	assert.Equal(t, "r2", second.RefreshToken)
}

func TestRepositoryImpl_DeactivateClearsTokens(t *testing.T) {
	// given
	ctx, repo := setupRepositoryTest(t)
	conn, err := repo.Upsert(ctx, Connection{UserId: test_utils.TestUsers[0].Id, Provider: Microsoft,
		AccessToken: "a", RefreshToken: "r", TokenExpiry: now})
	require.NoError(t, err)

	// when
	require.NoError(t, repo.Deactivate(ctx, conn.Id))

	// then
	stored, err := repo.GetById(ctx, conn.Id)
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, stored.Status)
	assert.Empty(t, stored.AccessToken)
	assert.Empty(t, stored.RefreshToken)
	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRepositoryImpl_TokensAndLastSync(t *testing.T) {
	// given
	ctx, repo := setupRepositoryTest(t)
	conn, err := repo.Upsert(ctx, Connection{UserId: test_utils.TestUsers[1].Id, Provider: Google,
		AccessToken: "a", RefreshToken: "r", TokenExpiry: now})
	require.NoError(t, err)

	// when
	require.NoError(t, repo.UpdateTokens(ctx, conn.Id, "a2", "", now.Add(time.Hour)))
	require.NoError(t, repo.UpdateLastSync(ctx, conn.Id, now))

	// then
	stored, err := repo.FindByUserAndProvider(ctx, test_utils.TestUsers[1].Id, Google)
	require.NoError(t, err)
	assert.Equal(t, "a2", stored.AccessToken)
	assert.Equal(t, "r", stored.RefreshToken, "refresh token kept when none is returned")
	assert.True(t, stored.TokenExpiry.Equal(now.Add(time.Hour)))
	require.NotNil(t, stored.LastSyncedAt)
	assert.True(t, stored.LastSyncedAt.Equal(now))
}

func TestRepositoryImpl_StateIsSingleUse(t *testing.T) {
	// given
	ctx, repo := setupRepositoryTest(t)
	state := AuthState{State: "abc", UserId: test_utils.TestUsers[0].Id, Provider: Google, FinalUrl: "http://app"}
	require.NoError(t, repo.StoreState(ctx, state))

	// when
	consumed, err := repo.ConsumeState(ctx, "abc")

	// then
	require.NoError(t, err)
	assert.Equal(t, state, consumed)
	_, err = repo.ConsumeState(ctx, "abc")
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestRepositoryImpl_MissingConnection(t *testing.T) {
	ctx, repo := setupRepositoryTest(t)

	_, err := repo.GetById(ctx, 404)
	assert.ErrorIs(t, err, ErrConnectionNotFound)
	assert.ErrorIs(t, repo.Deactivate(ctx, 404), ErrConnectionNotFound)
}
