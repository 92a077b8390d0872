package correlation

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/calshare/calshare/internal/test_utils"
	"github.com/google/uuid"
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

// setupRepositoryTest creates a connection, a local calendar and a pairing between them.
func setupRepositoryTest(t *testing.T) (context.Context, *RepositoryImpl, int) {
	test_utils.ResetDB(t, db)
	ctx := context.Background()
	userId := test_utils.TestUsers[0].Id

	var connectionId, calendarId, pairingId int
	require.NoError(t, db.QueryRow(ctx,
		`INSERT INTO calendar_connection (user_id, provider) VALUES ($1, 'google') RETURNING id`, userId).Scan(&connectionId))
	require.NoError(t, db.QueryRow(ctx,
		`INSERT INTO calendar (user_id, name) VALUES ($1, 'Work') RETURNING id`, userId).Scan(&calendarId))
	require.NoError(t, db.QueryRow(ctx,
		`INSERT INTO synced_calendar (connection_id, local_calendar_id, external_calendar_id) VALUES ($1, $2, 'primary') RETURNING id`,
		connectionId, calendarId).Scan(&pairingId))
	return ctx, NewRepository(db), pairingId
}

func TestRepositoryImpl_CreateAndFind(t *testing.T) {
	// given
	ctx, repo, pairingId := setupRepositoryTest(t)
	localId := uuid.New()
	lml := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	lme := time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)

	// when
	created, err := repo.Create(ctx, Correlation{
		PairingId:            pairingId,
		LocalEventId:         localId,
		ExternalEventId:      "ext1",
		LastModifiedLocal:    lml,
		LastModifiedExternal: lme,
	})
	require.NoError(t, err)
	byExternal, errExternal := repo.FindByExternalId(ctx, pairingId, "ext1")
	byLocal, errLocal := repo.FindByLocalId(ctx, pairingId, localId)

	// then
	require.NoError(t, errExternal)
	require.NoError(t, errLocal)
	assert.NotZero(t, created.Id)
	assert.Equal(t, created, byExternal)
	assert.Equal(t, created, byLocal)
	assert.Equal(t, lme, byLocal.Watermark())
}

func TestRepositoryImpl_NotFound(t *testing.T) {
	ctx, repo, pairingId := setupRepositoryTest(t)

	_, err := repo.FindByExternalId(ctx, pairingId, "missing")
	assert.ErrorIs(t, err, ErrCorrelationNotFound)

	_, err = repo.FindByLocalId(ctx, pairingId, uuid.New())
	assert.ErrorIs(t, err, ErrCorrelationNotFound)

	err = repo.Update(ctx, Correlation{Id: 999})
	assert.ErrorIs(t, err, ErrCorrelationNotFound)
}

func TestRepositoryImpl_UniquePerPairing(t *testing.T) {
	// given
	ctx, repo, pairingId := setupRepositoryTest(t)
	now := time.Now().UTC()
	first := Correlation{PairingId: pairingId, LocalEventId: uuid.New(), ExternalEventId: "ext1", LastModifiedLocal: now, LastModifiedExternal: now}
	_, err := repo.Create(ctx, first)
	require.NoError(t, err)

	// when
	_, sameExternal := repo.Create(ctx, Correlation{PairingId: pairingId, LocalEventId: uuid.New(), ExternalEventId: "ext1", LastModifiedLocal: now, LastModifiedExternal: now})
	_, sameLocal := repo.Create(ctx, Correlation{PairingId: pairingId, LocalEventId: first.LocalEventId, ExternalEventId: "ext2", LastModifiedLocal: now, LastModifiedExternal: now})

	// then
	assert.ErrorIs(t, sameExternal, ErrDuplicateCorrelation)
	assert.ErrorIs(t, sameLocal, ErrDuplicateCorrelation)
}

func TestRepositoryImpl_UpdateAndDelete(t *testing.T) {
	// given
	ctx, repo, pairingId := setupRepositoryTest(t)
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	c, err := repo.Create(ctx, Correlation{PairingId: pairingId, LocalEventId: uuid.New(), ExternalEventId: "ext1", LastModifiedLocal: base, LastModifiedExternal: base})
	require.NoError(t, err)
	other, err := repo.Create(ctx, Correlation{PairingId: pairingId, LocalEventId: uuid.New(), ExternalEventId: "ext2", LastModifiedLocal: base, LastModifiedExternal: base})
	require.NoError(t, err)

	// when
	c.LastModifiedLocal = base.Add(time.Hour)
	require.NoError(t, repo.Update(ctx, c))
	require.NoError(t, repo.Delete(ctx, other.Id))

	// then
	all, err := repo.ListByPairing(ctx, pairingId)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, base.Add(time.Hour), all[0].LastModifiedLocal)
	assert.Equal(t, base, all[0].LastModifiedExternal)
}

func TestRepositoryImpl_DeleteByPairingAndCascade(t *testing.T) {
	// given
	ctx, repo, pairingId := setupRepositoryTest(t)
	now := time.Now().UTC()
	for _, ext := range []string{"a", "b"} {
		_, err := repo.Create(ctx, Correlation{PairingId: pairingId, LocalEventId: uuid.New(), ExternalEventId: ext, LastModifiedLocal: now, LastModifiedExternal: now})
		require.NoError(t, err)
	}

	// when
	require.NoError(t, repo.DeleteByPairing(ctx, pairingId))

	// then
	all, err := repo.ListByPairing(ctx, pairingId)
	require.NoError(t, err)
	assert.Empty(t, all)

	// and removing the pairing cascades
	_, err = repo.Create(ctx, Correlation{PairingId: pairingId, LocalEventId: uuid.New(), ExternalEventId: "c", LastModifiedLocal: now, LastModifiedExternal: now})
	require.NoError(t, err)
	_, err = db.Exec(ctx, `DELETE FROM synced_calendar WHERE id = $1`, pairingId)
	require.NoError(t, err)
	all, err = repo.ListByPairing(ctx, pairingId)
	require.NoError(t, err)
	assert.Empty(t, all)
}
