package calendar

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

func setupRepositoryTest(t *testing.T) (context.Context, *RepositoryImpl, Calendar) {
	test_utils.ResetDB(t, db)
	ctx := context.Background()
	repo := NewRepository(db)
	cal, err := repo.CreateCalendar(ctx, Calendar{UserId: test_utils.TestUsers[0].Id, Name: "Work"})
	require.NoError(t, err)
	return ctx, repo, cal
}

func TestRepositoryImpl_StoreAndGetEvent(t *testing.T) {
	// given
	ctx, repo, cal := setupRepositoryTest(t)
	event := timedEvent("Planning", "2024-06-03", "09:00", "10:30")
	event.CalendarId = cal.Id
	event.UserId = cal.UserId

	// when
	stored, err := repo.StoreEvent(ctx, event)
	require.NoError(t, err)
	fetched, err := repo.GetEvent(ctx, stored.Id)

	// then
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, stored.Id)
	assert.Equal(t, "Planning", fetched.Title)
	assert.Equal(t, "2024-06-03", fetched.StartDate)
	require.NotNil(t, fetched.StartTime)
	assert.Equal(t, "09:00", *fetched.StartTime)
	assert.False(t, fetched.UpdatedAt.IsZero())
}

func TestRepositoryImpl_FindEventsOverlap(t *testing.T) {
	// given
	ctx, repo, cal := setupRepositoryTest(t)
	for _, e := range []Event{
		{Title: "before", AllDay: true, StartDate: "2024-05-01", EndDate: "2024-05-02"},
		{Title: "spanning", AllDay: true, StartDate: "2024-05-30", EndDate: "2024-06-02"},
		{Title: "inside", AllDay: true, StartDate: "2024-06-10", EndDate: "2024-06-10"},
		{Title: "after", AllDay: true, StartDate: "2024-07-01", EndDate: "2024-07-01"},
	} {
		e.CalendarId = cal.Id
		e.UserId = cal.UserId
		_, err := repo.StoreEvent(ctx, e)
		require.NoError(t, err)
	}

	// when
	events, err := repo.FindEvents(ctx, cal.Id,
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC))

	// then
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "spanning", events[0].Title)
	assert.Equal(t, "inside", events[1].Title)
}

func TestRepositoryImpl_UpdateMissingEvent(t *testing.T) {
	ctx, repo, _ := setupRepositoryTest(t)

	_, err := repo.UpdateEvent(ctx, Event{Id: uuid.New(), StartDate: "2024-06-01", EndDate: "2024-06-01", AllDay: true})

	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestRepositoryImpl_TransactionRollback(t *testing.T) {
	// given
	ctx, repo, cal := setupRepositoryTest(t)
	event := Event{Title: "rolled back", AllDay: true, StartDate: "2024-06-01", EndDate: "2024-06-01",
		CalendarId: cal.Id, UserId: cal.UserId}

	// when
	err := repo.WithTransaction(ctx, func(txRepo Repository) error {
		if _, err := txRepo.StoreEvent(ctx, event); err != nil {
			return err
		}
		return assert.AnError
	})

	// then
	assert.ErrorIs(t, err, assert.AnError)
	events, err := repo.FindEvents(ctx, cal.Id, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRepositoryImpl_DeleteCalendarCascades(t *testing.T) {
	// given
	ctx, repo, cal := setupRepositoryTest(t)
	stored, err := repo.StoreEvent(ctx, Event{Title: "x", AllDay: true, StartDate: "2024-06-01", EndDate: "2024-06-01",
		CalendarId: cal.Id, UserId: cal.UserId})
	require.NoError(t, err)

	// when
	err = repo.DeleteCalendar(ctx, cal.Id)

	// then
	require.NoError(t, err)
	_, err = repo.GetEvent(ctx, stored.Id)
	assert.ErrorIs(t, err, ErrEventNotFound)
}
