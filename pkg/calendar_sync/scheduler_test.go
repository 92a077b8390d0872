package calendar_sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calshare/calshare/internal/config"
	"github.com/calshare/calshare/pkg/calendar"
	"github.com/calshare/calshare/pkg/connection"
	"github.com/calshare/calshare/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addConnection(t *testing.T, f *syncFixture, conn connection.Connection, calendarId string) connection.Connection {
	t.Helper()
	ctx := context.Background()
	conn.Status = connection.StatusActive
	stored := f.connections.Put(conn)
	cal, err := f.events.CreateCalendar(ctx, calendar.Calendar{UserId: conn.UserId, Name: calendarId})
	require.NoError(t, err)
	_, err = f.pairings.Create(ctx, Pairing{
		ConnectionId:       stored.Id,
		LocalCalendarId:    cal.Id,
		ExternalCalendarId: calendarId,
		Bidirectional:      true,
	})
	require.NoError(t, err)
	return stored
}

func countCalls(calls []string, call string) int {
	n := 0
	for _, c := range calls {
		if c == call {
			n++
		}
	}
	return n
}

func TestScheduler_TickSyncsDueConnections(t *testing.T) {
	// given
	f := setupSyncTest(t)
	recently := syncStart.Add(-2 * time.Minute)
	longAgo := syncStart.Add(-10 * time.Minute)
	addConnection(t, f, connection.Connection{UserId: 2, Provider: connection.Google, LastSyncedAt: &recently}, "recent")
	addConnection(t, f, connection.Connection{UserId: 3, Provider: connection.Google, LastSyncedAt: &longAgo}, "stale")
	addConnection(t, f, connection.Connection{UserId: 4, Provider: connection.Google, ReauthRequired: true}, "flagged")
	scheduler := NewScheduler(f.orchestrator, f.connections, config.Sync{IntervalMinutes: 5}, f.clock)

	// when
	scheduler.Tick(context.Background())

	// then
	calls := f.google.Calls()
	assert.Equal(t, 1, countCalls(calls, "fetch:primary"), "never synced")
	assert.Equal(t, 1, countCalls(calls, "fetch:stale"))
	assert.Zero(t, countCalls(calls, "fetch:recent"))
	assert.Zero(t, countCalls(calls, "fetch:flagged"))

	// when the interval has not passed yet
	f.clock.Advance(time.Minute)
	scheduler.Tick(context.Background())

	// then
	assert.Equal(t, 1, countCalls(f.google.Calls(), "fetch:primary"))
}

func TestScheduler_TickContinuesAfterFailure(t *testing.T) {
	// given
	f := setupSyncTest(t)
	f.google.FetchErr = &provider.ProviderAuthError{ConnectionId: f.conn.Id, Err: errors.New("401")}
	other := addConnection(t, f, connection.Connection{UserId: 2, Provider: connection.Microsoft}, "outlook")
	scheduler := NewScheduler(f.orchestrator, f.connections, config.Sync{IntervalMinutes: 5}, f.clock)

	// when
	scheduler.Tick(context.Background())

	// then
	assert.Equal(t, []string{"fetch:outlook"}, f.microsoft.Calls())
	conn, err := f.connections.GetById(context.Background(), other.Id)
	require.NoError(t, err)
	assert.NotNil(t, conn.LastSyncedAt)
	failed, _ := f.connections.GetById(context.Background(), f.conn.Id)
	assert.Nil(t, failed.LastSyncedAt)
}

func TestScheduler_StartStop(t *testing.T) {
	f := setupSyncTest(t)
	scheduler := NewScheduler(f.orchestrator, f.connections, config.Sync{IntervalMinutes: 5}, f.clock)

	require.NoError(t, scheduler.Start())
	scheduler.Stop()
}
