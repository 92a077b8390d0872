package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/calshare/calshare/internal/config"
	"github.com/calshare/calshare/internal/utils"
	"github.com/calshare/calshare/pkg/connection"
)

// EventTime is a provider's start or end value. Exactly one of DateTime and Date is set.
type EventTime struct {
	DateTime string
	TimeZone string
	Date     string
}

// RemoteEvent is the provider-neutral wire shape of an external event.
type RemoteEvent struct {
	Id           string
	Summary      string
	Description  string
	Location     string
	Start        EventTime
	End          EventTime
	AllDay       bool
	LastModified time.Time
	// SeriesMasterId is set on occurrences of a recurring series.
	SeriesMasterId   string
	OriginalStart    string
	OriginalTimeZone string
	IsSeriesMaster   bool
}

type CalendarInfo struct {
	Id        string
	Name      string
	IsPrimary bool
}

// Delta is the set of changes since a cursor. Complete is true when the delta is a full
// listing of the sync window rather than an incremental change set.
type Delta struct {
	Events     []RemoteEvent
	DeletedIds []string
	NextCursor string
	Complete   bool
}

type PushOp string

const (
	OpCreate PushOp = "create"
	OpUpdate PushOp = "update"
	OpDelete PushOp = "delete"
)

type PushResult struct {
	ExternalId   string
	LastModified time.Time
}

// Adapter talks to one provider's calendar API on behalf of a connection.
type Adapter interface {
	// FetchCalendarList lists the account's calendars. Failures yield an empty list.
	FetchCalendarList(ctx context.Context, conn connection.Connection) []CalendarInfo
	// FetchEventDelta returns changes since cursor, or a full listing of the sync window when
	// cursor is empty or no longer accepted by the provider.
	FetchEventDelta(ctx context.Context, conn connection.Connection, calendarId, cursor string) (Delta, error)
	// PushEvent applies op remotely. payload is ignored for deletes.
	PushEvent(ctx context.Context, conn connection.Connection, calendarId string, op PushOp, externalId string, payload *RemoteEvent) (PushResult, error)
}

// Window bounds full fetches relative to now.
type Window struct {
	LookBack  time.Duration
	LookAhead time.Duration
	clock     utils.Clock
}

func NewWindow(cfg config.Sync, clock utils.Clock) Window {
	lookAhead := cfg.LookAheadDays
	if lookAhead <= 0 || lookAhead > config.MaxLookAheadDays {
		lookAhead = config.MaxLookAheadDays
	}
	return Window{
		LookBack:  time.Duration(cfg.LookBackDays) * 24 * time.Hour,
		LookAhead: time.Duration(lookAhead) * 24 * time.Hour,
		clock:     clock,
	}
}

func (w Window) Range() (time.Time, time.Time) {
	now := w.clock.Now().UTC()
	return now.Add(-w.LookBack), now.Add(w.LookAhead)
}

// Contains reports whether [start, end) overlaps the window.
func (w Window) Contains(start, end time.Time) bool {
	from, to := w.Range()
	return start.Before(to) && end.After(from)
}

// Registry selects the adapter for a connection's provider.
type Registry struct {
	adapters map[connection.Provider]Adapter
}

func NewRegistry(adapters map[connection.Provider]Adapter) *Registry {
	return &Registry{adapters: adapters}
}

func (r *Registry) For(p connection.Provider) (Adapter, error) {
	adapter, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", connection.ErrUnknownProvider, p)
	}
	return adapter, nil
}
