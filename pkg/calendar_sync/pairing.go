package calendar_sync

import (
	"time"
)

// Pairing mirrors one external calendar of a connection into one local calendar.
type Pairing struct {
	Id                 int
	ConnectionId       int
	LocalCalendarId    int
	ExternalCalendarId string
	ExternalName       string
	Bidirectional      bool
	// Cursor is the provider's opaque delta token. Empty forces a full window fetch.
	Cursor       string
	LastSyncedAt *time.Time
}
