package event_bus

import "github.com/google/uuid"

const (
	CalendarEventCreatedType EventType = "calendar.event.created"
	CalendarEventUpdatedType EventType = "calendar.event.updated"
	CalendarEventDeletedType EventType = "calendar.event.deleted"
)

// CalendarEventChanged is published after a user mutates a local calendar event.
// On deletion the event no longer exists and only the identifiers are meaningful.
type CalendarEventChanged struct {
	UserId     int
	CalendarId int
	EventId    uuid.UUID
	// RecurrenceTemplate marks series masters, which are never mirrored.
	RecurrenceTemplate bool
}
