package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var ErrInvalidEvent = errors.New("invalid event")

type Calendar struct {
	Id     int
	UserId int
	Name   string
	Color  string
}

// Event is a local calendar event. Dates and times are wall-clock values in Timezone;
// all-day events have no times and an inclusive EndDate.
type Event struct {
	Id          uuid.UUID
	CalendarId  int
	UserId      int
	Title       string
	Description string
	Location    string
	AllDay      bool
	StartDate   string
	StartTime   *string
	EndDate     string
	EndTime     *string
	Timezone    string
	// Recurrence holds an RRULE on series templates.
	Recurrence string
	// SeriesId and OriginalStart identify an instance of a recurring series.
	SeriesId      string
	OriginalStart string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsRecurrenceTemplate reports whether the event is a series master rather than a concrete occurrence.
func (e Event) IsRecurrenceTemplate() bool {
	return e.Recurrence != "" && e.SeriesId == ""
}

// Bounds returns the absolute start and end of the event. All-day events span whole days
// with an exclusive end.
func (e Event) Bounds() (time.Time, time.Time, error) {
	loc := time.UTC
	if e.Timezone != "" {
		l, err := time.LoadLocation(e.Timezone)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown timezone %q", ErrInvalidEvent, e.Timezone)
		}
		loc = l
	}

	start, err := parseWallClock(e.StartDate, e.StartTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseWallClock(e.EndDate, e.EndTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if e.AllDay {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

func (e Event) Validate() error {
	if e.AllDay && (e.StartTime != nil || e.EndTime != nil) {
		return fmt.Errorf("%w: all-day event must not carry times", ErrInvalidEvent)
	}
	if !e.AllDay && (e.StartTime == nil || e.EndTime == nil) {
		return fmt.Errorf("%w: timed event requires start and end time", ErrInvalidEvent)
	}
	start, end, err := e.Bounds()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end before start", ErrInvalidEvent)
	}
	return nil
}

func parseWallClock(date string, clock *string, loc *time.Location) (time.Time, error) {
	if clock == nil {
		t, err := time.ParseInLocation(DateLayout, date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: bad date %q", ErrInvalidEvent, date)
		}
		return t, nil
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+*clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date-time %q %q", ErrInvalidEvent, date, *clock)
	}
	return t, nil
}

// TimeOf returns a pointer to a formatted time-of-day.
func TimeOf(t time.Time) *string {
	s := t.Format(TimeLayout)
	return &s
}
