package calendar

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/calshare/calshare/internal/utils"
	"github.com/google/uuid"
)

type RepositoryStub struct {
	mu             sync.RWMutex
	clock          utils.Clock
	calendars      map[int]Calendar
	events         map[uuid.UUID]Event
	nextCalendarId int
}

func NewRepositoryStub(clock utils.Clock) *RepositoryStub {
	return &RepositoryStub{
		clock:     clock,
		calendars: make(map[int]Calendar),
		events:    make(map[uuid.UUID]Event),
	}
}

// WithTransaction runs fn against the stub itself and restores the previous state when fn fails.
func (r *RepositoryStub) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	r.mu.RLock()
	calendars := make(map[int]Calendar, len(r.calendars))
	for k, v := range r.calendars {
		calendars[k] = v
	}
	events := make(map[uuid.UUID]Event, len(r.events))
	for k, v := range r.events {
		events[k] = v
	}
	r.mu.RUnlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.calendars = calendars
		r.events = events
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *RepositoryStub) CreateCalendar(ctx context.Context, cal Calendar) (Calendar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextCalendarId++
	cal.Id = r.nextCalendarId
	r.calendars[cal.Id] = cal
	return cal, nil
}

func (r *RepositoryStub) GetCalendar(ctx context.Context, calendarId int) (Calendar, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cal, ok := r.calendars[calendarId]
	if !ok {
		return Calendar{}, ErrCalendarNotFound
	}
	return cal, nil
}

func (r *RepositoryStub) ListCalendars(ctx context.Context, userId int) ([]Calendar, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Calendar, 0)
	for _, cal := range r.calendars {
		if cal.UserId == userId {
			result = append(result, cal)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Id < result[j].Id })
	return result, nil
}

func (r *RepositoryStub) DeleteCalendar(ctx context.Context, calendarId int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calendars[calendarId]; !ok {
		return ErrCalendarNotFound
	}
	delete(r.calendars, calendarId)
	for id, e := range r.events {
		if e.CalendarId == calendarId {
			delete(r.events, id)
		}
	}
	return nil
}

func (r *RepositoryStub) StoreEvent(ctx context.Context, event Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.Id == uuid.Nil {
		event.Id = uuid.New()
	}
	now := r.clock.Now()
	event.CreatedAt = now
	event.UpdatedAt = now
	r.events[event.Id] = event
	return event, nil
}

func (r *RepositoryStub) GetEvent(ctx context.Context, eventId uuid.UUID) (Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	event, ok := r.events[eventId]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return event, nil
}

func (r *RepositoryStub) FindEvents(ctx context.Context, calendarId int, from, to time.Time) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fromDate := from.Format(DateLayout)
	toDate := to.Format(DateLayout)
	result := make([]Event, 0)
	for _, e := range r.events {
		if e.CalendarId == calendarId && e.StartDate <= toDate && e.EndDate >= fromDate {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartDate != result[j].StartDate {
			return result[i].StartDate < result[j].StartDate
		}
		return result[i].Id.String() < result[j].Id.String()
	})
	return result, nil
}

func (r *RepositoryStub) UpdateEvent(ctx context.Context, event Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.events[event.Id]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	event.CalendarId = existing.CalendarId
	event.UserId = existing.UserId
	event.CreatedAt = existing.CreatedAt
	event.UpdatedAt = r.clock.Now()
	r.events[event.Id] = event
	return event, nil
}

func (r *RepositoryStub) DeleteEvent(ctx context.Context, eventId uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[eventId]; !ok {
		return ErrEventNotFound
	}
	delete(r.events, eventId)
	return nil
}

// AllEvents returns every stored event of the calendar, for test assertions.
func (r *RepositoryStub) AllEvents(calendarId int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if e.CalendarId == calendarId {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Title < result[j].Title })
	return result
}
