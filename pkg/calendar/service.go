package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calshare/calshare/internal/event_bus"
	"github.com/calshare/calshare/pkg/user"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var ErrForbidden = errors.New("calendar belongs to another user")

// Service is the user-facing calendar API. Every mutation is announced on the event bus.
type Service struct {
	repo     Repository
	eventBus *event_bus.EventBus
}

func NewService(repo Repository, eventBus *event_bus.EventBus) *Service {
	return &Service{
		repo:     repo,
		eventBus: eventBus,
	}
}

func (s *Service) CreateCalendar(ctx context.Context, name, color string) (Calendar, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Calendar{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.CreateCalendar(ctx, Calendar{UserId: userId, Name: name, Color: color})
}

func (s *Service) ListCalendars(ctx context.Context) ([]Calendar, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.ListCalendars(ctx, userId)
}

func (s *Service) GetEvents(ctx context.Context, calendarId int, from, to time.Time) ([]Event, error) {
	if _, err := s.ownedCalendar(ctx, calendarId); err != nil {
		return nil, err
	}
	return s.repo.FindEvents(ctx, calendarId, from, to)
}

func (s *Service) AddEvent(ctx context.Context, calendarId int, event Event) (Event, error) {
	cal, err := s.ownedCalendar(ctx, calendarId)
	if err != nil {
		return Event{}, err
	}
	if err := event.Validate(); err != nil {
		return Event{}, err
	}

	event.Id = uuid.Nil
	event.CalendarId = cal.Id
	event.UserId = cal.UserId
	stored, err := s.repo.StoreEvent(ctx, event)
	if err != nil {
		return Event{}, fmt.Errorf("failed to store event: %w", err)
	}

	s.publish(ctx, event_bus.CalendarEventCreatedType, stored)
	return stored, nil
}

func (s *Service) ModifyEvent(ctx context.Context, calendarId int, event Event) (Event, error) {
	if _, err := s.ownedEvent(ctx, calendarId, event.Id); err != nil {
		return Event{}, err
	}
	if err := event.Validate(); err != nil {
		return Event{}, err
	}

	updated, err := s.repo.UpdateEvent(ctx, event)
	if err != nil {
		return Event{}, fmt.Errorf("failed to update event: %w", err)
	}

	s.publish(ctx, event_bus.CalendarEventUpdatedType, updated)
	return updated, nil
}

func (s *Service) DeleteEvent(ctx context.Context, calendarId int, eventId uuid.UUID) error {
	existing, err := s.ownedEvent(ctx, calendarId, eventId)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteEvent(ctx, eventId); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}

	s.publish(ctx, event_bus.CalendarEventDeletedType, existing)
	return nil
}

func (s *Service) ownedCalendar(ctx context.Context, calendarId int) (Calendar, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Calendar{}, fmt.Errorf("failed to get current user: %w", err)
	}
	cal, err := s.repo.GetCalendar(ctx, calendarId)
	if err != nil {
		return Calendar{}, err
	}
	if cal.UserId != userId {
		return Calendar{}, ErrForbidden
	}
	return cal, nil
}

func (s *Service) ownedEvent(ctx context.Context, calendarId int, eventId uuid.UUID) (Event, error) {
	if _, err := s.ownedCalendar(ctx, calendarId); err != nil {
		return Event{}, err
	}
	existing, err := s.repo.GetEvent(ctx, eventId)
	if err != nil {
		return Event{}, err
	}
	if existing.CalendarId != calendarId {
		return Event{}, ErrEventNotFound
	}
	return existing, nil
}

// publish announces a change. Subscribers never fail the user's request.
func (s *Service) publish(ctx context.Context, eventType event_bus.EventType, e Event) {
	if s.eventBus == nil {
		return
	}
	err := s.eventBus.Publish(event_bus.NewEvent(ctx, eventType, event_bus.CalendarEventChanged{
		UserId:             e.UserId,
		CalendarId:         e.CalendarId,
		EventId:            e.Id,
		RecurrenceTemplate: e.IsRecurrenceTemplate(),
	}))
	if err != nil {
		log.Warnf("failed to publish %s for event %s: %v", eventType, e.Id, err)
	}
}
