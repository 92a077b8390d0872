package calendar_sync

import (
	"context"
	"errors"

	"github.com/calshare/calshare/internal/event_bus"
	"github.com/calshare/calshare/pkg/calendar"
	"github.com/calshare/calshare/pkg/connection"
	"github.com/calshare/calshare/pkg/correlation"
	"github.com/calshare/calshare/pkg/provider"
	log "github.com/sirupsen/logrus"
)

type localChange = event_bus.EventT[event_bus.CalendarEventChanged]

// RegisterHooks pushes local changes of paired calendars as soon as they happen. Pushes run in
// the background; Wait blocks until they finish.
func (o *Orchestrator) RegisterHooks(bus *event_bus.EventBus) {
	event_bus.SubscribeTyped(bus, event_bus.CalendarEventCreatedType, o.onLocalChange)
	event_bus.SubscribeTyped(bus, event_bus.CalendarEventUpdatedType, o.onLocalChange)
	event_bus.SubscribeTyped(bus, event_bus.CalendarEventDeletedType, o.onLocalChange)
}

// Wait blocks until all background pushes started by hooks have finished.
func (o *Orchestrator) Wait() {
	o.hooks.Wait()
}

func (o *Orchestrator) onLocalChange(e localChange) error {
	if e.Data.RecurrenceTemplate {
		return nil
	}
	ctx := context.WithoutCancel(e.Context())
	o.hooks.Add(1)
	go func() {
		defer o.hooks.Done()
		o.pushLocalChange(ctx, e.Type, e.Data)
	}()
	return nil
}

func (o *Orchestrator) pushLocalChange(ctx context.Context, eventType event_bus.EventType, change event_bus.CalendarEventChanged) {
	pairings, err := o.pairings.ListByLocalCalendar(ctx, change.CalendarId)
	if err != nil {
		log.Errorf("failed to find pairings of calendar %d: %v", change.CalendarId, err)
		return
	}
	for _, p := range pairings {
		if !p.Bidirectional {
			continue
		}
		conn, err := o.connections.GetById(ctx, p.ConnectionId)
		if err != nil {
			log.Errorf("failed to load connection %d: %v", p.ConnectionId, err)
			continue
		}
		if !conn.IsActive() || conn.ReauthRequired {
			continue
		}
		if !o.acquire(conn.Id) {
			log.Infof("Sync of connection %d is running, event %s will be pushed by it or the next run", conn.Id, change.EventId)
			continue
		}
		err = o.pushChange(ctx, conn, p, eventType, change)
		o.release(conn.Id)
		if err != nil {
			log.Errorf("failed to push %s of event %s to %s: %v", eventType, change.EventId, conn.Provider, err)
		}
	}
}

func (o *Orchestrator) pushChange(ctx context.Context, conn connection.Connection, p Pairing, eventType event_bus.EventType, change event_bus.CalendarEventChanged) error {
	adapter, err := o.adapters.For(conn.Provider)
	if err != nil {
		return err
	}

	if eventType == event_bus.CalendarEventDeletedType {
		c, err := o.correlations.FindByLocalId(ctx, p.Id, change.EventId)
		if errors.Is(err, correlation.ErrCorrelationNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		return o.pushDelete(ctx, conn, adapter, p, c)
	}

	event, err := o.events.GetEvent(ctx, change.EventId)
	if errors.Is(err, calendar.ErrEventNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if !o.inWindow(event) {
		return nil
	}
	timezone := o.userTimezone(ctx, conn.UserId)

	c, err := o.correlations.FindByLocalId(ctx, p.Id, event.Id)
	var op provider.PushOp
	if errors.Is(err, correlation.ErrCorrelationNotFound) {
		op, err = o.pushCreate(ctx, conn, adapter, p, event, timezone)
	} else if err == nil {
		op, err = o.pushUpdate(ctx, conn, adapter, p, c, event, timezone)
	}
	if err != nil {
		return err
	}
	if op != "" {
		log.Debugf("Pushed %s of event %s to %s", op, event.Id, conn.Provider)
	}
	return nil
}
