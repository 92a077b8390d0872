package calendar_sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calshare/calshare/pkg/calendar"
	"github.com/calshare/calshare/pkg/connection"
	"github.com/calshare/calshare/pkg/provider"
	log "github.com/sirupsen/logrus"
)

var ErrInvalidPairing = errors.New("invalid pairing")

// ConnectionStatus describes a user's link to one provider.
type ConnectionStatus struct {
	Provider       connection.Provider
	Connected      bool
	ReauthRequired bool
	LastSyncedAt   *time.Time
	Pairings       []Pairing
}

// NewPairing describes an external calendar to mirror.
type NewPairing struct {
	ExternalCalendarId string
	Name               string
	Bidirectional      bool
}

// activeConnection returns the user's ACTIVE connection to the provider or ErrNotConnected.
func (o *Orchestrator) activeConnection(ctx context.Context, userId int, p connection.Provider) (connection.Connection, error) {
	conn, err := o.connections.FindByUserAndProvider(ctx, userId, p)
	if errors.Is(err, connection.ErrConnectionNotFound) {
		return connection.Connection{}, ErrNotConnected
	} else if err != nil {
		return connection.Connection{}, err
	}
	if !conn.IsActive() {
		return connection.Connection{}, ErrNotConnected
	}
	return conn, nil
}

func (o *Orchestrator) Status(ctx context.Context, userId int, p connection.Provider) (ConnectionStatus, error) {
	status := ConnectionStatus{Provider: p, Pairings: []Pairing{}}
	conn, err := o.activeConnection(ctx, userId, p)
	if errors.Is(err, ErrNotConnected) {
		return status, nil
	} else if err != nil {
		return ConnectionStatus{}, err
	}
	pairings, err := o.pairings.ListByConnection(ctx, conn.Id)
	if err != nil {
		return ConnectionStatus{}, err
	}
	status.Connected = true
	status.ReauthRequired = conn.ReauthRequired
	status.LastSyncedAt = conn.LastSyncedAt
	status.Pairings = pairings
	return status, nil
}

func (o *Orchestrator) ListProviderCalendars(ctx context.Context, userId int, p connection.Provider) ([]provider.CalendarInfo, error) {
	conn, err := o.activeConnection(ctx, userId, p)
	if err != nil {
		return nil, err
	}
	adapter, err := o.adapters.For(p)
	if err != nil {
		return nil, err
	}
	return adapter.FetchCalendarList(ctx, conn), nil
}

// AddPairing creates a local calendar and starts mirroring the external one into it.
// The first run does a full window fetch.
func (o *Orchestrator) AddPairing(ctx context.Context, userId int, p connection.Provider, req NewPairing) (Pairing, error) {
	if req.ExternalCalendarId == "" {
		return Pairing{}, fmt.Errorf("%w: external calendar id is required", ErrInvalidPairing)
	}
	conn, err := o.activeConnection(ctx, userId, p)
	if err != nil {
		return Pairing{}, err
	}

	name := req.Name
	if name == "" {
		name = o.externalCalendarName(ctx, conn, req.ExternalCalendarId)
	}
	cal, err := o.events.CreateCalendar(ctx, calendar.Calendar{UserId: userId, Name: name})
	if err != nil {
		return Pairing{}, err
	}

	pairing, err := o.pairings.Create(ctx, Pairing{
		ConnectionId:       conn.Id,
		LocalCalendarId:    cal.Id,
		ExternalCalendarId: req.ExternalCalendarId,
		ExternalName:       name,
		Bidirectional:      req.Bidirectional,
	})
	if err != nil {
		if delErr := o.events.DeleteCalendar(ctx, cal.Id); delErr != nil {
			log.Errorf("failed to remove calendar %d of rejected pairing: %v", cal.Id, delErr)
		}
		return Pairing{}, err
	}
	log.Infof("Paired %s calendar %s with local calendar %d", p, req.ExternalCalendarId, cal.Id)
	return pairing, nil
}

func (o *Orchestrator) externalCalendarName(ctx context.Context, conn connection.Connection, calendarId string) string {
	adapter, err := o.adapters.For(conn.Provider)
	if err != nil {
		return calendarId
	}
	for _, info := range adapter.FetchCalendarList(ctx, conn) {
		if info.Id == calendarId && info.Name != "" {
			return info.Name
		}
	}
	return calendarId
}

// RemovePairing stops mirroring and drops the local calendar with its events.
func (o *Orchestrator) RemovePairing(ctx context.Context, userId int, p connection.Provider, pairingId int) error {
	conn, err := o.activeConnection(ctx, userId, p)
	if err != nil {
		return err
	}
	pairing, err := o.pairings.Get(ctx, pairingId)
	if err != nil {
		return err
	}
	if pairing.ConnectionId != conn.Id {
		return ErrPairingNotFound
	}
	if !o.acquire(conn.Id) {
		return ErrSyncInProgress
	}
	defer o.release(conn.Id)

	return o.unpair(ctx, pairing)
}

// unpair drops the pairing, its correlations and the local calendar created for it.
func (o *Orchestrator) unpair(ctx context.Context, pairing Pairing) error {
	if err := o.correlations.DeleteByPairing(ctx, pairing.Id); err != nil {
		return err
	}
	if err := o.pairings.Delete(ctx, pairing.Id); err != nil && !errors.Is(err, ErrPairingNotFound) {
		return err
	}
	if err := o.events.DeleteCalendar(ctx, pairing.LocalCalendarId); err != nil && !errors.Is(err, calendar.ErrCalendarNotFound) {
		return err
	}
	return nil
}

// Disconnect removes every pairing of the connection together with its local calendar and marks
// the connection INACTIVE.
func (o *Orchestrator) Disconnect(ctx context.Context, userId int, p connection.Provider) error {
	conn, err := o.activeConnection(ctx, userId, p)
	if err != nil {
		return err
	}
	if !o.acquire(conn.Id) {
		return ErrSyncInProgress
	}
	defer o.release(conn.Id)

	pairings, err := o.pairings.ListByConnection(ctx, conn.Id)
	if err != nil {
		return err
	}
	for _, pairing := range pairings {
		if err := o.unpair(ctx, pairing); err != nil {
			return err
		}
	}
	if err := o.connections.Deactivate(ctx, conn.Id); err != nil {
		return err
	}
	log.Infof("Disconnected %s for user %d", p, userId)
	return nil
}

// ForceSync runs the user's connection now, ignoring the schedule.
func (o *Orchestrator) ForceSync(ctx context.Context, userId int, p connection.Provider) (Result, error) {
	conn, err := o.activeConnection(ctx, userId, p)
	if err != nil {
		return Result{}, err
	}
	return o.RunSync(ctx, conn)
}

// SyncConnection runs one connection by id.
func (o *Orchestrator) SyncConnection(ctx context.Context, connectionId int) (Result, error) {
	conn, err := o.connections.GetById(ctx, connectionId)
	if err != nil {
		return Result{}, err
	}
	return o.RunSync(ctx, conn)
}
