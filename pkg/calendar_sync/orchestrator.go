package calendar_sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/calshare/calshare/internal/utils"
	"github.com/calshare/calshare/pkg/calendar"
	"github.com/calshare/calshare/pkg/connection"
	"github.com/calshare/calshare/pkg/correlation"
	"github.com/calshare/calshare/pkg/event_mapper"
	"github.com/calshare/calshare/pkg/provider"
	"github.com/calshare/calshare/pkg/user"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var ErrNotConnected = errors.New("provider is not connected")
var ErrSyncInProgress = errors.New("synchronization of this connection is in progress")

// TimezoneFinder resolves the zone synced events are expressed in.
type TimezoneFinder interface {
	FindUserTimezone(ctx context.Context, userId int) (string, error)
}

// Result counts what one run did.
type Result struct {
	Skipped       bool `json:"skipped"`
	PulledCreated int  `json:"pulledCreated"`
	PulledUpdated int  `json:"pulledUpdated"`
	PulledDeleted int  `json:"pulledDeleted"`
	PushedCreated int  `json:"pushedCreated"`
	PushedUpdated int  `json:"pushedUpdated"`
	PushedDeleted int  `json:"pushedDeleted"`
	Unchanged     int  `json:"unchanged"`
	Failed        int  `json:"failed"`
}

// Orchestrator runs pull-then-push for a connection's pairings. At most one run per
// connection is in flight; a concurrent trigger is skipped.
type Orchestrator struct {
	connections  connection.Repository
	pairings     PairingRepository
	correlations correlation.Repository
	events       calendar.Repository
	users        TimezoneFinder
	adapters     *provider.Registry
	window       provider.Window
	clock        utils.Clock
	automation   Automation

	mu      sync.Mutex
	running map[int]struct{}
	hooks   sync.WaitGroup
}

func NewOrchestrator(
	connections connection.Repository,
	pairings PairingRepository,
	correlations correlation.Repository,
	events calendar.Repository,
	users TimezoneFinder,
	adapters *provider.Registry,
	window provider.Window,
	clock utils.Clock,
) *Orchestrator {
	return &Orchestrator{
		connections:  connections,
		pairings:     pairings,
		correlations: correlations,
		events:       events,
		users:        users,
		adapters:     adapters,
		window:       window,
		clock:        clock,
		running:      make(map[int]struct{}),
	}
}

// SetAutomation attaches the optional rule engine notified about imported events.
func (o *Orchestrator) SetAutomation(a Automation) {
	o.automation = a
}

func (o *Orchestrator) acquire(connectionId int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.running[connectionId]; busy {
		return false
	}
	o.running[connectionId] = struct{}{}
	return true
}

func (o *Orchestrator) release(connectionId int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, connectionId)
}

// isConnectionError reports failures that make every further call for the connection pointless.
func isConnectionError(err error) bool {
	var authErr *provider.ProviderAuthError
	var reauthErr *connection.ReauthorizationRequiredError
	return errors.As(err, &authErr) || errors.As(err, &reauthErr)
}

// RunSync pulls and then pushes every pairing of the connection. Per-event failures are counted
// and skipped; authorization failures abort the run and are returned.
func (o *Orchestrator) RunSync(ctx context.Context, conn connection.Connection) (Result, error) {
	if !o.acquire(conn.Id) {
		log.Infof("Sync of connection %d is already running, skipping", conn.Id)
		return Result{Skipped: true}, nil
	}
	defer o.release(conn.Id)

	if !conn.IsActive() {
		return Result{}, fmt.Errorf("%w: connection %d is inactive", ErrNotConnected, conn.Id)
	}
	if conn.ReauthRequired {
		return Result{}, &connection.ReauthorizationRequiredError{ConnectionId: conn.Id}
	}

	adapter, err := o.adapters.For(conn.Provider)
	if err != nil {
		return Result{}, err
	}
	pairings, err := o.pairings.ListByConnection(ctx, conn.Id)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list pairings of connection %d: %w", conn.Id, err)
	}
	timezone := o.userTimezone(ctx, conn.UserId)

	started := o.clock.Now()
	var result Result
	for _, p := range pairings {
		if err := o.syncPairing(ctx, conn, adapter, p, timezone, &result); err != nil {
			if isConnectionError(err) {
				log.Warnf("Sync of connection %d aborted: %v", conn.Id, err)
				return result, err
			}
			log.Errorf("Sync of pairing %d (%s) failed: %v", p.Id, p.ExternalCalendarId, err)
			result.Failed++
		}
	}

	if err := o.connections.UpdateLastSync(ctx, conn.Id, o.clock.Now()); err != nil {
		log.Errorf("failed to record last sync of connection %d: %v", conn.Id, err)
	}
	log.Infof("Synced %s connection %d in %s: %+v", conn.Provider, conn.Id, o.clock.Now().Sub(started), result)
	return result, nil
}

func (o *Orchestrator) userTimezone(ctx context.Context, userId int) string {
	tz, err := o.users.FindUserTimezone(ctx, userId)
	if err != nil || tz == "" {
		log.Warnf("unable to find timezone of user %d, using %s: %v", userId, user.DefaultTimezone, err)
		return user.DefaultTimezone
	}
	return tz
}

func (o *Orchestrator) syncPairing(ctx context.Context, conn connection.Connection, adapter provider.Adapter, p Pairing, timezone string, result *Result) error {
	delta, err := adapter.FetchEventDelta(ctx, conn, p.ExternalCalendarId, p.Cursor)
	if err != nil {
		return err
	}

	touched, err := o.pull(ctx, conn, p, delta, timezone, result)
	if err != nil {
		return err
	}
	if delta.NextCursor != "" && delta.NextCursor != p.Cursor {
		if err := o.pairings.UpdateCursor(ctx, p.Id, delta.NextCursor); err != nil {
			return fmt.Errorf("failed to store cursor: %w", err)
		}
	}

	if p.Bidirectional {
		if err := o.push(ctx, conn, adapter, p, timezone, touched, result); err != nil {
			return err
		}
	}

	if err := o.pairings.UpdateLastSync(ctx, p.Id, o.clock.Now()); err != nil {
		log.Errorf("failed to record last sync of pairing %d: %v", p.Id, err)
	}
	return nil
}

// pull applies remote changes locally. Deletions go first so that an id reused by the provider
// is recreated rather than updated. It returns the local events it wrote.
func (o *Orchestrator) pull(ctx context.Context, conn connection.Connection, p Pairing, delta provider.Delta, timezone string, result *Result) (map[uuid.UUID]bool, error) {
	existing, err := o.correlations.ListByPairing(ctx, p.Id)
	if err != nil {
		return nil, err
	}
	byExternal := make(map[string]correlation.Correlation, len(existing))
	for _, c := range existing {
		byExternal[c.ExternalEventId] = c
	}
	touched := make(map[uuid.UUID]bool)

	for _, externalId := range delta.DeletedIds {
		c, ok := byExternal[externalId]
		if !ok {
			continue
		}
		if err := o.deleteLocal(ctx, c); err != nil {
			log.Errorf("failed to delete local event %s mirrored from %s: %v", c.LocalEventId, externalId, err)
			result.Failed++
			continue
		}
		delete(byExternal, externalId)
		result.PulledDeleted++
	}

	listed := make(map[string]bool, len(delta.Events))
	var created []calendar.Event
	for _, remote := range delta.Events {
		listed[remote.Id] = true
		if remote.IsSeriesMaster {
			continue
		}

		c, correlated := byExternal[remote.Id]
		if correlated {
			if !remote.LastModified.After(c.Watermark()) {
				result.Unchanged++
				continue
			}
			updated, err := o.applyRemoteUpdate(ctx, conn, c, remote, timezone)
			if err != nil {
				log.Errorf("failed to update local event from %s event %s: %v", conn.Provider, remote.Id, err)
				result.Failed++
				continue
			}
			if updated != uuid.Nil {
				touched[updated] = true
				result.PulledUpdated++
			}
			continue
		}

		stored, err := o.applyRemoteCreate(ctx, conn, p, remote, timezone)
		if err != nil {
			if !errors.Is(err, event_mapper.ErrRecurrenceTemplate) {
				log.Errorf("failed to import %s event %s: %v", conn.Provider, remote.Id, err)
				result.Failed++
			}
			continue
		}
		touched[stored.Id] = true
		created = append(created, stored)
		result.PulledCreated++
	}

	if delta.Complete {
		for externalId, c := range byExternal {
			if listed[externalId] {
				continue
			}
			if o.vanishedRemotely(ctx, c) {
				if err := o.deleteLocal(ctx, c); err != nil {
					log.Errorf("failed to delete local event %s no longer listed remotely: %v", c.LocalEventId, err)
					result.Failed++
					continue
				}
				result.PulledDeleted++
			}
		}
	}

	o.runAutomation(ctx, conn.UserId, created)
	return touched, nil
}

// vanishedRemotely reports whether a correlated event missing from a complete listing lies inside
// the window, meaning the provider no longer has it.
func (o *Orchestrator) vanishedRemotely(ctx context.Context, c correlation.Correlation) bool {
	local, err := o.events.GetEvent(ctx, c.LocalEventId)
	if errors.Is(err, calendar.ErrEventNotFound) {
		return true
	} else if err != nil {
		return false
	}
	start, end, err := local.Bounds()
	if err != nil {
		return false
	}
	return o.window.Contains(start, end)
}

func (o *Orchestrator) deleteLocal(ctx context.Context, c correlation.Correlation) error {
	if err := o.events.DeleteEvent(ctx, c.LocalEventId); err != nil && !errors.Is(err, calendar.ErrEventNotFound) {
		return err
	}
	return o.correlations.Delete(ctx, c.Id)
}

func (o *Orchestrator) applyRemoteCreate(ctx context.Context, conn connection.Connection, p Pairing, remote provider.RemoteEvent, timezone string) (calendar.Event, error) {
	local, err := event_mapper.ToLocalEvent(conn.Provider, remote, timezone)
	if err != nil {
		return calendar.Event{}, err
	}
	local.CalendarId = p.LocalCalendarId
	local.UserId = conn.UserId

	stored, err := o.events.StoreEvent(ctx, local)
	if err != nil {
		return calendar.Event{}, err
	}
	_, err = o.correlations.Create(ctx, correlation.Correlation{
		PairingId:            p.Id,
		LocalEventId:         stored.Id,
		ExternalEventId:      remote.Id,
		LastModifiedLocal:    stored.UpdatedAt,
		LastModifiedExternal: remote.LastModified,
	})
	if err != nil {
		if delErr := o.events.DeleteEvent(ctx, stored.Id); delErr != nil {
			log.Errorf("failed to remove uncorrelated local event %s: %v", stored.Id, delErr)
		}
		return calendar.Event{}, fmt.Errorf("failed to correlate %s with %s: %w", stored.Id, remote.Id, err)
	}
	log.Debugf("Imported %s event %s as %s", conn.Provider, remote.Id, stored.Id)
	return stored, nil
}

// applyRemoteUpdate overwrites the local copy. It returns uuid.Nil when the local event is gone,
// leaving the correlation for the push phase to clean up, and when the local edit is the newer one.
func (o *Orchestrator) applyRemoteUpdate(ctx context.Context, conn connection.Connection, c correlation.Correlation, remote provider.RemoteEvent, timezone string) (uuid.UUID, error) {
	existing, err := o.events.GetEvent(ctx, c.LocalEventId)
	if errors.Is(err, calendar.ErrEventNotFound) {
		return uuid.Nil, nil
	} else if err != nil {
		return uuid.Nil, err
	}
	if existing.UpdatedAt.After(c.Watermark()) && existing.UpdatedAt.After(remote.LastModified) {
		log.Debugf("Local event %s changed after %s event %s, keeping the local version", existing.Id, conn.Provider, remote.Id)
		return uuid.Nil, nil
	}
	local, err := event_mapper.ToLocalEvent(conn.Provider, remote, timezone)
	if err != nil {
		return uuid.Nil, err
	}
	local.Id = existing.Id
	local.CalendarId = existing.CalendarId
	local.UserId = existing.UserId
	local.Recurrence = existing.Recurrence

	updated, err := o.events.UpdateEvent(ctx, local)
	if err != nil {
		return uuid.Nil, err
	}
	c.LastModifiedLocal = updated.UpdatedAt
	c.LastModifiedExternal = remote.LastModified
	if err := o.correlations.Update(ctx, c); err != nil {
		return uuid.Nil, err
	}
	return updated.Id, nil
}

// push mirrors local changes of a bidirectional pairing. Events written by this run's pull are
// left alone.
func (o *Orchestrator) push(ctx context.Context, conn connection.Connection, adapter provider.Adapter, p Pairing, timezone string, touched map[uuid.UUID]bool, result *Result) error {
	existing, err := o.correlations.ListByPairing(ctx, p.Id)
	if err != nil {
		return err
	}
	byLocal := make(map[uuid.UUID]correlation.Correlation, len(existing))
	for _, c := range existing {
		byLocal[c.LocalEventId] = c
	}

	from, to := o.window.Range()
	locals, err := o.events.FindEvents(ctx, p.LocalCalendarId, from, to)
	if err != nil {
		return err
	}

	for _, e := range locals {
		c, correlated := byLocal[e.Id]
		delete(byLocal, e.Id)
		if touched[e.Id] || !o.inWindow(e) {
			continue
		}

		var pushed provider.PushOp
		if correlated {
			pushed, err = o.pushUpdate(ctx, conn, adapter, p, c, e, timezone)
		} else {
			pushed, err = o.pushCreate(ctx, conn, adapter, p, e, timezone)
		}
		if err != nil {
			if isConnectionError(err) {
				return err
			}
			log.Errorf("failed to push local event %s to %s: %v", e.Id, conn.Provider, err)
			result.Failed++
			continue
		}
		switch pushed {
		case provider.OpCreate:
			result.PushedCreated++
		case provider.OpUpdate:
			result.PushedUpdated++
		default:
			result.Unchanged++
		}
	}

	// Correlations left over either point at events outside the window or at deleted events.
	for _, c := range byLocal {
		_, err := o.events.GetEvent(ctx, c.LocalEventId)
		if err == nil {
			continue
		} else if !errors.Is(err, calendar.ErrEventNotFound) {
			log.Errorf("failed to check local event %s: %v", c.LocalEventId, err)
			continue
		}
		if err := o.pushDelete(ctx, conn, adapter, p, c); err != nil {
			if isConnectionError(err) {
				return err
			}
			log.Errorf("failed to delete %s event %s: %v", conn.Provider, c.ExternalEventId, err)
			result.Failed++
			continue
		}
		result.PushedDeleted++
	}
	return nil
}

func (o *Orchestrator) inWindow(e calendar.Event) bool {
	if e.IsRecurrenceTemplate() {
		return false
	}
	start, end, err := e.Bounds()
	if err != nil {
		return false
	}
	return o.window.Contains(start, end)
}

// pushCreate returns "" when the event cannot be expressed remotely.
func (o *Orchestrator) pushCreate(ctx context.Context, conn connection.Connection, adapter provider.Adapter, p Pairing, e calendar.Event, timezone string) (provider.PushOp, error) {
	payload := event_mapper.ToExternalPayload(conn.Provider, e, timezone)
	if payload == nil {
		return "", nil
	}
	res, err := adapter.PushEvent(ctx, conn, p.ExternalCalendarId, provider.OpCreate, "", payload)
	if err != nil {
		return "", err
	}
	_, err = o.correlations.Create(ctx, correlation.Correlation{
		PairingId:            p.Id,
		LocalEventId:         e.Id,
		ExternalEventId:      res.ExternalId,
		LastModifiedLocal:    latest(e.UpdatedAt, res.LastModified),
		LastModifiedExternal: res.LastModified,
	})
	if err != nil {
		return "", fmt.Errorf("event %s was created as %s but could not be correlated: %w", e.Id, res.ExternalId, err)
	}
	log.Debugf("Pushed local event %s as %s event %s", e.Id, conn.Provider, res.ExternalId)
	return provider.OpCreate, nil
}

// pushUpdate sends the event only when it changed after both watermarks.
func (o *Orchestrator) pushUpdate(ctx context.Context, conn connection.Connection, adapter provider.Adapter, p Pairing, c correlation.Correlation, e calendar.Event, timezone string) (provider.PushOp, error) {
	if !e.UpdatedAt.After(c.Watermark()) {
		return "", nil
	}
	payload := event_mapper.ToExternalPayload(conn.Provider, e, timezone)
	if payload == nil {
		return "", nil
	}
	res, err := adapter.PushEvent(ctx, conn, p.ExternalCalendarId, provider.OpUpdate, c.ExternalEventId, payload)
	if err != nil {
		return "", err
	}
	c.LastModifiedLocal = latest(e.UpdatedAt, res.LastModified)
	if err := o.correlations.Update(ctx, c); err != nil {
		return "", err
	}
	return provider.OpUpdate, nil
}

func (o *Orchestrator) pushDelete(ctx context.Context, conn connection.Connection, adapter provider.Adapter, p Pairing, c correlation.Correlation) error {
	if _, err := adapter.PushEvent(ctx, conn, p.ExternalCalendarId, provider.OpDelete, c.ExternalEventId, nil); err != nil {
		return err
	}
	return o.correlations.Delete(ctx, c.Id)
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
