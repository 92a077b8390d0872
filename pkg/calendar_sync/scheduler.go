package calendar_sync

import (
	"context"
	"errors"
	"time"

	"github.com/calshare/calshare/internal/config"
	"github.com/calshare/calshare/internal/utils"
	"github.com/calshare/calshare/pkg/connection"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const tickSchedule = "@every 1m"

// Scheduler periodically syncs every active connection whose last run is older than the
// configured interval.
type Scheduler struct {
	orchestrator *Orchestrator
	connections  connection.Repository
	interval     time.Duration
	clock        utils.Clock
	cron         *cron.Cron
}

func NewScheduler(orchestrator *Orchestrator, connections connection.Repository, cfg config.Sync, clock utils.Clock) *Scheduler {
	return &Scheduler{
		orchestrator: orchestrator,
		connections:  connections,
		interval:     time.Duration(cfg.IntervalMinutes) * time.Minute,
		clock:        clock,
	}
}

func (s *Scheduler) Start() error {
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.StandardLogger()))))
	if _, err := s.cron.AddFunc(tickSchedule, func() { s.Tick(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	log.Infof("Calendar sync scheduler started, interval %s", s.interval)
	return nil
}

// Stop waits for a running tick to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	log.Info("Calendar sync scheduler stopped")
}

// Tick syncs due connections one after another. A failing connection does not stop the tick.
func (s *Scheduler) Tick(ctx context.Context) {
	connections, err := s.connections.ListActive(ctx)
	if err != nil {
		log.Errorf("failed to list active connections: %v", err)
		return
	}
	for _, conn := range connections {
		if !s.isDue(conn) {
			continue
		}
		if _, err := s.orchestrator.RunSync(ctx, conn); err != nil {
			var reauthErr *connection.ReauthorizationRequiredError
			if errors.As(err, &reauthErr) {
				log.Warnf("Connection %d needs to be authorized again", conn.Id)
				continue
			}
			log.Errorf("Scheduled sync of connection %d failed: %v", conn.Id, err)
		}
	}
}

func (s *Scheduler) isDue(conn connection.Connection) bool {
	if conn.ReauthRequired {
		return false
	}
	if conn.LastSyncedAt == nil {
		return true
	}
	return !s.clock.Now().Before(conn.LastSyncedAt.Add(s.interval))
}
