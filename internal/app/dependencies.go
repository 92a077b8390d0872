package app

import (
	"github.com/calshare/calshare/internal/config"
	"github.com/calshare/calshare/internal/event_bus"
	"github.com/calshare/calshare/internal/utils"
	"github.com/calshare/calshare/pkg/calendar"
	"github.com/calshare/calshare/pkg/calendar_sync"
	"github.com/calshare/calshare/pkg/connection"
	"github.com/calshare/calshare/pkg/correlation"
	"github.com/calshare/calshare/pkg/provider"
	"github.com/calshare/calshare/pkg/user"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Clock    utils.Clock
	EventBus *event_bus.EventBus

	UserRepo user.Repo

	CalendarRepository *calendar.RepositoryImpl
	CalendarService    *calendar.Service
	CalendarHandler    *calendar.Handler

	ConnectionRepository connection.Repository
	TokenManager         *connection.TokenManager
	AuthHandler          *connection.AuthHandler

	GoogleAdapter    *provider.GoogleAdapter
	MicrosoftAdapter *provider.MicrosoftAdapter
	Adapters         *provider.Registry

	CorrelationRepository correlation.Repository
	PairingRepository     calendar_sync.PairingRepository
	Orchestrator          *calendar_sync.Orchestrator
	Scheduler             *calendar_sync.Scheduler
	SyncHandler           *calendar_sync.Handler
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *pgxpool.Pool, cfg config.Application) *Dependencies {
	deps := &Dependencies{}

	deps.Clock = &utils.SystemClock{}
	deps.EventBus = event_bus.NewEventBus()

	deps.UserRepo = user.NewUserRepo(db)

	deps.CalendarRepository = calendar.NewRepository(db)
	deps.CalendarService = calendar.NewService(deps.CalendarRepository, deps.EventBus)
	deps.CalendarHandler = calendar.NewHandler(deps.CalendarService)

	deps.ConnectionRepository = connection.NewRepository(db)
	deps.TokenManager = connection.NewTokenManager(deps.ConnectionRepository, connection.OAuthProviders(cfg), deps.Clock)
	deps.AuthHandler = connection.NewAuthHandler(deps.TokenManager)

	window := provider.NewWindow(cfg.Sync, deps.Clock)
	deps.GoogleAdapter = provider.NewGoogleAdapter(deps.TokenManager, window)
	deps.MicrosoftAdapter = provider.NewMicrosoftAdapter(deps.TokenManager, window)
	deps.Adapters = provider.NewRegistry(map[connection.Provider]provider.Adapter{
		connection.Google:    deps.GoogleAdapter,
		connection.Microsoft: deps.MicrosoftAdapter,
	})

	deps.CorrelationRepository = correlation.NewRepository(db)
	deps.PairingRepository = calendar_sync.NewPairingRepository(db)
	deps.Orchestrator = calendar_sync.NewOrchestrator(
		deps.ConnectionRepository,
		deps.PairingRepository,
		deps.CorrelationRepository,
		deps.CalendarRepository,
		deps.UserRepo,
		deps.Adapters,
		window,
		deps.Clock,
	)
	deps.Orchestrator.RegisterHooks(deps.EventBus)
	deps.Scheduler = calendar_sync.NewScheduler(deps.Orchestrator, deps.ConnectionRepository, cfg.Sync, deps.Clock)
	deps.SyncHandler = calendar_sync.NewHandler(deps.Orchestrator)

	return deps
}
