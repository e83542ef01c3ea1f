package app

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/branchgraph/internal/data/db"
	"github.com/yungbote/branchgraph/internal/http"
	"github.com/yungbote/branchgraph/internal/observability"
	"github.com/yungbote/branchgraph/internal/platform/envutil"
	"github.com/yungbote/branchgraph/internal/platform/logger"
	"github.com/yungbote/branchgraph/internal/realtime"
)

// Mode selects what Start runs. The API and the merge worker share every
// dependency except the HTTP server and the Temporal worker.
type Mode int

const (
	ModeServer Mode = iota
	ModeWorker
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	Server   *http.Server
	Hub      *realtime.Hub
	Metrics  *observability.Metrics

	dbService    *db.Service
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)
	metrics := observability.Init(log)

	dbs, err := db.NewService(log, cfg.DB)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init catalog db: %w", err)
	}
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		_ = dbs.Close()
		log.Sync()
		return nil, fmt.Errorf("catalog automigrate: %w", err)
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbs.Close()
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(dbs.DB(), log)
	serviceset, err := wireServices(dbs.DB(), log, cfg, reposet, clients, metrics)
	if err != nil {
		clients.Close(ctx)
		_ = dbs.Close()
		log.Sync()
		return nil, err
	}
	if err := serviceset.Registry.Load(ctx); err != nil {
		clients.Close(ctx)
		_ = dbs.Close()
		log.Sync()
		return nil, fmt.Errorf("load branch registry: %w", err)
	}

	hub := realtime.NewHub(log)
	handlerset := wireHandlers(log, serviceset, hub)
	server := http.NewServer(cfg.HTTPAddr, routerConfig(log, cfg, handlerset, metrics))

	return &App{
		Log:          log,
		DB:           dbs.DB(),
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Server:       server,
		Hub:          hub,
		Metrics:      metrics,
		dbService:    dbs,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches background work for mode. Registry sync always runs; the
// event stream is fed in ModeServer and the Temporal worker runs in
// ModeWorker.
func (a *App) Start(mode Mode) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.Services.Registry.StartSync(ctx); err != nil {
		return fmt.Errorf("start registry sync: %w", err)
	}
	if mode == ModeServer {
		if err := a.Hub.Attach(ctx, a.Clients.Bus); err != nil {
			return fmt.Errorf("attach event stream: %w", err)
		}
	}
	if mode == ModeWorker {
		if a.Services.TemporalWorker == nil {
			return errors.New("worker mode requires TEMPORAL_ADDRESS")
		}
		if err := a.Services.TemporalWorker.Start(ctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
	}
	return nil
}

// Run serves HTTP until Close.
func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
	return a.Server.Run()
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("http shutdown", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close(ctx)
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
