// Package app assembles the OTP relay: pool store, lease manager, history
// archive, panel pollers, sweeper, and the Telegram front-end.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	corecmd "otprelay/core/cmd"
	coreconfig "otprelay/core/config"
	"otprelay/core/logger"
	coretelegram "otprelay/core/telegram"
	"otprelay/core/telegram/router"
	"otprelay/core/telegram/state"
	"otprelay/internal/bot"
	"otprelay/internal/delivery"
	"otprelay/internal/history"
	"otprelay/internal/numpool"
	"otprelay/internal/panels"
)

// Carrier adapts the loaded configuration to the runner contract.
type Carrier struct {
	cfg *coreconfig.Config
}

// CoreConfig returns the embedded core configuration.
func (c *Carrier) CoreConfig() *coreconfig.Config { return c.cfg }

// LoadConfig reads configuration and initializes logging.
func LoadConfig(path string) (corecmd.ConfigCarrier, error) {
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(cfg); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &Carrier{cfg: cfg}, nil
}

// App holds the composed application.
type App struct {
	cfg      *coreconfig.Config
	pool     *numpool.Manager
	archive  *history.Archive
	sessions state.Manager
	handlers *bot.Handlers
}

// Bootstrap builds the application from loaded configuration.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg := carrier.CoreConfig()

	store := numpool.Load(cfg.Pool.StatePath)
	pool := numpool.NewManager(store, numpool.Config{
		TTL:            time.Duration(cfg.Pool.ReleaseTimeoutMinutes) * time.Minute,
		KeepUsedLocked: cfg.Pool.KeepUsedLocked == nil || *cfg.Pool.KeepUsedLocked,
	})

	archive, err := history.Open(context.Background(), cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("open history archive: %w", err)
	}

	sessions := state.NewMemoryManager()
	handlers := &bot.Handlers{
		Cfg:      cfg,
		Pool:     pool,
		Archive:  archive,
		Sessions: sessions,
	}

	return &App{
		cfg:      cfg,
		pool:     pool,
		archive:  archive,
		sessions: sessions,
		handlers: handlers,
	}, nil
}

// TelegramRunOptions wires registry, routes, and lifecycle hooks.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := a.handlers.BuildRegistry()

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		IsAdmin: a.cfg.Telegram.IsAdmin,
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a.sessions, reg, router.TextOptions{
		UnknownText:     a.handlers.UnknownText,
		UnknownDocument: a.handlers.UnknownDocument,
	})...)

	opts := coretelegram.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			return a.startWorkers(ctx, rt)
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			return a.archive.Close()
		},
	}
	return opts, nil
}

// startWorkers launches the panel pollers and the lease sweeper. Workers
// stop when the run context is cancelled.
func (a *App) startWorkers(ctx context.Context, rt coretelegram.Runtime) error {
	notifier := &bot.Notifier{
		Bot:        rt.Bot,
		Dispatcher: rt.Dispatcher,
		LogChatIDs: a.cfg.Telegram.LogChatIDs,
	}
	a.handlers.Notifier = notifier

	deliveryRouter := &delivery.Router{
		Pool:     a.pool,
		Archive:  a.archive,
		Notifier: notifier,
	}

	client := &http.Client{Timeout: 10 * time.Second}
	for _, pcfg := range a.cfg.Panels {
		poller := &panels.Poller{
			Config: pcfg,
			Sink:   deliveryRouter,
			Client: client,
		}
		go poller.Run(ctx)
	}

	sweeper := &numpool.Sweeper{
		Manager:  a.pool,
		Interval: time.Duration(a.cfg.Pool.SweepIntervalSeconds) * time.Second,
		OnReclaim: func(ctx context.Context, values []string) {
			notifier.NotifyReclaimed(ctx, values)
		},
	}
	go sweeper.Run(ctx)

	return nil
}
