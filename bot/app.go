package bot

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"

	coreconfig "attestbot/core/config"
	"attestbot/core/logger"
	tg "attestbot/core/telegram"
	"attestbot/core/telegram/router"
	"attestbot/engine"
	"attestbot/quiz"
	"attestbot/store"
)

// App owns every long-lived component of the bot: question bank, grading
// scale, session engine and persistence.
type App struct {
	cfg       *coreconfig.Config
	db        *sqlx.DB
	bank      *quiz.Bank
	hub       *engine.Hub
	presenter *Presenter
	handlers  *Handlers
}

// New loads the question bank and wires the engine on top of the given
// database handle.
func New(cfg *coreconfig.Config, db *sqlx.DB) (*App, error) {
	bank, err := quiz.Load(cfg.Quiz)
	if err != nil {
		return nil, err
	}

	buckets := make([]quiz.Bucket, 0, len(cfg.Quiz.GradingScale))
	for _, b := range cfg.Quiz.GradingScale {
		buckets = append(buckets, quiz.Bucket{MinPercent: b.MinPercent, Label: b.Label})
	}
	scale := quiz.NewScale(buckets)

	st := store.New(db)
	presenter := NewPresenter()

	hub := engine.NewHub(engine.Deps{
		Bank:             bank,
		Scale:            scale,
		Store:            st,
		Presenter:        presenter,
		ZeroAnswerPolicy: cfg.Quiz.ZeroAnswerPolicy,
	}, 0)

	app := &App{
		cfg:       cfg,
		db:        db,
		bank:      bank,
		hub:       hub,
		presenter: presenter,
		handlers:  NewHandlers(hub, bank, st, presenter),
	}
	return app, nil
}

// TelegramRunOptions assembles the transport wiring for core/cmd.Run.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	a.handlers.Register(reg)

	routes := router.CommandRoutes(reg)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoute(reg))

	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: tg.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			a.presenter.SetBot(rt.Bot)
			logger.Info(ctx, "bot", "wire.complete",
				slog.Int("count", len(a.bank.ListSpecializations())))
			return nil
		},
	}, nil
}

// Close releases the engine and the database handle.
func (a *App) Close() error {
	a.hub.Close()
	return a.db.Close()
}

var _ engine.Presenter = (*Presenter)(nil)
