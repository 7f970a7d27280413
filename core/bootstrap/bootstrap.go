package bootstrap

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "attestbot/core/config"
	coredatabase "attestbot/core/database"
	"attestbot/core/logger"
)

// Options control the bootstrap pipeline: logger first, then database and
// migrations.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(logger.Options) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB *sqlx.DB
}

// Run initializes the logger, connects to the database, and applies migrations.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.Init
	}
	lc := opts.Config.Logging
	if err := loggerInit(logger.Options{
		Level:       lc.Level,
		Format:      lc.Format,
		KeysOrder:   lc.KeysOrder,
		DebugSample: lc.DebugSample,
		Dir:         lc.Dir,
		File:        lc.BotFile,
		Profile:     lc.Profile,
	}); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(opts.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(opts.Config.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	return &Result{DB: db}, nil
}
