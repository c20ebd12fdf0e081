package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/joho/godotenv"
	"github.com/myrjola/misterio/internal/ai"
	"github.com/myrjola/misterio/internal/backpack"
	"github.com/myrjola/misterio/internal/catalog"
	"github.com/myrjola/misterio/internal/conversation"
	"github.com/myrjola/misterio/internal/envstruct"
	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/logging"
	"github.com/myrjola/misterio/internal/pprofserver"
	"github.com/myrjola/misterio/internal/quest"
	"github.com/myrjola/misterio/internal/repositories"
	"github.com/myrjola/misterio/internal/sqlite"
	"golang.org/x/sync/errgroup"
)

type application struct {
	logger         *slog.Logger
	speech         speaker
	sessionManager *scs.SessionManager
	users          *repositories.UserRepository
	legacy         *repositories.LegacyBackpackRepository
	backpack       *backpack.Store
	quests         *quest.Sessions
	conversations  *conversation.Registry
}

type config struct {
	// Addr is the address to listen on. It's possible to choose the address dynamically with localhost:0.
	Addr string `env:"MISTERIO_ADDR" envDefault:"localhost:4000"`
	// SqliteURL is the path to the SQLite database or ":memory:" for an in-memory database.
	SqliteURL string `env:"MISTERIO_SQLITE_URL" envDefault:"./misterio.sqlite"`
	// PprofPort is the loopback port for pprof such as ":6060". Empty disables it.
	PprofPort         string        `env:"MISTERIO_PPROF_ADDR" envDefault:""`
	GenerationTimeout time.Duration `env:"MISTERIO_GENERATION_TIMEOUT" envDefault:"20s"`
	ChatModel         string        `env:"MISTERIO_CHAT_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIAPIKey      string        `env:"OPENAI_API_KEY" envDefault:""`
	OpenAIBaseURL     string        `env:"OPENAI_BASE_URL" envDefault:""`
}

const (
	sessionLifetime        = 12 * time.Hour
	sessionCleanupInterval = time.Hour
)

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var (
		err error
		cfg config
	)
	if err = envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, cfg.SqliteURL, logger); err != nil {
		return errors.Wrap(err, "open database", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close database", errors.SlogError(closeErr))
		}
	}()

	sessionStore := sqlite3store.NewWithCleanupInterval(db.ReadWrite.DB, sessionCleanupInterval)
	defer sessionStore.StopCleanup()
	sessionManager := scs.New()
	sessionManager.Store = sessionStore
	sessionManager.Lifetime = sessionLifetime
	sessionManager.Cookie.Name = "misterio_session"
	sessionManager.Cookie.HttpOnly = true
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode

	aiClient := ai.NewClient(ai.Config{
		APIKey:    cfg.OpenAIAPIKey,
		BaseURL:   cfg.OpenAIBaseURL,
		ChatModel: cfg.ChatModel,
	})
	store := backpack.NewStore(
		repositories.NewInventoryRepository(db, logger),
		repositories.NewLegacyBackpackRepository(db, logger),
		logger,
	)
	app := application{
		logger:         logger,
		speech:         aiClient,
		sessionManager: sessionManager,
		users:          repositories.NewUserRepository(db, logger),
		legacy:         repositories.NewLegacyBackpackRepository(db, logger),
		backpack:       store,
		quests:         quest.NewSessions(catalog.New(aiClient, cfg.GenerationTimeout, logger), store, logger),
		conversations:  conversation.NewRegistry(aiClient, logger),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.configureAndStartServer(ctx, cfg.Addr, cfg.GenerationTimeout)
	})
	g.Go(func() error {
		return pprofserver.ListenAndServe(ctx, cfg.PprofPort, logger)
	})
	g.Go(func() error {
		app.evictIdleSessions(ctx, sessionCleanupInterval, sessionLifetime)
		return nil
	})
	if err = g.Wait(); err != nil {
		return errors.Wrap(err, "run")
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.LogAttrs(ctx, slog.LevelError, "failed to load .env", errors.SlogError(err))
		os.Exit(1)
	}

	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		os.Exit(1)
	}
}
