package huddle

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/putto11262002/huddle/core"
	"github.com/putto11262002/huddle/pkg/logger"
	"github.com/putto11262002/huddle/pkg/router"
	"github.com/putto11262002/huddle/pkg/server"
	"go.uber.org/zap"
)

type App struct {
	config      *Config
	context     context.Context
	logger      *zap.Logger
	router      *router.Router
	server      *server.Server
	store       core.MessageStore
	registry    *core.Registry
	broadcaster *core.Broadcaster
	gateway     *core.Gateway
	eventRouter *core.EventRouter
	wsManager   *core.ConnManager
	chatHandler *ChatHandler
	staticFS    *StaticFS
}

type AppOption func(*App)

// WithStore makes the app use store instead of opening the one selected by the config.
func WithStore(store core.MessageStore) AppOption {
	return func(app *App) {
		app.store = store
	}
}

func WithStaticFS(staticFS *StaticFS) AppOption {
	return func(app *App) {
		app.staticFS = staticFS
	}
}

// New wires the chat service. ctx bounds the lifetime of every websocket connection.
func New(ctx context.Context, config *Config, logger *zap.Logger, opts ...AppOption) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%s", FormatValidationErrors(err))
	}
	app := &App{
		config:  config,
		context: ctx,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(app)
	}

	if app.store == nil {
		app.store = OpenStore(config, logger.Named("store"))
	}
	if app.staticFS == nil {
		staticFS, err := NewStaticDir(config.StaticDir)
		if err != nil {
			logger.Warn("not serving static files", zap.String("dir", config.StaticDir), zap.Error(err))
		}
		app.staticFS = staticFS
	}

	app.registry = core.NewRegistry()
	app.wsManager = core.NewConnManager(app.context,
		core.WithLogger(logger.Named("ws")),
		core.WithCheckOrigin(originChecker(config.AllowedOrigins, logger)),
		core.WithLimits(config.WS.ReadLimit, config.WS.WriteBuffer),
		core.WithKeepalive(config.WS.WriteWait, config.WS.PongWait),
	)
	app.broadcaster = core.NewBroadcaster(app.registry, app.wsManager, logger.Named("broadcast"))
	app.gateway = core.NewGateway(app.registry, app.broadcaster, app.store, logger.Named("gateway"))
	app.eventRouter = core.NewEventRouter(logger.Named("events"))
	app.gateway.Register(app.eventRouter)
	app.wsManager.OnEvent(app.eventRouter.Dispatch)
	app.wsManager.OnConnectionOpened(func(connID string) {
		logger.Debug("connection opened", zap.String("conn", connID))
	})
	app.wsManager.OnConnectionClosed(app.gateway.Disconnect)

	app.chatHandler = NewChatHandler(app.store, app.registry)

	app.router = router.New(router.WithLogger(logger.Named("http")))
	app.router.Router.Use(middleware.Recoverer)
	app.router.Router.Use(requestLogger(logger.Named("http")))
	app.router.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins: config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	app.router.Router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		if err := app.wsManager.Connect(w, r); err != nil {
			logger.Debug("websocket upgrade failed", zap.Error(err))
		}
	})

	app.router.Route("/api", func(r *router.Router) {
		r.Get("/health", app.chatHandler.HealthHandler)
		r.Get("/messages/{groupId}", app.chatHandler.GetGroupMessagesHandler)
		r.Get("/users/online/{groupId}", app.chatHandler.GetOnlineUsersHandler)
		r.Post("/groups/{groupId}/join", app.chatHandler.JoinGroupHandler)
	})

	if app.staticFS != nil {
		app.router.Router.With(app.staticFS.EtagMiddleware()).Mount("/", http.FileServer(app.staticFS))
	}

	app.server = &server.Server{
		Server: &http.Server{
			Addr:    config.Addr(),
			Handler: app.router.Router,
		},
		CertFile: config.TLS.Crt,
		KeyFile:  config.TLS.Key,
		Logger:   logger.Named("server"),
	}
	if app.server.CertFile != "" {
		app.server.TLSConfig = tlsConfig()
	}
	app.server.AddCleanupFunc(func(ctx context.Context) {
		if err := app.wsManager.Close(ctx); err != nil {
			logger.Warn("closing websocket connections", zap.Error(err))
		}
		if err := app.store.Close(); err != nil {
			logger.Warn("closing store", zap.Error(err))
		}
	})

	return app, nil
}

func (app *App) Handler() http.Handler {
	return app.router.Router
}

func (app *App) Store() core.MessageStore {
	return app.store
}

// Start serves until the app context is done.
func (app *App) Start() error {
	app.logger.Info("app running",
		zap.String("addr", app.config.Addr()),
		zap.String("store", app.store.Name()),
		zap.Bool("persistent", app.store.Persistent()))
	return app.server.Start(app.context)
}

// Close disconnects every websocket and closes the store without going through the HTTP server.
func (app *App) Close(ctx context.Context) error {
	err := app.wsManager.Close(ctx)
	if cerr := app.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// Run loads the configuration, starts the service and blocks until ctx is done.
// It exits the process when the service cannot start or does not shut down cleanly.
func Run(ctx context.Context) {
	config, err := LoadConfig()
	if err != nil {
		failed(1, "failed to load config: %v\n", err)
	}
	if err := config.Validate(); err != nil {
		failed(1, "invalid config:\n%s", FormatValidationErrors(err))
	}

	l, err := logger.New(config.Log.Level, config.Log.Format)
	if err != nil {
		failed(1, "failed to create logger: %v\n", err)
	}
	defer l.Sync()

	app, err := New(ctx, config, l)
	if err != nil {
		failed(1, "%v\n", err)
	}
	if err := app.Start(); err != nil {
		l.Sync()
		failed(1, "app exit: %v\n", err)
	}
}

func failed(code int, s string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, s, args...)
	os.Exit(code)
}
