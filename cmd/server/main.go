package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"card-arena/internal/audit"
	"card-arena/internal/auth"
	"card-arena/internal/config"
	"card-arena/internal/db"
	"card-arena/internal/duel"
	"card-arena/internal/engine"
	"card-arena/internal/eventbus"
	"card-arena/internal/exchange"
	"card-arena/internal/handlers"
	"card-arena/internal/hub"
	"card-arena/internal/matchmaking"
	"card-arena/internal/middleware"
	"card-arena/internal/notify"
	"card-arena/internal/services"
	"card-arena/internal/store"
	"card-arena/internal/telemetry"
	"card-arena/internal/turntimer"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

const staleCleanupInterval = 5 * time.Minute

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Starting card arena server in %s mode (store: %s)", cfg.Environment, cfg.Store.Driver)

	shutdownTracing, err := telemetry.Setup(context.Background(), "card-arena")
	if err != nil {
		log.Printf("Warning: tracing disabled: %v", err)
	}

	h := hub.New()

	// The store driver decides whether cross-instance fan-out and the
	// audit collection are available.
	var (
		st       store.Store
		bus      *eventbus.EventBus
		auditLog *audit.Logger
		router   *notify.Router
	)
	switch cfg.Store.Driver {
	case config.DriverMongo:
		mongodb, err := db.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		log.Printf("Connected to MongoDB database: %s", cfg.MongoDB.Database)
		st = store.NewMongoStore(mongodb)
		auditLog = audit.New(mongodb.AuditLog())
		bus = eventbus.New(mongodb.WSEvents(), func(userID string, message []byte) bool {
			return router.DeliverLocal(userID, message)
		})
		router = notify.NewRouter(h, bus)
		bus.Start()

	case config.DriverPostgres:
		gdb, err := db.NewPostgres(cfg.Postgres.DSN)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		log.Println("Connected to Postgres")
		st = store.NewPostgresStore(gdb)
		auditLog = audit.New(nil)
		router = notify.NewRouter(h, nil)

	default:
		mem := store.NewMemoryStore()
		if cfg.Store.Fixtures != "" {
			if err := mem.LoadFixtures(cfg.Store.Fixtures); err != nil {
				log.Fatalf("Failed to load fixtures: %v", err)
			}
			log.Printf("Loaded fixtures from %s", cfg.Store.Fixtures)
		}
		st = mem
		auditLog = audit.New(nil)
		router = notify.NewRouter(h, nil)
	}

	timers := turntimer.NewService()

	completion := services.NewMatchCompletionService(st, auditLog)
	cleanup := services.NewStaleMatchCleanupService(st, auditLog, staleCleanupInterval, cfg.StaleMatchThreshold())
	if err := cleanup.Start(); err != nil {
		log.Fatalf("Failed to start stale match cleanup: %v", err)
	}

	duels := duel.NewManager(st, router, completion, timers, duel.Options{
		TurnTimeout:  cfg.TurnTimeout(),
		WinningScore: cfg.Duel.WinningScore,
		MaxRounds:    cfg.Duel.MaxRounds,
	})
	duels.SetEndHandler(func(matchID string) {
		log.Printf("Match %s closed (%d active)", matchID, duels.ActiveCount())
	})
	exchanges := exchange.NewManager(st, router, timers, auditLog, cfg.InviteTimeout())

	queue := matchmaking.NewQueue(matchmaking.Options{
		TickInterval: cfg.TickInterval(),
		BaseWindow:   cfg.Matchmaking.BaseWindow,
		WindowStep:   cfg.Matchmaking.WindowStep,
		StepInterval: cfg.StepInterval(),
	})
	eng := engine.New(st, router, queue, duels, exchanges)
	if err := queue.Start(); err != nil {
		log.Fatalf("Failed to start matchmaking: %v", err)
	}

	jwtService := auth.NewJWTService(cfg.JWT.AccessSecret)
	limiter := middleware.NewRateLimiter()
	if cfg.ServiceToken == "" {
		log.Println("Warning: serviceToken not set, /api/notifications rejects all callers")
	}

	appRouter := handlers.NewRouter(handlers.Routes{
		WebSocket:    handlers.NewWebSocketHandler(h, eng, cfg.Frontend.URL),
		API:          handlers.NewAPIHandler(router, queue, duels),
		Auth:         middleware.NewAuthMiddleware(jwtService),
		Limiter:      limiter,
		ServiceToken: cfg.ServiceToken,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.Frontend.URL},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     corsHandler.Handler(middleware.SecurityHeaders(appRouter)),
		ReadTimeout: 15 * time.Second,
		// WriteTimeout would cut long-lived WebSocket connections.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop producing new work before closing connections.
	queue.Stop()
	cleanup.Stop()
	duels.Shutdown()
	timers.StopAll()
	h.CloseAll()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	limiter.Stop()
	if bus != nil {
		bus.Stop()
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
	}
	if err := st.Close(ctx); err != nil {
		log.Printf("Store close error: %v", err)
	}

	log.Println("Server stopped")
}
