package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"

	"event-ticketing/internal/accounts/accounts_api"
	accounts "event-ticketing/internal/accounts/service"
	"event-ticketing/internal/analytics"
	analytics_api "event-ticketing/internal/analytics/api"
	"event-ticketing/internal/auth"
	"event-ticketing/internal/checkout"
	"event-ticketing/internal/checkout/checkout_api"
	"event-ticketing/internal/clock"
	"event-ticketing/internal/config"
	"event-ticketing/internal/database"
	"event-ticketing/internal/database/migrations"
	"event-ticketing/internal/events/event_api"
	events "event-ticketing/internal/events/service"
	"event-ticketing/internal/inventory"
	"event-ticketing/internal/kafka"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/sse"
	"event-ticketing/internal/tickets/qr"
	tickets "event-ticketing/internal/tickets/service"
	"event-ticketing/internal/tickets/ticket_api"
	"event-ticketing/internal/uploads"
	"event-ticketing/internal/utils"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}

	if cfg.Migrations.Auto {
		runner := migrations.NewRunner(bunDB, cfg.Migrations.Dir, log)
		if err := runner.Up(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
	}

	redisClient, err := auth.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("REDIS", err.Error())
	}
	return bunDB, redisClient
}

// setupKafka returns the publisher every service shares. With Kafka off, events are dropped.
func setupKafka(cfg config.KafkaConfig, log *logger.Logger) (kafka.Publisher, func()) {
	if !cfg.Enabled {
		log.Warn("KAFKA", "Kafka disabled, domain events will not be published")
		return kafka.NopPublisher{Log: log}, func() {}
	}

	if cfg.EnsureTopic {
		if err := kafka.EnsureTopicsExist(cfg.Brokers, cfg.Topics.All()); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	}

	producer := kafka.NewProducer(cfg.Brokers, log)
	log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Brokers))
	return producer, func() {
		if err := producer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println(".env file not found, using environment variables")
	}

	cfg := config.Load()
	log := logger.NewLogger(cfg.Log)
	defer log.Close()

	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", err.Error())
	}
	log.Info("APP", "Starting event ticketing service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	publisher, closeKafka := setupKafka(cfg.Kafka, log)
	defer closeKafka()

	clk := clock.NewSystem()
	store := uploads.NewStore(cfg.Uploads)
	qrGenerator := qr.NewGenerator(cfg.QR.Secret, cfg.QR.Size)

	// Stock changes reach SSE subscribers directly, or through Kafka when several replicas run.
	emitter := sse.NewAvailabilityEmitter()
	var notifier inventory.Notifier = emitter
	if cfg.Kafka.Enabled {
		notifier = &sse.BroadcastNotifier{Publisher: publisher, Topic: cfg.Kafka.Topics.Availability, Logger: log}
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.Availability, "availability-"+cfg.Kafka.InstanceID, log)
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx, emitter.Relay); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Availability consumer stopped: %v", err))
			}
		}()
	}

	var oidcVerifier *auth.OIDCVerifier
	if cfg.Auth.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID)
		if err != nil {
			log.Warn("AUTH", fmt.Sprintf("OIDC disabled: %v", err))
		} else {
			oidcVerifier = v
			log.Info("AUTH", fmt.Sprintf("Accepting OIDC tokens from %s", cfg.Auth.OIDCIssuer))
		}
	}

	accountService := accounts.NewService(bunDB, publisher, cfg.Kafka.Topics, clk, log)
	authenticator := auth.NewAuthenticator(
		auth.NewSessionStore(redisClient, cfg.Auth.SessionTTL),
		auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		oidcVerifier,
		accountService,
		cfg.Auth,
		log,
	)

	inventoryService := inventory.NewService(bunDB, qrGenerator, notifier, publisher, cfg.Kafka.Topics, clk, log)
	eventService := events.NewService(bunDB, store, publisher, cfg.Kafka.Topics, clk, log)
	ticketService := tickets.NewTicketService(bunDB, qrGenerator, log)
	checkoutService := checkout.NewService(bunDB, checkout.NewStripeGateway(cfg.Stripe.SecretKey), inventoryService,
		publisher, cfg.Kafka.Topics, cfg.Stripe, clk, log)
	analyticsService := analytics.NewService(bunDB, eventService)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(utils.RequestLogger(log))
	r.Use(authenticator.Authenticate)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := bunDB.PingContext(r.Context()); err != nil {
			utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("database unavailable", "unhealthy"))
			return
		}
		utils.WriteSuccess(w, http.StatusOK, "ok", nil)
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle(cfg.Uploads.PublicPrefix+"/*", http.StripPrefix(cfg.Uploads.PublicPrefix, http.FileServer(http.Dir(cfg.Uploads.Dir))))

	accounts_api.NewHandler(accountService, authenticator, ticketService, store, log).Routes(r)
	event_api.NewHandler(eventService, authenticator, store, &sse.Handler{Emitter: emitter, Logger: log}, log).Routes(r)
	ticket_api.NewHandler(ticketService, inventoryService, authenticator, log).Routes(r)
	checkout_api.NewHandler(checkoutService, authenticator, log).Routes(r)
	analytics_api.NewHandler(analyticsService, authenticator, log).RegisterRoutes(r)
	log.Info("ROUTER", "Account, event, ticket, checkout and analytics routes registered")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Event ticketing service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Shutdown complete")
	}
}
