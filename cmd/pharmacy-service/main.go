package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/events"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/handler"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/service"
	"github.com/pharmstock/pharmstock-backend/pkg/config"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
	"github.com/pharmstock/pharmstock-backend/pkg/httputil"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
	"github.com/pharmstock/pharmstock-backend/pkg/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("pharmacy-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("pharmacy-service", cfg.Server.Environment)
	log.Info().Msg("starting Pharmacy Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Re-establish the broker connection if it drops. Publishers fetch the
	// channel per publish, so they pick up the replacement automatically.
	go func() {
		for {
			closed, ok := <-rmq.Channel().NotifyClose(make(chan *amqp.Error, 1))
			if !ok || closed == nil {
				return
			}
			log.Warn().Err(closed).Msg("RabbitMQ connection lost")
			if err := rmq.Reconnect(context.Background()); err != nil {
				log.Error().Err(err).Msg("RabbitMQ reconnect failed")
				return
			}
		}
	}()

	// Initialize event publisher
	publisher, err := events.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	medicineRepo := repository.NewMedicineRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	// Initialize services
	medicineService := service.NewMedicineService(medicineRepo, log)
	stockService := service.NewStockService(batchRepo, ledgerRepo, medicineRepo, publisher, log)

	// Initialize handlers
	medicineHandler := handler.NewMedicineHandler(medicineService, stockService, log)
	batchHandler := handler.NewBatchHandler(stockService, log)
	allocationHandler := handler.NewAllocationHandler(stockService, log)
	ledgerHandler := handler.NewLedgerHandler(stockService, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httputil.Auth(&cfg.JWT))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "pharmacy-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/pharmacy", func(r chi.Router) {
		// Medicine catalog routes
		r.Route("/medicines", func(r chi.Router) {
			r.Get("/", medicineHandler.List)
			r.Post("/", medicineHandler.Create)
			r.Get("/{id}", medicineHandler.Get)
			r.Put("/{id}", medicineHandler.Update)
			r.Get("/{id}/stock", medicineHandler.Stock)

			r.Get("/{id}/batches", batchHandler.ListByMedicine)
			r.Post("/{id}/batches", batchHandler.Receive)

			r.Post("/{id}/dispense", allocationHandler.Dispense)
			r.Post("/{id}/sell", allocationHandler.Sell)
			r.Post("/{id}/issue", allocationHandler.Issue)
			r.Post("/{id}/reconcile", allocationHandler.Reconcile)
		})

		// Batch routes
		r.Route("/batches", func(r chi.Router) {
			r.Get("/expiring", batchHandler.Expiring)
			r.Get("/{id}", batchHandler.Get)
			r.Post("/{id}/write-off", batchHandler.WriteOff)
		})

		// Movement ledger
		r.Get("/movements", ledgerHandler.History)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
