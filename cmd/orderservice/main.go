package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"order-service/internal/clients"
	"order-service/internal/config"
	"order-service/internal/httpapi"
	"order-service/internal/metrics"
	"order-service/internal/orders"
	"order-service/internal/publisher"
	"order-service/internal/telemetry"
)

var log = logrus.WithFields(logrus.Fields{
	"service": "orderservice",
	"version": "1.0.0",
})

const mongoConnectTimeout = 10 * time.Second

func main() {
	// Set log format to JSON for structured logging.
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.AddHook(telemetry.TraceHook{})

	cfg := config.Load()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("Invalid LOG_LEVEL %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	log.Info("Starting OrderService...")

	shutdownTracer := setupTracing(cfg)

	// Connect to MongoDB and make sure it answers before serving.
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoClient, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	if err := mongoClient.Ping(connectCtx, readpref.Primary()); err != nil {
		log.WithError(err).Fatal("Failed to ping MongoDB")
	}
	cancelConnect()
	coll := mongoClient.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection)
	log.Infof("Connected to MongoDB database: %s", cfg.MongoDatabase)

	// The bus is optional; without it events are dropped.
	bus := publisher.Connect(cfg.NatsURL, cfg.ServiceName, cfg.NatsConnectTimeout, log)

	upstream := clients.NewHTTPClient(cfg.UpstreamTimeout)
	svc := orders.NewService(
		orders.NewMongoStore(coll, log),
		clients.NewUserClient(cfg.UserServiceURL, upstream, log),
		clients.NewInventoryClient(cfg.InventoryServiceURL, upstream, log),
		bus,
		cfg.FallbackPrice,
		log,
	)

	m := metrics.New()
	router := httpapi.NewRouter(httpapi.NewHandler(svc, bus, m, cfg.ServiceName, log), m, log)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start HTTP server in a goroutine.
	go func() {
		log.Infof("OrderService HTTP server starting on port %s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("OrderService HTTP server ListenAndServe error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("OrderService shutting down...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Error("OrderService HTTP server shutdown error")
	}

	bus.Close()

	if err := mongoClient.Disconnect(ctxShutdown); err != nil {
		log.WithError(err).Error("Error disconnecting from MongoDB")
	}

	if err := shutdownTracer(ctxShutdown); err != nil {
		log.WithError(err).Error("Error shutting down tracer")
	}

	log.Info("OrderService shut down.")
}

// setupTracing installs the OTLP exporter when enabled. Trace headers are
// propagated either way.
func setupTracing(cfg config.Config) telemetry.ShutdownFunc {
	noop := func(context.Context) error { return nil }
	if !cfg.TracingEnabled {
		telemetry.SetupPropagator()
		log.Info("Tracing disabled, propagating trace headers only")
		return noop
	}

	shutdown, err := telemetry.SetupTracer(context.Background(), cfg.OtelEndpoint, cfg.ServiceName)
	if err != nil {
		log.WithError(err).Warn("Failed to initialise tracing, continuing without span export")
		telemetry.SetupPropagator()
		return noop
	}
	log.Infof("Exporting traces to %s", cfg.OtelEndpoint)
	return shutdown
}
