package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"order-service/internal/telemetry"
	"order-service/pkg/events"
)

var (
	natsURL     = getEnv("NATS_URL", "nats://localhost:4222")
	metricsPort = getEnv("METRICS_PORT", "2112")
	queueName   = getEnv("QUEUE_NAME", "ORDER_EVENTS_QUEUE")
	log         = logrus.WithFields(logrus.Fields{
		"service": "ordereventsworker",
		"version": "1.0.0",
	})
)

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)
	logrus.AddHook(telemetry.TraceHook{})
	telemetry.SetupPropagator()

	log.Info("Starting OrderEventsWorker...")

	nc, err := nats.Connect(natsURL,
		nats.Name("ordereventsworker"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.WithError(err).Warn("Disconnected from NATS")
		}),
	)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to NATS")
	}
	defer nc.Close()
	log.WithField("nats_url", natsURL).Info("Connected to NATS server")

	handler := newEventHandler(prometheus.DefaultRegisterer, log)

	// Queue group so that several workers share the stream of events.
	sub, err := nc.QueueSubscribe(events.OrderCreatedSubject, queueName, handler.handle)
	if err != nil {
		log.WithError(err).Fatal("Failed to subscribe to subject")
	}
	log.Infof("OrderEventsWorker subscribed to '%s' with queue group '%s'", events.OrderCreatedSubject, queueName)

	// Start HTTP server for metrics
	metricsRouter := http.NewServeMux()
	metricsRouter.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              ":" + metricsPort,
		Handler:           metricsRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", metricsPort).Info("Starting metrics server")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Do not kill the worker if the metrics server fails to start.
			log.WithError(err).Error("Metrics server ListenAndServe error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := metricsSrv.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Error("Metrics server shutdown error")
	}

	if sub.IsValid() {
		log.Info("Unsubscribing NATS subscription...")
		if err := sub.Unsubscribe(); err != nil {
			log.WithError(err).Error("Error during NATS Unsubscribe")
		}
	}
	if err := nc.Drain(); err != nil {
		log.WithError(err).Error("Error draining NATS connection")
	}

	log.Info("OrderEventsWorker shut down")
}
