// Package httpapi exposes the order service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"order-service/internal/clients"
	"order-service/internal/metrics"
	"order-service/internal/orders"
)

const (
	msgInternal      = "Internal server error"
	msgDatabase      = "Database error"
	msgUpstream      = "Upstream service error"
	msgOrderNotFound = "Order not found"
	msgInvalidBody   = "Invalid request body"
	msgBodyTooLarge  = "Request body too large"

	maxListLimit  = 1000
	maxBodyBytes  = 1 << 20
	healthTimeout = 2 * time.Second
)

// log is used where no request-scoped entry is at hand.
var log = logrus.WithField("component", "httpapi")

// OrderService is what the handlers need from the order domain.
type OrderService interface {
	CreateOrder(ctx context.Context, in orders.SimpleOrderInput) (*orders.Order, error)
	CreateValidatedOrder(ctx context.Context, in orders.ValidatedOrderInput) (*orders.Order, error)
	GetOrder(ctx context.Context, id string) (*orders.Order, error)
	ListOrders(ctx context.Context, skip, limit int64) ([]orders.Order, error)
	Ping(ctx context.Context) error
}

// BusStatus reports the message bus connection state.
type BusStatus interface {
	Status() string
}

// Handler serves the order API.
type Handler struct {
	orders      OrderService
	bus         BusStatus
	metrics     *metrics.Metrics
	validate    *validatorv10.Validate
	serviceName string // Reported by /health and used as the server span name.
	log         *logrus.Entry
}

// NewHandler builds the handlers over svc. bus is only asked for its status.
func NewHandler(svc OrderService, bus BusStatus, m *metrics.Metrics, serviceName string, logger *logrus.Entry) *Handler {
	return &Handler{
		orders:      svc,
		bus:         bus,
		metrics:     m,
		validate:    newValidator(),
		serviceName: serviceName,
		log:         logger.WithField("component", "httpapi"),
	}
}

// Health always answers 200; degradation is reported in the body. Overall
// status follows the database only.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{
		Status:   "healthy",
		Service:  h.serviceName,
		Database: "connected",
		Nats:     h.bus.Status(),
	}
	if err := h.orders.Ping(ctx); err != nil {
		h.logFor(r).WithError(err).Error("Database health check failed")
		resp.Status = "unhealthy"
		resp.Database = "error"
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateOrder handles POST /api/orders: a caller-priced order stored without
// consulting the user directory or the inventory catalog.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), orders.SimpleOrderInput{
		UserID:       req.UserID,
		ProductName:  req.ProductName,
		Quantity:     req.Quantity,
		PricePerUnit: req.PricePerUnit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.metrics.OrdersCreated.Inc()
	h.logFor(r).WithField("order_id", order.ID.Hex()).Info("Order created successfully")
	writeJSON(w, http.StatusCreated, order)
}

// CreateValidatedOrder handles POST /api/orders/validated. Business
// rejections answer 400 with the reason; collaborator failures answer 500.
func (h *Handler) CreateValidatedOrder(w http.ResponseWriter, r *http.Request) {
	var req createValidatedOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.orders.CreateValidatedOrder(r.Context(), orders.ValidatedOrderInput{
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.metrics.OrdersCreated.Inc()
	writeJSON(w, http.StatusCreated, order)
}

// ListOrders handles GET /api/orders?skip=&limit=. limit is capped at
// maxListLimit; malformed values fall back to the defaults.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", orders.DefaultListLimit)
	if limit == 0 {
		limit = orders.DefaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	list, err := h.orders.ListOrders(r.Context(), skip, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.metrics.OrdersQueried.Inc()
	h.logFor(r).WithFields(logrus.Fields{"skip": skip, "limit": limit}).Infof("Retrieved %d orders", len(list))
	writeJSON(w, http.StatusOK, list)
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.metrics.OrdersQueried.Inc()
	writeJSON(w, http.StatusOK, order)
}

// decode reads and validates a JSON body of at most maxBodyBytes, answering
// 400 (or 413 for an oversized body) itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logFor(r).WithError(err).Warn("Invalid request payload")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
			return false
		}
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, describeValidation(err))
		return false
	}
	return true
}

// fail maps a domain error to its response. Business rejections are echoed
// to the caller; internal causes are only logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidInput *orders.InvalidInputError
		userMissing  *orders.UserNotFoundError
		productMiss  *orders.ProductNotFoundError
		shortStock   *orders.InsufficientInventoryError
		invalidID    *orders.InvalidIDError
		dbErr        *orders.DatabaseError
		transport    *clients.TransportError
	)
	l := h.logFor(r).WithError(err)

	switch {
	case errors.As(err, &invalidInput), errors.As(err, &userMissing),
		errors.As(err, &productMiss), errors.As(err, &shortStock):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orders.ErrNotFound):
		writeError(w, http.StatusNotFound, msgOrderNotFound)
	case errors.As(err, &invalidID):
		l.Error("Internal error")
		writeError(w, http.StatusInternalServerError, msgInternal)
	case errors.As(err, &dbErr):
		l.Error("Database error")
		writeError(w, http.StatusInternalServerError, msgDatabase)
	case errors.As(err, &transport):
		l.WithField("collaborator", transport.Service).Error("Collaborator call failed")
		writeError(w, http.StatusInternalServerError, msgUpstream)
	default:
		l.Error("Unexpected error")
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

func (h *Handler) logFor(r *http.Request) *logrus.Entry {
	return h.log.WithContext(r.Context()).WithField("request_id", middleware.GetReqID(r.Context()))
}

// queryInt parses a non-negative integer query parameter, falling back to def.
func queryInt(r *http.Request, key string, def int64) int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// writeJSON encodes v before committing the status, so a value that cannot
// be encoded answers 500 instead of status with an empty body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).WithField("status", status).Error("Failed to encode response")
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Error: msgInternal})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		log.WithError(err).Debug("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
