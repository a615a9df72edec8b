package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"order-service/internal/clients"
	"order-service/internal/telemetry"
	"order-service/pkg/events"
)

// UserDirectory resolves users. Implementations return clients.ErrNotFound
// for a confirmed absence.
type UserDirectory interface {
	GetUser(ctx context.Context, userID int) (*clients.User, error)
}

// Inventory resolves products. Implementations return clients.ErrNotFound
// for a confirmed absence. The answer is not a reservation.
type Inventory interface {
	GetItem(ctx context.Context, productID string) (*clients.InventoryItem, error)
}

// Publisher emits events. Failures are reported but never fail an order.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Service creates and reads orders.
type Service struct {
	store         Store
	users         UserDirectory
	inventory     Inventory
	events        Publisher
	fallbackPrice float64
	now           func() time.Time
	log           *logrus.Entry
}

// NewService builds a Service. fallbackPrice is charged per unit when the
// inventory catalog reports no price for a product. events may be a no-op
// publisher; it must not be nil.
func NewService(store Store, users UserDirectory, inventory Inventory, events Publisher, fallbackPrice float64, logger *logrus.Entry) *Service {
	return &Service{
		store:         store,
		users:         users,
		inventory:     inventory,
		events:        events,
		fallbackPrice: fallbackPrice,
		now:           time.Now,
		log:           logger.WithField("component", "orders"),
	}
}

// CreateOrder stores a caller-priced order without consulting any
// collaborator and emits order.created.
func (s *Service) CreateOrder(ctx context.Context, in SimpleOrderInput) (*Order, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "orders.CreateOrder", trace.WithAttributes(
		attribute.Int("order.user_id", in.UserID),
		attribute.Int("order.quantity", in.Quantity),
	))
	defer span.End()

	if err := checkQuantity(in.Quantity); err != nil {
		return nil, endSpan(span, err)
	}
	if in.PricePerUnit < 0 {
		return nil, endSpan(span, &InvalidInputError{Reason: "price_per_unit must not be negative"})
	}

	order, err := newOrder(in.UserID, in.ProductName, in.Quantity, in.PricePerUnit, s.now())
	if err != nil {
		return nil, endSpan(span, err)
	}
	if err := s.insert(ctx, order); err != nil {
		return nil, endSpan(span, err)
	}

	s.publishCreated(ctx, events.OrderCreatedEvent{
		Event:       events.OrderCreatedSubject,
		OrderID:     order.ID.Hex(),
		UserID:      order.UserID,
		ProductName: order.ProductName,
		Quantity:    order.Quantity,
		TotalPrice:  order.TotalPrice,
		Timestamp:   s.now().UTC(),
	})
	return order, nil
}

// CreateValidatedOrder creates an order after checking, in this order, that
// the user exists, that the product exists and that the catalog holds
// enough units. Each check gates the next; nothing is written unless all
// pass. The stock check is read-then-decide against the catalog's snapshot
// and does not reserve units.
//
// The order is committed once inserted. Failing to emit order.created is
// logged and does not fail the call.
func (s *Service) CreateValidatedOrder(ctx context.Context, in ValidatedOrderInput) (*Order, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "orders.CreateValidatedOrder", trace.WithAttributes(
		attribute.Int("order.user_id", in.UserID),
		attribute.String("order.product_id", in.ProductID),
		attribute.Int("order.quantity", in.Quantity),
	))
	defer span.End()
	l := s.log.WithContext(ctx).WithFields(logrus.Fields{
		"user_id":    in.UserID,
		"product_id": in.ProductID,
		"quantity":   in.Quantity,
	})

	if err := checkQuantity(in.Quantity); err != nil {
		return nil, endSpan(span, err)
	}

	user, err := s.users.GetUser(ctx, in.UserID)
	if errors.Is(err, clients.ErrNotFound) {
		l.Warn("Rejecting order: user not found")
		return nil, endSpan(span, &UserNotFoundError{UserID: in.UserID})
	}
	if err != nil {
		return nil, endSpan(span, fmt.Errorf("look up user %d: %w", in.UserID, err))
	}

	item, err := s.inventory.GetItem(ctx, in.ProductID)
	if errors.Is(err, clients.ErrNotFound) {
		l.Warn("Rejecting order: product not found")
		return nil, endSpan(span, &ProductNotFoundError{ProductID: in.ProductID})
	}
	if err != nil {
		return nil, endSpan(span, fmt.Errorf("look up product %s: %w", in.ProductID, err))
	}

	unitPrice := ResolveUnitPrice(item.Price, s.fallbackPrice)
	if item.Price <= 0 {
		l.WithField("fallback_price", unitPrice).Warn("Inventory reported no price, using fallback")
	}

	if item.Quantity < in.Quantity {
		l.WithField("available", item.Quantity).Warn("Rejecting order: insufficient inventory")
		return nil, endSpan(span, &InsufficientInventoryError{
			ProductName: item.ProductName,
			Requested:   in.Quantity,
			Available:   item.Quantity,
		})
	}

	order, err := newOrder(in.UserID, item.ProductName, in.Quantity, unitPrice, s.now())
	if err != nil {
		l.WithError(err).Warn("Rejecting order: price out of range")
		return nil, endSpan(span, err)
	}
	if err := s.insert(ctx, order); err != nil {
		return nil, endSpan(span, err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID.Hex()))

	s.publishCreated(ctx, events.OrderCreatedEvent{
		Event:       events.OrderCreatedSubject,
		OrderID:     order.ID.Hex(),
		UserID:      order.UserID,
		UserName:    user.Name,
		UserEmail:   user.Email,
		ProductID:   in.ProductID,
		ProductName: order.ProductName,
		Quantity:    order.Quantity,
		TotalPrice:  order.TotalPrice,
		Timestamp:   s.now().UTC(),
	})

	l.WithFields(logrus.Fields{
		"order_id":    order.ID.Hex(),
		"total_price": order.TotalPrice,
	}).Info("Validated order created")
	return order, nil
}

// GetOrder returns the order with the given hex id. A malformed id is an
// *InvalidIDError and the store is not queried.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "orders.GetOrder", trace.WithAttributes(
		attribute.String("order.id", id),
	))
	defer span.End()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, endSpan(span, &InvalidIDError{ID: id, Err: err})
	}
	order, err := s.store.FindByID(ctx, oid)
	if errors.Is(err, ErrNotFound) {
		// A miss is an answer, not a failure of the call.
		span.SetAttributes(attribute.Bool("order.found", false))
		return nil, err
	}
	if err != nil {
		return nil, endSpan(span, err)
	}
	return order, nil
}

// ListOrders returns up to limit orders after skipping skip, in store order.
// A non-positive limit means DefaultListLimit.
func (s *Service) ListOrders(ctx context.Context, skip, limit int64) ([]Order, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	ctx, span := telemetry.Tracer().Start(ctx, "orders.ListOrders", trace.WithAttributes(
		attribute.Int64("orders.skip", skip),
		attribute.Int64("orders.limit", limit),
	))
	defer span.End()

	list, err := s.store.List(ctx, skip, limit)
	if err != nil {
		return nil, endSpan(span, err)
	}
	span.SetAttributes(attribute.Int("orders.count", len(list)))
	return list, nil
}

// Ping reports whether the order store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// insert stores order and records the id the store assigned.
func (s *Service) insert(ctx context.Context, order *Order) error {
	id, err := s.store.Insert(ctx, order)
	if err != nil {
		return err
	}
	order.ID = id
	return nil
}

// publishCreated emits order.created. Errors are logged and swallowed.
func (s *Service) publishCreated(ctx context.Context, event events.OrderCreatedEvent) {
	event.EventID = uuid.NewString()
	l := s.log.WithContext(ctx).WithFields(logrus.Fields{
		"order_id": event.OrderID,
		"event_id": event.EventID,
	})
	data, err := json.Marshal(event)
	if err != nil {
		l.WithError(err).Error("Failed to marshal order.created event")
		return
	}
	if err := s.events.Publish(ctx, events.OrderCreatedSubject, data); err != nil {
		l.WithError(err).Error("Failed to publish order.created event")
		return
	}
	l.Debug("Published order.created event")
}

func checkQuantity(quantity int) error {
	if quantity <= 0 {
		return &InvalidInputError{Reason: "quantity must be positive"}
	}
	return nil
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
