// Package events defines the messages the order service publishes on the bus.
package events

import "time"

// OrderCreatedSubject is the NATS subject order.created events are published on.
const OrderCreatedSubject = "order.created"

// OrderCreatedEvent is published after an order has been persisted.
// User and product-id fields are only set for orders validated against the
// collaborators.
type OrderCreatedEvent struct {
	EventID     string    `json:"event_id"`             // Random UUID; unique per publication.
	Event       string    `json:"event"`                // Always OrderCreatedSubject.
	OrderID     string    `json:"order_id"`             // Hex id assigned by the store.
	UserID      int       `json:"user_id"`              // Identifier of the ordering user.
	UserName    string    `json:"user_name,omitempty"`  // From the user directory.
	UserEmail   string    `json:"user_email,omitempty"` // From the user directory.
	ProductID   string    `json:"product_id,omitempty"` // Inventory id of the product.
	ProductName string    `json:"product_name"`         // Resolved or caller-supplied name.
	Quantity    int       `json:"quantity"`             // Units ordered.
	TotalPrice  float64   `json:"total_price"`          // Unit price × quantity at creation.
	Timestamp   time.Time `json:"timestamp"`            // RFC 3339, UTC.
}
