// Package orders holds the order domain: the persisted Order, the store it
// lives in and the Service that creates orders, with or without validating
// them against the user directory and the inventory catalog.
package orders

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StatusPending is the status every order is created with.
const StatusPending = "pending"

// Order is the persisted order document. ID is zero until the store assigns
// it on insert.
type Order struct {
	ID          primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	UserID      int                `json:"user_id" bson:"user_id"`
	ProductName string             `json:"product_name" bson:"product_name"`
	Quantity    int                `json:"quantity" bson:"quantity"`
	TotalPrice  float64            `json:"total_price" bson:"total_price"`
	Status      string             `json:"status" bson:"status"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
}

// SimpleOrderInput is a caller-priced order; nothing in it is checked
// against the collaborators.
type SimpleOrderInput struct {
	UserID       int
	ProductName  string
	Quantity     int
	PricePerUnit float64
}

// ValidatedOrderInput names a product by its inventory id; name and price
// are resolved from the inventory catalog.
type ValidatedOrderInput struct {
	UserID    int
	ProductID string
	Quantity  int
}

// MaxTotalPrice bounds the total of a single order. Anything above it, or
// not finite, is rejected before the order is stored.
const MaxTotalPrice = 1e12

// newOrder prices and stamps a pending order. CreatedAt is truncated to the
// millisecond so the value handed back on create is the one a BSON datetime
// will give back on read.
func newOrder(userID int, productName string, quantity int, unitPrice float64, now time.Time) (*Order, error) {
	if !finite(unitPrice) {
		return nil, &InvalidInputError{Reason: "price_per_unit must be a finite number"}
	}
	total := TotalPrice(unitPrice, quantity)
	if !finite(total) || total < 0 || total > MaxTotalPrice {
		return nil, &InvalidInputError{Reason: "total_price is out of range"}
	}
	return &Order{
		UserID:      userID,
		ProductName: productName,
		Quantity:    quantity,
		TotalPrice:  total,
		Status:      StatusPending,
		CreatedAt:   now.UTC().Truncate(time.Millisecond),
	}, nil
}

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

// TotalPrice returns unitPrice × quantity computed in decimal arithmetic.
// unitPrice must be finite. A product beyond float64 range comes back as
// +Inf.
func TotalPrice(unitPrice float64, quantity int) float64 {
	return decimal.NewFromFloat(unitPrice).Mul(decimal.NewFromInt(int64(quantity))).InexactFloat64()
}

// ResolveUnitPrice returns price when it is strictly positive and fallback
// otherwise. The catalog may omit prices; orders are then charged the
// fallback instead of being rejected.
func ResolveUnitPrice(price, fallback float64) float64 {
	if price > 0 {
		return price
	}
	return fallback
}
