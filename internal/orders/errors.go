package orders

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no order has the requested id.
var ErrNotFound = errors.New("order not found")

// DatabaseError wraps a failure of the underlying document store.
type DatabaseError struct {
	Op  string // insert, find, list or ping.
	Err error
}

func (e *DatabaseError) Error() string { return fmt.Sprintf("database %s: %v", e.Op, e.Err) }
func (e *DatabaseError) Unwrap() error { return e.Err }

// InvalidIDError reports an order id that is not a valid store identifier.
type InvalidIDError struct {
	ID  string
	Err error
}

func (e *InvalidIDError) Error() string { return fmt.Sprintf("invalid order id %q: %v", e.ID, e.Err) }
func (e *InvalidIDError) Unwrap() error { return e.Err }

// InvalidInputError reports a request the service refuses on its own
// terms, such as a non-positive quantity or a total above MaxTotalPrice.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string { return e.Reason }

// UserNotFoundError reports that the user directory confirmed the user
// does not exist. Its message is returned to the caller verbatim.
type UserNotFoundError struct {
	UserID int
}

func (e *UserNotFoundError) Error() string { return fmt.Sprintf("User %d not found", e.UserID) }

// ProductNotFoundError reports that the inventory catalog confirmed the
// product does not exist. Its message is returned to the caller verbatim.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("Product %s not found", e.ProductID)
}

// InsufficientInventoryError reports that the catalog holds fewer units than
// requested.
type InsufficientInventoryError struct {
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("Insufficient inventory for %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}
