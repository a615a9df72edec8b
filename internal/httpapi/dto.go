package httpapi

import (
	"fmt"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// createOrderRequest is the body of POST /api/orders.
type createOrderRequest struct {
	UserID       int     `json:"user_id" validate:"required"`
	ProductName  string  `json:"product_name" validate:"required"`
	Quantity     int     `json:"quantity" validate:"required,min=1"`
	PricePerUnit float64 `json:"price_per_unit" validate:"gte=0"`
}

// createValidatedOrderRequest is the body of POST /api/orders/validated.
type createValidatedOrderRequest struct {
	UserID    int    `json:"user_id" validate:"required"`
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Database string `json:"database"`
	Nats     string `json:"nats"`
}

// newValidator returns a validator that names fields by their JSON keys.
func newValidator() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// describeValidation renders validator errors as a short client message.
func describeValidation(err error) string {
	verrs, ok := err.(validatorv10.ValidationErrors)
	if !ok {
		return "Invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "min", "gte":
			parts = append(parts, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return "Invalid request: " + strings.Join(parts, "; ")
}
