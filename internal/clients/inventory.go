package clients

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

// InventoryItem is the inventory catalog's view of a product.
// Price is zero when the catalog does not report one.
type InventoryItem struct {
	ID          int     `json:"id"`
	ProductName string  `json:"product_name"`
	SKU         string  `json:"sku"`
	Quantity    int     `json:"quantity"`
	Location    string  `json:"location"`
	Price       float64 `json:"price,omitempty"`
}

// InventoryClient looks products up in the inventory catalog.
//
// Answers are a snapshot: stock is owned and decremented by the inventory
// service, so two callers may both observe sufficient stock for the same
// units.
type InventoryClient struct {
	caller jsonCaller
}

// NewInventoryClient returns a client for the inventory catalog at baseURL.
func NewInventoryClient(baseURL string, client *http.Client, logger *logrus.Entry) *InventoryClient {
	return &InventoryClient{caller: newJSONCaller("inventory-service", baseURL, client, logger)}
}

// GetItem returns the catalog entry for productID, ErrNotFound when the
// catalog has no such product, or a *TransportError.
func (c *InventoryClient) GetItem(ctx context.Context, productID string) (*InventoryItem, error) {
	var item InventoryItem
	if err := c.caller.getJSON(ctx, "/api/inventory/"+url.PathEscape(productID), &item); err != nil {
		return nil, err
	}
	return &item, nil
}
