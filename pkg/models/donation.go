package models

import "encoding/json"

// ProductStateActive marks a catalog item available for purchase
const ProductStateActive = "ACTIVE"

// Product is an in-app catalog item
type Product struct {
	SKU         string          `json:"sku"`
	State       string          `json:"state"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Prices      json.RawMessage `json:"prices,omitempty"`
}

// Purchase is a license entry from the user's purchase history
type Purchase struct {
	SKU     string `json:"sku"`
	ItemID  string `json:"itemId,omitempty"`
	State   string `json:"state,omitempty"`
	Created string `json:"createdTime,omitempty"`
}

// PurchaseResult is the provider's response to a completed buy flow
type PurchaseResult struct {
	JWT     string          `json:"jwt,omitempty"`
	OrderID string          `json:"orderId,omitempty"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}
