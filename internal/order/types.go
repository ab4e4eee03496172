// Package order defines the structured order produced by the dialogue and the
// extraction of that order from free-form model text.
package order

import (
	"errors"
	"strings"
)

// ConfirmationKey is the payload field the model sets once an order is complete.
const ConfirmationKey = "order_confirmed"

var (
	ErrNotConfirmed  = errors.New("order is not confirmed")
	ErrMissingPhone  = errors.New("order has no phone")
	ErrMissingAddr   = errors.New("order has no delivery address")
	ErrNoItems       = errors.New("order has no items")
	ErrNegativeTotal = errors.New("order total is negative")
)

// Order is a structured order extracted from the dialogue.
type Order struct {
	ID               string   `json:"id,omitempty"`
	Confirmed        bool     `json:"order_confirmed"`
	CustomerName     string   `json:"customer_name,omitempty"`
	Phone            string   `json:"phone"`
	DeliveryAddress  string   `json:"delivery_address"`
	Items            []string `json:"order_items"`
	TotalPrice       int64    `json:"total_price"`
	ReceiptReference string   `json:"receipt_reference,omitempty"`
	ReceiptKind      string   `json:"receipt_kind,omitempty"`
	ReceiptURL       string   `json:"receipt_url,omitempty"`
}

// Validate reports why an order is not actionable, or nil when it is.
// The customer name is optional; the dialogue may not learn it.
func (o Order) Validate() error {
	if !o.Confirmed {
		return ErrNotConfirmed
	}
	if strings.TrimSpace(o.Phone) == "" {
		return ErrMissingPhone
	}
	if strings.TrimSpace(o.DeliveryAddress) == "" {
		return ErrMissingAddr
	}
	if len(o.Items) == 0 {
		return ErrNoItems
	}
	if o.TotalPrice < 0 {
		return ErrNegativeTotal
	}
	return nil
}

// Actionable reports whether the order may be moved to receipt collection.
func (o Order) Actionable() bool {
	return o.Validate() == nil
}

// Clone returns a deep copy of o.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	if o.Items != nil {
		cp.Items = append([]string(nil), o.Items...)
	}
	return &cp
}

// ItemsText joins items with a comma, the form used in record stores.
func (o Order) ItemsText() string {
	return strings.Join(o.Items, ", ")
}
