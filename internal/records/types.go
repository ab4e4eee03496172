// Package records is the external order record store: records are created on
// receipt intake, marked paid by staff and moved through kitchen statuses.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/memohai/orderbot/internal/order"
)

// Record field names, shared by every backend.
const (
	FieldCustomerInfo     = "Customer_Info"
	FieldOrderDetails     = "Order_Details"
	FieldTotalPrice       = "Total_Price"
	FieldDeliveryAddress  = "Delivery_Address"
	FieldIsPaid           = "Is_Paid"
	FieldKitchenStatus    = "Kitchen_Status"
	FieldPaymentReceipt   = "Payment_Receipt"
	FieldReceiptReference = "Receipt_Reference"
	FieldNumber           = "ID"
)

// Kitchen statuses.
const (
	KitchenWaiting = "Waiting"
	KitchenCooking = "Cooking"
	KitchenReady   = "Ready"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrUnknownField  = errors.New("unknown record field")
	ErrInvalidValue  = errors.New("invalid record field value")
	ErrEmptyRecordID = errors.New("record id is empty")
)

// Record is one order row in the external store.
type Record struct {
	ID               string `json:"id"`
	Number           string `json:"number,omitempty"`
	CustomerInfo     string `json:"customer_info"`
	OrderDetails     string `json:"order_details"`
	TotalPrice       int64  `json:"total_price"`
	DeliveryAddress  string `json:"delivery_address"`
	Paid             bool   `json:"is_paid"`
	KitchenStatus    string `json:"kitchen_status"`
	ReceiptURL       string `json:"receipt_url,omitempty"`
	ReceiptReference string `json:"receipt_reference,omitempty"`
}

// Filter selects records; zero fields do not constrain.
type Filter struct {
	Paid          *bool
	KitchenStatus string
}

// PaidAndWaiting matches records whose payment is confirmed and that have not
// been sent to the kitchen.
func PaidAndWaiting() Filter {
	paid := true
	return Filter{Paid: &paid, KitchenStatus: KitchenWaiting}
}

// Match reports whether r satisfies f.
func (f Filter) Match(r Record) bool {
	if f.Paid != nil && r.Paid != *f.Paid {
		return false
	}
	if f.KitchenStatus != "" && r.KitchenStatus != f.KitchenStatus {
		return false
	}
	return true
}

// Store is the record store collaborator.
type Store interface {
	Create(ctx context.Context, rec Record) (string, error)
	UpdateStatus(ctx context.Context, id, field string, value any) error
	Query(ctx context.Context, f Filter) ([]Record, error)
	Get(ctx context.Context, id string) (Record, error)
}

// FromOrder builds the unpaid, waiting record for o.
func FromOrder(o order.Order) Record {
	info := strings.TrimSpace(o.Phone)
	if name := strings.TrimSpace(o.CustomerName); name != "" {
		info = name + ", " + info
	}
	return Record{
		CustomerInfo:     info,
		OrderDetails:     strings.Join(o.Items, "\n"),
		TotalPrice:       o.TotalPrice,
		DeliveryAddress:  o.DeliveryAddress,
		Paid:             false,
		KitchenStatus:    KitchenWaiting,
		ReceiptURL:       o.ReceiptURL,
		ReceiptReference: o.ReceiptReference,
	}
}

// Items splits the order details into lines, skipping blanks.
func (r Record) Items() []string {
	var out []string
	for _, line := range strings.Split(r.OrderDetails, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Phone returns the contact part of the customer info.
func (r Record) Phone() string {
	if i := strings.LastIndex(r.CustomerInfo, ", "); i >= 0 {
		return strings.TrimSpace(r.CustomerInfo[i+2:])
	}
	return strings.TrimSpace(r.CustomerInfo)
}

// DisplayNumber is the human-facing order number, falling back to the record id.
func (r Record) DisplayNumber() string {
	if r.Number != "" {
		return r.Number
	}
	return r.ID
}

// ReceiptRef is a parsed "<channel>:<kind>:<file id>" receipt reference.
type ReceiptRef struct {
	Channel string
	Kind    string
	FileID  string
}

// ParseReceiptReference splits a stored receipt reference. The file id may
// itself contain colons.
func ParseReceiptReference(ref string) (ReceiptRef, bool) {
	parts := strings.SplitN(ref, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return ReceiptRef{}, false
	}
	return ReceiptRef{Channel: parts[0], Kind: parts[1], FileID: parts[2]}, true
}

// Receipt parses the record's receipt reference.
func (r Record) Receipt() (ReceiptRef, bool) {
	return ParseReceiptReference(r.ReceiptReference)
}

// normalizeStatus validates a field update and returns the canonical value.
func normalizeStatus(field string, value any) (any, error) {
	switch field {
	case FieldIsPaid:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "1", "yes":
				return true, nil
			case "false", "0", "no":
				return false, nil
			}
		}
		return nil, fmt.Errorf("%w: %s=%v", ErrInvalidValue, field, value)
	case FieldKitchenStatus:
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%w: %s=%v", ErrInvalidValue, field, value)
		}
		return strings.TrimSpace(s), nil
	case FieldPaymentReceipt, FieldReceiptReference:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s=%v", ErrInvalidValue, field, value)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
}
