package models

import "time"

type OrderKind string

const (
	OrderPharmacy OrderKind = "pharmacy"
	OrderGrocery  OrderKind = "grocery"
)

func (k OrderKind) Valid() bool {
	return k == OrderPharmacy || k == OrderGrocery
}

type OrderStatus string

const (
	StatusSentToFamily OrderStatus = "sent_to_family"
	StatusCompleted    OrderStatus = "completed"
	StatusCancelled    OrderStatus = "cancelled"

	// pharmacy
	StatusProcessing OrderStatus = "processing"
	StatusAccepted   OrderStatus = "accepted"
	StatusRejected   OrderStatus = "rejected"

	// grocery
	StatusForwardedToPal OrderStatus = "forwarded_to_pal"
	StatusAcceptedByPal  OrderStatus = "accepted_by_pal"
)

// ForwardedStatus is the status an order of this kind takes once it reaches a pal.
func (k OrderKind) ForwardedStatus() OrderStatus {
	if k == OrderGrocery {
		return StatusForwardedToPal
	}
	return StatusProcessing
}

// AcceptedStatus is the status an order of this kind takes once a pal accepts it.
func (k OrderKind) AcceptedStatus() OrderStatus {
	if k == OrderGrocery {
		return StatusAcceptedByPal
	}
	return StatusAccepted
}

// RejectedStatus is the terminal status for a rejected order. Grocery has no
// rejected state of its own.
func (k OrderKind) RejectedStatus() OrderStatus {
	if k == OrderGrocery {
		return StatusCancelled
	}
	return StatusRejected
}

// CartItem is a line in a cart and, once ordered, an immutable order line.
type CartItem struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Price                float64 `json:"price"`
	Quantity             int     `json:"quantity"`
	Unit                 string  `json:"unit,omitempty"`
	RequiresPrescription bool    `json:"requires_prescription,omitempty"`
}

// LineTotal is price times quantity.
func (i CartItem) LineTotal() float64 {
	return i.Price * float64(i.Quantity)
}

type Order struct {
	ID              string      `json:"id"`
	Kind            OrderKind   `json:"kind"`
	CreatorID       string      `json:"creator_id"`
	CreatorName     string      `json:"creator_name"`
	CreatorRole     Role        `json:"creator_role"`
	SeniorID        string      `json:"senior_id"`
	SeniorName      string      `json:"senior_name"`
	FamilyID        string      `json:"family_id"`
	PalID           string      `json:"pal_id,omitempty"`
	PalName         string      `json:"pal_name,omitempty"`
	Items           []CartItem  `json:"items"`
	TotalAmount     float64     `json:"total_amount"`
	Status          OrderStatus `json:"status"`
	PrescriptionRef string      `json:"prescription_ref,omitempty"`
	Paid            bool        `json:"paid"`
	PaidBy          string      `json:"paid_by,omitempty"`
	Version         int         `json:"version"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// NeedsPrescription reports whether any line requires a prescription.
func (o *Order) NeedsPrescription() bool {
	return CartNeedsPrescription(o.Items)
}

// CartNeedsPrescription reports whether any of the lines requires a prescription.
func CartNeedsPrescription(items []CartItem) bool {
	for _, item := range items {
		if item.RequiresPrescription {
			return true
		}
	}
	return false
}

// CartTotal sums price times quantity over the lines.
func CartTotal(items []CartItem) float64 {
	var total float64
	for _, item := range items {
		total += item.LineTotal()
	}
	return total
}
