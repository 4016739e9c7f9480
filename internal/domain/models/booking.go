package models

import (
	"encoding/json"
	"time"

	"bookingcore/internal/domain"
)

// PricingSnapshot is the quote captured at booking time. It is never recomputed.
type PricingSnapshot struct {
	RatePerKm   domain.Money
	TotalAmount domain.Money
	TripType    string
	DistanceKm  float64
	Category    VehicleCategory
}

type pricingJSON struct {
	RatePerKm    domain.Money `json:"ratePerKm"`
	TotalAmount  domain.Money `json:"totalAmount"`
	TripType     string       `json:"tripType"`
	DistanceKm   float64      `json:"distance"`
	Category     string       `json:"category"`
	Capabilities Capabilities `json:"capabilities"`
}

func (p PricingSnapshot) MarshalJSON() ([]byte, error) {
	out := pricingJSON{
		RatePerKm:   p.RatePerKm,
		TotalAmount: p.TotalAmount,
		TripType:    p.TripType,
		DistanceKm:  p.DistanceKm,
	}
	if p.Category != nil {
		out.Category = p.Category.Kind()
		out.Capabilities = p.Category.Capabilities()
	}
	return json.Marshal(out)
}

func (p *PricingSnapshot) UnmarshalJSON(b []byte) error {
	var in pricingJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	cat, err := ParseVehicleCategory(in.Category)
	if err != nil {
		return err
	}
	*p = PricingSnapshot{
		RatePerKm:   in.RatePerKm,
		TotalAmount: in.TotalAmount,
		TripType:    in.TripType,
		DistanceKm:  in.DistanceKm,
		Category:    cat,
	}
	return nil
}

// Booking is the aggregate root. Payment and Cancellation have no lifecycle
// outside their booking.
type Booking struct {
	ID                int64                `json:"id"`
	BookingNumber     string               `json:"bookingNumber"`
	Status            domain.BookingStatus `json:"status"`
	Version           int64                `json:"version"`
	CustomerID        string               `json:"customerId"`
	DriverID          string               `json:"driverId,omitempty"`
	Pricing           PricingSnapshot      `json:"pricingSnapshot"`
	Payment           PaymentState         `json:"payment"`
	Cancellation      *CancellationRecord  `json:"cancellation,omitempty"`
	PastCancellations []CancellationRecord `json:"pastCancellations,omitempty"`
	CreatedAt         time.Time            `json:"createdAt"`
	UpdatedAt         time.Time            `json:"updatedAt"`
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (b Booking) Clone() Booking {
	out := b
	out.Payment = b.Payment.clone()
	if b.Cancellation != nil {
		c := *b.Cancellation
		out.Cancellation = &c
	}
	if b.PastCancellations != nil {
		out.PastCancellations = append([]CancellationRecord(nil), b.PastCancellations...)
	}
	return out
}

// Document is the part of a booking persisted as a JSON blob next to the
// indexed columns.
type Document struct {
	Pricing           PricingSnapshot      `json:"pricingSnapshot"`
	Payment           PaymentState         `json:"payment"`
	Cancellation      *CancellationRecord  `json:"cancellation,omitempty"`
	PastCancellations []CancellationRecord `json:"pastCancellations,omitempty"`
}

func (b Booking) Document() Document {
	return Document{
		Pricing:           b.Pricing,
		Payment:           b.Payment,
		Cancellation:      b.Cancellation,
		PastCancellations: b.PastCancellations,
	}
}

func (b *Booking) ApplyDocument(d Document) {
	b.Pricing = d.Pricing
	b.Payment = d.Payment
	b.Cancellation = d.Cancellation
	b.PastCancellations = d.PastCancellations
}
