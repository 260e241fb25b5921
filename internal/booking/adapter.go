// Package booking defines the scheduling collaborators the dialogue engine
// consumes and the HTTP client that implements them against the internal
// scheduling service.
package booking

import (
	"context"
	"errors"
	"time"
)

// Typed booking failures. Each maps to a specific customer-facing message.
var (
	ErrDateInPast       = errors.New("booking: date is in the past")
	ErrDateTooFar       = errors.New("booking: date is too far out")
	ErrSlotTaken        = errors.New("booking: slot no longer available")
	ErrMonthlyCapReached = errors.New("booking: monthly booking cap reached")
)

// Service is one bookable offering of a tenant.
type Service struct {
	ID       string
	Name     string
	Price    int64 // cents
	Capacity int
	FullDay  bool
}

// Slot is an availability window on a given date.
type Slot struct {
	Time              string // "HH:MM"
	RemainingCapacity int
}

// BookingRequest carries everything needed to create an appointment.
type BookingRequest struct {
	TenantID      string
	ServiceID     string
	Date          time.Time
	Time          string
	Quantity      int
	CustomerName  string
	CustomerPhone string
	Origin        string
}

// Catalog lists a tenant's active services.
type Catalog interface {
	ActiveServices(ctx context.Context, tenantID string) ([]Service, error)
}

// Availability returns the open slots for a service on a date, ordered by
// time. Capacity is read fresh on every call; callers must not cache it
// across dialogue turns.
type Availability interface {
	SlotsFor(ctx context.Context, tenantID, serviceID string, date time.Time) ([]Slot, error)
}

// Booker creates appointments, failing with one of the typed errors above
// when the scheduling service rejects the request.
type Booker interface {
	CreateBooking(ctx context.Context, req BookingRequest) (string, error)
}
