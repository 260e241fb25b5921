// Package conversation holds the per-customer dialogue state machine that
// collects booking details over WhatsApp, plus its DynamoDB persistence and
// the pt-BR reply templates.
package conversation

import (
	"time"
)

// State identifies which slot the dialogue is currently collecting.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitService  State = "await_service"
	StateAwaitQuantity State = "await_quantity"
	StateAwaitDate     State = "await_date"
	StateAwaitTime     State = "await_time"
	StateAwaitName     State = "await_name"
	StateAwaitConfirm  State = "await_confirm"
)

// Slots are the booking fields collected so far. Date is stored as
// "2006-01-02" and Time as "HH:MM" so the record round-trips DynamoDB without
// timezone ambiguity.
type Slots struct {
	ServiceID    string `dynamodbav:"serviceId,omitempty" json:"service_id,omitempty"`
	ServiceName  string `dynamodbav:"serviceName,omitempty" json:"service_name,omitempty"`
	Capacity     int    `dynamodbav:"capacity,omitempty" json:"capacity,omitempty"`
	FullDay      bool   `dynamodbav:"fullDay,omitempty" json:"full_day,omitempty"`
	Quantity     int    `dynamodbav:"quantity,omitempty" json:"quantity,omitempty"`
	Date         string `dynamodbav:"date,omitempty" json:"date,omitempty"`
	Time         string `dynamodbav:"time,omitempty" json:"time,omitempty"`
	CustomerName string `dynamodbav:"customerName,omitempty" json:"customer_name,omitempty"`
}

// DateIn parses the stored date in the given location.
func (s Slots) DateIn(loc *time.Location) (time.Time, bool) {
	if s.Date == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006-01-02", s.Date, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Conversation is the persisted dialogue row, one per (tenant, phone).
type Conversation struct {
	TenantID      string `dynamodbav:"tenantId" json:"tenant_id"`
	Phone         string `dynamodbav:"phone" json:"phone"`
	State         State  `dynamodbav:"state" json:"state"`
	Slots         Slots  `dynamodbav:"slots" json:"slots"`
	LastMessageID string `dynamodbav:"lastMessageId,omitempty" json:"last_message_id,omitempty"`
	UpdatedAt     string `dynamodbav:"updatedAt,omitempty" json:"updated_at,omitempty"`
	ExpiresAt     int64  `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// StaleSince reports whether the row has not been touched within the window.
// A row with no parseable timestamp counts as stale.
func (c *Conversation) StaleSince(now time.Time, window time.Duration) bool {
	if c.UpdatedAt == "" {
		return false
	}
	updated, err := time.Parse(time.RFC3339Nano, c.UpdatedAt)
	if err != nil {
		return true
	}
	return now.Sub(updated) > window
}

// Reset clears the dialogue back to idle with empty slots.
func (c *Conversation) Reset() {
	c.State = StateIdle
	c.Slots = Slots{}
}
