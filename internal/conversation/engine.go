package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wfsantos/agendabot/internal/booking"
	"github.com/wfsantos/agendabot/internal/events"
	"github.com/wfsantos/agendabot/internal/observability/metrics"
	"github.com/wfsantos/agendabot/internal/parse"
	"github.com/wfsantos/agendabot/internal/tenancy"
	"github.com/wfsantos/agendabot/pkg/logging"
)

// Conversations with no activity inside this window restart from idle.
const defaultStaleness = 2 * time.Hour

// CustomerDirectory answers and records prior customer names.
type CustomerDirectory interface {
	LastKnownName(ctx context.Context, tenantID, phone string) (string, bool, error)
	RememberName(ctx context.Context, tenantID, phone, name string) error
}

// Result is what the engine wants sent back to the customer.
type Result struct {
	Reply string
	// Confirmation marks the booking-confirmed message, which gets an email
	// fallback if every gateway send variant fails.
	Confirmation bool
	BookingID    string
	// Booked carries the confirmed slot values for the email fallback.
	Booked Slots
}

// Engine drives the slot-filling dialogue. It owns all state transitions;
// callers only deliver normalized inbound messages and send the reply.
type Engine struct {
	store        *Store
	catalog      booking.Catalog
	availability booking.Availability
	booker       booking.Booker
	directory    CustomerDirectory
	staleness    time.Duration
	origin       string
	logger       *logging.Logger
	metrics      *metrics.MessagingMetrics
	now          func() time.Time
}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Store        *Store
	Catalog      booking.Catalog
	Availability booking.Availability
	Booker       booking.Booker
	Directory    CustomerDirectory
	Staleness    time.Duration
	Origin       string
	Logger       *logging.Logger
	Metrics      *metrics.MessagingMetrics
	Now          func() time.Time
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Store == nil {
		panic("conversation: store required")
	}
	if cfg.Catalog == nil || cfg.Availability == nil || cfg.Booker == nil {
		panic("conversation: booking collaborators required")
	}
	staleness := cfg.Staleness
	if staleness <= 0 {
		staleness = defaultStaleness
	}
	origin := cfg.Origin
	if origin == "" {
		origin = "whatsapp-bot"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:        cfg.Store,
		catalog:      cfg.Catalog,
		availability: cfg.Availability,
		booker:       cfg.Booker,
		directory:    cfg.Directory,
		staleness:    staleness,
		origin:       origin,
		logger:       logger,
		metrics:      cfg.Metrics,
		now:          now,
	}
}

// Handle runs one inbound message through the dialogue. An empty Result.Reply
// means nothing should be sent. The conversation row is persisted before
// Handle returns, so redeliveries hit the message-id guard.
func (e *Engine) Handle(ctx context.Context, tenant *tenancy.Tenant, msg events.InboundMessage) (Result, error) {
	if tenant == nil {
		return Result{}, errors.New("conversation: tenant required")
	}
	if !tenant.BotEnabled {
		return Result{}, nil
	}

	conv, err := e.store.Get(ctx, tenant.ID, msg.Sender)
	if err != nil {
		return Result{}, err
	}
	if msg.MessageID != "" && conv.LastMessageID == msg.MessageID {
		e.logger.Debug("duplicate message skipped", "tenant", tenant.ID, "message_id", msg.MessageID)
		return Result{}, nil
	}

	now := e.now().In(tenant.Location())
	if conv.StaleSince(now, e.staleness) {
		conv.Reset()
	}
	conv.LastMessageID = msg.MessageID

	res, err := e.transition(ctx, tenant, conv, msg.Text, now)
	if err != nil {
		return Result{}, err
	}
	if err := e.store.Put(ctx, conv); err != nil {
		return Result{}, err
	}
	return res, nil
}

// transition applies the global rules, then the per-state handler.
func (e *Engine) transition(ctx context.Context, tenant *tenancy.Tenant, conv *Conversation, text string, now time.Time) (Result, error) {
	replies := NewReplies(tenant)

	if conv.State != StateIdle && parse.Negative(text) {
		conv.Reset()
		return Result{Reply: replies.Cancelled()}, nil
	}
	if parse.BookingTrigger(text) {
		conv.Reset()
		return e.enterAwaitService(ctx, tenant, conv, replies)
	}

	switch conv.State {
	case StateIdle:
		// Non-trigger chatter is ignored, but the row still records the
		// message id so a redelivery is not reprocessed.
		return Result{}, nil
	case StateAwaitService:
		return e.handleAwaitService(ctx, tenant, conv, replies, text)
	case StateAwaitQuantity:
		return e.handleAwaitQuantity(conv, replies, text)
	case StateAwaitDate:
		return e.handleAwaitDate(ctx, tenant, conv, replies, text, now)
	case StateAwaitTime:
		return e.handleAwaitTime(ctx, tenant, conv, replies, text, now)
	case StateAwaitName:
		return e.handleAwaitName(conv, replies, text)
	case StateAwaitConfirm:
		return e.handleAwaitConfirm(ctx, tenant, conv, replies, text)
	default:
		conv.Reset()
		return Result{}, nil
	}
}

func (e *Engine) enterAwaitService(ctx context.Context, tenant *tenancy.Tenant, conv *Conversation, replies *Replies) (Result, error) {
	services, err := e.catalog.ActiveServices(ctx, tenant.ID)
	if err != nil {
		return Result{}, fmt.Errorf("conversation: list services: %w", err)
	}
	conv.State = StateAwaitService
	return Result{Reply: replies.AskService(services)}, nil
}

func (e *Engine) handleAwaitService(ctx context.Context, tenant *tenancy.Tenant, conv *Conversation, replies *Replies, text string) (Result, error) {
	services, err := e.catalog.ActiveServices(ctx, tenant.ID)
	if err != nil {
		return Result{}, fmt.Errorf("conversation: list services: %w", err)
	}
	if parse.WantsPriceList(text) {
		return Result{Reply: replies.ServiceList(services)}, nil
	}

	var matched []booking.Service
	for _, svc := range services {
		if parse.MatchesService(text, svc.Name) {
			matched = append(matched, svc)
		}
	}
	if len(matched) != 1 {
		return Result{Reply: replies.ServiceList(services)}, nil
	}

	svc := matched[0]
	conv.Slots.ServiceID = svc.ID
	conv.Slots.ServiceName = svc.Name
	conv.Slots.Capacity = svc.Capacity
	conv.Slots.FullDay = svc.FullDay
	if svc.Capacity > 1 {
		conv.State = StateAwaitQuantity
		return Result{Reply: replies.AskQuantity(svc.Capacity)}, nil
	}
	conv.Slots.Quantity = 1
	conv.State = StateAwaitDate
	return Result{Reply: replies.AskDate()}, nil
}

func (e *Engine) handleAwaitQuantity(conv *Conversation, replies *Replies, text string) (Result, error) {
	qty, ok := parse.Quantity(text)
	if !ok || qty <= 0 || qty > conv.Slots.Capacity {
		return Result{Reply: replies.BadQuantity(conv.Slots.Capacity)}, nil
	}
	conv.Slots.Quantity = qty
	conv.State = StateAwaitDate
	return Result{Reply: replies.AskDate()}, nil
}

func (e *Engine) handleAwaitDate(ctx context.Context, tenant *tenancy.Tenant, conv *Conversation, replies *Replies, text string, now time.Time) (Result, error) {
	date, err := parse.Date(text, now)
	if err != nil {
		return Result{Reply: replies.BadDate()}, nil
	}

	slots, err := e.availability.SlotsFor(ctx, tenant.ID, conv.Slots.ServiceID, date)
	if err != nil {
		e.logger.Warn("availability query failed", "tenant", tenant.ID, "error", err)
		return Result{Reply: replies.AvailabilityDown()}, nil
	}
	open := openSlots(slots, conv.Slots.Quantity)
	if len(open) == 0 {
		return Result{Reply: replies.NoAvailability(displayDate(date.Format("2006-01-02")))}, nil
	}

	conv.Slots.Date = date.Format("2006-01-02")
	if conv.Slots.FullDay {
		conv.Slots.Time = open[0].Time
		return e.advanceToName(ctx, tenant, conv, replies)
	}
	conv.State = StateAwaitTime
	return Result{Reply: replies.AskTime(displayDate(conv.Slots.Date), open)}, nil
}

func (e *Engine) handleAwaitTime(ctx context.Context, tenant *tenancy.Tenant, conv *Conversation, replies *Replies, text string, now time.Time) (Result, error) {
	date, ok := conv.Slots.DateIn(tenant.Location())
	if !ok {
		conv.State = StateAwaitDate
		return Result{Reply: replies.AskDate()}, nil
	}

	// Availability is re-read every turn; the customer may answer hours
	// after the list was first shown.
	slots, err := e.availability.SlotsFor(ctx, tenant.ID, conv.Slots.ServiceID, date)
	if err != nil {
		e.logger.Warn("availability query failed", "tenant", tenant.ID, "error", err)
		return Result{Reply: replies.AvailabilityDown()}, nil
	}
	open := openSlots(slots, conv.Slots.Quantity)
	if len(open) == 0 {
		conv.State = StateAwaitDate
		conv.Slots.Date = ""
		return Result{Reply: replies.NoAvailability(displayDate(date.Format("2006-01-02")))}, nil
	}
	if parse.WantsTimes(text) {
		return Result{Reply: replies.AskTime(displayDate(conv.Slots.Date), open)}, nil
	}

	clock, err := parse.Clock(text)
	if err != nil || !slotAt(open, clock) {
		return Result{Reply: replies.BadTime(displayDate(conv.Slots.Date), open)}, nil
	}
	conv.Slots.Time = clock
	return e.advanceToName(ctx, tenant, conv, replies)
}

// advanceToName skips the name question when the phone already booked under
// a known name.
func (e *Engine) advanceToName(ctx context.Context, tenant *tenancy.Tenant, conv *Conversation, replies *Replies) (Result, error) {
	if conv.Slots.CustomerName != "" {
		conv.State = StateAwaitConfirm
		return Result{Reply: replies.ConfirmSummary(conv.Slots)}, nil
	}
	if e.directory != nil {
		name, found, err := e.directory.LastKnownName(ctx, tenant.ID, conv.Phone)
		if err != nil {
			e.logger.Warn("customer name lookup failed", "tenant", tenant.ID, "error", err)
		} else if found {
			conv.Slots.CustomerName = name
			conv.State = StateAwaitConfirm
			return Result{Reply: replies.ConfirmSummary(conv.Slots)}, nil
		}
	}
	conv.State = StateAwaitName
	return Result{Reply: replies.AskName()}, nil
}

func (e *Engine) handleAwaitName(conv *Conversation, replies *Replies, text string) (Result, error) {
	name := strings.TrimSpace(text)
	if utf8.RuneCountInString(name) < 2 {
		return Result{Reply: replies.BadName()}, nil
	}
	conv.Slots.CustomerName = name
	conv.State = StateAwaitConfirm
	return Result{Reply: replies.ConfirmSummary(conv.Slots)}, nil
}

func (e *Engine) handleAwaitConfirm(ctx context.Context, tenant *tenancy.Tenant, conv *Conversation, replies *Replies, text string) (Result, error) {
	if !parse.Affirmative(text) {
		return Result{Reply: replies.RepromptConfirm()}, nil
	}

	date, ok := conv.Slots.DateIn(tenant.Location())
	if !ok {
		conv.State = StateAwaitDate
		return Result{Reply: replies.AskDate()}, nil
	}
	bookingID, err := e.booker.CreateBooking(ctx, booking.BookingRequest{
		TenantID:      tenant.ID,
		ServiceID:     conv.Slots.ServiceID,
		Date:          date,
		Time:          conv.Slots.Time,
		Quantity:      conv.Slots.Quantity,
		CustomerName:  conv.Slots.CustomerName,
		CustomerPhone: conv.Phone,
		Origin:        e.origin,
	})
	if err != nil {
		return e.handleBookingFailure(conv, replies, err), nil
	}

	e.metrics.ObserveBooking("confirmed")
	if e.directory != nil {
		if err := e.directory.RememberName(ctx, tenant.ID, conv.Phone, conv.Slots.CustomerName); err != nil {
			e.logger.Warn("remember customer name failed", "tenant", tenant.ID, "error", err)
		}
	}
	slots := conv.Slots
	conv.Reset()
	return Result{
		Reply:        replies.Confirmed(slots),
		Confirmation: true,
		BookingID:    bookingID,
		Booked:       slots,
	}, nil
}

// handleBookingFailure routes scheduling rejections back to date selection,
// keeping the chosen service and quantity. The rejected slot is known bad,
// so re-asking only for date and time is the shortest path to a booking.
func (e *Engine) handleBookingFailure(conv *Conversation, replies *Replies, err error) Result {
	template := ""
	switch {
	case errors.Is(err, booking.ErrSlotTaken):
		template = "slot_taken"
	case errors.Is(err, booking.ErrDateInPast):
		template = "date_in_past"
	case errors.Is(err, booking.ErrDateTooFar):
		template = "date_too_far"
	case errors.Is(err, booking.ErrMonthlyCapReached):
		template = "monthly_cap"
	}
	if template == "" {
		// Transport-level failure: the request may not have reached the
		// scheduler, so stay put and let the customer retry the confirm.
		e.metrics.ObserveBooking("error")
		e.logger.Error("booking creation failed", "error", err)
		return Result{Reply: replies.BookingFailure("booking_failed")}
	}
	e.metrics.ObserveBooking("rejected")
	conv.State = StateAwaitDate
	conv.Slots.Date = ""
	conv.Slots.Time = ""
	return Result{Reply: replies.BookingFailure(template)}
}

func openSlots(slots []booking.Slot, quantity int) []booking.Slot {
	if quantity <= 0 {
		quantity = 1
	}
	var open []booking.Slot
	for _, slot := range slots {
		if slot.RemainingCapacity >= quantity {
			open = append(open, slot)
		}
	}
	return open
}

func slotAt(slots []booking.Slot, clock string) bool {
	for _, slot := range slots {
		if slot.Time == clock {
			return true
		}
	}
	return false
}
