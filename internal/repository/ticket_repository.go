package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/parking-ticket-tracker/internal/clock"
	"github.com/iliyamo/parking-ticket-tracker/internal/logger"
	"github.com/iliyamo/parking-ticket-tracker/internal/model"
	"github.com/iliyamo/parking-ticket-tracker/internal/store"
	"github.com/iliyamo/parking-ticket-tracker/internal/ticketcode"
)

// Collection key suffixes under <namespace>:<device>.
const (
	activeSuffix  = "active_tickets"
	historySuffix = "history_tickets"
)

// OpenInput carries the caller-supplied fields of a new ticket.  A zero
// EntryTime means "now".
type OpenInput struct {
	ParkingName  string
	PricePerHour int64
	EntryTime    time.Time
}

// TicketRepo owns one device's two ticket collections: active tickets and
// historical (closed) tickets, each stored whole as a JSON array under its
// own key.  Every mutation holds mu for its entire read-modify-write cycle,
// so two requests for the same device can never both write back a stale
// snapshot.  Use a Registry to make sure there is exactly one TicketRepo per
// device in the process.
//
// A ticket moves active -> closed -> deleted and never back.  Close appends
// to history before removing from active; a failure between the two writes
// leaves the ticket in both collections, and every read treats the
// historical copy as authoritative and drops the active one.
type TicketRepo struct {
	kv        store.Store
	activeKey string
	histKey   string
	clock     clock.Clock
	log       *zap.Logger

	mu sync.Mutex
}

// NewTicketRepo returns a repository for the collections of device under
// namespace.
func NewTicketRepo(kv store.Store, namespace, device string, clk clock.Clock, log *zap.Logger) *TicketRepo {
	if clk == nil {
		clk = clock.Real()
	}
	return &TicketRepo{
		kv:        kv,
		activeKey: store.Key(namespace, device, activeSuffix),
		histKey:   store.Key(namespace, device, historySuffix),
		clock:     clk,
		log:       logger.OrNop(log).With(zap.String("device", device)),
	}
}

// Open validates the input, mints an id and QR payload, and appends the new
// active ticket.  Validation happens before any storage access.
func (r *TicketRepo) Open(ctx context.Context, in OpenInput) (model.Ticket, error) {
	name := strings.TrimSpace(in.ParkingName)
	if name == "" {
		return model.Ticket{}, fmt.Errorf("%w: parking name is required", ErrInvalidTicket)
	}
	if in.PricePerHour <= 0 {
		return model.Ticket{}, fmt.Errorf("%w: price per hour must be positive", ErrInvalidTicket)
	}
	if in.PricePerHour > model.MaxPricePerHour {
		return model.Ticket{}, fmt.Errorf("%w: price per hour must not exceed %d", ErrInvalidTicket, model.MaxPricePerHour)
	}

	now := normalize(r.clock.Now())
	entry := now
	if !in.EntryTime.IsZero() {
		entry = normalize(in.EntryTime)
	}
	t := model.Ticket{
		ID:           ticketcode.NewID(),
		ParkingName:  name,
		PricePerHour: in.PricePerHour,
		EntryTime:    entry,
		Status:       model.StatusActive,
		CreatedAt:    now,
	}
	t.QRCodePayload = ticketcode.Encode(t, now)

	r.mu.Lock()
	defer r.mu.Unlock()

	active, _, err := r.snapshot(ctx)
	if err != nil {
		return model.Ticket{}, err
	}
	active = append(active, t)
	if err := r.save(ctx, r.activeKey, active); err != nil {
		return model.Ticket{}, err
	}
	r.log.Info("ticket opened", zap.String("ticket_id", t.ID), zap.String("parking", t.ParkingName))
	return t, nil
}

// Close moves the active ticket id to history with the given exit time and
// amount.  A zero exit means "now".  It fails with ErrTicketNotFound when id
// is not an active ticket, which includes a second Close of the same id.
func (r *TicketRepo) Close(ctx context.Context, id string, exit time.Time, totalAmount int64) (model.Ticket, error) {
	if totalAmount < 0 {
		return model.Ticket{}, fmt.Errorf("%w: total amount must not be negative", ErrInvalidTicket)
	}
	if exit.IsZero() {
		exit = r.clock.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	active, history, err := r.snapshot(ctx)
	if err != nil {
		return model.Ticket{}, err
	}
	idx := indexOf(active, id)
	if idx < 0 {
		return model.Ticket{}, fmt.Errorf("%w: no active ticket %q", ErrTicketNotFound, id)
	}

	closed := active[idx].Closed(normalize(exit), totalAmount)
	// History first: a crash after this write duplicates the ticket, which
	// snapshot repairs, instead of losing it.
	if err := r.save(ctx, r.histKey, append(history, closed)); err != nil {
		return model.Ticket{}, err
	}
	remaining := append(active[:idx:idx], active[idx+1:]...)
	if err := r.save(ctx, r.activeKey, remaining); err != nil {
		r.log.Error("ticket closed but still listed as active", zap.String("ticket_id", id), zap.Error(err))
		return model.Ticket{}, err
	}
	r.log.Info("ticket closed",
		zap.String("ticket_id", id),
		zap.Int64("total_amount", totalAmount),
	)
	return closed, nil
}

// FindByID searches active tickets first, then history.
func (r *TicketRepo) FindByID(ctx context.Context, id string) (model.Ticket, error) {
	active, history, err := r.read(ctx)
	if err != nil {
		return model.Ticket{}, err
	}
	if i := indexOf(active, id); i >= 0 {
		return active[i], nil
	}
	if i := indexOf(history, id); i >= 0 {
		return history[i], nil
	}
	return model.Ticket{}, fmt.Errorf("%w: %q", ErrTicketNotFound, id)
}

// ListActive returns active tickets in the order they were opened.
func (r *TicketRepo) ListActive(ctx context.Context) ([]model.Ticket, error) {
	active, _, err := r.read(ctx)
	return active, err
}

// ListHistory returns closed tickets in the order they were closed.
// Presentation order is up to the caller.
func (r *TicketRepo) ListHistory(ctx context.Context) ([]model.Ticket, error) {
	_, history, err := r.read(ctx)
	return history, err
}

// All returns active tickets followed by historical ones.
func (r *TicketRepo) All(ctx context.Context) ([]model.Ticket, error) {
	active, history, err := r.read(ctx)
	if err != nil {
		return nil, err
	}
	return append(active, history...), nil
}

// DeleteFromHistory permanently removes a closed ticket.  Active tickets
// are never touched: passing an active id fails with ErrTicketNotFound.
func (r *TicketRepo) DeleteFromHistory(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, history, err := r.snapshot(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(history, id)
	if idx < 0 {
		return fmt.Errorf("%w: no closed ticket %q", ErrTicketNotFound, id)
	}
	if err := r.save(ctx, r.histKey, append(history[:idx:idx], history[idx+1:]...)); err != nil {
		return err
	}
	r.log.Info("ticket deleted from history", zap.String("ticket_id", id))
	return nil
}

// read takes the lock so that readers never observe the window between
// the two writes of Close.
func (r *TicketRepo) read(ctx context.Context) ([]model.Ticket, []model.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(ctx)
}

// snapshot loads both collections and drops active entries whose id is
// already in history.  Callers must hold mu.
func (r *TicketRepo) snapshot(ctx context.Context) (active, history []model.Ticket, err error) {
	if active, err = r.load(ctx, r.activeKey); err != nil {
		return nil, nil, err
	}
	if history, err = r.load(ctx, r.histKey); err != nil {
		return nil, nil, err
	}
	if len(history) == 0 || len(active) == 0 {
		return active, history, nil
	}
	closed := make(map[string]struct{}, len(history))
	for _, t := range history {
		closed[t.ID] = struct{}{}
	}
	kept := active[:0]
	for _, t := range active {
		if _, dup := closed[t.ID]; dup {
			r.log.Warn("dropping active copy of closed ticket", zap.String("ticket_id", t.ID))
			continue
		}
		kept = append(kept, t)
	}
	return kept, history, nil
}

func (r *TicketRepo) load(ctx context.Context, key string) ([]model.Ticket, error) {
	raw, ok, err := r.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !ok || len(raw) == 0 {
		return []model.Ticket{}, nil
	}
	var list []model.Ticket
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrPersistence, key, err)
	}
	if list == nil {
		list = []model.Ticket{}
	}
	return list, nil
}

func (r *TicketRepo) save(ctx context.Context, key string, list []model.Ticket) error {
	if list == nil {
		list = []model.Ticket{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrPersistence, key, err)
	}
	if err := r.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func indexOf(list []model.Ticket, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

// normalize returns t in UTC at millisecond precision, the resolution of
// the ISO-8601 strings exchanged with clients.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
