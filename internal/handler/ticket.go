package handler

import (
	"context"  // timeouts for store calls
	"errors"   // sentinel matching
	"net/http" // HTTP status codes
	"sort"     // history ordering
	"strconv"  // qr image size parameter
	"time"     // timestamps and timeouts

	"github.com/labstack/echo/v4" // Echo web framework
	"go.uber.org/zap"             // structured logging

	"github.com/iliyamo/parking-ticket-tracker/internal/billing"    // duration and fee rules
	"github.com/iliyamo/parking-ticket-tracker/internal/clock"      // injectable now()
	"github.com/iliyamo/parking-ticket-tracker/internal/logger"     // nil-safe logger
	"github.com/iliyamo/parking-ticket-tracker/internal/model"      // ticket types
	"github.com/iliyamo/parking-ticket-tracker/internal/queue"      // ticket-closed event payload
	"github.com/iliyamo/parking-ticket-tracker/internal/repository" // ticket collections
	"github.com/iliyamo/parking-ticket-tracker/internal/ticketcode" // QR codec
	"github.com/iliyamo/parking-ticket-tracker/internal/verify"     // scan verification
)

// storeTimeout bounds every store round trip made on behalf of a request.
const storeTimeout = 5 * time.Second

// EventPublisher is notified after a ticket is closed.  Publishing is best
// effort: a failure is logged and does not undo the close.
type EventPublisher interface {
	PublishTicketClosed(ctx context.Context, event queue.TicketClosedEvent) error
}

// TicketHandler serves the ticket lifecycle for the authenticated device.
// All methods assume DeviceAuth has already run.
type TicketHandler struct {
	Repos  *repository.Registry // one repository per device
	Calc   *billing.Calculator  // fee and duration rules
	Clock  clock.Clock          // source of "now" for defaults and quotes
	Events EventPublisher       // ticket-closed notifications
	Log    *zap.Logger
}

// NewTicketHandler constructs a TicketHandler and panics if a required
// dependency is nil.
func NewTicketHandler(repos *repository.Registry, calc *billing.Calculator, clk clock.Clock, events EventPublisher, log *zap.Logger) *TicketHandler {
	if repos == nil || calc == nil {
		panic("nil dependency passed to NewTicketHandler")
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &TicketHandler{Repos: repos, Calc: calc, Clock: clk, Events: events, Log: logger.OrNop(log)}
}

// ----- DTOs -----

type openReq struct {
	ParkingName  string  `json:"parkingName"`
	PricePerHour int64   `json:"pricePerHour"`
	EntryTime    *string `json:"entryTime"`
}

type closeReq struct {
	ExitTime    *string `json:"exitTime"`
	TotalAmount *int64  `json:"totalAmount"`
}

type verifyReq struct {
	Raw string `json:"raw"`
}

type quoteResp struct {
	TicketID       string `json:"ticketId"`
	Status         string `json:"status"`
	ElapsedMinutes int    `json:"elapsedMinutes"`
	Duration       string `json:"duration"`
	EntryClock     string `json:"entryClock"`
	ExitClock      string `json:"exitClock,omitempty"`
	PricePerHour   int64  `json:"pricePerHour"`
	Amount         int64  `json:"amount"`
	ComputedAt     string `json:"computedAt"`
}

type verifyResp struct {
	verify.Result
	Payload model.QRPayload `json:"payload"`
}

// repo resolves the caller's repository, or writes a 401.
func (h *TicketHandler) repo(c echo.Context) (*repository.TicketRepo, bool) {
	dev, err := getDeviceID(c)
	if err != nil {
		_ = c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		return nil, false
	}
	return h.Repos.For(dev), true
}

// parseInstant parses an optional ISO-8601 field.  Absent or empty means
// zero.  Unlike the calculator, the API rejects malformed input outright.
func parseInstant(s *string) (time.Time, bool) {
	if s == nil || *s == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Open handles POST /v1/tickets.  entryTime defaults to now.
func (h *TicketHandler) Open(c echo.Context) error {
	r, ok := h.repo(c)
	if !ok {
		return nil
	}
	var req openReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	entry, ok := parseInstant(req.EntryTime)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "entryTime must be an ISO-8601 instant"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
	defer cancel()

	t, err := r.Open(ctx, repository.OpenInput{ParkingName: req.ParkingName, PricePerHour: req.PricePerHour, EntryTime: entry})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

// ListActive handles GET /v1/tickets/active, in opening order.
func (h *TicketHandler) ListActive(c echo.Context) error {
	r, ok := h.repo(c)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
	defer cancel()
	list, err := r.ListActive(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tickets": list})
}

// ListHistory handles GET /v1/tickets/history, most recent exit first.
func (h *TicketHandler) ListHistory(c echo.Context) error {
	r, ok := h.repo(c)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
	defer cancel()
	list, err := r.ListHistory(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return exitOf(list[i]).After(exitOf(list[j]))
	})
	return c.JSON(http.StatusOK, echo.Map{"tickets": list})
}

func exitOf(t model.Ticket) time.Time {
	if t.ExitTime == nil {
		return time.Time{}
	}
	return *t.ExitTime
}

// Get handles GET /v1/tickets/:id.
func (h *TicketHandler) Get(c echo.Context) error {
	r, ok := h.repo(c)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
	defer cancel()
	t, err := r.FindByID(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// Quote handles GET /v1/tickets/:id/quote.  For an active ticket it prices
// the stay as of now; for a closed ticket it reports the fixed amount.
// Clients poll it to refresh the running fee.
func (h *TicketHandler) Quote(c echo.Context) error {
	r, ok := h.repo(c)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
	defer cancel()
	t, err := r.FindByID(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}

	now := h.Clock.Now()
	resp := quoteResp{
		TicketID:     t.ID,
		PricePerHour: t.PricePerHour,
		EntryClock:   h.Calc.FormatClockTime(t.EntryTime),
		ComputedAt:   now.UTC().Format(time.RFC3339),
	}
	if t.IsActive() {
		resp.Status = model.StatusActive
		resp.ElapsedMinutes = h.Calc.Minutes(t.EntryTime, now)
		resp.Amount = billing.FeeForMinutes(resp.ElapsedMinutes, t.PricePerHour)
	} else {
		resp.Status = model.StatusClosed
		resp.ElapsedMinutes = h.Calc.Minutes(t.EntryTime, *t.ExitTime)
		resp.ExitClock = h.Calc.FormatClockTime(*t.ExitTime)
		if t.TotalAmount != nil {
			resp.Amount = *t.TotalAmount
		}
	}
	resp.Duration = billing.FormatDuration(resp.ElapsedMinutes)
	return c.JSON(http.StatusOK, resp)
}

// Close handles POST /v1/tickets/:id/close.  exitTime defaults to now and
// totalAmount to the fee for the stay.
func (h *TicketHandler) Close(c echo.Context) error {
	r, ok := h.repo(c)
	if !ok {
		return nil
	}
	var req closeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	exit, ok := parseInstant(req.ExitTime)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "exitTime must be an ISO-8601 instant"})
	}
	if exit.IsZero() {
		exit = h.Clock.Now()
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
	defer cancel()

	id := c.Param("id")
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	if !current.IsActive() {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket is not active"})
	}
	amount := h.Calc.Fee(current.EntryTime, exit, current.PricePerHour)
	if req.TotalAmount != nil {
		amount = *req.TotalAmount
	}

	closed, err := r.Close(ctx, id, exit, amount)
	if err != nil {
		return h.fail(c, err)
	}
	h.publishClosed(c, closed)
	return c.JSON(http.StatusOK, closed)
}

func (h *TicketHandler) publishClosed(c echo.Context, t model.Ticket) {
	if h.Events == nil {
		return
	}
	dev, _ := getDeviceID(c)
	minutes := h.Calc.Minutes(t.EntryTime, *t.ExitTime)
	ev := queue.TicketClosedEvent{
		TicketID:        t.ID,
		DeviceID:        dev,
		ParkingName:     t.ParkingName,
		PricePerHour:    t.PricePerHour,
		EntryTime:       t.EntryTime.Format(time.RFC3339),
		ExitTime:        t.ExitTime.Format(time.RFC3339),
		DurationMinutes: minutes,
		Duration:        billing.FormatDuration(minutes),
		TotalAmount:     *t.TotalAmount,
		ClosedAt:        h.Clock.Now().UTC().Format(time.RFC3339),
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.Events.PublishTicketClosed(ctx, ev); err != nil {
		h.Log.Warn("ticket-closed event not published", zap.String("ticket_id", t.ID), zap.Error(err))
	}
}

// DeleteHistory handles DELETE /v1/tickets/history/:id.
func (h *TicketHandler) DeleteHistory(c echo.Context) error {
	r, ok := h.repo(c)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
	defer cancel()
	if err := r.DeleteFromHistory(ctx, c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// QRText handles GET /v1/tickets/:id/qr and returns the stored payload.
func (h *TicketHandler) QRText(c echo.Context) error {
	r, ok := h.repo(c)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
	defer cancel()
	t, err := r.FindByID(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": t.ID, "qrCodePayload": t.QRCodePayload})
}

// QRImage handles GET /v1/tickets/:id/qr.png?size=N.
func (h *TicketHandler) QRImage(c echo.Context) error {
	r, ok := h.repo(c)
	if !ok {
		return nil
	}
	size := ticketcode.DefaultImageSize
	if s := c.QueryParam("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 64 || n > 1024 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "size must be between 64 and 1024"})
		}
		size = n
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
	defer cancel()
	t, err := r.FindByID(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	png, err := ticketcode.RenderPNG(t.QRCodePayload, size)
	if err != nil {
		h.Log.Error("qr render failed", zap.String("ticket_id", t.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "qr render failed"})
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

// Verify handles POST /v1/verify.  The body carries the raw text read from
// a QR code; it is decoded and checked against every ticket of the device.
func (h *TicketHandler) Verify(c echo.Context) error {
	r, ok := h.repo(c)
	if !ok {
		return nil
	}
	var req verifyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	p, ok := ticketcode.Decode(req.Raw)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid QR code"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
	defer cancel()
	all, err := r.All(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, verifyResp{Result: verify.Verify(all, p.ID), Payload: p})
}

// fail maps repository errors onto HTTP responses.
func (h *TicketHandler) fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrInvalidTicket):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	default:
		h.Log.Error("ticket storage failure", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storage error"})
	}
}
