package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-ticket-tracker/internal/billing"
	"github.com/iliyamo/parking-ticket-tracker/internal/clock"
	"github.com/iliyamo/parking-ticket-tracker/internal/config"
	"github.com/iliyamo/parking-ticket-tracker/internal/handler"
	"github.com/iliyamo/parking-ticket-tracker/internal/middleware"
	"github.com/iliyamo/parking-ticket-tracker/internal/model"
	"github.com/iliyamo/parking-ticket-tracker/internal/queue"
	"github.com/iliyamo/parking-ticket-tracker/internal/repository"
	"github.com/iliyamo/parking-ticket-tracker/internal/router"
	"github.com/iliyamo/parking-ticket-tracker/internal/store"
	"github.com/iliyamo/parking-ticket-tracker/internal/utils"
)

const secret = "handler-test-secret"

var t0 = time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.TicketClosedEvent
	err    error
}

func (p *recordingPublisher) PublishTicketClosed(_ context.Context, ev queue.TicketClosedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type env struct {
	e      *echo.Echo
	clock  *clock.Fake
	kv     *store.Memory
	events *recordingPublisher
	token  string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	kv := store.NewMemory()
	clk := clock.NewFake(t0)
	events := &recordingPublisher{}
	cfg := config.Config{JWTSecret: secret, AccessTTLMin: 60, BcryptCost: 4}

	e := echo.New()
	router.RegisterRoutes(e)
	// Tokens are checked against wall time, so the device handler keeps the real clock.
	router.RegisterDevices(e, handler.NewDeviceHandler(cfg, repository.NewDeviceRepo(kv, "parking", clk), nil), nil)
	th := handler.NewTicketHandler(
		repository.NewRegistry(kv, "parking", clk, nil),
		billing.NewCalculator(time.UTC, nil),
		clk, events, nil,
	)
	router.RegisterTickets(e, th, secret, middleware.RateLimits{}, nil)

	tok, err := utils.NewAccessToken(secret, "device-1", 60, time.Now())
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	return &env{e: e, clock: clk, kv: kv, events: events, token: tok.Token}
}

func (v *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return v.doAs(t, v.token, method, path, body)
}

func (v *env) doAs(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

type ticketList struct {
	Tickets []model.Ticket `json:"tickets"`
}

func (v *env) open(t *testing.T, name string, rate int64, entry string) model.Ticket {
	t.Helper()
	body := map[string]any{"parkingName": name, "pricePerHour": rate}
	if entry != "" {
		body["entryTime"] = entry
	}
	rec := v.do(t, http.MethodPost, "/v1/tickets", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open: status %d body %s", rec.Code, rec.Body.String())
	}
	return decode[model.Ticket](t, rec)
}

func TestHealth(t *testing.T) {
	v := newEnv(t)
	rec := v.doAs(t, "", http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestTicketRoutesRequireToken(t *testing.T) {
	v := newEnv(t)
	if rec := v.doAs(t, "", http.MethodGet, "/v1/tickets/active", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}
}

func TestOpenRejectsBadInput(t *testing.T) {
	v := newEnv(t)
	cases := []any{
		map[string]any{"parkingName": "", "pricePerHour": 50},
		map[string]any{"parkingName": "Lot", "pricePerHour": 0},
		map[string]any{"parkingName": "Lot", "pricePerHour": 50, "entryTime": "yesterday"},
		map[string]any{"parkingName": "Lot", "pricePerHour": "fifty"},
		map[string]any{"parkingName": "Lot", "pricePerHour": model.MaxPricePerHour + 1},
	}
	for _, body := range cases {
		if rec := v.do(t, http.MethodPost, "/v1/tickets", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("open %v: status %d, want 400", body, rec.Code)
		}
	}
	list := decode[ticketList](t, v.do(t, http.MethodGet, "/v1/tickets/active", nil))
	if len(list.Tickets) != 0 {
		t.Fatalf("rejected input created tickets: %+v", list.Tickets)
	}
}

func TestCentralLotScenario(t *testing.T) {
	v := newEnv(t)
	tk := v.open(t, "Central Lot", 50, t0.Format(time.RFC3339))

	v.clock.Set(t0.Add(125 * time.Minute))
	q := decode[map[string]any](t, v.do(t, http.MethodGet, "/v1/tickets/"+tk.ID+"/quote", nil))
	if q["amount"] != float64(150) || q["elapsedMinutes"] != float64(125) || q["duration"] != "2h 5min" {
		t.Fatalf("quote %v", q)
	}
	if q["entryClock"] != "09h05" || q["status"] != model.StatusActive {
		t.Fatalf("quote %v", q)
	}

	rec := v.do(t, http.MethodPost, "/v1/tickets/"+tk.ID+"/close", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("close: status %d body %s", rec.Code, rec.Body.String())
	}
	closed := decode[model.Ticket](t, rec)
	if closed.Status != model.StatusClosed || closed.TotalAmount == nil || *closed.TotalAmount != 150 {
		t.Fatalf("closed ticket %+v", closed)
	}
	if !closed.ExitTime.Equal(t0.Add(125 * time.Minute)) {
		t.Fatalf("exit %s", closed.ExitTime)
	}

	active := decode[ticketList](t, v.do(t, http.MethodGet, "/v1/tickets/active", nil))
	history := decode[ticketList](t, v.do(t, http.MethodGet, "/v1/tickets/history", nil))
	if len(active.Tickets) != 0 || len(history.Tickets) != 1 || history.Tickets[0].ID != tk.ID {
		t.Fatalf("active=%+v history=%+v", active.Tickets, history.Tickets)
	}

	if rec := v.do(t, http.MethodPost, "/v1/tickets/"+tk.ID+"/close", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second close: status %d, want 404", rec.Code)
	}

	if len(v.events.events) != 1 {
		t.Fatalf("published %d events, want 1", len(v.events.events))
	}
	ev := v.events.events[0]
	if ev.TicketID != tk.ID || ev.DeviceID != "device-1" || ev.TotalAmount != 150 || ev.DurationMinutes != 125 {
		t.Fatalf("event %+v", ev)
	}
}

func TestCloseWithExplicitValues(t *testing.T) {
	v := newEnv(t)
	tk := v.open(t, "Gare", 4, t0.Format(time.RFC3339))
	exit := t0.Add(30 * time.Minute).Format(time.RFC3339)

	rec := v.do(t, http.MethodPost, "/v1/tickets/"+tk.ID+"/close", map[string]any{"exitTime": exit, "totalAmount": 0})
	if rec.Code != http.StatusOK {
		t.Fatalf("close: status %d body %s", rec.Code, rec.Body.String())
	}
	closed := decode[model.Ticket](t, rec)
	if *closed.TotalAmount != 0 || closed.ExitTime.Format(time.RFC3339) != exit {
		t.Fatalf("closed %+v", closed)
	}
	if rec := v.do(t, http.MethodPost, "/v1/tickets/"+tk.ID+"/close", map[string]any{"exitTime": "later"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad exitTime: status %d", rec.Code)
	}
}

func TestClosePublishFailureDoesNotFailRequest(t *testing.T) {
	v := newEnv(t)
	v.events.err = errors.New("broker down")
	tk := v.open(t, "Gare", 4, "")
	if rec := v.do(t, http.MethodPost, "/v1/tickets/"+tk.ID+"/close", nil); rec.Code != http.StatusOK {
		t.Fatalf("close: status %d", rec.Code)
	}
}

func TestHistorySortedByExitDescending(t *testing.T) {
	v := newEnv(t)
	a := v.open(t, "A", 1, "")
	b := v.open(t, "B", 1, "")
	c := v.open(t, "C", 1, "")
	closeAt := func(id string, at time.Duration) {
		body := map[string]any{"exitTime": t0.Add(at).Format(time.RFC3339)}
		if rec := v.do(t, http.MethodPost, "/v1/tickets/"+id+"/close", body); rec.Code != http.StatusOK {
			t.Fatalf("close %s: status %d", id, rec.Code)
		}
	}
	closeAt(b.ID, 3*time.Hour)
	closeAt(a.ID, 5*time.Hour)
	closeAt(c.ID, 1*time.Hour)

	list := decode[ticketList](t, v.do(t, http.MethodGet, "/v1/tickets/history", nil))
	var got []string
	for _, tk := range list.Tickets {
		got = append(got, tk.ParkingName)
	}
	if strings.Join(got, "") != "ABC" {
		t.Fatalf("history order %v, want A B C", got)
	}
}

func TestDeleteHistory(t *testing.T) {
	v := newEnv(t)
	tk := v.open(t, "A", 1, "")
	if rec := v.do(t, http.MethodDelete, "/v1/tickets/history/"+tk.ID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("delete active: status %d, want 404", rec.Code)
	}
	v.do(t, http.MethodPost, "/v1/tickets/"+tk.ID+"/close", nil)
	if rec := v.do(t, http.MethodDelete, "/v1/tickets/history/"+tk.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete closed: status %d, want 204", rec.Code)
	}
	if rec := v.do(t, http.MethodGet, "/v1/tickets/"+tk.ID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: status %d, want 404", rec.Code)
	}
}

func TestVerifyFlow(t *testing.T) {
	v := newEnv(t)
	tk := v.open(t, "Central Lot", 50, "")

	qr := decode[map[string]string](t, v.do(t, http.MethodGet, "/v1/tickets/"+tk.ID+"/qr", nil))
	raw := qr["qrCodePayload"]
	if raw != tk.QRCodePayload {
		t.Fatalf("qr payload %q, want %q", raw, tk.QRCodePayload)
	}

	res := decode[map[string]any](t, v.do(t, http.MethodPost, "/v1/verify", map[string]string{"raw": raw}))
	if res["found"] != true || res["status"] != "active" {
		t.Fatalf("verify active: %v", res)
	}

	v.do(t, http.MethodPost, "/v1/tickets/"+tk.ID+"/close", nil)
	res = decode[map[string]any](t, v.do(t, http.MethodPost, "/v1/verify", map[string]string{"raw": raw}))
	if res["found"] != true || res["status"] != "closed" {
		t.Fatalf("verify closed: %v", res)
	}

	unknown := `{"id":"nope","parkingName":"X","entryTime":"2026-03-14T09:05:00Z","pricePerHour":0}`
	res = decode[map[string]any](t, v.do(t, http.MethodPost, "/v1/verify", map[string]string{"raw": unknown}))
	if res["found"] != false || res["status"] != "not_found" {
		t.Fatalf("verify unknown: %v", res)
	}

	if rec := v.do(t, http.MethodPost, "/v1/verify", map[string]string{"raw": `{"id":"x"}`}); rec.Code != http.StatusBadRequest {
		t.Fatalf("verify malformed: status %d, want 400", rec.Code)
	}
}

func TestDevicesAreIsolated(t *testing.T) {
	v := newEnv(t)
	tk := v.open(t, "Mine", 2, "")
	other, _ := utils.NewAccessToken(secret, "device-2", 60, time.Now())
	if rec := v.doAs(t, other.Token, http.MethodGet, "/v1/tickets/"+tk.ID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("other device read ticket: status %d", rec.Code)
	}
}

func TestQRImage(t *testing.T) {
	v := newEnv(t)
	tk := v.open(t, "A", 1, "")
	rec := v.do(t, http.MethodGet, "/v1/tickets/"+tk.ID+"/qr.png?size=128", nil)
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != "image/png" {
		t.Fatalf("qr.png: %d %s", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}
	if rec := v.do(t, http.MethodGet, "/v1/tickets/"+tk.ID+"/qr.png?size=9000", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized qr: status %d", rec.Code)
	}
}

func TestStorageFailureIs500(t *testing.T) {
	v := newEnv(t)
	v.kv.FailSet = func(string) error { return errors.New("disk full") }
	rec := v.do(t, http.MethodPost, "/v1/tickets", map[string]any{"parkingName": "A", "pricePerHour": 1})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rec.Code)
	}
}

func TestDeviceRegisterAndLogin(t *testing.T) {
	v := newEnv(t)
	rec := v.doAs(t, "", http.MethodPost, "/v1/devices", map[string]string{"name": "Phone", "passcode": "2468"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	reg := decode[struct {
		Device struct{ ID string } `json:"device"`
		Access struct{ Token string } `json:"access"`
	}](t, rec)

	if rec := v.doAs(t, reg.Access.Token, http.MethodGet, "/v1/tickets/active", nil); rec.Code != http.StatusOK {
		t.Fatalf("registered token rejected: %d", rec.Code)
	}
	if rec := v.doAs(t, "", http.MethodPost, "/v1/devices/login", map[string]string{"deviceId": reg.Device.ID, "passcode": "0000"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong passcode: %d", rec.Code)
	}
	if rec := v.doAs(t, "", http.MethodPost, "/v1/devices/login", map[string]string{"deviceId": reg.Device.ID, "passcode": "2468"}); rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	if rec := v.doAs(t, "", http.MethodPost, "/v1/devices", map[string]string{"passcode": "12"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("short passcode: %d", rec.Code)
	}
}
