package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/tutor-booking/internal/api"
	"github.com/hackgods/tutor-booking/internal/booking"
	"github.com/hackgods/tutor-booking/internal/money"
	"github.com/hackgods/tutor-booking/internal/payment"
	"github.com/hackgods/tutor-booking/internal/schedule"
	"github.com/hackgods/tutor-booking/internal/store/memory"
	"github.com/hackgods/tutor-booking/internal/wallet"
)

var (
	now       = time.Date(2026, time.November, 1, 12, 0, 0, 0, time.UTC)
	slotStart = time.Date(2026, time.November, 5, 9, 0, 0, 0, time.UTC)
)

type harness struct {
	srv        *httptest.Server
	gw         *payment.FakeGateway
	hook       *logtest.Hook
	instructor uuid.UUID
	student    uuid.UUID
}

func newHarness(t *testing.T, postgres, redis api.CheckFunc) *harness {
	t.Helper()
	clock := func() time.Time { return now }
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	store := memory.New()
	instructor := uuid.New()
	store.AddInstructor(booking.InstructorProfile{
		ID:              instructor,
		DisplayName:     "Meera Iyer",
		AcceptsBookings: true,
		Pricing:         booking.Pricing{RegularPrice: money.MustParse("500", "INR")},
	})
	student := uuid.New()
	store.AddUser(student, "Kabir Shah")

	sched := schedule.NewService(store, log, schedule.WithClock(clock))
	wallets := wallet.NewService(store, decimal.NewFromInt(15), log, wallet.WithClock(clock))
	gw := payment.NewFakeGateway("api-secret")
	orch := booking.NewOrchestrator(store, sched, gw, wallets, store, log, booking.WithClock(clock))

	srv := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Schedule:        sched,
		Booking:         orch,
		Wallet:          wallets,
		Log:             log,
		Postgres:        postgres,
		Redis:           redis,
		DefaultCurrency: "INR",
		ReconcileBatch:  10,
		Env:             "test",
		Version:         "test",
	}))
	t.Cleanup(srv.Close)

	return &harness{srv: srv, gw: gw, hook: hook, instructor: instructor, student: student}
}

func (h *harness) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *harness) createSlot(t *testing.T) api.SlotResponse {
	t.Helper()
	var slot api.SlotResponse
	status := h.do(t, http.MethodPost, "/instructors/"+h.instructor.String()+"/slots", api.WindowRequest{
		StartAt: slotStart,
		EndAt:   slotStart.Add(50 * time.Minute),
	}, &slot)
	require.Equal(t, http.StatusCreated, status)
	return slot
}

func (h *harness) initiate(t *testing.T, slotID uuid.UUID) (int, api.InitiateResponse) {
	t.Helper()
	var res api.InitiateResponse
	status := h.do(t, http.MethodPost, "/bookings/initiate", map[string]any{
		"student_id":    h.student,
		"instructor_id": h.instructor,
		"slot_id":       slotID,
		"lesson_type":   "single",
	}, &res)
	return status, res
}

func TestBookingFlow_OverHTTP(t *testing.T) {
	h := newHarness(t, nil, nil)

	// GIVEN: a manual slot on Thursday morning
	slot := h.createSlot(t)
	assert.Equal(t, "available", slot.Status)

	// WHEN: the student initiates and confirms a single lesson
	status, init := h.initiate(t, slot.ID)
	require.Equal(t, http.StatusCreated, status)
	require.True(t, init.Success, init.Message)
	require.NotNil(t, init.PaymentID)
	assert.Equal(t, int64(50000), init.AmountMinor)
	assert.Equal(t, "Meera Iyer", init.InstructorName)

	var confirm api.ConfirmResponse
	status = h.do(t, http.MethodPost, "/bookings/confirm", api.ConfirmRequest{
		PaymentID:        *init.PaymentID,
		StudentID:        h.student,
		GatewayOrderID:   init.OrderID,
		GatewayPaymentID: "pay_http_1",
		Signature:        h.gw.Sign(init.OrderID, "pay_http_1"),
	}, &confirm)

	// THEN: the lesson is booked and the wallet holds the net share
	require.Equal(t, http.StatusOK, status)
	require.True(t, confirm.Success, confirm.Message)
	require.NotNil(t, confirm.SessionID)

	var sess api.SessionResponse
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/sessions/"+confirm.SessionID.String(), nil, &sess))
	assert.Equal(t, "confirmed", sess.Status)
	assert.Equal(t, "500.00", sess.Amount.Amount)

	var got api.SlotResponse
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/slots/"+slot.ID.String(), nil, &got))
	assert.Equal(t, "booked", got.Status)

	var wal api.WalletResponse
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/instructors/"+h.instructor.String()+"/wallet", nil, &wal))
	assert.Equal(t, "425.00", wal.Balance)

	var ledger api.LedgerResponse
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/instructors/"+h.instructor.String()+"/wallet/ledger", nil, &ledger))
	assert.True(t, ledger.Consistent)
	assert.Equal(t, 1, ledger.Entries)

	// AND: a second attempt on the booked slot is a business rejection
	status, again := h.initiate(t, slot.ID)
	assert.Equal(t, http.StatusConflict, status)
	assert.False(t, again.Success)
	assert.Equal(t, booking.MsgSlotNotAvailable, again.Message)
}

func TestListSessions_ByInstructorWindow(t *testing.T) {
	h := newHarness(t, nil, nil)

	// GIVEN: one booked lesson on Thursday morning
	slot := h.createSlot(t)
	_, init := h.initiate(t, slot.ID)
	require.True(t, init.Success, init.Message)
	var confirm api.ConfirmResponse
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/bookings/confirm", api.ConfirmRequest{
		PaymentID:        *init.PaymentID,
		StudentID:        h.student,
		GatewayOrderID:   init.OrderID,
		GatewayPaymentID: "pay_list_1",
		Signature:        h.gw.Sign(init.OrderID, "pay_list_1"),
	}, &confirm))
	require.True(t, confirm.Success, confirm.Message)

	base := "/instructors/" + h.instructor.String() + "/sessions"

	// WHEN: the instructor lists Thursday
	var list []api.SessionResponse
	status := h.do(t, http.MethodGet, base+"?from=2026-11-05T00:00:00Z&to=2026-11-06T00:00:00Z", nil, &list)

	// THEN: the lesson is returned
	require.Equal(t, http.StatusOK, status)
	require.Len(t, list, 1)
	assert.Equal(t, *confirm.SessionID, list[0].ID)
	assert.True(t, list[0].StartAt.Equal(slotStart))

	// AND: a window that misses it is empty, an inverted one is invalid
	list = nil
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, base+"?from=2026-11-06T00:00:00Z&to=2026-11-07T00:00:00Z", nil, &list))
	assert.Empty(t, list)

	var resp api.ErrorResponse
	status = h.do(t, http.MethodGet, base+"?from=2026-11-06T00:00:00Z&to=2026-11-05T00:00:00Z", nil, &resp)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestInitiate_InvalidSignatureIsRejected(t *testing.T) {
	h := newHarness(t, nil, nil)
	slot := h.createSlot(t)
	_, init := h.initiate(t, slot.ID)
	require.True(t, init.Success, init.Message)

	var confirm api.ConfirmResponse
	status := h.do(t, http.MethodPost, "/bookings/confirm", api.ConfirmRequest{
		PaymentID:        *init.PaymentID,
		GatewayOrderID:   init.OrderID,
		GatewayPaymentID: "pay_forged",
		Signature:        "deadbeef",
	}, &confirm)

	assert.Equal(t, http.StatusConflict, status)
	assert.False(t, confirm.Success)
	assert.Equal(t, "Invalid payment signature", confirm.Message)

	var pay api.PaymentResponse
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/payments/"+init.PaymentID.String(), nil, &pay))
	assert.Equal(t, "failed", pay.Status)
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t, nil, nil)
	instructor := "/instructors/" + h.instructor.String()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{
			name:   "malformed body",
			method: http.MethodPost,
			path:   "/bookings/initiate",
			body:   "not an object",
			status: http.StatusBadRequest,
			code:   "invalid_request_body",
		},
		{
			name:   "missing lesson type",
			method: http.MethodPost,
			path:   "/bookings/initiate",
			body:   map[string]any{"student_id": h.student, "instructor_id": h.instructor, "slot_id": uuid.New()},
			status: http.StatusBadRequest,
			code:   "validation_failed",
		},
		{
			name:   "bad path id",
			method: http.MethodGet,
			path:   "/payments/nope",
			status: http.StatusBadRequest,
			code:   "invalid_id",
		},
		{
			name:   "unknown payment",
			method: http.MethodGet,
			path:   "/payments/" + uuid.NewString(),
			status: http.StatusNotFound,
			code:   "not_found",
		},
		{
			name:   "inverted window",
			method: http.MethodPost,
			path:   instructor + "/slots",
			body:   api.WindowRequest{StartAt: slotStart, EndAt: slotStart.Add(-time.Hour)},
			status: http.StatusBadRequest,
			code:   "validation_failed",
		},
		{
			name:   "rule slot shorter than minimum",
			method: http.MethodPost,
			path:   instructor + "/rules",
			body: api.RuleRequest{
				Type:        "one_time",
				StartTime:   "09:00",
				EndTime:     "10:00",
				SlotMinutes: 10,
			},
			status: http.StatusBadRequest,
			code:   "validation_failed",
		},
		{
			name:   "wallet not opened",
			method: http.MethodGet,
			path:   instructor + "/wallet",
			status: http.StatusNotFound,
			code:   "not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp api.ErrorResponse
			status := h.do(t, tt.method, tt.path, tt.body, &resp)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, resp.Error)
		})
	}
}

func TestSlotOverlapIsConflict(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.createSlot(t)

	var resp api.ErrorResponse
	status := h.do(t, http.MethodPost, "/instructors/"+h.instructor.String()+"/slots", api.WindowRequest{
		StartAt: slotStart.Add(30 * time.Minute),
		EndAt:   slotStart.Add(80 * time.Minute),
	}, &resp)

	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", resp.Error)
}

func TestWithdrawal_InsufficientFunds(t *testing.T) {
	h := newHarness(t, nil, nil)
	base := "/instructors/" + h.instructor.String() + "/wallet"

	var wal api.WalletResponse
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, base, api.OpenWalletRequest{}, &wal))
	assert.Equal(t, "INR", wal.Currency)

	var resp api.ErrorResponse
	status := h.do(t, http.MethodPost, base+"/withdrawals", api.WithdrawalRequest{Amount: "10"}, &resp)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "insufficient_funds", resp.Error)

	status = h.do(t, http.MethodPost, base, api.OpenWalletRequest{}, &resp)
	assert.Equal(t, http.StatusConflict, status)
}

func TestAvailability_GeneratedWindows(t *testing.T) {
	h := newHarness(t, nil, nil)
	thursday := int(time.Thursday)

	var rule api.RuleResponse
	status := h.do(t, http.MethodPost, "/instructors/"+h.instructor.String()+"/rules", api.RuleRequest{
		Type:         "recurring",
		DayOfWeek:    &thursday,
		StartTime:    "09:00",
		EndTime:      "11:00",
		SlotMinutes:  50,
		BreakMinutes: 10,
		ValidFrom:    "2026-11-01",
	}, &rule)
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, rule.IsActive)

	var slots []api.AvailableSlotResponse
	path := "/instructors/" + h.instructor.String() + "/availability?from=2026-11-05T00:00:00Z&to=2026-11-06T00:00:00Z"
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, path, nil, &slots))
	require.Len(t, slots, 2)
	assert.True(t, slots[0].StartAt.Equal(slotStart))
	assert.True(t, slots[0].Generated)
	assert.Nil(t, slots[0].SlotID)
}

func TestHealth(t *testing.T) {
	down := func(context.Context) error { return errors.New("down") }

	tests := []struct {
		name     string
		postgres api.CheckFunc
		redis    api.CheckFunc
		status   int
		want     string
	}{
		{name: "all up", status: http.StatusOK, want: "ok"},
		{name: "redis down", redis: down, status: http.StatusOK, want: "degraded"},
		{name: "postgres down", postgres: down, status: http.StatusServiceUnavailable, want: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.postgres, tt.redis)
			var resp api.ReadinessResponse
			status := h.do(t, http.MethodGet, "/health/ready", nil, &resp)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestRequestIDIsEchoedAndLogged(t *testing.T) {
	h := newHarness(t, nil, nil)

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/health/live", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
	entry := h.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "req-42", entry.Data["request_id"])
	assert.Equal(t, http.StatusOK, entry.Data["status"])
}
