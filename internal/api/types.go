package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/tutor-booking/internal/booking"
	"github.com/hackgods/tutor-booking/internal/money"
	"github.com/hackgods/tutor-booking/internal/payment"
	"github.com/hackgods/tutor-booking/internal/schedule"
	"github.com/hackgods/tutor-booking/internal/session"
	"github.com/hackgods/tutor-booking/internal/wallet"
)

const dateLayout = "2006-01-02"

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type MoneyResponse struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func moneyResponse(m money.Money) MoneyResponse {
	return MoneyResponse{Amount: m.Amount().StringFixed(money.Scale), Currency: m.Currency()}
}

// Schedule

type RuleRequest struct {
	Type         string `json:"type" validate:"required,oneof=recurring one_time"`
	DayOfWeek    *int   `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	SpecificDate string `json:"specific_date" validate:"omitempty,datetime=2006-01-02"`
	StartTime    string `json:"start_time" validate:"required"`
	EndTime      string `json:"end_time" validate:"required"`
	SlotMinutes  int    `json:"slot_minutes" validate:"required,min=15"`
	BreakMinutes int    `json:"break_minutes" validate:"min=0"`
	ValidFrom    string `json:"valid_from" validate:"omitempty,datetime=2006-01-02"`
	ValidUntil   string `json:"valid_until" validate:"omitempty,datetime=2006-01-02"`
}

// toInput converts the request into service input. Dates were already
// checked by the validate tags.
func (req RuleRequest) toInput() (schedule.RuleInput, error) {
	in := schedule.RuleInput{
		Type:         schedule.RuleType(req.Type),
		SlotMinutes:  req.SlotMinutes,
		BreakMinutes: req.BreakMinutes,
	}
	var err error
	if in.StartTime, err = schedule.ParseTimeOfDay(req.StartTime); err != nil {
		return in, err
	}
	if in.EndTime, err = schedule.ParseTimeOfDay(req.EndTime); err != nil {
		return in, err
	}
	if req.DayOfWeek != nil {
		d := time.Weekday(*req.DayOfWeek)
		in.DayOfWeek = &d
	}
	if req.SpecificDate != "" {
		d, _ := time.Parse(dateLayout, req.SpecificDate)
		in.SpecificDate = &d
	}
	if req.ValidFrom != "" {
		in.ValidFrom, _ = time.Parse(dateLayout, req.ValidFrom)
	}
	if req.ValidUntil != "" {
		d, _ := time.Parse(dateLayout, req.ValidUntil)
		in.ValidUntil = &d
	}
	return in, nil
}

type RuleResponse struct {
	ID           uuid.UUID `json:"id"`
	InstructorID uuid.UUID `json:"instructor_id"`
	Type         string    `json:"type"`
	DayOfWeek    *int      `json:"day_of_week,omitempty"`
	SpecificDate string    `json:"specific_date,omitempty"`
	StartTime    string    `json:"start_time"`
	EndTime      string    `json:"end_time"`
	SlotMinutes  int       `json:"slot_minutes"`
	BreakMinutes int       `json:"break_minutes"`
	ValidFrom    string    `json:"valid_from"`
	ValidUntil   string    `json:"valid_until,omitempty"`
	IsActive     bool      `json:"is_active"`
}

func ruleResponse(r *schedule.AvailabilityRule) RuleResponse {
	resp := RuleResponse{
		ID:           r.ID,
		InstructorID: r.InstructorID,
		Type:         string(r.Type),
		StartTime:    r.StartTime.String(),
		EndTime:      r.EndTime.String(),
		SlotMinutes:  r.SlotMinutes,
		BreakMinutes: r.BreakMinutes,
		ValidFrom:    r.ValidFrom.Format(dateLayout),
		IsActive:     r.IsActive,
	}
	if r.DayOfWeek != nil {
		d := int(*r.DayOfWeek)
		resp.DayOfWeek = &d
	}
	if r.SpecificDate != nil {
		resp.SpecificDate = r.SpecificDate.Format(dateLayout)
	}
	if r.ValidUntil != nil {
		resp.ValidUntil = r.ValidUntil.Format(dateLayout)
	}
	return resp
}

type WindowRequest struct {
	StartAt time.Time `json:"start_at" validate:"required"`
	EndAt   time.Time `json:"end_at" validate:"required,gtfield=StartAt"`
}

func (req WindowRequest) window() schedule.Window {
	return schedule.Window{Start: req.StartAt.UTC(), End: req.EndAt.UTC()}
}

type SlotResponse struct {
	ID              uuid.UUID  `json:"id"`
	InstructorID    uuid.UUID  `json:"instructor_id"`
	StartAt         time.Time  `json:"start_at"`
	EndAt           time.Time  `json:"end_at"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	RuleID          *uuid.UUID `json:"rule_id,omitempty"`
	SessionID       *uuid.UUID `json:"session_id,omitempty"`
}

func slotResponse(s *schedule.BookingSlot) SlotResponse {
	return SlotResponse{
		ID:              s.ID,
		InstructorID:    s.InstructorID,
		StartAt:         s.StartAt,
		EndAt:           s.EndAt,
		DurationMinutes: s.DurationMinutes,
		Status:          string(s.Status),
		RuleID:          s.RuleID,
		SessionID:       s.SessionID,
	}
}

type AvailableSlotResponse struct {
	SlotID          *uuid.UUID `json:"slot_id,omitempty"`
	RuleID          *uuid.UUID `json:"rule_id,omitempty"`
	StartAt         time.Time  `json:"start_at"`
	EndAt           time.Time  `json:"end_at"`
	DurationMinutes int        `json:"duration_minutes"`
	Generated       bool       `json:"generated"`
}

type TimeOffRequest struct {
	StartAt       time.Time `json:"start_at" validate:"required"`
	EndAt         time.Time `json:"end_at" validate:"required,gtfield=StartAt"`
	Reason        string    `json:"reason" validate:"max=500"`
	IsRecurring   bool      `json:"is_recurring"`
	RecurrenceDay *int      `json:"recurrence_day" validate:"omitempty,min=0,max=6"`
}

type TimeOffResponse struct {
	ID            uuid.UUID `json:"id"`
	InstructorID  uuid.UUID `json:"instructor_id"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	Reason        string    `json:"reason,omitempty"`
	IsRecurring   bool      `json:"is_recurring"`
	RecurrenceDay *int      `json:"recurrence_day,omitempty"`
}

func timeOffResponse(t *schedule.TimeOff) TimeOffResponse {
	resp := TimeOffResponse{
		ID:           t.ID,
		InstructorID: t.InstructorID,
		StartAt:      t.StartAt,
		EndAt:        t.EndAt,
		Reason:       t.Reason,
		IsRecurring:  t.IsRecurring,
	}
	if t.RecurrenceDay != nil {
		d := int(*t.RecurrenceDay)
		resp.RecurrenceDay = &d
	}
	return resp
}

// Booking

type InitiateRequest struct {
	StudentID    uuid.UUID  `json:"student_id" validate:"required"`
	InstructorID uuid.UUID  `json:"instructor_id" validate:"required"`
	SlotID       *uuid.UUID `json:"slot_id" validate:"required_without=RuleID"`
	RuleID       *uuid.UUID `json:"rule_id" validate:"required_without=SlotID"`
	StartAt      time.Time  `json:"start_at" validate:"required_with=RuleID"`
	LessonType   string     `json:"lesson_type" validate:"required,oneof=trial single"`
}

type InitiateResponse struct {
	Success        bool           `json:"success"`
	Message        string         `json:"message,omitempty"`
	PaymentID      *uuid.UUID     `json:"payment_id,omitempty"`
	SlotID         *uuid.UUID     `json:"slot_id,omitempty"`
	OrderID        string         `json:"order_id,omitempty"`
	KeyID          string         `json:"key_id,omitempty"`
	AmountMinor    int64          `json:"amount_minor,omitempty"`
	Currency       string         `json:"currency,omitempty"`
	Amount         *MoneyResponse `json:"amount,omitempty"`
	StartAt        *time.Time     `json:"start_at,omitempty"`
	EndAt          *time.Time     `json:"end_at,omitempty"`
	InstructorName string         `json:"instructor_name,omitempty"`
}

func initiateResponse(res *booking.InitiateResult) InitiateResponse {
	resp := InitiateResponse{Success: res.Success, Message: res.Message}
	if !res.Success {
		return resp
	}
	amount := moneyResponse(res.Amount)
	resp.PaymentID = &res.PaymentID
	resp.SlotID = &res.SlotID
	resp.OrderID = res.OrderID
	resp.KeyID = res.KeyID
	resp.AmountMinor = res.AmountMinor
	resp.Currency = res.Currency
	resp.Amount = &amount
	resp.StartAt = &res.StartAt
	resp.EndAt = &res.EndAt
	resp.InstructorName = res.InstructorName
	return resp
}

type ConfirmRequest struct {
	PaymentID        uuid.UUID `json:"payment_id" validate:"required"`
	StudentID        uuid.UUID `json:"student_id"`
	GatewayOrderID   string    `json:"gateway_order_id" validate:"required"`
	GatewayPaymentID string    `json:"gateway_payment_id" validate:"required"`
	Signature        string    `json:"signature" validate:"required"`
}

type ConfirmResponse struct {
	Success        bool           `json:"success"`
	Message        string         `json:"message,omitempty"`
	Warning        string         `json:"warning,omitempty"`
	PaymentID      uuid.UUID      `json:"payment_id"`
	SessionID      *uuid.UUID     `json:"session_id,omitempty"`
	SlotID         *uuid.UUID     `json:"slot_id,omitempty"`
	StartAt        *time.Time     `json:"start_at,omitempty"`
	EndAt          *time.Time     `json:"end_at,omitempty"`
	Amount         *MoneyResponse `json:"amount,omitempty"`
	InstructorName string         `json:"instructor_name,omitempty"`
}

func confirmResponse(res *booking.ConfirmResult) ConfirmResponse {
	resp := ConfirmResponse{Success: res.Success, Message: res.Message, Warning: res.Warning, PaymentID: res.PaymentID}
	if !res.Success {
		return resp
	}
	amount := moneyResponse(res.Amount)
	resp.SessionID = &res.SessionID
	resp.SlotID = &res.SlotID
	resp.StartAt = &res.StartAt
	resp.EndAt = &res.EndAt
	resp.Amount = &amount
	resp.InstructorName = res.InstructorName
	return resp
}

type PaymentResponse struct {
	ID               uuid.UUID     `json:"id"`
	StudentID        uuid.UUID     `json:"student_id"`
	InstructorID     uuid.UUID     `json:"instructor_id"`
	SlotID           uuid.UUID     `json:"slot_id"`
	LessonType       string        `json:"lesson_type"`
	Amount           MoneyResponse `json:"amount"`
	Status           string        `json:"status"`
	GatewayOrderID   string        `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string        `json:"gateway_payment_id,omitempty"`
	PaymentMethod    string        `json:"payment_method,omitempty"`
	SessionID        *uuid.UUID    `json:"session_id,omitempty"`
	FailureReason    string        `json:"failure_reason,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	RefundedAt       *time.Time    `json:"refunded_at,omitempty"`
}

func paymentResponse(p *payment.Payment) PaymentResponse {
	return PaymentResponse{
		ID:               p.ID,
		StudentID:        p.StudentID,
		InstructorID:     p.InstructorID,
		SlotID:           p.SlotID,
		LessonType:       string(p.LessonType),
		Amount:           moneyResponse(p.Amount),
		Status:           string(p.Status),
		GatewayOrderID:   p.GatewayOrderID,
		GatewayPaymentID: p.GatewayPaymentID,
		PaymentMethod:    p.PaymentMethod,
		SessionID:        p.SessionID,
		FailureReason:    p.FailureReason,
		CreatedAt:        p.CreatedAt,
		CompletedAt:      p.CompletedAt,
		RefundedAt:       p.RefundedAt,
	}
}

type CancelPaymentRequest struct {
	StudentID uuid.UUID `json:"student_id" validate:"required"`
}

type SessionResponse struct {
	ID                 uuid.UUID     `json:"id"`
	InstructorID       uuid.UUID     `json:"instructor_id"`
	StudentID          uuid.UUID     `json:"student_id"`
	SlotID             uuid.UUID     `json:"slot_id"`
	PaymentID          uuid.UUID     `json:"payment_id"`
	Type               string        `json:"type"`
	Status             string        `json:"status"`
	StartAt            time.Time     `json:"start_at"`
	EndAt              time.Time     `json:"end_at"`
	DurationMinutes    int           `json:"duration_minutes"`
	Amount             MoneyResponse `json:"amount"`
	CancelledBy        *uuid.UUID    `json:"cancelled_by,omitempty"`
	CancellationReason string        `json:"cancellation_reason,omitempty"`
}

func sessionResponse(s *session.Session) SessionResponse {
	return SessionResponse{
		ID:                 s.ID,
		InstructorID:       s.InstructorID,
		StudentID:          s.StudentID,
		SlotID:             s.SlotID,
		PaymentID:          s.PaymentID,
		Type:               string(s.Type),
		Status:             string(s.Status),
		StartAt:            s.StartAt,
		EndAt:              s.EndAt,
		DurationMinutes:    s.DurationMinutes,
		Amount:             moneyResponse(s.Amount),
		CancelledBy:        s.CancelledBy,
		CancellationReason: s.CancellationReason,
	}
}

type CancelSessionRequest struct {
	ActorID uuid.UUID `json:"actor_id" validate:"required"`
	Reason  string    `json:"reason" validate:"max=500"`
}

type CancelSessionResponse struct {
	Session SessionResponse  `json:"session"`
	Payment *PaymentResponse `json:"payment,omitempty"`
	Warning string           `json:"warning,omitempty"`
}

// Wallet

type OpenWalletRequest struct {
	Currency string `json:"currency" validate:"omitempty,len=3,uppercase"`
}

type WalletResponse struct {
	ID             uuid.UUID `json:"id"`
	InstructorID   uuid.UUID `json:"instructor_id"`
	Balance        string    `json:"balance"`
	TotalEarned    string    `json:"total_earned"`
	TotalWithdrawn string    `json:"total_withdrawn"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func walletResponse(w *wallet.Wallet) WalletResponse {
	return WalletResponse{
		ID:             w.ID,
		InstructorID:   w.InstructorID,
		Balance:        w.Balance.StringFixed(money.Scale),
		TotalEarned:    w.TotalEarned.StringFixed(money.Scale),
		TotalWithdrawn: w.TotalWithdrawn.StringFixed(money.Scale),
		Currency:       w.Currency,
		Status:         string(w.Status),
		UpdatedAt:      w.UpdatedAt,
	}
}

type TransactionResponse struct {
	ID            uuid.UUID `json:"id"`
	WalletID      uuid.UUID `json:"wallet_id"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	BalanceAfter  string    `json:"balance_after"`
	Status        string    `json:"status"`
	ReferenceType string    `json:"reference_type,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func transactionResponse(t *wallet.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            t.ID,
		WalletID:      t.WalletID,
		Type:          string(t.Type),
		Amount:        t.Amount.StringFixed(money.Scale),
		BalanceAfter:  t.BalanceAfter.StringFixed(money.Scale),
		Status:        string(t.Status),
		ReferenceType: t.ReferenceType,
		ReferenceID:   t.ReferenceID,
		Description:   t.Description,
		CreatedAt:     t.CreatedAt,
	}
}

type WithdrawalRequest struct {
	Amount      string `json:"amount" validate:"required,numeric"`
	Description string `json:"description" validate:"max=200"`
}

type FailWithdrawalRequest struct {
	Reason string `json:"reason" validate:"required,max=200"`
}

type LedgerResponse struct {
	Consistent  bool   `json:"consistent"`
	Balance     string `json:"balance"`
	Earned      string `json:"earned"`
	Withdrawn   string `json:"withdrawn"`
	Refunded    string `json:"refunded"`
	PendingHeld string `json:"pending_held"`
	Entries     int    `json:"entries"`
	Error       string `json:"error,omitempty"`
}

func ledgerResponse(s wallet.LedgerSummary, err error) LedgerResponse {
	resp := LedgerResponse{
		Consistent:  err == nil,
		Balance:     s.Balance.StringFixed(money.Scale),
		Earned:      s.Earned.StringFixed(money.Scale),
		Withdrawn:   s.Withdrawn.StringFixed(money.Scale),
		Refunded:    s.Refunded.StringFixed(money.Scale),
		PendingHeld: s.PendingHeld.StringFixed(money.Scale),
		Entries:     s.Entries,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

type ReconcileResponse struct {
	Attempted int `json:"attempted"`
	Resolved  int `json:"resolved"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
