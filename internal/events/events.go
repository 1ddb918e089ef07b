// Package events carries domain events out of the booking core without
// letting delivery block it.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	PaymentInitiated  Type = "payment.initiated"
	PaymentCompleted  Type = "payment.completed"
	PaymentFailed     Type = "payment.failed"
	PaymentCancelled  Type = "payment.cancelled"
	PaymentRefunded   Type = "payment.refunded"
	SessionBooked     Type = "session.booked"
	SessionCancelled  Type = "session.cancelled"
	WalletCredited    Type = "wallet.credited"
	WalletCreditFail  Type = "wallet.credit_failed"
	WalletRefunded    Type = "wallet.refunded"
	WithdrawalUpdated Type = "wallet.withdrawal_updated"
)

// Event is one fact about an aggregate. Payload values must be JSON
// encodable.
type Event struct {
	ID          uuid.UUID      `json:"id"`
	Type        Type           `json:"type"`
	AggregateID uuid.UUID      `json:"aggregate_id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func New(t Type, aggregateID uuid.UUID, payload map[string]any, now time.Time) Event {
	return Event{
		ID:          uuid.New(),
		Type:        t,
		AggregateID: aggregateID,
		OccurredAt:  now,
		Payload:     payload,
	}
}

// Publisher delivers an event to one sink. Publish may block.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Emitter accepts events from request paths. Emit never blocks.
type Emitter interface {
	Emit(ev Event)
}

// Discard is an Emitter that drops everything.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Event) {}

// Recorder keeps emitted events in memory. Tests use it to assert on
// side effects.
type Recorder struct {
	ch chan Event
}

func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan Event, size)}
}

func (r *Recorder) Emit(ev Event) {
	select {
	case r.ch <- ev:
	default:
	}
}

// Types drains the recorder and returns the event types in emission order.
func (r *Recorder) Types() []Type {
	var out []Type
	for {
		select {
		case ev := <-r.ch:
			out = append(out, ev.Type)
		default:
			return out
		}
	}
}
