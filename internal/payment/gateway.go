package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/hackgods/tutor-booking/internal/money"
)

// ErrGateway is the category of every failure reported by the payment
// gateway.
var ErrGateway = errors.New("payment gateway error")

// GatewayError carries the gateway's own message so it can be surfaced to
// the caller verbatim.
type GatewayError struct {
	Op      string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("gateway %s: %s", e.Op, e.Message)
}

func (e *GatewayError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrGateway, e.Err}
	}
	return []error{ErrGateway}
}

// OrderRequest asks the gateway for a chargeable order.
type OrderRequest struct {
	Amount  money.Money
	Receipt string
	Notes   map[string]string
}

// Order is the gateway's view of a pending charge. Amounts are minor units.
type Order struct {
	OrderID     string
	KeyID       string
	AmountMinor int64
	Currency    string
}

// Verification is the outcome of checking a signed payment confirmation.
type Verification struct {
	IsValid       bool
	PaymentMethod string
	ErrorMessage  string
}

// Gateway is the external payment provider. Every call is a blocking,
// fallible network round trip.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	VerifyPayment(ctx context.Context, orderID, paymentID, signature string) (*Verification, error)
}
