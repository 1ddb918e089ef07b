package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// FakeGateway is an in-process Gateway for tests and local runs. It signs
// confirmations the same way the real provider does.
type FakeGateway struct {
	Secret string
	Method string

	mu        sync.Mutex
	createErr error
	verifyErr error
	orders    map[string]OrderRequest
	seq       int
}

func NewFakeGateway(secret string) *FakeGateway {
	return &FakeGateway{
		Secret: secret,
		orders: make(map[string]OrderRequest),
		Method: "upi",
	}
}

// FailCreate makes every following CreateOrder fail with msg. Empty msg
// clears the failure.
func (g *FakeGateway) FailCreate(msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if msg == "" {
		g.createErr = nil
		return
	}
	g.createErr = &GatewayError{Op: "create_order", Message: msg}
}

// FailVerify makes VerifyPayment return a transport error.
func (g *FakeGateway) FailVerify(msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if msg == "" {
		g.verifyErr = nil
		return
	}
	g.verifyErr = &GatewayError{Op: "verify_payment", Message: msg}
}

func (g *FakeGateway) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.seq++
	id := fmt.Sprintf("order_fake%04d", g.seq)
	g.orders[id] = req
	return &Order{
		OrderID:     id,
		KeyID:       "rzp_test_fake",
		AmountMinor: req.Amount.Minor(),
		Currency:    req.Amount.Currency(),
	}, nil
}

func (g *FakeGateway) VerifyPayment(_ context.Context, orderID, paymentID, signature string) (*Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if !hmac.Equal([]byte(g.sign(orderID, paymentID)), []byte(signature)) {
		return &Verification{IsValid: false, ErrorMessage: "Invalid payment signature"}, nil
	}
	return &Verification{IsValid: true, PaymentMethod: g.Method}, nil
}

// Sign produces the signature a browser checkout would hand back.
func (g *FakeGateway) Sign(orderID, paymentID string) string {
	return g.sign(orderID, paymentID)
}

func (g *FakeGateway) sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(g.Secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Orders returns how many orders were created.
func (g *FakeGateway) Orders() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}
