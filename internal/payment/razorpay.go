package payment

import (
	"context"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
)

// RazorpayGateway implements Gateway on top of the Razorpay Orders API.
type RazorpayGateway struct {
	client *razorpay.Client
	keyID  string
	secret string
}

func NewRazorpayGateway(keyID, secret string) *RazorpayGateway {
	return &RazorpayGateway{
		client: razorpay.NewClient(keyID, secret),
		keyID:  keyID,
		secret: secret,
	}
}

func (g *RazorpayGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":   req.Amount.Minor(),
		"currency": req.Amount.Currency(),
		"receipt":  req.Receipt,
		"notes":    notes,
	}

	body, err := callWithContext(ctx, func() (map[string]interface{}, error) {
		return g.client.Order.Create(data, nil)
	})
	if err != nil {
		return nil, &GatewayError{Op: "create_order", Message: err.Error(), Err: err}
	}

	orderID, _ := body["id"].(string)
	if orderID == "" {
		return nil, &GatewayError{Op: "create_order", Message: fmt.Sprintf("response without order id: %v", body)}
	}
	amount, _ := body["amount"].(float64)
	currency, _ := body["currency"].(string)
	return &Order{
		OrderID:     orderID,
		KeyID:       g.keyID,
		AmountMinor: int64(amount),
		Currency:    currency,
	}, nil
}

// VerifyPayment checks the checkout signature, HMAC-SHA256 of
// "order_id|payment_id" keyed with the API secret, then looks up the
// payment method. A failed lookup does not invalidate a good signature.
func (g *RazorpayGateway) VerifyPayment(ctx context.Context, orderID, paymentID, signature string) (*Verification, error) {
	params := map[string]interface{}{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
	}
	if !utils.VerifyPaymentSignature(params, signature, g.secret) {
		return &Verification{IsValid: false, ErrorMessage: "Invalid payment signature"}, nil
	}

	body, err := callWithContext(ctx, func() (map[string]interface{}, error) {
		return g.client.Payment.Fetch(paymentID, nil, nil)
	})
	if err != nil {
		return &Verification{IsValid: true}, nil
	}
	method, _ := body["method"].(string)
	return &Verification{IsValid: true, PaymentMethod: method}, nil
}

// callWithContext runs a blocking SDK call and gives up when ctx ends. The
// SDK has no context support, so an abandoned call finishes in the background.
func callWithContext(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	type result struct {
		body map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := fn()
		done <- result{body: body, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.body, r.err
	}
}
