// Package payment opens orders with the payment gateway and verifies the
// gateway's signed payment confirmations.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

// OrderRequest is what the gateway needs to open an order.
type OrderRequest struct {
	Receipt  string
	Amount   int64
	Currency model.Currency
	Notes    map[string]string
}

// Gateway is the third-party payment provider.
type Gateway interface {
	// CreateOrder opens an order and returns the gateway's order id.
	CreateOrder(ctx context.Context, req OrderRequest) (string, error)
}

// Broker creates payment orders and checks their signatures.
type Broker struct {
	gateway Gateway
	secret  []byte
	timeout time.Duration
	logger  *slog.Logger
}

// NewBroker constructs a Broker. secret is the key the gateway signs
// confirmations with; timeout bounds every gateway call.
func NewBroker(gateway Gateway, secret string, timeout time.Duration, logger *slog.Logger) *Broker {
	return &Broker{gateway: gateway, secret: []byte(secret), timeout: timeout, logger: logger}
}

// CreateOrder opens a gateway order for amount. The returned order is in
// status created and is not persisted.
func (b *Broker) CreateOrder(ctx context.Context, registrantID string, amount int64, currency model.Currency) (*model.PaymentOrder, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: amount %d", model.ErrInvalidInput, amount)
	}
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: currency %q", model.ErrInvalidInput, currency)
	}

	id := uuid.New().String()
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	gatewayOrderID, err := b.gateway.CreateOrder(callCtx, OrderRequest{
		Receipt:  id,
		Amount:   amount,
		Currency: currency,
		Notes:    map[string]string{"registrant_id": registrantID},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, model.ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %w", model.ErrGatewayUnavailable, err)
		}
		b.logger.Warn("gateway order creation failed",
			"registrant_id", registrantID, "amount", amount, "elapsed", time.Since(start), "error", err)
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	now := time.Now().UTC()
	b.logger.Info("gateway order created",
		"registrant_id", registrantID, "order_id", id, "gateway_order_id", gatewayOrderID, "amount", amount)
	return &model.PaymentOrder{
		ID:             id,
		RegistrantID:   registrantID,
		Amount:         amount,
		Currency:       currency,
		GatewayOrderID: gatewayOrderID,
		Status:         model.OrderCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// VerifySignature reports whether signature is the gateway's HMAC-SHA256 of
// "gatewayOrderID|gatewayPaymentID". It never errors; any malformed input
// is simply not a valid signature.
func (b *Broker) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if len(b.secret) == 0 || gatewayOrderID == "" || gatewayPaymentID == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(got, sign(b.secret, gatewayOrderID, gatewayPaymentID))
}

// Sign returns the hex signature the gateway would attach to a payment.
// Used by the sandbox gateway and tests.
func Sign(secret, gatewayOrderID, gatewayPaymentID string) string {
	return hex.EncodeToString(sign([]byte(secret), gatewayOrderID, gatewayPaymentID))
}

func sign(secret []byte, orderID, paymentID string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return mac.Sum(nil)
}
