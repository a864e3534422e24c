// internal/services/payment_service.go
package services

import (
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/refund"

	"github.com/javajoker/storefront-backend/internal/config"
)

// Payment intent states as reported by the gateway.
const (
	IntentStatusSucceeded             = "succeeded"
	IntentStatusProcessing            = "processing"
	IntentStatusRequiresPaymentMethod = "requires_payment_method"
	IntentStatusCanceled              = "canceled"
)

type PaymentIntent struct {
	ID           string `json:"payment_intent_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Status       string `json:"status"`
}

// PaymentGateway is the card processor used for checkout and refunds.
type PaymentGateway interface {
	CreateIntent(amountCents int64, currency string, metadata map[string]string, idempotencyKey string) (*PaymentIntent, error)
	GetIntent(id string) (*PaymentIntent, error)
	Refund(intentID string, amountCents int64, reason string) (string, error)
}

type PaymentService struct {
	gateway PaymentGateway
}

// NewPaymentService wires Stripe when a secret key is configured.
func NewPaymentService(cfg *config.Config) *PaymentService {
	if cfg.Payment.StripeSecretKey == "" {
		return &PaymentService{}
	}
	stripe.Key = cfg.Payment.StripeSecretKey
	return &PaymentService{gateway: &StripeGateway{}}
}

func NewPaymentServiceWithGateway(gateway PaymentGateway) *PaymentService {
	return &PaymentService{gateway: gateway}
}

func (s *PaymentService) Enabled() bool {
	return s != nil && s.gateway != nil
}

func (s *PaymentService) CreateIntent(amountCents int64, currency string, metadata map[string]string, idempotencyKey string) (*PaymentIntent, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("payment gateway not configured")
	}
	if amountCents <= 0 {
		return nil, fmt.Errorf("payment amount must be positive")
	}
	return s.gateway.CreateIntent(amountCents, strings.ToLower(currency), metadata, idempotencyKey)
}

func (s *PaymentService) GetIntent(id string) (*PaymentIntent, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("payment gateway not configured")
	}
	return s.gateway.GetIntent(id)
}

func (s *PaymentService) Refund(intentID string, amountCents int64, reason string) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("payment gateway not configured")
	}
	return s.gateway.Refund(intentID, amountCents, reason)
}

// StripeGateway talks to Stripe with the package-level API key.
type StripeGateway struct{}

func (g *StripeGateway) CreateIntent(amountCents int64, currency string, metadata map[string]string, idempotencyKey string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return &PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

func (g *StripeGateway) GetIntent(id string) (*PaymentIntent, error) {
	pi, err := paymentintent.Get(id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}
	return &PaymentIntent{ID: pi.ID, Status: string(pi.Status)}, nil
}

func (g *StripeGateway) Refund(intentID string, amountCents int64, reason string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amountCents),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if reason != "" {
		params.AddMetadata("reason", reason)
	}

	r, err := refund.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to process refund: %w", err)
	}
	if r.Status == stripe.RefundStatusFailed || r.Status == stripe.RefundStatusCanceled {
		return r.ID, fmt.Errorf("refund %s ended with status %s", r.ID, r.Status)
	}
	return r.ID, nil
}
