package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/paymentintent"
)

// Stripe adapts the Stripe payment intents API.
type Stripe struct {
	intents *paymentintent.Client
}

type StripeOption func(*stripe.BackendConfig)

// WithAPIURL points the client at another API host, such as a local mock.
func WithAPIURL(url string) StripeOption {
	return func(c *stripe.BackendConfig) {
		if url != "" {
			c.URL = stripe.String(url)
		}
	}
}

func WithHTTPClient(client *http.Client) StripeOption {
	return func(c *stripe.BackendConfig) { c.HTTPClient = client }
}

func NewStripe(secretKey string, opts ...StripeOption) *Stripe {
	cfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Stripe{
		intents: &paymentintent.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
			Key: secretKey,
		},
	}
}

func (s *Stripe) CreateIntent(ctx context.Context, p CreateIntentParams) (Intent, error) {
	if err := validateCreate(p); err != nil {
		return Intent{}, err
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountMinor),
		Currency: stripe.String(strings.ToLower(p.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	pi, err := s.intents.New(params)
	if err != nil {
		return Intent{}, classify("create intent", err)
	}
	return toIntent(pi), nil
}

func (s *Stripe) RetrieveIntent(ctx context.Context, intentID string) (Intent, error) {
	if intentID == "" {
		return Intent{}, rejected("retrieve intent", errors.New("empty intent id"))
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.intents.Get(intentID, params)
	if err != nil {
		return Intent{}, classify("retrieve intent", err)
	}
	return toIntent(pi), nil
}

// classify sorts Stripe failures. A 4xx is the caller's fault unless it is an
// auth or rate limit error; 5xx and network errors may succeed on a later attempt.
func classify(op string, err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return transient(op, err)
	}
	code := se.HTTPStatusCode
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return transient(op, fmt.Errorf("stripe %d: %s", code, se.Msg))
	}
	if code >= 400 && code < 500 {
		return rejected(op, fmt.Errorf("stripe %d %s: %s", code, se.Code, se.Msg))
	}
	return transient(op, fmt.Errorf("stripe %d: %s", code, se.Msg))
}

func toIntent(pi *stripe.PaymentIntent) Intent {
	out := Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       mapStatus(pi),
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
	}
	if pi.PaymentMethod != nil {
		out.PaymentMethod = pi.PaymentMethod.ID
	}
	return out
}

func mapStatus(pi *stripe.PaymentIntent) IntentStatus {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return IntentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return IntentFailed
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// A declined attempt falls back to requires_payment_method with the error attached.
		if pi.LastPaymentError != nil {
			return IntentFailed
		}
	}
	return IntentPending
}
