package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/checkout/session"
	"github.com/stripe/stripe-go/v72/webhook"

	"github.com/lilgiftcorner/server/internal/circuitbreaker"
	"github.com/lilgiftcorner/server/internal/config"
	"github.com/lilgiftcorner/server/internal/metrics"
)

// maxDescriptionRunes is Stripe's limit on product descriptions.
const maxDescriptionRunes = 500

// LineItem is one priced line of a hosted checkout page.
type LineItem struct {
	Name        string
	Description string
	UnitAmount  int64 // minor units
	Quantity    int64
}

// SessionRequest describes a hosted checkout session.
type SessionRequest struct {
	LineItems     []LineItem
	Currency      string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	Metadata      map[string]string
}

// Session is a created hosted checkout session.
type Session struct {
	ID  string
	URL string
}

// SessionStatus is the provider's view of a session.
type SessionStatus struct {
	ID            string
	Status        string // open, complete, expired
	PaymentStatus string // unpaid, paid, no_payment_required
	AmountTotal   int64
	Metadata      map[string]string
}

// WebhookEvent wraps the subset of event fields we log.
type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string
	Metadata  map[string]string
}

// sessionAPI is the stripe-go surface the client uses.
type sessionAPI interface {
	New(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error)
	Get(id string, params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error)
}

type liveSessionAPI struct{}

func (liveSessionAPI) New(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	return session.New(params)
}

func (liveSessionAPI) Get(id string, params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	return session.Get(id, params)
}

// Client wraps the stripe-go operations the checkout flow needs. Session calls run behind
// the Stripe circuit breaker.
type Client struct {
	cfg     config.StripeConfig
	api     sessionAPI
	breaker *circuitbreaker.Manager
	metrics *metrics.Metrics
}

// NewClient sets up stripe-go with the provided credentials.
func NewClient(cfg config.StripeConfig, breaker *circuitbreaker.Manager, metricsCollector *metrics.Metrics) *Client {
	stripeapi.Key = cfg.SecretKey
	return &Client{
		cfg:     cfg,
		api:     liveSessionAPI{},
		breaker: breaker,
		metrics: metricsCollector,
	}
}

// CreateSession creates a card-payment checkout session.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if len(req.LineItems) == 0 {
		return Session{}, errors.New("stripe: at least one line item required")
	}
	currency := firstNonEmpty(req.Currency, c.cfg.Currency, "inr")

	params := &stripeapi.CheckoutSessionParams{
		Mode:               stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		SuccessURL:         stripeapi.String(req.SuccessURL),
		CancelURL:          stripeapi.String(req.CancelURL),
		LineItems:          buildLineItems(req.LineItems, currency),
	}
	params.Context = ctx
	params.Metadata = copyMetadata(req.Metadata)
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripeapi.String(req.CustomerEmail)
	}

	done := metrics.MeasureStripeCall(c.metrics, "create_session")
	s, err := circuitbreaker.Do(c.breaker, circuitbreaker.ServiceStripe, func() (*stripeapi.CheckoutSession, error) {
		return c.api.New(params)
	})
	done(err)
	if err != nil {
		return Session{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return Session{ID: s.ID, URL: s.URL}, nil
}

// GetSession retrieves a checkout session's status.
func (c *Client) GetSession(ctx context.Context, id string) (SessionStatus, error) {
	params := &stripeapi.CheckoutSessionParams{}
	params.Context = ctx

	done := metrics.MeasureStripeCall(c.metrics, "get_session")
	s, err := circuitbreaker.Do(c.breaker, circuitbreaker.ServiceStripe, func() (*stripeapi.CheckoutSession, error) {
		return c.api.Get(id, params)
	})
	done(err)
	if err != nil {
		return SessionStatus{}, fmt.Errorf("stripe: get checkout session: %w", err)
	}
	return SessionStatus{
		ID:            s.ID,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Metadata:      s.Metadata,
	}, nil
}

// ParseWebhook verifies the signature when a webhook secret is configured and extracts
// the event. Without a secret the payload is only decoded.
func (c *Client) ParseWebhook(_ context.Context, payload []byte, signature string) (WebhookEvent, error) {
	var event stripeapi.Event
	if c.cfg.WebhookSecret != "" {
		verified, err := webhook.ConstructEvent(payload, signature, c.cfg.WebhookSecret)
		if err != nil {
			return WebhookEvent{}, fmt.Errorf("stripe: construct event: %w", err)
		}
		event = verified
	} else if err := jsonExtract(payload, &event); err != nil {
		return WebhookEvent{}, err
	}
	if event.Type == "" {
		return WebhookEvent{}, errors.New("stripe: webhook event type missing")
	}

	out := WebhookEvent{ID: event.ID, Type: event.Type}
	if strings.HasPrefix(event.Type, "checkout.session.") && event.Data != nil {
		var checkout stripeapi.CheckoutSession
		if err := jsonExtract(event.Data.Raw, &checkout); err != nil {
			return WebhookEvent{}, err
		}
		out.SessionID = checkout.ID
		out.Metadata = checkout.Metadata
	}
	return out, nil
}

func buildLineItems(items []LineItem, currency string) []*stripeapi.CheckoutSessionLineItemParams {
	out := make([]*stripeapi.CheckoutSessionLineItemParams, 0, len(items))
	for _, item := range items {
		product := &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripeapi.String(item.Name),
		}
		if desc := truncateRunes(item.Description, maxDescriptionRunes); desc != "" {
			product.Description = stripeapi.String(desc)
		}
		out = append(out, &stripeapi.CheckoutSessionLineItemParams{
			Quantity: stripeapi.Int64(item.Quantity),
			PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripeapi.String(currency),
				ProductData: product,
				UnitAmount:  stripeapi.Int64(item.UnitAmount),
			},
		})
	}
	return out
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func copyMetadata(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

func jsonExtract(data []byte, v any) error {
	if len(data) == 0 {
		return errors.New("stripe: webhook payload empty")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("stripe: decode webhook payload: %w", err)
	}
	return nil
}
