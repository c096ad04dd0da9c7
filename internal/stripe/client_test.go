package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	stripeapi "github.com/stripe/stripe-go/v72"

	"github.com/lilgiftcorner/server/internal/circuitbreaker"
	"github.com/lilgiftcorner/server/internal/config"
)

type stubSessionAPI struct {
	lastNew *stripeapi.CheckoutSessionParams
	newErr  error
	getErr  error
	session *stripeapi.CheckoutSession
	calls   int
}

func (s *stubSessionAPI) New(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	s.calls++
	s.lastNew = params
	if s.newErr != nil {
		return nil, s.newErr
	}
	return s.session, nil
}

func (s *stubSessionAPI) Get(id string, _ *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	s.calls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	out := *s.session
	out.ID = id
	return &out, nil
}

func newTestClient(cfg config.StripeConfig, api sessionAPI, breaker *circuitbreaker.Manager) *Client {
	return &Client{cfg: cfg, api: api, breaker: breaker}
}

func TestFirstNonEmpty(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"first value non-empty", []string{"value1", "value2"}, "value1"},
		{"first value empty", []string{"", "value2"}, "value2"},
		{"whitespace skipped", []string{"   ", "value2"}, "value2"},
		{"all empty", []string{"", ""}, ""},
		{"empty slice", []string{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstNonEmpty(tt.values...); got != tt.want {
				t.Errorf("firstNonEmpty() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	long := strings.Repeat("उपहार", 200) // 1000 runes
	if got := []rune(truncateRunes(long, maxDescriptionRunes)); len(got) != maxDescriptionRunes {
		t.Errorf("truncateRunes() length = %d, want %d", len(got), maxDescriptionRunes)
	}
	if got := truncateRunes("short", maxDescriptionRunes); got != "short" {
		t.Errorf("truncateRunes() = %q, want short", got)
	}
}

func TestCreateSessionBuildsParams(t *testing.T) {
	api := &stubSessionAPI{session: &stripeapi.CheckoutSession{ID: "cs_test_1", URL: "https://pay.example/cs_test_1"}}
	client := newTestClient(config.StripeConfig{Currency: "inr"}, api, nil)

	got, err := client.CreateSession(context.Background(), SessionRequest{
		LineItems: []LineItem{
			{Name: "Mug", Description: strings.Repeat("x", 600), UnitAmount: 49999, Quantity: 2},
			{Name: "Card", UnitAmount: 5000, Quantity: 1},
		},
		SuccessURL: "https://shop.example/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "https://shop.example/checkout/cancel",
		Metadata:   map[string]string{"session_id": "sess-1"},
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if got.ID != "cs_test_1" || got.URL == "" {
		t.Errorf("CreateSession() = %+v", got)
	}

	params := api.lastNew
	if len(params.LineItems) != 2 {
		t.Fatalf("line items = %d, want 2", len(params.LineItems))
	}
	first := params.LineItems[0]
	if *first.PriceData.UnitAmount != 49999 || *first.Quantity != 2 || *first.PriceData.Currency != "inr" {
		t.Errorf("first line item = %+v", first.PriceData)
	}
	if n := len([]rune(*first.PriceData.ProductData.Description)); n != 500 {
		t.Errorf("description length = %d, want 500", n)
	}
	if params.LineItems[1].PriceData.ProductData.Description != nil {
		t.Error("empty description should be omitted")
	}
	if params.Metadata["session_id"] != "sess-1" {
		t.Errorf("metadata = %v", params.Metadata)
	}
	if *params.Mode != string(stripeapi.CheckoutSessionModePayment) {
		t.Errorf("mode = %s, want payment", *params.Mode)
	}
}

func TestCreateSessionRequiresItems(t *testing.T) {
	client := newTestClient(config.StripeConfig{}, &stubSessionAPI{}, nil)
	if _, err := client.CreateSession(context.Background(), SessionRequest{}); err == nil {
		t.Error("CreateSession() error = nil, want error for no line items")
	}
}

func TestGetSessionMapsStatus(t *testing.T) {
	api := &stubSessionAPI{session: &stripeapi.CheckoutSession{
		Status:        stripeapi.CheckoutSessionStatus("complete"),
		PaymentStatus: stripeapi.CheckoutSessionPaymentStatusPaid,
		AmountTotal:   99998,
	}}
	client := newTestClient(config.StripeConfig{}, api, nil)

	got, err := client.GetSession(context.Background(), "cs_test_2")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.ID != "cs_test_2" || got.Status != "complete" || got.PaymentStatus != "paid" || got.AmountTotal != 99998 {
		t.Errorf("GetSession() = %+v", got)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	api := &stubSessionAPI{getErr: errors.New("connection reset")}
	breaker := circuitbreaker.NewManager(circuitbreaker.Config{
		Enabled: true,
		StripeAPI: circuitbreaker.BreakerConfig{
			MaxRequests:         1,
			Timeout:             time.Minute,
			ConsecutiveFailures: 2,
		},
	}, zerolog.Nop(), nil)
	client := newTestClient(config.StripeConfig{}, api, breaker)

	for i := 0; i < 2; i++ {
		if _, err := client.GetSession(context.Background(), "cs"); err == nil {
			t.Fatal("GetSession() error = nil, want upstream failure")
		}
	}
	_, err := client.GetSession(context.Background(), "cs")
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("GetSession() error = %v, want open breaker", err)
	}
	if api.calls != 2 {
		t.Errorf("upstream calls = %d, want 2", api.calls)
	}
	if got := breaker.State(circuitbreaker.ServiceStripe); got != "open" {
		t.Errorf("State() = %q, want open", got)
	}
}

const completedEvent = `{
	"id": "evt_1",
	"object": "event",
	"type": "checkout.session.completed",
	"data": {"object": {"id": "cs_test_9", "object": "checkout.session", "metadata": {"session_id": "sess-9"}}}
}`

func TestParseWebhookUnsigned(t *testing.T) {
	client := newTestClient(config.StripeConfig{}, nil, nil)

	evt, err := client.ParseWebhook(context.Background(), []byte(completedEvent), "")
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if evt.Type != "checkout.session.completed" || evt.SessionID != "cs_test_9" || evt.Metadata["session_id"] != "sess-9" {
		t.Errorf("ParseWebhook() = %+v", evt)
	}

	for _, bad := range []string{"", "not json", `{"id":"evt_2"}`} {
		if _, err := client.ParseWebhook(context.Background(), []byte(bad), ""); err == nil {
			t.Errorf("ParseWebhook(%q) error = nil, want error", bad)
		}
	}
}

func sign(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestParseWebhookSigned(t *testing.T) {
	const secret = "whsec_test"
	client := newTestClient(config.StripeConfig{WebhookSecret: secret}, nil, nil)
	payload := []byte(fmt.Sprintf(`{
	"id": "evt_1",
	"object": "event",
	"api_version": %q,
	"type": "checkout.session.completed",
	"data": {"object": {"id": "cs_test_9", "object": "checkout.session"}}
}`, stripeapi.APIVersion))

	evt, err := client.ParseWebhook(context.Background(), payload, sign(payload, secret, time.Now()))
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if evt.SessionID != "cs_test_9" {
		t.Errorf("SessionID = %q, want cs_test_9", evt.SessionID)
	}

	if _, err := client.ParseWebhook(context.Background(), payload, sign(payload, "whsec_other", time.Now())); err == nil {
		t.Error("ParseWebhook() with wrong secret error = nil, want error")
	}
}
