package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lilgiftcorner/server/internal/cart"
	"github.com/lilgiftcorner/server/internal/coupons"
	"github.com/lilgiftcorner/server/internal/logger"
	"github.com/lilgiftcorner/server/internal/metrics"
	"github.com/lilgiftcorner/server/internal/money"
	"github.com/lilgiftcorner/server/internal/orders"
	"github.com/lilgiftcorner/server/internal/storage"
	"github.com/lilgiftcorner/server/internal/stripe"
)

var (
	// ErrMissingFields is returned when a session request lacks session_id or origin_url.
	ErrMissingFields = errors.New("session_id and origin_url are required")
	// ErrCartEmpty is returned when no cart line resolves to a live product.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrNothingToCharge is returned when a coupon brings the total to zero.
	ErrNothingToCharge = errors.New("discounted total must be greater than zero")
	// ErrProvider wraps failures of the payment provider.
	ErrProvider = errors.New("payment provider error")
)

const (
	defaultCurrency     = "inr"
	defaultLinkWait     = 2 * time.Second
	defaultRepairAfter  = 2 * time.Minute
	defaultPollInterval = 100 * time.Millisecond
	discountedLineName  = "Lil Gift Corner order"
)

// Provider is the hosted checkout provider.
type Provider interface {
	CreateSession(ctx context.Context, req stripe.SessionRequest) (stripe.Session, error)
	GetSession(ctx context.Context, id string) (stripe.SessionStatus, error)
	ParseWebhook(ctx context.Context, payload []byte, signature string) (stripe.WebhookEvent, error)
}

// Carts is the cart surface checkout reads and clears.
type Carts interface {
	Get(ctx context.Context, sessionID string) (cart.View, error)
	Clear(ctx context.Context, sessionID string) (int64, error)
}

// Orders writes the order of a paid session.
type Orders interface {
	CreateForCheckout(ctx context.Context, in orders.CheckoutOrder) (orders.Order, bool, error)
	FindByCheckoutSession(ctx context.Context, checkoutSessionID string) (orders.Order, error)
}

// CouponRedeemer validates coupons at session creation and consumes them once paid.
type CouponRedeemer interface {
	Validate(ctx context.Context, code string, orderValue float64, userID string) (coupons.Result, error)
	RecordUsage(ctx context.Context, coupon coupons.Coupon, userID, orderID string, discount float64) error
}

// CreateSessionInput is the payload of CreateSession.
type CreateSessionInput struct {
	SessionID     string `json:"session_id"`
	OriginURL     string `json:"origin_url"`
	CouponCode    string `json:"coupon_code,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	UserID        string `json:"-"`
}

// SessionResult is the hosted page a shopper is redirected to.
type SessionResult struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

// StatusResult is the reconciled state of a checkout session.
type StatusResult struct {
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	AmountTotal   float64       `json:"amount_total"`
	Currency      string        `json:"currency"`
	OrderID       string        `json:"order_id,omitempty"`
}

// Service creates checkout sessions and reconciles their payment state into orders.
type Service struct {
	txns     Repository
	carts    Carts
	orders   Orders
	coupons  CouponRedeemer
	provider Provider

	currency     string
	linkWait     time.Duration
	repairAfter  time.Duration
	pollInterval time.Duration
	metrics      *metrics.Metrics
	now          func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithCurrency sets the charge currency.
func WithCurrency(currency string) Option {
	return func(s *Service) {
		if currency != "" {
			s.currency = strings.ToLower(currency)
		}
	}
}

// WithLinkWait bounds how long a poll that lost the paid transition waits for the
// winner's order id.
func WithLinkWait(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.linkWait = d
		}
	}
}

// WithRepairAfter sets the finalisation lease after which a paid session without an
// order is repaired.
func WithRepairAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.repairAfter = d
		}
	}
}

// WithPollInterval sets how often a waiting poll re-reads the transaction.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a checkout service. redeemer may be nil, in which case coupon codes
// are rejected.
func NewService(txns Repository, carts Carts, orderSvc Orders, redeemer CouponRedeemer, provider Provider, opts ...Option) *Service {
	s := &Service{
		txns:         txns,
		carts:        carts,
		orders:       orderSvc,
		coupons:      redeemer,
		provider:     provider,
		currency:     defaultCurrency,
		linkWait:     defaultLinkWait,
		repairAfter:  defaultRepairAfter,
		pollInterval: defaultPollInterval,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession prices the cart, opens a hosted checkout session and records the
// transaction. No order exists until the session is paid.
func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (SessionResult, error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	origin := strings.TrimRight(strings.TrimSpace(in.OriginURL), "/")
	if in.SessionID == "" || origin == "" {
		return SessionResult{}, ErrMissingFields
	}

	view, err := s.carts.Get(ctx, in.SessionID)
	if err != nil {
		return SessionResult{}, fmt.Errorf("load cart: %w", err)
	}
	if len(view.Items) == 0 {
		return SessionResult{}, ErrCartEmpty
	}

	lineItems := make([]stripe.LineItem, 0, len(view.Items))
	for _, line := range view.Items {
		unit, err := money.ToMinor(line.Product.Price)
		if err != nil {
			return SessionResult{}, fmt.Errorf("price %s: %w", line.ProductID, err)
		}
		lineItems = append(lineItems, stripe.LineItem{
			Name:        line.Product.Name,
			Description: line.Product.Description,
			UnitAmount:  unit,
			Quantity:    int64(line.Quantity),
		})
	}

	subtotal := money.Round(view.Total)
	amount := subtotal
	var discount float64
	var coupon coupons.Coupon
	if code := strings.TrimSpace(in.CouponCode); code != "" {
		if s.coupons == nil {
			return SessionResult{}, coupons.ErrCouponNotFound
		}
		userID := firstNonEmpty(in.UserID, view.UserID)
		result, err := s.coupons.Validate(ctx, code, subtotal, userID)
		if err != nil {
			return SessionResult{}, err
		}
		if result.FinalAmount <= 0 {
			return SessionResult{}, ErrNothingToCharge
		}
		coupon = result.Coupon
		discount = result.DiscountAmount
		amount = result.FinalAmount

		// Provider line items cannot carry a discount, so the page shows one line at the
		// discounted total.
		minor, err := money.ToMinor(amount)
		if err != nil {
			return SessionResult{}, fmt.Errorf("price discounted total: %w", err)
		}
		lineItems = []stripe.LineItem{{
			Name:        discountedLineName,
			Description: fmt.Sprintf("%d item(s), coupon %s", view.ItemCount, coupon.Code),
			UnitAmount:  minor,
			Quantity:    1,
		}}
	}

	metadata := map[string]string{
		"session_id": in.SessionID,
		"amount":     money.Format(amount),
	}
	if coupon.Code != "" {
		metadata["coupon_code"] = coupon.Code
	}

	session, err := s.provider.CreateSession(ctx, stripe.SessionRequest{
		LineItems:     lineItems,
		Currency:      s.currency,
		SuccessURL:    origin + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     origin + "/checkout/cancel",
		CustomerEmail: in.CustomerEmail,
		Metadata:      metadata,
	})
	if err != nil {
		return SessionResult{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	now := s.now()
	tx := Transaction{
		ID:                uuid.NewString(),
		CheckoutSessionID: session.ID,
		Amount:            amount,
		Subtotal:          subtotal,
		DiscountAmount:    discount,
		Currency:          s.currency,
		Metadata:          map[string]string{"session_id": in.SessionID},
		UserID:            firstNonEmpty(in.UserID, view.UserID),
		CustomerEmail:     in.CustomerEmail,
		CouponID:          coupon.ID,
		CouponCode:        coupon.Code,
		Status:            StatusInitiated,
		PaymentStatus:     PaymentPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.txns.Create(ctx, tx); err != nil {
		return SessionResult{}, fmt.Errorf("record transaction: %w", err)
	}

	s.metrics.ObserveCheckoutSession(string(StatusInitiated))
	log := logger.FromContext(ctx)
	log.Info().
		Str("checkout_session_id", session.ID).
		Str("session_id", in.SessionID).
		Float64("amount", amount).
		Str("coupon_code", coupon.Code).
		Msg("checkout.session_created")

	return SessionResult{URL: session.URL, SessionID: session.ID}, nil
}

// GetStatus reconciles a checkout session with the provider. The paid transition is a
// compare-and-swap in the store: exactly one concurrent caller finalises the order and
// every other caller returns that order's id.
func (s *Service) GetStatus(ctx context.Context, checkoutSessionID string) (StatusResult, error) {
	tx, err := s.txns.Get(ctx, checkoutSessionID)
	if err != nil {
		return StatusResult{}, err
	}
	if tx.PaymentStatus == PaymentPaid {
		if tx.OrderID != "" {
			s.metrics.ObserveReconciliation("cached")
			return s.result(tx), nil
		}
		return s.awaitOrder(ctx, tx)
	}

	remote, err := s.provider.GetSession(ctx, checkoutSessionID)
	if err != nil {
		return StatusResult{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	status, payment := Status(remote.Status), PaymentStatus(remote.PaymentStatus)
	if err := checkTransition(tx, status, payment); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Str("checkout_session_id", checkoutSessionID).
			Msg("checkout.invalid_transition")
		return StatusResult{}, err
	}

	if payment != PaymentPaid {
		updated, err := s.txns.UpdateStatus(ctx, tx, status, payment, s.now())
		if err != nil {
			return StatusResult{}, err
		}
		if updated.PaymentStatus == PaymentPaid {
			return s.awaitOrder(ctx, updated)
		}
		s.metrics.ObserveReconciliation("pending")
		return s.result(updated), nil
	}

	now := s.now()
	done := metrics.MeasureDBQuery(s.metrics, "mark_paid", storage.CollectionPaymentTransactions)
	paid, won, err := s.txns.MarkPaid(ctx, checkoutSessionID, status, now, now.Add(s.repairAfter))
	done()
	if err != nil {
		return StatusResult{}, err
	}
	if !won {
		return s.awaitOrder(ctx, paid)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("checkout_session_id", checkoutSessionID).
		Msg("checkout.payment_confirmed")
	s.metrics.ObserveCheckoutSession(string(PaymentPaid))

	orderID, err := s.finalize(ctx, paid)
	if err != nil {
		return StatusResult{}, err
	}
	paid.OrderID = orderID
	s.metrics.ObserveReconciliation("won")
	return s.result(paid), nil
}

// awaitOrder waits a bounded time for the winner to link its order, then repairs.
func (s *Service) awaitOrder(ctx context.Context, tx Transaction) (StatusResult, error) {
	deadline := time.Now().Add(s.linkWait)
	for tx.OrderID == "" && time.Now().Before(deadline) {
		timer := time.NewTimer(s.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return StatusResult{}, ctx.Err()
		case <-timer.C:
		}
		current, err := s.txns.Get(ctx, tx.CheckoutSessionID)
		if err != nil {
			return StatusResult{}, err
		}
		tx = current
	}
	if tx.OrderID != "" {
		s.metrics.ObserveReconciliation("lost")
		return s.result(tx), nil
	}
	return s.repair(ctx, tx)
}

// repair handles a paid transaction whose finalisation never linked an order.
func (s *Service) repair(ctx context.Context, tx Transaction) (StatusResult, error) {
	log := logger.FromContext(ctx).With().
		Str("checkout_session_id", tx.CheckoutSessionID).
		Logger()

	existing, err := s.orders.FindByCheckoutSession(ctx, tx.CheckoutSessionID)
	switch {
	case err == nil:
		if err := s.complete(ctx, tx, existing.ID); err != nil {
			return StatusResult{}, err
		}
		tx.OrderID = existing.ID
		log.Warn().Str("order_id", existing.ID).Msg("checkout.order_relinked")
		s.metrics.ObserveReconciliation("repaired")
		return s.result(tx), nil
	case !errors.Is(err, orders.ErrOrderNotFound):
		return StatusResult{}, err
	}

	now := s.now()
	claimed, err := s.txns.ClaimRepair(ctx, tx.CheckoutSessionID, now, now.Add(s.repairAfter))
	if err != nil {
		return StatusResult{}, err
	}
	if !claimed {
		// Another finaliser still holds the lease.
		s.metrics.ObserveReconciliation("pending")
		return s.result(tx), nil
	}

	log.Warn().Msg("checkout.finalize_repair")
	orderID, err := s.finalize(ctx, tx)
	if err != nil {
		return StatusResult{}, err
	}
	tx.OrderID = orderID
	s.metrics.ObserveReconciliation("repaired")
	return s.result(tx), nil
}

// finalize turns a paid transaction into its order. Only the holder of the paid
// transition or of a repair lease calls it; CreateForCheckout keeps it idempotent.
func (s *Service) finalize(ctx context.Context, tx Transaction) (string, error) {
	// The order must be written even when the polling client goes away.
	ctx = context.WithoutCancel(ctx)
	log := logger.FromContext(ctx).With().
		Str("checkout_session_id", tx.CheckoutSessionID).
		Logger()

	sessionID := tx.SessionID()
	view, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load cart: %w", err)
	}
	items := make([]orders.LineItem, 0, len(view.Items))
	for _, line := range view.Items {
		item := orders.LineItem{
			ProductID: line.ProductID,
			Name:      line.Product.Name,
			Price:     line.Product.Price,
			Quantity:  line.Quantity,
		}
		if len(line.Product.Images) > 0 {
			item.Image = line.Product.Images[0]
		}
		items = append(items, item)
	}

	order, created, err := s.orders.CreateForCheckout(ctx, orders.CheckoutOrder{
		CheckoutSessionID: tx.CheckoutSessionID,
		SessionID:         sessionID,
		UserID:            tx.UserID,
		CustomerEmail:     tx.CustomerEmail,
		Items:             items,
		Subtotal:          tx.Subtotal,
		DiscountAmount:    tx.DiscountAmount,
		TotalAmount:       tx.Amount,
		CouponCode:        tx.CouponCode,
	})
	if err != nil {
		return "", err
	}
	if err := s.complete(ctx, tx, order.ID); err != nil {
		return "", err
	}
	if created {
		log.Info().Str("order_id", order.ID).Msg("checkout.order_finalized")
	}
	return order.ID, nil
}

// complete clears the cart and records the coupon use of a paid order, then links the
// order to its transaction. Each step is idempotent so any finaliser may rerun it; a
// linked transaction has had every step done.
func (s *Service) complete(ctx context.Context, tx Transaction, orderID string) error {
	ctx = context.WithoutCancel(ctx)
	log := logger.FromContext(ctx).With().
		Str("checkout_session_id", tx.CheckoutSessionID).
		Str("order_id", orderID).
		Logger()

	sessionID := tx.SessionID()
	if _, err := s.carts.Clear(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("checkout.cart_clear_failed")
	}
	if tx.CouponID != "" && s.coupons != nil {
		coupon := coupons.Coupon{ID: tx.CouponID, Code: tx.CouponCode}
		if err := s.coupons.RecordUsage(ctx, coupon, tx.UserID, orderID, tx.DiscountAmount); err != nil {
			// The payment is captured; the order stands.
			log.Error().Err(err).
				Str("coupon_code", tx.CouponCode).
				Msg("checkout.coupon_usage_failed")
		}
	}
	return s.txns.LinkOrder(ctx, tx.CheckoutSessionID, orderID, s.now())
}

// HandleWebhook verifies and logs a provider event. State only changes through GetStatus.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	log := logger.FromContext(ctx)
	event, err := s.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		log.Warn().Err(err).Msg("checkout.webhook_rejected")
		return err
	}
	evt := log.Info().
		Str("event_id", event.ID).
		Str("event_type", event.Type)
	if event.Type == "checkout.session.completed" {
		evt = evt.Str("checkout_session_id", event.SessionID)
	}
	evt.Msg("checkout.webhook_received")
	return nil
}

func (s *Service) result(tx Transaction) StatusResult {
	return StatusResult{
		Status:        tx.Status,
		PaymentStatus: tx.PaymentStatus,
		AmountTotal:   tx.Amount,
		Currency:      tx.Currency,
		OrderID:       tx.OrderID,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
