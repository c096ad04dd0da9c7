package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lilgiftcorner/server/internal/coupons"
	"github.com/lilgiftcorner/server/internal/logger"
	"github.com/lilgiftcorner/server/internal/metrics"
	"github.com/lilgiftcorner/server/internal/money"
)

// ErrInvalidOrder is returned when order input fails validation.
var ErrInvalidOrder = errors.New("invalid order")

// CouponRedeemer is the part of the coupon engine orders use.
type CouponRedeemer interface {
	Validate(ctx context.Context, code string, orderValue float64, userID string) (coupons.Result, error)
	Reserve(ctx context.Context, coupon coupons.Coupon, userID string) error
	Release(ctx context.Context, coupon coupons.Coupon, userID string)
	Commit(ctx context.Context, coupon coupons.Coupon, userID, orderID string, discount float64) error
}

// NewOrder is the payload of a directly placed order.
type NewOrder struct {
	SessionID     string        `json:"session_id"`
	Items         []LineItem    `json:"items"`
	TotalAmount   float64       `json:"total_amount"`
	CustomerEmail string        `json:"customer_email,omitempty"`
	CustomerName  string        `json:"customer_name,omitempty"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Address       *Address      `json:"address,omitempty"`
	CouponCode    string        `json:"coupon_code,omitempty"`
}

// CheckoutOrder is an order produced by a paid checkout session.
type CheckoutOrder struct {
	CheckoutSessionID string
	SessionID         string
	UserID            string
	CustomerEmail     string
	Items             []LineItem
	Subtotal          float64
	DiscountAmount    float64
	TotalAmount       float64
	CouponCode        string
}

// Timeline is an order's status trail.
type Timeline struct {
	Timeline      []HistoryEntry `json:"timeline"`
	CurrentStatus Status         `json:"current_status"`
}

// Tracking is the public view of an order.
type Tracking struct {
	OrderID     string         `json:"order_id"`
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	TotalAmount float64        `json:"total_amount"`
	Timeline    []HistoryEntry `json:"timeline"`
}

// Page is one page of the admin order listing.
type Page struct {
	Orders  []Order `json:"orders"`
	Total   int64   `json:"total"`
	Page    int     `json:"page"`
	PerPage int     `json:"per_page"`
}

// Service implements order placement, tracking and administration.
type Service struct {
	repo    Repository
	coupons CouponRedeemer
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates an order service. redeemer may be nil, in which case coupon codes
// are rejected.
func NewService(repo Repository, redeemer CouponRedeemer, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		coupons: redeemer,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Repository exposes the underlying store.
func (s *Service) Repository() Repository {
	return s.repo
}

func validateNewOrder(in NewOrder) error {
	switch {
	case strings.TrimSpace(in.SessionID) == "":
		return fmt.Errorf("%w: session_id is required", ErrInvalidOrder)
	case len(in.Items) == 0:
		return fmt.Errorf("%w: items are required", ErrInvalidOrder)
	case in.TotalAmount < 0:
		return fmt.Errorf("%w: total_amount must be non-negative", ErrInvalidOrder)
	case !in.PaymentMethod.Valid():
		return fmt.Errorf("%w: payment_method must be stripe or cod", ErrInvalidOrder)
	}
	for _, item := range in.Items {
		if item.ProductID == "" || item.Quantity < 1 {
			return fmt.Errorf("%w: each item needs a product_id and a quantity of at least 1", ErrInvalidOrder)
		}
	}
	return nil
}

// Create places an order directly (cash on delivery or a client-side card flow).
// With a coupon the discount is re-validated against total_amount, one use is reserved
// before the order is written and the usage record is appended after.
func (s *Service) Create(ctx context.Context, in NewOrder, userID string) (Order, error) {
	if in.PaymentMethod == "" {
		in.PaymentMethod = PaymentMethodStripe
	}
	if err := validateNewOrder(in); err != nil {
		return Order{}, err
	}

	now := s.now()
	order := Order{
		ID:            uuid.NewString(),
		SessionID:     in.SessionID,
		Items:         in.Items,
		Subtotal:      money.Round(in.TotalAmount),
		TotalAmount:   money.Round(in.TotalAmount),
		CustomerEmail: in.CustomerEmail,
		CustomerName:  in.CustomerName,
		UserID:        userID,
		PaymentMethod: in.PaymentMethod,
		Address:       in.Address,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	log := logger.FromContext(ctx)

	if code := coupons.NormalizeCode(in.CouponCode); code != "" {
		if s.coupons == nil {
			return Order{}, coupons.ErrCouponNotFound
		}
		res, err := s.coupons.Validate(ctx, code, in.TotalAmount, userID)
		if err != nil {
			return Order{}, err
		}
		if err := s.coupons.Reserve(ctx, res.Coupon, userID); err != nil {
			return Order{}, err
		}
		order.CouponCode = res.Coupon.Code
		order.DiscountAmount = res.DiscountAmount
		order.TotalAmount = res.FinalAmount

		if err := s.repo.CreateOrder(ctx, order); err != nil {
			s.coupons.Release(ctx, res.Coupon, userID)
			return Order{}, fmt.Errorf("create order: %w", err)
		}
		if err := s.coupons.Commit(ctx, res.Coupon, userID, order.ID, res.DiscountAmount); err != nil {
			// Both uses stay reserved; only the usage record is missing.
			log.Error().Err(err).
				Str("order_id", order.ID).
				Str("coupon_code", order.CouponCode).
				Msg("orders.coupon_usage_record_failed")
		}
	} else if err := s.repo.CreateOrder(ctx, order); err != nil {
		return Order{}, fmt.Errorf("create order: %w", err)
	}

	s.appendHistory(ctx, order.ID, StatusPending, "Order placed")
	s.observeCreated(order)

	log.Info().
		Str("order_id", order.ID).
		Str("payment_method", string(order.PaymentMethod)).
		Float64("total_amount", order.TotalAmount).
		Msg("orders.created")
	return order, nil
}

// CreateForCheckout writes the order of a paid checkout session. It is idempotent: when an
// order already exists for the session it is returned with created=false.
func (s *Service) CreateForCheckout(ctx context.Context, in CheckoutOrder) (Order, bool, error) {
	if in.CheckoutSessionID == "" {
		return Order{}, false, fmt.Errorf("%w: checkout session id is required", ErrInvalidOrder)
	}

	now := s.now()
	order := Order{
		ID:                uuid.NewString(),
		SessionID:         in.SessionID,
		CheckoutSessionID: in.CheckoutSessionID,
		Items:             in.Items,
		Subtotal:          money.Round(in.Subtotal),
		DiscountAmount:    money.Round(in.DiscountAmount),
		TotalAmount:       money.Round(in.TotalAmount),
		CouponCode:        in.CouponCode,
		CustomerEmail:     in.CustomerEmail,
		UserID:            in.UserID,
		PaymentMethod:     PaymentMethodStripe,
		Status:            StatusCompleted,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if order.Items == nil {
		order.Items = []LineItem{}
	}

	err := s.repo.CreateOrder(ctx, order)
	if errors.Is(err, ErrDuplicateCheckoutSession) {
		existing, findErr := s.repo.FindByCheckoutSession(ctx, in.CheckoutSessionID)
		if findErr != nil {
			return Order{}, false, fmt.Errorf("find checkout order: %w", findErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return Order{}, false, fmt.Errorf("create checkout order: %w", err)
	}

	s.appendHistory(ctx, order.ID, StatusCompleted, "Payment received")
	s.observeCreated(order)
	log := logger.FromContext(ctx)
	log.Info().
		Str("order_id", order.ID).
		Str("checkout_session_id", in.CheckoutSessionID).
		Float64("total_amount", order.TotalAmount).
		Msg("orders.created")
	return order, true, nil
}

// FindByCheckoutSession returns the order of a checkout session.
func (s *Service) FindByCheckoutSession(ctx context.Context, checkoutSessionID string) (Order, error) {
	return s.repo.FindByCheckoutSession(ctx, checkoutSessionID)
}

func (s *Service) appendHistory(ctx context.Context, orderID string, status Status, note string) {
	entry := HistoryEntry{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Status:    status,
		Note:      note,
		Timestamp: s.now(),
	}
	if err := s.repo.AppendHistory(ctx, entry); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).
			Str("order_id", orderID).
			Str("status", string(status)).
			Msg("orders.history_append_failed")
	}
}

func (s *Service) observeCreated(order Order) {
	paise, err := money.ToMinor(order.TotalAmount)
	if err != nil {
		paise = 0
	}
	s.metrics.ObserveOrderCreated(string(order.PaymentMethod), paise)
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// Timeline returns the status history and current status of an order.
func (s *Service) Timeline(ctx context.Context, id string) (Timeline, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Timeline{}, err
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return Timeline{}, err
	}
	return Timeline{Timeline: history, CurrentStatus: order.Status}, nil
}

// Track returns the public tracking view of an order.
func (s *Service) Track(ctx context.Context, id string) (Tracking, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Tracking{}, err
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return Tracking{}, err
	}
	return Tracking{
		OrderID:     order.ID,
		Status:      order.Status,
		CreatedAt:   order.CreatedAt,
		TotalAmount: order.TotalAmount,
		Timeline:    history,
	}, nil
}

// ListByUser returns up to 100 of a user's orders.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.repo.ListByUser(ctx, userID, 100)
}

// List returns a page of orders for the admin console.
func (s *Service) List(ctx context.Context, filter ListFilter) (Page, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return Page{}, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Skip < 0 {
		filter.Skip = 0
	}
	list, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Orders:  list,
		Total:   total,
		Page:    filter.Skip/filter.Limit + 1,
		PerPage: filter.Limit,
	}, nil
}

// Recent returns the n newest orders.
func (s *Service) Recent(ctx context.Context, n int) ([]Order, error) {
	list, _, err := s.repo.ListOrders(ctx, ListFilter{Limit: n})
	return list, err
}

// Count counts orders in a status; an empty status counts all.
func (s *Service) Count(ctx context.Context, status Status) (int64, error) {
	return s.repo.CountOrders(ctx, status)
}

// TotalSales sums the value of orders that were not cancelled.
func (s *Service) TotalSales(ctx context.Context) (float64, error) {
	total, err := s.repo.TotalSales(ctx)
	if err != nil {
		return 0, err
	}
	return money.Round(total), nil
}

// UpdateStatus moves an order along the transition table and appends the change to its
// history. Setting the current status again is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id string, next Status, note string) (Order, error) {
	if !next.Valid() {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}
	current, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if current.Status == next {
		return current, nil
	}
	if !current.Status.CanTransition(next) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, current.Status, next)
	if err != nil {
		return Order{}, err
	}
	s.appendHistory(ctx, id, next, note)

	log := logger.FromContext(ctx)
	log.Info().
		Str("order_id", id).
		Str("from", string(current.Status)).
		Str("to", string(next)).
		Msg("orders.status_updated")
	return updated, nil
}

// SalesAnalytics returns per-day sales over the last days days (default 30, at most 365).
func (s *Service) SalesAnalytics(ctx context.Context, days int) ([]DailySales, error) {
	if days <= 0 {
		days = 30
	}
	if days > 365 {
		days = 365
	}
	since := s.now().AddDate(0, 0, -days)
	rows, err := s.repo.SalesByDay(ctx, since)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].TotalSales = money.Round(rows[i].TotalSales)
	}
	return rows, nil
}

// HasPurchased reports whether the user received the product in a paid or delivered order.
func (s *Service) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	return s.repo.HasPurchased(ctx, userID, productID, []Status{StatusCompleted, StatusDelivered})
}
