package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lilgiftcorner/server/internal/coupons"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusDelivered, false},
		{StatusConfirmed, StatusProcessing, true},
		{StatusConfirmed, StatusCompleted, false},
		{StatusProcessing, StatusShipped, true},
		{StatusProcessing, StatusPending, false},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, false},
		{StatusCompleted, StatusDelivered, true},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusShipped, StatusShipped, true},
		{Status("lost"), Status("lost"), false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s.CanTransition(%s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}

	if !StatusDelivered.Terminal() || !StatusCancelled.Terminal() || StatusShipped.Terminal() {
		t.Error("Terminal() disagrees with the transition table")
	}
	if _, err := ParseStatus("teleported"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("ParseStatus() error = %v, want %v", err, ErrInvalidStatus)
	}
}

func sampleOrder() NewOrder {
	return NewOrder{
		SessionID:     "sess-1",
		Items:         []LineItem{{ProductID: "p1", Name: "Mug", Price: 250, Quantity: 4}},
		TotalAmount:   1000,
		PaymentMethod: PaymentMethodCOD,
	}
}

func TestCreate(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	order, err := svc.Create(ctx, sampleOrder(), "u1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if order.Status != StatusPending || order.UserID != "u1" || order.TotalAmount != 1000 {
		t.Errorf("Create() = %+v", order)
	}

	timeline, err := svc.Timeline(ctx, order.ID)
	if err != nil {
		t.Fatalf("Timeline() error = %v", err)
	}
	if len(timeline.Timeline) != 1 || timeline.Timeline[0].Status != StatusPending {
		t.Errorf("Timeline() = %+v, want one pending entry", timeline)
	}
}

func TestCreateDefaultsToStripe(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, nil)
	in := sampleOrder()
	in.PaymentMethod = ""
	order, err := svc.Create(context.Background(), in, "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if order.PaymentMethod != PaymentMethodStripe {
		t.Errorf("PaymentMethod = %q, want %q", order.PaymentMethod, PaymentMethodStripe)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, nil)
	tests := []struct {
		name   string
		mutate func(*NewOrder)
	}{
		{"no session", func(o *NewOrder) { o.SessionID = "" }},
		{"no items", func(o *NewOrder) { o.Items = nil }},
		{"negative total", func(o *NewOrder) { o.TotalAmount = -1 }},
		{"bad method", func(o *NewOrder) { o.PaymentMethod = "barter" }},
		{"zero quantity", func(o *NewOrder) { o.Items[0].Quantity = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sampleOrder()
			tt.mutate(&in)
			if _, err := svc.Create(context.Background(), in, "u1"); !errors.Is(err, ErrInvalidOrder) {
				t.Errorf("Create() error = %v, want %v", err, ErrInvalidOrder)
			}
		})
	}
}

func newCouponEngine(t *testing.T, c coupons.Coupon) (*coupons.Engine, *coupons.MemoryRepository) {
	t.Helper()
	repo := coupons.NewMemoryRepository(c)
	return coupons.NewEngine(repo), repo
}

func save20() coupons.Coupon {
	limit := 1
	maxDiscount := 100.0
	now := time.Now().UTC()
	return coupons.Coupon{
		ID:             "c1",
		Code:           "SAVE20",
		Type:           coupons.DiscountTypePercentage,
		Value:          20,
		MinOrderValue:  500,
		MaxDiscount:    &maxDiscount,
		UsageLimit:     &limit,
		UserUsageLimit: 1,
		ValidFrom:      now.Add(-time.Hour),
		ValidUntil:     now.Add(time.Hour),
		IsActive:       true,
	}
}

func TestCreateWithCoupon(t *testing.T) {
	engine, couponRepo := newCouponEngine(t, save20())
	svc := NewService(NewMemoryRepository(), engine, nil)
	ctx := context.Background()

	in := sampleOrder()
	in.CouponCode = "save20"
	order, err := svc.Create(ctx, in, "u1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if order.CouponCode != "SAVE20" || order.DiscountAmount != 100 || order.TotalAmount != 900 || order.Subtotal != 1000 {
		t.Errorf("Create() = %+v, want SAVE20 with 100 off 1000", order)
	}

	usages := couponRepo.Usages()
	if len(usages) != 1 || usages[0].OrderID != order.ID || usages[0].UserID != "u1" {
		t.Errorf("usage records = %+v, want one for the order", usages)
	}
	stored, _ := couponRepo.GetCouponByID(ctx, "c1")
	if stored.UsageCount != 1 {
		t.Errorf("UsageCount = %d, want 1", stored.UsageCount)
	}

	// The global limit of one is spent.
	if _, err := svc.Create(ctx, in, "u2"); !errors.Is(err, coupons.ErrCouponUsageLimitReached) {
		t.Errorf("second Create() error = %v, want %v", err, coupons.ErrCouponUsageLimitReached)
	}
}

func TestCreateWithCouponRequiresUser(t *testing.T) {
	engine, _ := newCouponEngine(t, save20())
	svc := NewService(NewMemoryRepository(), engine, nil)
	in := sampleOrder()
	in.CouponCode = "SAVE20"
	if _, err := svc.Create(context.Background(), in, ""); !errors.Is(err, coupons.ErrCouponRequiresUser) {
		t.Errorf("Create() error = %v, want %v", err, coupons.ErrCouponRequiresUser)
	}
}

// failingCreateRepository rejects every insert.
type failingCreateRepository struct {
	*MemoryRepository
}

func (failingCreateRepository) CreateOrder(context.Context, Order) error {
	return errors.New("disk full")
}

func TestCreateWithCouponReleasesOnInsertFailure(t *testing.T) {
	engine, couponRepo := newCouponEngine(t, save20())
	svc := NewService(failingCreateRepository{NewMemoryRepository()}, engine, nil)
	in := sampleOrder()
	in.CouponCode = "SAVE20"

	if _, err := svc.Create(context.Background(), in, "u1"); err == nil {
		t.Fatal("Create() error = nil, want failure")
	}
	stored, _ := couponRepo.GetCouponByID(context.Background(), "c1")
	if stored.UsageCount != 0 {
		t.Errorf("UsageCount = %d, want 0 after release", stored.UsageCount)
	}
	if n := len(couponRepo.Usages()); n != 0 {
		t.Errorf("usage records = %d, want 0", n)
	}

	// the user's allowance came back with the global use
	retry := NewService(NewMemoryRepository(), engine, nil)
	if _, err := retry.Create(context.Background(), in, "u1"); err != nil {
		t.Errorf("Create() after release error = %v", err)
	}
}

func TestCreateWithCouponConcurrentSameUser(t *testing.T) {
	c := save20()
	c.UsageLimit = nil
	engine, couponRepo := newCouponEngine(t, c)
	svc := NewService(NewMemoryRepository(), engine, nil)

	const callers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	placed, rejected := 0, 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := sampleOrder()
			in.CouponCode = "SAVE20"
			_, err := svc.Create(context.Background(), in, "u1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				placed++
			case errors.Is(err, coupons.ErrCouponAlreadyUsed):
				rejected++
			default:
				t.Errorf("Create() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	if placed != 1 || rejected != callers-1 {
		t.Errorf("placed = %d, rejected = %d, want 1 and %d", placed, rejected, callers-1)
	}
	stored, _ := couponRepo.GetCouponByID(context.Background(), "c1")
	if stored.UsageCount != 1 {
		t.Errorf("UsageCount = %d, want 1", stored.UsageCount)
	}
	if n := len(couponRepo.Usages()); n != 1 {
		t.Errorf("usage records = %d, want 1", n)
	}
}

func TestCreateForCheckoutIdempotent(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	in := CheckoutOrder{
		CheckoutSessionID: "cs_test_1",
		SessionID:         "sess-1",
		Items:             []LineItem{{ProductID: "p1", Name: "Mug", Price: 250, Quantity: 2}},
		Subtotal:          500,
		TotalAmount:       500,
	}

	const callers = 16
	var wg sync.WaitGroup
	ids := make([]string, callers)
	created := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order, ok, err := svc.CreateForCheckout(ctx, in)
			if err != nil {
				t.Errorf("CreateForCheckout() error = %v", err)
				return
			}
			ids[i], created[i] = order.ID, ok
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := range ids {
		if ids[i] != ids[0] {
			t.Errorf("order id %d = %s, want %s", i, ids[i], ids[0])
		}
		if created[i] {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("created = %d, want 1", winners)
	}
	if n, _ := repo.CountOrders(ctx, ""); n != 1 {
		t.Errorf("CountOrders() = %d, want 1", n)
	}

	order, _ := svc.Get(ctx, ids[0])
	if order.Status != StatusCompleted || order.PaymentMethod != PaymentMethodStripe {
		t.Errorf("checkout order = %+v, want completed stripe order", order)
	}
}

func TestUpdateStatus(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, nil)
	ctx := context.Background()
	order, err := svc.Create(ctx, sampleOrder(), "u1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, order.ID, StatusDelivered, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("UpdateStatus(delivered) error = %v, want %v", err, ErrInvalidTransition)
	}
	if _, err := svc.UpdateStatus(ctx, order.ID, Status("bogus"), ""); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("UpdateStatus(bogus) error = %v, want %v", err, ErrInvalidStatus)
	}
	if _, err := svc.UpdateStatus(ctx, "missing", StatusShipped, ""); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("UpdateStatus(missing) error = %v, want %v", err, ErrOrderNotFound)
	}

	for _, next := range []Status{StatusConfirmed, StatusShipped, StatusShipped, StatusDelivered} {
		updated, err := svc.UpdateStatus(ctx, order.ID, next, "")
		if err != nil {
			t.Fatalf("UpdateStatus(%s) error = %v", next, err)
		}
		if updated.Status != next {
			t.Errorf("UpdateStatus(%s).Status = %s", next, updated.Status)
		}
	}

	track, err := svc.Track(ctx, order.ID)
	if err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	// pending, confirmed, shipped, delivered: the repeated shipped added nothing.
	if len(track.Timeline) != 4 {
		t.Errorf("Track().Timeline has %d entries, want 4", len(track.Timeline))
	}
	if track.Status != StatusDelivered {
		t.Errorf("Track().Status = %s, want delivered", track.Status)
	}
}

func TestListAndAnalytics(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	day := time.Now().UTC().Truncate(24 * time.Hour).Add(-47 * time.Hour)
	seed := []Order{
		{ID: "o1", UserID: "u1", Status: StatusPending, TotalAmount: 100, CreatedAt: day,
			Items: []LineItem{{ProductID: "p1", Quantity: 1}}},
		{ID: "o2", UserID: "u1", Status: StatusDelivered, TotalAmount: 250.5, CreatedAt: day.Add(time.Minute),
			Items: []LineItem{{ProductID: "p2", Quantity: 1}}},
		{ID: "o3", UserID: "u2", Status: StatusCancelled, TotalAmount: 999, CreatedAt: day.Add(24 * time.Hour)},
		{ID: "o4", UserID: "u2", Status: StatusPending, TotalAmount: 50, CreatedAt: day.AddDate(0, 0, -60)},
	}
	for _, o := range seed {
		if err := repo.CreateOrder(ctx, o); err != nil {
			t.Fatalf("CreateOrder() error = %v", err)
		}
	}

	page, err := svc.List(ctx, ListFilter{Status: StatusPending, Limit: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 2 || len(page.Orders) != 1 || page.Orders[0].ID != "o1" || page.PerPage != 1 {
		t.Errorf("List() = %+v", page)
	}
	if _, err := svc.List(ctx, ListFilter{Status: "nope"}); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("List(nope) error = %v, want %v", err, ErrInvalidStatus)
	}

	mine, _ := svc.ListByUser(ctx, "u1")
	if len(mine) != 2 || mine[0].ID != "o2" {
		t.Errorf("ListByUser() = %+v, want o2 then o1", mine)
	}

	total, _ := svc.TotalSales(ctx)
	if total != 400.5 {
		t.Errorf("TotalSales() = %v, want 400.5", total)
	}

	sales, err := svc.SalesAnalytics(ctx, 30)
	if err != nil {
		t.Fatalf("SalesAnalytics() error = %v", err)
	}
	if len(sales) != 2 || sales[0].OrderCount != 2 || sales[0].TotalSales != 350.5 {
		t.Errorf("SalesAnalytics() = %+v", sales)
	}

	purchased, _ := svc.HasPurchased(ctx, "u1", "p2")
	pending, _ := svc.HasPurchased(ctx, "u1", "p1")
	if !purchased || pending {
		t.Errorf("HasPurchased() = %v/%v, want true/false", purchased, pending)
	}
}
