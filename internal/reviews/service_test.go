package reviews

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lilgiftcorner/server/internal/products"
)

type purchases map[string]bool

func (p purchases) HasPurchased(_ context.Context, userID, productID string) (bool, error) {
	return p[userID+"/"+productID], nil
}

func newTestService() (*Service, *products.MemoryRepository) {
	catalog := products.NewMemoryRepository(
		products.Product{ID: "p1", Name: "Photo Mug", Price: 499},
		products.Product{ID: "p2", Name: "Card", Price: 50},
	)
	return NewService(NewMemoryRepository(), catalog, purchases{"u1/p1": true}), catalog
}

func TestCreateReview(t *testing.T) {
	svc, catalog := newTestService()
	ctx := context.Background()

	first, err := svc.Create(ctx, Author{ID: "u1", Name: "Asha"}, NewReview{ProductID: "p1", Rating: 5, Comment: "Lovely"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !first.VerifiedPurchase || first.Status != StatusApproved {
		t.Errorf("Create() = %+v, want verified and approved", first)
	}
	second, err := svc.Create(ctx, Author{ID: "u2", Name: "Ben"}, NewReview{ProductID: "p1", Rating: 4, Comment: "Nice"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if second.VerifiedPurchase {
		t.Error("VerifiedPurchase = true without a purchase")
	}
	if _, err := svc.Create(ctx, Author{ID: "u3"}, NewReview{ProductID: "p1", Rating: 4, Comment: "Ok"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	product, _ := catalog.GetProduct(ctx, "p1")
	if product.AverageRating != 4.3 || product.TotalReviews != 3 {
		t.Errorf("rating = %v (%d), want 4.3 (3)", product.AverageRating, product.TotalReviews)
	}

	if _, err := svc.Create(ctx, Author{ID: "u1"}, NewReview{ProductID: "p1", Rating: 1, Comment: "Again"}); !errors.Is(err, ErrAlreadyReviewed) {
		t.Errorf("Create() duplicate error = %v, want ErrAlreadyReviewed", err)
	}
}

func TestCreateReviewValidation(t *testing.T) {
	svc, _ := newTestService()
	tests := []struct {
		name string
		in   NewReview
		want error
	}{
		{"rating zero", NewReview{ProductID: "p1", Rating: 0, Comment: "x"}, ErrInvalidReview},
		{"rating six", NewReview{ProductID: "p1", Rating: 6, Comment: "x"}, ErrInvalidReview},
		{"no comment", NewReview{ProductID: "p1", Rating: 3, Comment: "  "}, ErrInvalidReview},
		{"unknown product", NewReview{ProductID: "nope", Rating: 3, Comment: "x"}, products.ErrProductNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), Author{ID: "u1"}, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestListForProductSorts(t *testing.T) {
	repo := NewMemoryRepository()
	catalog := products.NewMemoryRepository(products.Product{ID: "p1", Name: "Mug"})
	svc := NewService(repo, catalog, nil)
	ctx := context.Background()

	base := time.Now()
	for i, rv := range []Review{
		{ID: "r1", Rating: 2, HelpfulCount: 5},
		{ID: "r2", Rating: 5, HelpfulCount: 1},
		{ID: "r3", Rating: 4, HelpfulCount: 9},
		{ID: "r4", Rating: 1, Status: StatusPending},
	} {
		rv.ProductID = "p1"
		rv.UserID = rv.ID
		rv.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if rv.Status == "" {
			rv.Status = StatusApproved
		}
		if err := repo.Create(ctx, rv); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		sort string
		want []string
	}{
		{SortRecent, []string{"r3", "r2", "r1"}},
		{SortHelpful, []string{"r3", "r1", "r2"}},
		{SortRatingHigh, []string{"r2", "r3", "r1"}},
		{SortRatingLow, []string{"r1", "r3", "r2"}},
	}
	for _, tt := range tests {
		t.Run(tt.sort, func(t *testing.T) {
			page, err := svc.ListForProduct(ctx, "p1", tt.sort, 0, 0)
			if err != nil {
				t.Fatalf("ListForProduct() error = %v", err)
			}
			if page.Total != 3 || len(page.Reviews) != 3 {
				t.Fatalf("ListForProduct() total = %d, len = %d, want 3", page.Total, len(page.Reviews))
			}
			for i, id := range tt.want {
				if page.Reviews[i].ID != id {
					t.Errorf("position %d = %s, want %s", i, page.Reviews[i].ID, id)
				}
			}
		})
	}
}

func TestDeleteAndModerate(t *testing.T) {
	svc, catalog := newTestService()
	ctx := context.Background()
	rv, _ := svc.Create(ctx, Author{ID: "u1"}, NewReview{ProductID: "p2", Rating: 4, Comment: "Cute"})
	other, _ := svc.Create(ctx, Author{ID: "u2"}, NewReview{ProductID: "p2", Rating: 2, Comment: "Meh"})

	if err := svc.Delete(ctx, Author{ID: "u2"}, rv.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Delete() by stranger error = %v, want ErrForbidden", err)
	}
	if err := svc.Delete(ctx, Author{ID: "admin", IsAdmin: true}, rv.ID); err != nil {
		t.Errorf("Delete() by admin error = %v", err)
	}
	if p, _ := catalog.GetProduct(ctx, "p2"); p.AverageRating != 2 || p.TotalReviews != 1 {
		t.Errorf("rating after delete = %v (%d), want 2 (1)", p.AverageRating, p.TotalReviews)
	}

	if _, err := svc.UpdateStatus(ctx, other.ID, StatusRejected); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if p, _ := catalog.GetProduct(ctx, "p2"); p.AverageRating != 0 || p.TotalReviews != 0 {
		t.Errorf("rating after reject = %v (%d), want 0 (0)", p.AverageRating, p.TotalReviews)
	}
	if _, err := svc.UpdateStatus(ctx, other.ID, Status("hidden")); !errors.Is(err, ErrInvalidReview) {
		t.Errorf("UpdateStatus(hidden) error = %v, want ErrInvalidReview", err)
	}

	pending, _ := svc.List(ctx, StatusRejected, 0)
	if len(pending) != 1 || pending[0].ID != other.ID {
		t.Errorf("List(rejected) = %+v", pending)
	}

	if err := svc.MarkHelpful(ctx, other.ID); err != nil {
		t.Errorf("MarkHelpful() error = %v", err)
	}
	if err := svc.MarkHelpful(ctx, "missing"); !errors.Is(err, ErrReviewNotFound) {
		t.Errorf("MarkHelpful(missing) error = %v, want ErrReviewNotFound", err)
	}
}
