package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lilgiftcorner/server/internal/logger"
	"github.com/lilgiftcorner/server/internal/money"
	"github.com/lilgiftcorner/server/internal/products"
)

// ErrInvalidQuantity is returned for a quantity below one.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// ErrMissingSession is returned when a request has no session id.
var ErrMissingSession = errors.New("session_id is required")

// AddInput is the payload of Add.
type AddInput struct {
	SessionID string `json:"session_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UserID    string `json:"user_id,omitempty"`
}

// Line is a cart line resolved against the live catalog.
type Line struct {
	ID         string           `json:"id"`
	CartItemID string           `json:"cart_item_id"`
	ProductID  string           `json:"product_id"`
	Quantity   int              `json:"quantity"`
	Product    products.Product `json:"product"`
	ItemTotal  float64          `json:"item_total"`
}

// View is a session's cart priced at current product prices.
type View struct {
	SessionID string  `json:"-"`
	Items     []Line  `json:"items"`
	Total     float64 `json:"total"`
	ItemCount int     `json:"item_count"`
	// UserID is the first user id found on the session's lines.
	UserID string `json:"-"`
}

// Service implements the cart operations.
type Service struct {
	repo     Repository
	products products.Repository
}

// NewService creates a cart service.
func NewService(repo Repository, catalog products.Repository) *Service {
	return &Service{repo: repo, products: catalog}
}

// Add merges quantity into the session's line for the product.
func (s *Service) Add(ctx context.Context, in AddInput) (Item, error) {
	if strings.TrimSpace(in.SessionID) == "" {
		return Item{}, ErrMissingSession
	}
	if in.Quantity < 1 {
		return Item{}, ErrInvalidQuantity
	}
	if _, err := s.products.GetProduct(ctx, in.ProductID); err != nil {
		return Item{}, err
	}

	item, err := s.repo.AddQuantity(ctx, Item{
		ProductID: in.ProductID,
		SessionID: in.SessionID,
		UserID:    in.UserID,
		Quantity:  in.Quantity,
	})
	if err != nil {
		return Item{}, err
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("session_id", in.SessionID).
		Str("product_id", in.ProductID).
		Int("quantity", item.Quantity).
		Msg("cart.item_added")
	return item, nil
}

// Get returns the session's cart. Lines whose product no longer resolves are dropped
// from both the items and the total.
func (s *Service) Get(ctx context.Context, sessionID string) (View, error) {
	items, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return View{}, err
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	catalog, err := s.products.GetProducts(ctx, ids)
	if err != nil {
		return View{}, fmt.Errorf("resolve cart products: %w", err)
	}

	view := View{SessionID: sessionID, Items: make([]Line, 0, len(items))}
	var total float64
	for _, item := range items {
		if view.UserID == "" && item.UserID != "" {
			view.UserID = item.UserID
		}
		product, ok := catalog[item.ProductID]
		if !ok {
			continue
		}
		itemTotal := money.Multiply(product.Price, item.Quantity)
		total += itemTotal
		view.Items = append(view.Items, Line{
			ID:         item.ID,
			CartItemID: item.ID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			Product:    product,
			ItemTotal:  itemTotal,
		})
	}
	view.Total = money.Round(total)
	view.ItemCount = len(view.Items)
	return view, nil
}

// UpdateQuantity sets the quantity of a line.
func (s *Service) UpdateQuantity(ctx context.Context, itemID string, quantity int) (Item, error) {
	if quantity < 1 {
		return Item{}, ErrInvalidQuantity
	}
	return s.repo.SetQuantity(ctx, itemID, quantity)
}

// UpdateProductQuantity sets the quantity of the session's line for a product.
func (s *Service) UpdateProductQuantity(ctx context.Context, in AddInput) (Item, error) {
	if in.Quantity < 1 {
		return Item{}, ErrInvalidQuantity
	}
	if _, err := s.products.GetProduct(ctx, in.ProductID); err != nil {
		return Item{}, err
	}
	existing, err := s.repo.FindItem(ctx, in.SessionID, in.ProductID)
	if err != nil {
		return Item{}, err
	}
	return s.repo.SetQuantity(ctx, existing.ID, in.Quantity)
}

// Remove deletes a line.
func (s *Service) Remove(ctx context.Context, itemID string) error {
	return s.repo.DeleteItem(ctx, itemID)
}

// Clear empties a session's cart.
func (s *Service) Clear(ctx context.Context, sessionID string) (int64, error) {
	return s.repo.ClearSession(ctx, sessionID)
}
