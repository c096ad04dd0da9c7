package checkout

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps transactions in process. The mutex gives each method the same
// compare-and-swap semantics as the MongoDB store.
type MemoryRepository struct {
	mu  sync.Mutex
	txs map[string]Transaction // by checkout session id
}

// NewMemoryRepository creates an empty in-memory transaction store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{txs: make(map[string]Transaction)}
}

func (r *MemoryRepository) Create(_ context.Context, tx Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs[tx.CheckoutSessionID] = tx
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, checkoutSessionID string) (Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[checkoutSessionID]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return tx, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, from Transaction, status Status, payment PaymentStatus, now time.Time) (Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[from.CheckoutSessionID]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	if tx.Status != from.Status || tx.PaymentStatus != from.PaymentStatus || tx.PaymentStatus == PaymentPaid {
		return tx, nil
	}
	tx.Status = status
	tx.PaymentStatus = payment
	tx.UpdatedAt = now
	r.txs[tx.CheckoutSessionID] = tx
	return tx, nil
}

func (r *MemoryRepository) MarkPaid(_ context.Context, checkoutSessionID string, status Status, now, leaseUntil time.Time) (Transaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[checkoutSessionID]
	if !ok {
		return Transaction{}, false, ErrTransactionNotFound
	}
	if tx.PaymentStatus == PaymentPaid {
		return tx, false, nil
	}
	paidAt := now
	tx.Status = status
	tx.PaymentStatus = PaymentPaid
	tx.PaidAt = &paidAt
	tx.FinalizeLeaseUntil = leaseUntil
	tx.UpdatedAt = now
	r.txs[checkoutSessionID] = tx
	return tx, true, nil
}

func (r *MemoryRepository) LinkOrder(_ context.Context, checkoutSessionID, orderID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[checkoutSessionID]
	if !ok {
		return ErrTransactionNotFound
	}
	if tx.OrderID == "" {
		tx.OrderID = orderID
		tx.UpdatedAt = now
		r.txs[checkoutSessionID] = tx
	}
	return nil
}

func (r *MemoryRepository) ClaimRepair(_ context.Context, checkoutSessionID string, now, leaseUntil time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[checkoutSessionID]
	if !ok {
		return false, ErrTransactionNotFound
	}
	if tx.PaymentStatus != PaymentPaid || tx.OrderID != "" || tx.FinalizeLeaseUntil.After(now) {
		return false, nil
	}
	tx.FinalizeLeaseUntil = leaseUntil
	tx.UpdatedAt = now
	r.txs[checkoutSessionID] = tx
	return true, nil
}
