// Package orders provides a stand-in order-status collaborator. The real
// order service lives in another deployment; this in-memory lister backs dev
// wiring and tests.
package orders

import (
	"context"
	"sync"

	"mercato/internal/vendorapp/models"
	id "mercato/pkg/domain"
)

// InMemoryLister serves in-flight order summaries from a map.
type InMemoryLister struct {
	mu     sync.RWMutex
	orders map[id.AccountID][]models.OrderSummary
}

func NewInMemoryLister() *InMemoryLister {
	return &InMemoryLister{orders: make(map[id.AccountID][]models.OrderSummary)}
}

// Set replaces the in-flight orders for an account.
func (l *InMemoryLister) Set(accountID id.AccountID, summaries []models.OrderSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders[accountID] = summaries
}

func (l *InMemoryLister) InFlightByAccount(_ context.Context, accountID id.AccountID) ([]models.OrderSummary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summaries := l.orders[accountID]
	out := make([]models.OrderSummary, len(summaries))
	copy(out, summaries)
	return out, nil
}
