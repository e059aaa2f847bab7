// Package settlement consumes the payment intents emitted when a lot reaches
// its terminal stage. Every sink implements core.IntentDispatcher.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"tracefood/internal/core"
	"tracefood/pkg/domain"
)

// ErrAlreadySettled is returned when a lot has already been paid out.
var ErrAlreadySettled = errors.New("settlement: lot already settled")

// Ledger is an in-process balance sheet. Each lot is credited at most once.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]domain.Amount
	settled  map[string]core.PaymentIntent
	order    []string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]domain.Amount),
		settled:  make(map[string]core.PaymentIntent),
	}
}

// Dispatch credits the intent's recipient.
func (l *Ledger) Dispatch(_ context.Context, intent core.PaymentIntent) error {
	if intent.Recipient == "" {
		return fmt.Errorf("settlement: intent %s has no recipient", intent.ID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if prior, ok := l.settled[intent.LotID]; ok {
		return fmt.Errorf("%w: %s (intent %s)", ErrAlreadySettled, intent.LotID, prior.ID)
	}
	l.settled[intent.LotID] = intent
	l.order = append(l.order, intent.LotID)
	l.balances[intent.Recipient] = l.balances[intent.Recipient].Add(intent.Amount)
	return nil
}

// Balance returns the amount credited to account.
func (l *Ledger) Balance(account string) domain.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account]
}

// Accounts returns every credited account in lexical order.
func (l *Ledger) Accounts() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.balances))
	for acct := range l.balances {
		out = append(out, acct)
	}
	sort.Strings(out)
	return out
}

// Settled returns the applied intents in arrival order.
func (l *Ledger) Settled() []core.PaymentIntent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.PaymentIntent, 0, len(l.order))
	for _, lotID := range l.order {
		out = append(out, l.settled[lotID])
	}
	return out
}
