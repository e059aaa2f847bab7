// Package memory provides an in-memory implementation of the contract state
// store used for tests, ephemeral environments, and as the transactional core
// of the durable backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tracefood/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// FoodLot aliases domain.FoodLot for in-memory persistence operations.
	FoodLot = domain.FoodLot
	// StageRegistry aliases domain.StageRegistry.
	StageRegistry = domain.StageRegistry
	// Snapshot aliases domain.Snapshot, the serialized three-slot state.
	Snapshot = domain.Snapshot
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// CommitHook receives the state a transaction is about to publish. A non-nil
// error aborts the commit and leaves the previous state in place.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// Option configures a Store.
type Option func(*Store)

// WithCommitHook installs a hook that runs after rule evaluation and before
// the new state becomes visible.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) {
		s.hook = hook
	}
}

type memoryState struct {
	registry StageRegistry
	lots     map[string]FoodLot
	lotIDs   []string
}

func newMemoryState() memoryState {
	return memoryState{lots: make(map[string]FoodLot)}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		registry: s.registry.Clone(),
		lots:     make(map[string]FoodLot, len(s.lots)),
		lotIDs:   append([]string(nil), s.lotIDs...),
	}
	for id, lot := range s.lots {
		out.lots[id] = domain.CloneLot(lot)
	}
	return out
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	return domain.CloneSnapshot(Snapshot{
		StageTransitions: state.registry,
		Lots:             state.lots,
		LotIDs:           state.lotIDs,
	})
}

// memoryStateFromSnapshot rebuilds state from a snapshot. Index entries with
// no backing record are dropped and records missing from the index are
// appended in lexical order to keep both slots consistent.
func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	state.registry = s.StageTransitions.Clone()
	seen := make(map[string]struct{}, len(s.LotIDs))
	for _, id := range s.LotIDs {
		lot, ok := s.Lots[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		state.lots[id] = domain.CloneLot(lot)
		state.lotIDs = append(state.lotIDs, id)
	}
	var orphans []string
	for id := range s.Lots {
		if _, ok := seen[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		lot := s.Lots[id]
		lot.LotID = id
		state.lots[id] = domain.CloneLot(lot)
		state.lotIDs = append(state.lotIDs, id)
	}
	return state
}

// Store provides an in-memory transactional store for the custody contract.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	hook   CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot. The
// commit hook is not invoked; callers loading durable state use this to seed
// the cache.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// RunInTransaction applies fn to a private copy of the state. The copy is
// published only when fn succeeds, no rule blocks, and the commit hook
// accepts it.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: s.state.clone()}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.hook != nil && len(tx.changes) > 0 {
		if err := s.hook(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return Result{}, fmt.Errorf("commit: %w", err)
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

// GetLot returns a lot by id.
func (s *Store) GetLot(id string) (FoodLot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lot, ok := s.state.lots[id]
	if !ok {
		return FoodLot{}, false
	}
	return domain.CloneLot(lot), true
}

// LotIDs returns every lot id in creation order.
func (s *Store) LotIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.state.lotIDs...)
}

type transaction struct {
	state   memoryState
	changes []Change
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Registry returns the stage registry when one has been installed.
func (tx *transaction) Registry() (StageRegistry, bool) {
	return lookupRegistry(&tx.state)
}

// InitializeRegistry installs the one-time stage registry. A nil registry is
// stored as an empty one so the initialized state is still recorded.
func (tx *transaction) InitializeRegistry(reg StageRegistry) error {
	if tx.state.registry != nil {
		return domain.AlreadyInitializedError{}
	}
	if reg == nil {
		reg = StageRegistry{}
	}
	tx.state.registry = reg.Clone()
	tx.recordChange(Change{Entity: domain.EntityStageRegistry, Action: domain.ActionCreate})
	return nil
}

// FindLot exposes lot lookup within the transaction scope.
func (tx *transaction) FindLot(id string) (FoodLot, bool) {
	lot, ok := tx.state.lots[id]
	if !ok {
		return FoodLot{}, false
	}
	return domain.CloneLot(lot), true
}

// CreateLot stores a new lot and appends its id to the creation index.
func (tx *transaction) CreateLot(lot FoodLot) (FoodLot, error) {
	if lot.LotID == "" {
		return FoodLot{}, fmt.Errorf("lot id is required")
	}
	if _, exists := tx.state.lots[lot.LotID]; exists {
		return FoodLot{}, domain.DuplicateLotError{LotID: lot.LotID}
	}
	tx.state.lots[lot.LotID] = domain.CloneLot(lot)
	tx.state.lotIDs = append(tx.state.lotIDs, lot.LotID)
	after := domain.CloneLot(lot)
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionCreate, ID: lot.LotID, After: &after})
	return domain.CloneLot(lot), nil
}

// UpdateLot mutates a lot using the provided mutator function. The lot id is
// immutable.
func (tx *transaction) UpdateLot(id string, mutator func(*FoodLot) error) (FoodLot, error) {
	current, ok := tx.state.lots[id]
	if !ok {
		return FoodLot{}, domain.LotNotFoundError{LotID: id}
	}
	before := domain.CloneLot(current)
	working := domain.CloneLot(current)
	if err := mutator(&working); err != nil {
		return FoodLot{}, err
	}
	working.LotID = id
	tx.state.lots[id] = domain.CloneLot(working)
	after := domain.CloneLot(working)
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionUpdate, ID: id, Before: &before, After: &after})
	return domain.CloneLot(working), nil
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) Registry() (StageRegistry, bool) {
	return lookupRegistry(v.state)
}

func (v transactionView) FindLot(id string) (FoodLot, bool) {
	lot, ok := v.state.lots[id]
	if !ok {
		return FoodLot{}, false
	}
	return domain.CloneLot(lot), true
}

// ListLots returns lots in creation order.
func (v transactionView) ListLots() []FoodLot {
	out := make([]FoodLot, 0, len(v.state.lotIDs))
	for _, id := range v.state.lotIDs {
		if lot, ok := v.state.lots[id]; ok {
			out = append(out, domain.CloneLot(lot))
		}
	}
	return out
}

func (v transactionView) LotIDs() []string {
	return append([]string{}, v.state.lotIDs...)
}

func lookupRegistry(state *memoryState) (StageRegistry, bool) {
	if state.registry == nil {
		return nil, false
	}
	return state.registry.Clone(), true
}
