package domain

import "context"

// Transaction exposes the state operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	Registry() (StageRegistry, bool)
	InitializeRegistry(StageRegistry) error
	FindLot(id string) (FoodLot, bool)
	CreateLot(FoodLot) (FoodLot, error)
	UpdateLot(id string, mutator func(*FoodLot) error) (FoodLot, error)
}

// TransactionView provides read-only access to snapshot data for rules and queries.
type TransactionView interface {
	Registry() (StageRegistry, bool)
	FindLot(id string) (FoodLot, bool)
	ListLots() []FoodLot
	LotIDs() []string
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetLot(id string) (FoodLot, bool)
	LotIDs() []string
	ExportState() Snapshot
}

// Snapshot is the serialized contract state: exactly three top-level slots.
type Snapshot struct {
	StageTransitions StageRegistry      `json:"stage_transitions"`
	Lots             map[string]FoodLot `json:"lots"`
	LotIDs           []string           `json:"lot_ids"`
}

// Initialized reports whether the snapshot carries a stage registry.
func (s Snapshot) Initialized() bool {
	return s.StageTransitions != nil
}

// CloneSnapshot deep-copies a snapshot.
func CloneSnapshot(s Snapshot) Snapshot {
	out := Snapshot{
		StageTransitions: s.StageTransitions.Clone(),
		Lots:             make(map[string]FoodLot, len(s.Lots)),
		LotIDs:           cloneStrings(s.LotIDs),
	}
	for id, lot := range s.Lots {
		out.Lots[id] = CloneLot(lot)
	}
	if out.LotIDs == nil {
		out.LotIDs = []string{}
	}
	return out
}
