package core

import (
	"context"
	"time"

	"tracefood/internal/infra/persistence/memory"
	"tracefood/pkg/domain"
)

// Service exposes the custody contract's entry points over a persistent store.
// Mutations take the authenticated caller explicitly; views need none.
type Service struct {
	store      domain.PersistentStore
	logger     Logger
	clock      Clock
	audit      AuditRecorder
	metrics    MetricsRecorder
	tracer     Tracer
	dispatcher IntentDispatcher
	observers  []LotObserver
	payout     Amount
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Service{
		store:      store,
		logger:     cfg.logger,
		clock:      cfg.clock,
		audit:      cfg.audit,
		metrics:    cfg.metrics,
		tracer:     cfg.tracer,
		dispatcher: cfg.dispatcher,
		observers:  cfg.observers,
		payout:     cfg.payout,
	}
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// PayoutAmount reports the fixed amount paid when a lot reaches a terminal stage.
func (s *Service) PayoutAmount() Amount {
	return s.payout
}

// Initialize installs the stage registry. It succeeds exactly once.
func (s *Service) Initialize(ctx context.Context, caller string, transitions StageRegistry) (Result, error) {
	var res Result
	err := s.run(ctx, "initialize", caller, string(EntityStageRegistry), func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			return tx.InitializeRegistry(transitions)
		})
		if err == nil {
			s.logger.Info("stage registry initialized", "stages", len(transitions), "caller", caller)
		}
		return err
	})
	return res, err
}

// MintLot registers a new lot at harvest with caller as originator.
func (s *Service) MintLot(ctx context.Context, caller string, req MintRequest) (FoodLot, Result, error) {
	var (
		created FoodLot
		res     Result
	)
	err := s.run(ctx, "mint_lot", caller, req.LotID, func(ctx context.Context) error {
		if err := requireField("caller", caller); err != nil {
			return err
		}
		if err := requireField("lot_id", req.LotID); err != nil {
			return err
		}
		now := blockTime(s.clock.Now())
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			created, err = mintLot(tx, caller, req, now)
			return err
		})
		if err != nil {
			created = FoodLot{}
			return err
		}
		s.logger.Info("lot minted", "lot_id", created.LotID, "farmer_id", caller, "next_actor", describeActor(created.ExpectedNextActorID))
		s.notify(ctx, created)
		return nil
	})
	return created, res, err
}

// ConfirmStage records caller taking custody of a lot at stageName. A
// terminal transition emits the originator payout after the commit.
func (s *Service) ConfirmStage(ctx context.Context, caller string, req ConfirmRequest) (FoodLot, Result, error) {
	var (
		out transition
		res Result
	)
	err := s.run(ctx, "confirm_stage", caller, req.LotID, func(ctx context.Context) error {
		if err := requireField("caller", caller); err != nil {
			return err
		}
		if err := requireField("lot_id", req.LotID); err != nil {
			return err
		}
		at := s.clock.Now()
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			out, err = confirmStage(tx, caller, req, blockTime(at), s.payout, at)
			return err
		})
		if err != nil {
			out = transition{}
			return err
		}
		if out.unknownStage {
			s.logger.Warn("stage not present in registry", "lot_id", req.LotID, "stage", req.StageName, "caller", caller)
		}
		if out.clamped {
			s.logger.Debug("event timestamp clamped to previous event", "lot_id", req.LotID)
		}
		s.logger.Info("stage confirmed", "lot_id", req.LotID, "stage", req.StageName, "caller", caller, "next_actor", describeActor(out.lot.ExpectedNextActorID))
		if out.intent != nil {
			s.dispatch(ctx, *out.intent)
		}
		s.notify(ctx, out.lot)
		return nil
	})
	return out.lot, res, err
}

// GetLotState returns the lot or nil when it does not exist.
func (s *Service) GetLotState(ctx context.Context, lotID string) (*FoodLot, error) {
	var found *FoodLot
	err := s.run(ctx, "get_lot_state", "", "", func(ctx context.Context) error {
		return s.store.View(ctx, func(v domain.TransactionView) error {
			if lot, ok := v.FindLot(lotID); ok {
				found = &lot
			}
			return nil
		})
	})
	return found, err
}

// GetAllLotIDs returns every lot id in mint order.
func (s *Service) GetAllLotIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.run(ctx, "get_all_lot_ids", "", "", func(ctx context.Context) error {
		return s.store.View(ctx, func(v domain.TransactionView) error {
			ids = v.LotIDs()
			return nil
		})
	})
	return ids, err
}

// LotsPendingActor returns the ids of lots waiting for actor to confirm, in mint order.
func (s *Service) LotsPendingActor(ctx context.Context, actor string) ([]string, error) {
	var ids []string
	err := s.run(ctx, "lots_pending_actor", "", "", func(ctx context.Context) error {
		return s.store.View(ctx, func(v domain.TransactionView) error {
			ids = lotsPendingActor(v, actor)
			return nil
		})
	})
	return ids, err
}

// ExportState returns the serialized contract state.
func (s *Service) ExportState(ctx context.Context) Snapshot {
	var snap Snapshot
	_ = s.run(ctx, "export_state", "", "", func(context.Context) error {
		snap = s.store.ExportState()
		return nil
	})
	return snap
}

// RestoreState replays a snapshot into the store in one transaction: the
// registry first, then every lot in index order. The store must not already
// hold a registry or any of the snapshot's lots.
func (s *Service) RestoreState(ctx context.Context, caller string, snapshot Snapshot) (Result, error) {
	var res Result
	err := s.run(ctx, "restore_state", caller, "", func(ctx context.Context) error {
		snap := domain.CloneSnapshot(snapshot)
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if snap.Initialized() {
				if err := tx.InitializeRegistry(snap.StageTransitions); err != nil {
					return err
				}
			}
			for _, id := range snap.LotIDs {
				lot, ok := snap.Lots[id]
				if !ok {
					return domain.LotNotFoundError{LotID: id}
				}
				lot.LotID = id
				if _, err := tx.CreateLot(lot); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			s.logger.Info("state restored", "lots", len(snap.LotIDs), "initialized", snap.Initialized())
		}
		return err
	})
	return res, err
}

func (s *Service) dispatch(ctx context.Context, intent PaymentIntent) {
	if err := s.dispatcher.Dispatch(ctx, intent); err != nil {
		s.logger.Error("payment intent dispatch failed", "lot_id", intent.LotID, "intent_id", intent.ID, "recipient", intent.Recipient, "error", err)
		return
	}
	s.logger.Info("payment intent dispatched", "lot_id", intent.LotID, "intent_id", intent.ID, "recipient", intent.Recipient, "amount", intent.Amount.String())
}

func (s *Service) notify(ctx context.Context, lot FoodLot) {
	for _, obs := range s.observers {
		obs.LotChanged(ctx, domain.CloneLot(lot))
	}
}

// run wraps an operation with tracing, metrics and, for mutating
// operations, an audit entry.
func (s *Service) run(ctx context.Context, op, caller, entityID string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if meta, ok := auditOperations[op]; ok {
		entry := AuditEntry{
			Operation: op,
			Entity:    meta.entity,
			Action:    meta.action,
			EntityID:  entityID,
			Actor:     caller,
			Status:    AuditStatusSuccess,
			Duration:  duration,
			Timestamp: s.clock.Now(),
		}
		if err != nil {
			entry.Status = AuditStatusError
			entry.Error = err.Error()
			s.logger.Warn("operation failed", "operation", op, "entity_id", entityID, "caller", caller, "kind", domain.ErrorKind(err), "error", err)
		}
		s.audit.Record(ctx, entry)
	}
	return err
}

type auditMetadata struct {
	entity EntityType
	action Action
}

var auditOperations = map[string]auditMetadata{
	"initialize":    {entity: EntityStageRegistry, action: ActionCreate},
	"mint_lot":      {entity: EntityLot, action: ActionCreate},
	"confirm_stage": {entity: EntityLot, action: ActionUpdate},
	"restore_state": {entity: EntityLot, action: ActionCreate},
}
