package core

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"tracefood/pkg/domain"
)

func defaultPayout() Amount {
	return domain.MustParseAmount(domain.DefaultPayoutYocto)
}

// blockTime converts t to the nanosecond timestamp stored on events.
func blockTime(t time.Time) uint64 {
	ns := t.UnixNano()
	if ns < 0 {
		return 0
	}
	return uint64(ns)
}

func requireField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return domain.InvalidArgumentError{Field: field, Reason: "is required"}
	}
	return nil
}

// mintLot creates a lot in the harvest stage owned by caller.
func mintLot(tx domain.Transaction, caller string, req MintRequest, now uint64) (FoodLot, error) {
	if _, exists := tx.FindLot(req.LotID); exists {
		return FoodLot{}, domain.DuplicateLotError{LotID: req.LotID}
	}
	reg, _ := tx.Registry()
	if !reg.Defined(domain.InitialStage) {
		return FoodLot{}, domain.MisconfiguredRegistryError{Stage: domain.InitialStage, Reason: "is not configured"}
	}
	next, ok := reg.NextActor(domain.InitialStage)
	if !ok {
		return FoodLot{}, domain.MisconfiguredRegistryError{Stage: domain.InitialStage, Reason: "has no next actor"}
	}
	note := domain.HarvestNote
	lot := FoodLot{
		LotID:           req.LotID,
		FarmerID:        caller,
		Description:     req.Description,
		InitialMetadata: req.InitialMetadata,
		Events: []LotEvent{{
			Stage:     domain.InitialStage,
			ActorID:   caller,
			Timestamp: now,
			Notes:     &note,
		}},
		CurrentStage:        domain.InitialStage,
		ExpectedNextActorID: &next,
		PaymentStatus:       PaymentPending,
	}
	return tx.CreateLot(lot)
}

// transition is the outcome of a confirmation inside a transaction.
type transition struct {
	lot          FoodLot
	intent       *PaymentIntent
	unknownStage bool
	clamped      bool
}

// confirmStage appends a custody event and advances the lot. When the lot
// becomes terminal while still Pending, exactly one payment intent is built
// and the lot is marked Fully Paid.
func confirmStage(tx domain.Transaction, caller string, req ConfirmRequest, now uint64, payout Amount, createdAt time.Time) (transition, error) {
	current, ok := tx.FindLot(req.LotID)
	if !ok {
		return transition{}, domain.LotNotFoundError{LotID: req.LotID}
	}
	if !current.AwaitingActor(caller) {
		return transition{}, domain.UnauthorizedActorError{LotID: req.LotID, Caller: caller, Expected: current.ExpectedNextActorID}
	}
	reg, _ := tx.Registry()
	var out transition
	out.unknownStage = !reg.Defined(req.StageName)

	updated, err := tx.UpdateLot(req.LotID, func(lot *FoodLot) error {
		ts := now
		if last, ok := lot.LastEvent(); ok && ts < last.Timestamp {
			ts = last.Timestamp
			out.clamped = true
		}
		event := LotEvent{Stage: req.StageName, ActorID: caller, Timestamp: ts}
		if d := req.EventDetails; d != nil {
			event.Location = d.Location
			event.Notes = d.Notes
			event.PhotoURL = d.PhotoURL
		}
		lot.Events = append(lot.Events, event)
		lot.CurrentStage = req.StageName
		lot.ExpectedNextActorID = reg.ExpectedAfter(req.StageName)
		if lot.Terminal() && lot.PaymentStatus == PaymentPending {
			out.intent = &PaymentIntent{
				ID:        uuid.NewString(),
				LotID:     lot.LotID,
				Recipient: lot.FarmerID,
				Amount:    payout,
				Stage:     req.StageName,
				CreatedAt: createdAt,
			}
			lot.PaymentStatus = PaymentFullyPaid
		}
		return nil
	})
	if err != nil {
		return transition{}, err
	}
	out.lot = updated
	return out, nil
}

// lotsPendingActor returns ids awaiting actor in index order.
func lotsPendingActor(view domain.TransactionView, actor string) []string {
	out := []string{}
	for _, lot := range view.ListLots() {
		if lot.AwaitingActor(actor) {
			out = append(out, lot.LotID)
		}
	}
	return out
}
