package core

import (
	"context"
	"fmt"

	"tracefood/pkg/domain"
)

// LotIntegrityRule validates the structural invariants of every written lot:
// a non-empty history starting at harvest, a current stage matching the last
// event, a known payment status, and an append-only event log.
func LotIntegrityRule() domain.Rule {
	return lotIntegrityRule{}
}

type lotIntegrityRule struct{}

func (lotIntegrityRule) Name() string { return "lot_integrity" }

func (r lotIntegrityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range lotChanges(changes) {
		lot := change.After
		if len(lot.Events) == 0 {
			res.Violations = append(res.Violations, blockViolation(r.Name(), lot.LotID, "lot has no custody events"))
			continue
		}
		if lot.Events[0].Stage != domain.InitialStage {
			res.Violations = append(res.Violations, blockViolation(r.Name(), lot.LotID,
				fmt.Sprintf("first event stage %q is not %q", lot.Events[0].Stage, domain.InitialStage)))
		}
		if last := lot.Events[len(lot.Events)-1]; last.Stage != lot.CurrentStage {
			res.Violations = append(res.Violations, blockViolation(r.Name(), lot.LotID,
				fmt.Sprintf("current stage %q does not match last event %q", lot.CurrentStage, last.Stage)))
		}
		if !lot.PaymentStatus.Valid() {
			res.Violations = append(res.Violations, blockViolation(r.Name(), lot.LotID,
				fmt.Sprintf("unknown payment status %q", lot.PaymentStatus)))
		}
		if change.Before != nil {
			if msg, ok := historyRewritten(change.Before.Events, lot.Events); ok {
				res.Violations = append(res.Violations, blockViolation(r.Name(), lot.LotID, msg))
			}
		}
	}
	return res, nil
}

func historyRewritten(before, after []domain.LotEvent) (string, bool) {
	if len(after) < len(before) {
		return fmt.Sprintf("event history shrank from %d to %d", len(before), len(after)), true
	}
	for i := range before {
		if !eventsEqual(before[i], after[i]) {
			return fmt.Sprintf("event %d was rewritten", i), true
		}
	}
	return "", false
}

func eventsEqual(a, b domain.LotEvent) bool {
	return a.Stage == b.Stage &&
		a.ActorID == b.ActorID &&
		a.Timestamp == b.Timestamp &&
		optionalEqual(a.Location, b.Location) &&
		optionalEqual(a.Notes, b.Notes) &&
		optionalEqual(a.PhotoURL, b.PhotoURL)
}

func optionalEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
