package core

import (
	"context"
	"fmt"
	"slices"

	"tracefood/pkg/domain"
)

// CustodyTransitionRule keeps the custody fields consistent with the stage
// registry: the expected actor follows the registry, payment only moves
// forward and coincides with the terminal stage, and originator data is
// immutable.
func CustodyTransitionRule() domain.Rule {
	return custodyTransitionRule{}
}

type custodyTransitionRule struct{}

func (custodyTransitionRule) Name() string { return "custody_transition" }

func (r custodyTransitionRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	reg, initialized := view.Registry()
	for _, change := range lotChanges(changes) {
		lot := change.After
		if initialized {
			want := reg.ExpectedAfter(lot.CurrentStage)
			if !optionalEqual(want, lot.ExpectedNextActorID) {
				res.Violations = append(res.Violations, blockViolation(r.Name(), lot.LotID,
					fmt.Sprintf("expected actor %s does not follow registry entry %s for stage %q",
						describeActor(lot.ExpectedNextActorID), describeActor(want), lot.CurrentStage)))
			}
		}
		if lot.Terminal() != (lot.PaymentStatus == domain.PaymentFullyPaid) {
			res.Violations = append(res.Violations, blockViolation(r.Name(), lot.LotID,
				fmt.Sprintf("payment status %q inconsistent with terminal=%t", lot.PaymentStatus, lot.Terminal())))
		}
		before := change.Before
		if before == nil {
			continue
		}
		if before.PaymentStatus == domain.PaymentFullyPaid && lot.PaymentStatus != domain.PaymentFullyPaid {
			res.Violations = append(res.Violations, blockViolation(r.Name(), lot.LotID, "payment status cannot regress"))
		}
		if before.FarmerID != lot.FarmerID || before.Description != lot.Description || !metadataEqual(before.InitialMetadata, lot.InitialMetadata) {
			res.Violations = append(res.Violations, blockViolation(r.Name(), lot.LotID, "originator data is immutable"))
		}
	}
	return res, nil
}

func metadataEqual(a, b domain.InitialMetadata) bool {
	return a.CropType == b.CropType && a.FarmLocation == b.FarmLocation && slices.Equal(a.Certifications, b.Certifications)
}

func describeActor(actor *string) string {
	if actor == nil {
		return "<terminal>"
	}
	return fmt.Sprintf("%q", *actor)
}
