package core

import "tracefood/pkg/domain"

// NewRulesEngine returns an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine returns an engine with the built-in custody rules.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(LotIntegrityRule())
	engine.Register(CustodyTransitionRule())
	return engine
}

func lotChanges(changes []Change) []Change {
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		if c.Entity == EntityLot && c.After != nil {
			out = append(out, c)
		}
	}
	return out
}

func blockViolation(rule string, lotID, message string) Violation {
	return Violation{
		Rule:     rule,
		Severity: SeverityBlock,
		Message:  message,
		Entity:   EntityLot,
		EntityID: lotID,
	}
}
