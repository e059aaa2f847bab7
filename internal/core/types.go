package core

import "tracefood/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	FoodLot            = domain.FoodLot
	LotEvent           = domain.LotEvent
	InitialMetadata    = domain.InitialMetadata
	EventDetails       = domain.EventDetails
	StageRegistry      = domain.StageRegistry
	PaymentStatus      = domain.PaymentStatus
	PaymentIntent      = domain.PaymentIntent
	Amount             = domain.Amount
	Snapshot           = domain.Snapshot
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
)

const (
	EntityLot           = domain.EntityLot
	EntityStageRegistry = domain.EntityStageRegistry
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
)

const (
	PaymentPending   = domain.PaymentPending
	PaymentFullyPaid = domain.PaymentFullyPaid
)

// MintRequest carries the caller-supplied fields of a new lot. The
// originator is never part of the request; it is the authenticated caller.
type MintRequest struct {
	LotID           string          `json:"lot_id"`
	Description     string          `json:"description"`
	InitialMetadata InitialMetadata `json:"initial_metadata"`
}

// ConfirmRequest records a custodian taking over a lot.
type ConfirmRequest struct {
	LotID        string        `json:"lot_id"`
	StageName    string        `json:"stage_name"`
	EventDetails *EventDetails `json:"event_details,omitempty"`
}

// InitializeRequest installs the stage registry. Null values mark terminal stages.
type InitializeRequest struct {
	StageTransitions StageRegistry `json:"stage_transitions"`
}
