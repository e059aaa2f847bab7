// Package domain defines the custody records, value types, and rule
// evaluation primitives used by tracefood.
package domain

import "time"

// EntityType identifies the type of record stored in the contract state.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityLot identifies a food lot custody record.
	EntityLot EntityType = "lot"
	// EntityStageRegistry identifies the one-time stage transition mapping.
	EntityStageRegistry EntityType = "stage_registry"
)

// InitialStage is the reserved harvest stage every lot is minted into.
const InitialStage = "Cosecha"

// HarvestNote is the fixed system note attached to the first event of every lot.
const HarvestNote = "Lot registered at harvest."

// PaymentStatus tracks whether the originator has been paid for a lot.
type PaymentStatus string

// Payment statuses. The only legal transition is Pending -> Fully Paid.
const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentFullyPaid PaymentStatus = "Fully Paid"
)

// Valid reports whether the status is a known value.
func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s == PaymentFullyPaid
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// InitialMetadata is captured at harvest and never changes afterwards.
type InitialMetadata struct {
	CropType       string   `json:"crop_type"`
	FarmLocation   string   `json:"farm_location"`
	Certifications []string `json:"certifications,omitempty"`
}

// EventDetails carries the optional free-text fields a custodian may attach
// when confirming a stage. Each field is independently optional.
type EventDetails struct {
	Location *string `json:"location,omitempty"`
	Notes    *string `json:"notes,omitempty"`
	PhotoURL *string `json:"photo_url,omitempty"`
}

// LotEvent is one immutable entry in a lot's custody history.
type LotEvent struct {
	Stage     string  `json:"stage"`
	ActorID   string  `json:"actor_id"`
	Timestamp uint64  `json:"timestamp"` // nanoseconds, block time
	Location  *string `json:"location,omitempty"`
	Notes     *string `json:"notes,omitempty"`
	PhotoURL  *string `json:"photo_url,omitempty"`
}

// FoodLot is the custody record of a single lot.
type FoodLot struct {
	LotID               string          `json:"lot_id"`
	FarmerID            string          `json:"farmer_id"`
	Description         string          `json:"description"`
	InitialMetadata     InitialMetadata `json:"initial_metadata"`
	Events              []LotEvent      `json:"events"`
	CurrentStage        string          `json:"current_stage"`
	ExpectedNextActorID *string         `json:"expected_next_actor_id"`
	PaymentStatus       PaymentStatus   `json:"payment_status"`
}

// Terminal reports whether no further confirmations can be authorized.
func (l FoodLot) Terminal() bool {
	return l.ExpectedNextActorID == nil
}

// LastEvent returns the most recent custody event.
func (l FoodLot) LastEvent() (LotEvent, bool) {
	if len(l.Events) == 0 {
		return LotEvent{}, false
	}
	return l.Events[len(l.Events)-1], true
}

// AwaitingActor reports whether actor is the account expected to confirm next.
func (l FoodLot) AwaitingActor(actor string) bool {
	return l.ExpectedNextActorID != nil && *l.ExpectedNextActorID == actor
}

// CloneLot returns a deep copy so callers never share slices or pointers with stored state.
func CloneLot(l FoodLot) FoodLot {
	cp := l
	cp.InitialMetadata.Certifications = cloneStrings(l.InitialMetadata.Certifications)
	if l.Events != nil {
		cp.Events = make([]LotEvent, len(l.Events))
		for i, ev := range l.Events {
			cp.Events[i] = cloneEvent(ev)
		}
	}
	cp.ExpectedNextActorID = cloneStringPtr(l.ExpectedNextActorID)
	return cp
}

func cloneEvent(ev LotEvent) LotEvent {
	cp := ev
	cp.Location = cloneStringPtr(ev.Location)
	cp.Notes = cloneStringPtr(ev.Notes)
	cp.PhotoURL = cloneStringPtr(ev.PhotoURL)
	return cp
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// PaymentIntent is the outgoing instruction to pay a lot's originator. The
// engine decides when to emit one; settlement is the host's concern.
type PaymentIntent struct {
	ID        string    `json:"id"`
	LotID     string    `json:"lot_id"`
	Recipient string    `json:"recipient"`
	Amount    Amount    `json:"amount"`
	Stage     string    `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
}

// Change describes a mutation applied within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	ID     string
	Before *FoodLot
	After  *FoodLot
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported modifications captured in the change set.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
