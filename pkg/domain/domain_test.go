package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}})
	if result.HasBlocking() {
		t.Fatalf("expected no blocking violations")
	}
	result.Merge(Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock, Message: "boom"}}})
	if !result.HasBlocking() {
		t.Fatalf("expected blocking violation")
	}
	err := RuleViolationError{Result: result}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected blocking message in error, got %q", err.Error())
	}
}

func TestResultMergeEmptyInput(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	if len(original.Violations) != 1 || original.Violations[0].Rule != "existing" {
		t.Fatalf("expected original violations to remain, got %+v", original.Violations)
	}
}

func TestRulesEngineEvaluate(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{"warn"})
	engine.Register(nil)
	res, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected violation")
	}
	if got := engine.Rules(); len(got) != 1 || got[0] != "warn" {
		t.Fatalf("unexpected rules %v", got)
	}
}

func TestRulesEngineEvaluatePropagatesError(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(errorRule{})
	if _, err := engine.Evaluate(context.Background(), emptyView{}, nil); err == nil {
		t.Fatalf("expected rule error")
	}
}

type staticRule struct{ name string }

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return Result{Violations: []Violation{{Rule: r.name, Severity: SeverityWarn}}}, nil
}

type errorRule struct{}

func (errorRule) Name() string { return "error" }

func (errorRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return Result{}, fmt.Errorf("rule failed")
}

type emptyView struct{}

func (emptyView) Registry() (StageRegistry, bool) { return nil, false }
func (emptyView) FindLot(string) (FoodLot, bool)  { return FoodLot{}, false }
func (emptyView) ListLots() []FoodLot             { return nil }
func (emptyView) LotIDs() []string                { return nil }

func TestStageRegistryLookups(t *testing.T) {
	reg := StageRegistry{
		"Cosecha": strPtr("distributor.testnet"),
		"Final":   nil,
		"Blank":   strPtr(""),
	}
	if actor, ok := reg.NextActor("Cosecha"); !ok || actor != "distributor.testnet" {
		t.Fatalf("unexpected next actor %q %v", actor, ok)
	}
	for _, stage := range []string{"Final", "Blank", "Missing"} {
		if _, ok := reg.NextActor(stage); ok {
			t.Fatalf("expected %s to be terminal", stage)
		}
		if reg.ExpectedAfter(stage) != nil {
			t.Fatalf("expected nil expected actor for %s", stage)
		}
	}
	if !reg.Defined("Final") || reg.Defined("Missing") {
		t.Fatalf("unexpected Defined results")
	}
	if got := reg.Stages(); strings.Join(got, ",") != "Blank,Cosecha,Final" {
		t.Fatalf("unexpected stage order %v", got)
	}
}

func TestStageRegistryCloneIsDeep(t *testing.T) {
	reg := NewStageRegistry(map[string]string{"Cosecha": "b", "End": ""})
	if reg["End"] != nil {
		t.Fatalf("expected empty actor to become terminal")
	}
	cp := reg.Clone()
	*cp["Cosecha"] = "mutated"
	if *reg["Cosecha"] != "b" {
		t.Fatalf("clone shares pointers with original")
	}
	var nilReg StageRegistry
	if nilReg.Clone() != nil {
		t.Fatalf("expected nil clone of nil registry")
	}
}

func TestStageRegistryJSONKeepsNulls(t *testing.T) {
	var reg StageRegistry
	if err := json.Unmarshal([]byte(`{"Cosecha":"B","Stage2":null}`), &reg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reg.Defined("Stage2") || reg["Stage2"] != nil {
		t.Fatalf("expected Stage2 to be a defined terminal entry")
	}
	raw, err := json.Marshal(reg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"Stage2":null`) {
		t.Fatalf("expected null to survive, got %s", raw)
	}
}

func TestAmountParseAddAndJSON(t *testing.T) {
	payout := MustParseAmount(DefaultPayoutYocto)
	sum := payout.Add(payout)
	if sum.String() != "200000000000000000000000" {
		t.Fatalf("unexpected sum %s", sum)
	}
	if payout.String() != DefaultPayoutYocto {
		t.Fatalf("add mutated operand: %s", payout)
	}
	if !ZeroAmount().IsZero() || payout.IsZero() {
		t.Fatalf("unexpected zero checks")
	}
	if sum.Cmp(payout) <= 0 {
		t.Fatalf("expected sum > payout")
	}
	raw, err := json.Marshal(payout)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `"`+DefaultPayoutYocto+`"` {
		t.Fatalf("unexpected json %s", raw)
	}
	var decoded Amount
	if err := json.Unmarshal([]byte(`12345`), &decoded); err != nil || decoded.String() != "12345" {
		t.Fatalf("expected bare number to decode, got %s (%v)", decoded, err)
	}
	if err := json.Unmarshal([]byte(`"abc"`), &decoded); err == nil {
		t.Fatalf("expected invalid amount error")
	}
	if _, err := ParseAmount("-1"); err == nil {
		t.Fatalf("expected negative amount error")
	}
}

func TestCloneLotIsDeep(t *testing.T) {
	lot := FoodLot{
		LotID:               "lot-1",
		InitialMetadata:     InitialMetadata{Certifications: []string{"Organic"}},
		Events:              []LotEvent{{Stage: InitialStage, Notes: strPtr("n")}},
		ExpectedNextActorID: strPtr("b"),
	}
	cp := CloneLot(lot)
	cp.InitialMetadata.Certifications[0] = "x"
	*cp.Events[0].Notes = "changed"
	*cp.ExpectedNextActorID = "c"
	cp.Events = append(cp.Events, LotEvent{Stage: "Next"})
	if lot.InitialMetadata.Certifications[0] != "Organic" || *lot.Events[0].Notes != "n" || *lot.ExpectedNextActorID != "b" || len(lot.Events) != 1 {
		t.Fatalf("clone shares state with original: %+v", lot)
	}
	if !lot.AwaitingActor("b") || lot.AwaitingActor("c") || lot.Terminal() {
		t.Fatalf("unexpected actor predicates")
	}
	if last, ok := lot.LastEvent(); !ok || last.Stage != InitialStage {
		t.Fatalf("unexpected last event %+v", last)
	}
}

func TestFoodLotJSONShape(t *testing.T) {
	lot := FoodLot{LotID: "lot-1", PaymentStatus: PaymentFullyPaid, Events: []LotEvent{{Stage: "S", Timestamp: 42}}}
	raw, err := json.Marshal(lot)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{`"expected_next_actor_id":null`, `"payment_status":"Fully Paid"`, `"timestamp":42`} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("expected %s in %s", want, raw)
		}
	}
	if strings.Contains(string(raw), "photo_url") {
		t.Fatalf("absent optional fields must be omitted: %s", raw)
	}
}

func TestErrorsMatchSentinels(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
		kind     string
	}{
		{DuplicateLotError{LotID: "a"}, ErrDuplicateLot, "DuplicateLot"},
		{LotNotFoundError{LotID: "a"}, ErrLotNotFound, "LotNotFound"},
		{MisconfiguredRegistryError{Stage: InitialStage, Reason: "is not configured"}, ErrMisconfiguredRegistry, "MisconfiguredRegistry"},
		{UnauthorizedActorError{LotID: "a", Caller: "x", Expected: strPtr("b")}, ErrUnauthorizedActor, "UnauthorizedActor"},
		{AlreadyInitializedError{}, ErrAlreadyInitialized, "AlreadyInitialized"},
		{InvalidArgumentError{Field: "lot_id", Reason: "is required"}, ErrInvalidArgument, "InvalidArgument"},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("call: %w", tc.err)
		if !errors.Is(wrapped, tc.sentinel) {
			t.Fatalf("%T does not match its sentinel", tc.err)
		}
		if got := ErrorKind(wrapped); got != tc.kind {
			t.Fatalf("expected kind %s, got %s", tc.kind, got)
		}
	}
	if ErrorKind(RuleViolationError{}) != "RuleViolation" || ErrorKind(errors.New("x")) != "internal" || ErrorKind(nil) != "" {
		t.Fatalf("unexpected fallback kinds")
	}
}

func TestUnauthorizedActorMessageIncludesExpected(t *testing.T) {
	err := UnauthorizedActorError{LotID: "lot-1", Caller: "eve", Expected: strPtr("bob")}
	if !strings.Contains(err.Error(), `"bob"`) {
		t.Fatalf("expected actor missing from %q", err.Error())
	}
	frozen := UnauthorizedActorError{LotID: "lot-1", Caller: "eve"}
	if !strings.Contains(frozen.Error(), "terminal") {
		t.Fatalf("expected terminal wording, got %q", frozen.Error())
	}
}

func TestCloneSnapshotNormalizesIndex(t *testing.T) {
	snap := CloneSnapshot(Snapshot{})
	if snap.LotIDs == nil || snap.Lots == nil {
		t.Fatalf("expected non-nil collections")
	}
	if snap.Initialized() {
		t.Fatalf("empty snapshot must not be initialized")
	}
	if !CloneSnapshot(Snapshot{StageTransitions: StageRegistry{}}).Initialized() {
		t.Fatalf("empty but non-nil registry counts as initialized")
	}
}
