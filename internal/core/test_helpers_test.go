package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"tracefood/pkg/domain"
)

const (
	farmer      = "farmer.testnet"
	distributor = "distributor.testnet"
	supermarket = "supermarket.testnet"
)

func strPtr(s string) *string { return &s }

// threeStageRegistry mirrors the harvest → distributor → supermarket flow.
func threeStageRegistry() StageRegistry {
	return StageRegistry{
		domain.InitialStage:    strPtr(distributor),
		"Llegada Distribuidor": strPtr(supermarket),
		"Llegada Supermercado": nil,
	}
}

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(start time.Time, step time.Duration) *stepClock {
	return &stepClock{now: start, step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func (c *stepClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type logRecord struct {
	level string
	msg   string
	kv    []any
}

type recordingLogger struct {
	mu      sync.Mutex
	records []logRecord
}

func (l *recordingLogger) add(level, msg string, kv []any) {
	l.mu.Lock()
	l.records = append(l.records, logRecord{level: level, msg: msg, kv: kv})
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, kv ...any) { l.add("debug", msg, kv) }
func (l *recordingLogger) Info(msg string, kv ...any)  { l.add("info", msg, kv) }
func (l *recordingLogger) Warn(msg string, kv ...any)  { l.add("warn", msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...any) { l.add("error", msg, kv) }

func (l *recordingLogger) has(level, fragment string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.level == level && strings.Contains(r.msg, fragment) {
			return true
		}
	}
	return false
}

type captureDispatcher struct {
	mu      sync.Mutex
	intents []PaymentIntent
	err     error
}

func (d *captureDispatcher) Dispatch(_ context.Context, intent PaymentIntent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.intents = append(d.intents, intent)
	return nil
}

func (d *captureDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.intents)
}

type captureObserver struct {
	lots []FoodLot
}

func (o *captureObserver) LotChanged(_ context.Context, lot FoodLot) {
	o.lots = append(o.lots, lot)
}

// failingStore wraps a real store and fails every transaction.
type failingStore struct {
	domain.PersistentStore
}

func (failingStore) RunInTransaction(context.Context, func(domain.Transaction) error) (domain.Result, error) {
	return domain.Result{}, fmt.Errorf("storage offline")
}

func mustInit(t *testing.T, svc *Service, reg StageRegistry) {
	t.Helper()
	if _, err := svc.Initialize(context.Background(), "owner.testnet", reg); err != nil {
		t.Fatalf("initialize: %v", err)
	}
}

func mustMint(t *testing.T, svc *Service, caller, lotID string) FoodLot {
	t.Helper()
	lot, _, err := svc.MintLot(context.Background(), caller, MintRequest{
		LotID:       lotID,
		Description: "Avocados",
		InitialMetadata: InitialMetadata{
			CropType:       "Hass",
			FarmLocation:   "Michoacán",
			Certifications: []string{"Organic"},
		},
	})
	if err != nil {
		t.Fatalf("mint %s: %v", lotID, err)
	}
	return lot
}
