package settlement

import (
	"context"
	"errors"

	"tracefood/internal/core"
)

// Fanout forwards every intent to each dispatcher in order and joins their
// errors.
type Fanout []core.IntentDispatcher

func (f Fanout) Dispatch(ctx context.Context, intent core.PaymentIntent) error {
	var errs []error
	for _, d := range f {
		if d == nil {
			continue
		}
		if err := d.Dispatch(ctx, intent); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink records intents in the log and nothing else.
type LogSink struct {
	Logger core.Logger
}

func (s LogSink) Dispatch(_ context.Context, intent core.PaymentIntent) error {
	if s.Logger == nil {
		return nil
	}
	s.Logger.Info("payout", "intent_id", intent.ID, "lot_id", intent.LotID, "recipient", intent.Recipient, "amount", intent.Amount.String(), "stage", intent.Stage)
	return nil
}
