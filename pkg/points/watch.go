package points

import (
	"context"
	"errors"
	"fmt"
)

// DefaultPointsPerTick is awarded when the tick does not name an amount.
const DefaultPointsPerTick int64 = 10

// WatchTick is one scheduler sweep over the viewers present on a platform.
type WatchTick struct {
	Platform  Platform
	Live      bool
	ViewerIDs []string
	Amount    int64
}

// AwardSummary counts what happened to the viewers of one tick.
type AwardSummary struct {
	Awarded int
	Skipped int
	Failed  int
}

// Awarder grants points to viewers present during a live stream.
type Awarder struct {
	logger OperationLogger
}

// NewAwarder returns an Awarder that reports skipped viewers to logger.
func NewAwarder(logger OperationLogger) *Awarder {
	return &Awarder{logger: logger}
}

// AwardPresentViewers adds the tick amount to every listed viewer. A stream that is not live is a
// successful no-op. Blank ids are skipped and a failure for one viewer does not stop the others.
// Calling twice with the same tick awards twice.
func (awarder *Awarder) AwardPresentViewers(ctx context.Context, ledger *Ledger, tick WatchTick) (AwardSummary, error) {
	if ledger == nil {
		return AwardSummary{}, fmt.Errorf("%w: ledger is nil", ErrInvalidServiceConfig)
	}
	summary := AwardSummary{}
	if !tick.Live {
		return summary, nil
	}
	var errSet []error
	for index, rawID := range tick.ViewerIDs {
		ref, err := NewUserRef(tick.Platform, rawID)
		if err != nil {
			summary.Skipped++
			emitOperation(ctx, awarder.logger, OperationLog{
				Operation: operationAward,
				Ledger:    ledger.Name(),
				Platform:  tick.Platform,
				Amount:    tick.Amount,
				Status:    operationStatusError,
				Error:     fmt.Errorf("viewer %d: %w", index, err),
			})
			continue
		}
		if _, err := ledger.AddBalance(ctx, ref, tick.Amount, operationAward); err != nil {
			summary.Failed++
			errSet = append(errSet, fmt.Errorf("viewer %s: %w", ref, err))
			continue
		}
		summary.Awarded++
	}
	return summary, errors.Join(errSet...)
}
