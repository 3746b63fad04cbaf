package crmsync

import (
	"context"

	"github.com/google/uuid"
)

// RunLedger records the outcome of each object sync for later inspection
type RunLedger interface {
	// StartRun records that the sync of object into table has begun
	StartRun(ctx context.Context, object, table string, dryRun bool) (uuid.UUID, error)

	// FinishRun records the outcome of a run. runErr is nil on success.
	FinishRun(ctx context.Context, id uuid.UUID, summary ObjectSummary, runErr error) error
}

// NopLedger is a RunLedger that records nothing
type NopLedger struct{}

var _ RunLedger = NopLedger{}

func (NopLedger) StartRun(context.Context, string, string, bool) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (NopLedger) FinishRun(context.Context, uuid.UUID, ObjectSummary, error) error {
	return nil
}
