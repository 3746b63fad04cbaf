package crmsync

import (
	"context"
	"fmt"
	"time"

	"github.com/natserract/sfsync/pkg/airtable"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const (
	// DefaultChunkSize is the Airtable per-request record limit
	DefaultChunkSize = airtable.MaxRecordsPerRequest
	// DefaultMaxInFlight is the number of chunks sent concurrently per wave
	DefaultMaxInFlight = 5
)

// Operation is a kind of batch write
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// BatchApplier writes records to Airtable in chunks of DefaultChunkSize. Up
// to DefaultMaxInFlight chunks run concurrently as a wave and a wave starts
// only after the previous one has fully completed.
type BatchApplier struct {
	client      airtable.AirtableClient
	chunkSize   int
	maxInFlight int
	metrics     *SyncMetrics
	logger      *zap.Logger
}

// NewBatchApplier creates a new batch applier
func NewBatchApplier(client airtable.AirtableClient, metrics *SyncMetrics, logger *zap.Logger) *BatchApplier {
	if metrics == nil {
		metrics = &SyncMetrics{}
	}
	return &BatchApplier{
		client:      client,
		chunkSize:   DefaultChunkSize,
		maxInFlight: DefaultMaxInFlight,
		metrics:     metrics,
		logger:      logger,
	}
}

// Create creates records in table with typecast enabled
func (b *BatchApplier) Create(ctx context.Context, table string, records []airtable.Record) ([]airtable.Record, error) {
	return applyInWaves(ctx, b, OpCreate, table, records, func(ctx context.Context, chunk []airtable.Record) ([]airtable.Record, error) {
		return b.client.CreateRecords(ctx, table, chunk, true)
	})
}

// Update patches records in table with typecast enabled. Every record must
// carry its Airtable id.
func (b *BatchApplier) Update(ctx context.Context, table string, records []airtable.Record) ([]airtable.Record, error) {
	return applyInWaves(ctx, b, OpUpdate, table, records, func(ctx context.Context, chunk []airtable.Record) ([]airtable.Record, error) {
		return b.client.UpdateRecords(ctx, table, chunk, true)
	})
}

// Delete removes the records with the given ids from table
func (b *BatchApplier) Delete(ctx context.Context, table string, ids []string) ([]string, error) {
	return applyInWaves(ctx, b, OpDelete, table, ids, func(ctx context.Context, chunk []string) ([]string, error) {
		return b.client.DeleteRecords(ctx, table, chunk)
	})
}

// applyInWaves splits items into chunks and applies them wave by wave. The
// results are concatenated in chunk order regardless of completion order. On
// the first failing wave the remaining waves are not started and a
// PartialApplyError carries what was applied so far.
func applyInWaves[T, R any](ctx context.Context, b *BatchApplier, op Operation, table string, items []T, apply func(context.Context, []T) ([]R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}

	chunks := lo.Chunk(items, b.chunkSize)
	results := make([][]R, len(chunks))
	done := make([]bool, len(chunks))
	startTime := time.Now()

	b.logger.Info("Applying records",
		zap.String("op", string(op)),
		zap.String("table", table),
		zap.Int("records", len(items)),
		zap.Int("chunks", len(chunks)))

	for start := 0; start < len(chunks); start += b.maxInFlight {
		end := min(start+b.maxInFlight, len(chunks))

		var err error
		if err = ctx.Err(); err == nil {
			wave := pool.New().WithErrors()
			for i := start; i < end; i++ {
				wave.Go(func() error {
					res, err := apply(ctx, chunks[i])
					if err != nil {
						b.metrics.AddChunkFailure()
						b.logger.Error("Failed to apply chunk",
							zap.String("op", string(op)),
							zap.String("table", table),
							zap.Int("chunk", i),
							zap.Int("size", len(chunks[i])),
							zap.Error(err))
						return fmt.Errorf("chunk %d: %w", i, err)
					}
					results[i] = res
					done[i] = true
					b.metrics.AddChunkSuccess(op, len(chunks[i]))
					return nil
				})
			}
			err = wave.Wait()
		}

		if err != nil {
			applied := 0
			for i := range chunks {
				if done[i] {
					applied += len(chunks[i])
				}
			}
			return lo.Flatten(results), &PartialApplyError{
				Op:      op,
				Table:   table,
				Applied: applied,
				Total:   len(items),
				Err:     err,
			}
		}

		b.logger.Debug("Applied wave",
			zap.String("op", string(op)),
			zap.String("table", table),
			zap.Int("first_chunk", start),
			zap.Int("last_chunk", end-1))
	}

	b.logger.Info("Applied records",
		zap.String("op", string(op)),
		zap.String("table", table),
		zap.Int("records", len(items)),
		zap.Duration("duration", time.Since(startTime)))

	return lo.Flatten(results), nil
}
