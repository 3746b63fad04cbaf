// Package crmsync mirrors Salesforce objects into Airtable tables. Each
// configured object is fetched with SOQL, diffed against the table's primary
// field and applied as batched creates, updates and deletes. Objects run in
// order and may restrict the next object through their return field.
package crmsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/natserract/sfsync/pkg/airtable"
	"github.com/natserract/sfsync/pkg/mapping"
	"github.com/natserract/sfsync/pkg/salesforce"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// Stage is a step of a single object sync
type Stage string

const (
	StageCheckSchema      Stage = "check_schema"
	StageBuildQuery       Stage = "build_query"
	StageFetch            Stage = "fetch"
	StageIndexDestination Stage = "index_destination"
	StageDiff             Stage = "diff"
	StageApplyCreates     Stage = "apply_creates"
	StageApplyUpdates     Stage = "apply_updates"
	StageApplyDeletes     Stage = "apply_deletes"
)

// Options change how a run applies its plan
type Options struct {
	// DryRun computes and logs every plan without writing to Airtable
	DryRun bool
	// GuardEmptySource fails an object whose fetch is empty while its table
	// still has managed rows, instead of deleting all of them
	GuardEmptySource bool
	// SkipSchemaCheck skips the describe calls made before the first fetch
	SkipSchemaCheck bool
}

// ObjectSummary is the outcome of one object sync
type ObjectSummary struct {
	Object     string
	Table      string
	Query      string
	Fetched    int
	Created    int
	Updated    int
	Deleted    int
	Duplicates int
	DryRun     bool
	Duration   time.Duration
}

// StageResult is what one object sync hands to the next
type StageResult struct {
	Summary ObjectSummary
	// ReturnValues are the distinct values of the object's return field
	ReturnValues []string
}

// RunSummary is the outcome of a full run
type RunSummary struct {
	Objects  []ObjectSummary
	DryRun   bool
	Duration time.Duration
}

// Totals sums the writes of all objects
func (r *RunSummary) Totals() (created, updated, deleted int) {
	for _, o := range r.Objects {
		created += o.Created
		updated += o.Updated
		deleted += o.Deleted
	}
	return created, updated, deleted
}

// SyncService runs the configured objects against Salesforce and Airtable
type SyncService struct {
	source  salesforce.SalesforceClient
	dest    airtable.AirtableClient
	mapping mapping.Config
	applier *BatchApplier
	ledger  RunLedger
	metrics *SyncMetrics
	opts    Options
	logger  *zap.Logger
}

// NewSyncService creates a new sync service. A nil ledger records nothing.
func NewSyncService(source salesforce.SalesforceClient, dest airtable.AirtableClient, cfg mapping.Config, ledger RunLedger, opts Options, logger *zap.Logger) *SyncService {
	if ledger == nil {
		ledger = NopLedger{}
	}
	metrics := &SyncMetrics{}
	return &SyncService{
		source:  source,
		dest:    dest,
		mapping: cfg,
		applier: NewBatchApplier(dest, metrics, logger),
		ledger:  ledger,
		metrics: metrics,
		opts:    opts,
		logger:  logger,
	}
}

// Metrics returns the counters accumulated by the service
func (s *SyncService) Metrics() *SyncMetrics {
	return s.metrics
}

// SyncAll syncs every configured object in order. The first failing object
// stops the run; objects after it are not attempted. The summary covers the
// objects that completed.
func (s *SyncService) SyncAll(ctx context.Context) (*RunSummary, error) {
	startTime := time.Now()
	summary := &RunSummary{DryRun: s.opts.DryRun}

	if err := s.mapping.Validate(); err != nil {
		return summary, err
	}

	s.logger.Info("Starting sync",
		zap.String("base_id", s.mapping.BaseID),
		zap.Int("objects", len(s.mapping.Objects)),
		zap.Bool("dry_run", s.opts.DryRun))

	if !s.opts.SkipSchemaCheck {
		if err := s.CheckSchema(ctx); err != nil {
			return summary, err
		}
	}

	var prev *StageResult
	for _, obj := range s.mapping.Objects {
		result, err := s.SyncObject(ctx, obj, NextQueryOptions(obj, prev))
		if err != nil {
			s.metrics.AddObjectFailure()
			summary.Duration = time.Since(startTime)
			return summary, err
		}
		s.metrics.AddObjectSuccess()
		summary.Objects = append(summary.Objects, result.Summary)
		prev = result
	}

	summary.Duration = time.Since(startTime)
	created, updated, deleted := summary.Totals()
	s.logger.Info("Completed sync",
		zap.Duration("duration", summary.Duration),
		zap.Int("objects", len(summary.Objects)),
		zap.Int("created", created),
		zap.Int("updated", updated),
		zap.Int("deleted", deleted),
		zap.Bool("dry_run", s.opts.DryRun))

	return summary, nil
}

// NextQueryOptions restricts obj by the return values of the previous object
// when obj declares a filter field.
func NextQueryOptions(obj mapping.ObjectMapping, prev *StageResult) QueryOptions {
	opts := QueryOptions{WhereClause: obj.WhereClause}
	if prev != nil && obj.FilterField != "" {
		opts.ParentField = obj.FilterField
		opts.ParentIDs = append([]string{}, prev.ReturnValues...)
	}
	return opts
}

// SyncObject mirrors one object into its table. Creates, updates and deletes
// are applied in that order; a failing stage aborts the rest.
func (s *SyncService) SyncObject(ctx context.Context, obj mapping.ObjectMapping, opts QueryOptions) (*StageResult, error) {
	startTime := time.Now()
	summary := ObjectSummary{Object: obj.Object, Table: obj.Table, DryRun: s.opts.DryRun}
	logger := s.logger.With(zap.String("object", obj.Object), zap.String("table", obj.Table))

	runID := s.startRun(ctx, obj, logger)
	fail := func(stage Stage, err error) (*StageResult, error) {
		summary.Duration = time.Since(startTime)
		logger.Error("Object sync failed", zap.String("stage", string(stage)), zap.Error(err))
		stageErr := &StageError{Object: obj.Object, Stage: stage, Err: err}
		s.finishRun(ctx, runID, summary, stageErr, logger)
		return nil, stageErr
	}

	soql, err := BuildQuery(obj.Fields, obj.Object, opts)
	if err != nil {
		return fail(StageBuildQuery, err)
	}
	summary.Query = soql
	logger.Info("Sending query", zap.String("soql", soql))

	// The destination index does not depend on the fetch, so both run at once
	var (
		records  []salesforce.Record
		index    DestinationIndex
		fetchErr error
		indexErr error
		wg       conc.WaitGroup
	)
	wg.Go(func() {
		records, fetchErr = FetchAll(ctx, s.source, soql, logger)
	})
	wg.Go(func() {
		index, indexErr = BuildIndex(ctx, s.dest, obj.Table, obj.PrimaryAirtableField, logger)
	})
	wg.Wait()

	if fetchErr != nil {
		return fail(StageFetch, fetchErr)
	}
	summary.Fetched = len(records)
	s.metrics.AddFetched(len(records))
	logger.Info("Received records", zap.Int("count", len(records)))

	if indexErr != nil {
		return fail(StageIndexDestination, indexErr)
	}

	plan, err := Diff(records, obj, index)
	if err != nil {
		return fail(StageDiff, err)
	}
	summary.Duplicates = len(plan.Duplicates)
	if len(plan.Duplicates) > 0 {
		logger.Warn("Duplicate primary values in source, keeping the first record",
			zap.String("primary_field", obj.PrimarySalesforceField),
			zap.Strings("keys", lo.Uniq(plan.Duplicates)))
	}
	if plan.MirrorWipe() {
		logger.Warn("Source returned no records, every managed row of the table will be deleted",
			zap.Int("rows", len(plan.Deletes)),
			zap.Bool("guarded", s.opts.GuardEmptySource))
		if s.opts.GuardEmptySource {
			return fail(StageDiff, ErrEmptySourceMirror)
		}
	}

	logger.Info("Computed plan",
		zap.Int("creates", len(plan.Creates)),
		zap.Int("updates", len(plan.Updates)),
		zap.Int("deletes", len(plan.Deletes)),
		zap.Int("return_values", len(plan.ReturnValues)))

	switch {
	case plan.Empty():
		logger.Info("Table already matches the source, nothing to apply")
	case s.opts.DryRun:
		summary.Created = len(plan.Creates)
		summary.Updated = len(plan.Updates)
		summary.Deleted = len(plan.Deletes)
	default:
		created, err := s.applier.Create(ctx, obj.Table, plan.Creates)
		summary.Created = len(created)
		if err != nil {
			return fail(StageApplyCreates, err)
		}
		updated, err := s.applier.Update(ctx, obj.Table, plan.Updates)
		summary.Updated = len(updated)
		if err != nil {
			return fail(StageApplyUpdates, err)
		}
		deleted, err := s.applier.Delete(ctx, obj.Table, plan.Deletes)
		summary.Deleted = len(deleted)
		if err != nil {
			return fail(StageApplyDeletes, err)
		}
	}

	summary.Duration = time.Since(startTime)
	s.finishRun(ctx, runID, summary, nil, logger)

	logger.Info("Completed object sync",
		zap.Int("fetched", summary.Fetched),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("deleted", summary.Deleted),
		zap.Duration("duration", summary.Duration))

	return &StageResult{Summary: summary, ReturnValues: plan.ReturnValues}, nil
}

// CheckSchema describes every configured object and fails when a mapped,
// return or filter field does not exist on it.
func (s *SyncService) CheckSchema(ctx context.Context) error {
	for _, obj := range s.mapping.Objects {
		desc, err := s.source.Describe(ctx, obj.Object)
		if err != nil {
			return &StageError{Object: obj.Object, Stage: StageCheckSchema, Err: err}
		}
		if err := checkFields(obj, desc); err != nil {
			s.logger.Error("Mapping does not match object schema", zap.String("object", obj.Object), zap.Error(err))
			return &StageError{Object: obj.Object, Stage: StageCheckSchema, Err: err}
		}
	}
	s.logger.Info("Schema check passed", zap.Int("objects", len(s.mapping.Objects)))
	return nil
}

// checkFields requires the exact casing Describe reports. SOQL itself is
// case-insensitive but records come back keyed by the canonical names and
// are read case-sensitively. For dotted paths only the first relationship
// hop is checked.
func checkFields(obj mapping.ObjectMapping, desc *salesforce.DescribeResult) error {
	names := make(map[string]bool, len(desc.Fields))
	relationships := make(map[string]bool)
	canonical := make(map[string]string, len(desc.Fields))
	for _, f := range desc.Fields {
		names[f.Name] = true
		canonical[strings.ToLower(f.Name)] = f.Name
		if f.RelationshipName != "" {
			relationships[f.RelationshipName] = true
			canonical[strings.ToLower(f.RelationshipName)] = f.RelationshipName
		}
	}

	required := obj.SourceFields()
	if obj.FilterField != "" {
		required = append(required, obj.FilterField)
	}

	var unknown []string
	for _, field := range lo.Uniq(required) {
		name, known := field, names
		if head, _, dotted := strings.Cut(field, "."); dotted {
			name, known = head, relationships
		}
		if known[name] {
			continue
		}
		if want, ok := canonical[strings.ToLower(name)]; ok {
			unknown = append(unknown, fmt.Sprintf("%s (did you mean %s)", field, want))
			continue
		}
		unknown = append(unknown, field)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s has no %s", ErrUnknownField, obj.Object, strings.Join(unknown, ", "))
	}
	return nil
}

func (s *SyncService) startRun(ctx context.Context, obj mapping.ObjectMapping, logger *zap.Logger) uuid.UUID {
	id, err := s.ledger.StartRun(ctx, obj.Object, obj.Table, s.opts.DryRun)
	if err != nil {
		logger.Warn("Failed to record run start", zap.Error(err))
		return uuid.Nil
	}
	return id
}

func (s *SyncService) finishRun(ctx context.Context, id uuid.UUID, summary ObjectSummary, runErr error, logger *zap.Logger) {
	if id == uuid.Nil {
		return
	}
	// The run may have failed because ctx was cancelled; still record it.
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if err := s.ledger.FinishRun(ctx, id, summary, runErr); err != nil {
		logger.Warn("Failed to record run outcome", zap.String("run_id", id.String()), zap.Error(err))
	}
}
