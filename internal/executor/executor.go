package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"reckon/internal/config"
	"reckon/internal/entity"
	"reckon/internal/kgstore"
	"reckon/internal/logging"
	"reckon/internal/staging"
)

// Indexer receives incremental index updates after successful writes so the
// next research phase does not re-offer a just-applied entity as a duplicate.
type Indexer interface {
	Upsert(ctx context.Context, path string, fields kgstore.Fields) error
}

// Result reports the outcome of one operation.
type Result struct {
	OpID       int64
	Success    bool
	Skipped    bool
	Action     entity.Action
	EntityPath string
	Err        string
}

// BatchSummary aggregates one execute-batch run. Failures are contained per
// operation; a batch never aborts on a single failure.
type BatchSummary struct {
	BatchID    string
	Total      int
	Successful int
	Failed     int
	Skipped    int
	Merges     int
	Updates    int
	Creates    int
	Errors     []string
}

// Executor applies ready staged operations to the knowledge store in
// priority order: merges first, then updates, then creates.
type Executor struct {
	store   kgstore.Store
	staging *staging.Store
	index   Indexer
	graph   config.Graph
	logger  *slog.Logger
}

// New constructs an executor. The indexer may be nil when no incremental
// index maintenance is wanted (a full rebuild is scheduled instead).
func New(store kgstore.Store, stagingStore *staging.Store, indexer Indexer, graph config.Graph, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		store:   store,
		staging: stagingStore,
		index:   indexer,
		graph:   graph,
		logger:  logging.NewComponentLogger(logger, "executor"),
	}
}

// ExecuteBatch applies every ready operation in the batch sequentially.
func (e *Executor) ExecuteBatch(ctx context.Context, batchID string) (*BatchSummary, error) {
	return e.run(ctx, batchID, false)
}

// DryRun evaluates the batch without writing to the store or staging.
func (e *Executor) DryRun(ctx context.Context, batchID string) (*BatchSummary, error) {
	return e.run(ctx, batchID, true)
}

func (e *Executor) run(ctx context.Context, batchID string, dryRun bool) (*BatchSummary, error) {
	operations, err := e.staging.GetReady(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("load ready operations: %w", err)
	}

	summary := &BatchSummary{BatchID: batchID, Total: len(operations)}
	for _, op := range operations {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result := e.executeOne(ctx, op, dryRun)
		summary.record(op, result)
	}

	e.logger.Info("batch execution finished",
		logging.String(logging.FieldBatchID, batchID),
		logging.Int("total", summary.Total),
		logging.Int("successful", summary.Successful),
		logging.Int("failed", summary.Failed),
		logging.Bool("dry_run", dryRun))
	return summary, nil
}

func (s *BatchSummary) record(op *staging.Operation, result Result) {
	if result.Skipped {
		s.Skipped++
		return
	}
	if !result.Success {
		s.Failed++
		if result.Err != "" {
			s.Errors = append(s.Errors, fmt.Sprintf("%s: %s", op.EntityName, result.Err))
		}
		return
	}
	s.Successful++
	switch result.Action {
	case entity.ActionMerge:
		s.Merges++
	case entity.ActionUpdate:
		s.Updates++
	case entity.ActionCreate:
		s.Creates++
	}
}

// ExecuteOne applies a single operation by id. Operations not in the ready
// state are skipped, which makes replays after a resume safe no-ops.
func (e *Executor) ExecuteOne(ctx context.Context, opID int64) (Result, error) {
	op, err := e.staging.GetOperation(ctx, opID)
	if errors.Is(err, staging.ErrNotFound) {
		return Result{OpID: opID, Err: err.Error()}, err
	}
	if err != nil {
		return Result{OpID: opID}, err
	}
	if op.Status != staging.StatusReady {
		return Result{
			OpID:    opID,
			Skipped: true,
			Action:  op.Action,
			Err:     fmt.Sprintf("operation not ready (status: %s)", op.Status),
		}, nil
	}
	return e.executeOne(ctx, op, false), nil
}

func (e *Executor) executeOne(ctx context.Context, op *staging.Operation, dryRun bool) Result {
	var result Result
	switch op.Action {
	case entity.ActionMerge:
		result = e.applyMerge(ctx, op, dryRun)
	case entity.ActionUpdate:
		result = e.applyUpdate(ctx, op, dryRun)
	case entity.ActionCreate:
		result = e.applyCreate(ctx, op, dryRun)
	default:
		result = Result{OpID: op.ID, Action: op.Action, Err: fmt.Sprintf("unknown action %q", op.Action)}
	}

	if dryRun {
		return result
	}

	if result.Success {
		if err := e.staging.UpdateStatus(ctx, op.ID, staging.StatusApplied, ""); err != nil {
			e.logger.Error("mark applied failed",
				logging.Int64(logging.FieldOpID, op.ID),
				logging.Error(err))
		}
	} else {
		if err := e.staging.UpdateStatus(ctx, op.ID, staging.StatusFailed, result.Err); err != nil {
			e.logger.Error("mark failed failed",
				logging.Int64(logging.FieldOpID, op.ID),
				logging.Error(err))
		}
	}

	e.logger.Debug("operation executed",
		logging.Int64(logging.FieldOpID, op.ID),
		logging.String(logging.FieldEntity, op.EntityName),
		logging.String(logging.FieldAction, string(op.Action)),
		logging.Bool("success", result.Success))
	return result
}

// PendingCounts exposes the staging status histogram for status displays.
func (e *Executor) PendingCounts(ctx context.Context, batchID string) (map[staging.Status]int, error) {
	if batchID != "" {
		return e.staging.CountByBatch(ctx, batchID)
	}
	return e.staging.CountByStatus(ctx)
}
