package batches

import (
	"errors"
	"fmt"
	"os"
	"time"

	"contact-import/common"
	"contact-import/contacts"
	"contact-import/parsers"
	"contact-import/reconcile"

	"gorm.io/gorm"
)

// ProcessBatch executes a dispatched batch run in the background.
//
// Rows are reconciled sequentially in file order so that later duplicate
// rows in the same file see earlier rows' writes. Per-row failures are
// absorbed into the error log and never abort the batch; only store-level
// infrastructure failures move the batch to failed.
func ProcessBatch(batchID string) {
	db := common.GetDB()

	var batch ImportBatch
	if err := db.Where("id = ?", batchID).First(&batch).Error; err != nil {
		common.Log().Errorw("run dispatched for unknown batch", "batch_id", batchID, "error", err)
		return
	}
	if batch.State != StateRunning {
		common.Log().Warnw("run dispatched for batch not in running state",
			"batch_id", batchID, "state", batch.State)
		return
	}

	common.Log().Infow("batch run started",
		"batch_id", batch.ID, "rows", batch.RowCount, "policy", batch.Policy)

	doc, err := loadDocument(&batch)
	if err != nil {
		failBatch(db, &batch, fmt.Sprintf("failed to re-read upload: %v", err))
		return
	}

	store := contacts.NewGormStore(db)
	runRows(db, &batch, doc, store)
}

// runRows drives the per-row loop. Split out so tests can exercise the loop
// against a stubbed store.
func runRows(db *gorm.DB, batch *ImportBatch, doc *parsers.Document, store contacts.Store) {
	cfg := batch.ReconcileConfig()
	m := batch.MappingMap()
	appCfg := common.GetConfig()

	maxStored := appCfg.MaxStoredErrors
	flushEvery := appCfg.ProgressUpdateFrequency
	if flushEvery <= 0 {
		flushEvery = 1
	}

	var rowErrors []RowError
	recordError := func(rowIndex int, reason string) {
		batch.ErrorCount++
		if len(rowErrors) < maxStored {
			rowErrors = append(rowErrors, RowError{RowIndex: rowIndex, Reason: reason})
		}
	}

	for i, record := range doc.Rows {
		outcome, err := reconcile.Resolve(record, m, cfg, store)
		if err != nil {
			persistProgress(db, batch, rowErrors)
			failBatch(db, batch, fmt.Sprintf("contact store failed at row %d: %v", i, err))
			return
		}

		switch outcome.Kind {
		case reconcile.OutcomeCreate:
			fields := reconcile.ExtractFields(record, m, cfg)
			if _, err := store.Create(fields); err != nil {
				if errors.Is(err, contacts.ErrStoreUnavailable) {
					persistProgress(db, batch, rowErrors)
					failBatch(db, batch, fmt.Sprintf("contact store failed at row %d: %v", i, err))
					return
				}
				recordError(i, fmt.Sprintf("create failed: %v", err))
			} else {
				batch.CreatedCount++
			}
		case reconcile.OutcomeUpdate:
			fields := reconcile.ExtractFields(record, m, cfg)
			if err := store.Update(outcome.ExistingID, fields); err != nil {
				if errors.Is(err, contacts.ErrStoreUnavailable) {
					persistProgress(db, batch, rowErrors)
					failBatch(db, batch, fmt.Sprintf("contact store failed at row %d: %v", i, err))
					return
				}
				recordError(i, fmt.Sprintf("update failed: %v", err))
			} else {
				batch.UpdatedCount++
			}
		case reconcile.OutcomeSkip:
			batch.SkippedCount++
		case reconcile.OutcomeError:
			recordError(i, outcome.Reason)
		}

		// Single-writer snapshot: only this loop mutates counters, and a
		// poll between rows sees a consistent, monotonic row in the DB
		if (i+1)%flushEvery == 0 {
			persistProgress(db, batch, rowErrors)
		}
	}

	batch.SetRowErrors(rowErrors)
	batch.State = StateCompleted
	now := time.Now()
	batch.CompletedAt = &now
	batch.UpdatedAt = now
	if err := db.Save(batch).Error; err != nil {
		common.Log().Errorw("failed to persist completed batch", "batch_id", batch.ID, "error", err)
		return
	}

	common.Log().Infow("batch run completed",
		"batch_id", batch.ID,
		"created", batch.CreatedCount,
		"updated", batch.UpdatedCount,
		"skipped", batch.SkippedCount,
		"errors", batch.ErrorCount)
}

// persistProgress saves the current counters and error log
func persistProgress(db *gorm.DB, batch *ImportBatch, rowErrors []RowError) {
	batch.SetRowErrors(rowErrors)
	batch.UpdatedAt = time.Now()
	if err := db.Save(batch).Error; err != nil {
		common.Log().Warnw("failed to persist batch progress", "batch_id", batch.ID, "error", err)
	}
}

// failBatch moves the batch to the failed terminal state. Reserved for
// whole-batch infrastructure failures; per-row errors stay within completed.
func failBatch(db *gorm.DB, batch *ImportBatch, reason string) {
	batch.State = StateFailed
	batch.FailureReason = reason
	now := time.Now()
	batch.CompletedAt = &now
	batch.UpdatedAt = now
	if err := db.Save(batch).Error; err != nil {
		common.Log().Errorw("failed to persist failed batch", "batch_id", batch.ID, "error", err)
	}

	common.Log().Errorw("batch run failed", "batch_id", batch.ID, "reason", reason)
}

// loadDocument re-reads and re-parses the stored upload for a batch
func loadDocument(batch *ImportBatch) (*parsers.Document, error) {
	raw, err := os.ReadFile(batch.FilePath)
	if err != nil {
		return nil, err
	}
	return parsers.Parse(raw)
}
