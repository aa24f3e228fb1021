package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/types"
)

type ExtractionRunRepo interface {
	// Enqueue inserts a queued run unless one already exists for the
	// conversation. Returns (run, true) when this call created it.
	Enqueue(ctx context.Context, tx *gorm.DB, run *types.ExtractionRun) (*types.ExtractionRun, bool, error)
	GetByConversationID(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) (*types.ExtractionRun, error)
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*types.ExtractionRun, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type extractionRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExtractionRunRepo(db *gorm.DB, baseLog *logger.Logger) ExtractionRunRepo {
	return &extractionRunRepo{db: db, log: baseLog.With("repo", "ExtractionRunRepo")}
}

func (r *extractionRunRepo) Enqueue(ctx context.Context, tx *gorm.DB, run *types.ExtractionRun) (*types.ExtractionRun, bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}},
			DoNothing: true,
		}).
		Create(run)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		existing, err := r.GetByConversationID(ctx, transaction, run.ConversationID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return run, true, nil
}

func (r *extractionRunRepo) GetByConversationID(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) (*types.ExtractionRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.ExtractionRun
	err := transaction.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ClaimNextRunnable picks the oldest runnable run and atomically marks it
// running with an incremented attempt count. Runnable means queued, failed
// under the attempt budget past its retry delay, or running with a stale
// heartbeat (crashed worker).
func (r *extractionRunRepo) ClaimNextRunnable(
	ctx context.Context,
	tx *gorm.DB,
	maxAttempts int,
	retryDelay time.Duration,
	staleRunning time.Duration,
) (*types.ExtractionRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	now := time.Now()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-staleRunning)

	var claimed *types.ExtractionRun

	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var run types.ExtractionRun

		q := txx.
			Where(`
				(
					status = ?
					OR (
						status = ?
						AND attempts < ?
						AND (last_error_at IS NULL OR last_error_at < ?)
					)
					OR (
						status = ?
						AND heartbeat_at IS NOT NULL
						AND heartbeat_at < ?
					)
				)
			`, types.ExtractionStatusQueued,
				types.ExtractionStatusFailed, maxAttempts, retryCutoff,
				types.ExtractionStatusRunning, staleCutoff).
			Order("created_at ASC")
		// Row locks exist only on postgres; sqlite serializes writers itself.
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		qErr := q.First(&run).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}

		uErr := txx.Model(&types.ExtractionRun{}).
			Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"status":       types.ExtractionStatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"started_at":   now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}

		run.Status = types.ExtractionStatusRunning
		run.Attempts++
		claimed = &run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *extractionRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.ExtractionRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}
