package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/parcelhub/internal/domain/delivery"
	"github.com/geocoder89/parcelhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationDeliveriesRepo is the send ledger: one row per (kind, subject)
// so a retried job never notifies twice.
type NotificationDeliveriesRepo struct {
	observer
	pool *pgxpool.Pool
}

func NewNotificationDeliveriesRepo(pool *pgxpool.Pool, prom *observability.Prom) *NotificationDeliveriesRepo {
	return &NotificationDeliveriesRepo{observer: observer{prom: prom}, pool: pool}
}

// TryStart claims the send for subjectID. It returns delivery.ErrAlreadySent
// when it went out before and delivery.ErrInProgress when another worker
// holds it.
func (r *NotificationDeliveriesRepo) TryStart(ctx context.Context, kind, subjectID, jobID, recipient string) error {
	// 1) Insert if missing
	err := r.observe("deliveries.insert", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO notification_deliveries (kind, subject_id, job_id, recipient, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'sending', NOW(), NOW())
		`, kind, subjectID, jobID, recipient)
		return err
	})
	if err == nil {
		return nil
	}
	if !IsUniqueViolation(err) {
		return err
	}

	// 2) Row exists. Only one worker can flip failed (or abandoned sending)
	// back to sending.
	var claimed int64
	err = r.observe("deliveries.reclaim", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE notification_deliveries
			SET status = 'sending',
			    job_id = $3,
			    recipient = $4,
			    last_error = NULL,
			    updated_at = NOW()
			WHERE kind = $1 AND subject_id = $2
			  AND (status = 'failed' OR (status = 'sending' AND updated_at < NOW() - INTERVAL '5 minutes'))
		`, kind, subjectID, jobID, recipient)
		if err != nil {
			return err
		}
		claimed = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if claimed == 1 {
		return nil
	}

	// 3) Not failed: either sent already or being sent.
	var status string
	var sentAt *time.Time

	err = r.observe("deliveries.status", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT status, sent_at
			FROM notification_deliveries
			WHERE kind = $1 AND subject_id = $2
		`, kind, subjectID).Scan(&status, &sentAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// row disappeared; let the caller retry
			return nil
		}
		return err
	}

	if sentAt != nil || status == "sent" {
		return delivery.ErrAlreadySent
	}
	return delivery.ErrInProgress
}

func (r *NotificationDeliveriesRepo) MarkSent(ctx context.Context, kind, subjectID string) error {
	return r.observe("deliveries.mark_sent", func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE notification_deliveries
			SET status = 'sent',
			    sent_at = NOW(),
			    last_error = NULL,
			    updated_at = NOW()
			WHERE kind = $1 AND subject_id = $2
		`, kind, subjectID)
		return err
	})
}

func (r *NotificationDeliveriesRepo) MarkFailed(ctx context.Context, kind, subjectID, errMsg string) error {
	return r.observe("deliveries.mark_failed", func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE notification_deliveries
			SET status = 'failed',
			    last_error = $3,
			    updated_at = NOW()
			WHERE kind = $1 AND subject_id = $2
		`, kind, subjectID, errMsg)
		return err
	})
}
