package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/parcelhub/internal/domain/delivery"
	"github.com/geocoder89/parcelhub/internal/domain/job"
	"github.com/geocoder89/parcelhub/internal/jobs"
	"github.com/geocoder89/parcelhub/internal/notifications"
)

// ProcessOne claims and runs at most one job. It reports whether a job was
// claimed.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}
		return false, err
	}

	w.metrics.IncClaimed(j.Type)
	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	start := time.Now()

	runCtx, cancelRun := context.WithTimeout(ctx, w.cfg.JobTimeout)
	err = w.execute(runCtx, j)
	cancelRun()

	elapsed := time.Since(start)
	w.metrics.ObserveDuration(elapsed)

	if err != nil {
		result := w.handleFailure(ctx, j, err)
		w.observe(j.Type, result, elapsed)
		return true, nil
	}

	if err := w.repo.MarkDone(ctx, j.ID); err != nil {
		_ = w.repo.MarkFailed(ctx, j.ID, "mark_done_failed: "+err.Error())
		return true, err
	}

	w.metrics.IncDone()
	w.observe(j.Type, "done", elapsed)
	w.log.InfoContext(ctx, "job done", "job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1)
	return true, nil
}

func (w *Worker) observe(jobType, result string, d time.Duration) {
	if w.prom == nil {
		return
	}
	w.prom.JobResults.WithLabelValues(jobType, result).Inc()
	w.prom.JobDuration.WithLabelValues(jobType, result).Observe(d.Seconds())
}

func (w *Worker) sent(kind, outcome string) {
	if w.prom != nil {
		w.prom.NotificationsSent.WithLabelValues(kind, outcome).Inc()
	}
}

// permanent errors will fail the same way on every attempt.
func permanent(err error) bool {
	return errors.Is(err, jobs.ErrInvalidJobType) ||
		errors.Is(err, jobs.ErrInvalidJobPayload) ||
		errors.Is(err, jobs.ErrPayloadTypeMismatch) ||
		errors.Is(err, notifications.ErrNoRecipient)
}

// handleFailure reschedules with backoff or dead-letters once attempts run
// out. It returns the outcome label.
func (w *Worker) handleFailure(ctx context.Context, j job.Job, cause error) string {
	w.metrics.IncFailed(cause.Error())
	attempt := j.Attempts + 1
	msg := cause.Error()

	if permanent(cause) || attempt >= j.MaxAttempts {
		if err := w.repo.MarkFailed(ctx, j.ID, msg); err != nil {
			w.log.Error("dead-letter job", "job_id", j.ID, "err", err)
		}
		w.metrics.IncDeadLettered()
		w.log.Error("job failed permanently", "job_id", j.ID, "job_type", j.Type, "attempt", attempt, "err", cause)
		return "failed"
	}

	runAt := time.Now().UTC().Add(ExponentialBackoff(j.Attempts))
	if err := w.repo.Reschedule(ctx, j.ID, runAt, msg); err != nil {
		w.log.Error("reschedule job", "job_id", j.ID, "err", err)
	}
	w.metrics.IncRetried()
	w.log.Warn("job retry scheduled", "job_id", j.ID, "job_type", j.Type, "attempt", attempt, "run_at", runAt, "err", cause)
	return "retry"
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	payload, err := jobs.DecodePayload(j)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case jobs.ParcelStatusChangedPayload:
		return w.deliver(ctx, j, delivery.KindParcelStatus, p.ParcelID+":"+p.To, p.RecipientPhone, func(ctx context.Context) error {
			return w.notifier.NotifyParcelStatus(ctx, notifications.ParcelStatusInput{
				TrackingCode:   p.TrackingCode,
				From:           p.From,
				To:             p.To,
				Reason:         p.Reason,
				SenderPhone:    p.SenderPhone,
				SenderEmail:    p.SenderEmail,
				RecipientPhone: p.RecipientPhone,
			})
		})

	case jobs.PaymentReceiptPayload:
		return w.deliver(ctx, j, delivery.KindPaymentReceipt, p.PaymentID, p.SenderPhone, func(ctx context.Context) error {
			return w.notifier.SendPaymentReceipt(ctx, notifications.PaymentReceiptInput{
				PaymentID:    p.PaymentID,
				TrackingCode: p.TrackingCode,
				Amount:       p.Amount,
				Method:       p.Method,
				SenderPhone:  p.SenderPhone,
				SenderEmail:  p.SenderEmail,
			})
		})

	default:
		return fmt.Errorf("%w: %s", jobs.ErrInvalidJobType, j.Type)
	}
}

// deliver sends through the ledger so a notification goes out once even when
// its job runs again.
func (w *Worker) deliver(ctx context.Context, j job.Job, kind, subjectID, recipient string, send func(context.Context) error) error {
	if w.ledger != nil {
		err := w.ledger.TryStart(ctx, kind, subjectID, j.ID, recipient)
		if errors.Is(err, delivery.ErrAlreadySent) {
			w.metrics.IncDuplicate()
			w.sent(kind, "duplicate")
			return nil
		}
		if err != nil {
			return err
		}
	}

	if err := send(ctx); err != nil {
		if w.ledger != nil {
			_ = w.ledger.MarkFailed(ctx, kind, subjectID, err.Error())
		}
		w.sent(kind, "error")
		return err
	}
	w.sent(kind, "sent")

	if w.ledger != nil {
		return w.ledger.MarkSent(ctx, kind, subjectID)
	}
	return nil
}
