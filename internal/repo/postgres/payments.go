package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/parcelhub/internal/actorctx"
	"github.com/geocoder89/parcelhub/internal/domain/parcel"
	"github.com/geocoder89/parcelhub/internal/domain/payment"
	"github.com/geocoder89/parcelhub/internal/jobs"
	"github.com/geocoder89/parcelhub/internal/observability"
	"github.com/geocoder89/parcelhub/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `pm.id, pm.parcel_id, pm.amount, pm.method, pm.status, pm.provider_ref, pm.provider_metadata,
	pm.recorded_by, pm.created_at, pm.updated_at, pm.completed_at`

type PaymentsRepo struct {
	observer
	pool *pgxpool.Pool
	jobs JobEnqueuer
}

func NewPaymentsRepo(pool *pgxpool.Pool, jobs JobEnqueuer, prom *observability.Prom) *PaymentsRepo {
	return &PaymentsRepo{observer: observer{prom: prom}, pool: pool, jobs: jobs}
}

func scanPayment(row pgx.Row) (payment.Payment, error) {
	var (
		p              payment.Payment
		method, status string
		meta           []byte
	)

	err := row.Scan(
		&p.ID, &p.ParcelID, &p.Amount, &method, &status, &p.ProviderRef, &meta,
		&p.RecordedBy, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		return payment.Payment{}, err
	}

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.ProviderMetadata); err != nil {
			return payment.Payment{}, fmt.Errorf("decode provider metadata: %w", err)
		}
	}
	if len(p.ProviderMetadata) == 0 {
		p.ProviderMetadata = nil
	}

	p.Method = payment.Method(method)
	p.Status = payment.Status(status)
	return p, nil
}

// Create records a pending payment and moves the parcel to payment pending.
// A parcel carries at most one pending or completed payment.
func (r *PaymentsRepo) Create(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return payment.Payment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	pc, err := lockParcel(ctx, r.observer, tx, p.ParcelID)
	if err != nil {
		return payment.Payment{}, err
	}
	if pc.PaymentStatus == parcel.PaymentPending || pc.PaymentStatus == parcel.PaymentPaid {
		return payment.Payment{}, payment.ErrParcelSettled
	}

	meta := p.ProviderMetadata
	if meta == nil {
		meta = map[string]string{}
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return payment.Payment{}, err
	}

	err = r.observe("payments.create", func() error {
		_, err := tx.Exec(ctx, `
			INSERT INTO payments (id, parcel_id, amount, method, status, provider_ref, provider_metadata,
				recorded_by, created_at, updated_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			p.ID, p.ParcelID, p.Amount, string(p.Method), string(p.Status), p.ProviderRef, rawMeta,
			p.RecordedBy, p.CreatedAt, p.UpdatedAt, p.CompletedAt,
		)
		return err
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return payment.Payment{}, payment.ErrParcelSettled
		}
		return payment.Payment{}, fmt.Errorf("create payment: %w", err)
	}

	if err := setParcelPaymentStatus(ctx, r.observer, tx, p.ParcelID, payment.ParcelPaymentStatus(p.Status)); err != nil {
		return payment.Payment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return payment.Payment{}, err
	}
	return p, nil
}

func (r *PaymentsRepo) GetByID(ctx context.Context, id string) (payment.Payment, error) {
	var p payment.Payment

	err := r.observe("payments.get_by_id", func() error {
		var err error
		p, err = scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments pm WHERE pm.id = $1`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payment.Payment{}, payment.ErrNotFound
		}
		return payment.Payment{}, err
	}
	return p, nil
}

func (r *PaymentsRepo) ListCursor(ctx context.Context, f payment.ListFilter, after *utils.Cursor) ([]payment.Payment, *string, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	from := `payments pm`
	if f.Station != nil {
		from += ` JOIN parcels pc ON pc.id = pm.parcel_id`
		p := arg(*f.Station)
		conds = append(conds, "(pc.origin_station = "+p+" OR pc.destination_station = "+p+")")
	}
	if f.Status != nil {
		conds = append(conds, "pm.status = "+arg(string(*f.Status)))
	}
	if f.Method != nil {
		conds = append(conds, "pm.method = "+arg(string(*f.Method)))
	}
	if f.ParcelID != nil {
		conds = append(conds, "pm.parcel_id = "+arg(*f.ParcelID))
	}

	at, id := keyset(after)
	conds = append(conds, fmt.Sprintf("(pm.created_at, pm.id) < (%s, %s)", arg(at), arg(id)))

	q := `SELECT ` + paymentColumns + ` FROM ` + from + ` WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY pm.created_at DESC, pm.id DESC LIMIT ` + arg(f.Limit+1)

	out := make([]payment.Payment, 0, f.Limit+1)

	err := r.observe("payments.list_cursor", func() error {
		rows, err := r.pool.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPayment(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	return page(out, f.Limit, func(p payment.Payment) (time.Time, string) { return p.CreatedAt, p.ID })
}

// Transition moves a payment to status to and keeps the parcel's payment
// status in step. Completing a payment enqueues its receipt.
func (r *PaymentsRepo) Transition(ctx context.Context, id string, to payment.Status) (payment.Payment, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return payment.Payment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur payment.Payment
	err = r.observe("payments.lock", func() error {
		var err error
		cur, err = scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments pm WHERE pm.id = $1 FOR UPDATE`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payment.Payment{}, payment.ErrNotFound
		}
		return payment.Payment{}, err
	}

	parcelStatus, err := payment.Transition(cur.Status, to)
	if err != nil {
		return payment.Payment{}, err
	}

	pc, err := lockParcel(ctx, r.observer, tx, cur.ParcelID)
	if err != nil {
		return payment.Payment{}, err
	}

	var updated payment.Payment
	err = r.observe("payments.transition", func() error {
		var err error
		updated, err = scanPayment(tx.QueryRow(ctx, `
			UPDATE payments pm
			SET status = $2,
			    completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE completed_at END,
			    updated_at = NOW()
			WHERE pm.id = $1
			RETURNING `+paymentColumns,
			id, string(to),
		))
		return err
	})
	if err != nil {
		return payment.Payment{}, err
	}

	if err := setParcelPaymentStatus(ctx, r.observer, tx, cur.ParcelID, parcelStatus); err != nil {
		return payment.Payment{}, err
	}

	if to == payment.StatusCompleted {
		if err := r.enqueueReceipt(ctx, tx, updated, pc); err != nil {
			return payment.Payment{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return payment.Payment{}, err
	}
	r.transitioned("payment", string(cur.Status), string(updated.Status))
	return updated, nil
}

func (r *PaymentsRepo) enqueueReceipt(ctx context.Context, tx pgx.Tx, p payment.Payment, pc parcel.Parcel) error {
	if r.jobs == nil {
		return nil
	}

	actorID, _ := actorctx.UserIDFrom(ctx)

	completedAt := p.UpdatedAt
	if p.CompletedAt != nil {
		completedAt = *p.CompletedAt
	}

	payload := jobs.PaymentReceiptPayload{
		PaymentID:    p.ID,
		ParcelID:     p.ParcelID,
		TrackingCode: pc.TrackingCode,
		Amount:       p.Amount,
		Method:       string(p.Method),
		SenderPhone:  pc.Sender.Phone,
		SenderEmail:  pc.Sender.Email,
		CompletedAt:  completedAt,
		RequestID:    actorctx.RequestIDFrom(ctx),
	}

	// a payment completes at most once
	req, err := jobs.NewCreateRequest(jobs.JobPaymentReceipt, payload, "receipt:"+p.ID, actorID)
	if err != nil {
		return err
	}

	_, err = r.jobs.CreateTx(ctx, tx, req)
	return err
}
