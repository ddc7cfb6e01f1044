package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/parcelhub/internal/actorctx"
	"github.com/geocoder89/parcelhub/internal/domain/job"
	"github.com/geocoder89/parcelhub/internal/domain/parcel"
	"github.com/geocoder89/parcelhub/internal/domain/station"
	"github.com/geocoder89/parcelhub/internal/jobs"
	"github.com/geocoder89/parcelhub/internal/observability"
	"github.com/geocoder89/parcelhub/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const parcelColumns = `id, tracking_code,
	sender_name, sender_phone, sender_email,
	recipient_name, recipient_phone, recipient_email,
	origin_station, destination_station, description, weight_kg::float8, delivery_type, fee,
	status, payment_status, failure_reason, sender_user_id, created_by,
	created_at, updated_at, delivered_at`

// JobEnqueuer is the part of the jobs repository a state change needs.
type JobEnqueuer interface {
	CreateTx(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error)
}

type ParcelsRepo struct {
	observer
	pool *pgxpool.Pool
	jobs JobEnqueuer
}

func NewParcelsRepo(pool *pgxpool.Pool, jobs JobEnqueuer, prom *observability.Prom) *ParcelsRepo {
	return &ParcelsRepo{observer: observer{prom: prom}, pool: pool, jobs: jobs}
}

func scanParcel(row pgx.Row) (parcel.Parcel, error) {
	var (
		p                    parcel.Parcel
		deliveryType, status string
		paymentStatus        string
	)

	err := row.Scan(
		&p.ID, &p.TrackingCode,
		&p.Sender.Name, &p.Sender.Phone, &p.Sender.Email,
		&p.Recipient.Name, &p.Recipient.Phone, &p.Recipient.Email,
		&p.OriginStation, &p.DestinationStation, &p.Description, &p.WeightKg, &deliveryType, &p.Fee,
		&status, &paymentStatus, &p.FailureReason, &p.SenderUserID, &p.CreatedBy,
		&p.CreatedAt, &p.UpdatedAt, &p.DeliveredAt,
	)
	if err != nil {
		return parcel.Parcel{}, err
	}

	p.DeliveryType = parcel.DeliveryType(deliveryType)
	p.Status = parcel.Status(status)
	p.PaymentStatus = parcel.PaymentStatus(paymentStatus)
	return p, nil
}

func (r *ParcelsRepo) Create(ctx context.Context, p parcel.Parcel) (parcel.Parcel, error) {
	err := r.observe("parcels.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO parcels (
				id, tracking_code,
				sender_name, sender_phone, sender_email,
				recipient_name, recipient_phone, recipient_email,
				origin_station, destination_station, description, weight_kg, delivery_type, fee,
				status, payment_status, failure_reason, sender_user_id, created_by,
				created_at, updated_at, delivered_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
				$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
			)`,
			p.ID, p.TrackingCode,
			p.Sender.Name, p.Sender.Phone, p.Sender.Email,
			p.Recipient.Name, p.Recipient.Phone, p.Recipient.Email,
			p.OriginStation, p.DestinationStation, p.Description, p.WeightKg, string(p.DeliveryType), p.Fee,
			string(p.Status), string(p.PaymentStatus), p.FailureReason, p.SenderUserID, p.CreatedBy,
			p.CreatedAt, p.UpdatedAt, p.DeliveredAt,
		)
		return err
	})

	if err != nil {
		if isForeignKeyViolation(err) {
			return parcel.Parcel{}, station.ErrNotFound
		}
		return parcel.Parcel{}, fmt.Errorf("create parcel: %w", err)
	}
	return p, nil
}

func (r *ParcelsRepo) GetByID(ctx context.Context, id string) (parcel.Parcel, error) {
	return r.getOne(ctx, "parcels.get_by_id", `SELECT `+parcelColumns+` FROM parcels WHERE id = $1`, id)
}

func (r *ParcelsRepo) GetByTrackingCode(ctx context.Context, code string) (parcel.Parcel, error) {
	return r.getOne(ctx, "parcels.get_by_tracking_code", `SELECT `+parcelColumns+` FROM parcels WHERE tracking_code = $1`, code)
}

func (r *ParcelsRepo) getOne(ctx context.Context, op, q string, arg any) (parcel.Parcel, error) {
	var p parcel.Parcel

	err := r.observe(op, func() error {
		var err error
		p, err = scanParcel(r.pool.QueryRow(ctx, q, arg))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return parcel.Parcel{}, parcel.ErrNotFound
		}
		return parcel.Parcel{}, err
	}
	return p, nil
}

// scopeConds restricts to one station's traffic and/or one sender.
func scopeConds(station, senderUserID *string, arg func(any) string) []string {
	var conds []string
	if station != nil {
		p := arg(*station)
		conds = append(conds, "(origin_station = "+p+" OR destination_station = "+p+")")
	}
	if senderUserID != nil {
		conds = append(conds, "sender_user_id = "+arg(*senderUserID))
	}
	return conds
}

func (r *ParcelsRepo) ListCursor(ctx context.Context, f parcel.ListFilter, after *utils.Cursor) ([]parcel.Parcel, *string, error) {
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conds := scopeConds(f.Station, f.SenderUserID, arg)
	if f.Status != nil {
		conds = append(conds, "status = "+arg(string(*f.Status)))
	}
	if f.PaymentStatus != nil {
		conds = append(conds, "payment_status = "+arg(string(*f.PaymentStatus)))
	}

	at, id := keyset(after)
	conds = append(conds, fmt.Sprintf("(created_at, id) < (%s, %s)", arg(at), arg(id)))

	q := `SELECT ` + parcelColumns + ` FROM parcels WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY created_at DESC, id DESC LIMIT ` + arg(f.Limit+1)

	out := make([]parcel.Parcel, 0, f.Limit+1)

	err := r.observe("parcels.list_cursor", func() error {
		rows, err := r.pool.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanParcel(rows)
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

	return page(out, f.Limit, func(p parcel.Parcel) (time.Time, string) { return p.CreatedAt, p.ID })
}

// Stats counts parcels by status and payment status. A nil station counts
// every parcel.
func (r *ParcelsRepo) Stats(ctx context.Context, station *string) (parcel.Stats, error) {
	s := parcel.NewStats()

	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	q := `SELECT status, payment_status, COUNT(*) FROM parcels`
	if conds := scopeConds(station, nil, arg); len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` GROUP BY status, payment_status`

	err := r.observe("parcels.stats", func() error {
		rows, err := r.pool.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var st, ps string
			var n int
			if err := rows.Scan(&st, &ps, &n); err != nil {
				return err
			}
			s.Total += n
			s.ByStatus[parcel.Status(st)] += n
			s.ByPaymentStatus[parcel.PaymentStatus(ps)] += n
		}
		return rows.Err()
	})
	if err != nil {
		return parcel.Stats{}, err
	}
	return s, nil
}

// Advance moves the parcel one step along its progression.
func (r *ParcelsRepo) Advance(ctx context.Context, id string) (parcel.Parcel, error) {
	return r.transition(ctx, "parcels.advance", id, nil, func(p parcel.Parcel) (parcel.Status, error) {
		next, ok := parcel.Next(p.Status)
		if !ok {
			return "", parcel.ErrNoNextStatus
		}
		return next, nil
	})
}

// Fail marks a non-terminal parcel as failed with reason.
func (r *ParcelsRepo) Fail(ctx context.Context, id, reason string) (parcel.Parcel, error) {
	return r.transition(ctx, "parcels.fail", id, &reason, func(p parcel.Parcel) (parcel.Status, error) {
		if !parcel.CanFail(p.Status) {
			return "", parcel.ErrTerminal
		}
		return parcel.StatusFailed, nil
	})
}

// transition locks the row, lets decide pick the target status, writes it and
// enqueues the status notification in the same transaction.
func (r *ParcelsRepo) transition(
	ctx context.Context,
	op, id string,
	reason *string,
	decide func(parcel.Parcel) (parcel.Status, error),
) (parcel.Parcel, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return parcel.Parcel{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := lockParcel(ctx, r.observer, tx, id)
	if err != nil {
		return parcel.Parcel{}, err
	}

	to, err := decide(cur)
	if err != nil {
		return parcel.Parcel{}, err
	}

	var updated parcel.Parcel
	err = r.observe(op, func() error {
		var err error
		updated, err = scanParcel(tx.QueryRow(ctx, `
			UPDATE parcels
			SET status = $2,
			    failure_reason = COALESCE($3, failure_reason),
			    delivered_at = CASE WHEN $2 = 'delivered' THEN NOW() ELSE delivered_at END,
			    updated_at = NOW()
			WHERE id = $1
			RETURNING `+parcelColumns,
			id, string(to), reason,
		))
		return err
	})
	if err != nil {
		return parcel.Parcel{}, err
	}

	if err := r.enqueueStatusChanged(ctx, tx, cur.Status, updated); err != nil {
		return parcel.Parcel{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return parcel.Parcel{}, err
	}
	r.transitioned("parcel", string(cur.Status), string(updated.Status))
	return updated, nil
}

func (r *ParcelsRepo) enqueueStatusChanged(ctx context.Context, tx pgx.Tx, from parcel.Status, p parcel.Parcel) error {
	if r.jobs == nil {
		return nil
	}

	actorID, _ := actorctx.UserIDFrom(ctx)

	payload := jobs.ParcelStatusChangedPayload{
		ParcelID:       p.ID,
		TrackingCode:   p.TrackingCode,
		From:           string(from),
		To:             string(p.Status),
		SenderPhone:    p.Sender.Phone,
		SenderEmail:    p.Sender.Email,
		RecipientPhone: p.Recipient.Phone,
		ChangedBy:      actorID,
		ChangedAt:      p.UpdatedAt,
		RequestID:      actorctx.RequestIDFrom(ctx),
	}
	if p.FailureReason != nil {
		payload.Reason = *p.FailureReason
	}

	// a parcel enters each status at most once
	req, err := jobs.NewCreateRequest(jobs.JobParcelStatusChanged, payload, p.ID+":"+string(p.Status), actorID)
	if err != nil {
		return err
	}

	_, err = r.jobs.CreateTx(ctx, tx, req)
	return err
}

// lockParcel reads a parcel row FOR UPDATE inside tx.
func lockParcel(ctx context.Context, o observer, tx pgx.Tx, id string) (parcel.Parcel, error) {
	var p parcel.Parcel

	err := o.observe("parcels.lock", func() error {
		var err error
		p, err = scanParcel(tx.QueryRow(ctx, `SELECT `+parcelColumns+` FROM parcels WHERE id = $1 FOR UPDATE`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return parcel.Parcel{}, parcel.ErrNotFound
		}
		return parcel.Parcel{}, err
	}
	return p, nil
}

func setParcelPaymentStatus(ctx context.Context, o observer, tx pgx.Tx, id string, ps parcel.PaymentStatus) error {
	return o.observe("parcels.set_payment_status", func() error {
		_, err := tx.Exec(ctx, `UPDATE parcels SET payment_status = $2, updated_at = NOW() WHERE id = $1`, id, string(ps))
		return err
	})
}
