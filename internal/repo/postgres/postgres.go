package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/parcelhub/internal/observability"
	"github.com/geocoder89/parcelhub/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// observer times repository operations when metrics are wired.
type observer struct {
	prom *observability.Prom
}

func (o observer) observe(op string, fn func() error) error {
	if o.prom != nil {
		return o.prom.ObserveDB(op, fn)
	}
	return fn()
}

// transitioned counts a committed status change of kind parcel or payment.
func (o observer) transitioned(kind, from, to string) {
	if o.prom == nil {
		return
	}
	switch kind {
	case "parcel":
		o.prom.ParcelTransitions.WithLabelValues(from, to).Inc()
	case "payment":
		o.prom.PaymentTransitions.WithLabelValues(from, to).Inc()
	}
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// keyset returns the position to read after. The first page starts past any
// real row: far future plus the max uuid.
func keyset(after *utils.Cursor) (time.Time, string) {
	if after == nil {
		return time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC), "ffffffff-ffff-ffff-ffff-ffffffffffff"
	}
	return after.At, after.ID
}

// page trims a limit+1 result to limit and encodes the cursor for the next
// page when there is one.
func page[T any](rows []T, limit int, key func(T) (time.Time, string)) ([]T, *string, error) {
	if len(rows) <= limit {
		return rows, nil, nil
	}

	rows = rows[:limit]
	at, id := key(rows[len(rows)-1])

	cur, err := utils.EncodeCursor(at, id)
	if err != nil {
		return nil, nil, err
	}
	return rows, &cur, nil
}
