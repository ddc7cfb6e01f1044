package postgres

import (
	"context"
	"fmt"

	"github.com/geocoder89/parcelhub/internal/domain/parcel"
	"github.com/geocoder89/parcelhub/internal/domain/payment"
	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/observability"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdminSummary is one station's view of its traffic.
type AdminSummary struct {
	Station       string          `json:"station"`
	Parcels       parcel.Stats    `json:"parcels"`
	Outgoing      int             `json:"outgoing"`
	Incoming      int             `json:"incoming"`
	Revenue       int64           `json:"revenue"`
	RecentParcels []parcel.Parcel `json:"recentParcels"`
}

type SuperadminSummary struct {
	UsersByRole      map[role.Role]int      `json:"usersByRole"`
	Stations         int                    `json:"stations"`
	ActiveStations   int                    `json:"activeStations"`
	Parcels          parcel.Stats           `json:"parcels"`
	PaymentsByStatus map[payment.Status]int `json:"paymentsByStatus"`
	Revenue          int64                  `json:"revenue"`
}

// DashboardRepo runs the aggregate reads behind the two dashboards.
type DashboardRepo struct {
	observer
	pool    *pgxpool.Pool
	parcels *ParcelsRepo
}

func NewDashboardRepo(pool *pgxpool.Pool, parcels *ParcelsRepo, prom *observability.Prom) *DashboardRepo {
	return &DashboardRepo{observer: observer{prom: prom}, pool: pool, parcels: parcels}
}

func (r *DashboardRepo) AdminSummary(ctx context.Context, station string) (AdminSummary, error) {
	out := AdminSummary{Station: station}

	stats, err := r.parcels.Stats(ctx, &station)
	if err != nil {
		return AdminSummary{}, err
	}
	out.Parcels = stats

	err = r.observe("dashboard.admin.flows", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT
				COUNT(*) FILTER (WHERE origin_station = $1),
				COUNT(*) FILTER (WHERE destination_station = $1)
			FROM parcels
			WHERE origin_station = $1 OR destination_station = $1
		`, station).Scan(&out.Outgoing, &out.Incoming)
	})
	if err != nil {
		return AdminSummary{}, err
	}

	err = r.observe("dashboard.admin.revenue", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT COALESCE(SUM(pm.amount), 0)::bigint
			FROM payments pm
			JOIN parcels pc ON pc.id = pm.parcel_id
			WHERE pm.status = 'completed' AND pc.origin_station = $1
		`, station).Scan(&out.Revenue)
	})
	if err != nil {
		return AdminSummary{}, err
	}

	recent, _, err := r.parcels.ListCursor(ctx, parcel.ListFilter{Station: &station, Limit: 5}, nil)
	if err != nil {
		return AdminSummary{}, err
	}
	out.RecentParcels = recent

	return out, nil
}

func (r *DashboardRepo) SuperadminSummary(ctx context.Context) (SuperadminSummary, error) {
	out := SuperadminSummary{
		UsersByRole:      make(map[role.Role]int, len(role.All())),
		PaymentsByStatus: make(map[payment.Status]int, len(payment.Statuses())),
	}
	for _, rl := range role.All() {
		out.UsersByRole[rl] = 0
	}
	for _, s := range payment.Statuses() {
		out.PaymentsByStatus[s] = 0
	}

	err := r.observe("dashboard.superadmin.users", func() error {
		rows, err := r.pool.Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var rl string
			var n int
			if err := rows.Scan(&rl, &n); err != nil {
				return err
			}
			out.UsersByRole[role.Role(rl)] = n
		}
		return rows.Err()
	})
	if err != nil {
		return SuperadminSummary{}, fmt.Errorf("count users: %w", err)
	}

	err = r.observe("dashboard.superadmin.stations", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT COUNT(*), COUNT(*) FILTER (WHERE active) FROM stations
		`).Scan(&out.Stations, &out.ActiveStations)
	})
	if err != nil {
		return SuperadminSummary{}, fmt.Errorf("count stations: %w", err)
	}

	stats, err := r.parcels.Stats(ctx, nil)
	if err != nil {
		return SuperadminSummary{}, err
	}
	out.Parcels = stats

	err = r.observe("dashboard.superadmin.payments", func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT status, COUNT(*), COALESCE(SUM(amount), 0)::bigint FROM payments GROUP BY status
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var s string
			var n int
			var sum int64
			if err := rows.Scan(&s, &n, &sum); err != nil {
				return err
			}
			out.PaymentsByStatus[payment.Status(s)] = n
			if payment.Status(s) == payment.StatusCompleted {
				out.Revenue = sum
			}
		}
		return rows.Err()
	})
	if err != nil {
		return SuperadminSummary{}, fmt.Errorf("count payments: %w", err)
	}

	return out, nil
}
