package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/parcelhub/internal/domain/station"
	"github.com/geocoder89/parcelhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const stationColumns = `code, name, address, phone, active, created_at, updated_at`

type StationsRepo struct {
	observer
	pool *pgxpool.Pool
}

func NewStationsRepo(pool *pgxpool.Pool, prom *observability.Prom) *StationsRepo {
	return &StationsRepo{observer: observer{prom: prom}, pool: pool}
}

func scanStation(row pgx.Row) (station.Station, error) {
	var s station.Station
	err := row.Scan(&s.Code, &s.Name, &s.Address, &s.Phone, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *StationsRepo) Create(ctx context.Context, s station.Station) (station.Station, error) {
	err := r.observe("stations.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO stations (`+stationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			s.Code, s.Name, s.Address, s.Phone, s.Active, s.CreatedAt, s.UpdatedAt,
		)
		return err
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return station.Station{}, station.ErrCodeExists
		}
		return station.Station{}, fmt.Errorf("create station: %w", err)
	}
	return s, nil
}

func (r *StationsRepo) GetByCode(ctx context.Context, code string) (station.Station, error) {
	var s station.Station

	err := r.observe("stations.get_by_code", func() error {
		var err error
		s, err = scanStation(r.pool.QueryRow(ctx,
			`SELECT `+stationColumns+` FROM stations WHERE code = $1`, station.NormalizeCode(code)))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return station.Station{}, station.ErrNotFound
		}
		return station.Station{}, err
	}
	return s, nil
}

// List returns stations ordered by code. A nil active lists all of them.
func (r *StationsRepo) List(ctx context.Context, active *bool) ([]station.Station, error) {
	out := make([]station.Station, 0, 16)

	err := r.observe("stations.list", func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT `+stationColumns+`
			FROM stations
			WHERE ($1::boolean IS NULL OR active = $1)
			ORDER BY code ASC
		`, active)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			s, err := scanStation(rows)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *StationsRepo) Update(ctx context.Context, code string, req station.UpdateRequest) (station.Station, error) {
	var s station.Station

	err := r.observe("stations.update", func() error {
		var err error
		s, err = scanStation(r.pool.QueryRow(ctx, `
			UPDATE stations
			SET name = COALESCE($2, name),
			    address = COALESCE($3, address),
			    phone = COALESCE($4, phone),
			    updated_at = NOW()
			WHERE code = $1
			RETURNING `+stationColumns,
			station.NormalizeCode(code), req.Name, req.Address, req.Phone,
		))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return station.Station{}, station.ErrNotFound
		}
		return station.Station{}, err
	}
	return s, nil
}

func (r *StationsRepo) ToggleActive(ctx context.Context, code string) (station.Station, error) {
	var s station.Station

	err := r.observe("stations.toggle_active", func() error {
		var err error
		s, err = scanStation(r.pool.QueryRow(ctx, `
			UPDATE stations
			SET active = NOT active, updated_at = NOW()
			WHERE code = $1
			RETURNING `+stationColumns,
			station.NormalizeCode(code),
		))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return station.Station{}, station.ErrNotFound
		}
		return station.Station{}, err
	}
	return s, nil
}
