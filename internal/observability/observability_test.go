package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/geocoder89/parcelhub/internal/actorctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
)

func TestClassifyDBErr(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: &pgconn.PgError{Code: "23505"}, want: "unique_violation"},
		{err: fmt.Errorf("insert payment: %w", &pgconn.PgError{Code: "23503"}), want: "foreign_key_violation"},
		{err: &pgconn.PgError{Code: "55P03"}, want: "lock_not_available"},
		{err: &pgconn.PgError{Code: "22P02"}, want: "pg_22P02"},
		{err: context.DeadlineExceeded, want: "timeout"},
		{err: context.Canceled, want: "canceled"},
		{err: pgx.ErrTxClosed, want: "tx_closed"},
		{err: errors.New("weird"), want: "unknown"},
	}

	for _, tt := range tests {
		if got := ClassifyDBErr(tt.err); got != tt.want {
			t.Errorf("ClassifyDBErr(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestObserveDBTreatsNoRowsAsNotFound(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewProm(reg)

	_ = p.ObserveDB("parcels.get", func() error { return pgx.ErrNoRows })
	_ = p.ObserveDB("parcels.create", func() error { return &pgconn.PgError{Code: "23505"} })

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	statuses := map[string]bool{}
	for _, mf := range families {
		switch mf.GetName() {
		case "parcelhub_db_errors_total":
			if len(mf.GetMetric()) != 1 {
				t.Fatalf("error series = %d, want 1", len(mf.GetMetric()))
			}
		case "parcelhub_db_query_duration_seconds":
			for _, m := range mf.GetMetric() {
				for _, l := range m.GetLabel() {
					if l.GetName() == "status" {
						statuses[l.GetValue()] = true
					}
				}
			}
		}
	}
	if !statuses["not_found"] || !statuses["error"] {
		t.Fatalf("statuses = %v", statuses)
	}
}

func TestContextHandlerStampsActor(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "prod", "")

	ctx := actorctx.WithRequestID(context.Background(), "req-1")
	ctx = actorctx.WithUserID(ctx, "u-1")
	log.InfoContext(ctx, "parcel advanced")
	log.Debug("hidden at info")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one json record, got %q: %v", buf.String(), err)
	}
	if rec["request_id"] != "req-1" || rec["user_id"] != "u-1" {
		t.Fatalf("actor not stamped: %v", rec)
	}
	if _, ok := rec["trace_id"]; ok {
		t.Fatalf("no span in context, trace_id should be absent: %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		env, level string
		want       slog.Level
	}{
		{env: "dev", want: slog.LevelDebug},
		{env: "prod", want: slog.LevelInfo},
		{env: "prod", level: "WARN", want: slog.LevelWarn},
		{env: "dev", level: "error", want: slog.LevelError},
		{env: "prod", level: "loud", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.env, tt.level); got != tt.want {
			t.Errorf("parseLevel(%q, %q) = %v, want %v", tt.env, tt.level, got, tt.want)
		}
	}
}

func TestJobMetricsSnapshot(t *testing.T) {
	m := NewJobMetrics()
	m.IncClaimed("payment.receipt")
	m.IncClaimed("payment.receipt")
	m.IncFailed("provider down")
	m.ObserveDuration(0)

	s := m.Snapshot()
	if s.Claimed != 2 || s.ClaimedByType["payment.receipt"] != 2 {
		t.Fatalf("claims: %+v", s)
	}
	if s.Failed != 1 || s.LastError != "provider down" || s.LastErrorAt == nil {
		t.Fatalf("failure: %+v", s)
	}
}
