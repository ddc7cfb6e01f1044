package integration__test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/geocoder89/parcelhub/internal/config"
	"github.com/geocoder89/parcelhub/internal/db"
	apphttp "github.com/geocoder89/parcelhub/internal/http"
	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/domain/user"
	"github.com/geocoder89/parcelhub/internal/repo/postgres"
	"github.com/geocoder89/parcelhub/internal/security"
	"github.com/geocoder89/parcelhub/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

const testPassword = "password123"

type testEnv struct {
	router http.Handler
	pool   *pgxpool.Pool
	log    *slog.Logger
}

func testConfig(dsn string) config.Config {
	return config.Config{
		Env:                "test",
		DBURL:              dsn,
		JWTSecret:          "test-secret-key",
		AccessTTL:          time.Hour,
		RefreshTTL:         7 * 24 * time.Hour,
		SessionTTL:         time.Hour,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		AuthRateLimit:      1000,
		AuthRateBurst:      1000,
		WorkerConcurrency:  1,
	}
}

// setupEnv needs a disposable Postgres in TEST_DB_DSN; it truncates every
// table before and after the test.
func setupEnv(t *testing.T) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	if err := db.RunMigrations(dsn); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	pool, err := db.NewPool(context.Background(), dsn, 5)
	if err != nil {
		t.Fatalf("Failed to create pgx pool: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))

	router := apphttp.NewRouter(apphttp.Deps{
		Cfg:      testConfig(dsn),
		Log:      logger,
		Pool:     pool,
		Sessions: session.NewMemoryBackend(),
	})

	env := testEnv{router: router, pool: pool, log: logger}
	env.reset(t)
	t.Cleanup(func() {
		env.reset(t)
		pool.Close()
	})
	return env
}

func (e testEnv) reset(t *testing.T) {
	t.Helper()

	_, err := e.pool.Exec(context.Background(), `
		TRUNCATE notification_deliveries, jobs, payments, parcels, refresh_tokens, users, stations
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

func (e testEnv) seedStation(t *testing.T, code, name string) {
	t.Helper()

	_, err := e.pool.Exec(context.Background(), `INSERT INTO stations (code, name) VALUES ($1, $2)`, code, name)
	if err != nil {
		t.Fatalf("seed station %s: %v", code, err)
	}
}

func (e testEnv) seedUser(t *testing.T, email string, r role.Role, station string) user.User {
	t.Helper()

	hash, err := security.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	in := user.NewUser{Name: "Test " + string(r), Email: email, Phone: "0240000000", PasswordHash: hash, Role: r}
	if station != "" {
		in.Station = &station
	}

	u, err := postgres.NewUsersRepo(e.pool, nil).Create(context.Background(), in)
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return u
}

// login returns an access token for a seeded account.
func (e testEnv) login(t *testing.T, email string) string {
	t.Helper()

	w, _ := doRequest(e.router, http.MethodPost, "/auth/login", `{"email":"`+email+`","password":"`+testPassword+`"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body=%s", email, w.Code, w.Body.String())
	}

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	mustReadJSON(t, w, &resp)
	return resp.AccessToken
}

func doRequest(router http.Handler, method, path, body, token string, cookies ...*http.Cookie) (*httptest.ResponseRecorder, *http.Response) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w, w.Result()
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()
	err := json.Unmarshal(w.Body.Bytes(), out)
	if err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

func cookieNamed(t *testing.T, response *http.Response, name string) *http.Cookie {
	t.Helper()

	for _, c := range response.Cookies() {
		if c.Name == name {
			return c
		}
	}

	t.Fatalf("%s cookie not found in response", name)
	return nil
}
