package integration__test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/parcelhub/internal/apiclient"
	"github.com/geocoder89/parcelhub/internal/domain/parcel"
	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/session"
)

// newClient serves the real router over HTTP and returns a client with its
// own in-memory session store.
func newClient(t *testing.T, env testEnv) (*apiclient.Client, *session.Store) {
	t.Helper()

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	store, err := session.Open(context.Background(), session.NewMemoryStorage())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)

	return apiclient.New(srv.URL, srv.Client(), store, env.log), store
}

func TestAPIClient_SuperadminManagesUsers(t *testing.T) {
	env := setupEnv(t)
	env.seedStation(t, "ACC", "Accra Central")
	env.seedStation(t, "KSI", "Kumasi")
	env.seedUser(t, "root@example.com", role.Superadmin, "")
	customer := env.seedUser(t, "customer@example.com", role.User, "")

	ctx := context.Background()
	client, store := newClient(t, env)

	res, err := client.Login(ctx, "root@example.com", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.RedirectTo != role.SuperadminDashboardPath {
		t.Fatalf("redirectTo = %q", res.RedirectTo)
	}
	if cur := store.Current(); cur == nil || cur.Role != role.Superadmin || !store.Authenticated() {
		t.Fatalf("store identity = %+v", cur)
	}

	page, err := client.ListUsers(ctx, apiclient.UserQuery{Role: role.User})
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if page.Count != 1 || page.Items[0].ID != customer.ID {
		t.Fatalf("users page = %+v", page)
	}

	u, err := client.SetUserActive(ctx, customer.ID, false)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if u.Active {
		t.Fatalf("customer still active")
	}

	d, err := client.SuperadminDashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.Stations != 2 || d.UsersByRole[role.Superadmin] != 1 {
		t.Fatalf("dashboard = %+v", d)
	}

	if err := client.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if store.Authenticated() {
		t.Fatalf("store should be cleared after logout")
	}

	// the server rejects the now-anonymous client with one readable line
	_, err = client.Profile(ctx)
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || apiclient.Message(err) == "" {
		t.Fatalf("profile after logout: %v", err)
	}
}

func TestAPIClient_AdminAdvancesAndTracksParcel(t *testing.T) {
	env := setupEnv(t)
	env.seedStation(t, "ACC", "Accra Central")
	env.seedStation(t, "KSI", "Kumasi")
	env.seedUser(t, "acc@example.com", role.Admin, "ACC")

	p := createParcel(t, env, env.login(t, "acc@example.com"))

	ctx := context.Background()
	client, _ := newClient(t, env)

	if _, err := client.Login(ctx, "acc@example.com", testPassword); err != nil {
		t.Fatalf("login: %v", err)
	}

	advanced, err := client.AdvanceParcel(ctx, p.ID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if advanced.Status != parcel.StatusInTransit || advanced.Display.Status.Label != "In Transit" {
		t.Fatalf("advanced = %+v", advanced)
	}

	tr, err := client.TrackParcel(ctx, p.TrackingCode)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if tr.Display.NextStatus != string(parcel.StatusArrived) {
		t.Fatalf("tracking display = %+v", tr.Display)
	}

	stats, err := client.ParcelStats(ctx, "")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	// server field errors come back as one message naming the field
	err = client.ChangePassword(ctx, "wrong-password", "brand-new-secret")
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Code != "invalid_request" {
		t.Fatalf("change password with wrong current: %v", err)
	}

	_, err = client.AdvanceParcel(ctx, "5d7e9c1a-0000-4000-8000-000000000000")
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("advance unknown parcel: %v", err)
	}
}
