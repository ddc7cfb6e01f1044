package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/parcelhub/internal/domain/parcel"
	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/http/handlers"
	"github.com/geocoder89/parcelhub/internal/http/middlewares"
	"github.com/geocoder89/parcelhub/internal/repo/postgres"
	"github.com/geocoder89/parcelhub/internal/session"
	"github.com/geocoder89/parcelhub/internal/utils"
	"github.com/gin-gonic/gin"
)

type fakeDashboardRepo struct{ calls int }

func (f *fakeDashboardRepo) AdminSummary(context.Context, string) (postgres.AdminSummary, error) {
	f.calls++
	return postgres.AdminSummary{}, nil
}

func (f *fakeDashboardRepo) SuperadminSummary(context.Context) (postgres.SuperadminSummary, error) {
	f.calls++
	return postgres.SuperadminSummary{}, nil
}

type fakeParcelLister struct{ got *parcel.ListFilter }

func (f *fakeParcelLister) ListCursor(_ context.Context, fl parcel.ListFilter, _ *utils.Cursor) ([]parcel.Parcel, *string, error) {
	f.got = &fl
	return []parcel.Parcel{sampleParcel(parcel.StatusArrived)}, nil, nil
}

type viewsFixture struct {
	router  *gin.Engine
	backend *session.MemoryBackend
	lister  *fakeParcelLister
}

func newViewsFixture() viewsFixture {
	backend := session.NewMemoryBackend()
	sessions := middlewares.NewSessions(backend, time.Hour, false, nil)
	lister := &fakeParcelLister{}
	h := handlers.NewViewsHandler(handlers.NewDashboardHandler(&fakeDashboardRepo{}, nil), lister)

	r := newTestRouter()
	r.Use(sessions.Load())
	r.GET(role.LoginPath, h.Login)
	r.GET(role.AdminDashboardPath, middlewares.RequireView([]role.Role{role.Admin}, ""), h.AdminDashboard)
	r.GET(role.SuperadminDashboardPath, middlewares.RequireView([]role.Role{role.Superadmin}, ""), h.SuperadminDashboard)
	r.GET(role.DeliveriesPath, middlewares.RequireView(role.All(), ""), h.MyDeliveries)

	return viewsFixture{router: r, backend: backend, lister: lister}
}

// signIn seeds a session directly in the backend and returns its cookie.
func (fx viewsFixture) signIn(t *testing.T, sid string, r role.Role, station string) *http.Cookie {
	t.Helper()

	store, err := session.Open(context.Background(), fx.backend.Storage(sid))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	id := session.Identity{ID: "u-" + sid, Name: "Viewer", Role: r, Active: true}
	if station != "" {
		id.Station = &station
	}
	if err := store.Set(context.Background(), &id); err != nil {
		t.Fatalf("set: %v", err)
	}
	return &http.Cookie{Name: middlewares.SessionCookie, Value: sid}
}

func (fx viewsFixture) get(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	return w
}

func TestViewRouting(t *testing.T) {
	fx := newViewsFixture()

	userCookie := fx.signIn(t, "s-user", role.User, "")
	adminCookie := fx.signIn(t, "s-admin", role.Admin, "ACC")
	superCookie := fx.signIn(t, "s-super", role.Superadmin, "")

	tests := []struct {
		name     string
		path     string
		cookie   *http.Cookie
		wantCode int
		wantLoc  string
	}{
		{name: "anonymous to admin dashboard", path: role.AdminDashboardPath, wantCode: http.StatusFound, wantLoc: role.LoginPath},
		{name: "anonymous to deliveries", path: role.DeliveriesPath, wantCode: http.StatusFound, wantLoc: role.LoginPath},
		{name: "unknown session is anonymous", path: role.DeliveriesPath, cookie: &http.Cookie{Name: middlewares.SessionCookie, Value: "nope"}, wantCode: http.StatusFound, wantLoc: role.LoginPath},
		{name: "user to admin dashboard", path: role.AdminDashboardPath, cookie: userCookie, wantCode: http.StatusFound, wantLoc: role.DeliveriesPath},
		{name: "admin to superadmin dashboard", path: role.SuperadminDashboardPath, cookie: adminCookie, wantCode: http.StatusFound, wantLoc: role.AdminDashboardPath},
		{name: "superadmin to admin dashboard", path: role.AdminDashboardPath, cookie: superCookie, wantCode: http.StatusFound, wantLoc: role.SuperadminDashboardPath},
		{name: "admin to admin dashboard", path: role.AdminDashboardPath, cookie: adminCookie, wantCode: http.StatusOK},
		{name: "superadmin to superadmin dashboard", path: role.SuperadminDashboardPath, cookie: superCookie, wantCode: http.StatusOK},
		{name: "user to deliveries", path: role.DeliveriesPath, cookie: userCookie, wantCode: http.StatusOK},
		{name: "signed-in visitor skips login", path: role.LoginPath, cookie: adminCookie, wantCode: http.StatusFound, wantLoc: role.AdminDashboardPath},
		{name: "anonymous sees login", path: role.LoginPath, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := fx.get(tt.path, tt.cookie)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d body=%s", w.Code, tt.wantCode, w.Body.String())
			}
			if loc := w.Header().Get("Location"); loc != tt.wantLoc {
				t.Fatalf("location = %q, want %q", loc, tt.wantLoc)
			}
		})
	}
}

func TestMyDeliveriesScopedByViewer(t *testing.T) {
	fx := newViewsFixture()

	w := fx.get(role.DeliveriesPath, fx.signIn(t, "s-user", role.User, ""))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if fx.lister.got == nil || fx.lister.got.SenderUserID == nil || *fx.lister.got.SenderUserID != "u-s-user" {
		t.Fatalf("user deliveries must be scoped to sender: %+v", fx.lister.got)
	}

	var body struct {
		View    string `json:"view"`
		Parcels []struct {
			Display struct {
				NextStatus string `json:"nextStatus"`
			} `json:"display"`
		} `json:"parcels"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.View != "my_deliveries" || len(body.Parcels) != 1 || body.Parcels[0].Display.NextStatus != "delivered" {
		t.Fatalf("unexpected view: %s", w.Body.String())
	}

	fx.get(role.DeliveriesPath, fx.signIn(t, "s-admin", role.Admin, "KSI"))
	if fx.lister.got.Station == nil || *fx.lister.got.Station != "KSI" {
		t.Fatalf("admin deliveries must be station scoped: %+v", fx.lister.got)
	}
}

func TestDeactivatedViewerIsSignedOut(t *testing.T) {
	fx := newViewsFixture()
	ctx := context.Background()

	store, err := session.Open(ctx, fx.backend.Storage("s-gone"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id := session.Identity{ID: "u-gone", Name: "Kojo", Role: role.Superadmin, Active: false}
	if err := store.Set(ctx, &id); err != nil {
		t.Fatalf("set: %v", err)
	}
	store.Close()

	cookie := &http.Cookie{Name: middlewares.SessionCookie, Value: "s-gone"}

	w := fx.get(role.SuperadminDashboardPath, cookie)
	if w.Code != http.StatusFound || w.Header().Get("Location") != role.LoginPath {
		t.Fatalf("status = %d location = %q, want 302 %s", w.Code, w.Header().Get("Location"), role.LoginPath)
	}

	after, err := session.Open(ctx, fx.backend.Storage("s-gone"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer after.Close()
	if after.Authenticated() {
		t.Fatalf("deactivated session should be logged out")
	}

	if w := fx.get(role.LoginPath, cookie); w.Code != http.StatusOK {
		t.Fatalf("login view status = %d, want 200", w.Code)
	}
}
