package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/parcelhub/internal/cache"
	"github.com/geocoder89/parcelhub/internal/domain/parcel"
	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/http/handlers"
	"github.com/geocoder89/parcelhub/internal/security"
	"github.com/geocoder89/parcelhub/internal/utils"
	"github.com/gin-gonic/gin"
)

type fakeParcelsRepo struct {
	createFn   func(ctx context.Context, p parcel.Parcel) (parcel.Parcel, error)
	getFn      func(ctx context.Context, id string) (parcel.Parcel, error)
	trackFn    func(ctx context.Context, code string) (parcel.Parcel, error)
	listFn     func(ctx context.Context, f parcel.ListFilter, after *utils.Cursor) ([]parcel.Parcel, *string, error)
	statsFn    func(ctx context.Context, station *string) (parcel.Stats, error)
	advanceFn  func(ctx context.Context, id string) (parcel.Parcel, error)
	failFn     func(ctx context.Context, id, reason string) (parcel.Parcel, error)
	statsCalls int
}

func (f *fakeParcelsRepo) Create(ctx context.Context, p parcel.Parcel) (parcel.Parcel, error) {
	return f.createFn(ctx, p)
}
func (f *fakeParcelsRepo) GetByID(ctx context.Context, id string) (parcel.Parcel, error) {
	return f.getFn(ctx, id)
}
func (f *fakeParcelsRepo) GetByTrackingCode(ctx context.Context, code string) (parcel.Parcel, error) {
	return f.trackFn(ctx, code)
}
func (f *fakeParcelsRepo) ListCursor(ctx context.Context, fl parcel.ListFilter, after *utils.Cursor) ([]parcel.Parcel, *string, error) {
	return f.listFn(ctx, fl, after)
}
func (f *fakeParcelsRepo) Stats(ctx context.Context, station *string) (parcel.Stats, error) {
	f.statsCalls++
	return f.statsFn(ctx, station)
}
func (f *fakeParcelsRepo) Advance(ctx context.Context, id string) (parcel.Parcel, error) {
	return f.advanceFn(ctx, id)
}
func (f *fakeParcelsRepo) Fail(ctx context.Context, id, reason string) (parcel.Parcel, error) {
	return f.failFn(ctx, id, reason)
}

const parcelID = "5b8f0a2e-6c1d-4c1e-9a55-0f3c2b7d9e11"

func sampleParcel(status parcel.Status) parcel.Parcel {
	sender := "u-sender"
	return parcel.Parcel{
		ID:                 parcelID,
		TrackingCode:       "PH-01HZX3N4Q8W5V6B7C8D9E0F1G2",
		Sender:             parcel.Contact{Name: "Ama", Phone: "0240000000"},
		Recipient:          parcel.Contact{Name: "Kofi", Phone: "0550000000"},
		OriginStation:      "ACC",
		DestinationStation: "KSI",
		WeightKg:           1.5,
		DeliveryType:       parcel.DeliveryStandard,
		Status:             status,
		PaymentStatus:      parcel.PaymentUnpaid,
		SenderUserID:       &sender,
		CreatedBy:          "u-admin",
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}
}

func parcelsRouter(repo *fakeParcelsRepo, c *cache.Cache, auth gin.HandlerFunc) *gin.Engine {
	h := handlers.NewParcelsHandler(repo, c, security.NewSanitizer())

	r := newTestRouter()
	r.GET("/parcels/track/:trackingCode/", h.Track)

	g := r.Group("/parcels", auth)
	g.POST("/", h.Create)
	g.GET("/", h.List)
	g.GET("/stats/", h.Stats)
	g.GET("/:id/", h.Get)
	g.POST("/:id/advance/", h.Advance)
	g.POST("/:id/fail/", h.Fail)
	return r
}

const createParcelBody = `{
	"sender":{"name":"<b>Ama</b>","phone":"0240000000"},
	"recipient":{"name":"Kofi","phone":"0550000000"},
	"originStation":"tml",
	"destinationStation":"ksi",
	"description":"<script>alert(1)</script>shoes",
	"deliveryType":"standard",
	"weightKg":1.5
}`

func TestCreateParcelAdminForcedToOwnStation(t *testing.T) {
	var stored parcel.Parcel
	repo := &fakeParcelsRepo{createFn: func(_ context.Context, p parcel.Parcel) (parcel.Parcel, error) {
		stored = p
		return p, nil
	}}

	r := parcelsRouter(repo, nil, as("u-admin", role.Admin, "ACC"))
	w := doJSON(t, r, http.MethodPost, "/parcels/", createParcelBody)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}
	if stored.OriginStation != "ACC" || stored.DestinationStation != "KSI" {
		t.Fatalf("stations = %s -> %s, want ACC -> KSI", stored.OriginStation, stored.DestinationStation)
	}
	if stored.Sender.Name != "Ama" || stored.Description != "shoes" {
		t.Fatalf("free text not sanitized: %q %q", stored.Sender.Name, stored.Description)
	}
	if stored.SenderUserID != nil || stored.CreatedBy != "u-admin" {
		t.Fatalf("unexpected ownership: sender=%v createdBy=%s", stored.SenderUserID, stored.CreatedBy)
	}
	if stored.Status != parcel.StatusCreated || stored.TrackingCode == "" {
		t.Fatalf("new parcel not initialized: %+v", stored)
	}

	var resp handlers.ParcelResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Display.NextStatus != "in_transit" || resp.Display.Status.Label != "Created" {
		t.Fatalf("unexpected display block: %+v", resp.Display)
	}
}

func TestCreateParcelUserBecomesSender(t *testing.T) {
	var stored parcel.Parcel
	repo := &fakeParcelsRepo{createFn: func(_ context.Context, p parcel.Parcel) (parcel.Parcel, error) {
		stored = p
		return p, nil
	}}

	r := parcelsRouter(repo, nil, as("u-7", role.User, ""))
	w := doJSON(t, r, http.MethodPost, "/parcels/", createParcelBody)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}
	if stored.SenderUserID == nil || *stored.SenderUserID != "u-7" || stored.OriginStation != "TML" {
		t.Fatalf("unexpected parcel: %+v", stored)
	}
}

func TestCreateParcelRejectsSameStations(t *testing.T) {
	repo := &fakeParcelsRepo{createFn: func(_ context.Context, p parcel.Parcel) (parcel.Parcel, error) {
		t.Fatalf("repo must not be called")
		return p, nil
	}}

	body := `{"sender":{"name":"Ama","phone":"0240000000"},"recipient":{"name":"Kofi","phone":"0550000000"},
		"destinationStation":"ACC","deliveryType":"standard","weightKg":1}`

	r := parcelsRouter(repo, nil, as("u-admin", role.Admin, "ACC"))
	if w := doJSON(t, r, http.MethodPost, "/parcels/", body); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestListParcelsScopesByRole(t *testing.T) {
	tests := []struct {
		name        string
		auth        gin.HandlerFunc
		wantStation string
		wantSender  string
	}{
		{name: "user sees own", auth: as("u-7", role.User, ""), wantSender: "u-7"},
		{name: "admin sees station", auth: as("u-a", role.Admin, "ACC"), wantStation: "ACC"},
		{name: "superadmin sees all", auth: as("u-s", role.Superadmin, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got parcel.ListFilter
			repo := &fakeParcelsRepo{listFn: func(_ context.Context, f parcel.ListFilter, _ *utils.Cursor) ([]parcel.Parcel, *string, error) {
				got = f
				return []parcel.Parcel{sampleParcel(parcel.StatusCreated)}, nil, nil
			}}

			r := parcelsRouter(repo, nil, tt.auth)
			w := doJSON(t, r, http.MethodGet, "/parcels/?status=created&limit=500", "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
			}

			station, sender := "", ""
			if got.Station != nil {
				station = *got.Station
			}
			if got.SenderUserID != nil {
				sender = *got.SenderUserID
			}
			if station != tt.wantStation || sender != tt.wantSender {
				t.Fatalf("scope = (%q, %q), want (%q, %q)", station, sender, tt.wantStation, tt.wantSender)
			}
			if got.Limit != 100 || got.Status == nil || *got.Status != parcel.StatusCreated {
				t.Fatalf("unexpected filter: %+v", got)
			}
		})
	}
}

func TestListParcelsRejectsBadQuery(t *testing.T) {
	repo := &fakeParcelsRepo{}
	r := parcelsRouter(repo, nil, as("u-s", role.Superadmin, ""))

	for _, path := range []string{"/parcels/?status=teleported", "/parcels/?paymentStatus=free", "/parcels/?cursor=not-a-cursor"} {
		if w := doJSON(t, r, http.MethodGet, path, ""); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", path, w.Code)
		}
	}
}

func TestGetParcelOutOfScopeIsNotFound(t *testing.T) {
	repo := &fakeParcelsRepo{getFn: func(context.Context, string) (parcel.Parcel, error) {
		return sampleParcel(parcel.StatusCreated), nil
	}}

	tests := []struct {
		name string
		auth gin.HandlerFunc
		want int
	}{
		{name: "other admin", auth: as("u-b", role.Admin, "TML"), want: http.StatusNotFound},
		{name: "destination admin", auth: as("u-c", role.Admin, "KSI"), want: http.StatusOK},
		{name: "other user", auth: as("u-other", role.User, ""), want: http.StatusNotFound},
		{name: "sender", auth: as("u-sender", role.User, ""), want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := parcelsRouter(repo, nil, tt.auth)
			if w := doJSON(t, r, http.MethodGet, "/parcels/"+parcelID+"/", ""); w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAdvanceParcel(t *testing.T) {
	tests := []struct {
		name     string
		advance  func() (parcel.Parcel, error)
		wantCode int
		wantErr  string
	}{
		{
			name:     "moves forward",
			advance:  func() (parcel.Parcel, error) { return sampleParcel(parcel.StatusInTransit), nil },
			wantCode: http.StatusOK,
		},
		{
			name:     "delivered has no next",
			advance:  func() (parcel.Parcel, error) { return parcel.Parcel{}, parcel.ErrNoNextStatus },
			wantCode: http.StatusConflict,
			wantErr:  "no_next_status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeParcelsRepo{
				getFn: func(context.Context, string) (parcel.Parcel, error) {
					return sampleParcel(parcel.StatusCreated), nil
				},
				advanceFn: func(context.Context, string) (parcel.Parcel, error) { return tt.advance() },
			}

			r := parcelsRouter(repo, nil, as("u-a", role.Admin, "ACC"))
			w := doJSON(t, r, http.MethodPost, "/parcels/"+parcelID+"/advance/", "")
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d body=%s", w.Code, tt.wantCode, w.Body.String())
			}

			if tt.wantErr != "" {
				var resp bindErrorResponse
				_ = json.Unmarshal(w.Body.Bytes(), &resp)
				if resp.Error.Code != tt.wantErr {
					t.Fatalf("code = %q, want %q", resp.Error.Code, tt.wantErr)
				}
			}
		})
	}
}

func TestFailParcel(t *testing.T) {
	var gotReason string
	repo := &fakeParcelsRepo{
		getFn: func(context.Context, string) (parcel.Parcel, error) {
			return sampleParcel(parcel.StatusArrived), nil
		},
		failFn: func(_ context.Context, _ string, reason string) (parcel.Parcel, error) {
			gotReason = reason
			p := sampleParcel(parcel.StatusFailed)
			p.FailureReason = &reason
			return p, nil
		},
	}

	r := parcelsRouter(repo, nil, as("u-s", role.Superadmin, ""))

	if w := doJSON(t, r, http.MethodPost, "/parcels/"+parcelID+"/fail/", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing reason: status = %d, want 400", w.Code)
	}

	w := doJSON(t, r, http.MethodPost, "/parcels/"+parcelID+"/fail/", `{"reason":"<i>recipient</i> unreachable"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if gotReason != "recipient unreachable" {
		t.Fatalf("reason = %q", gotReason)
	}

	repo.failFn = func(context.Context, string, string) (parcel.Parcel, error) {
		return parcel.Parcel{}, parcel.ErrTerminal
	}
	if w := doJSON(t, r, http.MethodPost, "/parcels/"+parcelID+"/fail/", `{"reason":"lost in depot"}`); w.Code != http.StatusConflict {
		t.Fatalf("terminal parcel: status = %d, want 409", w.Code)
	}
}

func TestTrackParcelIsPublicAndReduced(t *testing.T) {
	p := sampleParcel(parcel.StatusInTransit)
	var gotCode string
	repo := &fakeParcelsRepo{trackFn: func(_ context.Context, code string) (parcel.Parcel, error) {
		gotCode = code
		return p, nil
	}}

	r := parcelsRouter(repo, nil, func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) })

	w := doJSON(t, r, http.MethodGet, "/parcels/track/ph-01hzx3n4q8w5v6b7c8d9e0f1g2/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if gotCode != p.TrackingCode {
		t.Fatalf("code not normalized: %q", gotCode)
	}

	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if _, leaked := body["sender"]; leaked {
		t.Fatalf("tracking view must not expose contacts: %v", body)
	}

	if w := doJSON(t, r, http.MethodGet, "/parcels/track/nonsense/", ""); w.Code != http.StatusNotFound {
		t.Fatalf("bad code: status = %d, want 404", w.Code)
	}
}

func TestParcelStatsCachedAndInvalidated(t *testing.T) {
	c := cache.New(time.Minute)
	var gotStation *string
	repo := &fakeParcelsRepo{
		statsFn: func(_ context.Context, station *string) (parcel.Stats, error) {
			gotStation = station
			s := parcel.NewStats()
			s.Total = 3
			return s, nil
		},
		getFn: func(context.Context, string) (parcel.Parcel, error) {
			return sampleParcel(parcel.StatusCreated), nil
		},
		advanceFn: func(context.Context, string) (parcel.Parcel, error) {
			return sampleParcel(parcel.StatusInTransit), nil
		},
	}

	r := parcelsRouter(repo, c, as("u-a", role.Admin, "ACC"))

	w := doJSON(t, r, http.MethodGet, "/parcels/stats/", "")
	if w.Code != http.StatusOK || w.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first call: status=%d cache=%s", w.Code, w.Header().Get("X-Cache"))
	}
	if gotStation == nil || *gotStation != "ACC" {
		t.Fatalf("admin stats must be station scoped")
	}

	w = doJSON(t, r, http.MethodGet, "/parcels/stats/", "")
	if w.Header().Get("X-Cache") != "HIT" || repo.statsCalls != 1 {
		t.Fatalf("second call should hit cache: cache=%s calls=%d", w.Header().Get("X-Cache"), repo.statsCalls)
	}

	_ = doJSON(t, r, http.MethodPost, "/parcels/"+parcelID+"/advance/", "")

	w = doJSON(t, r, http.MethodGet, "/parcels/stats/", "")
	if w.Header().Get("X-Cache") != "MISS" || repo.statsCalls != 2 {
		t.Fatalf("advance should invalidate stats: cache=%s calls=%d", w.Header().Get("X-Cache"), repo.statsCalls)
	}
}

func TestGetParcelConditional(t *testing.T) {
	pc := sampleParcel(parcel.StatusInTransit)
	repo := &fakeParcelsRepo{getFn: func(context.Context, string) (parcel.Parcel, error) { return pc, nil }}
	r := parcelsRouter(repo, nil, as("u-sender", role.User, ""))

	w := doJSON(t, r, http.MethodGet, "/parcels/"+parcelID+"/", "")
	tag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || tag == "" {
		t.Fatalf("status = %d etag = %q", w.Code, tag)
	}

	req := httptest.NewRequest(http.MethodGet, "/parcels/"+parcelID+"/", nil)
	req.Header.Set("If-None-Match", tag)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Fatalf("unchanged parcel status = %d, want 304", w.Code)
	}

	pc.UpdatedAt = pc.UpdatedAt.Add(time.Second)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("updated parcel status = %d, want 200", w.Code)
	}
}
