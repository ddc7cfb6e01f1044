// Package apiclient is the typed client for the parcelhub REST API. It keeps
// the signed-in identity and tokens in a session.Store and reports every
// failure as an *Error carrying one human-readable message.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/parcelhub/internal/display"
	"github.com/geocoder89/parcelhub/internal/domain/parcel"
	"github.com/geocoder89/parcelhub/internal/domain/payment"
	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/domain/user"
	"github.com/geocoder89/parcelhub/internal/session"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *session.Store
	logger     *slog.Logger
}

func New(baseURL string, httpClient *http.Client, store *session.Store, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		store:      store,
		logger:     logger,
	}
}

type LoginResult struct {
	User       user.User `json:"user"`
	RedirectTo string    `json:"redirectTo"`
}

type Parcel struct {
	parcel.Parcel
	Display display.ParcelView `json:"display"`
}

type Tracking struct {
	parcel.Tracking
	Display display.ParcelView `json:"display"`
}

type UserQuery struct {
	Role   role.Role
	Active *bool
	Query  string
	Limit  int
	Cursor string
}

type UserPage struct {
	Items      []user.User `json:"items"`
	Count      int         `json:"count"`
	HasMore    bool        `json:"hasMore"`
	NextCursor *string     `json:"nextCursor"`
}

type SuperadminDashboard struct {
	UsersByRole      map[role.Role]int      `json:"usersByRole"`
	Stations         int                    `json:"stations"`
	ActiveStations   int                    `json:"activeStations"`
	Parcels          parcel.Stats           `json:"parcels"`
	PaymentsByStatus map[payment.Status]int `json:"paymentsByStatus"`
	Revenue          int64                  `json:"revenue"`
}

// Login signs in and persists the identity and tokens to the store.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out struct {
		LoginResult
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}

	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return LoginResult{}, err
	}

	if err := c.remember(ctx, out.User); err != nil {
		return LoginResult{}, err
	}
	if err := c.store.SetTokens(ctx, out.AccessToken, out.RefreshToken); err != nil {
		return LoginResult{}, &Error{Message: msgUnexpected, Err: err}
	}
	return out.LoginResult, nil
}

// Logout revokes the refresh token and clears the store. The local session is
// cleared even when the server cannot be reached.
func (c *Client) Logout(ctx context.Context) error {
	_, refresh := c.store.Tokens()

	var body any
	if refresh != "" {
		body = map[string]string{"refreshToken": refresh}
	}
	callErr := c.do(ctx, http.MethodPost, "/auth/logout", body, nil)

	if err := c.store.Logout(ctx); err != nil {
		return &Error{Message: msgUnexpected, Err: err}
	}
	return callErr
}

func (c *Client) Profile(ctx context.Context) (user.User, error) {
	var u user.User
	if err := c.do(ctx, http.MethodGet, "/profile/", nil, &u); err != nil {
		return user.User{}, err
	}
	return u, c.remember(ctx, u)
}

func (c *Client) UpdateProfile(ctx context.Context, req user.UpdateProfileRequest) (user.User, error) {
	var u user.User
	if err := c.do(ctx, http.MethodPatch, "/profile/", req, &u); err != nil {
		return user.User{}, err
	}
	return u, c.remember(ctx, u)
}

func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	req := user.ChangePasswordRequest{CurrentPassword: current, NewPassword: next}
	return c.do(ctx, http.MethodPut, "/auth/change-password/", req, nil)
}

func (c *Client) ListUsers(ctx context.Context, q UserQuery) (UserPage, error) {
	v := url.Values{}
	if q.Role != "" {
		v.Set("role", q.Role.String())
	}
	if q.Active != nil {
		v.Set("active", strconv.FormatBool(*q.Active))
	}
	if q.Query != "" {
		v.Set("q", q.Query)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		v.Set("cursor", q.Cursor)
	}

	path := "/users/"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	var page UserPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return UserPage{}, err
	}
	return page, nil
}

func (c *Client) SetUserActive(ctx context.Context, id string, active bool) (user.User, error) {
	action := "deactivate"
	if active {
		action = "activate"
	}

	var u user.User
	if err := c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(id)+"/"+action+"/", nil, &u); err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (c *Client) SuperadminDashboard(ctx context.Context) (SuperadminDashboard, error) {
	var d SuperadminDashboard
	if err := c.do(ctx, http.MethodGet, "/dashboard/superadmin/", nil, &d); err != nil {
		return SuperadminDashboard{}, err
	}
	return d, nil
}

// ParcelStats returns counts for station, or for every station when it is
// empty and the caller is a superadmin.
func (c *Client) ParcelStats(ctx context.Context, station string) (parcel.Stats, error) {
	path := "/parcels/stats/"
	if station != "" {
		path += "?station=" + url.QueryEscape(station)
	}

	var s parcel.Stats
	if err := c.do(ctx, http.MethodGet, path, nil, &s); err != nil {
		return parcel.Stats{}, err
	}
	return s, nil
}

func (c *Client) TrackParcel(ctx context.Context, trackingCode string) (Tracking, error) {
	var t Tracking
	if err := c.do(ctx, http.MethodGet, "/parcels/track/"+url.PathEscape(trackingCode)+"/", nil, &t); err != nil {
		return Tracking{}, err
	}
	return t, nil
}

func (c *Client) AdvanceParcel(ctx context.Context, id string) (Parcel, error) {
	var p Parcel
	if err := c.do(ctx, http.MethodPost, "/parcels/"+url.PathEscape(id)+"/advance/", nil, &p); err != nil {
		return Parcel{}, err
	}
	return p, nil
}

func (c *Client) remember(ctx context.Context, u user.User) error {
	id := session.FromUser(u)
	if err := c.store.Set(ctx, &id); err != nil {
		return &Error{Message: msgUnexpected, Err: err}
	}
	return nil
}

// do sends one request and decodes a 2xx body into out. It never retries.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &Error{Message: msgUnexpected, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Message: msgUnexpected, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access, _ := c.store.Tokens(); access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "api request failed", "method", method, "path", path, "err", err)
		return transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp.StatusCode, raw)
		c.logger.InfoContext(ctx, "api error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"code", apiErr.Code,
			"request_id", apiErr.RequestID,
		)
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Status: resp.StatusCode, Message: msgUnexpected, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
