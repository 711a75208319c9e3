package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"

	"classroll/internal/attendance"
	"classroll/internal/auth"
	"classroll/internal/device"
	"classroll/internal/erpclient"
)

var errERPDown = errors.New("erp down")

type fakeERP struct {
	password string
	role     string
}

func (f *fakeERP) Login(_ context.Context, email, password string) (*erpclient.LoginResult, error) {
	if password != f.password {
		return nil, erpclient.ErrInvalidCredentials
	}
	if f.role != erpclient.RoleFaculty {
		return nil, erpclient.ErrNotFaculty
	}
	return &erpclient.LoginResult{
		Token: "erp-" + email,
		User: erpclient.User{
			ID:        "u1",
			Name:      "Prof",
			Role:      f.role,
			Institute: erpclient.Institute{ID: "inst-9"},
			Subjects: []erpclient.SubjectRef{
				{ID: "MATH101", Name: "Maths", SubType: "theory"},
				{ID: "PHY201L", Name: "Physics Lab", SubType: "practical", Batch: []string{"A", "B"}},
			},
		},
	}, nil
}

type fakeGateway struct {
	mu       sync.Mutex
	token    string
	avail    []string
	roster   []attendance.Student
	record   *attendance.ExistingRecord
	availErr error
	writes   []attendance.Write
}

func (g *fakeGateway) AvailableSessions(context.Context, attendance.AvailabilityQuery) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.avail...), g.availErr
}

func (g *fakeGateway) Roster(context.Context, string, string) ([]attendance.Student, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]attendance.Student(nil), g.roster...), nil
}

func (g *fakeGateway) ExistingRecord(context.Context, attendance.RecordQuery) (*attendance.ExistingRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.record, nil
}

func (g *fakeGateway) WriteAttendance(_ context.Context, w attendance.Write) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.writes = append(g.writes, w)
	return nil
}

func (g *fakeGateway) setAvailErr(err error) {
	g.mu.Lock()
	g.availErr = err
	g.mu.Unlock()
}

type memDevices struct {
	mu      sync.Mutex
	devices map[string]string
	tokens  map[string]device.RefreshToken
}

func newMemDevices() *memDevices {
	return &memDevices{devices: map[string]string{}, tokens: map[string]device.RefreshToken{}}
}

func (m *memDevices) UpsertDevice(_ context.Context, deviceID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[deviceID] = userID
	return nil
}

func (m *memDevices) SaveRefreshToken(_ context.Context, t device.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.Token] = t
	return nil
}

func (m *memDevices) LookupRefreshToken(_ context.Context, token string) (device.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return device.RefreshToken{}, device.ErrTokenNotFound
	}
	return t, nil
}

func (m *memDevices) RevokeRefreshToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tokens[token]
	t.Revoked = true
	m.tokens[token] = t
	return nil
}

func (m *memDevices) RevokeSession(_ context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, t := range m.tokens {
		if t.SessionID == sessionID && !t.Revoked {
			t.Revoked = true
			m.tokens[k] = t
			n++
		}
	}
	return n, nil
}

type harness struct {
	t        *testing.T
	router   *gin.Engine
	gw       *fakeGateway
	devices  *memDevices
	registry *Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, testr.New(t))
}

// newHarnessWith builds a harness logging to log, with mw ahead of the API routes.
func newHarnessWith(t *testing.T, log logr.Logger, mw ...gin.HandlerFunc) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gw := &fakeGateway{
		avail:  []string{"1", "2", "3"},
		roster: []attendance.Student{{ID: "st1", Name: "Ada"}, {ID: "st2", Name: "Alan"}, {ID: "st3", Name: "Grace"}},
	}
	h := &harness{
		t:        t,
		router:   gin.New(),
		gw:       gw,
		devices:  newMemDevices(),
		registry: NewRegistry(time.Hour),
	}
	h.router.Use(mw...)
	issuer := auth.NewIssuer("classroll-test", "secret", time.Minute, time.Hour)
	gateways := func(token string) attendance.Gateway {
		gw.mu.Lock()
		gw.token = token
		gw.mu.Unlock()
		return gw
	}
	New(log, &fakeERP{password: "pw", role: erpclient.RoleFaculty}, gateways, h.registry, issuer, h.devices).Register(h.router)
	return h
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) login() loginResponse {
	h.t.Helper()
	w := h.do(http.MethodPost, "/v1/login", "", map[string]string{"email": "prof@uni.edu", "password": "pw", "device_id": "dev-1"})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	var res loginResponse
	require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) attendance.View {
	t.Helper()
	var v attendance.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
