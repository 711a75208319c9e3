package erpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"classroll/internal/attendance"
	"classroll/internal/metrics"
)

var (
	// ErrInvalidCredentials is returned by Login when the ERP rejects the credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotFaculty is returned by Login for accounts that may not record attendance.
	ErrNotFaculty = errors.New("only faculty accounts can record attendance")
)

// StatusError is returned when the ERP answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("erp error %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// Client calls the academic ERP. It implements attendance.Gateway once a
// bearer token is attached with WithToken.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Token   string
	log     logr.Logger
}

var _ attendance.Gateway = (*Client)(nil)

// New creates a client with the given request timeout.
func New(baseURL string, timeout time.Duration, log logr.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// WithToken returns a copy of the client that authenticates as token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.Token = token
	return &cp
}

// Login exchanges faculty credentials for an ERP token and user profile.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	err := c.do(ctx, "login", http.MethodPost, "/api/applogin", nil, map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusBadRequest || se.Code == http.StatusNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if out.Token == "" {
		return nil, fmt.Errorf("login response carried no token")
	}
	if err := validate.Struct(out.User); err != nil {
		return nil, fmt.Errorf("login response: invalid user: %w", err)
	}
	if !out.User.IsFaculty() {
		return nil, ErrNotFaculty
	}
	return &LoginResult{Token: out.Token, User: out.User}, nil
}

// AvailableSessions lists the sessions open for entry.
func (c *Client) AvailableSessions(ctx context.Context, q attendance.AvailabilityQuery) ([]string, error) {
	params := url.Values{}
	params.Set("subjectId", q.SubjectID)
	params.Set("date", q.Date)
	if q.Batch != "" {
		params.Set("batchId", q.Batch)
	}
	var out struct {
		AvailableSessions []label `json:"availableSessions"`
	}
	if err := c.do(ctx, "available_sessions", http.MethodGet, "/api/utils/available-sessions", params, nil, &out); err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(out.AvailableSessions))
	for _, l := range out.AvailableSessions {
		labels = append(labels, string(l))
	}
	return labels, nil
}

// Roster lists the students of a subject, scoped to a batch when given.
func (c *Client) Roster(ctx context.Context, subjectID, batch string) ([]attendance.Student, error) {
	params := url.Values{}
	params.Set("_id", subjectID)
	if batch != "" {
		params.Set("batchId", batch)
	}
	var out struct {
		Students []wireStudent `json:"students"`
	}
	if err := c.do(ctx, "roster", http.MethodGet, "/api/v2/utils/attendance-data", params, nil, &out); err != nil {
		return nil, err
	}
	roster := make([]attendance.Student, 0, len(out.Students))
	for _, s := range out.Students {
		roster = append(roster, attendance.Student{ID: s.ID, Name: s.Name})
	}
	return roster, nil
}

// ExistingRecord fetches the stored record for one session, or nil when there is none.
func (c *Client) ExistingRecord(ctx context.Context, q attendance.RecordQuery) (*attendance.ExistingRecord, error) {
	params := url.Values{}
	params.Set("_id", q.SubjectID)
	params.Set("date", q.Date)
	params.Set("session", q.Session)
	if q.Batch != "" {
		params.Set("batchId", q.Batch)
	}
	var out struct {
		AttendanceRecord *wireRecord `json:"attendanceRecord"`
	}
	if err := c.do(ctx, "existing_record", http.MethodGet, "/api/v2/update-attendance", params, nil, &out); err != nil {
		return nil, err
	}
	if out.AttendanceRecord == nil {
		return nil, nil
	}
	return out.AttendanceRecord.record(), nil
}

// WriteAttendance stores a full attendance submission. Create writes carry
// every session label; update writes carry the single session being revised.
func (c *Client) WriteAttendance(ctx context.Context, w attendance.Write) error {
	body := writeBody{
		Subject:   w.SubjectID,
		Date:      w.Date,
		Institute: w.InstituteID,
		Records:   make([]wireEntry, 0, len(w.Entries)),
	}
	if w.Mode == attendance.WriteUpdate && len(w.Sessions) == 1 {
		body.Session = w.Sessions[0]
	} else {
		body.Session = w.Sessions
	}
	if w.Batch != "" {
		body.BatchID = &w.Batch
	}
	for _, e := range w.Entries {
		body.Records = append(body.Records, wireEntry{Student: e.StudentID, Status: string(e.Status)})
	}
	return c.do(ctx, "write_attendance", http.MethodPut, "/api/v2/attendance", nil, body, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, in, out any) (err error) {
	start := time.Now()
	defer func() { metrics.RecordGatewayCall(op, start, err) }()

	endpoint := c.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s: erp request failed: %w", op, err)
	}
	defer resp.Body.Close()

	c.log.V(1).Info("ERP call", "op", op, "status", resp.StatusCode, "requestID", requestID, "duration", time.Since(start))

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%s: %w", op, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))})
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
