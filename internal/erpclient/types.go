package erpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"

	"classroll/internal/attendance"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RoleFaculty is the only role allowed to record attendance.
const RoleFaculty = "faculty"

// Institute is the institute a user belongs to.
type Institute struct {
	ID   string `json:"_id" validate:"required"`
	Name string `json:"name"`
}

// SubjectRef is a subject as listed on the ERP user profile.
type SubjectRef struct {
	ID      string   `json:"_id" validate:"required"`
	Code    string   `json:"id"`
	Name    string   `json:"name" validate:"required"`
	SubType string   `json:"subType" validate:"required,oneof=theory practical tg"`
	Batch   []string `json:"batch" validate:"dive,required"`
}

// User is the profile returned by the ERP on login.
type User struct {
	ID         string       `json:"_id" validate:"required"`
	Name       string       `json:"name"`
	Email      string       `json:"email" validate:"omitempty,email"`
	Role       string       `json:"role" validate:"required"`
	Department string       `json:"department"`
	Institute  Institute    `json:"institute"`
	Subjects   []SubjectRef `json:"subjects" validate:"dive"`
}

// IsFaculty reports whether the user may record attendance.
func (u User) IsFaculty() bool { return u.Role == RoleFaculty }

// Session converts the profile into the engine's read-only session.
func (u User) Session() attendance.Session {
	s := attendance.Session{
		UserID:      u.ID,
		Name:        u.Name,
		InstituteID: u.Institute.ID,
		Subjects:    make([]attendance.Subject, 0, len(u.Subjects)),
	}
	for _, ref := range u.Subjects {
		name := ref.Name
		if ref.Code != "" {
			name = ref.Code + " " + ref.Name
		}
		s.Subjects = append(s.Subjects, attendance.Subject{
			ID:      ref.ID,
			Name:    name,
			Kind:    attendance.SubjectKind(ref.SubType),
			Batches: append([]string(nil), ref.Batch...),
		})
	}
	return s
}

// LoginResult is a successful ERP login.
type LoginResult struct {
	Token string
	User  User
}

// label is a session label the ERP may encode as a string or a number.
type label string

func (l *label) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = label(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("session label: %w", err)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*l = label(strconv.FormatInt(i, 10))
		return nil
	}
	*l = label(n.String())
	return nil
}

type wireStudent struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type wireEntry struct {
	Student string `json:"student"`
	Status  string `json:"status"`
}

type wireRecord struct {
	ID      string      `json:"_id"`
	Subject string      `json:"subject"`
	Date    string      `json:"date"`
	Session label       `json:"session"`
	Records []wireEntry `json:"records"`
}

func (r wireRecord) record() *attendance.ExistingRecord {
	date := r.Date
	if len(date) > len(attendance.DateLayout) {
		date = date[:len(attendance.DateLayout)]
	}
	rec := &attendance.ExistingRecord{
		ID:        r.ID,
		SubjectID: r.Subject,
		Date:      date,
		Session:   string(r.Session),
		Entries:   make([]attendance.Entry, 0, len(r.Records)),
	}
	for _, e := range r.Records {
		status := attendance.StatusAbsent
		if attendance.Status(e.Status) == attendance.StatusPresent {
			status = attendance.StatusPresent
		}
		rec.Entries = append(rec.Entries, attendance.Entry{StudentID: e.Student, Status: status})
	}
	return rec
}

type writeBody struct {
	Subject   string      `json:"subject"`
	Date      string      `json:"date"`
	Session   any         `json:"session"`
	Institute string      `json:"institute"`
	Records   []wireEntry `json:"attendanceRecords"`
	BatchID   *string     `json:"batchId,omitempty"`
}
