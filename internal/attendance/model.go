package attendance

import (
	"slices"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// SubjectKind is the teaching format of a subject.
type SubjectKind string

const (
	KindTheory        SubjectKind = "theory"
	KindPractical     SubjectKind = "practical"
	KindTutorialGroup SubjectKind = "tg"
)

// Subject is one of the authenticated faculty member's subjects.
type Subject struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Kind    SubjectKind `json:"kind"`
	Batches []string    `json:"batches,omitempty"`
}

// BatchBearing reports whether a batch must be chosen before querying.
func (s Subject) BatchBearing() bool {
	return (s.Kind == KindPractical || s.Kind == KindTutorialGroup) && len(s.Batches) > 0
}

// HasBatch reports whether label is one of the subject's declared batches.
func (s Subject) HasBatch(label string) bool {
	return slices.Contains(s.Batches, label)
}

// Session is the read-only identity of the signed-in faculty member.
type Session struct {
	UserID      string
	Name        string
	InstituteID string
	Subjects    []Subject
}

// Subject looks up one of the session's subjects by id.
func (s Session) Subject(id string) (Subject, bool) {
	for _, sub := range s.Subjects {
		if sub.ID == id {
			return sub, true
		}
	}
	return Subject{}, false
}

// Student is a roster entry.
type Student struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Status is a per-student attendance mark.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// Entry is one line of an attendance record.
type Entry struct {
	StudentID string `json:"student_id"`
	Status    Status `json:"status"`
}

// ExistingRecord is an attendance record already stored remotely.
type ExistingRecord struct {
	ID        string
	SubjectID string
	Date      string
	Session   string
	Entries   []Entry
}

// Present returns the ids marked present in the record.
func (r ExistingRecord) Present() []string {
	var ids []string
	for _, e := range r.Entries {
		if e.Status == StatusPresent {
			ids = append(ids, e.StudentID)
		}
	}
	return ids
}

// FormatDate renders t as a calendar date in its own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
