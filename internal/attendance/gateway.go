package attendance

import "context"

// Gateway is the remote system of record. Implementations do plain I/O only.
//
// AvailableSessions, Roster and ExistingRecord are safe to repeat.
// WriteAttendance is called at most once per user-initiated submit.
type Gateway interface {
	AvailableSessions(ctx context.Context, q AvailabilityQuery) ([]string, error)
	Roster(ctx context.Context, subjectID, batch string) ([]Student, error)
	// ExistingRecord returns nil, nil when no record is stored.
	ExistingRecord(ctx context.Context, q RecordQuery) (*ExistingRecord, error)
	WriteAttendance(ctx context.Context, w Write) error
}

// RosterInvalidator is implemented by gateways that cache rosters. The
// controller drops the cached copy before every roster reload within a form
// and after a successful submit, so a reload always reaches the remote.
type RosterInvalidator interface {
	InvalidateRoster(ctx context.Context, subjectID, batch string) error
}

// AvailabilityQuery keys a session availability lookup. Batch is empty when not applicable.
type AvailabilityQuery struct {
	SubjectID string
	Batch     string
	Date      string
}

// RecordQuery keys an existing record lookup.
type RecordQuery struct {
	SubjectID string
	Batch     string
	Date      string
	Session   string
}

// WriteMode selects create or update persistence.
type WriteMode string

const (
	WriteCreate WriteMode = "create"
	WriteUpdate WriteMode = "update"
)

// Write is a full attendance submission. Entries always cover the whole roster.
type Write struct {
	Mode        WriteMode
	RecordID    string
	SubjectID   string
	Batch       string
	Date        string
	Sessions    []string
	InstituteID string
	Entries     []Entry
}
