package attendance

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errDown = errors.New("connection refused")

// fakeGateway is an in-memory Gateway. A non-nil gate makes the matching call
// block until the gate is closed; entered receives once per blocked call.
type fakeGateway struct {
	mu sync.Mutex

	available   map[string][]string // by date
	availErr    error
	roster      []Student
	rosterErr   error
	record      *ExistingRecord
	recordErr   error
	writeErr    error
	availGate   chan struct{}
	rosterGate  chan struct{}
	recordGate  chan struct{}
	writeGate   chan struct{}
	entered     chan struct{}
	availCalls  []AvailabilityQuery
	rosterCalls int
	recordCalls []RecordQuery
	writes      []Write
	invalidated []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		available: map[string][]string{},
		entered:   make(chan struct{}, 8),
	}
}

func (f *fakeGateway) wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	f.entered <- struct{}{}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeGateway) AvailableSessions(ctx context.Context, q AvailabilityQuery) ([]string, error) {
	f.mu.Lock()
	f.availCalls = append(f.availCalls, q)
	gate := f.availGate
	labels, err := f.available[q.Date], f.availErr
	f.mu.Unlock()
	if werr := f.wait(ctx, gate); werr != nil {
		return nil, werr
	}
	return labels, err
}

func (f *fakeGateway) Roster(ctx context.Context, _, _ string) ([]Student, error) {
	f.mu.Lock()
	f.rosterCalls++
	gate := f.rosterGate
	roster, err := f.roster, f.rosterErr
	f.mu.Unlock()
	if werr := f.wait(ctx, gate); werr != nil {
		return nil, werr
	}
	return roster, err
}

func (f *fakeGateway) ExistingRecord(ctx context.Context, q RecordQuery) (*ExistingRecord, error) {
	f.mu.Lock()
	f.recordCalls = append(f.recordCalls, q)
	gate := f.recordGate
	rec, err := f.record, f.recordErr
	f.mu.Unlock()
	if werr := f.wait(ctx, gate); werr != nil {
		return nil, werr
	}
	return rec, err
}

func (f *fakeGateway) WriteAttendance(ctx context.Context, w Write) error {
	f.mu.Lock()
	f.writes = append(f.writes, w)
	gate, err := f.writeGate, f.writeErr
	f.mu.Unlock()
	if werr := f.wait(ctx, gate); werr != nil {
		return werr
	}
	return err
}

func (f *fakeGateway) InvalidateRoster(_ context.Context, subjectID, batch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, subjectID+"/"+batch)
	return nil
}

func (f *fakeGateway) invalidations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.invalidated...)
}

func (f *fakeGateway) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func testSession() Session {
	return Session{
		UserID:      "fac-1",
		Name:        "Dr. Rao",
		InstituteID: "inst-9",
		Subjects: []Subject{
			{ID: "MATH101", Name: "Calculus", Kind: KindTheory},
			{ID: "PHY201L", Name: "Physics Lab", Kind: KindPractical, Batches: []string{"A", "B"}},
			{ID: "TG1", Name: "Mentoring", Kind: KindTutorialGroup, Batches: []string{"T1"}},
		},
	}
}

func day(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func students(ids ...string) []Student {
	out := make([]Student, 0, len(ids))
	for _, id := range ids {
		out = append(out, Student{ID: id, Name: "Student " + id})
	}
	return out
}
