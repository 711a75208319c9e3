package attendance

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadedTracker(t *testing.T, ids ...string) (*Tracker, RosterKey) {
	t.Helper()
	gw := newFakeGateway()
	gw.roster = students(ids...)
	tr := NewTracker(gw)
	c := readyCriteria(t, "MATH101", "", "2024-03-01")
	require.NoError(t, c.ToggleSession("1", NewAvailability([]string{"1"})))
	_, err := tr.LoadRoster(context.Background(), c)
	require.NoError(t, err)
	return tr, RosterKey{SubjectID: "MATH101"}
}

func TestPresenceToggleIsPure(t *testing.T) {
	p := NewPresence("s1")
	q := p.Toggle("s2")
	r := q.Toggle("s1")

	assert.Equal(t, []string{"s1"}, p.IDs())
	assert.Equal(t, []string{"s1", "s2"}, q.IDs())
	assert.Equal(t, []string{"s2"}, r.IDs())

	var zero Presence
	assert.Equal(t, []string{"x"}, zero.Toggle("x").IDs())
}

func TestTrackerLoadRosterPrecondition(t *testing.T) {
	gw := newFakeGateway()
	tr := NewTracker(gw)
	c := readyCriteria(t, "MATH101", "", "2024-03-01")

	_, err := tr.LoadRoster(context.Background(), c)
	require.ErrorIs(t, err, ErrPrecondition)
	assert.Zero(t, gw.rosterCalls)
	assert.False(t, tr.Loaded())
}

func TestTrackerLoadResetsPresence(t *testing.T) {
	tr, key := loadedTracker(t, "s1", "s2")
	require.NoError(t, tr.Toggle("s1"))

	tr.Load(key, students("s1", "s2", "s1", ""))
	assert.Zero(t, tr.Presence().Len())
	assert.Equal(t, students("s1", "s2"), tr.Roster())
}

func TestTrackerLoadFailureKeepsRoster(t *testing.T) {
	gw := newFakeGateway()
	gw.roster = students("s1")
	tr := NewTracker(gw)
	c := readyCriteria(t, "MATH101", "", "2024-03-01")
	require.NoError(t, c.ToggleSession("1", NewAvailability([]string{"1"})))
	_, err := tr.LoadRoster(context.Background(), c)
	require.NoError(t, err)
	require.NoError(t, tr.Toggle("s1"))

	gw.rosterErr = errDown
	_, err = tr.LoadRoster(context.Background(), c)
	require.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.Equal(t, students("s1"), tr.Roster())
	assert.True(t, tr.Presence().Has("s1"))
}

func TestTrackerToggleUnknownStudent(t *testing.T) {
	tr, _ := loadedTracker(t, "s1")
	err := tr.Toggle("ghost")
	require.ErrorIs(t, err, ErrUnknownStudent)
	assert.Zero(t, tr.Presence().Len())
}

func TestTrackerPayload(t *testing.T) {
	tr, _ := loadedTracker(t, "s1", "s2", "s3")
	require.NoError(t, tr.Toggle("s3"))
	require.NoError(t, tr.Toggle("s1"))

	want := []Entry{
		{StudentID: "s1", Status: StatusPresent},
		{StudentID: "s2", Status: StatusAbsent},
		{StudentID: "s3", Status: StatusPresent},
	}
	first := tr.Payload()
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("Payload() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(first, tr.Payload()); diff != "" {
		t.Errorf("Payload() not idempotent (-first +second):\n%s", diff)
	}
	assert.Len(t, first, len(tr.Roster()))
}

func TestTrackerSeedRoundTrip(t *testing.T) {
	tr, key := loadedTracker(t, "s1", "s2")
	rec := ExistingRecord{
		ID:        "rec-1",
		SubjectID: "MATH101",
		Entries: []Entry{
			{StudentID: "s1", Status: StatusPresent},
			{StudentID: "s2", Status: StatusAbsent},
			{StudentID: "gone", Status: StatusPresent},
		},
	}
	require.NoError(t, tr.Seed(key, rec))

	assert.Equal(t, []string{"s1"}, tr.Presence().IDs(), "ids outside the roster are never retained")
	want := []Entry{
		{StudentID: "s1", Status: StatusPresent},
		{StudentID: "s2", Status: StatusAbsent},
	}
	if diff := cmp.Diff(want, tr.Payload()); diff != "" {
		t.Errorf("Payload() mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, tr.Diff(rec))

	require.NoError(t, tr.Toggle("s2"))
	assert.Equal(t, []Entry{{StudentID: "s2", Status: StatusPresent}}, tr.Diff(rec))
}

func TestTrackerSeedStateErrors(t *testing.T) {
	empty := NewTracker(newFakeGateway())
	err := empty.Seed(RosterKey{SubjectID: "MATH101"}, ExistingRecord{})
	require.ErrorIs(t, err, ErrState)

	tr, _ := loadedTracker(t, "s1")
	err = tr.Seed(RosterKey{SubjectID: "PHY201L", Batch: "A"}, ExistingRecord{})
	require.ErrorIs(t, err, ErrState)

	err = tr.Seed(RosterKey{SubjectID: "MATH101"}, ExistingRecord{SubjectID: "PHY201L"})
	require.ErrorIs(t, err, ErrState)
}
