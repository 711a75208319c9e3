package attendance

import (
	"context"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Presence is an immutable set of student ids marked present.
type Presence struct {
	ids sets.Set[string]
}

func NewPresence(ids ...string) Presence {
	return Presence{ids: sets.New(ids...)}
}

func (p Presence) Has(id string) bool { return p.ids.Has(id) }

func (p Presence) Len() int { return p.ids.Len() }

// IDs returns the present ids, sorted.
func (p Presence) IDs() []string { return sets.List(p.ids) }

// Toggle returns a new Presence with id's membership flipped.
func (p Presence) Toggle(id string) Presence {
	next := p.ids.Clone()
	if next == nil {
		next = sets.New[string]()
	}
	if next.Has(id) {
		next.Delete(id)
	} else {
		next.Insert(id)
	}
	return Presence{ids: next}
}

// Tracker owns the loaded roster and the presence selection over it.
type Tracker struct {
	gw       Gateway
	loaded   bool
	key      RosterKey
	roster   []Student
	members  sets.Set[string]
	presence Presence
}

func NewTracker(gw Gateway) *Tracker {
	return &Tracker{gw: gw, members: sets.New[string](), presence: NewPresence()}
}

// Fetch retrieves the roster for q without touching tracker state.
func (t *Tracker) Fetch(ctx context.Context, q Query) ([]Student, error) {
	if len(q.Sessions) == 0 {
		return nil, precondition("load roster", "at least one session must be chosen")
	}
	roster, err := t.gw.Roster(ctx, q.SubjectID, q.Batch)
	if err != nil {
		return nil, remoteUnavailable("load roster", err)
	}
	return roster, nil
}

// Load replaces the roster and resets presence to empty.
func (t *Tracker) Load(key RosterKey, roster []Student) {
	t.loaded = true
	t.key = key
	t.roster = nil
	t.members = sets.New[string]()
	for _, s := range roster {
		if s.ID == "" || t.members.Has(s.ID) {
			continue
		}
		t.members.Insert(s.ID)
		t.roster = append(t.roster, s)
	}
	t.presence = NewPresence()
}

// LoadRoster fetches and loads in one step. On error the current roster is kept.
func (t *Tracker) LoadRoster(ctx context.Context, c *Criteria) ([]Student, error) {
	q := c.Query()
	roster, err := t.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	t.Load(q.rosterKey(), roster)
	return t.Roster(), nil
}

// Seed sets presence to the record's present students. Ids outside the roster are dropped.
func (t *Tracker) Seed(key RosterKey, rec ExistingRecord) error {
	if !t.loaded {
		return stateError("seed", "no roster loaded")
	}
	if key != t.key || (rec.SubjectID != "" && rec.SubjectID != key.SubjectID) {
		return stateError("seed", "record does not belong to the loaded roster")
	}
	var ids []string
	for _, id := range rec.Present() {
		if t.members.Has(id) {
			ids = append(ids, id)
		}
	}
	t.presence = NewPresence(ids...)
	return nil
}

// Toggle flips a student's presence.
func (t *Tracker) Toggle(studentID string) error {
	if !t.members.Has(studentID) {
		return unknownStudent("toggle", studentID)
	}
	t.presence = t.presence.Toggle(studentID)
	return nil
}

// Payload builds one entry per roster member, in roster order.
func (t *Tracker) Payload() []Entry {
	entries := make([]Entry, 0, len(t.roster))
	for _, s := range t.roster {
		entries = append(entries, Entry{StudentID: s.ID, Status: t.status(s.ID)})
	}
	return entries
}

// Diff returns the current entries whose status differs from rec. Roster
// members missing from rec count as stored absent.
func (t *Tracker) Diff(rec ExistingRecord) []Entry {
	stored := sets.New(rec.Present()...)
	var changed []Entry
	for _, s := range t.roster {
		if stored.Has(s.ID) != t.presence.Has(s.ID) {
			changed = append(changed, Entry{StudentID: s.ID, Status: t.status(s.ID)})
		}
	}
	return changed
}

func (t *Tracker) status(id string) Status {
	if t.presence.Has(id) {
		return StatusPresent
	}
	return StatusAbsent
}

func (t *Tracker) Loaded() bool { return t.loaded }

func (t *Tracker) Key() RosterKey { return t.key }

// Roster returns a copy of the loaded roster.
func (t *Tracker) Roster() []Student { return append([]Student(nil), t.roster...) }

func (t *Tracker) Presence() Presence { return t.presence }

// Clear discards roster and presence.
func (t *Tracker) Clear() {
	t.loaded = false
	t.key = RosterKey{}
	t.roster = nil
	t.members = sets.New[string]()
	t.presence = NewPresence()
}
