package attendance

import (
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Criteria is the (subject, batch, date, sessions) selection being built up by the user.
type Criteria struct {
	session  Session
	subject  *Subject
	batch    string
	date     time.Time
	sessions sets.Set[string]
}

// Query is an immutable snapshot of Criteria handed to the gateway.
type Query struct {
	SubjectID string
	Batch     string
	Date      string
	Sessions  []string
}

// RosterKey scopes a roster. Rosters do not depend on date or session.
type RosterKey struct {
	SubjectID string
	Batch     string
}

func (q Query) availability() AvailabilityQuery {
	return AvailabilityQuery{SubjectID: q.SubjectID, Batch: q.Batch, Date: q.Date}
}

func (q Query) rosterKey() RosterKey {
	return RosterKey{SubjectID: q.SubjectID, Batch: q.Batch}
}

// NewCriteria returns empty criteria validated against the session's subjects.
func NewCriteria(s Session) *Criteria {
	return &Criteria{session: s, sessions: sets.New[string]()}
}

// SetSubject selects a subject and clears batch and sessions.
func (c *Criteria) SetSubject(id string) error {
	sub, ok := c.session.Subject(id)
	if !ok {
		return invalidSelection("set subject", "subject %q is not assigned to this user", id)
	}
	c.subject = &sub
	c.batch = ""
	c.sessions = sets.New[string]()
	return nil
}

// SetBatch selects a batch of the current subject. An empty label clears it.
func (c *Criteria) SetBatch(label string) error {
	if c.subject == nil {
		return invalidSelection("set batch", "no subject selected")
	}
	if label != "" {
		if !c.subject.BatchBearing() {
			return invalidSelection("set batch", "subject %q has no batches", c.subject.ID)
		}
		if !c.subject.HasBatch(label) {
			return invalidSelection("set batch", "batch %q is not declared for subject %q", label, c.subject.ID)
		}
	}
	c.batch = label
	c.sessions = sets.New[string]()
	return nil
}

// SetDate selects the calendar day and clears sessions.
func (c *Criteria) SetDate(t time.Time) {
	c.date = t
	c.sessions = sets.New[string]()
}

// ToggleSession adds or removes a session label. Only labels from the last
// resolved availability may be added.
func (c *Criteria) ToggleSession(label string, available Availability) error {
	if c.sessions.Has(label) {
		c.sessions.Delete(label)
		return nil
	}
	if !available.Has(label) {
		return invalidSelection("toggle session", "session %q is not open for entry", label)
	}
	c.sessions.Insert(label)
	return nil
}

// Prune drops chosen sessions that are no longer available.
func (c *Criteria) Prune(available Availability) {
	for _, label := range c.sessions.UnsortedList() {
		if !available.Has(label) {
			c.sessions.Delete(label)
		}
	}
}

// Ready reports whether the criteria can key a gateway query.
func (c *Criteria) Ready() bool {
	if c.subject == nil || c.date.IsZero() {
		return false
	}
	return !c.subject.BatchBearing() || c.batch != ""
}

// Subject returns the selected subject.
func (c *Criteria) Subject() (Subject, bool) {
	if c.subject == nil {
		return Subject{}, false
	}
	return *c.subject, true
}

func (c *Criteria) Batch() string { return c.batch }

func (c *Criteria) Date() time.Time { return c.date }

// Sessions returns the chosen session labels, sorted.
func (c *Criteria) Sessions() []string {
	return sets.List(c.sessions)
}

// Query snapshots the criteria.
func (c *Criteria) Query() Query {
	q := Query{Batch: c.batch, Sessions: c.Sessions()}
	if c.subject != nil {
		q.SubjectID = c.subject.ID
	}
	if !c.date.IsZero() {
		q.Date = FormatDate(c.date)
	}
	return q
}
