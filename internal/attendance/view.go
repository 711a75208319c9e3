package attendance

// NoticeNoUpdatableSessions is shown in update mode when the ERP reports no
// session for the day. Update mode only revises sessions the ERP lists.
const NoticeNoUpdatableSessions = "no sessions are open for update on this date; only sessions the ERP lists as available can be revised"

// View is a read-only snapshot of a controller for rendering.
type View struct {
	Mode      Mode         `json:"mode"`
	State     State        `json:"state"`
	Busy      bool         `json:"busy"`
	SubjectID string       `json:"subject_id,omitempty"`
	Batch     string       `json:"batch,omitempty"`
	Date      string       `json:"date,omitempty"`
	Ready     bool         `json:"ready"`
	Sessions  []string     `json:"sessions"`
	Available []string     `json:"available_sessions"`
	Roster    []RosterLine `json:"roster"`
	Present   int          `json:"present_count"`
	RecordID  string       `json:"record_id,omitempty"`
	HasRecord bool         `json:"has_record"`
	Changes   []Entry      `json:"changes,omitempty"`
	CanSubmit bool         `json:"can_submit"`
	Failure   *FailureView `json:"failure,omitempty"`
	Notice    string       `json:"notice,omitempty"`
}

// RosterLine is one student with their current mark.
type RosterLine struct {
	Student
	Status Status `json:"status"`
}

// FailureView is the rendered form of Failure.
type FailureView struct {
	Op      Op     `json:"op"`
	Kind    Kind   `json:"kind"`
	Prior   State  `json:"prior_state"`
	Message string `json:"message"`
}

// View snapshots the controller.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.criteria.Query()
	v := View{
		Mode:      c.mode,
		State:     c.state,
		Busy:      c.inflight != nil && (c.inflight.op == OpSubmit || c.inflight.version == c.version),
		SubjectID: q.SubjectID,
		Batch:     q.Batch,
		Date:      q.Date,
		Ready:     c.criteria.Ready(),
		Sessions:  q.Sessions,
		Available: c.resolver.Available().Labels(),
	}
	if c.tracker.Loaded() {
		presence := c.tracker.Presence()
		for _, s := range c.tracker.Roster() {
			line := RosterLine{Student: s, Status: StatusAbsent}
			if presence.Has(s.ID) {
				line.Status = StatusPresent
			}
			v.Roster = append(v.Roster, line)
		}
		v.Present = presence.Len()
	}
	if c.existing != nil {
		v.HasRecord = true
		v.RecordID = c.existing.ID
		v.Changes = c.tracker.Diff(*c.existing)
	}
	v.CanSubmit = c.state != StateSubmitting && c.rosterUsable() &&
		(c.mode == ModeTake || c.existing != nil) &&
		len(c.resolver.Available().Filter(q.Sessions)) > 0
	if c.mode == ModeUpdate && len(v.Available) == 0 {
		if b := c.base(); b == StateSessionsResolved || b == StateRosterLoaded {
			v.Notice = NoticeNoUpdatableSessions
		}
	}
	if c.failure != nil {
		v.Failure = &FailureView{
			Op:      c.failure.Op,
			Kind:    c.failure.Kind,
			Prior:   c.failure.Prior,
			Message: c.failure.Err.Error(),
		}
	}
	return v
}
