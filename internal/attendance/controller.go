package attendance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"classroll/internal/metrics"
)

// Mode selects between recording a new record and revising a stored one.
type Mode string

const (
	ModeTake   Mode = "take"
	ModeUpdate Mode = "update"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeTake || m == ModeUpdate }

// State is a reconciliation state.
type State string

const (
	StateEmpty            State = "empty"
	StateCriteriaSet      State = "criteria_set"
	StateSessionsResolved State = "sessions_resolved"
	StateRosterLoaded     State = "roster_loaded"
	StateSubmitting       State = "submitting"
	StateSubmitted        State = "submitted"
	StateError            State = "error"
)

// Op names a controller operation that talks to the gateway.
type Op string

const (
	OpResolve    Op = "resolve"
	OpLoadRoster Op = "load_roster"
	OpSubmit     Op = "submit"
)

// Failure describes why the controller is in StateError.
type Failure struct {
	Op    Op
	Kind  Kind
	Prior State
	Err   error
}

type flight struct {
	op      Op
	version uint64
}

// Controller drives one reconciliation attempt for one faculty session.
//
// The mutex guards state only; it is never held across a gateway call.
// Every subject, batch or date change bumps version, and gateway results
// that come back under an older version are discarded.
type Controller struct {
	mu       sync.Mutex
	session  Session
	mode     Mode
	gw       Gateway
	log      logr.Logger
	criteria *Criteria
	resolver *Resolver
	tracker  *Tracker
	existing *ExistingRecord
	state    State
	failure  *Failure
	version  uint64
	inflight *flight
	// fetched is set once a roster has been loaded in the current form.
	fetched  bool
}

// NewController returns a controller in StateEmpty.
func NewController(s Session, mode Mode, gw Gateway, log logr.Logger) *Controller {
	if !mode.Valid() {
		mode = ModeTake
	}
	return &Controller{
		session:  s,
		mode:     mode,
		gw:       gw,
		log:      log.WithValues("mode", mode, "user", s.UserID),
		criteria: NewCriteria(s),
		resolver: NewResolver(gw),
		tracker:  NewTracker(gw),
		state:    StateEmpty,
	}
}

func (c *Controller) Mode() Mode { return c.mode }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetSubject selects a subject. Batch and sessions are cleared.
func (c *Controller) SetSubject(id string) error {
	return c.mutate("set subject", func() error { return c.criteria.SetSubject(id) })
}

// SetBatch selects a batch of the current subject.
func (c *Controller) SetBatch(label string) error {
	return c.mutate("set batch", func() error { return c.criteria.SetBatch(label) })
}

// SetDate selects the calendar day.
func (c *Controller) SetDate(t time.Time) error {
	return c.mutate("set date", func() error {
		c.criteria.SetDate(t)
		return nil
	})
}

// mutate applies a subject/batch/date change and discards everything derived
// from the previous criteria.
func (c *Controller) mutate(op string, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(op); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	c.version++
	c.resolver.Clear()
	c.tracker.Clear()
	c.existing = nil
	c.failure = nil
	if c.criteria.Ready() {
		c.state = StateCriteriaSet
	} else {
		c.state = StateEmpty
	}
	c.log.V(1).Info("Criteria changed", "op", op, "state", c.state, "version", c.version)
	return nil
}

// ToggleSession adds or removes a session label. With a roster loaded the
// roster is discarded, since the chosen sessions keyed it.
func (c *Controller) ToggleSession(label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen("toggle session"); err != nil {
		return err
	}
	if err := c.criteria.ToggleSession(label, c.resolver.Available()); err != nil {
		return err
	}
	base := c.base()
	if base == StateRosterLoaded || (c.inflight != nil && c.inflight.op == OpLoadRoster) {
		c.version++
	}
	if base == StateRosterLoaded {
		c.tracker.Clear()
		c.existing = nil
		base = StateSessionsResolved
	}
	c.state = base
	c.failure = nil
	return nil
}

// Resolve fetches the sessions open for entry under the current criteria.
func (c *Controller) Resolve(ctx context.Context) error {
	c.mu.Lock()
	base := c.base()
	if err := c.checkOpen(string(OpResolve)); err != nil {
		c.mu.Unlock()
		return err
	}
	if base == StateEmpty || !c.criteria.Ready() {
		c.mu.Unlock()
		return precondition(string(OpResolve), "subject, batch and date must be selected")
	}
	f, err := c.begin(OpResolve)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	q := c.criteria.Query()
	c.mu.Unlock()

	a, err := c.resolver.Fetch(ctx, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finish(f) {
		return c.stale(OpResolve)
	}
	if err != nil {
		return c.fail(OpResolve, base, err)
	}
	c.resolver.Apply(c.criteria, a)
	if base == StateRosterLoaded {
		c.tracker.Clear()
		c.existing = nil
	}
	c.state = StateSessionsResolved
	c.failure = nil
	c.log.V(1).Info("Sessions resolved", "subject", q.SubjectID, "date", q.Date, "available", a.Labels())
	return nil
}

// LoadRoster fetches the roster for the chosen sessions. In update mode it
// also fetches the stored record and seeds presence from it.
func (c *Controller) LoadRoster(ctx context.Context) error {
	c.mu.Lock()
	base := c.base()
	if err := c.checkOpen(string(OpLoadRoster)); err != nil {
		c.mu.Unlock()
		return err
	}
	if base != StateSessionsResolved && base != StateRosterLoaded {
		c.mu.Unlock()
		return precondition(string(OpLoadRoster), "sessions have not been resolved")
	}
	q := c.criteria.Query()
	q.Sessions = c.resolver.Available().Filter(q.Sessions)
	if len(q.Sessions) == 0 {
		c.mu.Unlock()
		return precondition(string(OpLoadRoster), "at least one session must be chosen")
	}
	if c.mode == ModeUpdate && len(q.Sessions) > 1 {
		c.mu.Unlock()
		return precondition(string(OpLoadRoster), "update mode works on exactly one session")
	}
	f, err := c.begin(OpLoadRoster)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	reload := c.fetched
	c.mu.Unlock()

	if reload {
		c.invalidateRoster(ctx, q.SubjectID, q.Batch)
	}
	roster, err := c.tracker.Fetch(ctx, q)
	var rec *ExistingRecord
	if err == nil && c.mode == ModeUpdate {
		rec, err = c.gw.ExistingRecord(ctx, RecordQuery{
			SubjectID: q.SubjectID,
			Batch:     q.Batch,
			Date:      q.Date,
			Session:   q.Sessions[0],
		})
		if err != nil {
			err = remoteUnavailable(string(OpLoadRoster), err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finish(f) {
		return c.stale(OpLoadRoster)
	}
	if err == nil && rec != nil && rec.SubjectID != "" && rec.SubjectID != q.SubjectID {
		err = stateError(string(OpLoadRoster), "stored record belongs to another subject")
	}
	if err != nil {
		return c.fail(OpLoadRoster, base, err)
	}
	c.tracker.Load(q.rosterKey(), roster)
	c.fetched = true
	c.existing = rec
	if rec != nil {
		// Cannot fail: the roster was just loaded under the same key.
		_ = c.tracker.Seed(q.rosterKey(), *rec)
	}
	c.state = StateRosterLoaded
	c.failure = nil
	c.log.V(1).Info("Roster loaded", "subject", q.SubjectID, "batch", q.Batch, "students", len(roster), "existingRecord", rec != nil)
	return nil
}

// ToggleStudent flips one student's presence.
func (c *Controller) ToggleStudent(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen("toggle student"); err != nil {
		return err
	}
	if !c.rosterUsable() {
		return precondition("toggle student", "no roster loaded")
	}
	return c.tracker.Toggle(id)
}

// Submit writes the current presence to the remote store. Without an existing
// record it creates one record per chosen session in a single write; with one
// it overwrites that record. The gateway is called at most once.
func (c *Controller) Submit(ctx context.Context) (Write, error) {
	c.mu.Lock()
	if err := c.checkOpen(string(OpSubmit)); err != nil {
		c.mu.Unlock()
		return Write{}, err
	}
	if !c.rosterUsable() {
		c.mu.Unlock()
		return Write{}, precondition(string(OpSubmit), "no roster loaded")
	}
	if c.mode == ModeUpdate && c.existing == nil {
		c.mu.Unlock()
		return Write{}, precondition(string(OpSubmit), "no stored record to update")
	}
	sessions := c.resolver.Available().Filter(c.criteria.Sessions())
	if len(sessions) == 0 {
		c.mu.Unlock()
		return Write{}, precondition(string(OpSubmit), "no open session chosen")
	}
	f, err := c.begin(OpSubmit)
	if err != nil {
		c.mu.Unlock()
		return Write{}, err
	}
	q := c.criteria.Query()
	w := Write{
		Mode:        WriteCreate,
		SubjectID:   q.SubjectID,
		Batch:       q.Batch,
		Date:        q.Date,
		Sessions:    sessions,
		InstituteID: c.session.InstituteID,
		Entries:     c.tracker.Payload(),
	}
	if c.existing != nil {
		w.Mode = WriteUpdate
		w.RecordID = c.existing.ID
		if c.existing.Session != "" {
			w.Sessions = []string{c.existing.Session}
		}
	}
	c.state = StateSubmitting
	c.mu.Unlock()

	err = c.gw.WriteAttendance(ctx, w)
	metrics.RecordSubmission(string(w.Mode), err)
	if err == nil {
		c.invalidateRoster(ctx, w.SubjectID, w.Batch)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.finish(f)
	if err != nil {
		return Write{}, c.fail(OpSubmit, StateRosterLoaded, remoteUnavailable(string(OpSubmit), err))
	}
	c.state = StateSubmitted
	c.failure = nil
	c.log.Info("Attendance submitted", "writeMode", w.Mode, "subject", w.SubjectID, "date", w.Date, "sessions", w.Sessions, "entries", len(w.Entries))
	return w, nil
}

// Retry re-runs the operation that moved the controller into StateError.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateError || c.failure == nil {
		c.mu.Unlock()
		return precondition("retry", "nothing to retry")
	}
	op := c.failure.Op
	c.mu.Unlock()

	switch op {
	case OpResolve:
		return c.Resolve(ctx)
	case OpLoadRoster:
		return c.LoadRoster(ctx)
	default:
		_, err := c.Submit(ctx)
		return err
	}
}

// Reset starts over from StateEmpty, keeping only mode and session.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSubmitting {
		return stateError("reset", msgBusy)
	}
	c.version++
	c.criteria = NewCriteria(c.session)
	c.resolver.Clear()
	c.tracker.Clear()
	c.existing = nil
	c.failure = nil
	c.fetched = false
	c.state = StateEmpty
	return nil
}

// base is the state an operation starts from: the prior state when in StateError.
func (c *Controller) base() State {
	if c.state == StateError && c.failure != nil {
		return c.failure.Prior
	}
	return c.state
}

func (c *Controller) checkOpen(op string) error {
	switch c.state {
	case StateSubmitting:
		return stateError(op, msgBusy)
	case StateSubmitted:
		return precondition(op, "attendance already submitted; reset to start again")
	}
	return nil
}

func (c *Controller) rosterUsable() bool {
	return c.tracker.Loaded() && c.base() == StateRosterLoaded
}

// begin registers an in-flight operation. Only one operation may be in flight
// per criteria version; a submit blocks everything.
func (c *Controller) begin(op Op) (*flight, error) {
	if c.inflight != nil && (c.inflight.op == OpSubmit || c.inflight.version == c.version) {
		return nil, stateError(string(op), msgBusy)
	}
	f := &flight{op: op, version: c.version}
	c.inflight = f
	return f, nil
}

// finish clears f and reports whether its result is still current.
func (c *Controller) finish(f *flight) bool {
	if c.inflight == f {
		c.inflight = nil
	}
	return f.version == c.version
}

func (c *Controller) stale(op Op) error {
	metrics.RecordStale(string(op))
	c.log.V(1).Info("Discarding stale response", "op", op, "version", c.version)
	return stateError(string(op), msgStale)
}

// invalidateRoster drops a cached roster when the gateway caches them. A failed
// drop is logged and the cached copy lives out its TTL.
func (c *Controller) invalidateRoster(ctx context.Context, subjectID, batch string) {
	inv, ok := c.gw.(RosterInvalidator)
	if !ok {
		return
	}
	if err := inv.InvalidateRoster(ctx, subjectID, batch); err != nil {
		c.log.Error(err, "Roster cache invalidation failed", "subject", subjectID, "batch", batch)
	}
}

func (c *Controller) fail(op Op, prior State, err error) error {
	kind := KindOf(err)
	if kind == "" {
		kind = KindRemoteUnavailable
		err = remoteUnavailable(string(op), err)
	}
	c.state = StateError
	c.failure = &Failure{Op: op, Kind: kind, Prior: prior, Err: err}
	metrics.RecordFailure(string(op), string(kind))
	c.log.Error(err, "Operation failed", "op", op, "prior", prior)
	return err
}

// Existing returns the stored record found by the last roster load in update mode.
func (c *Controller) Existing() (ExistingRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.existing == nil {
		return ExistingRecord{}, false
	}
	return *c.existing, true
}

// IsBusy reports whether err is a busy rejection.
func IsBusy(err error) bool { return errors.Is(err, ErrBusy) }
