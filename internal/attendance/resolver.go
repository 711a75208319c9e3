package attendance

import (
	"context"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Availability is the set of session labels open for entry, in the order the
// remote system reported them.
type Availability struct {
	labels []string
	set    sets.Set[string]
}

// NewAvailability builds an availability set, dropping duplicates and blanks.
func NewAvailability(labels []string) Availability {
	a := Availability{set: sets.New[string]()}
	for _, l := range labels {
		if l == "" || a.set.Has(l) {
			continue
		}
		a.set.Insert(l)
		a.labels = append(a.labels, l)
	}
	return a
}

func (a Availability) Has(label string) bool { return a.set.Has(label) }

func (a Availability) Len() int { return len(a.labels) }

// Labels returns a copy of the labels in reported order.
func (a Availability) Labels() []string {
	return append([]string(nil), a.labels...)
}

// Filter returns the members of chosen that are available, in availability order.
func (a Availability) Filter(chosen []string) []string {
	want := sets.New(chosen...)
	var out []string
	for _, l := range a.labels {
		if want.Has(l) {
			out = append(out, l)
		}
	}
	return out
}

// Resolver asks the gateway which sessions are open for the current criteria.
type Resolver struct {
	gw        Gateway
	available Availability
}

func NewResolver(gw Gateway) *Resolver {
	return &Resolver{gw: gw, available: NewAvailability(nil)}
}

// Available returns the last successfully resolved availability.
func (r *Resolver) Available() Availability { return r.available }

// Fetch queries the gateway without touching resolver state.
func (r *Resolver) Fetch(ctx context.Context, q Query) (Availability, error) {
	labels, err := r.gw.AvailableSessions(ctx, q.availability())
	if err != nil {
		return Availability{}, remoteUnavailable("resolve", err)
	}
	return NewAvailability(labels), nil
}

// Apply replaces the availability and prunes the criteria's chosen sessions against it.
func (r *Resolver) Apply(c *Criteria, a Availability) {
	r.available = a
	c.Prune(a)
}

// Resolve fetches and applies in one step. On error the previous availability is kept.
func (r *Resolver) Resolve(ctx context.Context, c *Criteria) (Availability, error) {
	if !c.Ready() {
		return Availability{}, precondition("resolve", "subject, batch and date must be selected")
	}
	a, err := r.Fetch(ctx, c.Query())
	if err != nil {
		return Availability{}, err
	}
	r.Apply(c, a)
	return a, nil
}

// Clear forgets the resolved availability.
func (r *Resolver) Clear() { r.available = NewAvailability(nil) }
