package identity

import (
	"sort"

	"thecore.gg/internal/sim/game/model"
)

// Registry maps participants to an external uniqueness handle used for collusion checks.
// Registration never validates uniqueness across participants; linked identities are
// detected at transfer time.
type Registry struct {
	handles map[model.ParticipantID]model.Handle
}

type Entry struct {
	Participant model.ParticipantID `json:"participant"`
	Handle      model.Handle        `json:"handle"`
}

func NewRegistry() *Registry {
	return &Registry{handles: map[model.ParticipantID]model.Handle{}}
}

// Register overwrites the handle for p. A zero handle unregisters p.
func (r *Registry) Register(p model.ParticipantID, h model.Handle) {
	if h == 0 {
		delete(r.handles, p)
		return
	}
	r.handles[p] = h
}

func (r *Registry) Lookup(p model.ParticipantID) model.Handle {
	if r == nil {
		return 0
	}
	return r.handles[p]
}

// Linked reports whether a and b share the same registered handle.
// Unregistered participants are never linked.
func (r *Registry) Linked(a, b model.ParticipantID) bool {
	ha := r.Lookup(a)
	return ha != 0 && ha == r.Lookup(b)
}

func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.handles))
	for p, h := range r.handles {
		out = append(out, Entry{Participant: p, Handle: h})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant < out[j].Participant })
	return out
}
