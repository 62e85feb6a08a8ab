package phoenix

import (
	"errors"
	"sort"

	"thecore.gg/internal/sim/game/model"
)

var ErrAlreadyRecorded = errors.New("phoenix: generation already retired")

// Death is the permanent "hall of shame" record for a retired generation.
type Death struct {
	Generation model.GenerationID  `json:"generation"`
	Holder     model.ParticipantID `json:"holder"`
	Tick       uint64              `json:"tick"`
	Reason     string              `json:"reason"`
}

const (
	ReasonAbandoned  = "ABANDONED"
	ReasonAdminReset = "ADMIN_RESET"
)

// Graveyard is an append-only mapping of generation id to its death record.
// A record is never overwritten once written.
type Graveyard struct {
	byGen map[model.GenerationID]Death
}

func NewGraveyard() *Graveyard {
	return &Graveyard{byGen: map[model.GenerationID]Death{}}
}

func (g *Graveyard) Record(d Death) error {
	if _, ok := g.byGen[d.Generation]; ok {
		return ErrAlreadyRecorded
	}
	g.byGen[d.Generation] = d
	return nil
}

func (g *Graveyard) Has(gen model.GenerationID) bool {
	if g == nil {
		return false
	}
	_, ok := g.byGen[gen]
	return ok
}

func (g *Graveyard) Get(gen model.GenerationID) (Death, bool) {
	if g == nil {
		return Death{}, false
	}
	d, ok := g.byGen[gen]
	return d, ok
}

// All returns the records ordered by generation.
func (g *Graveyard) All() []Death {
	out := make([]Death, 0, len(g.byGen))
	for _, d := range g.byGen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Generation < out[j].Generation })
	return out
}
