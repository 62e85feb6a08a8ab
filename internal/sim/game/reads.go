package game

import (
	"thecore.gg/internal/sim/game/feature/identity"
	"thecore.gg/internal/sim/game/feature/metadata"
	"thecore.gg/internal/sim/game/feature/phoenix"
	"thecore.gg/internal/sim/game/model"
)

// Read operations never mutate state.

func (e *Engine) heldNow() uint64 {
	return model.HeldTicks(e.now(), e.state.LastTransferTick)
}

func (e *Engine) GameState() View {
	st := e.state
	return View{
		CurrentHolder:      st.CurrentHolder,
		PreviousHolder:     st.PreviousHolder,
		LastTransferTick:   st.LastTransferTick,
		Melting:            e.IsMelting(),
		ActiveGenerationID: st.ActiveGenerationID,
	}
}

func (e *Engine) State() State { return e.state }

func (e *Engine) PointsOf(p ParticipantID) uint64 { return e.points.Balance(p) }

func (e *Engine) IsMelting() bool {
	return e.state.Initialized && phoenix.Melting(e.heldNow(), e.cfg.Params)
}

func (e *Engine) CanRespawn() bool {
	return e.state.Initialized && phoenix.RespawnReady(e.heldNow(), e.cfg.Params)
}

func (e *Engine) Phase() Phase {
	if !e.state.Initialized {
		return ""
	}
	return phoenix.PhaseOf(e.heldNow(), e.cfg.Params)
}

// DeadGenerationHolder returns the last holder of a retired generation.
func (e *Engine) DeadGenerationHolder(gen GenerationID) (ParticipantID, bool) {
	d, ok := e.graves.Get(gen)
	if !ok {
		return NoParticipant, false
	}
	return d.Holder, true
}

func (e *Engine) Generations() []Death { return e.graves.All() }

func (e *Engine) Balances() []Balance { return e.points.Entries() }

func (e *Engine) IdentityOf(p ParticipantID) Handle { return e.identities.Lookup(p) }

func (e *Engine) Identities() []identity.Entry { return e.identities.Entries() }

func (e *Engine) Status() Status {
	now := e.now()
	st := e.state
	held := model.HeldTicks(now, st.LastTransferTick)
	s := Status{
		View:              e.GameState(),
		Tick:              now,
		Initialized:       st.Initialized,
		Active:            st.Active,
		Admin:             st.Admin,
		GenerationCounter: st.GenerationCounter,
	}
	if !st.Initialized {
		return s
	}
	s.Phase = phoenix.PhaseOf(held, e.cfg.Params)
	s.HeldTicks = held
	s.TicksUntilMeltdown = phoenix.TicksUntilMeltdown(held, e.cfg.Params)
	s.CanRespawn = phoenix.RespawnReady(held, e.cfg.Params)
	s.HolderPoints = e.points.Balance(st.CurrentHolder)
	return s
}

// TokenURI renders the metadata document for gen. Retired generations render as DEAD
// with their last holder.
func (e *Engine) TokenURI(gen GenerationID) (string, bool) {
	if !e.state.Initialized || gen == 0 || gen > e.state.GenerationCounter {
		return "", false
	}
	if d, ok := e.graves.Get(gen); ok {
		return metadata.TokenURI(gen, d.Holder, metadata.StatusDead), true
	}
	status := metadata.StatusStable
	if e.IsMelting() {
		status = metadata.StatusMeltdown
	}
	return metadata.TokenURI(gen, e.state.CurrentHolder, status), true
}
