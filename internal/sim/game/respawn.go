package game

import (
	"thecore.gg/internal/sim/game/feature/phoenix"
	"thecore.gg/internal/sim/game/model"
)

// SpawnNewGeneration retires an abandoned generation and mints the next one to initiator.
// The generation must be past both the safe limit and the phoenix cooldown.
func (e *Engine) SpawnNewGeneration(initiator ParticipantID) error {
	const op = "spawn"
	if err := e.requireLive(op); err != nil {
		return err
	}
	if initiator.IsZero() {
		return fail(op, ErrZeroTarget)
	}
	now := e.now()
	held := model.HeldTicks(now, e.state.LastTransferTick)
	if !phoenix.Melting(held, e.cfg.Params) {
		return fail(op, ErrStillStable)
	}
	if !phoenix.RespawnReady(held, e.cfg.Params) {
		return fail(op, ErrCooldownActive)
	}
	return e.retire(op, initiator, initiator, now, ReasonAbandoned)
}

// AdminReset is the privileged respawn, gated on global inactivity instead of meltdown.
// It is allowed while the game is paused.
func (e *Engine) AdminReset(caller ParticipantID) error {
	const op = "admin_reset"
	if err := e.requireAdmin(op, caller); err != nil {
		return err
	}
	now := e.now()
	if model.HeldTicks(now, e.state.LastActivityTick) < e.cfg.Params.InactivityLimitTicks {
		return fail(op, ErrInsufficientInactivity)
	}
	return e.retire(op, caller, caller, now, ReasonAdminReset)
}

// retire records the death of the active generation and mints generation counter+1 to
// newHolder. The dead holder is settled first; the old token stays with them.
func (e *Engine) retire(op string, actor, newHolder ParticipantID, now uint64, reason string) error {
	st := e.state
	if e.graves.Has(st.ActiveGenerationID) {
		return fail(op, ErrInternal)
	}
	next := st.GenerationCounter + 1
	if next == 0 {
		return fail(op, ErrInternal)
	}
	dead := st.CurrentHolder
	s := e.settle(dead, now)
	if err := e.ledger.Mint(newHolder, next); err != nil {
		return ledgerRejected(op, err)
	}

	e.commitSettlement(now, s)
	death := Death{Generation: st.ActiveGenerationID, Holder: dead, Tick: now, Reason: reason}
	if err := e.graves.Record(death); err != nil {
		// Checked above; unreachable while the engine owns the graveyard.
		panic(err)
	}
	e.state.ActiveGenerationID = next
	e.state.GenerationCounter = next
	e.state.CurrentHolder = newHolder
	e.state.PreviousHolder = NoParticipant
	e.state.LastTransferTick = now
	e.state.LastActivityTick = now

	e.emit(AuditEntry{
		Tick: now, Actor: actor, Action: AuditDeath, Generation: death.Generation,
		From: dead, Reason: reason,
		Details: map[string]any{"held_ticks": s.HeldTicks},
	})
	e.emit(AuditEntry{
		Tick: now, Actor: actor, Action: AuditMint, Generation: next,
		To: newHolder, Reason: reason,
	})
	return nil
}
