package game

import (
	"thecore.gg/internal/sim/game/feature/phoenix"
	"thecore.gg/internal/sim/game/model"
)

// Initialize mints generation 1 to caller and makes caller the admin.
func (e *Engine) Initialize(caller ParticipantID) error {
	const op = "initialize"
	if e.state.Initialized {
		return fail(op, ErrAlreadyInitialized)
	}
	if caller.IsZero() {
		return fail(op, ErrZeroTarget)
	}
	now := e.now()
	if err := e.ledger.Mint(caller, 1); err != nil {
		return ledgerRejected(op, err)
	}
	e.state = State{
		CurrentHolder:      caller,
		LastTransferTick:   now,
		LastActivityTick:   now,
		ActiveGenerationID: 1,
		GenerationCounter:  1,
		Admin:              caller,
		Initialized:        true,
		Active:             true,
	}
	e.emit(AuditEntry{Tick: now, Actor: caller, Action: AuditInitialize, Generation: 1, To: caller})
	return nil
}

// Pass hands the Core from sender (who must hold it) to to.
func (e *Engine) Pass(sender, to ParticipantID) error {
	const op = "pass"
	if err := e.requireLive(op); err != nil {
		return err
	}
	st := e.state
	if sender != st.CurrentHolder {
		return fail(op, ErrNotHolder)
	}
	if to.IsZero() {
		return fail(op, ErrZeroTarget)
	}
	if to == sender {
		return fail(op, ErrAlreadyHolding)
	}
	if !st.PreviousHolder.IsZero() && to == st.PreviousHolder {
		return fail(op, ErrPreviousHolder)
	}
	if e.identities.Linked(sender, to) {
		return fail(op, ErrDuplicateIdentity)
	}

	now := e.now()
	s := e.settle(sender, now)
	if err := e.ledger.TransferOwnership(sender, to, st.ActiveGenerationID); err != nil {
		return ledgerRejected(op, err)
	}
	e.commitSettlement(now, s)
	e.handOff(sender, to, now)
	e.emit(AuditEntry{
		Tick: now, Actor: sender, Action: AuditTransfer, Generation: st.ActiveGenerationID,
		From: sender, To: to, Reason: ReasonPass,
	})
	return nil
}

// Grab seizes a melting Core from its holder. Neither the previous-holder rule nor the
// identity check applies.
func (e *Engine) Grab(sender ParticipantID) error {
	const op = "grab"
	if err := e.requireLive(op); err != nil {
		return err
	}
	if sender.IsZero() {
		return fail(op, ErrZeroTarget)
	}
	st := e.state
	now := e.now()
	held := model.HeldTicks(now, st.LastTransferTick)
	if !phoenix.Melting(held, e.cfg.Params) {
		return fail(op, ErrStillStable)
	}
	if sender == st.CurrentHolder {
		return fail(op, ErrAlreadyHolding)
	}

	holder := st.CurrentHolder
	s := e.settle(holder, now)
	if err := e.ledger.TransferOwnership(holder, sender, st.ActiveGenerationID); err != nil {
		return ledgerRejected(op, err)
	}
	e.commitSettlement(now, s)
	e.handOff(holder, sender, now)
	e.emit(AuditEntry{
		Tick: now, Actor: sender, Action: AuditTransfer, Generation: st.ActiveGenerationID,
		From: holder, To: sender, Reason: ReasonGrab,
		Details: map[string]any{"held_ticks": held},
	})
	return nil
}
