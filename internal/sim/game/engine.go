package game

import (
	"errors"
	"fmt"

	"thecore.gg/internal/sim/game/feature/identity"
	"thecore.gg/internal/sim/game/feature/phoenix"
	"thecore.gg/internal/sim/game/feature/points"
	"thecore.gg/internal/sim/game/model"
)

// Engine is the deterministic possession-game state machine. It owns its state exclusively,
// performs no I/O, and is not safe for concurrent use: the host must serialize calls.
type Engine struct {
	cfg    Config
	clock  Clock
	ledger Ledger

	state      State
	points     *points.Ledger
	identities *identity.Registry
	graves     *phoenix.Graveyard

	audit []AuditEntry
}

func New(cfg Config, clock Clock, ledger Ledger) (*Engine, error) {
	if clock == nil {
		return nil, errors.New("game: nil clock")
	}
	if ledger == nil {
		return nil, errors.New("game: nil ledger")
	}
	if err := ValidateParams(cfg.Params); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:        cfg,
		clock:      clock,
		ledger:     ledger,
		points:     points.NewLedger(),
		identities: identity.NewRegistry(),
		graves:     phoenix.NewGraveyard(),
	}, nil
}

func ValidateParams(p Params) error {
	if p.IntervalTicks == 0 {
		return fmt.Errorf("game: interval_ticks must be > 0")
	}
	if p.BurnIntervalTicks == 0 {
		return fmt.Errorf("game: burn_interval_ticks must be > 0")
	}
	if p.BurnRateBps > model.BpsDenominator {
		return fmt.Errorf("game: burn_rate_bps must be <= %d", model.BpsDenominator)
	}
	return nil
}

func (e *Engine) ID() string     { return e.cfg.ID }
func (e *Engine) Params() Params { return e.cfg.Params }

// now reads the clock once per operation. Stored ticks never move backward, so a clock
// reading below the last recorded tick is treated as that tick.
func (e *Engine) now() uint64 {
	t := e.clock.CurrentTick()
	if t < e.state.LastActivityTick {
		t = e.state.LastActivityTick
	}
	if t < e.state.LastTransferTick {
		t = e.state.LastTransferTick
	}
	return t
}

func (e *Engine) requireInitialized(op string) error {
	if !e.state.Initialized {
		return fail(op, ErrNotInitialized)
	}
	return nil
}

func (e *Engine) requireLive(op string) error {
	if err := e.requireInitialized(op); err != nil {
		return err
	}
	if !e.state.Active {
		return fail(op, ErrGameInactive)
	}
	return nil
}

func (e *Engine) requireAdmin(op string, caller ParticipantID) error {
	if err := e.requireInitialized(op); err != nil {
		return err
	}
	if caller != e.state.Admin {
		return fail(op, ErrNotAdmin)
	}
	return nil
}

// settle computes the outgoing holder's settlement without committing it.
func (e *Engine) settle(holder ParticipantID, now uint64) Settlement {
	held := model.HeldTicks(now, e.state.LastTransferTick)
	return points.Compute(holder, e.points.Balance(holder), held, e.cfg.Params)
}

func (e *Engine) commitSettlement(now uint64, s Settlement) {
	e.points.Apply(s)
	details := map[string]any{
		"held_ticks": s.HeldTicks,
		"before":     s.Before,
		"after":      s.After,
	}
	if s.Melted {
		details["periods"] = s.Periods
		details["penalty"] = s.Penalty
	} else {
		details["earned"] = s.Earned
	}
	e.emit(AuditEntry{
		Tick:       now,
		Actor:      s.Holder,
		Action:     AuditSettle,
		Generation: e.state.ActiveGenerationID,
		Details:    details,
	})
}

// handOff commits a possession change of the active generation.
func (e *Engine) handOff(from, to ParticipantID, now uint64) {
	e.state.PreviousHolder = from
	e.state.CurrentHolder = to
	e.state.LastTransferTick = now
	e.state.LastActivityTick = now
}

func (e *Engine) emit(a AuditEntry) {
	e.audit = append(e.audit, a)
}

// DrainAudit returns and clears the audit entries produced since the last call.
func (e *Engine) DrainAudit() []AuditEntry {
	out := e.audit
	e.audit = nil
	return out
}

// CheckInvariants verifies the structural invariants of the current state.
func (e *Engine) CheckInvariants() error {
	st := e.state
	if !st.Initialized {
		return nil
	}
	if st.CurrentHolder.IsZero() {
		return errors.New("invariant: empty current holder")
	}
	if st.CurrentHolder == st.PreviousHolder {
		return errors.New("invariant: previous holder equals current holder")
	}
	if st.ActiveGenerationID == 0 || st.ActiveGenerationID > st.GenerationCounter {
		return fmt.Errorf("invariant: active generation %d outside 1..%d", st.ActiveGenerationID, st.GenerationCounter)
	}
	if e.graves.Has(st.ActiveGenerationID) {
		return fmt.Errorf("invariant: active generation %d is retired", st.ActiveGenerationID)
	}
	if st.LastTransferTick > st.LastActivityTick {
		return errors.New("invariant: last transfer after last activity")
	}
	return nil
}
