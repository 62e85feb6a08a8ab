package game

import (
	"fmt"

	"thecore.gg/internal/persistence/snapshot"
	"thecore.gg/internal/sim/game/feature/identity"
	"thecore.gg/internal/sim/game/feature/phoenix"
	"thecore.gg/internal/sim/game/feature/points"
	"thecore.gg/internal/sim/game/model"
)

// ExportSnapshot captures the full engine state at tick. The caller fills Seq and Reason.
func (e *Engine) ExportSnapshot(tick uint64) snapshot.SnapshotV1 {
	p := e.cfg.Params
	st := e.state
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.CurrentVersion, GameID: e.cfg.ID, Tick: tick},
		Params: snapshot.ParamsV1{
			PointsPerInterval:    p.PointsPerInterval,
			IntervalTicks:        p.IntervalTicks,
			SafeLimitTicks:       p.SafeLimitTicks,
			BurnRateBps:          p.BurnRateBps,
			BurnIntervalTicks:    p.BurnIntervalTicks,
			InactivityLimitTicks: p.InactivityLimitTicks,
			PhoenixCooldownTicks: p.PhoenixCooldownTicks,
		},
		State: snapshot.StateV1{
			CurrentHolder:      string(st.CurrentHolder),
			PreviousHolder:     string(st.PreviousHolder),
			LastTransferTick:   st.LastTransferTick,
			LastActivityTick:   st.LastActivityTick,
			ActiveGenerationID: uint64(st.ActiveGenerationID),
			GenerationCounter:  uint64(st.GenerationCounter),
			Admin:              string(st.Admin),
			Initialized:        st.Initialized,
			Active:             st.Active,
		},
	}
	for _, b := range e.points.Entries() {
		snap.Points = append(snap.Points, snapshot.PointsV1{Participant: string(b.Participant), Balance: b.Balance})
	}
	for _, id := range e.identities.Entries() {
		snap.Identities = append(snap.Identities, snapshot.IdentityV1{Participant: string(id.Participant), Handle: uint64(id.Handle)})
	}
	for _, d := range e.graves.All() {
		snap.Deaths = append(snap.Deaths, snapshot.DeathV1{
			Generation: uint64(d.Generation),
			Holder:     string(d.Holder),
			Tick:       d.Tick,
			Reason:     d.Reason,
		})
	}
	return snap
}

// ImportSnapshot replaces the engine state with s. Params in the snapshot are
// authoritative. Nothing changes if s is invalid.
//
// This must be called only when the sequencer is stopped or from its loop goroutine.
func (e *Engine) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.CurrentVersion {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	if e.cfg.ID != "" && s.Header.GameID != "" && e.cfg.ID != s.Header.GameID {
		return fmt.Errorf("snapshot game_id mismatch: cfg=%s snap=%s", e.cfg.ID, s.Header.GameID)
	}
	params := model.Params{
		PointsPerInterval:    s.Params.PointsPerInterval,
		IntervalTicks:        s.Params.IntervalTicks,
		SafeLimitTicks:       s.Params.SafeLimitTicks,
		BurnRateBps:          s.Params.BurnRateBps,
		BurnIntervalTicks:    s.Params.BurnIntervalTicks,
		InactivityLimitTicks: s.Params.InactivityLimitTicks,
		PhoenixCooldownTicks: s.Params.PhoenixCooldownTicks,
	}
	if err := ValidateParams(params); err != nil {
		return err
	}

	pts := points.NewLedger()
	for _, b := range s.Points {
		pts.Set(model.ParticipantID(b.Participant), b.Balance)
	}
	ids := identity.NewRegistry()
	for _, id := range s.Identities {
		ids.Register(model.ParticipantID(id.Participant), model.Handle(id.Handle))
	}
	graves := phoenix.NewGraveyard()
	for _, d := range s.Deaths {
		err := graves.Record(phoenix.Death{
			Generation: model.GenerationID(d.Generation),
			Holder:     model.ParticipantID(d.Holder),
			Tick:       d.Tick,
			Reason:     d.Reason,
		})
		if err != nil {
			return fmt.Errorf("snapshot deaths: generation %d: %w", d.Generation, err)
		}
	}

	prev := *e
	e.cfg.Params = params
	e.state = State{
		CurrentHolder:      model.ParticipantID(s.State.CurrentHolder),
		PreviousHolder:     model.ParticipantID(s.State.PreviousHolder),
		LastTransferTick:   s.State.LastTransferTick,
		LastActivityTick:   s.State.LastActivityTick,
		ActiveGenerationID: model.GenerationID(s.State.ActiveGenerationID),
		GenerationCounter:  model.GenerationID(s.State.GenerationCounter),
		Admin:              model.ParticipantID(s.State.Admin),
		Initialized:        s.State.Initialized,
		Active:             s.State.Active,
	}
	e.points = pts
	e.identities = ids
	e.graves = graves
	e.audit = nil
	if err := e.CheckInvariants(); err != nil {
		*e = prev
		return fmt.Errorf("snapshot state: %w", err)
	}
	return nil
}
