package sequencer

import (
	"thecore.gg/internal/protocol"
	"thecore.gg/internal/sim/game"
)

// ViewOf converts engine status into its wire form.
func ViewOf(st game.Status) protocol.StateView {
	return protocol.StateView{
		Initialized:        st.Initialized,
		Active:             st.Active,
		CurrentHolder:      string(st.CurrentHolder),
		PreviousHolder:     string(st.PreviousHolder),
		LastTransferTick:   st.LastTransferTick,
		Melting:            st.Melting,
		ActiveGenerationID: uint64(st.ActiveGenerationID),
		GenerationCounter:  uint64(st.GenerationCounter),
		Phase:              string(st.Phase),
		HeldTicks:          st.HeldTicks,
		TicksUntilMeltdown: st.TicksUntilMeltdown,
		CanRespawn:         st.CanRespawn,
		HolderPoints:       st.HolderPoints,
	}
}

func ParamsOf(p game.Params, tickRateHz int) protocol.GameParams {
	return protocol.GameParams{
		TickRateHz:           tickRateHz,
		PointsPerInterval:    p.PointsPerInterval,
		IntervalTicks:        p.IntervalTicks,
		SafeLimitTicks:       p.SafeLimitTicks,
		BurnRateBps:          p.BurnRateBps,
		BurnIntervalTicks:    p.BurnIntervalTicks,
		InactivityLimitTicks: p.InactivityLimitTicks,
		PhoenixCooldownTicks: p.PhoenixCooldownTicks,
	}
}
