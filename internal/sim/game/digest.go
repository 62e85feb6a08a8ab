package game

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// StateDigest is a deterministic hash of the full engine state. Replays compare it
// against the digest recorded in the action log.
func (e *Engine) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteString(h, &tmp, e.cfg.ID)
	p := e.cfg.Params
	for _, v := range []uint64{
		p.PointsPerInterval, p.IntervalTicks, p.SafeLimitTicks, p.BurnRateBps,
		p.BurnIntervalTicks, p.InactivityLimitTicks, p.PhoenixCooldownTicks,
	} {
		digestWriteU64(h, &tmp, v)
	}

	st := e.state
	digestWriteString(h, &tmp, string(st.CurrentHolder))
	digestWriteString(h, &tmp, string(st.PreviousHolder))
	digestWriteU64(h, &tmp, st.LastTransferTick)
	digestWriteU64(h, &tmp, st.LastActivityTick)
	digestWriteU64(h, &tmp, uint64(st.ActiveGenerationID))
	digestWriteU64(h, &tmp, uint64(st.GenerationCounter))
	digestWriteString(h, &tmp, string(st.Admin))
	digestWriteBool(h, &tmp, st.Initialized)
	digestWriteBool(h, &tmp, st.Active)

	bals := e.points.Entries()
	digestWriteU64(h, &tmp, uint64(len(bals)))
	for _, b := range bals {
		digestWriteString(h, &tmp, string(b.Participant))
		digestWriteU64(h, &tmp, b.Balance)
	}
	ids := e.identities.Entries()
	digestWriteU64(h, &tmp, uint64(len(ids)))
	for _, id := range ids {
		digestWriteString(h, &tmp, string(id.Participant))
		digestWriteU64(h, &tmp, uint64(id.Handle))
	}
	deaths := e.graves.All()
	digestWriteU64(h, &tmp, uint64(len(deaths)))
	for _, d := range deaths {
		digestWriteU64(h, &tmp, uint64(d.Generation))
		digestWriteString(h, &tmp, string(d.Holder))
		digestWriteU64(h, &tmp, d.Tick)
		digestWriteString(h, &tmp, d.Reason)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

// Strings are length-prefixed so adjacent fields cannot alias.
func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func digestWriteBool(h hashWriter, tmp *[8]byte, b bool) {
	if b {
		digestWriteU64(h, tmp, 1)
		return
	}
	digestWriteU64(h, tmp, 0)
}
