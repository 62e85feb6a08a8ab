package points

import (
	"math"
	"math/bits"
	"sort"

	"thecore.gg/internal/sim/game/model"
)

// Settlement is the outcome of finalizing one holder's score at the moment they lose the Core.
// It is computed without touching any balance; Ledger.Apply commits it.
type Settlement struct {
	Holder    model.ParticipantID `json:"holder"`
	HeldTicks uint64              `json:"held_ticks"`
	Melted    bool                `json:"melted"`

	Before  uint64 `json:"before"`
	After   uint64 `json:"after"`
	Earned  uint64 `json:"earned,omitempty"`
	Periods uint64 `json:"periods,omitempty"`
	Penalty uint64 `json:"penalty,omitempty"`
}

// Compute settles a balance for a holding of held ticks.
//
// Inside the safe zone the holder earns PointsPerInterval for every full IntervalTicks.
// Past SafeLimitTicks nothing is earned; instead every full BurnIntervalTicks of meltdown
// burns BurnRateBps of the balance (linear in periods, not compounded), floored at zero.
func Compute(holder model.ParticipantID, balance, held uint64, p model.Params) Settlement {
	s := Settlement{Holder: holder, HeldTicks: held, Before: balance, After: balance}
	if held <= p.SafeLimitTicks {
		if p.IntervalTicks == 0 {
			return s
		}
		s.Earned = mulSat(held/p.IntervalTicks, p.PointsPerInterval)
		s.After = addSat(balance, s.Earned)
		return s
	}

	s.Melted = true
	if p.BurnIntervalTicks == 0 {
		return s
	}
	s.Periods = (held - p.SafeLimitTicks) / p.BurnIntervalTicks
	s.Penalty = penalty(balance, s.Periods, p.BurnRateBps)
	s.After = balance - s.Penalty
	return s
}

// penalty returns floor(balance*periods*bps/10000), capped at balance.
func penalty(balance, periods, bps uint64) uint64 {
	if balance == 0 || periods == 0 || bps == 0 {
		return 0
	}
	hi, factor := bits.Mul64(periods, bps)
	if hi != 0 || factor >= model.BpsDenominator {
		return balance
	}
	// factor < 10000 keeps hi < divisor, so Div64 cannot panic.
	hi, lo := bits.Mul64(balance, factor)
	q, _ := bits.Div64(hi, lo, model.BpsDenominator)
	if q > balance {
		return balance
	}
	return q
}

func mulSat(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

func addSat(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// Ledger maps participants to accrued score. The zero value is not usable; use NewLedger.
type Ledger struct {
	balances map[model.ParticipantID]uint64
}

type Entry struct {
	Participant model.ParticipantID `json:"participant"`
	Balance     uint64              `json:"balance"`
}

func NewLedger() *Ledger {
	return &Ledger{balances: map[model.ParticipantID]uint64{}}
}

func (l *Ledger) Balance(p model.ParticipantID) uint64 {
	if l == nil {
		return 0
	}
	return l.balances[p]
}

// Apply commits a settlement. Only the settled holder's balance changes.
func (l *Ledger) Apply(s Settlement) {
	l.Set(s.Holder, s.After)
}

func (l *Ledger) Set(p model.ParticipantID, balance uint64) {
	if p.IsZero() {
		return
	}
	if balance == 0 {
		delete(l.balances, p)
		return
	}
	l.balances[p] = balance
}

// Entries returns all non-zero balances, highest first (ties by participant id).
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, 0, len(l.balances))
	for p, b := range l.balances {
		out = append(out, Entry{Participant: p, Balance: b})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return out[i].Participant < out[j].Participant
	})
	return out
}
