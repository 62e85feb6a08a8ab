package model

import "strings"

// ParticipantID identifies a player (e.g. a wallet address). The empty value is the zero identity.
type ParticipantID string

const NoParticipant ParticipantID = ""

func (p ParticipantID) IsZero() bool { return strings.TrimSpace(string(p)) == "" }

func (p ParticipantID) String() string { return string(p) }

// GenerationID identifies one incarnation of the Core. Generation 1 is minted at initialization.
type GenerationID uint64

// Handle is an external uniqueness key (e.g. a social-graph id). Zero means unregistered.
type Handle uint64

// Params holds the deployment-tunable game constants. All values are in ticks except
// PointsPerInterval (score units) and BurnRateBps (basis points of balance per burn period).
type Params struct {
	PointsPerInterval    uint64 `json:"points_per_interval"`
	IntervalTicks        uint64 `json:"interval_ticks"`
	SafeLimitTicks       uint64 `json:"safe_limit_ticks"`
	BurnRateBps          uint64 `json:"burn_rate_bps"`
	BurnIntervalTicks    uint64 `json:"burn_interval_ticks"`
	InactivityLimitTicks uint64 `json:"inactivity_limit_ticks"`
	PhoenixCooldownTicks uint64 `json:"phoenix_cooldown_ticks"`
}

// BpsDenominator is the basis-point scale used by BurnRateBps.
const BpsDenominator = 10000

// HeldTicks returns now-since with saturation at zero.
func HeldTicks(now, since uint64) uint64 {
	if now <= since {
		return 0
	}
	return now - since
}
