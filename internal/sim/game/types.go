package game

import (
	"thecore.gg/internal/sim/game/feature/phoenix"
	"thecore.gg/internal/sim/game/feature/points"
	"thecore.gg/internal/sim/game/model"
)

type (
	ParticipantID = model.ParticipantID
	GenerationID  = model.GenerationID
	Handle        = model.Handle
	Params        = model.Params

	Phase      = phoenix.Phase
	Death      = phoenix.Death
	Settlement = points.Settlement
	Balance    = points.Entry
)

const NoParticipant = model.NoParticipant

const (
	PhaseStable      = phoenix.PhaseStable
	PhaseMelting     = phoenix.PhaseMelting
	PhaseDeadPending = phoenix.PhaseDeadPending
)

// Clock supplies the host's discrete time (e.g. block height). It must be monotonically
// non-decreasing within one operation.
type Clock interface {
	CurrentTick() uint64
}

type ClockFunc func() uint64

func (f ClockFunc) CurrentTick() uint64 { return f() }

// Ledger is the token-ownership collaborator. Both calls are atomic: they either fully
// succeed or return an error and change nothing.
type Ledger interface {
	Mint(owner ParticipantID, gen GenerationID) error
	TransferOwnership(from, to ParticipantID, gen GenerationID) error
}

// Config fixes an engine instance's identity and rules.
type Config struct {
	ID     string
	Params Params
}

// State is the single mutable aggregate of the game.
type State struct {
	CurrentHolder      ParticipantID `json:"current_holder"`
	PreviousHolder     ParticipantID `json:"previous_holder"`
	LastTransferTick   uint64        `json:"last_transfer_tick"`
	LastActivityTick   uint64        `json:"last_activity_tick"`
	ActiveGenerationID GenerationID  `json:"active_generation_id"`
	GenerationCounter  GenerationID  `json:"generation_counter"`
	Admin              ParticipantID `json:"admin"`
	Initialized        bool          `json:"initialized"`
	Active             bool          `json:"active"`
}

// View is the public game-state tuple.
type View struct {
	CurrentHolder      ParticipantID `json:"current_holder"`
	PreviousHolder     ParticipantID `json:"previous_holder"`
	LastTransferTick   uint64        `json:"last_transfer_tick"`
	Melting            bool          `json:"melting"`
	ActiveGenerationID GenerationID  `json:"active_generation_id"`
}

// Status is View plus derived timing fields, for HUDs and admin tooling.
type Status struct {
	View
	Tick               uint64        `json:"tick"`
	Initialized        bool          `json:"initialized"`
	Active             bool          `json:"active"`
	Admin              ParticipantID `json:"admin"`
	GenerationCounter  GenerationID  `json:"generation_counter"`
	Phase              Phase         `json:"phase"`
	HeldTicks          uint64        `json:"held_ticks"`
	TicksUntilMeltdown uint64        `json:"ticks_until_meltdown"`
	CanRespawn         bool          `json:"can_respawn"`
	HolderPoints       uint64        `json:"holder_points"`
}

// AuditEntry records one committed state change.
type AuditEntry struct {
	Tick       uint64         `json:"tick"`
	Actor      ParticipantID  `json:"actor"`
	Action     string         `json:"action"` // e.g. "TRANSFER"
	Generation GenerationID   `json:"generation,omitempty"`
	From       ParticipantID  `json:"from,omitempty"`
	To         ParticipantID  `json:"to,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Audit actions.
const (
	AuditInitialize       = "INITIALIZE"
	AuditTransfer         = "TRANSFER"
	AuditSettle           = "SETTLE"
	AuditDeath            = "DEATH"
	AuditMint             = "MINT"
	AuditRegisterIdentity = "REGISTER_IDENTITY"
	AuditSetActive        = "SET_ACTIVE"
)

// Transfer reasons.
const (
	ReasonPass       = "PASS"
	ReasonGrab       = "GRAB"
	ReasonAbandoned  = phoenix.ReasonAbandoned
	ReasonAdminReset = phoenix.ReasonAdminReset
)
