package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ParticipantID   string            `json:"participant_id"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
}

type HelloCapabilities struct {
	// Subscribe asks for STATE broadcasts after every committed operation.
	Subscribe bool `json:"subscribe,omitempty"`
	MaxQueue  int  `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	ParticipantID   string     `json:"participant_id"`
	GameID          string     `json:"game_id"`
	Tick            uint64     `json:"tick"`
	Params          GameParams `json:"params"`
	State           StateView  `json:"state"`
}

type GameParams struct {
	TickRateHz           int    `json:"tick_rate_hz"`
	PointsPerInterval    uint64 `json:"points_per_interval"`
	IntervalTicks        uint64 `json:"interval_ticks"`
	SafeLimitTicks       uint64 `json:"safe_limit_ticks"`
	BurnRateBps          uint64 `json:"burn_rate_bps"`
	BurnIntervalTicks    uint64 `json:"burn_interval_ticks"`
	InactivityLimitTicks uint64 `json:"inactivity_limit_ticks"`
	PhoenixCooldownTicks uint64 `json:"phoenix_cooldown_ticks"`
}

// ACT (client -> server). Which optional fields apply depends on Op:
// PASS uses To; REGISTER_IDENTITY uses Participant and Handle; SET_ACTIVE uses Active.
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Op              string `json:"op"`
	To              string `json:"to,omitempty"`
	Participant     string `json:"participant,omitempty"`
	Handle          uint64 `json:"handle,omitempty"`
	Active          *bool  `json:"active,omitempty"`
}

// RESULT (server -> client): outcome of one ACT.
type ResultMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	AckFor          string     `json:"ack_for"`
	Op              string     `json:"op"`
	Accepted        bool       `json:"accepted"`
	Code            string     `json:"code,omitempty"`
	Message         string     `json:"message,omitempty"`
	Tick            uint64     `json:"tick"`
	State           *StateView `json:"state,omitempty"`
}

// STATE (server -> client): broadcast after committed operations.
type StateMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Tick            uint64    `json:"tick"`
	State           StateView `json:"state"`
}

type StateView struct {
	Initialized        bool   `json:"initialized"`
	Active             bool   `json:"active"`
	CurrentHolder      string `json:"current_holder"`
	PreviousHolder     string `json:"previous_holder"`
	LastTransferTick   uint64 `json:"last_transfer_tick"`
	Melting            bool   `json:"melting"`
	ActiveGenerationID uint64 `json:"active_generation_id"`
	GenerationCounter  uint64 `json:"generation_counter"`
	Phase              string `json:"phase"`
	HeldTicks          uint64 `json:"held_ticks"`
	TicksUntilMeltdown uint64 `json:"ticks_until_meltdown"`
	CanRespawn         bool   `json:"can_respawn"`
	HolderPoints       uint64 `json:"holder_points"`
}
