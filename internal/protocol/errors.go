package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrRateLimit       = "E_RATE_LIMIT"
	ErrBusy            = "E_BUSY"

	// Game lifecycle.
	ErrAlreadyInitialized = "E_ALREADY_INITIALIZED"
	ErrNotInitialized     = "E_NOT_INITIALIZED"
	ErrGameInactive       = "E_GAME_INACTIVE"

	// Possession rules.
	ErrNotHolder         = "E_NOT_HOLDER"
	ErrZeroTarget        = "E_ZERO_TARGET"
	ErrPreviousHolder    = "E_PREVIOUS_HOLDER"
	ErrDuplicateIdentity = "E_DUPLICATE_IDENTITY"
	ErrStillStable       = "E_STILL_STABLE"
	ErrAlreadyHolding    = "E_ALREADY_HOLDING"

	// Phoenix/admin.
	ErrCooldownActive         = "E_COOLDOWN_ACTIVE"
	ErrNotAdmin               = "E_NOT_ADMIN"
	ErrInsufficientInactivity = "E_INSUFFICIENT_INACTIVITY"

	// Collaborators.
	ErrLedgerRejected = "E_LEDGER_REJECTED"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:        {},
	ErrRateLimit:              {},
	ErrBusy:                   {},
	ErrAlreadyInitialized:     {},
	ErrNotInitialized:         {},
	ErrGameInactive:           {},
	ErrNotHolder:              {},
	ErrZeroTarget:             {},
	ErrPreviousHolder:         {},
	ErrDuplicateIdentity:      {},
	ErrStillStable:            {},
	ErrAlreadyHolding:         {},
	ErrCooldownActive:         {},
	ErrNotAdmin:               {},
	ErrInsufficientInactivity: {},
	ErrLedgerRejected:         {},
	ErrInternal:               {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
