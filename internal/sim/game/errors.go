package game

import (
	"errors"

	"thecore.gg/internal/protocol"
)

// Error is a rule violation or collaborator failure. Any operation returning an *Error
// left the game state exactly as it was.
type Error struct {
	Code  string // protocol error code, e.g. E_NOT_HOLDER
	Op    string // engine operation, e.g. "pass"
	Cause error  // collaborator error for E_LEDGER_REJECTED
}

func (e *Error) Error() string {
	msg := messages[e.Code]
	if msg == "" {
		msg = e.Code
	}
	s := "core"
	if e.Op != "" {
		s += ": " + e.Op
	}
	s += ": " + msg
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code, so callers can use the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrAlreadyInitialized     = &Error{Code: protocol.ErrAlreadyInitialized}
	ErrNotInitialized         = &Error{Code: protocol.ErrNotInitialized}
	ErrGameInactive           = &Error{Code: protocol.ErrGameInactive}
	ErrNotHolder              = &Error{Code: protocol.ErrNotHolder}
	ErrZeroTarget             = &Error{Code: protocol.ErrZeroTarget}
	ErrPreviousHolder         = &Error{Code: protocol.ErrPreviousHolder}
	ErrDuplicateIdentity      = &Error{Code: protocol.ErrDuplicateIdentity}
	ErrStillStable            = &Error{Code: protocol.ErrStillStable}
	ErrAlreadyHolding         = &Error{Code: protocol.ErrAlreadyHolding}
	ErrCooldownActive         = &Error{Code: protocol.ErrCooldownActive}
	ErrNotAdmin               = &Error{Code: protocol.ErrNotAdmin}
	ErrInsufficientInactivity = &Error{Code: protocol.ErrInsufficientInactivity}
	ErrLedgerRejected         = &Error{Code: protocol.ErrLedgerRejected}
	ErrInternal               = &Error{Code: protocol.ErrInternal}
)

var messages = map[string]string{
	protocol.ErrProtoBadRequest:        "bad request",
	protocol.ErrAlreadyInitialized:     "core already minted",
	protocol.ErrNotInitialized:         "game not initialized",
	protocol.ErrGameInactive:           "game is paused",
	protocol.ErrNotHolder:              "not the current holder",
	protocol.ErrZeroTarget:             "empty participant",
	protocol.ErrPreviousHolder:         "cannot transfer to previous holder",
	protocol.ErrDuplicateIdentity:      "cannot transfer to a linked identity",
	protocol.ErrStillStable:            "core is stable",
	protocol.ErrAlreadyHolding:         "already holding the core",
	protocol.ErrCooldownActive:         "phoenix cooldown still active",
	protocol.ErrNotAdmin:               "not admin",
	protocol.ErrInsufficientInactivity: "not inactive long enough",
	protocol.ErrLedgerRejected:         "ledger rejected the request",
	protocol.ErrInternal:               "internal error",
}

func fail(op string, sentinel *Error) error {
	return &Error{Code: sentinel.Code, Op: op}
}

func ledgerRejected(op string, cause error) error {
	return &Error{Code: protocol.ErrLedgerRejected, Op: op, Cause: cause}
}

// CodeOf returns the protocol code carried by err ("" for nil, E_INTERNAL for foreign errors).
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return protocol.ErrInternal
}
