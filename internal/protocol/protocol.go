package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeAct     = "ACT"
	TypeResult  = "RESULT"
	TypeState   = "STATE"
)

// Operations carried by ACT.
const (
	OpInitialize       = "INITIALIZE"
	OpPass             = "PASS"
	OpGrab             = "GRAB"
	OpSpawn            = "SPAWN"
	OpAdminReset       = "ADMIN_RESET"
	OpRegisterIdentity = "REGISTER_IDENTITY"
	OpSetActive        = "SET_ACTIVE"
)

var knownOps = map[string]struct{}{
	OpInitialize:       {},
	OpPass:             {},
	OpGrab:             {},
	OpSpawn:            {},
	OpAdminReset:       {},
	OpRegisterIdentity: {},
	OpSetActive:        {},
}

func IsKnownOp(op string) bool {
	_, ok := knownOps[op]
	return ok
}

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
