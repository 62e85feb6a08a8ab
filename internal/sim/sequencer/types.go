package sequencer

import (
	"thecore.gg/internal/persistence/snapshot"
	"thecore.gg/internal/sim/game"
)

type Config struct {
	TickRateHz         int
	SnapshotEveryTicks uint64
}

// Action is one engine operation as submitted by a participant.
type Action struct {
	Op          string             `json:"op"`
	To          game.ParticipantID `json:"to,omitempty"`
	Participant game.ParticipantID `json:"participant,omitempty"`
	Handle      uint64             `json:"handle,omitempty"`
	Active      *bool              `json:"active,omitempty"`
}

// Request submits an Action on behalf of Caller. Resp, when set, receives exactly one
// Result and should be buffered.
type Request struct {
	Caller game.ParticipantID
	Act    Action
	Resp   chan Result
}

type Result struct {
	Tick   uint64
	Seq    uint64
	Code   string // empty when accepted
	Err    error
	Status game.Status
}

func (r Result) Accepted() bool { return r.Err == nil }

// ActionLogEntry is written for every applied action, accepted or not. Digest is the
// engine state digest after the action; replays compare against it.
type ActionLogEntry struct {
	Tick   uint64             `json:"tick"`
	Seq    uint64             `json:"seq"`
	Caller game.ParticipantID `json:"caller"`
	Act    Action             `json:"act"`
	Code   string             `json:"code,omitempty"`
	Digest string             `json:"digest"`
}

type ActionLogger interface {
	WriteAction(ActionLogEntry) error
}

type AuditLogger interface {
	WriteAudit(game.AuditEntry) error
}

// Snapshot reasons.
const (
	SnapshotPeriodic      = "PERIODIC"
	SnapshotGenerationEnd = "GENERATION_END"
	SnapshotAdmin         = "ADMIN"
	SnapshotShutdown      = "SHUTDOWN"
)

// SnapshotSink receives exported snapshots. Periodic and admin snapshots are dropped when
// the sink is full; generation-end and shutdown snapshots wait for room.
type SnapshotSink = chan<- snapshot.SnapshotV1
