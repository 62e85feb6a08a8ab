// Package ledger holds the in-memory token-ownership ledger the engine mints and
// transfers generations through.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"thecore.gg/internal/persistence/snapshot"
	"thecore.gg/internal/sim/game/model"
)

var (
	ErrTokenExists  = errors.New("ledger: token already minted")
	ErrNoToken      = errors.New("ledger: no such token")
	ErrNotOwner     = errors.New("ledger: sender does not own token")
	ErrZeroReceiver = errors.New("ledger: zero receiver")
)

type Token struct {
	Generation model.GenerationID  `json:"generation"`
	Owner      model.ParticipantID `json:"owner"`
}

// Memory is a map-backed ledger. It is safe for concurrent reads from admin handlers
// while the sequencer mutates it.
type Memory struct {
	mu     sync.RWMutex
	owners map[model.GenerationID]model.ParticipantID
}

func NewMemory() *Memory {
	return &Memory{owners: map[model.GenerationID]model.ParticipantID{}}
}

func (m *Memory) Mint(owner model.ParticipantID, gen model.GenerationID) error {
	if owner.IsZero() {
		return ErrZeroReceiver
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[gen]; ok {
		return fmt.Errorf("%w: generation %d", ErrTokenExists, gen)
	}
	m.owners[gen] = owner
	return nil
}

func (m *Memory) TransferOwnership(from, to model.ParticipantID, gen model.GenerationID) error {
	if to.IsZero() {
		return ErrZeroReceiver
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.owners[gen]
	if !ok {
		return fmt.Errorf("%w: generation %d", ErrNoToken, gen)
	}
	if cur != from {
		return fmt.Errorf("%w: generation %d owned by %s", ErrNotOwner, gen, cur)
	}
	m.owners[gen] = to
	return nil
}

func (m *Memory) OwnerOf(gen model.GenerationID) (model.ParticipantID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.owners[gen]
	return o, ok
}

// BalanceOf counts the tokens (live or retired) owned by p.
func (m *Memory) BalanceOf(p model.ParticipantID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, o := range m.owners {
		if o == p {
			n++
		}
	}
	return n
}

func (m *Memory) Tokens() []Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Token, 0, len(m.owners))
	for g, o := range m.owners {
		out = append(out, Token{Generation: g, Owner: o})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Generation < out[j].Generation })
	return out
}

// SeedFromSnapshot rebuilds ownership implied by an engine snapshot: retired tokens stay
// with their last holder and the active token is with the current holder.
func SeedFromSnapshot(snap snapshot.SnapshotV1) *Memory {
	m := NewMemory()
	for _, d := range snap.Deaths {
		m.owners[model.GenerationID(d.Generation)] = model.ParticipantID(d.Holder)
	}
	if snap.State.Initialized && snap.State.ActiveGenerationID != 0 {
		m.owners[model.GenerationID(snap.State.ActiveGenerationID)] = model.ParticipantID(snap.State.CurrentHolder)
	}
	return m
}
