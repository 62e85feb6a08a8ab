package sequencer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"thecore.gg/internal/persistence/snapshot"
	"thecore.gg/internal/protocol"
	"thecore.gg/internal/sim/game"
)

// Sequencer owns a game engine and gives it a total order: requests queue on the inbox
// and are applied one at a time on the loop goroutine, all requests of one tick sharing
// that tick as their block height.
type Sequencer struct {
	cfg    Config
	engine *game.Engine
	logger *log.Logger

	tick atomic.Uint64
	seq  uint64

	inbox     chan Request
	subscribe chan subscribeReq
	leave     chan string
	snapReq   chan snapshotReq
	inspect   chan inspectReq
	stop      chan struct{}
	stopOnce  sync.Once

	actionLogger ActionLogger
	auditLogger  AuditLogger
	snapshotSink SnapshotSink

	subs      map[string]chan []byte
	lastPhase game.Phase
	lastGen   game.GenerationID
}

type subscribeReq struct {
	ID   string
	Out  chan []byte
	Done chan struct{}
}

type snapshotReq struct {
	Resp chan snapshotResp
}

type snapshotResp struct {
	Tick uint64
	Err  string
}

type inspectReq struct {
	Fn   func(e *game.Engine, tick uint64)
	Done chan struct{}
}

func New(cfg Config, ledger game.Ledger, gameCfg game.Config, logger *log.Logger) (*Sequencer, error) {
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("sequencer: tick_rate_hz must be > 0")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[sequencer] ", log.LstdFlags|log.Lmicroseconds)
	}
	s := &Sequencer{
		cfg:       cfg,
		logger:    logger,
		inbox:     make(chan Request, 1024),
		subscribe: make(chan subscribeReq, 64),
		leave:     make(chan string, 64),
		snapReq:   make(chan snapshotReq, 8),
		inspect:   make(chan inspectReq, 64),
		stop:      make(chan struct{}),
		subs:      map[string]chan []byte{},
	}
	e, err := game.New(gameCfg, game.ClockFunc(s.tick.Load), ledger)
	if err != nil {
		return nil, err
	}
	s.engine = e
	return s, nil
}

func (s *Sequencer) SetActionLogger(l ActionLogger) { s.actionLogger = l }
func (s *Sequencer) SetAuditLogger(l AuditLogger)   { s.auditLogger = l }
func (s *Sequencer) SetSnapshotSink(ch SnapshotSink) { s.snapshotSink = ch }

func (s *Sequencer) Inbox() chan<- Request { return s.inbox }
func (s *Sequencer) CurrentTick() uint64   { return s.tick.Load() }
func (s *Sequencer) TickRateHz() int       { return s.cfg.TickRateHz }

// Engine exposes the engine for setup and single-goroutine use (tests, replay).
// While Run is active, use Inspect instead.
func (s *Sequencer) Engine() *game.Engine { return s.engine }

// Restore loads a snapshot and resumes at the tick after it.
// This must be called before Run.
func (s *Sequencer) Restore(snap snapshot.SnapshotV1) error {
	if err := s.engine.ImportSnapshot(snap); err != nil {
		return err
	}
	s.tick.Store(snap.Header.Tick + 1)
	s.seq = snap.Seq
	s.lastGen = s.engine.State().ActiveGenerationID
	return nil
}

func (s *Sequencer) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer func() { s.exportSnapshot(s.lastExecutedTick(), SnapshotShutdown) }()

	s.lastGen = s.engine.State().ActiveGenerationID
	s.lastPhase = s.engine.Phase()

	var pending []Request
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.subscribe:
			s.subs[req.ID] = req.Out
			close(req.Done)
		case id := <-s.leave:
			delete(s.subs, id)
		case req := <-s.snapReq:
			s.handleSnapshotRequest(req)
		case req := <-s.inspect:
			req.Fn(s.engine, s.tick.Load())
			close(req.Done)
		case req := <-s.inbox:
			pending = append(pending, req)
		case <-ticker.C:
			s.step(pending)
			pending = pending[:0]
		}
	}
}

func (s *Sequencer) Stop() { s.stopOnce.Do(func() { close(s.stop) }) }

// step applies one tick's worth of requests in arrival order, then advances the tick.
func (s *Sequencer) step(reqs []Request) {
	tick := s.tick.Load()
	changed := false
	for _, req := range reqs {
		res := s.apply(tick, req.Caller, req.Act)
		if res.Accepted() {
			changed = true
		}
		if req.Resp != nil {
			select {
			case req.Resp <- res:
			default:
			}
		}
	}

	if phase := s.engine.Phase(); phase != s.lastPhase {
		s.lastPhase = phase
		changed = true
	}
	if changed {
		s.broadcastState(tick)
	}

	gen := s.engine.State().ActiveGenerationID
	switch {
	case gen != s.lastGen && s.lastGen != 0:
		s.exportSnapshot(tick, SnapshotGenerationEnd)
	case s.cfg.SnapshotEveryTicks > 0 && tick > 0 && tick%s.cfg.SnapshotEveryTicks == 0:
		s.exportSnapshot(tick, SnapshotPeriodic)
	}
	s.lastGen = gen

	s.tick.Store(tick + 1)
}

// ApplyAt runs one action at tick synchronously, as the loop would. It is for replays
// and tests and must not be used while Run is active. tick must not go backwards.
func (s *Sequencer) ApplyAt(tick uint64, caller game.ParticipantID, act Action) Result {
	if tick > s.tick.Load() {
		s.tick.Store(tick)
	}
	return s.apply(s.tick.Load(), caller, act)
}

func (s *Sequencer) apply(tick uint64, caller game.ParticipantID, act Action) Result {
	err := s.dispatch(caller, act)
	s.seq++
	res := Result{
		Tick:   tick,
		Seq:    s.seq,
		Code:   game.CodeOf(err),
		Err:    err,
		Status: s.engine.Status(),
	}

	if s.actionLogger != nil {
		entry := ActionLogEntry{
			Tick:   tick,
			Seq:    s.seq,
			Caller: caller,
			Act:    act,
			Code:   res.Code,
			Digest: s.engine.StateDigest(),
		}
		if werr := s.actionLogger.WriteAction(entry); werr != nil {
			s.logger.Printf("action log: %v", werr)
		}
	}
	for _, a := range s.engine.DrainAudit() {
		if s.auditLogger == nil {
			continue
		}
		if werr := s.auditLogger.WriteAudit(a); werr != nil {
			s.logger.Printf("audit log: %v", werr)
		}
	}
	var ge *game.Error
	if err != nil && !errors.As(err, &ge) {
		s.logger.Printf("tick=%d seq=%d caller=%s op=%s: %v", tick, s.seq, caller, act.Op, err)
	}
	return res
}

func (s *Sequencer) dispatch(caller game.ParticipantID, act Action) error {
	e := s.engine
	switch act.Op {
	case protocol.OpInitialize:
		return e.Initialize(caller)
	case protocol.OpPass:
		return e.Pass(caller, act.To)
	case protocol.OpGrab:
		return e.Grab(caller)
	case protocol.OpSpawn:
		return e.SpawnNewGeneration(caller)
	case protocol.OpAdminReset:
		return e.AdminReset(caller)
	case protocol.OpRegisterIdentity:
		return e.RegisterIdentity(caller, act.Participant, game.Handle(act.Handle))
	case protocol.OpSetActive:
		if act.Active == nil {
			return &game.Error{Code: protocol.ErrProtoBadRequest, Op: "set_active"}
		}
		return e.SetActive(caller, *act.Active)
	default:
		return &game.Error{Code: protocol.ErrProtoBadRequest, Op: act.Op}
	}
}

func (s *Sequencer) lastExecutedTick() uint64 {
	cur := s.tick.Load()
	if cur == 0 {
		return 0
	}
	return cur - 1
}

func (s *Sequencer) exportSnapshot(tick uint64, reason string) bool {
	if s.snapshotSink == nil {
		return false
	}
	snap := s.engine.ExportSnapshot(tick)
	snap.Reason = reason
	snap.Seq = s.seq
	if mustPersist(reason) {
		s.snapshotSink <- snap
		return true
	}
	select {
	case s.snapshotSink <- snap:
		return true
	default:
		s.logger.Printf("snapshot sink backpressure; dropped %s snapshot at tick %d", reason, tick)
		return false
	}
}

// mustPersist reports whether snapshots taken for reason wait for room in the sink.
func mustPersist(reason string) bool {
	return reason == SnapshotGenerationEnd || reason == SnapshotShutdown
}

func (s *Sequencer) handleSnapshotRequest(req snapshotReq) {
	tick := s.lastExecutedTick()
	resp := snapshotResp{Tick: tick}
	if s.snapshotSink == nil {
		resp.Err = "snapshot sink not configured"
	} else if !s.exportSnapshot(tick, SnapshotAdmin) {
		resp.Err = "snapshot sink backpressure"
	}
	select {
	case req.Resp <- resp:
	default:
	}
}

// RequestSnapshot asks the loop goroutine to export a snapshot of the last executed tick.
// It is safe to call from other goroutines (e.g. admin HTTP handlers).
func (s *Sequencer) RequestSnapshot(ctx context.Context) (uint64, error) {
	resp := make(chan snapshotResp, 1)
	select {
	case s.snapReq <- snapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Inspect runs fn on the loop goroutine with the engine and current tick. fn must only
// read from the engine.
func (s *Sequencer) Inspect(ctx context.Context, fn func(e *game.Engine, tick uint64)) error {
	done := make(chan struct{})
	select {
	case s.inspect <- inspectReq{Fn: fn, Done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers out for STATE broadcasts until Unsubscribe(id). It returns once
// the registration is in effect.
func (s *Sequencer) Subscribe(ctx context.Context, id string, out chan []byte) error {
	done := make(chan struct{})
	select {
	case s.subscribe <- subscribeReq{ID: id, Out: out, Done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sequencer) Unsubscribe(id string) {
	select {
	case s.leave <- id:
	default:
		s.logger.Printf("leave queue full; dropping unsubscribe for %s", id)
	}
}

func (s *Sequencer) broadcastState(tick uint64) {
	if len(s.subs) == 0 {
		return
	}
	b, err := json.Marshal(protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		State:           ViewOf(s.engine.Status()),
	})
	if err != nil {
		s.logger.Printf("marshal state: %v", err)
		return
	}
	for _, out := range s.subs {
		sendLatest(out, b)
	}
}

// sendLatest never blocks; when out is full the oldest message is dropped.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
