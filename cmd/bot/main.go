package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"thecore.gg/internal/protocol"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name      = flag.String("name", "bot", "participant id")
		peers     = flag.String("peers", "", "comma-separated participants to pass the Core to")
		holdTicks = flag.Uint64("hold_ticks", 200, "ticks to hold the Core before passing it on")
		initGame  = flag.Bool("init", false, "initialize the game if nobody has")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ParticipantID:   *name,
		Capabilities: protocol.HelloCapabilities{
			Subscribe: true,
			MaxQueue:  8,
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	b := &bot{
		me:        *name,
		peers:     splitPeers(*peers, *name),
		holdTicks: *holdTicks,
		init:      *initGame,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	updates := make(chan observed, 16)
	go readLoop(conn, logger, updates)

	// STATE only arrives when something changes, so holding time is projected
	// locally from the last observation.
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var (
		cur  observed
		have bool
	)
	for {
		select {
		case <-stop:
			return
		case o, ok := <-updates:
			if !ok {
				return
			}
			if o.params != nil {
				b.params = *o.params
			}
			cur, have = o, true
		case <-ticker.C:
		}
		if !have {
			continue
		}
		v, tick := project(cur, b.params, time.Now())
		if act, ok := b.decide(v, tick); ok {
			if err := conn.WriteJSON(act); err != nil {
				return
			}
		}
	}
}

type observed struct {
	view   protocol.StateView
	tick   uint64
	at     time.Time
	params *protocol.GameParams
}

func readLoop(conn *websocket.Conn, logger *log.Logger, out chan<- observed) {
	defer close(out)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s game=%s tick_rate=%d safe_limit=%d", w.SessionID, w.GameID, w.Params.TickRateHz, w.Params.SafeLimitTicks)
			params := w.Params
			out <- observed{view: w.State, tick: w.Tick, at: time.Now(), params: &params}

		case protocol.TypeState:
			var s protocol.StateMsg
			if err := json.Unmarshal(msg, &s); err != nil {
				continue
			}
			out <- observed{view: s.State, tick: s.Tick, at: time.Now()}

		case protocol.TypeResult:
			var r protocol.ResultMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			if r.Accepted {
				logger.Printf("%s ok tick=%d", r.Op, r.Tick)
			} else {
				logger.Printf("%s rejected: %s %s", r.Op, r.Code, r.Message)
			}
		}
	}
}

// project advances an observed view to now using the server's tick rate.
func project(o observed, p protocol.GameParams, now time.Time) (protocol.StateView, uint64) {
	v := o.view
	tick := o.tick
	if p.TickRateHz > 0 && now.After(o.at) {
		tick += uint64(now.Sub(o.at) * time.Duration(p.TickRateHz) / time.Second)
	}
	if !v.Initialized || tick < v.LastTransferTick {
		return v, tick
	}
	v.HeldTicks = tick - v.LastTransferTick
	if p.SafeLimitTicks > 0 {
		v.Melting = v.HeldTicks > p.SafeLimitTicks
		v.CanRespawn = v.HeldTicks > p.SafeLimitTicks+p.PhoenixCooldownTicks
	}
	return v, tick
}

// bot plays hot potato: it keeps the Core for holdTicks, passes it round-robin to its
// peers, grabs from melting holders and respawns dead generations.
type bot struct {
	me        string
	peers     []string
	holdTicks uint64
	init      bool
	params    protocol.GameParams

	next    int
	lastGen uint64
	lastAct uint64
	acted   bool
	n       int
}

func (b *bot) decide(v protocol.StateView, tick uint64) (protocol.ActMsg, bool) {
	// One action per observed holding; a new transfer or generation re-arms it.
	if b.acted && v.LastTransferTick == b.lastAct && v.ActiveGenerationID == b.lastGen {
		return protocol.ActMsg{}, false
	}

	var act protocol.ActMsg
	switch {
	case !v.Initialized:
		if !b.init {
			return act, false
		}
		act = b.act(protocol.OpInitialize, "")
	case !v.Active:
		return act, false
	case v.CanRespawn:
		act = b.act(protocol.OpSpawn, "")
	case v.CurrentHolder == b.me:
		if v.HeldTicks < b.holdTicks && !v.Melting {
			return act, false
		}
		to, ok := b.pickPeer(v.PreviousHolder)
		if !ok {
			return act, false
		}
		act = b.act(protocol.OpPass, to)
	case v.Melting:
		act = b.act(protocol.OpGrab, "")
	default:
		return act, false
	}

	b.acted = true
	b.lastAct = v.LastTransferTick
	b.lastGen = v.ActiveGenerationID
	return act, true
}

func (b *bot) act(op, to string) protocol.ActMsg {
	b.n++
	return protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		ID:              fmt.Sprintf("%s_%s_%d", b.me, strings.ToLower(op), b.n),
		Op:              op,
		To:              to,
	}
}

// pickPeer returns the next peer in rotation that may receive the Core.
func (b *bot) pickPeer(previous string) (string, bool) {
	for i := 0; i < len(b.peers); i++ {
		p := b.peers[(b.next+i)%len(b.peers)]
		if p == previous {
			continue
		}
		b.next = (b.next + i + 1) % len(b.peers)
		return p, true
	}
	return "", false
}

func splitPeers(raw, me string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" || p == me {
			continue
		}
		out = append(out, p)
	}
	return out
}
