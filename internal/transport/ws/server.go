package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"thecore.gg/internal/protocol"
	"thecore.gg/internal/sim/game"
	"thecore.gg/internal/sim/sequencer"
)

// Game is the sequencer surface the transport needs.
type Game interface {
	Inbox() chan<- sequencer.Request
	Subscribe(ctx context.Context, id string, out chan []byte) error
	Unsubscribe(id string)
	Inspect(ctx context.Context, fn func(e *game.Engine, tick uint64)) error
	TickRateHz() int
}

const (
	readTimeout = 60 * time.Second
	pingEvery   = 20 * time.Second
)

type RateLimits struct {
	ActPerSecond float64
	ActBurst     int
}

type Server struct {
	game   Game
	log    *log.Logger
	limits RateLimits

	upgrader websocket.Upgrader
}

func NewServer(g Game, limits RateLimits, logger *log.Logger) *Server {
	return &Server{
		game:   g,
		log:    logger,
		limits: limits,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

type session struct {
	id          string
	participant game.ParticipantID
	out         chan []byte // RESULT messages
	state       chan []byte // STATE broadcasts; the sequencer drops the oldest when full
	limiter     *rate.Limiter
}

func (s *Server) newLimiter() *rate.Limiter {
	if s.limits.ActPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := s.limits.ActBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(s.limits.ActPerSecond), burst)
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess, subscribed := s.handshake(ctx, conn)
		if sess == nil {
			return
		}
		if subscribed {
			defer s.game.Unsubscribe(sess.id)
		}

		// Subscribers may only listen; pongs keep them alive.
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})

		// Writer goroutine.
		go func() {
			ping := time.NewTicker(pingEvery)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						cancel()
						return
					}
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				case b := <-sess.state:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeAct {
				continue
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				continue
			}
			s.handleAct(ctx, sess, act)
		}
	}
}

func (s *Server) handleAct(ctx context.Context, sess *session, act protocol.ActMsg) {
	reject := func(code, message string) {
		s.send(ctx, sess, protocol.ResultMsg{
			Type:            protocol.TypeResult,
			ProtocolVersion: protocol.Version,
			AckFor:          act.ID,
			Op:              act.Op,
			Code:            code,
			Message:         message,
		})
	}
	if act.ProtocolVersion != protocol.Version {
		reject(protocol.ErrProtoBadRequest, "bad protocol_version")
		return
	}
	if !protocol.IsKnownOp(act.Op) {
		reject(protocol.ErrProtoBadRequest, "unknown op")
		return
	}
	if !sess.limiter.Allow() {
		reject(protocol.ErrRateLimit, "too many actions")
		return
	}

	resp := make(chan sequencer.Result, 1)
	req := sequencer.Request{
		Caller: sess.participant,
		Act: sequencer.Action{
			Op:          act.Op,
			To:          game.ParticipantID(strings.TrimSpace(act.To)),
			Participant: game.ParticipantID(strings.TrimSpace(act.Participant)),
			Handle:      act.Handle,
			Active:      act.Active,
		},
		Resp: resp,
	}
	select {
	case s.game.Inbox() <- req:
	default:
		reject(protocol.ErrBusy, "server busy")
		return
	}

	go func() {
		select {
		case res := <-resp:
			view := sequencer.ViewOf(res.Status)
			msg := protocol.ResultMsg{
				Type:            protocol.TypeResult,
				ProtocolVersion: protocol.Version,
				AckFor:          act.ID,
				Op:              act.Op,
				Accepted:        res.Accepted(),
				Code:            res.Code,
				Tick:            res.Tick,
				State:           &view,
			}
			if res.Err != nil {
				msg.Message = res.Err.Error()
			}
			s.send(ctx, sess, msg)
		case <-ctx.Done():
		}
	}()
}

// send queues a RESULT for the writer. Results are never dropped while the connection
// is alive.
func (s *Server) send(ctx context.Context, sess *session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("marshal: %v", err)
		return
	}
	select {
	case sess.out <- b:
	case <-ctx.Done():
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (*session, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return nil, false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, "bad HELLO")
		return nil, false
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return nil, false
	}
	participant := game.ParticipantID(strings.TrimSpace(hello.ParticipantID))
	if participant.IsZero() {
		closeWith(conn, "missing participant_id")
		return nil, false
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	sess := &session{
		id:          uuid.New().String(),
		participant: participant,
		out:         make(chan []byte, 16),
		state:       make(chan []byte, maxQ),
		limiter:     s.newLimiter(),
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		ParticipantID:   string(participant),
	}
	err = s.game.Inspect(ctx, func(e *game.Engine, tick uint64) {
		welcome.GameID = e.ID()
		welcome.Tick = tick
		welcome.Params = sequencer.ParamsOf(e.Params(), s.game.TickRateHz())
		welcome.State = sequencer.ViewOf(e.Status())
	})
	if err != nil {
		return nil, false
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil, false
	}

	if !hello.Capabilities.Subscribe {
		return sess, false
	}
	if err := s.game.Subscribe(ctx, sess.id, sess.state); err != nil {
		return nil, false
	}
	return sess, true
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
