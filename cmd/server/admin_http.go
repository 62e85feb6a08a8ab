package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"thecore.gg/internal/persistence/indexdb"
	"thecore.gg/internal/protocol"
	"thecore.gg/internal/sim/game"
	"thecore.gg/internal/sim/game/feature/metadata"
	"thecore.gg/internal/sim/sequencer"
)

// gameHost is the sequencer surface the HTTP endpoints read through.
type gameHost interface {
	Inspect(ctx context.Context, fn func(e *game.Engine, tick uint64)) error
	RequestSnapshot(ctx context.Context) (uint64, error)
	TickRateHz() int
}

type adminAPI struct {
	gameID string
	game   gameHost
	index  runtimeIndex
}

type adminStateResponse struct {
	GameID      string              `json:"game_id"`
	Tick        uint64              `json:"tick"`
	Admin       game.ParticipantID  `json:"admin"`
	Params      protocol.GameParams `json:"params"`
	State       protocol.StateView  `json:"state"`
	Generations []game.Death        `json:"generations"`
	Leaderboard []game.Balance      `json:"leaderboard"`
	Index       *indexdb.Stats      `json:"index,omitempty"`
}

func (a *adminAPI) stateHandler(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := adminStateResponse{GameID: a.gameID}
	err := a.game.Inspect(ctx, func(e *game.Engine, tick uint64) {
		st := e.Status()
		resp.Tick = tick
		resp.Admin = st.Admin
		resp.Params = sequencer.ParamsOf(e.Params(), a.game.TickRateHz())
		resp.State = sequencer.ViewOf(st)
		resp.Generations = e.Generations()
		resp.Leaderboard = e.Balances()
	})
	if err != nil {
		http.Error(rw, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if a.index != nil {
		s := a.index.Stats()
		resp.Index = &s
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(resp)
}

func (a *adminAPI) snapshotHandler(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	tick, err := a.game.RequestSnapshot(ctx)
	rw.Header().Set("Content-Type", "application/json")
	if err != nil {
		rw.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
		return
	}
	_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
}

// metadataHandler serves the collection info, or one token's metadata with ?gen=N.
func (a *adminAPI) metadataHandler(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rw.Header().Set("Content-Type", "application/json")

	raw := strings.TrimSpace(r.URL.Query().Get("gen"))
	if raw == "" {
		_ = json.NewEncoder(rw).Encode(map[string]string{"name": metadata.Name, "symbol": metadata.Symbol})
		return
	}
	gen, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(rw, "bad gen", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	var (
		uri string
		ok  bool
	)
	if err := a.game.Inspect(ctx, func(e *game.Engine, _ uint64) {
		uri, ok = e.TokenURI(game.GenerationID(gen))
	}); err != nil {
		http.Error(rw, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if !ok {
		http.Error(rw, "unknown generation", http.StatusNotFound)
		return
	}
	_, _ = rw.Write([]byte(uri))
}

func (a *adminAPI) metricsHandler(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var (
		st   game.Status
		dead int
	)
	if err := a.game.Inspect(ctx, func(e *game.Engine, _ uint64) {
		st = e.Status()
		dead = len(e.Generations())
	}); err != nil {
		http.Error(rw, err.Error(), http.StatusServiceUnavailable)
		return
	}

	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP core_tick Current block height.\n")
	fmt.Fprintf(rw, "# TYPE core_tick gauge\n")
	fmt.Fprintf(rw, "core_tick{game=%q} %d\n", a.gameID, st.Tick)

	fmt.Fprintf(rw, "# HELP core_generation Active generation id.\n")
	fmt.Fprintf(rw, "# TYPE core_generation gauge\n")
	fmt.Fprintf(rw, "core_generation{game=%q} %d\n", a.gameID, st.ActiveGenerationID)

	fmt.Fprintf(rw, "# HELP core_dead_generations Retired generations.\n")
	fmt.Fprintf(rw, "# TYPE core_dead_generations gauge\n")
	fmt.Fprintf(rw, "core_dead_generations{game=%q} %d\n", a.gameID, dead)

	fmt.Fprintf(rw, "# HELP core_held_ticks Ticks since the last transfer.\n")
	fmt.Fprintf(rw, "# TYPE core_held_ticks gauge\n")
	fmt.Fprintf(rw, "core_held_ticks{game=%q} %d\n", a.gameID, st.HeldTicks)

	melting := 0
	if st.Melting {
		melting = 1
	}
	fmt.Fprintf(rw, "# HELP core_melting Whether the holder is past the safe limit.\n")
	fmt.Fprintf(rw, "# TYPE core_melting gauge\n")
	fmt.Fprintf(rw, "core_melting{game=%q} %d\n", a.gameID, melting)

	if a.index == nil {
		return
	}
	s := a.index.Stats()
	fmt.Fprintf(rw, "# HELP core_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE core_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "core_index_queue_depth{game=%q} %d\n", a.gameID, s.QueueDepth)

	fmt.Fprintf(rw, "# HELP core_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE core_index_dropped_total counter\n")
	fmt.Fprintf(rw, "core_index_dropped_total{game=%q,kind=%q} %d\n", a.gameID, "action", s.DropActionTotal)
	fmt.Fprintf(rw, "core_index_dropped_total{game=%q,kind=%q} %d\n", a.gameID, "audit", s.DropAuditTotal)
	fmt.Fprintf(rw, "core_index_dropped_total{game=%q,kind=%q} %d\n", a.gameID, "snapshot", s.DropSnapshotTotal)
	fmt.Fprintf(rw, "core_index_dropped_total{game=%q,kind=%q} %d\n", a.gameID, "generation", s.DropGenerationTotal)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
