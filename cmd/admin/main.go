package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	persistlog "thecore.gg/internal/persistence/log"
	"thecore.gg/internal/persistence/snapshot"
	"thecore.gg/internal/sim/game"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "deaths":
			dbCmd(append(os.Args[2:], "deaths"))
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "metadata":
			metadataCmd(os.Args[2:])
			return
		case "list":
			listCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the games under the data dir, or one game's snapshots.
func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gameID := fs.String("game", "", "game id (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*gameID) == "" {
		entries, err := os.ReadDir(filepath.Join(*dataDir, "games"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, e := range entries {
			fmt.Println(e.Name())
		}
		return
	}

	gameDir := filepath.Join(*dataDir, "games", *gameID)
	for _, path := range snapshotFiles(gameDir) {
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(path), err)
			continue
		}
		printJSON(struct {
			Path    string `json:"path"`
			GameID  string `json:"game_id"`
			Tick    uint64 `json:"tick"`
			Version int    `json:"version"`
		}{path, h.GameID, h.Tick, h.Version})
	}
}

type snapshotSummary struct {
	GameID      string                `json:"game_id"`
	Tick        uint64                `json:"tick"`
	Reason      string                `json:"reason,omitempty"`
	Seq         uint64                `json:"seq"`
	Params      snapshot.ParamsV1     `json:"params"`
	State       snapshot.StateV1      `json:"state"`
	Deaths      []snapshot.DeathV1    `json:"deaths"`
	Leaderboard []snapshot.PointsV1   `json:"leaderboard"`
	Identities  []snapshot.IdentityV1 `json:"identities,omitempty"`
}

// inspectCmd prints a snapshot's game state with the points leaderboard.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gameID := fs.String("game", "", "game id (used to find the latest snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	top := fs.Int("top", 10, "leaderboard size (0 for all)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*gameID) == "" {
			fmt.Fprintln(os.Stderr, "missing -game or -snapshot")
			os.Exit(2)
		}
		files := snapshotFiles(filepath.Join(*dataDir, "games", *gameID))
		if len(files) == 0 {
			fmt.Fprintln(os.Stderr, "no snapshot found")
			os.Exit(2)
		}
		path = files[len(files)-1]
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(snap, *top))
}

func summarize(snap snapshot.SnapshotV1, top int) snapshotSummary {
	board := append([]snapshot.PointsV1(nil), snap.Points...)
	sort.SliceStable(board, func(i, j int) bool {
		if board[i].Balance != board[j].Balance {
			return board[i].Balance > board[j].Balance
		}
		return board[i].Participant < board[j].Participant
	})
	if top > 0 && len(board) > top {
		board = board[:top]
	}
	return snapshotSummary{
		GameID:      snap.Header.GameID,
		Tick:        snap.Header.Tick,
		Reason:      snap.Reason,
		Seq:         snap.Seq,
		Params:      snap.Params,
		State:       snap.State,
		Deaths:      snap.Deaths,
		Leaderboard: board,
		Identities:  snap.Identities,
	}
}

// auditCmd filters the audit JSONL logs of a game.
func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gameID := fs.String("game", "", "game id")
	actor := fs.String("actor", "", "only entries by this participant (optional)")
	action := fs.String("action", "", "only this audit action, e.g. DEATH (optional)")
	gen := fs.Uint64("generation", 0, "only this generation (optional)")
	sinceTick := fs.Uint64("since_tick", 0, "from tick (inclusive)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*gameID) == "" {
		fmt.Fprintln(os.Stderr, "missing -game")
		os.Exit(2)
	}
	files, err := persistlog.ListFiles(filepath.Join(*dataDir, "games", *gameID, "audit"), persistlog.AuditPrefix)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list audit:", err)
		os.Exit(1)
	}

	f := auditFilter{
		Actor:      game.ParticipantID(strings.TrimSpace(*actor)),
		Action:     strings.ToUpper(strings.TrimSpace(*action)),
		Generation: game.GenerationID(*gen),
		SinceTick:  *sinceTick,
	}
	n := 0
	for _, path := range files {
		if err := persistlog.ReadAudit(path, func(e game.AuditEntry) error {
			if f.match(e) {
				printJSON(e)
				n++
			}
			return nil
		}); err != nil {
			fmt.Fprintln(os.Stderr, "read audit:", err)
			os.Exit(1)
		}
	}
	if n == 0 {
		fmt.Fprintln(os.Stderr, "no matching audit entries")
	}
}

type auditFilter struct {
	Actor      game.ParticipantID
	Action     string
	Generation game.GenerationID
	SinceTick  uint64
}

func (f auditFilter) match(e game.AuditEntry) bool {
	if e.Tick < f.SinceTick {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor && e.From != f.Actor && e.To != f.Actor {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Generation != 0 && e.Generation != f.Generation {
		return false
	}
	return true
}

// snapshotFiles lists a game's snapshots ordered by tick.
func snapshotFiles(gameDir string) []string {
	dir := filepath.Join(gameDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	type item struct {
		tick uint64
		path string
	}
	var items []item
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(e.Name(), ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		items = append(items, item{tick: tick, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].tick < items[j].tick })
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.path)
	}
	return out
}
