package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gameID := fs.String("game", "", "game id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite index path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	participant := fs.String("participant", "", "caller/holder filter (actions, deaths)")
	gen := fs.Uint64("generation", 0, "generation filter (audits)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*gameID) == "" {
			fmt.Fprintln(os.Stderr, "missing -game or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "games", *gameID, "index", "game.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,reason,seq,generation,holder,participants,deaths FROM snapshots ORDER BY tick DESC LIMIT ?`, *limit)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick         int64  `json:"tick"`
				Path         string `json:"path"`
				Reason       string `json:"reason"`
				Seq          int64  `json:"seq"`
				Generation   int64  `json:"generation"`
				Holder       string `json:"holder"`
				Participants int    `json:"participants"`
				Deaths       int    `json:"deaths"`
			}
			exitOn("scan", rows.Scan(&r.Tick, &r.Path, &r.Reason, &r.Seq, &r.Generation, &r.Holder, &r.Participants, &r.Deaths))
			printJSON(r)
		}
		exitOn("rows", rows.Err())

	case "deaths":
		query := `SELECT generation,holder,death_tick,reason,snapshot_path,recorded_at FROM generations`
		qargs := []any{}
		if p := strings.TrimSpace(*participant); p != "" {
			query += ` WHERE holder=?`
			qargs = append(qargs, p)
		}
		query += ` ORDER BY generation DESC LIMIT ?`
		qargs = append(qargs, *limit)
		rows, err := db.Query(query, qargs...)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Generation   int64  `json:"generation"`
				Holder       string `json:"holder"`
				DeathTick    int64  `json:"death_tick"`
				Reason       string `json:"reason"`
				SnapshotPath string `json:"snapshot_path"`
				RecordedAt   string `json:"recorded_at"`
			}
			exitOn("scan", rows.Scan(&r.Generation, &r.Holder, &r.DeathTick, &r.Reason, &r.SnapshotPath, &r.RecordedAt))
			printJSON(r)
		}
		exitOn("rows", rows.Err())

	case "actions":
		query := `SELECT seq,tick,caller,op,code,digest,act_json FROM actions`
		qargs := []any{}
		if p := strings.TrimSpace(*participant); p != "" {
			query += ` WHERE caller=?`
			qargs = append(qargs, p)
		}
		query += ` ORDER BY seq DESC LIMIT ?`
		qargs = append(qargs, *limit)
		rows, err := db.Query(query, qargs...)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq    int64           `json:"seq"`
				Tick   int64           `json:"tick"`
				Caller string          `json:"caller"`
				Op     string          `json:"op"`
				Code   string          `json:"code,omitempty"`
				Digest string          `json:"digest"`
				Act    json.RawMessage `json:"act"`
			}
			var actJSON string
			exitOn("scan", rows.Scan(&r.Seq, &r.Tick, &r.Caller, &r.Op, &r.Code, &r.Digest, &actJSON))
			r.Act = json.RawMessage(actJSON)
			printJSON(r)
		}
		exitOn("rows", rows.Err())

	case "audits":
		query := `SELECT raw_json FROM audits`
		qargs := []any{}
		if *gen != 0 {
			query += ` WHERE generation=?`
			qargs = append(qargs, *gen)
		}
		query += ` ORDER BY tick DESC, seq DESC LIMIT ?`
		qargs = append(qargs, *limit)
		rows, err := db.Query(query, qargs...)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var raw string
			exitOn("scan", rows.Scan(&raw))
			fmt.Println(raw)
		}
		exitOn("rows", rows.Err())

	case "shame":
		// Holders ranked by how many generations died in their hands.
		rows, err := db.Query(`SELECT holder, COUNT(*) AS n, MAX(death_tick) FROM generations GROUP BY holder ORDER BY n DESC, holder LIMIT ?`, *limit)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Holder        string `json:"holder"`
				Deaths        int    `json:"deaths"`
				LastDeathTick int64  `json:"last_death_tick"`
			}
			exitOn("scan", rows.Scan(&r.Holder, &r.Deaths, &r.LastDeathTick))
			printJSON(r)
		}
		exitOn("rows", rows.Err())

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-game GAME|-db PATH] [-limit N] snapshots|deaths|actions|audits|shame")
		os.Exit(2)
	}
}

func exitOn(what string, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
