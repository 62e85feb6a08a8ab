package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"thecore.gg/internal/sim/game"
	"thecore.gg/internal/sim/sequencer"
)

// ListFiles returns dir's <prefix>-*.jsonl.zst segments in write order.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadActions streams the entries of one action log file to fn. It stops at the first
// error fn returns.
func ReadActions(path string, fn func(sequencer.ActionLogEntry) error) error {
	return readJSONL(path, func(line []byte) error {
		var entry sequencer.ActionLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		return fn(entry)
	})
}

func ReadAudit(path string, fn func(game.AuditEntry) error) error {
	return readJSONL(path, func(line []byte) error {
		var entry game.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		return fn(entry)
	})
}

// readJSONL streams the complete lines of one segment to fn. A segment whose writer never
// closed it ends in a truncated zstd frame, and possibly a torn line; both mark the end.
func readJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	for {
		line, err := br.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if len(line) <= 1 {
			continue
		}
		if err := fn(line[:len(line)-1]); err != nil {
			return err
		}
	}
}
