package log

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"thecore.gg/internal/sim/game"
	"thecore.gg/internal/sim/sequencer"
)

// ActionPrefix names action log files: actions-YYYY-MM-DD-HH.NNN.jsonl.zst.
const ActionPrefix = "actions"

const AuditPrefix = "audit"

// JSONLZstdWriter appends JSON lines to hourly zstd segments under baseDir. Every line
// is flushed through the encoder as its own block, so a segment left unclosed by a crash
// still decodes up to its last complete line. A reopened hour never appends to an existing
// segment; it starts the next part number instead.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	now func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	line    []byte
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour || w.enc == nil {
		if err := w.openLocked(hour); err != nil {
			return err
		}
	}

	w.line = append(append(w.line[:0], b...), '\n')
	if _, err := w.enc.Write(w.line); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) openLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	var (
		f   *os.File
		err error
	)
	for part := 0; ; part++ {
		f, err = os.OpenFile(w.segmentPath(hour, part), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return err
		}
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var errs []error
	if w.enc != nil {
		errs = append(errs, w.enc.Close())
		w.enc = nil
	}
	if w.f != nil {
		errs = append(errs, w.f.Close())
		w.f = nil
	}
	return errors.Join(errs...)
}

func (w *JSONLZstdWriter) segmentPath(hour string, part int) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.%03d.jsonl.zst", w.prefix, hour, part))
}

// ActionLogger writes one JSONL entry per applied action (compressed).
type ActionLogger struct{ w *JSONLZstdWriter }

func NewActionLogger(gameDir string) *ActionLogger {
	return &ActionLogger{w: NewJSONLZstdWriter(filepath.Join(gameDir, "actions"), ActionPrefix)}
}

func (l *ActionLogger) WriteAction(v sequencer.ActionLogEntry) error { return l.w.Write(v) }
func (l *ActionLogger) Close() error                                 { return l.w.Close() }

// AuditLogger writes audit JSONL entries (compressed).
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(gameDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(gameDir, "audit"), AuditPrefix)}
}

func (l *AuditLogger) WriteAudit(v game.AuditEntry) error { return l.w.Write(v) }
func (l *AuditLogger) Close() error                       { return l.w.Close() }
