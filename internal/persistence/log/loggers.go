package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"parkcraft.ai/internal/sim/dispatch"
)

// JSONLZstdWriter appends JSON lines to one zstd file per UTC hour. Reopening
// an hour appends a new zstd frame, which readers decode transparently.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

const hourLayout = "2006-01-02-15"

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format(hourLayout)
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// ReplayLogger is a dispatch.Sink that keeps every replay entry as a
// compressed JSON line under <dir>/replay.
type ReplayLogger struct{ w *JSONLZstdWriter }

var _ dispatch.Sink = (*ReplayLogger)(nil)

func NewReplayLogger(parkDir string) *ReplayLogger {
	return &ReplayLogger{w: NewJSONLZstdWriter(ReplayDir(parkDir), replayPrefix)}
}

func (l *ReplayLogger) Record(e dispatch.ReplayEntry) error { return l.w.Write(e) }
func (l *ReplayLogger) Close() error                        { return l.w.Close() }

// RejectLogger keeps actions the pipeline refused before sequencing.
type RejectLogger struct {
	w   *JSONLZstdWriter
	now func() time.Time
}

var _ dispatch.RejectObserver = (*RejectLogger)(nil)

type RejectEntry struct {
	Time    time.Time         `json:"time"`
	Tick    uint32            `json:"tick"`
	Player  uint32            `json:"player"`
	Kind    string            `json:"kind"`
	Status  string            `json:"status"`
	Title   string            `json:"title,omitempty"`
	Message string            `json:"message"`
	Args    map[string]string `json:"args,omitempty"`
}

func NewRejectLogger(parkDir string) *RejectLogger {
	return &RejectLogger{
		w:   NewJSONLZstdWriter(filepath.Join(parkDir, "rejects"), rejectPrefix),
		now: time.Now,
	}
}

func (l *RejectLogger) Rejected(r dispatch.Rejection) error {
	return l.w.Write(RejectEntry{
		Time:    l.now().UTC(),
		Tick:    r.Tick,
		Player:  uint32(r.Player),
		Kind:    r.Kind.String(),
		Status:  r.Result.Status.String(),
		Title:   string(r.Result.Title),
		Message: string(r.Result.Message),
		Args:    r.Result.Args,
	})
}

func (l *RejectLogger) Close() error { return l.w.Close() }
