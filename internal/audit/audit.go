// Package audit writes committed program operations as hourly rotated,
// zstd-compressed JSONL files.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Entry is one committed operation.
type Entry struct {
	Time      time.Time `json:"time"`
	Op        string    `json:"op"`
	Owner     string    `json:"owner"`
	Signer    string    `json:"signer"`
	Delegated bool      `json:"delegated,omitempty"`
	Army      string    `json:"army"`
	Battle    string    `json:"battle,omitempty"`
	ZombieID  int       `json:"zombie_id"`
	Outcome   string    `json:"outcome,omitempty"`
	NewSlot   *int      `json:"new_slot,omitempty"`
}

// Logger appends entries to <dir>/<prefix>-YYYY-MM-DD-HH.jsonl.zst. Every
// entry is written as its own zstd frame, so a file is readable up to the
// last recorded entry even if the process never calls Close.
type Logger struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
}

// NewLogger creates a logger writing under dir. Files are opened lazily.
func NewLogger(dir, prefix string, now func() time.Time) *Logger {
	if now == nil {
		now = time.Now
	}
	return &Logger{baseDir: dir, prefix: prefix, now: now}
}

// Record appends one entry as a complete frame.
func (l *Logger) Record(e Entry) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.enc == nil {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return err
		}
		l.enc = enc
	}

	hour := l.now().UTC().Format("2006-01-02-15")
	if hour != l.curHour {
		if err := l.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = l.f.Write(l.enc.EncodeAll(b, nil))
	return err
}

// Close closes the current file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.closeLocked()
	if l.enc != nil {
		_ = l.enc.Close()
		l.enc = nil
	}
	return err
}

// PathForHour returns the file an entry written during hour (UTC) lands in.
func (l *Logger) PathForHour(t time.Time) string {
	return filepath.Join(l.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", l.prefix, t.UTC().Format("2006-01-02-15")))
}

func (l *Logger) rotateLocked(hour string) error {
	if err := l.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.baseDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(l.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", l.prefix, hour))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	l.f = f
	l.curHour = hour
	return nil
}

func (l *Logger) closeLocked() error {
	var err error
	if l.f != nil {
		err = l.f.Close()
		l.f = nil
	}
	l.curHour = ""
	return err
}

// ReadFile decodes every entry in one audit file.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var entries []Entry
	scanner := bufio.NewScanner(dec)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}
