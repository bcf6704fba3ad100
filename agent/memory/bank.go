// Package memory implements the persisted memory bank: a subject->report
// cache loaded once at startup, kept in memory, and written through to a
// JSON file on every insert.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"

	contractx "github.com/napatw/salesintel/agent/contract"
)

// Normalize maps a raw subject to its cache key: lowercased, trimmed, inner
// whitespace collapsed. Deterministic and idempotent.
func Normalize(subject string) string {
	return strings.ToLower(strings.Join(strings.Fields(subject), " "))
}

// Entry is one cached report plus its creation time.
type Entry struct {
	Subject   string           `json:"subject"`
	Report    contractx.Report `json:"report"`
	CreatedAt time.Time        `json:"created_at"`
}

type Config struct {
	Path string        `envconfig:"PATH" split_words:"true" default:"memory_bank.json"`
	TTL  time.Duration `envconfig:"TTL" split_words:"true" default:"0"`
}

// Bank is the cache store. The in-memory index is guarded by a RWMutex for
// concurrent runs in one process; the durable file is guarded by a file lock
// and replaced atomically so a crash mid-write never corrupts other entries.
type Bank struct {
	path string
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry

	fileLock *flock.Flock
}

// Option customizes the Bank.
type Option func(*Bank)

func WithClock(now func() time.Time) Option {
	return func(b *Bank) {
		if now != nil {
			b.now = now
		}
	}
}

// Open loads the memory bank from cfg.Path. A missing, unreadable, or corrupt
// file yields an empty bank with a logged warning; the cache is an
// optimization, never a startup dependency.
func Open(cfg Config, opts ...Option) (*Bank, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("memory bank path is required")
	}
	if cfg.TTL < 0 {
		return nil, errors.New("memory bank ttl must be >= 0")
	}

	b := &Bank{
		path:     path,
		ttl:      cfg.TTL,
		now:      time.Now,
		entries:  make(map[string]Entry),
		fileLock: flock.New(path + ".lock"),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	b.entries = loadEntries(path)
	return b, nil
}

func loadEntries(path string) map[string]Entry {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("memory bank unreadable, starting empty")
		}
		return make(map[string]Entry)
	}

	var entries map[string]Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("memory bank corrupt, starting empty")
		return make(map[string]Entry)
	}
	if entries == nil {
		entries = make(map[string]Entry)
	}
	return entries
}

// Lookup returns the cached report for a subject. Entries older than the
// configured TTL are treated as absent. Never touches the durable file.
func (b *Bank) Lookup(subject string) (contractx.Report, bool) {
	key := Normalize(subject)

	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[key]
	if !ok {
		return contractx.Report{}, false
	}
	if b.ttl > 0 && b.now().Sub(entry.CreatedAt) > b.ttl {
		return contractx.Report{}, false
	}
	return entry.Report, true
}

// Insert stores a report under the normalized subject, replacing any prior
// entry, and writes the whole bank through to the durable file.
func (b *Bank) Insert(subject string, report contractx.Report) error {
	key := Normalize(subject)
	if key == "" {
		return fmt.Errorf("%w: subject is empty", contractx.ErrValidation)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[key] = Entry{
		Subject:   key,
		Report:    report,
		CreatedAt: b.now().UTC(),
	}
	return b.persistLocked()
}

// Invalidate removes a subject's entry. Absence is not an error.
func (b *Bank) Invalidate(subject string) error {
	key := Normalize(subject)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[key]; !ok {
		return nil
	}
	delete(b.entries, key)
	return b.persistLocked()
}

// Subjects lists the cached subjects.
func (b *Bank) Subjects() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subjects := make([]string, 0, len(b.entries))
	for key := range b.entries {
		subjects = append(subjects, key)
	}
	return subjects
}

// persistLocked writes the full snapshot to a temp file and renames it over
// the durable file, under the cross-process file lock. Callers hold b.mu.
func (b *Bank) persistLocked() error {
	payload, err := json.MarshalIndent(b.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal memory bank: %w", err)
	}

	if err := b.fileLock.Lock(); err != nil {
		return fmt.Errorf("lock memory bank file: %w", err)
	}
	defer func() {
		if unlockErr := b.fileLock.Unlock(); unlockErr != nil {
			log.Warn().Err(unlockErr).Msg("unlock memory bank file")
		}
	}()

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create memory bank dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".membank-*")
	if err != nil {
		return fmt.Errorf("create temp memory bank: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp memory bank: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp memory bank: %w", err)
	}

	if err := os.Rename(tmpPath, b.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace memory bank: %w", err)
	}
	return nil
}
