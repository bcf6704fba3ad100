// Package report persists finished reports as JSON files, one per run.
// Archival is independent of the memory bank: losing it never affects a
// run's outcome.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	contractx "github.com/napatw/salesintel/agent/contract"
)

type Config struct {
	Dir string `envconfig:"DIR" split_words:"true" default:"reports"`
}

// FileSink writes one timestamped JSON file per archived report.
type FileSink struct {
	dir string
	now func() time.Time
}

// Option customizes the FileSink.
type Option func(*FileSink)

func WithClock(now func() time.Time) Option {
	return func(s *FileSink) {
		if now != nil {
			s.now = now
		}
	}
}

func NewFileSink(cfg Config, opts ...Option) (*FileSink, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, errors.New("report dir is required")
	}

	s := &FileSink{
		dir: dir,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *FileSink) Archive(_ context.Context, report contractx.Report) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	path := filepath.Join(s.dir, s.filename(report))

	tmp, err := os.CreateTemp(s.dir, ".report-*")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp report: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("place report: %w", err)
	}
	return nil
}

func (s *FileSink) filename(report contractx.Report) string {
	subject := strings.ReplaceAll(report.Subject, " ", "_")
	if subject == "" {
		subject = "unknown"
	}
	return fmt.Sprintf("%s_%s.json", subject, s.now().UTC().Format("20060102_150405"))
}
