// Package state holds the per-run execution context: the mutable container a
// single orchestrator run threads through its stages. It is never shared
// across runs and never persisted; only the derived report outlives the run.
package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	contractx "github.com/napatw/salesintel/agent/contract"
)

var (
	ErrDuplicateStage    = errors.New("stage already recorded output in this run")
	ErrMissingDependency = errors.New("required stage output is missing")
	ErrEmptyStageName    = errors.New("stage name is empty")
)

// StageRecord is one recorded stage output, in execution order.
type StageRecord struct {
	Stage  string
	Output contractx.StageOutput
}

// StageErrorRecord is one recorded stage failure, in occurrence order.
type StageErrorRecord struct {
	Stage string
	Err   error
}

// RunContext accumulates stage outputs and errors for one orchestrator run.
// It is owned by exactly one run and is not safe for concurrent use.
type RunContext struct {
	runID   string
	subject string

	records []StageRecord
	byStage map[string]int
	failed  []StageErrorRecord

	startedAt  time.Time
	finishedAt time.Time
}

func NewRunContext(subject string, now time.Time) *RunContext {
	return &RunContext{
		runID:     uuid.NewString(),
		subject:   subject,
		byStage:   make(map[string]int, 4),
		startedAt: now.UTC(),
	}
}

func (c *RunContext) RunID() string {
	return c.runID
}

func (c *RunContext) Subject() string {
	return c.subject
}

func (c *RunContext) StartedAt() time.Time {
	return c.startedAt
}

func (c *RunContext) FinishedAt() time.Time {
	return c.finishedAt
}

// Finish stamps the run end time. Later calls overwrite the stamp.
func (c *RunContext) Finish(now time.Time) {
	c.finishedAt = now.UTC()
}

// Record appends a stage output. Each stage may record at most once per run.
func (c *RunContext) Record(stage string, output contractx.StageOutput) error {
	if stage == "" {
		return ErrEmptyStageName
	}
	if output == nil {
		return fmt.Errorf("%w: stage %s output is nil", contractx.ErrValidation, stage)
	}
	if _, ok := c.byStage[stage]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStage, stage)
	}
	c.byStage[stage] = len(c.records)
	c.records = append(c.records, StageRecord{Stage: stage, Output: output})
	return nil
}

// RecordError appends a stage failure. Prior recorded outputs are untouched.
func (c *RunContext) RecordError(stage string, err error) {
	c.failed = append(c.failed, StageErrorRecord{Stage: stage, Err: err})
}

// OutputOf returns the recorded output for a stage, if any.
func (c *RunContext) OutputOf(stage string) (contractx.StageOutput, bool) {
	idx, ok := c.byStage[stage]
	if !ok {
		return nil, false
	}
	return c.records[idx].Output, true
}

// Outputs returns the recorded outputs in execution order.
func (c *RunContext) Outputs() []StageRecord {
	return c.records
}

// Errors returns the recorded stage failures in occurrence order.
func (c *RunContext) Errors() []StageErrorRecord {
	return c.failed
}

// CheckDependencies verifies every stage listed in requires has recorded
// output, returning ErrMissingDependency naming the first absent one.
func (c *RunContext) CheckDependencies(stage string, requires []string) error {
	for _, dep := range requires {
		if _, ok := c.byStage[dep]; !ok {
			return fmt.Errorf("%w: stage %s requires %s", ErrMissingDependency, stage, dep)
		}
	}
	return nil
}

// View returns the read-only window handed to stages.
func (c *RunContext) View() contractx.ContextView {
	return readView{run: c}
}

type readView struct {
	run *RunContext
}

func (v readView) RunID() string {
	return v.run.runID
}

func (v readView) Subject() string {
	return v.run.subject
}

func (v readView) OutputOf(stage string) (contractx.StageOutput, bool) {
	return v.run.OutputOf(stage)
}
