// Package orchestrator drives the fixed stage sequence of one intelligence
// run: cache check, sequential stage execution with per-stage retry policy,
// report assembly, and write-through caching of usable results.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/napatw/salesintel/agent/contract"
	memoryx "github.com/napatw/salesintel/agent/memory"
	statex "github.com/napatw/salesintel/agent/state"
)

var ErrInvalidSubject = errors.New("subject is empty")

type Config struct {
	MaxAttempts   int           `envconfig:"MAX_ATTEMPTS" split_words:"true" default:"3"`
	RetryDelay    time.Duration `envconfig:"RETRY_DELAY" split_words:"true" default:"500ms"`
	MaxRetryDelay time.Duration `envconfig:"MAX_RETRY_DELAY" split_words:"true" default:"5s"`
	StageTimeout  time.Duration `envconfig:"STAGE_TIMEOUT" split_words:"true" default:"30s"`
	DisableCache  bool          `envconfig:"DISABLE_CACHE" split_words:"true" default:"false"`
}

type stageSpec struct {
	stage    contractx.Stage
	required bool
}

// Orchestrator owns one pipeline configuration and may serve many runs, each
// with its own execution context. The cache store is the only state shared
// between runs.
type Orchestrator struct {
	cache    contractx.CacheStore
	pipeline []stageSpec
	sink     contractx.ReportSink
	cfg      Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes the Orchestrator, mainly for tests.
type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

func New(cache contractx.CacheStore, registry contractx.Registry, sink contractx.ReportSink, cfg Config, opts ...Option) (*Orchestrator, error) {
	if cache == nil {
		return nil, errors.New("cache store is required")
	}
	if registry == nil {
		return nil, errors.New("stage registry is required")
	}
	if sink == nil {
		sink = noopSink{}
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 5 * time.Second
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 30 * time.Second
	}

	o := &Orchestrator{
		cache: cache,
		// research and analysis are required: everything downstream depends
		// on their output. Contact discovery and outreach are best-effort.
		pipeline: []stageSpec{
			{stage: registry.Research(), required: true},
			{stage: registry.Analysis(), required: true},
			{stage: registry.Contacts(), required: false},
			{stage: registry.Outreach(), required: false},
		},
		sink:  sink,
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepCtx,
	}

	for _, spec := range o.pipeline {
		if spec.stage == nil {
			return nil, errors.New("registry returned a nil stage")
		}
	}

	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	return o, nil
}

// Run executes the full pipeline for one subject. A failed run is reported
// through Report.Status, not the error return; the error return covers
// invalid input and cancellation.
func (o *Orchestrator) Run(ctx context.Context, rawSubject string) (contractx.Report, error) {
	subject := memoryx.Normalize(rawSubject)
	if subject == "" {
		return contractx.Report{}, ErrInvalidSubject
	}

	if !o.cfg.DisableCache {
		if cached, ok := o.cache.Lookup(subject); ok {
			log.Info().Str("subject", subject).Msg("serving report from memory bank")
			cached.FromCache = true
			return cached, nil
		}
	}

	run := statex.NewRunContext(subject, o.now())
	logger := log.With().Str("subject", subject).Str("run_id", run.RunID()).Logger()
	logger.Info().Msg("starting intelligence run")

	status := contractx.StatusCompleted

	for _, spec := range o.pipeline {
		name := spec.stage.Name()

		// cooperative cancellation between stages
		if err := ctx.Err(); err != nil {
			logger.Warn().Str("stage", name).Msg("run cancelled before stage")
			return contractx.Report{}, err
		}

		if err := run.CheckDependencies(name, spec.stage.Requires()); err != nil {
			if !spec.required && o.dependencyFailed(run, spec.stage.Requires()) {
				// upstream best-effort stage already failed; skip, don't
				// double-count the error
				logger.Info().Str("stage", name).Msg("skipping stage, dependency failed earlier")
				continue
			}
			// ordering invariant violation
			logger.Error().Err(err).Str("stage", name).Msg("dependency missing without recorded failure")
			run.RecordError(name, err)
			status = contractx.StatusFailed
			break
		}

		output, err := o.invokeWithRetry(ctx, logger, spec.stage, subject, run)

		// a result arriving after cancellation is discarded, never recorded
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warn().Str("stage", name).Msg("run cancelled during stage, discarding result")
			return contractx.Report{}, ctxErr
		}

		if err != nil {
			run.RecordError(name, err)
			if spec.required {
				logger.Error().Err(err).Str("stage", name).Msg("required stage failed, aborting run")
				status = contractx.StatusFailed
				break
			}
			logger.Warn().Err(err).Str("stage", name).Msg("best-effort stage failed, continuing")
			status = contractx.StatusPartialFailure
			continue
		}

		if err := run.Record(name, output); err != nil {
			logger.Error().Err(err).Str("stage", name).Msg("failed to record stage output")
			run.RecordError(name, err)
			status = contractx.StatusFailed
			break
		}
		logger.Info().Str("stage", name).Msg("stage completed")
	}

	run.Finish(o.now())
	report := o.assembleReport(run, status)

	// never cache a failed run: a cache entry must represent usable output
	if status != contractx.StatusFailed {
		if err := o.cache.Insert(subject, report); err != nil {
			logger.Warn().Err(err).Msg("failed to persist report to memory bank")
		}
	}

	if err := o.sink.Archive(ctx, report); err != nil {
		logger.Warn().Err(err).Msg("failed to archive report")
	}

	logger.Info().Str("status", string(status)).Msg("run finished")
	return report, nil
}

// invokeWithRetry runs one stage with a per-attempt timeout, retrying
// transient failures with capped exponential backoff.
func (o *Orchestrator) invokeWithRetry(
	ctx context.Context,
	logger zerolog.Logger,
	stage contractx.Stage,
	subject string,
	run *statex.RunContext,
) (contractx.StageOutput, error) {
	delay := o.cfg.RetryDelay
	var lastErr error

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
		output, err := stage.Invoke(attemptCtx, subject, run.View())
		cancel()

		if err == nil {
			return output, nil
		}
		lastErr = err

		if !contractx.IsTransient(err) {
			return nil, err
		}
		if attempt == o.cfg.MaxAttempts {
			break
		}

		logger.Warn().Err(err).
			Str("stage", stage.Name()).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("transient stage failure, retrying")

		if err := o.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
		if delay > o.cfg.MaxRetryDelay {
			delay = o.cfg.MaxRetryDelay
		}
	}

	return nil, lastErr
}

// dependencyFailed reports whether any of the listed stages has a recorded
// failure in this run.
func (o *Orchestrator) dependencyFailed(run *statex.RunContext, requires []string) bool {
	for _, rec := range run.Errors() {
		for _, dep := range requires {
			if rec.Stage == dep {
				return true
			}
		}
	}
	return false
}

func (o *Orchestrator) assembleReport(run *statex.RunContext, status contractx.RunStatus) contractx.Report {
	report := contractx.Report{
		Subject:    run.Subject(),
		RunID:      run.RunID(),
		Status:     status,
		StartedAt:  run.StartedAt(),
		FinishedAt: run.FinishedAt(),
	}

	for _, rec := range run.Outputs() {
		switch out := rec.Output.(type) {
		case contractx.ResearchOutput:
			report.Research = &out
		case contractx.AnalysisOutput:
			report.Analysis = &out
		case contractx.ContactsOutput:
			report.Contacts = &out
		case contractx.OutreachOutput:
			report.Outreach = &out
		}
	}

	for _, rec := range run.Errors() {
		failure := contractx.StageFailure{
			Stage:   rec.Stage,
			Kind:    contractx.ErrorKindTerminal,
			Message: rec.Err.Error(),
		}
		var stageErr *contractx.StageError
		if errors.As(rec.Err, &stageErr) {
			failure.Kind = stageErr.Kind
		}
		report.Errors = append(report.Errors, failure)
	}

	return report
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type noopSink struct{}

func (noopSink) Archive(context.Context, contractx.Report) error {
	return nil
}
