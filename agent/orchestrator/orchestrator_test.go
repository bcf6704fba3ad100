package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	contractx "github.com/napatw/salesintel/agent/contract"
)

type fakeStage struct {
	name     string
	requires []string
	out      contractx.StageOutput
	errs     []error // consumed one per call, then out is returned
	failWith error   // when set, every call fails
	hook     func()  // runs on every call, before returning
	calls    int
}

func (f *fakeStage) Name() string {
	return f.name
}

func (f *fakeStage) Requires() []string {
	return f.requires
}

func (f *fakeStage) Invoke(ctx context.Context, subject string, view contractx.ContextView) (contractx.StageOutput, error) {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	if f.failWith != nil {
		return nil, f.failWith
	}
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return f.out, nil
}

type fakeRegistry struct {
	research *fakeStage
	analysis *fakeStage
	contacts *fakeStage
	outreach *fakeStage
}

func (f *fakeRegistry) Research() contractx.Stage { return f.research }
func (f *fakeRegistry) Analysis() contractx.Stage { return f.analysis }
func (f *fakeRegistry) Contacts() contractx.Stage { return f.contacts }
func (f *fakeRegistry) Outreach() contractx.Stage { return f.outreach }

func healthyRegistry() *fakeRegistry {
	return &fakeRegistry{
		research: &fakeStage{
			name: contractx.StageResearch,
			out:  contractx.ResearchOutput{CompanyName: "testco"},
		},
		analysis: &fakeStage{
			name:     contractx.StageAnalysis,
			requires: []string{contractx.StageResearch},
			out:      contractx.AnalysisOutput{KeyChallenges: []string{"scaling legacy systems"}},
		},
		contacts: &fakeStage{
			name:     contractx.StageContacts,
			requires: []string{contractx.StageAnalysis},
			out:      contractx.ContactsOutput{TotalFound: 2},
		},
		outreach: &fakeStage{
			name:     contractx.StageOutreach,
			requires: []string{contractx.StageAnalysis, contractx.StageContacts},
			out:      contractx.OutreachOutput{},
		},
	}
}

type fakeCache struct {
	entries   map[string]contractx.Report
	insertErr error
	inserts   int
	lookups   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]contractx.Report)}
}

func (f *fakeCache) Lookup(subject string) (contractx.Report, bool) {
	f.lookups++
	report, ok := f.entries[subject]
	return report, ok
}

func (f *fakeCache) Insert(subject string, report contractx.Report) error {
	f.inserts++
	if f.insertErr != nil {
		return f.insertErr
	}
	f.entries[subject] = report
	return nil
}

func (f *fakeCache) Invalidate(subject string) error {
	delete(f.entries, subject)
	return nil
}

type fakeSink struct {
	archived []contractx.Report
	err      error
}

func (f *fakeSink) Archive(_ context.Context, report contractx.Report) error {
	if f.err != nil {
		return f.err
	}
	f.archived = append(f.archived, report)
	return nil
}

func newTestOrchestrator(t *testing.T, cache contractx.CacheStore, reg contractx.Registry, sink contractx.ReportSink, cfg Config) *Orchestrator {
	t.Helper()

	o, err := New(cache, reg, sink, cfg,
		WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestRunInvalidSubject(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, newFakeCache(), healthyRegistry(), &fakeSink{}, Config{})

	_, err := o.Run(context.Background(), "   ")
	if !errors.Is(err, ErrInvalidSubject) {
		t.Fatalf("Run() error = %v, want ErrInvalidSubject", err)
	}
}

func TestRunAllStagesSucceed(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	reg := healthyRegistry()
	sink := &fakeSink{}
	o := newTestOrchestrator(t, cache, reg, sink, Config{})

	report, err := o.Run(context.Background(), "TestCo")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Status != contractx.StatusCompleted {
		t.Fatalf("Status = %q, want completed", report.Status)
	}
	if report.Subject != "testco" {
		t.Fatalf("Subject = %q, want testco", report.Subject)
	}
	if report.FromCache {
		t.Fatal("FromCache = true on a fresh run")
	}
	if report.Research == nil || report.Analysis == nil || report.Contacts == nil || report.Outreach == nil {
		t.Fatalf("report is missing stage outputs: %+v", report)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("Errors = %v, want empty", report.Errors)
	}
	if report.RunID == "" {
		t.Fatal("RunID is empty")
	}

	if _, ok := cache.Lookup("testco"); !ok {
		t.Fatal("completed report was not cached")
	}
	if len(sink.archived) != 1 {
		t.Fatalf("len(archived) = %d, want 1", len(sink.archived))
	}
}

func TestSecondRunServedFromCache(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	reg := healthyRegistry()
	o := newTestOrchestrator(t, cache, reg, &fakeSink{}, Config{})

	first, err := o.Run(context.Background(), "TestCo")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// different spelling of the same subject
	second, err := o.Run(context.Background(), "  testco ")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !second.FromCache {
		t.Fatal("second run FromCache = false, want true")
	}
	if second.RunID != first.RunID {
		t.Fatalf("cached RunID = %q, want %q", second.RunID, first.RunID)
	}
	if reg.research.calls != 1 || reg.analysis.calls != 1 || reg.contacts.calls != 1 || reg.outreach.calls != 1 {
		t.Fatalf("stages re-invoked on cache hit: research=%d analysis=%d contacts=%d outreach=%d",
			reg.research.calls, reg.analysis.calls, reg.contacts.calls, reg.outreach.calls)
	}
}

func TestDisableCacheBypassesLookup(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	cache.entries["testco"] = contractx.Report{Subject: "testco", Status: contractx.StatusCompleted}

	reg := healthyRegistry()
	o := newTestOrchestrator(t, cache, reg, &fakeSink{}, Config{DisableCache: true})

	report, err := o.Run(context.Background(), "TestCo")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.FromCache {
		t.Fatal("FromCache = true with cache disabled")
	}
	if reg.research.calls != 1 {
		t.Fatalf("research.calls = %d, want 1", reg.research.calls)
	}
}

func TestRetryBoundOnPersistentTransientFailure(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	reg := healthyRegistry()
	reg.research.failWith = contractx.Transient(contractx.StageResearch, errors.New("network down"))

	o := newTestOrchestrator(t, cache, reg, &fakeSink{}, Config{MaxAttempts: 3})

	report, err := o.Run(context.Background(), "TestCo")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if reg.research.calls != 3 {
		t.Fatalf("research.calls = %d, want exactly MaxAttempts=3", reg.research.calls)
	}
	if report.Status != contractx.StatusFailed {
		t.Fatalf("Status = %q, want failed", report.Status)
	}
	if reg.analysis.calls != 0 {
		t.Fatalf("analysis.calls = %d, want 0 after required stage failure", reg.analysis.calls)
	}
	if _, ok := cache.Lookup("testco"); ok {
		t.Fatal("failed run was cached")
	}
}

func TestRequiredStageTerminalFailureAbortsRun(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	reg := healthyRegistry()
	reg.analysis.failWith = contractx.Terminal(contractx.StageAnalysis, errors.New("invalid request"))

	o := newTestOrchestrator(t, cache, reg, &fakeSink{}, Config{})

	report, err := o.Run(context.Background(), "TestCo")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Status != contractx.StatusFailed {
		t.Fatalf("Status = %q, want failed", report.Status)
	}
	if reg.analysis.calls != 1 {
		t.Fatalf("analysis.calls = %d, want 1 (terminal errors are not retried)", reg.analysis.calls)
	}
	if reg.contacts.calls != 0 || reg.outreach.calls != 0 {
		t.Fatalf("downstream stages invoked after abort: contacts=%d outreach=%d",
			reg.contacts.calls, reg.outreach.calls)
	}
	if len(report.Errors) != 1 || report.Errors[0].Stage != contractx.StageAnalysis {
		t.Fatalf("Errors = %+v, want one analysis entry", report.Errors)
	}
	if report.Research == nil {
		t.Fatal("research output dropped from failed report")
	}
	if _, ok := cache.Lookup("testco"); ok {
		t.Fatal("failed run was cached")
	}
}

func TestFlakyCoScenario(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	reg := healthyRegistry()
	reg.research.errs = []error{
		contractx.Transient(contractx.StageResearch, errors.New("timeout")),
		contractx.Transient(contractx.StageResearch, errors.New("timeout")),
	}
	reg.contacts.failWith = contractx.Terminal(contractx.StageContacts, errors.New("no contacts found"))

	o := newTestOrchestrator(t, cache, reg, &fakeSink{}, Config{MaxAttempts: 3})

	report, err := o.Run(context.Background(), "FlakyCo")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Status != contractx.StatusPartialFailure {
		t.Fatalf("Status = %q, want partial_failure", report.Status)
	}
	if reg.research.calls != 3 {
		t.Fatalf("research.calls = %d, want 3 (two transient failures then success)", reg.research.calls)
	}
	if reg.outreach.calls != 0 {
		t.Fatalf("outreach.calls = %d, want 0 (dependency failed)", reg.outreach.calls)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("len(Errors) = %d, want exactly 1", len(report.Errors))
	}
	if report.Errors[0].Stage != contractx.StageContacts {
		t.Fatalf("Errors[0].Stage = %q, want contacts", report.Errors[0].Stage)
	}
	if report.Research == nil || report.Analysis == nil {
		t.Fatal("required stage outputs missing from partial report")
	}

	// partial results are still worth caching
	if _, ok := cache.Lookup("flakyco"); !ok {
		t.Fatal("partial report was not cached")
	}
}

func TestBestEffortTransientExhaustionDegradesRun(t *testing.T) {
	t.Parallel()

	reg := healthyRegistry()
	reg.contacts.failWith = contractx.Transient(contractx.StageContacts, errors.New("rate limited"))

	o := newTestOrchestrator(t, newFakeCache(), reg, &fakeSink{}, Config{MaxAttempts: 2})

	report, err := o.Run(context.Background(), "TestCo")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if reg.contacts.calls != 2 {
		t.Fatalf("contacts.calls = %d, want MaxAttempts=2", reg.contacts.calls)
	}
	if report.Status != contractx.StatusPartialFailure {
		t.Fatalf("Status = %q, want partial_failure", report.Status)
	}
	if report.Errors[0].Kind != contractx.ErrorKindTransient {
		t.Fatalf("Errors[0].Kind = %q, want transient", report.Errors[0].Kind)
	}
}

func TestRetryDelayIsBoundedExponential(t *testing.T) {
	t.Parallel()

	reg := healthyRegistry()
	reg.research.failWith = contractx.Transient(contractx.StageResearch, errors.New("flaky"))

	var delays []time.Duration
	o, err := New(newFakeCache(), reg, &fakeSink{},
		Config{
			MaxAttempts:   4,
			RetryDelay:    time.Second,
			MaxRetryDelay: 2 * time.Second,
		},
		WithSleeper(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := o.Run(context.Background(), "TestCo"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 2 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delays[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestCancellationBetweenStagesDiscardsRun(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	reg := healthyRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	reg.research.hook = cancel // cancel while the first stage is in flight

	o := newTestOrchestrator(t, cache, reg, &fakeSink{}, Config{})

	_, err := o.Run(ctx, "TestCo")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if reg.analysis.calls != 0 {
		t.Fatalf("analysis.calls = %d, want 0 after cancellation", reg.analysis.calls)
	}
	if cache.inserts != 0 {
		t.Fatalf("cache.inserts = %d, want 0 for cancelled run", cache.inserts)
	}
}

func TestCacheInsertFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	cache.insertErr = errors.New("disk full")

	o := newTestOrchestrator(t, cache, healthyRegistry(), &fakeSink{}, Config{})

	report, err := o.Run(context.Background(), "TestCo")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Status != contractx.StatusCompleted {
		t.Fatalf("Status = %q, want completed despite cache failure", report.Status)
	}
}

func TestSinkFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{err: errors.New("archive unavailable")}
	o := newTestOrchestrator(t, newFakeCache(), healthyRegistry(), sink, Config{})

	report, err := o.Run(context.Background(), "TestCo")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Status != contractx.StatusCompleted {
		t.Fatalf("Status = %q, want completed despite sink failure", report.Status)
	}
}

func TestUnclassifiedStageErrorIsTerminal(t *testing.T) {
	t.Parallel()

	reg := healthyRegistry()
	reg.research.failWith = errors.New("stage returned a bare error")

	o := newTestOrchestrator(t, newFakeCache(), reg, &fakeSink{}, Config{MaxAttempts: 3})

	report, err := o.Run(context.Background(), "TestCo")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if reg.research.calls != 1 {
		t.Fatalf("research.calls = %d, want 1 (unclassified errors are not retried)", reg.research.calls)
	}
	if report.Status != contractx.StatusFailed {
		t.Fatalf("Status = %q, want failed", report.Status)
	}
}
