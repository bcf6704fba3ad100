package contract

import "context"

// ContextView is the read-only window a stage receives onto the run. Stages
// may read earlier outputs but never write; the orchestrator records results.
type ContextView interface {
	RunID() string
	Subject() string
	OutputOf(stage string) (StageOutput, bool)
}

// Stage is one pipeline step. Requires lists the names of earlier stages
// whose output must be present before the stage may start. Invoke failures
// should carry a StageError kind so the retry policy can classify them.
type Stage interface {
	Name() string
	Requires() []string
	Invoke(ctx context.Context, subject string, view ContextView) (StageOutput, error)
}

// Registry resolves the four pipeline stages.
type Registry interface {
	Research() Stage
	Analysis() Stage
	Contacts() Stage
	Outreach() Stage
}

// SearchClient abstracts the web search provider used by the research and
// contact stages.
type SearchClient interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// Completer abstracts the language model used by the analysis and outreach
// stages.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CacheStore is the persisted subject->report mapping shared across runs.
// Lookup is in-memory only and never blocks on the durable backing.
type CacheStore interface {
	Lookup(subject string) (Report, bool)
	Insert(subject string, report Report) error
	Invalidate(subject string) error
}

// ReportSink archives completed reports independent of the cache. Archive
// failures are logged by the orchestrator, never surfaced.
type ReportSink interface {
	Archive(ctx context.Context, report Report) error
}
