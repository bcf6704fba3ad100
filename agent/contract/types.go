package contract

import "time"

// Stage names, in pipeline order.
const (
	StageResearch = "research"
	StageAnalysis = "analysis"
	StageContacts = "contacts"
	StageOutreach = "outreach"
)

type RunStatus string

const (
	StatusCompleted      RunStatus = "completed"
	StatusPartialFailure RunStatus = "partial_failure"
	StatusFailed         RunStatus = "failed"
)

// StageOutput is the closed set of per-stage result variants. Downstream code
// type-switches over the concrete types rather than probing fields.
type StageOutput interface {
	stageOutput()
}

// SearchResult is one web search hit carried into stage outputs.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

type ResearchOutput struct {
	CompanyName string         `json:"company_name"`
	Overview    []SearchResult `json:"overview,omitempty"`
	RecentNews  []SearchResult `json:"recent_news,omitempty"`
}

type AnalysisOutput struct {
	CompanyName         string   `json:"company_name"`
	Analysis            string   `json:"analysis"`
	KeyChallenges       []string `json:"key_challenges,omitempty"`
	Opportunities       []string `json:"opportunities,omitempty"`
	RecommendedApproach string   `json:"recommended_approach,omitempty"`
}

type Contact struct {
	Name           string `json:"name"`
	Title          string `json:"title"`
	LinkedIn       string `json:"linkedin,omitempty"`
	Bio            string `json:"bio,omitempty"`
	PriorityScore  int    `json:"priority_score"`
	PriorityReason string `json:"priority_reason,omitempty"`
}

type ContactsOutput struct {
	CompanyName string    `json:"company_name"`
	TotalFound  int       `json:"total_found"`
	Prioritized []Contact `json:"prioritized,omitempty"`
}

type OutreachEmail struct {
	Recipient     string `json:"recipient"`
	Title         string `json:"title,omitempty"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	PriorityScore int    `json:"priority_score"`
}

type OutreachOutput struct {
	CompanyName string          `json:"company_name"`
	Emails      []OutreachEmail `json:"emails,omitempty"`
}

func (ResearchOutput) stageOutput() {}
func (AnalysisOutput) stageOutput() {}
func (ContactsOutput) stageOutput() {}
func (OutreachOutput) stageOutput() {}

// StageFailure is one stage-level error retained in the final report.
type StageFailure struct {
	Stage   string    `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Report is the terminal artifact of a run. Built once by the orchestrator,
// never mutated afterwards.
type Report struct {
	Subject    string          `json:"subject"`
	RunID      string          `json:"run_id"`
	Status     RunStatus       `json:"status"`
	Research   *ResearchOutput `json:"research,omitempty"`
	Analysis   *AnalysisOutput `json:"analysis,omitempty"`
	Contacts   *ContactsOutput `json:"contacts,omitempty"`
	Outreach   *OutreachOutput `json:"outreach,omitempty"`
	Errors     []StageFailure  `json:"errors,omitempty"`
	FromCache  bool            `json:"from_cache,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}
