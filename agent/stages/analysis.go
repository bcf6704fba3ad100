package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/napatw/salesintel/agent/contract"
	llmx "github.com/napatw/salesintel/agent/llm"
)

const (
	challengesHeading = "KEY BUSINESS CHALLENGES"
	opportunitiesHead = "OPPORTUNITIES"
	approachHeading   = "RECOMMENDED SALES APPROACH"

	maxExtractedItems = 5
)

// AnalysisStage turns the research output into business challenges,
// opportunities, and a recommended sales approach via the language model.
type AnalysisStage struct {
	complete contractx.Completer
	template string
}

func NewAnalysis(complete contractx.Completer, template string) *AnalysisStage {
	return &AnalysisStage{complete: complete, template: template}
}

func (s *AnalysisStage) Name() string {
	return contractx.StageAnalysis
}

func (s *AnalysisStage) Requires() []string {
	return []string{contractx.StageResearch}
}

func (s *AnalysisStage) Invoke(ctx context.Context, subject string, view contractx.ContextView) (contractx.StageOutput, error) {
	research, err := researchFrom(view, s.Name())
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(s.template, analysisContext(subject, research))
	text, err := s.complete.Complete(ctx, prompt)
	if err != nil {
		return nil, classifyModelErr(s.Name(), err)
	}

	return contractx.AnalysisOutput{
		CompanyName:         subject,
		Analysis:            text,
		KeyChallenges:       extractListSection(text, challengesHeading, opportunitiesHead),
		Opportunities:       extractListSection(text, opportunitiesHead, approachHeading),
		RecommendedApproach: extractApproach(text),
	}, nil
}

func researchFrom(view contractx.ContextView, stage string) (contractx.ResearchOutput, error) {
	out, ok := view.OutputOf(contractx.StageResearch)
	if !ok {
		return contractx.ResearchOutput{}, contractx.Terminal(stage,
			fmt.Errorf("%w: research output is absent", contractx.ErrValidation))
	}
	research, ok := out.(contractx.ResearchOutput)
	if !ok {
		return contractx.ResearchOutput{}, contractx.Terminal(stage,
			fmt.Errorf("%w: unexpected research output type %T", contractx.ErrValidation, out))
	}
	return research, nil
}

func analysisContext(subject string, research contractx.ResearchOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s\n\n", subject)

	sb.WriteString("Company Information:\n")
	for _, hit := range research.Overview {
		fmt.Fprintf(&sb, "- %s: %s\n", hit.Title, hit.Snippet)
	}

	sb.WriteString("\nRecent News:\n")
	for _, hit := range research.RecentNews {
		fmt.Fprintf(&sb, "- %s: %s\n", hit.Title, hit.Snippet)
	}
	return sb.String()
}

// classifyModelErr maps a provider failure onto the stage error taxonomy.
// Errors already carrying a kind pass through unchanged.
func classifyModelErr(stage string, err error) error {
	var stageErr *contractx.StageError
	if errors.As(err, &stageErr) {
		return err
	}
	if llmx.IsRetryable(err) {
		return contractx.Transient(stage, err)
	}
	return contractx.Terminal(stage, err)
}

// extractListSection pulls bullet or numbered lines from the text between a
// heading and the next heading.
func extractListSection(text, heading, stop string) []string {
	section := sectionBetween(text, heading, stop)
	if section == "" {
		return nil
	}

	var items []string
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789.-*) ")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, line)
		if len(items) == maxExtractedItems {
			break
		}
	}
	return items
}

func extractApproach(text string) string {
	section := sectionBetween(text, approachHeading, "")
	if section == "" {
		return "Approach with value-focused messaging"
	}

	var lines []string
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
		if len(lines) == 3 {
			break
		}
	}
	if len(lines) == 0 {
		return "Approach with value-focused messaging"
	}
	return strings.Join(lines, " ")
}

func sectionBetween(text, heading, stop string) string {
	idx := strings.Index(text, heading)
	if idx < 0 {
		return ""
	}
	section := text[idx+len(heading):]
	if stop != "" {
		if end := strings.Index(section, stop); end >= 0 {
			section = section[:end]
		}
	}
	return strings.Trim(section, ":* \n")
}
