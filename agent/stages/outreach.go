package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/napatw/salesintel/agent/contract"
)

const maxOutreachEmails = 3

// OutreachStage generates one personalized email per priority contact using
// the language model. Best-effort stage.
type OutreachStage struct {
	complete contractx.Completer
	template string
}

func NewOutreach(complete contractx.Completer, template string) *OutreachStage {
	return &OutreachStage{complete: complete, template: template}
}

func (s *OutreachStage) Name() string {
	return contractx.StageOutreach
}

func (s *OutreachStage) Requires() []string {
	return []string{contractx.StageAnalysis, contractx.StageContacts}
}

func (s *OutreachStage) Invoke(ctx context.Context, subject string, view contractx.ContextView) (contractx.StageOutput, error) {
	analysis, contacts, err := s.inputsFrom(view)
	if err != nil {
		return nil, err
	}

	targets := contacts.Prioritized
	if len(targets) > maxOutreachEmails {
		targets = targets[:maxOutreachEmails]
	}

	emails := make([]contractx.OutreachEmail, 0, len(targets))
	for _, contact := range targets {
		body, err := s.complete.Complete(ctx, s.emailPrompt(contact, analysis, subject))
		if err != nil {
			classified := classifyModelErr(s.Name(), err)
			if contractx.IsTransient(classified) {
				return nil, classified
			}
			log.Warn().Err(err).
				Str("contact", contact.Name).
				Msg("skipping email after terminal generation failure")
			continue
		}

		emails = append(emails, contractx.OutreachEmail{
			Recipient:     contact.Name,
			Title:         contact.Title,
			Subject:       fmt.Sprintf("Helping %s with %s", subject, mainChallenge(analysis)),
			Body:          body,
			PriorityScore: contact.PriorityScore,
		})
	}

	if len(emails) == 0 {
		return nil, contractx.Terminal(s.Name(),
			fmt.Errorf("%w: no emails generated", contractx.ErrModelInvoke))
	}

	return contractx.OutreachOutput{
		CompanyName: subject,
		Emails:      emails,
	}, nil
}

func (s *OutreachStage) inputsFrom(view contractx.ContextView) (contractx.AnalysisOutput, contractx.ContactsOutput, error) {
	rawAnalysis, ok := view.OutputOf(contractx.StageAnalysis)
	if !ok {
		return contractx.AnalysisOutput{}, contractx.ContactsOutput{}, contractx.Terminal(s.Name(),
			fmt.Errorf("%w: analysis output is absent", contractx.ErrValidation))
	}
	analysis, ok := rawAnalysis.(contractx.AnalysisOutput)
	if !ok {
		return contractx.AnalysisOutput{}, contractx.ContactsOutput{}, contractx.Terminal(s.Name(),
			fmt.Errorf("%w: unexpected analysis output type %T", contractx.ErrValidation, rawAnalysis))
	}

	rawContacts, ok := view.OutputOf(contractx.StageContacts)
	if !ok {
		return contractx.AnalysisOutput{}, contractx.ContactsOutput{}, contractx.Terminal(s.Name(),
			fmt.Errorf("%w: contacts output is absent", contractx.ErrValidation))
	}
	contacts, ok := rawContacts.(contractx.ContactsOutput)
	if !ok {
		return contractx.AnalysisOutput{}, contractx.ContactsOutput{}, contractx.Terminal(s.Name(),
			fmt.Errorf("%w: unexpected contacts output type %T", contractx.ErrValidation, rawContacts))
	}

	return analysis, contacts, nil
}

func (s *OutreachStage) emailPrompt(contact contractx.Contact, analysis contractx.AnalysisOutput, subject string) string {
	return fmt.Sprintf(s.template,
		contact.Name,
		contact.Title,
		subject,
		bulletList(analysis.KeyChallenges, 3),
		bulletList(analysis.Opportunities, 2),
		analysis.RecommendedApproach,
	)
}

func bulletList(items []string, max int) string {
	if len(items) > max {
		items = items[:max]
	}
	var sb strings.Builder
	for _, item := range items {
		fmt.Fprintf(&sb, "- %s\n", item)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// mainChallenge shortens the first key challenge for the subject line.
func mainChallenge(analysis contractx.AnalysisOutput) string {
	if len(analysis.KeyChallenges) == 0 {
		return "Your Technology Needs"
	}
	words := strings.Fields(analysis.KeyChallenges[0])
	if len(words) <= 4 {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:4], " ") + "..."
}
