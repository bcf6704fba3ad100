package stages

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	contractx "github.com/napatw/salesintel/agent/contract"
)

var errNoContacts = errors.New("no contacts found")

var priorityTitles = []string{"CTO", "CEO", "VP", "Chief", "Director", "Head"}

// ContactsStage finds decision makers at the target company through web
// search and prioritizes them by seniority and relevance. Best-effort stage:
// its terminal failure degrades the run instead of aborting it.
type ContactsStage struct {
	search contractx.SearchClient
}

func NewContacts(search contractx.SearchClient) *ContactsStage {
	return &ContactsStage{search: search}
}

func (s *ContactsStage) Name() string {
	return contractx.StageContacts
}

func (s *ContactsStage) Requires() []string {
	return []string{contractx.StageAnalysis}
}

func (s *ContactsStage) Invoke(ctx context.Context, subject string, _ contractx.ContextView) (contractx.StageOutput, error) {
	hits, err := s.search.Search(ctx, subject+" CEO executives leadership team")
	if err != nil {
		return nil, classifySearchErr(s.Name(), err)
	}

	contacts := make([]contractx.Contact, 0, len(hits))
	for _, hit := range hits {
		if contact, ok := contactFromHit(hit); ok {
			contacts = append(contacts, contact)
		}
	}
	if len(contacts) == 0 {
		return nil, contractx.Terminal(s.Name(),
			fmt.Errorf("%w for %q", errNoContacts, subject))
	}

	prioritized := prioritizeContacts(contacts)

	return contractx.ContactsOutput{
		CompanyName: subject,
		TotalFound:  len(contacts),
		Prioritized: prioritized,
	}, nil
}

// contactFromHit extracts a lead from one search result. The person's name is
// taken from the title up to the first separator; results with no usable name
// are dropped.
func contactFromHit(hit contractx.SearchResult) (contractx.Contact, bool) {
	name := hit.Title
	for _, sep := range []string{" - ", " | ", " – "} {
		if idx := strings.Index(name, sep); idx >= 0 {
			name = name[:idx]
			break
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return contractx.Contact{}, false
	}

	contact := contractx.Contact{
		Name:  name,
		Title: titleFromHit(hit),
		Bio:   strings.TrimSpace(hit.Snippet),
	}
	if strings.Contains(hit.URL, "linkedin.com") {
		contact.LinkedIn = hit.URL
	}
	return contact, true
}

func titleFromHit(hit contractx.SearchResult) string {
	text := hit.Title + " " + hit.Snippet
	for _, keyword := range priorityTitles {
		if idx := indexFold(text, keyword); idx >= 0 {
			// carry the surrounding phrase up to the next delimiter
			phrase := text[idx:]
			if end := strings.IndexAny(phrase, ",.|-\n"); end > 0 {
				phrase = phrase[:end]
			}
			return strings.TrimSpace(phrase)
		}
	}
	return ""
}

func indexFold(s, substr string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(substr))
}

// prioritizeContacts scores contacts by title seniority and technology
// relevance, sorted descending. The scoring mirrors the sales team's manual
// triage: senior titles first, technical roles boosted.
func prioritizeContacts(contacts []contractx.Contact) []contractx.Contact {
	scored := make([]contractx.Contact, len(contacts))
	copy(scored, contacts)

	for i := range scored {
		title := strings.ToLower(scored[i].Title)

		score := 0
		for _, priority := range priorityTitles {
			if strings.Contains(title, strings.ToLower(priority)) {
				score += 10
				break
			}
		}
		if strings.Contains(title, "technology") || strings.Contains(title, "engineering") {
			score += 5
		}

		scored[i].PriorityScore = score
		scored[i].PriorityReason = priorityReason(scored[i].Title)
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].PriorityScore > scored[b].PriorityScore
	})
	return scored
}

func priorityReason(title string) string {
	switch {
	case strings.Contains(title, "CTO") || strings.Contains(title, "Chief Technology"):
		return "Senior technology decision maker - high influence on tech purchases"
	case strings.Contains(title, "VP"):
		return "Executive level contact - can champion solutions internally"
	case strings.Contains(title, "Director"):
		return "Department leader - involved in solution evaluation"
	default:
		return "Potential influencer in the buying process"
	}
}
