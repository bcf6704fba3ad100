package stages

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/napatw/salesintel/agent/contract"
)

// DemoSearch is a canned search provider so the pipeline can run without
// provider credentials. Results are keyed off the query shape.
type DemoSearch struct{}

func (DemoSearch) Search(_ context.Context, query string) ([]contractx.SearchResult, error) {
	company := strings.TrimSpace(query)
	for _, suffix := range []string{" company overview", " news recent", " CEO executives leadership team"} {
		company = strings.TrimSuffix(company, suffix)
	}

	switch {
	case strings.Contains(query, "leadership"):
		return []contractx.SearchResult{
			{
				Title:   "Jane Smith - CEO & Co-Founder",
				Snippet: "Former VP at Salesforce, 15+ years in enterprise software",
				URL:     "https://linkedin.com/in/janesmith",
			},
			{
				Title:   "Michael Chen - CTO",
				Snippet: "Ex-Google engineer, AI/ML expert",
				URL:     "https://linkedin.com/in/michaelchen",
			},
			{
				Title:   "Sarah Johnson - VP of Sales",
				Snippet: "20+ years in enterprise sales, former Oracle executive",
				URL:     "https://linkedin.com/in/sarahjohnson",
			},
		}, nil
	case strings.Contains(query, "news"):
		return []contractx.SearchResult{
			{
				Title:   fmt.Sprintf("%s Announces Q3 Growth", company),
				Snippet: fmt.Sprintf("%s reported 45%% year-over-year revenue growth in Q3, driven by strong enterprise adoption.", company),
				URL:     "https://techcrunch.example/growth",
			},
			{
				Title:   fmt.Sprintf("%s Expands to APAC Region", company),
				Snippet: fmt.Sprintf("%s opens new offices in Singapore and Tokyo to support growing demand.", company),
				URL:     "https://venturebeat.example/apac",
			},
		}, nil
	default:
		return []contractx.SearchResult{
			{
				Title:   fmt.Sprintf("%s - Official Website", company),
				Snippet: fmt.Sprintf("%s is a leading technology company specializing in enterprise software solutions.", company),
				URL:     fmt.Sprintf("https://www.%s.example", strings.ReplaceAll(strings.ToLower(company), " ", "")),
			},
			{
				Title:   fmt.Sprintf("%s Company Profile", company),
				Snippet: "10,000+ employees. Industry: Technology, Software, Enterprise Solutions.",
				URL:     "https://crunchbase.example/profile",
			},
		}, nil
	}
}

// DemoCompleter is a canned language model for credential-free runs.
type DemoCompleter struct{}

func (DemoCompleter) Complete(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "outreach email") {
		return "I noticed your recent expansion into APAC and the rapid growth behind it. " +
			"Scaling legacy systems across regions usually strains both infrastructure and the teams running it. " +
			"We help enterprise software companies modernize without slowing delivery. " +
			"Would you be open to a short call next week?", nil
	}

	return `KEY BUSINESS CHALLENGES
1. Scaling legacy systems to support rapid growth
2. Talent acquisition in competitive engineering markets
3. Expanding into new regions while maintaining service quality

OPPORTUNITIES
1. Infrastructure modernization to support international expansion
2. Automation to reduce operational load on engineering teams

RECOMMENDED SALES APPROACH
Lead with the scaling story. Emphasize quick wins on infrastructure cost and reliability before proposing a broader modernization roadmap.`, nil
}
