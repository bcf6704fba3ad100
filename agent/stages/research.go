// Package stages implements the four pipeline stages: research, analysis,
// contact discovery, and outreach generation. Each stage reads prior outputs
// through the run's context view and returns its own typed output; the
// orchestrator records results and applies retry policy based on the error
// kind a stage reports.
package stages

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/napatw/salesintel/agent/contract"
	websearchx "github.com/napatw/salesintel/pkg/websearch"
)

// ResearchStage gathers company overview and recent news through web search.
// First stage in the pipeline; requires nothing.
type ResearchStage struct {
	search contractx.SearchClient
}

func NewResearch(search contractx.SearchClient) *ResearchStage {
	return &ResearchStage{search: search}
}

func (s *ResearchStage) Name() string {
	return contractx.StageResearch
}

func (s *ResearchStage) Requires() []string {
	return nil
}

func (s *ResearchStage) Invoke(ctx context.Context, subject string, _ contractx.ContextView) (contractx.StageOutput, error) {
	overview, err := s.search.Search(ctx, subject+" company overview")
	if err != nil {
		return nil, classifySearchErr(s.Name(), err)
	}

	news, err := s.search.Search(ctx, subject+" news recent")
	if err != nil {
		return nil, classifySearchErr(s.Name(), err)
	}

	if len(overview) == 0 && len(news) == 0 {
		return nil, contractx.Terminal(s.Name(),
			fmt.Errorf("%w: no results for %q", contractx.ErrSearchFailed, subject))
	}

	return contractx.ResearchOutput{
		CompanyName: subject,
		Overview:    overview,
		RecentNews:  news,
	}, nil
}

// classifySearchErr maps a search provider failure onto the stage error
// taxonomy. Errors already carrying a kind pass through unchanged.
func classifySearchErr(stage string, err error) error {
	var stageErr *contractx.StageError
	if errors.As(err, &stageErr) {
		return err
	}
	if websearchx.IsRetryable(err) {
		return contractx.Transient(stage, err)
	}
	return contractx.Terminal(stage, err)
}

// SearchProvider adapts the websearch client to the contract interface.
type SearchProvider struct {
	client *websearchx.Client
}

func NewSearchProvider(client *websearchx.Client) *SearchProvider {
	return &SearchProvider{client: client}
}

func (p *SearchProvider) Search(ctx context.Context, query string) ([]contractx.SearchResult, error) {
	hits, err := p.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	results := make([]contractx.SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, contractx.SearchResult{
			Title:   hit.Title,
			Snippet: hit.Snippet,
			URL:     hit.URL,
		})
	}
	return results, nil
}
