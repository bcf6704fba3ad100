package stages

import (
	"errors"

	contractx "github.com/napatw/salesintel/agent/contract"
	llmx "github.com/napatw/salesintel/agent/llm"
	promptx "github.com/napatw/salesintel/agent/prompt"
)

type registryImpl struct {
	research contractx.Stage
	analysis contractx.Stage
	contacts contractx.Stage
	outreach contractx.Stage
}

func (r *registryImpl) Research() contractx.Stage {
	return r.research
}

func (r *registryImpl) Analysis() contractx.Stage {
	return r.analysis
}

func (r *registryImpl) Contacts() contractx.Stage {
	return r.contacts
}

func (r *registryImpl) Outreach() contractx.Stage {
	return r.outreach
}

// NewRegistry builds the four pipeline stages around the given collaborators.
func NewRegistry(search contractx.SearchClient, analysisModel, outreachModel contractx.Completer) (contractx.Registry, error) {
	if search == nil {
		return nil, errors.New("search client is required")
	}
	if analysisModel == nil || outreachModel == nil {
		return nil, errors.New("completer is required")
	}

	prompts := promptx.LoadPromptSet()

	return &registryImpl{
		research: NewResearch(search),
		analysis: NewAnalysis(analysisModel, prompts.Analysis),
		contacts: NewContacts(search),
		outreach: NewOutreach(outreachModel, prompts.Outreach),
	}, nil
}

// NewRegistryFromConfig wires the registry from provider configuration,
// building one completer per model-backed stage so per-stage overrides apply.
func NewRegistryFromConfig(cfg llmx.Config, search contractx.SearchClient) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	analysisModel, err := llmx.NewCompleter(cfg.OpenRouterFor(contractx.StageAnalysis))
	if err != nil {
		return nil, err
	}
	outreachModel, err := llmx.NewCompleter(cfg.OpenRouterFor(contractx.StageOutreach))
	if err != nil {
		return nil, err
	}

	return NewRegistry(search, analysisModel, outreachModel)
}
