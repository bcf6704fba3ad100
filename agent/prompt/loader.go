package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/analysis.txt
	analysisRaw string

	//go:embed template/outreach.txt
	outreachRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Analysis string
	Outreach string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Analysis: strings.TrimSpace(analysisRaw),
		Outreach: strings.TrimSpace(outreachRaw),
	}
}
