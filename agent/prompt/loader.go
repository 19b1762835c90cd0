package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/qualifier.txt
	qualifierRaw string

	//go:embed template/scheduler.txt
	schedulerRaw string

	//go:embed template/followup.txt
	followupRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Qualifier string
	Scheduler string
	FollowUp  string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// This is safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Qualifier: strings.TrimSpace(qualifierRaw),
		Scheduler: strings.TrimSpace(schedulerRaw),
		FollowUp:  strings.TrimSpace(followupRaw),
	}
}
