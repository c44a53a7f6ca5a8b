package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Input bounds for max_sources.
const (
	MinSources     = 3
	MaxSources     = 25
	DefaultSources = 10
)

// Input is a validated research request. WorkflowType may be "auto" or one
// of the three workflow names; MaxSources of zero takes the default.
type Input struct {
	Query        string `json:"query"`
	WorkflowType string `json:"workflow_type,omitempty"`
	MaxSources   int    `json:"max_sources,omitempty"`
	// Synthesize requests a synthesis narrative for workflows that do not
	// produce one by default. The synthesis workflow always synthesizes.
	Synthesize bool `json:"synthesize,omitempty"`
}

// Normalize applies defaults to unset fields.
func (in *Input) Normalize() {
	in.Query = strings.TrimSpace(in.Query)
	if in.WorkflowType == "" {
		in.WorkflowType = WorkflowAuto
	}
	if in.MaxSources == 0 {
		in.MaxSources = DefaultSources
	}
}

// Validate rejects malformed input before any provider call is attempted.
func (in *Input) Validate() error {
	if strings.TrimSpace(in.Query) == "" {
		return eris.New("input: query is required")
	}
	switch in.WorkflowType {
	case WorkflowAuto, string(WorkflowDirect), string(WorkflowExploratory), string(WorkflowSynthesis):
	default:
		return eris.Errorf("input: unknown workflow_type %q", in.WorkflowType)
	}
	if in.MaxSources < MinSources || in.MaxSources > MaxSources {
		return eris.Errorf("input: max_sources %d outside [%d, %d]", in.MaxSources, MinSources, MaxSources)
	}
	return nil
}
