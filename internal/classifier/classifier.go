// Package classifier maps query text to a query type and a workflow via
// ordered keyword rule tables. Classification is total and deterministic:
// every query produces exactly one result, falling through to a default.
package classifier

import (
	"regexp"
	"strings"

	"github.com/sells-group/deep-research/internal/model"
)

// Patterns signalling the synthesis workflow (checked first, highest specificity).
var synthesisPatterns = compile(
	`\bcompare\b`,
	`\bvs\.?\b`,
	`\bversus\b`,
	`\bbest practices\b`,
	`\brecommended\b`,
	`\bwhich is better\b`,
	`\bwhich should\b`,
	`\bpros and cons\b`,
	`\btrade-?offs?\b`,
	`\bdifferences? between\b`,
	`\badvantages?\b.*\bdisadvantages?\b`,
	`\bstrengths?\b.*\bweaknesses?\b`,
)

// Patterns signalling the direct workflow (specific technical queries with a
// likely authoritative source).
var directPatterns = compile(
	`\bhow does [\w\s]+ work\b`,
	`\bexplain [\w\s]+\b`,
	`\bwhat is the [\w\s]+ (api|function|method|class)\b`,
	`\bdocumentation for\b`,
	`\bsyntax of\b`,
	`\bexample of\b`,
	`\bhow to use\b`,
	`\b(asyncio|react|vue|angular|django|fastapi|flask|express|nextjs|nuxt)\b`,
	`\b(typescript|python|javascript|rust|go|java)\s+(api|docs|documentation)\b`,
	`\b(aws|azure|gcp|firebase|supabase)\s+\w+\b`,
)

// Query-type tables, checked academic → code → documentation.
var academicPatterns = compile(
	`\bresearch\s+paper\b`,
	`\bscientific\s+study\b`,
	`\bacademic\b`,
	`\barxiv\b`,
	`\bpublication\b`,
	`\bjournal\b`,
	`\bpeer[\s-]?review(ed)?\b`,
	`\bstate[\s-]?of[\s-]?the[\s-]?art\b`,
	`\bnovel\s+approach\b`,
	`\btheoretical\b`,
	`\bempirical\s+(study|analysis|evidence)\b`,
	`\bbenchmark\s+results\b`,
	`\bexperimental\s+results\b`,
	`\bmachine\s+learning\s+(model|algorithm|approach)\b`,
	`\bdeep\s+learning\b`,
	`\bneural\s+network\b`,
	`\btransformer\s+(model|architecture)\b`,
	`\blarge\s+language\s+model\b`,
	`\bllm\b`,
)

var codePatterns = compile(
	`\bcode\s+example\b`,
	`\bimplementation\b`,
	`\bhow\s+to\s+implement\b`,
	`\bcode\s+snippet\b`,
	`\bsource\s+code\b`,
	`\bgithub\b`,
	`\brepository\b`,
	`\bfunction\s+to\b`,
	`\bclass\s+for\b`,
	`\bwrite\s+(a\s+)?(code|function|class|script)\b`,
	`\bboilerplate\b`,
	`\bstarter\s+(template|code)\b`,
	`\bworking\s+example\b`,
)

var documentationPatterns = compile(
	`\bdocumentation\b`,
	`\bdocs\b`,
	`\bapi\s+reference\b`,
	`\bofficial\s+(docs|guide)\b`,
	`\bmethod\s+signature\b`,
	`\bparameters?\s+(for|of)\b`,
	`\breturn\s+type\b`,
	`\btype\s+definition\b`,
	`\bconfiguration\s+options?\b`,
	`\bsettings?\s+for\b`,
)

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// Classifier evaluates the rule tables, optionally extended by an overlay.
type Classifier struct {
	synthesis     []*regexp.Regexp
	direct        []*regexp.Regexp
	academic      []*regexp.Regexp
	code          []*regexp.Regexp
	documentation []*regexp.Regexp
}

// New returns a Classifier using the built-in rule tables.
func New() *Classifier {
	return &Classifier{
		synthesis:     synthesisPatterns,
		direct:        directPatterns,
		academic:      academicPatterns,
		code:          codePatterns,
		documentation: documentationPatterns,
	}
}

// ClassifyType maps query text to a content query type for source routing.
// Academic is checked first (most specific), then code, then documentation,
// defaulting to general.
func (c *Classifier) ClassifyType(query string) model.QueryType {
	q := strings.ToLower(query)

	switch {
	case anyMatch(c.academic, q):
		return model.QueryTypeAcademic
	case anyMatch(c.code, q):
		return model.QueryTypeCode
	case anyMatch(c.documentation, q):
		return model.QueryTypeDocumentation
	default:
		return model.QueryTypeGeneral
	}
}

// ClassifyWorkflow maps query text to a default workflow. Comparison and
// consensus phrasing wins first, then specific technical phrasing, with
// open-ended queries falling through to exploratory.
func (c *Classifier) ClassifyWorkflow(query string) model.Workflow {
	q := strings.ToLower(query)

	switch {
	case anyMatch(c.synthesis, q):
		return model.WorkflowSynthesis
	case anyMatch(c.direct, q):
		return model.WorkflowDirect
	default:
		return model.WorkflowExploratory
	}
}

// Select resolves the workflow for a run. An explicit override always wins;
// "auto" defers to classification of the query text.
func (c *Classifier) Select(query string, override string) model.Workflow {
	if override != model.WorkflowAuto && override != "" {
		return model.Workflow(override)
	}
	return c.ClassifyWorkflow(query)
}

// WorkflowDescription returns a human-readable description for report metadata.
func WorkflowDescription(w model.Workflow) string {
	switch w {
	case model.WorkflowDirect:
		return "Single authoritative source lookup"
	case model.WorkflowExploratory:
		return "Perplexity-guided deep dive with URL analysis"
	case model.WorkflowSynthesis:
		return "Triple Stack cross-validation with synthesis"
	default:
		return "Unknown workflow"
	}
}

// QueryTypeDescription returns a human-readable description for report metadata.
func QueryTypeDescription(qt model.QueryType) string {
	switch qt {
	case model.QueryTypeDocumentation:
		return "Official documentation and API references"
	case model.QueryTypeCode:
		return "Code examples and implementations"
	case model.QueryTypeAcademic:
		return "Research papers and academic literature"
	case model.QueryTypeGeneral:
		return "General web content and articles"
	default:
		return "Unknown query type"
	}
}
