package research

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/deep-research/internal/classifier"
	"github.com/sells-group/deep-research/internal/model"
)

const (
	// defaultMaxParallelReads bounds the URL-read fan-out within a step.
	defaultMaxParallelReads = 7
	// synthesisReadCap bounds how many URLs the synthesis workflow deep-reads.
	synthesisReadCap = 7
)

// Executor runs one research query through its selected workflow. Provider
// failures degrade to recorded per-source failures; the executor never
// aborts a run once input validation has passed.
type Executor struct {
	cls              *classifier.Classifier
	providers        *Providers
	readLimiter      *rate.Limiter
	maxParallelReads int
	now              func() time.Time // injectable for testing
}

// Option configures the executor.
type Option func(*Executor)

// WithReadLimiter bounds the rate of URL reads.
func WithReadLimiter(l *rate.Limiter) Option {
	return func(e *Executor) {
		e.readLimiter = l
	}
}

// WithMaxParallelReads caps concurrent URL reads within a step.
func WithMaxParallelReads(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxParallelReads = n
		}
	}
}

// WithNow sets a fixed clock for testing.
func WithNow(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor creates an executor over the given provider set.
func NewExecutor(cls *classifier.Classifier, providers *Providers, opts ...Option) *Executor {
	e := &Executor{
		cls:              cls,
		providers:        providers,
		readLimiter:      rate.NewLimiter(rate.Inf, defaultMaxParallelReads),
		maxParallelReads: defaultMaxParallelReads,
		now:              time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes a research query. Invalid input is the only hard error path;
// any validly-shaped input yields a complete ResearchRun, possibly with
// Success=false and per-source error detail.
func (e *Executor) Run(ctx context.Context, input model.Input) (*model.ResearchRun, error) {
	input.Normalize()
	if err := input.Validate(); err != nil {
		return nil, eris.Wrap(err, "research: invalid input")
	}

	queryType := e.cls.ClassifyType(input.Query)
	workflow := e.cls.Select(input.Query, input.WorkflowType)

	run := &model.ResearchRun{
		ID:        uuid.New().String(),
		Query:     input.Query,
		Workflow:  workflow,
		QueryType: queryType,
		StartedAt: e.now().UTC(),
	}

	log := zap.L().With(
		zap.String("run_id", run.ID),
		zap.String("workflow", string(workflow)),
		zap.String("query_type", string(queryType)),
	)
	log.Info("research: starting run", zap.Int("max_sources", input.MaxSources))

	switch workflow {
	case model.WorkflowDirect:
		e.runDirect(ctx, run, input)
	case model.WorkflowExploratory:
		e.runExploratory(ctx, run, input)
	case model.WorkflowSynthesis:
		e.runSynthesis(ctx, run, input)
	}

	// Seal the run: counts, deduplicated URLs, summary.
	run.URLsDiscovered = collectURLs(run.Sources)
	run.FindingsSummary = summarize(run.Sources, run.Synthesis)
	run.Success = run.SuccessfulSources > 0
	run.CompletedAt = e.now().UTC()

	log.Info("research: run complete",
		zap.Bool("success", run.Success),
		zap.Int("source_count", run.SourceCount),
		zap.Int("successful_sources", run.SuccessfulSources),
		zap.Int("urls_discovered", len(run.URLsDiscovered)),
		zap.Duration("duration", run.Duration()),
	)

	return run, nil
}

// call is one provider invocation scheduled within a step.
type call struct {
	source string
	typ    string
	fn     func(ctx context.Context) ([]model.SourceResult, error)
}

// outcome is the settled result of one call.
type outcome struct {
	call    call
	results []model.SourceResult
	err     error
}

func searchCall(s Source, query string, limit int) call {
	return call{
		source: s.Name(),
		typ:    s.Type(),
		fn: func(ctx context.Context) ([]model.SourceResult, error) {
			return s.Search(ctx, query, limit)
		},
	}
}

func (e *Executor) readCall(url string) call {
	return call{
		source: SourceJinaRead,
		typ:    TypeURLContent,
		fn: func(ctx context.Context) ([]model.SourceResult, error) {
			if err := e.readLimiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "research: read limiter")
			}
			result, err := e.providers.Reader.Read(ctx, url)
			if err != nil {
				return nil, err
			}
			return []model.SourceResult{result}, nil
		},
	}
}

// gather runs a step's calls concurrently and collects every outcome,
// success or failure, in completion order. It never short-circuits: the
// step settles only once all calls have resolved.
func (e *Executor) gather(ctx context.Context, limit int, calls []call) []outcome {
	var (
		mu       sync.Mutex
		outcomes []outcome
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, c := range calls {
		g.Go(func() error {
			results, err := c.fn(gCtx)
			mu.Lock()
			outcomes = append(outcomes, outcome{call: c, results: results, err: err})
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}

// record folds an outcome into the run. A call succeeds when it returned at
// least one result; failures are recorded as a per-source error entry and
// never abort the run.
func (e *Executor) record(run *model.ResearchRun, o outcome) bool {
	run.SourceCount++

	if o.err != nil {
		zap.L().Warn("research: source failed",
			zap.String("run_id", run.ID),
			zap.String("source", o.call.source),
			zap.Error(o.err),
		)
		run.Sources = append(run.Sources, model.SourceResult{
			Source:  o.call.source,
			Type:    o.call.typ,
			Success: false,
			Error:   o.err.Error(),
		})
		return false
	}

	if len(o.results) == 0 {
		return false
	}

	run.Sources = append(run.Sources, o.results...)
	run.SuccessfulSources++
	return true
}

func (e *Executor) recordAll(run *model.ResearchRun, outcomes []outcome) {
	for _, o := range outcomes {
		e.record(run, o)
	}
}

// directRoute returns the primary and fallback source for a query type.
func (e *Executor) directRoute(qt model.QueryType) (primary, fallback Source) {
	p := e.providers
	switch qt {
	case model.QueryTypeDocumentation:
		return p.Ref, p.Exa
	case model.QueryTypeCode:
		return p.ExaCode, p.Jina
	case model.QueryTypeAcademic:
		return p.JinaArxiv, p.Perplexity
	default:
		return p.Jina, p.Exa
	}
}

// runDirect performs a single authoritative lookup: primary source per the
// routing table, fallback only when the primary fails or returns nothing.
// At most two provider calls.
func (e *Executor) runDirect(ctx context.Context, run *model.ResearchRun, input model.Input) {
	primary, fallback := e.directRoute(run.QueryType)

	outcomes := e.gather(ctx, 1, []call{searchCall(primary, run.Query, input.MaxSources)})
	if e.record(run, outcomes[0]) {
		return
	}

	outcomes = e.gather(ctx, 1, []call{searchCall(fallback, run.Query, input.MaxSources)})
	e.record(run, outcomes[0])
}

// secondarySource picks the query-type-aware search used alongside the
// exploratory overview.
func (e *Executor) secondarySource(qt model.QueryType) Source {
	p := e.providers
	switch qt {
	case model.QueryTypeAcademic:
		return p.JinaArxiv
	case model.QueryTypeCode:
		return p.ExaCode
	case model.QueryTypeDocumentation:
		return p.Ref
	default:
		return p.Jina
	}
}

// runExploratory performs the Perplexity-guided deep dive: overview, a
// query-type-aware secondary search, then concurrent deep reads of the top
// discovered URLs. Synthesis is produced only when requested.
func (e *Executor) runExploratory(ctx context.Context, run *model.ResearchRun, input model.Input) {
	outcomes := e.gather(ctx, 1, []call{searchCall(e.providers.Perplexity, run.Query, input.MaxSources)})
	e.record(run, outcomes[0])

	secondary := e.secondarySource(run.QueryType)
	outcomes = e.gather(ctx, 1, []call{searchCall(secondary, run.Query, input.MaxSources)})
	e.record(run, outcomes[0])

	e.readTopURLs(ctx, run, input.MaxSources)

	if input.Synthesize {
		e.synthesize(ctx, run)
	}
}

// tripleStack returns the three concurrent sources for the synthesis
// workflow. Each underlying provider appears exactly once; the query type
// only selects the mode it runs in.
func (e *Executor) tripleStack(qt model.QueryType) []Source {
	p := e.providers
	switch qt {
	case model.QueryTypeAcademic:
		return []Source{p.JinaArxiv, p.Ref, p.Exa}
	case model.QueryTypeCode:
		return []Source{p.ExaCode, p.Ref, p.Jina}
	default:
		return []Source{p.Ref, p.Exa, p.Jina}
	}
}

// runSynthesis fans out the triple stack concurrently, deep-reads the top
// URLs, then asks the synthesizer for a cross-validated narrative over the
// combined findings.
func (e *Executor) runSynthesis(ctx context.Context, run *model.ResearchRun, input model.Input) {
	stack := e.tripleStack(run.QueryType)

	calls := make([]call, 0, len(stack))
	for _, s := range stack {
		calls = append(calls, searchCall(s, run.Query, input.MaxSources))
	}
	e.recordAll(run, e.gather(ctx, len(calls), calls))

	readCap := min(synthesisReadCap, input.MaxSources)
	e.readTopURLs(ctx, run, readCap)

	e.synthesize(ctx, run)
}

// readTopURLs deep-reads up to limit of the URLs discovered so far,
// preferring the upstream providers' own ranking order.
func (e *Executor) readTopURLs(ctx context.Context, run *model.ResearchRun, limit int) {
	urls := collectURLs(run.Sources)
	if len(urls) > limit {
		urls = urls[:limit]
	}
	if len(urls) == 0 {
		return
	}

	calls := make([]call, 0, len(urls))
	for _, u := range urls {
		calls = append(calls, e.readCall(u))
	}
	e.recordAll(run, e.gather(ctx, e.maxParallelReads, calls))
}

// synthesize asks the synthesizer for a narrative over the run's findings.
// A synthesizer failure leaves Synthesis empty; it never fails the run.
func (e *Executor) synthesize(ctx context.Context, run *model.ResearchRun) {
	findings := buildContext(run.Sources)
	if findings == "" {
		return
	}

	text, err := e.providers.Synth.Synthesize(ctx, run.Query, findings)
	if err != nil {
		zap.L().Warn("research: synthesis failed",
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
		return
	}
	run.Synthesis = text
}
