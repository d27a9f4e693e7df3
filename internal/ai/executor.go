package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/myrjola/deepresearch/internal/citations"
	"github.com/myrjola/deepresearch/internal/errors"
	"github.com/myrjola/deepresearch/internal/fetch"
	"github.com/myrjola/deepresearch/internal/research"
	"github.com/myrjola/deepresearch/internal/search"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"strings"
	"sync"
)

const (
	maxQueries       = 3
	fetchConcurrency = 4
	defaultScore     = 0.5
)

var ErrMalformedCompletion = errors.NewSentinel("completion is not the requested JSON object")

// Completer answers a system and user prompt pair.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Page, error)
}

// Executor runs phases against a language model. Retrieval searches the web and reads the results before
// asking the model for findings.
type Executor struct {
	completer Completer
	searcher  Searcher
	fetcher   Fetcher
	logger    *slog.Logger
}

func NewExecutor(logger *slog.Logger, completer Completer, searcher Searcher, fetcher Fetcher) *Executor {
	return &Executor{
		completer: completer,
		searcher:  searcher,
		fetcher:   fetcher,
		logger:    logger.With("source", "ai.Executor"),
	}
}

// Execute produces the output of phase for s following instructions.
func (e *Executor) Execute(ctx context.Context, s *research.Session, phase research.Phase, instructions string) (
	research.PhaseOutput, error) {
	switch phase { //nolint:exhaustive // remaining phases produce plain fields
	case research.PhaseRetrieve:
		return e.retrieve(ctx, s, instructions)
	case research.PhaseTriangulate:
		var resp struct {
			SourceUpdates []research.SourceUpdate `json:"source_updates"`
			Findings      []research.Finding      `json:"findings"`
		}
		if err := e.completeJSON(ctx, instructions, s, triangulateContract, &resp); err != nil {
			return research.PhaseOutput{}, err
		}
		return research.PhaseOutput{ //nolint:exhaustruct // triangulate owns only these
			SourceUpdates: resp.SourceUpdates,
			Findings:      resp.Findings,
		}, nil
	case research.PhaseRefine:
		var resp struct {
			Synthesis map[string]any     `json:"synthesis"`
			Findings  []research.Finding `json:"findings"`
		}
		if err := e.completeJSON(ctx, instructions, s, refineContract, &resp); err != nil {
			return research.PhaseOutput{}, err
		}
		return research.PhaseOutput{Fields: resp.Synthesis, Findings: resp.Findings}, nil //nolint:exhaustruct // refine amends
	case research.PhasePackage:
		return e.packageReport(ctx, s, instructions)
	default:
		var fields map[string]any
		if err := e.completeJSON(ctx, instructions, s, fieldsContract, &fields); err != nil {
			return research.PhaseOutput{}, err
		}
		return research.PhaseOutput{Fields: fields}, nil //nolint:exhaustruct // field phases
	}
}

func (e *Executor) retrieve(ctx context.Context, s *research.Session, instructions string) (
	research.PhaseOutput, error) {
	var plan struct {
		Queries []string `json:"queries"`
	}
	if err := e.completeJSON(ctx, instructions, s, queriesContract, &plan); err != nil {
		return research.PhaseOutput{}, err
	}
	if len(plan.Queries) == 0 {
		plan.Queries = []string{s.Query}
	}
	if len(plan.Queries) > maxQueries {
		plan.Queries = plan.Queries[:maxQueries]
	}

	var (
		results []search.Result
		seen    = map[string]bool{}
	)
	for _, q := range plan.Queries {
		hits, err := e.searcher.Search(ctx, q)
		if err != nil {
			return research.PhaseOutput{}, errors.Wrap(err, "search", slog.String("query", q))
		}
		for _, hit := range hits {
			if !seen[hit.URL] && s.SourceByURL(hit.URL) < 0 {
				seen[hit.URL] = true
				results = append(results, hit)
			}
		}
	}
	if len(results) == 0 {
		e.logger.WarnContext(ctx, "search returned no new sources", slog.Any("queries", plan.Queries))
		return research.PhaseOutput{}, nil //nolint:exhaustruct // nothing found
	}

	pages := e.fetchAll(ctx, results)

	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "### Source %d\nURL: %s\nTitle: %s\nSnippet: %s\n", i+1, r.URL, r.Title, r.Snippet)
		if page, ok := pages[r.URL]; ok && page.Text != "" {
			fmt.Fprintf(&sb, "Content:\n%s\n", page.Text)
		}
		sb.WriteString("\n")
	}
	var extracted struct {
		Findings    []research.Finding `json:"findings"`
		Credibility map[string]float64 `json:"credibility"`
		SourceTypes map[string]string  `json:"source_types"`
	}
	prompt := retrieveContract + "\n\n## Retrieved sources\n\n" + sb.String()
	if err := e.completeJSON(ctx, instructions, s, prompt, &extracted); err != nil {
		return research.PhaseOutput{}, err
	}

	sources := make([]research.Source, 0, len(results))
	for _, r := range results {
		src := research.Source{ //nolint:exhaustruct // retrieval time and status are filled when merged
			URL:              r.URL,
			Title:            r.Title,
			Snippet:          r.Snippet,
			CredibilityScore: defaultScore,
			SourceType:       research.SourceTypeWeb,
		}
		if page, ok := pages[r.URL]; ok && src.Title == "" {
			src.Title = page.Title
		}
		if score, ok := extracted.Credibility[r.URL]; ok {
			src.CredibilityScore = min(max(score, 0), 1)
		}
		if t := research.SourceType(extracted.SourceTypes[r.URL]); t.Valid() {
			src.SourceType = t
		}
		sources = append(sources, src)
	}
	return research.PhaseOutput{ //nolint:exhaustruct // retrieve owns only these
		Sources:  sources,
		Findings: extracted.Findings,
	}, nil
}

// fetchAll reads the result pages concurrently. Pages that fail to load are skipped, the snippet still stands in
// for them.
func (e *Executor) fetchAll(ctx context.Context, results []search.Result) map[string]fetch.Page {
	var (
		mu    sync.Mutex
		pages = make(map[string]fetch.Page, len(results))
		g     errgroup.Group
	)
	g.SetLimit(fetchConcurrency)
	for _, r := range results {
		g.Go(func() error {
			page, err := e.fetcher.Fetch(ctx, r.URL)
			if err != nil {
				e.logger.LogAttrs(ctx, slog.LevelWarn, "skipping unreadable source",
					slog.String("url", r.URL), errors.SlogError(err))
				return nil
			}
			mu.Lock()
			pages[r.URL] = page
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return pages
}

func (e *Executor) packageReport(ctx context.Context, s *research.Session, instructions string) (
	research.PhaseOutput, error) {
	report, err := e.completer.Complete(ctx, instructions, sessionContext(s)+"\n\n"+packageContract)
	if err != nil {
		return research.PhaseOutput{}, errors.Wrap(err, "write report")
	}
	report = strings.TrimSpace(stripFence(report))
	if report == "" {
		return research.PhaseOutput{}, errors.Wrap(ErrMalformedCompletion, "report is empty")
	}
	if len(s.Sources) > 0 && !strings.Contains(strings.ToLower(report), "## bibliography") {
		report += "\n\n" + citations.FromSession(s).Render(citations.StyleAPA)
	}
	return research.PhaseOutput{Report: report}, nil //nolint:exhaustruct // package owns only the report
}

func (e *Executor) completeJSON(ctx context.Context, instructions string, s *research.Session, contract string,
	target any) error {
	content, err := e.completer.Complete(ctx, instructions, sessionContext(s)+"\n\n"+contract)
	if err != nil {
		return errors.Wrap(err, "complete phase", slog.String("phase", string(s.Phase)))
	}
	if err = decodeObject(content, target); err != nil {
		return errors.Wrap(err, "decode completion", slog.String("phase", string(s.Phase)))
	}
	return nil
}

// decodeObject unmarshals the outermost JSON object in content, tolerating code fences and surrounding prose.
func decodeObject(content string, target any) error {
	content = stripFence(content)
	start, end := strings.Index(content, "{"), strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return errors.Wrap(ErrMalformedCompletion, "no JSON object in completion")
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), target); err != nil {
		return errors.Wrap(ErrMalformedCompletion, err.Error())
	}
	return nil
}

func stripFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if nl := strings.Index(content, "\n"); nl >= 0 {
		content = content[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(content), "```")
}

// sessionContext renders the parts of s the model needs to continue the research.
func sessionContext(s *research.Session) string {
	type sourceView struct {
		Index  int                         `json:"index"`
		URL    string                      `json:"url"`
		Title  string                      `json:"title"`
		Score  float64                     `json:"credibility_score"`
		Status research.VerificationStatus `json:"verification_status"`
	}
	sources := make([]sourceView, 0, len(s.Sources))
	for i, src := range s.Sources {
		sources = append(sources, sourceView{
			Index:  i + 1,
			URL:    src.URL,
			Title:  src.Title,
			Score:  src.CredibilityScore,
			Status: src.VerificationStatus,
		})
	}
	view := map[string]any{
		"query":     s.Query,
		"mode":      s.Mode,
		"phase":     s.Phase,
		"scope":     s.Scope,
		"plan":      s.Plan,
		"sources":   sources,
		"findings":  s.Findings,
		"synthesis": s.Synthesis,
		"critique":  s.Critique,
	}
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		// Session values come from JSON themselves.
		return fmt.Sprintf("Research question: %s", s.Query)
	}
	return "## Research state\n\n```json\n" + string(data) + "\n```"
}
