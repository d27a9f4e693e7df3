package citations

import (
	"context"
	"fmt"
	"github.com/myrjola/deepresearch/internal/doi"
	"github.com/myrjola/deepresearch/internal/errors"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Status is the outcome for one bibliography entry.
type Status string

const (
	// StatusVerified entries resolved through their DOI or URL and matched the cited metadata.
	StatusVerified Status = "verified"
	// StatusUnverified entries could not be checked and need manual review.
	StatusUnverified Status = "unverified"
	// StatusSuspicious entries show signs of fabrication.
	StatusSuspicious Status = "suspicious"
)

const minTitleSimilarity = 0.6

var hallucinationPatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	{
		regexp.MustCompile(`^(A |An |The )?(Study|Analysis|Review|Survey|Investigation) (of|on|into)`),
		"generic academic title pattern",
	},
	{
		regexp.MustCompile(`^(Recent|Current|Modern|Contemporary) (Advances|Developments|Trends) in`),
		"generic 'advances' title pattern",
	},
	{
		regexp.MustCompile(`^[A-Z][a-z]+ [A-Z][a-z]+: A (Comprehensive|Complete|Systematic) (Review|Analysis|Guide)$`),
		"templated title structure",
	},
}

// Resolver looks up DOI metadata.
type Resolver interface {
	Resolve(ctx context.Context, doi string) (doi.Metadata, error)
}

// URLChecker reports whether a cited URL is reachable.
type URLChecker interface {
	Check(ctx context.Context, url string) error
}

// Result is the verdict for one entry.
type Result struct {
	Entry    Entry
	Status   Status
	Reasons  []string
	Metadata *doi.Metadata
}

// Report collects the verdicts in bibliography order.
type Report struct {
	Results []Result
	Strict  bool
}

// Counts returns the number of results per status.
func (r Report) Counts() map[Status]int {
	counts := map[Status]int{StatusVerified: 0, StatusUnverified: 0, StatusSuspicious: 0}
	for _, res := range r.Results {
		counts[res.Status]++
	}
	return counts
}

// Passed is false when an entry is suspicious or, in strict mode, when any entry is not verified.
func (r Report) Passed() bool {
	for _, res := range r.Results {
		if res.Status == StatusSuspicious || (r.Strict && res.Status != StatusVerified) {
			return false
		}
	}
	return true
}

// Verifier checks report bibliographies.
type Verifier struct {
	resolver    Resolver
	urls        URLChecker
	concurrency int
	strict      bool
	logger      *slog.Logger
}

// NewVerifier creates a Verifier. A nil urls skips reachability checks.
func NewVerifier(logger *slog.Logger, resolver Resolver, urls URLChecker, concurrency int, strict bool) *Verifier {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Verifier{
		resolver:    resolver,
		urls:        urls,
		concurrency: concurrency,
		strict:      strict,
		logger:      logger.With("source", "citations.Verifier"),
	}
}

// Verify checks every bibliography entry of report. Entries are checked concurrently.
func (v *Verifier) Verify(ctx context.Context, report string) (Report, error) {
	entries, err := ExtractBibliography(report)
	if err != nil {
		return Report{}, err
	}

	results := make([]Result, len(entries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, "verify entry", slog.Int("entry", entry.Number))
			}
			results[i] = v.check(ctx, entry)
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return Report{}, err
	}

	out := Report{Results: results, Strict: v.strict}
	counts := out.Counts()
	v.logger.InfoContext(ctx, "verified bibliography",
		slog.Int("entries", len(results)),
		slog.Int("verified", counts[StatusVerified]),
		slog.Int("unverified", counts[StatusUnverified]),
		slog.Int("suspicious", counts[StatusSuspicious]))
	return out, nil
}

func (v *Verifier) check(ctx context.Context, e Entry) Result {
	var (
		suspicious []string
		notes      []string
		confirmed  bool
		metadata   *doi.Metadata
	)
	for _, p := range hallucinationPatterns {
		if e.Title != "" && p.re.MatchString(e.Title) {
			suspicious = append(suspicious, p.reason)
		}
	}

	switch {
	case e.DOI != "":
		md, err := v.resolver.Resolve(ctx, e.DOI)
		switch {
		case errors.Is(err, doi.ErrNotFound):
			suspicious = append(suspicious, fmt.Sprintf("DOI %s does not resolve", e.DOI))
		case err != nil:
			v.logger.LogAttrs(ctx, slog.LevelWarn, "DOI lookup failed",
				slog.String("doi", e.DOI), errors.SlogError(err))
			notes = append(notes, "DOI lookup failed, check manually")
		default:
			metadata = &md
			mismatches := compareMetadata(e, md)
			suspicious = append(suspicious, mismatches...)
			confirmed = len(mismatches) == 0
		}
	case e.URL != "" && v.urls != nil:
		if err := v.urls.Check(ctx, e.URL); err != nil {
			suspicious = append(suspicious, "URL is not reachable")
		} else {
			confirmed = true
			notes = append(notes, "no DOI, URL reachable")
		}
	case e.URL != "":
		notes = append(notes, "no DOI, URL not checked")
	default:
		suspicious = append(suspicious, "no DOI or URL")
	}

	res := Result{Entry: e, Status: StatusUnverified, Reasons: append(suspicious, notes...), Metadata: metadata}
	switch {
	case len(suspicious) > 0:
		res.Status = StatusSuspicious
	case confirmed:
		res.Status = StatusVerified
	}
	return res
}

func compareMetadata(e Entry, md doi.Metadata) []string {
	var mismatches []string
	if e.Title != "" && md.Title != "" {
		if sim := titleSimilarity(e.Title, md.Title); sim < minTitleSimilarity {
			mismatches = append(mismatches,
				fmt.Sprintf("title does not match DOI record %q (similarity %.2f)", md.Title, sim))
		}
	}
	if year, err := strconv.Atoi(e.Year); err == nil && md.Year != 0 && year != md.Year {
		mismatches = append(mismatches, fmt.Sprintf("year %d does not match DOI record year %d", year, md.Year))
	}
	return mismatches
}

// titleSimilarity is the Dice coefficient of the lower-cased word sets of a and b.
func titleSimilarity(a, b string) float64 {
	wa, wb := words(a), words(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	shared := 0
	for w := range wa {
		if wb[w] {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(wa)+len(wb)) //nolint:mnd // Dice coefficient
}

func words(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[w] = true
	}
	return set
}

// HTTPChecker checks URLs with a HEAD request, falling back to GET for servers that refuse HEAD.
type HTTPChecker struct {
	client *http.Client
}

var ErrUnreachable = errors.NewSentinel("url unreachable")

func NewHTTPChecker(client *http.Client, timeout time.Duration) *HTTPChecker {
	if client == nil {
		client = &http.Client{Timeout: timeout} //nolint:exhaustruct // timeout is all we need
	}
	return &HTTPChecker{client: client}
}

func (c *HTTPChecker) Check(ctx context.Context, url string) error {
	status, err := c.status(ctx, http.MethodHead, url)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = c.status(ctx, http.MethodGet, url)
	}
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return errors.Wrap(ErrUnreachable, "check url", slog.String("url", url), slog.Int("status", status))
	}
	return nil
}

func (c *HTTPChecker) status(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "new check request", slog.String("url", url))
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(ErrUnreachable, err.Error(), slog.String("url", url))
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
