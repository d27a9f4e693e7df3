// Package doi resolves DOIs to bibliographic metadata through doi.org content negotiation.
package doi

import (
	"context"
	"encoding/json"
	"github.com/myrjola/deepresearch/internal/errors"
	"github.com/patrickmn/go-cache"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://doi.org"
	cslMediaType   = "application/vnd.citationstyles.csl+json"
)

var (
	ErrNotFound         = errors.NewSentinel("DOI not found")
	ErrUnexpectedStatus = errors.NewSentinel("unexpected DOI resolver status")
	ErrEmptyDOI         = errors.NewSentinel("DOI is empty")
)

// Metadata is the subset of a CSL-JSON record used for citation checks.
type Metadata struct {
	Title   string
	Year    int
	Authors []string
	Venue   string
}

// Resolver looks up DOIs and caches the answers, including misses, for the lifetime of the process.
type Resolver struct {
	BaseURL string
	client  *http.Client
	cache   *cache.Cache
	logger  *slog.Logger
}

func NewResolver(logger *slog.Logger, client *http.Client, baseURL string, timeout time.Duration) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: timeout} //nolint:exhaustruct // timeout is all we need
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Resolver{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		cache:   cache.New(time.Hour, 10*time.Minute), //nolint:mnd // entries are tiny
		logger:  logger.With("source", "doi.Resolver"),
	}
}

type cacheEntry struct {
	metadata Metadata
	err      error
}

// Resolve returns the metadata registered for doi. Unknown DOIs fail with ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, doi string) (Metadata, error) {
	doi = Normalize(doi)
	if doi == "" {
		return Metadata{}, errors.Wrap(ErrEmptyDOI, "resolve DOI")
	}
	if cached, ok := r.cache.Get(doi); ok {
		entry := cached.(cacheEntry) //nolint:errcheck,forcetypeassert // only cacheEntry values are stored
		return entry.metadata, entry.err
	}

	md, err := r.fetch(ctx, doi)
	// Transport failures may be transient, only definitive answers are cached.
	if err == nil || errors.Is(err, ErrNotFound) {
		r.cache.SetDefault(doi, cacheEntry{metadata: md, err: err})
	}
	return md, err
}

func (r *Resolver) fetch(ctx context.Context, doi string) (Metadata, error) {
	target := r.BaseURL + "/" + strings.ReplaceAll(url.PathEscape(doi), "%2F", "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Metadata{}, errors.Wrap(err, "new DOI request", slog.String("doi", doi))
	}
	req.Header.Set("Accept", cslMediaType)

	resp, err := r.client.Do(req)
	if err != nil {
		return Metadata{}, errors.Wrap(err, "do DOI request", slog.String("doi", doi))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Metadata{}, errors.Wrap(ErrNotFound, "resolve DOI", slog.String("doi", doi))
	case resp.StatusCode != http.StatusOK:
		return Metadata{}, errors.Wrap(ErrUnexpectedStatus, "resolve DOI",
			slog.String("doi", doi), slog.Int("status", resp.StatusCode))
	}

	var record cslRecord
	if err = json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return Metadata{}, errors.Wrap(err, "decode CSL-JSON", slog.String("doi", doi))
	}
	r.logger.DebugContext(ctx, "resolved DOI", slog.String("doi", doi))
	return record.metadata(), nil
}

// Normalize strips resolver prefixes and trailing punctuation picked up from prose.
func Normalize(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "doi.org/", "doi:"} {
		if len(doi) >= len(prefix) && strings.EqualFold(doi[:len(prefix)], prefix) {
			doi = doi[len(prefix):]
			break
		}
	}
	return strings.TrimRight(doi, ".,;)]\"'")
}

// cslText is a CSL string variable. Some registrars emit these as arrays.
type cslText string

func (t *cslText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = cslText(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.Wrap(err, "decode CSL text")
	}
	if len(list) > 0 {
		*t = cslText(list[0])
	}
	return nil
}

type cslRecord struct {
	Title          cslText `json:"title"`
	ContainerTitle cslText `json:"container-title"`
	Issued         struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
	Author []struct {
		Family  string `json:"family"`
		Given   string `json:"given"`
		Literal string `json:"literal"`
	} `json:"author"`
}

func (c cslRecord) metadata() Metadata {
	md := Metadata{
		Title:   strings.TrimSpace(string(c.Title)),
		Year:    0,
		Authors: make([]string, 0, len(c.Author)),
		Venue:   strings.TrimSpace(string(c.ContainerTitle)),
	}
	if len(c.Issued.DateParts) > 0 && len(c.Issued.DateParts[0]) > 0 {
		md.Year = c.Issued.DateParts[0][0]
	}
	for _, a := range c.Author {
		name := strings.TrimSpace(a.Family + " " + a.Given)
		if name == "" {
			name = a.Literal
		}
		md.Authors = append(md.Authors, name)
	}
	return md
}
