// Package search finds candidate sources for the retrieve phase.
package search

import (
	"context"
	"github.com/PuerkitoBio/goquery"
	"github.com/myrjola/deepresearch/internal/errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultEndpoint = "https://lite.duckduckgo.com/lite/"
	userAgent       = "Mozilla/5.0 (X11; Linux x86_64) deepresearch/1.0"
)

var (
	ErrEmptyQuery       = errors.NewSentinel("search query is empty")
	ErrUnexpectedStatus = errors.NewSentinel("unexpected search response status")
)

// Result is a single search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// DuckDuckGo searches through the DuckDuckGo lite HTML interface.
type DuckDuckGo struct {
	Endpoint   string
	MaxResults int
	client     *http.Client
	logger     *slog.Logger
}

func NewDuckDuckGo(logger *slog.Logger, client *http.Client, endpoint string, maxResults int) *DuckDuckGo {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second} //nolint:exhaustruct,mnd // timeout is all we need
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &DuckDuckGo{
		Endpoint:   endpoint,
		MaxResults: maxResults,
		client:     client,
		logger:     logger.With("source", "search.DuckDuckGo"),
	}
}

// Search posts query to the lite endpoint and scrapes the result table.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.Wrap(ErrEmptyQuery, "search")
	}

	form := url.Values{}
	form.Set("q", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "new search request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do search request", slog.String("query", query))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrap(ErrUnexpectedStatus, "search", slog.Int("status", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "parse search results")
	}
	results := parseResults(doc, d.MaxResults)
	d.logger.DebugContext(ctx, "searched", slog.String("query", query), slog.Int("results", len(results)))
	return results, nil
}

// parseResults pairs each result link with the snippet row that follows it. maxResults <= 0 means no limit.
func parseResults(doc *goquery.Document, maxResults int) []Result {
	var (
		results  []Result
		seen     = map[string]bool{}
		snippets = doc.Find("td.result-snippet")
	)
	doc.Find("a.result-link").EachWithBreak(func(i int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		target := resolveRedirect(strings.TrimSpace(href))
		title := strings.TrimSpace(link.Text())
		if target == "" || title == "" || seen[target] {
			return true
		}
		seen[target] = true
		results = append(results, Result{
			Title:   title,
			URL:     target,
			Snippet: strings.Join(strings.Fields(snippets.Eq(i).Text()), " "),
		})
		return maxResults <= 0 || len(results) < maxResults
	})
	return results
}

// resolveRedirect unwraps DuckDuckGo click-through links of the form //duckduckgo.com/l/?uddg=<target>.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" && strings.HasSuffix(u.Host, "duckduckgo.com") {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return href
}
