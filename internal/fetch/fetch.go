// Package fetch downloads web pages and reduces them to readable text.
package fetch

import (
	"context"
	"github.com/PuerkitoBio/goquery"
	"github.com/myrjola/deepresearch/internal/errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultMaxBytes = 32 * 1024
	truncatedMarker = "\n[TRUNCATED]"
)

var (
	ErrEmptyURL         = errors.NewSentinel("fetch url is empty")
	ErrUnexpectedStatus = errors.NewSentinel("unexpected fetch response status")
)

// Page is the extracted content of one URL.
type Page struct {
	URL   string
	Title string
	Text  string
}

// HTTPFetcher retrieves pages over HTTP.
type HTTPFetcher struct {
	MaxBytes int
	client   *http.Client
}

func NewHTTPFetcher(client *http.Client, maxBytes int) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second} //nolint:exhaustruct,mnd // timeout is all we need
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPFetcher{MaxBytes: maxBytes, client: client}
}

// Fetch downloads rawURL and returns its title and visible text truncated to MaxBytes.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Page{}, errors.Wrap(ErrEmptyURL, "fetch")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, errors.Wrap(err, "new fetch request", slog.String("url", rawURL))
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) deepresearch/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, errors.Wrap(err, "do fetch request", slog.String("url", rawURL))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return Page{}, errors.Wrap(ErrUnexpectedStatus, "fetch",
			slog.String("url", rawURL), slog.Int("status", resp.StatusCode))
	}

	// Cap the download, pages with more markup than this are not worth parsing in full.
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, int64(f.MaxBytes)*8)) //nolint:mnd // markup overhead
	if err != nil {
		return Page{}, errors.Wrap(err, "parse page", slog.String("url", rawURL))
	}
	return Page{
		URL:   rawURL,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Text:  truncate(ExtractText(doc), f.MaxBytes),
	}, nil
}

// ExtractText returns the visible text of doc, one trimmed line per block, without scripts and page chrome.
func ExtractText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, header, footer, aside, svg").Remove()
	root := doc.Find("main, article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var lines []string
	root.Find("h1, h2, h3, h4, h5, h6, p, li, pre, td, blockquote").Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are visited on their own.
		if s.Find("p, li, pre, blockquote").Length() > 0 {
			return
		}
		if line := strings.Join(strings.Fields(s.Text()), " "); line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		return strings.Join(strings.Fields(root.Text()), " ")
	}
	return strings.Join(lines, "\n")
}

func truncate(text string, maxBytes int) string {
	if len(text) <= maxBytes {
		return text
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + truncatedMarker
}
