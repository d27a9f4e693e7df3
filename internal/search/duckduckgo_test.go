package search_test

import (
	"context"
	"github.com/myrjola/deepresearch/internal/search"
	"github.com/myrjola/deepresearch/internal/testhelpers"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

const litePage = `<html><body><table>
<tr><td>1.</td><td><a rel="nofollow" href="https://example.com/a" class='result-link'>First result</a></td></tr>
<tr><td></td><td class='result-snippet'>First   snippet
 text</td></tr>
<tr><td>2.</td><td><a rel="nofollow" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.org%2Fb&rut=x" class='result-link'>Second result</a></td></tr>
<tr><td></td><td class='result-snippet'>Second snippet</td></tr>
<tr><td>3.</td><td><a rel="nofollow" href="https://example.com/a" class='result-link'>Duplicate</a></td></tr>
<tr><td></td><td class='result-snippet'>Duplicate snippet</td></tr>
<tr><td>4.</td><td><a rel="nofollow" href="https://example.net/c" class='result-link'>Third result</a></td></tr>
<tr><td></td><td class='result-snippet'>Third snippet</td></tr>
</table></body></html>`

func newServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.FormValue("q") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDuckDuckGo_Search(t *testing.T) {
	server := newServer(t, http.StatusOK, litePage)
	ddg := search.NewDuckDuckGo(testhelpers.NewLogger(io.Discard), server.Client(), server.URL, 2)

	results, err := ddg.Search(context.Background(), "quantum error correction")
	require.NoError(t, err)
	require.Equal(t, []search.Result{
		{Title: "First result", URL: "https://example.com/a", Snippet: "First snippet text"},
		{Title: "Second result", URL: "https://example.org/b", Snippet: "Second snippet"},
	}, results)
}

func TestDuckDuckGo_Errors(t *testing.T) {
	server := newServer(t, http.StatusTooManyRequests, "slow down")
	ddg := search.NewDuckDuckGo(testhelpers.NewLogger(io.Discard), server.Client(), server.URL, 5)

	_, err := ddg.Search(context.Background(), "  ")
	require.ErrorIs(t, err, search.ErrEmptyQuery)

	_, err = ddg.Search(context.Background(), "topic")
	require.ErrorIs(t, err, search.ErrUnexpectedStatus)
}
