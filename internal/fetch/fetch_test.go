package fetch_test

import (
	"context"
	"github.com/myrjola/deepresearch/internal/fetch"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const article = `<html><head><title> Error correction </title><script>var x = 1;</script></head>
<body>
<nav><a href="/">Home</a></nav>
<main>
  <h1>Surface codes</h1>
  <p>Surface codes   protect
  logical qubits.</p>
  <ul><li>Threshold near 1%</li><li><p>Nested paragraph</p></li></ul>
</main>
<footer>Copyright</footer>
</body></html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, article)
	})
	mux.HandleFunc("/long", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html><body><p>"+strings.Repeat("é", 100)+"</p></body></html>")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	server := newServer(t)
	fetcher := fetch.NewHTTPFetcher(server.Client(), 1024)

	page, err := fetcher.Fetch(context.Background(), server.URL+"/article")
	require.NoError(t, err)
	require.Equal(t, "Error correction", page.Title)
	require.Equal(t, "Surface codes\nSurface codes protect logical qubits.\nThreshold near 1%\nNested paragraph", page.Text)
	require.NotContains(t, page.Text, "Copyright")
}

func TestHTTPFetcher_Truncates(t *testing.T) {
	server := newServer(t)
	fetcher := fetch.NewHTTPFetcher(server.Client(), 15)

	page, err := fetcher.Fetch(context.Background(), server.URL+"/long")
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("é", 7)+"\n[TRUNCATED]", page.Text)
}

func TestHTTPFetcher_Errors(t *testing.T) {
	server := newServer(t)
	fetcher := fetch.NewHTTPFetcher(server.Client(), 0)

	_, err := fetcher.Fetch(context.Background(), " ")
	require.ErrorIs(t, err, fetch.ErrEmptyURL)

	_, err = fetcher.Fetch(context.Background(), server.URL+"/missing")
	require.ErrorIs(t, err, fetch.ErrUnexpectedStatus)
}
