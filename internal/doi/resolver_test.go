package doi_test

import (
	"context"
	"github.com/myrjola/deepresearch/internal/doi"
	"github.com/myrjola/deepresearch/internal/testhelpers"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const cslRecord = `{
  "title": "Attention Is All You Need",
  "container-title": ["Advances in Neural Information Processing Systems"],
  "issued": {"date-parts": [[2017, 12]]},
  "author": [{"family": "Vaswani", "given": "Ashish"}, {"literal": "Google Brain"}]
}`

func newResolver(t *testing.T) (*doi.Resolver, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Accept") != "application/vnd.citationstyles.csl+json" {
			w.WriteHeader(http.StatusNotAcceptable)
			return
		}
		switch r.URL.Path {
		case "/10.48550/arXiv.1706.03762":
			_, _ = io.WriteString(w, cslRecord)
		case "/10.9999/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return doi.NewResolver(testhelpers.NewLogger(io.Discard), server.Client(), server.URL, time.Second), &hits
}

func TestResolver_Resolve(t *testing.T) {
	resolver, hits := newResolver(t)
	ctx := context.Background()

	md, err := resolver.Resolve(ctx, "https://doi.org/10.48550/arXiv.1706.03762.")
	require.NoError(t, err)
	require.Equal(t, doi.Metadata{
		Title:   "Attention Is All You Need",
		Year:    2017,
		Authors: []string{"Vaswani Ashish", "Google Brain"},
		Venue:   "Advances in Neural Information Processing Systems",
	}, md)

	_, err = resolver.Resolve(ctx, "10.48550/arXiv.1706.03762")
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load(), "second lookup is served from cache")
}

func TestResolver_Errors(t *testing.T) {
	resolver, hits := newResolver(t)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, "10.1234/made-up")
	require.ErrorIs(t, err, doi.ErrNotFound)
	_, err = resolver.Resolve(ctx, "10.1234/made-up")
	require.ErrorIs(t, err, doi.ErrNotFound)
	require.Equal(t, int32(1), hits.Load(), "misses are cached")

	_, err = resolver.Resolve(ctx, "10.9999/broken")
	require.ErrorIs(t, err, doi.ErrUnexpectedStatus)
	_, err = resolver.Resolve(ctx, "10.9999/broken")
	require.ErrorIs(t, err, doi.ErrUnexpectedStatus)
	require.Equal(t, int32(3), hits.Load(), "transient failures are retried")

	_, err = resolver.Resolve(ctx, " doi: ")
	require.ErrorIs(t, err, doi.ErrEmptyDOI)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"10.1000/xyz123", "10.1000/xyz123"},
		{"doi:10.1000/xyz123", "10.1000/xyz123"},
		{"https://dx.doi.org/10.1000/xyz123).", "10.1000/xyz123"},
		{"DOI.ORG/10.1000/xyz123", "10.1000/xyz123"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, doi.Normalize(tt.in))
		})
	}
}
