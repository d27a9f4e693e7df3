package citations_test

import (
	"bytes"
	"context"
	"github.com/myrjola/deepresearch/cmd/research/citations"
	"github.com/myrjola/deepresearch/internal/app"
	"github.com/myrjola/deepresearch/internal/research"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := &cobra.Command{Use: "research", SilenceUsage: true, SilenceErrors: true}
	root.AddGroup(citations.Group)
	root.AddCommand(citations.Verify, citations.Bibliography)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.Execute()
	return out.String(), err
}

func setup(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/10.1/real":
			_, _ = io.WriteString(w, `{"title": "Surface codes towards practical computation", "issued": {"date-parts": [[2012]]}}`)
		case "/page":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	t.Setenv("RESEARCH_OUTPUT_DIR", filepath.Join(dir, "out"))
	t.Setenv("RESEARCH_STORE", "file")
	t.Setenv("RESEARCH_LOG_LEVEL", "error")
	t.Setenv("RESEARCH_DOI_BASE_URL", server.URL)
	return server.URL
}

func writeReport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVerify(t *testing.T) {
	serverURL := setup(t)

	good := writeReport(t, "# Report\n\n## Bibliography\n\n"+
		`[1] Fowler (2012). "Surface codes: towards practical computation". https://doi.org/10.1/real`+"\n"+
		`[2] Docs (2024). "Release notes". `+serverURL+"/page\n")
	out, err := execute(t, "verify", good, "--strict")
	require.NoError(t, err)
	require.Contains(t, out, "2 entries: 2 verified, 0 unverified, 0 suspicious")

	fabricated := writeReport(t, "## Bibliography\n\n"+
		`[1] Doe (2023). "A Study of Everything". https://doi.org/10.1/fake`+"\n")
	out, err = execute(t, "verify", fabricated, "--strict=false")
	require.ErrorIs(t, err, citations.ErrVerificationFailed)
	require.Contains(t, out, "DOI 10.1/fake does not resolve")
	require.Contains(t, out, "generic academic title pattern")

	_, err = execute(t, "verify", filepath.Join(t.TempDir(), "missing.md"))
	require.Error(t, err)
}

func TestBibliography(t *testing.T) {
	setup(t)
	ctx := context.Background()
	var id string
	require.NoError(t, app.With(ctx, io.Discard, func(ctx context.Context, a *app.App) error {
		s, err := a.Store.Create("topic", research.ModeQuick)
		if err != nil {
			return err
		}
		if s, err = a.Store.Advance(ctx, s, research.PhaseOutput{}); err != nil {
			return err
		}
		s, err = a.Store.Advance(ctx, s, research.PhaseOutput{Sources: []research.Source{
			{URL: "https://example.com/a", Title: "A"},
		}})
		if err != nil {
			return err
		}
		id = s.ID()
		return a.Save(ctx, s)
	}))

	out, err := execute(t, "bibliography", id, "--style", "markdown")
	require.NoError(t, err)
	require.Contains(t, out, "## Bibliography")
	require.Contains(t, out, "[1] [A](https://example.com/a)")

	_, err = execute(t, "bibliography", id, "--style", "mla")
	require.Error(t, err)
}
