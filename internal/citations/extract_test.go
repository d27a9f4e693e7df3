package citations_test

import (
	"github.com/myrjola/deepresearch/internal/citations"
	"github.com/stretchr/testify/require"
	"testing"
)

const sampleReport = `# Report

Transformers changed NLP [1].

## Bibliography

[1] Vaswani et al. (2017). "Attention Is All You Need". NeurIPS. https://doi.org/10.48550/arXiv.1706.03762
[2] Smith (2021). "Recent Advances in Quantum Sensing". Journal of Things.
    https://example.com/sensing
[3] Anonymous. Unnamed blog post.

## Appendix

[4] Not part of the bibliography.
`

func TestExtractBibliography(t *testing.T) {
	entries, err := citations.ExtractBibliography(sampleReport)
	require.NoError(t, err)
	require.Equal(t, []citations.Entry{
		{
			Number: 1,
			Raw:    `Vaswani et al. (2017). "Attention Is All You Need". NeurIPS. https://doi.org/10.48550/arXiv.1706.03762`,
			Year:   "2017",
			Title:  "Attention Is All You Need",
			DOI:    "10.48550/arXiv.1706.03762",
			URL:    "https://doi.org/10.48550/arXiv.1706.03762",
		},
		{
			Number: 2,
			Raw:    `Smith (2021). "Recent Advances in Quantum Sensing". Journal of Things. https://example.com/sensing`,
			Year:   "2021",
			Title:  "Recent Advances in Quantum Sensing",
		},
		{
			Number: 3,
			Raw:    "Anonymous. Unnamed blog post.",
		},
	}, entries)
}

func TestExtractBibliography_Missing(t *testing.T) {
	_, err := citations.ExtractBibliography("# Report\n\nNo references.")
	require.ErrorIs(t, err, citations.ErrNoBibliography)

	entries, err := citations.ExtractBibliography("## bibliography\n")
	require.NoError(t, err)
	require.Empty(t, entries)
}
