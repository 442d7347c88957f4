// Package answer turns retrieved chunks into a grounded response: the
// Assembler builds the model context with per-source headers and the
// citation list, the Generator produces the final answer.
package answer

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/benyue1978/ragspace/internal/store"
)

// Source is one citation entry, ordered as it appears in the context.
type Source struct {
	Title      string `json:"title"`
	Location   string `json:"location"`
	ChunkIndex int    `json:"chunk_index"`
	Preview    string `json:"preview"`
}

// sourcePreviewLimit caps the citation preview length.
const sourcePreviewLimit = 200

// Assembler builds model context from retrieved chunks.
type Assembler struct {
	maxLength int
	logger    *slog.Logger
}

// NewAssembler creates an Assembler capping context at maxLength bytes.
// logger may be nil.
func NewAssembler(maxLength int, logger *slog.Logger) *Assembler {
	if maxLength <= 0 {
		maxLength = 4000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{maxLength: maxLength, logger: logger}
}

// Assemble concatenates chunks into a context string, each prefixed with
// a numbered source header. A chunk that would push the context past the
// length cap is skipped whole; later, smaller chunks may still fit.
// Returns the context and the citation list for the chunks included.
func (a *Assembler) Assemble(chunks []store.ScoredChunk) (string, []Source) {
	var b strings.Builder
	var sources []Source

	for _, c := range chunks {
		location := locationFor(c.Attribution)
		section := fmt.Sprintf("Source %d: %s (%s)\n%s\n\n",
			len(sources)+1, c.DocumentTitle, location, c.Content)

		if b.Len()+len(section) > a.maxLength {
			a.logger.Debug("chunk skipped, context full",
				"chunk_id", c.ID, "chunk_len", len(c.Content), "context_len", b.Len())
			continue
		}
		b.WriteString(section)

		preview := c.Content
		if len(preview) > sourcePreviewLimit {
			preview = preview[:sourcePreviewLimit]
		}
		sources = append(sources, Source{
			Title:      c.DocumentTitle,
			Location:   location,
			ChunkIndex: c.Index,
			Preview:    preview,
		})
	}

	return strings.TrimRight(b.String(), "\n"), sources
}

// locationFor renders the most precise location the attribution allows:
// a line-anchored GitHub blob URL, the source URL, or the title.
func locationFor(attr store.Attribution) string {
	if attr.Owner != "" && attr.Repo != "" && attr.Branch != "" && attr.Path != "" {
		url := fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s",
			attr.Owner, attr.Repo, attr.Branch, attr.Path)
		if attr.StartLine > 0 && attr.EndLine >= attr.StartLine {
			url += fmt.Sprintf("#L%d-L%d", attr.StartLine, attr.EndLine)
		}
		return url
	}
	if attr.SourceURL != "" {
		return attr.SourceURL
	}
	return attr.DocumentTitle
}

// Quality is an advisory assessment of retrieved context. It never blocks
// answering.
type Quality struct {
	Score  float64 // 0..1, higher is better
	Issues []string
}

// Quality thresholds, in bytes of combined chunk content.
const (
	minContextContent = 200
	maxContextContent = 12000
)

// EvaluateQuality flags weak retrieval results: too few distinct source
// documents, or combined content well outside useful bounds.
func (a *Assembler) EvaluateQuality(chunks []store.ScoredChunk) Quality {
	q := Quality{Score: 1}

	if len(chunks) == 0 {
		return Quality{Score: 0, Issues: []string{"no relevant chunks found"}}
	}

	docs := make(map[string]bool)
	total := 0
	for _, c := range chunks {
		docs[c.DocumentID] = true
		total += len(c.Content)
	}

	if len(docs) < 2 {
		q.Score -= 0.3
		q.Issues = append(q.Issues, "all chunks come from a single document")
	}
	if total < minContextContent {
		q.Score -= 0.4
		q.Issues = append(q.Issues, "retrieved context is very short")
	}
	if total > maxContextContent {
		q.Score -= 0.2
		q.Issues = append(q.Issues, "retrieved context exceeds the useful length")
	}
	if q.Score < 0 {
		q.Score = 0
	}
	return q
}
