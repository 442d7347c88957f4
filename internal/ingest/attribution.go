package ingest

import (
	"strings"

	"github.com/benyue1978/ragspace/internal/chunker"
	"github.com/benyue1978/ragspace/internal/store"
)

// attributionFor builds the per-chunk source metadata. GitHub coordinates
// are recovered from the document's blob URL so the answer layer can
// rebuild line-anchored links.
func attributionFor(doc *store.Document, piece chunker.Chunk) store.Attribution {
	attr := store.Attribution{
		SourceType:    doc.SourceType,
		SourceURL:     doc.SourceURL,
		DocumentTitle: doc.Title,
		StartLine:     piece.StartLine,
		EndLine:       piece.EndLine,
	}

	switch doc.SourceType {
	case store.SourceTypeGitHubFile, store.SourceTypeGitHubReadme, store.SourceTypeGitHubRepo:
		if owner, repo, branch, path, ok := parseGitHubBlobURL(doc.SourceURL); ok {
			attr.Owner = owner
			attr.Repo = repo
			attr.Branch = branch
			attr.Path = path
		}
	}
	return attr
}

// parseGitHubBlobURL extracts coordinates from a GitHub blob URL of the
// form https://github.com/{owner}/{repo}/blob/{branch}/{path}.
func parseGitHubBlobURL(rawURL string) (owner, repo, branch, path string, ok bool) {
	const prefix = "https://github.com/"
	rest, found := strings.CutPrefix(rawURL, prefix)
	if !found {
		return "", "", "", "", false
	}

	parts := strings.SplitN(rest, "/", 5)
	if len(parts) < 5 || parts[2] != "blob" {
		return "", "", "", "", false
	}
	if parts[0] == "" || parts[1] == "" || parts[3] == "" || parts[4] == "" {
		return "", "", "", "", false
	}
	return parts[0], parts[1], parts[3], parts[4], true
}
