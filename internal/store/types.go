package store

import (
	"errors"
	"time"
)

// Status is the embedding lifecycle state of a document.
//
// Legal transitions form a small machine:
//
//	pending → processing → done
//	                     → error → pending (explicit retry only)
//
// Everything else is rejected. The transition table lives here so no
// caller carries its own ad-hoc status checks.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusDone, StatusError:
		return true
	}
	return false
}

// transitionSources maps a target status to the states it may be entered
// from.
var transitionSources = map[Status][]Status{
	StatusProcessing: {StatusPending},
	StatusDone:       {StatusProcessing},
	StatusError:      {StatusProcessing},
	StatusPending:    {StatusError},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, src := range transitionSources[to] {
		if src == from {
			return true
		}
	}
	return false
}

// TransitionSources returns the states from which to may legally be
// entered.
func TransitionSources(to Status) []Status {
	srcs := transitionSources[to]
	if srcs == nil {
		return nil
	}
	out := make([]Status, len(srcs))
	copy(out, srcs)
	return out
}

// Source type values for documents. Document sources supply these; the
// ingest pipeline only uses them to pick a chunk profile and to build
// attributions.
const (
	SourceTypeFile         = "file"
	SourceTypeURL          = "url"
	SourceTypeGitHubRepo   = "github_repo"
	SourceTypeGitHubFile   = "github_file"
	SourceTypeGitHubReadme = "github_readme"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidTransition indicates a status update that the lifecycle
	// machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrSelfParent indicates a document naming itself as parent.
	ErrSelfParent = errors.New("document cannot be its own parent")

	// ErrInvalidStatus indicates an unknown status value.
	ErrInvalidStatus = errors.New("invalid status")
)

// Document is one ingested unit of content. ParentID links hierarchical
// sources, e.g. a repository document and its files.
type Document struct {
	ID                 string
	Collection         string
	Title              string
	Content            string
	SourceType         string
	SourceURL          string
	ParentID           string // empty = no parent
	EmbeddingStatus    Status
	EmbeddingUpdatedAt time.Time
	CreatedAt          time.Time
}

// Attribution is the typed per-chunk source metadata stored in the chunks
// table. Optional fields are empty/zero when the source does not provide
// them; the GitHub coordinates allow building line-anchored blob URLs.
type Attribution struct {
	SourceType    string `json:"source_type"`
	SourceURL     string `json:"source_url,omitempty"`
	DocumentTitle string `json:"document_title"`
	StartLine     int    `json:"start_line,omitempty"`
	EndLine       int    `json:"end_line,omitempty"`

	// GitHub coordinates, set only for github_* sources.
	Owner  string `json:"owner,omitempty"`
	Repo   string `json:"repo,omitempty"`
	Branch string `json:"branch,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Chunk is a bounded substring of a document, embedded and stored
// independently for retrieval. (DocumentID, Index) is unique.
type Chunk struct {
	ID            string
	DocumentID    string
	Collection    string
	DocumentTitle string
	Index         int
	Content       string
	Embedding     []float32
	Attribution   Attribution
}

// ScoredChunk is a chunk returned from a nearest-neighbour query together
// with its cosine distance to the query embedding (lower = more similar).
type ScoredChunk struct {
	Chunk
	Distance float64
}
