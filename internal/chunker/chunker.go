// Package chunker splits raw document content into overlapping text windows
// for embedding.
//
// Splitting is separator-driven: each profile carries an ordered list of
// separators, and a segment only falls through to a finer separator when it
// still exceeds the target size. Chunks are substrings of the original
// content identified by byte offsets; consecutive chunks overlap by the
// configured amount and together cover the input with no gaps, so every
// citation maps back to an exact location in the source document.
//
// Splitting is fully deterministic: the same content and profile always
// produce the same boundaries.
package chunker

import (
	"path/filepath"
	"strings"
)

// Profile selects the separator priority list and size limits for a
// document's content type.
type Profile string

const (
	ProfileProse    Profile = "prose"
	ProfileCode     Profile = "code"
	ProfileMarkdown Profile = "markdown"
)

// Chunk is one window of document content. Offsets are byte positions into
// the original string, StartOffset inclusive and EndOffset exclusive.
// Lines are 1-based, counting newline characters up to the respective
// offset, and feed source attribution.
type Chunk struct {
	Text        string
	StartOffset int
	EndOffset   int
	StartLine   int
	EndLine     int
}

// Limits holds the target chunk size and overlap, in bytes.
type Limits struct {
	Size    int
	Overlap int
}

// separator is one splitting token. Prefix separators mark the start of a
// new unit (a declaration, a heading) and stay attached to the following
// segment; terminator separators stay attached to the preceding one.
type separator struct {
	token  string
	prefix bool
}

var profileSeparators = map[Profile][]separator{
	ProfileProse: {
		{token: "\n\n"},
		{token: "\n"},
		{token: "."},
		{token: " "},
	},
	ProfileCode: {
		{token: "\nclass ", prefix: true},
		{token: "\nfunc ", prefix: true},
		{token: "\ndef ", prefix: true},
		{token: "\n"},
		{token: " "},
	},
	ProfileMarkdown: {
		{token: "\n## ", prefix: true},
		{token: "\n### ", prefix: true},
		{token: "\n\n"},
		{token: "\n"},
		{token: "."},
		{token: " "},
	},
}

// Splitter splits document content according to per-profile limits.
// The zero value is not usable; construct with New.
type Splitter struct {
	limits map[Profile]Limits
}

// New creates a Splitter with the given per-profile limits. Unknown
// profiles fall back to the prose limits and separators.
func New(prose, code, markdown Limits) *Splitter {
	return &Splitter{
		limits: map[Profile]Limits{
			ProfileProse:    prose,
			ProfileCode:     code,
			ProfileMarkdown: markdown,
		},
	}
}

// Default returns a Splitter with the stock limits: prose 500/100,
// code 300/50, markdown 400/80.
func Default() *Splitter {
	return New(Limits{500, 100}, Limits{300, 50}, Limits{400, 80})
}

// Split splits content into ordered, non-empty chunks. Blank content
// yields no chunks. For non-blank content the chunk spans cover the whole
// input: a chunk starts at or before the previous chunk's end.
func (s *Splitter) Split(content string, profile Profile) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lim, ok := s.limits[profile]
	if !ok {
		lim = s.limits[ProfileProse]
		profile = ProfileProse
	}
	seps := profileSeparators[profile]

	spans := segments(content, 0, seps, lim.Size)
	merged := merge(spans, lim.Size, lim.Overlap)

	chunks := make([]Chunk, 0, len(merged))
	for _, sp := range merged {
		chunks = append(chunks, Chunk{
			Text:        content[sp.start:sp.end],
			StartOffset: sp.start,
			EndOffset:   sp.end,
			StartLine:   1 + strings.Count(content[:sp.start], "\n"),
			EndLine:     1 + strings.Count(content[:sp.end], "\n"),
		})
	}
	return chunks
}

type span struct {
	start, end int
}

// segments recursively splits content into spans no larger than size,
// falling through to finer separators only for oversized pieces. base is
// the absolute offset of content within the original document.
func segments(content string, base int, seps []separator, size int) []span {
	if len(content) <= size {
		return []span{{base, base + len(content)}}
	}
	if len(seps) == 0 {
		// No separator can break this run; hard-split at the size
		// boundary so downstream batching stays bounded.
		var out []span
		for off := 0; off < len(content); off += size {
			end := min(off+size, len(content))
			out = append(out, span{base + off, base + end})
		}
		return out
	}

	cuts := cutPoints(content, seps[0])
	if len(cuts) == 0 {
		return segments(content, base, seps[1:], size)
	}

	var out []span
	prev := 0
	for _, cut := range append(cuts, len(content)) {
		if cut <= prev {
			continue
		}
		piece := content[prev:cut]
		if len(piece) > size {
			out = append(out, segments(piece, base+prev, seps[1:], size)...)
		} else {
			out = append(out, span{base + prev, base + cut})
		}
		prev = cut
	}
	return out
}

// cutPoints returns the positions where content splits on sep. A prefix
// separator cuts before its occurrence; a terminator cuts after it.
func cutPoints(content string, sep separator) []int {
	var cuts []int
	from := 0
	for {
		idx := strings.Index(content[from:], sep.token)
		if idx < 0 {
			return cuts
		}
		pos := from + idx
		if sep.prefix {
			cuts = append(cuts, pos)
		} else {
			cuts = append(cuts, pos+len(sep.token))
		}
		from = pos + len(sep.token)
	}
}

// merge greedily packs consecutive spans into chunks of at most size bytes,
// starting each new chunk overlap bytes before the previous chunk's end.
// A single span larger than size (only possible for unbreakable runs) is
// emitted on its own.
func merge(spans []span, size, overlap int) []span {
	if len(spans) == 0 {
		return nil
	}

	var out []span
	start := spans[0].start
	end := start
	for _, sp := range spans {
		if end > start && sp.end-start > size {
			out = append(out, span{start, end})
			// Back up for overlap but never behind the chunk just
			// emitted, so starts stay monotonic.
			start = max(end-overlap, start)
		}
		end = sp.end
	}
	if end > start {
		out = append(out, span{start, end})
	}
	return out
}

// codeExtensions are file extensions chunked with the code profile.
var codeExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".java": true,
	".c": true, ".cpp": true, ".h": true, ".hpp": true, ".rs": true,
	".rb": true, ".php": true, ".sh": true, ".sql": true, ".yaml": true,
	".yml": true, ".json": true, ".toml": true, ".xml": true,
}

// ProfileFor selects the chunk profile for a document from its source type
// and title (typically a file name or path).
func ProfileFor(sourceType, title string) Profile {
	lower := strings.ToLower(title)
	switch sourceType {
	case "github_readme":
		return ProfileMarkdown
	case "github_file", "file":
		if strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown") {
			return ProfileMarkdown
		}
		if codeExtensions[filepath.Ext(lower)] {
			return ProfileCode
		}
		return ProfileProse
	default:
		return ProfileProse
	}
}
