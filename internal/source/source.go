// Package source loads content from files, websites and GitHub
// repositories. Loaders produce Items only; storing and embedding happen
// elsewhere.
package source

// Item is one loadable unit of content.
type Item struct {
	Title      string
	Content    string
	SourceType string
	SourceURL  string
	ParentID   string // links repository files to their repo document
}

// Result summarizes a multi-item load.
type Result struct {
	Items   []Item
	Skipped int // unsupported, ignored or oversized entries
	Failed  int // entries that could not be read
}

// supportedExtensions are the file types worth indexing.
var supportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".go":   true,
	".py":   true,
	".js":   true,
	".ts":   true,
	".java": true,
	".c":    true,
	".cpp":  true,
	".h":    true,
	".hpp":  true,
	".rs":   true,
	".rb":   true,
	".php":  true,
	".sh":   true,
	".yaml": true,
	".yml":  true,
	".json": true,
	".xml":  true,
	".html": true,
	".css":  true,
	".sql":  true,
}

// MaxFileSize caps loadable file size. Oversized files are skipped, not
// failed; the chunker handles long content but whole binaries and
// generated artifacts are rarely worth embedding.
const MaxFileSize = 1 << 20 // 1MB
