package source

import (
	"strings"
	"testing"

	"github.com/benyue1978/ragspace/internal/store"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Chunking Guide</title></head>
<body>
<nav><a href="/home">Home</a><a href="/about">About</a></nav>
<article>
<h1>How text chunking works</h1>
<p>Text chunking splits long documents into overlapping windows so each
piece stays within the embedding model input limit. The overlap keeps
context that straddles a boundary retrievable from either side.</p>
<p>Code is split on declaration boundaries instead of sentences, which
keeps functions intact and makes retrieved chunks compile-shaped.</p>
</article>
<footer>Copyright 2026</footer>
</body>
</html>`

func TestExtractPage(t *testing.T) {
	item, err := extractPage([]byte(samplePage), "https://example.com/guide")
	if err != nil {
		t.Fatalf("extractPage: %v", err)
	}

	if item.SourceType != store.SourceTypeURL {
		t.Errorf("source type = %q", item.SourceType)
	}
	if item.SourceURL != "https://example.com/guide" {
		t.Errorf("source url = %q", item.SourceURL)
	}
	if item.Title == "" {
		t.Error("no title extracted")
	}
	if !strings.Contains(item.Content, "overlapping windows") {
		t.Errorf("content missing article text: %q", item.Content)
	}
	if strings.Contains(item.Content, "<p>") {
		t.Error("content contains raw HTML")
	}
}

func TestExtractPageTitleFallback(t *testing.T) {
	page := `<html><head><title>Fallback Title</title></head><body><p>` +
		strings.Repeat("Body text that is long enough to extract. ", 20) +
		`</p></body></html>`

	item, err := extractPage([]byte(page), "https://example.com/x")
	if err != nil {
		t.Fatalf("extractPage: %v", err)
	}
	if item.Title == "" {
		t.Error("expected a title from <title> or URL fallback")
	}
}

func TestExtractPageInvalidURL(t *testing.T) {
	if _, err := extractPage([]byte(samplePage), "://bad"); err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestNewWebsiteDefaults(t *testing.T) {
	w := NewWebsite(WebsiteConfig{}, nil)
	if w.cfg.MaxDepth != 2 || w.cfg.MaxPages != 50 {
		t.Errorf("defaults = %+v", w.cfg)
	}
}

func TestCrawlInvalidURL(t *testing.T) {
	w := NewWebsite(WebsiteConfig{}, nil)
	if _, err := w.Crawl("not a url"); err == nil {
		t.Error("expected error for invalid start URL")
	}
}
