package source

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/benyue1978/ragspace/internal/store"
)

// WebsiteConfig bounds a crawl.
type WebsiteConfig struct {
	MaxDepth int // link depth from the start URL
	MaxPages int // hard page cap
}

// Website crawls a site and extracts readable content per page.
type Website struct {
	cfg    WebsiteConfig
	logger *slog.Logger
}

// NewWebsite creates a website loader. logger may be nil.
func NewWebsite(cfg WebsiteConfig, logger *slog.Logger) *Website {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 2
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Website{cfg: cfg, logger: logger}
}

// Crawl visits startURL and same-host pages up to the configured depth
// and page count, returning one Item per page with extractable content.
func (w *Website) Crawl(startURL string) (*Result, error) {
	parsed, err := url.Parse(startURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid start URL %q", startURL)
	}

	c := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.MaxDepth(w.cfg.MaxDepth),
	)

	result := &Result{}

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if len(result.Items) >= w.cfg.MaxPages {
			return
		}
		if link := e.Request.AbsoluteURL(e.Attr("href")); link != "" {
			_ = e.Request.Visit(link)
		}
	})

	c.OnResponse(func(r *colly.Response) {
		if len(result.Items) >= w.cfg.MaxPages {
			return
		}
		if !strings.Contains(r.Headers.Get("Content-Type"), "text/html") {
			result.Skipped++
			return
		}

		pageURL := r.Request.URL.String()
		item, err := extractPage(r.Body, pageURL)
		if err != nil {
			w.logger.Warn("page extraction failed", "url", pageURL, "error", err)
			result.Failed++
			return
		}
		if item.Content == "" {
			result.Skipped++
			return
		}
		result.Items = append(result.Items, *item)
	})

	c.OnError(func(r *colly.Response, err error) {
		w.logger.Warn("page fetch failed", "url", r.Request.URL, "error", err)
		result.Failed++
	})

	if err := c.Visit(startURL); err != nil {
		return nil, fmt.Errorf("crawling %q: %w", startURL, err)
	}
	c.Wait()

	w.logger.Info("crawl finished",
		"start_url", startURL, "pages", len(result.Items),
		"skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

// extractPage pulls the readable main content and a title from an HTML
// page. Readability extracts the article body; when it finds no title the
// <title> element is used, then the URL.
func extractPage(body []byte, pageURL string) (*Item, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page URL: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return nil, fmt.Errorf("extracting content: %w", err)
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		if doc, qerr := goquery.NewDocumentFromReader(bytes.NewReader(body)); qerr == nil {
			title = strings.TrimSpace(doc.Find("title").First().Text())
		}
	}
	if title == "" {
		title = pageURL
	}

	return &Item{
		Title:      title,
		Content:    strings.TrimSpace(article.TextContent),
		SourceType: store.SourceTypeURL,
		SourceURL:  pageURL,
	}, nil
}
