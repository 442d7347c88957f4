package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benyue1978/ragspace/internal/log"
	"github.com/benyue1978/ragspace/internal/store"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.md", "# Notes\n\nSome content.")

	f := NewFiles(log.NewNop())
	item, err := f.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if item.Title != "notes.md" {
		t.Errorf("title = %q, want notes.md", item.Title)
	}
	if item.Content != "# Notes\n\nSome content." {
		t.Errorf("content = %q", item.Content)
	}
	if item.SourceType != store.SourceTypeFile {
		t.Errorf("source type = %q", item.SourceType)
	}
	if item.SourceURL != path {
		t.Errorf("source url = %q, want absolute path %q", item.SourceURL, path)
	}
}

func TestLoadFileRejections(t *testing.T) {
	dir := t.TempDir()
	f := NewFiles(log.NewNop())

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeFile(t, dir, "image.png", "binary")
		if _, err := f.LoadFile(path); err == nil {
			t.Error("expected error for unsupported extension")
		}
	})

	t.Run("directory", func(t *testing.T) {
		if _, err := f.LoadFile(dir); err == nil {
			t.Error("expected error for directory")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := f.LoadFile(filepath.Join(dir, "nope.txt")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("oversized", func(t *testing.T) {
		path := writeFile(t, dir, "big.txt", strings.Repeat("x", MaxFileSize+1))
		if _, err := f.LoadFile(path); err == nil {
			t.Error("expected error for oversized file")
		}
	})
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a")
	writeFile(t, dir, "sub/b.md", "# B")
	writeFile(t, dir, "image.png", "binary")
	writeFile(t, dir, "vendor/dep.go", "package dep")
	writeFile(t, dir, ".gitignore", "vendor/\n")

	f := NewFiles(log.NewNop())
	result, err := f.LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}

	titles := make(map[string]bool)
	for _, item := range result.Items {
		titles[item.Title] = true
	}
	if !titles["a.go"] || !titles[filepath.Join("sub", "b.md")] {
		t.Errorf("items = %v, want a.go and sub/b.md", titles)
	}
	if titles[filepath.Join("vendor", "dep.go")] {
		t.Error("gitignored file was loaded")
	}
	if titles["image.png"] {
		t.Error("unsupported file was loaded")
	}
	if result.Skipped == 0 {
		t.Error("skipped count not reported")
	}
}

func TestLoadDirectorySkipsGitDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main")
	writeFile(t, dir, ".git/config.txt", "not source")

	f := NewFiles(log.NewNop())
	result, err := f.LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Title != "main.go" {
		t.Errorf("items = %v, want only main.go", result.Items)
	}
}

func TestLoadDirectoryEmpty(t *testing.T) {
	f := NewFiles(log.NewNop())
	result, err := f.LoadDirectory(t.TempDir())
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if len(result.Items) != 0 {
		t.Errorf("items = %v, want none", result.Items)
	}
}
