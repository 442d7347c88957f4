package source

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/benyue1978/ragspace/internal/store"
)

// Files loads documents from the local filesystem.
type Files struct {
	logger *slog.Logger
}

// NewFiles creates a file loader. logger may be nil.
func NewFiles(logger *slog.Logger) *Files {
	if logger == nil {
		logger = slog.Default()
	}
	return &Files{logger: logger}
}

// LoadFile reads a single file as one Item. The file is accessed through
// an os.Root anchored at its parent directory, so symlinks cannot escape.
func (f *Files) LoadFile(path string) (*Item, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", path, err)
	}

	root, err := os.OpenRoot(filepath.Dir(absPath))
	if err != nil {
		return nil, fmt.Errorf("opening directory of %q: %w", path, err)
	}
	defer func() {
		_ = root.Close()
	}()

	name := filepath.Base(absPath)
	info, err := root.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%q is a directory, use LoadDirectory", path)
	}

	ext := strings.ToLower(filepath.Ext(name))
	if !supportedExtensions[ext] {
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("file %q (%d bytes) exceeds size limit (%d bytes)",
			name, info.Size(), MaxFileSize)
	}

	content, err := root.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}

	return &Item{
		Title:      name,
		Content:    string(content),
		SourceType: store.SourceTypeFile,
		SourceURL:  absPath,
	}, nil
}

// LoadDirectory walks dirPath recursively, returning an Item per
// supported file. A .gitignore at the directory root is honored for both
// files and subtrees. Per-file read errors are counted, not fatal.
func (f *Files) LoadDirectory(dirPath string) (*Result, error) {
	absDir, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", dirPath, err)
	}

	root, err := os.OpenRoot(absDir)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", dirPath, err)
	}
	defer func() {
		_ = root.Close()
	}()

	var gitIgnore *ignore.GitIgnore
	if _, err := os.Stat(filepath.Join(absDir, ".gitignore")); err == nil {
		gitIgnore, err = ignore.CompileIgnoreFile(filepath.Join(absDir, ".gitignore"))
		if err != nil {
			// A malformed .gitignore should not abort the whole load.
			f.logger.Warn("ignoring malformed .gitignore", "dir", absDir, "error", err)
			gitIgnore = nil
		}
	}

	result := &Result{}
	err = filepath.Walk(absDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			result.Failed++
			return nil
		}

		relPath, err := filepath.Rel(absDir, path)
		if err != nil {
			result.Failed++
			return nil
		}
		if relPath == "." {
			return nil
		}

		if gitIgnore != nil && gitIgnore.MatchesPath(relPath) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			result.Skipped++
			return nil
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !supportedExtensions[ext] || info.Size() > MaxFileSize {
			result.Skipped++
			return nil
		}

		content, err := root.ReadFile(relPath)
		if err != nil {
			f.logger.Warn("unreadable file skipped", "path", path, "error", err)
			result.Failed++
			return nil
		}

		result.Items = append(result.Items, Item{
			Title:      relPath,
			Content:    string(content),
			SourceType: store.SourceTypeFile,
			SourceURL:  path,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %q: %w", dirPath, err)
	}

	f.logger.Debug("directory loaded",
		"dir", absDir, "items", len(result.Items),
		"skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}
