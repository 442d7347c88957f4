package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/benyue1978/ragspace/internal/store"
)

// repositoriesService and gitService are the go-github slices the loader
// uses. *gh.RepositoriesService and *gh.GitService satisfy them.
type repositoriesService interface {
	Get(ctx context.Context, owner, repo string) (*gh.Repository, *gh.Response, error)
}

type gitService interface {
	GetTree(ctx context.Context, owner, repo, sha string, recursive bool) (*gh.Tree, *gh.Response, error)
	GetBlob(ctx context.Context, owner, repo, sha string) (*gh.Blob, *gh.Response, error)
}

// RepoContent is a loaded repository: the repo-level parent item plus one
// item per indexed file. Callers store Repo first and stamp its document
// ID into the files' ParentID.
type RepoContent struct {
	Repo    Item
	Files   []Item
	Skipped int
	Failed  int
}

// GitHub loads repositories through the GitHub API.
type GitHub struct {
	repos    repositoriesService
	git      gitService
	maxFiles int
	logger   *slog.Logger
}

// NewGitHub creates a GitHub loader. token may be empty for public
// repositories, at correspondingly lower rate limits. logger may be nil.
func NewGitHub(token string, maxFiles int, logger *slog.Logger) *GitHub {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	client := gh.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return newGitHub(client.Repositories, client.Git, maxFiles, logger)
}

func newGitHub(repos repositoriesService, git gitService, maxFiles int, logger *slog.Logger) *GitHub {
	if maxFiles <= 0 {
		maxFiles = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GitHub{repos: repos, git: git, maxFiles: maxFiles, logger: logger}
}

// LoadRepo walks the repository tree at branch (the default branch when
// empty) and returns the repo item plus an item per supported file.
// Unreadable blobs are counted as failed, unsupported or oversized
// entries as skipped.
func (g *GitHub) LoadRepo(ctx context.Context, owner, repo, branch string) (*RepoContent, error) {
	repository, _, err := g.repos.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("fetching repo %s/%s: %w", owner, repo, err)
	}
	if branch == "" {
		branch = repository.GetDefaultBranch()
	}

	fullName := owner + "/" + repo
	content := &RepoContent{
		Repo: Item{
			Title:      fullName,
			Content:    repository.GetDescription(),
			SourceType: store.SourceTypeGitHubRepo,
			SourceURL:  fmt.Sprintf("https://github.com/%s", fullName),
		},
	}

	tree, _, err := g.git.GetTree(ctx, owner, repo, branch, true)
	if err != nil {
		return nil, fmt.Errorf("fetching tree of %s@%s: %w", fullName, branch, err)
	}

	for _, entry := range tree.Entries {
		if len(content.Files) >= g.maxFiles {
			content.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entryPath := entry.GetPath()
		if entry.GetType() != "blob" || !indexableRepoFile(entryPath) {
			content.Skipped++
			continue
		}
		if entry.GetSize() > MaxFileSize {
			content.Skipped++
			continue
		}

		text, err := g.blobText(ctx, owner, repo, entry.GetSHA())
		if err != nil {
			g.logger.Warn("blob fetch failed",
				"repo", fullName, "path", entryPath, "error", err)
			content.Failed++
			continue
		}

		sourceType := store.SourceTypeGitHubFile
		if isReadme(entryPath) {
			sourceType = store.SourceTypeGitHubReadme
		}
		content.Files = append(content.Files, Item{
			Title:      entryPath,
			Content:    text,
			SourceType: sourceType,
			SourceURL:  fmt.Sprintf("https://github.com/%s/blob/%s/%s", fullName, branch, entryPath),
		})
	}

	g.logger.Info("repository loaded",
		"repo", fullName, "branch", branch, "files", len(content.Files),
		"skipped", content.Skipped, "failed", content.Failed)
	return content, nil
}

func (g *GitHub) blobText(ctx context.Context, owner, repo, sha string) (string, error) {
	blob, _, err := g.git.GetBlob(ctx, owner, repo, sha)
	if err != nil {
		return "", err
	}

	raw := blob.GetContent()
	if blob.GetEncoding() == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(raw, "\n", ""))
		if err != nil {
			return "", fmt.Errorf("decoding blob %s: %w", sha, err)
		}
		return string(decoded), nil
	}
	return raw, nil
}

// indexableRepoFile reports whether a tree path is worth loading: README
// in any form, or a supported extension.
func indexableRepoFile(p string) bool {
	if isReadme(p) {
		return true
	}
	return supportedExtensions[strings.ToLower(path.Ext(p))]
}

func isReadme(p string) bool {
	base := strings.ToLower(path.Base(p))
	return base == "readme" || strings.HasPrefix(base, "readme.")
}
