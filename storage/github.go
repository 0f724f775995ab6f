package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/google/go-github/v66/github"
	"github.com/recorpproduction-prog/camcapprod/model"
)

// GitHubConfig locates the repository holding one JSON file per SOP.
type GitHubConfig struct {
	Token   string
	Owner   string
	Repo    string
	Branch  string
	Dir     string
	BaseURL string // API root, for GitHub Enterprise and tests
}

// GitHubRepo stores SOPs as <dir>/<sopId>.json through the contents API.
type GitHubRepo struct {
	mu     sync.RWMutex
	config GitHubConfig
	client *github.Client
}

func NewGitHubRepo(cfg GitHubConfig) (*GitHubRepo, error) {
	g := &GitHubRepo{}
	if err := g.Configure(cfg); err != nil {
		return nil, err
	}
	return g, nil
}

// Configure replaces the configuration and rebuilds the API client.
func (g *GitHubRepo) Configure(cfg GitHubConfig) error {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Dir == "" {
		cfg.Dir = "sops"
	}
	client, err := newGitHubClient(cfg.Token, cfg.BaseURL)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.config = cfg
	g.client = client
	g.mu.Unlock()
	return nil
}

func newGitHubClient(token, baseURL string) (*github.Client, error) {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
		client.BaseURL = u
	}
	return client, nil
}

func (g *GitHubRepo) Config() GitHubConfig {
	cfg, _ := g.snapshot()
	return cfg
}

func (g *GitHubRepo) snapshot() (GitHubConfig, *github.Client) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.config, g.client
}

func (g *GitHubRepo) Kind() Kind { return KindGitHub }

func (g *GitHubRepo) IsAvailable() bool {
	cfg, _ := g.snapshot()
	return cfg.Token != "" && cfg.Owner != "" && cfg.Repo != ""
}

func (g *GitHubRepo) LoadAll(ctx context.Context) (Records, error) {
	cfg, client := g.snapshot()
	if !g.IsAvailable() {
		return nil, newError(KindGitHub, "load", 0, ErrConfiguration)
	}

	opts := &github.RepositoryContentGetOptions{Ref: cfg.Branch}
	_, entries, resp, err := client.Repositories.GetContents(ctx, cfg.Owner, cfg.Repo, cfg.Dir, opts)
	if err != nil {
		if statusOf(resp) == http.StatusNotFound {
			// repository or directory not created yet
			return Records{}, nil
		}
		return nil, newError(KindGitHub, "load", statusOf(resp), err)
	}

	out := make(Records, len(entries))
	for _, entry := range entries {
		if entry.GetType() != "file" || !strings.HasSuffix(entry.GetName(), ".json") {
			continue
		}
		file, _, resp, err := client.Repositories.GetContents(ctx, cfg.Owner, cfg.Repo, entry.GetPath(), opts)
		if err != nil {
			if isFatalStatus(statusOf(resp)) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, newError(KindGitHub, "load", statusOf(resp), err)
			}
			continue
		}
		content, err := file.GetContent()
		if err != nil {
			continue
		}
		sop, ok := decodeRecord([]byte(content))
		if !ok {
			continue
		}
		id := sop.ID()
		if id == "" {
			id = strings.TrimSuffix(entry.GetName(), ".json")
			sop.Meta.SOPID = id
		}
		out[id] = sop
	}
	return out, nil
}

func (g *GitHubRepo) Save(ctx context.Context, sop *model.SOP) error {
	cfg, client := g.snapshot()
	if !g.IsAvailable() {
		return newError(KindGitHub, "save", 0, ErrConfiguration)
	}
	stamp(sop)

	content, err := json.MarshalIndent(sop, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	filePath := g.filePath(cfg, sop.ID())
	sha, err := g.currentSHA(ctx, cfg, client, filePath)
	if err != nil {
		return err
	}

	title := sop.Meta.Title
	if title == "" {
		title = sop.ID()
	}
	opts := &github.RepositoryContentFileOptions{
		Message: github.String("Save SOP: " + title),
		Content: content,
		Branch:  github.String(cfg.Branch),
	}
	if sha == "" {
		_, resp, err := client.Repositories.CreateFile(ctx, cfg.Owner, cfg.Repo, filePath, opts)
		if err != nil {
			return newError(KindGitHub, "save", statusOf(resp), err)
		}
		return nil
	}
	opts.SHA = github.String(sha)
	if _, resp, err := client.Repositories.UpdateFile(ctx, cfg.Owner, cfg.Repo, filePath, opts); err != nil {
		return newError(KindGitHub, "save", statusOf(resp), err)
	}
	return nil
}

func (g *GitHubRepo) Delete(ctx context.Context, sopID string) error {
	cfg, client := g.snapshot()
	if !g.IsAvailable() {
		return newError(KindGitHub, "delete", 0, ErrConfiguration)
	}

	filePath := g.filePath(cfg, sopID)
	sha, err := g.currentSHA(ctx, cfg, client, filePath)
	if err != nil {
		return err
	}
	if sha == "" {
		return nil
	}
	_, resp, err := client.Repositories.DeleteFile(ctx, cfg.Owner, cfg.Repo, filePath, &github.RepositoryContentFileOptions{
		Message: github.String("Delete SOP: " + sopID),
		SHA:     github.String(sha),
		Branch:  github.String(cfg.Branch),
	})
	if err != nil {
		if statusOf(resp) == http.StatusNotFound {
			return nil
		}
		return newError(KindGitHub, "delete", statusOf(resp), err)
	}
	return nil
}

func (g *GitHubRepo) filePath(cfg GitHubConfig, sopID string) string {
	return path.Join(cfg.Dir, sopID+".json")
}

// currentSHA returns the blob sha of an existing file, or "" when absent.
func (g *GitHubRepo) currentSHA(ctx context.Context, cfg GitHubConfig, client *github.Client, filePath string) (string, error) {
	file, _, resp, err := client.Repositories.GetContents(ctx, cfg.Owner, cfg.Repo, filePath,
		&github.RepositoryContentGetOptions{Ref: cfg.Branch})
	if err != nil {
		if statusOf(resp) == http.StatusNotFound {
			return "", nil
		}
		return "", newError(KindGitHub, "stat", statusOf(resp), err)
	}
	return file.GetSHA(), nil
}

func statusOf(resp *github.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

func isFatalStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden || status >= 500
}
