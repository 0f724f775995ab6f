package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/go-github/v66/github"
	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/storage/kv"
)

// GistMapKey is the kv key of the sopId -> gist id map.
const GistMapKey = "githubGistMap"

// GistConfig holds the token used for private SOP gists.
type GistConfig struct {
	Token   string
	BaseURL string
}

// Gist is the legacy backend: one private gist per SOP. Gists are found
// through a locally persisted sopId -> gist id map.
type Gist struct {
	mu     sync.Mutex
	config GistConfig
	client *github.Client
	state  kv.Store
}

func NewGist(cfg GistConfig, state kv.Store) (*Gist, error) {
	g := &Gist{state: state}
	if err := g.Configure(cfg); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gist) Configure(cfg GistConfig) error {
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

func (g *Gist) Config() GistConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.config
}

func (g *Gist) Kind() Kind { return KindGist }

func (g *Gist) IsAvailable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.config.Token != ""
}

func (g *Gist) LoadAll(ctx context.Context) (Records, error) {
	if !g.IsAvailable() {
		return nil, newError(KindGist, "load", 0, ErrConfiguration)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	ids, err := g.readMap(ctx)
	if err != nil {
		return nil, err
	}

	out := make(Records, len(ids))
	stale := false
	for sopID, gistID := range ids {
		gist, resp, err := g.client.Gists.Get(ctx, gistID)
		if err != nil {
			if statusOf(resp) == http.StatusNotFound {
				delete(ids, sopID)
				stale = true
				continue
			}
			return nil, newError(KindGist, "load", statusOf(resp), err)
		}
		for _, file := range gist.Files {
			sop, ok := decodeRecord([]byte(file.GetContent()))
			if !ok {
				continue
			}
			if sop.ID() == "" {
				sop.Meta.SOPID = sopID
			}
			out[sop.ID()] = sop
			break
		}
	}
	if stale {
		if err := g.writeMap(ctx, ids); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (g *Gist) Save(ctx context.Context, sop *model.SOP) error {
	if !g.IsAvailable() {
		return newError(KindGist, "save", 0, ErrConfiguration)
	}
	stamp(sop)
	content, err := json.MarshalIndent(sop, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ids, err := g.readMap(ctx)
	if err != nil {
		return err
	}

	title := sop.Meta.Title
	if title == "" {
		title = sop.ID()
	}
	fileName := github.GistFilename(sop.ID() + ".json")
	gist := &github.Gist{
		Description: github.String("SOP: " + title),
		Files: map[github.GistFilename]github.GistFile{
			fileName: {Content: github.String(string(content))},
		},
	}

	if gistID, ok := ids[sop.ID()]; ok {
		_, resp, err := g.client.Gists.Edit(ctx, gistID, gist)
		if err == nil {
			return nil
		}
		if statusOf(resp) != http.StatusNotFound {
			return newError(KindGist, "save", statusOf(resp), err)
		}
		// gist deleted remotely; recreate below
	}

	gist.Public = github.Bool(false)
	created, resp, err := g.client.Gists.Create(ctx, gist)
	if err != nil {
		return newError(KindGist, "save", statusOf(resp), err)
	}
	ids[sop.ID()] = created.GetID()
	return g.writeMap(ctx, ids)
}

func (g *Gist) Delete(ctx context.Context, sopID string) error {
	if !g.IsAvailable() {
		return newError(KindGist, "delete", 0, ErrConfiguration)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	ids, err := g.readMap(ctx)
	if err != nil {
		return err
	}
	gistID, ok := ids[sopID]
	if !ok {
		return nil
	}
	resp, err := g.client.Gists.Delete(ctx, gistID)
	if err != nil && statusOf(resp) != http.StatusNotFound {
		return newError(KindGist, "delete", statusOf(resp), err)
	}
	delete(ids, sopID)
	return g.writeMap(ctx, ids)
}

// GistIDs returns a copy of the sopId -> gist id map.
func (g *Gist) GistIDs(ctx context.Context) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.readMap(ctx)
}

func (g *Gist) readMap(ctx context.Context) (map[string]string, error) {
	ids := make(map[string]string)
	data, ok, err := g.state.Get(ctx, GistMapKey)
	if err != nil {
		return nil, newError(KindGist, "read map", 0, err)
	}
	if !ok {
		return ids, nil
	}
	if err := json.Unmarshal(data, &ids); err != nil {
		return make(map[string]string), nil
	}
	return ids, nil
}

func (g *Gist) writeMap(ctx context.Context, ids map[string]string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal gist map: %w", err)
	}
	if err := g.state.Put(ctx, GistMapKey, data); err != nil {
		return newError(KindGist, "write map", 0, err)
	}
	return nil
}
