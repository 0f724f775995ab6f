package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/recorpproduction-prog/camcapprod/pkg/logger"
	"github.com/recorpproduction-prog/camcapprod/service"
	"github.com/recorpproduction-prog/camcapprod/storage"
)

// SettingsHandler reconfigures storage backends at runtime. The active
// backend is recomputed on the next call, so a change takes effect at once.
type SettingsHandler struct {
	shared *storage.SharedAPI
	drive  *storage.Drive
	github *storage.GitHubRepo
	gist   *storage.Gist
	users  *service.UserDirectory
	conn   *service.Connection
}

// Backends groups the configurable adapters. Any may be nil.
type Backends struct {
	SharedAPI *storage.SharedAPI
	Drive     *storage.Drive
	GitHub    *storage.GitHubRepo
	Gist      *storage.Gist
}

func NewSettingsHandler(b Backends, users *service.UserDirectory, conn *service.Connection) *SettingsHandler {
	return &SettingsHandler{
		shared: b.SharedAPI,
		drive:  b.Drive,
		github: b.GitHub,
		gist:   b.Gist,
		users:  users,
		conn:   conn,
	}
}

type sharedAPISettings struct {
	BaseURL        string `json:"baseUrl"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type driveSettings struct {
	ClientID     string    `json:"clientId"`
	ClientSecret string    `json:"clientSecret"`
	APIKey       string    `json:"apiKey"`
	FolderID     string    `json:"folderId"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Expiry       time.Time `json:"expiry"`
}

type githubSettings struct {
	Token  string `json:"token"`
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
	Dir    string `json:"dir"`
}

type gistSettings struct {
	Token string `json:"token"`
}

// Update applies settings for :backend (shared-api, drive, github, gist)
// and probes the resulting active backend.
func (h *SettingsHandler) Update(c *gin.Context) {
	backend := c.Param("backend")
	ctx := c.Request.Context()
	if !h.enabled(backend) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown backend " + backend})
		return
	}

	var err error
	switch backend {
	case "shared-api":
		var s sharedAPISettings
		if err = c.ShouldBindJSON(&s); err == nil {
			cfg := h.shared.Config()
			cfg.BaseURL = s.BaseURL
			if s.TimeoutSeconds > 0 {
				cfg.Timeout = time.Duration(s.TimeoutSeconds) * time.Second
			}
			h.shared.Configure(cfg)
			h.users.Invalidate()
		}
	case "drive":
		var s driveSettings
		if err = c.ShouldBindJSON(&s); err == nil {
			cfg := h.drive.Config()
			cfg.ClientID = s.ClientID
			cfg.ClientSecret = s.ClientSecret
			cfg.APIKey = s.APIKey
			cfg.FolderID = s.FolderID
			cfg.AccessToken = s.AccessToken
			cfg.RefreshToken = s.RefreshToken
			cfg.Expiry = s.Expiry
			h.drive.Configure(cfg)
		}
	case "github":
		var s githubSettings
		if err = c.ShouldBindJSON(&s); err == nil {
			cfg := h.github.Config()
			cfg.Token, cfg.Owner, cfg.Repo = s.Token, s.Owner, s.Repo
			cfg.Branch, cfg.Dir = s.Branch, s.Dir
			err = h.github.Configure(cfg)
		}
	case "gist":
		var s gistSettings
		if err = c.ShouldBindJSON(&s); err == nil {
			cfg := h.gist.Config()
			cfg.Token = s.Token
			err = h.gist.Configure(cfg)
		}
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid settings: " + err.Error()})
		return
	}

	state := h.conn.Probe(ctx)
	logger.Info(ctx, "storage settings updated", "backend", backend, "active", state.Backend, "reachable", state.Reachable)
	c.JSON(http.StatusOK, gin.H{
		"backend":    backend,
		"connection": connectionResponse{ConnectionState: state, Banner: state.Banner()},
	})
}

func (h *SettingsHandler) enabled(backend string) bool {
	switch backend {
	case "shared-api":
		return h.shared != nil
	case "drive":
		return h.drive != nil
	case "github":
		return h.github != nil
	case "gist":
		return h.gist != nil
	}
	return false
}
