package config

import (
	"os"
	"time"

	"github.com/recorpproduction-prog/camcapprod/model"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	SharedAPI SharedAPIConfig `yaml:"shared_api"`
	Drive     DriveConfig     `yaml:"drive"`
	GitHub    GitHubConfig    `yaml:"github"`
	Gist      GistConfig      `yaml:"gist"`
	Storage   StorageConfig   `yaml:"storage"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Mail      MailConfig      `yaml:"mail"`
	Capture   CaptureConfig   `yaml:"capture"`
	Auth      AuthConfig      `yaml:"auth"`
	Users     []User          `yaml:"users"`
}

type ServerConfig struct {
	Port          int           `yaml:"port"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects the local state store (the browser's localStorage equivalent)
type StoreConfig struct {
	Driver        string `yaml:"driver"` // memory, sqlite, postgres
	Path          string `yaml:"path"`
	DSN           string `yaml:"dsn"`
	QuotaBytes    int    `yaml:"quota_bytes"`
	ExportHistory int    `yaml:"export_history"`
}

type SharedAPIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type DriveConfig struct {
	ClientID       string    `yaml:"client_id"`
	ClientSecret   string    `yaml:"client_secret"`
	APIKey         string    `yaml:"api_key"`
	FolderID       string    `yaml:"folder_id"`
	AccessToken    string    `yaml:"access_token"`
	RefreshToken   string    `yaml:"refresh_token"`
	TokenExpiresAt time.Time `yaml:"token_expires_at"`
	Endpoint       string    `yaml:"endpoint"`
}

type GitHubConfig struct {
	Token   string `yaml:"token"`
	Owner   string `yaml:"owner"`
	Repo    string `yaml:"repo"`
	Branch  string `yaml:"branch"`
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
}

type GistConfig struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"`
}

// StorageConfig lists remote backends tried after shared API and Drive
type StorageConfig struct {
	Fallbacks []string `yaml:"fallbacks"` // github, gist
}

// ArchiveConfig configures where exported PDFs are archived
type ArchiveConfig struct {
	Driver     string `yaml:"driver"` // "", minio, s3
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	Region     string `yaml:"region"`
	UseSSL     bool   `yaml:"use_ssl"`
	PathStyle  bool   `yaml:"path_style"`
	ExpireDays int    `yaml:"expire_days"`
}

type MailConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	From           string `yaml:"from"`
	HoldingAddress string `yaml:"holding_address"`
	LogoPath       string `yaml:"logo_path"`
}

type CaptureConfig struct {
	SharpnessThreshold float64       `yaml:"sharpness_threshold"`
	TextDensityMin     float64       `yaml:"text_density_min"`
	EdgeDelta          float64       `yaml:"edge_delta"`
	Cooldown           time.Duration `yaml:"cooldown"`
	MaxFrameWidth      int           `yaml:"max_frame_width"`
	IngestURL          string        `yaml:"ingest_url"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Role     string `yaml:"role"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ProbeInterval == 0 {
		c.Server.ProbeInterval = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Path == "" {
		c.Store.Path = "camcapprod.db"
	}
	if c.Store.QuotaBytes == 0 {
		c.Store.QuotaBytes = 5 << 20
	}
	if c.Store.ExportHistory == 0 {
		c.Store.ExportHistory = 50
	}
	if c.SharedAPI.Timeout == 0 {
		c.SharedAPI.Timeout = 15 * time.Second
	}
	if c.GitHub.Branch == "" {
		c.GitHub.Branch = "main"
	}
	if c.GitHub.Dir == "" {
		c.GitHub.Dir = "sops"
	}
	if c.Archive.ExpireDays == 0 {
		c.Archive.ExpireDays = 7
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.Capture.SharpnessThreshold == 0 {
		c.Capture.SharpnessThreshold = 50
	}
	if c.Capture.TextDensityMin == 0 {
		c.Capture.TextDensityMin = 0.1
	}
	if c.Capture.EdgeDelta == 0 {
		c.Capture.EdgeDelta = 30
	}
	if c.Capture.Cooldown == 0 {
		c.Capture.Cooldown = 30 * time.Second
	}
	if c.Capture.MaxFrameWidth == 0 {
		c.Capture.MaxFrameWidth = 1280
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}

// Directory returns the configured users as registered SOP users
func (c *Config) Directory() []model.User {
	users := make([]model.User, 0, len(c.Users))
	for _, u := range c.Users {
		name := u.Name
		if name == "" {
			name = u.Username
		}
		users = append(users, model.User{Name: name, Email: u.Email, Role: u.Role})
	}
	return users
}
