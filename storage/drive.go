package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/storage/kv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DriveFolderKey is the kv key remembering the SOPs folder id so that a
// restart keeps using the same folder.
const DriveFolderKey = "googleDriveFolderId"

const (
	driveFolderName = "SOPs"
	driveFolderMime = "application/vnd.google-apps.folder"
	driveJSONMime   = "application/json"
)

// DriveConfig holds the OAuth client and the signed-in user's token.
type DriveConfig struct {
	ClientID     string
	ClientSecret string
	APIKey       string
	FolderID     string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Endpoint     string // API root override
}

// Authenticated reports whether the token is usable now or can be refreshed.
func (c DriveConfig) Authenticated() bool {
	if c.AccessToken != "" && (c.Expiry.IsZero() || c.Expiry.After(timeNow())) {
		return true
	}
	return c.RefreshToken != "" && c.ClientID != "" && c.ClientSecret != ""
}

// Drive keeps one <sopId>.json file per SOP inside a SOPs folder. The folder
// id in use is persisted to state, which may be nil.
type Drive struct {
	mu      sync.Mutex
	config  DriveConfig
	service *drive.Service
	options []option.ClientOption
	state   kv.Store
}

// NewDrive builds the adapter. Extra client options are appended to those
// derived from cfg (tests pass an HTTP client here).
func NewDrive(cfg DriveConfig, state kv.Store, opts ...option.ClientOption) *Drive {
	return &Drive{config: cfg, options: opts, state: state}
}

func (d *Drive) Configure(cfg DriveConfig) {
	d.mu.Lock()
	d.config = cfg
	d.service = nil
	d.mu.Unlock()
}

func (d *Drive) Config() DriveConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

func (d *Drive) Kind() Kind { return KindDrive }

func (d *Drive) IsAvailable() bool {
	cfg := d.Config()
	return cfg.ClientID != "" && cfg.APIKey != "" && cfg.Authenticated()
}

func (d *Drive) LoadAll(ctx context.Context) (Records, error) {
	svc, folderID, err := d.prepare(ctx, "load")
	if err != nil {
		return nil, err
	}

	out := make(Records)
	q := fmt.Sprintf("'%s' in parents and trashed = false", folderID)
	err = svc.Files.List().Q(q).Fields("nextPageToken, files(id, name)").Context(ctx).
		Pages(ctx, func(list *drive.FileList) error {
			for _, f := range list.Files {
				if !strings.HasSuffix(f.Name, ".json") {
					continue
				}
				data, err := d.download(ctx, svc, f.Id)
				if err != nil {
					if errors.Is(err, ErrNotFound) {
						continue
					}
					return err
				}
				sop, ok := decodeRecord(data)
				if !ok {
					continue
				}
				id := sop.ID()
				if id == "" {
					id = strings.TrimSuffix(f.Name, ".json")
					sop.Meta.SOPID = id
				}
				out[id] = sop
			}
			return nil
		})
	if err != nil {
		var be *BackendError
		if errors.As(err, &be) {
			return nil, be
		}
		return nil, newError(KindDrive, "load", apiStatus(err), err)
	}
	return out, nil
}

func (d *Drive) Save(ctx context.Context, sop *model.SOP) error {
	svc, folderID, err := d.prepare(ctx, "save")
	if err != nil {
		return err
	}
	stamp(sop)
	content, err := json.MarshalIndent(sop, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	name := sop.ID() + ".json"
	existing, err := d.findFile(ctx, svc, folderID, name)
	if err != nil {
		return err
	}

	media := bytes.NewReader(content)
	if existing != "" {
		_, err = svc.Files.Update(existing, &drive.File{}).
			Media(media, googleapi.ContentType(driveJSONMime)).Context(ctx).Do()
	} else {
		_, err = svc.Files.Create(&drive.File{Name: name, MimeType: driveJSONMime, Parents: []string{folderID}}).
			Media(media, googleapi.ContentType(driveJSONMime)).Context(ctx).Do()
	}
	if err != nil {
		return newError(KindDrive, "save", apiStatus(err), err)
	}
	return nil
}

func (d *Drive) Delete(ctx context.Context, sopID string) error {
	svc, folderID, err := d.prepare(ctx, "delete")
	if err != nil {
		return err
	}
	fileID, err := d.findFile(ctx, svc, folderID, sopID+".json")
	if err != nil || fileID == "" {
		return err
	}
	if err := svc.Files.Delete(fileID).Context(ctx).Do(); err != nil && apiStatus(err) != http.StatusNotFound {
		return newError(KindDrive, "delete", apiStatus(err), err)
	}
	return nil
}

// prepare returns the API service and a verified folder id. The configured
// id is tried first, then the persisted one, then an existing SOPs folder;
// a new folder is created only when none of them is usable.
func (d *Drive) prepare(ctx context.Context, op string) (*drive.Service, string, error) {
	if !d.IsAvailable() {
		return nil, "", newError(KindDrive, op, 0, ErrConfiguration)
	}
	svc, err := d.client(ctx)
	if err != nil {
		return nil, "", newError(KindDrive, op, 0, err)
	}

	stored, err := d.storedFolder(ctx)
	if err != nil {
		return nil, "", newError(KindDrive, op, 0, err)
	}
	for _, id := range []string{d.Config().FolderID, stored} {
		if id == "" {
			continue
		}
		f, err := svc.Files.Get(id).Fields("id, mimeType, trashed").Context(ctx).Do()
		if err == nil && f.MimeType == driveFolderMime && !f.Trashed {
			return svc, f.Id, d.rememberFolder(ctx, op, f.Id, stored)
		}
		if err != nil && apiStatus(err) != http.StatusNotFound {
			return nil, "", newError(KindDrive, op, apiStatus(err), err)
		}
	}

	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", driveFolderName, driveFolderMime)
	list, err := svc.Files.List().Q(q).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return nil, "", newError(KindDrive, op, apiStatus(err), fmt.Errorf("failed to find folder: %w", err))
	}
	if len(list.Files) > 0 {
		return svc, list.Files[0].Id, d.rememberFolder(ctx, op, list.Files[0].Id, stored)
	}

	folder, err := svc.Files.Create(&drive.File{Name: driveFolderName, MimeType: driveFolderMime}).
		Fields("id").Context(ctx).Do()
	if err != nil {
		return nil, "", newError(KindDrive, op, apiStatus(err), fmt.Errorf("failed to create folder: %w", err))
	}
	return svc, folder.Id, d.rememberFolder(ctx, op, folder.Id, stored)
}

func (d *Drive) storedFolder(ctx context.Context) (string, error) {
	if d.state == nil {
		return "", nil
	}
	data, ok, err := d.state.Get(ctx, DriveFolderKey)
	if err != nil || !ok {
		return "", err
	}
	return string(data), nil
}

// rememberFolder keeps id in the config and persists it when it changed.
func (d *Drive) rememberFolder(ctx context.Context, op, id, stored string) error {
	d.mu.Lock()
	d.config.FolderID = id
	d.mu.Unlock()
	if d.state == nil || id == stored {
		return nil
	}
	if err := d.state.Put(ctx, DriveFolderKey, []byte(id)); err != nil {
		return newError(KindDrive, op, 0, fmt.Errorf("failed to persist folder id: %w", err))
	}
	return nil
}

func (d *Drive) client(ctx context.Context) (*drive.Service, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.service != nil {
		return d.service, nil
	}

	oauthCfg := &oauth2.Config{
		ClientID:     d.config.ClientID,
		ClientSecret: d.config.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}
	token := &oauth2.Token{
		AccessToken:  d.config.AccessToken,
		RefreshToken: d.config.RefreshToken,
		Expiry:       d.config.Expiry,
		TokenType:    "Bearer",
	}
	// the service outlives the request, so the token source must not use ctx
	opts := []option.ClientOption{option.WithTokenSource(oauthCfg.TokenSource(context.Background(), token))}
	if d.config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(d.config.Endpoint))
	}
	opts = append(opts, d.options...)

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	d.service = svc
	return svc, nil
}

func (d *Drive) findFile(ctx context.Context, svc *drive.Service, folderID, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeDriveQuery(name), folderID)
	list, err := svc.Files.List().Q(q).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", newError(KindDrive, "find", apiStatus(err), err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func (d *Drive) download(ctx context.Context, svc *drive.Service, fileID string) ([]byte, error) {
	resp, err := svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, newError(KindDrive, "download", apiStatus(err), err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(KindDrive, "download", 0, err)
	}
	return data, nil
}

func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func escapeDriveQuery(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `'`, `\'`)
}
