package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/recorpproduction-prog/camcapprod/config"
	"github.com/recorpproduction-prog/camcapprod/model"
)

// Archive stores exported PDFs and returns a link to the stored copy. Every
// PDF of a record lives under the "<sopId>/" prefix.
type Archive interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	// DeletePrefix removes every object whose name starts with prefix and
	// returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// NewArchive builds the archive named by cfg.Driver. An empty driver
// disables archiving and returns nil.
func NewArchive(ctx context.Context, cfg *config.ArchiveConfig) (Archive, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case "minio":
		svc, err := NewMinioArchive(cfg)
		if err != nil {
			return nil, err
		}
		if err := svc.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return svc, nil
	case "s3":
		return NewS3Archive(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}

// archiveObjectName is "<sopId>/<sopId>-v<version>-<unix>.pdf".
func archiveObjectName(sop *model.SOP, at time.Time) string {
	id := sanitizeObjectPart(sop.ID())
	version := sanitizeObjectPart(sop.Meta.Version)
	if version == "" {
		version = "0"
	}
	return path.Join(id, fmt.Sprintf("%s-v%s-%d.pdf", id, version, at.Unix()))
}

// archivePrefix is the folder holding every archived PDF of a record.
func archivePrefix(sopID string) string {
	return sanitizeObjectPart(sopID) + "/"
}

func sanitizeObjectPart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

func expiryDays(days int) time.Duration {
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}
