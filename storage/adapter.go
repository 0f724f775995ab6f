// Package storage holds the SOP storage backends. Every backend implements
// Adapter with the same contract: LoadAll distinguishes an empty store from an
// unreachable one, Save upserts by sopId and stamps savedAt, Delete is
// idempotent.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/recorpproduction-prog/camcapprod/model"
)

// Kind names a backend.
type Kind string

const (
	KindLocal     Kind = "local"
	KindSharedAPI Kind = "shared-api"
	KindDrive     Kind = "drive"
	KindGitHub    Kind = "github"
	KindGist      Kind = "gist"
)

// Records maps sopId to record.
type Records map[string]*model.SOP

// Adapter is a single SOP store.
type Adapter interface {
	Kind() Kind
	IsAvailable() bool
	LoadAll(ctx context.Context) (Records, error)
	Save(ctx context.Context, sop *model.SOP) error
	Delete(ctx context.Context, sopID string) error
}

var timeNow = time.Now

// stamp assigns a fallback id when the record has none and refreshes savedAt.
func stamp(sop *model.SOP) {
	now := timeNow().UTC()
	if sop.Meta == nil {
		sop.Meta = &model.Meta{}
	}
	if sop.Meta.SOPID == "" {
		sop.Meta.SOPID = model.FallbackSOPID(now)
	}
	sop.SavedAt = now
}

// decodeRecord parses one stored record. Records without meta are rejected;
// any other field that fails to decode is left at its zero value.
func decodeRecord(data []byte) (*model.SOP, bool) {
	var sop model.SOP
	if err := json.Unmarshal(data, &sop); err == nil {
		return &sop, sop.Valid()
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false
	}
	sop = model.SOP{}
	if err := json.Unmarshal(fields["meta"], &sop.Meta); err != nil || !sop.Valid() {
		return nil, false
	}
	for name, raw := range fields {
		if name == "meta" {
			continue
		}
		one, err := json.Marshal(map[string]json.RawMessage{name: raw})
		if err != nil {
			continue
		}
		var field model.SOP
		if err := json.Unmarshal(one, &field); err != nil {
			continue
		}
		mergeField(&sop, &field, name)
	}
	return &sop, true
}

// mergeField copies the single decoded field name from src into dst.
func mergeField(dst, src *model.SOP, name string) {
	switch name {
	case "description":
		dst.Description = src.Description
	case "safety":
		dst.Safety = src.Safety
	case "tools":
		dst.Tools = src.Tools
	case "materials":
		dst.Materials = src.Materials
	case "steps":
		dst.Steps = src.Steps
	case "savedAt":
		dst.SavedAt = src.SavedAt
	}
}

// decodeRecords parses a sopId -> record mapping, dropping malformed entries.
func decodeRecords(raw map[string]json.RawMessage) Records {
	out := make(Records, len(raw))
	for key, data := range raw {
		sop, ok := decodeRecord(data)
		if !ok {
			continue
		}
		id := sop.ID()
		if id == "" {
			id = key
			sop.Meta.SOPID = key
		}
		out[id] = sop
	}
	return out
}
