package storage

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// CurrentVersion is the schema version written by Save.
// Documents without a version field are legacy (version 0) and are upgraded on load.
const CurrentVersion = 1

// naiveLayout is the legacy timestamp format: local wall time without an offset.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// Document is the persisted bot state. Field names match the legacy file so
// an existing state file loads unchanged.
type Document struct {
	SavedAt             time.Time         `json:"saved_at,omitzero"`
	CelebList           map[string]string `json:"celeb_list"`
	BdList              map[string]string `json:"bd_list"`
	Token               string            `json:"token"`
	Host                string            `json:"host,omitempty"`
	AntennaID           string            `json:"antenna_id"`
	Admin               string            `json:"admin"`
	TargetReaction      string            `json:"target_reaction"`
	NotificationSinceID string            `json:"notification_since_id"`
	Responded           []string          `json:"responded"`
	RefreshRate         float64           `json:"refresh_rate,omitempty"` // Seconds
	Version             int               `json:"version"`
	Threshold           int               `json:"threshold"`
	BatchSize           int               `json:"batch_size,omitempty"`
}

// NewDocument returns an empty document at the current version.
func NewDocument() *Document {
	return &Document{
		Version:   CurrentVersion,
		CelebList: make(map[string]string),
		BdList:    make(map[string]string),
		Responded: []string{},
	}
}

// Decode parses a document and upgrades it to the current version.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	if doc.Version > CurrentVersion {
		return nil, fmt.Errorf("unsupported document version %d", doc.Version)
	}
	doc.upgrade()
	return &doc, nil
}

// Encode serializes the document in the current schema.
func (d *Document) Encode() ([]byte, error) {
	d.upgrade()
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return data, nil
}

// upgrade fills fields a legacy or partial document may lack.
func (d *Document) upgrade() {
	if d.CelebList == nil {
		d.CelebList = make(map[string]string)
	}
	if d.BdList == nil {
		d.BdList = make(map[string]string)
	}
	if d.Responded == nil {
		d.Responded = []string{}
	}
	d.Version = CurrentVersion
}

// Celebrations returns the celebration record with parsed timestamps.
// Legacy timestamps without an offset are read as wall time in loc.
// Entries that cannot be parsed are reported by handle and left out.
func (d *Document) Celebrations(loc *time.Location) (map[string]time.Time, []string) {
	out := make(map[string]time.Time, len(d.CelebList))
	var bad []string
	for handle, raw := range d.CelebList {
		t, err := ParseTimestamp(raw, loc)
		if err != nil {
			bad = append(bad, handle)
			continue
		}
		out[handle] = t
	}
	return out, bad
}

// SetCelebrations stores the celebration record as RFC 3339 timestamps.
func (d *Document) SetCelebrations(entries map[string]time.Time) {
	d.CelebList = make(map[string]string, len(entries))
	for handle, t := range entries {
		d.CelebList[handle] = t.Format(time.RFC3339Nano)
	}
}

// Subscribers returns a copy of the subscriber record.
func (d *Document) Subscribers() map[string]string {
	return maps.Clone(d.BdList)
}

// ParseTimestamp accepts RFC 3339 and the legacy naive ISO format, which is
// interpreted as wall time in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(naiveLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
