// Package models holds the persisted record types shared across
// repositories, the dispatcher, and the processors: assets, jobs, and their
// structured sub-payloads.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ProbeResult is the structured metadata returned by the command builder's
// probe invocation and cached under the probe-cache keyspace.
type ProbeResult struct {
	Duration   float64       `json:"duration"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	FrameRate  float64       `json:"frame_rate"`
	VideoCodec string        `json:"video_codec"`
	AudioCodec string        `json:"audio_codec"`
	Bitrate    int64         `json:"bitrate"`
	Streams    []ProbeStream `json:"streams"`
}

// ProbeStream describes one demuxed stream reported by the probe tool.
type ProbeStream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"` // "video", "audio", "subtitle"
	CodecName string `json:"codec_name"`
}

// HasStream reports whether the probe found at least one stream of kind.
func (p ProbeResult) HasStream(kind string) bool {
	for _, s := range p.Streams {
		if s.CodecType == kind {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer so ProbeResult can be stored as JSONB.
func (p ProbeResult) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *ProbeResult) Scan(src any) error {
	if src == nil {
		*p = ProbeResult{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("models: ProbeResult.Scan: unsupported type %T", src)
	}
	return json.Unmarshal(b, p)
}

// Asset represents one stored binary: the source media files fed into jobs
// and the artifacts jobs produce.
type Asset struct {
	ID             int64        `db:"id" json:"id"`
	OwnerID        int64        `db:"owner_id" json:"owner_id"`
	DisplayName    string       `db:"display_name" json:"display_name"`
	ObjectName     string       `db:"object_name" json:"object_name"`
	SizeBytes      int64        `db:"size_bytes" json:"size_bytes"`
	MediaType      string       `db:"media_type" json:"media_type"`
	ProbeMetadata  *ProbeResult `db:"probe_metadata" json:"probe_metadata,omitempty"`
	IsDeleted      bool         `db:"is_deleted" json:"is_deleted"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}
