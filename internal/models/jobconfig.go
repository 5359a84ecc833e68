package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// unmarshalStrict decodes data into v, rejecting any field data carries
// that v doesn't declare, per spec.md §6.3.
func unmarshalStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// JobType enumerates the six processing operations a Job may carry.
type JobType string

const (
	JobTypeJoin         JobType = "JOIN"
	JobTypeAudioOverlay JobType = "AUDIO_OVERLAY"
	JobTypeTextOverlay  JobType = "TEXT_OVERLAY"
	JobTypeSubtitles    JobType = "SUBTITLES"
	JobTypeVideoOverlay JobType = "VIDEO_OVERLAY"
	JobTypeCombined     JobType = "COMBINED"
)

// JobConfig is the tagged-union of per-type configuration payloads. Each
// concrete type reports its own JobType so the envelope can round-trip
// through JSONB without a second lookup table.
type JobConfig interface {
	Type() JobType
}

// JoinConfig backs JOIN jobs: concatenate 2+ clips with matching geometry.
type JoinConfig struct {
	FileIDs        []int64 `json:"file_ids" validate:"required,min=2"`
	OutputFilename string  `json:"output_filename,omitempty"`
	ReEncode       bool    `json:"re_encode,omitempty"`
}

func (JoinConfig) Type() JobType { return JobTypeJoin }

// AudioOverlayConfig backs AUDIO_OVERLAY jobs.
type AudioOverlayConfig struct {
	VideoFileID    int64   `json:"video_file_id" validate:"required"`
	AudioFileID    int64   `json:"audio_file_id" validate:"required"`
	Mode           string  `json:"mode" validate:"required,oneof=replace mix"`
	Offset         float64 `json:"offset,omitempty" validate:"gte=0"`
	Duration       float64 `json:"duration,omitempty" validate:"omitempty,gt=0"`
	OriginalVolume float64 `json:"original_volume,omitempty" validate:"gte=0,lte=2"`
	OverlayVolume  float64 `json:"overlay_volume,omitempty" validate:"gte=0,lte=2"`
}

func (AudioOverlayConfig) Type() JobType { return JobTypeAudioOverlay }

// TextPosition is either an absolute pixel coordinate or one of nine
// named anchors with margins.
type TextPosition struct {
	Type     string `json:"type" validate:"required,oneof=absolute relative"`
	X        int    `json:"x,omitempty"`
	Y        int    `json:"y,omitempty"`
	Anchor   string `json:"position,omitempty" validate:"omitempty,oneof=top-left top-center top-right center-left center center-right bottom-left bottom-center bottom-right"`
	MarginX  int    `json:"margin_x,omitempty"`
	MarginY  int    `json:"margin_y,omitempty"`
}

// TextStyle describes font rendering for a text overlay.
type TextStyle struct {
	FontFamily string  `json:"font_family" validate:"required"`
	FontSize   int     `json:"font_size" validate:"required,gte=8,lte=200"`
	FontWeight string  `json:"font_weight,omitempty"`
	Color      string  `json:"color" validate:"required"`
	Alpha      float64 `json:"alpha" validate:"gte=0,lte=1"`
}

// BackgroundBox is the optional box drawn behind overlay text.
type BackgroundBox struct {
	Color   string  `json:"color" validate:"required"`
	Alpha   float64 `json:"alpha" validate:"gte=0,lte=1"`
	Padding int     `json:"padding,omitempty"`
	Radius  int     `json:"radius,omitempty"`
}

// Outline is the optional stroke drawn around overlay text.
type Outline struct {
	Width int    `json:"width" validate:"required,gt=0"`
	Color string `json:"color" validate:"required"`
}

// Shadow is the optional drop shadow shared by text and video overlays.
type Shadow struct {
	OffsetX int     `json:"offset_x,omitempty"`
	OffsetY int     `json:"offset_y,omitempty"`
	Blur    int     `json:"blur,omitempty"`
	Color   string  `json:"color,omitempty"`
}

// Animation describes an optional text entrance/exit effect.
type Animation struct {
	Kind     string  `json:"kind" validate:"required,oneof=none fade-in fade-out fade slide-left slide-right slide-up slide-down zoom-in zoom-out"`
	Duration float64 `json:"duration" validate:"gte=0"`
	Delay    float64 `json:"delay,omitempty" validate:"gte=0"`
}

// TextOverlayConfig backs TEXT_OVERLAY jobs.
type TextOverlayConfig struct {
	VideoFileID int64          `json:"video_file_id" validate:"required"`
	Text        string         `json:"text" validate:"required,min=1,max=1000"`
	Position    TextPosition   `json:"position" validate:"required"`
	Style       TextStyle      `json:"style" validate:"required"`
	Background  *BackgroundBox `json:"background,omitempty"`
	Border      *Outline       `json:"border,omitempty"`
	Shadow      *Shadow        `json:"shadow,omitempty"`
	Animation   *Animation     `json:"animation,omitempty"`
	Rotation    float64        `json:"rotation,omitempty" validate:"gte=-360,lte=360"`
	Opacity     float64        `json:"opacity" validate:"gte=0,lte=1"`
	StartTime   float64        `json:"start_time" validate:"gte=0"`
	EndTime     float64        `json:"end_time,omitempty" validate:"omitempty,gtfield=StartTime"`
}

func (TextOverlayConfig) Type() JobType { return JobTypeTextOverlay }

// SubtitleCue is one entry of an inline cue list, or the parsed form of a
// subtitle asset, per the canonical cue model.
type SubtitleCue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Layer int     `json:"layer,omitempty"`
	Style string  `json:"style,omitempty"`
}

// SubtitlesConfig backs SUBTITLES jobs. Exactly one of SubtitleFileID or
// SubtitleText must be set.
type SubtitlesConfig struct {
	VideoFileID    int64         `json:"video_file_id" validate:"required"`
	SubtitleFileID int64         `json:"subtitle_file_id,omitempty"`
	SubtitleText   []SubtitleCue `json:"subtitle_text,omitempty"`
	Format         string        `json:"format" validate:"required,oneof=SRT VTT ASS SSA"`
	Style          *TextStyle    `json:"style,omitempty"`
	Position       *TextPosition `json:"position,omitempty"`
}

func (SubtitlesConfig) Type() JobType { return JobTypeSubtitles }

// VideoOverlayInner is the geometry/shape block for a picture-in-picture
// overlay, nested under VideoOverlayConfig.Config per §6.3.
type VideoOverlayInner struct {
	X            int     `json:"x"`
	Y            int     `json:"y"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	Scale        float64 `json:"scale,omitempty" validate:"omitempty,gt=0,lte=1"`
	Opacity      float64 `json:"opacity" validate:"gte=0,lte=1"`
	Shape        string  `json:"shape" validate:"required,oneof=rectangle circle rounded"`
	BorderRadius int     `json:"border_radius,omitempty"`
}

// VideoOverlayConfig backs VIDEO_OVERLAY jobs.
type VideoOverlayConfig struct {
	BaseVideoFileID    int64             `json:"base_video_file_id" validate:"required"`
	OverlayVideoFileID int64             `json:"overlay_video_file_id" validate:"required"`
	Config             VideoOverlayInner `json:"config" validate:"required"`
	Border             *Outline          `json:"border,omitempty"`
	Shadow             *Shadow           `json:"shadow,omitempty"`
	StartTime          float64           `json:"start_time,omitempty" validate:"gte=0"`
	EndTime            float64           `json:"end_time,omitempty"`
}

func (VideoOverlayConfig) Type() JobType { return JobTypeVideoOverlay }

// CombinedOperation is one stage of a Combined job's pipeline: any of the
// five non-combined types plus its own config payload.
type CombinedOperation struct {
	OpType JobType         `json:"type" validate:"required,oneof=JOIN AUDIO_OVERLAY TEXT_OVERLAY SUBTITLES VIDEO_OVERLAY"`
	Config JobConfig       `json:"config" validate:"required"`
	raw    json.RawMessage `json:"-"`
}

// CombinedConfig backs COMBINED jobs: a seed asset plus 2..10 chained
// operations, driven by the pipeline runner.
type CombinedConfig struct {
	BaseFileID int64               `json:"base_file_id" validate:"required"`
	Operations []CombinedOperation `json:"operations" validate:"required,min=2,max=10,dive"`
}

func (CombinedConfig) Type() JobType { return JobTypeCombined }

// configEnvelope is the on-the-wire/on-disk shape of a JobConfig: a type
// discriminant alongside the raw payload, decoded into the matching
// concrete struct.
type configEnvelope struct {
	Type JobType         `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeJobConfig wraps a concrete JobConfig in its envelope and marshals it,
// the form stored in the jobs table's config JSONB column.
func EncodeJobConfig(cfg JobConfig) ([]byte, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("models: encode job config: %w", err)
	}
	return json.Marshal(configEnvelope{Type: cfg.Type(), Data: data})
}

// DecodeJobConfig reverses EncodeJobConfig, dispatching on the envelope's
// type discriminant to the matching concrete struct.
func DecodeJobConfig(b []byte) (JobConfig, error) {
	var env configEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("models: decode job config envelope: %w", err)
	}
	switch env.Type {
	case JobTypeJoin:
		var c JoinConfig
		if err := unmarshalStrict(env.Data, &c); err != nil {
			return nil, err
		}
		return c, nil
	case JobTypeAudioOverlay:
		var c AudioOverlayConfig
		if err := unmarshalStrict(env.Data, &c); err != nil {
			return nil, err
		}
		return c, nil
	case JobTypeTextOverlay:
		var c TextOverlayConfig
		if err := unmarshalStrict(env.Data, &c); err != nil {
			return nil, err
		}
		return c, nil
	case JobTypeSubtitles:
		var c SubtitlesConfig
		if err := unmarshalStrict(env.Data, &c); err != nil {
			return nil, err
		}
		return c, nil
	case JobTypeVideoOverlay:
		var c VideoOverlayConfig
		if err := unmarshalStrict(env.Data, &c); err != nil {
			return nil, err
		}
		return c, nil
	case JobTypeCombined:
		c, err := decodeCombined(env.Data)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("models: unknown job type %q", env.Type)
	}
}

func decodeCombined(raw json.RawMessage) (CombinedConfig, error) {
	var shallow struct {
		BaseFileID int64             `json:"base_file_id"`
		Operations []json.RawMessage `json:"operations"`
	}
	if err := unmarshalStrict(raw, &shallow); err != nil {
		return CombinedConfig{}, err
	}
	out := CombinedConfig{BaseFileID: shallow.BaseFileID}
	for _, opRaw := range shallow.Operations {
		var head struct {
			Type   JobType         `json:"type"`
			Config json.RawMessage `json:"config"`
		}
		if err := unmarshalStrict(opRaw, &head); err != nil {
			return CombinedConfig{}, err
		}
		inner, err := DecodeJobConfig(mustEnvelope(head.Type, head.Config))
		if err != nil {
			return CombinedConfig{}, fmt.Errorf("models: combined operation %s: %w", head.Type, err)
		}
		out.Operations = append(out.Operations, CombinedOperation{OpType: head.Type, Config: inner})
	}
	return out, nil
}

func mustEnvelope(t JobType, data json.RawMessage) []byte {
	b, _ := json.Marshal(configEnvelope{Type: t, Data: data})
	return b
}

// jobConfigColumn adapts JobConfig to database/sql for storage in a JSONB
// column, giving a concrete Valuer/Scanner in place of the bare interface.
// Job itself stores the encoded config as ConfigRaw bytes.
type jobConfigColumn struct {
	Config JobConfig
}

func (c jobConfigColumn) Value() (driver.Value, error) {
	if c.Config == nil {
		return nil, nil
	}
	return EncodeJobConfig(c.Config)
}

func (c *jobConfigColumn) Scan(src any) error {
	if src == nil {
		c.Config = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("models: jobConfigColumn.Scan: unsupported type %T", src)
	}
	cfg, err := DecodeJobConfig(b)
	if err != nil {
		return err
	}
	c.Config = cfg
	return nil
}
