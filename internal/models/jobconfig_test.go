package models

import (
	"encoding/json"
	"testing"
)

func TestEncodeDecodeJobConfigJoin(t *testing.T) {
	cfg := JoinConfig{FileIDs: []int64{10, 20}, ReEncode: false}
	b, err := EncodeJobConfig(cfg)
	if err != nil {
		t.Fatalf("EncodeJobConfig: %v", err)
	}

	var env configEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != JobTypeJoin {
		t.Fatalf("envelope type = %s, want JOIN", env.Type)
	}

	decoded, err := DecodeJobConfig(b)
	if err != nil {
		t.Fatalf("DecodeJobConfig: %v", err)
	}
	got, ok := decoded.(JoinConfig)
	if !ok {
		t.Fatalf("decoded type = %T", decoded)
	}
	if len(got.FileIDs) != 2 || got.FileIDs[1] != 20 {
		t.Errorf("FileIDs = %v", got.FileIDs)
	}
}

func TestDecodeJobConfigUnknownType(t *testing.T) {
	b := []byte(`{"type":"NOT_A_TYPE","data":{}}`)
	if _, err := DecodeJobConfig(b); err == nil {
		t.Fatal("expected error for unknown job type")
	}
}

func TestDecodeCombinedNestedOperations(t *testing.T) {
	raw := []byte(`{
		"type": "COMBINED",
		"data": {
			"base_file_id": 1,
			"operations": [
				{"type": "JOIN", "config": {"file_ids": [1, 2]}},
				{"type": "TEXT_OVERLAY", "config": {
					"video_file_id": 1,
					"text": "hi",
					"position": {"type": "absolute", "x": 0, "y": 0},
					"style": {"font_family": "Arial", "font_size": 24, "color": "#FFFFFF", "alpha": 1},
					"opacity": 1,
					"start_time": 0
				}}
			]
		}
	}`)

	decoded, err := DecodeJobConfig(raw)
	if err != nil {
		t.Fatalf("DecodeJobConfig: %v", err)
	}
	combined, ok := decoded.(CombinedConfig)
	if !ok {
		t.Fatalf("decoded type = %T, want CombinedConfig", decoded)
	}
	if combined.BaseFileID != 1 {
		t.Errorf("BaseFileID = %d, want 1", combined.BaseFileID)
	}
	if len(combined.Operations) != 2 {
		t.Fatalf("len(Operations) = %d, want 2", len(combined.Operations))
	}
	if combined.Operations[0].OpType != JobTypeJoin {
		t.Errorf("Operations[0].OpType = %s, want JOIN", combined.Operations[0].OpType)
	}
	if _, ok := combined.Operations[0].Config.(JoinConfig); !ok {
		t.Errorf("Operations[0].Config type = %T, want JoinConfig", combined.Operations[0].Config)
	}
	if combined.Operations[1].OpType != JobTypeTextOverlay {
		t.Errorf("Operations[1].OpType = %s, want TEXT_OVERLAY", combined.Operations[1].OpType)
	}
}

func TestJobConfigColumnValueScanRoundTrip(t *testing.T) {
	col := jobConfigColumn{Config: AudioOverlayConfig{VideoFileID: 1, AudioFileID: 2, Mode: "mix"}}
	v, err := col.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var out jobConfigColumn
	if err := out.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	got, ok := out.Config.(AudioOverlayConfig)
	if !ok {
		t.Fatalf("Config type = %T", out.Config)
	}
	if got.Mode != "mix" || got.VideoFileID != 1 {
		t.Errorf("got = %+v", got)
	}
}
