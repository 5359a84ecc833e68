package parse

import "testing"

func TestSRTParsesBasicCues(t *testing.T) {
	content := "1\n00:00:01,000 --> 00:00:04,500\nHello world\n\n2\n00:00:05,000 --> 00:00:07,250\nSecond line\n"
	cues, err := SRT(content)
	if err != nil {
		t.Fatalf("SRT: %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("len(cues) = %d, want 2", len(cues))
	}
	if cues[0].Start != 1 || cues[0].End != 4.5 {
		t.Errorf("cues[0] = %+v", cues[0])
	}
	if cues[0].Text != "Hello world" {
		t.Errorf("cues[0].Text = %q", cues[0].Text)
	}
}

func TestSRTNoCuesIsValidationError(t *testing.T) {
	_, err := SRT("not subtitles at all")
	if err == nil {
		t.Fatal("expected validation error for empty cue list")
	}
}

func TestVTTIgnoresPreambleAndParsesCues(t *testing.T) {
	content := "WEBVTT\n\n00:00:01.000 --> 00:00:02.500\nFirst\n\n00:00:03.000 --> 00:00:04.000\nSecond\n"
	cues, err := VTT(content)
	if err != nil {
		t.Fatalf("VTT: %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("len(cues) = %d, want 2", len(cues))
	}
	if cues[0].Start != 1 || cues[0].End != 2.5 {
		t.Errorf("cues[0] = %+v", cues[0])
	}
}

func TestASSTextAfterNinthCommaMayContainCommas(t *testing.T) {
	content := "[Events]\nFormat: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n" +
		"Dialogue: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,Hello, world, with commas\n"
	cues, err := ASS(content)
	if err != nil {
		t.Fatalf("ASS: %v", err)
	}
	if len(cues) != 1 {
		t.Fatalf("len(cues) = %d, want 1", len(cues))
	}
	if cues[0].Text != "Hello, world, with commas" {
		t.Errorf("cues[0].Text = %q, want commas preserved", cues[0].Text)
	}
	if cues[0].Style != "Default" {
		t.Errorf("cues[0].Style = %q, want Default", cues[0].Style)
	}
}

func TestASSIgnoresNonDialogueLinesOutsideEvents(t *testing.T) {
	content := "[Script Info]\nTitle: test\n\n[Events]\nFormat: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n" +
		"Comment: 0,0:00:00.00,0:00:01.00,Default,,0,0,0,,not a dialogue line\n" +
		"Dialogue: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,actual cue\n"
	cues, err := ASS(content)
	if err != nil {
		t.Fatalf("ASS: %v", err)
	}
	if len(cues) != 1 {
		t.Fatalf("len(cues) = %d, want 1 (Comment line should be skipped)", len(cues))
	}
	if cues[0].Text != "actual cue" {
		t.Errorf("cues[0].Text = %q", cues[0].Text)
	}
}

func TestFormatDispatchesByName(t *testing.T) {
	if _, err := Format("srt", "1\n00:00:01,000 --> 00:00:02,000\nhi\n"); err != nil {
		t.Errorf("Format(srt): %v", err)
	}
	if _, err := Format("unknown", "anything"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestRenderSRTRoundTrip(t *testing.T) {
	cues := []Cue{{Start: 1.5, End: 3, Text: "hi"}}
	rendered := RenderSRT(cues)
	parsed, err := SRT(rendered)
	if err != nil {
		t.Fatalf("SRT(rendered): %v", err)
	}
	if len(parsed) != 1 || parsed[0].Text != "hi" {
		t.Errorf("round-tripped cues = %+v", parsed)
	}
	if parsed[0].Start != 1.5 || parsed[0].End != 3 {
		t.Errorf("round-tripped timings = %+v", parsed[0])
	}
}
