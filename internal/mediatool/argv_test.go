package mediatool

import "strings"

import "testing"

func TestJoinArgsCopyVsReEncode(t *testing.T) {
	preset := PresetByName("fast")

	copyArgs := JoinArgs("list.txt", "out.mp4", false, preset)
	if !containsAll(copyArgs, "-c", "copy") {
		t.Errorf("stream-copy join should pass -c copy: %v", copyArgs)
	}

	reEncodeArgs := JoinArgs("list.txt", "out.mp4", true, preset)
	if !containsAll(reEncodeArgs, "-c:v", "libx264", "-crf", "23") {
		t.Errorf("re-encode join should pass libx264/crf: %v", reEncodeArgs)
	}
}

func TestAudioOverlayArgsReplaceVsMix(t *testing.T) {
	replace := AudioOverlayArgs("v.mp4", "a.mp3", "out.mp4", AudioOverlaySpec{Mode: "replace"})
	if !containsAll(replace, "-map", "1:a:0") {
		t.Errorf("replace mode should map overlay audio track: %v", replace)
	}

	mix := AudioOverlayArgs("v.mp4", "a.mp3", "out.mp4", AudioOverlaySpec{Mode: "mix", OriginalVolume: 0.5, OverlayVolume: 1})
	joined := strings.Join(mix, " ")
	if !strings.Contains(joined, "amix=inputs=2") {
		t.Errorf("mix mode should build an amix filter: %v", mix)
	}
	if !strings.Contains(joined, "volume=0.500") {
		t.Errorf("mix mode should apply the configured original volume: %v", mix)
	}
}

func TestAudioOverlayArgsOffsetAndDuration(t *testing.T) {
	args := AudioOverlayArgs("v.mp4", "a.mp3", "out.mp4", AudioOverlaySpec{Mode: "replace", Offset: 2.5, Duration: 10})
	if !containsAll(args, "-itsoffset", "2.500") {
		t.Errorf("expected -itsoffset 2.500: %v", args)
	}
	if !containsAll(args, "-t", "10.000") {
		t.Errorf("expected -t 10.000: %v", args)
	}
}

func TestVideoOverlayArgsWithMaskAndOpacity(t *testing.T) {
	args := VideoOverlayArgs("base.mp4", "ov.mp4", "mask.png", "out.mp4", 10, 20, 100, 100, 0.5, PresetByName("balanced"))
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "alphamerge") {
		t.Errorf("mask path should trigger an alphamerge filter: %v", args)
	}
	if !strings.Contains(joined, "colorchannelmixer") {
		t.Errorf("opacity < 1 should trigger a colorchannelmixer filter: %v", args)
	}
	if !strings.Contains(joined, "overlay=10:20") {
		t.Errorf("expected overlay position 10:20: %v", args)
	}
}

func TestVideoOverlayArgsPlainRectangle(t *testing.T) {
	args := VideoOverlayArgs("base.mp4", "ov.mp4", "", "out.mp4", 0, 0, 0, 0, 1, PresetByName("balanced"))
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "alphamerge") {
		t.Errorf("no mask path should not produce an alphamerge filter: %v", args)
	}
	if strings.Contains(joined, "colorchannelmixer") {
		t.Errorf("full opacity should not produce a colorchannelmixer filter: %v", args)
	}
}

func TestEscapeDrawtextEscapesSingleQuotes(t *testing.T) {
	got := EscapeDrawtext("it's a test")
	want := `it\'s a test`
	if got != want {
		t.Errorf("EscapeDrawtext = %q, want %q", got, want)
	}
}

func TestEscapeFilterPathEscapesColonsAndBackslashes(t *testing.T) {
	got := EscapeFilterPath(`C:\subs\file.srt`)
	want := `C\:\\subs\\file.srt`
	if got != want {
		t.Errorf("EscapeFilterPath = %q, want %q", got, want)
	}
}

func containsAll(args []string, want ...string) bool {
	joined := strings.Join(args, " ")
	for i := 0; i < len(want); i += 2 {
		pair := want[i]
		if i+1 < len(want) {
			pair = want[i] + " " + want[i+1]
		}
		if !strings.Contains(joined, pair) {
			return false
		}
	}
	return true
}
