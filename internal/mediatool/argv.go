package mediatool

import (
	"fmt"
	"strconv"
	"strings"
)

// JoinArgs builds the argv for the JOIN operation: concat demuxer,
// stream-copy unless reEncode forces a re-encode with the given preset.
func JoinArgs(concatListPath, outputPath string, reEncode bool, preset Preset) []string {
	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", concatListPath}
	if reEncode {
		args = append(args,
			"-c:v", "libx264",
			"-preset", preset.EncoderPreset,
			"-tune", preset.Tune,
			"-crf", strconv.Itoa(preset.CRF),
			"-c:a", "aac",
		)
	} else {
		args = append(args, "-c", "copy")
	}
	return append(args, outputPath)
}

// AudioOverlaySpec parameterizes AudioOverlayArgs.
type AudioOverlaySpec struct {
	Mode           string // replace | mix
	Offset         float64
	Duration       float64 // 0 means unset
	OriginalVolume float64
	OverlayVolume  float64
}

// AudioOverlayArgs builds the argv for the AUDIO_OVERLAY operation.
func AudioOverlayArgs(videoPath, audioPath, outputPath string, spec AudioOverlaySpec) []string {
	args := []string{"-y", "-i", videoPath}
	if spec.Offset > 0 {
		args = append(args, "-itsoffset", formatSeconds(spec.Offset))
	}
	args = append(args, "-i", audioPath)

	switch spec.Mode {
	case "replace":
		args = append(args, "-map", "0:v:0", "-map", "1:a:0", "-c:v", "copy", "-c:a", "aac", "-shortest")
	case "mix":
		origVol := spec.OriginalVolume
		if origVol == 0 {
			origVol = 1
		}
		overlayVol := spec.OverlayVolume
		if overlayVol == 0 {
			overlayVol = 1
		}
		filter := fmt.Sprintf(
			"[0:a]volume=%s[a0];[1:a]volume=%s[a1];[a0][a1]amix=inputs=2:duration=shortest[aout]",
			formatFloat(origVol), formatFloat(overlayVol),
		)
		args = append(args, "-filter_complex", filter, "-map", "0:v:0", "-map", "[aout]", "-c:v", "copy", "-c:a", "aac")
	}
	if spec.Duration > 0 {
		args = append(args, "-t", formatSeconds(spec.Duration))
	}
	return append(args, outputPath)
}

// TextOverlaySpec parameterizes TextOverlayArgs; text is pre-escaped by the
// caller via EscapeDrawtext.
type TextOverlaySpec struct {
	DrawtextFilter string // fully composed drawtext=... expression
}

// TextOverlayArgs builds the argv for the TEXT_OVERLAY operation. The
// drawtext filter expression itself is assembled by the textoverlay
// processor (position/style/animation logic); this just wires it in.
func TextOverlayArgs(videoPath, outputPath string, spec TextOverlaySpec, preset Preset) []string {
	return []string{
		"-y", "-i", videoPath,
		"-vf", spec.DrawtextFilter,
		"-c:v", "libx264",
		"-preset", preset.EncoderPreset,
		"-tune", preset.Tune,
		"-crf", strconv.Itoa(preset.CRF),
		"-c:a", "copy",
		outputPath,
	}
}

// SubtitlesArgs builds the argv for the SUBTITLES burn-in operation. The
// subtitles filter path must be escaped by the caller (colons in Windows
// drive letters, special chars) via EscapeFilterPath.
func SubtitlesArgs(videoPath, subtitlePath, outputPath, forceStyle string, preset Preset) []string {
	filter := fmt.Sprintf("subtitles=%s", subtitlePath)
	if forceStyle != "" {
		filter += fmt.Sprintf(":force_style='%s'", forceStyle)
	}
	return []string{
		"-y", "-i", videoPath,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", preset.EncoderPreset,
		"-tune", preset.Tune,
		"-crf", strconv.Itoa(preset.CRF),
		"-c:a", "copy",
		outputPath,
	}
}

// VideoOverlayArgs builds the argv for the VIDEO_OVERLAY (picture-in-picture)
// operation. maskPath is an optional alpha-mask PNG (circle/rounded shapes);
// when empty the overlay is a plain rectangle.
func VideoOverlayArgs(basePath, overlayPath, maskPath, outputPath string, x, y, width, height int, opacity float64, preset Preset) []string {
	args := []string{"-y", "-i", basePath, "-i", overlayPath}

	scaleLabel := "[1:v]"
	filters := []string{}
	if width > 0 && height > 0 {
		filters = append(filters, fmt.Sprintf("[1:v]scale=%d:%d[ov]", width, height))
		scaleLabel = "[ov]"
	}

	overlayInput := scaleLabel
	if maskPath != "" {
		args = append(args, "-i", maskPath)
		filters = append(filters, fmt.Sprintf("%s[2:v]alphamerge[ovm]", scaleLabel))
		overlayInput = "[ovm]"
	}
	if opacity < 1 {
		filters = append(filters, fmt.Sprintf("%sformat=yuva420p,colorchannelmixer=aa=%s[ova]", overlayInput, formatFloat(opacity)))
		overlayInput = "[ova]"
	}

	filters = append(filters, fmt.Sprintf("[0:v]%soverlay=%d:%d[vout]", overlayInput, x, y))
	args = append(args, "-filter_complex", strings.Join(filters, ";"), "-map", "[vout]", "-map", "0:a?")
	args = append(args,
		"-c:v", "libx264",
		"-preset", preset.EncoderPreset,
		"-tune", preset.Tune,
		"-crf", strconv.Itoa(preset.CRF),
		"-c:a", "aac",
	)
	return append(args, outputPath)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}

// EscapeDrawtext escapes single quotes in a drawtext text payload per
// spec.md §4.4.3.
func EscapeDrawtext(text string) string {
	return strings.ReplaceAll(text, "'", "\\'")
}

// EscapeFilterPath escapes characters the ffmpeg filtergraph parser treats
// specially when a path is embedded inside a filter expression (colons,
// backslashes, single quotes).
func EscapeFilterPath(path string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`)
	return r.Replace(path)
}
