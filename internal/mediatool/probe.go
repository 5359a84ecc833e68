package mediatool

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	"videopipe/internal/apierrors"
	"videopipe/internal/models"
)

// probeJSON mirrors the subset of ffprobe's -print_format json output this
// package consumes.
type probeJSON struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		Index      int    `json:"index"`
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

// parseRational parses ffprobe's "num/den" rate strings (e.g. "30000/1001")
// into a float, returning 0 for malformed or zero-denominator input.
func parseRational(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, errN := strconv.ParseFloat(num, 64)
	if !ok {
		if errN != nil {
			return 0
		}
		return n
	}
	d, errD := strconv.ParseFloat(den, 64)
	if errN != nil || errD != nil || d == 0 {
		return 0
	}
	return n / d
}

// Probe runs the companion probe tool against path and returns structured
// container/stream metadata.
func (b *Builder) Probe(ctx context.Context, path string) (models.ProbeResult, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	}
	cmd := exec.CommandContext(ctx, b.probeBinary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return models.ProbeResult{}, apierrors.WrapValidation(err, "probe %s failed: %s", path, stderr.String())
	}

	var parsed probeJSON
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		return models.ProbeResult{}, apierrors.WrapValidation(err, "probe %s: invalid json", path)
	}

	result := models.ProbeResult{}
	if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		result.Duration = d
	}
	if br, err := strconv.ParseInt(parsed.Format.BitRate, 10, 64); err == nil {
		result.Bitrate = br
	}
	for _, s := range parsed.Streams {
		result.Streams = append(result.Streams, models.ProbeStream{
			Index:     s.Index,
			CodecType: s.CodecType,
			CodecName: s.CodecName,
		})
		switch s.CodecType {
		case "video":
			if result.VideoCodec == "" {
				result.VideoCodec = s.CodecName
				result.Width = s.Width
				result.Height = s.Height
				result.FrameRate = parseRational(s.RFrameRate)
			}
		case "audio":
			if result.AudioCodec == "" {
				result.AudioCodec = s.CodecName
			}
		}
	}
	return result, nil
}

// ValidateFile probes path and requires at least one stream of kind
// ("video" or "audio"), per spec.md §4.3's "validate a file" contract.
func (b *Builder) ValidateFile(ctx context.Context, path, kind string) (models.ProbeResult, error) {
	result, err := b.Probe(ctx, path)
	if err != nil {
		return result, err
	}
	if !result.HasStream(kind) {
		return result, apierrors.NewValidation("%s: no %s stream found", path, kind)
	}
	return result, nil
}

// DetectHWAccel probes the host for available hardware encoders by asking
// the tool for its compiled-in hwaccel list, falling back to software when
// none are usable or pref is explicitly "none".
func (b *Builder) DetectHWAccel(ctx context.Context, pref string) HWAccel {
	if pref == "none" {
		return HWAccelSoftware
	}
	if pref != "" && pref != "auto" {
		return HWAccel(pref)
	}
	cmd := exec.CommandContext(ctx, b.binary, "-hide_banner", "-hwaccels")
	out, err := cmd.Output()
	if err != nil {
		return HWAccelSoftware
	}
	text := string(out)
	for _, accel := range []HWAccel{HWAccelNVENC, HWAccelQSV, HWAccelVAAPI} {
		if bytes.Contains([]byte(text), []byte(accel)) {
			return accel
		}
	}
	return HWAccelSoftware
}
