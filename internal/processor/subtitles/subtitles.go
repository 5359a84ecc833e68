// Package subtitles implements the SUBTITLES operation: burning a subtitle
// track (from an asset or an inline cue list) into a video.
package subtitles

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"videopipe/internal/apierrors"
	"videopipe/internal/mediatool"
	"videopipe/internal/models"
	"videopipe/internal/processor"
	"videopipe/internal/processor/subtitles/parse"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Processor implements processor.Processor for SUBTITLES jobs.
type Processor struct {
	deps processor.Deps
}

// New constructs a subtitles Processor.
func New(deps processor.Deps) *Processor {
	return &Processor{deps: deps}
}

// Validate checks config shape (exactly one of SubtitleFileID/SubtitleText
// set) and the referenced video asset.
func (p *Processor) Validate(ctx context.Context, raw models.JobConfig) error {
	cfg, ok := raw.(models.SubtitlesConfig)
	if !ok {
		return apierrors.NewValidation("subtitles: wrong config type %T", raw)
	}
	if err := validate.Struct(cfg); err != nil {
		return apierrors.WrapValidation(err, "subtitles config")
	}
	hasFile := cfg.SubtitleFileID != 0
	hasInline := len(cfg.SubtitleText) > 0
	if hasFile == hasInline {
		return apierrors.NewValidation("subtitles: exactly one of subtitle_file_id or subtitle_text required")
	}

	video, err := p.deps.Assets.Get(ctx, cfg.VideoFileID)
	if err != nil {
		return err
	}
	if video.IsDeleted {
		return apierrors.NewNotFound("asset", cfg.VideoFileID)
	}
	if video.ProbeMetadata == nil || !video.ProbeMetadata.HasStream("video") {
		return apierrors.NewValidation("asset %d has no video stream", cfg.VideoFileID)
	}
	if hasFile {
		sub, err := p.deps.Assets.Get(ctx, cfg.SubtitleFileID)
		if err != nil {
			return err
		}
		if sub.IsDeleted {
			return apierrors.NewNotFound("asset", cfg.SubtitleFileID)
		}
	}
	return nil
}

// Run fetches the video (and subtitle asset, if any), reduces the cues to
// canonical SRT on disk, and burns it in via the subtitles filter.
func (p *Processor) Run(ctx context.Context, raw models.JobConfig, in processor.ProcessorInput, progress func(float64)) (processor.ProcessorOutput, error) {
	cfg := raw.(models.SubtitlesConfig)

	videoPath, err := processor.ResolvePrimary(ctx, p.deps, in, cfg.VideoFileID, in.WorkDir)
	if err != nil {
		return processor.ProcessorOutput{}, err
	}
	video, _ := p.deps.Assets.Get(ctx, cfg.VideoFileID)
	duration := 0.0
	if video.ProbeMetadata != nil {
		duration = video.ProbeMetadata.Duration
	}

	var cues []parse.Cue
	if cfg.SubtitleFileID != 0 {
		subPath, err := processor.FetchToFile(ctx, p.deps, cfg.SubtitleFileID, in.WorkDir)
		if err != nil {
			return processor.ProcessorOutput{}, err
		}
		raw, err := os.ReadFile(subPath)
		if err != nil {
			return processor.ProcessorOutput{}, fmt.Errorf("subtitles: read subtitle file: %w", err)
		}
		cues, err = parse.Format(cfg.Format, string(raw))
		if err != nil {
			return processor.ProcessorOutput{}, err
		}
	} else {
		for _, c := range cfg.SubtitleText {
			cues = append(cues, parse.Cue{Start: c.Start, End: c.End, Text: c.Text, Layer: c.Layer, Style: c.Style})
		}
	}

	srtPath := filepath.Join(in.WorkDir, "burned_cues.srt")
	if err := os.WriteFile(srtPath, []byte(parse.RenderSRT(cues)), 0o644); err != nil {
		return processor.ProcessorOutput{}, fmt.Errorf("subtitles: write rendered srt: %w", err)
	}

	forceStyle := ""
	if cfg.Style != nil {
		forceStyle = buildForceStyle(*cfg.Style)
	}

	outputPath := filepath.Join(in.WorkDir, "subtitles_output.mp4")
	args := mediatool.SubtitlesArgs(videoPath, mediatool.EscapeFilterPath(srtPath), outputPath, forceStyle, p.deps.Preset)

	if _, err := p.deps.Tool.Run(ctx, p.deps.HWAccel, args, duration, progress); err != nil {
		return processor.ProcessorOutput{}, err
	}

	return processor.ProcessorOutput{
		OutputPath: outputPath,
		Result:     models.JobResult{OutputPath: outputPath, DurationS: duration},
	}, nil
}

// Cleanup is a no-op: the work directory is owned by the caller.
func (p *Processor) Cleanup() {}

// buildForceStyle composes libass's ASS style override string from the font
// name, font size and primary colour. No Bold/Italic/Underline/StrikeOut
// fields are emitted.
func buildForceStyle(style models.TextStyle) string {
	fields := []string{
		fmt.Sprintf("FontName=%s", style.FontFamily),
		fmt.Sprintf("FontSize=%d", style.FontSize),
		fmt.Sprintf("PrimaryColour=&H%s&", assColor(style.Color, style.Alpha)),
	}
	return strings.Join(fields, ",")
}

// assColor converts #RRGGBB + alpha into ASS's &HAABBGGRR& byte order.
func assColor(hex string, alpha float64) string {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return "FFFFFF"
	}
	r, g, b := hex[0:2], hex[2:4], hex[4:6]
	aa := fmt.Sprintf("%02X", int((1-alpha)*255))
	return aa + b + g + r
}
