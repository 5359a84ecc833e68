// Package audiooverlay implements the AUDIO_OVERLAY operation: replacing or
// mixing a video's audio track with a second asset.
package audiooverlay

import (
	"context"
	"path/filepath"

	"videopipe/internal/apierrors"
	"videopipe/internal/mediatool"
	"videopipe/internal/models"
	"videopipe/internal/processor"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Processor implements processor.Processor for AUDIO_OVERLAY jobs.
type Processor struct {
	deps processor.Deps
}

// New constructs an audiooverlay Processor.
func New(deps processor.Deps) *Processor {
	return &Processor{deps: deps}
}

// Validate checks config shape and that both referenced assets exist with
// the expected stream kind.
func (p *Processor) Validate(ctx context.Context, raw models.JobConfig) error {
	cfg, ok := raw.(models.AudioOverlayConfig)
	if !ok {
		return apierrors.NewValidation("audiooverlay: wrong config type %T", raw)
	}
	if err := validate.Struct(cfg); err != nil {
		return apierrors.WrapValidation(err, "audio overlay config")
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

	audio, err := p.deps.Assets.Get(ctx, cfg.AudioFileID)
	if err != nil {
		return err
	}
	if audio.IsDeleted {
		return apierrors.NewNotFound("asset", cfg.AudioFileID)
	}
	if audio.ProbeMetadata == nil || !audio.ProbeMetadata.HasStream("audio") {
		return apierrors.NewValidation("asset %d has no audio stream", cfg.AudioFileID)
	}
	return nil
}

// Run fetches both assets locally and invokes the tool in replace or mix
// mode per cfg.Mode.
func (p *Processor) Run(ctx context.Context, raw models.JobConfig, in processor.ProcessorInput, progress func(float64)) (processor.ProcessorOutput, error) {
	cfg := raw.(models.AudioOverlayConfig)

	videoPath, err := processor.ResolvePrimary(ctx, p.deps, in, cfg.VideoFileID, in.WorkDir)
	if err != nil {
		return processor.ProcessorOutput{}, err
	}
	audioPath, err := processor.FetchToFile(ctx, p.deps, cfg.AudioFileID, in.WorkDir)
	if err != nil {
		return processor.ProcessorOutput{}, err
	}

	video, _ := p.deps.Assets.Get(ctx, cfg.VideoFileID)
	audio, _ := p.deps.Assets.Get(ctx, cfg.AudioFileID)

	expectedDuration := 0.0
	if video.ProbeMetadata != nil && audio.ProbeMetadata != nil {
		expectedDuration = min(video.ProbeMetadata.Duration, audio.ProbeMetadata.Duration)
		if cfg.Duration > 0 && cfg.Duration < expectedDuration {
			expectedDuration = cfg.Duration
		}
	}

	origVol := cfg.OriginalVolume
	if origVol == 0 {
		origVol = 1
	}
	overlayVol := cfg.OverlayVolume
	if overlayVol == 0 {
		overlayVol = 1
	}

	outputPath := filepath.Join(in.WorkDir, "audio_overlay_output.mp4")
	args := mediatool.AudioOverlayArgs(videoPath, audioPath, outputPath, mediatool.AudioOverlaySpec{
		Mode:           cfg.Mode,
		Offset:         cfg.Offset,
		Duration:       cfg.Duration,
		OriginalVolume: origVol,
		OverlayVolume:  overlayVol,
	})

	if _, err := p.deps.Tool.Run(ctx, mediatool.HWAccelSoftware, args, expectedDuration, progress); err != nil {
		return processor.ProcessorOutput{}, err
	}

	return processor.ProcessorOutput{
		OutputPath: outputPath,
		Result:     models.JobResult{OutputPath: outputPath, DurationS: expectedDuration},
	}, nil
}

// Cleanup is a no-op: the work directory is owned by the caller.
func (p *Processor) Cleanup() {}
