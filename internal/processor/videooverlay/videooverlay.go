// Package videooverlay implements the VIDEO_OVERLAY operation:
// picture-in-picture composition of an overlay video onto a base video,
// with optional circle or rounded-rectangle shape masking. The mask is
// applied only when the overlay's width and height are known (given directly
// or derived from Scale). The config's border, shadow and start/end time
// settings are not applied.
package videooverlay

import (
	"context"
	"path/filepath"

	"videopipe/internal/apierrors"
	"videopipe/internal/mediatool"
	"videopipe/internal/models"
	"videopipe/internal/overlaymask"
	"videopipe/internal/processor"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Processor implements processor.Processor for VIDEO_OVERLAY jobs.
type Processor struct {
	deps processor.Deps
}

// New constructs a videooverlay Processor.
func New(deps processor.Deps) *Processor {
	return &Processor{deps: deps}
}

// Validate checks config shape and that both video assets exist with a
// video stream.
func (p *Processor) Validate(ctx context.Context, raw models.JobConfig) error {
	cfg, ok := raw.(models.VideoOverlayConfig)
	if !ok {
		return apierrors.NewValidation("videooverlay: wrong config type %T", raw)
	}
	if err := validate.Struct(cfg); err != nil {
		return apierrors.WrapValidation(err, "video overlay config")
	}
	for _, id := range []int64{cfg.BaseVideoFileID, cfg.OverlayVideoFileID} {
		asset, err := p.deps.Assets.Get(ctx, id)
		if err != nil {
			return err
		}
		if asset.IsDeleted {
			return apierrors.NewNotFound("asset", id)
		}
		if asset.ProbeMetadata == nil || !asset.ProbeMetadata.HasStream("video") {
			return apierrors.NewValidation("asset %d has no video stream", id)
		}
	}
	return nil
}

// Run fetches both videos, rasterizes a shape mask when needed, and
// composes the overlay filter graph.
func (p *Processor) Run(ctx context.Context, raw models.JobConfig, in processor.ProcessorInput, progress func(float64)) (processor.ProcessorOutput, error) {
	cfg := raw.(models.VideoOverlayConfig)

	basePath, err := processor.ResolvePrimary(ctx, p.deps, in, cfg.BaseVideoFileID, in.WorkDir)
	if err != nil {
		return processor.ProcessorOutput{}, err
	}
	overlayPath, err := processor.FetchToFile(ctx, p.deps, cfg.OverlayVideoFileID, in.WorkDir)
	if err != nil {
		return processor.ProcessorOutput{}, err
	}

	base, _ := p.deps.Assets.Get(ctx, cfg.BaseVideoFileID)
	duration := 0.0
	if base.ProbeMetadata != nil {
		duration = base.ProbeMetadata.Duration
	}

	width, height := cfg.Config.Width, cfg.Config.Height
	if width == 0 && cfg.Config.Scale > 0 && base.ProbeMetadata != nil {
		width = int(float64(base.ProbeMetadata.Width) * cfg.Config.Scale)
		height = int(float64(base.ProbeMetadata.Height) * cfg.Config.Scale)
	}

	var maskPath string
	if width > 0 && height > 0 {
		switch cfg.Config.Shape {
		case "circle":
			maskPath, err = overlaymask.WritePNG(in.WorkDir, "mask.png", overlaymask.Circle(width, height))
		case "rounded":
			maskPath, err = overlaymask.WritePNG(in.WorkDir, "mask.png", overlaymask.RoundedRect(width, height, cfg.Config.BorderRadius))
		}
		if err != nil {
			return processor.ProcessorOutput{}, err
		}
	}

	opacity := cfg.Config.Opacity
	if opacity == 0 {
		opacity = 1
	}

	outputPath := filepath.Join(in.WorkDir, "video_overlay_output.mp4")
	args := mediatool.VideoOverlayArgs(basePath, overlayPath, maskPath, outputPath, cfg.Config.X, cfg.Config.Y, width, height, opacity, p.deps.Preset)

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
