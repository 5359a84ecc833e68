// Package join implements the JOIN operation: concatenating two or more
// clips of matching geometry via the concat demuxer, stream-copying unless
// the caller asks for a re-encode.
package join

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"videopipe/internal/apierrors"
	"videopipe/internal/mediatool"
	"videopipe/internal/models"
	"videopipe/internal/processor"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Processor implements processor.Processor for JOIN jobs.
type Processor struct {
	deps    processor.Deps
	workDir string
}

// New constructs a join Processor.
func New(deps processor.Deps) *Processor {
	return &Processor{deps: deps}
}

// Validate runs struct-tag validation plus the resolution/frame-rate/codec
// compatibility check across every input asset.
func (p *Processor) Validate(ctx context.Context, raw models.JobConfig) error {
	cfg, ok := raw.(models.JoinConfig)
	if !ok {
		return apierrors.NewValidation("join: wrong config type %T", raw)
	}
	if err := validate.Struct(cfg); err != nil {
		return apierrors.WrapValidation(err, "join config")
	}

	var first *models.ProbeResult
	for _, id := range cfg.FileIDs {
		asset, err := p.deps.Assets.Get(ctx, id)
		if err != nil {
			return err
		}
		if asset.IsDeleted {
			return apierrors.NewNotFound("asset", id)
		}
		if asset.ProbeMetadata == nil {
			return apierrors.NewValidation("asset %d has no probed metadata", id)
		}
		if first == nil {
			first = asset.ProbeMetadata
			continue
		}
		if asset.ProbeMetadata.Width != first.Width || asset.ProbeMetadata.Height != first.Height {
			return apierrors.NewValidation("join: resolution mismatch (asset %d)", id)
		}
		if asset.ProbeMetadata.FrameRate != first.FrameRate {
			return apierrors.NewValidation("join: frame rate mismatch (asset %d)", id)
		}
		if asset.ProbeMetadata.VideoCodec != first.VideoCodec {
			return apierrors.NewValidation("join: video codec mismatch (asset %d)", id)
		}
	}
	return nil
}

// Run writes a concat list file and invokes the tool with stream-copy,
// falling back to a re-encode when cfg.ReEncode is set.
func (p *Processor) Run(ctx context.Context, raw models.JobConfig, in processor.ProcessorInput, progress func(float64)) (processor.ProcessorOutput, error) {
	cfg := raw.(models.JoinConfig)
	p.workDir = in.WorkDir

	localPaths := make([]string, 0, len(cfg.FileIDs))
	var totalDuration float64
	for i, id := range cfg.FileIDs {
		var path string
		var err error
		if i == 0 {
			// The lead input is the stage's primary slot: a combined job
			// chains the previous stage's output here instead of
			// re-fetching the declared asset.
			path, err = processor.ResolvePrimary(ctx, p.deps, in, id, in.WorkDir)
		} else {
			path, err = processor.FetchToFile(ctx, p.deps, id, in.WorkDir)
		}
		if err != nil {
			return processor.ProcessorOutput{}, err
		}
		localPaths = append(localPaths, path)

		asset, err := p.deps.Assets.Get(ctx, id)
		if err == nil && asset.ProbeMetadata != nil {
			totalDuration += asset.ProbeMetadata.Duration
		}
	}

	listPath := filepath.Join(in.WorkDir, "concat_list.txt")
	listFile, err := os.Create(listPath)
	if err != nil {
		return processor.ProcessorOutput{}, fmt.Errorf("join: create concat list: %w", err)
	}
	for _, path := range localPaths {
		fmt.Fprintf(listFile, "file '%s'\n", mediatool.EscapeFilterPath(path))
	}
	listFile.Close()

	outputPath := filepath.Join(in.WorkDir, "join_output.mp4")
	args := mediatool.JoinArgs(listPath, outputPath, cfg.ReEncode, p.deps.Preset)

	accel := p.deps.HWAccel
	if !cfg.ReEncode {
		accel = mediatool.HWAccelSoftware // stream-copy never touches the encoder
	}

	if _, err := p.deps.Tool.Run(ctx, accel, args, totalDuration, progress); err != nil {
		return processor.ProcessorOutput{}, err
	}

	return processor.ProcessorOutput{
		OutputPath: outputPath,
		Result:     models.JobResult{OutputPath: outputPath, DurationS: totalDuration},
	}, nil
}

// Cleanup removes the concat list file; the rest of the work directory is
// owned and cleaned by the caller (dispatcher/pipeline) since it also holds
// fetched input copies shared across stages.
func (p *Processor) Cleanup() {
	if p.workDir == "" {
		return
	}
	_ = os.Remove(filepath.Join(p.workDir, "concat_list.txt"))
}
