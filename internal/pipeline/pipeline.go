// Package pipeline drives the COMBINED operation: an ordered chain of other
// operations applied to a seed asset, each stage's output feeding the next,
// with full rollback on any stage's failure.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"videopipe/internal/apierrors"
	"videopipe/internal/models"
	"videopipe/internal/processor"
	"videopipe/internal/processor/audiooverlay"
	"videopipe/internal/processor/join"
	"videopipe/internal/processor/subtitles"
	"videopipe/internal/processor/textoverlay"
	"videopipe/internal/processor/videooverlay"

	"golang.org/x/sync/errgroup"
)

// newStageProcessor maps a CombinedOperation's type to its concrete
// implementation. Lives here, not in package processor, so the common
// Processor interface stays free of a dependency on every operation
// package (which would be a cycle, since each operation package imports
// processor for Deps/ProcessorInput/ProcessorOutput).
func newStageProcessor(opType models.JobType, deps processor.Deps) (processor.Processor, error) {
	switch opType {
	case models.JobTypeJoin:
		return join.New(deps), nil
	case models.JobTypeAudioOverlay:
		return audiooverlay.New(deps), nil
	case models.JobTypeTextOverlay:
		return textoverlay.New(deps), nil
	case models.JobTypeSubtitles:
		return subtitles.New(deps), nil
	case models.JobTypeVideoOverlay:
		return videooverlay.New(deps), nil
	default:
		return nil, apierrors.NewValidation("pipeline: %s cannot be a combined stage", opType)
	}
}

// Runner executes a Combined job's ordered operation list against a seed
// asset.
type Runner struct {
	deps processor.Deps
}

// New constructs a Runner.
func New(deps processor.Deps) *Runner {
	return &Runner{deps: deps}
}

// Result is what a successful pipeline run hands back to the dispatcher:
// the final local file, ready for upload, plus the last stage's structured
// result.
type Result struct {
	FinalPath string
	Result    models.JobResult
}

// Run executes cfg.Operations in order, feeding stage i's output file as
// stage i+1's primary input, reporting overall progress as
// ((i-1) + p_i/100) / n * 100 where p_i is the current stage's own
// progress.
func (r *Runner) Run(ctx context.Context, cfg models.CombinedConfig, workDir string, progress func(float64)) (Result, error) {
	n := len(cfg.Operations)
	if n < 2 || n > 10 {
		return Result{}, apierrors.NewValidation("pipeline: operation count %d out of range [2,10]", n)
	}

	seedPath, err := processor.FetchToFile(ctx, r.deps, cfg.BaseFileID, workDir)
	if err != nil {
		return Result{}, err
	}

	instantiated := make([]processor.Processor, 0, n)
	var lastOutput string = seedPath
	var lastResult models.JobResult
	prevFiles := []string{seedPath}

	cleanupAll := func() {
		for _, p := range instantiated {
			p.Cleanup()
		}
		for _, f := range prevFiles {
			_ = os.Remove(f)
		}
	}

	for i, op := range cfg.Operations {
		stageProc, err := newStageProcessor(op.OpType, r.deps)
		if err != nil {
			cleanupAll()
			return Result{}, err
		}
		instantiated = append(instantiated, stageProc)

		if err := stageProc.Validate(ctx, op.Config); err != nil {
			cleanupAll()
			return Result{}, err
		}

		stageDir := filepath.Join(workDir, fmt.Sprintf("stage_%d", i))
		if err := os.MkdirAll(stageDir, 0o755); err != nil {
			cleanupAll()
			return Result{}, fmt.Errorf("pipeline: create stage dir: %w", err)
		}

		if err := prefetchAuxiliaryAssets(ctx, r.deps, op.Config, stageDir); err != nil {
			cleanupAll()
			return Result{}, err
		}

		stageIndex := i
		stageProgress := func(p float64) {
			if progress != nil {
				overall := (float64(stageIndex) + p/100) / float64(n) * 100
				progress(overall)
			}
		}

		out, err := stageProc.Run(ctx, op.Config, processor.ProcessorInput{PrimaryPath: lastOutput, WorkDir: stageDir}, stageProgress)
		if err != nil {
			cleanupAll()
			return Result{}, fmt.Errorf("pipeline: stage %d (%s): %w", i, op.OpType, err)
		}

		prevFiles = append(prevFiles, out.OutputPath)
		if lastOutput != seedPath {
			_ = os.Remove(lastOutput)
		}
		lastOutput = out.OutputPath
		lastResult = out.Result
	}

	for _, p := range instantiated {
		p.Cleanup()
	}

	return Result{FinalPath: lastOutput, Result: lastResult}, nil
}

// prefetchAuxiliaryAssets downloads any non-primary asset a stage's config
// references (an audio-overlay stage's overlay track, a subtitle stage's
// subtitle asset, a video-overlay stage's overlay video) into the stage's
// work directory, and returns once every fetch has finished; it runs before
// the stage starts. The stage's own Run fetches the same asset again to the
// same local path.
func prefetchAuxiliaryAssets(ctx context.Context, deps processor.Deps, cfg models.JobConfig, workDir string) error {
	var ids []int64
	switch c := cfg.(type) {
	case models.AudioOverlayConfig:
		ids = []int64{c.AudioFileID}
	case models.SubtitlesConfig:
		if c.SubtitleFileID != 0 {
			ids = []int64{c.SubtitleFileID}
		}
	case models.VideoOverlayConfig:
		ids = []int64{c.OverlayVideoFileID}
	default:
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, err := processor.FetchToFile(gctx, deps, id, workDir)
			return err
		})
	}
	return g.Wait()
}
