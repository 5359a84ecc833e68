// Package processor defines the common contract every operation
// implementation satisfies, plus the shared dependency surface (object
// store, asset lookup, probe cache, command builder) each concrete
// processor is constructed with.
package processor

import (
	"context"

	"videopipe/internal/cache"
	"videopipe/internal/mediatool"
	"videopipe/internal/models"
	"videopipe/internal/objectstore"
)

// AssetLookup resolves asset metadata by id, the read surface a processor
// needs from the file repository (C7) without depending on its Postgres
// implementation.
type AssetLookup interface {
	Get(ctx context.Context, id int64) (models.Asset, error)
}

// Deps bundles everything a concrete processor needs beyond its own config:
// passed in explicitly rather than reached through a package-level
// singleton.
type Deps struct {
	Store      objectstore.Store
	Assets     AssetLookup
	ProbeCache *cache.ProbeCache
	Tool       *mediatool.Builder
	HWAccel    mediatool.HWAccel
	Preset     mediatool.Preset
}

// ProcessorInput is what the dispatcher or pipeline runner feeds a
// processor for one run: the seed/previous-stage local file plus a
// scratch directory the processor owns exclusively for this attempt.
type ProcessorInput struct {
	PrimaryPath string
	WorkDir     string
}

// ProcessorOutput is what a processor hands back on success: the local path
// of its produced file (the pipeline runner or dispatcher uploads it) plus
// a structured result payload.
type ProcessorOutput struct {
	OutputPath string
	Result     models.JobResult
}

// Processor is the common contract for every operation implementation.
// Cleanup always runs, on every exit path, and must be idempotent.
type Processor interface {
	Validate(ctx context.Context, cfg models.JobConfig) error
	Run(ctx context.Context, cfg models.JobConfig, in ProcessorInput, progress func(float64)) (ProcessorOutput, error)
	Cleanup()
}
