package pipeline

import (
	"context"
	"testing"

	"videopipe/internal/apierrors"
	"videopipe/internal/models"
	"videopipe/internal/processor"
)

func TestRunRejectsTooFewOperations(t *testing.T) {
	r := New(processor.Deps{})
	cfg := models.CombinedConfig{
		BaseFileID: 1,
		Operations: []models.CombinedOperation{
			{OpType: models.JobTypeJoin, Config: models.JoinConfig{FileIDs: []int64{1, 2}}},
		},
	}
	_, err := r.Run(context.Background(), cfg, t.TempDir(), nil)
	if err == nil {
		t.Fatal("expected error for fewer than 2 operations")
	}
	if apierrors.Retryable(err) {
		t.Error("operation-count validation failure should not be retryable")
	}
}

func TestRunRejectsTooManyOperations(t *testing.T) {
	r := New(processor.Deps{})
	ops := make([]models.CombinedOperation, 11)
	for i := range ops {
		ops[i] = models.CombinedOperation{OpType: models.JobTypeJoin, Config: models.JoinConfig{FileIDs: []int64{1, 2}}}
	}
	cfg := models.CombinedConfig{BaseFileID: 1, Operations: ops}

	_, err := r.Run(context.Background(), cfg, t.TempDir(), nil)
	if err == nil {
		t.Fatal("expected error for more than 10 operations")
	}
}

func TestNewStageProcessorRejectsCombinedAsStage(t *testing.T) {
	if _, err := newStageProcessor(models.JobTypeCombined, processor.Deps{}); err == nil {
		t.Fatal("COMBINED cannot itself be a pipeline stage")
	}
}

func TestPrefetchAuxiliaryAssetsNoOpForJoin(t *testing.T) {
	// JoinConfig has no auxiliary asset reference, so prefetch must be a
	// no-op regardless of deps being unusable in this test.
	err := prefetchAuxiliaryAssets(context.Background(), processor.Deps{}, models.JoinConfig{FileIDs: []int64{1, 2}}, t.TempDir())
	if err != nil {
		t.Errorf("prefetchAuxiliaryAssets(JoinConfig) = %v, want nil", err)
	}
}
