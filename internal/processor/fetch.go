package processor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"videopipe/internal/apierrors"
)

// FetchToFile streams assetID's stored object into a new file under dir,
// returning its local path. Used by every processor that needs a
// referenced asset materialized on disk for the external tool to read.
func FetchToFile(ctx context.Context, deps Deps, assetID int64, dir string) (string, error) {
	asset, err := deps.Assets.Get(ctx, assetID)
	if err != nil {
		return "", err
	}
	if asset.IsDeleted {
		return "", apierrors.NewNotFound("asset", assetID)
	}

	rc, err := deps.Store.GetStream(ctx, asset.ObjectName)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	localPath := filepath.Join(dir, fmt.Sprintf("in_%d%s", assetID, filepath.Ext(asset.ObjectName)))
	f, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("processor: create local file for asset %d: %w", assetID, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return "", apierrors.NewTransient(err, "stream asset %d to disk", assetID)
	}
	return localPath, nil
}

// ResolvePrimary returns the local file a processor should treat as its
// primary input: the caller's already-materialized file when set (a
// combined job chaining the previous stage's output, or the dispatcher's
// own seed fetch for a standalone job), falling back to fetching
// primaryAssetID fresh only when the caller didn't provide one.
func ResolvePrimary(ctx context.Context, deps Deps, in ProcessorInput, primaryAssetID int64, dir string) (string, error) {
	if in.PrimaryPath != "" {
		return in.PrimaryPath, nil
	}
	return FetchToFile(ctx, deps, primaryAssetID, dir)
}
