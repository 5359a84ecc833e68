// Package repositories persists jobs and assets over Postgres via sqlx,
// following the teacher's plain-query, typed-struct, context-scoped method
// conventions.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"videopipe/internal/apierrors"
	"videopipe/internal/cache"
	"videopipe/internal/database"
	"videopipe/internal/models"
)

// AssetRepository implements C7: asset metadata persistence, soft-delete,
// and retention queries.
type AssetRepository struct {
	db     *database.DB
	probes *cache.ProbeCache
}

// NewAssetRepository constructs an AssetRepository. probes may be nil, in
// which case soft-delete skips invalidating any cached probe result.
func NewAssetRepository(db *database.DB, probes *cache.ProbeCache) *AssetRepository {
	return &AssetRepository{db: db, probes: probes}
}

// Create inserts a new asset record.
func (r *AssetRepository) Create(ctx context.Context, asset *models.Asset) error {
	query := `
		INSERT INTO assets (
			owner_id, display_name, object_name, size_bytes, media_type,
			probe_metadata, is_deleted, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := r.db.QueryRowxContext(ctx, query,
		asset.OwnerID, asset.DisplayName, asset.ObjectName, asset.SizeBytes,
		asset.MediaType, asset.ProbeMetadata, asset.IsDeleted, asset.CreatedAt,
	).Scan(&asset.ID)
	if err != nil {
		return fmt.Errorf("repositories: create asset: %w", err)
	}
	return nil
}

// Get retrieves an asset by id, nil if absent.
func (r *AssetRepository) Get(ctx context.Context, id int64) (*models.Asset, error) {
	var asset models.Asset
	query := `SELECT id, owner_id, display_name, object_name, size_bytes, media_type,
		probe_metadata, is_deleted, created_at FROM assets WHERE id = $1`

	err := r.db.GetContext(ctx, &asset, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: get asset %d: %w", id, err)
	}
	return &asset, nil
}

// ListByOwner lists every asset owned by ownerID, optionally including
// soft-deleted ones.
func (r *AssetRepository) ListByOwner(ctx context.Context, ownerID int64, includeDeleted bool) ([]models.Asset, error) {
	query := `SELECT id, owner_id, display_name, object_name, size_bytes, media_type,
		probe_metadata, is_deleted, created_at FROM assets WHERE owner_id = $1`
	if !includeDeleted {
		query += ` AND is_deleted = false`
	}
	query += ` ORDER BY created_at DESC`

	var assets []models.Asset
	if err := r.db.SelectContext(ctx, &assets, query, ownerID); err != nil {
		return nil, fmt.Errorf("repositories: list assets for owner %d: %w", ownerID, err)
	}
	return assets, nil
}

// SoftDelete marks an asset unusable without removing its record, and
// invalidates any cached probe result for it per spec.md §4.2.
func (r *AssetRepository) SoftDelete(ctx context.Context, id int64) error {
	var objectName string
	err := r.db.QueryRowxContext(ctx,
		`UPDATE assets SET is_deleted = true WHERE id = $1 RETURNING object_name`, id,
	).Scan(&objectName)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("repositories: soft delete asset %d: %w", id, err)
	}
	if r.probes != nil {
		_ = r.probes.Invalidate(ctx, id, objectName)
	}
	return nil
}

// StorageUsage sums size_bytes across an owner's non-deleted assets.
func (r *AssetRepository) StorageUsage(ctx context.Context, ownerID int64) (int64, error) {
	var total sql.NullInt64
	query := `SELECT SUM(size_bytes) FROM assets WHERE owner_id = $1 AND is_deleted = false`
	if err := r.db.GetContext(ctx, &total, query, ownerID); err != nil {
		return 0, fmt.Errorf("repositories: storage usage for owner %d: %w", ownerID, err)
	}
	return total.Int64, nil
}

// OlderThan returns non-deleted assets created before cutoff, the basis
// for the retention sweep.
func (r *AssetRepository) OlderThan(ctx context.Context, cutoff time.Time) ([]models.Asset, error) {
	query := `SELECT id, owner_id, display_name, object_name, size_bytes, media_type,
		probe_metadata, is_deleted, created_at FROM assets
		WHERE created_at < $1 AND is_deleted = false`
	var assets []models.Asset
	if err := r.db.SelectContext(ctx, &assets, query, cutoff); err != nil {
		return nil, fmt.Errorf("repositories: assets older than %s: %w", cutoff, err)
	}
	return assets, nil
}

// Count returns the total number of asset records.
func (r *AssetRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM assets`); err != nil {
		return 0, fmt.Errorf("repositories: count assets: %w", err)
	}
	return n, nil
}

// ReferencedByNonTerminalJob reports whether assetID appears in any job's
// input or output id list while that job has not yet reached a terminal
// status — the retention sweep's protection rule.
func (r *AssetRepository) ReferencedByNonTerminalJob(ctx context.Context, assetID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')
			AND (input_asset_ids @> $1 OR output_asset_ids @> $1)
		)`
	idArray := fmt.Sprintf("[%d]", assetID)
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, idArray); err != nil {
		return false, fmt.Errorf("repositories: check non-terminal reference for asset %d: %w", assetID, err)
	}
	return exists, nil
}

// AsLookup adapts AssetRepository to processor.AssetLookup's value-typed,
// not-found-as-error contract.
func (r *AssetRepository) AsLookup() *AssetLookupAdapter {
	return &AssetLookupAdapter{repo: r}
}

// AssetLookupAdapter satisfies processor.AssetLookup over an
// AssetRepository.
type AssetLookupAdapter struct {
	repo *AssetRepository
}

// Get implements processor.AssetLookup.
func (a *AssetLookupAdapter) Get(ctx context.Context, id int64) (models.Asset, error) {
	asset, err := a.repo.Get(ctx, id)
	if err != nil {
		return models.Asset{}, err
	}
	if asset == nil {
		return models.Asset{}, apierrors.NewNotFound("asset", id)
	}
	return *asset, nil
}
