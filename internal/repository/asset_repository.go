package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"medialib/internal/library"
	"medialib/internal/models"
)

const assetColumns = `
	a.id, a.filename, a.url, a.mime_type, a.size_bytes, a.width, a.height,
	a.folder_id, a.status, a.bucket, a.object_key, a.created_at, a.updated_at,
	COALESCE(ARRAY(SELECT t.id FROM asset_tags x JOIN tags t ON t.id = x.tag_id WHERE x.asset_id = a.id ORDER BY t.name), '{}'),
	COALESCE(ARRAY(SELECT t.name FROM asset_tags x JOIN tags t ON t.id = x.tag_id WHERE x.asset_id = a.id ORDER BY t.name), '{}')
`

type AssetRepository struct {
	db DB
}

func NewAssetRepository(db DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// List returns the ready assets directly inside folderID (nil = root),
// newest first.
func (r *AssetRepository) List(ctx context.Context, folderID *string, filter library.AssetFilter) ([]models.Asset, error) {
	query := `SELECT ` + assetColumns + `
		FROM assets a
		WHERE a.folder_id IS NOT DISTINCT FROM $1
		  AND a.status = 'ready'
		  AND ($2::text = '' OR a.filename ILIKE '%' || $2 || '%')
		  AND ($3::text = '' OR a.mime_type LIKE $3 || '%')
		  AND (cardinality($4::text[]) = 0 OR EXISTS (
		        SELECT 1 FROM asset_tags x WHERE x.asset_id = a.id AND x.tag_id = ANY($4)))
		ORDER BY a.created_at DESC, a.id
	`
	tagIDs := filter.TagIDs
	if tagIDs == nil {
		tagIDs = []string{}
	}

	rows, err := r.db.Query(ctx, query, folderID, filter.Search, filter.MimePrefix, tagIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

func (r *AssetRepository) GetByID(ctx context.Context, id string) (models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets a WHERE a.id = $1`

	asset, err := scanAsset(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Asset{}, ErrAssetNotFound
		}
		return models.Asset{}, err
	}
	return asset, nil
}

// Update moves an asset and/or replaces its tags in one transaction.
func (r *AssetRepository) Update(ctx context.Context, id string, update library.AssetUpdate) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const touch = `
		UPDATE assets
		SET folder_id = CASE WHEN $2 THEN $3 ELSE folder_id END,
		    updated_at = NOW()
		WHERE id = $1
	`
	tag, err := tx.Exec(ctx, touch, id, update.FolderID.Present, update.FolderID.Value)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("target: %w", ErrFolderNotFound)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}

	if update.TagIDs != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM asset_tags WHERE asset_id = $1`, id); err != nil {
			return err
		}
		if len(update.TagIDs) > 0 {
			const insertTags = `
				INSERT INTO asset_tags (asset_id, tag_id)
				SELECT $1, unnest($2::text[])
				ON CONFLICT DO NOTHING
			`
			if _, err := tx.Exec(ctx, insertTags, id, update.TagIDs); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Delete removes the asset record and returns where its bytes live.
func (r *AssetRepository) Delete(ctx context.Context, id string) (ObjectRef, error) {
	const query = `DELETE FROM assets WHERE id = $1 RETURNING bucket, object_key`

	var ref ObjectRef
	if err := r.db.QueryRow(ctx, query, id).Scan(&ref.Bucket, &ref.Key); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ObjectRef{}, ErrAssetNotFound
		}
		return ObjectRef{}, err
	}
	return ref, nil
}

// Reserve inserts a record in the reserved state. It stays out of listings
// until MarkReady.
func (r *AssetRepository) Reserve(ctx context.Context, asset models.Asset, tagIDs []string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const query = `
		INSERT INTO assets (
			id, filename, url, mime_type, size_bytes, width, height,
			folder_id, status, bucket, object_key, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW()
		)
	`
	if _, err := tx.Exec(ctx, query,
		asset.ID,
		asset.Filename,
		asset.URL,
		asset.MimeType,
		asset.SizeBytes,
		asset.Width,
		asset.Height,
		asset.FolderID,
		models.AssetStatusReserved,
		asset.Bucket,
		asset.ObjectKey,
	); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("folder: %w", ErrFolderNotFound)
		}
		return err
	}

	if len(tagIDs) > 0 {
		const insertTags = `
			INSERT INTO asset_tags (asset_id, tag_id)
			SELECT $1, unnest($2::text[])
			ON CONFLICT DO NOTHING
		`
		if _, err := tx.Exec(ctx, insertTags, asset.ID, tagIDs); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Replace records new content metadata for an existing asset whose object is
// about to be overwritten.
func (r *AssetRepository) Replace(ctx context.Context, id, filename, mimeType string, sizeBytes int64, width, height *int) error {
	const query = `
		UPDATE assets
		SET filename = $2, mime_type = $3, size_bytes = $4, width = $5, height = $6, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, filename, mimeType, sizeBytes, width, height)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}

func (r *AssetRepository) MarkReady(ctx context.Context, id string) (models.Asset, error) {
	const query = `UPDATE assets SET status = 'ready', updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return models.Asset{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.Asset{}, ErrAssetNotFound
	}
	return r.GetByID(ctx, id)
}

// ListStaleReservations returns reserved records created before cutoff.
func (r *AssetRepository) ListStaleReservations(ctx context.Context, cutoff time.Time, limit int) ([]models.Asset, error) {
	query := `SELECT ` + assetColumns + `
		FROM assets a
		WHERE a.status = 'reserved' AND a.created_at < $1
		ORDER BY a.created_at
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// DeleteReservation drops a record that never left the reserved state.
func (r *AssetRepository) DeleteReservation(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM assets WHERE id = $1 AND status = 'reserved'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}

func scanAsset(row pgx.Row) (models.Asset, error) {
	var (
		asset    models.Asset
		tagIDs   []string
		tagNames []string
	)
	if err := row.Scan(
		&asset.ID,
		&asset.Filename,
		&asset.URL,
		&asset.MimeType,
		&asset.SizeBytes,
		&asset.Width,
		&asset.Height,
		&asset.FolderID,
		&asset.Status,
		&asset.Bucket,
		&asset.ObjectKey,
		&asset.CreatedAt,
		&asset.UpdatedAt,
		&tagIDs,
		&tagNames,
	); err != nil {
		return models.Asset{}, err
	}
	for i := range tagIDs {
		if i < len(tagNames) {
			asset.Tags = append(asset.Tags, models.Tag{ID: tagIDs[i], Name: tagNames[i]})
		}
	}
	return asset, nil
}
