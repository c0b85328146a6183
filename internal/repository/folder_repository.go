package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"medialib/internal/ids"
	"medialib/internal/library"
	"medialib/internal/models"
)

// folderColumns selects a folder with its direct child and asset counts.
// Reserved assets are not content yet and are not counted.
const folderColumns = `
	f.id, f.name, f.parent_id, f.created_at, f.updated_at,
	(SELECT COUNT(*) FROM folders c WHERE c.parent_id = f.id),
	(SELECT COUNT(*) FROM assets a WHERE a.folder_id = f.id AND a.status = 'ready')
`

type FolderRepository struct {
	db DB
}

func NewFolderRepository(db DB) *FolderRepository {
	return &FolderRepository{db: db}
}

func (r *FolderRepository) List(ctx context.Context, parentID *string) ([]models.Folder, error) {
	query := `SELECT ` + folderColumns + `
		FROM folders f
		WHERE f.parent_id IS NOT DISTINCT FROM $1
		ORDER BY f.name, f.id
	`
	rows, err := r.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, err
	}
	return scanFolders(rows)
}

func (r *FolderRepository) GetByID(ctx context.Context, id string) (models.Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folders f WHERE f.id = $1`

	folder, err := scanFolder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Folder{}, ErrFolderNotFound
		}
		return models.Folder{}, err
	}
	return folder, nil
}

// Ancestors walks parent links upwards from id, nearest parent first. The
// depth cap stops the walk on corrupted (cyclic) data.
func (r *FolderRepository) Ancestors(ctx context.Context, id string) ([]models.Folder, error) {
	query := `
		WITH RECURSIVE chain AS (
			SELECT id, parent_id, 0 AS depth FROM folders WHERE id = $1
			UNION ALL
			SELECT p.id, p.parent_id, c.depth + 1
			FROM folders p JOIN chain c ON p.id = c.parent_id
			WHERE c.depth < 1000
		)
		SELECT ` + folderColumns + `
		FROM chain ch JOIN folders f ON f.id = ch.id
		ORDER BY ch.depth
	`
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	chain, err := scanFolders(rows)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, ErrFolderNotFound
	}
	return chain[1:], nil
}

func (r *FolderRepository) Create(ctx context.Context, name string, parentID *string) (models.Folder, error) {
	const query = `
		INSERT INTO folders (id, name, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	folder := models.Folder{ID: ids.New(), Name: name, ParentID: parentID}
	if err := r.db.QueryRow(ctx, query, folder.ID, folder.Name, folder.ParentID).Scan(&folder.CreatedAt, &folder.UpdatedAt); err != nil {
		if isForeignKeyViolation(err) {
			return models.Folder{}, fmt.Errorf("parent: %w", ErrFolderNotFound)
		}
		return models.Folder{}, err
	}
	return folder, nil
}

func (r *FolderRepository) Update(ctx context.Context, id string, update library.FolderUpdate) error {
	args := []any{id}
	sets := []string{"updated_at = NOW()"}
	if update.Name != nil {
		args = append(args, *update.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if update.ParentID.Present {
		args = append(args, update.ParentID.Value)
		sets = append(sets, fmt.Sprintf("parent_id = $%d", len(args)))
	}

	query := `UPDATE folders SET ` + strings.Join(sets, ", ") + ` WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("target: %w", ErrFolderNotFound)
		}
		if isCheckViolation(err) {
			return fmt.Errorf("folder %s cannot be its own parent", id)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFolderNotFound
	}
	return nil
}

// DeleteEmpty removes id only if it has no subfolders or assets.
func (r *FolderRepository) DeleteEmpty(ctx context.Context, id string) error {
	const query = `
		DELETE FROM folders f
		WHERE f.id = $1
		  AND NOT EXISTS (SELECT 1 FROM folders c WHERE c.parent_id = f.id)
		  AND NOT EXISTS (SELECT 1 FROM assets a WHERE a.folder_id = f.id AND a.status = 'ready')
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM folders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrFolderNotEmpty
	}
	return ErrFolderNotFound
}

// DeleteTree removes id with every descendant folder and asset, returning the
// objects that belonged to the removed assets.
func (r *FolderRepository) DeleteTree(ctx context.Context, id string) ([]ObjectRef, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const objectsQuery = `
		WITH RECURSIVE subtree AS (
			SELECT id FROM folders WHERE id = $1
			UNION
			SELECT c.id FROM folders c JOIN subtree s ON c.parent_id = s.id
		)
		SELECT a.bucket, a.object_key
		FROM assets a JOIN subtree s ON a.folder_id = s.id
	`
	rows, err := tx.Query(ctx, objectsQuery, id)
	if err != nil {
		return nil, err
	}
	var objects []ObjectRef
	for rows.Next() {
		var ref ObjectRef
		if err := rows.Scan(&ref.Bucket, &ref.Key); err != nil {
			rows.Close()
			return nil, err
		}
		objects = append(objects, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM folders WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrFolderNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return objects, nil
}

func scanFolder(row pgx.Row) (models.Folder, error) {
	var folder models.Folder
	err := row.Scan(
		&folder.ID,
		&folder.Name,
		&folder.ParentID,
		&folder.CreatedAt,
		&folder.UpdatedAt,
		&folder.ChildCount,
		&folder.AssetCount,
	)
	return folder, err
}

func scanFolders(rows pgx.Rows) ([]models.Folder, error) {
	defer rows.Close()

	var folders []models.Folder
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, folder)
	}
	return folders, rows.Err()
}
