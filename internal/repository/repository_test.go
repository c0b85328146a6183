package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medialib/internal/library"
	"medialib/internal/models"
)

var folderCols = []string{"id", "name", "parent_id", "created_at", "updated_at", "child_count", "asset_count"}

func strPtr(s string) *string { return &s }

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestFolderListAtRoot(t *testing.T) {
	pool := newMock(t)
	repo := NewFolderRepository(pool)
	now := time.Now()

	var root *string
	pool.ExpectQuery("FROM folders f").
		WithArgs(root).
		WillReturnRows(pgxmock.NewRows(folderCols).
			AddRow("f1", "Holidays", nil, now, now, 2, 5).
			AddRow("f2", "Work", nil, now, now, 0, 0))

	folders, err := repo.List(context.Background(), root)

	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.Equal(t, "f1", folders[0].ID)
	assert.Equal(t, 2, folders[0].ChildCount)
	assert.Equal(t, 5, folders[0].AssetCount)
	assert.Nil(t, folders[0].ParentID)
	assert.True(t, folders[1].IsEmpty())
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestFolderGetByIDNotFound(t *testing.T) {
	pool := newMock(t)
	repo := NewFolderRepository(pool)

	pool.ExpectQuery("FROM folders f WHERE f.id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrFolderNotFound)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestFolderAncestorsExcludesSelf(t *testing.T) {
	pool := newMock(t)
	repo := NewFolderRepository(pool)
	now := time.Now()

	pool.ExpectQuery("WITH RECURSIVE chain").
		WithArgs("C").
		WillReturnRows(pgxmock.NewRows(folderCols).
			AddRow("C", "C", strPtr("B"), now, now, 0, 0).
			AddRow("B", "B", strPtr("A"), now, now, 1, 0).
			AddRow("A", "A", nil, now, now, 1, 0))

	chain, err := repo.Ancestors(context.Background(), "C")

	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "B", chain[0].ID)
	assert.Equal(t, "A", chain[1].ID)
}

func TestFolderAncestorsUnknown(t *testing.T) {
	pool := newMock(t)
	repo := NewFolderRepository(pool)

	pool.ExpectQuery("WITH RECURSIVE chain").
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows(folderCols))

	_, err := repo.Ancestors(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrFolderNotFound)
}

func TestFolderUpdateMovesOnlyParent(t *testing.T) {
	pool := newMock(t)
	repo := NewFolderRepository(pool)
	target := strPtr("B")

	pool.ExpectExec("UPDATE folders SET updated_at = NOW\\(\\), parent_id = \\$2 WHERE id = \\$1").
		WithArgs("A", target).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Update(context.Background(), "A", library.FolderUpdate{ParentID: library.SetID(target)})

	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestFolderUpdateNotFound(t *testing.T) {
	pool := newMock(t)
	repo := NewFolderRepository(pool)
	name := "Renamed"

	pool.ExpectExec("UPDATE folders SET").
		WithArgs("ghost", name).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), "ghost", library.FolderUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrFolderNotFound)
}

func TestFolderDeleteEmpty(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		exists   bool
		wantErr  error
	}{
		{name: "deleted", affected: 1},
		{name: "has content", affected: 0, exists: true, wantErr: ErrFolderNotEmpty},
		{name: "missing", affected: 0, exists: false, wantErr: ErrFolderNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := newMock(t)
			repo := NewFolderRepository(pool)

			pool.ExpectExec("DELETE FROM folders f").
				WithArgs("f1").
				WillReturnResult(pgxmock.NewResult("DELETE", tt.affected))
			if tt.affected == 0 {
				pool.ExpectQuery("SELECT EXISTS").
					WithArgs("f1").
					WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(tt.exists))
			}

			err := repo.DeleteEmpty(context.Background(), "f1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			require.NoError(t, pool.ExpectationsWereMet())
		})
	}
}

func TestFolderDeleteTreeReturnsObjects(t *testing.T) {
	pool := newMock(t)
	repo := NewFolderRepository(pool)

	pool.ExpectBegin()
	pool.ExpectQuery("WITH RECURSIVE subtree").
		WithArgs("f1").
		WillReturnRows(pgxmock.NewRows([]string{"bucket", "object_key"}).
			AddRow("assets", "2026/01/02/a1.jpg").
			AddRow("assets", "2026/01/02/a2.png"))
	pool.ExpectExec("DELETE FROM folders WHERE id").
		WithArgs("f1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	pool.ExpectCommit()

	objects, err := repo.DeleteTree(context.Background(), "f1")

	require.NoError(t, err)
	assert.Equal(t, []ObjectRef{
		{Bucket: "assets", Key: "2026/01/02/a1.jpg"},
		{Bucket: "assets", Key: "2026/01/02/a2.png"},
	}, objects)
}

func TestAssetUpdateReplacesTags(t *testing.T) {
	pool := newMock(t)
	repo := NewAssetRepository(pool)
	var root *string

	pool.ExpectBegin()
	pool.ExpectExec("UPDATE assets").
		WithArgs("a1", true, root).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec("DELETE FROM asset_tags").
		WithArgs("a1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	pool.ExpectExec("INSERT INTO asset_tags").
		WithArgs("a1", []string{"t1", "t2"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	pool.ExpectCommit()

	err := repo.Update(context.Background(), "a1", library.AssetUpdate{
		FolderID: library.SetID(root),
		TagIDs:   []string{"t1", "t2"},
	})

	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestAssetUpdateNotFoundRollsBack(t *testing.T) {
	pool := newMock(t)
	repo := NewAssetRepository(pool)
	target := strPtr("f1")

	pool.ExpectBegin()
	pool.ExpectExec("UPDATE assets").
		WithArgs("ghost", true, target).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	pool.ExpectRollback()

	err := repo.Update(context.Background(), "ghost", library.AssetUpdate{FolderID: library.SetID(target)})

	assert.ErrorIs(t, err, ErrAssetNotFound)
	require.NoError(t, pool.ExpectationsWereMet())
}

type recordingRemover struct {
	removed []ObjectRef
	err     error
}

func (r *recordingRemover) Remove(_ context.Context, bucket, key string) error {
	r.removed = append(r.removed, ObjectRef{Bucket: bucket, Key: key})
	return r.err
}

func TestLibraryDeleteAssetRemovesObject(t *testing.T) {
	pool := newMock(t)
	remover := &recordingRemover{err: errors.New("s3 hiccup")}
	lib := NewLibrary(NewFolderRepository(pool), NewAssetRepository(pool), remover, zerolog.Nop())

	pool.ExpectQuery("DELETE FROM assets WHERE id").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows([]string{"bucket", "object_key"}).AddRow("assets", "k/a1.jpg"))

	err := lib.DeleteAsset(context.Background(), "a1")

	require.NoError(t, err, "object cleanup failures do not fail the delete")
	assert.Equal(t, []ObjectRef{{Bucket: "assets", Key: "k/a1.jpg"}}, remover.removed)
}

func TestLibraryDeleteAssetNotFound(t *testing.T) {
	pool := newMock(t)
	remover := &recordingRemover{}
	lib := NewLibrary(NewFolderRepository(pool), NewAssetRepository(pool), remover, zerolog.Nop())

	pool.ExpectQuery("DELETE FROM assets WHERE id").
		WithArgs("a1").
		WillReturnError(pgx.ErrNoRows)

	err := lib.DeleteAsset(context.Background(), "a1")

	assert.ErrorIs(t, err, ErrAssetNotFound)
	assert.Empty(t, remover.removed)
}

func TestAssetMarkReady(t *testing.T) {
	pool := newMock(t)
	repo := NewAssetRepository(pool)
	now := time.Now()
	width, height := 640, 480

	pool.ExpectExec("UPDATE assets SET status = 'ready'").
		WithArgs("a1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectQuery("FROM assets a WHERE a.id").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "filename", "url", "mime_type", "size_bytes", "width", "height",
			"folder_id", "status", "bucket", "object_key", "created_at", "updated_at", "tag_ids", "tag_names",
		}).AddRow(
			"a1", "cat.jpg", "https://cdn/assets/k/a1.jpg", "image/jpeg", int64(2048), &width, &height,
			strPtr("f1"), models.AssetStatusReady, "assets", "k/a1.jpg", now, now,
			[]string{"t1"}, []string{"pets"},
		))

	asset, err := repo.MarkReady(context.Background(), "a1")

	require.NoError(t, err)
	assert.Equal(t, models.AssetStatusReady, asset.Status)
	assert.Equal(t, []models.Tag{{ID: "t1", Name: "pets"}}, asset.Tags)
	assert.Equal(t, 640, *asset.Width)
	assert.Equal(t, "f1", *asset.FolderID)
}
