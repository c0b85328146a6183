package repository

import (
	"context"

	"github.com/rs/zerolog"

	"medialib/internal/library"
	"medialib/internal/models"
)

// ObjectRemover deletes stored bytes once their records are gone.
type ObjectRemover interface {
	Remove(ctx context.Context, bucket, key string) error
}

// Library is the Postgres-backed library.Repository. Object removal runs
// after the records are committed; a failure there leaves an orphaned object
// and is only logged.
type Library struct {
	folders *FolderRepository
	assets  *AssetRepository
	objects ObjectRemover
	log     zerolog.Logger
}

var _ library.Repository = (*Library)(nil)

func NewLibrary(folders *FolderRepository, assets *AssetRepository, objects ObjectRemover, log zerolog.Logger) *Library {
	return &Library{folders: folders, assets: assets, objects: objects, log: log}
}

func (l *Library) ListFolders(ctx context.Context, parentID *string) ([]models.Folder, error) {
	return l.folders.List(ctx, parentID)
}

func (l *Library) ListAssets(ctx context.Context, folderID *string, filter library.AssetFilter) ([]models.Asset, error) {
	return l.assets.List(ctx, folderID, filter)
}

func (l *Library) GetFolder(ctx context.Context, id string) (models.Folder, error) {
	return l.folders.GetByID(ctx, id)
}

func (l *Library) FolderAncestors(ctx context.Context, id string) ([]models.Folder, error) {
	return l.folders.Ancestors(ctx, id)
}

func (l *Library) CreateFolder(ctx context.Context, name string, parentID *string) (models.Folder, error) {
	return l.folders.Create(ctx, name, parentID)
}

func (l *Library) UpdateFolder(ctx context.Context, id string, update library.FolderUpdate) error {
	return l.folders.Update(ctx, id, update)
}

func (l *Library) DeleteFolder(ctx context.Context, id string, recursive bool) error {
	if !recursive {
		return l.folders.DeleteEmpty(ctx, id)
	}
	objects, err := l.folders.DeleteTree(ctx, id)
	if err != nil {
		return err
	}
	l.removeObjects(ctx, objects...)
	return nil
}

func (l *Library) UpdateAsset(ctx context.Context, id string, update library.AssetUpdate) error {
	return l.assets.Update(ctx, id, update)
}

func (l *Library) DeleteAsset(ctx context.Context, id string) error {
	ref, err := l.assets.Delete(ctx, id)
	if err != nil {
		return err
	}
	l.removeObjects(ctx, ref)
	return nil
}

func (l *Library) removeObjects(ctx context.Context, refs ...ObjectRef) {
	if l.objects == nil {
		return
	}
	for _, ref := range refs {
		if err := l.objects.Remove(ctx, ref.Bucket, ref.Key); err != nil {
			l.log.Warn().Err(err).
				Str("bucket", ref.Bucket).
				Str("object_key", ref.Key).
				Msg("remove object failed")
		}
	}
}
