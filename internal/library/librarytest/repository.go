// Package librarytest provides an in-memory library.Repository for tests.
package librarytest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"medialib/internal/library"
	"medialib/internal/models"
)

var ErrNotFound = errors.New("not found")

// Repository keeps folders and assets in insertion order. Failures can be
// injected per id with FailUpdate and FailDelete.
type Repository struct {
	mu      sync.Mutex
	folders []*models.Folder
	assets  []*models.Asset
	seq     int

	failUpdate map[string]error
	failDelete map[string]error
	calls      []string
}

func NewRepository() *Repository {
	return &Repository{
		failUpdate: make(map[string]error),
		failDelete: make(map[string]error),
	}
}

// AddFolder inserts a folder with a fixed id.
func (r *Repository) AddFolder(id, name string, parentID *string) models.Folder {
	r.mu.Lock()
	defer r.mu.Unlock()
	folder := &models.Folder{ID: id, Name: name, ParentID: copyID(parentID), CreatedAt: time.Now()}
	r.folders = append(r.folders, folder)
	return *folder
}

// AddAsset inserts an asset with a fixed id.
func (r *Repository) AddAsset(id, filename string, folderID *string) models.Asset {
	r.mu.Lock()
	defer r.mu.Unlock()
	asset := &models.Asset{
		ID:        id,
		Filename:  filename,
		MimeType:  "image/jpeg",
		FolderID:  copyID(folderID),
		Status:    models.AssetStatusReady,
		CreatedAt: time.Now(),
	}
	r.assets = append(r.assets, asset)
	return *asset
}

func (r *Repository) FailUpdate(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failUpdate[id] = err
}

func (r *Repository) FailDelete(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failDelete[id] = err
}

// Calls returns the mutating calls made so far, e.g. "delete_asset:a1".
func (r *Repository) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *Repository) Folder(id string) (models.Folder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.findFolder(id)
	if f == nil {
		return models.Folder{}, false
	}
	return r.withCounts(*f), true
}

func (r *Repository) Asset(id string) (models.Asset, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.findAsset(id)
	if a == nil {
		return models.Asset{}, false
	}
	return *a, true
}

func (r *Repository) ListFolders(ctx context.Context, parentID *string) ([]models.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Folder
	for _, f := range r.folders {
		if sameID(f.ParentID, parentID) {
			out = append(out, r.withCounts(*f))
		}
	}
	return out, nil
}

func (r *Repository) ListAssets(ctx context.Context, folderID *string, filter library.AssetFilter) ([]models.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Asset
	for _, a := range r.assets {
		if !sameID(a.FolderID, folderID) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(a.Filename), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.MimePrefix != "" && !strings.HasPrefix(a.MimeType, filter.MimePrefix) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *Repository) GetFolder(ctx context.Context, id string) (models.Folder, error) {
	f, ok := r.Folder(id)
	if !ok {
		return models.Folder{}, fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	return f, nil
}

func (r *Repository) FolderAncestors(ctx context.Context, id string) ([]models.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.findFolder(id)
	if f == nil {
		return nil, fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	var chain []models.Folder
	seen := map[string]bool{id: true}
	for f.ParentID != nil {
		parent := r.findFolder(*f.ParentID)
		if parent == nil || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		chain = append(chain, r.withCounts(*parent))
		f = parent
	}
	return chain, nil
}

func (r *Repository) CreateFolder(ctx context.Context, name string, parentID *string) (models.Folder, error) {
	r.mu.Lock()
	r.seq++
	id := fmt.Sprintf("folder-%d", r.seq)
	r.mu.Unlock()
	return r.AddFolder(id, name, parentID), nil
}

func (r *Repository) UpdateFolder(ctx context.Context, id string, update library.FolderUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "update_folder:"+id)
	if err := r.failUpdate[id]; err != nil {
		return err
	}
	f := r.findFolder(id)
	if f == nil {
		return fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	if update.ParentID.Present {
		f.ParentID = copyID(update.ParentID.Value)
	}
	if update.Name != nil {
		f.Name = *update.Name
	}
	return nil
}

func (r *Repository) DeleteFolder(ctx context.Context, id string, recursive bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("delete_folder:%s:%t", id, recursive))
	if err := r.failDelete[id]; err != nil {
		return err
	}
	f := r.findFolder(id)
	if f == nil {
		return fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	counted := r.withCounts(*f)
	if !recursive && !counted.IsEmpty() {
		return fmt.Errorf("folder %s is not empty", id)
	}
	r.removeSubtree(id)
	return nil
}

func (r *Repository) UpdateAsset(ctx context.Context, id string, update library.AssetUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "update_asset:"+id)
	if err := r.failUpdate[id]; err != nil {
		return err
	}
	a := r.findAsset(id)
	if a == nil {
		return fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	if update.FolderID.Present {
		a.FolderID = copyID(update.FolderID.Value)
	}
	if update.TagIDs != nil {
		a.Tags = a.Tags[:0]
		for _, tagID := range update.TagIDs {
			a.Tags = append(a.Tags, models.Tag{ID: tagID})
		}
	}
	return nil
}

func (r *Repository) DeleteAsset(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "delete_asset:"+id)
	if err := r.failDelete[id]; err != nil {
		return err
	}
	for i, a := range r.assets {
		if a.ID == id {
			r.assets = append(r.assets[:i], r.assets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("asset %s: %w", id, ErrNotFound)
}

func (r *Repository) removeSubtree(id string) {
	var children []string
	for _, f := range r.folders {
		if f.ParentID != nil && *f.ParentID == id {
			children = append(children, f.ID)
		}
	}
	for _, child := range children {
		r.removeSubtree(child)
	}

	assets := r.assets[:0]
	for _, a := range r.assets {
		if a.FolderID == nil || *a.FolderID != id {
			assets = append(assets, a)
		}
	}
	r.assets = assets

	for i, f := range r.folders {
		if f.ID == id {
			r.folders = append(r.folders[:i], r.folders[i+1:]...)
			break
		}
	}
}

func (r *Repository) withCounts(f models.Folder) models.Folder {
	f.ChildCount, f.AssetCount = 0, 0
	for _, child := range r.folders {
		if child.ParentID != nil && *child.ParentID == f.ID {
			f.ChildCount++
		}
	}
	for _, a := range r.assets {
		if a.FolderID != nil && *a.FolderID == f.ID {
			f.AssetCount++
		}
	}
	f.ParentID = copyID(f.ParentID)
	return f
}

func (r *Repository) findFolder(id string) *models.Folder {
	for _, f := range r.folders {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (r *Repository) findAsset(id string) *models.Asset {
	for _, a := range r.assets {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func sameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// ID is a convenience for taking the address of a literal id.
func ID(id string) *string { return &id }
