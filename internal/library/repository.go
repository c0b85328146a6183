package library

import (
	"bytes"
	"context"
	"encoding/json"

	"medialib/internal/models"
)

// OptionalID distinguishes "leave unchanged" from "set to root" in updates:
//   - Present=false: field untouched
//   - Present=true, Value=nil: move to the root
//   - Present=true, Value=&id: move under id
type OptionalID struct {
	Present bool
	Value   *string
}

func SetID(id *string) OptionalID {
	return OptionalID{Present: true, Value: id}
}

func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Present = true
	if string(bytes.TrimSpace(data)) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

type FolderUpdate struct {
	ParentID OptionalID
	Name     *string
}

// AssetUpdate changes an asset's placement or tags. A nil TagIDs leaves tags
// untouched; an empty non-nil slice clears them.
type AssetUpdate struct {
	FolderID OptionalID
	TagIDs   []string
}

type AssetFilter struct {
	Search     string
	MimePrefix string
	TagIDs     []string
}

// Repository is the folder/asset store the engine works against. It carries
// no library logic of its own.
type Repository interface {
	ListFolders(ctx context.Context, parentID *string) ([]models.Folder, error)
	ListAssets(ctx context.Context, folderID *string, filter AssetFilter) ([]models.Asset, error)
	GetFolder(ctx context.Context, id string) (models.Folder, error)
	// FolderAncestors returns the chain of folders above id, nearest parent
	// first, ending at a root-level folder. A root-level folder has no ancestors.
	FolderAncestors(ctx context.Context, id string) ([]models.Folder, error)
	CreateFolder(ctx context.Context, name string, parentID *string) (models.Folder, error)
	UpdateFolder(ctx context.Context, id string, update FolderUpdate) error
	DeleteFolder(ctx context.Context, id string, recursive bool) error
	UpdateAsset(ctx context.Context, id string, update AssetUpdate) error
	DeleteAsset(ctx context.Context, id string) error
}

// LoadListing fetches the contents of folderID and builds its combined listing.
func LoadListing(ctx context.Context, repo Repository, folderID *string, filter AssetFilter) (Listing, []models.Folder, []models.Asset, error) {
	folders, err := repo.ListFolders(ctx, folderID)
	if err != nil {
		return Listing{}, nil, nil, err
	}
	assets, err := repo.ListAssets(ctx, folderID, filter)
	if err != nil {
		return Listing{}, nil, nil, err
	}
	return BuildListing(folders, assets), folders, assets, nil
}
