package models

import "time"

type Folder struct {
	ID         string
	Name       string
	ParentID   *string
	ChildCount int
	AssetCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsEmpty reports whether the folder holds neither subfolders nor assets.
func (f Folder) IsEmpty() bool {
	return f.ChildCount == 0 && f.AssetCount == 0
}
