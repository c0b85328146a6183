package models

import "time"

type AssetStatus string

const (
	AssetStatusReserved AssetStatus = "reserved"
	AssetStatusReady    AssetStatus = "ready"
)

type Tag struct {
	ID   string
	Name string
}

type Asset struct {
	ID        string
	Filename  string
	URL       string
	MimeType  string
	SizeBytes int64
	Width     *int
	Height    *int
	FolderID  *string
	Tags      []Tag
	Status    AssetStatus
	Bucket    string
	ObjectKey string
	CreatedAt time.Time
	UpdatedAt time.Time
}
