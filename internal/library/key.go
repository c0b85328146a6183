package library

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the rows of a combined listing.
type Kind uint8

const (
	KindFolder Kind = iota + 1
	KindAsset
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindAsset:
		return "asset"
	default:
		return "unknown"
	}
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "folder":
		return KindFolder, nil
	case "asset":
		return KindAsset, nil
	default:
		return 0, fmt.Errorf("unknown key kind %q", s)
	}
}

// Key addresses exactly one row of a combined listing: a folder or an asset.
// The zero Key addresses nothing.
type Key struct {
	kind Kind
	id   string
}

func FolderKey(id string) Key { return Key{kind: KindFolder, id: id} }

func AssetKey(id string) Key { return Key{kind: KindAsset, id: id} }

func (k Key) Kind() Kind { return k.kind }

func (k Key) ID() string { return k.id }

func (k Key) IsZero() bool { return k.kind == 0 }

func (k Key) String() string {
	return k.kind.String() + ":" + k.id
}

type keyJSON struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(keyJSON{Kind: k.kind.String(), ID: k.id})
}

func (k *Key) UnmarshalJSON(data []byte) error {
	var raw keyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := ParseKind(raw.Kind)
	if err != nil {
		return err
	}
	if raw.ID == "" {
		return fmt.Errorf("%s key without id", raw.Kind)
	}
	*k = Key{kind: kind, id: raw.ID}
	return nil
}

// SplitKeys partitions keys into folder ids and asset ids, preserving order.
func SplitKeys(keys []Key) (folderIDs, assetIDs []string) {
	for _, key := range keys {
		switch key.kind {
		case KindFolder:
			folderIDs = append(folderIDs, key.id)
		case KindAsset:
			assetIDs = append(assetIDs, key.id)
		}
	}
	return folderIDs, assetIDs
}
