package library

import "medialib/internal/models"

// Listing is the ordered, addressable space used for range selection:
// the current folder's subfolders first, then its assets.
//
// The order must only depend on the folders and assets passed in. Rebuilding a
// listing from the same inputs yields the same indices, which is what keeps
// shift-click ranges stable across unrelated re-renders.
type Listing struct {
	keys  []Key
	index map[Key]int
}

func BuildListing(folders []models.Folder, assets []models.Asset) Listing {
	keys := make([]Key, 0, len(folders)+len(assets))
	for _, folder := range folders {
		keys = append(keys, FolderKey(folder.ID))
	}
	for _, asset := range assets {
		keys = append(keys, AssetKey(asset.ID))
	}
	return NewListing(keys...)
}

// NewListing builds a listing from keys in the given order. A key repeated
// later in the sequence is dropped so every key resolves to a single index.
func NewListing(keys ...Key) Listing {
	l := Listing{
		keys:  make([]Key, 0, len(keys)),
		index: make(map[Key]int, len(keys)),
	}
	for _, key := range keys {
		if key.IsZero() {
			continue
		}
		if _, dup := l.index[key]; dup {
			continue
		}
		l.index[key] = len(l.keys)
		l.keys = append(l.keys, key)
	}
	return l
}

func (l Listing) Len() int { return len(l.keys) }

func (l Listing) At(i int) (Key, bool) {
	if i < 0 || i >= len(l.keys) {
		return Key{}, false
	}
	return l.keys[i], true
}

func (l Listing) IndexOf(key Key) (int, bool) {
	i, ok := l.index[key]
	return i, ok
}

// Keys returns a copy of the listing order.
func (l Listing) Keys() []Key {
	out := make([]Key, len(l.keys))
	copy(out, l.keys)
	return out
}
