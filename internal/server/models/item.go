package models

import "time"

// ItemType discriminates the two node kinds of the ownership tree.
type ItemType string

const (
	ItemTypeFile   ItemType = "file"
	ItemTypeFolder ItemType = "folder"
)

// Item is a file or folder node in a user's ownership tree.
//
// Invariants: ParentID, when set, references a folder owned by the same
// user; ShareCode is set for files only and is unique across all items;
// StoredKey is the opaque blob reference for files (empty for folders).
type Item struct {
	ID        int64
	OwnerID   int64
	ParentID  *int64
	Name      string
	Type      ItemType
	StoredKey string
	Size      int64
	Mime      string
	ShareCode string
	IsPrivate bool
	CreatedAt time.Time

	// OwnerName is the owner's username, populated only by public
	// share-code lookups for the public metadata payload.
	OwnerName string
}

// IsFolder reports whether the item is a folder node.
func (i *Item) IsFolder() bool { return i.Type == ItemTypeFolder }
