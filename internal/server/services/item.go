package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/blob"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/items"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
)

// defaultFolderName is used when a folder is created with an empty name.
const defaultFolderName = "New folder"

// ListResult is a folder listing plus the folder itself (nil at the root).
type ListResult struct {
	Items         []*models.Item
	CurrentFolder *models.Item
}

// ItemService owns the per-user item tree: listing, folder creation, file
// uploads, renames, privacy toggles, downloads, and recursive deletion.
type ItemService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blob.Store
	shares      *ShareService
	logger      logging.Logger
}

// NewItemService constructs an ItemService.
func NewItemService(db *sql.DB, m repomanager.RepositoryManager, blobs blob.Store, shares *ShareService, logger logging.Logger) *ItemService {
	return &ItemService{
		db:          db,
		repomanager: m,
		blobs:       blobs,
		shares:      shares,
		logger:      logger,
	}
}

// sortChildren orders a listing: folders before files, then names ascending
// case-insensitively, ties broken by id. The ordering is part of the listing
// contract, so it lives here rather than in SQL.
func sortChildren(list []*models.Item) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.ID < b.ID
	})
}

// resolveParentFolder validates that parentID, when given, is a folder owned
// by ownerID. Anything else, including another user's folder, is
// common.ErrorNotFound.
func (s *ItemService) resolveParentFolder(ctx context.Context, repo items.Repository, ownerID int64, parentID *int64) (*models.Item, error) {
	if parentID == nil {
		return nil, nil
	}
	parent, err := repo.GetByID(ctx, ownerID, *parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsFolder() {
		return nil, common.ErrorNotFound
	}
	return parent, nil
}

// ListChildren returns the direct children of a folder (or the user's roots
// when parentID is nil) in the contract order.
func (s *ItemService) ListChildren(ctx context.Context, ownerID int64, parentID *int64) (*ListResult, error) {
	repo := s.repomanager.Items(s.db)

	current, err := s.resolveParentFolder(ctx, repo, ownerID, parentID)
	if err != nil {
		return nil, err
	}

	children, err := repo.SelectChildren(ctx, ownerID, parentID)
	if err != nil {
		return nil, err
	}
	sortChildren(children)

	return &ListResult{Items: children, CurrentFolder: current}, nil
}

// CreateFolder creates a folder under parentID (or at the root). An empty
// name gets a fixed placeholder instead of failing.
func (s *ItemService) CreateFolder(ctx context.Context, ownerID int64, name string, parentID *int64) (*models.Item, error) {
	repo := s.repomanager.Items(s.db)

	if _, err := s.resolveParentFolder(ctx, repo, ownerID, parentID); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultFolderName
	}

	return repo.Create(ctx, &models.Item{
		OwnerID:   ownerID,
		ParentID:  parentID,
		Name:      name,
		Type:      models.ItemTypeFolder,
		IsPrivate: true,
	})
}

// CreateFile records an uploaded blob as a file item. A fresh unique share
// code is issued in the same transaction; files start private.
func (s *ItemService) CreateFile(ctx context.Context, ownerID int64, name string, parentID *int64, storedKey string, size int64, mime string) (*models.Item, error) {
	if _, err := s.resolveParentFolder(ctx, s.repomanager.Items(s.db), ownerID, parentID); err != nil {
		return nil, err
	}

	var created *models.Item
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		code, err := s.shares.IssueUniqueCode(ctx, tx)
		if err != nil {
			return err
		}

		created, err = s.repomanager.Items(tx).Create(ctx, &models.Item{
			OwnerID:   ownerID,
			ParentID:  parentID,
			Name:      name,
			Type:      models.ItemTypeFile,
			StoredKey: storedKey,
			Size:      size,
			Mime:      mime,
			ShareCode: code,
			IsPrivate: true,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Upload streams the content into blob storage and records it as a file
// item. When the metadata write fails the stored blob is unlinked again.
func (s *ItemService) Upload(ctx context.Context, ownerID int64, name string, parentID *int64, mime string, r io.Reader) (*models.Item, error) {
	if name == "" {
		return nil, common.ErrorBadRequest
	}

	key, size, err := s.blobs.Save(ctx, name, r)
	if err != nil {
		return nil, fmt.Errorf("error storing file: %w", err)
	}

	item, err := s.CreateFile(ctx, ownerID, name, parentID, key, size, mime)
	if err != nil {
		if unlinkErr := s.blobs.Unlink(ctx, key); unlinkErr != nil {
			s.logger.Warn(ctx, "failed to unlink orphaned blob", "key", key, "error", unlinkErr)
		}
		return nil, err
	}
	return item, nil
}

// Rename changes an item's name and returns the updated item. A name that
// trims to empty is rejected; there is no placeholder fallback on rename.
func (s *ItemService) Rename(ctx context.Context, ownerID int64, itemID int64, newName string) (*models.Item, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, common.ErrorBadRequest
	}

	repo := s.repomanager.Items(s.db)
	if err := repo.UpdateName(ctx, ownerID, itemID, newName); err != nil {
		return nil, err
	}
	return repo.GetByID(ctx, ownerID, itemID)
}

// SetPrivacy toggles a file's public visibility and returns the updated
// item. Folders have no privacy flag and yield common.ErrorBadRequest.
func (s *ItemService) SetPrivacy(ctx context.Context, ownerID int64, itemID int64, isPrivate bool) (*models.Item, error) {
	repo := s.repomanager.Items(s.db)

	item, err := repo.GetByID(ctx, ownerID, itemID)
	if err != nil {
		return nil, err
	}
	if item.IsFolder() {
		return nil, common.ErrorBadRequest
	}

	if err := repo.UpdatePrivacy(ctx, ownerID, itemID, isPrivate); err != nil {
		return nil, err
	}
	return repo.GetByID(ctx, ownerID, itemID)
}

// collectSubtree walks the parent-child edge breadth-first starting at the
// root ids, restricted to ownerID at every step, and returns all item ids in
// the subtree plus the storage keys of every file in it.
func collectSubtree(ctx context.Context, repo items.Repository, ownerID int64, root *models.Item) ([]int64, []string, error) {
	ids := []int64{root.ID}
	var keys []string
	if !root.IsFolder() && root.StoredKey != "" {
		keys = append(keys, root.StoredKey)
	}

	frontier := []int64{root.ID}
	for len(frontier) > 0 {
		children, err := repo.SelectChildrenOf(ctx, ownerID, frontier)
		if err != nil {
			return nil, nil, err
		}

		frontier = frontier[:0]
		for _, c := range children {
			ids = append(ids, c.ID)
			if c.IsFolder() {
				frontier = append(frontier, c.ID)
			} else if c.StoredKey != "" {
				keys = append(keys, c.StoredKey)
			}
		}
	}
	return ids, keys, nil
}

// DeleteSubtree removes an item and every descendant in one transaction,
// then unlinks the released blobs. Metadata is authoritative: a blob that
// fails to unlink is logged and skipped, never rolled back over.
func (s *ItemService) DeleteSubtree(ctx context.Context, ownerID int64, itemID int64) error {
	var releasedKeys []string

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Items(tx)

		root, err := repo.GetByID(ctx, ownerID, itemID)
		if err != nil {
			return err
		}

		ids, keys, err := collectSubtree(ctx, repo, ownerID, root)
		if err != nil {
			return err
		}

		if err := repo.DeleteByIDs(ctx, ids); err != nil {
			return err
		}

		releasedKeys = keys
		return nil
	})
	if err != nil {
		return err
	}

	for _, key := range releasedKeys {
		if err := s.blobs.Unlink(ctx, key); err != nil {
			s.logger.Warn(ctx, "failed to unlink blob after delete", "key", key, "error", err)
		}
	}
	return nil
}

// Download opens an owned file's content. Folders look like missing files
// to the caller; metadata without a backing blob yields
// common.ErrorInternal.
func (s *ItemService) Download(ctx context.Context, ownerID int64, itemID int64) (*models.Item, io.ReadCloser, error) {
	item, err := s.repomanager.Items(s.db).GetByID(ctx, ownerID, itemID)
	if err != nil {
		return nil, nil, err
	}
	if item.IsFolder() {
		return nil, nil, common.ErrorNotFound
	}

	rc, err := s.blobs.Open(ctx, item.StoredKey)
	if err != nil {
		s.logger.Error(ctx, "blob missing for stored file", "key", item.StoredKey, "error", err)
		return nil, nil, common.ErrorInternal
	}
	return item, rc, nil
}
