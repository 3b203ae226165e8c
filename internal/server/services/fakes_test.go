package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	itemsrepo "github.com/dmitrijs2005/filevault/internal/server/repositories/items"
	tokensrepo "github.com/dmitrijs2005/filevault/internal/server/repositories/tokens"
	usersrepo "github.com/dmitrijs2005/filevault/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (nopLogger) With(...any) logging.Logger            { return nopLogger{} }

// --- users ---

type fakeUsersRepo struct {
	nextID    int64
	byName    map[string]*models.User
	createErr error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byName: map[string]*models.User{}}
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byName[u.Username]; ok {
		return nil, common.ErrorConflict
	}
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt = time.Now()
	f.byName[u.Username] = u
	return u, nil
}

func (f *fakeUsersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	u, ok := f.byName[username]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	for _, u := range f.byName {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

// --- tokens ---

type fakeTokensRepo struct {
	tokens    map[string]*models.SessionToken
	createErr error
	deleted   []string
}

func newFakeTokensRepo() *fakeTokensRepo {
	return &fakeTokensRepo{tokens: map[string]*models.SessionToken{}}
}

func (f *fakeTokensRepo) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.tokens[token] = &models.SessionToken{Token: token, UserID: userID, ExpiresAt: expiresAt}
	return nil
}

func (f *fakeTokensRepo) Find(ctx context.Context, token string) (*models.SessionToken, error) {
	st, ok := f.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return st, nil
}

func (f *fakeTokensRepo) Delete(ctx context.Context, token string) error {
	f.deleted = append(f.deleted, token)
	delete(f.tokens, token)
	return nil
}

// --- items ---

// fakeItemsRepo keeps items in a map so traversal and ordering logic can be
// tested against realistic tree shapes.
type fakeItemsRepo struct {
	nextID int64
	items  map[int64]*models.Item

	createErr       error
	shareCodeExists func(code string) bool
	deletedBatches  [][]int64
}

func newFakeItemsRepo() *fakeItemsRepo {
	return &fakeItemsRepo{items: map[int64]*models.Item{}}
}

func (f *fakeItemsRepo) add(item *models.Item) *models.Item {
	f.nextID++
	item.ID = f.nextID
	item.CreatedAt = time.Now()
	f.items[item.ID] = item
	return item
}

func (f *fakeItemsRepo) Create(ctx context.Context, item *models.Item) (*models.Item, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.add(item), nil
}

func (f *fakeItemsRepo) GetByID(ctx context.Context, ownerID int64, itemID int64) (*models.Item, error) {
	item, ok := f.items[itemID]
	if !ok || item.OwnerID != ownerID {
		return nil, common.ErrorNotFound
	}
	return item, nil
}

func (f *fakeItemsRepo) SelectChildren(ctx context.Context, ownerID int64, parentID *int64) ([]*models.Item, error) {
	var out []*models.Item
	for _, item := range f.items {
		if item.OwnerID != ownerID {
			continue
		}
		if parentID == nil && item.ParentID == nil {
			out = append(out, item)
		} else if parentID != nil && item.ParentID != nil && *item.ParentID == *parentID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeItemsRepo) SelectChildrenOf(ctx context.Context, ownerID int64, parentIDs []int64) ([]*models.Item, error) {
	var out []*models.Item
	for _, item := range f.items {
		if item.OwnerID != ownerID || item.ParentID == nil {
			continue
		}
		for _, pid := range parentIDs {
			if *item.ParentID == pid {
				out = append(out, item)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeItemsRepo) DeleteByIDs(ctx context.Context, ids []int64) error {
	f.deletedBatches = append(f.deletedBatches, ids)
	for _, id := range ids {
		delete(f.items, id)
	}
	return nil
}

func (f *fakeItemsRepo) UpdateName(ctx context.Context, ownerID int64, itemID int64, name string) error {
	item, err := f.GetByID(ctx, ownerID, itemID)
	if err != nil {
		return err
	}
	item.Name = name
	return nil
}

func (f *fakeItemsRepo) UpdatePrivacy(ctx context.Context, ownerID int64, itemID int64, isPrivate bool) error {
	item, err := f.GetByID(ctx, ownerID, itemID)
	if err != nil {
		return err
	}
	item.IsPrivate = isPrivate
	return nil
}

func (f *fakeItemsRepo) SetShareCode(ctx context.Context, ownerID int64, itemID int64, code string) error {
	item, err := f.GetByID(ctx, ownerID, itemID)
	if err != nil {
		return err
	}
	item.ShareCode = code
	return nil
}

func (f *fakeItemsRepo) GetFileByShareCode(ctx context.Context, code string) (*models.Item, error) {
	for _, item := range f.items {
		if !item.IsFolder() && item.ShareCode == code {
			return item, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeItemsRepo) ShareCodeExists(ctx context.Context, code string) (bool, error) {
	if f.shareCodeExists != nil {
		return f.shareCodeExists(code), nil
	}
	for _, item := range f.items {
		if item.ShareCode == code {
			return true, nil
		}
	}
	return false, nil
}

// --- repository manager ---

type fakeRepoManager struct {
	u *fakeUsersRepo
	t *fakeTokensRepo
	i *fakeItemsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository      { return m.u }
func (m *fakeRepoManager) Tokens(db dbx.DBTX) tokensrepo.Repository    { return m.t }
func (m *fakeRepoManager) Items(db dbx.DBTX) itemsrepo.Repository      { return m.i }

// --- blobs ---

type fakeBlobStore struct {
	n       int
	saved   map[string][]byte
	saveErr error

	unlinkErr error
	unlinked  []string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{saved: map[string][]byte{}}
}

func (f *fakeBlobStore) Save(ctx context.Context, name string, r io.Reader) (string, int64, error) {
	if f.saveErr != nil {
		return "", 0, f.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	f.n++
	key := fmt.Sprintf("blob-%d", f.n)
	f.saved[key] = data
	return key, int64(len(data)), nil
}

func (f *fakeBlobStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.saved[key]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobStore) Unlink(ctx context.Context, key string) error {
	f.unlinked = append(f.unlinked, key)
	if f.unlinkErr != nil {
		return f.unlinkErr
	}
	delete(f.saved, key)
	return nil
}

func (f *fakeBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := f.saved[key]
	return ok, nil
}

func (f *fakeBlobStore) Size(ctx context.Context, key string) (int64, error) {
	data, ok := f.saved[key]
	if !ok {
		return 0, errors.New("blob not found")
	}
	return int64(len(data)), nil
}
