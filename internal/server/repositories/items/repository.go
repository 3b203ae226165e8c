package items

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, item *models.Item) (*models.Item, error)
	GetByID(ctx context.Context, ownerID int64, itemID int64) (*models.Item, error)
	SelectChildren(ctx context.Context, ownerID int64, parentID *int64) ([]*models.Item, error)
	SelectChildrenOf(ctx context.Context, ownerID int64, parentIDs []int64) ([]*models.Item, error)
	DeleteByIDs(ctx context.Context, ids []int64) error
	UpdateName(ctx context.Context, ownerID int64, itemID int64, name string) error
	UpdatePrivacy(ctx context.Context, ownerID int64, itemID int64, isPrivate bool) error
	SetShareCode(ctx context.Context, ownerID int64, itemID int64, code string) error
	GetFileByShareCode(ctx context.Context, code string) (*models.Item, error)
	ShareCodeExists(ctx context.Context, code string) (bool, error)
}
