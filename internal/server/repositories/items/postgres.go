// Package items provides a PostgreSQL-backed repository for the per-user
// file/folder tree. Every query that walks or mutates the tree filters on
// owner_id, so a traversal can never cross into another user's items.
package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const itemColumns = `id, owner_id, parent_id, name, item_type, stored_key, size, mime, share_code, is_private, created_at`

// PostgresRepository implements item storage over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*models.Item, error) {
	item := &models.Item{}
	var parentID sql.NullInt64
	var storedKey, mime, shareCode sql.NullString

	if err := s.Scan(&item.ID, &item.OwnerID, &parentID, &item.Name, &item.Type,
		&storedKey, &item.Size, &mime, &shareCode, &item.IsPrivate, &item.CreatedAt); err != nil {
		return nil, err
	}

	if parentID.Valid {
		v := parentID.Int64
		item.ParentID = &v
	}
	item.StoredKey = storedKey.String
	item.Mime = mime.String
	item.ShareCode = shareCode.String
	return item, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Create inserts a new item row and returns it with id and created_at
// filled in. A share-code collision surfaces as common.ErrorConflict.
func (r *PostgresRepository) Create(ctx context.Context, item *models.Item) (*models.Item, error) {
	query := `
		INSERT INTO items (owner_id, parent_id, name, item_type, stored_key, size, mime, share_code, is_private)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		item.OwnerID, item.ParentID, item.Name, item.Type,
		nullString(item.StoredKey), item.Size, nullString(item.Mime),
		nullString(item.ShareCode), item.IsPrivate).
		Scan(&item.ID, &item.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return item, nil
}

// GetByID returns the item with the given id owned by ownerID.
// If not found (or owned by someone else), it returns common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, ownerID int64, itemID int64) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1 AND owner_id = $2`

	item, err := scanItem(r.db.QueryRowContext(ctx, query, itemID, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return item, nil
}

// SelectChildren returns the direct children of parentID for ownerID.
// A nil parentID selects the root items. No ordering is applied here;
// the listing order is a service-level contract.
func (r *PostgresRepository) SelectChildren(ctx context.Context, ownerID int64, parentID *int64) ([]*models.Item, error) {
	var rows *sql.Rows
	var err error

	if parentID == nil {
		query := `SELECT ` + itemColumns + ` FROM items WHERE owner_id = $1 AND parent_id IS NULL`
		rows, err = r.db.QueryContext(ctx, query, ownerID)
	} else {
		query := `SELECT ` + itemColumns + ` FROM items WHERE owner_id = $1 AND parent_id = $2`
		rows, err = r.db.QueryContext(ctx, query, ownerID, *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// SelectChildrenOf returns the direct children of every parent in parentIDs,
// restricted to ownerID. It is the frontier step of the subtree closure.
func (r *PostgresRepository) SelectChildrenOf(ctx context.Context, ownerID int64, parentIDs []int64) ([]*models.Item, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(parentIDs))
	args := make([]any, 0, len(parentIDs)+1)
	args = append(args, ownerID)
	for i, id := range parentIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := `SELECT ` + itemColumns + ` FROM items WHERE owner_id = $1 AND parent_id IN (` +
		strings.Join(placeholders, ", ") + `)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

func collectItems(rows *sql.Rows) ([]*models.Item, error) {
	var result []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteByIDs removes the given item rows. The caller is expected to pass a
// closed subtree so no dangling parent references remain.
func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := `DELETE FROM items WHERE id IN (` + strings.Join(placeholders, ", ") + `)`
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateName renames an owned item. Zero affected rows means the item is
// absent or owned by someone else: common.ErrorNotFound either way.
func (r *PostgresRepository) UpdateName(ctx context.Context, ownerID int64, itemID int64, name string) error {
	query := `UPDATE items SET name = $1 WHERE id = $2 AND owner_id = $3`

	res, err := r.db.ExecContext(ctx, query, name, itemID, ownerID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// UpdatePrivacy toggles the privacy flag of an owned item.
func (r *PostgresRepository) UpdatePrivacy(ctx context.Context, ownerID int64, itemID int64, isPrivate bool) error {
	query := `UPDATE items SET is_private = $1 WHERE id = $2 AND owner_id = $3`

	res, err := r.db.ExecContext(ctx, query, isPrivate, itemID, ownerID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// SetShareCode assigns a share code to an owned item. A collision with an
// existing code surfaces as common.ErrorConflict via the unique index.
func (r *PostgresRepository) SetShareCode(ctx context.Context, ownerID int64, itemID int64, code string) error {
	query := `UPDATE items SET share_code = $1 WHERE id = $2 AND owner_id = $3`

	res, err := r.db.ExecContext(ctx, query, code, itemID, ownerID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// GetFileByShareCode returns the file carrying the given share code, with
// OwnerName populated for the public metadata payload. Privacy is not
// checked here; that is the share registry's decision.
func (r *PostgresRepository) GetFileByShareCode(ctx context.Context, code string) (*models.Item, error) {
	query := `
		SELECT i.id, i.owner_id, i.parent_id, i.name, i.item_type, i.stored_key,
		       i.size, i.mime, i.share_code, i.is_private, i.created_at, u.username
		FROM items i
		JOIN users u ON u.id = i.owner_id
		WHERE i.item_type = 'file' AND i.share_code = $1
	`

	item := &models.Item{}
	var parentID sql.NullInt64
	var storedKey, mime, shareCode sql.NullString

	err := r.db.QueryRowContext(ctx, query, code).
		Scan(&item.ID, &item.OwnerID, &parentID, &item.Name, &item.Type,
			&storedKey, &item.Size, &mime, &shareCode, &item.IsPrivate, &item.CreatedAt,
			&item.OwnerName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if parentID.Valid {
		v := parentID.Int64
		item.ParentID = &v
	}
	item.StoredKey = storedKey.String
	item.Mime = mime.String
	item.ShareCode = shareCode.String
	return item, nil
}

// ShareCodeExists reports whether any item already carries the given code.
func (r *PostgresRepository) ShareCodeExists(ctx context.Context, code string) (bool, error) {
	query := `SELECT 1 FROM items WHERE share_code = $1`

	var one int
	err := r.db.QueryRowContext(ctx, query, code).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}
