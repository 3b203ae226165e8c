package items

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func itemRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "owner_id", "parent_id", "name", "item_type", "stored_key",
		"size", "mime", "share_code", "is_private", "created_at",
	})
}

func TestCreate_File(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+items\s*\(owner_id,\s*parent_id,\s*name,\s*item_type,\s*stored_key,\s*size,\s*mime,\s*share_code,\s*is_private\)`

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(10), created)
	mock.ExpectQuery(q).
		WithArgs(int64(1), nil, "report.pdf", models.ItemTypeFile, "key-1", int64(2048), "application/pdf", "abcdef0123456789", true).
		WillReturnRows(rows)

	item := &models.Item{
		OwnerID:   1,
		Name:      "report.pdf",
		Type:      models.ItemTypeFile,
		StoredKey: "key-1",
		Size:      2048,
		Mime:      "application/pdf",
		ShareCode: "abcdef0123456789",
		IsPrivate: true,
	}
	got, err := repo.Create(context.Background(), item)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != 10 || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected item: %+v", got)
	}
}

func TestCreate_Folder_NullableColumns(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+items`

	rows := sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), time.Now())
	// folders carry no stored key, mime, or share code: all NULL
	mock.ExpectQuery(q).
		WithArgs(int64(1), nil, "docs", models.ItemTypeFolder, nil, int64(0), nil, nil, true).
		WillReturnRows(rows)

	item := &models.Item{OwnerID: 1, Name: "docs", Type: models.ItemTypeFolder, IsPrivate: true}
	if _, err := repo.Create(context.Background(), item); err != nil {
		t.Fatalf("Create error: %v", err)
	}
}

func TestCreate_ShareCodeCollision(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+items`).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	item := &models.Item{OwnerID: 1, Name: "a", Type: models.ItemTypeFile, ShareCode: "dup"}
	_, err := repo.Create(context.Background(), item)
	if !errors.Is(err, common.ErrorConflict) {
		t.Fatalf("want common.ErrorConflict, got %v", err)
	}
}

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+.*\s+FROM\s+items\s+WHERE\s+id\s*=\s*\$1\s+AND\s+owner_id\s*=\s*\$2\s*$`

	rows := itemRows().AddRow(int64(5), int64(1), int64(2), "a.txt", "file", "key-a",
		int64(10), "text/plain", "code-a", false, time.Now())
	mock.ExpectQuery(q).WithArgs(int64(5), int64(1)).WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.ID != 5 || got.ParentID == nil || *got.ParentID != 2 {
		t.Fatalf("unexpected item: %+v", got)
	}
	if got.StoredKey != "key-a" || got.ShareCode != "code-a" || got.IsPrivate {
		t.Fatalf("unexpected item: %+v", got)
	}
}

func TestGetByID_OtherOwnerIsNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+.*\s+FROM\s+items\s+WHERE\s+id`).
		WithArgs(int64(5), int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99, 5)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestSelectChildren_Roots(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+.*\s+FROM\s+items\s+WHERE\s+owner_id\s*=\s*\$1\s+AND\s+parent_id\s+IS\s+NULL\s*$`

	rows := itemRows().
		AddRow(int64(1), int64(1), nil, "docs", "folder", nil, int64(0), nil, nil, true, time.Now()).
		AddRow(int64(2), int64(1), nil, "b.txt", "file", "key-b", int64(3), "text/plain", "code-b", true, time.Now())
	mock.ExpectQuery(q).WithArgs(int64(1)).WillReturnRows(rows)

	got, err := repo.SelectChildren(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("SelectChildren error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0].ParentID != nil || got[0].StoredKey != "" || got[0].ShareCode != "" {
		t.Fatalf("folder nullable columns not zeroed: %+v", got[0])
	}
}

func TestSelectChildren_OfFolder(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+.*\s+FROM\s+items\s+WHERE\s+owner_id\s*=\s*\$1\s+AND\s+parent_id\s*=\s*\$2\s*$`

	rows := itemRows().
		AddRow(int64(3), int64(1), int64(1), "nested.txt", "file", "key-n", int64(1), nil, "code-n", true, time.Now())
	mock.ExpectQuery(q).WithArgs(int64(1), int64(1)).WillReturnRows(rows)

	parent := int64(1)
	got, err := repo.SelectChildren(context.Background(), 1, &parent)
	if err != nil {
		t.Fatalf("SelectChildren error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "nested.txt" {
		t.Fatalf("unexpected items: %+v", got)
	}
}

func TestSelectChildrenOf_BuildsPlaceholders(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+.*\s+FROM\s+items\s+WHERE\s+owner_id\s*=\s*\$1\s+AND\s+parent_id\s+IN\s+\(\$2,\s*\$3\)\s*$`

	rows := itemRows().
		AddRow(int64(7), int64(1), int64(5), "x", "file", "key-x", int64(1), nil, "code-x", true, time.Now())
	mock.ExpectQuery(q).WithArgs(int64(1), int64(5), int64(6)).WillReturnRows(rows)

	got, err := repo.SelectChildrenOf(context.Background(), 1, []int64{5, 6})
	if err != nil {
		t.Fatalf("SelectChildrenOf error: %v", err)
	}
	if len(got) != 1 || got[0].ID != 7 {
		t.Fatalf("unexpected items: %+v", got)
	}
}

func TestSelectChildrenOf_EmptyFrontier(t *testing.T) {
	repo, _, db := newRepoWithMock(t)
	defer db.Close()

	got, err := repo.SelectChildrenOf(context.Background(), 1, nil)
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for empty frontier, got %v, %v", got, err)
	}
}

func TestDeleteByIDs(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^DELETE\s+FROM\s+items\s+WHERE\s+id\s+IN\s+\(\$1,\s*\$2,\s*\$3\)\s*$`
	mock.ExpectExec(q).
		WithArgs(int64(1), int64(2), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := repo.DeleteByIDs(context.Background(), []int64{1, 2, 3}); err != nil {
		t.Fatalf("DeleteByIDs error: %v", err)
	}
}

func TestUpdateName_NotOwned(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+items\s+SET\s+name\s*=\s*\$1\s+WHERE\s+id\s*=\s*\$2\s+AND\s+owner_id\s*=\s*\$3\s*$`
	mock.ExpectExec(q).
		WithArgs("new", int64(5), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateName(context.Background(), 99, 5, "new")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestUpdatePrivacy_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+items\s+SET\s+is_private\s*=\s*\$1\s+WHERE\s+id\s*=\s*\$2\s+AND\s+owner_id\s*=\s*\$3\s*$`
	mock.ExpectExec(q).
		WithArgs(false, int64(5), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdatePrivacy(context.Background(), 1, 5, false); err != nil {
		t.Fatalf("UpdatePrivacy error: %v", err)
	}
}

func TestSetShareCode_Collision(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+items\s+SET\s+share_code`).
		WithArgs("dup", int64(5), int64(1)).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	err := repo.SetShareCode(context.Background(), 1, 5, "dup")
	if !errors.Is(err, common.ErrorConflict) {
		t.Fatalf("want common.ErrorConflict, got %v", err)
	}
}

func TestGetFileByShareCode_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+i\.id,.*\s+FROM\s+items\s+i\s+JOIN\s+users\s+u\s+ON\s+u\.id\s*=\s*i\.owner_id\s+WHERE\s+i\.item_type\s*=\s*'file'\s+AND\s+i\.share_code\s*=\s*\$1\s*$`

	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "parent_id", "name", "item_type", "stored_key",
		"size", "mime", "share_code", "is_private", "created_at", "username",
	}).AddRow(int64(5), int64(1), nil, "a.txt", "file", "key-a",
		int64(10), "text/plain", "code-a", false, time.Now(), "alice")
	mock.ExpectQuery(q).WithArgs("code-a").WillReturnRows(rows)

	got, err := repo.GetFileByShareCode(context.Background(), "code-a")
	if err != nil {
		t.Fatalf("GetFileByShareCode error: %v", err)
	}
	if got.OwnerName != "alice" || got.ShareCode != "code-a" || got.IsPrivate {
		t.Fatalf("unexpected item: %+v", got)
	}
}

func TestGetFileByShareCode_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*SELECT\s+i\.id`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetFileByShareCode(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestShareCodeExists(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+1\s+FROM\s+items\s+WHERE\s+share_code\s*=\s*\$1\s*$`

	mock.ExpectQuery(q).WithArgs("taken").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(q).WithArgs("free").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ShareCodeExists(context.Background(), "taken")
	if err != nil || !exists {
		t.Fatalf("expected exists=true, got %v, %v", exists, err)
	}
	exists, err = repo.ShareCodeExists(context.Background(), "free")
	if err != nil || exists {
		t.Fatalf("expected exists=false, got %v, %v", exists, err)
	}
}

func TestShareCodeExists_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+1\s+FROM\s+items`).
		WithArgs("x").
		WillReturnError(errors.New("db down"))

	_, err := repo.ShareCodeExists(context.Background(), "x")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
