package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/blob"
	"github.com/dmitrijs2005/filevault/internal/server/config"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
	"github.com/sethvargo/go-retry"
)

const (
	// shareCodeBytes is the entropy of a share code before hex encoding.
	shareCodeBytes = 8
	// shareCodeMaxAttempts bounds the generate-and-check loop. The database
	// uniqueness constraint stays the source of truth; the loop only keeps
	// the common case collision-free without a round trip to failure.
	shareCodeMaxAttempts = 50
)

var errCodeTaken = errors.New("share code already taken")

// ShareLink describes how a file can be reached publicly.
type ShareLink struct {
	Code      string
	IsPrivate bool
	Path      string
	URL       string
}

// ShareService owns share codes and public, tokenless file resolution.
type ShareService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	blobs         blob.Store
	publicBaseURL string
}

// NewShareService constructs a ShareService.
func NewShareService(db *sql.DB, m repomanager.RepositoryManager, blobs blob.Store, cfg *config.Config) *ShareService {
	return &ShareService{
		db:            db,
		repomanager:   m,
		blobs:         blobs,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}
}

// IssueUniqueCode generates a share code not currently present in storage.
// It runs against the given DBTX so callers can issue inside a transaction.
// When every attempt collides it returns common.ErrorResourceExhausted.
func (s *ShareService) IssueUniqueCode(ctx context.Context, db dbx.DBTX) (string, error) {
	repo := s.repomanager.Items(db)

	var code string
	backoff := retry.WithMaxRetries(shareCodeMaxAttempts-1, retry.NewConstant(time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := common.MakeRandHexString(shareCodeBytes)
		if err != nil {
			return fmt.Errorf("error generating share code: %w", err)
		}
		exists, err := repo.ShareCodeExists(ctx, c)
		if err != nil {
			return err
		}
		if exists {
			return retry.RetryableError(errCodeTaken)
		}
		code = c
		return nil
	})
	if err != nil {
		if errors.Is(err, errCodeTaken) {
			return "", common.ErrorResourceExhausted
		}
		return "", err
	}
	return code, nil
}

// linkFor builds the public path and, when a base URL is configured, the
// absolute URL for a code.
func (s *ShareService) linkFor(item *models.Item) *ShareLink {
	link := &ShareLink{
		Code:      item.ShareCode,
		IsPrivate: item.IsPrivate,
		Path:      "/share/" + item.ShareCode,
	}
	if s.publicBaseURL != "" {
		link.URL = s.publicBaseURL + link.Path
	}
	return link
}

// GetShareLink returns the share link of an owned file, assigning a code
// first if the file predates code issuance. Folders yield
// common.ErrorBadRequest and unowned items common.ErrorNotFound.
func (s *ShareService) GetShareLink(ctx context.Context, userID, itemID int64) (*ShareLink, error) {
	repo := s.repomanager.Items(s.db)

	item, err := repo.GetByID(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	if item.IsFolder() {
		return nil, common.ErrorBadRequest
	}

	if item.ShareCode == "" {
		err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			code, err := s.IssueUniqueCode(ctx, tx)
			if err != nil {
				return err
			}
			if err := s.repomanager.Items(tx).SetShareCode(ctx, userID, itemID, code); err != nil {
				return err
			}
			item.ShareCode = code
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return s.linkFor(item), nil
}

// ResolvePublic maps a share code to its file without any session. Unknown
// codes yield common.ErrorNotFound; private files common.ErrorForbidden.
func (s *ShareService) ResolvePublic(ctx context.Context, code string) (*models.Item, error) {
	repo := s.repomanager.Items(s.db)
	item, err := repo.GetFileByShareCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if item.IsPrivate {
		return nil, common.ErrorForbidden
	}
	return item, nil
}

// OpenPublic resolves a share code and opens the file's content for
// download. Metadata without a backing blob is a storage inconsistency and
// yields common.ErrorInternal.
func (s *ShareService) OpenPublic(ctx context.Context, code string) (*models.Item, io.ReadCloser, error) {
	item, err := s.ResolvePublic(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, item.StoredKey)
	if err != nil {
		return nil, nil, common.ErrorInternal
	}
	return item, rc, nil
}
