// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login, and the opaque bearer
// session tokens resolved on every authenticated request.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/auth"
	"github.com/dmitrijs2005/filevault/internal/server/config"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
)

// sessionTokenBytes is the entropy of a session token before hex encoding.
const sessionTokenBytes = 24

// AuthResult bundles the authenticated user with a freshly issued token.
type AuthResult struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

// UserService provides account and session operations:
// - Register: create an account and log it in
// - Login: verify credentials and issue a token
// - Logout: revoke a token
// - ResolveToken: map a bearer token to its user
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokenTTL    time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		tokenTTL:    cfg.TokenTTL,
	}
}

func (s *UserService) issueToken(ctx context.Context, db dbx.DBTX, userID int64) (string, time.Time, error) {
	token, err := common.MakeRandHexString(sessionTokenBytes)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error generating token: %w", err)
	}
	expiresAt := time.Now().Add(s.tokenTTL)

	repo := s.repomanager.Tokens(db)
	if err := repo.Create(ctx, userID, token, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("error saving token: %w", err)
	}
	return token, expiresAt, nil
}

// Register creates a new account and immediately issues a session token,
// both in one transaction. A taken username yields common.ErrorConflict.
func (s *UserService) Register(ctx context.Context, username, password, email string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || password == "" || email == "" {
		return nil, common.ErrorBadRequest
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	var result *AuthResult
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		user, err := repo.Create(ctx, &models.User{
			Username:     username,
			PasswordHash: hash,
			Email:        email,
		})
		if err != nil {
			return err
		}

		token, expiresAt, err := s.issueToken(ctx, tx, user.ID)
		if err != nil {
			return err
		}

		result = &AuthResult{User: user, Token: token, ExpiresAt: expiresAt}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorConflict) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("error registering user: %w", err)
	}
	return result, nil
}

// Login verifies the credentials and issues a fresh session token. Unknown
// usernames and hash mismatches both yield common.ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	ok, err := auth.VerifyPassword(user.PasswordHash, password)
	if err != nil || !ok {
		return nil, common.ErrorUnauthorized
	}

	token, expiresAt, err := s.issueToken(ctx, s.db, user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Logout revokes the token. Revoking an unknown token is not an error.
func (s *UserService) Logout(ctx context.Context, token string) error {
	repo := s.repomanager.Tokens(s.db)
	if err := repo.Delete(ctx, token); err != nil {
		return fmt.Errorf("error deleting token: %w", err)
	}
	return nil
}

// ResolveToken maps a bearer token to its user. Expired tokens are deleted
// as a side effect; there is no background sweep. Unknown and expired tokens
// both yield common.ErrorUnauthorized.
func (s *UserService) ResolveToken(ctx context.Context, token string) (*models.User, error) {
	tokenRepo := s.repomanager.Tokens(s.db)
	st, err := tokenRepo.Find(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	if time.Now().After(st.ExpiresAt) {
		// lazy cleanup; the token is invalid either way
		_ = tokenRepo.Delete(ctx, token)
		return nil, common.ErrorUnauthorized
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, st.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}
	return user, nil
}
