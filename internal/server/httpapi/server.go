// Package httpapi exposes the file storage service over a JSON HTTP API.
// Routes are split into an authenticated /api surface resolved through
// bearer tokens and a tokenless public surface for shared files.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/services"
)

// UserService is the slice of account and session logic the API needs.
type UserService interface {
	Register(ctx context.Context, username, password, email string) (*services.AuthResult, error)
	Login(ctx context.Context, username, password string) (*services.AuthResult, error)
	Logout(ctx context.Context, token string) error
	ResolveToken(ctx context.Context, token string) (*models.User, error)
}

// ItemService is the slice of item tree logic the API needs.
type ItemService interface {
	ListChildren(ctx context.Context, ownerID int64, parentID *int64) (*services.ListResult, error)
	CreateFolder(ctx context.Context, ownerID int64, name string, parentID *int64) (*models.Item, error)
	Upload(ctx context.Context, ownerID int64, name string, parentID *int64, mime string, r io.Reader) (*models.Item, error)
	Rename(ctx context.Context, ownerID int64, itemID int64, newName string) (*models.Item, error)
	SetPrivacy(ctx context.Context, ownerID int64, itemID int64, isPrivate bool) (*models.Item, error)
	DeleteSubtree(ctx context.Context, ownerID int64, itemID int64) error
	Download(ctx context.Context, ownerID int64, itemID int64) (*models.Item, io.ReadCloser, error)
}

// ShareService is the slice of share registry logic the API needs.
type ShareService interface {
	GetShareLink(ctx context.Context, userID, itemID int64) (*services.ShareLink, error)
	ResolvePublic(ctx context.Context, code string) (*models.Item, error)
	OpenPublic(ctx context.Context, code string) (*models.Item, io.ReadCloser, error)
}

type Server struct {
	address string
	logger  logging.Logger
	users   UserService
	items   ItemService
	shares  ShareService
}

func NewServer(address string, logger logging.Logger, us UserService, is ItemService, ss ShareService) *Server {
	return &Server{
		address: address,
		logger:  logger.With("module", "http_server"),
		users:   us,
		items:   is,
		shares:  ss,
	}
}

// Handler builds the route table. Method-qualified patterns take care of 405s.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/public/{code}", s.handlePublicMetadata)
	mux.HandleFunc("GET /api/public/{code}/download", s.handlePublicDownload)

	mux.Handle("POST /api/auth/logout", s.requireAuth(s.handleLogout))
	mux.Handle("GET /api/auth/me", s.requireAuth(s.handleMe))
	mux.Handle("GET /api/files", s.requireAuth(s.handleListChildren))
	mux.Handle("POST /api/folders", s.requireAuth(s.handleCreateFolder))
	mux.Handle("POST /api/files/upload", s.requireAuth(s.handleUpload))
	mux.Handle("PATCH /api/items/{id}", s.requireAuth(s.handleRename))
	mux.Handle("PATCH /api/items/{id}/privacy", s.requireAuth(s.handleSetPrivacy))
	mux.Handle("DELETE /api/items/{id}", s.requireAuth(s.handleDelete))
	mux.Handle("POST /api/items/{id}/share", s.requireAuth(s.handleShareLink))
	mux.Handle("GET /api/files/{id}/download", s.requireAuth(s.handleDownload))

	return s.recoverer(s.logRequests(mux))
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {

	srv := &http.Server{Addr: s.address, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, envelope{"message": "file sharing server is running"})
}
