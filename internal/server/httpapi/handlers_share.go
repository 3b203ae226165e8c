package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/services"
)

// shareURL returns the absolute share URL. Without a configured public base
// URL the request Origin wins, then the request host.
func shareURL(r *http.Request, link *services.ShareLink) string {
	if link.URL != "" {
		return link.URL
	}
	if origin := strings.TrimSuffix(strings.TrimSpace(r.Header.Get("Origin")), "/"); origin != "" {
		return origin + link.Path
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + link.Path
}

func (s *Server) handleShareLink(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathItemID(r)
	if err != nil {
		writeError(w, err, "")
		return
	}

	link, err := s.shares.GetShareLink(r.Context(), currentUser(r).ID, itemID)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorNotFound):
			writeError(w, err, "Item not found")
		case errors.Is(err, common.ErrorBadRequest):
			writeError(w, err, "Share link is available only for files")
		default:
			writeError(w, err, "")
		}
		return
	}

	writeOK(w, http.StatusOK, envelope{
		"shareCode": link.Code,
		"isPrivate": link.IsPrivate,
		"sharePath": link.Path,
		"shareUrl":  shareURL(r, link),
	})
}

func (s *Server) handlePublicMetadata(w http.ResponseWriter, r *http.Request) {
	item, err := s.shares.ResolvePublic(r.Context(), r.PathValue("code"))
	if err != nil {
		writePublicError(w, err)
		return
	}

	mime := item.Mime
	if mime == "" {
		mime = fallbackMime
	}
	writeOK(w, http.StatusOK, envelope{
		"file": envelope{
			"id":        strconv.FormatInt(item.ID, 10),
			"name":      item.Name,
			"size":      item.Size,
			"mime":      mime,
			"shareCode": item.ShareCode,
			"owner":     item.OwnerName,
			"createdAt": item.CreatedAt.Unix(),
		},
	})
}

func (s *Server) handlePublicDownload(w http.ResponseWriter, r *http.Request) {
	item, rc, err := s.shares.OpenPublic(r.Context(), r.PathValue("code"))
	if err != nil {
		writePublicError(w, err)
		return
	}

	serveFileContent(w, item.Name, item.Mime, item.Size, rc)
}

func writePublicError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, err, "File not found")
	case errors.Is(err, common.ErrorForbidden):
		writeError(w, err, "This file is private")
	case errors.Is(err, common.ErrorInternal):
		writeError(w, err, "File storage error")
	default:
		writeError(w, err, "")
	}
}
