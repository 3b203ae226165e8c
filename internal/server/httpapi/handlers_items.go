package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/filevault/internal/common"
)

const fallbackMime = "application/octet-stream"

// parseParentID reads an optional positive parent folder id. nil means
// "list the roots". Clients send the root in several spellings.
func parseParentID(raw string) (*int64, error) {
	switch raw {
	case "", "null", "None":
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, common.ErrorBadRequest
	}
	return &id, nil
}

// parseParentIDJSON is parseParentID for JSON bodies, tolerating both
// string and numeric ids.
func parseParentIDJSON(raw json.RawMessage) (*int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return parseParentID(strings.Trim(string(raw), `"`))
}

// pathItemID reads the {id} path segment of an item route.
func pathItemID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.ErrorBadRequest
	}
	return id, nil
}

func (s *Server) handleListChildren(w http.ResponseWriter, r *http.Request) {
	parentID, err := parseParentID(r.URL.Query().Get("parentId"))
	if err != nil {
		writeError(w, err, "parentId must be a positive integer")
		return
	}

	res, err := s.items.ListChildren(r.Context(), currentUser(r).ID, parentID)
	if err != nil {
		msg := ""
		if errors.Is(err, common.ErrorNotFound) {
			msg = "Folder not found"
		}
		writeError(w, err, msg)
		return
	}

	writeOK(w, http.StatusOK, envelope{
		"items":         toItemPayloads(res.Items),
		"currentFolder": toFolderPayload(res.CurrentFolder),
	})
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string          `json:"name"`
		ParentID json.RawMessage `json:"parentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.ErrorBadRequest, "Invalid JSON body")
		return
	}

	parentID, err := parseParentIDJSON(req.ParentID)
	if err != nil {
		writeError(w, err, "parentId must be a positive integer")
		return
	}

	item, err := s.items.CreateFolder(r.Context(), currentUser(r).ID, req.Name, parentID)
	if err != nil {
		msg := ""
		if errors.Is(err, common.ErrorNotFound) {
			msg = "Parent folder not found"
		}
		writeError(w, err, msg)
		return
	}

	writeOK(w, http.StatusOK, envelope{"item": toItemPayload(item)})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil || header.Filename == "" {
		writeError(w, common.ErrorBadRequest, "file is required")
		return
	}
	defer file.Close()

	parentID, err := parseParentID(r.FormValue("parentId"))
	if err != nil {
		writeError(w, err, "parentId must be a positive integer")
		return
	}

	// strip any client-supplied directory components
	name := filepath.Base(header.Filename)
	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = fallbackMime
	}

	item, err := s.items.Upload(r.Context(), currentUser(r).ID, name, parentID, mime, file)
	if err != nil {
		msg := ""
		if errors.Is(err, common.ErrorNotFound) {
			msg = "Parent folder not found"
		}
		writeError(w, err, msg)
		return
	}

	writeOK(w, http.StatusOK, envelope{"item": toItemPayload(item)})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathItemID(r)
	if err != nil {
		writeError(w, err, "")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.ErrorBadRequest, "Invalid JSON body")
		return
	}

	item, err := s.items.Rename(r.Context(), currentUser(r).ID, itemID, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorBadRequest):
			writeError(w, err, "name is required")
		case errors.Is(err, common.ErrorNotFound):
			writeError(w, err, "Item not found")
		default:
			writeError(w, err, "")
		}
		return
	}

	writeOK(w, http.StatusOK, envelope{"item": toItemPayload(item)})
}

func (s *Server) handleSetPrivacy(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathItemID(r)
	if err != nil {
		writeError(w, err, "")
		return
	}

	var req struct {
		IsPrivate *bool `json:"isPrivate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsPrivate == nil {
		writeError(w, common.ErrorBadRequest, "isPrivate (boolean) is required")
		return
	}

	item, err := s.items.SetPrivacy(r.Context(), currentUser(r).ID, itemID, *req.IsPrivate)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorBadRequest):
			writeError(w, err, "Privacy can be changed only for files")
		case errors.Is(err, common.ErrorNotFound):
			writeError(w, err, "Item not found")
		default:
			writeError(w, err, "")
		}
		return
	}

	writeOK(w, http.StatusOK, envelope{"item": toItemPayload(item)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathItemID(r)
	if err != nil {
		writeError(w, err, "")
		return
	}

	if err := s.items.DeleteSubtree(r.Context(), currentUser(r).ID, itemID); err != nil {
		msg := ""
		if errors.Is(err, common.ErrorNotFound) {
			msg = "Item not found"
		}
		writeError(w, err, msg)
		return
	}

	writeOK(w, http.StatusOK, nil)
}

// serveFileContent streams blob content as an attachment named after the
// item rather than its storage key.
func serveFileContent(w http.ResponseWriter, name, mime string, size int64, rc io.ReadCloser) {
	defer rc.Close()

	if mime == "" {
		mime = fallbackMime
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	io.Copy(w, rc)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathItemID(r)
	if err != nil {
		writeError(w, err, "")
		return
	}

	item, rc, err := s.items.Download(r.Context(), currentUser(r).ID, itemID)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorNotFound):
			writeError(w, err, "File not found")
		case errors.Is(err, common.ErrorInternal):
			writeError(w, err, "File storage error")
		default:
			writeError(w, err, "")
		}
		return
	}

	serveFileContent(w, item.Name, item.Mime, item.Size, rc)
}
