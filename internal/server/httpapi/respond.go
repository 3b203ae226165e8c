package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type envelope map[string]any

// writeOK sends {"ok":true} merged with the given fields.
func writeOK(w http.ResponseWriter, status int, fields envelope) {
	body := envelope{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError sends {"ok":false,"error":msg} with the status derived from
// the error taxonomy. An empty msg falls back to a generic one per status.
func writeError(w http.ResponseWriter, err error, msg string) {
	status := statusForError(err)
	if msg == "" {
		msg = defaultMessage(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{"ok": false, "error": msg})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, common.ErrorBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorConflict):
		return http.StatusConflict
	case errors.Is(err, common.ErrorResourceExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func defaultMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Bad request"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return "Not found"
	case http.StatusConflict:
		return "Conflict"
	case http.StatusServiceUnavailable:
		return "Temporarily unavailable"
	default:
		return "Internal server error"
	}
}

// userPayload is the wire shape of a user. Identifiers travel as strings.
type userPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func toUserPayload(u *models.User) userPayload {
	return userPayload{
		ID:       strconv.FormatInt(u.ID, 10),
		Username: u.Username,
		Email:    u.Email,
	}
}

// itemPayload is the wire shape of an item. Folders report no share code
// and always read as private.
type itemPayload struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	ParentID  *string `json:"parentId"`
	Size      int64   `json:"size"`
	ShareCode *string `json:"shareCode"`
	IsPrivate bool    `json:"isPrivate"`
}

func toItemPayload(item *models.Item) itemPayload {
	p := itemPayload{
		ID:        strconv.FormatInt(item.ID, 10),
		Name:      item.Name,
		Type:      string(item.Type),
		Size:      item.Size,
		IsPrivate: true,
	}
	if item.ParentID != nil {
		s := strconv.FormatInt(*item.ParentID, 10)
		p.ParentID = &s
	}
	if !item.IsFolder() {
		if item.ShareCode != "" {
			code := item.ShareCode
			p.ShareCode = &code
		}
		p.IsPrivate = item.IsPrivate
	}
	return p
}

func toItemPayloads(items []*models.Item) []itemPayload {
	out := make([]itemPayload, 0, len(items))
	for _, item := range items {
		out = append(out, toItemPayload(item))
	}
	return out
}

// folderPayload is the abbreviated shape used for the current folder in
// listings.
type folderPayload struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
}

func toFolderPayload(item *models.Item) *folderPayload {
	if item == nil {
		return nil
	}
	p := &folderPayload{
		ID:   strconv.FormatInt(item.ID, 10),
		Name: item.Name,
	}
	if item.ParentID != nil {
		s := strconv.FormatInt(*item.ParentID, 10)
		p.ParentID = &s
	}
	return p
}
