package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cloudez/cloudez/internal/authz"
	"github.com/cloudez/cloudez/internal/http/api/apierr"
	"github.com/cloudez/cloudez/internal/http/api/middleware"
	"github.com/cloudez/cloudez/internal/models"
	"github.com/cloudez/cloudez/internal/settings"
	"github.com/cloudez/cloudez/internal/storage"
)

var validVisibilities = map[string]bool{
	models.VisibilityPrivate: true,
	models.VisibilityPublic:  true,
	models.VisibilityShared:  true,
	models.VisibilityFriends: true,
}

// FileHandler manages file metadata endpoints.
type FileHandler struct {
	db      *gorm.DB
	checker *authz.Checker
	signer  *storage.Signer
	store   *storage.LocalStore
}

// NewFileHandler constructs a FileHandler.
func NewFileHandler(db *gorm.DB, checker *authz.Checker, signer *storage.Signer, store *storage.LocalStore) *FileHandler {
	return &FileHandler{db: db, checker: checker, signer: signer, store: store}
}

// createFileRequest defines the request body for file creation.
type createFileRequest struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	MimeType   string `json:"mime_type"`
	Visibility string `json:"visibility"`
}

// Create validates and registers file metadata, then hands back a signed
// upload URL. Validation happens before the row is written; the rate limit
// middleware has already recorded the attempt.
func (h *FileHandler) Create(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		apierr.AuthRequired(c, "missing principal")
		return
	}
	var body createFileRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierr.Validation(c, "invalid json")
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		apierr.Validation(c, "missing file name")
		return
	}
	if body.Size <= 0 || body.Size > settings.MaxUploadSize() {
		apierr.Validation(c, "invalid file size")
		return
	}
	if strings.TrimSpace(body.MimeType) == "" {
		apierr.Validation(c, "missing mime type")
		return
	}
	visibility := strings.TrimSpace(body.Visibility)
	if visibility == "" {
		visibility = models.VisibilityPrivate
	}
	if !validVisibilities[visibility] {
		apierr.Validation(c, "invalid visibility")
		return
	}

	ctx := c.Request.Context()
	var user models.User
	if errFind := h.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		apierr.Infrastructure(c, "load account failed")
		return
	}
	if user.StorageUsed+body.Size > user.StorageQuota {
		apierr.Validation(c, "storage quota exceeded")
		return
	}

	file := models.File{
		OwnerID:    userID,
		Name:       name,
		ObjectKey:  storage.NewObjectKey(),
		Size:       body.Size,
		MimeType:   strings.TrimSpace(body.MimeType),
		Visibility: visibility,
	}
	if errCreate := h.db.WithContext(ctx).Create(&file).Error; errCreate != nil {
		apierr.Infrastructure(c, "create file failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         file.ID,
		"name":       file.Name,
		"size":       file.Size,
		"mime_type":  file.MimeType,
		"visibility": file.Visibility,
		"upload_url": h.signer.SignedPath(http.MethodPut, file.ObjectKey),
	})
}

// List returns the caller's own files plus files visible to them.
func (h *FileHandler) List(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		apierr.AuthRequired(c, "missing principal")
		return
	}
	ctx := c.Request.Context()

	scope := strings.TrimSpace(c.Query("scope"))
	q := h.db.WithContext(ctx).Model(&models.File{})
	switch scope {
	case "", "own":
		q = q.Where("owner_id = ?", userID)
	case "shared":
		q = q.Where("visibility = ? AND id IN (?)", models.VisibilityShared,
			h.db.Model(&models.FileShare{}).Select("file_id").Where("grantee_id = ?", userID))
	case "public":
		q = q.Where("visibility = ? AND uploaded = ?", models.VisibilityPublic, true)
	default:
		apierr.Validation(c, "invalid scope")
		return
	}

	var rows []models.File
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		apierr.Infrastructure(c, "list files failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, fileJSON(row))
	}
	c.JSON(http.StatusOK, gin.H{"files": out})
}

// Get returns one file's metadata if the caller may read it.
func (h *FileHandler) Get(c *gin.Context) {
	file, _, ok := h.loadFileForAction(c, authz.ActionRead)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, fileJSON(*file))
}

// GetURL returns a signed download URL if the caller may read the file.
func (h *FileHandler) GetURL(c *gin.Context) {
	file, _, ok := h.loadFileForAction(c, authz.ActionRead)
	if !ok {
		return
	}
	if !file.Uploaded {
		apierr.Validation(c, "file bytes not uploaded yet")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"download_url": h.signer.SignedPath(http.MethodGet, file.ObjectKey),
	})
}

// updateFileRequest defines the request body for file updates.
type updateFileRequest struct {
	Name       *string `json:"name"`
	Visibility *string `json:"visibility"`
}

// Update renames a file or changes its visibility. Owner only.
func (h *FileHandler) Update(c *gin.Context) {
	file, _, ok := h.loadFileForAction(c, authz.ActionWrite)
	if !ok {
		return
	}
	var body updateFileRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierr.Validation(c, "invalid json")
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			apierr.Validation(c, "empty file name")
			return
		}
		updates["name"] = name
	}
	if body.Visibility != nil {
		visibility := strings.TrimSpace(*body.Visibility)
		if !validVisibilities[visibility] {
			apierr.Validation(c, "invalid visibility")
			return
		}
		updates["visibility"] = visibility
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).
		Model(&models.File{}).Where("id = ?", file.ID).
		Updates(updates).Error; errUpdate != nil {
		apierr.Infrastructure(c, "update file failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a file, its shares and its bytes, and releases quota.
func (h *FileHandler) Delete(c *gin.Context) {
	file, _, ok := h.loadFileForAction(c, authz.ActionWrite)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errShares := tx.Where("file_id = ?", file.ID).Delete(&models.FileShare{}).Error; errShares != nil {
			return errShares
		}
		if errDelete := tx.Delete(&models.File{}, file.ID).Error; errDelete != nil {
			return errDelete
		}
		if file.Uploaded {
			if errQuota := tx.Model(&models.User{}).Where("id = ?", file.OwnerID).
				Update("storage_used", gorm.Expr("storage_used - ?", file.Size)).Error; errQuota != nil {
				return errQuota
			}
		}
		return nil
	})
	if errTx != nil {
		apierr.Infrastructure(c, "delete file failed")
		return
	}
	_ = h.store.Delete(file.ObjectKey)
	c.Status(http.StatusNoContent)
}

// loadFileForAction loads the file from the :id param and enforces the access
// predicate. Denials are reported as not-found.
func (h *FileHandler) loadFileForAction(c *gin.Context, action authz.Action) (*models.File, uint64, bool) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		apierr.AuthRequired(c, "missing principal")
		return nil, 0, false
	}
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		apierr.Validation(c, "invalid id")
		return nil, 0, false
	}
	ctx := c.Request.Context()

	var file models.File
	if errFind := h.db.WithContext(ctx).First(&file, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			apierr.NotFound(c)
			return nil, 0, false
		}
		apierr.Infrastructure(c, "query failed")
		return nil, 0, false
	}

	allowed, errAccess := h.checker.CanAccessFile(ctx, userID, &file, action)
	if errAccess != nil {
		apierr.Infrastructure(c, "access check failed")
		return nil, 0, false
	}
	if !allowed {
		apierr.NotFound(c)
		return nil, 0, false
	}
	return &file, userID, true
}

func fileJSON(file models.File) gin.H {
	return gin.H{
		"id":         file.ID,
		"owner_id":   file.OwnerID,
		"name":       file.Name,
		"size":       file.Size,
		"mime_type":  file.MimeType,
		"visibility": file.Visibility,
		"uploaded":   file.Uploaded,
		"created_at": file.CreatedAt,
		"updated_at": file.UpdatedAt,
	}
}
