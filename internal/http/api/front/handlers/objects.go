package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cloudez/cloudez/internal/http/api/apierr"
	"github.com/cloudez/cloudez/internal/models"
	"github.com/cloudez/cloudez/internal/storage"
)

// ObjectHandler serves the signed-URL byte transfer boundary. Requests carry
// a capability signature instead of a session, mirroring how an external
// object store would honor signed URLs.
type ObjectHandler struct {
	db     *gorm.DB
	signer *storage.Signer
	store  *storage.LocalStore
}

// NewObjectHandler constructs an ObjectHandler.
func NewObjectHandler(db *gorm.DB, signer *storage.Signer, store *storage.LocalStore) *ObjectHandler {
	return &ObjectHandler{db: db, signer: signer, store: store}
}

func (h *ObjectHandler) verify(c *gin.Context, method string) (string, bool) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		apierr.NotFound(c)
		return "", false
	}
	if errVerify := h.signer.Verify(method, key, c.Query("exp"), c.Query("sig")); errVerify != nil {
		apierr.NotFound(c)
		return "", false
	}
	return key, true
}

// Put receives object bytes for a previously registered file.
func (h *ObjectHandler) Put(c *gin.Context) {
	key, ok := h.verify(c, http.MethodPut)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var file models.File
	if errFind := h.db.WithContext(ctx).Where("object_key = ?", key).First(&file).Error; errFind != nil {
		apierr.NotFound(c)
		return
	}

	written, errSave := h.store.Save(key, io.LimitReader(c.Request.Body, file.Size+1))
	if errSave != nil {
		apierr.Infrastructure(c, "store object failed")
		return
	}
	if written != file.Size {
		_ = h.store.Delete(key)
		apierr.Validation(c, "uploaded size does not match declared size")
		return
	}

	errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.File{}).
			Where("id = ? AND uploaded = ?", file.ID, false).
			Update("uploaded", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Re-upload of the same object; quota already counted.
			return nil
		}
		return tx.Model(&models.User{}).Where("id = ?", file.OwnerID).
			Update("storage_used", gorm.Expr("storage_used + ?", file.Size)).Error
	})
	if errTx != nil {
		apierr.Infrastructure(c, "finalize upload failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "size": written})
}

// Get streams object bytes for a signed download URL.
func (h *ObjectHandler) Get(c *gin.Context) {
	key, ok := h.verify(c, http.MethodGet)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var file models.File
	errFind := h.db.WithContext(ctx).Where("object_key = ? AND uploaded = ?", key, true).First(&file).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			apierr.NotFound(c)
			return
		}
		apierr.Infrastructure(c, "query failed")
		return
	}

	reader, errOpen := h.store.Open(key)
	if errOpen != nil {
		apierr.Infrastructure(c, "open object failed")
		return
	}
	defer func() { _ = reader.Close() }()

	c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(file.Name, `"`, "")+`"`)
	c.DataFromReader(http.StatusOK, file.Size, file.MimeType, reader, nil)
}
