package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cloudez/cloudez/internal/http/api/apierr"
	"github.com/cloudez/cloudez/internal/models"
	"github.com/cloudez/cloudez/internal/realtime"
)

// Heartbeats older than this render as offline regardless of stored status.
const presenceStaleAfter = 2 * time.Minute

// PresenceHandler manages availability heartbeats.
type PresenceHandler struct {
	db  *gorm.DB
	hub *realtime.Hub
}

// NewPresenceHandler constructs a PresenceHandler.
func NewPresenceHandler(db *gorm.DB, hub *realtime.Hub) *PresenceHandler {
	return &PresenceHandler{db: db, hub: hub}
}

var validPresenceStatuses = map[string]bool{
	models.PresenceOnline:  true,
	models.PresenceAway:    true,
	models.PresenceOffline: true,
}

// heartbeatRequest defines the request body for a presence heartbeat.
type heartbeatRequest struct {
	Status string `json:"status"`
}

// Heartbeat upserts the caller's presence row and fans the change out to
// accepted friends.
func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var body heartbeatRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierr.Validation(c, "invalid json")
		return
	}
	status := strings.TrimSpace(body.Status)
	if status == "" {
		status = models.PresenceOnline
	}
	if !validPresenceStatuses[status] {
		apierr.Validation(c, "invalid status")
		return
	}
	ctx := c.Request.Context()

	now := time.Now().UTC()
	row := models.Presence{UserID: userID, Status: status, LastSeenAt: now}
	errUpsert := h.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"status":       status,
			"last_seen_at": now,
		}),
	}).Create(&row).Error
	if errUpsert != nil {
		apierr.Infrastructure(c, "update presence failed")
		return
	}

	h.hub.Publish(h.friendIDs(c, userID), realtime.EventPresenceChanged, gin.H{
		"user_id": userID,
		"status":  status,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Query returns presence for a requested set of user IDs. Users with no row
// or a stale heartbeat report offline.
func (h *PresenceHandler) Query(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	raw := strings.TrimSpace(c.Query("user_ids"))
	if raw == "" {
		apierr.Validation(c, "missing user_ids")
		return
	}
	ids := make([]uint64, 0, 8)
	for _, part := range strings.Split(raw, ",") {
		id, errParse := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if errParse != nil || id == 0 {
			apierr.Validation(c, "invalid user_ids")
			return
		}
		ids = append(ids, id)
	}

	var rows []models.Presence
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id IN ?", ids).
		Find(&rows).Error; errFind != nil {
		apierr.Infrastructure(c, "query presence failed")
		return
	}
	byUser := make(map[uint64]models.Presence, len(rows))
	for _, row := range rows {
		byUser[row.UserID] = row
	}

	cutoff := time.Now().UTC().Add(-presenceStaleAfter)
	out := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		row, found := byUser[id]
		status := models.PresenceOffline
		var lastSeen any
		if found {
			lastSeen = row.LastSeenAt
			if row.LastSeenAt.After(cutoff) {
				status = row.Status
			}
		}
		out = append(out, gin.H{"user_id": id, "status": status, "last_seen_at": lastSeen})
	}
	c.JSON(http.StatusOK, gin.H{"presence": out})
}

// friendIDs lists the caller's accepted friends for event fan-out.
func (h *PresenceHandler) friendIDs(c *gin.Context, userID uint64) []uint64 {
	var rows []models.Friendship
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("status = ? AND (requester_id = ? OR addressee_id = ?)", models.FriendshipAccepted, userID, userID).
		Find(&rows).Error; errFind != nil {
		return nil
	}
	ids := make([]uint64, 0, len(rows))
	for _, row := range rows {
		if row.RequesterID == userID {
			ids = append(ids, row.AddresseeID)
		} else {
			ids = append(ids, row.RequesterID)
		}
	}
	return ids
}
