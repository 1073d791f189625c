package front

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cloudez/cloudez/internal/authz"
	"github.com/cloudez/cloudez/internal/config"
	handlers "github.com/cloudez/cloudez/internal/http/api/front/handlers"
	"github.com/cloudez/cloudez/internal/http/api/middleware"
	"github.com/cloudez/cloudez/internal/ratelimit"
	"github.com/cloudez/cloudez/internal/realtime"
	"github.com/cloudez/cloudez/internal/storage"
)

// RegisterFrontRoutes registers user-facing routes, middleware, and handlers.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, limiter *ratelimit.Service, signer *storage.Signer, store *storage.LocalStore, hub *realtime.Hub) {
	if r == nil || db == nil {
		return
	}
	checker := authz.NewChecker(db)

	authHandler := handlers.NewAuthHandler(db, jwtCfg, limiter)
	r.POST("/v0/register", authHandler.Register)
	r.POST("/v0/login", authHandler.Login)

	// Signed object URLs carry their own authorization.
	objectHandler := handlers.NewObjectHandler(db, signer, store)
	r.PUT("/v0/objects/:key", objectHandler.Put)
	r.GET("/v0/objects/:key", objectHandler.Get)

	authed := r.Group("/v0")
	authed.Use(middleware.UserAuth(db, jwtCfg))

	authed.GET("/me", authHandler.Me)
	authed.GET("/me/rate-limits", authHandler.MyRateLimits)

	keyHandler := handlers.NewKeyHandler(db, checker)
	authed.PUT("/me/keys", keyHandler.SetPublicKey)
	authed.GET("/users/:id/keys", keyHandler.GetPublicKey)

	fileHandler := handlers.NewFileHandler(db, checker, signer, store)
	authed.POST("/files", middleware.RateLimit(limiter, "upload"), fileHandler.Create)
	authed.GET("/files", fileHandler.List)
	authed.GET("/files/:id", fileHandler.Get)
	authed.GET("/files/:id/url", fileHandler.GetURL)
	authed.PUT("/files/:id", fileHandler.Update)
	authed.DELETE("/files/:id", fileHandler.Delete)

	shareHandler := handlers.NewShareHandler(db, checker, hub)
	authed.POST("/files/:id/shares", middleware.RateLimit(limiter, "share"), shareHandler.Create)
	authed.GET("/files/:id/shares", shareHandler.List)
	authed.DELETE("/files/:id/shares/:user_id", shareHandler.Delete)

	friendHandler := handlers.NewFriendHandler(db, hub)
	authed.POST("/friends", middleware.RateLimit(limiter, "friend_request"), friendHandler.Request)
	authed.GET("/friends", friendHandler.List)
	authed.POST("/friends/:id/accept", friendHandler.Accept)
	authed.POST("/friends/:id/decline", friendHandler.Decline)
	authed.POST("/friends/:id/block", friendHandler.Block)
	authed.DELETE("/friends/:id", friendHandler.Remove)

	conversationHandler := handlers.NewConversationHandler(db, checker)
	authed.POST("/conversations", conversationHandler.Create)
	authed.GET("/conversations", conversationHandler.List)
	authed.GET("/conversations/:id", conversationHandler.Get)
	authed.POST("/conversations/:id/members", conversationHandler.AddMember)
	authed.DELETE("/conversations/:id/members/:user_id", conversationHandler.RemoveMember)

	messageHandler := handlers.NewMessageHandler(db, checker, hub)
	authed.POST("/conversations/:id/messages", middleware.RateLimit(limiter, "message"), messageHandler.Create)
	authed.GET("/conversations/:id/messages", messageHandler.List)
	authed.PUT("/conversations/:id/messages/:message_id", messageHandler.Edit)
	authed.DELETE("/conversations/:id/messages/:message_id", messageHandler.Delete)

	reactionHandler := handlers.NewReactionHandler(db, checker, hub)
	authed.POST("/conversations/:id/messages/:message_id/reactions", reactionHandler.Add)
	authed.GET("/conversations/:id/messages/:message_id/reactions", reactionHandler.List)
	authed.DELETE("/conversations/:id/messages/:message_id/reactions", reactionHandler.Remove)

	receiptHandler := handlers.NewReceiptHandler(db, checker, hub)
	authed.PUT("/conversations/:id/receipts", receiptHandler.Update)
	authed.GET("/conversations/:id/receipts", receiptHandler.List)

	authed.PUT("/conversations/:id/keys", keyHandler.SetWrappedKey)
	authed.GET("/conversations/:id/keys", keyHandler.GetWrappedKey)

	presenceHandler := handlers.NewPresenceHandler(db, hub)
	authed.PUT("/presence", presenceHandler.Heartbeat)
	authed.GET("/presence", presenceHandler.Query)

	eventHandler := handlers.NewEventHandler(hub)
	authed.GET("/events", eventHandler.Stream)
}
