package db

import (
	"errors"
	"fmt"

	"github.com/cloudez/cloudez/internal/models"
	"gorm.io/gorm"
)

// Migrate applies the schema and seeds reference data.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errAutoMigrate := conn.AutoMigrate(
		&models.Admin{},
		&models.User{},
		&models.Friendship{},
		&models.File{},
		&models.FileShare{},
		&models.Conversation{},
		&models.ConversationMember{},
		&models.Message{},
		&models.Reaction{},
		&models.ReadReceipt{},
		&models.Presence{},
		&models.RateLimitRule{},
		&models.UsageWindow{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := ensureDefaultRateLimitRules(conn); errSeed != nil {
		return errSeed
	}
	return nil
}

// defaultRateLimitRules are seeded on first migration and editable afterwards
// through the admin API.
var defaultRateLimitRules = []models.RateLimitRule{
	{OperationType: "upload", MaxRequests: 20, WindowSeconds: 3600, Description: "File uploads per hour"},
	{OperationType: "message", MaxRequests: 60, WindowSeconds: 60, Description: "Chat messages per minute"},
	{OperationType: "share", MaxRequests: 30, WindowSeconds: 3600, Description: "File shares per hour"},
	{OperationType: "friend_request", MaxRequests: 10, WindowSeconds: 3600, Description: "Friend requests per hour"},
	{OperationType: "login_attempt", MaxRequests: 5, WindowSeconds: 900, Description: "Login attempts per 15 minutes"},
}

// ensureDefaultRateLimitRules inserts missing default rules without touching
// rows an administrator already changed.
func ensureDefaultRateLimitRules(conn *gorm.DB) error {
	for _, rule := range defaultRateLimitRules {
		if rule.MaxRequests <= 0 || rule.WindowSeconds <= 0 {
			return fmt.Errorf("db: invalid default rule %q", rule.OperationType)
		}
		var existing models.RateLimitRule
		errFind := conn.Where("operation_type = ?", rule.OperationType).First(&existing).Error
		if errFind == nil {
			continue
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("db: seed rate limit rules: %w", errFind)
		}
		seeded := rule
		if errCreate := conn.Create(&seeded).Error; errCreate != nil {
			return fmt.Errorf("db: seed rule %q: %w", rule.OperationType, errCreate)
		}
	}
	return nil
}
