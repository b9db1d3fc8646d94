package services

import (
	"fmt"

	"gorm.io/gorm"

	"newswire/models"
)

// SyncRole reconciles a user's relation sets with its current role:
// non-readers must not hold subscription rows. It is idempotent and is
// called explicitly after every role-changing write, inside the same
// transaction as the role update so no stale rows are ever observable.
func SyncRole(db *gorm.DB, user *models.User) error {
	if user.Role == models.RoleReader {
		return nil
	}
	if err := db.Model(user).Association("SubscribedPublishers").Clear(); err != nil {
		return fmt.Errorf("clearing publisher subscriptions: %w", err)
	}
	if err := db.Model(user).Association("SubscribedJournalists").Clear(); err != nil {
		return fmt.Errorf("clearing journalist subscriptions: %w", err)
	}
	return nil
}

// ChangeRole updates a user's role and runs SyncRole in one transaction.
func ChangeRole(db *gorm.DB, user *models.User, role string) error {
	if !models.AllowedRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(user).Update("role", role).Error; err != nil {
			return err
		}
		user.Role = role
		return SyncRole(tx, user)
	})
}
