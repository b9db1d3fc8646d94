package models

import "time"

// Roles a user can hold. A user has exactly one active role at a time.
const (
	RoleReader     = "reader"
	RoleJournalist = "journalist"
	RoleEditor     = "editor"
)

// AllowedRole reports whether role is one of the known roles.
func AllowedRole(role string) bool {
	switch role {
	case RoleReader, RoleJournalist, RoleEditor:
		return true
	}
	return false
}

// User is an account on the platform. Subscription relations are only
// meaningful while Role is "reader"; services.SyncRole clears them on any
// transition away from that role.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Username     string `json:"username" gorm:"uniqueIndex;not null"`
	Email        string `json:"email,omitempty"`
	PasswordHash string `json:"-" gorm:"not null"`
	Role         string `json:"role" gorm:"index;not null;default:'reader'"`

	// Opaque bearer token issued at login.
	AuthToken string `json:"-" gorm:"index"`

	SubscribedPublishers  []Publisher `json:"-" gorm:"many2many:user_publisher_subscriptions"`
	SubscribedJournalists []*User     `json:"-" gorm:"many2many:user_journalist_subscriptions;joinForeignKey:ReaderID;joinReferences:JournalistID"`
}

// TableName sets the explicit table name.
func (User) TableName() string {
	return "users"
}
