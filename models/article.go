package models

import "time"

// Article is a news article. It is created unapproved by a journalist and
// becomes visible to readers once an editor approves it.
type Article struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title   string `json:"title" gorm:"not null"`
	Content string `json:"content" gorm:"type:text"`

	PublisherID uint       `json:"publisher_id" gorm:"not null;index"`
	Publisher   *Publisher `json:"-" gorm:"constraint:OnDelete:CASCADE"`

	// Nulled, never cascaded, when the authoring user is removed.
	JournalistID *uint `json:"journalist_id,omitempty" gorm:"index"`
	Journalist   *User `json:"-" gorm:"constraint:OnDelete:SET NULL"`

	Approved bool `json:"approved" gorm:"index;default:false"`
}

// TableName sets the explicit table name.
func (Article) TableName() string {
	return "articles"
}
