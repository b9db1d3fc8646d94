package models

import "time"

// Newsletter is structurally an article without the approval gate.
type Newsletter struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title   string `json:"title" gorm:"not null"`
	Content string `json:"content" gorm:"type:text"`

	PublisherID uint       `json:"publisher_id" gorm:"not null;index"`
	Publisher   *Publisher `json:"-" gorm:"constraint:OnDelete:CASCADE"`

	JournalistID *uint `json:"journalist_id,omitempty" gorm:"index"`
	Journalist   *User `json:"-" gorm:"constraint:OnDelete:SET NULL"`
}

// TableName sets the explicit table name.
func (Newsletter) TableName() string {
	return "newsletters"
}
