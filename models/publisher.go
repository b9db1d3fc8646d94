package models

// Publisher is a news outlet that articles and newsletters belong to.
// Deleting a publisher cascades to its content.
type Publisher struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"uniqueIndex;not null"`

	// Staff membership. Informational only; authorization is decided by
	// the user's role, not by these sets.
	Editors     []*User `json:"-" gorm:"many2many:publisher_editors"`
	Journalists []*User `json:"-" gorm:"many2many:publisher_journalists"`

	Articles    []Article    `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Newsletters []Newsletter `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

// TableName sets the explicit table name.
func (Publisher) TableName() string {
	return "publishers"
}
