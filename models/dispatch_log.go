package models

import (
	"time"

	"gorm.io/datatypes"
)

// DispatchLog records one fire-and-forget side effect (mail, social post,
// archive upload) triggered by an article approval. Failures are recorded
// here and otherwise ignored by policy.
type DispatchLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ArticleID uint   `json:"article_id" gorm:"index"`
	Channel   string `json:"channel" gorm:"index"` // email, x, archive

	Recipients int            `json:"recipients"`
	Payload    datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb"`
	Succeeded  bool           `json:"succeeded" gorm:"default:false"`
	Error      string         `json:"error,omitempty"`
}

// TableName sets the explicit table name.
func (DispatchLog) TableName() string {
	return "dispatch_logs"
}
