package channels

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"newswire/models"
)

// Dispatcher fans one approval event out to all configured channels.
// Dispatch is fire-and-forget: failures are logged and recorded in the
// dispatch log, never surfaced to the caller.
type Dispatcher struct {
	DB       *gorm.DB
	Logger   *zap.Logger
	Channels []Channel
	Timeout  time.Duration
}

// NewDispatcher creates a Dispatcher over the given channels.
func NewDispatcher(db *gorm.DB, logger *zap.Logger, chans ...Channel) *Dispatcher {
	return &Dispatcher{
		DB:       db,
		Logger:   logger,
		Channels: chans,
		Timeout:  30 * time.Second,
	}
}

// ArticleApproved notifies every channel about a freshly approved article in
// the background and returns immediately.
func (d *Dispatcher) ArticleApproved(article *models.Article) {
	snapshot := *article
	go d.run(&snapshot)
}

func (d *Dispatcher) run(article *models.Article) {
	ctx, cancel := context.WithTimeout(context.Background(), d.Timeout)
	defer cancel()

	for _, ch := range d.Channels {
		recipients, err := ch.Dispatch(ctx, article)

		entry := models.DispatchLog{
			ArticleID:  article.ID,
			Channel:    ch.Name(),
			Recipients: recipients,
			Succeeded:  err == nil,
		}
		if err != nil {
			entry.Error = err.Error()
			d.Logger.Warn("Channel dispatch failed",
				zap.String("channel", ch.Name()),
				zap.Uint("article_id", article.ID),
				zap.Error(err))
		} else {
			d.Logger.Info("Channel dispatch succeeded",
				zap.String("channel", ch.Name()),
				zap.Uint("article_id", article.ID),
				zap.Int("recipients", recipients))
		}
		if payload, err := json.Marshal(map[string]any{
			"title":        article.Title,
			"publisher_id": article.PublisherID,
		}); err == nil {
			entry.Payload = payload
		}

		if err := d.DB.Create(&entry).Error; err != nil {
			d.Logger.Error("Failed to record dispatch log", zap.Error(err))
		}
	}
}
