package archive

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"newswire/config"
	"newswire/models"
	"newswire/services"
	"newswire/storage"
)

// Uploader archives the XML export of every approved article in the
// configured S3 bucket.
type Uploader struct {
	Config *config.Config
	Client *s3.Client
	Logger *zap.Logger
}

// New creates an Uploader.
func New(cfg *config.Config, client *s3.Client, logger *zap.Logger) *Uploader {
	return &Uploader{Config: cfg, Client: client, Logger: logger}
}

// Name identifies the channel in dispatch logs.
func (u *Uploader) Name() string {
	return "archive"
}

// Dispatch uploads the article's XML rendering.
func (u *Uploader) Dispatch(ctx context.Context, article *models.Article) (int, error) {
	data, err := services.ArticlesToXML([]models.Article{*article})
	if err != nil {
		return 0, err
	}

	key := fmt.Sprintf("articles/%d.xml", article.ID)
	link, err := storage.Upload(ctx, u.Client, u.Config, key, data, "application/xml")
	if err != nil {
		return 0, err
	}

	u.Logger.Info("Article archived", zap.Uint("article_id", article.ID), zap.String("link", link))
	return 1, nil
}
