package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"newswire/models"
)

// DigestMailer delivers one message to a set of recipients.
// channels/email.Mailer satisfies it.
type DigestMailer interface {
	Send(to []string, subject, body string) error
}

// DigestService mails each reader a daily digest of the articles that became
// visible to them during the last day. It reuses the feed resolver, so the
// digest can never contain anything the reader could not see in the feed.
type DigestService struct {
	DB     *gorm.DB
	Mailer DigestMailer
	Logger *zap.Logger
}

// NewDigestService creates a DigestService.
func NewDigestService(db *gorm.DB, mailer DigestMailer, logger *zap.Logger) *DigestService {
	return &DigestService{DB: db, Mailer: mailer, Logger: logger}
}

// Run sends the digest to every reader with a mail address and at least one
// new visible article. It returns the number of digests sent; per-reader
// failures are logged and skipped.
func (d *DigestService) Run(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-24 * time.Hour)

	var readers []models.User
	err := d.DB.WithContext(ctx).
		Where("role = ?", models.RoleReader).
		Where("email <> ''").
		Find(&readers).Error
	if err != nil {
		return 0, fmt.Errorf("loading readers: %w", err)
	}

	sent := 0
	for i := range readers {
		reader := &readers[i]
		articles, err := VisibleArticlesSince(d.DB.WithContext(ctx), reader, cutoff)
		if err != nil {
			d.Logger.Error("Digest resolve failed",
				zap.String("username", reader.Username), zap.Error(err))
			continue
		}
		if len(articles) == 0 {
			continue
		}

		subject := fmt.Sprintf("Your daily digest: %d new article(s)", len(articles))
		if err := d.Mailer.Send([]string{reader.Email}, subject, digestBody(articles)); err != nil {
			d.Logger.Warn("Digest mail failed",
				zap.String("username", reader.Username), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

func digestBody(articles []models.Article) string {
	var b strings.Builder
	for _, a := range articles {
		b.WriteString("- ")
		b.WriteString(a.Title)
		if a.Publisher != nil {
			b.WriteString(" (")
			b.WriteString(a.Publisher.Name)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return b.String()
}
