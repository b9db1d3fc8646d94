package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"newswire/config"
	"newswire/models"
)

// Mailer sends plain-text mail over SMTP. As an approval channel it mails
// every subscribed reader of the article's publisher or journalist.
type Mailer struct {
	Config *config.Config
	DB     *gorm.DB
	Logger *zap.Logger

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates a Mailer.
func New(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *Mailer {
	return &Mailer{Config: cfg, DB: db, Logger: logger, send: smtp.SendMail}
}

// Name identifies the channel in dispatch logs.
func (m *Mailer) Name() string {
	return "email"
}

// Dispatch mails the approved article to its subscribers.
func (m *Mailer) Dispatch(ctx context.Context, article *models.Article) (int, error) {
	emails, err := m.subscriberEmails(article)
	if err != nil {
		return 0, err
	}
	if len(emails) == 0 {
		return 0, nil
	}

	subject := "New Article Approved: " + article.Title
	body := article.Title + "\n\n" + article.Content
	if err := m.Send(emails, subject, body); err != nil {
		return 0, err
	}
	return len(emails), nil
}

// Send delivers one message to all recipients.
func (m *Mailer) Send(to []string, subject, body string) error {
	if m.Config.SMTPHost == "" {
		return fmt.Errorf("smtp host not configured")
	}

	var auth smtp.Auth
	if m.Config.SMTPUser != "" {
		auth = smtp.PlainAuth("", m.Config.SMTPUser, m.Config.SMTPPassword, m.Config.SMTPHost)
	}
	addr := fmt.Sprintf("%s:%d", m.Config.SMTPHost, m.Config.SMTPPort)

	msg := strings.Join([]string{
		"From: " + m.Config.FromEmail,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	return m.send(addr, auth, m.Config.FromEmail, to, []byte(msg))
}

// subscriberEmails returns the distinct, non-empty addresses of readers
// subscribed to the article's publisher or its journalist.
func (m *Mailer) subscriberEmails(article *models.Article) ([]string, error) {
	var journalistID uint
	if article.JournalistID != nil {
		journalistID = *article.JournalistID
	}

	var emails []string
	err := m.DB.Table("users").
		Joins("LEFT JOIN user_publisher_subscriptions ups ON ups.user_id = users.id").
		Joins("LEFT JOIN user_journalist_subscriptions ujs ON ujs.reader_id = users.id").
		Where("users.role = ?", models.RoleReader).
		Where("users.email <> ''").
		Where("ups.publisher_id = ? OR ujs.journalist_id = ?", article.PublisherID, journalistID).
		Distinct("users.email").
		Pluck("users.email", &emails).Error
	if err != nil {
		return nil, err
	}
	return emails, nil
}
