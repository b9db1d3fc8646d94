package services

import (
	"time"

	"gorm.io/gorm"

	"newswire/models"
)

// VisibleArticles returns the approved articles a reader can see through its
// subscriptions: every approved article whose publisher is in the reader's
// subscribed publishers or whose journalist is in the reader's subscribed
// journalists. The result is deduplicated by article id and ordered by
// created_at descending, id descending as tiebreak. The caller is
// responsible for ensuring the user actually holds the reader role.
func VisibleArticles(db *gorm.DB, reader *models.User) ([]models.Article, error) {
	return VisibleArticlesSince(db, reader, time.Time{})
}

// VisibleArticlesSince is VisibleArticles restricted to articles created
// after cutoff. A zero cutoff applies no restriction.
func VisibleArticlesSince(db *gorm.DB, reader *models.User, cutoff time.Time) ([]models.Article, error) {
	pubIDs, jourIDs, err := subscriptionIDs(db, reader)
	if err != nil {
		return nil, err
	}
	if len(pubIDs) == 0 && len(jourIDs) == 0 {
		return []models.Article{}, nil
	}

	var match *gorm.DB
	switch {
	case len(pubIDs) == 0:
		match = db.Where("journalist_id IN ?", jourIDs)
	case len(jourIDs) == 0:
		match = db.Where("publisher_id IN ?", pubIDs)
	default:
		match = db.Where("publisher_id IN ?", pubIDs).Or("journalist_id IN ?", jourIDs)
	}

	query := db.Model(&models.Article{}).
		Where("approved = ?", true).
		Where(match)
	if !cutoff.IsZero() {
		query = query.Where("created_at > ?", cutoff)
	}

	var articles []models.Article
	err = query.
		Preload("Publisher").
		Preload("Journalist").
		Order("created_at DESC, id DESC").
		Find(&articles).Error
	if err != nil {
		return nil, err
	}

	// Distinct guard in case subscription rows were duplicated.
	seen := make(map[uint]bool, len(articles))
	out := articles[:0]
	for _, a := range articles {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out, nil
}

func subscriptionIDs(db *gorm.DB, reader *models.User) (pubIDs, jourIDs []uint, err error) {
	err = db.Table("user_publisher_subscriptions").
		Where("user_id = ?", reader.ID).
		Pluck("publisher_id", &pubIDs).Error
	if err != nil {
		return nil, nil, err
	}
	err = db.Table("user_journalist_subscriptions").
		Where("reader_id = ?", reader.ID).
		Pluck("journalist_id", &jourIDs).Error
	if err != nil {
		return nil, nil, err
	}
	return pubIDs, jourIDs, nil
}
