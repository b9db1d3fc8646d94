package services

import (
	"encoding/xml"
	"time"

	"newswire/models"
)

// ArticleRecord is the canonical wire representation of an article. Both the
// JSON and the XML feed renderings are derived from this mapping and must
// not diverge for the same input.
type ArticleRecord struct {
	ID         uint    `json:"id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Approved   bool    `json:"approved"`
	CreatedAt  *string `json:"created_at"`
	Publisher  *string `json:"publisher"`
	Journalist *string `json:"journalist"`
}

// NewArticleRecord maps an article to its canonical record. CreatedAt is
// RFC 3339, nil when unset; publisher and journalist are the related name
// and username, nil when absent.
func NewArticleRecord(a *models.Article) ArticleRecord {
	rec := ArticleRecord{
		ID:       a.ID,
		Title:    a.Title,
		Content:  a.Content,
		Approved: a.Approved,
	}
	if !a.CreatedAt.IsZero() {
		s := a.CreatedAt.Format(time.RFC3339)
		rec.CreatedAt = &s
	}
	if a.Publisher != nil {
		rec.Publisher = &a.Publisher.Name
	}
	if a.Journalist != nil {
		rec.Journalist = &a.Journalist.Username
	}
	return rec
}

// ArticleRecords maps a slice of articles in order. The result is never nil
// so an empty feed marshals as [] rather than null.
func ArticleRecords(articles []models.Article) []ArticleRecord {
	records := make([]ArticleRecord, 0, len(articles))
	for i := range articles {
		records = append(records, NewArticleRecord(&articles[i]))
	}
	return records
}

type xmlArticle struct {
	ID         uint   `xml:"id"`
	Title      string `xml:"title"`
	Content    string `xml:"content"`
	Approved   string `xml:"approved"`
	CreatedAt  string `xml:"created_at"`
	Publisher  string `xml:"publisher"`
	Journalist string `xml:"journalist"`
}

type xmlArticleList struct {
	XMLName  xml.Name     `xml:"articles"`
	Articles []xmlArticle `xml:"article"`
}

// ArticlesToXML renders articles as an <articles> document with one
// <article> element per input, in input order. Approved is the literal
// "true"/"false"; unset created_at, publisher and journalist become empty
// strings.
func ArticlesToXML(articles []models.Article) ([]byte, error) {
	doc := xmlArticleList{Articles: make([]xmlArticle, 0, len(articles))}
	for i := range articles {
		rec := NewArticleRecord(&articles[i])
		node := xmlArticle{
			ID:       rec.ID,
			Title:    rec.Title,
			Content:  rec.Content,
			Approved: "false",
		}
		if rec.Approved {
			node.Approved = "true"
		}
		if rec.CreatedAt != nil {
			node.CreatedAt = *rec.CreatedAt
		}
		if rec.Publisher != nil {
			node.Publisher = *rec.Publisher
		}
		if rec.Journalist != nil {
			node.Journalist = *rec.Journalist
		}
		doc.Articles = append(doc.Articles, node)
	}
	return xml.Marshal(doc)
}
