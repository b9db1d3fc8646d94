package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"newswire/channels"
	"newswire/models"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Publisher{},
		&models.User{},
		&models.Article{},
		&models.Newsletter{},
		&models.DispatchLog{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}

func newTestRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	return newRouter(db, zap.NewNop(), channels.NewDispatcher(db, zap.NewNop()))
}

// createLoggedInUser inserts a user with an issued token, bypassing the
// register/login flow which has its own test.
func createLoggedInUser(t *testing.T, db *gorm.DB, username, role string) (*models.User, string) {
	t.Helper()
	token := "token-" + username
	user := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		Role:         role,
		AuthToken:    token,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user, token
}

func doRequest(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("X-Auth-Token", token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// newsroom seeds pub1/pub2, journalists j1/j2 and the three scenario
// articles: A1 approved (pub1, j1), A2 approved (pub2, j2), A3 unapproved
// (pub2, j1).
type newsroom struct {
	pub1, pub2 models.Publisher
	j1, j2     *models.User
	a1, a2, a3 models.Article
}

func seedNewsroom(t *testing.T, db *gorm.DB) newsroom {
	t.Helper()
	n := newsroom{pub1: models.Publisher{Name: "pub1"}, pub2: models.Publisher{Name: "pub2"}}
	if err := db.Create(&n.pub1).Error; err != nil {
		t.Fatalf("seed pub1: %v", err)
	}
	if err := db.Create(&n.pub2).Error; err != nil {
		t.Fatalf("seed pub2: %v", err)
	}
	n.j1, _ = createLoggedInUser(t, db, "j1", models.RoleJournalist)
	n.j2, _ = createLoggedInUser(t, db, "j2", models.RoleJournalist)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	n.a1 = models.Article{Title: "A1", Content: "c1", PublisherID: n.pub1.ID, JournalistID: &n.j1.ID, Approved: true, CreatedAt: base}
	n.a2 = models.Article{Title: "A2", Content: "c2", PublisherID: n.pub2.ID, JournalistID: &n.j2.ID, Approved: true, CreatedAt: base.Add(time.Hour)}
	n.a3 = models.Article{Title: "A3", Content: "c3", PublisherID: n.pub2.ID, JournalistID: &n.j1.ID, Approved: false, CreatedAt: base.Add(2 * time.Hour)}
	for _, a := range []*models.Article{&n.a1, &n.a2, &n.a3} {
		if err := db.Create(a).Error; err != nil {
			t.Fatalf("seed article %s: %v", a.Title, err)
		}
	}
	return n
}

func decodeFeed(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var resp struct {
		Articles []map[string]any `json:"articles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode feed response: %v (%s)", err, rec.Body.String())
	}
	return resp.Articles
}

func TestFeedRequiresAuthentication(t *testing.T) {
	db := openTestDB(t)
	router := newTestRouter(t, db)

	rec := doRequest(t, router, http.MethodGet, "/feed", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/feed", "bogus", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown token, got %d", rec.Code)
	}
}

func TestFeedForbiddenForNonReaders(t *testing.T) {
	db := openTestDB(t)
	router := newTestRouter(t, db)
	_, journalistToken := createLoggedInUser(t, db, "jour", models.RoleJournalist)
	_, editorToken := createLoggedInUser(t, db, "ed", models.RoleEditor)

	for _, token := range []string{journalistToken, editorToken} {
		rec := doRequest(t, router, http.MethodGet, "/feed?format=xml", token, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
		if rec.Body.String() != "Forbidden" {
			t.Errorf("expected plain Forbidden body, got %q", rec.Body.String())
		}
	}
}

func TestFeedEmptySubscriptions(t *testing.T) {
	db := openTestDB(t)
	router := newTestRouter(t, db)
	seedNewsroom(t, db)
	_, token := createLoggedInUser(t, db, "reader", models.RoleReader)

	rec := doRequest(t, router, http.MethodGet, "/feed", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if articles := decodeFeed(t, rec); len(articles) != 0 {
		t.Errorf("expected empty feed, got %v", articles)
	}
	if !strings.Contains(rec.Body.String(), `"articles":[]`) {
		t.Errorf("expected articles to marshal as [], got %s", rec.Body.String())
	}
}

func TestFeedUnionScenario(t *testing.T) {
	db := openTestDB(t)
	router := newTestRouter(t, db)
	n := seedNewsroom(t, db)
	reader, token := createLoggedInUser(t, db, "reader", models.RoleReader)
	if err := db.Model(reader).Association("SubscribedPublishers").Append(&n.pub1); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := db.Model(reader).Association("SubscribedJournalists").Append(n.j2); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	rec := doRequest(t, router, http.MethodGet, "/feed", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	articles := decodeFeed(t, rec)
	if len(articles) != 2 {
		t.Fatalf("expected exactly A1 and A2, got %v", articles)
	}
	if articles[0]["title"] != "A2" || articles[1]["title"] != "A1" {
		t.Errorf("expected [A2 A1] newest first, got %v", articles)
	}
	for _, a := range articles {
		if a["title"] == "A3" {
			t.Error("unapproved A3 leaked into the feed")
		}
	}
}

func TestFeedJSONFields(t *testing.T) {
	db := openTestDB(t)
	router := newTestRouter(t, db)
	n := seedNewsroom(t, db)
	reader, token := createLoggedInUser(t, db, "reader", models.RoleReader)
	if err := db.Model(reader).Association("SubscribedPublishers").Append(&n.pub2); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	rec := doRequest(t, router, http.MethodGet, "/feed", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	articles := decodeFeed(t, rec)
	if len(articles) != 1 {
		t.Fatalf("expected only A2, got %v", articles)
	}
	a := articles[0]
	if a["title"] != "A2" || a["content"] != "c2" || a["approved"] != true {
		t.Errorf("unexpected fields: %v", a)
	}
	if a["publisher"] != "pub2" || a["journalist"] != "j2" {
		t.Errorf("expected related names, got publisher=%v journalist=%v", a["publisher"], a["journalist"])
	}
	if a["created_at"] != "2026-08-01T13:00:00Z" {
		t.Errorf("unexpected created_at: %v", a["created_at"])
	}
}

func TestFeedXML(t *testing.T) {
	db := openTestDB(t)
	router := newTestRouter(t, db)
	n := seedNewsroom(t, db)
	reader, token := createLoggedInUser(t, db, "reader", models.RoleReader)
	if err := db.Model(reader).Association("SubscribedPublishers").Append(&n.pub2); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Format matching is case-insensitive.
	rec := doRequest(t, router, http.MethodGet, "/feed?format=XML", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("expected application/xml, got %q", ct)
	}

	body := rec.Body.String()
	if n := strings.Count(body, "<article>"); n != 1 {
		t.Errorf("expected exactly one article element, got %d in %s", n, body)
	}
	for _, want := range []string{"<title>A2</title>", "<approved>true</approved>", "<publisher>pub2</publisher>", "<journalist>j2</journalist>"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s in %s", want, body)
		}
	}
}

func TestFeedUnknownFormatFallsBackToJSON(t *testing.T) {
	db := openTestDB(t)
	router := newTestRouter(t, db)
	_, token := createLoggedInUser(t, db, "reader", models.RoleReader)

	rec := doRequest(t, router, http.MethodGet, "/feed?format=yaml", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("unrecognized formats must fall back to JSON, got %q", ct)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	db := openTestDB(t)
	router := newTestRouter(t, db)

	rec := doRequest(t, router, http.MethodPost, "/auth/register", "", gin.H{
		"username": "alice", "email": "alice@example.com", "password": "s3cret", "role": "Reader",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "s3cret") {
		t.Error("password must not appear in the response")
	}

	// Duplicate username.
	rec = doRequest(t, router, http.MethodPost, "/auth/register", "", gin.H{
		"username": "alice", "password": "other", "role": "reader",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}

	// Unknown role.
	rec = doRequest(t, router, http.MethodPost, "/auth/register", "", gin.H{
		"username": "bob", "password": "pw", "role": "admin",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown role, got %d", rec.Code)
	}

	// Wrong password.
	rec = doRequest(t, router, http.MethodPost, "/auth/login", "", gin.H{
		"username": "alice", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/auth/login", "", gin.H{
		"username": "alice", "password": "s3cret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var login struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	if login.Token == "" || login.Role != "reader" {
		t.Fatalf("unexpected login response: %+v", login)
	}

	rec = doRequest(t, router, http.MethodGet, "/feed", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected issued token to work on /feed, got %d", rec.Code)
	}
}

func TestArticleLifecycle(t *testing.T) {
	db := openTestDB(t)
	router := newTestRouter(t, db)

	pub := models.Publisher{Name: "pub"}
	if err := db.Create(&pub).Error; err != nil {
		t.Fatalf("seed publisher: %v", err)
	}
	_, journalistToken := createLoggedInUser(t, db, "jour", models.RoleJournalist)
	_, editorToken := createLoggedInUser(t, db, "ed", models.RoleEditor)
	_, readerToken := createLoggedInUser(t, db, "reader", models.RoleReader)

	// Journalist creates; article starts unapproved.
	rec := doRequest(t, router, http.MethodPost, "/articles", journalistToken, gin.H{
		"title": "Scoop", "content": "Details.", "publisher_id": pub.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var created models.Article
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created article: %v", err)
	}
	if created.Approved {
		t.Error("new articles must start unapproved")
	}

	// Readers cannot create.
	rec = doRequest(t, router, http.MethodPost, "/articles", readerToken, gin.H{
		"title": "Nope", "content": "x", "publisher_id": pub.ID,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for reader create, got %d", rec.Code)
	}

	// Unapproved articles are hidden from the detail endpoint.
	articleURL := fmt.Sprintf("/articles/%d", created.ID)
	rec = doRequest(t, router, http.MethodGet, articleURL, readerToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unapproved article, got %d", rec.Code)
	}

	// Readers cannot approve.
	approveURL := fmt.Sprintf("/articles/%d/approve", created.ID)
	rec = doRequest(t, router, http.MethodPost, approveURL, readerToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for reader approve, got %d", rec.Code)
	}

	// Editor approves.
	rec = doRequest(t, router, http.MethodPost, approveURL, editorToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var approved models.Article
	db.First(&approved, created.ID)
	if !approved.Approved {
		t.Fatal("expected article to be approved")
	}

	rec = doRequest(t, router, http.MethodGet, articleURL, readerToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected approved article to be visible, got %d", rec.Code)
	}

	// A journalist edit sends the article back to review.
	rec = doRequest(t, router, http.MethodPut, articleURL, journalistToken, gin.H{
		"title": "Scoop v2", "content": "More details.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var edited models.Article
	db.First(&edited, created.ID)
	if edited.Approved {
		t.Error("journalist edits must reset approval")
	}
	if edited.Title != "Scoop v2" {
		t.Errorf("expected updated title, got %q", edited.Title)
	}

	// Another journalist cannot touch it.
	_, otherToken := createLoggedInUser(t, db, "rival", models.RoleJournalist)
	rec = doRequest(t, router, http.MethodPut, articleURL, otherToken, gin.H{
		"title": "Stolen", "content": "x",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for foreign journalist, got %d", rec.Code)
	}
	rec = doRequest(t, router, http.MethodDelete, articleURL, otherToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for foreign delete, got %d", rec.Code)
	}

	// The owner can delete.
	rec = doRequest(t, router, http.MethodDelete, articleURL, journalistToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestPublisherEndpoints(t *testing.T) {
	db := openTestDB(t)
	router := newTestRouter(t, db)
	_, editorToken := createLoggedInUser(t, db, "ed", models.RoleEditor)
	_, journalistToken := createLoggedInUser(t, db, "jour", models.RoleJournalist)

	rec := doRequest(t, router, http.MethodPost, "/publishers", editorToken, gin.H{"name": "The Gazette"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPost, "/publishers", editorToken, gin.H{"name": "The Gazette"})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/publishers", journalistToken, gin.H{"name": "Indie"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for journalist create, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/publishers", journalistToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for authenticated list, got %d", rec.Code)
	}
}

func TestSubscriptionEndpoints(t *testing.T) {
	db := openTestDB(t)
	router := newTestRouter(t, db)
	n := seedNewsroom(t, db)
	_, readerToken := createLoggedInUser(t, db, "reader", models.RoleReader)

	// Subscribing to a publisher makes its approved articles visible.
	rec := doRequest(t, router, http.MethodPost, fmt.Sprintf("/subscriptions/publishers/%d", n.pub1.ID), readerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, router, http.MethodGet, "/feed", readerToken, nil)
	if articles := decodeFeed(t, rec); len(articles) != 1 || articles[0]["title"] != "A1" {
		t.Errorf("expected [A1] after subscribing, got %v", articles)
	}

	// Unsubscribing empties the feed again.
	rec = doRequest(t, router, http.MethodDelete, fmt.Sprintf("/subscriptions/publishers/%d", n.pub1.ID), readerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = doRequest(t, router, http.MethodGet, "/feed", readerToken, nil)
	if articles := decodeFeed(t, rec); len(articles) != 0 {
		t.Errorf("expected empty feed after unsubscribing, got %v", articles)
	}

	// Only journalists can be subscription targets.
	_, otherReaderToken := createLoggedInUser(t, db, "other", models.RoleReader)
	_ = otherReaderToken
	var other models.User
	db.Where("username = ?", "other").First(&other)
	rec = doRequest(t, router, http.MethodPost, fmt.Sprintf("/subscriptions/journalists/%d", other.ID), readerToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-journalist target, got %d", rec.Code)
	}

	// Non-readers cannot manage subscriptions.
	rec = doRequest(t, router, http.MethodPost, fmt.Sprintf("/subscriptions/publishers/%d", n.pub1.ID), "token-j1", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for journalist, got %d", rec.Code)
	}
}

func TestRoleChangeEndpoint(t *testing.T) {
	db := openTestDB(t)
	router := newTestRouter(t, db)
	n := seedNewsroom(t, db)
	_, editorToken := createLoggedInUser(t, db, "ed", models.RoleEditor)
	reader, readerToken := createLoggedInUser(t, db, "reader", models.RoleReader)
	if err := db.Model(reader).Association("SubscribedPublishers").Append(&n.pub1); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Readers cannot change roles.
	url := fmt.Sprintf("/users/%d/role", reader.ID)
	rec := doRequest(t, router, http.MethodPut, url, readerToken, gin.H{"role": "editor"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPut, url, editorToken, gin.H{"role": "editor"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var updated models.User
	db.First(&updated, reader.ID)
	if updated.Role != models.RoleEditor {
		t.Errorf("expected editor role, got %s", updated.Role)
	}
	if count := db.Model(&updated).Association("SubscribedPublishers").Count(); count != 0 {
		t.Errorf("expected subscriptions cleared on role change, got %d", count)
	}
}

func TestNewsletterEndpoints(t *testing.T) {
	db := openTestDB(t)
	router := newTestRouter(t, db)
	pub := models.Publisher{Name: "pub"}
	if err := db.Create(&pub).Error; err != nil {
		t.Fatalf("seed publisher: %v", err)
	}
	_, journalistToken := createLoggedInUser(t, db, "jour", models.RoleJournalist)
	_, editorToken := createLoggedInUser(t, db, "ed", models.RoleEditor)
	_, readerToken := createLoggedInUser(t, db, "reader", models.RoleReader)

	rec := doRequest(t, router, http.MethodPost, "/newsletters", journalistToken, gin.H{
		"title": "Weekly", "content": "News.", "publisher_id": pub.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var created models.Newsletter
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode newsletter: %v", err)
	}

	// Readers have no newsletter surface.
	rec = doRequest(t, router, http.MethodGet, "/newsletters", readerToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for reader list, got %d", rec.Code)
	}

	// Journalist sees own, editor sees all.
	rec = doRequest(t, router, http.MethodGet, "/newsletters", journalistToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for journalist list, got %d", rec.Code)
	}
	rec = doRequest(t, router, http.MethodGet, "/newsletters", editorToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for editor list, got %d", rec.Code)
	}

	// Editor may edit any newsletter.
	url := fmt.Sprintf("/newsletters/%d", created.ID)
	rec = doRequest(t, router, http.MethodPut, url, editorToken, gin.H{
		"title": "Weekly v2", "content": "Updated.",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodDelete, url, journalistToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
