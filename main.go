package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"newswire/channels"
	"newswire/channels/archive"
	"newswire/channels/email"
	"newswire/channels/x"
	"newswire/config"
	"newswire/models"
	"newswire/services"
	"newswire/storage"
)

var (
	feedRequestsCounter     prometheus.Counter
	articlesApprovedCounter prometheus.Counter
)

func init() {
	feedRequestsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_requests_total",
			Help: "Total number of reader feed requests served.",
		},
	)
	articlesApprovedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "articles_approved_total",
			Help: "Total number of articles approved by editors.",
		},
	)
	prometheus.MustRegister(feedRequestsCounter, articlesApprovedCounter)
}

// authMiddleware resolves the X-Auth-Token header to a user and stores it in
// the request context. Every route behind it sees an already-authenticated
// principal with a known role.
func authMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Auth-Token")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		var user models.User
		if err := db.Where("auth_token = ?", token).First(&user).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("user", &user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet("user").(*models.User)
}

func newAuthToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(
		&models.Publisher{},
		&models.User{},
		&models.Article{},
		&models.Newsletter{},
		&models.DispatchLog{},
	); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	// Approval side-effect channels. Mail and the X post are always on;
	// the S3 archive only when an endpoint is configured.
	mailer := email.New(cfg, db, logging)
	approvalChannels := []channels.Channel{mailer, x.New(cfg, logging)}
	if cfg.ArchiveS3URL != "" {
		s3Client, err := storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		approvalChannels = append(approvalChannels, archive.New(cfg, s3Client, logging))
	}
	dispatcher := channels.NewDispatcher(db, logging, approvalChannels...)

	router := newRouter(db, logging, dispatcher)

	digest := services.NewDigestService(db, mailer, logging)
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.DigestCronSchedule, func() {
		logging.Info("Running scheduled digest job...")
		sent, err := digest.Run(context.Background())
		if err != nil {
			logging.Error("Digest job failed", zap.Error(err))
		} else {
			logging.Info("Digest job completed", zap.Int("digests_sent", sent))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func newRouter(db *gorm.DB, logging *zap.Logger, dispatcher *channels.Dispatcher) *gin.Engine {
	router := gin.Default()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupAuthRoutes(router, db, logging)

	authed := router.Group("", authMiddleware(db))
	setupFeedRoutes(authed, db, logging)
	setupArticleRoutes(authed, db, logging, dispatcher)
	setupNewsletterRoutes(authed, db, logging)
	setupPublisherRoutes(authed, db, logging)
	setupSubscriptionRoutes(authed, db, logging)
	setupUserRoutes(authed, db, logging)

	return router
}

func setupAuthRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/auth")

	rg.POST("/register", func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
			Email    string `json:"email"`
			Password string `json:"password"`
			Role     string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		req.Username = strings.TrimSpace(req.Username)
		req.Role = strings.ToLower(strings.TrimSpace(req.Role))

		switch {
		case req.Username == "":
			c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
			return
		case req.Password == "":
			c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
			return
		case !models.AllowedRole(req.Role):
			c.JSON(http.StatusBadRequest, gin.H{"error": "please choose a role"})
			return
		}

		var count int64
		db.Model(&models.User{}).Where("username = ?", req.Username).Count(&count)
		if count > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "that username is already taken"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Error("Password hashing failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
			return
		}

		user := models.User{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: string(hash),
			Role:         req.Role,
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			return services.SyncRole(tx, &user)
		})
		if err != nil {
			log.Error("Failed to create user", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
			return
		}

		log.Info("User registered", zap.String("username", user.Username), zap.String("role", user.Role))
		c.JSON(http.StatusCreated, user)
	})

	rg.POST("/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		var user models.User
		if err := db.Where("username = ?", req.Username).First(&user).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		token, err := newAuthToken()
		if err != nil {
			log.Error("Token generation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		if err := db.Model(&user).Update("auth_token", token).Error; err != nil {
			log.Error("Failed to store auth token", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": token, "role": user.Role})
	})
}

// setupFeedRoutes wires the subscription-filtered reader feed. Format is
// chosen by the "format" query parameter; anything but "xml" falls back to
// JSON.
func setupFeedRoutes(router *gin.RouterGroup, db *gorm.DB, log *zap.Logger) {
	router.GET("/feed", func(c *gin.Context) {
		user := currentUser(c)
		if user.Role != models.RoleReader {
			c.String(http.StatusForbidden, "Forbidden")
			return
		}
		feedRequestsCounter.Inc()

		articles, err := services.VisibleArticles(db, user)
		if err != nil {
			log.Error("Feed resolve failed", zap.String("username", user.Username), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		format := strings.ToLower(c.DefaultQuery("format", "json"))
		if format == "xml" {
			data, err := services.ArticlesToXML(articles)
			if err != nil {
				log.Error("XML serialization failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "serialization error"})
				return
			}
			c.Data(http.StatusOK, "application/xml", data)
			return
		}

		c.JSON(http.StatusOK, gin.H{"articles": services.ArticleRecords(articles)})
	})
}

func setupArticleRoutes(router *gin.RouterGroup, db *gorm.DB, log *zap.Logger, dispatcher *channels.Dispatcher) {
	rg := router.Group("/articles")

	// Approved articles, newest first. Visible to any authenticated user.
	rg.GET("", func(c *gin.Context) {
		var articles []models.Article
		err := db.Where("approved = ?", true).
			Preload("Publisher").Preload("Journalist").
			Order("created_at DESC, id DESC").
			Find(&articles).Error
		if err != nil {
			log.Error("Database query for articles failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"articles": services.ArticleRecords(articles)})
	})

	// The journalist's own articles, approved or not.
	rg.GET("/mine", func(c *gin.Context) {
		user := currentUser(c)
		if user.Role != models.RoleJournalist {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		var articles []models.Article
		err := db.Where("journalist_id = ?", user.ID).
			Order("created_at DESC, id DESC").
			Find(&articles).Error
		if err != nil {
			log.Error("Database query for own articles failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, articles)
	})

	// Unapproved articles awaiting review. Editors only.
	rg.GET("/pending", func(c *gin.Context) {
		user := currentUser(c)
		if user.Role != models.RoleEditor {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		var articles []models.Article
		err := db.Where("approved = ?", false).
			Order("created_at DESC, id DESC").
			Find(&articles).Error
		if err != nil {
			log.Error("Database query for pending articles failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, articles)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id := c.Param("id")
		var article models.Article
		err := db.Where("approved = ?", true).
			Preload("Publisher").Preload("Journalist").
			First(&article, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
				return
			}
			log.Error("DB error fetching article", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, services.NewArticleRecord(&article))
	})

	// Journalists create articles; they always start unapproved.
	rg.POST("", func(c *gin.Context) {
		user := currentUser(c)
		if user.Role != models.RoleJournalist {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		var req struct {
			Title       string `json:"title"`
			Content     string `json:"content"`
			PublisherID uint   `json:"publisher_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.Title = strings.TrimSpace(req.Title)
		req.Content = strings.TrimSpace(req.Content)

		switch {
		case req.Title == "":
			c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
			return
		case req.Content == "":
			c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
			return
		}

		var publisher models.Publisher
		if err := db.First(&publisher, req.PublisherID).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "publisher is required"})
			return
		}

		article := models.Article{
			Title:        req.Title,
			Content:      req.Content,
			PublisherID:  publisher.ID,
			JournalistID: &user.ID,
			Approved:     false,
		}
		if err := db.Create(&article).Error; err != nil {
			log.Error("Failed to create article", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create article"})
			return
		}

		log.Info("Article created", zap.Uint("id", article.ID), zap.String("journalist", user.Username))
		c.JSON(http.StatusCreated, article)
	})

	// Journalists update their own articles, which resets approval.
	// Editors update any article, including the approval flag.
	rg.PUT("/:id", func(c *gin.Context) {
		user := currentUser(c)
		id := c.Param("id")

		var article models.Article
		if err := db.First(&article, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
				return
			}
			log.Error("DB error fetching article on PUT", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		switch user.Role {
		case models.RoleJournalist:
			if article.JournalistID == nil || *article.JournalistID != user.ID {
				c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return
			}
		case models.RoleEditor:
		default:
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		var req struct {
			Title       string `json:"title"`
			Content     string `json:"content"`
			PublisherID uint   `json:"publisher_id"`
			Approved    *bool  `json:"approved"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.Title = strings.TrimSpace(req.Title)
		req.Content = strings.TrimSpace(req.Content)

		switch {
		case req.Title == "":
			c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
			return
		case req.Content == "":
			c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
			return
		}

		if req.PublisherID != 0 {
			var publisher models.Publisher
			if err := db.First(&publisher, req.PublisherID).Error; err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "publisher not found"})
				return
			}
			article.PublisherID = publisher.ID
		}

		article.Title = req.Title
		article.Content = req.Content
		if user.Role == models.RoleEditor {
			if req.Approved != nil {
				article.Approved = *req.Approved
			}
		} else {
			// Any journalist edit sends the article back to review.
			article.Approved = false
		}

		if err := db.Save(&article).Error; err != nil {
			log.Error("Failed to update article", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update article"})
			return
		}
		c.JSON(http.StatusOK, article)
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		user := currentUser(c)
		id := c.Param("id")

		var article models.Article
		if err := db.First(&article, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
				return
			}
			log.Error("DB error fetching article on DELETE", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		ownedByCaller := article.JournalistID != nil && *article.JournalistID == user.ID
		if user.Role != models.RoleEditor && !(user.Role == models.RoleJournalist && ownedByCaller) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		if err := db.Delete(&article).Error; err != nil {
			log.Error("Failed to delete article", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete article"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "deleted"})
	})

	// Editors approve articles; subscribers are notified through the
	// configured channels, failures silently ignored by policy.
	rg.POST("/:id/approve", func(c *gin.Context) {
		user := currentUser(c)
		if user.Role != models.RoleEditor {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		id := c.Param("id")
		var article models.Article
		if err := db.First(&article, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
				return
			}
			log.Error("DB error fetching article on approve", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		if !article.Approved {
			if err := db.Model(&article).Update("approved", true).Error; err != nil {
				log.Error("Failed to approve article", zap.String("id", id), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to approve article"})
				return
			}
			article.Approved = true
			articlesApprovedCounter.Inc()
			dispatcher.ArticleApproved(&article)
			log.Info("Article approved", zap.Uint("id", article.ID), zap.String("editor", user.Username))
		}

		c.JSON(http.StatusOK, article)
	})
}

func setupNewsletterRoutes(router *gin.RouterGroup, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/newsletters")

	// Journalists see their own newsletters, editors see all.
	rg.GET("", func(c *gin.Context) {
		user := currentUser(c)

		query := db.Model(&models.Newsletter{})
		switch user.Role {
		case models.RoleJournalist:
			query = query.Where("journalist_id = ?", user.ID)
		case models.RoleEditor:
		default:
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		var newsletters []models.Newsletter
		if err := query.Order("created_at DESC, id DESC").Find(&newsletters).Error; err != nil {
			log.Error("Database query for newsletters failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, newsletters)
	})

	rg.POST("", func(c *gin.Context) {
		user := currentUser(c)
		if user.Role != models.RoleJournalist {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		var req struct {
			Title       string `json:"title"`
			Content     string `json:"content"`
			PublisherID uint   `json:"publisher_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.Title = strings.TrimSpace(req.Title)
		req.Content = strings.TrimSpace(req.Content)

		switch {
		case req.Title == "":
			c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
			return
		case req.Content == "":
			c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
			return
		}

		var publisher models.Publisher
		if err := db.First(&publisher, req.PublisherID).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "publisher is required"})
			return
		}

		newsletter := models.Newsletter{
			Title:        req.Title,
			Content:      req.Content,
			PublisherID:  publisher.ID,
			JournalistID: &user.ID,
		}
		if err := db.Create(&newsletter).Error; err != nil {
			log.Error("Failed to create newsletter", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create newsletter"})
			return
		}
		c.JSON(http.StatusCreated, newsletter)
	})

	rg.PUT("/:id", func(c *gin.Context) {
		user := currentUser(c)
		id := c.Param("id")

		var newsletter models.Newsletter
		if err := db.First(&newsletter, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "newsletter not found"})
				return
			}
			log.Error("DB error fetching newsletter on PUT", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		ownedByCaller := newsletter.JournalistID != nil && *newsletter.JournalistID == user.ID
		if user.Role != models.RoleEditor && !(user.Role == models.RoleJournalist && ownedByCaller) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		var req struct {
			Title       string `json:"title"`
			Content     string `json:"content"`
			PublisherID uint   `json:"publisher_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.Title = strings.TrimSpace(req.Title)
		req.Content = strings.TrimSpace(req.Content)

		switch {
		case req.Title == "":
			c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
			return
		case req.Content == "":
			c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
			return
		}

		if req.PublisherID != 0 {
			var publisher models.Publisher
			if err := db.First(&publisher, req.PublisherID).Error; err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "publisher not found"})
				return
			}
			newsletter.PublisherID = publisher.ID
		}
		newsletter.Title = req.Title
		newsletter.Content = req.Content

		if err := db.Save(&newsletter).Error; err != nil {
			log.Error("Failed to update newsletter", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update newsletter"})
			return
		}
		c.JSON(http.StatusOK, newsletter)
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		user := currentUser(c)
		id := c.Param("id")

		var newsletter models.Newsletter
		if err := db.First(&newsletter, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "newsletter not found"})
				return
			}
			log.Error("DB error fetching newsletter on DELETE", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		ownedByCaller := newsletter.JournalistID != nil && *newsletter.JournalistID == user.ID
		if user.Role != models.RoleEditor && !(user.Role == models.RoleJournalist && ownedByCaller) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		if err := db.Delete(&newsletter).Error; err != nil {
			log.Error("Failed to delete newsletter", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete newsletter"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "deleted"})
	})
}

func setupPublisherRoutes(router *gin.RouterGroup, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/publishers")

	rg.GET("", func(c *gin.Context) {
		var publishers []models.Publisher
		if err := db.Order("name").Find(&publishers).Error; err != nil {
			log.Error("Database query for publishers failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, publishers)
	})

	rg.POST("", func(c *gin.Context) {
		user := currentUser(c)
		if user.Role != models.RoleEditor {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		var req struct {
			Name string `json:"name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}

		var count int64
		db.Model(&models.Publisher{}).Where("name = ?", req.Name).Count(&count)
		if count > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "that publisher already exists"})
			return
		}

		publisher := models.Publisher{Name: req.Name}
		if err := db.Create(&publisher).Error; err != nil {
			log.Error("Failed to create publisher", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create publisher"})
			return
		}
		c.JSON(http.StatusCreated, publisher)
	})

	// Deleting a publisher cascades to its articles and newsletters.
	rg.DELETE("/:id", func(c *gin.Context) {
		user := currentUser(c)
		if user.Role != models.RoleEditor {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		id := c.Param("id")
		var publisher models.Publisher
		if err := db.First(&publisher, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "publisher not found"})
				return
			}
			log.Error("DB error fetching publisher on DELETE", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		if err := db.Delete(&publisher).Error; err != nil {
			log.Error("Failed to delete publisher", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete publisher"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "deleted"})
	})
}

// setupSubscriptionRoutes lets readers manage the subscription relations the
// feed resolver filters on.
func setupSubscriptionRoutes(router *gin.RouterGroup, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/subscriptions")

	requireReader := func(c *gin.Context) *models.User {
		user := currentUser(c)
		if user.Role != models.RoleReader {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return nil
		}
		return user
	}

	rg.POST("/publishers/:id", func(c *gin.Context) {
		user := requireReader(c)
		if user == nil {
			return
		}
		var publisher models.Publisher
		if err := db.First(&publisher, "id = ?", c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "publisher not found"})
			return
		}
		if err := db.Model(user).Association("SubscribedPublishers").Append(&publisher); err != nil {
			log.Error("Failed to subscribe to publisher", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "subscribed", "publisher": publisher.Name})
	})

	rg.DELETE("/publishers/:id", func(c *gin.Context) {
		user := requireReader(c)
		if user == nil {
			return
		}
		var publisher models.Publisher
		if err := db.First(&publisher, "id = ?", c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "publisher not found"})
			return
		}
		if err := db.Model(user).Association("SubscribedPublishers").Delete(&publisher); err != nil {
			log.Error("Failed to unsubscribe from publisher", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unsubscribe"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "unsubscribed"})
	})

	rg.POST("/journalists/:id", func(c *gin.Context) {
		user := requireReader(c)
		if user == nil {
			return
		}
		var journalist models.User
		if err := db.First(&journalist, "id = ?", c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "journalist not found"})
			return
		}
		if journalist.Role != models.RoleJournalist {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user is not a journalist"})
			return
		}
		if err := db.Model(user).Association("SubscribedJournalists").Append(&journalist); err != nil {
			log.Error("Failed to subscribe to journalist", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "subscribed", "journalist": journalist.Username})
	})

	rg.DELETE("/journalists/:id", func(c *gin.Context) {
		user := requireReader(c)
		if user == nil {
			return
		}
		var journalist models.User
		if err := db.First(&journalist, "id = ?", c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "journalist not found"})
			return
		}
		if err := db.Model(user).Association("SubscribedJournalists").Delete(&journalist); err != nil {
			log.Error("Failed to unsubscribe from journalist", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unsubscribe"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "unsubscribed"})
	})
}

func setupUserRoutes(router *gin.RouterGroup, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/users")

	// Editors change roles; the relation sets are synced in the same
	// transaction as the role write.
	rg.PUT("/:id/role", func(c *gin.Context) {
		caller := currentUser(c)
		if caller.Role != models.RoleEditor {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		var req struct {
			Role string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.Role = strings.ToLower(strings.TrimSpace(req.Role))
		if !models.AllowedRole(req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
			return
		}

		id := c.Param("id")
		var user models.User
		if err := db.First(&user, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
				return
			}
			log.Error("DB error fetching user on role change", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		if err := services.ChangeRole(db, &user, req.Role); err != nil {
			log.Error("Failed to change role", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change role"})
			return
		}

		log.Info("Role changed", zap.String("username", user.Username), zap.String("role", user.Role))
		c.JSON(http.StatusOK, user)
	})
}
