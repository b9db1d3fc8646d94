package x

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"newswire/config"
	"newswire/models"
)

// maxPostLen leaves headroom under the platform's 280 character limit.
const maxPostLen = 270

var httpClient = &http.Client{Timeout: 10 * time.Second}

// Poster publishes approved articles to X via the v2 tweets endpoint.
type Poster struct {
	Config *config.Config
	Logger *zap.Logger
}

// New creates a Poster.
func New(cfg *config.Config, logger *zap.Logger) *Poster {
	return &Poster{Config: cfg, Logger: logger}
}

// Name identifies the channel in dispatch logs.
func (p *Poster) Name() string {
	return "x"
}

// Dispatch posts the article. With no bearer token configured it is a no-op.
func (p *Poster) Dispatch(ctx context.Context, article *models.Article) (int, error) {
	if p.Config.XBearerToken == "" {
		return 0, nil
	}

	text := article.Title + "\n\n" + article.Content
	if len(text) > maxPostLen {
		text = text[:maxPostLen]
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.Config.XAPIBaseURL+"/tweets", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+p.Config.XBearerToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("x api returned status %d", resp.StatusCode)
	}
	return 1, nil
}
