package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yeolmae/hubcast/internal/models"
	"github.com/yeolmae/hubcast/internal/service/derivation"
	"github.com/yeolmae/hubcast/pkg/util"
)

// Config carries the social posting webhook settings.
type Config struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// Adapter posts a short teaser of the hub content to a social webhook.
type Adapter struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

func NewAdapter(cfg Config, logger *zap.Logger) *Adapter {
	return &Adapter{
		config: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (a *Adapter) Channel() models.Channel {
	return models.ChannelSocial
}

type postRequest struct {
	Text     string `json:"text"`
	DedupKey string `json:"dedup_key"`
}

type postResponse struct {
	PostID string `json:"post_id"`
	Error  string `json:"error"`
}

func (a *Adapter) Generate(ctx context.Context, snap derivation.HubSnapshot) (string, error) {
	text := snap.Title
	if snap.Body != "" {
		text = fmt.Sprintf("%s\n\n%s", snap.Title, util.TruncateRunes(snap.Body, 200))
	}

	body := postRequest{
		Text:     text,
		DedupKey: uuid.NewString(),
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.Endpoint+"/posts", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call social api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("social api returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result postResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("social api: %s", result.Error)
	}
	if result.PostID == "" {
		return "", fmt.Errorf("social api returned no post id")
	}

	a.logger.Info("Social post published",
		zap.Uint("hub_id", snap.HubID),
		zap.String("post_id", result.PostID))

	return result.PostID, nil
}

func (a *Adapter) Exists(ctx context.Context, channelContentID string) (bool, error) {
	url := fmt.Sprintf("%s/posts/%s", a.config.Endpoint, channelContentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to query social api: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("social api returned status %d", resp.StatusCode)
	}
}
