package kakao

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

// Config carries the Kakao messaging API settings.
type Config struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	TemplateID string `yaml:"template_id"`
}

// Adapter sends hub content as a templated Kakao message. The API's send id
// is the channel content id.
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
	return models.ChannelKakao
}

type sendRequest struct {
	TemplateID string            `json:"template_id"`
	Variables  map[string]string `json:"variables"`
	DedupKey   string            `json:"dedup_key"`
}

type sendResponse struct {
	SendID string `json:"send_id"`
	Error  string `json:"error"`
}

func (a *Adapter) Generate(ctx context.Context, snap derivation.HubSnapshot) (string, error) {
	body := sendRequest{
		TemplateID: a.config.TemplateID,
		Variables: map[string]string{
			"title": util.TruncateRunes(snap.Title, 50),
			"body":  util.TruncateRunes(snap.Body, 400),
		},
		DedupKey: uuid.NewString(),
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.Endpoint+"/v2/sends", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "KakaoAK "+a.config.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call kakao api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("kakao api returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result sendResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("kakao api: %s", result.Error)
	}
	if result.SendID == "" {
		return "", fmt.Errorf("kakao api returned no send id")
	}

	a.logger.Info("Kakao message sent",
		zap.Uint("hub_id", snap.HubID),
		zap.String("send_id", result.SendID))

	return result.SendID, nil
}

func (a *Adapter) Exists(ctx context.Context, channelContentID string) (bool, error) {
	url := fmt.Sprintf("%s/v2/sends/%s", a.config.Endpoint, channelContentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "KakaoAK "+a.config.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to query kakao api: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("kakao api returned status %d", resp.StatusCode)
	}
}
