package naverblog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yeolmae/hubcast/internal/models"
	"github.com/yeolmae/hubcast/internal/service/derivation"
)

// Config carries the Naver blog API settings.
type Config struct {
	Endpoint    string `yaml:"endpoint"`
	AccessToken string `yaml:"access_token"`
	BlogID      string `yaml:"blog_id"`
}

// Adapter posts hub content to a Naver blog. The API hands back a log number
// which serves as the channel content id.
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
	return models.ChannelNaverBlog
}

type writeResponse struct {
	Result struct {
		LogNo string `json:"logNo"`
	} `json:"result"`
	Message string `json:"message"`
}

func (a *Adapter) Generate(ctx context.Context, snap derivation.HubSnapshot) (string, error) {
	form := url.Values{}
	form.Set("blogId", a.config.BlogID)
	form.Set("title", snap.Title)
	form.Set("contents", snap.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.Endpoint+"/blog/writePost.json", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+a.config.AccessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call naver api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("naver api returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result writeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Result.LogNo == "" {
		return "", fmt.Errorf("naver api returned no post id: %s", result.Message)
	}

	a.logger.Info("Naver blog post published",
		zap.Uint("hub_id", snap.HubID),
		zap.String("log_no", result.Result.LogNo))

	return result.Result.LogNo, nil
}

func (a *Adapter) Exists(ctx context.Context, channelContentID string) (bool, error) {
	reqURL := fmt.Sprintf("%s/blog/getPost.json?blogId=%s&logNo=%s",
		a.config.Endpoint, url.QueryEscape(a.config.BlogID), url.QueryEscape(channelContentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.config.AccessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to query naver api: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("naver api returned status %d", resp.StatusCode)
	}
}
