package sms

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
	"golang.org/x/time/rate"

	"github.com/yeolmae/hubcast/internal/models"
	"github.com/yeolmae/hubcast/internal/service/derivation"
	"github.com/yeolmae/hubcast/pkg/util"
)

// LMS campaigns cap out at 1000 characters on the common Korean gateways.
const maxMessageRunes = 1000

// Config carries the SMS gateway settings.
type Config struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Sender   string `yaml:"sender"`
	// RatePerSecond throttles outbound gateway calls; 0 means no limit.
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// Adapter sends hub content as an SMS/LMS campaign through an external
// gateway. The gateway's message id is the channel content id.
type Adapter struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewAdapter(cfg Config, logger *zap.Logger) *Adapter {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Adapter{
		config: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

func (a *Adapter) Channel() models.Channel {
	return models.ChannelSMS
}

type sendRequest struct {
	Sender   string `json:"sender"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
	DedupKey string `json:"dedup_key"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

func (a *Adapter) Generate(ctx context.Context, snap derivation.HubSnapshot) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	req := sendRequest{
		Sender:   a.config.Sender,
		Subject:  util.TruncateRunes(snap.Title, 40),
		Message:  util.TruncateRunes(snap.Body, maxMessageRunes),
		DedupKey: uuid.NewString(),
	}

	var resp sendResponse
	if err := a.post(ctx, a.config.Endpoint+"/v1/messages", req, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("sms gateway: %s", resp.Error)
	}
	if resp.MessageID == "" {
		return "", fmt.Errorf("sms gateway returned no message id")
	}

	a.logger.Info("SMS campaign sent",
		zap.Uint("hub_id", snap.HubID),
		zap.String("message_id", resp.MessageID))

	return resp.MessageID, nil
}

func (a *Adapter) Exists(ctx context.Context, channelContentID string) (bool, error) {
	url := fmt.Sprintf("%s/v1/messages/%s", a.config.Endpoint, channelContentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to query sms gateway: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
}

func (a *Adapter) post(ctx context.Context, url string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call sms gateway: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sms gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
