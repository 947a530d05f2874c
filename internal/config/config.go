package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/yeolmae/hubcast/internal/service/channels/kakao"
	"github.com/yeolmae/hubcast/internal/service/channels/naverblog"
	"github.com/yeolmae/hubcast/internal/service/channels/sms"
	"github.com/yeolmae/hubcast/internal/service/channels/social"
	"github.com/yeolmae/hubcast/pkg/logger"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logger     logger.Config    `yaml:"logger"`
	Auth       AuthConfig       `yaml:"auth"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type AuthConfig struct {
	TOTPSecret string `yaml:"totp_secret"`
}

type ChannelsConfig struct {
	Blog      BlogChannelConfig `yaml:"blog"`
	SMS       SMSChannelConfig  `yaml:"sms"`
	Kakao     KakaoConfig       `yaml:"kakao"`
	NaverBlog NaverBlogConfig   `yaml:"naver_blog"`
	Social    SocialConfig      `yaml:"social"`
}

type BlogChannelConfig struct {
	Enabled bool `yaml:"enabled"`
}

type SMSChannelConfig struct {
	Enabled    bool `yaml:"enabled"`
	sms.Config `yaml:",inline"`
}

type KakaoConfig struct {
	Enabled      bool `yaml:"enabled"`
	kakao.Config `yaml:",inline"`
}

type NaverBlogConfig struct {
	Enabled          bool `yaml:"enabled"`
	naverblog.Config `yaml:",inline"`
}

type SocialConfig struct {
	Enabled       bool `yaml:"enabled"`
	social.Config `yaml:",inline"`
}

type ReconcilerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SweepInterval string `yaml:"sweep_interval"`
	StuckAfter    string `yaml:"stuck_after"`
	BatchSize     int    `yaml:"batch_size"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5620
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Reconciler.SweepInterval == "" {
		cfg.Reconciler.SweepInterval = "15m"
	}
	if cfg.Reconciler.StuckAfter == "" {
		cfg.Reconciler.StuckAfter = "30m"
	}
	if cfg.Reconciler.BatchSize == 0 {
		cfg.Reconciler.BatchSize = 100
	}

	return cfg, nil
}
