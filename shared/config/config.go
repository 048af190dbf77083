package config

import (
	"fmt"
	"os"
	"path"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Public  Public
	Private Private
}

type Public struct {
	HTTPAddr      string        `yaml:"http_addr"`
	JwtTTL        time.Duration `yaml:"jwt_ttl"`
	SecureCookies bool          `yaml:"secure_cookies"`
	LogLevel      string        `yaml:"log_level"`
	LogJSON       bool          `yaml:"log_json"`
	CORSOrigins   []string      `yaml:"cors_origins"`
	FrontendURL   string        `yaml:"frontend_url"` // used to build password reset links

	Inference Inference `yaml:"inference"`
	Turn      Turn      `yaml:"turn"`
	Files     Files     `yaml:"files"`

	AvailableModels []string `yaml:"available_models"`
	DefaultModel    string   `yaml:"default_model"`

	PasswordResetTTL          time.Duration `yaml:"password_reset_ttl"`
	RevocationRefreshInterval time.Duration `yaml:"revocation_refresh_interval"`
	RepairInterval            time.Duration `yaml:"repair_interval"`
}

type Inference struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"` // per request, streaming requests are bounded by their context only
}

type Turn struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	PollBudget     time.Duration `yaml:"poll_budget"`
	MessageCeiling int           `yaml:"message_ceiling"`
	HistoryWindow  int           `yaml:"history_window"`
}

type Files struct {
	MaxImageSize             int64    `yaml:"max_image_size"`
	MaxDocumentSize          int64    `yaml:"max_document_size"`
	ThumbnailSize            int      `yaml:"thumbnail_size"`
	AllowedImageMimeTypes    []string `yaml:"allowed_image_mime_types"`
	AllowedDocumentMimeTypes []string `yaml:"allowed_document_mime_types"`
}

type Pg struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Dbname   string `yaml:"dbname"`
}

type Email struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	SenderName string `yaml:"sender_name"`
	Timeout    int    `yaml:"timeout"` // seconds
}

type Private struct {
	JwtKey          string `yaml:"jwt_key"`
	InferenceAPIKey string `yaml:"inference_api_key"`
	Pg              Pg     `yaml:"pg"`
	Email           Email  `yaml:"email"`
}

func (s *Config) JwtKey() string {
	return s.Private.JwtKey
}

func (s *Config) JwtTTL() time.Duration {
	return s.Public.JwtTTL
}

// applyDefaults fills optional settings, values mirror the hosted service recommendations.
func (p *Public) applyDefaults() {
	if p.HTTPAddr == "" {
		p.HTTPAddr = ":8080"
	}
	if p.LogLevel == "" {
		p.LogLevel = "info"
	}
	if p.Inference.BaseURL == "" {
		p.Inference.BaseURL = "https://api.openai.com/v1"
	}
	if p.Inference.Timeout == 0 {
		p.Inference.Timeout = 60 * time.Second
	}
	if p.Turn.PollInterval == 0 {
		p.Turn.PollInterval = 750 * time.Millisecond
	}
	if p.Turn.PollBudget == 0 {
		p.Turn.PollBudget = 120 * time.Second
	}
	if p.Turn.MessageCeiling == 0 {
		p.Turn.MessageCeiling = 50
	}
	if p.Turn.HistoryWindow == 0 {
		p.Turn.HistoryWindow = 20
	}
	if p.Files.MaxImageSize == 0 {
		p.Files.MaxImageSize = 10 << 20
	}
	if p.Files.MaxDocumentSize == 0 {
		p.Files.MaxDocumentSize = 25 << 20
	}
	if p.Files.ThumbnailSize == 0 {
		p.Files.ThumbnailSize = 200
	}
	if p.DefaultModel == "" {
		p.DefaultModel = "gpt-4o-mini"
	}
	if p.PasswordResetTTL == 0 {
		p.PasswordResetTTL = 30 * time.Minute
	}
	if p.RevocationRefreshInterval == 0 {
		p.RevocationRefreshInterval = time.Minute
	}
	if p.RepairInterval == 0 {
		p.RepairInterval = 15 * time.Minute
	}
}

func (c *Config) validate() error {
	if c.Public.JwtTTL <= 0 {
		return fmt.Errorf("jwt_ttl is required")
	}
	if len(c.Public.AvailableModels) == 0 {
		return fmt.Errorf("available_models is required")
	}
	if len(c.Public.Files.AllowedImageMimeTypes) == 0 && len(c.Public.Files.AllowedDocumentMimeTypes) == 0 {
		return fmt.Errorf("at least one allowed mime type is required")
	}
	if c.Private.JwtKey == "" {
		return fmt.Errorf("jwt_key is required")
	}
	if c.Private.InferenceAPIKey == "" {
		return fmt.Errorf("inference_api_key is required")
	}
	return nil
}

func mustLoadPath(configPath string, output interface{}) {
	// check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}
	configFile, err := os.ReadFile(configPath)

	if err != nil {
		panic("can't read config file")
	}

	err = yaml.Unmarshal(configFile, output)
	if err != nil {
		panic("can't unmarshal config file: " + err.Error())
	}
}

func MustLoad(configFolder string) *Config {
	var public Public
	mustLoadPath(path.Join(configFolder, "public.yaml"), &public)
	public.applyDefaults()

	var private Private
	mustLoadPath(path.Join(configFolder, "private.yaml"), &private)

	cfg := &Config{Public: public, Private: private}
	if err := cfg.validate(); err != nil {
		panic("invalid config: " + err.Error())
	}
	return cfg
}
