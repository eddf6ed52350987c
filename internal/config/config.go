package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	AllowOrigins  string
	HTTPBodyLimit int

	RealtimeChannelBase  string
	ChatHandshakeTimeout time.Duration
	ChatSendBuffer       int

	AttachmentsBackend  string
	AttachmentsDir      string
	AttachmentsBucket   string
	AttachmentsMaxBytes int64

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	MailTimeout  time.Duration

	NotificationsPageSize int
	SweepInterval         time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// SMTPEnabled reports whether an SMTP relay is configured.
func (c Config) SMTPEnabled() bool {
	return strings.TrimSpace(c.SMTPHost) != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("OFFICEHUB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "OfficeHub API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("http.body_limit", 12*1024*1024)
	v.SetDefault("realtime.channel_base", "officehub:realtime")
	v.SetDefault("chat.handshake_timeout", "5s")
	v.SetDefault("chat.send_buffer", 64)
	v.SetDefault("attachments.backend", "disk")
	v.SetDefault("attachments.dir", "./data/attachments")
	v.SetDefault("attachments.bucket", "officehub-attachments")
	v.SetDefault("attachments.max_bytes", 10*1024*1024)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("mail.timeout", "10s")
	v.SetDefault("notifications.page_size", 50)
	v.SetDefault("sweep.interval", "15m")

	handshake, err := parseDuration(v, "chat.handshake_timeout")
	if err != nil {
		return Config{}, err
	}
	mailTimeout, err := parseDuration(v, "mail.timeout")
	if err != nil {
		return Config{}, err
	}
	sweepInterval, err := parseDuration(v, "sweep.interval")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:               v.GetString("app.name"),
		AppEnv:                v.GetString("app.env"),
		AppPort:               v.GetString("app.port"),
		DatabaseURL:           v.GetString("database.url"),
		RedisURL:              v.GetString("redis.url"),
		NATSURL:               v.GetString("nats.url"),
		JWTSecret:             v.GetString("jwt.secret"),
		AllowOrigins:          v.GetString("cors.allow_origins"),
		HTTPBodyLimit:         v.GetInt("http.body_limit"),
		RealtimeChannelBase:   v.GetString("realtime.channel_base"),
		ChatHandshakeTimeout:  handshake,
		ChatSendBuffer:        v.GetInt("chat.send_buffer"),
		AttachmentsBackend:    strings.ToLower(strings.TrimSpace(v.GetString("attachments.backend"))),
		AttachmentsDir:        v.GetString("attachments.dir"),
		AttachmentsBucket:     v.GetString("attachments.bucket"),
		AttachmentsMaxBytes:   v.GetInt64("attachments.max_bytes"),
		SMTPHost:              v.GetString("smtp.host"),
		SMTPPort:              v.GetInt("smtp.port"),
		SMTPUsername:          v.GetString("smtp.username"),
		SMTPPassword:          v.GetString("smtp.password"),
		SMTPFrom:              v.GetString("smtp.from"),
		MailTimeout:           mailTimeout,
		NotificationsPageSize: v.GetInt("notifications.page_size"),
		SweepInterval:         sweepInterval,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.AttachmentsBackend {
	case "disk", "nats":
	default:
		return Config{}, fmt.Errorf("unsupported attachments backend %q", cfg.AttachmentsBackend)
	}

	if cfg.AttachmentsBackend == "nats" && cfg.NATSURL == "" {
		return Config{}, fmt.Errorf("attachments backend nats requires nats url")
	}

	if cfg.SMTPEnabled() && cfg.SMTPFrom == "" {
		return Config{}, fmt.Errorf("smtp from address must be provided when smtp host is set")
	}

	if cfg.HTTPBodyLimit < int(cfg.AttachmentsMaxBytes) {
		cfg.HTTPBodyLimit = int(cfg.AttachmentsMaxBytes) + 1024*1024
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" || raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
