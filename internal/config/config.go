// Package config provides configuration management for the recorder using
// Viper. Settings are loaded from a TOML file and may be hot-applied to
// running tasks by the settings manager (see internal/task).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultHTTPPort          = 2233
	defaultShutdownTimeout   = 10 * time.Second
	defaultChatHeartbeat     = 30 * time.Second
	defaultChatRetries       = 60
	defaultPlaylistPoll      = time.Second
	defaultReachabilityPoll  = 3 * time.Second
	defaultDisconnectTimeout = 60 * time.Second
	defaultDiskPollInterval  = time.Minute
	defaultWebhookMaxDelay   = 180 * time.Second
	defaultMinRecordSeconds  = 5
)

// Config holds the entire recorder configuration as loaded from TOML.
type Config struct {
	Tasks            []TaskConfig             `mapstructure:"tasks"`
	Output           OutputConfig             `mapstructure:"output"`
	Logging          LoggingConfig            `mapstructure:"logging"`
	Header           HeaderConfig             `mapstructure:"header"`
	Danmaku          DanmakuConfig            `mapstructure:"danmaku"`
	Recorder         RecorderConfig           `mapstructure:"recorder"`
	Postprocess      PostprocessConfig        `mapstructure:"postprocessing"`
	Space            SpaceConfig              `mapstructure:"space"`
	EmailNotify      EmailNotifierConfig      `mapstructure:"email_notification"`
	ServerchanNotify ServerchanNotifierConfig `mapstructure:"serverchan_notification"`
	PushplusNotify   PushplusNotifierConfig   `mapstructure:"pushplus_notification"`
	Webhooks         []WebhookConfig          `mapstructure:"webhooks"`
	Server           ServerConfig             `mapstructure:"server"`
	Database         DatabaseConfig           `mapstructure:"database"`
}

// ServerConfig holds the admin HTTP/WS surface configuration (C17).
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	KeyFile         string        `mapstructure:"key_file"`
	CertFile        string        `mapstructure:"cert_file"`
	APIKey          string        `mapstructure:"api_key"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection settings. They are loaded and
// defaulted, but no package in this module reads them.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// TaskConfig is one configured room (§3 Room configuration).
type TaskConfig struct {
	RoomID         int64                `mapstructure:"room_id"`
	MonitorEnabled bool                 `mapstructure:"monitor_enabled"`
	RecorderEnabled bool                `mapstructure:"recorder_enabled"`
	Output         *OutputConfig        `mapstructure:"output"`
	Header         *HeaderConfig        `mapstructure:"header"`
	Danmaku        *DanmakuConfig       `mapstructure:"danmaku"`
	Recorder       *RecorderConfig      `mapstructure:"recorder"`
	Postprocess    *PostprocessConfig   `mapstructure:"postprocessing"`
}

// OutputConfig controls where and how files are named (§6 Path template).
type OutputConfig struct {
	Dir          string `mapstructure:"out_dir"`
	PathTemplate string `mapstructure:"path_template"`
	FileNameOnly bool   `mapstructure:"filename_only"`
}

// HeaderConfig carries the shared HTTP session credentials (§4.10 Hot-settings).
type HeaderConfig struct {
	UserAgent string `mapstructure:"user_agent"`
	Cookie    string `mapstructure:"cookie"`
}

// DanmakuConfig holds the danmaku sidecar options. No sidecar writer
// exists, so nothing reads them.
type DanmakuConfig struct {
	DumpXML   bool `mapstructure:"dump_xml"`
	DumpRaw   bool `mapstructure:"dump_raw"`
	RecordGift bool `mapstructure:"record_gift_sent"`
	RecordGuard bool `mapstructure:"record_guard_buy"`
	RecordSC  bool `mapstructure:"record_super_chat"`
}

// RecorderConfig parameterizes the stream acquisition & processing pipeline
// (§4.4 resolver inputs, §4.6 operator limits).
type RecorderConfig struct {
	StreamFormat        string   `mapstructure:"stream_format"` // flv, ts, fmp4
	RecordingMode       string   `mapstructure:"recording_mode"` // raw, standard
	Quality             int      `mapstructure:"quality"`
	Platform            string   `mapstructure:"platform"` // web, android
	FilesizeLimit       ByteSize `mapstructure:"filesize_limit"`
	DurationLimit       Duration `mapstructure:"duration_limit"`
	BufferSize          ByteSize `mapstructure:"buffer_size"`
	DisconnectionTimeout Duration `mapstructure:"disconnection_timeout"`
	SaveCover           bool     `mapstructure:"save_cover"`
}

// PostprocessConfig controls C10 behavior.
type PostprocessConfig struct {
	RemuxToMP4 bool   `mapstructure:"remux_to_mp4"`
	InjectExtraMetadata bool `mapstructure:"inject_extra_metadata"`
	DeletePolicy string `mapstructure:"delete_policy"` // auto, safe, never
}

// SpaceConfig controls the disk-space monitor/reclaimer (C14).
type SpaceConfig struct {
	CheckInterval Duration `mapstructure:"check_interval"`
	MinFreeSpace  ByteSize `mapstructure:"min_free_space"`
	RecycleRecordings bool `mapstructure:"recycle_recordings"`
}

// NotificationEvents is the shared "which events to send" toggle block
// embedded by every notifier config, per blrec's NotificationSettings.
type NotificationEvents struct {
	NotifyBegan bool `mapstructure:"notify_began"`
	NotifyEnded bool `mapstructure:"notify_ended"`
	NotifyError bool `mapstructure:"notify_error"`
	NotifySpace bool `mapstructure:"notify_space"`
}

// EmailNotifierConfig configures the SMTP email notifier, per blrec's
// EmailSettings/EmailNotificationSettings.
type EmailNotifierConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	SrcAddr            string `mapstructure:"src_addr"`
	DstAddr            string `mapstructure:"dst_addr"`
	AuthCode           string `mapstructure:"auth_code"`
	SMTPHost           string `mapstructure:"smtp_host"`
	SMTPPort           int    `mapstructure:"smtp_port"`
	NotificationEvents `mapstructure:",squash"`
}

// ServerchanNotifierConfig configures the Server酱 push notifier, per
// blrec's ServerchanSettings/ServerchanNotificationSettings.
type ServerchanNotifierConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	SendKey            string `mapstructure:"sendkey"`
	NotificationEvents `mapstructure:",squash"`
}

// PushplusNotifierConfig configures the Pushplus push notifier, per blrec's
// PushplusSettings/PushplusNotificationSettings.
type PushplusNotifierConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Token              string `mapstructure:"token"`
	Topic              string `mapstructure:"topic"`
	NotificationEvents `mapstructure:",squash"`
}

// WebhookConfig is one configured webhook sink (C15, §6 Webhook), per
// blrec's WebHookSettings/WebHookEventSettings.
type WebhookConfig struct {
	URL           string            `mapstructure:"url"`
	LiveBegan     bool              `mapstructure:"live_began"`
	LiveEnded     bool              `mapstructure:"live_ended"`
	RoomChange    bool              `mapstructure:"room_change"`
	SpaceNoEnough bool              `mapstructure:"space_no_enough"`
	FileCompleted bool              `mapstructure:"file_completed"`
	ErrorOccurred bool              `mapstructure:"error_occurred"`
	Headers       map[string]string `mapstructure:"headers"`
}

const (
	maxTasks    = 100
	maxWebhooks = 50
)

var validQualityNumbers = map[int]bool{
	20000: true, 10000: true, 401: true, 400: true, 250: true, 150: true, 80: true,
}

// Load reads configuration from a TOML file and environment variables.
// Environment variables take precedence over the file and are prefixed with
// BLIVEC_, using underscores in place of dots for nesting.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/blivec")
		v.AddConfigPath("$HOME/.blivec")
	}

	v.SetEnvPrefix("BLIVEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultHTTPPort)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "blivec.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("output.out_dir", "./recordings")
	v.SetDefault("output.path_template", "{roomid}/{year}-{month}-{day}_{hour}-{minute}-{second}_{title}")

	v.SetDefault("header.user_agent", "")
	v.SetDefault("header.cookie", "")

	v.SetDefault("danmaku.dump_xml", true)
	v.SetDefault("danmaku.dump_raw", false)
	v.SetDefault("danmaku.record_gift_sent", false)
	v.SetDefault("danmaku.record_guard_buy", true)
	v.SetDefault("danmaku.record_super_chat", true)

	v.SetDefault("recorder.stream_format", "flv")
	v.SetDefault("recorder.recording_mode", "standard")
	v.SetDefault("recorder.quality", 10000)
	v.SetDefault("recorder.platform", "web")
	v.SetDefault("recorder.filesize_limit", 0)
	v.SetDefault("recorder.duration_limit", "0s")
	v.SetDefault("recorder.buffer_size", "8KiB")
	v.SetDefault("recorder.disconnection_timeout", defaultDisconnectTimeout.String())
	v.SetDefault("recorder.save_cover", true)

	v.SetDefault("postprocessing.remux_to_mp4", false)
	v.SetDefault("postprocessing.inject_extra_metadata", true)
	v.SetDefault("postprocessing.delete_policy", "safe")

	v.SetDefault("space.check_interval", defaultDiskPollInterval.String())
	v.SetDefault("space.min_free_space", "1GiB")
	v.SetDefault("space.recycle_recordings", false)

	v.SetDefault("email_notification.enabled", false)
	v.SetDefault("email_notification.smtp_host", "smtp.163.com")
	v.SetDefault("email_notification.smtp_port", 465)
	v.SetDefault("email_notification.notify_began", true)
	v.SetDefault("email_notification.notify_ended", true)
	v.SetDefault("email_notification.notify_error", true)
	v.SetDefault("email_notification.notify_space", true)

	v.SetDefault("serverchan_notification.enabled", false)
	v.SetDefault("serverchan_notification.notify_began", true)
	v.SetDefault("serverchan_notification.notify_ended", true)
	v.SetDefault("serverchan_notification.notify_error", true)
	v.SetDefault("serverchan_notification.notify_space", true)

	v.SetDefault("pushplus_notification.enabled", false)
	v.SetDefault("pushplus_notification.notify_began", true)
	v.SetDefault("pushplus_notification.notify_ended", true)
	v.SetDefault("pushplus_notification.notify_error", true)
	v.SetDefault("pushplus_notification.notify_space", true)
}

// Validate checks the configuration for errors, enforcing the bounds named
// in spec.md §6 (task/webhook counts, quality enumeration, limit ranges).
func (c *Config) Validate() error {
	if len(c.Tasks) > maxTasks {
		return fmt.Errorf("tasks: at most %d entries allowed, got %d", maxTasks, len(c.Tasks))
	}
	if len(c.Webhooks) > maxWebhooks {
		return fmt.Errorf("webhooks: at most %d entries allowed, got %d", maxWebhooks, len(c.Webhooks))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if err := c.Recorder.Validate(); err != nil {
		return err
	}
	for i := range c.Tasks {
		if c.Tasks[i].Recorder != nil {
			if err := c.Tasks[i].Recorder.Validate(); err != nil {
				return fmt.Errorf("tasks[%d].recorder: %w", i, err)
			}
		}
	}

	seen := make(map[int64]bool, len(c.Tasks))
	for i, t := range c.Tasks {
		if seen[t.RoomID] {
			return fmt.Errorf("tasks[%d]: duplicate room_id %d", i, t.RoomID)
		}
		seen[t.RoomID] = true
	}

	return nil
}

// Validate checks recorder-specific bounds: quality_number enumeration,
// filesize_limit multiples of 1GiB up to 20, duration_limit multiples of an
// hour up to 24, buffer_size range and power-of-two-friendly multiple of 2.
func (r *RecorderConfig) Validate() error {
	if r.Quality != 0 && !validQualityNumbers[r.Quality] {
		return fmt.Errorf("quality %d is not a recognised quality_number", r.Quality)
	}

	const gib = 1 << 30
	if r.FilesizeLimit != 0 {
		if r.FilesizeLimit.Bytes()%gib != 0 {
			return fmt.Errorf("filesize_limit must be 0 or a multiple of 1GiB")
		}
		if n := r.FilesizeLimit.Bytes() / gib; n < 1 || n > 20 {
			return fmt.Errorf("filesize_limit must be between 1GiB and 20GiB")
		}
	}

	hour := time.Hour
	if dl := r.DurationLimit.Duration(); dl != 0 {
		if dl%hour != 0 {
			return fmt.Errorf("duration_limit must be 0 or a multiple of 1h")
		}
		if n := dl / hour; n < 1 || n > 24 {
			return fmt.Errorf("duration_limit must be between 1h and 24h")
		}
	}

	const minBuf = 4 * 1024
	const maxBuf = 512 * 1024 * 1024
	if r.BufferSize.Bytes() < minBuf || r.BufferSize.Bytes() > maxBuf {
		return fmt.Errorf("buffer_size must be between 4KiB and 512MiB")
	}
	if r.BufferSize.Bytes()%2 != 0 {
		return fmt.Errorf("buffer_size must be a multiple of 2")
	}

	return nil
}

// Address returns the admin server address in host:port form.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
