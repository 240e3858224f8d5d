package config

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via the config file or the environment.
type AppConfig struct {
	AppPort       string `mapstructure:"AppPort" envconfig:"APP_PORT"`
	JWTSecret     string `mapstructure:"JWTSecret" envconfig:"JWT_SECRET"`
	TokenTTLHours int    `mapstructure:"TokenTTLHours" envconfig:"TOKEN_TTL_HOURS"`
	// Timezone decides where a calendar day starts and ends.
	Timezone string `mapstructure:"Timezone" envconfig:"TIMEZONE"`

	RateLimitPerMinute int      `mapstructure:"RateLimitPerMinute" envconfig:"RATE_LIMIT_PER_MINUTE"`
	AllowedOrigins     []string `mapstructure:"AllowedOrigins" envconfig:"ALLOWED_ORIGINS"`
	AdminUsernames     []string `mapstructure:"AdminUsernames" envconfig:"ADMIN_USERNAMES"`
	// MoodTags lists accepted moods; "*" accepts any well-formed tag.
	MoodTags []string `mapstructure:"MoodTags" envconfig:"MOOD_TAGS"`

	// Gin framework configuration
	GinMode string `mapstructure:"GinMode" envconfig:"GIN_MODE"`
	GinPath string `mapstructure:"GinPath" envconfig:"GIN_PATH"`

	// Database: mysql, postgres or sqlite
	DBDriver    string `mapstructure:"DBDriver" envconfig:"DB_DRIVER"`
	DatabaseURI string `mapstructure:"DatabaseURI" envconfig:"DATABASE_URI"`
	DBHost      string `mapstructure:"DBHost" envconfig:"DB_HOST"`
	DBPort      string `mapstructure:"DBPort" envconfig:"DB_PORT"`
	DBUser      string `mapstructure:"DBUser" envconfig:"DB_USER"`
	DBPassword  string `mapstructure:"DBPassword" envconfig:"DB_PASSWORD"`
	DBName      string `mapstructure:"DBName" envconfig:"DB_NAME"`

	// Redis; an empty host disables every redis backed feature
	RedisHost     string `mapstructure:"RedisHost" envconfig:"REDIS_HOST"`
	RedisPort     int    `mapstructure:"RedisPort" envconfig:"REDIS_PORT"`
	RedisDB       int    `mapstructure:"RedisDB" envconfig:"REDIS_DB"`
	RedisPassword string `mapstructure:"RedisPassword" envconfig:"REDIS_PASSWORD"`

	// Logging configuration
	LogLevel      string `mapstructure:"LogLevel" envconfig:"LOG_LEVEL"`
	LogPath       string `mapstructure:"LogPath" envconfig:"LOG_PATH"`
	LogMaxSizeMB  int    `mapstructure:"LogMaxSizeMB" envconfig:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups" envconfig:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `mapstructure:"LogMaxAgeDays" envconfig:"LOG_MAX_AGE_DAYS"`
	LogCompress   bool   `mapstructure:"LogCompress" envconfig:"LOG_COMPRESS"`

	// Reminders
	ReminderEnabled             bool   `mapstructure:"ReminderEnabled" envconfig:"REMINDER_ENABLED"`
	ReminderCron                string `mapstructure:"ReminderCron" envconfig:"REMINDER_CRON"`
	ReminderWindowMinutes       int    `mapstructure:"ReminderWindowMinutes" envconfig:"REMINDER_WINDOW_MINUTES"`
	FriendRemindCooldownMinutes int    `mapstructure:"FriendRemindCooldownMinutes" envconfig:"FRIEND_REMIND_COOLDOWN_MINUTES"`

	// Uploads
	UploadDir         string `mapstructure:"UploadDir" envconfig:"UPLOAD_DIR"`
	UploadMaxMB       int    `mapstructure:"UploadMaxMB" envconfig:"UPLOAD_MAX_MB"`
	UploadCleanupCron string `mapstructure:"UploadCleanupCron" envconfig:"UPLOAD_CLEANUP_CRON"`

	// Registration security
	RegisterCaptchaEnabled        bool `mapstructure:"RegisterCaptchaEnabled" envconfig:"REGISTER_CAPTCHA_ENABLED"`
	RegisterMaxPerIPPerDay        int  `mapstructure:"RegisterMaxPerIPPerDay" envconfig:"REGISTER_MAX_PER_IP_PER_DAY"`
	RegisterAttemptCooldownSec    int  `mapstructure:"RegisterAttemptCooldownSec" envconfig:"REGISTER_ATTEMPT_COOLDOWN_SEC"`
	RegisterFailedMaxPerIPPerHour int  `mapstructure:"RegisterFailedMaxPerIPPerHour" envconfig:"REGISTER_FAILED_MAX_PER_IP_PER_HOUR"`
	RegisterTempBanMinutes        int  `mapstructure:"RegisterTempBanMinutes" envconfig:"REGISTER_TEMP_BAN_MINUTES"`

	// Notice bar configuration
	NoticeTitle string `mapstructure:"NoticeTitle" envconfig:"NOTICE_TITLE"`
	NoticeHTML  string `mapstructure:"NoticeHTML" envconfig:"NOTICE_HTML"`

	TrafficStatsEnabled bool `mapstructure:"TrafficStatsEnabled" envconfig:"TRAFFIC_STATS_ENABLED"`
}

var (
	cfg    AppConfig
	loaded bool
	mu     sync.RWMutex
)

// Load loads the application configuration. It should be called once during boot.
// Precedence: environment variables over config/config.{yaml,json,toml}; defaults fill whatever is still empty.
func Load() AppConfig {
	mu.Lock()
	defer mu.Unlock()
	if loaded {
		return cfg
	}

	c, err := Read("config")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if c.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	cfg = c
	loaded = true
	return cfg
}

// Read builds a configuration from the config file in dir, defaults and the environment.
// A missing file is not an error.
func Read(dir string) (AppConfig, error) {
	var c AppConfig

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(dir)
	v.SetDefault("ReminderEnabled", true)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return c, err
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	// envconfig leaves fields untouched when their variable is unset.
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	c.AllowedOrigins = trimList(c.AllowedOrigins)
	c.AdminUsernames = trimList(c.AdminUsernames)
	c.MoodTags = trimList(c.MoodTags)
	return c, nil
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	mu.RLock()
	if loaded {
		defer mu.RUnlock()
		return cfg
	}
	mu.RUnlock()
	return Load()
}

// Set replaces the cached configuration. Tests and tools use it instead of Load.
func Set(c AppConfig) {
	applyDefaults(&c)
	mu.Lock()
	cfg = c
	loaded = true
	mu.Unlock()
}

// Location returns the configured time zone, falling back to the server's local zone.
func (c AppConfig) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// TokenTTL is how long issued login tokens stay valid.
func (c AppConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// RedisEnabled reports whether a redis server is configured.
func (c AppConfig) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisHost) != ""
}

func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "3002"
	}
	if c.TokenTTLHours == 0 {
		c.TokenTTLHours = 7 * 24
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 120
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		switch c.DBDriver {
		case "postgres":
			c.DBPort = "5432"
		default:
			c.DBPort = "3306"
		}
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "im_alive_db"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.ReminderCron == "" {
		c.ReminderCron = "* * * * *"
	}
	if c.ReminderWindowMinutes == 0 {
		c.ReminderWindowMinutes = 5
	}
	if c.FriendRemindCooldownMinutes == 0 {
		c.FriendRemindCooldownMinutes = 60
	}
	if c.UploadDir == "" {
		c.UploadDir = "static/uploads/covers"
	}
	if c.UploadMaxMB == 0 {
		c.UploadMaxMB = 5
	}
	if c.UploadCleanupCron == "" {
		c.UploadCleanupCron = "*/10 * * * *"
	}
	// Registration hardening defaults
	if c.RegisterMaxPerIPPerDay == 0 {
		c.RegisterMaxPerIPPerDay = 5
	}
	if c.RegisterAttemptCooldownSec == 0 {
		c.RegisterAttemptCooldownSec = 10
	}
	if c.RegisterFailedMaxPerIPPerHour == 0 {
		c.RegisterFailedMaxPerIPPerHour = 20
	}
	if c.RegisterTempBanMinutes == 0 {
		c.RegisterTempBanMinutes = 60
	}
	if c.NoticeTitle == "" {
		c.NoticeTitle = "公告"
	}
	if len(c.MoodTags) == 0 {
		c.MoodTags = []string{"😀", "😊", "😐", "😔", "😢", "😡", "😴", "🤒", "🥳", "😰"}
	}
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
