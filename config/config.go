package config

import (
	"strings"
	"time"

	"github.com/pitabwire/frame/config"
)

// State backends.
const (
	StateBackendMemory = "memory"
	StateBackendRedis  = "redis"
	StateBackendBlob   = "blob"
	StateBackendDB     = "db"
)

// BotConfig holds configuration for the bot service.
type BotConfig struct {
	config.ConfigurationDefault

	// Dialogs
	DialogDir     string `envDefault:"./dialogs" env:"DIALOG_DIR"`
	WatchDialogs  bool   `envDefault:"true"      env:"WATCH_DIALOGS"`
	PromptRetries int    `envDefault:"3"         env:"PROMPT_MAX_RETRIES"`
	MaxHistory    int    `envDefault:"50"        env:"MAX_HISTORY"`

	// Recognition
	RulesPath            string  `envDefault:""       env:"RECOGNIZER_RULES_PATH"`
	MinScore             float64 `envDefault:"0.5"    env:"RECOGNIZER_MIN_SCORE"`
	RecognizerURL        string  `envDefault:""       env:"RECOGNIZER_URL"`
	RecognizerAuthType   string  `envDefault:"none"   env:"RECOGNIZER_AUTH_TYPE"`
	RecognizerAuthSecret string  `envDefault:""       env:"RECOGNIZER_AUTH_SECRET"`
	RecognizerTimeoutSec int     `envDefault:"5"      env:"RECOGNIZER_TIMEOUT_SEC"`

	// State
	StateBackend   string `envDefault:"memory"     env:"STATE_BACKEND"`
	StatePrefix    string `envDefault:"botstate:"  env:"STATE_PREFIX"`
	StateTTLSec    int    `envDefault:"0"          env:"STATE_TTL_SEC"`
	StateCacheSize int    `envDefault:"0"          env:"STATE_CACHE_SIZE"`
	RedisURL       string `envDefault:""           env:"REDIS_URL"`
	BlobEndpoint   string `envDefault:""           env:"BLOB_ENDPOINT"`
	BlobRegion     string `envDefault:""           env:"BLOB_REGION"`
	BlobAccessKey  string `envDefault:""           env:"BLOB_ACCESS_KEY"`
	BlobSecretKey  string `envDefault:""           env:"BLOB_SECRET_KEY"`
	BlobBucket     string `envDefault:"bot-state"  env:"BLOB_BUCKET"`
	BlobUseSSL     bool   `envDefault:"true"       env:"BLOB_USE_SSL"`

	// Reply delivery
	ReplySecret         string `envDefault:""    env:"REPLY_SIGNING_SECRET"`
	DeliveryMaxAttempts int    `envDefault:"3"   env:"DELIVERY_MAX_ATTEMPTS"`
	DeliveryTimeoutSec  int    `envDefault:"10"  env:"DELIVERY_TIMEOUT_SEC"`
	DeliveryBackoffSec  int    `envDefault:"1"   env:"DELIVERY_BACKOFF_INITIAL_SEC"`
	DeliveryBackoffMax  int    `envDefault:"60"  env:"DELIVERY_BACKOFF_MAX_SEC"`
	CBFailThreshold     int    `envDefault:"5"   env:"CB_FAILURE_THRESHOLD"`
	CBResetTimeoutSec   int    `envDefault:"60"  env:"CB_RESET_TIMEOUT_SEC"`
	DeliveryAllowHosts  string `envDefault:""    env:"DELIVERY_ALLOW_HOSTS"`
	DeadLettersEnabled  bool   `envDefault:"false" env:"DEAD_LETTERS_ENABLED"`

	AuthEnabled bool `envDefault:"false" env:"AUTH_ENABLED"`
}

// StateTTL returns the state expiry, zero for none.
func (c *BotConfig) StateTTL() time.Duration {
	return time.Duration(c.StateTTLSec) * time.Second
}

// RecognizerTimeout returns the remote recognizer timeout.
func (c *BotConfig) RecognizerTimeout() time.Duration {
	return time.Duration(c.RecognizerTimeoutSec) * time.Second
}

// AllowedDeliveryHosts splits DeliveryAllowHosts on commas.
func (c *BotConfig) AllowedDeliveryHosts() []string {
	return splitList(c.DeliveryAllowHosts)
}

// NeedsDatastore reports whether a database connection is required.
func (c *BotConfig) NeedsDatastore() bool {
	return c.StateBackend == StateBackendDB || c.DeadLettersEnabled
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
