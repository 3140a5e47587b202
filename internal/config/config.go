package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Firebaseプロジェクトの接続パラメータ。環境変数が未設定の場合に使用する。
// いずれも接続先を示すだけで、挙動を切り替えるフラグではない。
const (
	defaultFirebaseAPIKey            = "AIzaSyDummyKey_123456789"
	defaultFirebaseAuthDomain        = "indiaaurcode.firebaseapp.com"
	defaultFirebaseProjectID         = "indiaaurcode"
	defaultFirebaseStorageBucket     = "indiaaurcode.appspot.com"
	defaultFirebaseMessagingSenderID = "123456789"
	defaultFirebaseAppID             = "1:123456789:web:abcdef123456"

	defaultAdminEmail = "rowboxsiw@gmail.com"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Firebase
	FirebaseAPIKey            string
	FirebaseAuthDomain        string
	FirebaseProjectID         string
	FirebaseStorageBucket     string
	FirebaseMessagingSenderID string
	FirebaseAppID             string

	// Identity provider endpoints（エミュレータ利用時に上書きする）
	IdentityToolkitURL string
	SecureTokenURL     string
	JWKSURL            string
	IdentityTimeout    time.Duration

	// Authorization
	AdminEmail string

	// Session
	SessionMaxAge          int
	SignOutGraceDelay      time.Duration
	SessionCleanupInterval time.Duration

	// Content
	ContentFetchTimeout time.Duration
	FeedTitle           string
	FeedDescription     string

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Firebase（リテラルのフォールバックあり）
	cfg.FirebaseAPIKey = getEnvString("FIREBASE_API_KEY", defaultFirebaseAPIKey)
	cfg.FirebaseAuthDomain = getEnvString("FIREBASE_AUTH_DOMAIN", defaultFirebaseAuthDomain)
	cfg.FirebaseProjectID = getEnvString("FIREBASE_PROJECT_ID", defaultFirebaseProjectID)
	cfg.FirebaseStorageBucket = getEnvString("FIREBASE_STORAGE_BUCKET", defaultFirebaseStorageBucket)
	cfg.FirebaseMessagingSenderID = getEnvString("FIREBASE_MESSAGING_SENDER_ID", defaultFirebaseMessagingSenderID)
	cfg.FirebaseAppID = getEnvString("FIREBASE_APP_ID", defaultFirebaseAppID)

	// Optional fields with defaults
	cfg.IdentityToolkitURL = getEnvString("IDENTITY_TOOLKIT_URL", "")
	cfg.SecureTokenURL = getEnvString("SECURE_TOKEN_URL", "")
	cfg.JWKSURL = getEnvString("JWKS_URL", "")
	cfg.IdentityTimeout = getEnvDuration("IDENTITY_TIMEOUT", 10*time.Second)
	cfg.AdminEmail = getEnvString("ADMIN_EMAIL", defaultAdminEmail)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800)
	cfg.SignOutGraceDelay = getEnvDuration("SIGNOUT_GRACE_DELAY", 3*time.Second)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", 10*time.Minute)
	cfg.ContentFetchTimeout = getEnvDuration("CONTENT_FETCH_TIMEOUT", 5*time.Second)
	cfg.FeedTitle = getEnvString("FEED_TITLE", "IndiaAurCode Blog")
	cfg.FeedDescription = getEnvString("FEED_DESCRIPTION", "Articles on web development, cloud and developer tooling.")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
