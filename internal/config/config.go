package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Database: postgres DSN wins when set, otherwise sqlite at DBPath.
	DatabaseURL string
	DBPath      string

	// Webhook verification. MasterSecret and GlobalVerifyToken are optional
	// platform-level tokens; per-channel tokens live in the channel config.
	MasterSecret      string
	GlobalVerifyToken string

	// Object storage (S3-compatible).
	StorageBucket    string
	StorageRegion    string
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	PublicDomain     string

	// Transcription / AI responder.
	OpenAIAPIKey string
	GeminiAPIKey string

	// CRM OAuth apps.
	ZohoClientID        string
	ZohoClientSecret    string
	ZohoRedirectURL     string
	HubSpotClientID     string
	HubSpotClientSecret string
	HubSpotRedirectURL  string

	// Dashboard base URL for OAuth callback redirects.
	DashboardURL string

	// Instagram (Meta) app credentials for the account-linking flow.
	MetaAppID     string
	MetaAppSecret string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBPath:      getEnv("DB_PATH", "./relay.db"),

		MasterSecret:      getEnv("WEBHOOK_MASTER_SECRET", ""),
		GlobalVerifyToken: getEnv("VERIFY_TOKEN", ""),

		StorageBucket:    getEnv("STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("STORAGE_REGION", "auto"),
		StorageEndpoint:  getEnv("STORAGE_ENDPOINT", ""),
		StorageAccessKey: getEnv("STORAGE_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("STORAGE_SECRET_ACCESS_KEY", ""),
		PublicDomain:     getEnv("STORAGE_PUBLIC_DOMAIN", ""),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),

		ZohoClientID:        getEnv("ZOHO_CLIENT_ID", ""),
		ZohoClientSecret:    getEnv("ZOHO_CLIENT_SECRET", ""),
		ZohoRedirectURL:     getEnv("ZOHO_REDIRECT_URL", ""),
		HubSpotClientID:     getEnv("HUBSPOT_CLIENT_ID", ""),
		HubSpotClientSecret: getEnv("HUBSPOT_CLIENT_SECRET", ""),
		HubSpotRedirectURL:  getEnv("HUBSPOT_REDIRECT_URL", ""),

		DashboardURL: getEnv("DASHBOARD_URL", "http://localhost:3000"),

		MetaAppID:     getEnv("META_APP_ID", ""),
		MetaAppSecret: getEnv("META_APP_SECRET", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
