package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	BackendDB       = "db"
	BackendSupabase = "supabase"
)

// Configはアプリ全体の設定
type Config struct {
	Port        string // サーバーポート（8080）
	Environment string // development/production
	LogLevel    string

	DatabaseURL string // postgres://... または sqlite://...
	JWTSecret   string // JWT署名シークレット
	CORSOrigins []string

	CatalogBackend string // db/supabase
	Supabase       SupabaseConfig

	KafkaBrokers       []string // 空ならプロセス内バス
	ProductEventsTopic string

	Pricing PricingConfig

	WhatsAppNumber     string
	ReconcileStepDelay time.Duration // 適用時の1件ごとの待ち

	Momo MomoConfig
}

// MTN MoMo Collections。資格情報が無ければ支払いは502になる。
type MomoConfig struct {
	BaseURL           string
	SubscriptionKey   string
	APIUser           string
	APIKey            string
	TargetEnvironment string
	Currency          string // sandboxはEURのみ
	CallbackURL       string
}

type SupabaseConfig struct {
	URL         string
	Key         string
	Bucket      string
	ImagePrefix string
}

type PricingConfig struct {
	FreeShippingThreshold int64  // この小計以上で送料無料
	StandardShipping      int64  // 通常送料
	VATRate               string // 小数文字列（0.165）
}

// Loadは環境変数と.envから読む
func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("CATALOG_BACKEND", BackendDB)

	viper.AutomaticEnv()

	//.envは無くてもよい
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	threshold, err := int64Of("FREE_SHIPPING_THRESHOLD", 100000)
	if err != nil {
		return nil, err
	}
	shipping, err := int64Of("STANDARD_SHIPPING", 2500)
	if err != nil {
		return nil, err
	}
	delay, err := time.ParseDuration(getEnvOrViper("RECONCILE_STEP_DELAY", "100ms"))
	if err != nil {
		return nil, fmt.Errorf("RECONCILE_STEP_DELAY must be duration: %w", err)
	}

	cfg := &Config{
		Port:        getEnvOrViper("PORT", "8080"),
		Environment: getEnvOrViper("ENVIRONMENT", "development"),
		LogLevel:    getEnvOrViper("LOG_LEVEL", "info"),

		DatabaseURL: getEnvOrViper("DATABASE_URL", "sqlite://storefront.db"),
		JWTSecret:   getEnvOrViper("JWT_SECRET", ""),
		CORSOrigins: splitList(getEnvOrViper("CORS_ORIGINS", "http://localhost:5173")),

		CatalogBackend: strings.ToLower(getEnvOrViper("CATALOG_BACKEND", BackendDB)),
		Supabase: SupabaseConfig{
			URL:         getEnvOrViper("SUPABASE_URL", ""),
			Key:         getEnvOrViper("SUPABASE_KEY", ""),
			Bucket:      getEnvOrViper("SUPABASE_BUCKET", "product-images"),
			ImagePrefix: getEnvOrViper("SUPABASE_IMAGE_PREFIX", "products"),
		},

		KafkaBrokers:       splitList(getEnvOrViper("KAFKA_BROKERS", "")),
		ProductEventsTopic: getEnvOrViper("PRODUCT_EVENTS_TOPIC", "product-events"),

		Pricing: PricingConfig{
			FreeShippingThreshold: threshold,
			StandardShipping:      shipping,
			VATRate:               getEnvOrViper("VAT_RATE", "0.165"),
		},

		WhatsAppNumber:     getEnvOrViper("WHATSAPP_NUMBER", "260977000000"),
		ReconcileStepDelay: delay,

		Momo: MomoConfig{
			BaseURL:           getEnvOrViper("MOMO_BASE_URL", "https://sandbox.momodeveloper.mtn.com"),
			SubscriptionKey:   getEnvOrViper("MOMO_SUBSCRIPTION_KEY", ""),
			APIUser:           getEnvOrViper("MOMO_API_USER", ""),
			APIKey:            getEnvOrViper("MOMO_API_KEY", ""),
			TargetEnvironment: getEnvOrViper("MOMO_TARGET_ENVIRONMENT", "sandbox"),
			Currency:          strings.ToUpper(getEnvOrViper("MOMO_CURRENCY", "EUR")),
			CallbackURL:       getEnvOrViper("MOMO_CALLBACK_URL", ""),
		},
	}

	//必須チェック
	if rate, err := decimal.NewFromString(cfg.Pricing.VATRate); err != nil || rate.IsNegative() {
		return nil, fmt.Errorf("VAT_RATE must be decimal >= 0")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.Momo.Currency) != 3 {
		return nil, fmt.Errorf("MOMO_CURRENCY must be 3-letter code")
	}
	switch cfg.CatalogBackend {
	case BackendDB:
	case BackendSupabase:
		if cfg.Supabase.URL == "" {
			return nil, fmt.Errorf("SUPABASE_URL is required")
		}
		if cfg.Supabase.Key == "" {
			return nil, fmt.Errorf("SUPABASE_KEY is required")
		}
	default:
		return nil, fmt.Errorf("CATALOG_BACKEND must be %q or %q", BackendDB, BackendSupabase)
	}

	return cfg, nil
}

// VATRateをdecimalで返す（Loadで検証済み）
func (p PricingConfig) VAT() decimal.Decimal {
	return decimal.RequireFromString(p.VATRate)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

func int64Of(key string, def int64) (int64, error) {
	v := getEnvOrViper(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
