// Package app は設定からリポジトリ・ブローカー・usecaseを組み立てる。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"storefront/internal/config"
	"storefront/internal/domain/cart"
	"storefront/internal/domain/model"
	"storefront/internal/infra/db"
	"storefront/internal/infra/momo"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/infra/supabase"
	"storefront/internal/messaging"
	"storefront/internal/messaging/inmem"
	"storefront/internal/messaging/kafka"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 商品イベント購読のconsumer group接頭辞。
// キャッシュ破棄は全インスタンスに届く必要があるので、groupはインスタンスごとに分ける。
const productEventsGroupPrefix = "storefront-catalog-cache"

func instanceGroup() string {
	return productEventsGroupPrefix + "-" + uuid.NewString()
}

type App struct {
	Products  *usecase.ProductUsecase
	Discounts *usecase.DiscountUsecase
	Cart      *usecase.CartUsecase
	Orders    *usecase.OrderUsecase
	Reconcile *usecase.ReconcileUsecase

	subscriber messaging.Subscriber
	topic      string
	group      string
	log        *zap.Logger
	closers    []func() error
}

func Build(cfg *config.Config, log *zap.Logger) (*App, error) {
	//DB接続（カート・割引・監査ログは常にDB）
	gdb, err := db.Connect(cfg.DatabaseURL, !cfg.IsProduction())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &App{topic: cfg.ProductEventsTopic, group: instanceGroup(), log: log}
	a.closers = append(a.closers, closeDB(gdb))

	auditRepo := infraRepo.NewAuditLogGormRepository(gdb)
	discountRepo := infraRepo.NewDiscountGormRepository(gdb)
	cartRepo := infraRepo.NewCartStateGormRepository(gdb)

	dbTx := infraRepo.NewTxManagerGorm(gdb)
	productRepo, txm, blobs, err := catalogBackend(cfg, gdb, dbTx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	//商品イベント。KAFKA_BROKERSが無ければプロセス内配信
	var publisher messaging.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher, a.subscriber = kafka.NewKafkaBroker(cfg.KafkaBrokers, log)
		log.Info("product events via kafka", zap.Strings("brokers", cfg.KafkaBrokers))
	} else {
		b := inmem.NewBroker(log)
		publisher, a.subscriber = b, b
		a.closers = append(a.closers, b.Close)
	}

	a.Discounts = usecase.NewDiscountUsecase(discountRepo, auditRepo)
	a.Products = usecase.NewProductUsecase(productRepo, auditRepo, txm, publisher, cfg.ProductEventsTopic, log)
	a.Cart = usecase.NewCartUsecase(productRepo, cartRepo, a.Discounts, cart.PricingRules{
		FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
		StandardShipping:      cfg.Pricing.StandardShipping,
		VATRate:               cfg.Pricing.VAT(),
	}, cfg.WhatsAppNumber, log)
	//注文・支払いは常にDB
	a.Orders = usecase.NewOrderUsecase(dbTx, a.Cart, paymentGateway(cfg, log), cfg.Momo.Currency, log)
	a.Reconcile = usecase.NewReconcileUsecase(blobs, a.Products, a.Products, cfg.ReconcileStepDelay, log)

	return a, nil
}

// カタログと画像ストアの選択
func catalogBackend(cfg *config.Config, gdb *gorm.DB, dbTx repo.TransactionManager) (repo.ProductRepository, repo.TransactionManager, repo.BlobStore, error) {
	scfg := supabase.Config{
		URL:    cfg.Supabase.URL,
		Key:    cfg.Supabase.Key,
		Bucket: cfg.Supabase.Bucket,
		Prefix: cfg.Supabase.ImagePrefix,
	}

	if cfg.CatalogBackend == config.BackendSupabase {
		client, err := supabase.NewClient(scfg)
		if err != nil {
			return nil, nil, nil, err
		}
		products := supabase.NewCatalogRepository(client)
		return products, supabase.NewPassThroughTx(products, dbTx), supabase.NewStorageBlobStore(client, scfg), nil
	}

	var blobs repo.BlobStore = unconfiguredBlobStore{}
	if scfg.URL != "" && scfg.Key != "" {
		client, err := supabase.NewClient(scfg)
		if err != nil {
			return nil, nil, nil, err
		}
		blobs = supabase.NewStorageBlobStore(client, scfg)
	}
	return infraRepo.NewProductGormRepository(gdb), dbTx, blobs, nil
}

// MoMoの資格情報が揃っていなければ常に失敗するゲートウェイ
func paymentGateway(cfg *config.Config, log *zap.Logger) repo.PaymentGateway {
	mcfg := momo.Config{
		BaseURL:           cfg.Momo.BaseURL,
		SubscriptionKey:   cfg.Momo.SubscriptionKey,
		APIUser:           cfg.Momo.APIUser,
		APIKey:            cfg.Momo.APIKey,
		TargetEnvironment: cfg.Momo.TargetEnvironment,
		CallbackURL:       cfg.Momo.CallbackURL,
	}
	if !mcfg.Configured() {
		log.Warn("momo payments not configured")
		return momo.Unconfigured{}
	}
	return momo.NewClient(mcfg, log)
}

// RunSubscribers は商品イベントでカタログキャッシュを破棄する。ctxが終わるまでブロック。
func (a *App) RunSubscribers(ctx context.Context) {
	a.subscriber.Consume(ctx, a.topic, a.group, a.Products.HandleEvent)
}

// ConsumerGroup はこのインスタンスの購読group
func (a *App) ConsumerGroup() string {
	return a.group
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeDB(gdb *gorm.DB) func() error {
	return func() error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
}

var errStorageNotConfigured = errors.New("image storage not configured (set SUPABASE_URL and SUPABASE_KEY)")

// db構成でSupabaseの資格情報が無いときの画像ストア
type unconfiguredBlobStore struct{}

func (unconfiguredBlobStore) List(ctx context.Context) ([]model.ImageObject, error) {
	return nil, repo.NewTransportError("storage list", errStorageNotConfigured)
}

func (unconfiguredBlobStore) PublicURL(name string) string {
	return ""
}

func (unconfiguredBlobStore) Upload(ctx context.Context, name string, body io.Reader, contentType string) (string, error) {
	return "", repo.NewTransportError("storage upload", errStorageNotConfigured)
}
