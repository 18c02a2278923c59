package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	s3blob "github.com/alanyoungcy/crossarb/internal/blob/s3"
	"github.com/alanyoungcy/crossarb/internal/cache/memory"
	"github.com/alanyoungcy/crossarb/internal/cache/redis"
	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/crypto"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/notify"
	"github.com/alanyoungcy/crossarb/internal/platform/kalshi"
	"github.com/alanyoungcy/crossarb/internal/platform/polymarket"
	"github.com/alanyoungcy/crossarb/internal/platform/retry"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
	"github.com/alanyoungcy/crossarb/internal/store/memstore"
	"github.com/alanyoungcy/crossarb/internal/store/postgres"
)

// venueHTTPTimeout bounds every venue request, including ones issued while
// an execution is reconciling.
const venueHTTPTimeout = 15 * time.Second

// Dependencies bundles the infrastructure the modes build services from.
// Wire constructs it; the returned cleanup function releases it.
type Dependencies struct {
	Stores domain.Stores

	Quotes  domain.QuoteCache
	Limiter domain.RateLimiter
	Locks   domain.LockManager
	Bus     domain.SignalBus

	VenueA domain.VenueGateway
	VenueB domain.VenueGateway

	// Archiver and Blobs are nil unless S3 archiving is enabled.
	Archiver domain.Archiver
	Blobs    domain.BlobReader

	Notifier *notify.Notifier
	Health   map[string]handler.HealthCheck
}

// Wire builds every dependency from cfg. Redis-backed caches fall back to
// in-process implementations when Redis is disabled, and the memory store
// replaces Postgres when store.driver is "memory".
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Health: make(map[string]handler.HealthCheck)}

	// --- Persistence ---
	switch cfg.Store.Driver {
	case "memory":
		logger.WarnContext(ctx, "using in-memory store; state is lost on restart")
		deps.Stores = memstore.New().Stores()
	default:
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Stores = pg.Stores()
		deps.Health["postgres"] = pg.Ping
	}

	// --- Caches, locks, bus ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.Quotes = redis.NewQuoteCache(rc)
		deps.Limiter = redis.NewRateLimiter(rc)
		deps.Locks = redis.NewLockManager(rc)
		deps.Bus = redis.NewSignalBus(rc)
		deps.Health["redis"] = rc.Ping
	} else {
		logger.WarnContext(ctx, "redis disabled; using in-process caches, locks and bus")
		deps.Quotes = memory.NewQuoteCache()
		deps.Limiter = memory.NewRateLimiter()
		deps.Locks = memory.NewLockManager()
		deps.Bus = memory.NewBus(0)
	}

	// --- Object storage ---
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		reader := s3blob.NewReader(sc)
		deps.Blobs = reader
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(sc), reader, deps.Stores)
		deps.Health["s3"] = sc.Ping
	}

	// --- Venues ---
	policy := retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.Retry.BackoffBase.Duration}
	httpClient := &http.Client{Timeout: venueHTTPTimeout}

	venueA, err := buildKalshi(cfg, deps.Limiter, policy, httpClient, logger)
	if err != nil {
		return fail(err)
	}
	deps.VenueA = venueA

	venueB, err := buildPolymarket(ctx, cfg, deps.Limiter, policy, httpClient, logger)
	if err != nil {
		return fail(err)
	}
	deps.VenueB = venueB

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		logger.InfoContext(ctx, "no notification channels configured; alerts are logged only")
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// buildKalshi creates the venue A gateway. Credentials are optional for
// market data and required for orders.
func buildKalshi(cfg *config.Config, limiter domain.RateLimiter, policy retry.Policy, hc *http.Client, logger *slog.Logger) (*kalshi.Gateway, error) {
	opts := []kalshi.Option{
		kalshi.WithHTTPClient(hc),
		kalshi.WithRateLimiter(limiter, cfg.Kalshi.RequestsPerSecond),
		kalshi.WithRetry(policy),
		kalshi.WithLogger(logger),
	}
	if cfg.Kalshi.ApiKey != "" && cfg.Kalshi.RsaPrivateKeyPath != "" {
		key, err := crypto.LoadRSAKey(cfg.Kalshi.RsaPrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("wire: kalshi key: %w", err)
		}
		opts = append(opts, kalshi.WithCredentials(cfg.Kalshi.ApiKey, key))
	}
	client := kalshi.NewClient(cfg.Kalshi.BaseURL, opts...)
	return kalshi.NewGateway(client, cfg.Kalshi.MarketLimit, logger), nil
}

// buildPolymarket creates the venue B gateway. With a wallet key and no
// configured L2 credentials it derives them from the CLOB; without a wallet
// the gateway is read-only.
func buildPolymarket(ctx context.Context, cfg *config.Config, limiter domain.RateLimiter, policy retry.Policy, hc *http.Client, logger *slog.Logger) (*polymarket.Gateway, error) {
	opts := []polymarket.Option{
		polymarket.WithHTTPClient(hc),
		polymarket.WithRateLimiter(limiter, cfg.Polymarket.RequestsPerSecond),
		polymarket.WithRetry(policy),
		polymarket.WithLogger(logger),
	}

	var signer *crypto.Signer
	if cfg.Wallet.PrivateKey != "" || cfg.Wallet.EncryptedKeyPath != "" {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("wire: polymarket wallet: %w", err)
		}
		signer, err = crypto.NewSigner(key, cfg.Polymarket.ChainID)
		if err != nil {
			return nil, fmt.Errorf("wire: polymarket signer: %w", err)
		}
	}

	var auth *crypto.HMACAuth
	if cfg.Polymarket.ApiKey != "" {
		auth = &crypto.HMACAuth{
			Key:        cfg.Polymarket.ApiKey,
			Secret:     cfg.Polymarket.ApiSecret,
			Passphrase: cfg.Polymarket.ApiPassphrase,
		}
	}

	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer, auth, opts...)
	if signer != nil && auth == nil {
		if _, err := clob.DeriveAPIKey(ctx); err != nil {
			if cfg.Trading.Live() {
				return nil, fmt.Errorf("wire: polymarket credentials: %w", err)
			}
			logger.WarnContext(ctx, "polymarket api key derivation failed; venue is read-only",
				slog.String("error", err.Error()),
			)
		} else {
			logger.InfoContext(ctx, "derived polymarket api credentials",
				slog.String("address", signer.Address().Hex()),
			)
		}
	}
	if cfg.Trading.Live() && cfg.Mode == "arbitrage" && !clob.CanTrade() {
		return nil, errors.New("wire: polymarket: live trading needs wallet credentials")
	}

	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost, opts...)
	return polymarket.NewGateway(gamma, clob, cfg.Polymarket.MarketLimit, logger), nil
}
