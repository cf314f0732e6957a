package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alanyoungcy/profitharness/internal/blob/s3"
	"github.com/alanyoungcy/profitharness/internal/cache/redis"
	"github.com/alanyoungcy/profitharness/internal/chain"
	"github.com/alanyoungcy/profitharness/internal/config"
	"github.com/alanyoungcy/profitharness/internal/crypto"
	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/ledger"
	"github.com/alanyoungcy/profitharness/internal/notify"
	"github.com/alanyoungcy/profitharness/internal/routing"
	"github.com/alanyoungcy/profitharness/internal/server/handler"
	"github.com/alanyoungcy/profitharness/internal/store/postgres"
	"github.com/alanyoungcy/profitharness/internal/venue/amm"
)

// Dependencies bundles everything the modes need. Optional collaborators
// are nil when their backing service is disabled.
type Dependencies struct {
	// Backend
	Ledger   domain.Ledger
	Resolver domain.BackendResolver
	Signer   *crypto.Signer // evm only
	Account  common.Address
	Admin    common.Address

	// Stores
	ExecutionStore domain.ExecutionStore
	AuditStore     domain.AuditStore
	RegistryStore  domain.RegistryStore

	// Caches
	ResultCache domain.ResultCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// Blob storage
	Archiver *s3blob.ReportArchiver

	Notifier *notify.Notifier
	Checks   map[string]handler.Check
}

// Wire builds every dependency cfg enables and returns a cleanup that
// releases them in reverse order.
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

	deps := &Dependencies{Checks: map[string]handler.Check{}}

	// --- Ledger backend ---
	switch strings.ToLower(cfg.Backend) {
	case "evm":
		closeEth, err := wireEVM(ctx, cfg, deps, logger)
		if err != nil {
			return fail(fmt.Errorf("wire: evm: %w", err))
		}
		closers = append(closers, closeEth)
	default:
		if err := wireMemory(ctx, cfg, deps); err != nil {
			return fail(fmt.Errorf("wire: memory: %w", err))
		}
	}
	deps.Admin = deps.Account
	if cfg.Harness.Admin != "" {
		deps.Admin = common.HexToAddress(cfg.Harness.Admin)
	}

	// --- PostgreSQL ---
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.ExecutionStore = postgres.NewExecutionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.RegistryStore = postgres.NewRegistryStore(pool)
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
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
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.ResultCache = redis.NewResultCache(redisClient, cfg.Redis.ResultTTL.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Checks["redis"] = func(ctx context.Context) error {
			_, err := redisClient.Ping(ctx)
			return err
		}
	}

	// --- S3 report archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		var signer s3blob.MessageSigner
		if deps.Signer != nil {
			signer = deps.Signer
		}
		deps.Archiver = s3blob.NewReportArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), signer, logger)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// wireEVM dials the node and binds the operator key. The harness account is
// always the operator: the chain ledger cannot move anyone else's funds.
func wireEVM(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (func(), error) {
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, err
	}
	signer, err := crypto.NewSigner(key, cfg.Chain.ChainID)
	if err != nil {
		return nil, err
	}

	eth, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Chain.RPCURL, err)
	}
	id, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}
	if id.Int64() != cfg.Chain.ChainID {
		eth.Close()
		return nil, fmt.Errorf("node reports chain %s, configured %d", id, cfg.Chain.ChainID)
	}
	if cfg.Harness.Account != "" && common.HexToAddress(cfg.Harness.Account) != signer.Address() {
		eth.Close()
		return nil, fmt.Errorf("harness account %s is not the wallet address %s", cfg.Harness.Account, signer.Address().Hex())
	}

	t := chain.NewTransactor(eth, signer, chain.TransactorConfig{
		GasLimit:       cfg.Chain.GasLimit,
		ReceiptTimeout: cfg.Chain.ReceiptTimeout.Duration,
		PollInterval:   cfg.Chain.PollInterval.Duration,
	}, logger)

	deps.Ledger = chain.NewLedger(t)
	deps.Resolver = chain.NewResolver(t)
	deps.Signer = signer
	deps.Account = signer.Address()
	deps.Checks["chain"] = func(ctx context.Context) error {
		_, err := eth.BlockNumber(ctx)
		return err
	}
	return eth.Close, nil
}

// wireMemory builds the in-memory ledger with one constant-product router
// per configured venue, then seeds balances and pools.
func wireMemory(ctx context.Context, cfg *config.Config, deps *Dependencies) error {
	account := common.HexToAddress(cfg.Harness.Account)
	l := ledger.NewMemory(cfg.Memory.GasLimit)
	resolver := routing.NewStaticResolver()

	routers := make(map[string]*amm.Router, len(cfg.Venues))
	for _, v := range cfg.Venues {
		r := amm.New(l, common.HexToAddress(v.Router), common.HexToAddress(v.Factory), uint32(v.FeeBps))
		resolver.Bind(r.Address(), r)
		routers[v.Name] = r
	}

	for _, tk := range cfg.Memory.Tokens {
		asset, err := parseAsset("memory token", tk.Asset)
		if err != nil {
			return err
		}
		l.SetMetadata(asset, tk.Symbol, uint8(tk.Decimals))
	}

	for i, b := range cfg.Memory.Balances {
		to := account
		if b.Account != "" {
			to = common.HexToAddress(b.Account)
		}
		amount, err := config.ParseAmount(b.Amount)
		if err != nil {
			return fmt.Errorf("balances[%d]: %w", i, err)
		}
		asset, err := parseAsset("memory balance asset", b.Asset)
		if err != nil {
			return fmt.Errorf("balances[%d]: %w", i, err)
		}
		if err := l.Mint(asset, to, amount); err != nil {
			return fmt.Errorf("balances[%d]: %w", i, err)
		}
	}

	// Pool liquidity is minted to a per-pool provider so seeding never
	// touches the harness account.
	for i, p := range cfg.Memory.Pools {
		r, ok := routers[p.Venue]
		if !ok {
			return fmt.Errorf("pools[%d]: unknown venue %q", i, p.Venue)
		}
		a, b := common.HexToAddress(p.AssetA), common.HexToAddress(p.AssetB)
		ra, err := config.ParseAmount(p.ReserveA)
		if err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
		rb, err := config.ParseAmount(p.ReserveB)
		if err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
		provider := common.BigToAddress(new(big.Int).Add(big.NewInt(0x10000), big.NewInt(int64(i))))
		if err := l.Mint(a, provider, ra); err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
		if err := l.Mint(b, provider, rb); err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
		if err := r.AddLiquidity(ctx, provider, a, b, ra, rb); err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
	}

	deps.Ledger = l
	deps.Resolver = resolver
	deps.Account = account
	return nil
}
