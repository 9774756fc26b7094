package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	redisDriver "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	httpAdapter "github.com/iho/playerbank/internal/adapter/http"
	"github.com/iho/playerbank/internal/adapter/http/handler"
	postgresRepo "github.com/iho/playerbank/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/playerbank/internal/adapter/repository/redis"
	"github.com/iho/playerbank/internal/bank"
	"github.com/iho/playerbank/internal/domain"
	"github.com/iho/playerbank/internal/infrastructure/config"
	"github.com/iho/playerbank/internal/infrastructure/logger"
	"github.com/iho/playerbank/internal/infrastructure/metrics"
	"github.com/iho/playerbank/internal/infrastructure/postgres"
	"github.com/iho/playerbank/internal/infrastructure/redis"
	"github.com/iho/playerbank/internal/proxy"
	"github.com/iho/playerbank/internal/remote"
	"github.com/iho/playerbank/internal/remote/proxyremote"
	"github.com/iho/playerbank/internal/remote/sqlremote"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	mode, err := cfg.Mode()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid identity mode")
	}

	ctx := context.Background()

	// Connect to PostgreSQL. Optional: relay-only nodes may run without
	// a database, sending their audit trail to the log instead.
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		poolCtx, cancelDial := context.WithTimeout(ctx, cfg.DatabaseTimeout)
		pool, err = postgres.NewPool(poolCtx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
		cancelDial()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pool.Close()
		log.Info().Msg("connected to postgres")

		// Run migrations
		if err := postgres.RunMigrations(cfg.DatabaseURL, "migrations", log); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	} else {
		log.Warn().Msg("DATABASE_URL not set, audit records go to the log")
	}

	// Connect to Redis. Optional: without it duplicate frame delivery
	// on the sync channel is not guarded.
	var redisClient *redisDriver.Client
	var guard proxy.TxnGuard
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		guard = redisRepo.NewTxnGuard(redisClient, cfg.GuardTTL)
		log.Info().Msg("connected to redis")
	} else {
		log.Warn().Msg("REDIS_URL not set, duplicate transaction frames are not guarded")
	}

	m := metrics.New()

	// Register currencies
	currencies := bank.NewCurrencyRegistry()
	configured, err := cfg.Currencies()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid currency configuration")
	}
	for _, currency := range configured {
		if err := currencies.Register(currency); err != nil {
			log.Fatal().Err(err).Str("currency", currency.ID).Msg("currency registration failed")
		}
		log.Info().Str("currency", currency.ID).Str("remote", currency.RemoteID).Msg("currency registered")
	}
	if cfg.MajorCurrency != "" {
		if err := currencies.SetMajor(cfg.MajorCurrency); err != nil {
			log.Fatal().Err(err).Msg("invalid major currency")
		}
	}
	if cfg.MinorCurrency != "" {
		if err := currencies.SetMinor(cfg.MinorCurrency); err != nil {
			log.Fatal().Err(err).Msg("invalid minor currency")
		}
	}

	// Build remotes from their configured profiles
	remotes := bank.NewRemoteRegistry()
	peers := proxy.NewPeerRegistry(m, log)

	factories := remote.NewFactoryRegistry()
	mustRegister(log, factories, sqlremote.NewFactory(ctx, sqlremote.Deps{
		Mode:         mode,
		Resolve:      currencies.Resolve,
		KeepFor:      remotes.KeepFor,
		WealthyLimit: cfg.WealthyLimit,
		Metrics:      m,
		Logger:       log,
	}))
	mustRegister(log, factories, proxyremote.NewFactory(proxyremote.Deps{
		Peers:   peers,
		Mode:    mode,
		Resolve: currencies.Resolve,
		KeepFor: remotes.KeepFor,
		Metrics: m,
		Logger:  log,
	}))

	profiles, err := cfg.RemoteProfiles()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid remote configuration")
	}
	var frameSinks []proxy.FrameHandler
	for _, profile := range profiles {
		rem, err := factories.Build(profile.Type, profile.Profile)
		if err != nil {
			log.Fatal().Err(err).Str("remote", profile.ID).Msg("remote construction failed")
		}
		if err := remotes.Register(rem); err != nil {
			log.Fatal().Err(err).Str("remote", profile.ID).Msg("remote registration failed")
		}
		if relay, ok := rem.(*proxyremote.Remote); ok {
			frameSinks = append(frameSinks, relay.HandleFrame)
		}
		log.Info().Str("remote", profile.ID).Str("type", profile.Type).Msg("remote configured")
	}
	if cfg.DefaultRemote != "" {
		if err := remotes.SetDefault(cfg.DefaultRemote); err != nil {
			log.Fatal().Err(err).Msg("invalid default remote")
		}
	}

	// Account directory
	var audit domain.AuditSink = domain.LogAuditSink{Log: log}
	var auditReader handler.AuditReader
	if pool != nil {
		auditRepo := postgresRepo.NewAuditRepository(pool, log)
		audit = auditRepo
		auditReader = auditRepo
	}
	dir := bank.NewDirectory(bank.DirectoryParams{
		Currencies: currencies,
		Remotes:    remotes,
		Config: bank.DirectoryConfig{
			Mode:          mode,
			RemoteTimeout: cfg.RemoteTimeout,
			WealthyTTL:    cfg.WealthyTTL,
			Limits:        txnLimits(cfg, log),
		},
		Audit:   audit,
		Metrics: m,
		Logger:  log,
	})

	// Relay nodes dial the authoritative node's sync endpoint and keep
	// the connection registered as a transport peer.
	transportCtx, stopTransport := context.WithCancel(ctx)
	defer stopTransport()
	if cfg.SyncURL != "" {
		if len(frameSinks) == 0 {
			log.Fatal().Msg("SYNC_URL set but no proxy remote configured to consume frames")
		}
		transport := proxy.NewTransport(cfg.SyncURL, peers, func(frame []byte) {
			for _, handle := range frameSinks {
				handle(frame)
			}
		}, log)
		go func() {
			if err := transport.Run(transportCtx); err != nil {
				log.Error().Err(err).Msg("sync transport stopped")
			}
		}()
		log.Info().Str("url", cfg.SyncURL).Msg("dialing authoritative sync endpoint")
	}

	// Sync endpoint for relay peers
	endpoint := proxy.NewEndpoint(proxy.EndpointParams{
		Directory: dir,
		Guard:     guard,
		Peers:     peers,
		Metrics:   m,
		Logger:    log,
	})

	// Create router
	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		BankHandler:   handler.NewBankHandler(dir, auditReader, log),
		HealthHandler: handler.NewHealthHandler(pool, redisClient),
		SyncEndpoint:  endpoint,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func mustRegister(log zerolog.Logger, factories *remote.FactoryRegistry, f remote.Factory) {
	if err := factories.Register(f); err != nil {
		log.Fatal().Err(err).Str("type", f.Type()).Msg("factory registration failed")
	}
}

func txnLimits(cfg *config.Config, log zerolog.Logger) domain.Limits {
	min, err := decimal.NewFromString(cfg.MinTxnValue)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid MIN_TXN_VALUE")
	}
	max, err := decimal.NewFromString(cfg.MaxTxnValue)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid MAX_TXN_VALUE")
	}
	return domain.Limits{Min: min, Max: max}
}
