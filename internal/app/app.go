// Package app provides the top-level lifecycle for the marketplace daemon.
// It wires together all dependencies (stores, caches, blob storage, the
// settlement engine, and the API server) and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"github.com/inkworklabs/caboz/internal/config"
	"github.com/inkworklabs/caboz/internal/crypto"
	"github.com/inkworklabs/caboz/internal/engine"
	"github.com/inkworklabs/caboz/internal/itemset"
	"github.com/inkworklabs/caboz/internal/ledger"
	"github.com/inkworklabs/caboz/internal/server"
	"github.com/inkworklabs/caboz/internal/server/handler"
	"github.com/inkworklabs/caboz/internal/server/ws"
	"github.com/inkworklabs/caboz/internal/service"
)

// shutdownTimeout bounds the graceful HTTP shutdown after the run context
// is cancelled.
const shutdownTimeout = 10 * time.Second

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions that are called in reverse order on
// shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, builds the
// settlement engine and market service, starts the API server and event
// hub, and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting daemon",
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	authorityKey, err := crypto.LoadAuthority(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Authority.PrivateKey,
		EncryptedKeyPath: a.cfg.Authority.EncryptedKeyPath,
		KeyPassword:      a.cfg.Authority.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("app: load authority key: %w", err)
	}
	authority := authorityKey.PublicKey()

	eng, metadata, err := a.buildEngine(ctx, authority, deps)
	if err != nil {
		return err
	}

	svc := service.NewMarketService(
		eng,
		deps.OrderStore,
		deps.PaymentMintStore,
		deps.OrderCache,
		deps.RateLimiter,
		deps.SignalBus,
		deps.AuditStore,
		a.logger,
	)
	svc.SetCreateOrderRateLimit(a.cfg.Market.CreateOrderRateLimit)

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			AdminAPIKey: a.cfg.Server.AdminAPIKey,
			Limiter:     deps.RateLimiter,
		}, server.Handlers{
			Health:   handler.NewHealthHandler(a.logger),
			Orders:   handler.NewOrderHandler(svc, a.logger),
			Mints:    handler.NewMintHandler(svc, authority, a.logger),
			Wallets:  handler.NewWalletHandler(svc, a.logger),
			ItemSets: handler.NewItemSetHandler(itemset.NewPublisher(deps.BlobWriter), itemset.NewLoader(deps.BlobReader), a.logger),
			Metadata: handler.NewMetadataHandler(metadata, a.logger),
		}, hub, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// buildEngine constructs the ledger, metadata registry and settlement
// engine, seeds the authority's operating float, and rehydrates the
// payment-mint registry from the read model.
func (a *App) buildEngine(ctx context.Context, authority solana.PublicKey, deps *Dependencies) (*engine.Engine, *engine.MetadataRegistry, error) {
	programID, err := solana.PublicKeyFromBase58(a.cfg.Market.ProgramID)
	if err != nil {
		return nil, nil, fmt.Errorf("app: parse program_id: %w", err)
	}
	feeReceiver, err := solana.PublicKeyFromBase58(a.cfg.Market.FeeReceiver)
	if err != nil {
		return nil, nil, fmt.Errorf("app: parse fee_receiver: %w", err)
	}
	var loyaltyCollection solana.PublicKey
	if a.cfg.Market.LoyaltyCollection != "" {
		loyaltyCollection, err = solana.PublicKeyFromBase58(a.cfg.Market.LoyaltyCollection)
		if err != nil {
			return nil, nil, fmt.Errorf("app: parse loyalty_collection: %w", err)
		}
	}

	var ledgerOpts []ledger.Option
	if a.cfg.Market.RentReserve > 0 {
		ledgerOpts = append(ledgerOpts, ledger.WithRentReserve(a.cfg.Market.RentReserve))
	}
	led := ledger.New(programID, ledgerOpts...)

	// The authority pays the rent reserve for every fee-receiver holding
	// account provisioned on mint whitelisting; give it a float to pay
	// from.
	led.Credit(authority, a.cfg.Market.AuthorityFloat)

	metadata := engine.NewMetadataRegistry()
	eng := engine.New(led, metadata, engine.Config{
		Authority:         authority,
		FeeReceiver:       feeReceiver,
		LoyaltyCollection: loyaltyCollection,
	})

	// Rehydrate the registry from the read model so whitelisted currencies
	// survive a restart.
	mints, err := deps.PaymentMintStore.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("app: load payment mints: %w", err)
	}
	for _, m := range mints {
		if err := eng.AllowPaymentMint(authority, m.Mint, m.FeeMultiplierBps); err != nil {
			a.logger.WarnContext(ctx, "payment mint rehydration failed",
				slog.String("mint", m.Mint.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	a.logger.InfoContext(ctx, "engine ready",
		slog.String("authority", authority.String()),
		slog.Int("payment_mints", len(mints)),
	)

	return eng, metadata, nil
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down daemon")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
