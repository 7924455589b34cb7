package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/launchpad/internal/authz"
	"github.com/alanyoungcy/launchpad/internal/crypto"
	"github.com/alanyoungcy/launchpad/internal/launch"
	"github.com/alanyoungcy/launchpad/internal/nonce"
	"github.com/alanyoungcy/launchpad/internal/relay"
	"github.com/alanyoungcy/launchpad/internal/server"
	"github.com/alanyoungcy/launchpad/internal/server/handler"
	"github.com/alanyoungcy/launchpad/internal/server/middleware"
	"github.com/alanyoungcy/launchpad/internal/server/ws"
	"github.com/alanyoungcy/launchpad/internal/service"
)

// ServerMode serves the HTTP and WebSocket API. The archive job also runs
// when archive.enabled is set.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startHTTPServer(ctx, g, deps); err != nil {
		return fmt.Errorf("server mode: %w", err)
	}
	if a.cfg.Archive.Enabled {
		if err := a.startArchiveJob(ctx, g, deps); err != nil {
			return fmt.Errorf("server mode: %w", err)
		}
	}
	return g.Wait()
}

// ArchiveMode runs only the event archive job.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startArchiveJob(ctx, g, deps); err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	return g.Wait()
}

// FullMode runs the API server and the archive job in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startHTTPServer(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	if err := a.startArchiveJob(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	return g.Wait()
}

// buildExecutor assembles the relay pipeline and its post-commit publisher.
func (a *App) buildExecutor(deps *Dependencies, nonces *nonce.Registry) (*relay.Executor, error) {
	tpl, err := a.cfg.Template()
	if err != nil {
		return nil, fmt.Errorf("build executor: %w", err)
	}

	pubDeps := service.PublisherDeps{
		Bus:      deps.Bus,
		Cache:    deps.MarketCache,
		Prices:   deps.Prices,
		Notifier: deps.Notifier,
		Audit:    deps.Audit,
	}
	if deps.Metrics != nil {
		pubDeps.Metrics = deps.Metrics
	}

	feeRecipient := common.HexToAddress(a.cfg.Launch.FeeRecipient)
	exec := relay.NewExecutor(
		deps.Ledger,
		nonces,
		authz.New(),
		launch.NewGate(common.HexToAddress(a.cfg.Launch.LiquidityAddress), feeRecipient),
		relay.Config{
			DomainName:    a.cfg.Signing.DomainName,
			DomainVersion: a.cfg.Signing.DomainVersion,
			ChainID:       big.NewInt(a.cfg.Signing.ChainID),
			Factory:       common.HexToAddress(a.cfg.Signing.Factory),
			FeeRecipient:  feeRecipient,
			AutoMigrate:   a.cfg.Launch.AutoMigrate,
			Template:      tpl,
		},
		a.logger,
	).WithSink(service.NewEventPublisher(pubDeps, a.logger))
	if deps.Metrics != nil {
		exec.WithMetrics(deps.Metrics)
	}
	return exec, nil
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	nonces := nonce.NewRegistry(deps.Ledger)
	exec, err := a.buildExecutor(deps, nonces)
	if err != nil {
		return err
	}

	marketSvc := service.NewMarketService(deps.Ledger, nonces, deps.MarketCache, deps.Prices, a.logger)
	hub := ws.NewHub(deps.Bus, a.logger)
	if deps.Metrics != nil {
		marketSvc.WithMetrics(deps.Metrics)
		hub.WithMetrics(deps.Metrics)
	}
	g.Go(func() error {
		return hub.Run(ctx)
	})

	relayers := make([]middleware.Relayer, len(a.cfg.Server.Relayers))
	for i, rc := range a.cfg.Server.Relayers {
		relayers[i] = middleware.Relayer{
			Address: common.HexToAddress(rc.Address),
			Auth:    crypto.HMACAuth{Key: rc.APIKey, Secret: rc.Secret, Passphrase: rc.Passphrase},
		}
	}

	srvDeps := server.Deps{
		Hub:            hub,
		Limiter:        deps.RateLimiter,
		MetricsHandler: deps.MetricsHandler,
	}
	if deps.Metrics != nil {
		srvDeps.Metrics = deps.Metrics
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AdminAPIKey: a.cfg.Server.AdminAPIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
		MaxSkew:     a.cfg.Server.MaxSkew.Duration,
		Relayers:    relayers,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Health, a.logger),
		Markets: handler.NewMarketHandler(marketSvc, a.logger),
		Relay:   handler.NewRelayHandler(exec, a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, exec.CreateDomain(), a.cfg.Launch.LiquidityAddress),
		Admin: handler.NewAdminHandler(
			service.NewCustodyService(deps.Ledger, deps.Audit, a.logger),
			exec,
			deps.BlobReader,
			deps.Audit,
			a.logger,
		),
	}, srvDeps, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.Int("relayers", len(relayers)),
		)
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return nil
}

func (a *App) startArchiveJob(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archive job: no archiver wired (needs s3 and postgres)")
	}
	job := service.NewArchiveJob(
		deps.Archiver,
		deps.Locks,
		a.cfg.Archive.Interval.Duration,
		a.cfg.Archive.Retention.Duration,
		a.logger,
	).WithNotifier(deps.Notifier).WithBackfill(a.cfg.Archive.Backfill)
	if deps.Metrics != nil {
		job.WithMetrics(deps.Metrics)
	}
	g.Go(func() error {
		return job.Run(ctx)
	})
	return nil
}
