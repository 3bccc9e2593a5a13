package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/starstake/stakeboard/internal/actions"
	"github.com/starstake/stakeboard/internal/bus"
	"github.com/starstake/stakeboard/internal/crypto"
	"github.com/starstake/stakeboard/internal/notify"
	"github.com/starstake/stakeboard/internal/pipeline"
	"github.com/starstake/stakeboard/internal/platform/chain"
	"github.com/starstake/stakeboard/internal/platform/prices"
	"github.com/starstake/stakeboard/internal/platform/subgraph"
	"github.com/starstake/stakeboard/internal/reconcile"
	"github.com/starstake/stakeboard/internal/server"
	"github.com/starstake/stakeboard/internal/server/handler"
	"github.com/starstake/stakeboard/internal/server/ws"
	"github.com/starstake/stakeboard/internal/service"
	"github.com/starstake/stakeboard/internal/source"
)

// services bundles the domain services a run mode wires together.
type services struct {
	positions *service.PositionService
	rewards   *service.RewardsService
	referrals *service.ReferralService
	stars     *service.StarService
	profiles  *service.ProfileService
	prices    *service.PriceService // nil when the price feed is disabled
	entries   *reconcile.EntryStore
}

// ServeMode runs the full stack: REST API, WebSocket hub, reconciliation
// loops, the background pipeline, and the on-chain action orchestrator with
// the operator signer loaded.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("starting serve mode")

	gw, staking, err := a.buildChain(ctx, true)
	if err != nil {
		return err
	}
	svcs := a.buildServices(deps, staking)
	orch := a.buildOrchestrator(deps, gw, staking, svcs.entries)

	g, ctx := errgroup.WithContext(ctx)

	a.startReconciliation(ctx, g, deps, svcs)

	watcher := chain.NewWatcher(gw, staking, deps.Bus, a.logger)
	g.Go(func() error {
		return watcher.Run(ctx)
	})

	forwarder := bus.NewForwarder(deps.Bus, deps.SignalBus, a.logger)
	g.Go(func() error {
		return forwarder.Run(ctx)
	})

	if deps.Notifier != nil {
		dispatcher := notify.NewDispatcher(deps.Bus, deps.Notifier, explorerBase(a.cfg), a.logger)
		g.Go(func() error {
			return dispatcher.Run(ctx)
		})
	}

	// The orchestrator's run loop only reaps expired in-flight guards; it
	// has no error path and exits with the context.
	g.Go(func() error {
		orch.Run(ctx)
		return nil
	})

	a.startPipeline(ctx, g, deps, svcs, true)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs, orch, gw)
	} else {
		a.logger.Warn("http server disabled; serve mode is running headless")
	}

	return g.Wait()
}

// MonitorMode runs the read-only stack. No operator key is loaded, so the
// gateway rejects transaction submission while every read path, the event
// watcher, and the WebSocket feed keep working.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("starting monitor mode")

	gw, staking, err := a.buildChain(ctx, false)
	if err != nil {
		return err
	}
	svcs := a.buildServices(deps, staking)
	orch := a.buildOrchestrator(deps, gw, staking, svcs.entries)

	g, ctx := errgroup.WithContext(ctx)

	a.startReconciliation(ctx, g, deps, svcs)

	watcher := chain.NewWatcher(gw, staking, deps.Bus, a.logger)
	g.Go(func() error {
		return watcher.Run(ctx)
	})

	forwarder := bus.NewForwarder(deps.Bus, deps.SignalBus, a.logger)
	g.Go(func() error {
		return forwarder.Run(ctx)
	})

	if deps.Notifier != nil {
		dispatcher := notify.NewDispatcher(deps.Bus, deps.Notifier, explorerBase(a.cfg), a.logger)
		g.Go(func() error {
			return dispatcher.Run(ctx)
		})
	}

	g.Go(func() error {
		orch.Run(ctx)
		return nil
	})

	// No archiver; monitor instances never delete journal rows.
	a.startPipeline(ctx, g, deps, svcs, false)

	// The HTTP server is always started in monitor mode.
	a.startHTTPServer(ctx, g, deps, svcs, orch, gw)

	return g.Wait()
}

// SyncMode warms position caches and archives aged journal rows without
// serving HTTP. Meant to run as a cron job or a sidecar next to a serving
// instance.
func (a *App) SyncMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("starting sync mode")

	gw, staking, err := a.buildChain(ctx, false)
	if err != nil {
		return err
	}
	svcs := a.buildServices(deps, staking)

	g, ctx := errgroup.WithContext(ctx)

	a.startReconciliation(ctx, g, deps, svcs)

	watcher := chain.NewWatcher(gw, staking, deps.Bus, a.logger)
	g.Go(func() error {
		return watcher.Run(ctx)
	})

	forwarder := bus.NewForwarder(deps.Bus, deps.SignalBus, a.logger)
	g.Go(func() error {
		return forwarder.Run(ctx)
	})

	a.startPipeline(ctx, g, deps, svcs, true)

	return g.Wait()
}

// buildChain dials the RPC node and binds the staking contract. With
// withSigner set the operator key is loaded and transact methods become
// available; read-only modes leave it out.
func (a *App) buildChain(ctx context.Context, withSigner bool) (*chain.Gateway, *chain.StakingContract, error) {
	chainCfg := chain.Config{
		RPCURL:          a.cfg.Chain.RPCURL,
		WSURL:           a.cfg.Chain.WSURL,
		ChainID:         a.cfg.Chain.ChainID,
		Confirmations:   a.cfg.Chain.Confirmations,
		GasPriceCapGwei: a.cfg.Chain.GasPriceCapGwei,
		ReceiptTimeout:  a.cfg.Chain.ReceiptTimeout.Duration,
	}
	if withSigner {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    a.cfg.Wallet.PrivateKey,
			EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      a.cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("loading operator key: %w", err)
		}
		chainCfg.PrivateKeyHex = key
	}

	gw, err := chain.NewGateway(chainCfg, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating chain gateway: %w", err)
	}
	if err := gw.Dial(ctx); err != nil {
		return nil, nil, fmt.Errorf("dialing chain: %w", err)
	}
	a.closers = append(a.closers, gw.Close)

	staking, err := chain.NewStakingContract(gw, common.HexToAddress(a.cfg.Chain.StakingContract), a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("binding staking contract: %w", err)
	}
	if addr, ok := gw.Signer(); ok {
		a.logger.Info("operator signer loaded", "address", addr.Hex())
	}
	return gw, staking, nil
}

// buildServices wires the read-path services over the dual-source position
// reader. The subgraph client is always constructed; with an empty URL its
// requests fail fast and the source falls back to chain reads.
func (a *App) buildServices(deps *Dependencies, staking *chain.StakingContract) *services {
	sg := subgraph.NewClient(a.cfg.Subgraph.URL, a.cfg.Subgraph.APIKey, a.cfg.Subgraph.RequestTimeout.Duration)

	src := source.New(source.Config{
		CacheTTL:        a.cfg.Source.CacheTTL.Duration,
		FailureCooldown: a.cfg.Source.FailureCooldown.Duration,
		Retries:         a.cfg.Source.Retries,
		RetryBaseDelay:  a.cfg.Source.RetryBaseDelay.Duration,
	}, sg, staking, deps.PositionCache, deps.PackageCache, a.logger)

	entries := reconcile.NewEntryStore(a.cfg.Reconcile.PendingTimeout.Duration, a.cfg.Reconcile.FuzzyTolerance.Duration)

	svcs := &services{
		positions: service.NewPositionService(src, entries, deps.Bus, a.cfg.Reconcile.DebounceWindow.Duration, a.logger),
		referrals: service.NewReferralService(sg, a.logger),
		stars:     service.NewStarService(sg, nil, a.logger),
		profiles:  service.NewProfileService(deps.ProfileStore, deps.AuditStore, a.logger),
		entries:   entries,
	}
	svcs.rewards = service.NewRewardsService(svcs.positions, deps.AnchorStore, staking, deps.Bus, a.logger)

	if a.cfg.Prices.Enabled {
		feed := prices.NewClient(a.cfg.Prices.BaseURL, a.cfg.Prices.APIKey)
		svcs.prices = service.NewPriceService(feed, deps.PriceCache, deps.Bus, a.cfg.Prices.Tokens, a.logger)
	}
	return svcs
}

// buildOrchestrator assembles the on-chain action pipeline. Without a
// signer on the gateway every submission fails with ErrUnauthorized, which
// the actions handler reports as 401.
func (a *App) buildOrchestrator(
	deps *Dependencies,
	gw *chain.Gateway,
	staking *chain.StakingContract,
	entries *reconcile.EntryStore,
) *actions.Orchestrator {
	bursts := make([]time.Duration, 0, len(a.cfg.Actions.RefreshBursts))
	for _, d := range a.cfg.Actions.RefreshBursts {
		bursts = append(bursts, d.Duration)
	}

	return actions.NewOrchestrator(
		actions.Config{
			ApproveAttempts:  a.cfg.Actions.ApproveAttempts,
			ApproveBaseDelay: a.cfg.Actions.ApproveBaseDelay.Duration,
			RefreshBursts:    bursts,
			InflightTTL:      a.cfg.Actions.InflightTTL.Duration,
			RateLimit:        a.cfg.Actions.RateLimit,
			RateWindow:       a.cfg.Actions.RateWindow.Duration,
		},
		gw,
		staking,
		tokenResolver(gw),
		entries,
		deps.ActionStore,
		deps.AuditStore,
		deps.RateLimiter,
		deps.Bus,
		a.logger,
	)
}

// startReconciliation adds the refresh debouncer, the reward reanchor loop,
// and the pending-entry promoter to the group.
func (a *App) startReconciliation(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	g.Go(func() error {
		return svcs.positions.Run(ctx)
	})
	g.Go(func() error {
		return svcs.rewards.Run(ctx)
	})

	promoter := reconcile.NewPromoter(
		svcs.entries,
		deps.Bus,
		a.cfg.Reconcile.DisplayTick.Duration,
		a.cfg.Reconcile.PromoteTick.Duration,
		a.logger,
	)
	g.Go(func() error {
		return promoter.Run(ctx)
	})
}

// startPipeline adds the background refresh loops to the group. The price
// refresher is skipped when the feed is disabled; the archiver only runs
// when withArchiver is set and cold storage is wired.
func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services, withArchiver bool) {
	poller := pipeline.NewWalletPoller(svcs.positions, a.logger)

	var refresher *pipeline.PriceRefresher
	if svcs.prices != nil {
		refresher = pipeline.NewPriceRefresher(svcs.prices, a.logger)
	}

	var archiver *pipeline.Archiver
	if withArchiver && a.cfg.Archive.Enabled && deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger).
			WithLockManager(deps.LockManager)
	}

	orch := pipeline.NewOrchestrator(
		poller,
		refresher,
		archiver,
		a.cfg.Source.PollInterval.Duration,
		a.cfg.Prices.RefreshInterval.Duration,
		a.cfg.Archive.Cron,
		a.logger,
	)
	g.Go(func() error {
		return orch.Run(ctx)
	})
}

// startHTTPServer adds the API server and the WebSocket hub to the group.
// The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svcs *services,
	orch *actions.Orchestrator,
	gw *chain.Gateway,
) {
	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      a.startedAt,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, a.startedAt, svcs.positions, gw),
		Packages:  handler.NewPackagesHandler(svcs.positions, a.logger),
		Positions: handler.NewPositionHandler(svcs.positions, a.logger),
		Rewards:   handler.NewRewardsHandler(svcs.rewards, a.logger),
		Referrals: handler.NewReferralsHandler(svcs.referrals, a.logger),
		Stars:     handler.NewStarsHandler(svcs.stars, a.logger),
		Profile:   handler.NewProfileHandler(svcs.profiles, a.logger),
		Actions:   handler.NewActionsHandler(orch, deps.ActionStore, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.AuthToken,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// tokenResolver binds allocation-token contracts on demand and caches them
// per address.
func tokenResolver(gw *chain.Gateway) actions.TokenResolver {
	var (
		mu       sync.Mutex
		bindings = make(map[common.Address]*chain.TokenContract)
	)
	return func(addr common.Address) (actions.Token, error) {
		mu.Lock()
		defer mu.Unlock()
		if tok, ok := bindings[addr]; ok {
			return tok, nil
		}
		tok, err := chain.NewTokenContract(gw, addr)
		if err != nil {
			return nil, err
		}
		bindings[addr] = tok
		return tok, nil
	}
}
