package chain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/starstake/stakeboard/internal/domain"
)

const (
	watcherReconnectBase = 2 * time.Second
	watcherReconnectMax  = 60 * time.Second
	watcherLogBuffer     = 16
)

// Watcher subscribes to Staked, RewardClaimed, and Unstaked logs over WS
// and turns them into confirmation events on the bus. It covers stakes
// confirmed outside this process; the orchestrator's own receipts publish
// the same events, and promoting an unknown hash is a no-op.
type Watcher struct {
	gw       *Gateway
	contract *StakingContract
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewWatcher creates a watcher over the staking contract's events.
func NewWatcher(gw *Gateway, contract *StakingContract, bus domain.EventBus, logger *slog.Logger) *Watcher {
	return &Watcher{
		gw:       gw,
		contract: contract,
		bus:      bus,
		logger:   logger.With(slog.String("component", "chain_watcher")),
	}
}

// Run subscribes and resubscribes with capped backoff until ctx ends.
// Without a WS endpoint it returns immediately; stale promotion and
// authoritative pruning still converge the view without it.
func (w *Watcher) Run(ctx context.Context) error {
	if w.gw.WSClient() == nil {
		w.logger.InfoContext(ctx, "no ws endpoint, confirmation watcher disabled")
		return nil
	}

	delay := watcherReconnectBase
	for {
		started := time.Now()
		err := w.subscribe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A subscription that lived a while earns a fresh backoff.
		if time.Since(started) > watcherReconnectMax {
			delay = watcherReconnectBase
		}

		w.logger.WarnContext(ctx, "subscription dropped, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > watcherReconnectMax {
			delay = watcherReconnectMax
		}
	}
}

// subscribe opens one log subscription and dispatches until it fails.
func (w *Watcher) subscribe(ctx context.Context) error {
	contractABI := w.contract.ABI()
	topics := []common.Hash{
		contractABI.Events["Staked"].ID,
		contractABI.Events["RewardClaimed"].ID,
		contractABI.Events["Unstaked"].ID,
	}
	query := ethereum.FilterQuery{
		Addresses: []common.Address{w.contract.Address()},
		Topics:    [][]common.Hash{topics},
	}

	logs := make(chan types.Log, watcherLogBuffer)
	sub, err := w.gw.WSClient().SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("chain: subscribing to staking logs: %w", err)
	}
	defer sub.Unsubscribe()

	w.logger.InfoContext(ctx, "watching staking events",
		slog.String("contract", w.contract.Address().Hex()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = fmt.Errorf("chain: subscription closed")
			}
			return err
		case lg := <-logs:
			if lg.Removed {
				continue
			}
			w.dispatch(lg)
		}
	}
}

// dispatch publishes the confirmation event for one log, plus a refresh so
// the authoritative view catches up.
func (w *Watcher) dispatch(lg types.Log) {
	ev, ok := w.toEvent(lg)
	if !ok {
		return
	}
	w.bus.Publish(ev)
	w.bus.Publish(domain.Event{Kind: domain.EventRefreshRequested, Wallet: ev.Wallet})
}

// toEvent maps a staking contract log to its bus event.
func (w *Watcher) toEvent(lg types.Log) (domain.Event, bool) {
	if len(lg.Topics) < 2 {
		return domain.Event{}, false
	}

	wallet := strings.ToLower(common.HexToAddress(lg.Topics[1].Hex()).Hex())
	txHash := strings.ToLower(lg.TxHash.Hex())

	contractABI := w.contract.ABI()
	switch lg.Topics[0] {
	case contractABI.Events["Staked"].ID:
		return domain.Event{Kind: domain.EventPositionConfirmed, Wallet: wallet, TxHash: txHash}, true
	case contractABI.Events["RewardClaimed"].ID:
		return domain.Event{Kind: domain.EventClaimConfirmed, Wallet: wallet, TxHash: txHash}, true
	case contractABI.Events["Unstaked"].ID:
		return domain.Event{Kind: domain.EventUnstakeConfirmed, Wallet: wallet, TxHash: txHash}, true
	}
	return domain.Event{}, false
}
