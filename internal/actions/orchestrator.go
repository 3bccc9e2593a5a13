// Package actions orchestrates the on-chain write path: stake, claim
// and unstake submissions with their approval prerequisites, optimistic
// position tracking and the action journal.
//
// Every operation runs the same skeleton. Preconditions are checked
// before anything is written, the call is simulated against the current
// state, then submitted and journaled, and the receipt decides the
// terminal status. A request that fails validation leaves no trace on
// the chain or in the journal.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/starstake/stakeboard/internal/domain"
	"github.com/starstake/stakeboard/internal/platform/chain"
	"github.com/starstake/stakeboard/internal/reconcile"
	"github.com/starstake/stakeboard/internal/retry"
)

const (
	// allowancePolls bounds how many times one approve attempt re-reads
	// the allowance before the attempt counts as failed.
	allowancePolls = 5
	// allowancePollInterval spaces those reads. Read replicas can lag
	// the node that mined the approval by a few blocks.
	allowancePollInterval = 400 * time.Millisecond

	journalTimeout = 5 * time.Second
)

// errAllowanceLag means the approval was mined but the read path does
// not show it yet. Retryable.
var errAllowanceLag = errors.New("allowance not visible yet")

// Gateway is the transaction plumbing the orchestrator needs. Nonce
// bookkeeping stays inside the chain layer.
type Gateway interface {
	Connected() bool
	Signer() (common.Address, bool)
	Simulate(ctx context.Context, to common.Address, data []byte) error
	WaitReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Staking is the staking contract surface the orchestrator drives.
type Staking interface {
	Address() common.Address
	Paused(ctx context.Context) (bool, error)
	Packages(ctx context.Context) ([]domain.Package, error)
	PositionsOf(ctx context.Context, wallet string) ([]domain.Position, error)
	PendingReward(ctx context.Context, wallet string, stakeIndex uint64) (domain.TokenAmount, error)
	Stake(ctx context.Context, packageID uint64, amount domain.TokenAmount, referrer string) (*types.Transaction, error)
	Claim(ctx context.Context, stakeIndex uint64) (*types.Transaction, error)
	Unstake(ctx context.Context, stakeIndex uint64, amount domain.TokenAmount) (*types.Transaction, error)
	StakeCalldata(packageID uint64, amount domain.TokenAmount, referrer string) ([]byte, error)
	ClaimCalldata(stakeIndex uint64) ([]byte, error)
	UnstakeCalldata(stakeIndex uint64, amount domain.TokenAmount) ([]byte, error)
}

// Token is the ERC-20 surface of one allocation token.
type Token interface {
	Address() common.Address
	BalanceOf(ctx context.Context, account common.Address) (domain.TokenAmount, error)
	Allowance(ctx context.Context, owner, spender common.Address) (domain.TokenAmount, error)
	Approve(ctx context.Context, spender common.Address, amount domain.TokenAmount) (*types.Transaction, error)
}

// TokenResolver supplies the Token binding for an allocation address.
type TokenResolver func(addr common.Address) (Token, error)

// Compile-time interface checks.
var (
	_ Gateway = (*chain.Gateway)(nil)
	_ Staking = (*chain.StakingContract)(nil)
	_ Token   = (*chain.TokenContract)(nil)
)

// Config tunes the orchestrator.
type Config struct {
	ApproveAttempts  int
	ApproveBaseDelay time.Duration
	RefreshBursts    []time.Duration
	InflightTTL      time.Duration
	RateLimit        int
	RateWindow       time.Duration
}

func (c Config) withDefaults() Config {
	if c.ApproveAttempts <= 0 {
		c.ApproveAttempts = 3
	}
	if c.ApproveBaseDelay <= 0 {
		c.ApproveBaseDelay = 2 * time.Second
	}
	if c.RefreshBursts == nil {
		c.RefreshBursts = []time.Duration{time.Second, 3 * time.Second, 7 * time.Second}
	}
	if c.InflightTTL <= 0 {
		c.InflightTTL = 10 * time.Minute
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 12
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
	return c
}

// Orchestrator drives user actions end to end. All methods are safe for
// concurrent use; identical concurrent requests collapse through the
// in-flight guard.
type Orchestrator struct {
	cfg     Config
	gateway Gateway
	staking Staking
	tokens  TokenResolver
	store   *reconcile.EntryStore
	journal domain.ActionStore
	audit   domain.AuditStore
	limiter domain.RateLimiter
	bus     domain.EventBus
	guard   *Guard
	logger  *slog.Logger

	pollInterval time.Duration
	now          func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	cfg Config,
	gateway Gateway,
	staking Staking,
	tokens TokenResolver,
	store *reconcile.EntryStore,
	journal domain.ActionStore,
	audit domain.AuditStore,
	limiter domain.RateLimiter,
	bus domain.EventBus,
	logger *slog.Logger,
) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		cfg:          cfg,
		gateway:      gateway,
		staking:      staking,
		tokens:       tokens,
		store:        store,
		journal:      journal,
		audit:        audit,
		limiter:      limiter,
		bus:          bus,
		guard:        NewGuard(cfg.InflightTTL),
		logger:       logger,
		pollInterval: allowancePollInterval,
		now:          time.Now,
	}
}

// Run reaps guard holds orphaned by a crash until ctx is done. Normal
// completion releases holds promptly; this loop is the backstop.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := o.guard.Cleanup(); n > 0 {
				o.logger.WarnContext(ctx, "reaped orphaned in-flight holds", slog.Int("count", n))
			}
		}
	}
}

// Stake opens a new position. It verifies every precondition against
// live chain state, secures the ERC-20 approvals the package needs,
// simulates, submits, inserts an optimistic position for instant
// display, and classifies the receipt.
func (o *Orchestrator) Stake(ctx context.Context, req StakeRequest) (domain.ActionRecord, error) {
	var none domain.ActionRecord

	// 1. Signer and connection.
	signer, wallet, err := o.signerWallet()
	if err != nil {
		return none, err
	}
	log := o.logger.With(
		slog.String("kind", string(domain.ActionKindStake)),
		slog.String("wallet", wallet),
		slog.Uint64("package_id", req.PackageID),
		slog.String("amount", req.Amount.String()),
	)

	// 2. Rate limit.
	if err := o.allow(ctx, wallet); err != nil {
		return none, err
	}

	// 3. In-flight guard.
	key := ActionKey(domain.ActionKindStake, wallet,
		strconv.FormatUint(req.PackageID, 10), req.Amount.String(), req.Referrer)
	if !o.guard.Begin(key) {
		return none, fmt.Errorf("actions: stake: %w", domain.ErrActionInFlight)
	}
	defer o.guard.End(key)

	// 4. Request shape.
	if err := validateStake(req, wallet); err != nil {
		return none, err
	}

	// 5. Contract state.
	paused, err := o.staking.Paused(ctx)
	if err != nil {
		return none, fmt.Errorf("actions: reading pause state: %w", err)
	}
	if paused {
		return none, domain.Validationf("contract", "staking is paused")
	}
	pkg, err := o.packageByID(ctx, req.PackageID)
	if err != nil {
		return none, err
	}
	if err := checkPackage(pkg, req.Amount); err != nil {
		return none, err
	}

	// 6. Balances per allocation token.
	parts := pkg.SplitAmount(req.Amount)
	toks := make([]Token, len(pkg.Allocations))
	for i, alloc := range pkg.Allocations {
		tok, err := o.tokens(common.HexToAddress(alloc.Token))
		if err != nil {
			return none, fmt.Errorf("actions: resolving token %s: %w", alloc.Symbol, err)
		}
		toks[i] = tok
		balance, err := tok.BalanceOf(ctx, signer)
		if err != nil {
			return none, fmt.Errorf("actions: reading %s balance: %w", alloc.Symbol, err)
		}
		if balance.Cmp(parts[i]) < 0 {
			return none, domain.Validationf("balance", "insufficient %s: need %s, have %s",
				alloc.Symbol, parts[i], balance)
		}
	}

	// 7. Approvals.
	for i, alloc := range pkg.Allocations {
		if err := o.ensureAllowance(ctx, log, wallet, toks[i], parts[i], alloc.Symbol); err != nil {
			return none, err
		}
	}

	// 8. Simulation catches what static checks cannot.
	data, err := o.staking.StakeCalldata(req.PackageID, req.Amount, req.Referrer)
	if err != nil {
		return none, fmt.Errorf("actions: %w", err)
	}
	if err := o.gateway.Simulate(ctx, o.staking.Address(), data); err != nil {
		if domain.IsRevert(err) {
			return none, fmt.Errorf("actions: stake rejected by contract: %w", err)
		}
		return none, fmt.Errorf("actions: simulating stake: %w", err)
	}

	// 9. Submit and classify.
	rec := domain.ActionRecord{
		ID:        uuid.NewString(),
		Wallet:    wallet,
		Kind:      domain.ActionKindStake,
		PackageID: req.PackageID,
		Amount:    req.Amount,
		Detail: map[string]any{
			"referrer":     strings.ToLower(req.Referrer),
			"package_name": pkg.Name,
		},
	}
	rec, err = o.submitTracked(ctx, log, rec, data,
		func(ctx context.Context) (*types.Transaction, error) {
			return o.staking.Stake(ctx, req.PackageID, req.Amount, req.Referrer)
		},
		func(rec domain.ActionRecord) {
			o.insertOptimistic(rec, pkg)
			o.requestRefreshBursts(rec.Wallet)
		},
	)
	if rec.Status == domain.ActionStatusReverted {
		// The promised position will never exist.
		o.store.Remove(rec.TxHash)
	}
	if err != nil {
		return rec, err
	}

	if rec.Status == domain.ActionStatusConfirmed {
		o.bus.Publish(domain.Event{
			Kind:   domain.EventPositionConfirmed,
			Wallet: rec.Wallet,
			TxHash: rec.TxHash,
		})
	}
	return rec, nil
}

// Claim collects the pending reward of one position. A position with
// nothing accrued is rejected before any transaction is built.
func (o *Orchestrator) Claim(ctx context.Context, req ClaimRequest) (domain.ActionRecord, error) {
	var none domain.ActionRecord

	// 1. Signer and connection.
	_, wallet, err := o.signerWallet()
	if err != nil {
		return none, err
	}
	log := o.logger.With(
		slog.String("kind", string(domain.ActionKindClaim)),
		slog.String("wallet", wallet),
		slog.Uint64("stake_index", req.StakeIndex),
	)

	// 2. Rate limit.
	if err := o.allow(ctx, wallet); err != nil {
		return none, err
	}

	// 3. In-flight guard.
	key := ActionKey(domain.ActionKindClaim, wallet, strconv.FormatUint(req.StakeIndex, 10))
	if !o.guard.Begin(key) {
		return none, fmt.Errorf("actions: claim: %w", domain.ErrActionInFlight)
	}
	defer o.guard.End(key)

	// 4. Position and claim window.
	pos, err := o.positionByIndex(ctx, wallet, req.StakeIndex)
	if err != nil {
		return none, err
	}
	if err := checkClaimWindow(pos, o.now()); err != nil {
		return none, err
	}

	// 5. Pending amount. Zero means nothing to claim: stop before any
	// transaction is built or gas estimated.
	pending, err := o.staking.PendingReward(ctx, wallet, req.StakeIndex)
	if err != nil {
		return none, fmt.Errorf("actions: reading pending reward: %w", err)
	}
	if pending.IsZero() {
		return none, domain.Validationf("amount", "nothing to claim")
	}

	// 6. Simulate.
	data, err := o.staking.ClaimCalldata(req.StakeIndex)
	if err != nil {
		return none, fmt.Errorf("actions: %w", err)
	}
	if err := o.gateway.Simulate(ctx, o.staking.Address(), data); err != nil {
		if domain.IsRevert(err) {
			return none, fmt.Errorf("actions: claim rejected by contract: %w", err)
		}
		return none, fmt.Errorf("actions: simulating claim: %w", err)
	}

	// 7. Submit and classify.
	rec := domain.ActionRecord{
		ID:         uuid.NewString(),
		Wallet:     wallet,
		Kind:       domain.ActionKindClaim,
		PackageID:  pos.PackageID,
		StakeIndex: req.StakeIndex,
		Amount:     pending,
		Detail:     map[string]any{"package_name": pos.PackageName},
	}
	rec, err = o.submitTracked(ctx, log, rec, data,
		func(ctx context.Context) (*types.Transaction, error) {
			return o.staking.Claim(ctx, req.StakeIndex)
		},
		nil,
	)
	if err != nil || rec.Status != domain.ActionStatusConfirmed {
		return rec, err
	}

	// The rewards service re-anchors accrual off this event once the
	// refreshed view carries the new claimed total.
	o.bus.Publish(domain.Event{
		Kind:   domain.EventClaimConfirmed,
		Wallet: rec.Wallet,
		TxHash: rec.TxHash,
		Position: &domain.Position{
			PackageID:  pos.PackageID,
			StakeIndex: req.StakeIndex,
		},
	})
	o.requestRefreshBursts(rec.Wallet)
	return rec, nil
}

// Unstake withdraws principal from one position, honoring the lock and
// early-withdrawal terms it was opened under.
func (o *Orchestrator) Unstake(ctx context.Context, req UnstakeRequest) (domain.ActionRecord, error) {
	var none domain.ActionRecord

	// 1. Signer and connection.
	_, wallet, err := o.signerWallet()
	if err != nil {
		return none, err
	}
	log := o.logger.With(
		slog.String("kind", string(domain.ActionKindUnstake)),
		slog.String("wallet", wallet),
		slog.Uint64("stake_index", req.StakeIndex),
		slog.String("amount", req.Amount.String()),
	)

	// 2. Rate limit.
	if err := o.allow(ctx, wallet); err != nil {
		return none, err
	}

	// 3. In-flight guard.
	key := ActionKey(domain.ActionKindUnstake, wallet,
		strconv.FormatUint(req.StakeIndex, 10), req.Amount.String())
	if !o.guard.Begin(key) {
		return none, fmt.Errorf("actions: unstake: %w", domain.ErrActionInFlight)
	}
	defer o.guard.End(key)

	// 4. Request shape and position rules.
	if err := validateUnstake(req); err != nil {
		return none, err
	}
	pos, err := o.positionByIndex(ctx, wallet, req.StakeIndex)
	if err != nil {
		return none, err
	}
	if err := checkUnstakeRules(pos, req.Amount, o.now()); err != nil {
		return none, err
	}

	// 5. Simulate. The contract's monthly withdrawal cap is enforced
	// here rather than recomputed client-side.
	data, err := o.staking.UnstakeCalldata(req.StakeIndex, req.Amount)
	if err != nil {
		return none, fmt.Errorf("actions: %w", err)
	}
	if err := o.gateway.Simulate(ctx, o.staking.Address(), data); err != nil {
		if domain.IsRevert(err) {
			return none, fmt.Errorf("actions: unstake rejected by contract: %w", err)
		}
		return none, fmt.Errorf("actions: simulating unstake: %w", err)
	}

	// 6. Submit and classify.
	rec := domain.ActionRecord{
		ID:         uuid.NewString(),
		Wallet:     wallet,
		Kind:       domain.ActionKindUnstake,
		PackageID:  pos.PackageID,
		StakeIndex: req.StakeIndex,
		Amount:     req.Amount,
		Detail: map[string]any{
			"package_name": pos.PackageName,
			"remaining":    pos.Amount.Sub(pos.WithdrawnPrincipal).String(),
		},
	}
	rec, err = o.submitTracked(ctx, log, rec, data,
		func(ctx context.Context) (*types.Transaction, error) {
			return o.staking.Unstake(ctx, req.StakeIndex, req.Amount)
		},
		nil,
	)
	if err != nil || rec.Status != domain.ActionStatusConfirmed {
		return rec, err
	}

	o.bus.Publish(domain.Event{
		Kind:   domain.EventUnstakeConfirmed,
		Wallet: rec.Wallet,
		TxHash: rec.TxHash,
	})
	o.requestRefreshBursts(rec.Wallet)
	return rec, nil
}

// signerWallet resolves the configured signer or fails the action.
func (o *Orchestrator) signerWallet() (common.Address, string, error) {
	if !o.gateway.Connected() {
		return common.Address{}, "", domain.Validationf("gateway", "rpc not connected")
	}
	signer, ok := o.gateway.Signer()
	if !ok {
		return common.Address{}, "", domain.Validationf("wallet", "no signer configured")
	}
	return signer, strings.ToLower(signer.Hex()), nil
}

func (o *Orchestrator) allow(ctx context.Context, wallet string) error {
	allowed, err := o.limiter.Allow(ctx, "actions:"+wallet, o.cfg.RateLimit, o.cfg.RateWindow)
	if err != nil {
		return fmt.Errorf("actions: rate limiter: %w", err)
	}
	if !allowed {
		return fmt.Errorf("actions: %w", domain.ErrRateLimited)
	}
	return nil
}

func (o *Orchestrator) packageByID(ctx context.Context, id uint64) (domain.Package, error) {
	pkgs, err := o.staking.Packages(ctx)
	if err != nil {
		return domain.Package{}, fmt.Errorf("actions: reading packages: %w", err)
	}
	for _, pkg := range pkgs {
		if pkg.ID == id {
			return pkg, nil
		}
	}
	return domain.Package{}, domain.Validationf("package", "unknown package %d", id)
}

func (o *Orchestrator) positionByIndex(ctx context.Context, wallet string, stakeIndex uint64) (domain.Position, error) {
	positions, err := o.staking.PositionsOf(ctx, wallet)
	if err != nil {
		return domain.Position{}, fmt.Errorf("actions: reading positions: %w", err)
	}
	pos, ok := findByStakeIndex(positions, stakeIndex)
	if !ok {
		return domain.Position{}, domain.Validationf("position", "unknown stake index %d", stakeIndex)
	}
	return pos, nil
}

// ensureAllowance makes sure the staking contract may draw need from
// the token. Each attempt submits an approval, waits for its receipt
// and polls the allowance until it is visible; visibility can trail the
// receipt when reads hit a lagging replica.
func (o *Orchestrator) ensureAllowance(ctx context.Context, log *slog.Logger, wallet string, tok Token, need domain.TokenAmount, symbol string) error {
	spender := o.staking.Address()
	owner := common.HexToAddress(wallet)

	allowance, err := tok.Allowance(ctx, owner, spender)
	if err != nil {
		return fmt.Errorf("actions: reading %s allowance: %w", symbol, err)
	}
	if allowance.Cmp(need) >= 0 {
		return nil
	}

	policy := retry.Policy{
		Attempts:   o.cfg.ApproveAttempts,
		BaseDelay:  o.cfg.ApproveBaseDelay,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
		RetryIf:    func(err error) bool { return !retry.IsPermanent(err) },
	}
	err = retry.Do(ctx, policy, func() error {
		tx, err := tok.Approve(ctx, spender, need)
		if err != nil {
			return fmt.Errorf("submitting approve: %w", err)
		}
		rec := domain.ActionRecord{
			ID:        uuid.NewString(),
			Wallet:    wallet,
			Kind:      domain.ActionKindApprove,
			Amount:    need,
			TxHash:    strings.ToLower(tx.Hash().Hex()),
			Status:    domain.ActionStatusSubmitted,
			CreatedAt: o.now().UTC(),
			Detail: map[string]any{
				"token":   strings.ToLower(tok.Address().Hex()),
				"symbol":  symbol,
				"spender": strings.ToLower(spender.Hex()),
			},
		}
		if err := o.journal.Create(ctx, rec); err != nil {
			log.WarnContext(ctx, "journaling approve failed", slog.String("error", err.Error()))
		}
		receipt, err := o.gateway.WaitReceipt(ctx, tx)
		if err != nil {
			return fmt.Errorf("awaiting approve receipt: %w", err)
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			o.setStatus(ctx, log, rec.ID, domain.ActionStatusReverted, rec.TxHash)
			return retry.Permanent(fmt.Errorf("approve reverted in tx %s", rec.TxHash))
		}
		if err := o.pollAllowance(ctx, tok, owner, spender, need); err != nil {
			return err
		}
		o.setStatus(ctx, log, rec.ID, domain.ActionStatusConfirmed, rec.TxHash)
		log.InfoContext(ctx, "approval confirmed",
			slog.String("symbol", symbol),
			slog.String("amount", need.String()),
			slog.String("tx_hash", rec.TxHash))
		return nil
	})
	if err != nil {
		return fmt.Errorf("actions: approving %s: %w", symbol, err)
	}
	return nil
}

func (o *Orchestrator) pollAllowance(ctx context.Context, tok Token, owner, spender common.Address, need domain.TokenAmount) error {
	for i := 0; i < allowancePolls; i++ {
		allowance, err := tok.Allowance(ctx, owner, spender)
		if err == nil && allowance.Cmp(need) >= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.pollInterval):
		}
	}
	return errAllowanceLag
}

// submitTracked runs the shared tail of every action: the last
// cancellation gate, submission, journaling, and receipt
// classification. A cancellation before the transaction leaves is
// recorded as rejected and returns no error; the caller's state is as
// if the user never confirmed.
func (o *Orchestrator) submitTracked(
	ctx context.Context,
	log *slog.Logger,
	rec domain.ActionRecord,
	data []byte,
	submit func(context.Context) (*types.Transaction, error),
	onSubmitted func(domain.ActionRecord),
) (domain.ActionRecord, error) {
	if ctx.Err() != nil {
		return o.journalRejected(ctx, log, rec), nil
	}
	tx, err := submit(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return o.journalRejected(ctx, log, rec), nil
		}
		return rec, fmt.Errorf("actions: submitting %s: %w", rec.Kind, err)
	}

	rec.TxHash = strings.ToLower(tx.Hash().Hex())
	rec.Status = domain.ActionStatusSubmitted
	rec.CreatedAt = o.now().UTC()
	if err := o.journal.Create(ctx, rec); err != nil {
		log.WarnContext(ctx, "journaling action failed", slog.String("error", err.Error()))
	}
	log.InfoContext(ctx, "action submitted", slog.String("tx_hash", rec.TxHash))
	if onSubmitted != nil {
		onSubmitted(rec)
	}

	receipt, err := o.gateway.WaitReceipt(ctx, tx)
	if err != nil {
		// Still submitted. The stale promoter and the next authoritative
		// refresh settle what actually happened.
		return rec, fmt.Errorf("actions: awaiting %s receipt: %w", rec.Kind, err)
	}

	done := o.now().UTC()
	rec.CompletedAt = &done
	if receipt.Status == types.ReceiptStatusSuccessful {
		rec.Status = domain.ActionStatusConfirmed
		o.setStatus(ctx, log, rec.ID, rec.Status, rec.TxHash)
		o.auditAction(ctx, log, rec)
		log.InfoContext(ctx, "action confirmed",
			slog.String("tx_hash", rec.TxHash),
			slog.Uint64("block", receipt.BlockNumber.Uint64()))
		return rec, nil
	}

	rec.Status = domain.ActionStatusReverted
	reason := o.revertReason(ctx, data)
	if rec.Detail == nil {
		rec.Detail = map[string]any{}
	}
	rec.Detail["revert_reason"] = reason
	o.setStatus(ctx, log, rec.ID, rec.Status, rec.TxHash)
	o.auditAction(ctx, log, rec)
	o.bus.Publish(domain.Event{
		Kind:   domain.EventActionFailed,
		Wallet: rec.Wallet,
		TxHash: rec.TxHash,
		Action: &rec,
		Reason: reason,
	})
	log.WarnContext(ctx, "action reverted",
		slog.String("tx_hash", rec.TxHash),
		slog.String("reason", reason))
	return rec, fmt.Errorf("actions: %s: %w", rec.Kind, &domain.RevertError{Reason: reason})
}

// journalRejected records a cancellation that happened before the
// transaction was submitted. Rejection is neutral: no failure event, no
// error, no trace on the chain.
func (o *Orchestrator) journalRejected(ctx context.Context, log *slog.Logger, rec domain.ActionRecord) domain.ActionRecord {
	now := o.now().UTC()
	rec.Status = domain.ActionStatusRejected
	rec.CreatedAt = now
	rec.CompletedAt = &now

	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := o.journal.Create(jctx, rec); err != nil {
		log.WarnContext(jctx, "journaling rejection failed", slog.String("error", err.Error()))
	}
	o.auditAction(jctx, log, rec)
	log.InfoContext(jctx, "action rejected before submission")
	return rec
}

// insertOptimistic puts a provisional position in the entry store so the
// next read shows it immediately, and announces it on the bus.
func (o *Orchestrator) insertOptimistic(rec domain.ActionRecord, pkg domain.Package) {
	now := o.now().UTC()
	pos := domain.Position{
		TxHash:      rec.TxHash,
		User:        rec.Wallet,
		PackageID:   pkg.ID,
		PackageName: pkg.Name,
		Amount:      rec.Amount,
		StartAt:     now,
		NextClaimAt: now.Add(time.Duration(pkg.ClaimIntervalDays) * 24 * time.Hour),
		Rules:       pkg.Rules(),
	}
	o.store.Add(pos)
	pos.Key = pos.DedupKey()
	pos.Status = domain.PositionStatusPending
	pos.Optimistic = true
	o.bus.Publish(domain.Event{
		Kind:     domain.EventPositionPending,
		Wallet:   rec.Wallet,
		TxHash:   rec.TxHash,
		Position: &pos,
	})
}

// requestRefreshBursts asks for the authoritative view now and again
// shortly after, covering the indexer's lag behind the chain head.
func (o *Orchestrator) requestRefreshBursts(wallet string) {
	o.publishRefresh(wallet)
	for _, d := range o.cfg.RefreshBursts {
		time.AfterFunc(d, func() { o.publishRefresh(wallet) })
	}
}

func (o *Orchestrator) publishRefresh(wallet string) {
	o.bus.Publish(domain.Event{Kind: domain.EventRefreshRequested, Wallet: wallet})
}

func (o *Orchestrator) setStatus(ctx context.Context, log *slog.Logger, id string, status domain.ActionStatus, txHash string) {
	if err := o.journal.SetStatus(ctx, id, status, txHash); err != nil {
		log.WarnContext(ctx, "updating journal status failed",
			slog.String("action_id", id),
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) auditAction(ctx context.Context, log *slog.Logger, rec domain.ActionRecord) {
	detail := map[string]any{
		"action_id": rec.ID,
		"wallet":    rec.Wallet,
		"amount":    rec.Amount.String(),
	}
	if rec.TxHash != "" {
		detail["tx_hash"] = rec.TxHash
	}
	if rec.Kind == domain.ActionKindStake {
		detail["package_id"] = rec.PackageID
	} else {
		detail["stake_index"] = rec.StakeIndex
	}
	event := fmt.Sprintf("%s_%s", rec.Kind, rec.Status)
	if err := o.audit.Log(ctx, event, detail); err != nil {
		log.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
}

// revertReason re-simulates the failed call to recover the contract's
// reason string. The state may have moved since the transaction mined,
// so this is best effort.
func (o *Orchestrator) revertReason(ctx context.Context, data []byte) string {
	err := o.gateway.Simulate(ctx, o.staking.Address(), data)
	var re *domain.RevertError
	if errors.As(err, &re) && re.Reason != "" {
		return re.Reason
	}
	return "execution reverted"
}
