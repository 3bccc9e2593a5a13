package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/starstake/stakeboard/internal/domain"
)

// packageData mirrors the getPackages tuple.
type packageData struct {
	Id              *big.Int
	Name            string
	MinStake        *big.Int
	StepSize        *big.Int
	DurationDays    uint32
	AprBps          uint32
	ClaimEveryDays  uint32
	PrincipalLocked bool
	MonthlyUnstake  bool
	Active          bool
	Tokens          []tokenWeightData
}

type tokenWeightData struct {
	Token     common.Address
	Symbol    string
	WeightBps uint32
}

// positionData mirrors the getPositions tuple.
type positionData struct {
	PackageId          *big.Int
	StakeIndex         *big.Int
	Amount             *big.Int
	StartAt            uint64
	ClaimedReward      *big.Int
	WithdrawnPrincipal *big.Int
	FullyWithdrawn     bool
}

// StakingContract is the typed binding for the staking deployment.
type StakingContract struct {
	gw       *Gateway
	addr     common.Address
	abi      abi.ABI
	contract *bind.BoundContract
	logger   *slog.Logger
}

// NewStakingContract binds the staking contract at addr through gw.
func NewStakingContract(gw *Gateway, addr common.Address, logger *slog.Logger) (*StakingContract, error) {
	if gw == nil || !gw.Connected() {
		return nil, fmt.Errorf("chain: staking contract needs a dialed gateway")
	}

	parsed, err := abi.JSON(strings.NewReader(stakingABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parsing staking abi: %w", err)
	}

	client := gw.Client()
	return &StakingContract{
		gw:       gw,
		addr:     addr,
		abi:      parsed,
		contract: bind.NewBoundContract(addr, parsed, client, client, client),
		logger:   logger.With(slog.String("component", "staking_contract")),
	}, nil
}

// Address returns the bound contract address.
func (sc *StakingContract) Address() common.Address { return sc.addr }

// ABI returns the parsed contract ABI, used by the watcher for event topics.
func (sc *StakingContract) ABI() abi.ABI { return sc.abi }

// Paused reports whether the contract has paused user actions.
func (sc *StakingContract) Paused(ctx context.Context) (bool, error) {
	var out []interface{}
	if err := sc.contract.Call(&bind.CallOpts{Context: ctx}, &out, "paused"); err != nil {
		return false, fmt.Errorf("chain: reading paused: %w", err)
	}
	if len(out) == 0 {
		return false, nil
	}
	paused, _ := out[0].(bool)
	return paused, nil
}

// Packages reads the full package catalogue.
func (sc *StakingContract) Packages(ctx context.Context) ([]domain.Package, error) {
	var out []interface{}
	if err := sc.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPackages"); err != nil {
		return nil, fmt.Errorf("chain: reading packages: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}

	raw := *abi.ConvertType(out[0], new([]packageData)).(*[]packageData)
	pkgs := make([]domain.Package, 0, len(raw))
	for _, pd := range raw {
		pkg := domain.Package{
			ID:                pd.Id.Uint64(),
			Name:              pd.Name,
			DurationDays:      int(pd.DurationDays),
			AprBps:            int64(pd.AprBps),
			ClaimIntervalDays: int(pd.ClaimEveryDays),
			MinStake:          domain.NewTokenAmount(pd.MinStake),
			StakeStep:         domain.NewTokenAmount(pd.StepSize),
			PrincipalLocked:   pd.PrincipalLocked,
			MonthlyUnstake:    pd.MonthlyUnstake,
			Active:            pd.Active,
		}
		for _, tw := range pd.Tokens {
			pkg.Allocations = append(pkg.Allocations, domain.TokenWeight{
				Token:     strings.ToLower(tw.Token.Hex()),
				Symbol:    tw.Symbol,
				WeightBps: int64(tw.WeightBps),
			})
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

// PositionsOf reads wallet's positions directly from the contract. Chain
// reads carry no transaction hash, so positions key by package and start;
// package name and rules are stitched in by the caller from the catalogue.
func (sc *StakingContract) PositionsOf(ctx context.Context, wallet string) ([]domain.Position, error) {
	var out []interface{}
	err := sc.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPositions", common.HexToAddress(wallet))
	if err != nil {
		return nil, fmt.Errorf("chain: reading positions: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}

	raw := *abi.ConvertType(out[0], new([]positionData)).(*[]positionData)
	positions := make([]domain.Position, 0, len(raw))
	for _, pd := range raw {
		pos := domain.Position{
			User:               strings.ToLower(wallet),
			PackageID:          pd.PackageId.Uint64(),
			StakeIndex:         pd.StakeIndex.Uint64(),
			Amount:             domain.NewTokenAmount(pd.Amount),
			StartAt:            time.Unix(int64(pd.StartAt), 0).UTC(),
			Status:             domain.PositionStatusActive,
			ClaimedReward:      domain.NewTokenAmount(pd.ClaimedReward),
			WithdrawnPrincipal: domain.NewTokenAmount(pd.WithdrawnPrincipal),
			FullyWithdrawn:     pd.FullyWithdrawn,
		}
		if pd.FullyWithdrawn {
			pos.Status = domain.PositionStatusInactive
		}
		pos.Key = pos.DedupKey()
		positions = append(positions, pos)
	}
	return positions, nil
}

// PendingReward reads the accrued unclaimed reward for one position.
func (sc *StakingContract) PendingReward(ctx context.Context, wallet string, stakeIndex uint64) (domain.TokenAmount, error) {
	var out []interface{}
	err := sc.contract.Call(&bind.CallOpts{Context: ctx}, &out, "pendingReward",
		common.HexToAddress(wallet), new(big.Int).SetUint64(stakeIndex))
	if err != nil {
		return domain.TokenAmount{}, fmt.Errorf("chain: reading pending reward: %w", err)
	}
	if len(out) == 0 {
		return domain.TokenAmount{}, nil
	}
	amount, _ := out[0].(*big.Int)
	return domain.NewTokenAmount(amount), nil
}

// StarOf reads the wallet's star tier index.
func (sc *StakingContract) StarOf(ctx context.Context, wallet string) (int, error) {
	var out []interface{}
	err := sc.contract.Call(&bind.CallOpts{Context: ctx}, &out, "starOf", common.HexToAddress(wallet))
	if err != nil {
		return 0, fmt.Errorf("chain: reading star tier: %w", err)
	}
	if len(out) == 0 {
		return 0, nil
	}
	tier, _ := out[0].(uint8)
	return int(tier), nil
}

// Stake submits a stake transaction.
func (sc *StakingContract) Stake(ctx context.Context, packageID uint64, amount domain.TokenAmount, referrer string) (*types.Transaction, error) {
	auth, err := sc.gw.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := sc.contract.Transact(auth, "stake",
		new(big.Int).SetUint64(packageID), amount.BigInt(), common.HexToAddress(referrer))
	if err != nil {
		sc.resyncNonce(ctx)
		return nil, fmt.Errorf("chain: submitting stake: %w", err)
	}
	return tx, nil
}

// Claim submits a claim transaction for one position.
func (sc *StakingContract) Claim(ctx context.Context, stakeIndex uint64) (*types.Transaction, error) {
	auth, err := sc.gw.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := sc.contract.Transact(auth, "claim", new(big.Int).SetUint64(stakeIndex))
	if err != nil {
		sc.resyncNonce(ctx)
		return nil, fmt.Errorf("chain: submitting claim: %w", err)
	}
	return tx, nil
}

// Unstake submits a principal withdrawal for one position.
func (sc *StakingContract) Unstake(ctx context.Context, stakeIndex uint64, amount domain.TokenAmount) (*types.Transaction, error) {
	auth, err := sc.gw.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := sc.contract.Transact(auth, "unstake",
		new(big.Int).SetUint64(stakeIndex), amount.BigInt())
	if err != nil {
		sc.resyncNonce(ctx)
		return nil, fmt.Errorf("chain: submitting unstake: %w", err)
	}
	return tx, nil
}

// StakeCalldata packs the stake call for simulation.
func (sc *StakingContract) StakeCalldata(packageID uint64, amount domain.TokenAmount, referrer string) ([]byte, error) {
	data, err := sc.abi.Pack("stake",
		new(big.Int).SetUint64(packageID), amount.BigInt(), common.HexToAddress(referrer))
	if err != nil {
		return nil, fmt.Errorf("chain: packing stake: %w", err)
	}
	return data, nil
}

// ClaimCalldata packs the claim call for simulation.
func (sc *StakingContract) ClaimCalldata(stakeIndex uint64) ([]byte, error) {
	data, err := sc.abi.Pack("claim", new(big.Int).SetUint64(stakeIndex))
	if err != nil {
		return nil, fmt.Errorf("chain: packing claim: %w", err)
	}
	return data, nil
}

// UnstakeCalldata packs the unstake call for simulation.
func (sc *StakingContract) UnstakeCalldata(stakeIndex uint64, amount domain.TokenAmount) ([]byte, error) {
	data, err := sc.abi.Pack("unstake",
		new(big.Int).SetUint64(stakeIndex), amount.BigInt())
	if err != nil {
		return nil, fmt.Errorf("chain: packing unstake: %w", err)
	}
	return data, nil
}

// resyncNonce refreshes the local nonce after a failed submission so the
// counter does not run ahead of the chain.
func (sc *StakingContract) resyncNonce(ctx context.Context) {
	if err := sc.gw.SyncNonce(ctx); err != nil {
		sc.logger.WarnContext(ctx, "nonce resync failed", slog.String("error", err.Error()))
	}
}
