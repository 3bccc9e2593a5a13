package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/starstake/stakeboard/internal/domain"
)

// TokenContract is the ERC-20 binding for one allocation token.
type TokenContract struct {
	gw       *Gateway
	addr     common.Address
	contract *bind.BoundContract
}

// NewTokenContract binds the ERC-20 token at addr through gw.
func NewTokenContract(gw *Gateway, addr common.Address) (*TokenContract, error) {
	if gw == nil || !gw.Connected() {
		return nil, fmt.Errorf("chain: token contract needs a dialed gateway")
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parsing erc20 abi: %w", err)
	}

	client := gw.Client()
	return &TokenContract{
		gw:       gw,
		addr:     addr,
		contract: bind.NewBoundContract(addr, parsed, client, client, client),
	}, nil
}

// Address returns the token contract address.
func (tc *TokenContract) Address() common.Address { return tc.addr }

// BalanceOf reads the token balance of account.
func (tc *TokenContract) BalanceOf(ctx context.Context, account common.Address) (domain.TokenAmount, error) {
	var out []interface{}
	if err := tc.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", account); err != nil {
		return domain.TokenAmount{}, fmt.Errorf("chain: reading balance of %s: %w", tc.addr.Hex(), err)
	}
	if len(out) == 0 {
		return domain.TokenAmount{}, nil
	}
	balance, _ := out[0].(*big.Int)
	return domain.NewTokenAmount(balance), nil
}

// Allowance reads how much spender may draw from owner.
func (tc *TokenContract) Allowance(ctx context.Context, owner, spender common.Address) (domain.TokenAmount, error) {
	var out []interface{}
	if err := tc.contract.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, spender); err != nil {
		return domain.TokenAmount{}, fmt.Errorf("chain: reading allowance of %s: %w", tc.addr.Hex(), err)
	}
	if len(out) == 0 {
		return domain.TokenAmount{}, nil
	}
	allowance, _ := out[0].(*big.Int)
	return domain.NewTokenAmount(allowance), nil
}

// Approve submits an approval for spender to draw amount.
func (tc *TokenContract) Approve(ctx context.Context, spender common.Address, amount domain.TokenAmount) (*types.Transaction, error) {
	auth, err := tc.gw.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := tc.contract.Transact(auth, "approve", spender, amount.BigInt())
	if err != nil {
		if serr := tc.gw.SyncNonce(ctx); serr != nil {
			err = fmt.Errorf("%w (nonce resync also failed: %v)", err, serr)
		}
		return nil, fmt.Errorf("chain: submitting approve for %s: %w", tc.addr.Hex(), err)
	}
	return tx, nil
}
