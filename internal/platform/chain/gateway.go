// Package chain provides the ethclient gateway and typed bindings for the
// staking contract and its ERC-20 allocation tokens.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/starstake/stakeboard/internal/domain"
)

const (
	defaultReceiptTimeout = 3 * time.Minute
	blockPollInterval     = 2 * time.Second
)

// Config holds the connection parameters for the gateway.
type Config struct {
	RPCURL string
	WSURL  string

	// ChainID is verified against the node after dialing.
	ChainID int64

	// PrivateKeyHex enables the operator signer. Leave empty for
	// read-only modes; transact methods then fail with ErrUnauthorized.
	PrivateKeyHex string

	// Confirmations is the number of blocks to wait beyond inclusion.
	Confirmations uint64

	// GasPriceCapGwei bounds the suggested gas price. Zero disables the cap.
	GasPriceCapGwei int64

	ReceiptTimeout time.Duration
}

// Gateway wraps an ethclient connection with chain-id verification, local
// nonce tracking for the operator signer, and receipt waiting.
type Gateway struct {
	cfg      Config
	client   *ethclient.Client
	wsClient *ethclient.Client
	chainID  *big.Int

	signerKey  *ecdsa.PrivateKey
	signerAddr common.Address

	nonceMu      sync.Mutex
	pendingNonce uint64

	logger *slog.Logger
}

// NewGateway creates a gateway from config. Call Dial before use.
func NewGateway(cfg Config, logger *slog.Logger) (*Gateway, error) {
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = defaultReceiptTimeout
	}

	g := &Gateway{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "chain")),
	}

	if cfg.PrivateKeyHex != "" {
		pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("chain: invalid signer key: %w", err)
		}
		g.signerKey = pk
		g.signerAddr = ethcrypto.PubkeyToAddress(pk.PublicKey)
	}

	return g, nil
}

// Dial connects to the RPC endpoint, verifies the chain id, and initialises
// the signer nonce. The WS endpoint is optional; a failed WS dial is logged
// and event subscriptions stay disabled.
func (g *Gateway) Dial(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, g.cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("chain: dialing rpc: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("chain: reading chain id: %w", err)
	}
	if want := big.NewInt(g.cfg.ChainID); chainID.Cmp(want) != 0 {
		client.Close()
		return fmt.Errorf("chain: chain id mismatch: node reports %s, config expects %s", chainID, want)
	}

	g.client = client
	g.chainID = chainID

	if g.signerKey != nil {
		nonce, err := client.PendingNonceAt(ctx, g.signerAddr)
		if err != nil {
			client.Close()
			g.client = nil
			return fmt.Errorf("chain: reading signer nonce: %w", err)
		}
		g.nonceMu.Lock()
		g.pendingNonce = nonce
		g.nonceMu.Unlock()
	}

	if g.cfg.WSURL != "" {
		ws, err := ethclient.DialContext(ctx, g.cfg.WSURL)
		if err != nil {
			g.logger.WarnContext(ctx, "ws dial failed, event subscriptions disabled",
				slog.String("error", err.Error()))
		} else {
			g.wsClient = ws
		}
	}

	g.logger.InfoContext(ctx, "connected",
		slog.String("chain_id", chainID.String()),
		slog.Bool("signer", g.signerKey != nil),
		slog.Bool("ws", g.wsClient != nil))
	return nil
}

// Close releases both connections.
func (g *Gateway) Close() {
	if g.client != nil {
		g.client.Close()
		g.client = nil
	}
	if g.wsClient != nil {
		g.wsClient.Close()
		g.wsClient = nil
	}
}

// Client returns the RPC client, nil before Dial.
func (g *Gateway) Client() *ethclient.Client { return g.client }

// WSClient returns the WS client, nil when no WS endpoint is configured.
func (g *Gateway) WSClient() *ethclient.Client { return g.wsClient }

// Connected reports whether Dial succeeded.
func (g *Gateway) Connected() bool { return g.client != nil }

// ChainID returns the verified chain id, nil before Dial.
func (g *Gateway) ChainID() *big.Int { return g.chainID }

// Signer returns the operator address and whether a signer key is loaded.
func (g *Gateway) Signer() (common.Address, bool) {
	return g.signerAddr, g.signerKey != nil
}

// BlockNumber returns the current head block.
func (g *Gateway) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := g.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: reading block number: %w", err)
	}
	return n, nil
}

// TransactOpts builds signed transact options with the next local nonce.
// The gas price is the node's suggestion, bounded by the configured cap.
func (g *Gateway) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if g.signerKey == nil {
		return nil, fmt.Errorf("chain: no signer configured: %w", domain.ErrUnauthorized)
	}

	gasPrice, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: suggesting gas price: %w", err)
	}
	gasPrice = capGasPrice(gasPrice, g.cfg.GasPriceCapGwei)

	opts, err := bind.NewKeyedTransactorWithChainID(g.signerKey, g.chainID)
	if err != nil {
		return nil, fmt.Errorf("chain: building transactor: %w", err)
	}

	g.nonceMu.Lock()
	opts.Nonce = new(big.Int).SetUint64(g.pendingNonce)
	g.pendingNonce++
	g.nonceMu.Unlock()

	opts.GasPrice = gasPrice
	opts.Context = ctx
	return opts, nil
}

// SyncNonce refreshes the local nonce from the node. Call after a failed
// submission so the local counter does not run ahead of the chain.
func (g *Gateway) SyncNonce(ctx context.Context) error {
	if g.signerKey == nil {
		return nil
	}
	nonce, err := g.client.PendingNonceAt(ctx, g.signerAddr)
	if err != nil {
		return fmt.Errorf("chain: syncing nonce: %w", err)
	}
	g.nonceMu.Lock()
	g.pendingNonce = nonce
	g.nonceMu.Unlock()
	return nil
}

// WaitReceipt blocks until the transaction is mined and has the configured
// number of confirmations. The receipt is returned as-is: callers classify
// success or revert from receipt.Status.
func (g *Gateway) WaitReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, g.cfg.ReceiptTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, g.client, tx)
	if err != nil {
		return nil, fmt.Errorf("chain: waiting for %s: %w", tx.Hash().Hex(), err)
	}

	if g.cfg.Confirmations > 0 {
		target := receipt.BlockNumber.Uint64() + g.cfg.Confirmations
		for {
			head, err := g.client.BlockNumber(waitCtx)
			if err != nil {
				return nil, fmt.Errorf("chain: polling confirmations for %s: %w", tx.Hash().Hex(), err)
			}
			if head >= target {
				break
			}
			select {
			case <-waitCtx.Done():
				return nil, fmt.Errorf("chain: confirmations for %s: %w", tx.Hash().Hex(), waitCtx.Err())
			case <-time.After(blockPollInterval):
			}
		}
	}

	return receipt, nil
}

// Simulate executes the calldata against the latest state without
// submitting. Reverts come back as domain.RevertError with the decoded
// reason, other failures as transport errors.
func (g *Gateway) Simulate(ctx context.Context, to common.Address, data []byte) error {
	msg := ethereum.CallMsg{From: g.signerAddr, To: &to, Data: data}
	if _, err := g.client.CallContract(ctx, msg, nil); err != nil {
		return classifyCallError(err)
	}
	return nil
}

// capGasPrice bounds suggested against capGwei. Zero cap passes through.
func capGasPrice(suggested *big.Int, capGwei int64) *big.Int {
	if capGwei <= 0 {
		return suggested
	}
	capWei := new(big.Int).Mul(big.NewInt(capGwei), big.NewInt(1_000_000_000))
	if suggested.Cmp(capWei) > 0 {
		return capWei
	}
	return suggested
}

// dataError is the shape of JSON-RPC errors that carry revert data.
type dataError interface {
	Error() string
	ErrorData() interface{}
}

// classifyCallError turns an eth_call failure into domain.RevertError when
// the node reports an execution revert, preserving the reason string.
func classifyCallError(err error) error {
	if err == nil {
		return nil
	}

	var de dataError
	if errors.As(err, &de) {
		if hexData, ok := de.ErrorData().(string); ok {
			if reason, uerr := abi.UnpackRevert(common.FromHex(hexData)); uerr == nil {
				return &domain.RevertError{Reason: reason}
			}
		}
	}

	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted"); idx >= 0 {
		reason := strings.TrimPrefix(msg[idx:], "execution reverted")
		reason = strings.TrimSpace(strings.TrimPrefix(reason, ":"))
		return &domain.RevertError{Reason: reason}
	}

	return fmt.Errorf("chain: call failed: %w", err)
}
