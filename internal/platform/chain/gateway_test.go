package chain

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starstake/stakeboard/internal/domain"
)

// revertDataError mimics a JSON-RPC error carrying abi-encoded revert data.
type revertDataError struct {
	msg  string
	data interface{}
}

func (e revertDataError) Error() string          { return e.msg }
func (e revertDataError) ErrorData() interface{} { return e.data }

// encodeRevertData builds the Error(string) payload a node returns for a
// revert with a reason.
func encodeRevertData(reason string) string {
	data := []byte{0x08, 0xc3, 0x79, 0xa0}
	data = append(data, common.LeftPadBytes(big.NewInt(32).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(int64(len(reason))).Bytes(), 32)...)
	padded := make([]byte, (len(reason)+31)/32*32)
	copy(padded, reason)
	return "0x" + common.Bytes2Hex(append(data, padded...))
}

func TestClassifyCallErrorDecodesRevertData(t *testing.T) {
	in := revertDataError{
		msg:  "execution reverted",
		data: encodeRevertData("stake: package inactive"),
	}

	got := classifyCallError(in)

	var revert *domain.RevertError
	require.ErrorAs(t, got, &revert)
	assert.Equal(t, "stake: package inactive", revert.Reason)
}

func TestClassifyCallErrorParsesRevertMessage(t *testing.T) {
	in := fmt.Errorf("call failed: %w", errors.New("execution reverted: cooldown not over"))

	got := classifyCallError(in)

	var revert *domain.RevertError
	require.ErrorAs(t, got, &revert)
	assert.Equal(t, "cooldown not over", revert.Reason)
}

func TestClassifyCallErrorRevertWithoutReason(t *testing.T) {
	got := classifyCallError(errors.New("execution reverted"))

	var revert *domain.RevertError
	require.ErrorAs(t, got, &revert)
	assert.Empty(t, revert.Reason)
}

func TestClassifyCallErrorPassesTransportErrors(t *testing.T) {
	in := errors.New("connection refused")

	got := classifyCallError(in)

	assert.False(t, domain.IsRevert(got))
	assert.ErrorIs(t, got, in)
}

func TestClassifyCallErrorNil(t *testing.T) {
	assert.NoError(t, classifyCallError(nil))
}

func TestCapGasPrice(t *testing.T) {
	gwei := func(n int64) *big.Int {
		return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
	}

	t.Run("below cap passes through", func(t *testing.T) {
		got := capGasPrice(gwei(3), 5)
		assert.Zero(t, got.Cmp(gwei(3)))
	})

	t.Run("above cap is clamped", func(t *testing.T) {
		got := capGasPrice(gwei(12), 5)
		assert.Zero(t, got.Cmp(gwei(5)))
	})

	t.Run("zero cap disables clamping", func(t *testing.T) {
		got := capGasPrice(gwei(12), 0)
		assert.Zero(t, got.Cmp(gwei(12)))
	})
}

func TestNewGatewayRejectsBadKey(t *testing.T) {
	_, err := NewGateway(Config{PrivateKeyHex: "not-hex"}, testLogger())
	require.Error(t, err)
}

func TestNewGatewayDerivesSignerAddress(t *testing.T) {
	// Well-known test vector: key 0x01 maps to this address.
	gw, err := NewGateway(Config{
		PrivateKeyHex: "0x0000000000000000000000000000000000000000000000000000000000000001",
	}, testLogger())
	require.NoError(t, err)

	addr, ok := gw.Signer()
	require.True(t, ok)
	assert.Equal(t, "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf", addr.Hex())
}

func TestSignerAbsentWithoutKey(t *testing.T) {
	gw, err := NewGateway(Config{}, testLogger())
	require.NoError(t, err)

	_, ok := gw.Signer()
	assert.False(t, ok)
}
