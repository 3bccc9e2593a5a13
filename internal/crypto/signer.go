package crypto

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// personalPrefix is the EIP-191 prefix wallets prepend before signing.
const personalPrefix = "\x19Ethereum Signed Message:\n"

// ProfileUpdateMessage is the canonical message a wallet signs to authorise
// a profile write. Clients must build the byte-identical string; issuedAt
// bounds replay.
func ProfileUpdateMessage(wallet string, issuedAt int64) []byte {
	return []byte(fmt.Sprintf("stakeboard profile update\nwallet: %s\nissued_at: %d",
		strings.ToLower(wallet), issuedAt))
}

// PersonalHash computes the EIP-191 digest of message, the hash wallets
// sign for personal_sign requests.
func PersonalHash(message []byte) []byte {
	prefixed := append([]byte(personalPrefix+strconv.Itoa(len(message))), message...)
	return ethcrypto.Keccak256(prefixed)
}

// RecoverPersonalSigner returns the address that produced sigHex over
// message via personal_sign.
func RecoverPersonalSigner(message []byte, sigHex string) (common.Address, error) {
	sig, err := decodeSignature(sigHex)
	if err != nil {
		return common.Address{}, err
	}

	pub, err := ethcrypto.SigToPub(PersonalHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recovering public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyPersonalSignature checks that wallet signed message. The address
// comparison is case-insensitive.
func VerifyPersonalSignature(wallet string, message []byte, sigHex string) error {
	recovered, err := RecoverPersonalSigner(message, sigHex)
	if err != nil {
		return err
	}
	if !strings.EqualFold(recovered.Hex(), wallet) {
		return fmt.Errorf("crypto/signer: signature from %s, expected %s", recovered.Hex(), wallet)
	}
	return nil
}

// PersonalSign signs message with the hex private key the way a wallet's
// personal_sign does. Used by tooling and tests.
func PersonalSign(message []byte, privateKeyHex string) (string, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	sig, err := ethcrypto.Sign(PersonalHash(message), pk)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; wallets emit {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// decodeSignature parses a 65-byte hex signature and normalises v back to
// {0,1} as SigToPub expects.
func decodeSignature(sigHex string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid signature hex: %w", err)
	}
	if len(raw) != 65 {
		return nil, fmt.Errorf("crypto/signer: expected 65-byte signature, got %d", len(raw))
	}
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	return raw, nil
}
