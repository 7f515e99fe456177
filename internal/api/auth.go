package api

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// verifyWalletSignature checks that, when a client supplies an optional
// signature + message pair on /auth/ecash or /auth/solana, the recovered
// signer matches the claimed address before the upsert proceeds.
func verifyWalletSignature(address, message, signatureHex string) error {
	signatureHex = strings.TrimPrefix(strings.TrimPrefix(signatureHex, "0x"), "0X")
	sigBytes, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sigBytes) != 65 {
		return fmt.Errorf("signature must be 65 bytes, got %d", len(sigBytes))
	}
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}

	digest := accounts.TextHash([]byte(message))
	pubKey, err := ethcrypto.SigToPub(digest, sigBytes)
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	recovered := ethcrypto.PubkeyToAddress(*pubKey)

	claimed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X"))
	if err != nil || len(claimed) != len(recovered) {
		return fmt.Errorf("address does not match recovered signer")
	}
	if subtle.ConstantTimeCompare(recovered.Bytes(), claimed) != 1 {
		return fmt.Errorf("signature does not match supplied address")
	}
	return nil
}
