package api

import (
	"fmt"

	"lukechampine.com/blake3"
)

// syntheticTxHash deterministically derives a transaction hash for deposits
// the indexer reports without one. Real on-chain deposits always carry a
// tx_hash; this only covers clients that omit it (e.g. manual/staging
// credits), keeping the transaction log's external_tx_hash column
// populated and unique per input.
func syntheticTxHash(kind, userID, asset string, amountRaw string, unixNano int64) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%d", kind, userID, asset, amountRaw, unixNano)
	sum := blake3.Sum256([]byte(input))
	return fmt.Sprintf("%x", sum)
}
