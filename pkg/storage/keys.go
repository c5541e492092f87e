package storage

import (
	"fmt"
)

// Key schema:
//
//	trade:<symbol>:<seq>   → Trade (JSON), seq zero-padded to 20 digits
//	book:<symbol>          → final BookSnapshot (gob)
//	stat:<kind>            → status counter (8-byte big endian)
//	run:meta               → RunMeta (JSON)
const (
	prefixTrade  = "trade:"
	prefixBook   = "book:"
	prefixStatus = "stat:"
	keyRunMeta   = "run:meta"
)

// tradeKey returns the key for a trade
// Format: "trade:{symbol}:{seq}"
func tradeKey(symbol string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixTrade, symbol, seq))
}

// tradePrefix returns the prefix for all trades of a symbol
func tradePrefix(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, symbol))
}

func bookKey(symbol string) []byte {
	return []byte(prefixBook + symbol)
}

func statusKey(kind string) []byte {
	return []byte(prefixStatus + kind)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
