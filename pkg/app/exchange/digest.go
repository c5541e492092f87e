package exchange

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/exchange/pkg/app/core/model"
)

// Digest hashes final book snapshots into one Keccak-256 fingerprint. Two
// runs that end with identical books produce identical digests.
//
// Snapshots must be in symbol order, bids and asks in priority order, which
// is how Registry.SnapshotAll returns them.
func Digest(snaps []model.BookSnapshot) common.Hash {
	var buf []byte
	for _, s := range snaps {
		buf = appendString(buf, s.Symbol)
		buf = appendOrders(buf, s.Bids)
		buf = appendOrders(buf, s.Asks)
	}
	return crypto.Keccak256Hash(buf)
}

func appendOrders(buf []byte, orders []model.Order) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(orders)))
	for _, o := range orders {
		buf = appendString(buf, o.SourceID)
		buf = appendString(buf, o.ID)
		buf = append(buf, byte(o.Side))
		buf = appendPrice(buf, o.Price)
		buf = binary.BigEndian.AppendUint64(buf, uint64(o.Remaining))
		buf = binary.BigEndian.AppendUint64(buf, o.Sequence)
	}
	return buf
}

var ten = big.NewInt(10)

// appendPrice writes p as coefficient and exponent with trailing zeros
// stripped, so 100, 100.0 and 1e2 encode alike.
func appendPrice(buf []byte, p decimal.Decimal) []byte {
	coef, exp := p.Coefficient(), p.Exponent()
	var q, r big.Int
	for coef.Sign() != 0 {
		q.QuoRem(coef, ten, &r)
		if r.Sign() != 0 {
			break
		}
		coef.Set(&q)
		exp++
	}
	if coef.Sign() == 0 {
		exp = 0
	}
	buf = appendString(buf, coef.String())
	return binary.BigEndian.AppendUint32(buf, uint32(exp))
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
