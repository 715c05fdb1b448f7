package state

import (
	"time"

	"github.com/google/uuid"
)

// TransactionRecord is the append-only audit entry for one accepted event.
// Its existence is the idempotency witness for IdempotencyKey.
type TransactionRecord struct {
	ID             uuid.UUID
	IdempotencyKey string
	Signature      string
	Type           string
	Launch         string
	User           string // Empty for launch-level events

	SolAmount    uint64 // Lamports moved (basis added, refund paid)
	SharesAmount uint64 // Shares issued, redeemed or unlocked
	TokenAmount  uint64 // Token base units, for claims
	MarketCapUSD uint64

	Slot      uint64
	Timestamp time.Time

	PrevHash []byte
	Hash     []byte
}

// CanonicalBytes returns the deterministic serialization hashed into the audit chain.
// PrevHash, Hash and ID are excluded.
func (r *TransactionRecord) CanonicalBytes() []byte {
	buf := make([]byte, 0, 256)

	buf = appendString(buf, r.IdempotencyKey)
	buf = appendString(buf, r.Signature)
	buf = appendString(buf, r.Type)
	buf = appendString(buf, r.Launch)
	buf = appendString(buf, r.User)

	buf = appendUint64LE(buf, r.SolAmount)
	buf = appendUint64LE(buf, r.SharesAmount)
	buf = appendUint64LE(buf, r.TokenAmount)
	buf = appendUint64LE(buf, r.MarketCapUSD)
	buf = appendUint64LE(buf, r.Slot)
	buf = appendUint64LE(buf, uint64(r.Timestamp.UnixMicro()))

	return buf
}

// length-prefixed (2 bytes LE)
func appendString(buf []byte, s string) []byte {
	n := len(s)
	buf = append(buf, byte(n), byte(n>>8))
	return append(buf, s...)
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
