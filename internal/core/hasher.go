package core

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"LaunchLedger/internal/state"
)

const GenesisHashSeed = "launchledger:genesis:v1"

// GenesisHash is the prevHash of each launch's first audit record.
func GenesisHash() []byte {
	h := sha256.Sum256([]byte(GenesisHashSeed))
	return h[:]
}

// ChainRecord links rec to prev: hash = SHA-256(prev || canonical(rec)).
// A nil prev starts a new chain at the genesis hash.
func ChainRecord(prev []byte, rec *state.TransactionRecord) {
	if len(prev) == 0 {
		prev = GenesisHash()
	}

	hasher := sha256.New()
	hasher.Write(prev)
	hasher.Write(rec.CanonicalBytes())

	rec.PrevHash = append([]byte(nil), prev...)
	rec.Hash = hasher.Sum(nil)
}

// VerifyChain recomputes the chain over recs, oldest first, and returns the
// index of the first record that does not link.
func VerifyChain(recs []*state.TransactionRecord) error {
	prev := GenesisHash()
	for i, rec := range recs {
		if !bytes.Equal(rec.PrevHash, prev) {
			return fmt.Errorf("record %d (%s): prev hash does not link", i, rec.IdempotencyKey)
		}
		want := *rec
		ChainRecord(prev, &want)
		if !bytes.Equal(want.Hash, rec.Hash) {
			return fmt.Errorf("record %d (%s): hash mismatch", i, rec.IdempotencyKey)
		}
		prev = rec.Hash
	}
	return nil
}
