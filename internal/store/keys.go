package store

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - pm/{user_16b}/{seq_be8}
//
// The fixed-width user UUID keeps per-user ranges contiguous; the big-endian
// sequence makes lexicographic order equal numeric order, so a prefix scan
// yields the user's backlog in ascending sequence.

var pendingPrefix = []byte("pm/")

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyPending builds the record key for one pending message.
func KeyPending(userID uuid.UUID, seq uint64) []byte {
	k := make([]byte, 0, len(pendingPrefix)+16+8)
	k = append(k, pendingPrefix...)
	k = append(k, userID[:]...)
	k = appendBE8(k, seq)
	return k
}

// KeyPendingRange returns the [lower, upper) bounds covering every pending
// record of a user.
func KeyPendingRange(userID uuid.UUID) (lower, upper []byte) {
	lower = make([]byte, 0, len(pendingPrefix)+16)
	lower = append(lower, pendingPrefix...)
	lower = append(lower, userID[:]...)

	upper = make([]byte, 0, len(lower)+8)
	upper = append(upper, lower...)
	upper = appendBE8(upper, ^uint64(0))
	upper = append(upper, 0x00)
	return lower, upper
}

// seqFromKey extracts the big-endian sequence suffix.
func seqFromKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(key)-8:])
}
