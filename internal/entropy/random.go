// Package entropy supplies seeds for the simulation's shared random stream
// when none is configured.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"time"
)

// Seed returns a non-zero seed drawn from crypto/rand. If the system source
// fails it falls back to the wall clock.
func Seed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		slog.Warn("crypto/rand unavailable, seeding from clock", "error", err)
		return nonZero(time.Now().UnixNano())
	}
	// Keep 63 bits so the seed is non-negative and prints cleanly.
	return nonZero(int64(binary.LittleEndian.Uint64(buf[:]) >> 1))
}

// Resolve returns seed unchanged unless it is zero, in which case a fresh
// seed is drawn.
func Resolve(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return Seed()
}

func nonZero(v int64) int64 {
	if v == 0 {
		return 1
	}
	return v
}
